package render

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	// board thumbnails are frequently webp
	_ "golang.org/x/image/webp"
)

// maxDecodePixels caps the pixel area Prescale will decode in process.
// Anything larger goes to chafa as is, where the render timeout applies.
const maxDecodePixels = 40_000_000

// Prescale shrinks img to fit inside maxPixels×maxPixels and re-encodes it
// as PNG. Images that are already small enough, larger than maxDecodePixels
// in area, or that fail to decode leave the bytes untouched, as does a
// maxPixels of 0; chafa gets the original.
func Prescale(img []byte, maxPixels int) []byte {
	if maxPixels <= 0 {
		return img
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return img
	}
	if cfg.Width <= maxPixels && cfg.Height <= maxPixels {
		return img
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxDecodePixels {
		return img
	}

	src, err := imaging.Decode(bytes.NewReader(img), imaging.AutoOrientation(true))
	if err != nil {
		return img
	}
	dst := imaging.Fit(src, maxPixels, maxPixels, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, imaging.PNG); err != nil {
		return img
	}
	return buf.Bytes()
}
