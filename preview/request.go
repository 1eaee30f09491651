package preview

import (
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// MaxCells bounds either side of a preview.
const MaxCells = 1024

// Request identifies one preview: an image URL rendered at a size in
// terminal cells.
type Request struct {
	URL    string
	Width  int
	Height int
}

// Key is the cache key, "url:width:height".
func (r Request) Key() string {
	return r.URL + ":" + strconv.Itoa(r.Width) + ":" + strconv.Itoa(r.Height)
}

func (r Request) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required, is.RequestURL),
		validation.Field(&r.Width, validation.Required, validation.Min(1), validation.Max(MaxCells)),
		validation.Field(&r.Height, validation.Required, validation.Min(1), validation.Max(MaxCells)),
	)
}
