package preview

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/slzatz/termpreview/render"
)

type fakeFetcher struct {
	calls atomic.Int32
	gate  chan struct{} // when set, Fetch blocks until it is closed
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte("bytes of " + url), nil
}

type fakeRenderer struct {
	once        sync.Once
	probes      atomic.Int32
	renders     atomic.Int32
	unavailable bool
	err         error
}

func (r *fakeRenderer) Available(ctx context.Context) error {
	r.once.Do(func() { r.probes.Add(1) })
	if r.unavailable {
		return render.ErrUnavailable
	}
	return nil
}

func (r *fakeRenderer) Render(ctx context.Context, img []byte, width, height int) (string, error) {
	if err := r.Available(ctx); err != nil {
		return "", err
	}
	r.renders.Add(1)
	if r.err != nil {
		return "", r.err
	}
	return fmt.Sprintf("art(%s) %dx%d", img, width, height), nil
}

type memStore struct {
	mu     sync.Mutex
	rows   map[string][]byte
	puts   int
	putErr error
}

func newMemStore() *memStore { return &memStore{rows: make(map[string][]byte)} }

func (s *memStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rows[key]
	return v, ok, nil
}

func (s *memStore) Put(ctx context.Context, key string, value []byte, rowLimit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	s.rows[key] = value
	return nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[key]
	return ok
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
