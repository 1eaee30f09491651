package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// tickingClock advances one second per call so access order is unambiguous.
func tickingClock() func() time.Time {
	var n atomic.Int64
	base := time.Unix(1700000000, 0)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "lru-cache.db"), Options{Now: tickingClock()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sortedKeys(t *testing.T, s *Store) []string {
	t.Helper()
	keys, err := s.Keys(context.Background())
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	sort.Strings(keys)
	return keys
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	value := []byte{0x1f, 0x8b, 0x00, 0xff, 'a', 'r', 't'}
	if err := s.Put(ctx, "http://x/a.jpg:40:20", value, DefaultRowLimit); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, found, err := s.Get(ctx, "http://x/a.jpg:40:20")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected key to be found")
	}
	if !bytes.Equal(got, value) {
		t.Errorf("Get returned %v, want %v", got, value)
	}
}

func TestGetMiss(t *testing.T) {
	s := openTestStore(t)
	got, found, err := s.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found || got != nil {
		t.Errorf("expected miss, got found=%v value=%v", found, got)
	}
}

func TestPutReplacesValue(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	s.Put(ctx, "k", []byte("one"), 10)
	s.Put(ctx, "k", []byte("two"), 10)

	n, err := s.Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row after upsert, got %d", n)
	}
	got, _, _ := s.Get(ctx, "k")
	if string(got) != "two" {
		t.Errorf("expected updated value 'two', got %q", got)
	}
}

func TestNullValue(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.Put(ctx, "failed", nil, 10); err != nil {
		t.Fatalf("Put nil: %v", err)
	}
	got, found, err := s.Get(ctx, "failed")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected NULL row to be found")
	}
	if got != nil {
		t.Errorf("expected nil value, got %v", got)
	}
}

func TestEvictionBound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	const rowLimit = 5
	for i := 0; i < rowLimit+3; i++ {
		if err := s.Put(ctx, fmt.Sprintf("key%d", i), []byte{byte(i)}, rowLimit); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}

	n, _ := s.Len(ctx)
	if n != rowLimit {
		t.Fatalf("expected %d rows, got %d", rowLimit, n)
	}
	keys, _ := s.Keys(ctx)
	want := []string{"key7", "key6", "key5", "key4", "key3"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("kept %v, want %v", keys, want)
	}
}

func TestEvictionScenario(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, k := range []string{"A", "B", "C"} {
		if err := s.Put(ctx, k, []byte(k), 2); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}
	if got := sortedKeys(t, s); !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Fatalf("after A,B,C kept %v, want [B C]", got)
	}

	// touching B makes C the oldest
	if _, found, err := s.Get(ctx, "B"); err != nil || !found {
		t.Fatalf("Get B: found=%v err=%v", found, err)
	}
	if err := s.Put(ctx, "D", []byte("D"), 2); err != nil {
		t.Fatalf("Put D: %v", err)
	}
	if got := sortedKeys(t, s); !reflect.DeepEqual(got, []string{"B", "D"}) {
		t.Errorf("after get(B), put(D) kept %v, want [B D]", got)
	}
}

func TestSameSecondTiesKeepNewest(t *testing.T) {
	ctx := context.Background()
	fixed := time.Unix(1700000000, 0)
	s, err := Open(filepath.Join(t.TempDir(), "c.db"), Options{Now: func() time.Time { return fixed }})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	for _, k := range []string{"A", "B", "C"} {
		s.Put(ctx, k, []byte(k), 2)
	}
	if got := sortedKeys(t, s); !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Errorf("kept %v, want [B C]", got)
	}
}

func TestTouchWithinSameSecond(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "c.db"), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	for _, k := range []string{"A", "B", "C"} {
		if err := s.Put(ctx, k, []byte(k), 2); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}
	if _, found, err := s.Get(ctx, "B"); err != nil || !found {
		t.Fatalf("Get B: found=%v err=%v", found, err)
	}
	if err := s.Put(ctx, "D", []byte("D"), 2); err != nil {
		t.Fatalf("Put D: %v", err)
	}
	if got := sortedKeys(t, s); !reflect.DeepEqual(got, []string{"B", "D"}) {
		t.Errorf("kept %v, want [B D]", got)
	}
	if v, found, _ := s.Get(ctx, "B"); !found || string(v) != "B" {
		t.Errorf("Get B after touch = %q, %v", v, found)
	}
}

func TestReopenPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "lru-cache.db")

	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Put(ctx, "k", []byte("v"), 10); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s.Close()

	s, err = Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, found, err := s.Get(ctx, "k")
	if err != nil || !found || string(got) != "v" {
		t.Errorf("after reopen got %q found=%v err=%v", got, found, err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	const rowLimit = 20
	var wg sync.WaitGroup
	errs := make(chan error, 8*50*2)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("g%d-%d", g, i%30)
				if err := s.Put(ctx, key, []byte(key), rowLimit); err != nil {
					errs <- err
				}
				if _, _, err := s.Get(ctx, key); err != nil {
					errs <- err
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent op failed: %v", err)
	}

	n, _ := s.Len(ctx)
	if n != rowLimit {
		t.Errorf("expected %d rows after concurrent writes, got %d", rowLimit, n)
	}
}

func TestStatsAndPrune(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for i := 0; i < 4; i++ {
		s.Put(ctx, fmt.Sprintf("k%d", i), []byte("abc"), 0)
	}
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Rows != 4 || st.Bytes != 12 {
		t.Errorf("Stats = %+v, want 4 rows / 12 bytes", st)
	}
	if !st.Newest.After(st.Oldest) {
		t.Errorf("expected newest %v after oldest %v", st.Newest, st.Oldest)
	}

	n, err := s.Prune(ctx, 1)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 3 {
		t.Errorf("Prune removed %d rows, want 3", n)
	}
	if keys, _ := s.Keys(ctx); !reflect.DeepEqual(keys, []string{"k3"}) {
		t.Errorf("after prune kept %v, want [k3]", keys)
	}

	if err := s.Optimize(ctx); err != nil {
		t.Errorf("Optimize: %v", err)
	}
}

func TestClosedStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "c.db"), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	err = s.Put(context.Background(), "k", []byte("v"), 10)
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected *IOError, got %T %v", err, err)
	}
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOpenError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(filepath.Join(blocker, "sub", "lru-cache.db"), Options{})
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected *OpenError, got %T %v", err, err)
	}
}

func TestDetermineDriver(t *testing.T) {
	if d := DetermineDriver([]string{"termpreview", "--go-sqlite"}); d != DriverModernC {
		t.Errorf("--go-sqlite gave %v", d)
	}
	if d := DetermineDriver(nil); d != DriverModernC {
		t.Errorf("default gave %v", d)
	}
	d := DetermineDriver([]string{"--cgo-sqlite"})
	if CGOAvailable() && d != DriverMattn {
		t.Errorf("--cgo-sqlite with cgo gave %v", d)
	}
	if !CGOAvailable() && d != DriverModernC {
		t.Errorf("--cgo-sqlite without cgo gave %v", d)
	}
	if DriverModernC.Name() != "sqlite" || DriverMattn.Name() != "sqlite3" {
		t.Error("unexpected sql driver names")
	}
}
