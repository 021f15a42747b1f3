package watcher

import (
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultContentCacheSize bounds the number of remembered file digests.
const defaultContentCacheSize = 4096

// ContentFilter drops write events that leave a file's content unchanged,
// as produced by editors that save without modifications.
type ContentFilter struct {
	digests *lru.Cache[string, uint64]
}

// NewContentFilter creates a filter remembering up to size digests.
func NewContentFilter(size int) (*ContentFilter, error) {
	if size <= 0 {
		size = defaultContentCacheSize
	}
	cache, err := lru.New[string, uint64](size)
	if err != nil {
		return nil, err
	}
	return &ContentFilter{digests: cache}, nil
}

// Changed records the digest of path and reports whether it differs from the
// previous one. Unreadable files always count as changed.
func (f *ContentFilter) Changed(path string) bool {
	sum, err := digestFile(path)
	if err != nil {
		f.digests.Remove(path)
		return true
	}
	prev, ok := f.digests.Get(path)
	f.digests.Add(path, sum)
	return !ok || prev != sum
}

// Forget drops the digest of path.
func (f *ContentFilter) Forget(path string) {
	f.digests.Remove(path)
}

func digestFile(path string) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = file.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, file); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
