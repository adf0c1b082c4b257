package source

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/kikiluvv/quotereel/pkg/util"
)

// ErrReleased is returned when a released handle is used.
var ErrReleased = errors.New("source handle already released")

// ErrInUse is returned by Retire while a running job holds the handle.
var ErrInUse = errors.New("source handle in use")

// Handle owns a temporary file holding an uploaded payload. The file is
// removed once the handle is released and no pin remains.
type Handle struct {
	path string

	mu       sync.Mutex
	pins     int
	released bool
	removed  bool
	err      error
}

func newHandle(dir, ext string, data []byte) (*Handle, error) {
	f, err := util.TempFile(dir, "quotereel-src-", ext)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		util.CleanupFiles(path)
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		util.CleanupFiles(path)
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	return &Handle{path: path}, nil
}

// Path returns the backing file, or ErrReleased after Release.
func (h *Handle) Path() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return "", ErrReleased
	}
	return h.path, nil
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Pin keeps the backing file alive until the matching Unpin and returns its
// path. A released handle cannot be pinned.
func (h *Handle) Pin() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return "", ErrReleased
	}
	h.pins++
	return h.path, nil
}

// Unpin drops one pin. The file goes away with the last pin of a released
// handle.
func (h *Handle) Unpin() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pins > 0 {
		h.pins--
	}
	if h.pins == 0 && h.released {
		h.removeLocked()
	}
}

// Retire releases the handle unless it is pinned, in which case it is left
// untouched and ErrInUse is returned.
func (h *Handle) Retire() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pins > 0 {
		return ErrInUse
	}
	return h.releaseLocked()
}

// Release marks the handle released and removes the backing file, or defers
// the removal to the last Unpin. Later calls return the first result.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.releaseLocked()
}

func (h *Handle) releaseLocked() error {
	if !h.released {
		h.released = true
		if h.pins == 0 {
			h.removeLocked()
		}
	}
	return h.err
}

func (h *Handle) removeLocked() {
	if h.removed {
		return
	}
	h.removed = true
	if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		h.err = fmt.Errorf("remove %s: %w", h.path, err)
	}
}
