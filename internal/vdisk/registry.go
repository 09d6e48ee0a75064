package vdisk

import (
	"fmt"
	"sync"
)

// Registry enforces the "one Vdisk per path" rule: two drives must
// never independently open the same backing file, which would let
// their in-memory headers drift out of sync. This is ambient
// bookkeeping, not a domain concern grounded on the teacher -- see
// DESIGN.md.
type Registry struct {
	mu   sync.Mutex
	open map[string]*Vdisk
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{open: make(map[string]*Vdisk)}
}

// Open opens path via vdisk.Open and registers it, failing with
// ErrAlreadyOpen if some other handle to the same path is still open.
func (r *Registry) Open(path string, writable bool) (*Vdisk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.open[path]; exists {
		return nil, fmt.Errorf("%s: %w", path, ErrAlreadyOpen)
	}
	v, err := Open(path, writable)
	if err != nil {
		return nil, err
	}
	r.open[path] = v
	return v, nil
}

// Close closes and unregisters path's Vdisk, if open.
func (r *Registry) Close(path string) error {
	r.mu.Lock()
	v, ok := r.open[path]
	if ok {
		delete(r.open, path)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return v.Close()
}

// CloseAll closes and unregisters every open Vdisk, returning the
// first error encountered (if any) after attempting all of them.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	paths := make([]string, 0, len(r.open))
	for p := range r.open {
		paths = append(paths, p)
	}
	r.mu.Unlock()

	var first error
	for _, p := range paths {
		if err := r.Close(p); err != nil && first == nil {
			first = err
		}
	}
	return first
}
