package state

import (
	"slices"
	"sync"
)

// Dislikes is the set of tracks disliked during this session.
type Dislikes struct {
	mu    sync.RWMutex
	paths map[string]struct{}
}

// NewDislikes creates an empty dislike set.
func NewDislikes() *Dislikes {
	return &Dislikes{paths: make(map[string]struct{})}
}

// Add records a disliked track. It reports false if the track was already disliked.
func (d *Dislikes) Add(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.paths[path]; ok {
		return false
	}
	d.paths[path] = struct{}{}
	return true
}

// IsDisliked reports whether the track was disliked.
func (d *Dislikes) IsDisliked(path string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.paths[path]
	return ok
}

// Paths returns the disliked paths in sorted order.
func (d *Dislikes) Paths() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	paths := make([]string, 0, len(d.paths))
	for p := range d.paths {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}
