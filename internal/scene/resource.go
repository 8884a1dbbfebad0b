// Package scene tracks the lifetime of render-side resources (geometries
// and materials) owned by the engine. The render layer mirrors every live
// handle with a GPU object, so a handle that is never disposed is a leak.
package scene

import (
	"sync"
	"sync/atomic"
)

// Kind labels a resource for accounting.
type Kind string

const (
	KindGeometry Kind = "geometry"
	KindMaterial Kind = "material"
)

// Tracker counts live resources by kind. The zero value is ready to use.
type Tracker struct {
	mu       sync.Mutex
	live     map[Kind]int
	acquired atomic.Int64
	disposed atomic.Int64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Acquire registers a new live resource and returns its handle.
func (t *Tracker) Acquire(kind Kind) *Handle {
	if t != nil {
		t.mu.Lock()
		if t.live == nil {
			t.live = make(map[Kind]int)
		}
		t.live[kind]++
		t.mu.Unlock()
		t.acquired.Add(1)
	}
	return &Handle{kind: kind, tracker: t}
}

// Live returns the number of undisposed resources of the given kind.
func (t *Tracker) Live(kind Kind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live[kind]
}

// LiveTotal returns the number of undisposed resources of every kind.
func (t *Tracker) LiveTotal() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, n := range t.live {
		total += n
	}
	return total
}

// Disposed returns how many handles have been released over the tracker's life.
func (t *Tracker) Disposed() int64 {
	return t.disposed.Load()
}

func (t *Tracker) release(kind Kind) {
	t.mu.Lock()
	t.live[kind]--
	if t.live[kind] == 0 {
		delete(t.live, kind)
	}
	t.mu.Unlock()
	t.disposed.Add(1)
}

// Handle is a single owned resource.
type Handle struct {
	kind     Kind
	tracker  *Tracker
	released atomic.Bool
}

// Kind returns the resource kind.
func (h *Handle) Kind() Kind { return h.kind }

// Released reports whether Dispose has been called.
func (h *Handle) Released() bool { return h.released.Load() }

// Dispose releases the resource. Releasing an already released handle is a
// no-op and returns false.
func (h *Handle) Dispose() bool {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return false
	}
	if h.tracker != nil {
		h.tracker.release(h.kind)
	}
	return true
}

// DisposeAll releases every handle in hs and returns how many were live.
func DisposeAll(hs []*Handle) int {
	n := 0
	for _, h := range hs {
		if h.Dispose() {
			n++
		}
	}
	return n
}
