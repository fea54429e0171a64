// Package lagcomp makes hit resolution fair under asymmetric latency: it
// keeps a bounded ring of past authoritative combat state and resolves hit
// queries against the tick a client actually perceived.
package lagcomp

import (
	"github.com/rotisserie/eris"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// ErrInvalidCapacity is returned when constructing a history with no room
// for even one tick.
var ErrInvalidCapacity = eris.New("history capacity must be positive")

type frame[T any] struct {
	tick   types.Tick
	valid  bool
	states map[types.EntityID]T
}

// History is a fixed-capacity ring of per-tick entity state, indexed by tick
// modulo capacity. Capacity bounds the maximum compensatable latency; a
// lookup past it fails closed rather than returning a stale frame. Writes
// happen strictly after each apply point, so every frame is committed state,
// never speculative.
type History[T any] struct {
	capacity uint64
	frames   []frame[T]
	latest   types.Tick
	nonEmpty bool
}

func NewHistory[T any](capacity uint64) (*History[T], error) {
	if capacity == 0 {
		return nil, eris.Wrap(ErrInvalidCapacity, "")
	}
	return &History[T]{
		capacity: capacity,
		frames:   make([]frame[T], capacity),
	}, nil
}

func (h *History[T]) Capacity() uint64 { return h.capacity }

// Latest returns the most recently recorded tick. The second return is false
// until the first Record.
func (h *History[T]) Latest() (types.Tick, bool) {
	return h.latest, h.nonEmpty
}

// Record stores an entity's state for the tick, evicting whatever older tick
// occupied the same slot. Eviction is owned entirely by the ring; consumers
// only read.
func (h *History[T]) Record(tick types.Tick, entity types.EntityID, state T) {
	f := &h.frames[uint64(tick)%h.capacity]
	if !f.valid || f.tick != tick {
		f.tick = tick
		f.valid = true
		f.states = map[types.EntityID]T{}
	}
	f.states[entity] = state
	if !h.nonEmpty || tick > h.latest {
		h.latest = tick
		h.nonEmpty = true
	}
}

// Frame returns the recorded states for the tick, or false if the tick was
// never recorded or has been evicted.
func (h *History[T]) Frame(tick types.Tick) (map[types.EntityID]T, bool) {
	f := h.frames[uint64(tick)%h.capacity]
	if !f.valid || f.tick != tick {
		return nil, false
	}
	return f.states, true
}

// State returns one entity's recorded state at the tick.
func (h *History[T]) State(tick types.Tick, entity types.EntityID) (T, bool) {
	var zero T
	states, ok := h.Frame(tick)
	if !ok {
		return zero, false
	}
	state, ok := states[entity]
	if !ok {
		return zero, false
	}
	return state, true
}
