// Package receipt keeps a bounded history of per-tick execution records:
// which domains ran and for how long, what the apply point dropped or
// resolved, and the committed-state checksum. Receipts are the simulation's
// answer to "what happened on tick N" for diagnostics and desync
// investigation.
package receipt

import (
	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/gamestate"
	"pkg.voidrun.dev/voidrun/simcore/scheduler"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// ErrOldTick is returned when requesting a receipt that has been evicted.
var ErrOldTick = eris.New("receipt is too old to be available")

// ErrFutureTick is returned when requesting a receipt for a tick that has
// not completed.
var ErrFutureTick = eris.New("receipt for this tick is not yet available")

// Receipt is the execution record of one completed tick.
type Receipt struct {
	Tick      types.Tick                  `json:"tick"`
	Domains   []scheduler.DomainReport    `json:"domains"`
	Dropped   []gamestate.DroppedMutation `json:"dropped,omitempty"`
	Conflicts []gamestate.Conflict        `json:"conflicts,omitempty"`
	Spawned   []types.EntityID            `json:"spawned,omitempty"`
	Despawned []types.EntityID            `json:"despawned,omitempty"`
	Checksum  uint64                      `json:"checksum"`
}

// History is a fixed-capacity ring of the most recent receipts, indexed by
// tick.
type History struct {
	capacity uint64
	frames   []frame
	latest   types.Tick
	nonEmpty bool
}

type frame struct {
	valid   bool
	receipt Receipt
}

func NewHistory(capacity uint64) (*History, error) {
	if capacity == 0 {
		return nil, eris.New("receipt history capacity must be positive")
	}
	return &History{
		capacity: capacity,
		frames:   make([]frame, capacity),
	}, nil
}

// Set records the receipt for its tick, evicting whatever older tick shared
// the slot.
func (h *History) Set(r Receipt) {
	h.frames[uint64(r.Tick)%h.capacity] = frame{valid: true, receipt: r}
	if !h.nonEmpty || r.Tick > h.latest {
		h.latest = r.Tick
		h.nonEmpty = true
	}
}

// Get returns the receipt for the tick. Evicted ticks return ErrOldTick;
// ticks newer than the last recorded one return ErrFutureTick.
func (h *History) Get(tick types.Tick) (Receipt, error) {
	if !h.nonEmpty || tick > h.latest {
		return Receipt{}, eris.Wrapf(ErrFutureTick, "tick %d", tick)
	}
	f := h.frames[uint64(tick)%h.capacity]
	if !f.valid || f.receipt.Tick != tick {
		return Receipt{}, eris.Wrapf(ErrOldTick, "tick %d", tick)
	}
	return f.receipt, nil
}

// Latest returns the most recently recorded receipt.
func (h *History) Latest() (Receipt, bool) {
	if !h.nonEmpty {
		return Receipt{}, false
	}
	r, err := h.Get(h.latest)
	if err != nil {
		return Receipt{}, false
	}
	return r, true
}
