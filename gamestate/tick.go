package gamestate

import (
	"context"

	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/types"
)

// GetTickNumber returns the last fully committed tick. Because every tick
// commits in a single storage transaction together with its counter
// increment, a partially applied tick can never be observed: a crash
// mid-commit simply leaves the previous tick in place.
func (m *EntityCommandBuffer) GetTickNumber(ctx context.Context) (types.Tick, error) {
	curr, err := m.dbStorage.GetUInt64(ctx, storageCurrentTickKey())
	if err != nil {
		if eris.Is(eris.Cause(err), ErrNoValue) {
			return 0, nil
		}
		return 0, err
	}
	return types.Tick(curr), nil
}

// FinalizeTick combines all pending state changes, the advanced RNG cursor,
// and the tick counter increment into a single storage transaction and
// commits it. This is the apply point: the only moment per tick at which
// authoritative state changes.
func (m *EntityCommandBuffer) FinalizeTick(ctx context.Context, rngCursor uint64) error {
	pipe, err := m.makeCommitTransaction(ctx)
	if err != nil {
		return err
	}
	if err := pipe.Set(ctx, storageRNGCursorKey(), rngCursor); err != nil {
		return err
	}
	if err := pipe.Incr(ctx, storageCurrentTickKey()); err != nil {
		return err
	}
	if err := pipe.EndTransaction(ctx); err != nil {
		return err
	}

	for domain, alloc := range m.allocators {
		m.allocatorsSaved[domain] = alloc.next
	}
	m.pendingArchIDs = nil
	return m.DiscardPending(ctx)
}
