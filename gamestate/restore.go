package gamestate

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/types"
)

// DomainSequences returns the committed next-sequence value of every
// registered domain allocator.
func (m *EntityCommandBuffer) DomainSequences() map[string]uint64 {
	out := make(map[string]uint64, len(m.allocatorsSaved))
	for domain, seq := range m.allocatorsSaved {
		out[domain] = seq
	}
	return out
}

// RestoreRecord carries everything needed to rebuild authoritative state
// from a decoded save: the identity of the run (lineage, seed), its position
// (tick, RNG cursor, domain sequences), and the full entity content.
type RestoreRecord struct {
	Lineage         uuid.UUID
	Seed            uint64
	Tick            types.Tick
	RNGCursor       uint64
	DomainSequences map[string]uint64
	Entities        []EntitySnapshot
}

// Restore rebuilds an empty state from a save record in a single storage
// transaction. It takes the place of Init: call it after component and
// domain registration, against fresh storage. Nothing is written until every
// entity has decoded cleanly, so a bad record never leaves a partial load
// behind.
func (s *State) Restore(ctx context.Context, rec RestoreRecord) error {
	if s.ecb.locked {
		return eris.New("cannot restore into an initialized state")
	}
	if _, err := s.storage.GetBytes(ctx, storageLineageKey()); err == nil {
		return eris.New("cannot restore into non-empty storage")
	} else if !eris.Is(eris.Cause(err), ErrNoValue) {
		return err
	}

	if err := s.ecb.init(ctx); err != nil {
		return err
	}

	for _, snapshot := range rec.Entities {
		comps, values, err := s.decodeSnapshot(snapshot)
		if err != nil {
			return err
		}
		if err := s.ecb.createEntity(snapshot.ID, comps, values); err != nil {
			return err
		}
	}

	for domain, alloc := range s.ecb.allocators {
		seq, ok := rec.DomainSequences[domain]
		if !ok {
			return eris.Wrapf(ErrDomainSequenceMissing, "domain %q", domain)
		}
		alloc.next = seq
	}

	pipe, err := s.ecb.makeCommitTransaction(ctx)
	if err != nil {
		return err
	}
	if err := pipe.Set(ctx, storageLineageKey(), rec.Lineage.String()); err != nil {
		return err
	}
	if err := pipe.Set(ctx, storageSeedKey(), rec.Seed); err != nil {
		return err
	}
	if err := pipe.Set(ctx, storageRNGCursorKey(), rec.RNGCursor); err != nil {
		return err
	}
	if err := pipe.Set(ctx, storageCurrentTickKey(), uint64(rec.Tick)); err != nil {
		return err
	}
	if err := pipe.EndTransaction(ctx); err != nil {
		return err
	}

	s.lineage = rec.Lineage
	s.seed = rec.Seed
	for domain, alloc := range s.ecb.allocators {
		s.ecb.allocatorsSaved[domain] = alloc.next
	}
	s.ecb.pendingArchIDs = nil
	if err := s.ecb.DiscardPending(ctx); err != nil {
		return err
	}
	return s.committed.init()
}

// decodeSnapshot turns one entity snapshot's raw component payloads back
// into typed values, in component-name order for reproducibility.
func (s *State) decodeSnapshot(snapshot EntitySnapshot) ([]types.ComponentMetadata, []any, error) {
	names := make([]string, 0, len(snapshot.Components))
	for name := range snapshot.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	comps := make([]types.ComponentMetadata, 0, len(names))
	values := make([]any, 0, len(names))
	for _, name := range names {
		comp, ok := s.ecb.compNameToComponent[name]
		if !ok {
			return nil, nil, eris.Wrapf(ErrComponentNotRegistered, "component %q on entity %d", name, snapshot.ID)
		}
		value, err := comp.Decode(snapshot.Components[name])
		if err != nil {
			return nil, nil, eris.Wrapf(err, "component %q on entity %d", name, snapshot.ID)
		}
		comps = append(comps, comp)
		values = append(values, value)
	}
	return comps, values, nil
}
