package save

import (
	"bytes"
	"context"
	"sort"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/codec"
	"pkg.voidrun.dev/voidrun/simcore/gamestate"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// DeltaRecord is a save expressed against a baseline Record, carrying only
// what changed since the baseline's tick. Deltas stay small when most
// entities are untouched between saves, which is the common case; the
// baseline carries the schemas and everything else regenerable. A delta is
// only meaningful paired with the exact baseline it was encoded against,
// identified by lineage and baseline tick.
type DeltaRecord struct {
	Version         int               `json:"version"`
	Lineage         string            `json:"lineage"`
	BaselineTick    types.Tick        `json:"baseline_tick"`
	Tick            types.Tick        `json:"tick"`
	RNGCursor       uint64            `json:"rng_cursor"`
	DomainSequences map[string]uint64 `json:"domain_sequences"`

	// Updated holds the component payloads that differ from the baseline,
	// including whole entities spawned since it.
	Updated map[types.EntityID]map[string]json.RawMessage `json:"updated,omitempty"`
	// Removed names components detached since the baseline.
	Removed map[types.EntityID][]string `json:"removed,omitempty"`
	// Despawned lists entities present in the baseline and gone now.
	Despawned []types.EntityID `json:"despawned,omitempty"`
}

// EncodeDelta captures the committed state as a delta against the given
// baseline record. Like Encode it must be called between ticks. The baseline
// must come from the same run; encoding against another lineage fails.
func EncodeDelta(ctx context.Context, state *gamestate.State, baseline *Record) ([]byte, error) {
	if baseline.Lineage != state.Lineage().String() {
		return nil, eris.Errorf("baseline lineage %s does not match world lineage %s",
			baseline.Lineage, state.Lineage())
	}
	tick, err := state.ECB().GetTickNumber(ctx)
	if err != nil {
		return nil, err
	}
	cursor, err := state.RNGCursor(ctx)
	if err != nil {
		return nil, err
	}
	entities, err := state.Committed().Snapshot()
	if err != nil {
		return nil, err
	}

	base := make(map[types.EntityID]map[string]json.RawMessage, len(baseline.Entities))
	for _, snap := range baseline.Entities {
		base[snap.ID] = snap.Components
	}

	delta := DeltaRecord{
		Version:         FormatVersion,
		Lineage:         baseline.Lineage,
		BaselineTick:    baseline.Tick,
		Tick:            tick,
		RNGCursor:       cursor,
		DomainSequences: state.ECB().DomainSequences(),
		Updated:         map[types.EntityID]map[string]json.RawMessage{},
		Removed:         map[types.EntityID][]string{},
	}

	current := make(map[types.EntityID]struct{}, len(entities))
	for _, snap := range entities {
		current[snap.ID] = struct{}{}
		before := base[snap.ID]
		for name, payload := range snap.Components {
			if bytes.Equal(before[name], payload) {
				continue
			}
			if delta.Updated[snap.ID] == nil {
				delta.Updated[snap.ID] = map[string]json.RawMessage{}
			}
			delta.Updated[snap.ID][name] = payload
		}
		for name := range before {
			if _, still := snap.Components[name]; !still {
				delta.Removed[snap.ID] = append(delta.Removed[snap.ID], name)
			}
		}
		sort.Strings(delta.Removed[snap.ID])
	}
	for id := range base {
		if _, still := current[id]; !still {
			delta.Despawned = append(delta.Despawned, id)
		}
	}
	sort.Slice(delta.Despawned, func(i, j int) bool { return delta.Despawned[i] < delta.Despawned[j] })

	if len(delta.Updated) == 0 {
		delta.Updated = nil
	}
	if len(delta.Removed) == 0 {
		delta.Removed = nil
	}
	return codec.Encode(delta)
}

// DecodeDelta parses delta bytes without touching any state. Every failure
// is ErrDecode, same as Decode.
func DecodeDelta(data []byte) (*DeltaRecord, error) {
	delta, err := codec.Decode[DeltaRecord](data)
	if err != nil {
		return nil, eris.Wrap(ErrDecode, eris.Cause(err).Error())
	}
	if delta.Version != FormatVersion {
		return nil, eris.Wrapf(ErrDecode, "unsupported save version %d (want %d)", delta.Version, FormatVersion)
	}
	if delta.Lineage == "" {
		return nil, eris.Wrap(ErrDecode, "delta has no lineage")
	}
	return &delta, nil
}

// ApplyDelta merges a delta onto the baseline it was encoded against and
// returns the reconstructed full record. The pairing is checked: a delta
// from another lineage or another baseline tick is refused.
func ApplyDelta(baseline *Record, delta *DeltaRecord) (*Record, error) {
	if delta.Lineage != baseline.Lineage {
		return nil, eris.Wrapf(ErrDecode, "delta lineage %s does not match baseline lineage %s",
			delta.Lineage, baseline.Lineage)
	}
	if delta.BaselineTick != baseline.Tick {
		return nil, eris.Wrapf(ErrDecode, "delta was encoded against tick %d, baseline is at tick %d",
			delta.BaselineTick, baseline.Tick)
	}

	merged := make(map[types.EntityID]map[string]json.RawMessage, len(baseline.Entities))
	for _, snap := range baseline.Entities {
		comps := make(map[string]json.RawMessage, len(snap.Components))
		for name, payload := range snap.Components {
			comps[name] = payload
		}
		merged[snap.ID] = comps
	}
	for _, id := range delta.Despawned {
		if _, ok := merged[id]; !ok {
			return nil, eris.Wrapf(ErrDecode, "delta despawns entity %s missing from the baseline", id)
		}
		delete(merged, id)
	}
	for id, names := range delta.Removed {
		comps, ok := merged[id]
		if !ok {
			return nil, eris.Wrapf(ErrDecode, "delta edits entity %s missing from the baseline", id)
		}
		for _, name := range names {
			if _, ok := comps[name]; !ok {
				return nil, eris.Wrapf(ErrDecode, "delta removes component %q not on entity %s", name, id)
			}
			delete(comps, name)
		}
	}
	for id, comps := range delta.Updated {
		if merged[id] == nil {
			merged[id] = map[string]json.RawMessage{}
		}
		for name, payload := range comps {
			merged[id][name] = payload
		}
	}

	ids := make([]types.EntityID, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	entities := make([]gamestate.EntitySnapshot, 0, len(ids))
	for _, id := range ids {
		entities = append(entities, gamestate.EntitySnapshot{ID: id, Components: merged[id]})
	}

	return &Record{
		Version:         FormatVersion,
		Lineage:         baseline.Lineage,
		Seed:            baseline.Seed,
		RNGCursor:       delta.RNGCursor,
		Tick:            delta.Tick,
		DomainSequences: delta.DomainSequences,
		Schemas:         baseline.Schemas,
		Entities:        entities,
	}, nil
}

// LoadDelta restores a baseline-plus-delta pair into a registered,
// uninitialized state, with the same fail-closed schema checks as Load.
func LoadDelta(ctx context.Context, state *gamestate.State, baselineData, deltaData []byte) error {
	baseline, err := Decode(baselineData)
	if err != nil {
		return err
	}
	delta, err := DecodeDelta(deltaData)
	if err != nil {
		return err
	}
	rec, err := ApplyDelta(baseline, delta)
	if err != nil {
		return err
	}
	if err := validateSchemas(state, rec); err != nil {
		return err
	}

	lineage, err := uuid.Parse(rec.Lineage)
	if err != nil {
		return eris.Wrapf(ErrDecode, "record lineage is not a valid uuid: %v", err)
	}
	return state.Restore(ctx, gamestate.RestoreRecord{
		Lineage:         lineage,
		Seed:            rec.Seed,
		Tick:            rec.Tick,
		RNGCursor:       rec.RNGCursor,
		DomainSequences: rec.DomainSequences,
		Entities:        rec.Entities,
	})
}
