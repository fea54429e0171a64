// Package save serializes authoritative state to a self-describing record
// and restores it. A record carries the run's identity (lineage, seed), its
// position (tick, RNG cursor, domain sequences), the component schemas it
// was written with, and the full entity content. A record can also be
// expressed as a delta against an earlier record, carrying only what moved
// since. Loading fails closed: a corrupted, truncated, or
// schema-incompatible payload restores nothing.
package save

import (
	"context"
	"sort"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/codec"
	"pkg.voidrun.dev/voidrun/simcore/gamestate"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// FormatVersion is bumped whenever the record layout changes incompatibly.
const FormatVersion = 1

// ErrDecode is the typed failure for any unloadable save payload: malformed
// bytes, an unknown format version, or component schemas that no longer
// match the registered types.
var ErrDecode = eris.New("save payload could not be decoded")

// Record is the persisted form of a world at a tick boundary.
type Record struct {
	Version         int                        `json:"version"`
	Lineage         string                     `json:"lineage"`
	Seed            uint64                     `json:"seed"`
	RNGCursor       uint64                     `json:"rng_cursor"`
	Tick            types.Tick                 `json:"tick"`
	DomainSequences map[string]uint64          `json:"domain_sequences"`
	Schemas         map[string]json.RawMessage `json:"schemas"`
	Entities        []gamestate.EntitySnapshot `json:"entities"`
}

// Encode captures the committed state at the current tick boundary into
// record bytes. Must be called between ticks, never during one: only
// committed state is saved.
func Encode(ctx context.Context, state *gamestate.State) ([]byte, error) {
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

	schemas := map[string]json.RawMessage{}
	for _, info := range state.RegisteredComponents() {
		comp, err := state.ComponentByName(info.Name)
		if err != nil {
			return nil, err
		}
		schemas[info.Name] = comp.GetSchema()
	}

	rec := Record{
		Version:         FormatVersion,
		Lineage:         state.Lineage().String(),
		Seed:            state.Seed(),
		RNGCursor:       cursor,
		Tick:            tick,
		DomainSequences: state.ECB().DomainSequences(),
		Schemas:         schemas,
		Entities:        entities,
	}
	return codec.Encode(rec)
}

// Decode parses record bytes without touching any state. Every failure is
// ErrDecode; partial records never escape.
func Decode(data []byte) (*Record, error) {
	rec, err := codec.Decode[Record](data)
	if err != nil {
		return nil, eris.Wrap(ErrDecode, eris.Cause(err).Error())
	}
	if rec.Version != FormatVersion {
		return nil, eris.Wrapf(ErrDecode, "unsupported save version %d (want %d)", rec.Version, FormatVersion)
	}
	if rec.Lineage == "" {
		return nil, eris.Wrap(ErrDecode, "record has no lineage")
	}
	if _, err := uuid.Parse(rec.Lineage); err != nil {
		return nil, eris.Wrapf(ErrDecode, "record lineage is not a valid uuid: %v", err)
	}
	return &rec, nil
}

// Load decodes record bytes and restores them into a registered,
// uninitialized state. The record's stored schemas must match the registered
// component types exactly; a drifted schema fails the whole load, because
// silently decoding old payloads into changed structs would corrupt state.
func Load(ctx context.Context, state *gamestate.State, data []byte) error {
	rec, err := Decode(data)
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
	restore := gamestate.RestoreRecord{
		Lineage:         lineage,
		Seed:            rec.Seed,
		Tick:            rec.Tick,
		RNGCursor:       rec.RNGCursor,
		DomainSequences: rec.DomainSequences,
		Entities:        rec.Entities,
	}
	return state.Restore(ctx, restore)
}

// validateSchemas checks every schema stored in the record against the
// currently registered component of the same name, in name order so failures
// are reported deterministically.
func validateSchemas(state *gamestate.State, rec *Record) error {
	names := make([]string, 0, len(rec.Schemas))
	for name := range rec.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		comp, err := state.ComponentByName(name)
		if err != nil {
			return eris.Wrapf(ErrDecode, "save contains unregistered component %q", name)
		}
		if err := comp.ValidateAgainstSchema(rec.Schemas[name]); err != nil {
			return eris.Wrapf(ErrDecode, "component %q schema does not match the save: %v", name, eris.Cause(err))
		}
	}
	return nil
}
