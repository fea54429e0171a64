package gamestate

import (
	"context"
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/wI2L/jsondiff"

	"pkg.voidrun.dev/voidrun/simcore/codec"
	"pkg.voidrun.dev/voidrun/simcore/filter"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// EntitySnapshot is one entity's full committed component data.
type EntitySnapshot struct {
	ID         types.EntityID             `json:"id"`
	Components map[string]json.RawMessage `json:"components"`
}

// Checksum computes a deterministic digest of all committed component data.
// Entities are visited in ascending ID order and components in ascending
// component ID order, so two runs that committed identical state always
// produce identical checksums. A checksum mismatch between two notionally
// identical runs is a desync.
func (m *CommittedState) Checksum() (uint64, error) {
	ids, err := m.Query(filter.All())
	if err != nil {
		return 0, err
	}

	digest := xxhash.New()
	var scratch [8]byte
	for _, id := range ids {
		archID, err := m.getArchetypeForEntity(id)
		if err != nil {
			return 0, err
		}
		comps, err := m.getComponentsForArchID(archID)
		if err != nil {
			return 0, err
		}
		sorted := append([]types.ComponentMetadata{}, comps...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })

		binary.BigEndian.PutUint64(scratch[:], uint64(id))
		_, _ = digest.Write(scratch[:])
		for _, comp := range sorted {
			bz, err := m.storage.GetBytes(context.Background(), storageComponentKey(comp.ID(), id))
			if err != nil {
				return 0, err
			}
			binary.BigEndian.PutUint64(scratch[:], uint64(comp.ID()))
			_, _ = digest.Write(scratch[:])
			_, _ = digest.Write(bz)
		}
	}
	return digest.Sum64(), nil
}

// Snapshot serializes every committed entity with its component data, in
// ascending entity ID order. Snapshots are used for desync diagnostics and by
// the save codec.
func (m *CommittedState) Snapshot() ([]EntitySnapshot, error) {
	ids, err := m.Query(filter.All())
	if err != nil {
		return nil, err
	}
	snapshots := make([]EntitySnapshot, 0, len(ids))
	for _, id := range ids {
		comps, err := m.GetAllComponentsForEntityInRawJSON(id)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, EntitySnapshot{ID: id, Components: comps})
	}
	return snapshots, nil
}

// DiffSnapshots returns a human-readable JSON patch describing how snapshot b
// diverges from snapshot a. Used to report what exactly desynced, not just
// that something did.
func DiffSnapshots(a, b []EntitySnapshot) (string, error) {
	aBz, err := codec.Encode(a)
	if err != nil {
		return "", err
	}
	bBz, err := codec.Encode(b)
	if err != nil {
		return "", err
	}
	patch, err := jsondiff.CompareJSON(aBz, bBz)
	if err != nil {
		return "", eris.Wrap(err, "")
	}
	return patch.String(), nil
}
