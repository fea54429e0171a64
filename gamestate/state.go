package gamestate

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/types"
)

// State owns the two views of authoritative data: the EntityCommandBuffer
// (staged writes, committed at the apply point) and the CommittedState
// (reads, always one apply point behind the buffer). It also owns component
// registration, including the schema persistence that makes incompatible
// saves fail closed.
type State struct {
	storage PrimitiveStorage[string]

	ecb       *EntityCommandBuffer
	committed *CommittedState

	nextComponentID types.ComponentID
	lineage         uuid.UUID
	seed            uint64
}

func New(storage PrimitiveStorage[string]) (*State, error) {
	ecb, err := NewEntityCommandBuffer(storage)
	if err != nil {
		return nil, err
	}
	committed, err := NewCommittedState(storage)
	if err != nil {
		return nil, err
	}
	return &State{
		storage:         storage,
		ecb:             ecb,
		committed:       committed,
		nextComponentID: 1,
	}, nil
}

// RegisterComponent registers a component type with both state views. There
// can only be one component type per name. The component's JSON schema is
// persisted on first registration; on later runs against the same storage,
// a schema mismatch is a fatal configuration error, because silently decoding
// old data into a changed struct would corrupt state.
func (s *State) RegisterComponent(compMetadata types.ComponentMetadata) error {
	if s.ecb.isComponentRegistered(compMetadata.Name()) {
		return eris.Errorf("component %q is already registered", compMetadata.Name())
	}
	if s.committed.isComponentRegistered(compMetadata.Name()) {
		return eris.Errorf("component %q is already registered", compMetadata.Name())
	}

	ctx := context.Background()
	storedSchema, err := s.storage.GetBytes(ctx, storageSchemaKey(compMetadata.Name()))
	if err != nil && !eris.Is(eris.Cause(err), ErrNoValue) {
		return err
	}

	if storedSchema != nil {
		if err := compMetadata.ValidateAgainstSchema(storedSchema); err != nil {
			return eris.Wrap(err, "component does not match the schema stored with this state")
		}
	} else {
		if err := s.storage.Set(ctx, storageSchemaKey(compMetadata.Name()), compMetadata.GetSchema()); err != nil {
			return err
		}
	}

	if err := compMetadata.SetID(s.nextComponentID); err != nil {
		return err
	}
	if err := s.ecb.registerComponent(compMetadata); err != nil {
		return err
	}
	if err := s.committed.registerComponent(compMetadata); err != nil {
		return err
	}
	s.nextComponentID++
	return nil
}

// RegisterDomainSequence creates the entity ID allocator for the named cadence
// domain.
func (s *State) RegisterDomainSequence(domain string, index uint16) (*EntityAllocator, error) {
	return s.ecb.registerDomainSequence(domain, index)
}

// Init loads persisted metadata and locks registration. The given seed is
// persisted on a fresh state; when resuming an existing state, it must match
// the stored seed or determinism guarantees are void and an error is returned.
func (s *State) Init(ctx context.Context, seed uint64) error {
	storedLineage, err := s.storage.GetBytes(ctx, storageLineageKey())
	if err != nil {
		if !eris.Is(eris.Cause(err), ErrNoValue) {
			return err
		}
		// Fresh state: create the save lineage and persist seed.
		s.lineage = uuid.New()
		if err := s.storage.Set(ctx, storageLineageKey(), s.lineage.String()); err != nil {
			return err
		}
		if err := s.storage.Set(ctx, storageSeedKey(), seed); err != nil {
			return err
		}
		s.seed = seed
	} else {
		s.lineage, err = uuid.ParseBytes(storedLineage)
		if err != nil {
			return eris.Wrap(err, "stored lineage is not a valid uuid")
		}
		storedSeed, err := s.storage.GetUInt64(ctx, storageSeedKey())
		if err != nil {
			return err
		}
		if storedSeed != seed {
			return eris.Errorf("configured seed %d does not match stored seed %d", seed, storedSeed)
		}
		s.seed = storedSeed
	}

	if err := s.ecb.init(ctx); err != nil {
		return err
	}
	return s.committed.init()
}

// Lineage returns the save lineage identifier shared by every save descending
// from this world.
func (s *State) Lineage() uuid.UUID {
	return s.lineage
}

// Seed returns the simulation seed.
func (s *State) Seed() uint64 {
	return s.seed
}

// RNGCursor returns the persisted RNG stream position as of the last apply
// point.
func (s *State) RNGCursor(ctx context.Context) (uint64, error) {
	cursor, err := s.storage.GetUInt64(ctx, storageRNGCursorKey())
	if err != nil {
		if eris.Is(eris.Cause(err), ErrNoValue) {
			return 0, nil
		}
		return 0, err
	}
	return cursor, nil
}

// StoreChecksum records the latest committed-state checksum for diagnostics.
func (s *State) StoreChecksum(ctx context.Context, checksum uint64) error {
	return s.storage.Set(ctx, storageChecksumKey(), checksum)
}

// ECB returns the write view of state.
func (s *State) ECB() *EntityCommandBuffer {
	return s.ecb
}

// Committed returns the read view of state.
func (s *State) Committed() *CommittedState {
	return s.committed
}

// RegisteredComponents lists all registered component types.
func (s *State) RegisteredComponents() []types.ComponentInfo {
	comps := make([]types.ComponentInfo, 0, len(s.ecb.compNameToComponent))
	for _, comp := range s.ecb.compNameToComponent {
		comps = append(comps, types.ComponentInfo{ID: comp.ID(), Name: comp.Name()})
	}
	return comps
}

// ComponentByName returns the metadata for a registered component name.
func (s *State) ComponentByName(name types.ComponentName) (types.ComponentMetadata, error) {
	comp, ok := s.ecb.compNameToComponent[name]
	if !ok {
		return nil, eris.Wrap(ErrComponentNotRegistered, name)
	}
	return comp, nil
}
