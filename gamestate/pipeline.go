package gamestate

import (
	"context"

	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/codec"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// makeCommitTransaction returns a staged storage transaction holding every
// pending state change. If an error is returned, no storage changes will have
// been made.
func (m *EntityCommandBuffer) makeCommitTransaction(ctx context.Context) (PrimitiveStorage[string], error) {
	pipe, err := m.dbStorage.StartTransaction(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.addComponentChangesToPipe(ctx, pipe); err != nil {
		return nil, eris.Wrap(err, "failed to add component changes to pipe")
	}
	if err := m.addDomainSequencesToPipe(ctx, pipe); err != nil {
		return nil, eris.Wrap(err, "failed to add domain sequences to pipe")
	}
	if err := m.addPendingArchIDsToPipe(ctx, pipe); err != nil {
		return nil, eris.Wrap(err, "failed to add archetype component types to pipe")
	}
	if err := m.addEntityIDToArchIDToPipe(ctx, pipe); err != nil {
		return nil, eris.Wrap(err, "failed to add entity to archetype mapping to pipe")
	}
	if err := m.addActiveEntityIDsToPipe(ctx, pipe); err != nil {
		return nil, eris.Wrap(err, "failed to add active entity ids to pipe")
	}

	return pipe, nil
}

// addComponentChangesToPipe adds deleted and updated component values to the
// transaction.
func (m *EntityCommandBuffer) addComponentChangesToPipe(ctx context.Context, pipe PrimitiveStorage[string]) error {
	deleteKeys, err := m.compValuesToDelete.Keys()
	if err != nil {
		return err
	}
	for _, key := range deleteKeys {
		if err := pipe.Delete(ctx, storageComponentKey(key.typeID, key.entityID)); err != nil {
			return err
		}
	}

	valueKeys, err := m.compValues.Keys()
	if err != nil {
		return err
	}
	for _, key := range valueKeys {
		value, err := m.compValues.Get(key)
		if err != nil {
			return err
		}
		cType, ok := m.typeToComponent[key.typeID]
		if !ok {
			return eris.Wrap(ErrComponentNotRegistered, "")
		}
		bz, err := cType.Encode(value)
		if err != nil {
			return err
		}
		if err := pipe.Set(ctx, storageComponentKey(key.typeID, key.entityID), bz); err != nil {
			return err
		}
	}
	return nil
}

// addDomainSequencesToPipe persists any advanced per-domain entity sequences.
func (m *EntityCommandBuffer) addDomainSequencesToPipe(ctx context.Context, pipe PrimitiveStorage[string]) error {
	for domain, alloc := range m.allocators {
		if alloc.next == m.allocatorsSaved[domain] {
			continue
		}
		if err := pipe.Set(ctx, storageDomainSequenceKey(domain), alloc.next); err != nil {
			return err
		}
	}
	return nil
}

// addEntityIDToArchIDToPipe adds entity-to-archetype mapping changes.
func (m *EntityCommandBuffer) addEntityIDToArchIDToPipe(ctx context.Context, pipe PrimitiveStorage[string]) error {
	ids, err := m.entityIDToOriginArchID.Keys()
	if err != nil {
		return err
	}
	for _, id := range ids {
		key := storageArchetypeIDForEntityID(id)
		archID, err := m.entityIDToArchID.Get(id)
		if err != nil {
			// This entity has been removed.
			if err := pipe.Delete(ctx, key); err != nil {
				return err
			}
			continue
		}
		originArchID, err := m.entityIDToOriginArchID.Get(id)
		if err != nil {
			return err
		}
		// The entity ended up back at its original archetype; nothing to do.
		if archID == originArchID {
			continue
		}
		if err := pipe.Set(ctx, key, int(archID)); err != nil {
			return err
		}
	}
	return nil
}

// addPendingArchIDsToPipe adds any newly created archetype IDs (and their
// component sets) to the transaction.
func (m *EntityCommandBuffer) addPendingArchIDsToPipe(ctx context.Context, pipe PrimitiveStorage[string]) error {
	if len(m.pendingArchIDs) == 0 {
		return nil
	}
	bz, err := m.encodeArchIDToCompTypes()
	if err != nil {
		return err
	}
	return pipe.Set(ctx, storageArchIDsToCompTypesKey(), bz)
}

// addActiveEntityIDsToPipe adds modified archetype entity lists to the
// transaction.
func (m *EntityCommandBuffer) addActiveEntityIDsToPipe(ctx context.Context, pipe PrimitiveStorage[string]) error {
	archIDs, err := m.activeEntities.Keys()
	if err != nil {
		return err
	}
	for _, archID := range archIDs {
		active, err := m.activeEntities.Get(archID)
		if err != nil {
			return err
		}
		if !active.modified {
			continue
		}
		bz, err := codec.Encode(active.ids)
		if err != nil {
			return err
		}
		if err := pipe.Set(ctx, storageActiveEntityIDKey(archID), bz); err != nil {
			return err
		}
	}
	return nil
}

func (m *EntityCommandBuffer) encodeArchIDToCompTypes() ([]byte, error) {
	forStorage := map[types.ArchetypeID][]types.ComponentID{}
	archIDs, err := m.archIDToComps.Keys()
	if err != nil {
		return nil, err
	}
	for _, archID := range archIDs {
		comps, err := m.archIDToComps.Get(archID)
		if err != nil {
			return nil, err
		}
		typeIDs := []types.ComponentID{}
		for _, comp := range comps {
			typeIDs = append(typeIDs, comp.ID())
		}
		forStorage[archID] = typeIDs
	}
	return codec.Encode(forStorage)
}

// loadArchIDs loads the archetype-to-component-set mapping from storage.
func (m *EntityCommandBuffer) loadArchIDs(ctx context.Context) error {
	archIDToComps, ok, err := loadArchIDsFromStorage(ctx, m.dbStorage, m.typeToComponent)
	if err != nil {
		return err
	}
	if !ok {
		// Nothing is saved in storage. Leave the in-memory mapping unchanged.
		return nil
	}
	if m.archIDToComps.Len() > 0 {
		return eris.New("assigned archetype IDs are about to be overwritten by something from storage")
	}
	for archID, comps := range archIDToComps {
		if err := m.archIDToComps.Set(archID, comps); err != nil {
			return err
		}
	}
	return nil
}

// loadArchIDsFromStorage decodes the persisted archetype mapping, resolving
// component IDs against the registered component metadata.
func loadArchIDsFromStorage(
	ctx context.Context,
	storage PrimitiveStorage[string],
	typeToComp map[types.ComponentID]types.ComponentMetadata,
) (map[types.ArchetypeID][]types.ComponentMetadata, bool, error) {
	bz, err := storage.GetBytes(ctx, storageArchIDsToCompTypesKey())
	if err != nil {
		if eris.Is(eris.Cause(err), ErrNoValue) {
			return nil, false, nil
		}
		return nil, false, err
	}

	fromStorage, err := codec.Decode[map[types.ArchetypeID][]types.ComponentID](bz)
	if err != nil {
		return nil, false, err
	}

	result := map[types.ArchetypeID][]types.ComponentMetadata{}
	for archID, compTypeIDs := range fromStorage {
		currComps := make([]types.ComponentMetadata, 0, len(compTypeIDs))
		for _, compTypeID := range compTypeIDs {
			currComp, found := typeToComp[compTypeID]
			if !found {
				return nil, false, eris.Wrap(ErrComponentNotRegistered,
					"stored state refers to a component that is no longer registered")
			}
			currComps = append(currComps, currComp)
		}
		result[archID] = currComps
	}
	return result, true, nil
}

// loadActiveEntities reads an archetype's committed entity list from storage.
func loadActiveEntities(
	ctx context.Context, storage PrimitiveStorage[string], archID types.ArchetypeID,
) ([]types.EntityID, error) {
	bz, err := storage.GetBytes(ctx, storageActiveEntityIDKey(archID))
	if err != nil {
		if eris.Is(eris.Cause(err), ErrNoValue) {
			return nil, nil
		}
		return nil, err
	}
	return codec.Decode[[]types.EntityID](bz)
}
