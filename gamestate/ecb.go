package gamestate

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/filter"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

var doesNotExistArchetypeID = types.ArchetypeID(-1)

type compValuePair struct {
	comp  types.ComponentMetadata
	value any
}

// EntityCommandBuffer is the single place where authoritative state is
// mutated. It queues up state changes produced by the apply pipeline and
// atomically commits them to the underlying storage layer at the end of the
// tick. Between the apply point and the commit it is the only writer; domain
// passes never touch it directly.
type EntityCommandBuffer struct {
	dbStorage PrimitiveStorage[string]

	compValues         VolatileStorage[compKey, any]
	compValuesToDelete VolatileStorage[compKey, bool]

	typeToComponent     map[types.ComponentID]types.ComponentMetadata
	compNameToComponent map[types.ComponentName]types.ComponentMetadata
	locked              bool

	activeEntities VolatileStorage[types.ArchetypeID, activeEntities]

	// Entity IDs staged for removal this tick. Tracked so a later mutation in
	// the same tick cannot resurrect the entity from committed storage.
	despawned VolatileStorage[types.EntityID, bool]

	entityIDToArchID       VolatileStorage[types.EntityID, types.ArchetypeID]
	entityIDToOriginArchID VolatileStorage[types.EntityID, types.ArchetypeID]

	archIDToComps  VolatileStorage[types.ArchetypeID, []types.ComponentMetadata]
	pendingArchIDs []types.ArchetypeID

	// Per-domain entity sequences, persisted together with the state they
	// produced.
	allocators      map[string]*EntityAllocator
	allocatorsSaved map[string]uint64
}

// NewEntityCommandBuffer creates a command buffer that queues state changes
// and atomically commits them to the given storage layer.
func NewEntityCommandBuffer(storage PrimitiveStorage[string]) (*EntityCommandBuffer, error) {
	m := &EntityCommandBuffer{
		dbStorage:          storage,
		compValues:         NewMapStorage[compKey, any](),
		compValuesToDelete: NewMapStorage[compKey, bool](),

		typeToComponent:     map[types.ComponentID]types.ComponentMetadata{},
		compNameToComponent: map[types.ComponentName]types.ComponentMetadata{},

		activeEntities: NewMapStorage[types.ArchetypeID, activeEntities](),
		despawned:      NewMapStorage[types.EntityID, bool](),
		archIDToComps:  NewMapStorage[types.ArchetypeID, []types.ComponentMetadata](),

		entityIDToArchID:       NewMapStorage[types.EntityID, types.ArchetypeID](),
		entityIDToOriginArchID: NewMapStorage[types.EntityID, types.ArchetypeID](),

		allocators:      map[string]*EntityAllocator{},
		allocatorsSaved: map[string]uint64{},
	}
	return m, nil
}

func (m *EntityCommandBuffer) isComponentRegistered(name types.ComponentName) bool {
	_, ok := m.compNameToComponent[name]
	return ok
}

func (m *EntityCommandBuffer) registerComponent(comp types.ComponentMetadata) error {
	if m.locked {
		return eris.New("unable to register components after state is initialized")
	}
	if _, ok := m.compNameToComponent[comp.Name()]; ok {
		return eris.Errorf("component %q is already registered", comp.Name())
	}
	m.typeToComponent[comp.ID()] = comp
	m.compNameToComponent[comp.Name()] = comp
	return nil
}

// registerDomainSequence creates (or returns) the entity allocator for the
// named domain. The saved sequence position is loaded during init.
func (m *EntityCommandBuffer) registerDomainSequence(domain string, index uint16) (*EntityAllocator, error) {
	if m.locked {
		return nil, eris.New("unable to register domains after state is initialized")
	}
	if alloc, ok := m.allocators[domain]; ok {
		return alloc, nil
	}
	alloc := &EntityAllocator{domain: domain, domainIndex: index}
	m.allocators[domain] = alloc
	return alloc, nil
}

// init loads persisted archetype and sequence data and locks registration.
func (m *EntityCommandBuffer) init(ctx context.Context) error {
	if m.locked {
		return eris.New("entity command buffer is already initialized")
	}
	if err := m.loadArchIDs(ctx); err != nil {
		return err
	}
	for domain, alloc := range m.allocators {
		saved, err := m.dbStorage.GetUInt64(ctx, storageDomainSequenceKey(domain))
		if err != nil {
			if !eris.Is(eris.Cause(err), ErrNoValue) {
				return err
			}
			saved = 0
		}
		alloc.next = saved
		m.allocatorsSaved[domain] = saved
	}
	m.locked = true
	return nil
}

// DiscardPending discards any pending state changes.
func (m *EntityCommandBuffer) DiscardPending(_ context.Context) error {
	if err := m.compValues.Clear(); err != nil {
		return err
	}
	if err := m.compValuesToDelete.Clear(); err != nil {
		return err
	}
	if err := m.despawned.Clear(); err != nil {
		return err
	}

	// Any entity archetype movements need to be undone.
	if err := m.activeEntities.Clear(); err != nil {
		return err
	}
	ids, err := m.entityIDToOriginArchID.Keys()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := m.entityIDToArchID.Delete(id); err != nil {
			return err
		}
	}
	if err := m.entityIDToOriginArchID.Clear(); err != nil {
		return err
	}

	for domain, alloc := range m.allocators {
		alloc.next = m.allocatorsSaved[domain]
	}

	for _, archID := range m.pendingArchIDs {
		if err := m.archIDToComps.Delete(archID); err != nil {
			return err
		}
	}
	m.pendingArchIDs = m.pendingArchIDs[:0]
	return nil
}

// createEntity records a new entity with the given pre-assigned ID and initial
// component values.
func (m *EntityCommandBuffer) createEntity(
	id types.EntityID, comps []types.ComponentMetadata, values []any,
) error {
	if m.entityExists(id) {
		return eris.Errorf("entity %d already exists", id)
	}
	// Sort components and their initial values together so values stay
	// aligned with their component types.
	pairs := make([]compValuePair, len(comps))
	for i := range comps {
		pairs[i] = compValuePair{comp: comps[i], value: values[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].comp.ID() < pairs[j].comp.ID() })
	comps = make([]types.ComponentMetadata, len(pairs))
	values = make([]any, len(pairs))
	for i, pair := range pairs {
		comps[i] = pair.comp
		values[i] = pair.value
		if i > 0 && comps[i-1].ID() == comps[i].ID() {
			return eris.Wrapf(ErrComponentAlreadyOnEntity, "duplicate component %q in spawn", comps[i].Name())
		}
	}
	archID, err := m.getOrMakeArchIDForComponents(comps)
	if err != nil {
		return err
	}

	active, err := m.getActiveEntities(archID)
	if err != nil {
		return err
	}
	if err := m.entityIDToArchID.Set(id, archID); err != nil {
		return err
	}
	if err := m.entityIDToOriginArchID.Set(id, doesNotExistArchetypeID); err != nil {
		return err
	}
	active.ids = append(active.ids, id)
	if err := m.setActiveEntities(archID, active); err != nil {
		return err
	}
	_ = m.despawned.Delete(id)

	for i, comp := range comps {
		if err := m.compValues.Set(compKey{comp.ID(), id}, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// removeEntity removes the given entity from the data model.
func (m *EntityCommandBuffer) removeEntity(idToRemove types.EntityID) error {
	archID, err := m.getArchetypeForEntity(idToRemove)
	if err != nil {
		return err
	}
	active, err := m.getActiveEntities(archID)
	if err != nil {
		return err
	}
	if err = active.swapRemove(idToRemove); err != nil {
		return err
	}
	if err = m.setActiveEntities(archID, active); err != nil {
		return err
	}
	if _, err := m.entityIDToOriginArchID.Get(idToRemove); err != nil {
		if err := m.entityIDToOriginArchID.Set(idToRemove, archID); err != nil {
			return err
		}
	}
	if err := m.entityIDToArchID.Delete(idToRemove); err != nil {
		return err
	}
	if err := m.despawned.Set(idToRemove, true); err != nil {
		return err
	}

	comps, err := m.GetComponentTypesForArchID(archID)
	if err != nil {
		return err
	}
	for _, comp := range comps {
		key := compKey{comp.ID(), idToRemove}
		if err := m.compValues.Delete(key); err != nil {
			return err
		}
		if err := m.compValuesToDelete.Set(key, true); err != nil {
			return err
		}
	}
	return nil
}

// setComponent records a new value for a component already on the entity.
func (m *EntityCommandBuffer) setComponent(
	cType types.ComponentMetadata, id types.EntityID, value any,
) error {
	comps, err := m.GetComponentTypesForEntity(id)
	if err != nil {
		return err
	}
	if !filter.MatchComponentMetadata(comps, cType) {
		return eris.Wrap(ErrComponentNotOnEntity, cType.Name())
	}
	return m.compValues.Set(compKey{cType.ID(), id}, value)
}

// addComponent attaches the given component to the entity with the given
// initial value. An error is returned if the entity already has the component.
func (m *EntityCommandBuffer) addComponent(
	cType types.ComponentMetadata, id types.EntityID, value any,
) error {
	fromComps, err := m.GetComponentTypesForEntity(id)
	if err != nil {
		return err
	}
	if filter.MatchComponentMetadata(fromComps, cType) {
		return eris.Wrap(ErrComponentAlreadyOnEntity, cType.Name())
	}
	toComps := append([]types.ComponentMetadata{}, fromComps...)
	toComps = append(toComps, cType)
	if err := sortComponentSet(toComps); err != nil {
		return err
	}

	toArchID, err := m.getOrMakeArchIDForComponents(toComps)
	if err != nil {
		return err
	}
	fromArchID, err := m.getOrMakeArchIDForComponents(fromComps)
	if err != nil {
		return err
	}
	if err := m.moveEntityByArchetype(fromArchID, toArchID, id); err != nil {
		return err
	}
	if value == nil {
		bz, err := cType.New()
		if err != nil {
			return err
		}
		value, err = cType.Decode(bz)
		if err != nil {
			return err
		}
	}
	return m.compValues.Set(compKey{cType.ID(), id}, value)
}

// removeComponent detaches the given component from the entity. An error is
// returned if the entity does not have the component.
func (m *EntityCommandBuffer) removeComponent(cType types.ComponentMetadata, id types.EntityID) error {
	comps, err := m.GetComponentTypesForEntity(id)
	if err != nil {
		return err
	}
	newCompSet := make([]types.ComponentMetadata, 0, len(comps)-1)
	found := false
	for _, comp := range comps {
		if comp.ID() == cType.ID() {
			found = true
			continue
		}
		newCompSet = append(newCompSet, comp)
	}
	if !found {
		return eris.Wrap(ErrComponentNotOnEntity, cType.Name())
	}
	if len(newCompSet) == 0 {
		return eris.Wrap(ErrEntityMustHaveAtLeastOneComponent, "")
	}
	key := compKey{cType.ID(), id}
	if err := m.compValues.Delete(key); err != nil {
		return err
	}
	if err := m.compValuesToDelete.Set(key, true); err != nil {
		return err
	}
	fromArchID, err := m.getOrMakeArchIDForComponents(comps)
	if err != nil {
		return err
	}
	toArchID, err := m.getOrMakeArchIDForComponents(newCompSet)
	if err != nil {
		return err
	}
	return m.moveEntityByArchetype(fromArchID, toArchID, id)
}

// GetComponentTypesForEntity returns all the component types that are
// currently on the given entity, including pending archetype moves.
func (m *EntityCommandBuffer) GetComponentTypesForEntity(id types.EntityID) ([]types.ComponentMetadata, error) {
	archID, err := m.getArchetypeForEntity(id)
	if err != nil {
		return nil, err
	}
	return m.GetComponentTypesForArchID(archID)
}

// GetComponentTypesForArchID returns the component set associated with the
// given archetype.
func (m *EntityCommandBuffer) GetComponentTypesForArchID(archID types.ArchetypeID) ([]types.ComponentMetadata, error) {
	return m.archIDToComps.Get(archID)
}

// GetArchIDForComponents returns the archetype assigned to this exact set of
// components, or ErrArchetypeNotFound.
func (m *EntityCommandBuffer) GetArchIDForComponents(components []types.ComponentMetadata) (types.ArchetypeID, error) {
	if len(components) == 0 {
		return 0, eris.Wrap(ErrEntityMustHaveAtLeastOneComponent, "")
	}
	if err := sortComponentSet(components); err != nil {
		return 0, err
	}
	archIDs, err := m.archIDToComps.Keys()
	if err != nil {
		return 0, err
	}
	for _, archID := range archIDs {
		comps, err := m.archIDToComps.Get(archID)
		if err != nil {
			return 0, err
		}
		if isComponentSetMatch(comps, components) {
			return archID, nil
		}
	}
	return 0, eris.Wrap(ErrArchetypeNotFound, "")
}

// ArchetypeCount returns the number of archetypes generated so far.
func (m *EntityCommandBuffer) ArchetypeCount() int {
	return m.archIDToComps.Len()
}

// Close closes the underlying storage.
func (m *EntityCommandBuffer) Close() error {
	return m.dbStorage.Close(context.Background())
}

func (m *EntityCommandBuffer) entityExists(id types.EntityID) bool {
	_, err := m.getArchetypeForEntity(id)
	return err == nil
}

// getArchetypeForEntity returns the archetype for the given entity, checking
// pending despawns and the volatile cache before falling back to storage.
func (m *EntityCommandBuffer) getArchetypeForEntity(id types.EntityID) (types.ArchetypeID, error) {
	if _, err := m.despawned.Get(id); err == nil {
		return 0, eris.Wrap(ErrEntityDoesNotExist, "entity despawned this tick")
	}
	archID, err := m.entityIDToArchID.Get(id)
	if err == nil {
		return archID, nil
	}
	num, err := m.dbStorage.GetInt(context.Background(), storageArchetypeIDForEntityID(id))
	if err != nil {
		if eris.Is(eris.Cause(err), ErrNoValue) {
			return 0, eris.Wrap(ErrEntityDoesNotExist, "")
		}
		return 0, err
	}
	archID = types.ArchetypeID(num)
	if err := m.entityIDToArchID.Set(id, archID); err != nil {
		return 0, err
	}
	return archID, nil
}

// getOrMakeArchIDForComponents converts a component set into an archetype ID,
// generating a pending archetype if the set is new.
func (m *EntityCommandBuffer) getOrMakeArchIDForComponents(
	comps []types.ComponentMetadata,
) (types.ArchetypeID, error) {
	archID, err := m.GetArchIDForComponents(comps)
	if err == nil {
		return archID, nil
	}
	if !eris.Is(eris.Cause(err), ErrArchetypeNotFound) {
		return 0, err
	}
	id := types.ArchetypeID(m.archIDToComps.Len())
	m.pendingArchIDs = append(m.pendingArchIDs, id)
	if err := m.archIDToComps.Set(id, comps); err != nil {
		return 0, err
	}
	return id, nil
}

// getActiveEntities returns the entities currently assigned to the archetype,
// loading from storage on a cache miss.
func (m *EntityCommandBuffer) getActiveEntities(archID types.ArchetypeID) (activeEntities, error) {
	active, err := m.activeEntities.Get(archID)
	if err == nil {
		return active, nil
	}
	ids, err := loadActiveEntities(context.Background(), m.dbStorage, archID)
	if err != nil {
		return activeEntities{}, err
	}
	result := activeEntities{
		ids:      ids,
		modified: false,
	}
	if err := m.activeEntities.Set(archID, result); err != nil {
		return activeEntities{}, err
	}
	return result, nil
}

// setActiveEntities marks the archetype's entity list as modified so it is
// pushed to storage at commit time.
func (m *EntityCommandBuffer) setActiveEntities(archID types.ArchetypeID, active activeEntities) error {
	active.modified = true
	return m.activeEntities.Set(archID, active)
}

// moveEntityByArchetype moves an entity from one archetype to another.
func (m *EntityCommandBuffer) moveEntityByArchetype(fromArchID, toArchID types.ArchetypeID, id types.EntityID) error {
	if _, err := m.entityIDToOriginArchID.Get(id); err != nil {
		if err := m.entityIDToOriginArchID.Set(id, fromArchID); err != nil {
			return err
		}
	}
	if err := m.entityIDToArchID.Set(id, toArchID); err != nil {
		return err
	}

	active, err := m.getActiveEntities(fromArchID)
	if err != nil {
		return err
	}
	if err = active.swapRemove(id); err != nil {
		return err
	}
	if err = m.setActiveEntities(fromArchID, active); err != nil {
		return err
	}

	active, err = m.getActiveEntities(toArchID)
	if err != nil {
		return err
	}
	active.ids = append(active.ids, id)
	return m.setActiveEntities(toArchID, active)
}

// sortComponentSet sorts the components by ID and rejects duplicates. A sorted
// set is what gives archetype identity, so the order must be canonical.
func sortComponentSet(components []types.ComponentMetadata) error {
	sort.Slice(components, func(i, j int) bool {
		return components[i].ID() < components[j].ID()
	})
	for i := 1; i < len(components); i++ {
		if components[i].ID() == components[i-1].ID() {
			return eris.Errorf("duplicate component %q in set", components[i].Name())
		}
	}
	return nil
}

func isComponentSetMatch(a, b []types.ComponentMetadata) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID() != b[i].ID() {
			return false
		}
	}
	return true
}
