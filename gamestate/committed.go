package gamestate

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/filter"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// Reader is the read-only view of state that domain passes receive.
type Reader interface {
	GetComponentForEntity(comp types.Component, id types.EntityID) (any, error)
	GetComponentForEntityInRawJSON(comp types.Component, id types.EntityID) (json.RawMessage, error)
	GetAllComponentsForEntityInRawJSON(id types.EntityID) (map[string]json.RawMessage, error)
	GetEntitiesForArchID(archID types.ArchetypeID) ([]types.EntityID, error)
	FindArchetypes(f filter.ComponentFilter) ([]types.ArchetypeID, error)
	Query(f filter.ComponentFilter) ([]types.EntityID, error)
	ContainsEntity(id types.EntityID) (bool, error)
	ArchetypeCount() (int, error)
}

var _ Reader = &CommittedState{}

// CommittedState is the view of the world as of the last completed apply
// point. Every read a domain pass performs goes through here, so all passes
// within a tick observe the same snapshot regardless of what any of them is
// staging. The apply pipeline is the only writer of the underlying storage,
// and it never runs concurrently with domain passes, so reads through this
// view are safe from any number of goroutines.
type CommittedState struct {
	locked bool

	storage             PrimitiveStorage[string]
	compNameToComponent map[types.ComponentName]types.ComponentMetadata
	typeToComponent     map[types.ComponentID]types.ComponentMetadata

	// archIDToComps is reloaded lazily after each apply point; new archetypes
	// only ever appear at an apply point.
	archIDToComps map[types.ArchetypeID][]types.ComponentMetadata
	archsLoaded   bool

	// mu guards the lazy caches below. Reads happen from parallel domain
	// passes; cache fills must not race.
	mu sync.Mutex

	// hotValues caches the encoded bytes of hot-class components, saving the
	// storage round trip. Only bytes are cached, never decoded values: each
	// read decodes into a fresh value, so a caller that edits a slice or map
	// field in place before staging can never leak that edit into another
	// reader's view. The cache is dropped at every apply point, so it can
	// never serve a stale value.
	hotValues map[compKey]json.RawMessage
}

func NewCommittedState(storage PrimitiveStorage[string]) (*CommittedState, error) {
	return &CommittedState{
		storage:             storage,
		compNameToComponent: map[types.ComponentName]types.ComponentMetadata{},
		typeToComponent:     map[types.ComponentID]types.ComponentMetadata{},
		archIDToComps:       map[types.ArchetypeID][]types.ComponentMetadata{},
		hotValues:           map[compKey]json.RawMessage{},
	}, nil
}

func (m *CommittedState) isComponentRegistered(name types.ComponentName) bool {
	_, ok := m.compNameToComponent[name]
	return ok
}

func (m *CommittedState) registerComponent(comp types.ComponentMetadata) error {
	if m.locked {
		return eris.New("unable to register components after state is initialized")
	}
	if _, ok := m.compNameToComponent[comp.Name()]; ok {
		return eris.Errorf("component %q is already registered", comp.Name())
	}
	m.compNameToComponent[comp.Name()] = comp
	m.typeToComponent[comp.ID()] = comp
	return nil
}

// init locks registration. Archetypes are loaded lazily on first read.
func (m *CommittedState) init() error {
	if m.locked {
		return eris.New("committed state is already initialized")
	}
	m.locked = true
	return nil
}

// Invalidate drops all caches. Called after every apply point, which never
// overlaps with domain-pass reads.
func (m *CommittedState) Invalidate() {
	m.mu.Lock()
	m.archsLoaded = false
	m.hotValues = map[compKey]json.RawMessage{}
	m.mu.Unlock()
}

func (m *CommittedState) checkInitialized() error {
	if !m.locked {
		return eris.New("committed state has not been initialized")
	}
	return nil
}

// GetComponentForEntity returns the committed value of the component on the
// given entity.
func (m *CommittedState) GetComponentForEntity(comp types.Component, id types.EntityID) (any, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	cType, ok := m.compNameToComponent[comp.Name()]
	if !ok {
		return nil, eris.Wrap(ErrComponentNotRegistered, comp.Name())
	}

	key := compKey{cType.ID(), id}
	if cType.StorageClass() == types.StorageClassHot {
		m.mu.Lock()
		bz, ok := m.hotValues[key]
		m.mu.Unlock()
		if ok {
			return cType.Decode(bz)
		}
	}

	bz, err := m.GetComponentForEntityInRawJSON(comp, id)
	if err != nil {
		return nil, err
	}
	if cType.StorageClass() == types.StorageClassHot {
		m.mu.Lock()
		m.hotValues[key] = bz
		m.mu.Unlock()
	}
	return cType.Decode(bz)
}

// GetComponentForEntityInRawJSON returns the committed component value as
// encoded bytes.
func (m *CommittedState) GetComponentForEntityInRawJSON(comp types.Component, id types.EntityID) (
	json.RawMessage, error,
) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	cType, ok := m.compNameToComponent[comp.Name()]
	if !ok {
		return nil, eris.Wrap(ErrComponentNotRegistered, comp.Name())
	}
	bz, err := m.storage.GetBytes(context.Background(), storageComponentKey(cType.ID(), id))
	if err != nil {
		if eris.Is(eris.Cause(err), ErrNoValue) {
			return nil, eris.Wrap(ErrComponentNotOnEntity, comp.Name())
		}
		return nil, err
	}
	return bz, nil
}

// GetAllComponentsForEntityInRawJSON returns every committed component on the
// entity, keyed by component name.
func (m *CommittedState) GetAllComponentsForEntityInRawJSON(id types.EntityID) (map[string]json.RawMessage, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	archID, err := m.getArchetypeForEntity(id)
	if err != nil {
		return nil, err
	}
	comps, err := m.getComponentsForArchID(archID)
	if err != nil {
		return nil, err
	}
	result := map[string]json.RawMessage{}
	for _, comp := range comps {
		bz, err := m.storage.GetBytes(context.Background(), storageComponentKey(comp.ID(), id))
		if err != nil {
			return nil, err
		}
		result[comp.Name()] = bz
	}
	return result, nil
}

// ContainsEntity reports whether the entity exists in committed state.
func (m *CommittedState) ContainsEntity(id types.EntityID) (bool, error) {
	if err := m.checkInitialized(); err != nil {
		return false, err
	}
	_, err := m.getArchetypeForEntity(id)
	if err != nil {
		if eris.Is(eris.Cause(err), ErrEntityDoesNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetEntitiesForArchID returns all entities committed to the given archetype.
func (m *CommittedState) GetEntitiesForArchID(archID types.ArchetypeID) ([]types.EntityID, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	return loadActiveEntities(context.Background(), m.storage, archID)
}

// FindArchetypes returns the archetypes whose component sets fulfill the
// filter, in ascending archetype ID order.
func (m *CommittedState) FindArchetypes(f filter.ComponentFilter) ([]types.ArchetypeID, error) {
	if err := m.checkInitialized(); err != nil {
		return nil, err
	}
	if err := m.ensureArchsLoaded(); err != nil {
		return nil, err
	}
	matches := make([]types.ArchetypeID, 0)
	for archID, comps := range m.archIDToComps {
		if f.MatchesComponents(types.ConvertComponentMetadatasToComponents(comps)) {
			matches = append(matches, archID)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })
	return matches, nil
}

// Query returns every entity whose component set fulfills the filter, in
// ascending entity ID order. Entity ID order is a total order independent of
// insertion or hashing, so query results are reproducible across runs.
func (m *CommittedState) Query(f filter.ComponentFilter) ([]types.EntityID, error) {
	archIDs, err := m.FindArchetypes(f)
	if err != nil {
		return nil, err
	}
	ids := make([]types.EntityID, 0)
	for _, archID := range archIDs {
		active, err := m.GetEntitiesForArchID(archID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, active...)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ArchetypeCount returns the number of committed archetypes.
func (m *CommittedState) ArchetypeCount() (int, error) {
	if err := m.checkInitialized(); err != nil {
		return 0, err
	}
	if err := m.ensureArchsLoaded(); err != nil {
		return 0, err
	}
	return len(m.archIDToComps), nil
}

// ensureArchsLoaded loads the archetype table on first read after an apply
// point. Once loaded, the table is read-only until the next Invalidate, so
// callers may iterate it without holding the lock.
func (m *CommittedState) ensureArchsLoaded() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.archsLoaded {
		return nil
	}
	archIDToComps, ok, err := loadArchIDsFromStorage(context.Background(), m.storage, m.typeToComponent)
	if err != nil {
		return err
	}
	if ok {
		m.archIDToComps = archIDToComps
	} else {
		m.archIDToComps = map[types.ArchetypeID][]types.ComponentMetadata{}
	}
	m.archsLoaded = true
	return nil
}

func (m *CommittedState) getArchetypeForEntity(id types.EntityID) (types.ArchetypeID, error) {
	num, err := m.storage.GetInt(context.Background(), storageArchetypeIDForEntityID(id))
	if err != nil {
		if eris.Is(eris.Cause(err), ErrNoValue) {
			return 0, eris.Wrap(ErrEntityDoesNotExist, "")
		}
		return 0, err
	}
	return types.ArchetypeID(num), nil
}

func (m *CommittedState) getComponentsForArchID(archID types.ArchetypeID) ([]types.ComponentMetadata, error) {
	if err := m.ensureArchsLoaded(); err != nil {
		return nil, err
	}
	comps, ok := m.archIDToComps[archID]
	if !ok {
		return nil, eris.Wrap(ErrArchetypeNotFound, "")
	}
	return comps, nil
}
