package gamestate

import (
	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/types"
)

// EntityAllocator hands out entity IDs for a single cadence domain. Each
// domain owns its own sequence, so ID assignment is deterministic even when
// independent domain passes execute concurrently. Sequences are persisted at
// each apply point and never rewind, which guarantees IDs are never reused
// within a save lineage.
type EntityAllocator struct {
	domain      string
	domainIndex uint16
	next        uint64
}

// Allocate returns the next entity ID for this domain.
func (a *EntityAllocator) Allocate() types.EntityID {
	id := types.NewEntityID(a.domainIndex, a.next)
	a.next++
	return id
}

// Next returns the next unassigned sequence number.
func (a *EntityAllocator) Next() uint64 {
	return a.next
}

type mutationKind int

const (
	mutationSpawn mutationKind = iota
	mutationDespawn
	mutationSet
	mutationAddComponent
	mutationRemoveComponent
)

func (k mutationKind) String() string {
	switch k {
	case mutationSpawn:
		return "spawn"
	case mutationDespawn:
		return "despawn"
	case mutationSet:
		return "set"
	case mutationAddComponent:
		return "add_component"
	case mutationRemoveComponent:
		return "remove_component"
	}
	return "unknown"
}

// mutation is one proposed state change. Mutations are staged during a domain
// pass and only become authoritative at the apply point.
type mutation struct {
	kind   mutationKind
	entity types.EntityID

	// spawn only
	comps  []types.ComponentMetadata
	values []any

	// set / add / remove only
	comp  types.ComponentMetadata
	value any
}

// DiffBuffer accumulates one domain's proposed mutations for the current tick.
// It is owned by exactly one domain pass and is never visible to other
// domains; the apply pipeline drains buffers in domain declaration order.
type DiffBuffer struct {
	domain    string
	allocator *EntityAllocator
	ops       []mutation
}

// NewDiffBuffer creates a staging buffer for the named domain.
func NewDiffBuffer(domain string, allocator *EntityAllocator) *DiffBuffer {
	return &DiffBuffer{
		domain:    domain,
		allocator: allocator,
	}
}

// validateValue runs a staged value's own Validate method when it has one.
// Malformed configuration (a zero-radius hitbox, a weapon with inverted
// windows) is rejected here, at attach time, so the query paths never have to
// defend against it.
func validateValue(cType types.ComponentMetadata, value any) error {
	v, ok := value.(interface{ Validate() error })
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return eris.Wrapf(ErrInvalidComponentValue, "component %q: %v", cType.Name(), eris.Cause(err))
	}
	return nil
}

// Spawn stages the creation of an entity with the given components and initial
// values. The returned ID is final: it is assigned from the domain's own
// sequence and will identify the entity for the lifetime of the save.
func (b *DiffBuffer) Spawn(comps []types.ComponentMetadata, values []any) (types.EntityID, error) {
	if len(comps) == 0 {
		return 0, eris.Wrap(ErrEntityMustHaveAtLeastOneComponent, "")
	}
	if len(comps) != len(values) {
		return 0, eris.Errorf("spawn got %d components but %d values", len(comps), len(values))
	}
	for i, value := range values {
		if err := validateValue(comps[i], value); err != nil {
			return 0, err
		}
	}
	id := b.allocator.Allocate()
	b.ops = append(b.ops, mutation{
		kind:   mutationSpawn,
		entity: id,
		comps:  comps,
		values: values,
	})
	return id, nil
}

// Despawn stages the removal of an entity. The removal is deferred to the
// apply point; the entity remains fully readable for the rest of the tick.
func (b *DiffBuffer) Despawn(id types.EntityID) {
	b.ops = append(b.ops, mutation{kind: mutationDespawn, entity: id})
}

// Set stages a new value for a component already on the entity. A value that
// fails its own validation is rejected immediately, never staged.
func (b *DiffBuffer) Set(cType types.ComponentMetadata, id types.EntityID, value any) error {
	if err := validateValue(cType, value); err != nil {
		return err
	}
	b.ops = append(b.ops, mutation{kind: mutationSet, entity: id, comp: cType, value: value})
	return nil
}

// AddComponent stages attaching a component to an entity. A value that fails
// its own validation is rejected immediately, never staged.
func (b *DiffBuffer) AddComponent(cType types.ComponentMetadata, id types.EntityID, value any) error {
	if err := validateValue(cType, value); err != nil {
		return err
	}
	b.ops = append(b.ops, mutation{kind: mutationAddComponent, entity: id, comp: cType, value: value})
	return nil
}

// RemoveComponent stages detaching a component from an entity.
func (b *DiffBuffer) RemoveComponent(cType types.ComponentMetadata, id types.EntityID) {
	b.ops = append(b.ops, mutation{kind: mutationRemoveComponent, entity: id, comp: cType})
}

// Reset discards all staged mutations, used when the owning domain's pass
// fails and its proposals for the tick must not reach the apply point.
func (b *DiffBuffer) Reset() {
	b.ops = b.ops[:0]
}

// Domain returns the name of the domain that owns this buffer.
func (b *DiffBuffer) Domain() string {
	return b.domain
}

// Len returns the number of staged mutations.
func (b *DiffBuffer) Len() int {
	return len(b.ops)
}
