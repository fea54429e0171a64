package simcore

import (
	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/combat"
	"pkg.voidrun.dev/voidrun/simcore/filter"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// Position is an entity's location in simulation space.
type Position struct {
	Value combat.Vec3 `json:"value"`
}

func (Position) Name() string { return "voidrun.position" }

// Facing is an entity's unit view direction.
type Facing struct {
	Value combat.Vec3 `json:"value"`
}

func (Facing) Name() string { return "voidrun.facing" }

// Health tracks hit points. Current at or below zero means down.
type Health struct {
	Current float64 `json:"current"`
	Max     float64 `json:"max"`
}

func (Health) Name() string { return "voidrun.health" }

// Spawn stages a new entity with the given component values. The returned ID
// is final (IDs are allocated per domain, so parallel passes never contend),
// but the entity does not exist in committed state until the apply point.
func Spawn(wCtx WorldContext, comps ...types.Component) (types.EntityID, error) {
	metadata := make([]types.ComponentMetadata, len(comps))
	values := make([]any, len(comps))
	for i, c := range comps {
		cType, err := wCtx.world.state.ComponentByName(c.Name())
		if err != nil {
			return 0, err
		}
		metadata[i] = cType
		values[i] = c
	}
	return wCtx.buffer.Spawn(metadata, values)
}

// Despawn stages removal of the entity at the apply point. The entity's
// teardown is announced on the despawn topic one tick later; holders of the
// ID react to the message rather than being called back.
func Despawn(wCtx WorldContext, id types.EntityID) {
	wCtx.buffer.Despawn(id)
}

// GetComponent reads the committed value of T on the entity. It reflects the
// last apply point; writes staged this tick are not visible.
func GetComponent[T types.Component](wCtx WorldContext, id types.EntityID) (T, error) {
	var zero T
	value, err := wCtx.Committed().GetComponentForEntity(zero, id)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, eris.Errorf("component %q decoded to unexpected type %T", zero.Name(), value)
	}
	return typed, nil
}

// SetComponent stages a write of T on the entity.
func SetComponent[T types.Component](wCtx WorldContext, id types.EntityID, value T) error {
	cType, err := wCtx.world.state.ComponentByName(value.Name())
	if err != nil {
		return err
	}
	return wCtx.buffer.Set(cType, id, value)
}

// AddComponent stages attaching T to the entity.
func AddComponent[T types.Component](wCtx WorldContext, id types.EntityID, value T) error {
	cType, err := wCtx.world.state.ComponentByName(value.Name())
	if err != nil {
		return err
	}
	return wCtx.buffer.AddComponent(cType, id, value)
}

// RemoveComponent stages detaching T from the entity.
func RemoveComponent[T types.Component](wCtx WorldContext, id types.EntityID) error {
	var zero T
	cType, err := wCtx.world.state.ComponentByName(zero.Name())
	if err != nil {
		return err
	}
	wCtx.buffer.RemoveComponent(cType, id)
	return nil
}

// QueryAll returns the committed entities carrying every listed component,
// in ascending entity ID order.
func QueryAll(wCtx WorldContext, comps ...types.Component) ([]types.EntityID, error) {
	return wCtx.Committed().Query(filter.Contains(comps...))
}
