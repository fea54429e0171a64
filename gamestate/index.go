package gamestate

import (
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// compKey identifies the value of one component type on one entity.
type compKey struct {
	typeID   types.ComponentID
	entityID types.EntityID
}
