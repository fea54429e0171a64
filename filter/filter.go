// Package filter selects archetypes by the set of component types they carry.
package filter

import (
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// ComponentFilter is a filter that selects entities based on their components.
type ComponentFilter interface {
	// MatchesComponents returns true if the component set matches the filter.
	MatchesComponents(components []types.Component) bool
}

// ComponentWrapper wraps a Component type for filtering purposes.
type ComponentWrapper struct {
	Component types.Component
}

// Component returns a ComponentWrapper for the given component type T.
func Component[T types.Component]() ComponentWrapper {
	var x T
	return ComponentWrapper{
		Component: x,
	}
}
