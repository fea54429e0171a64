package filter

import (
	"pkg.voidrun.dev/voidrun/simcore/types"
)

type all struct{}

// All matches every archetype.
func All() ComponentFilter {
	return &all{}
}

func (f *all) MatchesComponents(_ []types.Component) bool {
	return true
}
