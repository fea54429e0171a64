package gamestate

import (
	"github.com/rotisserie/eris"

	"pkg.voidrun.dev/voidrun/simcore/types"
)

// activeEntities is the set of entities currently assigned to one archetype.
type activeEntities struct {
	ids      []types.EntityID
	modified bool
}

// swapRemove removes the given entity from this list of active entities. Used
// when moving an entity between archetypes and when despawning it.
func (a *activeEntities) swapRemove(idToRemove types.EntityID) error {
	indexOfID := -1
	for i, id := range a.ids {
		if idToRemove == id {
			indexOfID = i
			break
		}
	}
	if indexOfID == -1 {
		return eris.Errorf("cannot find entity id %d", idToRemove)
	}
	lastIndex := len(a.ids) - 1
	if indexOfID < lastIndex {
		a.ids[indexOfID] = a.ids[lastIndex]
	}
	a.ids = a.ids[:len(a.ids)-1]
	return nil
}
