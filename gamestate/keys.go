package gamestate

import (
	"fmt"

	"pkg.voidrun.dev/voidrun/simcore/types"
)

// storageComponentKey maps a (component type, entity) pair to the committed
// value of that component.
func storageComponentKey(typeID types.ComponentID, id types.EntityID) string {
	return fmt.Sprintf("STATE:COMPONENT-VALUE:TYPE-%d:ENTITY-%d", typeID, id)
}

// storageDomainSequenceKey stores the next entity sequence number for the
// named cadence domain. Sequences only ever grow, so freed entity IDs are
// never reassigned within a save lineage.
func storageDomainSequenceKey(domain string) string {
	return fmt.Sprintf("STATE:DOMAIN-SEQUENCE:%s", domain)
}

// storageArchetypeIDForEntityID maps an entity to its archetype.
func storageArchetypeIDForEntityID(id types.EntityID) string {
	return fmt.Sprintf("STATE:ARCHETYPE-ID:ENTITY-%d", id)
}

// storageActiveEntityIDKey maps an archetype to the list of entities that
// currently belong to it. This key and storageArchetypeIDForEntityID carry
// the same information from opposite directions.
func storageActiveEntityIDKey(archID types.ArchetypeID) string {
	return fmt.Sprintf("STATE:ACTIVE-ENTITY-IDS:ARCHETYPE-%d", archID)
}

// storageArchIDsToCompTypesKey stores the mapping of archetype IDs to their
// component type sets (as component IDs).
func storageArchIDsToCompTypesKey() string {
	return "STATE:ARCHETYPE-ID-TO-COMPONENT-TYPES"
}

func storageCurrentTickKey() string {
	return "STATE:CURRENT-TICK"
}

func storageRNGCursorKey() string {
	return "STATE:RNG-CURSOR"
}

func storageSeedKey() string {
	return "STATE:SEED"
}

// storageLineageKey stores the save lineage identifier. All saves descending
// from the same initial world share a lineage.
func storageLineageKey() string {
	return "STATE:LINEAGE"
}

func storageSchemaKey(componentName string) string {
	return fmt.Sprintf("STATE:SCHEMA:%s", componentName)
}

func storageChecksumKey() string {
	return "STATE:LAST-CHECKSUM"
}
