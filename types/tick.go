package types

// Tick is the monotonically increasing simulation step counter. It is
// incremented exactly once per tick, after all domain passes for that tick
// have completed and the staged mutations have been applied.
type Tick uint64

// ArchetypeID identifies a unique set of component types. Entities that carry
// the same set of components share an archetype.
type ArchetypeID int
