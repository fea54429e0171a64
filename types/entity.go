package types

import "fmt"

// EntityID is the stable identifier for an entity. It is the only way entities
// may be referenced across ticks, in saves, and over the network. An EntityID,
// once assigned, never changes meaning for the lifetime of a save lineage;
// IDs freed by a despawn are never handed out again.
//
// The top bits carry the index of the cadence domain that spawned the entity
// and the low bits carry a per-domain sequence number. Because every domain
// draws from its own sequence, ID assignment stays deterministic even when
// independent domain passes run on parallel workers.
type EntityID uint64

const (
	entitySequenceBits = 48
	entitySequenceMask = (uint64(1) << entitySequenceBits) - 1

	// MaxDomainIndex is the largest domain index that can be encoded into an
	// EntityID.
	MaxDomainIndex = uint16(1<<16 - 1)
)

// NewEntityID builds an EntityID from the spawning domain's index and that
// domain's sequence counter.
func NewEntityID(domainIndex uint16, sequence uint64) EntityID {
	return EntityID(uint64(domainIndex)<<entitySequenceBits | (sequence & entitySequenceMask))
}

// DomainIndex returns the index of the cadence domain that spawned this entity.
func (id EntityID) DomainIndex() uint16 {
	return uint16(uint64(id) >> entitySequenceBits)
}

// Sequence returns the per-domain sequence number of this entity.
func (id EntityID) Sequence() uint64 {
	return uint64(id) & entitySequenceMask
}

func (id EntityID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}
