package simcore

import "pkg.voidrun.dev/voidrun/simcore/types"

// Topic names owned by the core. Game code registers its own topics alongside
// these.
const (
	TopicEntityDespawned = "voidrun.entity_despawned"
	TopicResyncRequested = "voidrun.resync_requested"
)

// EntityDespawned announces that an entity was removed at the named tick's
// apply point. Domains holding the ID drop their references when they read
// this, on their own cadence.
type EntityDespawned struct {
	Entity types.EntityID `json:"entity"`
	Tick   types.Tick     `json:"tick"`
}

// ResyncRequested asks the presentation layer to discard its predicted state
// and rebuild from an authoritative snapshot. Published when a divergence is
// detected in production; in deterministic test runs divergence is fatal
// instead.
type ResyncRequested struct {
	Tick     types.Tick `json:"tick"`
	Expected uint64     `json:"expected_checksum"`
	Actual   uint64     `json:"actual_checksum"`
}
