package combat

import (
	"github.com/rotisserie/eris"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// ErrInvalidWeapon is returned when a weapon fails validation at attach
// time.
var ErrInvalidWeapon = eris.New("invalid weapon configuration")

// Weapon defines the timing and damage model of a combatant's armament. All
// timing is in ticks relative to the start of the action; nothing in combat
// ever consults wall-clock time.
type Weapon struct {
	Kind   string  `json:"kind"`
	Damage float64 `json:"damage"`

	// DamageWindowStart and DamageWindowEnd bound the ticks, relative to the
	// swing start, during which the swing can connect. Inclusive.
	DamageWindowStart uint64 `json:"damage_window_start"`
	DamageWindowEnd   uint64 `json:"damage_window_end"`

	// ParryWindowStart and ParryWindowEnd bound the active parry ticks
	// relative to the parry start. Signed: a negative start grants
	// retroactive grace for inputs buffered just before the parry pose
	// lands.
	ParryWindowStart int64 `json:"parry_window_start"`
	ParryWindowEnd   int64 `json:"parry_window_end"`

	// StunTicks is how long an attacker parried by this weapon is stunned.
	StunTicks uint64 `json:"stun_ticks"`

	// Reach and ConeCos define the melee cone: candidates within Reach whose
	// direction dots against facing at least ConeCos are inside the swing.
	Reach   float64 `json:"reach"`
	ConeCos float64 `json:"cone_cos"`

	// FacingCos is the angular tolerance for a parry to count as facing the
	// attacker.
	FacingCos float64 `json:"facing_cos"`
}

func (Weapon) Name() string { return "voidrun.weapon" }

// Validate rejects malformed weapon configuration at attach time.
func (w Weapon) Validate() error {
	if w.Damage < 0 {
		return eris.Wrap(ErrInvalidWeapon, "damage must not be negative")
	}
	if w.DamageWindowEnd < w.DamageWindowStart {
		return eris.Wrap(ErrInvalidWeapon, "damage window end precedes its start")
	}
	if w.ParryWindowEnd < w.ParryWindowStart {
		return eris.Wrap(ErrInvalidWeapon, "parry window end precedes its start")
	}
	if w.Reach < 0 {
		return eris.Wrap(ErrInvalidWeapon, "reach must not be negative")
	}
	return nil
}

func (w Weapon) damageWindowStart(start types.Tick) types.Tick {
	return start + types.Tick(w.DamageWindowStart)
}

func (w Weapon) damageWindowEnd(start types.Tick) types.Tick {
	return start + types.Tick(w.DamageWindowEnd)
}

// InDamageWindow reports whether a swing started at start is live on tick.
func (w Weapon) InDamageWindow(tick, start types.Tick) bool {
	return tick >= w.damageWindowStart(start) && tick <= w.damageWindowEnd(start)
}

func (w Weapon) parryWindowStart(start types.Tick) types.Tick {
	lo := int64(start) + w.ParryWindowStart
	if lo < 0 {
		lo = 0
	}
	return types.Tick(lo)
}

func (w Weapon) parryWindowEnd(start types.Tick) types.Tick {
	hi := int64(start) + w.ParryWindowEnd
	if hi < 0 {
		hi = 0
	}
	return types.Tick(hi)
}

// InParryWindow reports whether a parry started at start is active on tick.
func (w Weapon) InParryWindow(tick, start types.Tick) bool {
	return tick >= w.parryWindowStart(start) && tick <= w.parryWindowEnd(start)
}
