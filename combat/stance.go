package combat

import (
	"pkg.voidrun.dev/voidrun/simcore/types"
)

// StanceKind is the combat state of a combatant.
type StanceKind int

const (
	StanceIdle StanceKind = iota
	StanceSwinging
	StanceParrying
	StanceStunned
)

func (k StanceKind) String() string {
	switch k {
	case StanceIdle:
		return "idle"
	case StanceSwinging:
		return "swinging"
	case StanceParrying:
		return "parrying"
	case StanceStunned:
		return "stunned"
	}
	return "unknown"
}

// Stance is the explicit multi-tick combat state machine:
// Idle → Swinging(start_tick) → {Idle, Stunned(until_tick)} and
// Idle → Parrying(start_tick) → {Idle, Stunned}. Progress is driven by
// comparing the current tick against weapon timing windows, never by
// wall-clock time or suspended execution.
type Stance struct {
	Kind      StanceKind `json:"kind"`
	StartTick types.Tick `json:"start_tick"`
	UntilTick types.Tick `json:"until_tick,omitempty"`
}

func (Stance) Name() string { return "voidrun.stance" }

// BeginSwing transitions Idle → Swinging. Ignored from any other state;
// inputs arriving mid-action do not cancel the action.
func (s Stance) BeginSwing(tick types.Tick) Stance {
	if s.Kind != StanceIdle {
		return s
	}
	return Stance{Kind: StanceSwinging, StartTick: tick}
}

// BeginParry transitions Idle → Parrying.
func (s Stance) BeginParry(tick types.Tick) Stance {
	if s.Kind != StanceIdle {
		return s
	}
	return Stance{Kind: StanceParrying, StartTick: tick}
}

// Stun forces the combatant into Stunned until the given tick, from any
// state.
func (Stance) Stun(until types.Tick) Stance {
	return Stance{Kind: StanceStunned, UntilTick: until}
}

// Advance expires timed states against the current tick: a swing or parry
// whose weapon window has fully elapsed returns to Idle, as does a stun
// whose until tick has passed.
func (s Stance) Advance(tick types.Tick, w Weapon) Stance {
	switch s.Kind {
	case StanceSwinging:
		if tick > w.damageWindowEnd(s.StartTick) {
			return Stance{Kind: StanceIdle}
		}
	case StanceParrying:
		if tick > w.parryWindowEnd(s.StartTick) {
			return Stance{Kind: StanceIdle}
		}
	case StanceStunned:
		if tick > s.UntilTick {
			return Stance{Kind: StanceIdle}
		}
	}
	return s
}
