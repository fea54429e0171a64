package combat

import (
	"sort"

	"pkg.voidrun.dev/voidrun/simcore/types"
)

// Combatant is the per-entity view the resolver works on, assembled by the
// combat domain pass from committed component state.
type Combatant struct {
	ID       types.EntityID
	Position Vec3
	Facing   Vec3 // unit
	Stance   Stance
	Weapon   Weapon
	Hitboxes HitboxSet
}

// Projectile is a point mass swept from its previous-tick position to its
// current one.
type Projectile struct {
	ID      types.EntityID
	Owner   types.EntityID
	PrevPos Vec3
	Pos     Vec3
	Damage  float64
}

// RangedHit is one projectile impact resolved this tick.
type RangedHit struct {
	Projectile types.EntityID
	Target     types.EntityID
	Part       string
	TOI        float64
	Damage     float64
}

// MeleeOutcomeKind distinguishes a landed swing from a successful parry.
type MeleeOutcomeKind int

const (
	MeleeHit MeleeOutcomeKind = iota
	MeleeParried
)

// MeleeOutcome is one resolved attacker/defender interaction. On MeleeHit,
// Damage applies to the defender. On MeleeParried, the attacker is stunned
// until StunUntil and no damage applies.
type MeleeOutcome struct {
	Kind      MeleeOutcomeKind
	Attacker  types.EntityID
	Defender  types.EntityID
	Part      string
	Damage    float64
	StunUntil types.Tick
}

// ResolveRanged sweeps every projectile against every target's hitbox set
// and reports the earliest impact per projectile. Ties on TOI are broken by
// smaller part priority, then by smaller target ID, which makes the outcome
// a total order independent of input slice ordering.
func ResolveRanged(projectiles []Projectile, targets []Combatant) []RangedHit {
	sorted := make([]Projectile, len(projectiles))
	copy(sorted, projectiles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var hits []RangedHit
	for _, p := range sorted {
		var best rangedCandidate
		found := false
		for _, target := range targets {
			if target.ID == p.Owner {
				continue
			}
			for _, part := range target.Hitboxes.Parts {
				toi, ok := SweepShape(p.PrevPos, p.Pos, part.Shape, target.Position)
				if !ok {
					continue
				}
				candidate := rangedCandidate{
					hit: RangedHit{
						Projectile: p.ID,
						Target:     target.ID,
						Part:       part.Part,
						TOI:        toi,
						Damage:     part.EffectiveDamage(p.Damage),
					},
					priority: part.Priority,
				}
				if !found || candidate.less(best) {
					best, found = candidate, true
				}
			}
		}
		if found {
			hits = append(hits, best.hit)
		}
	}
	return hits
}

type rangedCandidate struct {
	hit      RangedHit
	priority int
}

// less orders candidate impacts: earliest TOI first, then the part with the
// smallest priority value, then the smallest target ID.
func (a rangedCandidate) less(b rangedCandidate) bool {
	if a.hit.TOI != b.hit.TOI {
		return a.hit.TOI < b.hit.TOI
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.hit.Target < b.hit.Target
}

// ResolveMelee resolves every live swing on the current tick. Attackers are
// processed in ascending entity ID so that multiple attackers against one
// defender resolve identically on every run. A defender who is parrying,
// inside its parry window, and facing the attacker within the weapon's
// angular tolerance converts the swing into a parry: the attacker is stunned
// and no damage applies.
func ResolveMelee(tick types.Tick, combatants []Combatant) []MeleeOutcome {
	sorted := make([]Combatant, len(combatants))
	copy(sorted, combatants)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var outcomes []MeleeOutcome
	for _, attacker := range sorted {
		if attacker.Stance.Kind != StanceSwinging {
			continue
		}
		if !attacker.Weapon.InDamageWindow(tick, attacker.Stance.StartTick) {
			continue
		}
		for _, defender := range sorted {
			if defender.ID == attacker.ID {
				continue
			}
			if !inMeleeCone(attacker, defender) {
				continue
			}
			if parries(tick, attacker, defender) {
				outcomes = append(outcomes, MeleeOutcome{
					Kind:      MeleeParried,
					Attacker:  attacker.ID,
					Defender:  defender.ID,
					StunUntil: tick + types.Tick(defender.Weapon.StunTicks),
				})
				continue
			}
			part, damage := meleeDamage(attacker, defender)
			outcomes = append(outcomes, MeleeOutcome{
				Kind:     MeleeHit,
				Attacker: attacker.ID,
				Defender: defender.ID,
				Part:     part,
				Damage:   damage,
			})
		}
	}
	return outcomes
}

// inMeleeCone reports whether the defender stands inside the attacker's
// reach-and-angle swing cone.
func inMeleeCone(attacker, defender Combatant) bool {
	to := defender.Position.Sub(attacker.Position)
	dist := to.Length()
	if dist > attacker.Weapon.Reach {
		return false
	}
	if dist == 0 {
		return true
	}
	return to.Scale(1/dist).Dot(attacker.Facing) >= attacker.Weapon.ConeCos
}

// parries reports whether the defender successfully parries the attacker on
// this tick.
func parries(tick types.Tick, attacker, defender Combatant) bool {
	if defender.Stance.Kind != StanceParrying {
		return false
	}
	if !defender.Weapon.InParryWindow(tick, defender.Stance.StartTick) {
		return false
	}
	toAttacker := attacker.Position.Sub(defender.Position).Normalized()
	return toAttacker.Dot(defender.Facing) >= defender.Weapon.FacingCos
}

// meleeDamage applies the swing to the defender's smallest-priority part.
// Melee is a cone test, not a sweep, so the priority order stands in for the
// impact point.
func meleeDamage(attacker, defender Combatant) (string, float64) {
	if len(defender.Hitboxes.Parts) == 0 {
		return "", 0
	}
	best := defender.Hitboxes.Parts[0]
	for _, part := range defender.Hitboxes.Parts[1:] {
		if part.Priority < best.Priority {
			best = part
		}
	}
	return best.Part, best.EffectiveDamage(attacker.Weapon.Damage)
}
