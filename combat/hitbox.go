package combat

import (
	"github.com/rotisserie/eris"
)

// Hitbox is one damageable part of an entity: a shape plus the damage model
// for hits landing on it. Priority is a total order over parts — when a
// sweep hits two parts at the same TOI, the smaller priority value wins
// (head before torso before limbs).
type Hitbox struct {
	Part             string  `json:"part"`
	Shape            Shape   `json:"shape"`
	Priority         int     `json:"priority"`
	Armor            float64 `json:"armor"`
	DamageMultiplier float64 `json:"damage_multiplier"`
}

// HitboxSet is the component holding an entity's damageable parts.
type HitboxSet struct {
	Parts []Hitbox `json:"parts"`
}

func (HitboxSet) Name() string { return "voidrun.hitbox_set" }

// Validate rejects malformed hitbox configuration at attach time: degenerate
// shapes, negative damage parameters, and duplicate priorities (which would
// make the TOI tie-break ambiguous).
func (h HitboxSet) Validate() error {
	if len(h.Parts) == 0 {
		return eris.Wrap(ErrInvalidHitbox, "hitbox set must have at least one part")
	}
	seen := make(map[int]string, len(h.Parts))
	for _, part := range h.Parts {
		if part.Part == "" {
			return eris.Wrap(ErrInvalidHitbox, "hitbox part must be named")
		}
		if err := part.Shape.Validate(); err != nil {
			return eris.Wrapf(err, "part %q", part.Part)
		}
		if part.Armor < 0 {
			return eris.Wrapf(ErrInvalidHitbox, "part %q armor must not be negative", part.Part)
		}
		if part.DamageMultiplier < 0 {
			return eris.Wrapf(ErrInvalidHitbox, "part %q damage multiplier must not be negative", part.Part)
		}
		if other, dup := seen[part.Priority]; dup {
			return eris.Wrapf(ErrInvalidHitbox,
				"parts %q and %q share priority %d", other, part.Part, part.Priority)
		}
		seen[part.Priority] = part.Part
	}
	return nil
}

// EffectiveDamage is the damage a hit deals to this part:
// max(0, damage - armor) * multiplier. Armor at or above the weapon's damage
// zeroes the hit.
func (h Hitbox) EffectiveDamage(weaponDamage float64) float64 {
	raw := weaponDamage - h.Armor
	if raw < 0 {
		raw = 0
	}
	return raw * h.DamageMultiplier
}
