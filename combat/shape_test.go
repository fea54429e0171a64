package combat_test

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"pkg.voidrun.dev/voidrun/simcore/combat"
	"pkg.voidrun.dev/voidrun/simcore/types"
)

func isInvalidHitbox(err error) bool {
	return eris.Is(eris.Cause(err), combat.ErrInvalidHitbox)
}

func TestShapeValidationRejectsDegenerateGeometry(t *testing.T) {
	assert.NoError(t, combat.Sphere(combat.Vec3{}, 1).Validate())
	assert.True(t, isInvalidHitbox(combat.Sphere(combat.Vec3{}, 0).Validate()))
	assert.True(t, isInvalidHitbox(combat.Sphere(combat.Vec3{}, -2).Validate()))

	assert.NoError(t, combat.Capsule(combat.Vec3{}, combat.Vec3{Y: 1}, 2, 1).Validate())
	assert.True(t, isInvalidHitbox(combat.Capsule(combat.Vec3{}, combat.Vec3{Y: 1}, 0, 1).Validate()))
	assert.True(t, isInvalidHitbox(combat.Capsule(combat.Vec3{}, combat.Vec3{Y: 1}, 2, -1).Validate()))
	// Zero axis cannot be normalized into a unit vector.
	assert.True(t, isInvalidHitbox(combat.Capsule(combat.Vec3{}, combat.Vec3{}, 2, 1).Validate()))

	assert.NoError(t, combat.AxisAlignedBox(combat.Vec3{}, combat.Vec3{X: 1, Y: 1, Z: 1}).Validate())
	assert.True(t, isInvalidHitbox(
		combat.AxisAlignedBox(combat.Vec3{}, combat.Vec3{X: 1, Y: 0, Z: 1}).Validate()))
	skewed := combat.OrientedBox(combat.Vec3{}, combat.Vec3{X: 1, Y: 1, Z: 1}, [3]combat.Vec3{
		{X: 1}, {X: 1}, {Z: 1},
	})
	assert.True(t, isInvalidHitbox(skewed.Validate()))
}

func TestHitboxSetValidation(t *testing.T) {
	valid := combat.HitboxSet{Parts: []combat.Hitbox{
		{Part: "head", Shape: combat.Sphere(combat.Vec3{Y: 2}, 0.5), Priority: 1, DamageMultiplier: 2},
		{Part: "torso", Shape: combat.Sphere(combat.Vec3{}, 1), Priority: 10, DamageMultiplier: 1},
	}}
	assert.NoError(t, valid.Validate())

	assert.True(t, isInvalidHitbox(combat.HitboxSet{}.Validate()))

	dupPriority := combat.HitboxSet{Parts: []combat.Hitbox{
		{Part: "a", Shape: combat.Sphere(combat.Vec3{}, 1), Priority: 1, DamageMultiplier: 1},
		{Part: "b", Shape: combat.Sphere(combat.Vec3{}, 1), Priority: 1, DamageMultiplier: 1},
	}}
	assert.True(t, isInvalidHitbox(dupPriority.Validate()))

	negativeArmor := combat.HitboxSet{Parts: []combat.Hitbox{
		{Part: "a", Shape: combat.Sphere(combat.Vec3{}, 1), Priority: 1, Armor: -1, DamageMultiplier: 1},
	}}
	assert.True(t, isInvalidHitbox(negativeArmor.Validate()))
}

func TestWeaponValidation(t *testing.T) {
	assert.NoError(t, dueling.Validate())
	bad := dueling
	bad.DamageWindowEnd = bad.DamageWindowStart - 1
	assert.True(t, eris.Is(eris.Cause(bad.Validate()), combat.ErrInvalidWeapon))
}

func TestStanceTransitions(t *testing.T) {
	idle := combat.Stance{Kind: combat.StanceIdle}

	swinging := idle.BeginSwing(100)
	assert.Equal(t, combat.StanceSwinging, swinging.Kind)
	assert.Equal(t, types.Tick(100), swinging.StartTick)

	// Inputs mid-action never cancel the action.
	assert.Equal(t, swinging, swinging.BeginParry(101))
	assert.Equal(t, swinging, swinging.BeginSwing(101))

	// The swing outlives its damage window, then returns to idle.
	assert.Equal(t, combat.StanceSwinging, swinging.Advance(115, dueling).Kind)
	assert.Equal(t, combat.StanceIdle, swinging.Advance(116, dueling).Kind)

	parrying := idle.BeginParry(105)
	assert.Equal(t, combat.StanceParrying, parrying.Kind)
	assert.Equal(t, combat.StanceParrying, parrying.Advance(112, dueling).Kind)
	assert.Equal(t, combat.StanceIdle, parrying.Advance(113, dueling).Kind)

	stunned := swinging.Stun(141)
	assert.Equal(t, combat.StanceStunned, stunned.Kind)
	assert.Equal(t, combat.StanceStunned, stunned.Advance(141, dueling).Kind)
	assert.Equal(t, combat.StanceIdle, stunned.Advance(142, dueling).Kind)
}
