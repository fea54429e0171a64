package combat

import (
	"math"

	"github.com/rotisserie/eris"
)

// ErrInvalidHitbox is returned when a hitbox shape fails validation at
// attach time. Shapes are validated once, on configuration, so query
// routines never see a malformed shape.
var ErrInvalidHitbox = eris.New("invalid hitbox shape")

// ShapeKind tags the closed set of hitbox shape variants.
type ShapeKind int

const (
	ShapeSphere ShapeKind = iota
	ShapeCapsule
	ShapeOrientedBox
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeSphere:
		return "sphere"
	case ShapeCapsule:
		return "capsule"
	case ShapeOrientedBox:
		return "oriented_box"
	}
	return "unknown"
}

// Shape is a closed tagged variant of the supported hitbox geometries, all
// expressed in the owning entity's local space. Which fields are meaningful
// depends on Kind; query routines match exhaustively on it.
type Shape struct {
	Kind ShapeKind `json:"kind"`

	// Offset positions the shape relative to the entity origin. For spheres
	// it is the center; for capsules the midpoint of the segment; for boxes
	// the box center.
	Offset Vec3 `json:"offset"`

	// Radius applies to spheres and capsules.
	Radius float64 `json:"radius,omitempty"`

	// Axis and HalfLength define a capsule's core segment: the segment runs
	// from Offset - Axis*HalfLength to Offset + Axis*HalfLength.
	Axis       Vec3    `json:"axis,omitempty"`
	HalfLength float64 `json:"half_length,omitempty"`

	// HalfExtents and Basis define an oriented box. Basis rows must be an
	// orthonormal frame.
	HalfExtents Vec3    `json:"half_extents,omitempty"`
	Basis       [3]Vec3 `json:"basis,omitempty"`
}

// Sphere constructs a sphere shape.
func Sphere(offset Vec3, radius float64) Shape {
	return Shape{Kind: ShapeSphere, Offset: offset, Radius: radius}
}

// Capsule constructs a capsule whose core segment is centered on offset
// along axis.
func Capsule(offset Vec3, axis Vec3, halfLength, radius float64) Shape {
	return Shape{
		Kind:       ShapeCapsule,
		Offset:     offset,
		Axis:       axis.Normalized(),
		HalfLength: halfLength,
		Radius:     radius,
	}
}

// OrientedBox constructs an oriented box with the given orthonormal basis.
func OrientedBox(offset Vec3, halfExtents Vec3, basis [3]Vec3) Shape {
	return Shape{Kind: ShapeOrientedBox, Offset: offset, HalfExtents: halfExtents, Basis: basis}
}

// AxisAlignedBox constructs an oriented box aligned to the world axes.
func AxisAlignedBox(offset Vec3, halfExtents Vec3) Shape {
	return OrientedBox(offset, halfExtents, [3]Vec3{
		{X: 1}, {Y: 1}, {Z: 1},
	})
}

// Validate rejects degenerate geometry. Called when a hitbox set is attached
// to an entity; a shape that passes Validate never fails inside a query.
func (s Shape) Validate() error {
	switch s.Kind {
	case ShapeSphere:
		if s.Radius <= 0 {
			return eris.Wrapf(ErrInvalidHitbox, "sphere radius %v must be positive", s.Radius)
		}
	case ShapeCapsule:
		if s.Radius <= 0 {
			return eris.Wrapf(ErrInvalidHitbox, "capsule radius %v must be positive", s.Radius)
		}
		if s.HalfLength <= 0 {
			return eris.Wrapf(ErrInvalidHitbox, "capsule half length %v must be positive", s.HalfLength)
		}
		if math.Abs(s.Axis.LengthSq()-1) > 1e-6 {
			return eris.Wrap(ErrInvalidHitbox, "capsule axis must be a unit vector")
		}
	case ShapeOrientedBox:
		if s.HalfExtents.X <= 0 || s.HalfExtents.Y <= 0 || s.HalfExtents.Z <= 0 {
			return eris.Wrapf(ErrInvalidHitbox, "box half extents %v must all be positive", s.HalfExtents)
		}
		for i := 0; i < 3; i++ {
			if math.Abs(s.Basis[i].LengthSq()-1) > 1e-6 {
				return eris.Wrapf(ErrInvalidHitbox, "box basis row %d must be a unit vector", i)
			}
			for j := i + 1; j < 3; j++ {
				if math.Abs(s.Basis[i].Dot(s.Basis[j])) > 1e-6 {
					return eris.Wrapf(ErrInvalidHitbox, "box basis rows %d and %d must be orthogonal", i, j)
				}
			}
		}
	default:
		return eris.Wrapf(ErrInvalidHitbox, "unknown shape kind %d", s.Kind)
	}
	return nil
}
