package combat

import "math"

// Sweep routines compute the earliest parametric time of impact (TOI) of a
// point moving along a segment against a shape instanced at a world
// position. TOI is normalized to [0, 1] over the segment; fast movers are
// swept rather than point-sampled so they cannot tunnel through thin
// geometry.

// SweepShape intersects the segment from p0 to p1 against shape placed at
// origin. Returns the earliest TOI in [0, 1] and whether a hit occurred.
func SweepShape(p0, p1 Vec3, shape Shape, origin Vec3) (float64, bool) {
	switch shape.Kind {
	case ShapeSphere:
		return sweepSphere(p0, p1, origin.Add(shape.Offset), shape.Radius)
	case ShapeCapsule:
		center := origin.Add(shape.Offset)
		a := center.Sub(shape.Axis.Scale(shape.HalfLength))
		b := center.Add(shape.Axis.Scale(shape.HalfLength))
		return sweepCapsule(p0, p1, a, b, shape.Radius)
	case ShapeOrientedBox:
		return sweepOrientedBox(p0, p1, origin.Add(shape.Offset), shape.HalfExtents, shape.Basis)
	}
	return 0, false
}

// sweepSphere solves |p0 + t*d - c|^2 = r^2 for the smallest t in [0, 1].
func sweepSphere(p0, p1, c Vec3, r float64) (float64, bool) {
	d := p1.Sub(p0)
	m := p0.Sub(c)
	a := d.Dot(d)
	b := m.Dot(d)
	cc := m.Dot(m) - r*r
	if cc <= 0 {
		// Started inside the sphere.
		return 0, true
	}
	if a == 0 {
		return 0, false
	}
	disc := b*b - a*cc
	if disc < 0 {
		return 0, false
	}
	t := (-b - math.Sqrt(disc)) / a
	if t < 0 || t > 1 {
		return 0, false
	}
	return t, true
}

// sweepCapsule intersects the segment with the capsule whose core segment
// runs from a to b. The infinite cylinder is solved first; misses past the
// cylinder ends fall through to the cap spheres.
func sweepCapsule(p0, p1, a, b Vec3, r float64) (float64, bool) {
	d := p1.Sub(p0)
	ba := b.Sub(a)
	oa := p0.Sub(a)

	baba := ba.Dot(ba)
	bard := ba.Dot(d)
	baoa := ba.Dot(oa)

	k2 := baba*d.Dot(d) - bard*bard
	k1 := baba*oa.Dot(d) - baoa*bard
	k0 := baba*oa.Dot(oa) - baoa*baoa - r*r*baba

	best := math.Inf(1)
	hit := false

	if k2 != 0 {
		disc := k1*k1 - k2*k0
		if disc >= 0 {
			t := (-k1 - math.Sqrt(disc)) / k2
			if t >= 0 && t <= 1 {
				// Accept only if the contact lies within the cylinder body.
				y := baoa + t*bard
				if y >= 0 && y <= baba {
					best = t
					hit = true
				}
			}
		}
	}

	for _, end := range []Vec3{a, b} {
		if t, ok := sweepSphere(p0, p1, end, r); ok && t < best {
			best = t
			hit = true
		}
	}
	if !hit {
		// Degenerate direction or start inside: distance check at t=0.
		if distSqPointSegment(p0, a, b) <= r*r {
			return 0, true
		}
		return 0, false
	}
	return best, true
}

func distSqPointSegment(p, a, b Vec3) float64 {
	ab := b.Sub(a)
	t := p.Sub(a).Dot(ab)
	if t <= 0 {
		return p.Sub(a).LengthSq()
	}
	denom := ab.LengthSq()
	if t >= denom {
		return p.Sub(b).LengthSq()
	}
	return p.Sub(a.Add(ab.Scale(t / denom))).LengthSq()
}

// sweepOrientedBox transforms the segment into the box frame and runs a slab
// test.
func sweepOrientedBox(p0, p1, center Vec3, halfExtents Vec3, basis [3]Vec3) (float64, bool) {
	rel := p0.Sub(center)
	local0 := Vec3{rel.Dot(basis[0]), rel.Dot(basis[1]), rel.Dot(basis[2])}
	rel = p1.Sub(center)
	local1 := Vec3{rel.Dot(basis[0]), rel.Dot(basis[1]), rel.Dot(basis[2])}
	return sweepAABB(local0, local1, halfExtents)
}

func sweepAABB(p0, p1, half Vec3) (float64, bool) {
	d := p1.Sub(p0)
	tMin, tMax := 0.0, 1.0
	origin := [3]float64{p0.X, p0.Y, p0.Z}
	dir := [3]float64{d.X, d.Y, d.Z}
	ext := [3]float64{half.X, half.Y, half.Z}

	for i := 0; i < 3; i++ {
		if dir[i] == 0 {
			if origin[i] < -ext[i] || origin[i] > ext[i] {
				return 0, false
			}
			continue
		}
		inv := 1 / dir[i]
		t1 := (-ext[i] - origin[i]) * inv
		t2 := (ext[i] - origin[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tMin {
			tMin = t1
		}
		if t2 < tMax {
			tMax = t2
		}
		if tMin > tMax {
			return 0, false
		}
	}
	return tMin, true
}
