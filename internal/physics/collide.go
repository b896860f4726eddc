package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// contact is one touching point between bodies a and b. normal points from b
// toward a, so a positive impulse along it separates them.
type contact struct {
	a, b   *Body
	point  mgl64.Vec3
	normal mgl64.Vec3
	depth  float64

	friction    float64
	restitution float64

	bias      float64
	accNormal float64
	accT1     float64
	accT2     float64
	t1, t2    mgl64.Vec3
}

// collide generates contacts for a body pair. The returned contacts always
// have a as a dynamic body.
func collide(a, b *Body) []contact {
	if a.IsStatic() && !b.IsStatic() {
		a, b = b, a
	}
	switch sa := a.Shape.(type) {
	case *Box:
		switch sb := b.Shape.(type) {
		case *Plane:
			return boxPlane(a, sa, b)
		case *Box:
			return boxBox(a, sa, b, sb)
		}
	case *Plane:
		if sb, ok := b.Shape.(*Box); ok {
			return boxPlane(b, sb, a)
		}
	}
	return nil
}

func boxPlane(box *Body, shape *Box, plane *Body) []contact {
	n := planeNormal(plane.Orientation)
	corners := boxCorners(box.Position, boxAxes(box.Orientation), shape.HalfExtents)

	var out []contact
	for _, c := range corners {
		d := c.Sub(plane.Position).Dot(n)
		if d < 0 {
			out = append(out, contact{a: box, b: plane, point: c, normal: n, depth: -d})
		}
	}
	return out
}

// boxBox runs a separating-axis test over the 15 candidate axes and collects
// every corner of one box that lies inside the other.
func boxBox(a *Body, sa *Box, b *Body, sb *Box) []contact {
	l := b.Position.Sub(a.Position)
	reach := sa.HalfExtents.Len() + sb.HalfExtents.Len()
	if l.LenSqr() > reach*reach {
		return nil
	}

	axesA := boxAxes(a.Orientation)
	axesB := boxAxes(b.Orientation)

	candidates := make([]mgl64.Vec3, 0, 15)
	candidates = append(candidates, axesA[:]...)
	candidates = append(candidates, axesB[:]...)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			cross := axesA[i].Cross(axesB[j])
			if cross.LenSqr() > 1e-8 {
				candidates = append(candidates, cross.Normalize())
			}
		}
	}

	minOverlap := math.MaxFloat64
	var normal mgl64.Vec3
	for _, axis := range candidates {
		overlap := projectedOverlap(axesA, sa.HalfExtents, axesB, sb.HalfExtents, axis, l)
		if overlap <= 0 {
			return nil
		}
		if overlap < minOverlap {
			minOverlap = overlap
			normal = axis
		}
	}

	// normal must point from b toward a
	if l.Dot(normal) > 0 {
		normal = normal.Mul(-1)
	}

	var out []contact
	for _, p := range boxCorners(a.Position, axesA, sa.HalfExtents) {
		if pointInBox(p, b.Position, axesB, sb.HalfExtents) {
			out = append(out, contact{a: a, b: b, point: p, normal: normal, depth: minOverlap})
		}
	}
	for _, p := range boxCorners(b.Position, axesB, sb.HalfExtents) {
		if pointInBox(p, a.Position, axesA, sa.HalfExtents) {
			out = append(out, contact{a: a, b: b, point: p, normal: normal, depth: minOverlap})
		}
	}
	if len(out) == 0 {
		// edge-edge touch: no corner is inside either box
		mid := a.Position.Add(b.Position).Mul(0.5)
		out = append(out, contact{a: a, b: b, point: mid, normal: normal, depth: minOverlap})
	}
	return out
}

func projectedOverlap(axesA [3]mgl64.Vec3, ha mgl64.Vec3, axesB [3]mgl64.Vec3, hb mgl64.Vec3, axis, l mgl64.Vec3) float64 {
	var pa, pb float64
	for i := 0; i < 3; i++ {
		pa += math.Abs(axesA[i].Dot(axis)) * ha[i]
		pb += math.Abs(axesB[i].Dot(axis)) * hb[i]
	}
	return pa + pb - math.Abs(l.Dot(axis))
}

func pointInBox(p, pos mgl64.Vec3, axes [3]mgl64.Vec3, h mgl64.Vec3) bool {
	d := p.Sub(pos)
	for i := 0; i < 3; i++ {
		if math.Abs(d.Dot(axes[i])) > h[i]+0.01 {
			return false
		}
	}
	return true
}

// tangents returns two unit vectors orthogonal to n and to each other.
func tangents(n mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	ref := mgl64.Vec3{1, 0, 0}
	if math.Abs(n.X()) > 0.9 {
		ref = mgl64.Vec3{0, 1, 0}
	}
	t1 := n.Cross(ref).Normalize()
	t2 := n.Cross(t1)
	return t1, t2
}
