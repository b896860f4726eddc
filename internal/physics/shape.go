package physics

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Shape is the collision geometry of a body.
type Shape interface {
	// Inertia returns the principal moments of inertia for the given mass.
	Inertia(mass float64) mgl64.Vec3
}

// Box is a cuboid centered on the body.
type Box struct {
	HalfExtents mgl64.Vec3
}

// NewBox creates a box shape from half extents.
func NewBox(halfExtents mgl64.Vec3) *Box {
	return &Box{HalfExtents: halfExtents}
}

func (s *Box) Inertia(mass float64) mgl64.Vec3 {
	x, y, z := s.HalfExtents.X(), s.HalfExtents.Y(), s.HalfExtents.Z()
	return mgl64.Vec3{
		mass / 3 * (y*y + z*z),
		mass / 3 * (x*x + z*z),
		mass / 3 * (x*x + y*y),
	}
}

// axes returns the box's local axes in world space for an orientation.
func boxAxes(q mgl64.Quat) [3]mgl64.Vec3 {
	return [3]mgl64.Vec3{
		q.Rotate(mgl64.Vec3{1, 0, 0}),
		q.Rotate(mgl64.Vec3{0, 1, 0}),
		q.Rotate(mgl64.Vec3{0, 0, 1}),
	}
}

// corners returns the 8 world-space corners of a box.
func boxCorners(pos mgl64.Vec3, axes [3]mgl64.Vec3, h mgl64.Vec3) [8]mgl64.Vec3 {
	var out [8]mgl64.Vec3
	for i := 0; i < 8; i++ {
		p := pos
		for k := 0; k < 3; k++ {
			d := axes[k].Mul(h[k])
			if i&(1<<k) != 0 {
				p = p.Add(d)
			} else {
				p = p.Sub(d)
			}
		}
		out[i] = p
	}
	return out
}

// Plane is an infinite half-space whose surface normal is the body's local +Z.
type Plane struct{}

// NewPlane creates a plane shape.
func NewPlane() *Plane {
	return &Plane{}
}

func (s *Plane) Inertia(mass float64) mgl64.Vec3 {
	return mgl64.Vec3{}
}

func planeNormal(q mgl64.Quat) mgl64.Vec3 {
	return q.Rotate(mgl64.Vec3{0, 0, 1})
}
