// Package dice turns physics bodies into dice: it throws them, steps the
// world, detects when they settle and reads the face that ended up on top.
package dice

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/MJE43/craps-pf-go/internal/physics"
)

const (
	Size = 1.0
	Mass = 1.0
)

// Die pairs a physics body with its face-value mapping.
type Die struct {
	Index int
	Body  *physics.Body
}

// New creates a die body of the standard size and adds it to the world.
func New(w *physics.World, index int, material *physics.Material) *Die {
	half := Size / 2
	body := physics.NewBody(Mass, physics.NewBox(mgl64.Vec3{half, half, half}), material)
	w.AddBody(body)
	return &Die{Index: index, Body: body}
}

// Value returns the face currently pointing up.
func (d *Die) Value() int {
	return ResolveFace(d.Body.Orientation)
}

// Bodies returns the physics bodies of a set of dice.
func Bodies(dice []*Die) []*physics.Body {
	out := make([]*physics.Body, len(dice))
	for i, d := range dice {
		out[i] = d.Body
	}
	return out
}
