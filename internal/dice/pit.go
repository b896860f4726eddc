package dice

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/MJE43/craps-pf-go/internal/physics"
)

const (
	Gravity      = -30.0
	WallDistance = 15.0
)

var wallHalfExtents = mgl64.Vec3{15, 2, 1}

// Pit is the closed table world: a ground plane, four walls and two dice.
type Pit struct {
	World   *physics.World
	Dice    []*Die
	Stepper *Stepper
	Thrower Thrower
}

// NewPit builds the table world. Every pit built with the same maxFrames
// evolves identically for identical throws.
func NewPit(maxFrames int) *Pit {
	w := physics.NewWorld(mgl64.Vec3{0, Gravity, 0})
	w.AllowSleep = true

	tableMat := physics.NewMaterial("table")
	diceMat := physics.NewMaterial("dice")
	w.AddContactMaterial(physics.ContactMaterial{
		A:           diceMat,
		B:           tableMat,
		Friction:    0.1,
		Restitution: 0.5,
	})

	ground := physics.NewBody(0, physics.NewPlane(), tableMat)
	ground.Orientation = mgl64.QuatRotate(-math.Pi/2, mgl64.Vec3{1, 0, 0})
	w.AddBody(ground)

	for _, z := range []float64{WallDistance, -WallDistance} {
		wall := physics.NewBody(0, physics.NewBox(wallHalfExtents), tableMat)
		wall.Position = mgl64.Vec3{0, 0, z}
		w.AddBody(wall)
	}
	for _, x := range []float64{WallDistance, -WallDistance} {
		wall := physics.NewBody(0, physics.NewBox(wallHalfExtents), tableMat)
		wall.Position = mgl64.Vec3{x, 0, 0}
		wall.Orientation = mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 1, 0})
		w.AddBody(wall)
	}

	dice := []*Die{New(w, 0, diceMat), New(w, 1, diceMat)}
	for i, d := range dice {
		d.Body.Position = mgl64.Vec3{float64(i)*2 - 1, Size / 2, 0}
	}

	return &Pit{
		World:   w,
		Dice:    dice,
		Stepper: NewStepper(w, dice, maxFrames),
		Thrower: DefaultThrower(),
	}
}

// Throw randomizes the dice from src and arms settlement detection.
func (p *Pit) Throw(src Source) {
	p.Thrower.Throw(p.Dice, src)
	p.Stepper.Begin()
}

// Contains reports whether a point lies inside the walls.
func Contains(pos mgl64.Vec3) bool {
	inner := WallDistance - wallHalfExtents.Z()
	return math.Abs(pos.X()) < inner && math.Abs(pos.Z()) < inner && pos.Y() > -1
}
