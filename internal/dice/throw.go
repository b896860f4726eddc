package dice

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Source yields uniformly distributed floats in [0, 1).
type Source interface {
	Float() float64
}

// FloatsPerDie is how many floats one die consumes per throw.
const FloatsPerDie = 10

// Thrower resets dice above the table and sets them in motion.
type Thrower struct {
	SpawnHalfWidth float64 // x,z spawn range is [-w, w]
	SpawnHeight    float64
	HeightStagger  float64
	MaxImpulse     float64 // horizontal impulse range is [-m, m]
	MaxTorque      float64
}

// DefaultThrower returns the table's standard throw parameters.
func DefaultThrower() Thrower {
	return Thrower{
		SpawnHalfWidth: 2,
		SpawnHeight:    5,
		HeightStagger:  2,
		MaxImpulse:     10,
		MaxTorque:      5,
	}
}

// Throw randomizes every die from src. Floats are drawn in a fixed order so
// the same source sequence always produces the same throw.
func (t Thrower) Throw(dice []*Die, src Source) {
	for i, d := range dice {
		b := d.Body

		b.ResetMotion()
		b.Position = mgl64.Vec3{
			uniform(src, -t.SpawnHalfWidth, t.SpawnHalfWidth),
			t.SpawnHeight + float64(i)*t.HeightStagger,
			uniform(src, -t.SpawnHalfWidth, t.SpawnHalfWidth),
		}
		b.Orientation = mgl64.AnglesToQuat(
			src.Float()*math.Pi,
			src.Float()*math.Pi,
			src.Float()*math.Pi,
			mgl64.XYZ,
		).Normalize()

		b.WakeUp()
		impulse := mgl64.Vec3{
			uniform(src, -t.MaxImpulse, t.MaxImpulse),
			0,
			uniform(src, -t.MaxImpulse, t.MaxImpulse),
		}
		b.ApplyImpulse(impulse, mgl64.Vec3{})

		torque := mgl64.Vec3{
			uniform(src, -t.MaxTorque, t.MaxTorque),
			uniform(src, -t.MaxTorque, t.MaxTorque),
			uniform(src, -t.MaxTorque, t.MaxTorque),
		}
		b.ApplyTorque(torque)
	}
}

func uniform(src Source, lo, hi float64) float64 {
	return lo + src.Float()*(hi-lo)
}
