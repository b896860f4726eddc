package physics

import (
	"github.com/go-gl/mathgl/mgl64"
)

// SleepState is the rest state of a body.
type SleepState uint8

const (
	Awake SleepState = iota
	Sleeping
)

func (s SleepState) String() string {
	if s == Sleeping {
		return "sleeping"
	}
	return "awake"
}

// Body is a rigid body owned by a World. Mass 0 makes it static.
type Body struct {
	ID              int
	Position        mgl64.Vec3
	Orientation     mgl64.Quat
	Velocity        mgl64.Vec3
	AngularVelocity mgl64.Vec3
	Mass            float64
	Shape           Shape
	Material        *Material

	LinearDamping  float64
	AngularDamping float64

	invMass    float64
	invInertia mgl64.Vec3 // principal axes, local frame
	torque     mgl64.Vec3
	sleepState SleepState
	idleTime   float64
}

// NewBody creates a body at the origin with identity orientation.
func NewBody(mass float64, shape Shape, material *Material) *Body {
	b := &Body{
		Orientation:    mgl64.QuatIdent(),
		Mass:           mass,
		Shape:          shape,
		Material:       material,
		LinearDamping:  0.01,
		AngularDamping: 0.01,
	}
	if mass > 0 {
		b.invMass = 1 / mass
		inertia := shape.Inertia(mass)
		for i := 0; i < 3; i++ {
			if inertia[i] > 0 {
				b.invInertia[i] = 1 / inertia[i]
			}
		}
	}
	return b
}

// IsStatic reports whether the body is immovable.
func (b *Body) IsStatic() bool {
	return b.invMass == 0
}

// SleepState returns whether the body is awake or sleeping.
func (b *Body) SleepState() SleepState {
	return b.sleepState
}

// WakeUp marks the body awake and restarts its idle timer.
func (b *Body) WakeUp() {
	b.sleepState = Awake
	b.idleTime = 0
}

// Sleep puts the body to rest immediately, zeroing its motion.
func (b *Body) Sleep() {
	if b.IsStatic() {
		return
	}
	b.sleepState = Sleeping
	b.Velocity = mgl64.Vec3{}
	b.AngularVelocity = mgl64.Vec3{}
	b.torque = mgl64.Vec3{}
}

// ResetMotion clears velocities, pending torque and the idle timer.
func (b *Body) ResetMotion() {
	b.Velocity = mgl64.Vec3{}
	b.AngularVelocity = mgl64.Vec3{}
	b.torque = mgl64.Vec3{}
	b.idleTime = 0
}

// ApplyImpulse applies an impulse at a point relative to the center of mass.
func (b *Body) ApplyImpulse(impulse, relPoint mgl64.Vec3) {
	if b.IsStatic() {
		return
	}
	b.WakeUp()
	b.Velocity = b.Velocity.Add(impulse.Mul(b.invMass))
	b.AngularVelocity = b.AngularVelocity.Add(b.invInertiaWorld(relPoint.Cross(impulse)))
}

// ApplyTorque accumulates a torque applied during the next step.
func (b *Body) ApplyTorque(torque mgl64.Vec3) {
	if b.IsStatic() {
		return
	}
	b.WakeUp()
	b.torque = b.torque.Add(torque)
}

// Speed2 is |v|² + |ω|², the quantity compared against the sleep limit.
func (b *Body) Speed2() float64 {
	return b.Velocity.LenSqr() + b.AngularVelocity.LenSqr()
}

// active reports whether the body takes part in integration this step.
func (b *Body) active() bool {
	return !b.IsStatic() && b.sleepState == Awake
}

func (b *Body) effectiveInvMass() float64 {
	if !b.active() {
		return 0
	}
	return b.invMass
}

// invInertiaWorld applies the world-space inverse inertia tensor to v.
func (b *Body) invInertiaWorld(v mgl64.Vec3) mgl64.Vec3 {
	if !b.active() {
		return mgl64.Vec3{}
	}
	local := b.Orientation.Conjugate().Rotate(v)
	local = mulElem(local, b.invInertia)
	return b.Orientation.Rotate(local)
}

// velocityAt returns the velocity of a point offset r from the center.
func (b *Body) velocityAt(r mgl64.Vec3) mgl64.Vec3 {
	return b.Velocity.Add(b.AngularVelocity.Cross(r))
}

func mulElem(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}
