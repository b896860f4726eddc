package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	DefaultSleepSpeedLimit = 0.1
	DefaultSleepTimeLimit  = 1.0
	DefaultIterations      = 10

	// approach speeds below this never bounce, so resting contacts stay put
	restitutionThreshold = 1.0
	penetrationSlop      = 0.01
	correctionPercent    = 0.8
)

// World owns gravity, bodies and contact-material pairings.
type World struct {
	Gravity         mgl64.Vec3
	AllowSleep      bool
	SleepSpeedLimit float64
	SleepTimeLimit  float64
	Iterations      int

	// DefaultContact applies to material pairs with no registered pairing.
	DefaultContact ContactMaterial

	bodies    []*Body
	materials map[materialPair]ContactMaterial
	nextID    int
	time      float64
}

// NewWorld creates a world with sleeping enabled.
func NewWorld(gravity mgl64.Vec3) *World {
	return &World{
		Gravity:         gravity,
		AllowSleep:      true,
		SleepSpeedLimit: DefaultSleepSpeedLimit,
		SleepTimeLimit:  DefaultSleepTimeLimit,
		Iterations:      DefaultIterations,
		DefaultContact:  ContactMaterial{Friction: 0.3, Restitution: 0.3},
		materials:       make(map[materialPair]ContactMaterial),
		nextID:          1,
	}
}

// AddBody registers a body and assigns its ID.
func (w *World) AddBody(b *Body) {
	b.ID = w.nextID
	w.nextID++
	w.bodies = append(w.bodies, b)
}

// Bodies returns the registered bodies in insertion order.
func (w *World) Bodies() []*Body {
	return w.bodies
}

// AddContactMaterial registers a friction/restitution pairing.
func (w *World) AddContactMaterial(cm ContactMaterial) {
	w.materials[materialPair{cm.A, cm.B}] = cm
	w.materials[materialPair{cm.B, cm.A}] = cm
}

// Time returns the simulated seconds elapsed.
func (w *World) Time() float64 {
	return w.time
}

func (w *World) contactMaterial(a, b *Material) ContactMaterial {
	if cm, ok := w.materials[materialPair{a, b}]; ok {
		return cm
	}
	return w.DefaultContact
}

// Step advances the simulation by dt seconds.
func (w *World) Step(dt float64) {
	if dt <= 0 {
		return
	}

	for _, b := range w.bodies {
		if !b.active() {
			continue
		}
		b.Velocity = b.Velocity.Add(w.Gravity.Mul(dt))
		b.AngularVelocity = b.AngularVelocity.Add(b.invInertiaWorld(b.torque).Mul(dt))
		b.torque = mgl64.Vec3{}
		b.Velocity = b.Velocity.Mul(math.Pow(1-b.LinearDamping, dt))
		b.AngularVelocity = b.AngularVelocity.Mul(math.Pow(1-b.AngularDamping, dt))
	}

	contacts := w.detect()
	w.correctPositions(contacts)
	w.solve(contacts, dt)

	for _, b := range w.bodies {
		if !b.active() {
			continue
		}
		b.Position = b.Position.Add(b.Velocity.Mul(dt))
		if b.AngularVelocity.LenSqr() > 0 {
			spin := mgl64.Quat{W: 0, V: b.AngularVelocity.Mul(0.5 * dt)}
			b.Orientation = b.Orientation.Add(spin.Mul(b.Orientation)).Normalize()
		}
	}

	w.updateSleep(dt)
	w.time += dt
}

func (w *World) detect() []contact {
	var out []contact
	for i := 0; i < len(w.bodies); i++ {
		for j := i + 1; j < len(w.bodies); j++ {
			a, b := w.bodies[i], w.bodies[j]
			if !a.active() && !b.active() {
				continue
			}
			cs := collide(a, b)
			if len(cs) == 0 {
				continue
			}
			w.wakeOnContact(a, b)
			cm := w.contactMaterial(a.Material, b.Material)
			for k := range cs {
				cs[k].friction = cm.Friction
				cs[k].restitution = cm.Restitution
			}
			out = append(out, cs...)
		}
	}
	return out
}

// wakeOnContact wakes a sleeping body that is hit by a fast awake one.
func (w *World) wakeOnContact(a, b *Body) {
	limit := 2 * w.SleepSpeedLimit
	if a.active() && b.sleepState == Sleeping && a.Speed2() > limit*limit {
		b.WakeUp()
	}
	if b.active() && a.sleepState == Sleeping && b.Speed2() > limit*limit {
		a.WakeUp()
	}
}

// correctPositions pushes each overlapping pair apart by its deepest contact.
// Pairs are handled in detection order so replays stay bit-identical.
func (w *World) correctPositions(contacts []contact) {
	type pair struct{ a, b *Body }
	index := make(map[pair]int)
	var deepest []contact
	for _, c := range contacts {
		k := pair{c.a, c.b}
		i, ok := index[k]
		if !ok {
			index[k] = len(deepest)
			deepest = append(deepest, c)
			continue
		}
		if c.depth > deepest[i].depth {
			deepest[i] = c
		}
	}
	for _, c := range deepest {
		ia, ib := c.a.effectiveInvMass(), c.b.effectiveInvMass()
		total := ia + ib
		if total == 0 {
			continue
		}
		corr := math.Max(c.depth-penetrationSlop, 0) * correctionPercent / total
		c.a.Position = c.a.Position.Add(c.normal.Mul(corr * ia))
		c.b.Position = c.b.Position.Sub(c.normal.Mul(corr * ib))
	}
}

func (w *World) solve(contacts []contact, dt float64) {
	for i := range contacts {
		c := &contacts[i]
		c.t1, c.t2 = tangents(c.normal)
		vn := relativeVelocity(c).Dot(c.normal)
		if vn < -restitutionThreshold {
			c.bias = -c.restitution * vn
		}
	}

	for it := 0; it < w.Iterations; it++ {
		for i := range contacts {
			c := &contacts[i]

			k := effectiveMass(c, c.normal)
			if k == 0 {
				continue
			}
			vn := relativeVelocity(c).Dot(c.normal)
			lambda := (c.bias - vn) / k
			prev := c.accNormal
			c.accNormal = math.Max(prev+lambda, 0)
			applyImpulse(c, c.normal.Mul(c.accNormal-prev))

			maxF := c.friction * c.accNormal
			c.accT1 = solveFriction(c, c.t1, c.accT1, maxF)
			c.accT2 = solveFriction(c, c.t2, c.accT2, maxF)
		}
	}
}

func solveFriction(c *contact, t mgl64.Vec3, acc, maxF float64) float64 {
	k := effectiveMass(c, t)
	if k == 0 {
		return acc
	}
	vt := relativeVelocity(c).Dot(t)
	next := clamp(acc-vt/k, -maxF, maxF)
	applyImpulse(c, t.Mul(next-acc))
	return next
}

func relativeVelocity(c *contact) mgl64.Vec3 {
	rA := c.point.Sub(c.a.Position)
	rB := c.point.Sub(c.b.Position)
	return c.a.velocityAt(rA).Sub(c.b.velocityAt(rB))
}

func effectiveMass(c *contact, dir mgl64.Vec3) float64 {
	rA := c.point.Sub(c.a.Position)
	rB := c.point.Sub(c.b.Position)
	k := c.a.effectiveInvMass() + c.b.effectiveInvMass()
	k += c.a.invInertiaWorld(rA.Cross(dir)).Cross(rA).Dot(dir)
	k += c.b.invInertiaWorld(rB.Cross(dir)).Cross(rB).Dot(dir)
	return k
}

func applyImpulse(c *contact, p mgl64.Vec3) {
	rA := c.point.Sub(c.a.Position)
	rB := c.point.Sub(c.b.Position)
	if c.a.active() {
		c.a.Velocity = c.a.Velocity.Add(p.Mul(c.a.invMass))
		c.a.AngularVelocity = c.a.AngularVelocity.Add(c.a.invInertiaWorld(rA.Cross(p)))
	}
	if c.b.active() {
		c.b.Velocity = c.b.Velocity.Sub(p.Mul(c.b.invMass))
		c.b.AngularVelocity = c.b.AngularVelocity.Sub(c.b.invInertiaWorld(rB.Cross(p)))
	}
}

func (w *World) updateSleep(dt float64) {
	if !w.AllowSleep {
		return
	}
	limit2 := w.SleepSpeedLimit * w.SleepSpeedLimit
	for _, b := range w.bodies {
		if !b.active() {
			continue
		}
		if b.Speed2() < limit2 {
			b.idleTime += dt
			if b.idleTime >= w.SleepTimeLimit {
				b.Sleep()
			}
		} else {
			b.idleTime = 0
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
