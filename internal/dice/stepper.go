package dice

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/MJE43/craps-pf-go/internal/physics"
)

// FrameDt is the fixed simulation step per display frame.
const FrameDt = 1.0 / 60

// DieTransform is the render-facing copy of a die's pose.
type DieTransform struct {
	Index       int        `json:"index"`
	Position    mgl64.Vec3 `json:"position"`
	Orientation [4]float64 `json:"orientation"` // w, x, y, z
	Sleeping    bool       `json:"sleeping"`
}

// Sink receives die transforms after every frame.
type Sink interface {
	Transforms(frame int, transforms []DieTransform)
}

// Settlement describes a finished throw.
type Settlement struct {
	Values [2]int
	Total  int
	Frames int
	Forced bool
}

// Stepper advances the world one fixed step per frame and watches for the
// dice to settle.
type Stepper struct {
	World    *physics.World
	Dice     []*Die
	Detector SettlementDetector

	// MaxFrames bounds a throw; 0 disables the bound. When reached the dice
	// are put to sleep where they are.
	MaxFrames int

	frames int
	forced bool
}

// NewStepper creates a stepper over a world and its dice.
func NewStepper(w *physics.World, dice []*Die, maxFrames int) *Stepper {
	return &Stepper{World: w, Dice: dice, MaxFrames: maxFrames}
}

// Begin arms the detector for a new throw.
func (s *Stepper) Begin() {
	s.frames = 0
	s.forced = false
	s.Detector.Arm()
}

// InFlight reports whether a throw is awaiting settlement.
func (s *Stepper) InFlight() bool {
	return s.Detector.State() == Moving
}

// Frame runs one display frame. It returns the settlement on the frame the
// dice come to rest and nil otherwise.
func (s *Stepper) Frame(sink Sink) *Settlement {
	s.World.Step(FrameDt)
	if s.InFlight() {
		s.frames++
		if s.MaxFrames > 0 && s.frames >= s.MaxFrames {
			for _, d := range s.Dice {
				if d.Body.SleepState() != physics.Sleeping {
					d.Body.Sleep()
					s.forced = true
				}
			}
		}
	}

	if sink != nil {
		sink.Transforms(s.frames, s.Transforms())
	}

	if !s.Detector.Observe(Bodies(s.Dice)) {
		return nil
	}
	st := s.current()
	return &st
}

func (s *Stepper) current() Settlement {
	st := Settlement{Frames: s.frames, Forced: s.forced}
	for i, d := range s.Dice {
		if i < len(st.Values) {
			st.Values[i] = d.Value()
			st.Total += st.Values[i]
		}
	}
	return st
}

// Transforms snapshots the dice poses.
func (s *Stepper) Transforms() []DieTransform {
	out := make([]DieTransform, len(s.Dice))
	for i, d := range s.Dice {
		q := d.Body.Orientation
		out[i] = DieTransform{
			Index:       d.Index,
			Position:    d.Body.Position,
			Orientation: [4]float64{q.W, q.V.X(), q.V.Y(), q.V.Z()},
			Sleeping:    d.Body.SleepState() == physics.Sleeping,
		}
	}
	return out
}

// RunToRest steps until the current throw settles. It is used for headless
// replays; the frame bound guarantees termination when MaxFrames > 0.
func (s *Stepper) RunToRest() Settlement {
	if !s.InFlight() {
		return s.current()
	}
	for {
		if st := s.Frame(nil); st != nil {
			return *st
		}
	}
}
