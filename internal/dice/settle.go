package dice

import (
	"github.com/MJE43/craps-pf-go/internal/physics"
)

// Motion is the detector's view of the dice.
type Motion uint8

const (
	Settled Motion = iota
	Moving
)

func (m Motion) String() string {
	if m == Moving {
		return "moving"
	}
	return "settled"
}

// SettlementDetector fires once per throw, on the first frame all dice are
// asleep after having been in motion.
type SettlementDetector struct {
	state Motion
}

// State returns the current motion state.
func (d *SettlementDetector) State() Motion {
	return d.state
}

// Arm marks a throw in flight.
func (d *SettlementDetector) Arm() {
	d.state = Moving
}

// Observe checks the bodies for this frame and reports whether the dice
// have just settled. Further sleeping frames report false.
func (d *SettlementDetector) Observe(bodies []*physics.Body) bool {
	allSleeping := true
	for _, b := range bodies {
		if b.SleepState() != physics.Sleeping {
			allSleeping = false
			break
		}
	}

	if !allSleeping {
		d.state = Moving
		return false
	}
	if d.state == Moving {
		d.state = Settled
		return true
	}
	return false
}
