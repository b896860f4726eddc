package games

import (
	"fmt"
	"time"

	"github.com/MJE43/craps-pf-go/internal/craps"
	"github.com/MJE43/craps-pf-go/internal/dice"
	"github.com/MJE43/craps-pf-go/internal/engine"
)

// DefaultMaxSettle matches the live table's settle timeout.
const DefaultMaxSettle = 20 * time.Second

// CrapsGame replays a physics throw in a fresh pit and reads the dice.
type CrapsGame struct{}

// Spec returns metadata about the Craps game
func (g *CrapsGame) Spec() GameSpec {
	return GameSpec{
		ID:          "craps",
		Name:        "Craps",
		MetricLabel: "total",
	}
}

// FloatCount returns the number of floats required
func (g *CrapsGame) FloatCount(params map[string]any) int {
	return 2 * dice.FloatsPerDie
}

// Evaluate replays the throw for (seeds, nonce)
func (g *CrapsGame) Evaluate(seeds Seeds, nonce uint64, params map[string]any) (GameResult, error) {
	floats := engine.Floats(seeds, nonce, 0, g.FloatCount(params))
	return g.EvaluateWithFloats(floats, params)
}

// EvaluateWithFloats replays the throw using pre-computed floats.
//
// Params:
//   - max_settle: seconds of simulated time before the dice are forced to rest
//   - point: when 4,5,6,8,9 or 10 the roll is classified as a point roll
func (g *CrapsGame) EvaluateWithFloats(floats []float64, params map[string]any) (GameResult, error) {
	need := g.FloatCount(params)
	if len(floats) < need {
		return GameResult{}, fmt.Errorf("craps requires at least %d floats, got %d", need, len(floats))
	}

	maxSettle := DefaultMaxSettle
	if v, ok := floatParam(params, "max_settle"); ok && v > 0 {
		maxSettle = time.Duration(v * float64(time.Second))
	}
	point, _ := floatParam(params, "point")

	pit := dice.NewPit(int(maxSettle.Seconds() / dice.FrameDt))
	pit.Throw(&floatSource{floats: floats})
	st := pit.Stepper.RunToRest()

	kind := classify(st.Total, int(point))
	return GameResult{
		Metric:      float64(st.Total),
		MetricLabel: "total",
		Details: map[string]any{
			"die1":   st.Values[0],
			"die2":   st.Values[1],
			"total":  st.Total,
			"frames": st.Frames,
			"forced": st.Forced,
			"kind":   kind.String(),
		},
	}, nil
}

// classify resolves a total against a fresh machine in the given phase.
func classify(total, point int) craps.Kind {
	m := craps.NewMachine(2)
	_ = m.PlaceBet(1)
	if craps.IsPointNumber(point) {
		if _, err := m.Resolve(point); err != nil {
			return craps.NoDecision
		}
	}
	res, err := m.Resolve(total)
	if err != nil {
		return craps.NoDecision
	}
	return res.Kind
}

type floatSource struct {
	floats []float64
	pos    int
}

func (s *floatSource) Float() float64 {
	f := s.floats[s.pos]
	s.pos++
	return f
}

func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
