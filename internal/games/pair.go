package games

import (
	"fmt"
	"math"

	"github.com/MJE43/craps-pf-go/internal/engine"
)

// PairGame maps two floats straight to two dice without physics. It gives
// scripts and scans a cheap model of the table's outcome distribution.
type PairGame struct{}

// Spec returns metadata about the Pair game
func (g *PairGame) Spec() GameSpec {
	return GameSpec{
		ID:          "pair",
		Name:        "Dice Pair",
		MetricLabel: "total",
	}
}

// FloatCount returns the number of floats required
func (g *PairGame) FloatCount(params map[string]any) int {
	return 2
}

// Evaluate draws two dice for (seeds, nonce)
func (g *PairGame) Evaluate(seeds Seeds, nonce uint64, params map[string]any) (GameResult, error) {
	return g.EvaluateWithFloats(engine.Floats(seeds, nonce, 0, 2), params)
}

// EvaluateWithFloats draws two dice using pre-computed floats
func (g *PairGame) EvaluateWithFloats(floats []float64, params map[string]any) (GameResult, error) {
	if len(floats) < 2 {
		return GameResult{}, fmt.Errorf("pair requires at least 2 floats, got %d", len(floats))
	}

	d1 := int(math.Floor(floats[0]*6)) + 1
	d2 := int(math.Floor(floats[1]*6)) + 1
	total := d1 + d2
	point, _ := floatParam(params, "point")

	return GameResult{
		Metric:      float64(total),
		MetricLabel: "total",
		Details: map[string]any{
			"die1":  d1,
			"die2":  d2,
			"total": total,
			"kind":  classify(total, int(point)).String(),
		},
	}, nil
}
