// Package games replays provably-fair rounds outside the live table.
package games

import (
	"sort"

	"github.com/MJE43/craps-pf-go/internal/engine"
)

type Seeds = engine.Seeds

// GameSpec describes a registered game.
type GameSpec struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MetricLabel string `json:"metric_label"`
}

// GameResult is the outcome of one evaluation.
type GameResult struct {
	Metric      float64        `json:"metric"`
	MetricLabel string         `json:"metric_label"`
	Details     map[string]any `json:"details,omitempty"`
}

// Game is a provably fair game that can be evaluated from seeds and a nonce.
type Game interface {
	Spec() GameSpec
	// FloatCount returns how many floats one evaluation consumes
	FloatCount(params map[string]any) int
	Evaluate(seeds Seeds, nonce uint64, params map[string]any) (GameResult, error)
	EvaluateWithFloats(floats []float64, params map[string]any) (GameResult, error)
}

var registry = make(map[string]Game)

// RegisterGame adds a game to the registry
func RegisterGame(g Game) {
	registry[g.Spec().ID] = g
}

// GetGame retrieves a game by id
func GetGame(id string) (Game, bool) {
	g, ok := registry[id]
	return g, ok
}

// ListGames returns the specs of all registered games sorted by id
func ListGames() []GameSpec {
	specs := make([]GameSpec, 0, len(registry))
	for _, g := range registry {
		specs = append(specs, g.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

func init() {
	RegisterGame(&CrapsGame{})
	RegisterGame(&PairGame{})
}
