package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/MJE43/craps-pf-go/internal/games"
)

var testSeeds = games.Seeds{Server: "scan-server-seed", Client: "scan-client"}

// TestScanPairSevens checks every hit against a direct replay.
func TestScanPairSevens(t *testing.T) {
	req := Request{
		Game:       "pair",
		Seeds:      testSeeds,
		NonceStart: 1,
		NonceEnd:   2000,
		TargetOp:   OpEqual,
		TargetVal:  7,
	}
	result, err := NewScanner().Scan(context.Background(), req)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if result.Summary.TotalEvaluated != 2000 {
		t.Fatalf("evaluated %d, want 2000", result.Summary.TotalEvaluated)
	}
	counted := 0
	for total, n := range result.Summary.Totals {
		if total < 2 || total > 12 {
			t.Errorf("impossible total %d", total)
		}
		counted += n
	}
	if counted != 2000 {
		t.Errorf("histogram holds %d rolls, want 2000", counted)
	}
	if result.Summary.HitsFound != result.Summary.Totals[7] || len(result.Hits) != result.Summary.HitsFound {
		t.Errorf("hits = %d, sevens = %d", result.Summary.HitsFound, result.Summary.Totals[7])
	}

	g, _ := games.GetGame("pair")
	prev := uint64(0)
	for _, h := range result.Hits {
		if h.Nonce <= prev {
			t.Fatalf("hits not ordered: %d after %d", h.Nonce, prev)
		}
		prev = h.Nonce
		r, err := g.Evaluate(testSeeds, h.Nonce, nil)
		if err != nil {
			t.Fatal(err)
		}
		if r.Metric != 7 || h.Die1+h.Die2 != 7 || h.Kind != "natural" {
			t.Errorf("nonce %d: hit %+v, replay %v", h.Nonce, h, r.Metric)
		}
	}
	if result.Summary.MeanMetric != 7 {
		t.Errorf("mean = %v", result.Summary.MeanMetric)
	}
}

func TestScanKindAndLimit(t *testing.T) {
	req := Request{
		Game:       "pair",
		Seeds:      testSeeds,
		NonceStart: 1,
		NonceEnd:   1000,
		TargetOp:   OpAny,
		Kind:       "craps",
		Limit:      5,
	}
	result, err := NewScanner().Scan(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Hits) != 5 {
		t.Fatalf("got %d hits, want limit 5", len(result.Hits))
	}
	want := result.Summary.Totals[2] + result.Summary.Totals[3] + result.Summary.Totals[12]
	if result.Summary.HitsFound != want {
		t.Errorf("hits found %d, want %d craps totals", result.Summary.HitsFound, want)
	}
	for _, h := range result.Hits {
		if h.Kind != "craps" {
			t.Errorf("hit %+v is not craps", h)
		}
	}
}

func TestScanCrapsMatchesGame(t *testing.T) {
	params := map[string]any{"max_settle": 5.0}
	req := Request{
		Game:       "craps",
		Seeds:      testSeeds,
		NonceStart: 1,
		NonceEnd:   20,
		Params:     params,
		TargetOp:   OpBetween,
		TargetVal:  2,
		TargetVal2: 12,
	}
	result, err := NewScanner().Scan(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Hits) != 20 {
		t.Fatalf("got %d hits, want every roll", len(result.Hits))
	}
	g, _ := games.GetGame("craps")
	for _, h := range result.Hits {
		r, err := g.Evaluate(testSeeds, h.Nonce, params)
		if err != nil {
			t.Fatal(err)
		}
		if r.Metric != h.Metric {
			t.Errorf("nonce %d: scan %v, replay %v", h.Nonce, h.Metric, r.Metric)
		}
	}
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := NewScanner().Scan(ctx, Request{
		Game: "pair", Seeds: testSeeds, NonceStart: 1, NonceEnd: 100000, TargetOp: OpAny,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Summary.TimedOut || result.Summary.TotalEvaluated == 100000 {
		t.Errorf("summary = %+v", result.Summary)
	}
}

func TestValidate(t *testing.T) {
	ok := Request{Game: "pair", NonceStart: 1, NonceEnd: 10, TargetOp: OpEqual}
	tests := []struct {
		name   string
		mutate func(r *Request)
		want   error
	}{
		{"valid", func(r *Request) {}, nil},
		{"unknown game", func(r *Request) { r.Game = "roulette" }, ErrGameNotFound},
		{"zero start", func(r *Request) { r.NonceStart = 0 }, ErrInvalidRange},
		{"reversed", func(r *Request) { r.NonceEnd = 0 }, ErrInvalidRange},
		{"too wide", func(r *Request) { r.NonceEnd = MaxRange + 1 }, ErrInvalidRange},
		{"bad op", func(r *Request) { r.TargetOp = "near" }, ErrInvalidOp},
		{"inverted between", func(r *Request) { r.TargetOp, r.TargetVal, r.TargetVal2 = OpBetween, 9, 4 }, ErrInvalidOp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ok
			tt.mutate(&r)
			if err := r.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		op     TargetOp
		v1, v2 float64
		metric float64
		want   bool
	}{
		{OpEqual, 7, 0, 7, true},
		{OpEqual, 7, 0, 8, false},
		{OpGreater, 7, 0, 7, false},
		{OpGreaterEqual, 7, 0, 7, true},
		{OpLess, 4, 0, 3, true},
		{OpLessEqual, 4, 0, 5, false},
		{OpBetween, 4, 10, 10, true},
		{OpOutside, 4, 10, 10, false},
		{OpOutside, 4, 10, 11, true},
	}
	for _, tt := range tests {
		r := Request{TargetOp: tt.op, TargetVal: tt.v1, TargetVal2: tt.v2}
		if got := r.Matches(tt.metric, ""); got != tt.want {
			t.Errorf("%s(%v,%v) on %v = %v", tt.op, tt.v1, tt.v2, tt.metric, got)
		}
	}
}
