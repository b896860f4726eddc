// Package scan replays a range of nonces in parallel and reports the rolls
// that match a target, along with the distribution of totals.
package scan

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MJE43/craps-pf-go/internal/games"
)

var (
	ErrGameNotFound = errors.New("game not found")
	ErrInvalidRange = errors.New("invalid nonce range")
	ErrInvalidOp    = errors.New("invalid target op")
)

// MaxRange bounds one scan. Physics replays are not cheap.
const MaxRange = 200_000

// TargetOp represents comparison operations for scanning
type TargetOp string

const (
	OpEqual        TargetOp = "eq"
	OpGreater      TargetOp = "gt"
	OpGreaterEqual TargetOp = "ge"
	OpLess         TargetOp = "lt"
	OpLessEqual    TargetOp = "le"
	OpBetween      TargetOp = "between"
	OpOutside      TargetOp = "outside"
	OpAny          TargetOp = "any"
)

// Request describes one scan.
type Request struct {
	Game       string         `json:"game"`
	Seeds      games.Seeds    `json:"seeds"`
	NonceStart uint64         `json:"nonce_start"`
	NonceEnd   uint64         `json:"nonce_end"`
	Params     map[string]any `json:"params"`
	TargetOp   TargetOp       `json:"target_op"`
	TargetVal  float64        `json:"target_val"`
	TargetVal2 float64        `json:"target_val2,omitempty"` // for "between" and "outside"
	Kind       string         `json:"kind,omitempty"`        // e.g. "natural"; empty matches any
	Limit      int            `json:"limit,omitempty"`
	TimeoutMs  int            `json:"timeout_ms,omitempty"`
}

// Hit is a matching roll.
type Hit struct {
	Nonce  uint64  `json:"nonce"`
	Metric float64 `json:"metric"`
	Die1   int     `json:"die1"`
	Die2   int     `json:"die2"`
	Kind   string  `json:"kind"`
}

// Summary contains aggregate statistics over the evaluated range.
type Summary struct {
	TotalEvaluated uint64      `json:"total_evaluated"`
	HitsFound      int         `json:"hits_found"`
	MinMetric      float64     `json:"min_metric"`
	MaxMetric      float64     `json:"max_metric"`
	MeanMetric     float64     `json:"mean_metric"`
	Totals         map[int]int `json:"totals"` // every evaluated roll, matched or not
	TimedOut       bool        `json:"timed_out,omitempty"`
}

// Result is returned by Scan. Hits are ordered by nonce.
type Result struct {
	Hits    []Hit   `json:"hits"`
	Summary Summary `json:"summary"`
	Echo    Request `json:"echo"`
}

// Validate checks a request before any work starts.
func (r Request) Validate() error {
	if _, ok := games.GetGame(r.Game); !ok {
		return ErrGameNotFound
	}
	if r.NonceStart == 0 || r.NonceEnd < r.NonceStart || r.NonceEnd-r.NonceStart >= MaxRange {
		return ErrInvalidRange
	}
	switch r.TargetOp {
	case OpEqual, OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpAny:
	case OpBetween, OpOutside:
		if r.TargetVal2 < r.TargetVal {
			return ErrInvalidOp
		}
	default:
		return ErrInvalidOp
	}
	return nil
}

// Matches checks a metric against the target. Totals are whole numbers, so
// comparisons are exact.
func (r Request) Matches(metric float64, kind string) bool {
	if r.Kind != "" && kind != r.Kind {
		return false
	}
	switch r.TargetOp {
	case OpEqual:
		return metric == r.TargetVal
	case OpGreater:
		return metric > r.TargetVal
	case OpGreaterEqual:
		return metric >= r.TargetVal
	case OpLess:
		return metric < r.TargetVal
	case OpLessEqual:
		return metric <= r.TargetVal
	case OpBetween:
		return metric >= r.TargetVal && metric <= r.TargetVal2
	case OpOutside:
		return metric < r.TargetVal || metric > r.TargetVal2
	case OpAny:
		return true
	}
	return false
}

type job struct {
	start, end uint64
}

type outcome struct {
	hit   Hit
	total int
	match bool
}

// Scanner fans a range out over a fixed set of workers.
type Scanner struct {
	workerCount int
	batchSize   uint64
}

// NewScanner creates a scanner with one worker per CPU.
func NewScanner() *Scanner {
	return &Scanner{workerCount: runtime.GOMAXPROCS(0), batchSize: 256}
}

// Scan evaluates every nonce in the range. A timeout or cancellation returns
// the partial result with TimedOut set.
func (s *Scanner) Scan(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	game, _ := games.GetGame(req.Game)

	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	jobs := make(chan job, s.workerCount*2)
	results := make(chan outcome, 256)
	var evaluated uint64
	var wg sync.WaitGroup

	for i := 0; i < s.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.work(ctx, game, req, jobs, results, &evaluated)
		}()
	}
	go s.generateJobs(ctx, jobs, req.NonceStart, req.NonceEnd)
	go func() {
		wg.Wait()
		close(results)
	}()

	res := &Result{Echo: req, Summary: Summary{Totals: make(map[int]int)}}
	for o := range results {
		res.Summary.Totals[o.total]++
		if o.match {
			res.Hits = append(res.Hits, o.hit)
		}
	}
	res.Summary.TotalEvaluated = atomic.LoadUint64(&evaluated)
	res.Summary.TimedOut = ctx.Err() != nil

	sort.Slice(res.Hits, func(i, j int) bool { return res.Hits[i].Nonce < res.Hits[j].Nonce })
	summarize(&res.Summary, res.Hits)
	if req.Limit > 0 && len(res.Hits) > req.Limit {
		res.Hits = res.Hits[:req.Limit]
	}
	return res, nil
}

func (s *Scanner) work(ctx context.Context, game games.Game, req Request, jobs <-chan job, out chan<- outcome, evaluated *uint64) {
	for j := range jobs {
		for nonce := j.start; nonce <= j.end; nonce++ {
			if ctx.Err() != nil {
				return
			}
			r, err := game.Evaluate(req.Seeds, nonce, req.Params)
			if err != nil {
				continue
			}
			atomic.AddUint64(evaluated, 1)

			hit := Hit{Nonce: nonce, Metric: r.Metric}
			hit.Die1, _ = r.Details["die1"].(int)
			hit.Die2, _ = r.Details["die2"].(int)
			hit.Kind, _ = r.Details["kind"].(string)

			select {
			case out <- outcome{hit: hit, total: int(r.Metric), match: req.Matches(r.Metric, hit.Kind)}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Scanner) generateJobs(ctx context.Context, jobs chan<- job, start, end uint64) {
	defer close(jobs)
	for cur := start; cur <= end; {
		last := min(cur+s.batchSize-1, end)
		select {
		case jobs <- job{start: cur, end: last}:
		case <-ctx.Done():
			return
		}
		if last == end {
			return
		}
		cur = last + 1
	}
}

func summarize(s *Summary, hits []Hit) {
	s.HitsFound = len(hits)
	if len(hits) == 0 {
		return
	}
	lo, hi, sum := hits[0].Metric, hits[0].Metric, 0.0
	for _, h := range hits {
		lo = min(lo, h.Metric)
		hi = max(hi, h.Metric)
		sum += h.Metric
	}
	s.MinMetric, s.MaxMetric, s.MeanMetric = lo, hi, sum/float64(len(hits))
}
