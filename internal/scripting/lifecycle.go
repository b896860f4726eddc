// Package scripting runs user JavaScript strategies against a craps table.
// A script defines dobet(), which is called after every decided round to set
// nextbet for the next pass-line bet.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/craps-pf-go/internal/craps"
	"github.com/MJE43/craps-pf-go/internal/store"
	"github.com/MJE43/craps-pf-go/internal/table"
)

// State represents the scripting engine's lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateError   State = "error"
)

// Table is the part of the craps table the engine plays against.
type Table interface {
	Snapshot(ctx context.Context) (table.State, error)
	PlaceBet(ctx context.Context, amount int) error
	RollAndWait(ctx context.Context) (table.Roll, error)
}

// EventEmitter allows the engine to push state updates to clients.
type EventEmitter interface {
	EmitScriptState(state EngineSnapshot)
}

// RunRecorder persists a summary of each run.
type RunRecorder interface {
	CreateRun(ctx context.Context, r store.AutoplayRun) error
	FinishRun(ctx context.Context, r store.AutoplayRun) error
}

// EngineSnapshot is a serializable snapshot of the engine state.
type EngineSnapshot struct {
	State         State        `json:"state"`
	RunID         string       `json:"runId,omitempty"`
	Error         string       `json:"error,omitempty"`
	StopReason    string       `json:"stopReason,omitempty"`
	Stats         *Statistics  `json:"stats"`
	Chart         []ChartPoint `json:"chart"`
	BetsPerSecond float64      `json:"betsPerSecond"`
}

var errRoundTaken = errors.New("round decided outside autoplay")

// busyRetry is how long the loop waits when a manual roll is in flight.
const busyRetry = 50 * time.Millisecond

// Engine is the main scripting engine that orchestrates the bet lifecycle.
type Engine struct {
	mu         sync.RWMutex
	state      State
	err        error
	stopReason string
	cancel     context.CancelFunc
	done       chan struct{}

	vm    *VM
	vars  *Variables
	stats *Statistics
	chart *ChartBuffer

	table    Table
	emitter  EventEmitter
	recorder RunRecorder
	logger   *log.Logger
	run      store.AutoplayRun

	startTime time.Time
	lastEmit  time.Time
}

// NewEngine creates a new scripting engine. emitter may be nil.
func NewEngine(tbl Table, emitter EventEmitter) *Engine {
	return &Engine{
		state:   StateIdle,
		table:   tbl,
		emitter: emitter,
		logger:  log.New(os.Stdout, "[AUTOPLAY] ", log.LstdFlags),
	}
}

// SetRecorder enables run history. Call it before Start.
func (e *Engine) SetRecorder(r RunRecorder) {
	e.recorder = r
}

// Start executes the script once to register dobet(), then begins the bet
// loop using the table's current wallet as the starting balance.
func (e *Engine) Start(ctx context.Context, script string) error {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("engine is already running")
	}
	prevState := e.state
	e.state = StateRunning
	e.err = nil
	e.stopReason = ""
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	st, err := e.table.Snapshot(ctx)
	if err == nil && st.GameOver {
		err = craps.ErrGameOver
	}
	if err != nil {
		e.mu.Lock()
		if e.state == StateRunning {
			e.state = prevState
		}
		cancel()
		close(done)
		e.mu.Unlock()
		if errors.Is(err, craps.ErrGameOver) {
			return fmt.Errorf("start autoplay: %w", err)
		}
		return fmt.Errorf("read table: %w", err)
	}

	e.mu.Lock()
	e.stats = NewStatistics(st.Wallet)
	e.chart = NewChartBuffer(500)
	e.vars = NewVariables(e.stats)
	e.vm = NewVM()
	e.startTime = time.Now()
	e.mu.Unlock()

	e.vm.SetVariables(e.vars)

	if err := e.vm.Execute(script); err != nil {
		e.setError(err)
		cancel()
		close(done)
		return err
	}
	e.vm.SyncVariables(e.vars)

	if !e.vm.HasDobet() {
		err := fmt.Errorf("script must define a dobet() function")
		e.setError(err)
		cancel()
		close(done)
		return err
	}

	e.vars.Running = true
	e.vm.SetVariables(e.vars)
	e.beginRun(ctx, script, st.Wallet)
	e.emitState()

	go e.betLoop(loopCtx, done)
	return nil
}

// Stop cancels the bet loop and waits for the round in progress to end.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("engine is not running")
	}
	e.cancel()
	e.state = StateStopped
	e.stopReason = "stopped by user"
	if e.vars != nil {
		e.vars.Running = false
	}
	done := e.done
	e.mu.Unlock()

	<-done
	e.emitState()
	return nil
}

// Wait blocks until the bet loop exits.
func (e *Engine) Wait() {
	e.mu.RLock()
	done := e.done
	e.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// GetState returns the current engine snapshot.
func (e *Engine) GetState() EngineSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot()
}

// GetLogs returns the script log buffer.
func (e *Engine) GetLogs() []LogEntry {
	e.mu.RLock()
	vm := e.vm
	e.mu.RUnlock()
	if vm == nil {
		return nil
	}
	return vm.GetLogs()
}

func (e *Engine) betLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer e.endRun()
	defer func() {
		if r := recover(); r != nil {
			e.setError(fmt.Errorf("script panic: %v", r))
		}
	}()

	for {
		if ctx.Err() != nil {
			e.finish("")
			return
		}
		if e.vm.IsStopRequested() {
			e.finish("stop() called")
			return
		}

		result, err := e.playRound(ctx)
		switch {
		case errors.Is(err, errRoundTaken):
			continue
		case errors.Is(err, craps.ErrGameOver):
			e.finish("bankrupt")
			return
		case err != nil:
			if ctx.Err() != nil {
				e.finish("")
				return
			}
			e.setError(err)
			return
		}

		e.mu.Lock()
		e.stats.RecordBet(*result)
		e.vars.Win = result.Win
		e.vars.PreviousBet = result.Amount
		e.vars.Balance = int(e.stats.Balance.IntPart())
		e.vars.LastRoll = result.Total
		e.vars.Point = result.Point
		e.vars.Kind = result.Kind
		e.vars.LastBet = map[string]interface{}{
			"amount": result.Amount,
			"win":    result.Win,
			"total":  result.Total,
			"point":  result.Point,
			"kind":   result.Kind,
			"rolls":  result.Rolls,
			"payout": result.Payout,
		}
		e.vm.SetVariables(e.vars)
		e.chart.Push(ChartPoint{
			BetNumber: e.stats.Bets,
			Profit:    e.stats.Profit,
			Win:       result.Win,
		})
		e.mu.Unlock()

		if err := e.vm.CallDobet(); err != nil {
			e.setError(err)
			return
		}

		e.mu.Lock()
		e.vm.SyncVariables(e.vars)
		if e.vm.IsResetStatsRequested() {
			e.stats.Reset()
			e.chart.Reset()
			e.vm.SetVariables(e.vars)
		}
		stopOnWin := e.vars.StopOnWin
		e.mu.Unlock()

		if e.vm.IsStopRequested() {
			e.finish("stop() called")
			return
		}
		if stopOnWin && result.Win {
			e.finish("stoponwin")
			return
		}

		e.throttledEmitState()

		if ms := e.vm.TakeSleepTime(); ms > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(ms) * time.Millisecond):
			}
		}
	}
}

// playRound bets nextbet if the table is awaiting a bet and rolls until the
// round is decided. A round already under way is played out with its bet.
func (e *Engine) playRound(ctx context.Context) (*BetResult, error) {
	st, err := e.table.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	if st.GameOver {
		return nil, craps.ErrGameOver
	}

	bet := st.CurrentBet
	if st.Phase == craps.AwaitingBet {
		e.mu.RLock()
		bet = e.vars.NextBet
		e.mu.RUnlock()
		if bet <= 0 {
			return nil, fmt.Errorf("nextbet must be > 0, got %d", bet)
		}
		if err := e.table.PlaceBet(ctx, bet); err != nil {
			return nil, fmt.Errorf("place bet %d: %w", bet, err)
		}
	}

	rolls := 0
	for {
		roll, err := e.table.RollAndWait(ctx)
		switch {
		case errors.Is(err, table.ErrRollInFlight):
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(busyRetry):
			}
			continue
		case errors.Is(err, table.ErrRollNotAllowed):
			return nil, errRoundTaken
		case err != nil:
			return nil, fmt.Errorf("roll: %w", err)
		}

		rolls++
		e.mu.Lock()
		e.vars.Die1, e.vars.Die2 = roll.Dice[0], roll.Dice[1]
		e.mu.Unlock()

		res := roll.Resolution
		if !res.RoundOver() {
			continue
		}
		result := &BetResult{
			Amount: bet,
			Win:    res.Outcome == craps.Win,
			Total:  res.Total,
			Point:  roll.PointBefore,
			Kind:   res.Kind.String(),
			Rolls:  rolls,
		}
		if result.Win {
			result.Payout = 2 * bet
		}
		return result, nil
	}
}

func (e *Engine) beginRun(ctx context.Context, script string, wallet int) {
	e.mu.Lock()
	e.run = store.AutoplayRun{
		ID:           uuid.New(),
		Script:       script,
		StartBalance: wallet,
		State:        string(StateRunning),
		CreatedAt:    e.startTime.UTC(),
	}
	run := e.run
	e.mu.Unlock()

	if e.recorder == nil {
		return
	}
	if err := e.recorder.CreateRun(ctx, run); err != nil {
		e.logger.Printf("record run start failed run=%s err=%v", run.ID, err)
	}
}

// endRun stores the final statistics of the run.
func (e *Engine) endRun() {
	e.mu.Lock()
	run := e.run
	run.State = string(e.state)
	run.StopReason = e.stopReason
	if e.err != nil {
		run.Error = e.err.Error()
	}
	if st := e.stats; st != nil {
		final := int(st.Balance.IntPart())
		run.FinalBalance = &final
		run.Bets, run.Wins, run.Losses = st.Bets, st.Wins, st.Losses
		run.Wagered, run.Profit = st.Wagered, st.Profit
		run.HighestStreak, run.LowestStreak = st.HighestStreak, st.LowestStreak
	}
	e.mu.Unlock()

	e.logger.Printf("run ended run=%s state=%s reason=%q bets=%d profit=%s", run.ID, run.State, run.StopReason, run.Bets, run.Profit)
	if e.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.recorder.FinishRun(ctx, run); err != nil {
		e.logger.Printf("record run end failed run=%s err=%v", run.ID, err)
	}
}

// finish marks a running engine stopped. reason is kept unless empty.
func (e *Engine) finish(reason string) {
	e.mu.Lock()
	if e.state == StateRunning {
		e.state = StateStopped
	}
	if reason != "" {
		e.stopReason = reason
	}
	e.vars.Running = false
	e.mu.Unlock()
	e.emitState()
}

func (e *Engine) setError(err error) {
	e.mu.Lock()
	e.state = StateError
	e.err = err
	if e.vars != nil {
		e.vars.Running = false
	}
	e.mu.Unlock()
	e.emitState()
}

func (e *Engine) snapshot() EngineSnapshot {
	snap := EngineSnapshot{
		State:      e.state,
		StopReason: e.stopReason,
	}
	if e.run.ID != uuid.Nil {
		snap.RunID = e.run.ID.String()
	}
	if e.err != nil {
		snap.Error = e.err.Error()
	}
	if e.stats != nil {
		statsCopy := *e.stats
		statsCopy.Kinds = make(map[string]int, len(e.stats.Kinds))
		for k, v := range e.stats.Kinds {
			statsCopy.Kinds[k] = v
		}
		snap.Stats = &statsCopy
	}
	if e.chart != nil {
		snap.Chart = append([]ChartPoint(nil), e.chart.Points...)
	}
	if e.state == StateRunning && e.stats != nil && e.stats.Bets > 0 {
		if elapsed := time.Since(e.startTime).Seconds(); elapsed > 0 {
			snap.BetsPerSecond = float64(e.stats.Bets) / elapsed
		}
	}
	return snap
}

func (e *Engine) emitState() {
	if e.emitter == nil {
		return
	}
	e.mu.Lock()
	snap := e.snapshot()
	e.lastEmit = time.Now()
	e.mu.Unlock()
	e.emitter.EmitScriptState(snap)
}

// throttledEmitState only emits if at least 100ms have passed since the last emission.
func (e *Engine) throttledEmitState() {
	e.mu.RLock()
	recent := time.Since(e.lastEmit) < 100*time.Millisecond
	e.mu.RUnlock()
	if recent {
		return
	}
	e.emitState()
}
