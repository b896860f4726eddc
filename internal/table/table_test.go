package table

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/craps-pf-go/internal/craps"
	"github.com/MJE43/craps-pf-go/internal/dice"
	"github.com/MJE43/craps-pf-go/internal/engine"
	"github.com/MJE43/craps-pf-go/internal/store"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (ft *fakeTimer) Stop() bool {
	was := !ft.stopped
	ft.stopped = true
	return was
}

type fakeScheduler struct {
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	ft := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, ft)
	return ft
}

func (s *fakeScheduler) last() *fakeTimer {
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

type outcome struct {
	outcome craps.Outcome
	delta   int
}

type fakeListener struct {
	mu       sync.Mutex
	states   []State
	messages []string
	rounds   []outcome
	frames   int
}

func (l *fakeListener) StateChanged(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *fakeListener) Message(text string, revertAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, text)
}

func (l *fakeListener) RoundOver(o craps.Outcome, delta int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rounds = append(l.rounds, outcome{o, delta})
}

func (l *fakeListener) Frame(f Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames++
}

func (l *fakeListener) lastState() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.states[len(l.states)-1]
}

func (l *fakeListener) lastMessage() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.messages[len(l.messages)-1]
}

type fakeRecorder struct {
	sessions []store.Session
	ended    map[uuid.UUID]string
	rolls    []store.Roll
}

func (r *fakeRecorder) CreateSession(ctx context.Context, s store.Session) (store.Session, error) {
	r.sessions = append(r.sessions, s)
	return s, nil
}

func (r *fakeRecorder) EndSession(ctx context.Context, id uuid.UUID, serverSeed string) error {
	if r.ended == nil {
		r.ended = make(map[uuid.UUID]string)
	}
	r.ended[id] = serverSeed
	return nil
}

func (r *fakeRecorder) InsertRoll(ctx context.Context, roll store.Roll) (int64, error) {
	r.rolls = append(r.rolls, roll)
	return int64(len(r.rolls)), nil
}

func newTestTable(t *testing.T, opts Options) (*Table, *fakeListener, *fakeScheduler) {
	t.Helper()
	l := &fakeListener{}
	sched := &fakeScheduler{}
	opts.Listeners = append(opts.Listeners, l)
	opts.Scheduler = sched
	opts.Logger = log.New(io.Discard, "", 0)
	if opts.ClientSeed == "" {
		opts.ClientSeed = "test-client"
	}
	tbl, err := New(opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return tbl, l, sched
}

// rollToRest throws and ticks until the roll settles.
func rollToRest(t *testing.T, tbl *Table) Roll {
	t.Helper()
	reply := make(chan rollReply, 1)
	tbl.requestRoll(requestRoll{Reply: reply, Wait: true})

	for i := 0; i < 2*60*60; i++ {
		select {
		case r := <-reply:
			if r.Err != nil {
				t.Fatalf("roll error: %v", r.Err)
			}
			return r.Roll
		default:
		}
		tbl.Tick()
	}
	t.Fatal("roll never settled")
	return Roll{}
}

func TestNewTableDefaults(t *testing.T) {
	tbl, _, _ := newTestTable(t, Options{})
	s := tbl.state()

	if s.Wallet != DefaultStartWallet || s.Phase != craps.AwaitingBet {
		t.Errorf("state = %+v", s)
	}
	if !s.BetEnabled || s.RollEnabled {
		t.Errorf("flags bet=%v roll=%v", s.BetEnabled, s.RollEnabled)
	}
	if s.Message != textPlaceBet {
		t.Errorf("message = %q", s.Message)
	}
	if s.ServerSeedHash != engine.HashServerSeed(tbl.seeds.Server) {
		t.Error("published hash does not match server seed")
	}
	if s.ClientSeed != "test-client" || s.Nonce != 0 {
		t.Errorf("seeds client=%q nonce=%d", s.ClientSeed, s.Nonce)
	}
}

func TestPlaceBetEmitsState(t *testing.T) {
	tbl, l, _ := newTestTable(t, Options{StartWallet: 1000})

	if err := tbl.placeBet(50); err != nil {
		t.Fatalf("placeBet() error: %v", err)
	}
	s := l.lastState()
	if s.Wallet != 950 || s.CurrentBet != 50 || s.Phase != craps.ComeOut {
		t.Errorf("state = %+v", s.RoundState)
	}
	if s.BetEnabled || !s.RollEnabled {
		t.Errorf("flags bet=%v roll=%v", s.BetEnabled, s.RollEnabled)
	}
	if got := l.lastMessage(); got != "Bet of $50 placed. Roll for the Come Out." {
		t.Errorf("message = %q", got)
	}
}

func TestRejectedBetShowsTransientMessage(t *testing.T) {
	tests := []struct {
		amount  int
		wantErr error
		text    string
	}{
		{0, craps.ErrInvalidBetAmount, textInvalidBet},
		{-1, craps.ErrInvalidBetAmount, textInvalidBet},
		{5000, craps.ErrInsufficientFunds, textNoFunds},
	}

	for _, tt := range tests {
		tbl, l, sched := newTestTable(t, Options{StartWallet: 1000})

		err := tbl.placeBet(tt.amount)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("placeBet(%d) error = %v, want %v", tt.amount, err, tt.wantErr)
		}
		if got := l.lastMessage(); got != tt.text {
			t.Errorf("message = %q, want %q", got, tt.text)
		}
		if s := l.lastState(); s.Wallet != 1000 || s.Phase != craps.AwaitingBet {
			t.Errorf("state mutated: %+v", s.RoundState)
		}

		timer := sched.last()
		if timer == nil || timer.d != errorRevert {
			t.Fatalf("expected revert timer of %v", errorRevert)
		}
		timer.f()
		tbl.Tick()
		if got := tbl.messenger.Text(); got != textPlaceBet {
			t.Errorf("after revert message = %q", got)
		}
		if got := l.lastMessage(); got != textPlaceBet {
			t.Errorf("listener not told of revert, last = %q", got)
		}
	}
}

func TestStaleRevertIsIgnored(t *testing.T) {
	tbl, _, sched := newTestTable(t, Options{})

	_ = tbl.placeBet(0)
	stale := sched.last()
	if err := tbl.placeBet(10); err != nil {
		t.Fatal(err)
	}
	if !stale.stopped {
		t.Error("pending revert was not cancelled")
	}

	stale.f()
	tbl.Tick()
	if got := tbl.messenger.Text(); got != "Bet of $10 placed. Roll for the Come Out." {
		t.Errorf("stale revert overwrote message: %q", got)
	}
}

func TestRollNotAllowedBeforeBet(t *testing.T) {
	tbl, _, _ := newTestTable(t, Options{})
	reply := make(chan rollReply, 1)
	tbl.requestRoll(requestRoll{Reply: reply})

	r := <-reply
	if !errors.Is(r.Err, ErrRollNotAllowed) {
		t.Errorf("error = %v, want ErrRollNotAllowed", r.Err)
	}
	if tbl.nonce != 0 {
		t.Errorf("nonce consumed: %d", tbl.nonce)
	}
}

func TestRollNotAllowedWhileInFlight(t *testing.T) {
	tbl, l, _ := newTestTable(t, Options{})
	if err := tbl.placeBet(10); err != nil {
		t.Fatal(err)
	}

	first := make(chan rollReply, 1)
	tbl.requestRoll(requestRoll{Reply: first})
	if r := <-first; r.Err != nil || r.Roll.Nonce != 1 {
		t.Fatalf("first roll = %+v", r)
	}
	if s := l.lastState(); !s.Rolling || s.RollEnabled || s.BetEnabled {
		t.Errorf("flags during flight: %+v", s)
	}

	second := make(chan rollReply, 1)
	tbl.requestRoll(requestRoll{Reply: second})
	r := <-second
	if !errors.Is(r.Err, ErrRollNotAllowed) || !errors.Is(r.Err, ErrRollInFlight) {
		t.Errorf("error = %v", r.Err)
	}
	if err := tbl.reset(); !errors.Is(err, ErrRollInFlight) {
		t.Errorf("reset during flight error = %v", err)
	}
}

func TestRollSettlesAndMatchesReplay(t *testing.T) {
	rec := &fakeRecorder{}
	tbl, l, _ := newTestTable(t, Options{StartWallet: 1000, Recorder: rec})
	if err := tbl.placeBet(100); err != nil {
		t.Fatal(err)
	}

	roll := rollToRest(t, tbl)

	if roll.Nonce != 1 || roll.Total != roll.Dice[0]+roll.Dice[1] {
		t.Errorf("roll = %+v", roll)
	}
	if roll.PhaseBefore != craps.ComeOut || roll.Bet != 100 {
		t.Errorf("roll before = %v bet %d", roll.PhaseBefore, roll.Bet)
	}
	if roll.WalletAfter != tbl.machine.State().Wallet {
		t.Errorf("wallet after %d, machine %d", roll.WalletAfter, tbl.machine.State().Wallet)
	}
	if l.frames == 0 {
		t.Error("no frames emitted")
	}
	s := l.lastState()
	if s.Rolling || s.LastRoll == nil || s.LastRoll.Nonce != 1 {
		t.Errorf("state after settle = %+v", s)
	}

	pit := dice.NewPit(int(DefaultMaxSettle.Seconds() / dice.FrameDt))
	pit.Throw(engine.NewByteGenerator(tbl.seeds, 1, 0))
	replay := pit.Stepper.RunToRest()
	if replay.Values != roll.Dice || replay.Frames != roll.Frames {
		t.Errorf("replay %+v differs from table roll %+v", replay, roll)
	}

	if len(rec.rolls) != 1 {
		t.Fatalf("recorded %d rolls, want 1", len(rec.rolls))
	}
	if rec.rolls[0].SessionID != tbl.sessionID || rec.rolls[0].Total != roll.Total {
		t.Errorf("recorded roll = %+v", rec.rolls[0])
	}
}

func TestSettleBustEndsGame(t *testing.T) {
	tbl, l, sched := newTestTable(t, Options{StartWallet: 100})
	if err := tbl.placeBet(100); err != nil {
		t.Fatal(err)
	}
	tbl.nonce = 1
	tbl.rolling = true
	tbl.settle(dice.Settlement{Values: [2]int{1, 1}, Total: 2, Frames: 10})

	if len(l.rounds) != 1 || l.rounds[0] != (outcome{craps.Lose, -100}) {
		t.Errorf("rounds = %+v", l.rounds)
	}
	s := l.lastState()
	if !s.GameOver || s.BetEnabled || s.RollEnabled || s.Wallet != 0 {
		t.Errorf("state = %+v", s)
	}
	if s.Message != textGameOver {
		t.Errorf("message = %q", s.Message)
	}
	if timer := sched.last(); timer == nil || timer.d != gameOverRevert {
		t.Error("game over message should revert after 10s")
	}
	if err := tbl.placeBet(10); !errors.Is(err, craps.ErrGameOver) {
		t.Errorf("bet after bust error = %v", err)
	}

	if err := tbl.reset(); err != nil {
		t.Fatal(err)
	}
	s = l.lastState()
	if s.GameOver || s.Wallet != 100 || !s.BetEnabled {
		t.Errorf("after reset = %+v", s)
	}
}

func TestSettleNaturalPays(t *testing.T) {
	tbl, l, _ := newTestTable(t, Options{StartWallet: 1000})
	if err := tbl.placeBet(50); err != nil {
		t.Fatal(err)
	}
	tbl.nonce = 1
	tbl.rolling = true
	tbl.settle(dice.Settlement{Values: [2]int{3, 4}, Total: 7})

	// 1000 - 50 staked + 2x50 paid
	if s := l.lastState(); s.Wallet != 1050 || s.Phase != craps.AwaitingBet {
		t.Errorf("state = %+v", s.RoundState)
	}
	if got := l.lastMessage(); got != "You rolled a 7. Natural! You win $50!" {
		t.Errorf("message = %q", got)
	}
	if len(l.rounds) != 1 || l.rounds[0] != (outcome{craps.Win, 50}) {
		t.Errorf("rounds = %+v", l.rounds)
	}
}

func TestSettlePointKeepsRolling(t *testing.T) {
	tbl, l, _ := newTestTable(t, Options{})
	if err := tbl.placeBet(10); err != nil {
		t.Fatal(err)
	}
	tbl.rolling = true
	tbl.settle(dice.Settlement{Values: [2]int{2, 4}, Total: 6})

	s := l.lastState()
	if s.Point != 6 || s.Phase != craps.PointEstablished || !s.RollEnabled {
		t.Errorf("state = %+v", s)
	}
	if len(l.rounds) != 0 {
		t.Error("round should not be over")
	}
	if got := defaultText(tbl.machine); got != "Point is 6. Roll again!" {
		t.Errorf("default text = %q", got)
	}
}

func TestRotateSeedRevealsPrevious(t *testing.T) {
	rec := &fakeRecorder{}
	tbl, _, _ := newTestTable(t, Options{Recorder: rec})
	prevSeeds := tbl.seeds
	prevSession := tbl.sessionID
	tbl.nonce = 7

	rot, err := tbl.rotateSeed("")
	if err != nil {
		t.Fatal(err)
	}
	if rot.Previous != prevSeeds || rot.LastNonce != 7 {
		t.Errorf("rotation = %+v", rot)
	}
	if engine.HashServerSeed(rot.Previous.Server) != rot.PreviousHash {
		t.Error("previous hash does not match revealed seed")
	}
	if rot.NextHash == rot.PreviousHash || rot.NextClient != "test-client" {
		t.Errorf("next = %s / %s", rot.NextHash, rot.NextClient)
	}
	if tbl.nonce != 0 {
		t.Errorf("nonce = %d, want 0", tbl.nonce)
	}
	if rec.ended[prevSession] != prevSeeds.Server {
		t.Error("previous session not ended with its seed")
	}
	if len(rec.sessions) != 2 {
		t.Errorf("sessions created = %d, want 2", len(rec.sessions))
	}

	rot, err = tbl.rotateSeed("new-client")
	if err != nil {
		t.Fatal(err)
	}
	if rot.NextClient != "new-client" || tbl.seeds.Client != "new-client" {
		t.Errorf("client seed not replaced: %+v", rot)
	}
}

func TestRunServesCommands(t *testing.T) {
	tbl, _, _ := newTestTable(t, Options{StartWallet: 500, TickHz: 1000})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- tbl.Run(ctx) }()

	callCtx, callCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer callCancel()

	if _, err := tbl.RequestRoll(callCtx); !errors.Is(err, ErrRollNotAllowed) {
		t.Errorf("RequestRoll before bet error = %v", err)
	}
	if err := tbl.PlaceBet(callCtx, 25); err != nil {
		t.Fatalf("PlaceBet() error: %v", err)
	}
	roll, err := tbl.RollAndWait(callCtx)
	if err != nil {
		t.Fatalf("RollAndWait() error: %v", err)
	}
	if roll.Nonce != 1 || roll.Total < 2 || roll.Total > 12 {
		t.Errorf("roll = %+v", roll)
	}

	s, err := tbl.Snapshot(callCtx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Nonce != 1 || s.Rolling {
		t.Errorf("snapshot = %+v", s)
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v", err)
	}
	if err := tbl.PlaceBet(callCtx, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("PlaceBet after close error = %v", err)
	}
}

func TestResetStartsNewSession(t *testing.T) {
	rec := &fakeRecorder{}
	tbl, l, _ := newTestTable(t, Options{StartWallet: 500, Recorder: rec})
	prevSeeds := tbl.seeds
	prevSession := tbl.sessionID
	if err := tbl.placeBet(200); err != nil {
		t.Fatal(err)
	}
	tbl.nonce = 4

	if err := tbl.reset(); err != nil {
		t.Fatal(err)
	}
	if tbl.sessionID == prevSession || tbl.seeds.Server == prevSeeds.Server {
		t.Error("reset kept the old session or server seed")
	}
	if tbl.nonce != 0 || tbl.seeds.Client != prevSeeds.Client {
		t.Errorf("nonce = %d, client = %q", tbl.nonce, tbl.seeds.Client)
	}
	if rec.ended[prevSession] != prevSeeds.Server {
		t.Error("previous session not ended with its seed")
	}
	if n := len(rec.sessions); n != 2 || rec.sessions[1].StartWallet != 500 {
		t.Errorf("sessions = %+v", rec.sessions)
	}
	if s := l.lastState(); s.SessionID != tbl.sessionID.String() || s.Wallet != 500 {
		t.Errorf("state = %+v", s)
	}
}

func TestCommandsThroughRunningLoop(t *testing.T) {
	tbl, _, _ := newTestTable(t, Options{StartWallet: 100})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tbl.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	if err := tbl.PlaceBet(ctx, 0); !errors.Is(err, craps.ErrInvalidBetAmount) {
		t.Errorf("PlaceBet(0) error = %v", err)
	}
	if err := tbl.PlaceBet(ctx, 500); !errors.Is(err, craps.ErrInsufficientFunds) {
		t.Errorf("PlaceBet(500) error = %v", err)
	}
	if err := tbl.PlaceBet(ctx, 40); err != nil {
		t.Fatalf("PlaceBet(40) error = %v", err)
	}
	st, err := tbl.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Wallet != 60 || st.CurrentBet != 40 {
		t.Errorf("after bet = %+v", st.RoundState)
	}

	if err := tbl.Reset(ctx); err != nil {
		t.Fatalf("Reset error = %v", err)
	}
	if st, _ := tbl.Snapshot(ctx); st.Wallet != 100 || st.CurrentBet != 0 {
		t.Errorf("after reset = %+v", st.RoundState)
	}
}
