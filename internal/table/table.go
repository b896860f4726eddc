// Package table runs a craps table: one goroutine owns the physics pit, the
// betting state machine and the provably-fair seeds, and everything else
// talks to it through an inbox.
package table

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/craps-pf-go/internal/craps"
	"github.com/MJE43/craps-pf-go/internal/dice"
	"github.com/MJE43/craps-pf-go/internal/engine"
	"github.com/MJE43/craps-pf-go/internal/store"
)

const (
	DefaultTickHz      = 60
	DefaultStartWallet = 1000
	DefaultMaxSettle   = 20 * time.Second
)

var (
	ErrRollNotAllowed = errors.New("roll not allowed")
	ErrRollInFlight   = errors.New("a roll is in flight")
	ErrClosed         = errors.New("table closed")
)

// Recorder persists sessions and settled rolls.
type Recorder interface {
	CreateSession(ctx context.Context, s store.Session) (store.Session, error)
	EndSession(ctx context.Context, id uuid.UUID, serverSeed string) error
	InsertRoll(ctx context.Context, r store.Roll) (int64, error)
}

// Options configures a Table.
type Options struct {
	StartWallet int
	TickHz      int
	MaxSettle   time.Duration // simulated time before dice are forced to rest
	ClientSeed  string

	Recorder  Recorder
	Scheduler Scheduler
	Logger    *log.Logger
	Listeners []Listener
}

// Table is a single-bettor craps table.
type Table struct {
	opts      Options
	inbox     chan any
	done      chan struct{}
	logger    *log.Logger
	listeners []Listener

	pit       *dice.Pit
	machine   *craps.Machine
	messenger *Messenger

	seeds     engine.Seeds
	seedHash  string
	sessionID uuid.UUID
	nonce     uint64
	lastRoll  *Roll

	rolling bool
	waiters []chan<- rollReply
}

// New creates a table with a fresh server seed.
func New(opts Options) (*Table, error) {
	if opts.StartWallet <= 0 {
		opts.StartWallet = DefaultStartWallet
	}
	if opts.TickHz <= 0 {
		opts.TickHz = DefaultTickHz
	}
	if opts.MaxSettle <= 0 {
		opts.MaxSettle = DefaultMaxSettle
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stdout, "[TABLE] ", log.LstdFlags)
	}

	maxFrames := int(opts.MaxSettle.Seconds() / dice.FrameDt)
	t := &Table{
		opts:      opts,
		inbox:     make(chan any, 64),
		done:      make(chan struct{}),
		logger:    opts.Logger,
		listeners: opts.Listeners,
		pit:       dice.NewPit(maxFrames),
		machine:   craps.NewMachine(opts.StartWallet),
	}
	t.messenger = NewMessenger(opts.Scheduler, func() string { return defaultText(t.machine) }, t.postRevert)

	if err := t.startSession(opts.ClientSeed); err != nil {
		return nil, err
	}
	return t, nil
}

// AddListener registers a listener. It must be called before Run.
func (t *Table) AddListener(l Listener) {
	t.listeners = append(t.listeners, l)
}

// Run drives the table until ctx is done.
func (t *Table) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(t.opts.TickHz))
	defer ticker.Stop()
	defer close(t.done)
	defer t.messenger.Stop()

	t.logger.Printf("table running tick_hz=%d wallet=%d session=%s", t.opts.TickHz, t.opts.StartWallet, t.sessionID)
	for {
		select {
		case <-ctx.Done():
			t.failWaiters(ErrClosed)
			return ctx.Err()
		case cmd := <-t.inbox:
			t.handleCommand(cmd)
		case <-ticker.C:
			t.frame()
		}
	}
}

// Tick handles pending commands and advances one frame. It is for callers
// that drive the table without Run.
func (t *Table) Tick() {
	for {
		select {
		case cmd := <-t.inbox:
			t.handleCommand(cmd)
		default:
			t.frame()
			return
		}
	}
}

// PlaceBet puts amount on the pass line.
func (t *Table) PlaceBet(ctx context.Context, amount int) error {
	reply := make(chan error, 1)
	if err := t.send(ctx, placeBet{Amount: amount, Reply: reply}); err != nil {
		return err
	}
	return awaitErr(ctx, t.done, reply)
}

// RequestRoll throws the dice and returns the nonce used without waiting
// for them to settle.
func (t *Table) RequestRoll(ctx context.Context) (uint64, error) {
	r, err := t.roll(ctx, false)
	return r.Nonce, err
}

// RollAndWait throws the dice and returns once they settle.
func (t *Table) RollAndWait(ctx context.Context) (Roll, error) {
	return t.roll(ctx, true)
}

func (t *Table) roll(ctx context.Context, wait bool) (Roll, error) {
	reply := make(chan rollReply, 1)
	if err := t.send(ctx, requestRoll{Reply: reply, Wait: wait}); err != nil {
		return Roll{}, err
	}
	r, err := await(ctx, t.done, reply)
	if err != nil {
		return Roll{}, err
	}
	return r.Roll, r.Err
}

// Snapshot returns the current table state.
func (t *Table) Snapshot(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	if err := t.send(ctx, snapshot{Reply: reply}); err != nil {
		return State{}, err
	}
	return await(ctx, t.done, reply)
}

// Reset restores the starting wallet and clears the round.
func (t *Table) Reset(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := t.send(ctx, reset{Reply: reply}); err != nil {
		return err
	}
	return awaitErr(ctx, t.done, reply)
}

// RotateSeed replaces the server seed and reveals the previous one. An empty
// clientSeed keeps the current client seed.
func (t *Table) RotateSeed(ctx context.Context, clientSeed string) (SeedRotation, error) {
	reply := make(chan rotateReply, 1)
	if err := t.send(ctx, rotateSeed{ClientSeed: clientSeed, Reply: reply}); err != nil {
		return SeedRotation{}, err
	}
	r, err := await(ctx, t.done, reply)
	if err != nil {
		return SeedRotation{}, err
	}
	return r.Rotation, r.Err
}

func (t *Table) send(ctx context.Context, cmd any) error {
	select {
	case t.inbox <- cmd:
		return nil
	case <-t.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, done <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// awaitErr waits for a command whose only reply is its error.
func awaitErr(ctx context.Context, done <-chan struct{}, reply <-chan error) error {
	res, err := await(ctx, done, reply)
	if err != nil {
		return err
	}
	return res
}

func (t *Table) postRevert(gen uint64) {
	select {
	case t.inbox <- revertMessage{Gen: gen}:
	default:
	}
}

func (t *Table) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case placeBet:
		c.Reply <- t.placeBet(c.Amount)
	case requestRoll:
		t.requestRoll(c)
	case snapshot:
		c.Reply <- t.state()
	case reset:
		c.Reply <- t.reset()
	case rotateSeed:
		rot, err := t.rotateSeed(c.ClientSeed)
		c.Reply <- rotateReply{Rotation: rot, Err: err}
	case revertMessage:
		if t.messenger.Revert(c.Gen) {
			t.emitMessage(t.messenger.Text(), 0)
			t.emitState()
		}
	default:
		t.logger.Printf("unknown command type=%T", cmd)
	}
}

func (t *Table) placeBet(amount int) error {
	if err := t.machine.PlaceBet(amount); err != nil {
		switch {
		case errors.Is(err, craps.ErrInvalidBetAmount):
			t.say(textInvalidBet, errorRevert)
		case errors.Is(err, craps.ErrInsufficientFunds):
			t.say(textNoFunds, errorRevert)
		case errors.Is(err, craps.ErrBettingClosed):
			t.say(textBettingClosed, errorRevert)
		case errors.Is(err, craps.ErrGameOver):
			t.say(textGameOver, 0)
		}
		t.emitState()
		return err
	}

	s := t.machine.State()
	t.logger.Printf("bet placed amount=%d wallet=%d", s.CurrentBet, s.Wallet)
	t.say(fmt.Sprintf("Bet of $%d placed. Roll for the Come Out.", s.CurrentBet), 0)
	t.emitState()
	return nil
}

func (t *Table) requestRoll(c requestRoll) {
	if t.rolling {
		c.Reply <- rollReply{Err: fmt.Errorf("%w: %w", ErrRollNotAllowed, ErrRollInFlight)}
		return
	}
	if !t.machine.CanRoll() {
		c.Reply <- rollReply{Err: fmt.Errorf("%w: %w", ErrRollNotAllowed, craps.ErrNoActiveBet)}
		return
	}

	t.nonce++
	t.pit.Throw(engine.NewByteGenerator(t.seeds, t.nonce, 0))
	t.rolling = true
	t.say(rollingText(t.machine.State()), 0)
	t.emitState()

	if c.Wait {
		t.waiters = append(t.waiters, c.Reply)
		return
	}
	c.Reply <- rollReply{Roll: Roll{Nonce: t.nonce}}
}

func (t *Table) frame() {
	st := t.pit.Stepper.Frame(frameSink{t})
	if st == nil || !t.rolling {
		return
	}
	t.settle(*st)
}

type frameSink struct{ t *Table }

func (s frameSink) Transforms(index int, ts []dice.DieTransform) {
	if !s.t.rolling {
		return
	}
	f := Frame{Nonce: s.t.nonce, Index: index, Dice: ts}
	for _, l := range s.t.listeners {
		l.Frame(f)
	}
}

func (t *Table) settle(st dice.Settlement) {
	t.rolling = false
	before := t.machine.State()

	res, err := t.machine.Resolve(st.Total)
	if err != nil {
		t.logger.Printf("resolve failed nonce=%d total=%d err=%v", t.nonce, st.Total, err)
		t.failWaiters(err)
		t.emitState()
		return
	}

	after := t.machine.State()
	roll := Roll{
		Nonce:       t.nonce,
		Dice:        st.Values,
		Total:       st.Total,
		PhaseBefore: before.Phase,
		PointBefore: before.Point,
		Bet:         before.CurrentBet,
		Resolution:  res,
		WalletAfter: after.Wallet,
		Frames:      st.Frames,
		Forced:      st.Forced,
		At:          time.Now().UTC(),
	}
	t.lastRoll = &roll

	t.logger.Printf("roll settled nonce=%d dice=%d,%d total=%d kind=%s outcome=%s wallet=%d frames=%d forced=%t",
		roll.Nonce, roll.Dice[0], roll.Dice[1], roll.Total, res.Kind, res.Outcome, roll.WalletAfter, roll.Frames, roll.Forced)
	t.record(roll)

	text, revert := resolutionText(res, before.CurrentBet)
	t.say(text, revert)
	if res.RoundOver() {
		for _, l := range t.listeners {
			l.RoundOver(res.Outcome, res.AmountDelta)
		}
		if t.machine.GameOver() {
			t.logger.Printf("wallet exhausted session=%s", t.sessionID)
			t.say(textGameOver, gameOverRevert)
		}
	}
	t.emitState()

	for _, w := range t.waiters {
		w <- rollReply{Roll: roll}
	}
	t.waiters = nil
}

func (t *Table) failWaiters(err error) {
	for _, w := range t.waiters {
		w <- rollReply{Err: err}
	}
	t.waiters = nil
}

func (t *Table) reset() error {
	if t.rolling {
		return ErrRollInFlight
	}
	t.machine.Reset(t.opts.StartWallet)
	t.lastRoll = nil
	if _, err := t.switchSession(t.seeds.Client); err != nil {
		return err
	}
	t.logger.Printf("table reset wallet=%d session=%s", t.opts.StartWallet, t.sessionID)
	t.say(t.messenger.defaults(), 0)
	t.emitState()
	return nil
}

func (t *Table) rotateSeed(clientSeed string) (SeedRotation, error) {
	if t.rolling {
		return SeedRotation{}, ErrRollInFlight
	}
	if clientSeed == "" {
		clientSeed = t.seeds.Client
	}

	rot, err := t.switchSession(clientSeed)
	if err != nil {
		return SeedRotation{}, err
	}
	t.logger.Printf("seed rotated previous_hash=%s next_hash=%s last_nonce=%d", rot.PreviousHash, rot.NextHash, rot.LastNonce)
	t.emitState()
	return rot, nil
}

// switchSession closes the current session, revealing its server seed, and
// opens a new one with fresh seeds.
func (t *Table) switchSession(clientSeed string) (SeedRotation, error) {
	rot := SeedRotation{
		Previous:     t.seeds,
		PreviousHash: t.seedHash,
		LastNonce:    t.nonce,
	}
	prevSession := t.sessionID

	if err := t.startSession(clientSeed); err != nil {
		return SeedRotation{}, err
	}
	if t.opts.Recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := t.opts.Recorder.EndSession(ctx, prevSession, rot.Previous.Server); err != nil {
			t.logger.Printf("end session failed session=%s err=%v", prevSession, err)
		}
	}
	rot.NextHash = t.seedHash
	rot.NextClient = t.seeds.Client
	rot.SessionID = t.sessionID.String()
	return rot, nil
}

// startSession draws a new server seed and restarts the nonce counter.
func (t *Table) startSession(clientSeed string) error {
	server, err := engine.NewServerSeed()
	if err != nil {
		return fmt.Errorf("server seed: %w", err)
	}
	if clientSeed == "" {
		clientSeed = uuid.NewString()[:8]
	}

	t.seeds = engine.Seeds{Server: server, Client: clientSeed}
	t.seedHash = engine.HashServerSeed(server)
	t.nonce = 0
	t.sessionID = uuid.New()

	if t.opts.Recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := t.opts.Recorder.CreateSession(ctx, store.Session{
			ID:               t.sessionID,
			ServerSeedHashed: t.seedHash,
			ClientSeed:       clientSeed,
			StartWallet:      t.machine.State().Wallet,
		})
		if err != nil {
			t.logger.Printf("create session failed session=%s err=%v", t.sessionID, err)
		}
	}
	return nil
}

func (t *Table) record(r Roll) {
	if t.opts.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := t.opts.Recorder.InsertRoll(ctx, store.Roll{
		SessionID:   t.sessionID,
		Nonce:       r.Nonce,
		Die1:        r.Dice[0],
		Die2:        r.Dice[1],
		Total:       r.Total,
		PhaseBefore: r.PhaseBefore.String(),
		PointBefore: r.PointBefore,
		Kind:        r.Resolution.Kind.String(),
		Outcome:     r.Resolution.Outcome.String(),
		Bet:         r.Bet,
		AmountDelta: r.Resolution.AmountDelta,
		WalletAfter: r.WalletAfter,
		Frames:      r.Frames,
		Forced:      r.Forced,
		CreatedAt:   r.At,
	})
	if err != nil {
		t.logger.Printf("record roll failed nonce=%d err=%v", r.Nonce, err)
	}
}

func (t *Table) say(text string, revertAfter time.Duration) {
	t.messenger.Show(text, revertAfter)
	t.emitMessage(text, revertAfter)
}

func (t *Table) emitMessage(text string, revertAfter time.Duration) {
	for _, l := range t.listeners {
		l.Message(text, revertAfter)
	}
}

func (t *Table) emitState() {
	s := t.state()
	for _, l := range t.listeners {
		l.StateChanged(s)
	}
}

func (t *Table) state() State {
	return State{
		RoundState:     t.machine.State(),
		BetEnabled:     t.machine.CanBet() && !t.rolling,
		RollEnabled:    t.machine.CanRoll() && !t.rolling,
		Rolling:        t.rolling,
		GameOver:       t.machine.GameOver(),
		Message:        t.messenger.Text(),
		SessionID:      t.sessionID.String(),
		ServerSeedHash: t.seedHash,
		ClientSeed:     t.seeds.Client,
		Nonce:          t.nonce,
		LastRoll:       t.lastRoll,
	}
}
