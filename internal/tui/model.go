// Package tui is a terminal front end for a craps table. It renders the pit
// from above with tcell and turns keys into table commands.
package tui

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/MJE43/craps-pf-go/internal/craps"
	"github.com/MJE43/craps-pf-go/internal/dice"
	"github.com/MJE43/craps-pf-go/internal/table"
)

const maxBetDigits = 9

// Model is the view's copy of the table. Listener calls arrive on the table
// goroutine; the draw loop reads it under the same lock.
type Model struct {
	mu       sync.Mutex
	state    table.State
	message  string
	outcome  string
	dice     []dice.DieTransform
	betInput string
	notify   func()
}

// NewModel creates a model. notify is called after every update and must not
// block.
func NewModel(notify func()) *Model {
	if notify == nil {
		notify = func() {}
	}
	return &Model{notify: notify}
}

// View is a consistent copy of the model for one draw.
type View struct {
	State    table.State
	Message  string
	Outcome  string
	Dice     []dice.DieTransform
	BetInput string
}

// Snapshot copies the model.
func (m *Model) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return View{
		State:    m.state,
		Message:  m.message,
		Outcome:  m.outcome,
		Dice:     append([]dice.DieTransform(nil), m.dice...),
		BetInput: m.betInput,
	}
}

func (m *Model) update(fn func()) {
	m.mu.Lock()
	fn()
	m.mu.Unlock()
	m.notify()
}

func (m *Model) StateChanged(s table.State) {
	m.update(func() {
		m.state = s
		m.message = s.Message
	})
}

func (m *Model) Message(text string, _ time.Duration) {
	m.update(func() { m.message = text })
}

func (m *Model) RoundOver(outcome craps.Outcome, amountDelta int) {
	m.update(func() {
		switch outcome {
		case craps.Win:
			m.outcome = fmt.Sprintf("won %d", amountDelta)
		case craps.Lose:
			m.outcome = fmt.Sprintf("lost %d", -amountDelta)
		default:
			m.outcome = ""
		}
	})
}

func (m *Model) Frame(f table.Frame) {
	m.update(func() {
		m.dice = append(m.dice[:0], f.Dice...)
	})
}

// TypeDigit appends a digit to the pending bet.
func (m *Model) TypeDigit(r rune) {
	if r < '0' || r > '9' {
		return
	}
	m.update(func() {
		if len(m.betInput) >= maxBetDigits || (m.betInput == "" && r == '0') {
			return
		}
		m.betInput += string(r)
	})
}

// Backspace removes the last digit of the pending bet.
func (m *Model) Backspace() {
	m.update(func() {
		if n := len(m.betInput); n > 0 {
			m.betInput = m.betInput[:n-1]
		}
	})
}

// TakeBet returns the pending bet and clears it. ok is false when nothing was
// typed.
func (m *Model) TakeBet() (amount int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.betInput == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m.betInput)
	m.betInput = ""
	if err != nil {
		return 0, false
	}
	return n, true
}

// ShowError puts a local error on the message line until the table speaks
// again.
func (m *Model) ShowError(err error) {
	m.update(func() { m.message = err.Error() })
}
