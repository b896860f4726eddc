package table

import "time"

// Timer is a scheduled one-shot callback.
type Timer interface {
	Stop() bool
}

// Scheduler schedules one-shot callbacks. It is swapped for a fake in tests.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Messenger holds the table's status text. A transient message reverts to
// the default text after a delay unless a newer message replaced it first.
type Messenger struct {
	sched    Scheduler
	post     func(gen uint64)
	defaults func() string

	text  string
	gen   uint64
	timer Timer
}

// NewMessenger creates a messenger. post is called from the timer goroutine
// with the generation to revert and must hand it to the owning loop.
func NewMessenger(sched Scheduler, defaults func() string, post func(gen uint64)) *Messenger {
	if sched == nil {
		sched = realScheduler{}
	}
	return &Messenger{sched: sched, post: post, defaults: defaults, text: defaults()}
}

// Text returns the message currently displayed.
func (m *Messenger) Text() string {
	return m.text
}

// Show displays text, cancelling any pending revert. A zero revertAfter
// keeps the text until the next Show.
func (m *Messenger) Show(text string, revertAfter time.Duration) {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.text = text

	if revertAfter > 0 {
		gen := m.gen
		m.timer = m.sched.AfterFunc(revertAfter, func() { m.post(gen) })
	}
}

// Revert restores the default text if gen is still the latest message.
// It reports whether the text changed.
func (m *Messenger) Revert(gen uint64) bool {
	if gen != m.gen {
		return false
	}
	m.timer = nil
	m.text = m.defaults()
	return true
}

// Stop cancels any pending revert.
func (m *Messenger) Stop() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
