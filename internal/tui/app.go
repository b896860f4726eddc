package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/MJE43/craps-pf-go/internal/table"
)

const commandTimeout = 2 * time.Second

// Table is the part of a table the terminal drives.
type Table interface {
	PlaceBet(ctx context.Context, amount int) error
	RequestRoll(ctx context.Context) (uint64, error)
	Reset(ctx context.Context) error
	RotateSeed(ctx context.Context, clientSeed string) (table.SeedRotation, error)
}

// App owns the screen and forwards keys to the table.
type App struct {
	screen tcell.Screen
	table  Table
	model  *Model
}

// NewApp wires a screen to a table. Register Listener() on the table before
// it runs.
func NewApp(screen tcell.Screen, tbl Table) *App {
	a := &App{screen: screen, table: tbl}
	a.model = NewModel(func() {
		// a full queue already has a redraw pending
		_ = screen.PostEvent(tcell.NewEventInterrupt(nil))
	})
	return a
}

// Listener is the table listener that feeds this app.
func (a *App) Listener() table.Listener {
	return a.model
}

// Run draws and handles input until the user quits or ctx is done. The
// caller owns Init and Fini.
func (a *App) Run(ctx context.Context) error {
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := a.screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			events <- ev
		}
	}()

	a.redraw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if a.HandleKey(ctx, ev) {
					return nil
				}
				a.redraw()
			case *tcell.EventResize:
				a.screen.Sync()
				a.redraw()
			case *tcell.EventInterrupt:
				a.redraw()
			}
		}
	}
}

func (a *App) redraw() {
	Draw(a.screen, a.model.Snapshot())
	a.screen.Show()
}

// HandleKey applies one key press and reports whether the app should quit.
func (a *App) HandleKey(ctx context.Context, ev *tcell.EventKey) bool {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyEnter:
		if amount, ok := a.model.TakeBet(); ok {
			a.placeBet(ctx, amount)
		}
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		a.model.Backspace()
	case tcell.KeyRune:
		switch r := ev.Rune(); r {
		case 'q':
			return true
		case 'r', ' ':
			a.roll(ctx)
		case 'x':
			if err := a.table.Reset(ctx); err != nil {
				a.model.ShowError(fmt.Errorf("reset: %w", err))
			}
		case 's':
			a.rotate(ctx)
		default:
			a.model.TypeDigit(r)
		}
	}
	return false
}

func (a *App) placeBet(ctx context.Context, amount int) {
	err := a.table.PlaceBet(ctx, amount)
	// the table explains rejected bets on its own message line
	if err != nil && (errors.Is(err, table.ErrClosed) || ctx.Err() != nil) {
		a.model.ShowError(err)
	}
}

func (a *App) roll(ctx context.Context) {
	_, err := a.table.RequestRoll(ctx)
	if err == nil || errors.Is(err, table.ErrRollNotAllowed) {
		return
	}
	a.model.ShowError(err)
}

func (a *App) rotate(ctx context.Context) {
	rot, err := a.table.RotateSeed(ctx, "")
	if err != nil {
		a.model.ShowError(fmt.Errorf("rotate seed: %w", err))
		return
	}
	a.model.Message(fmt.Sprintf("Seed revealed: %s (%d rolls)", rot.Previous.Server, rot.LastNonce), 0)
}
