package craps

import "fmt"

// Machine owns the RoundState and is the only thing that mutates it.
// It is not safe for concurrent use.
type Machine struct {
	state RoundState
}

// NewMachine starts a table with the given wallet and no bet.
func NewMachine(wallet int) *Machine {
	return &Machine{state: RoundState{Wallet: wallet}}
}

// State returns a copy of the current round state.
func (m *Machine) State() RoundState {
	return m.state
}

// GameOver reports whether the bettor can no longer place a bet.
func (m *Machine) GameOver() bool {
	return m.state.Phase == AwaitingBet && m.state.Wallet <= 0
}

// CanBet reports whether PlaceBet would accept a valid amount.
func (m *Machine) CanBet() bool {
	return m.state.Phase == AwaitingBet && !m.GameOver()
}

// CanRoll reports whether a roll may be requested.
func (m *Machine) CanRoll() bool {
	return m.state.Phase != AwaitingBet
}

// PlaceBet moves the bet from the wallet onto the pass line and opens the
// come-out roll. The state is unchanged on error.
func (m *Machine) PlaceBet(amount int) error {
	switch {
	case m.state.Phase != AwaitingBet:
		return ErrBettingClosed
	case m.GameOver():
		return ErrGameOver
	case amount <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidBetAmount, amount)
	case amount > m.state.Wallet:
		return fmt.Errorf("%w: bet %d exceeds wallet %d", ErrInsufficientFunds, amount, m.state.Wallet)
	}

	m.state.Wallet -= amount
	m.state.CurrentBet = amount
	m.state.Phase = ComeOut
	return nil
}

// Resolve applies a dice total to the round.
func (m *Machine) Resolve(total int) (Resolution, error) {
	if total < 2 || total > 12 {
		return Resolution{}, fmt.Errorf("%w: %d", ErrInvalidTotal, total)
	}

	res := Resolution{Total: total}
	switch m.state.Phase {
	case AwaitingBet:
		return Resolution{}, ErrNoActiveBet

	case ComeOut:
		switch {
		case total == 7 || total == 11:
			res.Kind = Natural
			m.win(&res)
		case total == 2 || total == 3 || total == 12:
			res.Kind = Craps
			m.lose(&res)
		default:
			res.Kind = PointSet
			m.state.Point = total
			m.state.Phase = PointEstablished
			res.Point = total
		}

	case PointEstablished:
		res.Point = m.state.Point
		switch total {
		case m.state.Point:
			res.Kind = PointMade
			m.win(&res)
		case 7:
			res.Kind = SevenOut
			m.lose(&res)
		default:
			res.Kind = NoDecision
		}
	}
	return res, nil
}

// Reset starts over with a fresh wallet.
func (m *Machine) Reset(wallet int) {
	m.state = RoundState{Wallet: wallet}
}

func (m *Machine) win(res *Resolution) {
	bet := m.state.CurrentBet
	m.state.Wallet += 2 * bet
	res.Outcome = Win
	res.AmountDelta = bet
	m.endRound()
}

func (m *Machine) lose(res *Resolution) {
	res.Outcome = Lose
	res.AmountDelta = -m.state.CurrentBet
	m.endRound()
}

func (m *Machine) endRound() {
	m.state.CurrentBet = 0
	m.state.Point = 0
	m.state.Phase = AwaitingBet
}
