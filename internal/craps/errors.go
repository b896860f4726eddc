package craps

import "errors"

var (
	ErrInvalidBetAmount  = errors.New("bet amount must be greater than zero")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBettingClosed     = errors.New("betting is closed until the round ends")
	ErrGameOver          = errors.New("wallet exhausted")
	ErrNoActiveBet       = errors.New("no active bet")
	ErrInvalidTotal      = errors.New("dice total out of range")
)
