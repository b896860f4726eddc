package table

import (
	"fmt"
	"time"

	"github.com/MJE43/craps-pf-go/internal/craps"
)

const (
	textPlaceBet = "Place your Pass Line bet to start."
	textComeOut  = "Rolling for the Come Out..."
	textGameOver = "Game Over! You're out of money. Reset to play again."

	textInvalidBet    = "Please enter a valid bet amount."
	textNoFunds       = "You don't have enough money!"
	textBettingClosed = "Betting is closed until the round ends."

	errorRevert    = 2 * time.Second
	decisionRevert = 4 * time.Second
	gameOverRevert = 10 * time.Second
)

// defaultText is the resting message for a round state.
func defaultText(m *craps.Machine) string {
	s := m.State()
	switch {
	case m.GameOver():
		return textGameOver
	case s.Phase == craps.AwaitingBet:
		return textPlaceBet
	case s.Phase == craps.ComeOut:
		return textComeOut
	default:
		return fmt.Sprintf("Point is %d. Roll again!", s.Point)
	}
}

func rollingText(s craps.RoundState) string {
	if s.Phase == craps.ComeOut {
		return "Come Out Roll..."
	}
	return fmt.Sprintf("Rolling for the point (%d)...", s.Point)
}

// resolutionText is the transient message for a settled roll and how long
// it stays up.
func resolutionText(res craps.Resolution, bet int) (string, time.Duration) {
	switch res.Kind {
	case craps.Natural:
		return fmt.Sprintf("You rolled a %d. Natural! You win $%d!", res.Total, bet), decisionRevert
	case craps.Craps:
		return fmt.Sprintf("You rolled a %d. Craps! You lose.", res.Total), decisionRevert
	case craps.PointSet:
		return fmt.Sprintf("Point is set to %d. Roll a %d to win. Roll a 7 to lose.", res.Point, res.Point), decisionRevert
	case craps.PointMade:
		return fmt.Sprintf("You rolled a %d! You win $%d!", res.Total, bet), decisionRevert
	case craps.SevenOut:
		return "You rolled a 7. Seven-out! You lose.", decisionRevert
	default:
		return fmt.Sprintf("You rolled a %d. Roll again.", res.Total), errorRevert
	}
}
