package table

import (
	"time"

	"github.com/MJE43/craps-pf-go/internal/craps"
	"github.com/MJE43/craps-pf-go/internal/dice"
)

// State is what UIs render: the round plus control flags and fairness info.
type State struct {
	craps.RoundState

	BetEnabled  bool   `json:"bet_enabled"`
	RollEnabled bool   `json:"roll_enabled"`
	Rolling     bool   `json:"rolling"`
	GameOver    bool   `json:"game_over"`
	Message     string `json:"message"`

	SessionID      string `json:"session_id"`
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          uint64 `json:"nonce"` // last nonce thrown

	LastRoll *Roll `json:"last_roll,omitempty"`
}

// Roll is one settled throw and its resolution.
type Roll struct {
	Nonce       uint64           `json:"nonce"`
	Dice        [2]int           `json:"dice"`
	Total       int              `json:"total"`
	PhaseBefore craps.Phase      `json:"phase_before"`
	PointBefore int              `json:"point_before,omitempty"`
	Bet         int              `json:"bet"`
	Resolution  craps.Resolution `json:"resolution"`
	WalletAfter int              `json:"wallet_after"`
	Frames      int              `json:"frames"`
	Forced      bool             `json:"forced"`
	At          time.Time        `json:"at"`
}

// Frame is a render update for the dice.
type Frame struct {
	Nonce uint64              `json:"nonce"`
	Index int                 `json:"index"`
	Dice  []dice.DieTransform `json:"dice"`
}

// Listener receives table events on the loop goroutine. Implementations must
// not block.
type Listener interface {
	StateChanged(s State)
	Message(text string, revertAfter time.Duration)
	RoundOver(outcome craps.Outcome, amountDelta int)
	Frame(f Frame)
}
