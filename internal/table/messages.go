package table

import (
	"github.com/MJE43/craps-pf-go/internal/engine"
)

// Inbox commands. Each carries a reply channel the loop answers exactly once.

type placeBet struct {
	Amount int
	Reply  chan<- error
}

type requestRoll struct {
	Reply chan<- rollReply
	// Wait delays the reply until the throw settles.
	Wait bool
}

type rollReply struct {
	Roll Roll
	Err  error
}

type snapshot struct {
	Reply chan<- State
}

type reset struct {
	Reply chan<- error
}

type rotateSeed struct {
	ClientSeed string
	Reply      chan<- rotateReply
}

type rotateReply struct {
	Rotation SeedRotation
	Err      error
}

type revertMessage struct {
	Gen uint64
}

// SeedRotation is returned when the server seed is replaced. The previous
// seed is revealed so past rolls can be verified.
type SeedRotation struct {
	Previous     engine.Seeds `json:"previous"`
	PreviousHash string       `json:"previous_hash"`
	LastNonce    uint64       `json:"last_nonce"`
	NextHash     string       `json:"next_hash"`
	NextClient   string       `json:"next_client_seed"`
	SessionID    string       `json:"session_id"`
}
