// Package craps implements the pass-line betting flow of a craps table.
package craps

import (
	"encoding/json"
	"fmt"
)

// Phase is the stage of the current round.
type Phase uint8

const (
	AwaitingBet Phase = iota
	ComeOut
	PointEstablished
)

var phaseNames = [...]string{
	AwaitingBet:      "awaiting_bet",
	ComeOut:          "come_out",
	PointEstablished: "point",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	i, err := unmarshalName(data, phaseNames[:])
	if err != nil {
		return fmt.Errorf("phase: %w", err)
	}
	*p = Phase(i)
	return nil
}

// RoundState is the betting state of the single bettor at the table.
type RoundState struct {
	Wallet     int   `json:"wallet"`
	CurrentBet int   `json:"current_bet"`
	Point      int   `json:"point,omitempty"` // 0 when unset
	Phase      Phase `json:"phase"`
}

// IsPointNumber reports whether a total can become the point.
func IsPointNumber(total int) bool {
	switch total {
	case 4, 5, 6, 8, 9, 10:
		return true
	}
	return false
}

// unmarshalName decodes a JSON string and returns its index in names.
func unmarshalName(data []byte, names []string) (int, error) {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return 0, err
	}
	for i, n := range names {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown name %q", name)
}
