package craps

import (
	"encoding/json"
	"fmt"
)

// Kind classifies a resolved roll.
type Kind uint8

const (
	NoDecision Kind = iota
	Natural
	Craps
	PointSet
	PointMade
	SevenOut
)

var kindNames = [...]string{
	NoDecision: "no_decision",
	Natural:    "natural",
	Craps:      "craps",
	PointSet:   "point_set",
	PointMade:  "point_made",
	SevenOut:   "seven_out",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	i, err := unmarshalName(data, kindNames[:])
	if err != nil {
		return fmt.Errorf("kind: %w", err)
	}
	*k = Kind(i)
	return nil
}

// Outcome is the result of the bet for a roll.
type Outcome uint8

const (
	None Outcome = iota
	Win
	Lose
)

func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Lose:
		return "lose"
	default:
		return "none"
	}
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

var outcomeNames = []string{None: "none", Win: "win", Lose: "lose"}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	i, err := unmarshalName(data, outcomeNames)
	if err != nil {
		return fmt.Errorf("outcome: %w", err)
	}
	*o = Outcome(i)
	return nil
}

// Resolution describes what a roll did to the round.
type Resolution struct {
	Total       int     `json:"total"`
	Kind        Kind    `json:"kind"`
	Outcome     Outcome `json:"outcome"`
	Point       int     `json:"point,omitempty"`
	AmountDelta int     `json:"amount_delta"` // net change to the bettor
}

// RoundOver reports whether the roll ended the round.
func (r Resolution) RoundOver() bool {
	return r.Outcome != None
}
