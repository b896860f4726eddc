package api

import (
	"github.com/MJE43/craps-pf-go/internal/games"
	"github.com/MJE43/craps-pf-go/internal/scripting"
	"github.com/MJE43/craps-pf-go/internal/store"
	"github.com/MJE43/craps-pf-go/internal/table"
)

// APIError is the JSON body of every error response.
type APIError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e APIError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeInvalidSeed   = "invalid_seed"
	ErrTypeInvalidNonce  = "invalid_nonce"
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeValidation    = "validation_error"

	// Table errors
	ErrTypeInvalidBet        = "invalid_bet"
	ErrTypeInsufficientFunds = "insufficient_funds"
	ErrTypeBettingClosed     = "betting_closed"
	ErrTypeGameOver          = "game_over"
	ErrTypeRollNotAllowed    = "roll_not_allowed"
	ErrTypeRollInFlight      = "roll_in_flight"
	ErrTypeAutoplay          = "autoplay_error"

	// Game-related errors
	ErrTypeGameNotFound   = "game_not_found"
	ErrTypeGameEvaluation = "game_evaluation_error"

	// Storage errors
	ErrTypeNotFound = "not_found"

	// System errors
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryTable      ErrorCategory = "table"
	CategoryGame       ErrorCategory = "game"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidSeed, ErrTypeInvalidNonce, ErrTypeInvalidParams, ErrTypeValidation:
		return CategoryValidation
	case ErrTypeInvalidBet, ErrTypeInsufficientFunds, ErrTypeBettingClosed, ErrTypeGameOver,
		ErrTypeRollNotAllowed, ErrTypeRollInFlight, ErrTypeAutoplay:
		return CategoryTable
	case ErrTypeGameNotFound, ErrTypeGameEvaluation:
		return CategoryGame
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// BetRequest places a pass-line bet
type BetRequest struct {
	Amount int `json:"amount"`
}

// RollRequest throws the dice. With Wait the response carries the settled roll.
type RollRequest struct {
	Wait bool `json:"wait"`
}

// RollResponse is returned by POST /rolls
type RollResponse struct {
	Nonce uint64      `json:"nonce"`
	Roll  *table.Roll `json:"roll,omitempty"`
	State table.State `json:"state"`
}

// RotateSeedRequest replaces the server seed; an empty client seed keeps the current one
type RotateSeedRequest struct {
	ClientSeed string `json:"client_seed"`
}

// VerifyRequest represents a single nonce verification request. When the
// server seed is omitted it is looked up from revealed seeds by hash.
type VerifyRequest struct {
	Game           string         `json:"game"`
	Seeds          games.Seeds    `json:"seeds"`
	ServerSeedHash string         `json:"server_seed_hash,omitempty"`
	Nonce          uint64         `json:"nonce"`
	Params         map[string]any `json:"params,omitempty"`
}

// VerifyResponse represents a single nonce verification response
type VerifyResponse struct {
	Nonce         uint64           `json:"nonce"`
	GameResult    games.GameResult `json:"game_result"`
	EngineVersion string           `json:"engine_version"`
	Echo          VerifyRequest    `json:"echo"`
}

// GamesResponse represents the games metadata response
type GamesResponse struct {
	Games         []games.GameSpec `json:"games"`
	EngineVersion string           `json:"engine_version"`
}

// SeedHashRequest represents a seed hashing request
type SeedHashRequest struct {
	ServerSeed string `json:"server_seed"`
}

// SeedHashResponse represents a seed hashing response
type SeedHashResponse struct {
	Hash          string `json:"hash"`
	EngineVersion string `json:"engine_version"`
}

// SessionsResponse lists recorded sessions
type SessionsResponse struct {
	Sessions []store.Session `json:"sessions"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

// AutoplayRunsResponse is a page of past autoplay runs
type AutoplayRunsResponse struct {
	Runs   []store.AutoplayRun `json:"runs"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// AutoplayRequest starts a strategy script
type AutoplayRequest struct {
	Script string `json:"script"`
}

// AutoplayResponse reports the autoplay engine
type AutoplayResponse struct {
	Engine scripting.EngineSnapshot `json:"engine"`
	Logs   []scripting.LogEntry     `json:"logs"`
}
