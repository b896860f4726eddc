// Package store persists table sessions and their roll ledger in SQLite.
// Wallet state is never loaded back from it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

var ErrNotFound = errors.New("not found")

// --------- Data models ---------

// Session is one server seed's lifetime at the table.
type Session struct {
	ID               uuid.UUID  `json:"id"`
	ServerSeedHashed string     `json:"server_seed_hashed"`
	ClientSeed       string     `json:"client_seed"`
	StartWallet      int        `json:"start_wallet"`
	CreatedAt        time.Time  `json:"created_at"`
	LastSeenAt       time.Time  `json:"last_seen_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	TotalRolls       int64      `json:"total_rolls"`
}

// Roll is one settled throw and what it did to the round.
type Roll struct {
	ID          int64     `json:"id"`
	SessionID   uuid.UUID `json:"session_id"`
	Nonce       uint64    `json:"nonce"`
	Die1        int       `json:"die1"`
	Die2        int       `json:"die2"`
	Total       int       `json:"total"`
	PhaseBefore string    `json:"phase_before"`
	PointBefore int       `json:"point_before"`
	Kind        string    `json:"kind"`
	Outcome     string    `json:"outcome"`
	Bet         int       `json:"bet"`
	AmountDelta int       `json:"amount_delta"`
	WalletAfter int       `json:"wallet_after"`
	Frames      int       `json:"frames"`
	Forced      bool      `json:"forced"`
	CreatedAt   time.Time `json:"created_at"`
}

// RollsPage is a page of a session's ledger.
type RollsPage struct {
	Rolls      []Roll `json:"rolls"`
	TotalCount int64  `json:"totalCount"`
	Page       int    `json:"page"`
	PerPage    int    `json:"perPage"`
	TotalPages int    `json:"totalPages"`
}

// --------- Store ---------

type Store struct {
	db *sql.DB
}

// New opens/creates a SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping checks the connection for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --------- Migrations ---------

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			server_seed_hashed TEXT NOT NULL,
			client_seed TEXT NOT NULL,
			start_wallet INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			last_seen_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON sessions(last_seen_at DESC);`,

		`CREATE TABLE IF NOT EXISTS rolls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			nonce INTEGER NOT NULL,
			die1 INTEGER NOT NULL,
			die2 INTEGER NOT NULL,
			total INTEGER NOT NULL,
			phase_before TEXT NOT NULL,
			point_before INTEGER NOT NULL DEFAULT 0,
			kind TEXT NOT NULL,
			outcome TEXT NOT NULL,
			bet INTEGER NOT NULL,
			amount_delta INTEGER NOT NULL,
			wallet_after INTEGER NOT NULL,
			frames INTEGER NOT NULL,
			forced INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(session_id, nonce),
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rolls_session_nonce ON rolls(session_id, nonce);`,

		// Revealed server seeds, keyed by their published hash
		`CREATE TABLE IF NOT EXISTS seed_aliases (
			server_seed_hashed TEXT PRIMARY KEY,
			server_seed_plain  TEXT NOT NULL,
			first_seen TIMESTAMP NOT NULL,
			last_seen  TIMESTAMP NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS autoplay_runs (
			id TEXT PRIMARY KEY,
			script TEXT NOT NULL,
			start_balance INTEGER NOT NULL,
			final_balance INTEGER,
			state TEXT NOT NULL,
			stop_reason TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			bets INTEGER NOT NULL DEFAULT 0,
			wins INTEGER NOT NULL DEFAULT 0,
			losses INTEGER NOT NULL DEFAULT 0,
			wagered TEXT NOT NULL DEFAULT '0',
			profit TEXT NOT NULL DEFAULT '0',
			highest_streak INTEGER NOT NULL DEFAULT 0,
			lowest_streak INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_autoplay_runs_created ON autoplay_runs(created_at DESC);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// --------- helpers ---------

func isConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "unique constraint")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
