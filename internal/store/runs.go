package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AutoplayRun summarizes one strategy script run. Its rolls are in the
// ledger of whichever sessions were open at the time.
type AutoplayRun struct {
	ID            uuid.UUID       `json:"id"`
	Script        string          `json:"script"`
	StartBalance  int             `json:"start_balance"`
	FinalBalance  *int            `json:"final_balance,omitempty"`
	State         string          `json:"state"`
	StopReason    string          `json:"stop_reason,omitempty"`
	Error         string          `json:"error,omitempty"`
	Bets          int             `json:"bets"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	Wagered       decimal.Decimal `json:"wagered"`
	Profit        decimal.Decimal `json:"profit"`
	HighestStreak int             `json:"highest_streak"`
	LowestStreak  int             `json:"lowest_streak"`
	CreatedAt     time.Time       `json:"created_at"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
}

// CreateRun records the start of a run.
func (s *Store) CreateRun(ctx context.Context, r AutoplayRun) error {
	if r.ID == uuid.Nil {
		return errors.New("run id required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO autoplay_runs(id, script, start_balance, state, created_at)
		VALUES(?, ?, ?, ?, ?)`,
		r.ID.String(), r.Script, r.StartBalance, r.State, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun stores a run's final statistics and stamps its end time.
func (s *Store) FinishRun(ctx context.Context, r AutoplayRun) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE autoplay_runs SET
			final_balance=?, state=?, stop_reason=?, error=?,
			bets=?, wins=?, losses=?, wagered=?, profit=?,
			highest_streak=?, lowest_streak=?, ended_at=?
		WHERE id=?`,
		r.FinalBalance, r.State, r.StopReason, r.Error,
		r.Bets, r.Wins, r.Losses, r.Wagered, r.Profit,
		r.HighestStreak, r.LowestStreak, time.Now().UTC(),
		r.ID.String())
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]AutoplayRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, script, start_balance, final_balance, state, stop_reason, error,
		       bets, wins, losses, wagered, profit, highest_streak, lowest_streak,
		       created_at, ended_at
		FROM autoplay_runs
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AutoplayRun
	for rows.Next() {
		var (
			r     AutoplayRun
			id    string
			final sql.NullInt64
			ended sql.NullTime
		)
		if err := rows.Scan(&id, &r.Script, &r.StartBalance, &final, &r.State, &r.StopReason, &r.Error,
			&r.Bets, &r.Wins, &r.Losses, &r.Wagered, &r.Profit, &r.HighestStreak, &r.LowestStreak,
			&r.CreatedAt, &ended); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		if final.Valid {
			v := int(final.Int64)
			r.FinalBalance = &v
		}
		if ended.Valid {
			t := ended.Time
			r.EndedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
