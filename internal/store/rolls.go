package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

var ErrDuplicateRoll = errors.New("roll already recorded for nonce")

// InsertRoll appends a roll to its session's ledger.
func (s *Store) InsertRoll(ctx context.Context, r Roll) (int64, error) {
	if r.SessionID == uuid.Nil {
		return 0, errors.New("missing session id")
	}
	if r.Total < 2 || r.Total > 12 {
		return 0, fmt.Errorf("invalid total %d", r.Total)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rolls(
			session_id, nonce, die1, die2, total, phase_before, point_before,
			kind, outcome, bet, amount_delta, wallet_after, frames, forced, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID.String(), r.Nonce, r.Die1, r.Die2, r.Total, r.PhaseBefore, r.PointBefore,
		r.Kind, r.Outcome, r.Bet, r.AmountDelta, r.WalletAfter, r.Frames, boolToInt(r.Forced), r.CreatedAt)
	if err != nil {
		if isConstraintErr(err) {
			return 0, fmt.Errorf("nonce %d: %w", r.Nonce, ErrDuplicateRoll)
		}
		return 0, err
	}

	_, _ = s.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at=? WHERE id=?`, r.CreatedAt, r.SessionID.String())
	return res.LastInsertId()
}

// ListRolls returns a page of a session's rolls ordered by nonce.
func (s *Store) ListRolls(ctx context.Context, sessionID uuid.UUID, page, perPage int) (RollsPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 || perPage > 500 {
		perPage = 50
	}

	out := RollsPage{Page: page, PerPage: perPage, Rolls: []Roll{}}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rolls WHERE session_id=?`, sessionID.String()).Scan(&out.TotalCount); err != nil {
		return RollsPage{}, err
	}
	out.TotalPages = int((out.TotalCount + int64(perPage) - 1) / int64(perPage))

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, nonce, die1, die2, total, phase_before, point_before,
		       kind, outcome, bet, amount_delta, wallet_after, frames, forced, created_at
		FROM rolls
		WHERE session_id=?
		ORDER BY nonce ASC
		LIMIT ? OFFSET ?`, sessionID.String(), perPage, (page-1)*perPage)
	if err != nil {
		return RollsPage{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r      Roll
			forced int
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Nonce, &r.Die1, &r.Die2, &r.Total, &r.PhaseBefore, &r.PointBefore,
			&r.Kind, &r.Outcome, &r.Bet, &r.AmountDelta, &r.WalletAfter, &r.Frames, &forced, &r.CreatedAt); err != nil {
			return RollsPage{}, err
		}
		r.Forced = forced != 0
		out.Rolls = append(out.Rolls, r)
	}
	return out, rows.Err()
}

// ExportCSV writes all rolls for a session to the writer as CSV (header included).
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, sessionID uuid.UUID) error {
	if _, err := io.WriteString(w, "nonce,die1,die2,total,phase_before,point_before,kind,outcome,bet,amount_delta,wallet_after,frames,forced\n"); err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT nonce, die1, die2, total, phase_before, point_before, kind, outcome,
		       bet, amount_delta, wallet_after, frames, forced
		FROM rolls WHERE session_id=? ORDER BY nonce ASC`, sessionID.String())
	if err != nil {
		return err
	}
	defer rows.Close()

	var (
		nonce                                       uint64
		d1, d2, total, pointBefore                  int
		phase, kind, outcome                        string
		bet, delta, walletAfter, frames, forcedFlag int
	)
	for rows.Next() {
		if err := rows.Scan(&nonce, &d1, &d2, &total, &phase, &pointBefore, &kind, &outcome,
			&bet, &delta, &walletAfter, &frames, &forcedFlag); err != nil {
			return err
		}
		line := fmt.Sprintf("%d,%d,%d,%d,%s,%d,%s,%s,%d,%d,%d,%d,%t\n",
			nonce, d1, d2, total, phase, pointBefore, kind, outcome,
			bet, delta, walletAfter, frames, forcedFlag != 0)
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return rows.Err()
}
