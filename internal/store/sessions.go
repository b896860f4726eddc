package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSession stores a new session. A zero ID is replaced with a fresh one.
func (s *Store) CreateSession(ctx context.Context, sess Session) (Session, error) {
	if sess.ServerSeedHashed == "" {
		return Session{}, errors.New("missing server seed hash")
	}
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.LastSeenAt = sess.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions(id, server_seed_hashed, client_seed, start_wallet, created_at, last_seen_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		sess.ID.String(), sess.ServerSeedHashed, sess.ClientSeed, sess.StartWallet, sess.CreatedAt, sess.LastSeenAt)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// EndSession closes a session and records its revealed server seed.
func (s *Store) EndSession(ctx context.Context, id uuid.UUID, serverSeed string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended_at=?, last_seen_at=? WHERE id=?`, now, now, id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}

	var hashed string
	if err := s.db.QueryRowContext(ctx, `SELECT server_seed_hashed FROM sessions WHERE id=?`, id.String()).Scan(&hashed); err != nil {
		return err
	}
	return s.UpsertSeedAlias(ctx, hashed, serverSeed)
}

// GetSession returns session metadata including its roll count.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.server_seed_hashed, s.client_seed, s.start_wallet, s.created_at, s.last_seen_at, s.ended_at,
		       (SELECT COUNT(*) FROM rolls r WHERE r.session_id = s.id)
		FROM sessions s
		WHERE s.id=?`, id.String())
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, err
}

// ListSessions returns sessions ordered by last_seen_at desc.
func (s *Store) ListSessions(ctx context.Context, limit, offset int) ([]Session, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.server_seed_hashed, s.client_seed, s.start_wallet, s.created_at, s.last_seen_at, s.ended_at,
		       COALESCE(r.cnt, 0)
		FROM sessions s
		LEFT JOIN (
			SELECT session_id, COUNT(*) AS cnt FROM rolls GROUP BY session_id
		) r ON s.id = r.session_id
		ORDER BY s.last_seen_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpsertSeedAlias links a hashed server seed to its plain text.
func (s *Store) UpsertSeedAlias(ctx context.Context, hashed, plain string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seed_aliases(server_seed_hashed, server_seed_plain, first_seen, last_seen)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(server_seed_hashed) DO UPDATE SET
			server_seed_plain=excluded.server_seed_plain,
			last_seen=excluded.last_seen
	`, hashed, plain, now, now)
	return err
}

// LookupSeedAlias returns the plain seed for a hash if it has been revealed.
func (s *Store) LookupSeedAlias(ctx context.Context, hashed string) (string, bool, error) {
	var plain string
	err := s.db.QueryRowContext(ctx, `SELECT server_seed_plain FROM seed_aliases WHERE server_seed_hashed=?`, hashed).Scan(&plain)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	return plain, err == nil, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (Session, error) {
	var (
		sess  Session
		ended sql.NullTime
	)
	if err := r.Scan(&sess.ID, &sess.ServerSeedHashed, &sess.ClientSeed, &sess.StartWallet,
		&sess.CreatedAt, &sess.LastSeenAt, &ended, &sess.TotalRolls); err != nil {
		return Session{}, err
	}
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	return sess, nil
}
