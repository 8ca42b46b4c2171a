package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/solvio/solvio-core/internal/rbac"
)

// Schema is the DDL for the audit log table
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	seq           BIGSERIAL PRIMARY KEY,
	id            UUID NOT NULL UNIQUE,
	action        TEXT NOT NULL,
	performed_by  TEXT NOT NULL,
	target_user_id TEXT NOT NULL,
	previous_role TEXT NOT NULL DEFAULT '',
	new_role      TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT '',
	ts            TIMESTAMPTZ NOT NULL,
	previous_hash TEXT NOT NULL DEFAULT '',
	hash          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_target ON audit_log (target_user_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log (action);
`

// PostgresSink persists audit entries to PostgreSQL.
// Appends are serialized so the hash chain stays linear.
type PostgresSink struct {
	db     *pgxpool.Pool
	secret string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewPostgresSink creates a Postgres-backed audit sink
func NewPostgresSink(db *pgxpool.Pool, secret string, logger *zap.Logger) (*PostgresSink, error) {
	if secret == "" {
		return nil, fmt.Errorf("audit sink secret cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresSink{
		db:     db,
		secret: secret,
		logger: logger.With(zap.String("component", "audit-sink")),
	}, nil
}

// Append seals the entry against the last stored hash and inserts it
func (s *PostgresSink) Append(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var previousHash string
	err = tx.QueryRow(ctx, `SELECT hash FROM audit_log ORDER BY seq DESC LIMIT 1`).Scan(&previousHash)
	if err != nil && err != pgx.ErrNoRows {
		return fmt.Errorf("load last audit hash: %w", err)
	}

	seal(entry, previousHash, s.secret)

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_log (id, action, performed_by, target_user_id, previous_role, new_role, reason, ts, previous_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.ID, entry.Action, entry.PerformedBy, entry.TargetUserID,
		string(entry.PreviousRole), string(entry.NewRole), entry.Reason,
		entry.Timestamp, entry.PreviousHash, entry.Hash)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit audit entry: %w", err)
	}

	s.logger.Debug("appended audit entry",
		zap.String("id", entry.ID),
		zap.String("action", entry.Action),
		zap.String("target_user_id", entry.TargetUserID),
	)
	return nil
}

// ListByTarget returns entries for a target user in append order
func (s *PostgresSink) ListByTarget(ctx context.Context, targetUserID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, action, performed_by, target_user_id, previous_role, new_role, reason, ts, previous_hash, hash
		FROM audit_log WHERE target_user_id = $1 ORDER BY seq ASC LIMIT $2
	`, targetUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// VerifyChain walks the full log in order and fails on the first altered entry
func (s *PostgresSink) VerifyChain(ctx context.Context) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, action, performed_by, target_user_id, previous_role, new_role, reason, ts, previous_hash, hash
		FROM audit_log ORDER BY seq ASC
	`)
	if err != nil {
		return fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return err
	}
	return verifyEntries(entries, s.secret)
}

func scanEntries(rows pgx.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var e Entry
		var prevRole, newRole string
		if err := rows.Scan(&e.ID, &e.Action, &e.PerformedBy, &e.TargetUserID,
			&prevRole, &newRole, &e.Reason, &e.Timestamp, &e.PreviousHash, &e.Hash); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.PreviousRole = rbac.Role(prevRole)
		e.NewRole = rbac.Role(newRole)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
