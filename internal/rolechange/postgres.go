package rolechange

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/solvio/solvio-core/internal/rbac"
)

// Schema is the DDL for the role change request table
const Schema = `
CREATE TABLE IF NOT EXISTS role_change_requests (
	id                   TEXT PRIMARY KEY,
	target_user_id       TEXT NOT NULL,
	requested_role       TEXT NOT NULL,
	role_at_request_time TEXT NOT NULL,
	requested_by         TEXT NOT NULL,
	reason               TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'pending',
	created_at           TIMESTAMPTZ NOT NULL,
	decided_by           TEXT NOT NULL DEFAULT '',
	decided_at           TIMESTAMPTZ,
	decision_reason      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_role_change_requests_status ON role_change_requests (status);
`

// PostgresRequestStore implements RequestStore on PostgreSQL
type PostgresRequestStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRequestStore creates a Postgres-backed request store
func NewPostgresRequestStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresRequestStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresRequestStore{
		db:     db,
		logger: logger.With(zap.String("component", "request-store")),
	}
}

func (s *PostgresRequestStore) Create(ctx context.Context, req *Request) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO role_change_requests
			(id, target_user_id, requested_role, role_at_request_time, requested_by, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.TargetUserID, string(req.RequestedRole), string(req.RoleAtRequestTime),
		req.RequestedBy, req.Reason, string(req.Status), req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create role change request: %w", err)
	}
	return nil
}

func (s *PostgresRequestStore) Get(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, target_user_id, requested_role, role_at_request_time, requested_by,
		       reason, status, created_at, decided_by, decided_at, decision_reason
		FROM role_change_requests WHERE id = $1`, id)

	var req Request
	var requestedRole, roleAtRequest, status string
	var decidedAt *time.Time
	err := row.Scan(&req.ID, &req.TargetUserID, &requestedRole, &roleAtRequest, &req.RequestedBy,
		&req.Reason, &status, &req.CreatedAt, &req.DecidedBy, &decidedAt, &req.DecisionReason)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get role change request: %w", err)
	}
	req.RequestedRole = rbac.Role(requestedRole)
	req.RoleAtRequestTime = rbac.Role(roleAtRequest)
	req.Status = Status(status)
	if decidedAt != nil {
		req.DecidedAt = *decidedAt
	}
	return &req, nil
}

// Transition moves a pending request to a terminal state. The status
// precondition is enforced in the UPDATE itself so a concurrent decision on
// the same request cannot double-process it.
func (s *PostgresRequestStore) Transition(ctx context.Context, id string, decision Decision) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE role_change_requests
		SET status = $1, decided_by = $2, decided_at = $3, decision_reason = $4
		WHERE id = $5 AND status = $6`,
		string(decision.Status), decision.DecidedBy, decision.DecidedAt, decision.Reason,
		id, string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to transition role change request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrAlreadyProcessed
	}
	return nil
}

func (s *PostgresRequestStore) ListPending(ctx context.Context) ([]*Request, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, target_user_id, requested_role, role_at_request_time, requested_by,
		       reason, status, created_at, decided_by, decided_at, decision_reason
		FROM role_change_requests WHERE status = $1 ORDER BY created_at`, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	var pending []*Request
	for rows.Next() {
		var req Request
		var requestedRole, roleAtRequest, status string
		var decidedAt *time.Time
		if err := rows.Scan(&req.ID, &req.TargetUserID, &requestedRole, &roleAtRequest, &req.RequestedBy,
			&req.Reason, &status, &req.CreatedAt, &req.DecidedBy, &decidedAt, &req.DecisionReason); err != nil {
			return nil, fmt.Errorf("failed to scan role change request: %w", err)
		}
		req.RequestedRole = rbac.Role(requestedRole)
		req.RoleAtRequestTime = rbac.Role(roleAtRequest)
		req.Status = Status(status)
		if decidedAt != nil {
			req.DecidedAt = *decidedAt
		}
		pending = append(pending, &req)
	}
	return pending, rows.Err()
}
