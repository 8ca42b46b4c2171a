// Package rolechange implements role assignment and the request/approve/reject
// workflow for promoting users, gated by the assignment matrix and paired with
// audit writes.
package rolechange

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/solvio/solvio-core/internal/rbac"
)

var (
	// ErrRequestNotFound is returned when no request exists for an id
	ErrRequestNotFound = errors.New("role change request not found")
	// ErrAlreadyProcessed is returned when a terminal request is transitioned again
	ErrAlreadyProcessed = errors.New("role change request already processed")
)

// Status is the request state. Pending transitions exactly once to Approved
// or Rejected; terminal states are final.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Request is a pending or decided role change request
type Request struct {
	ID                string    `json:"id"`
	TargetUserID      string    `json:"target_user_id"`
	RequestedRole     rbac.Role `json:"requested_role"`
	RoleAtRequestTime rbac.Role `json:"role_at_request_time"`
	RequestedBy       string    `json:"requested_by"`
	Reason            string    `json:"reason"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	DecidedBy         string    `json:"decided_by,omitempty"`
	DecidedAt         time.Time `json:"decided_at,omitempty"`
	DecisionReason    string    `json:"decision_reason,omitempty"`
}

// NewRequest creates a pending request
func NewRequest(targetUserID string, requestedRole, currentRole rbac.Role, requestedBy, reason string) *Request {
	return &Request{
		ID:                uuid.New().String(),
		TargetUserID:      targetUserID,
		RequestedRole:     requestedRole,
		RoleAtRequestTime: currentRole,
		RequestedBy:       requestedBy,
		Reason:            reason,
		Status:            StatusPending,
		CreatedAt:         time.Now().UTC(),
	}
}

// Decision carries the fields recorded when a request leaves Pending
type Decision struct {
	Status    Status
	DecidedBy string
	DecidedAt time.Time
	Reason    string
}

// RequestStore persists role change requests. Transition is the only way out
// of Pending and must be atomic: implementations return ErrAlreadyProcessed
// when the request is no longer pending.
type RequestStore interface {
	Create(ctx context.Context, req *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	Transition(ctx context.Context, id string, decision Decision) error
	ListPending(ctx context.Context) ([]*Request, error)
}
