package rolechange

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/solvio/solvio-core/internal/audit"
	apperrors "github.com/solvio/solvio-core/internal/common/errors"
	"github.com/solvio/solvio-core/internal/common/events"
	"github.com/solvio/solvio-core/internal/identity"
	"github.com/solvio/solvio-core/internal/metrics"
	"github.com/solvio/solvio-core/internal/rbac"
)

// Service executes role mutations. Every mutation passes the assignment
// matrix before any state changes, and every applied mutation carries an
// audit entry: a mutation whose audit write fails is rolled back.
type Service struct {
	users    identity.UserStore
	requests RequestStore
	sink     audit.Sink
	bus      events.Bus
	logger   *zap.Logger
}

// NewService creates a role change service
func NewService(users identity.UserStore, requests RequestStore, sink audit.Sink, bus events.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:    users,
		requests: requests,
		sink:     sink,
		bus:      bus,
		logger:   logger.With(zap.String("component", "role-change")),
	}
}

// AssignRole sets the target's role after validating the assignment matrix
// against the assigner's own stored role. A matrix violation is a hard
// failure with no state mutation and no audit entry.
func (s *Service) AssignRole(ctx context.Context, targetUserID string, newRole rbac.Role, assignedBy, reason string) error {
	return s.mutate(ctx, audit.ActionRoleAssign, targetUserID, newRole, assignedBy, reason)
}

// RemoveRole demotes the target to the standard role. An elevated account can
// never be demoted through this path, regardless of who asks.
func (s *Service) RemoveRole(ctx context.Context, targetUserID, removedBy string) error {
	currentRole, err := s.users.GetRole(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, identity.ErrProfileNotFound) {
			return apperrors.UserNotFound(targetUserID)
		}
		return apperrors.NetworkUnavailable("fetch target role", err)
	}
	if currentRole == rbac.RoleElevated {
		metrics.RecordRoleChange("remove", metrics.ResultDenied)
		return apperrors.PolicyViolation("the elevated role cannot be removed")
	}
	return s.mutate(ctx, audit.ActionRoleRemove, targetUserID, rbac.RoleStandard, removedBy, "")
}

// mutate is the shared assignment path: matrix check, role write, audit
// append, rollback of the role write if the append fails.
func (s *Service) mutate(ctx context.Context, action, targetUserID string, newRole rbac.Role, actorID, reason string) error {
	metricAction := "assign"
	if action == audit.ActionRoleRemove {
		metricAction = "remove"
	}

	if !rbac.IsValidRole(string(newRole)) {
		metrics.RecordRoleChange(metricAction, metrics.ResultDenied)
		return apperrors.PolicyViolation("unknown role: " + string(newRole))
	}
	if newRole == rbac.RoleElevated {
		metrics.RecordRoleChange(metricAction, metrics.ResultDenied)
		return apperrors.PolicyViolation("the elevated role is established at bootstrap and can never be assigned")
	}

	actorRole, err := s.users.GetRole(ctx, actorID)
	if err != nil {
		if errors.Is(err, identity.ErrProfileNotFound) {
			return apperrors.UserNotFound(actorID)
		}
		return apperrors.NetworkUnavailable("fetch assigner role", err)
	}
	if !rbac.IsAssignmentAllowed(actorRole, newRole) {
		metrics.RecordRoleChange(metricAction, metrics.ResultDenied)
		return apperrors.PermissionDenied("assign role " + string(newRole))
	}

	previousRole, err := s.users.GetRole(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, identity.ErrProfileNotFound) {
			return apperrors.UserNotFound(targetUserID)
		}
		return apperrors.NetworkUnavailable("fetch target role", err)
	}
	if previousRole == rbac.RoleElevated {
		metrics.RecordRoleChange(metricAction, metrics.ResultDenied)
		return apperrors.PolicyViolation("an elevated account can never be demoted")
	}
	if previousRole == newRole {
		metrics.RecordRoleChange(metricAction, metrics.ResultUnchanged)
		return nil
	}

	if err := s.users.SetRole(ctx, targetUserID, newRole); err != nil {
		metrics.RecordRoleChange(metricAction, metrics.ResultFailure)
		return apperrors.NetworkUnavailable("set role", err)
	}

	entry := audit.NewEntry(action, actorID, targetUserID).
		WithRoles(previousRole, newRole).
		WithReason(reason)
	if err := s.sink.Append(ctx, entry); err != nil {
		// The mutation and its audit entry stand or fall together
		if restoreErr := s.users.SetRole(ctx, targetUserID, previousRole); restoreErr != nil {
			s.logger.Error("failed to restore role after audit write failure",
				zap.String("target_user_id", targetUserID),
				zap.String("previous_role", string(previousRole)),
				zap.Error(restoreErr),
			)
		}
		metrics.RecordRoleChange(metricAction, metrics.ResultFailure)
		return apperrors.NetworkUnavailable("append audit entry", err)
	}

	metrics.RecordRoleChange(metricAction, metrics.ResultSuccess)
	s.bus.Publish(ctx, events.NewEvent(events.TypeRoleChanged, targetUserID, map[string]interface{}{
		"previous_role": string(previousRole),
		"new_role":      string(newRole),
		"changed_by":    actorID,
	}))

	s.logger.Info("role changed",
		zap.String("target_user_id", targetUserID),
		zap.String("previous_role", string(previousRole)),
		zap.String("new_role", string(newRole)),
		zap.String("changed_by", actorID),
	)
	return nil
}

// CreateRequest opens a pending role change request for later approval
func (s *Service) CreateRequest(ctx context.Context, targetUserID string, requestedRole rbac.Role, requestedBy, reason string) (*Request, error) {
	if !rbac.IsValidRole(string(requestedRole)) {
		return nil, apperrors.PolicyViolation("unknown role: " + string(requestedRole))
	}
	if requestedRole == rbac.RoleElevated {
		return nil, apperrors.PolicyViolation("the elevated role can never be requested")
	}

	currentRole, err := s.users.GetRole(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, identity.ErrProfileNotFound) {
			return nil, apperrors.UserNotFound(targetUserID)
		}
		return nil, apperrors.NetworkUnavailable("fetch target role", err)
	}

	req := NewRequest(targetUserID, requestedRole, currentRole, requestedBy, reason)
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, apperrors.NetworkUnavailable("create request", err)
	}

	entry := audit.NewEntry(audit.ActionRequestCreate, requestedBy, targetUserID).
		WithRoles(currentRole, requestedRole).
		WithReason(reason)
	if err := s.sink.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to append request-created audit entry", zap.Error(err))
	}
	metrics.RecordRequestTransition("created")

	s.logger.Info("role change request created",
		zap.String("request_id", req.ID),
		zap.String("target_user_id", targetUserID),
		zap.String("requested_role", string(requestedRole)),
	)
	return req, nil
}

// ApproveRequest transitions a pending request to Approved and applies the
// assignment. The assignment is validated against the approver's role, not
// the original requester's. A request already decided fails with a
// distinguishable already-processed error, whichever terminal state it is in.
func (s *Service) ApproveRequest(ctx context.Context, requestID, approvedBy string) error {
	req, err := s.lookupPending(ctx, requestID)
	if err != nil {
		return err
	}

	// Apply the assignment first: a matrix violation must leave the request
	// pending so a sufficiently privileged approver can still decide it
	if err := s.AssignRole(ctx, req.TargetUserID, req.RequestedRole, approvedBy, req.Reason); err != nil {
		return err
	}

	decision := Decision{
		Status:    StatusApproved,
		DecidedBy: approvedBy,
		DecidedAt: time.Now().UTC(),
	}
	if err := s.requests.Transition(ctx, requestID, decision); err != nil {
		return s.transitionError(requestID, err)
	}

	entry := audit.NewEntry(audit.ActionRequestApprove, approvedBy, req.TargetUserID).
		WithRoles(req.RoleAtRequestTime, req.RequestedRole).
		WithReason(req.Reason)
	if err := s.sink.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to append request-approved audit entry", zap.Error(err))
	}
	metrics.RecordRequestTransition("approved")

	s.logger.Info("role change request approved",
		zap.String("request_id", requestID),
		zap.String("approved_by", approvedBy),
	)
	return nil
}

// RejectRequest transitions a pending request to Rejected. No role mutation
// occurs, but the decision is still audited.
func (s *Service) RejectRequest(ctx context.Context, requestID, rejectedBy, reason string) error {
	req, err := s.lookupPending(ctx, requestID)
	if err != nil {
		return err
	}

	decision := Decision{
		Status:    StatusRejected,
		DecidedBy: rejectedBy,
		DecidedAt: time.Now().UTC(),
		Reason:    reason,
	}
	if err := s.requests.Transition(ctx, requestID, decision); err != nil {
		return s.transitionError(requestID, err)
	}

	entry := audit.NewEntry(audit.ActionRequestReject, rejectedBy, req.TargetUserID).
		WithReason(reason)
	if err := s.sink.Append(ctx, entry); err != nil {
		s.logger.Warn("failed to append request-rejected audit entry", zap.Error(err))
	}
	metrics.RecordRequestTransition("rejected")

	s.logger.Info("role change request rejected",
		zap.String("request_id", requestID),
		zap.String("rejected_by", rejectedBy),
	)
	return nil
}

// GetRequest returns a request by id
func (s *Service) GetRequest(ctx context.Context, requestID string) (*Request, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil, apperrors.RequestNotFound(requestID)
		}
		return nil, apperrors.NetworkUnavailable("fetch request", err)
	}
	return req, nil
}

// ListPendingRequests returns all requests still awaiting a decision
func (s *Service) ListPendingRequests(ctx context.Context) ([]*Request, error) {
	pending, err := s.requests.ListPending(ctx)
	if err != nil {
		return nil, apperrors.NetworkUnavailable("list pending requests", err)
	}
	return pending, nil
}

func (s *Service) lookupPending(ctx context.Context, requestID string) (*Request, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil, apperrors.RequestNotFound(requestID)
		}
		return nil, apperrors.NetworkUnavailable("fetch request", err)
	}
	if req.Status != StatusPending {
		return nil, apperrors.RequestAlreadyProcessed(requestID, string(req.Status))
	}
	return req, nil
}

func (s *Service) transitionError(requestID string, err error) error {
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		return apperrors.RequestAlreadyProcessed(requestID, "")
	case errors.Is(err, ErrRequestNotFound):
		return apperrors.RequestNotFound(requestID)
	default:
		return apperrors.NetworkUnavailable("transition request", err)
	}
}
