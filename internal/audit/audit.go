// Package audit provides append-only audit logging for role mutations with
// HMAC-SHA256 chain linking for tamper evidence. Entries are never updated or
// deleted by this core.
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/solvio/solvio-core/internal/rbac"
)

// Action constants for audit entries
const (
	ActionRoleAssign     = "role.assign"
	ActionRoleRemove     = "role.remove"
	ActionRequestCreate  = "role.request_create"
	ActionRequestApprove = "role.request_approve"
	ActionRequestReject  = "role.request_reject"
	ActionSignIn         = "auth.sign_in"
	ActionSignOut        = "auth.sign_out"
	ActionBootstrap      = "bootstrap.elevated"
)

// Entry is a single append-only audit record of a role mutation
type Entry struct {
	ID           string    `json:"id"`
	Action       string    `json:"action"`
	PerformedBy  string    `json:"performed_by"`
	TargetUserID string    `json:"target_user_id"`
	PreviousRole rbac.Role `json:"previous_role,omitempty"`
	NewRole      rbac.Role `json:"new_role,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`

	// Tamper evidence - HMAC chain linking
	PreviousHash string `json:"previous_hash"`
	Hash         string `json:"hash"`
}

// NewEntry creates an audit entry with a generated ID and UTC timestamp
func NewEntry(action, performedBy, targetUserID string) *Entry {
	return &Entry{
		ID:           uuid.New().String(),
		Action:       action,
		PerformedBy:  performedBy,
		TargetUserID: targetUserID,
		Timestamp:    time.Now().UTC(),
	}
}

// WithRoles records the role transition captured by the entry
func (e *Entry) WithRoles(previous, next rbac.Role) *Entry {
	e.PreviousRole = previous
	e.NewRole = next
	return e
}

// WithReason records the caller-supplied reason
func (e *Entry) WithReason(reason string) *Entry {
	e.Reason = reason
	return e
}

// canonicalBytes creates a canonical byte representation for hashing.
// Field order matters for consistency.
func (e *Entry) canonicalBytes() []byte {
	canonical := []string{
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Action,
		e.PerformedBy,
		e.TargetUserID,
		string(e.PreviousRole),
		string(e.NewRole),
		e.Reason,
		e.PreviousHash,
	}
	return []byte(strings.Join(canonical, "|"))
}

// ComputeHash calculates the HMAC-SHA256 hash for this entry
func (e *Entry) ComputeHash(secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(e.canonicalBytes())
	return hex.EncodeToString(h.Sum(nil))
}

// Sink is the narrow interface role mutations write through
type Sink interface {
	// Append adds an entry to the log. The implementation seals the entry
	// into the hash chain before persisting it.
	Append(ctx context.Context, entry *Entry) error
}

// Verifier can replay a store's chain and confirm no entry was altered
type Verifier interface {
	// VerifyChain walks the full log in order and returns an error naming
	// the first entry whose hash does not match
	VerifyChain(ctx context.Context) error
}

// seal links the entry to the previous hash and computes its own
func seal(entry *Entry, previousHash, secret string) {
	entry.PreviousHash = previousHash
	entry.Hash = entry.ComputeHash(secret)
}

// verifyEntries checks an ordered slice of entries against the chain
func verifyEntries(entries []*Entry, secret string) error {
	previousHash := ""
	for i, entry := range entries {
		if entry.PreviousHash != previousHash {
			return fmt.Errorf("audit chain broken at entry %d (%s): previous hash mismatch", i, entry.ID)
		}
		if entry.ComputeHash(secret) != entry.Hash {
			return fmt.Errorf("audit chain broken at entry %d (%s): hash mismatch", i, entry.ID)
		}
		previousHash = entry.Hash
	}
	return nil
}
