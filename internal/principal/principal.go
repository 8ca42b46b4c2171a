// Package principal defines the authenticated identity snapshot and the
// authorization guard queried by feature surfaces.
package principal

import (
	"time"

	"github.com/solvio/solvio-core/internal/rbac"
)

// Principal is the authenticated identity as known to the session core.
// It is built on sign-in, replaced wholesale on every successful revalidation
// and destroyed on sign-out. The session manager is its single writer; every
// other component receives read-only snapshots.
type Principal struct {
	ID                string            `json:"id"`
	Email             string            `json:"email"`
	Role              rbac.Role         `json:"role"`
	Permissions       []rbac.Permission `json:"permissions"`
	IsActive          bool              `json:"is_active"`
	LastRevalidatedAt time.Time         `json:"last_revalidated_at"`
}

// New builds a Principal for a user, resolving the permission set from the
// role table
func New(id, email string, role rbac.Role, isActive bool, revalidatedAt time.Time) *Principal {
	return &Principal{
		ID:                id,
		Email:             email,
		Role:              role,
		Permissions:       rbac.PermissionsFor(role),
		IsActive:          isActive,
		LastRevalidatedAt: revalidatedAt,
	}
}

// Clone returns a deep copy so callers can never share mutable state with the
// session manager's live principal
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Permissions = make([]rbac.Permission, len(p.Permissions))
	copy(cp.Permissions, p.Permissions)
	return &cp
}

// SamePrivileges reports whether another principal carries the identical role
// and permission set. Used by revalidation to detect no-op fetches.
func (p *Principal) SamePrivileges(other *Principal) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.Role != other.Role || len(p.Permissions) != len(other.Permissions) {
		return false
	}
	seen := make(map[rbac.Permission]struct{}, len(p.Permissions))
	for _, perm := range p.Permissions {
		seen[perm] = struct{}{}
	}
	for _, perm := range other.Permissions {
		if _, ok := seen[perm]; !ok {
			return false
		}
	}
	return true
}
