package principal

import (
	"github.com/solvio/solvio-core/internal/rbac"
)

// Source yields the current principal snapshot, or nil when unauthenticated.
// The session manager satisfies this interface.
type Source interface {
	Current() *Principal
}

// Guard answers authorization queries against the current principal. It holds
// no state of its own, performs no I/O and never returns an error: every query
// is false when there is no authenticated principal.
type Guard struct {
	source Source
}

// NewGuard creates a guard reading from the given principal source
func NewGuard(source Source) *Guard {
	return &Guard{source: source}
}

// HasRole reports whether the current principal holds exactly the given role
func (g *Guard) HasRole(role rbac.Role) bool {
	p := g.source.Current()
	if p == nil {
		return false
	}
	return p.Role == role
}

// HasAnyRole reports whether the current principal holds any of the given roles
func (g *Guard) HasAnyRole(roles ...rbac.Role) bool {
	p := g.source.Current()
	if p == nil {
		return false
	}
	for _, role := range roles {
		if p.Role == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether the current principal holds the permission
func (g *Guard) HasPermission(perm rbac.Permission) bool {
	p := g.source.Current()
	if p == nil {
		return false
	}
	return hasPermission(p, perm)
}

// HasAnyPermission reports whether the current principal holds at least one of
// the permissions
func (g *Guard) HasAnyPermission(perms ...rbac.Permission) bool {
	p := g.source.Current()
	if p == nil {
		return false
	}
	for _, perm := range perms {
		if hasPermission(p, perm) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the current principal holds every one of
// the permissions. Vacuously true for an empty list when authenticated.
func (g *Guard) HasAllPermissions(perms ...rbac.Permission) bool {
	p := g.source.Current()
	if p == nil {
		return false
	}
	for _, perm := range perms {
		if !hasPermission(p, perm) {
			return false
		}
	}
	return true
}

func hasPermission(p *Principal, perm rbac.Permission) bool {
	for _, held := range p.Permissions {
		if held == perm {
			return true
		}
	}
	return false
}
