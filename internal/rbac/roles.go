// Package rbac defines the closed role and permission model for Solvio
package rbac

import (
	"fmt"
	"strings"
)

// Role represents a user role in the system, totally ordered by hierarchy level
type Role string

const (
	// RoleElevated is the highest privilege role, established once at bootstrap
	RoleElevated Role = "elevated"
	// RoleAdmin has administrative privileges over standard users
	RoleAdmin Role = "admin"
	// RoleStandard is the base role for regular users
	RoleStandard Role = "standard"
)

// AllRoles defines all valid roles in the system
var AllRoles = []Role{RoleElevated, RoleAdmin, RoleStandard}

// Permission represents a capability token in the format "resource:action".
// The set of permissions is closed; new tokens are never minted at runtime.
type Permission string

// All available permissions in the system
const (
	PermUsersManage    Permission = "users:manage"
	PermRolesAssign    Permission = "roles:assign"
	PermAnalyticsView  Permission = "analytics:view"
	PermSystemManage   Permission = "system:manage"
	PermAuditView      Permission = "audit:view"
	PermDataExport     Permission = "data:export"
	PermOwnDataExport  Permission = "data:export-own"
	PermPuzzlesSolve   Permission = "puzzles:solve"
	PermProfileManage  Permission = "profile:manage"
)

// AllPermissions lists all available permissions in the system
var AllPermissions = []Permission{
	PermUsersManage,
	PermRolesAssign,
	PermAnalyticsView,
	PermSystemManage,
	PermAuditView,
	PermDataExport,
	PermOwnDataExport,
	PermPuzzlesSolve,
	PermProfileManage,
}

// RoleLevel defines the hierarchy level of each role (higher = more privileges)
// elevated (2) > admin (1) > standard (0)
var RoleLevel = map[Role]int{
	RoleElevated: 2,
	RoleAdmin:    1,
	RoleStandard: 0,
}

// RolePermissions defines the frozen permission set for each role.
// The table is defined once at process start and never mutated.
// Elevated is a superset of Admin; Standard holds its own grants
// (export-own-data is not exclusive to any tier).
var RolePermissions = map[Role][]Permission{
	RoleElevated: {
		PermUsersManage,
		PermRolesAssign,
		PermAnalyticsView,
		PermSystemManage,
		PermAuditView,
		PermDataExport,
		PermOwnDataExport,
		PermPuzzlesSolve,
		PermProfileManage,
	},
	RoleAdmin: {
		PermUsersManage,
		PermRolesAssign,
		PermAnalyticsView,
		PermDataExport,
		PermOwnDataExport,
		PermPuzzlesSolve,
		PermProfileManage,
		// Note: admin does NOT have system:manage or audit:view
	},
	RoleStandard: {
		PermOwnDataExport,
		PermPuzzlesSolve,
		PermProfileManage,
	},
}

// PermissionsFor returns the frozen permission set for a role.
// The returned slice is a copy; callers cannot mutate the table through it.
func PermissionsFor(role Role) []Permission {
	perms, ok := RolePermissions[role]
	if !ok {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}

// LevelOf returns the hierarchy level of a role, or -1 for an unknown role
func LevelOf(role Role) int {
	if level, ok := RoleLevel[role]; ok {
		return level
	}
	return -1
}

// IsAssignmentAllowed reports whether an actor holding assignerRole may set a
// user's role to targetRole.
//
// Rules:
//   - nobody, including elevated, may assign the elevated role; it exists
//     exactly once via bootstrap
//   - elevated may assign or revoke admin and standard
//   - admin may only move a user to standard (demote, never promote)
func IsAssignmentAllowed(assignerRole, targetRole Role) bool {
	if !IsValidRole(string(assignerRole)) || !IsValidRole(string(targetRole)) {
		return false
	}
	if targetRole == RoleElevated {
		return false
	}
	switch assignerRole {
	case RoleElevated:
		return true
	case RoleAdmin:
		return targetRole == RoleStandard
	default:
		return false
	}
}

// IsValidRole checks if a role string is a valid role
func IsValidRole(role string) bool {
	r := Role(role)
	for _, validRole := range AllRoles {
		if validRole == r {
			return true
		}
	}
	return false
}

// ParseRole parses a role string into a Role type
func ParseRole(role string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(role)))
	if !IsValidRole(string(r)) {
		return "", fmt.Errorf("invalid role: %s", role)
	}
	return r, nil
}

// IsValidPermission checks if a permission token belongs to the closed set
func IsValidPermission(perm Permission) bool {
	for _, p := range AllPermissions {
		if p == perm {
			return true
		}
	}
	return false
}

// HasPermission checks if a role has been granted a specific permission
func (r Role) HasPermission(p Permission) bool {
	for _, perm := range RolePermissions[r] {
		if perm == p {
			return true
		}
	}
	return false
}

// Level returns the hierarchy level of this role
func (r Role) Level() int {
	return LevelOf(r)
}

// IsHigherOrEqual checks if this role is at the same or higher level than another
func (r Role) IsHigherOrEqual(other Role) bool {
	levelA, okA := RoleLevel[r]
	levelB, okB := RoleLevel[other]
	if !okA || !okB {
		return false
	}
	return levelA >= levelB
}
