// Package rbac provides unit tests for the role and permission model
package rbac

import (
	"testing"
)

// Test AllRoles constant contains all valid roles in hierarchy order
func TestAllRoles(t *testing.T) {
	expectedRoles := []Role{RoleElevated, RoleAdmin, RoleStandard}

	if len(AllRoles) != len(expectedRoles) {
		t.Errorf("AllRoles has %d elements, expected %d", len(AllRoles), len(expectedRoles))
	}

	for i, role := range AllRoles {
		if role != expectedRoles[i] {
			t.Errorf("AllRoles[%d] = %v, expected %v", i, role, expectedRoles[i])
		}
	}
}

// Test RoleLevel contains all roles defined in AllRoles
func TestRoleLevelCompleteness(t *testing.T) {
	for _, role := range AllRoles {
		if _, exists := RoleLevel[role]; !exists {
			t.Errorf("Role %v is not defined in RoleLevel", role)
		}
	}
}

// Test RolePermissions contains all roles defined in AllRoles
func TestRolePermissionsCompleteness(t *testing.T) {
	for _, role := range AllRoles {
		if _, exists := RolePermissions[role]; !exists {
			t.Errorf("Role %v is not defined in RolePermissions", role)
		}
	}
}

// Test the hierarchy ordering: elevated > admin > standard
func TestRoleLevelOrdering(t *testing.T) {
	if RoleLevel[RoleElevated] <= RoleLevel[RoleAdmin] {
		t.Error("elevated must rank above admin")
	}
	if RoleLevel[RoleAdmin] <= RoleLevel[RoleStandard] {
		t.Error("admin must rank above standard")
	}
}

// Test every granted permission is drawn from the closed permission set
func TestGrantedPermissionsAreFromClosedSet(t *testing.T) {
	for role, perms := range RolePermissions {
		for _, p := range perms {
			if !IsValidPermission(p) {
				t.Errorf("role %v grants %v which is not in AllPermissions", role, p)
			}
		}
	}
}

// Test elevated permissions are a superset of admin permissions
func TestElevatedPermissionsAreSuperset(t *testing.T) {
	elevatedPerms := make(map[Permission]bool)
	for _, p := range RolePermissions[RoleElevated] {
		elevatedPerms[p] = true
	}

	for _, p := range RolePermissions[RoleAdmin] {
		if !elevatedPerms[p] {
			t.Errorf("elevated is missing permission %v that admin has", p)
		}
	}
}

// Test PermissionsFor is deterministic and returns a defensive copy
func TestPermissionsForDeterministicCopy(t *testing.T) {
	first := PermissionsFor(RoleAdmin)
	second := PermissionsFor(RoleAdmin)

	if len(first) != len(second) {
		t.Fatalf("PermissionsFor returned %d then %d permissions", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("PermissionsFor not deterministic at index %d: %v vs %v", i, first[i], second[i])
		}
	}

	// Mutating the returned slice must not change the table
	first[0] = Permission("bogus:token")
	again := PermissionsFor(RoleAdmin)
	if again[0] == Permission("bogus:token") {
		t.Error("PermissionsFor leaked a mutable reference to the table")
	}
}

func TestPermissionsForUnknownRole(t *testing.T) {
	if perms := PermissionsFor(Role("superuser")); perms != nil {
		t.Errorf("expected nil permissions for unknown role, got %v", perms)
	}
}

// Test the assignment-validity matrix edge by edge
func TestIsAssignmentAllowed(t *testing.T) {
	tests := []struct {
		name     string
		assigner Role
		target   Role
		want     bool
	}{
		{"elevated assigns admin", RoleElevated, RoleAdmin, true},
		{"elevated assigns standard", RoleElevated, RoleStandard, true},
		{"elevated assigns elevated", RoleElevated, RoleElevated, false},
		{"admin assigns admin", RoleAdmin, RoleAdmin, false},
		{"admin assigns standard", RoleAdmin, RoleStandard, true},
		{"admin assigns elevated", RoleAdmin, RoleElevated, false},
		{"standard assigns standard", RoleStandard, RoleStandard, false},
		{"standard assigns admin", RoleStandard, RoleAdmin, false},
		{"standard assigns elevated", RoleStandard, RoleElevated, false},
		{"unknown assigner", Role("root"), RoleStandard, false},
		{"unknown target", RoleElevated, Role("root"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAssignmentAllowed(tt.assigner, tt.target); got != tt.want {
				t.Errorf("IsAssignmentAllowed(%v, %v) = %v, want %v", tt.assigner, tt.target, got, tt.want)
			}
		})
	}
}

// No actor role may ever be granted an elevated assignment
func TestNoActorMayAssignElevated(t *testing.T) {
	for _, actor := range AllRoles {
		if IsAssignmentAllowed(actor, RoleElevated) {
			t.Errorf("actor %v must not be allowed to assign elevated", actor)
		}
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"elevated", RoleElevated, false},
		{"admin", RoleAdmin, false},
		{"standard", RoleStandard, false},
		{"  Admin ", RoleAdmin, false},
		{"superadmin", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseRole(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRole(%q) expected error, got %v", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRole(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRole(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLevelOfUnknownRole(t *testing.T) {
	if level := LevelOf(Role("owner")); level != -1 {
		t.Errorf("LevelOf(unknown) = %d, want -1", level)
	}
}

func TestIsHigherOrEqual(t *testing.T) {
	if !RoleElevated.IsHigherOrEqual(RoleAdmin) {
		t.Error("elevated should be higher or equal to admin")
	}
	if !RoleAdmin.IsHigherOrEqual(RoleAdmin) {
		t.Error("admin should be higher or equal to itself")
	}
	if RoleStandard.IsHigherOrEqual(RoleAdmin) {
		t.Error("standard should not be higher or equal to admin")
	}
	if RoleElevated.IsHigherOrEqual(Role("root")) {
		t.Error("comparison against unknown role should be false")
	}
}

func TestRoleHasPermission(t *testing.T) {
	if !RoleStandard.HasPermission(PermOwnDataExport) {
		t.Error("standard should hold data:export-own")
	}
	if RoleStandard.HasPermission(PermUsersManage) {
		t.Error("standard should not hold users:manage")
	}
	if RoleAdmin.HasPermission(PermSystemManage) {
		t.Error("admin should not hold system:manage")
	}
	if !RoleElevated.HasPermission(PermSystemManage) {
		t.Error("elevated should hold system:manage")
	}
}
