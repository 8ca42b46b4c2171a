package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvio/solvio-core/internal/rbac"
)

const testSecret = "audit-chain-test-secret"

func TestMemorySinkAppendBuildsChain(t *testing.T) {
	sink := NewMemorySink(testSecret)
	ctx := context.Background()

	first := NewEntry(ActionRoleAssign, "elevated-1", "user-1").
		WithRoles(rbac.RoleStandard, rbac.RoleAdmin).
		WithReason("promotion")
	require.NoError(t, sink.Append(ctx, first))

	second := NewEntry(ActionRoleRemove, "admin-1", "user-2").
		WithRoles(rbac.RoleAdmin, rbac.RoleStandard)
	require.NoError(t, sink.Append(ctx, second))

	entries := sink.Entries()
	require.Len(t, entries, 2)

	assert.Empty(t, entries[0].PreviousHash)
	assert.NotEmpty(t, entries[0].Hash)
	assert.Equal(t, entries[0].Hash, entries[1].PreviousHash)
	assert.Equal(t, rbac.RoleStandard, entries[0].PreviousRole)
	assert.Equal(t, rbac.RoleAdmin, entries[0].NewRole)
	assert.Equal(t, "promotion", entries[0].Reason)

	require.NoError(t, sink.VerifyChain(ctx))
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	sink := NewMemorySink(testSecret)
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, NewEntry(ActionRoleAssign, "a", "u1")))
	require.NoError(t, sink.Append(ctx, NewEntry(ActionRoleAssign, "a", "u2")))

	// Rewrite a stored entry behind the sink's back
	sink.entries[0].PerformedBy = "attacker"
	assert.Error(t, sink.VerifyChain(ctx))
}

func TestVerifyChainDetectsReordering(t *testing.T) {
	sink := NewMemorySink(testSecret)
	ctx := context.Background()

	require.NoError(t, sink.Append(ctx, NewEntry(ActionRoleAssign, "a", "u1")))
	require.NoError(t, sink.Append(ctx, NewEntry(ActionRoleRemove, "a", "u2")))

	sink.entries[0], sink.entries[1] = sink.entries[1], sink.entries[0]
	assert.Error(t, sink.VerifyChain(ctx))
}

func TestComputeHashDependsOnSecret(t *testing.T) {
	entry := NewEntry(ActionSignIn, "system", "user-1")
	h1 := entry.ComputeHash("secret-a")
	h2 := entry.ComputeHash("secret-b")
	assert.NotEqual(t, h1, h2)
}

func TestEntriesReturnsCopies(t *testing.T) {
	sink := NewMemorySink(testSecret)
	require.NoError(t, sink.Append(context.Background(), NewEntry(ActionRoleAssign, "a", "u1")))

	snapshot := sink.Entries()
	snapshot[0].PerformedBy = "mutated"

	assert.Equal(t, "a", sink.Entries()[0].PerformedBy)
	require.NoError(t, sink.VerifyChain(context.Background()))
}
