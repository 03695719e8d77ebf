package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-orders/internal/fault"
)

var allStatuses = []Status{
	StatusPending, StatusStuffing, StatusShipped,
	StatusCompleted, StatusCancelled, StatusRejected,
}

var allRoles = []Role{RoleCustomer, RoleManager, RoleSystem}

// legal enumerates every allowed (from, to, role) triple. Everything else
// must be rejected.
var legal = map[[3]any]bool{
	{StatusPending, StatusStuffing, RoleManager}:   true,
	{StatusStuffing, StatusShipped, RoleManager}:   true,
	{StatusShipped, StatusCompleted, RoleManager}:  true,
	{StatusShipped, StatusCompleted, RoleSystem}:   true,
	{StatusPending, StatusRejected, RoleManager}:   true,
	{StatusPending, StatusCancelled, RoleCustomer}: true,
	{StatusPending, StatusCancelled, RoleManager}:  true,
	{StatusStuffing, StatusCancelled, RoleManager}: true,
}

func TestCanTransition_FullGrid(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			for _, role := range allRoles {
				err := CanTransition(from, to, role)

				if legal[[3]any{from, to, role}] {
					assert.NoError(t, err, "%s -> %s by %s should be legal", from, to, role)
					continue
				}

				require.Error(t, err, "%s -> %s by %s should be rejected", from, to, role)

				// Wrong role on an existing edge is unauthorized; a missing
				// edge is a conflict.
				if edgeExists(from, to) {
					assert.ErrorIs(t, err, ErrRoleNotAllowed, "%s -> %s by %s", from, to, role)
					assert.Equal(t, fault.Unauthorized, fault.KindOf(err))
				} else {
					assert.ErrorIs(t, err, ErrIllegalTransition, "%s -> %s by %s", from, to, role)
					assert.Equal(t, fault.Conflict, fault.KindOf(err))
				}
			}
		}
	}
}

func edgeExists(from, to Status) bool {
	for _, role := range allRoles {
		if legal[[3]any{from, to, role}] {
			return true
		}
	}
	return false
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusRejected} {
		assert.True(t, s.Terminal(), "%s", s)
	}
	for _, s := range []Status{StatusPending, StatusStuffing, StatusShipped} {
		assert.False(t, s.Terminal(), "%s", s)
	}
}

func TestStatus_NoTransitionLeavesTerminalState(t *testing.T) {
	for _, from := range allStatuses {
		if !from.Terminal() {
			continue
		}
		for _, to := range allStatuses {
			for _, role := range allRoles {
				assert.ErrorIs(t, CanTransition(from, to, role), ErrIllegalTransition,
					"terminal %s must not leave via %s", from, to)
			}
		}
	}
}

func TestReleasesReservations(t *testing.T) {
	assert.True(t, ReleasesReservations(StatusCancelled))
	assert.True(t, ReleasesReservations(StatusRejected))
	assert.False(t, ReleasesReservations(StatusCompleted))
	assert.False(t, ReleasesReservations(StatusShipped))
}
