package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow(t *testing.T) {
	cases := []struct {
		role   string
		action Action
		want   bool
	}{
		{RoleSuperAdmin, ActionManualTradeControl, true},
		{RoleAdmin, ActionManualTradeControl, false},
		{RoleEmployee, ActionManualTradeControl, false},
		{RoleUser, ActionManualTradeControl, false},

		{RoleAdmin, ActionReviewWithdrawal, true},
		{RoleEmployee, ActionReviewWithdrawal, false},

		{RoleEmployee, ActionReviewDeposit, true},
		{RoleUser, ActionReviewDeposit, false},

		{RoleSuperAdmin, ActionWriteSettings, true},
		{RoleAdmin, ActionWriteSettings, false},
		{RoleAdmin, ActionReadSettings, true},

		{RoleAdmin, ActionTriggerSweep, true},
		{RoleAdmin, ActionReadMetrics, true},
		{RoleUser, ActionReadMetrics, false},

		// Unknown roles and actions deny.
		{"ghost", ActionReviewDeposit, false},
		{RoleSuperAdmin, Action("unknown.action"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Allow(tc.role, tc.action),
			"role %s action %s", tc.role, tc.action)
	}
}

func TestCheck(t *testing.T) {
	require.NoError(t, Check(RoleSuperAdmin, ActionManualTradeControl))
	require.ErrorIs(t, Check(RoleAdmin, ActionManualTradeControl), ErrForbidden)
}
