// Package authz decides which roles may perform which admin actions. A single
// capability table replaces inline role-string comparisons in handlers.
package authz

import "errors"

// ErrForbidden reports an actor lacking the capability for an action. No side
// effects may be attempted after it is returned.
var ErrForbidden = errors.New("forbidden")

// Roles, least to most privileged.
const (
	RoleUser       = "user"
	RoleEmployee   = "employee"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Action names a privileged operation.
type Action string

const (
	ActionManualTradeControl Action = "trade.manual_control"
	ActionReviewWithdrawal   Action = "withdrawal.review"
	ActionReviewDeposit      Action = "deposit.review"
	ActionReadSettings       Action = "settings.read"
	ActionWriteSettings      Action = "settings.write"
	ActionTriggerSweep       Action = "sweep.trigger"
	ActionReadMetrics        Action = "metrics.read"
)

// capabilities lists the roles allowed per action. Absent actions deny all.
var capabilities = map[Action][]string{
	ActionManualTradeControl: {RoleSuperAdmin},
	ActionReviewWithdrawal:   {RoleAdmin, RoleSuperAdmin},
	ActionReviewDeposit:      {RoleEmployee, RoleAdmin, RoleSuperAdmin},
	ActionReadSettings:       {RoleAdmin, RoleSuperAdmin},
	ActionWriteSettings:      {RoleSuperAdmin},
	ActionTriggerSweep:       {RoleAdmin, RoleSuperAdmin},
	ActionReadMetrics:        {RoleAdmin, RoleSuperAdmin},
}

// Allow reports whether role may perform action.
func Allow(role string, action Action) bool {
	for _, r := range capabilities[action] {
		if r == role {
			return true
		}
	}
	return false
}

// Check is Allow with an error result for handler plumbing.
func Check(role string, action Action) error {
	if !Allow(role, action) {
		return ErrForbidden
	}
	return nil
}
