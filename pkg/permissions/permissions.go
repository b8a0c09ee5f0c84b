// Package permissions holds the fixed role-to-action capability table used
// for step-level permission gating and privileged dispatch metadata.
// Changing it is a deployment event, not a runtime one.
package permissions

// Actions checked by the engine.
const (
	ActionManage   = "automation:manage"
	ActionReplay   = "automation:replay"
	ActionApprove  = "automation:approve"
	ActionSimulate = "automation:simulate"
	ActionNotify   = "notifications:send"
)

var roleActions = map[string]map[string]bool{
	"admin": {
		ActionManage:   true,
		ActionReplay:   true,
		ActionApprove:  true,
		ActionSimulate: true,
		ActionNotify:   true,
	},
	"district_admin": {
		ActionManage:   true,
		ActionReplay:   true,
		ActionApprove:  true,
		ActionSimulate: true,
		ActionNotify:   true,
	},
	"school_admin": {
		ActionManage:  true,
		ActionApprove: true,
		ActionNotify:  true,
	},
	"counselor": {
		ActionNotify: true,
	},
	"teacher": {},
	"staff":   {},
}

// RoleCan reports whether a role grants an action. Unknown roles grant
// nothing (fail-closed).
func RoleCan(role, action string) bool {
	return roleActions[role][action]
}

// KnownRole reports whether the role exists in the capability table.
func KnownRole(role string) bool {
	_, ok := roleActions[role]

	return ok
}
