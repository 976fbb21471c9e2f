// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"fmt"
	"strings"
)

// ActionKind identifies one host primitive invocation.
type ActionKind string

const (
	ActionCreateUser         ActionKind = "create_user"
	ActionDeleteUser         ActionKind = "delete_user"
	ActionSetGroupMembership ActionKind = "set_group_membership"
	ActionInstallKeys        ActionKind = "install_keys"
	ActionRemoveKeys         ActionKind = "remove_keys"
	ActionLockPassword       ActionKind = "lock_password"
	ActionUnlockPassword     ActionKind = "unlock_password"
	ActionSetAccountExpiry   ActionKind = "set_account_expiry"
	ActionSetLoginShell      ActionKind = "set_login_shell"
	ActionSetInitialPassword ActionKind = "set_initial_password"
	ActionCreateArchive      ActionKind = "create_archive_exclusive"
	ActionRemoveHome         ActionKind = "remove_home_directory"
)

// Action is a single planned step. Parameters are populated per kind; the
// zero value of unused fields is ignored by the executor.
type Action struct {
	Kind ActionKind

	Keys        []string // install_keys: the full desired set
	Group       string   // set_group_membership
	Member      bool     // set_group_membership: desired membership
	Shell       string   // create_user, set_login_shell
	Expiry      string   // set_account_expiry: YYYY-MM-DD, "" clears
	Path        string   // create_archive_exclusive, remove_home_directory
	UIDHint     int      // create_user
	ForceChange bool     // set_initial_password: require change at first login
}

// String returns a compact human-readable form, e.g. "install_keys(2)".
func (a Action) String() string {
	switch a.Kind {
	case ActionInstallKeys:
		return fmt.Sprintf("%s(%d)", a.Kind, len(a.Keys))
	case ActionSetGroupMembership:
		verb := "leave"
		if a.Member {
			verb = "join"
		}
		return fmt.Sprintf("%s(%s %s)", a.Kind, verb, a.Group)
	case ActionSetLoginShell:
		return fmt.Sprintf("%s(%s)", a.Kind, a.Shell)
	case ActionSetAccountExpiry:
		if a.Expiry == "" {
			return string(a.Kind) + "(clear)"
		}
		return fmt.Sprintf("%s(%s)", a.Kind, a.Expiry)
	case ActionCreateArchive, ActionRemoveHome:
		return fmt.Sprintf("%s(%s)", a.Kind, a.Path)
	}
	return string(a.Kind)
}

// Advisory is a recorded caveat attached to a unit result. Advisories are not
// errors; they flag manual follow-up work for the operator.
type Advisory string

// AdvisoryHomeNotRestored is attached when a previously offboarded account is
// set back to present: the account is reactivated but its home directory is
// not restored from the archive. Restoration is a manual, out-of-band step.
const AdvisoryHomeNotRestored Advisory = "home_not_restored"

// TransitionPlan is the ordered action list for one host/user unit, computed
// purely from (desired, actual). An empty plan means the unit is converged.
type TransitionPlan struct {
	Username   string
	Desired    LifecycleState
	Actions    []Action
	Advisories []Advisory
}

// Empty reports whether the plan contains no actions.
func (p TransitionPlan) Empty() bool { return len(p.Actions) == 0 }

// String returns a one-line rendering of the plan for logs and dry runs.
func (p TransitionPlan) String() string {
	if p.Empty() {
		return fmt.Sprintf("%s -> %s: converged", p.Username, p.Desired)
	}
	steps := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		steps[i] = a.String()
	}
	return fmt.Sprintf("%s -> %s: %s", p.Username, p.Desired, strings.Join(steps, ", "))
}
