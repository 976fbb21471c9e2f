// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

// package plan computes the minimal idempotent action list that converges a
// host/user unit from its observed actual state to the desired lifecycle
// state. Building a plan must not perform any side effects: Build is a pure
// function of (desired, actual), which keeps it deterministic and unit
// testable without live hosts.
package plan

import (
	"fmt"
	"path"
	"sort"

	"github.com/toeirei/warden/internal/model"
	"github.com/toeirei/warden/internal/sshkey"
)

// Params carries the fleet-wide conventions the planner needs. They are
// explicit inputs; the planner reads no global configuration.
type Params struct {
	AdminGroup  string // supplementary group that grants admin rights
	LoginShell  string // interactive shell for present accounts
	DenyShell   string // non-interactive shell for revoked accounts
	ArchiveRoot string // operator-configured directory for home archives
	ExpiryDate  string // the "already expired" date set on revocation
}

// DefaultParams returns the conventional fleet parameters.
func DefaultParams() Params {
	return Params{
		AdminGroup:  "wheel",
		LoginShell:  "/bin/bash",
		DenyShell:   "/usr/sbin/nologin",
		ArchiveRoot: "/var/archives/warden",
		ExpiryDate:  "1970-01-02",
	}
}

// UnsupportedTransitionError rejects a requested transition that is not on
// the lifecycle DAG. It is scoped to one user; no actions are emitted.
type UnsupportedTransitionError struct {
	Username string
	Desired  model.LifecycleState
	Reason   string
}

func (e *UnsupportedTransitionError) Error() string {
	return fmt.Sprintf("unsupported transition for %s to %s: %s", e.Username, e.Desired, e.Reason)
}

// Build computes the transition plan for one host/user unit.
//
// The planner only inspects the current actual state, never transition
// history. Actions are emitted only for predicates not already satisfied, so
// applying a plan and re-planning against the converged state yields an
// empty plan. Any archive-creation action strictly precedes home removal and
// user deletion.
func Build(rec model.AdminRecord, actual model.HostActualState, p Params) (model.TransitionPlan, error) {
	tp := model.TransitionPlan{Username: rec.Username, Desired: rec.State}

	switch rec.State {
	case model.StatePresent:
		return planPresent(tp, rec, actual, p)
	case model.StateRevoked:
		tp.Actions = revokeActions(actual, p)
		return tp, nil
	case model.StateOffboard:
		return planOffboard(tp, rec, actual, p), nil
	case model.StateDecom:
		return planDecom(tp, rec, actual, p), nil
	}
	return tp, &UnsupportedTransitionError{Username: rec.Username, Desired: rec.State, Reason: "unknown lifecycle state"}
}

func planPresent(tp model.TransitionPlan, rec model.AdminRecord, actual model.HostActualState, p Params) (model.TransitionPlan, error) {
	desiredKeys := normalizeDesired(rec.Keys)

	if !actual.Exists {
		// A missing user with a leftover home and no archive can only be
		// read as restoring a decommissioned identity, which the lifecycle
		// DAG forbids. A missing user with an archive is a recreate: a
		// legal, fresh present creation with a fresh home, explicitly not a
		// restoration.
		if actual.HomeExists && !actual.ArchiveExists {
			return model.TransitionPlan{Username: rec.Username, Desired: rec.State}, &UnsupportedTransitionError{
				Username: rec.Username,
				Desired:  rec.State,
				Reason:   "user was deleted but an unarchived home remains; identity restoration is not supported",
			}
		}

		tp.Actions = append(tp.Actions,
			model.Action{Kind: model.ActionCreateUser, Shell: p.LoginShell, UIDHint: rec.UIDHint},
			model.Action{Kind: model.ActionSetGroupMembership, Group: p.AdminGroup, Member: true},
		)
		if len(desiredKeys) > 0 {
			tp.Actions = append(tp.Actions, model.Action{Kind: model.ActionInstallKeys, Keys: rec.Keys})
		}
		// The initial password (with forced change at first login) is set
		// exactly once, at creation, and never reapplied.
		tp.Actions = append(tp.Actions, model.Action{Kind: model.ActionSetInitialPassword, ForceChange: true})
		return tp, nil
	}

	if !actual.InAdminGroup {
		tp.Actions = append(tp.Actions, model.Action{Kind: model.ActionSetGroupMembership, Group: p.AdminGroup, Member: true})
	}
	if !keySetsEqual(desiredKeys, actual.Keys) {
		tp.Actions = append(tp.Actions, model.Action{Kind: model.ActionInstallKeys, Keys: rec.Keys})
	}
	if actual.PasswordLocked {
		tp.Actions = append(tp.Actions, model.Action{Kind: model.ActionUnlockPassword})
	}
	if actual.AccountExpired {
		tp.Actions = append(tp.Actions, model.Action{Kind: model.ActionSetAccountExpiry, Expiry: ""})
	}
	if actual.Shell != p.LoginShell {
		tp.Actions = append(tp.Actions, model.Action{Kind: model.ActionSetLoginShell, Shell: p.LoginShell})
	}

	// Offboard -> Present reactivation: account access is restored, but the
	// archived home directory is not. The operator restores it manually.
	if !actual.HomeExists && actual.ArchiveExists {
		tp.Advisories = append(tp.Advisories, model.AdvisoryHomeNotRestored)
	}
	return tp, nil
}

// revokeActions diffs the revoked predicate set against actual. A user that
// does not exist is vacuously revoked.
func revokeActions(actual model.HostActualState, p Params) []model.Action {
	if !actual.Exists {
		return nil
	}
	var actions []model.Action
	if len(actual.Keys) > 0 {
		actions = append(actions, model.Action{Kind: model.ActionRemoveKeys})
	}
	if actual.InAdminGroup {
		actions = append(actions, model.Action{Kind: model.ActionSetGroupMembership, Group: p.AdminGroup, Member: false})
	}
	if !actual.PasswordLocked {
		actions = append(actions, model.Action{Kind: model.ActionLockPassword})
	}
	if !actual.AccountExpired {
		actions = append(actions, model.Action{Kind: model.ActionSetAccountExpiry, Expiry: p.ExpiryDate})
	}
	if actual.Shell != p.DenyShell {
		actions = append(actions, model.Action{Kind: model.ActionSetLoginShell, Shell: p.DenyShell})
	}
	return actions
}

func planOffboard(tp model.TransitionPlan, rec model.AdminRecord, actual model.HostActualState, p Params) model.TransitionPlan {
	tp.Actions = revokeActions(actual, p)

	// Archive strictly before home removal. When the home is already gone
	// and no archive exists there is nothing left to preserve.
	if !actual.ArchiveExists && actual.HomeExists {
		tp.Actions = append(tp.Actions, model.Action{Kind: model.ActionCreateArchive, Path: archivePathFor(rec, actual, p)})
	}
	if actual.HomeExists {
		tp.Actions = append(tp.Actions, model.Action{Kind: model.ActionRemoveHome, Path: actual.HomeDir})
	}
	return tp
}

func planDecom(tp model.TransitionPlan, rec model.AdminRecord, actual model.HostActualState, p Params) model.TransitionPlan {
	if !actual.Exists {
		// The account may already be gone while its home lingers (e.g. a
		// failed earlier run). Decom still owes the archive and the cleanup.
		if actual.HomeExists {
			if !actual.ArchiveExists {
				tp.Actions = append(tp.Actions, model.Action{Kind: model.ActionCreateArchive, Path: archivePathFor(rec, actual, p)})
			}
			tp.Actions = append(tp.Actions, model.Action{Kind: model.ActionRemoveHome, Path: actual.HomeDir})
		}
		return tp
	}
	// The archive-existence check gates deletion: either the archive is
	// already there (authoritative proof), or creating it is planned
	// strictly before the deletion.
	if !actual.ArchiveExists && actual.HomeExists {
		tp.Actions = append(tp.Actions, model.Action{Kind: model.ActionCreateArchive, Path: archivePathFor(rec, actual, p)})
	}
	tp.Actions = append(tp.Actions, model.Action{Kind: model.ActionDeleteUser})
	return tp
}

// archivePathFor returns the archive artifact path: the already-observed one
// when present, otherwise the deterministic path keyed by username and the
// record's creation timestamp.
func archivePathFor(rec model.AdminRecord, actual model.HostActualState, p Params) string {
	if actual.ArchivePath != "" {
		return actual.ArchivePath
	}
	return path.Join(p.ArchiveRoot, rec.ArchiveFileName())
}

func normalizeDesired(raw []string) []string {
	var out []string
	for _, k := range raw {
		if n, err := sshkey.Normalize(k); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// keySetsEqual compares two normalized key lists as sets.
func keySetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
