// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package reconcile

import (
	"context"
	"fmt"

	"github.com/toeirei/warden/internal/hostops"
	"github.com/toeirei/warden/internal/model"
)

// applyPlan executes the plan's actions in order, stopping at the first
// failure so ordering invariants (archive before removal) hold. The unit
// result is filled in place.
func applyPlan(ctx context.Context, prims hostops.Primitives, tp model.TransitionPlan, actual model.HostActualState, dryRun bool, ur *model.UnitResult) {
	if dryRun {
		for _, a := range tp.Actions {
			ur.Actions = append(ur.Actions, model.ActionResult{Action: a, Status: model.ActionPlanned})
		}
		ur.Status = unitStatus(ur, false)
		return
	}

	failed := false
	for _, a := range tp.Actions {
		outcome, err := dispatch(ctx, prims, tp.Username, a, actual)
		res := model.ActionResult{Action: a}
		switch {
		case err != nil:
			res.Status = model.ActionFailed
			res.Error = err.Error()
			failed = true
		case outcome == hostops.OutcomeApplied:
			res.Status = model.ActionApplied
		default:
			res.Status = model.ActionNoop
		}
		ur.Actions = append(ur.Actions, res)
		if failed {
			ur.Error = res.Error
			break
		}
	}
	ur.Status = unitStatus(ur, failed)
}

func unitStatus(ur *model.UnitResult, failed bool) model.UnitStatus {
	switch {
	case failed:
		return model.UnitFailed
	case len(ur.Advisories) > 0:
		return model.UnitPartial
	default:
		return model.UnitSuccess
	}
}

// dispatch maps one planned action to its host primitive.
func dispatch(ctx context.Context, prims hostops.Primitives, username string, a model.Action, actual model.HostActualState) (hostops.Outcome, error) {
	switch a.Kind {
	case model.ActionCreateUser:
		return prims.CreateUser(ctx, username, a.Shell, a.UIDHint)
	case model.ActionDeleteUser:
		return prims.DeleteUser(ctx, username)
	case model.ActionSetGroupMembership:
		return prims.SetGroupMembership(ctx, username, a.Group, a.Member)
	case model.ActionInstallKeys:
		return prims.InstallKeys(ctx, username, a.Keys)
	case model.ActionRemoveKeys:
		return prims.RemoveKeys(ctx, username)
	case model.ActionLockPassword:
		return prims.LockPassword(ctx, username)
	case model.ActionUnlockPassword:
		return prims.UnlockPassword(ctx, username)
	case model.ActionSetAccountExpiry:
		return prims.SetAccountExpiry(ctx, username, a.Expiry)
	case model.ActionSetLoginShell:
		return prims.SetLoginShell(ctx, username, a.Shell)
	case model.ActionSetInitialPassword:
		return prims.SetInitialPassword(ctx, username, a.ForceChange)
	case model.ActionCreateArchive:
		return prims.CreateArchiveExclusive(ctx, username, actual.HomeDir, a.Path)
	case model.ActionRemoveHome:
		return prims.RemoveHomeDirectory(ctx, username, a.Path)
	}
	return hostops.OutcomeNoop, fmt.Errorf("unknown action kind %q", a.Kind)
}
