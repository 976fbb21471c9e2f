// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"fmt"
	"strings"
	"time"
)

// ActionStatus is the outcome of one attempted action.
type ActionStatus string

const (
	// ActionApplied means the primitive changed host state.
	ActionApplied ActionStatus = "applied"

	// ActionNoop means the primitive found the desired condition already in
	// place (including an archive-creation race lost to a concurrent run).
	ActionNoop ActionStatus = "skipped-noop"

	// ActionFailed means the primitive reported an error. Remaining actions
	// of the unit are withheld to protect ordering invariants.
	ActionFailed ActionStatus = "failed"

	// ActionPlanned means the action was computed in a dry run and not
	// attempted.
	ActionPlanned ActionStatus = "planned"
)

// ActionResult records one attempted action of a unit.
type ActionResult struct {
	Action Action       `json:"action"`
	Status ActionStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// UnitStatus is the roll-up outcome of one host/user unit.
type UnitStatus string

const (
	// UnitSuccess means the unit converged (possibly as a pure no-op).
	UnitSuccess UnitStatus = "success"

	// UnitPartial means the unit converged but carries advisories the
	// operator must follow up on (e.g. a home directory left unrestored).
	UnitPartial UnitStatus = "partial"

	// UnitFailed means an action failed and the remainder of the plan was
	// withheld.
	UnitFailed UnitStatus = "failed"

	// UnitRejected means the requested transition is illegal on the
	// lifecycle DAG; no actions were emitted or attempted.
	UnitRejected UnitStatus = "rejected"
)

// UnitResult is the audited outcome of one host/user unit.
type UnitResult struct {
	Username   string         `json:"username"`
	Desired    LifecycleState `json:"desired"`
	Status     UnitStatus     `json:"status"`
	Actions    []ActionResult `json:"actions,omitempty"`
	Advisories []Advisory     `json:"advisories,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// HostStatus is the roll-up outcome of one host.
type HostStatus string

const (
	HostSuccess     HostStatus = "success"
	HostPartial     HostStatus = "partial"
	HostFailed      HostStatus = "failed"
	HostUnreachable HostStatus = "unreachable"
)

// HostResult groups the unit results of one host.
type HostResult struct {
	Host       string       `json:"host"`
	Status     HostStatus   `json:"status"`
	Units      []UnitResult `json:"units,omitempty"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Rollup recomputes the host status from its unit results. An unreachable
// host keeps its status; otherwise all-success is success, all-failed is
// failed, and any mix (including advisories and rejections) is partial.
func (h *HostResult) Rollup() {
	if h.Status == HostUnreachable {
		return
	}
	var ok, bad int
	for _, u := range h.Units {
		switch u.Status {
		case UnitSuccess:
			ok++
		case UnitFailed, UnitRejected:
			bad++
		}
	}
	switch {
	case bad == 0 && ok == len(h.Units):
		h.Status = HostSuccess
	case bad == len(h.Units) && len(h.Units) > 0:
		h.Status = HostFailed
	default:
		h.Status = HostPartial
	}
}

// RunReport is the audit artifact of one reconciliation run. It is read-only
// output; it never feeds back into future runs.
type RunReport struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Hosts      []HostResult `json:"hosts"`
}

// Status returns the fleet-level roll-up of the run.
func (r *RunReport) Status() HostStatus {
	var ok, unreachable, failed int
	for _, h := range r.Hosts {
		switch h.Status {
		case HostSuccess:
			ok++
		case HostUnreachable:
			unreachable++
		case HostFailed:
			failed++
		}
	}
	switch {
	case ok == len(r.Hosts):
		return HostSuccess
	case failed+unreachable == len(r.Hosts) && len(r.Hosts) > 0:
		return HostFailed
	default:
		return HostPartial
	}
}

// Summary returns a human-readable one-paragraph summary of the run.
func (r *RunReport) Summary() string {
	counts := map[HostStatus]int{}
	units := 0
	for _, h := range r.Hosts {
		counts[h.Status]++
		units += len(h.Units)
	}
	parts := []string{fmt.Sprintf("%d hosts, %d units", len(r.Hosts), units)}
	for _, s := range []HostStatus{HostSuccess, HostPartial, HostFailed, HostUnreachable} {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
		}
	}
	return strings.Join(parts, ", ")
}

// AuditLogEntry is a single persisted audit trail record.
type AuditLogEntry struct {
	ID        int
	Timestamp string
	Username  string
	Action    string
	Details   string
}
