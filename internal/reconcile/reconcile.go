// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

// Package reconcile fans a reconciliation run out over the fleet. Hosts are
// processed concurrently by a bounded worker set; within a host, units run
// sequentially and failures stay scoped to their unit.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/toeirei/warden/internal/hostops"
	"github.com/toeirei/warden/internal/i18n"
	"github.com/toeirei/warden/internal/logging"
	"github.com/toeirei/warden/internal/model"
	"github.com/toeirei/warden/internal/plan"
	"github.com/toeirei/warden/internal/probe"
)

// Session is everything the reconciler needs from a live host connection:
// the read-only probe surface plus the mutating primitives.
type Session interface {
	probe.Session
	hostops.Primitives
	Close()
}

// Dialer opens a session to one host.
type Dialer func(host model.Host) (Session, error)

// Auditor receives one audit event per finished unit.
type Auditor interface {
	LogAction(action string, details string) error
}

// Options tunes a run.
type Options struct {
	// Concurrency bounds the number of hosts reconciled in parallel.
	Concurrency int

	// UnitTimeout bounds probe plus apply for a single host/user unit.
	UnitTimeout time.Duration

	// Plan carries the fleet conventions handed to the planner.
	Plan plan.Params

	// HomeBase is the base directory for orphan-home lookups on hosts
	// whose accounts are already deleted. Defaults to /home.
	HomeBase string

	// DryRun computes and records plans without touching any host.
	DryRun bool
}

// Runner executes reconciliation runs.
type Runner struct {
	Dial  Dialer
	Audit Auditor
	Opts  Options
}

// Run reconciles every desired record against every host and returns the
// run report. Per-host and per-unit failures are isolated; the returned
// error is reserved for fleet-fatal conditions.
func (r *Runner) Run(ctx context.Context, hosts []model.Host, records []model.AdminRecord) (*model.RunReport, error) {
	if r.Dial == nil {
		return nil, errors.New("reconcile: no dialer configured")
	}
	concurrency := r.Opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	report := &model.RunReport{StartedAt: time.Now().UTC()}
	logging.Infof(i18n.T("reconcile.start"), len(records), len(hosts))

	sem := make(chan struct{}, concurrency)
	results := make(chan model.HostResult, len(hosts))

	for _, host := range hosts {
		sem <- struct{}{}
		go func(h model.Host) {
			defer func() { <-sem }()
			results <- r.reconcileHost(ctx, h, records)
		}(host)
	}

	for range hosts {
		report.Hosts = append(report.Hosts, <-results)
	}
	sort.Slice(report.Hosts, func(i, j int) bool { return report.Hosts[i].Host < report.Hosts[j].Host })

	report.FinishedAt = time.Now().UTC()
	logging.Infof(i18n.T("reconcile.done"), report.Summary())
	return report, nil
}

// reconcileHost runs all units of one host over a single session.
func (r *Runner) reconcileHost(ctx context.Context, host model.Host, records []model.AdminRecord) model.HostResult {
	hr := model.HostResult{Host: host.Name, StartedAt: time.Now().UTC()}

	sess, err := r.Dial(host)
	if err != nil {
		logging.Warnf(i18n.T("reconcile.host_unreachable"), host.Name, err)
		hr.Status = model.HostUnreachable
		hr.Error = err.Error()
		hr.FinishedAt = time.Now().UTC()
		return hr
	}
	defer sess.Close()

	for _, rec := range records {
		ur, unreachable := r.reconcileUnit(ctx, sess, host, rec)
		hr.Units = append(hr.Units, ur)
		r.audit(host, ur)
		if unreachable {
			// Transport gone mid-run: remaining units cannot be probed.
			hr.Status = model.HostUnreachable
			hr.Error = ur.Error
			hr.FinishedAt = time.Now().UTC()
			return hr
		}
	}

	hr.Rollup()
	hr.FinishedAt = time.Now().UTC()
	return hr
}

// reconcileUnit probes, plans, and applies one host/user unit. The second
// return value reports a transport-level failure that invalidates the whole
// host session.
func (r *Runner) reconcileUnit(ctx context.Context, sess Session, host model.Host, rec model.AdminRecord) (model.UnitResult, bool) {
	ur := model.UnitResult{Username: rec.Username, Desired: rec.State}

	unitCtx := ctx
	if r.Opts.UnitTimeout > 0 {
		var cancel context.CancelFunc
		unitCtx, cancel = context.WithTimeout(ctx, r.Opts.UnitTimeout)
		defer cancel()
	}

	actual, err := probe.Evaluate(unitCtx, sess, host.Name, rec.Username, probe.Params{
		AdminGroup:  r.Opts.Plan.AdminGroup,
		ArchiveRoot: r.Opts.Plan.ArchiveRoot,
		HomeBase:    r.Opts.HomeBase,
	})
	if err != nil {
		var unreach *probe.HostUnreachableError
		if errors.As(err, &unreach) {
			ur.Status = model.UnitFailed
			ur.Error = err.Error()
			return ur, true
		}
		ur.Status = model.UnitFailed
		ur.Error = err.Error()
		return ur, false
	}

	tp, err := plan.Build(rec, actual, r.Opts.Plan)
	if err != nil {
		var reject *plan.UnsupportedTransitionError
		if errors.As(err, &reject) {
			logging.Warnf(i18n.T("reconcile.unit_rejected"), rec.Username, host.Name, err)
			ur.Status = model.UnitRejected
			ur.Error = err.Error()
			return ur, false
		}
		ur.Status = model.UnitFailed
		ur.Error = err.Error()
		return ur, false
	}
	ur.Advisories = tp.Advisories
	for _, adv := range tp.Advisories {
		if adv == model.AdvisoryHomeNotRestored {
			logging.Warnf(i18n.T("reconcile.advisory_home"), rec.Username, host.Name, actual.ArchivePath)
		}
	}

	applyPlan(unitCtx, sess, tp, actual, r.Opts.DryRun, &ur)
	if ur.Status == model.UnitFailed {
		logging.Warnf(i18n.T("reconcile.unit_failed"), rec.Username, host.Name, ur.Error)
	}
	return ur, false
}

// audit records the unit outcome; audit failures are logged, never fatal.
func (r *Runner) audit(host model.Host, ur model.UnitResult) {
	if r.Audit == nil || r.Opts.DryRun {
		return
	}
	details := fmt.Sprintf("host=%s user=%s desired=%s status=%s actions=%d", host.Name, ur.Username, ur.Desired, ur.Status, len(ur.Actions))
	if ur.Error != "" {
		details += " error=" + ur.Error
	}
	if err := r.Audit.LogAction("reconcile_unit", details); err != nil {
		logging.Warnf("audit log write failed: %v", err)
	}
}
