// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os/user"
	"strings"
	"time"

	"github.com/toeirei/warden/internal/model"
	"github.com/toeirei/warden/util/slicest"
	"github.com/uptrace/bun"
)

// AuditLogModel maps the audit_log table.
type AuditLogModel struct {
	bun.BaseModel `bun:"table:audit_log"`
	ID            int    `bun:"id,pk,autoincrement"`
	Timestamp     string `bun:"timestamp"`
	Username      string `bun:"username"`
	Action        string `bun:"action"`
	Details       string `bun:"details"`
}

// KnownHostModel maps known_hosts.
type KnownHostModel struct {
	bun.BaseModel `bun:"table:known_hosts"`
	Hostname      string `bun:"hostname,pk"`
	Key           string `bun:"key"`
}

// RunReportModel maps run_reports. The full report is stored as a JSON
// payload; started_at and status are denormalized for listing.
type RunReportModel struct {
	bun.BaseModel `bun:"table:run_reports"`
	ID            int    `bun:"id,pk,autoincrement"`
	StartedAt     string `bun:"started_at"`
	Status        string `bun:"status"`
	Payload       string `bun:"payload"`
}

// BunStore is the Bun-backed Store implementation shared by all supported
// database engines.
type BunStore struct {
	bun *bun.DB
}

// osUsername returns the current OS user for audit attribution, stripped of
// any Windows domain prefix.
func osUsername() string {
	curUser, err := user.Current()
	if err != nil {
		return "unknown"
	}
	if parts := strings.Split(curUser.Username, `\`); len(parts) > 1 {
		return parts[1]
	}
	return curUser.Username
}

// LogAction inserts an audit log entry attributed to the current OS user.
func (s *BunStore) LogAction(action string, details string) error {
	ctx := context.Background()
	entry := &AuditLogModel{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Username:  osUsername(),
		Action:    action,
		Details:   details,
	}
	_, err := s.bun.NewInsert().Model(entry).Exec(ctx)
	return MapDBError(err)
}

// GetAllAuditLogEntries retrieves audit log entries ordered by timestamp desc.
func (s *BunStore) GetAllAuditLogEntries() ([]model.AuditLogEntry, error) {
	ctx := context.Background()
	var am []AuditLogModel
	if err := s.bun.NewSelect().Model(&am).OrderExpr("timestamp DESC, id DESC").Scan(ctx); err != nil {
		return nil, err
	}
	return slicest.Map(am, func(a AuditLogModel) model.AuditLogEntry {
		return model.AuditLogEntry{ID: a.ID, Timestamp: a.Timestamp, Username: a.Username, Action: a.Action, Details: a.Details}
	}), nil
}

// GetKnownHostKey retrieves the pinned key for a hostname; empty when the
// host has not been trusted yet.
func (s *BunStore) GetKnownHostKey(hostname string) (string, error) {
	ctx := context.Background()
	var kh KnownHostModel
	err := s.bun.NewSelect().Model(&kh).Where("hostname = ?", hostname).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return kh.Key, nil
}

// AddKnownHostKey stores or replaces the pinned key for a hostname. The
// delete-then-insert runs in a transaction so it is portable across engines.
func (s *BunStore) AddKnownHostKey(hostname, key string) error {
	ctx := context.Background()
	err := s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*KnownHostModel)(nil)).Where("hostname = ?", hostname).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&KnownHostModel{Hostname: hostname, Key: key}).Exec(ctx)
		return err
	})
	return MapDBError(err)
}

// SaveRunReport persists a run report as a JSON payload and returns its ID.
func (s *BunStore) SaveRunReport(report *model.RunReport) (int, error) {
	ctx := context.Background()
	payload, err := json.Marshal(report)
	if err != nil {
		return 0, err
	}
	rm := &RunReportModel{
		StartedAt: report.StartedAt.UTC().Format(time.RFC3339),
		Status:    string(report.Status()),
		Payload:   string(payload),
	}
	if _, err := s.bun.NewInsert().Model(rm).Exec(ctx); err != nil {
		return 0, MapDBError(err)
	}
	return rm.ID, nil
}

// GetRunReports retrieves up to limit stored reports, most recent first.
// A non-positive limit returns all of them.
func (s *BunStore) GetRunReports(limit int) ([]StoredRunReport, error) {
	ctx := context.Background()
	var rms []RunReportModel
	q := s.bun.NewSelect().Model(&rms).OrderExpr("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return slicest.Map(rms, func(rm RunReportModel) StoredRunReport {
		return StoredRunReport{ID: rm.ID, StartedAt: rm.StartedAt, Status: rm.Status, Payload: rm.Payload}
	}), nil
}
