// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"github.com/toeirei/warden/internal/model"
)

// Store defines the interface for all database operations in Warden.
// This allows for multiple database backends to be implemented.
type Store interface {
	// Audit log methods
	LogAction(action string, details string) error
	GetAllAuditLogEntries() ([]model.AuditLogEntry, error)

	// Host key methods
	GetKnownHostKey(hostname string) (string, error)
	AddKnownHostKey(hostname, key string) error

	// Run report methods
	SaveRunReport(report *model.RunReport) (int, error)
	GetRunReports(limit int) ([]StoredRunReport, error)
}

// StoredRunReport is a persisted reconciliation run with its JSON payload.
type StoredRunReport struct {
	ID        int
	StartedAt string
	Status    string
	Payload   string
}

// SetStore replaces the package-level store. Primarily for tests.
func SetStore(s Store) { store = s }

// GetStore returns the package-level store, or nil when uninitialized.
func GetStore() Store { return store }

// LogAction records an audit trail event.
func LogAction(action string, details string) error {
	return store.LogAction(action, details)
}

// GetAllAuditLogEntries retrieves all entries from the audit log, most recent first.
func GetAllAuditLogEntries() ([]model.AuditLogEntry, error) {
	return store.GetAllAuditLogEntries()
}

// GetKnownHostKey retrieves the trusted public key for a given hostname.
func GetKnownHostKey(hostname string) (string, error) {
	return store.GetKnownHostKey(hostname)
}

// AddKnownHostKey adds a new trusted host key to the database.
func AddKnownHostKey(hostname, key string) error {
	return store.AddKnownHostKey(hostname, key)
}

// SaveRunReport persists a reconciliation run report and returns its ID.
func SaveRunReport(report *model.RunReport) (int, error) {
	return store.SaveRunReport(report)
}

// GetRunReports retrieves up to limit stored run reports, most recent first.
func GetRunReports(limit int) ([]StoredRunReport, error) {
	return store.GetRunReports(limit)
}
