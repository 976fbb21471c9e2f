// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/toeirei/warden/internal/model"
)

func TestAuditLogRoundTrip(t *testing.T) {
	WithTestStore(t, func(s *BunStore) {
		if err := LogAction("reconcile_unit", "host=web-1 user=gchapman status=success"); err != nil {
			t.Fatalf("LogAction failed: %v", err)
		}
		if err := LogAction("trust_host", "host=web-2"); err != nil {
			t.Fatalf("LogAction failed: %v", err)
		}

		entries, err := GetAllAuditLogEntries()
		if err != nil {
			t.Fatalf("GetAllAuditLogEntries failed: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		// Most recent first: equal timestamps fall back to id order.
		if entries[0].Action != "trust_host" || entries[1].Action != "reconcile_unit" {
			t.Errorf("unexpected order: %s, %s", entries[0].Action, entries[1].Action)
		}
		for _, e := range entries {
			if e.Username == "" {
				t.Errorf("entry %d has no username attribution", e.ID)
			}
			if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
				t.Errorf("entry %d timestamp %q not RFC3339: %v", e.ID, e.Timestamp, err)
			}
		}
	})
}

func TestKnownHostKeyLifecycle(t *testing.T) {
	WithTestStore(t, func(s *BunStore) {
		key, err := GetKnownHostKey("web-1")
		if err != nil {
			t.Fatalf("GetKnownHostKey failed: %v", err)
		}
		if key != "" {
			t.Fatalf("untrusted host must yield empty key, got %q", key)
		}

		if err := AddKnownHostKey("web-1", "ssh-ed25519 AAAAfirst"); err != nil {
			t.Fatalf("AddKnownHostKey failed: %v", err)
		}
		key, err = GetKnownHostKey("web-1")
		if err != nil || key != "ssh-ed25519 AAAAfirst" {
			t.Fatalf("got key %q, err %v", key, err)
		}

		// Re-trusting replaces the pinned key.
		if err := AddKnownHostKey("web-1", "ssh-ed25519 AAAAsecond"); err != nil {
			t.Fatalf("AddKnownHostKey replace failed: %v", err)
		}
		key, err = GetKnownHostKey("web-1")
		if err != nil || key != "ssh-ed25519 AAAAsecond" {
			t.Fatalf("got key %q, err %v", key, err)
		}
	})
}

func TestRunReportPersistence(t *testing.T) {
	WithTestStore(t, func(s *BunStore) {
		report := &model.RunReport{
			StartedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			FinishedAt: time.Date(2026, 3, 1, 12, 0, 42, 0, time.UTC),
			Hosts: []model.HostResult{{
				Host:   "web-1",
				Status: model.HostSuccess,
				Units: []model.UnitResult{{
					Username: "gchapman",
					Desired:  model.StatePresent,
					Status:   model.UnitSuccess,
				}},
			}},
		}
		id, err := SaveRunReport(report)
		if err != nil {
			t.Fatalf("SaveRunReport failed: %v", err)
		}
		if id <= 0 {
			t.Fatalf("expected positive report id, got %d", id)
		}

		later := &model.RunReport{
			StartedAt:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			FinishedAt: time.Date(2026, 3, 2, 9, 1, 0, 0, time.UTC),
			Hosts:      []model.HostResult{{Host: "web-1", Status: model.HostUnreachable}},
		}
		if _, err := SaveRunReport(later); err != nil {
			t.Fatalf("SaveRunReport failed: %v", err)
		}

		stored, err := GetRunReports(0)
		if err != nil {
			t.Fatalf("GetRunReports failed: %v", err)
		}
		if len(stored) != 2 {
			t.Fatalf("expected 2 stored reports, got %d", len(stored))
		}
		if stored[0].StartedAt != "2026-03-02T09:00:00Z" {
			t.Errorf("most recent first, got %s", stored[0].StartedAt)
		}
		if stored[0].Status != string(model.HostFailed) {
			t.Errorf("all-unreachable run status = %s", stored[0].Status)
		}

		var decoded model.RunReport
		if err := json.Unmarshal([]byte(stored[1].Payload), &decoded); err != nil {
			t.Fatalf("payload does not decode: %v", err)
		}
		if len(decoded.Hosts) != 1 || decoded.Hosts[0].Units[0].Username != "gchapman" {
			t.Errorf("payload round trip lost data: %+v", decoded)
		}

		limited, err := GetRunReports(1)
		if err != nil {
			t.Fatalf("GetRunReports(1) failed: %v", err)
		}
		if len(limited) != 1 || limited[0].ID != stored[0].ID {
			t.Errorf("limit must keep the most recent report")
		}
	})
}

func TestIsInitialized(t *testing.T) {
	prev := store
	defer func() { store = prev }()
	store = nil
	if IsInitialized() {
		t.Error("nil store must report uninitialized")
	}
	WithTestStore(t, func(s *BunStore) {
		if !IsInitialized() {
			t.Error("store must report initialized")
		}
	})
}
