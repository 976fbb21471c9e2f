// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/toeirei/warden/internal/model"
)

func sampleReport() *model.RunReport {
	return &model.RunReport{
		StartedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 3, 1, 12, 0, 42, 0, time.UTC),
		Hosts: []model.HostResult{
			{
				Host:   "db-1",
				Status: model.HostUnreachable,
				Error:  "dial tcp: connection refused",
			},
			{
				Host:   "web-1",
				Status: model.HostPartial,
				Units: []model.UnitResult{
					{
						Username: "gchapman",
						Desired:  model.StatePresent,
						Status:   model.UnitSuccess,
						Actions: []model.ActionResult{
							{Action: model.Action{Kind: model.ActionCreateUser, Shell: "/bin/bash"}, Status: model.ActionApplied},
							{Action: model.Action{Kind: model.ActionSetGroupMembership, Group: "wheel", Member: true}, Status: model.ActionApplied},
						},
					},
					{
						Username: "jcleese",
						Desired:  model.StateDecom,
						Status:   model.UnitFailed,
						Error:    "disk full",
						Actions: []model.ActionResult{
							{Action: model.Action{Kind: model.ActionCreateArchive, Path: "/var/archives/warden/jcleese-1.tar.gz"}, Status: model.ActionFailed, Error: "disk full"},
						},
					},
					{
						Username: "eidle",
						Desired:  model.StateRevoked,
						Status:   model.UnitSuccess,
					},
				},
			},
		},
	}
}

func TestExportJSONRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSON(&buf, sampleReport()); err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("output should be indented")
	}
	var decoded model.RunReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output does not decode: %v", err)
	}
	if len(decoded.Hosts) != 2 || decoded.Hosts[1].Units[1].Error != "disk full" {
		t.Errorf("round trip lost data: %+v", decoded)
	}
}

func TestExportZstdRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportZstd(&buf, sampleReport()); err != nil {
		t.Fatalf("ExportZstd failed: %v", err)
	}
	decoded, err := ReadZstd(&buf)
	if err != nil {
		t.Fatalf("ReadZstd failed: %v", err)
	}
	if decoded.Status() != model.HostPartial {
		t.Errorf("status after round trip = %s", decoded.Status())
	}
	if decoded.Hosts[0].Host != "db-1" || decoded.Hosts[0].Status != model.HostUnreachable {
		t.Errorf("host data lost: %+v", decoded.Hosts[0])
	}
}

func TestReadZstdRejectsGarbage(t *testing.T) {
	if _, err := ReadZstd(strings.NewReader("not a zstd frame")); err == nil {
		t.Fatal("expected an error for a non-zstd stream")
	}
}

func TestExportCSVShape(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportCSV(&buf, sampleReport()); err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid csv: %v", err)
	}
	// header + unreachable host + 2 gchapman actions + 1 jcleese action + eidle no-op unit
	if len(rows) != 6 {
		t.Fatalf("expected 6 rows, got %d: %v", len(rows), rows)
	}
	if rows[0][0] != "host" || rows[0][7] != "error" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][0] != "db-1" || rows[1][1] != "unreachable" || rows[1][7] == "" {
		t.Errorf("unreachable host row: %v", rows[1])
	}
	if rows[4][2] != "jcleese" || rows[4][6] != "failed" || rows[4][7] != "disk full" {
		t.Errorf("failed action row: %v", rows[4])
	}
	if rows[5][2] != "eidle" || rows[5][5] != "" {
		t.Errorf("actionless unit row: %v", rows[5])
	}
}
