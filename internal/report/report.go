// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

// Package report renders run reports for operators and downstream tooling.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/toeirei/warden/internal/model"
)

// ExportJSON writes the report as indented JSON.
func ExportJSON(w io.Writer, r *model.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// ExportZstd writes the report as zstd-compressed JSON, suitable for
// long-term retention.
func ExportZstd(w io.Writer, r *model.RunReport) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	defer func() { _ = zw.Close() }()
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return zw.Close()
}

// ReadZstd decodes a report previously written by ExportZstd.
func ReadZstd(r io.Reader) (*model.RunReport, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()
	var out model.RunReport
	if err := json.NewDecoder(zr).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &out, nil
}

// ExportCSV writes one row per attempted action, plus a row for units that
// finished without any actions. The flat shape is meant for spreadsheets and
// quick grep-style triage.
func ExportCSV(w io.Writer, r *model.RunReport) error {
	cw := csv.NewWriter(w)
	header := []string{"host", "host_status", "username", "desired", "unit_status", "action", "action_status", "error"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, h := range r.Hosts {
		if len(h.Units) == 0 {
			row := []string{h.Host, string(h.Status), "", "", "", "", "", h.Error}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
			continue
		}
		for _, u := range h.Units {
			if len(u.Actions) == 0 {
				row := []string{h.Host, string(h.Status), u.Username, string(u.Desired), string(u.Status), "", "", u.Error}
				if err := cw.Write(row); err != nil {
					return fmt.Errorf("write csv row: %w", err)
				}
				continue
			}
			for _, a := range u.Actions {
				row := []string{h.Host, string(h.Status), u.Username, string(u.Desired), string(u.Status), a.Action.String(), string(a.Status), a.Error}
				if err := cw.Write(row); err != nil {
					return fmt.Errorf("write csv row: %w", err)
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
