// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package desired

import (
	"errors"
	"strings"
	"testing"

	"github.com/toeirei/warden/internal/model"
)

const validDoc = `
admins:
  - username: gchapman
    state: present
    ssh_public_keys:
      - ssh-ed25519 AAAAC3Nza gchapman@bastion
    uid_hint: 1205
  - username: jcleese
    state: revoked
  - username: eidle
    state: decom
    created_at: 2025-11-02T09:30:00Z
`

func TestParseValidDocument(t *testing.T) {
	records, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Username != "gchapman" || records[0].State != model.StatePresent {
		t.Errorf("record 0 = %+v", records[0])
	}
	if records[0].UIDHint != 1205 {
		t.Errorf("uid_hint = %d", records[0].UIDHint)
	}
	if records[1].State != model.StateRevoked {
		t.Errorf("record 1 state = %s", records[1].State)
	}
	if records[2].CreatedAt.Year() != 2025 {
		t.Errorf("created_at not honored: %v", records[2].CreatedAt)
	}
	if records[1].CreatedAt.IsZero() {
		t.Error("created_at must default to now")
	}
}

func TestParseCollectsAllProblems(t *testing.T) {
	doc := `
admins:
  - username: ""
    state: present
  - username: gchapman
    state: lingering
  - username: gchapman
    state: present
  - username: jcleese
    state: present
    ssh_public_keys:
      - not a key
  - username: eidle
    state: present
    uid_hint: -5
`
	_, err := Parse([]byte(doc))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) != 5 {
		t.Fatalf("expected 5 problems, got %d: %v", len(verr.Problems), verr.Problems)
	}
	for _, want := range []string{"username is empty", "lingering", "duplicate", "malformed ssh key", "negative uid_hint"} {
		found := false
		for _, p := range verr.Problems {
			if strings.Contains(p, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no problem mentions %q: %v", want, verr.Problems)
		}
	}
}

func TestParseRejectsBrokenYAML(t *testing.T) {
	if _, err := Parse([]byte("admins: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/admins.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
