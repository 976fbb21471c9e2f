// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

// package desired loads and validates the declarative desired-state document.
// Validation failure is the one fleet-fatal error class: an invalid document
// cannot be partially interpreted, so the run aborts before any host is
// contacted.
package desired

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/toeirei/warden/internal/model"
	"github.com/toeirei/warden/internal/sshkey"
)

// ValidationError aggregates every problem found in a desired-state
// document. It is fatal for the whole run.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid desired state: %s", strings.Join(e.Problems, "; "))
}

// document is the YAML shape of the desired-state file.
type document struct {
	Admins []recordEntry `yaml:"admins"`
}

type recordEntry struct {
	Username  string     `yaml:"username"`
	State     string     `yaml:"state"`
	Keys      []string   `yaml:"ssh_public_keys"`
	UIDHint   int        `yaml:"uid_hint"`
	CreatedAt *time.Time `yaml:"created_at"`
}

// Load reads, parses and validates the desired-state document at path.
// It returns the validated records or a fatal error.
func Load(path string) ([]model.AdminRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read desired state %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses and validates a desired-state document.
func Parse(data []byte) ([]model.AdminRecord, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse desired state document: %w", err)
	}
	return validate(doc.Admins)
}

// validate checks every record and returns all problems at once rather than
// stopping at the first, so an operator can fix the document in one pass.
func validate(entries []recordEntry) ([]model.AdminRecord, error) {
	var problems []string
	seen := map[string]bool{}
	records := make([]model.AdminRecord, 0, len(entries))

	for i, e := range entries {
		name := strings.TrimSpace(e.Username)
		if name == "" {
			problems = append(problems, fmt.Sprintf("record %d: username is empty", i))
			continue
		}
		if seen[name] {
			problems = append(problems, fmt.Sprintf("record %d: duplicate username %q", i, name))
			continue
		}
		seen[name] = true

		state, err := model.ParseLifecycleState(e.State)
		if err != nil {
			problems = append(problems, fmt.Sprintf("record %q: %v", name, err))
			continue
		}

		keys := make([]string, 0, len(e.Keys))
		keysOK := true
		for _, k := range e.Keys {
			if _, _, _, err := sshkey.Parse(k); err != nil {
				problems = append(problems, fmt.Sprintf("record %q: malformed ssh key: %v", name, err))
				keysOK = false
				continue
			}
			keys = append(keys, strings.TrimSpace(k))
		}
		if !keysOK {
			continue
		}

		if e.UIDHint < 0 {
			problems = append(problems, fmt.Sprintf("record %q: negative uid_hint", name))
			continue
		}

		createdAt := time.Now().UTC()
		if e.CreatedAt != nil {
			createdAt = e.CreatedAt.UTC()
		}

		records = append(records, model.AdminRecord{
			Username:  name,
			State:     state,
			Keys:      keys,
			UIDHint:   e.UIDHint,
			CreatedAt: createdAt,
		})
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return records, nil
}
