// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

// package sshkey parses authorized_keys material. It is used to validate keys
// in the desired-state document and to normalize keys observed on hosts so
// the planner can compare them as sets.
package sshkey

import (
	"fmt"
	"strings"
)

// Parse splits a raw public key string (like one from an authorized_keys file)
// into its three core components: algorithm, key data, and comment.
// It correctly handles leading options in the line (e.g., from="...",command="...").
func Parse(rawKey string) (algorithm, keyData, comment string, err error) {
	fields := strings.Fields(rawKey)
	if len(fields) == 0 {
		err = fmt.Errorf("empty line")
		return
	}

	keyStartIndex := -1
	for i, field := range fields {
		if strings.HasPrefix(field, "ssh-") || strings.HasPrefix(field, "ecdsa-") || strings.HasPrefix(field, "sk-") {
			keyStartIndex = i
			break
		}
	}

	if keyStartIndex == -1 {
		err = fmt.Errorf("no valid SSH key type found in line")
		return
	}

	if len(fields) < keyStartIndex+2 {
		err = fmt.Errorf("invalid public key format: missing key data after algorithm")
		return
	}

	algorithm = fields[keyStartIndex]
	keyData = fields[keyStartIndex+1]
	if len(fields) > keyStartIndex+2 {
		comment = strings.Join(fields[keyStartIndex+2:], " ")
	}

	return
}

// Normalize reduces a raw authorized_keys line to its identity form
// "algorithm keydata", dropping options and comments. Two keys are the same
// key exactly when their normalized forms are equal.
func Normalize(rawKey string) (string, error) {
	algorithm, keyData, _, err := Parse(rawKey)
	if err != nil {
		return "", err
	}
	return algorithm + " " + keyData, nil
}

// NormalizeAll normalizes every non-empty, non-comment line of the given
// lines, skipping lines that do not parse. It is used on probed host content
// where unmanaged garbage must not abort evaluation.
func NormalizeAll(lines []string) []string {
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if n, err := Normalize(trimmed); err == nil {
			out = append(out, n)
		}
	}
	return out
}
