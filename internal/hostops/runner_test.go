// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package hostops

import "testing"

func TestShQuote(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"gchapman", "'gchapman'"},
		{"", "''"},
		{"a b", "'a b'"},
		{"o'brien", `'o'\''brien'`},
		{"$(reboot)", "'$(reboot)'"},
	}
	for _, c := range cases {
		if got := shQuote(c.in); got != c.want {
			t.Errorf("shQuote(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeApplied.String() != "applied" {
		t.Errorf("applied = %s", OutcomeApplied)
	}
	if OutcomeNoop.String() != "noop" {
		t.Errorf("noop = %s", OutcomeNoop)
	}
}
