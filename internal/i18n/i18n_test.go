// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package i18n

import (
	"strings"
	"testing"
)

func TestTKnownMessage(t *testing.T) {
	Init("en")
	msg := T("reconcile.start")
	if msg == "reconcile.start" {
		t.Fatal("known message id must resolve to a translation")
	}
	if !strings.Contains(msg, "%d") {
		t.Errorf("expected printf verbs in %q", msg)
	}
}

func TestTUnknownMessageFallsBackToID(t *testing.T) {
	Init("en")
	if got := T("no.such.message"); got != "no.such.message" {
		t.Errorf("got %q", got)
	}
}

func TestTInitializesLazily(t *testing.T) {
	localizer = nil
	if got := T("passphrase.prompt"); got == "" || got == "passphrase.prompt" {
		t.Errorf("lazy init failed, got %q", got)
	}
}
