// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

// Package probe observes the real state of a managed account on a host.
// Probing is strictly read-only; everything that mutates the host lives in
// hostops.
package probe

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/toeirei/warden/internal/model"
	"github.com/toeirei/warden/internal/sshkey"
)

// Session is the read side of a host connection.
type Session interface {
	RunStatus(ctx context.Context, cmd string) (string, int, error)
	Stat(path string) (bool, error)
	ReadFile(path string) ([]byte, error)
	List(dir string) ([]string, error)
}

// HostUnreachableError wraps transport failures during probing so callers
// can distinguish "could not look" from "looked and it isn't there".
type HostUnreachableError struct {
	Host string
	Err  error
}

func (e *HostUnreachableError) Error() string {
	return fmt.Sprintf("host %s unreachable: %v", e.Host, e.Err)
}

func (e *HostUnreachableError) Unwrap() error { return e.Err }

func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Params carries the host conventions the probe needs.
type Params struct {
	AdminGroup  string // supplementary group that grants admin rights
	ArchiveRoot string // directory holding home archives
	HomeBase    string // base directory for orphan-home lookup; /home when empty
}

// Evaluate collects the full actual state of one account on one host.
func Evaluate(ctx context.Context, sess Session, host, username string, p Params) (model.HostActualState, error) {
	var actual model.HostActualState

	out, code, err := sess.RunStatus(ctx, "getent passwd "+shQuote(username))
	if err != nil {
		return actual, &HostUnreachableError{Host: host, Err: err}
	}

	if code == 0 {
		actual.Exists = true
		fields := strings.Split(strings.TrimSpace(out), ":")
		if len(fields) < 7 {
			return actual, fmt.Errorf("malformed passwd entry for %s on %s", username, host)
		}
		if uid, err := strconv.Atoi(fields[2]); err == nil {
			actual.UID = uid
		}
		actual.HomeDir = fields[5]
		actual.Shell = fields[6]
	}

	if actual.Exists {
		if err := evaluateAccount(ctx, sess, host, username, p.AdminGroup, &actual); err != nil {
			return actual, err
		}
	} else {
		// An orphaned home directory matters for the recreate-vs-restore
		// decision, so look for it even when the account is gone.
		base := p.HomeBase
		if base == "" {
			base = "/home"
		}
		home := path.Join(base, username)
		exists, err := sess.Stat(home)
		if err != nil {
			return actual, &HostUnreachableError{Host: host, Err: err}
		}
		actual.HomeDir = home
		actual.HomeExists = exists
	}

	if err := evaluateArchive(sess, username, p.ArchiveRoot, &actual); err != nil {
		return actual, err
	}
	return actual, nil
}

func evaluateAccount(ctx context.Context, sess Session, host, username, adminGroup string, actual *model.HostActualState) error {
	out, code, err := sess.RunStatus(ctx, "id -nG "+shQuote(username))
	if err != nil {
		return &HostUnreachableError{Host: host, Err: err}
	}
	if code == 0 {
		for _, g := range strings.Fields(out) {
			if g == adminGroup {
				actual.InAdminGroup = true
				break
			}
		}
	}

	if err := evaluateShadow(ctx, sess, host, username, actual); err != nil {
		return err
	}

	exists, err := sess.Stat(actual.HomeDir)
	if err != nil {
		return &HostUnreachableError{Host: host, Err: err}
	}
	actual.HomeExists = exists

	if exists {
		keyPath := path.Join(actual.HomeDir, ".ssh", "authorized_keys")
		if raw, err := sess.ReadFile(keyPath); err == nil {
			actual.Keys = sshkey.NormalizeAll(strings.Split(string(raw), "\n"))
		}
	}
	return nil
}

// evaluateShadow derives the password lock and expiry flags. The shadow
// entry is authoritative; passwd -S is the fallback for hosts where getent
// cannot read it.
func evaluateShadow(ctx context.Context, sess Session, host, username string, actual *model.HostActualState) error {
	out, code, err := sess.RunStatus(ctx, "getent shadow "+shQuote(username))
	if err != nil {
		return &HostUnreachableError{Host: host, Err: err}
	}
	if code == 0 {
		fields := strings.Split(strings.TrimSpace(out), ":")
		if len(fields) >= 2 {
			hash := fields[1]
			actual.PasswordLocked = strings.HasPrefix(hash, "!") || strings.HasPrefix(hash, "*")
		}
		if len(fields) >= 8 && fields[7] != "" {
			if days, err := strconv.Atoi(fields[7]); err == nil {
				today := int(time.Now().UTC().Unix() / 86400)
				actual.AccountExpired = days >= 0 && days <= today
			}
		}
		return nil
	}

	out, code, err = sess.RunStatus(ctx, "passwd -S "+shQuote(username))
	if err != nil {
		return &HostUnreachableError{Host: host, Err: err}
	}
	if code == 0 {
		fields := strings.Fields(out)
		if len(fields) >= 2 {
			actual.PasswordLocked = fields[1] == "L" || fields[1] == "LK"
		}
	}
	return nil
}

// evaluateArchive looks for any archive of the user under the archive root.
// A listing failure on a missing root just means no archive yet.
func evaluateArchive(sess Session, username, archiveRoot string, actual *model.HostActualState) error {
	names, err := sess.List(archiveRoot)
	if err != nil {
		return nil
	}
	for _, name := range names {
		if isArchiveOf(name, username) {
			actual.ArchiveExists = true
			actual.ArchivePath = path.Join(archiveRoot, name)
			return nil
		}
	}
	return nil
}

// isArchiveOf reports whether name is an archive artifact of exactly this
// user. Archive names are <username>-<unix>.tar.gz; the timestamp stem must
// be all digits so that user "bob" never claims "bob-smith-<ts>.tar.gz".
func isArchiveOf(name, username string) bool {
	stem, ok := strings.CutPrefix(name, username+"-")
	if !ok {
		return false
	}
	stem, ok = strings.CutSuffix(stem, ".tar.gz")
	if !ok || stem == "" {
		return false
	}
	for _, r := range stem {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
