// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package hostops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"strings"
	"time"
)

// Runner implements Primitives over an established SSH connection. All
// commands assume the configured connect user has the privilege to manage
// accounts (root or equivalent).
type Runner struct {
	conn *Conn
}

// NewRunner wraps a connection in a primitive runner.
func NewRunner(conn *Conn) *Runner {
	return &Runner{conn: conn}
}

// shQuote single-quotes s for safe interpolation into a shell command line.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// userExists checks the passwd database.
func (r *Runner) userExists(ctx context.Context, username string) (bool, error) {
	_, code, err := r.conn.RunStatus(ctx, "getent passwd "+shQuote(username))
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

// CreateUser creates the account with its home directory and interactive
// shell. An existing account is a no-op.
func (r *Runner) CreateUser(ctx context.Context, username, shell string, uidHint int) (Outcome, error) {
	exists, err := r.userExists(ctx, username)
	if err != nil {
		return OutcomeNoop, err
	}
	if exists {
		return OutcomeNoop, nil
	}

	cmd := "useradd -m -s " + shQuote(shell)
	if uidHint > 0 {
		cmd += fmt.Sprintf(" -u %d", uidHint)
	}
	cmd += " -c 'warden managed' " + shQuote(username)
	if _, err := r.conn.Run(ctx, cmd); err != nil {
		return OutcomeNoop, fmt.Errorf("useradd %s: %w", username, err)
	}
	return OutcomeApplied, nil
}

// DeleteUser removes the account and its home directory. Deletion is
// existence-checked so repeated runs converge to a no-op.
func (r *Runner) DeleteUser(ctx context.Context, username string) (Outcome, error) {
	exists, err := r.userExists(ctx, username)
	if err != nil {
		return OutcomeNoop, err
	}
	if !exists {
		return OutcomeNoop, nil
	}
	if _, err := r.conn.Run(ctx, "userdel -r "+shQuote(username)); err != nil {
		return OutcomeNoop, fmt.Errorf("userdel %s: %w", username, err)
	}
	return OutcomeApplied, nil
}

// SetGroupMembership converges the user's membership of one group.
func (r *Runner) SetGroupMembership(ctx context.Context, username, group string, member bool) (Outcome, error) {
	out, code, err := r.conn.RunStatus(ctx, "id -nG "+shQuote(username))
	if err != nil {
		return OutcomeNoop, err
	}
	inGroup := false
	if code == 0 {
		for _, g := range strings.Fields(out) {
			if g == group {
				inGroup = true
				break
			}
		}
	}
	if inGroup == member {
		return OutcomeNoop, nil
	}

	flag := "-d"
	if member {
		flag = "-a"
	}
	if _, err := r.conn.Run(ctx, fmt.Sprintf("gpasswd %s %s %s", flag, shQuote(username), shQuote(group))); err != nil {
		return OutcomeNoop, fmt.Errorf("gpasswd %s %s: %w", flag, username, err)
	}
	return OutcomeApplied, nil
}

// homeDirOf reads the home directory from the passwd entry.
func (r *Runner) homeDirOf(ctx context.Context, username string) (string, error) {
	out, err := r.conn.Run(ctx, "getent passwd "+shQuote(username))
	if err != nil {
		return "", err
	}
	fields := strings.Split(strings.TrimSpace(out), ":")
	if len(fields) < 7 {
		return "", fmt.Errorf("malformed passwd entry for %s", username)
	}
	return fields[5], nil
}

// InstallKeys rewrites the user's authorized_keys to exactly the given set.
// The file is uploaded to a temporary path and moved into place so readers
// never observe a partial write.
func (r *Runner) InstallKeys(ctx context.Context, username string, keys []string) (Outcome, error) {
	home, err := r.homeDirOf(ctx, username)
	if err != nil {
		return OutcomeNoop, err
	}
	content := strings.Join(keys, "\n") + "\n"

	finalPath := path.Join(home, ".ssh", "authorized_keys")
	if current, err := r.conn.ReadFile(finalPath); err == nil {
		if strings.TrimSpace(string(current)) == strings.TrimSpace(content) {
			return OutcomeNoop, nil
		}
	}

	tmpPath := fmt.Sprintf("/tmp/warden-keys-%d", time.Now().UnixNano())
	f, err := r.conn.sftp.Create(tmpPath)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("failed to create temporary key file: %w", err)
	}
	if _, err := f.Write([]byte(content)); err != nil {
		f.Close()
		_ = r.conn.sftp.Remove(tmpPath)
		return OutcomeNoop, fmt.Errorf("failed to write temporary key file: %w", err)
	}
	f.Close()

	install := fmt.Sprintf(
		"install -d -m 700 -o %[1]s %[2]s && install -m 600 -o %[1]s %[3]s %[4]s && rm -f %[3]s",
		shQuote(username), shQuote(path.Join(home, ".ssh")), shQuote(tmpPath), shQuote(finalPath),
	)
	if _, err := r.conn.Run(ctx, install); err != nil {
		_ = r.conn.sftp.Remove(tmpPath)
		return OutcomeNoop, fmt.Errorf("failed to install authorized_keys for %s: %w", username, err)
	}
	return OutcomeApplied, nil
}

// RemoveKeys deletes the user's authorized_keys file.
func (r *Runner) RemoveKeys(ctx context.Context, username string) (Outcome, error) {
	home, err := r.homeDirOf(ctx, username)
	if err != nil {
		return OutcomeNoop, err
	}
	keyPath := path.Join(home, ".ssh", "authorized_keys")
	exists, err := r.conn.Stat(keyPath)
	if err != nil {
		return OutcomeNoop, err
	}
	if !exists {
		return OutcomeNoop, nil
	}
	if err := r.conn.sftp.Remove(keyPath); err != nil {
		return OutcomeNoop, fmt.Errorf("failed to remove authorized_keys for %s: %w", username, err)
	}
	return OutcomeApplied, nil
}

// LockPassword disables password authentication for the account.
func (r *Runner) LockPassword(ctx context.Context, username string) (Outcome, error) {
	if _, err := r.conn.Run(ctx, "usermod -L "+shQuote(username)); err != nil {
		return OutcomeNoop, fmt.Errorf("usermod -L %s: %w", username, err)
	}
	return OutcomeApplied, nil
}

// UnlockPassword re-enables password authentication for the account.
func (r *Runner) UnlockPassword(ctx context.Context, username string) (Outcome, error) {
	if _, err := r.conn.Run(ctx, "usermod -U "+shQuote(username)); err != nil {
		return OutcomeNoop, fmt.Errorf("usermod -U %s: %w", username, err)
	}
	return OutcomeApplied, nil
}

// SetAccountExpiry sets (or with an empty value clears) the account expiry
// date.
func (r *Runner) SetAccountExpiry(ctx context.Context, username, expiry string) (Outcome, error) {
	if _, err := r.conn.Run(ctx, fmt.Sprintf("usermod -e %s %s", shQuote(expiry), shQuote(username))); err != nil {
		return OutcomeNoop, fmt.Errorf("usermod -e %s: %w", username, err)
	}
	return OutcomeApplied, nil
}

// SetLoginShell changes the account's login shell.
func (r *Runner) SetLoginShell(ctx context.Context, username, shell string) (Outcome, error) {
	if _, err := r.conn.Run(ctx, fmt.Sprintf("usermod -s %s %s", shQuote(shell), shQuote(username))); err != nil {
		return OutcomeNoop, fmt.Errorf("usermod -s %s: %w", username, err)
	}
	return OutcomeApplied, nil
}

// SetInitialPassword sets a random initial password and, when forceChange is
// set, expires it so the user must choose a new one at first login. The
// generated secret is never logged or stored.
func (r *Runner) SetInitialPassword(ctx context.Context, username string, forceChange bool) (Outcome, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return OutcomeNoop, fmt.Errorf("failed to generate initial password: %w", err)
	}
	secret := hex.EncodeToString(buf)

	cmd := fmt.Sprintf("echo %s | chpasswd", shQuote(username+":"+secret))
	if forceChange {
		cmd += " && chage -d 0 " + shQuote(username)
	}
	if _, err := r.conn.Run(ctx, cmd); err != nil {
		return OutcomeNoop, fmt.Errorf("failed to set initial password for %s: %w", username, err)
	}
	return OutcomeApplied, nil
}

// CreateArchiveExclusive archives homeDir to archivePath with at-most-once
// semantics. The archive path itself is claimed with an exclusive create
// before any data is written; a concurrent run that loses the claim race
// observes the file and reports a no-op. The tarball is then written to a
// partial path and renamed over our own claim, so a completed archive only
// ever appears whole.
func (r *Runner) CreateArchiveExclusive(ctx context.Context, username, homeDir, archivePath string) (Outcome, error) {
	if err := r.conn.sftp.MkdirAll(path.Dir(archivePath)); err != nil {
		return OutcomeNoop, fmt.Errorf("failed to create archive directory: %w", err)
	}

	claim, err := r.conn.sftp.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL)
	if err != nil {
		// Lost the race (or a prior run already archived): not a failure.
		if exists, statErr := r.conn.Stat(archivePath); statErr == nil && exists {
			return OutcomeNoop, nil
		}
		return OutcomeNoop, fmt.Errorf("failed to claim archive path %s: %w", archivePath, err)
	}
	claim.Close()

	partial := archivePath + ".partial"
	tar := fmt.Sprintf("tar -C %s -czf %s . && mv -f %s %s",
		shQuote(homeDir), shQuote(partial), shQuote(partial), shQuote(archivePath))
	if _, err := r.conn.Run(ctx, tar); err != nil {
		// Release the claim so a later run can retry the archive.
		_ = r.conn.sftp.Remove(partial)
		_ = r.conn.sftp.Remove(archivePath)
		return OutcomeNoop, fmt.Errorf("failed to archive %s: %w", homeDir, err)
	}
	return OutcomeApplied, nil
}

// RemoveHomeDirectory removes the user's home directory. The archive-before-
// remove ordering is the planner's responsibility; this primitive only
// refuses obviously dangerous paths.
func (r *Runner) RemoveHomeDirectory(ctx context.Context, username, homeDir string) (Outcome, error) {
	cleaned := path.Clean(homeDir)
	if cleaned == "/" || cleaned == "." || cleaned == "" {
		return OutcomeNoop, fmt.Errorf("refusing to remove home directory %q", homeDir)
	}
	exists, err := r.conn.Stat(cleaned)
	if err != nil {
		return OutcomeNoop, err
	}
	if !exists {
		return OutcomeNoop, nil
	}
	if _, err := r.conn.Run(ctx, "rm -rf -- "+shQuote(cleaned)); err != nil {
		return OutcomeNoop, fmt.Errorf("failed to remove home %s: %w", cleaned, err)
	}
	return OutcomeApplied, nil
}
