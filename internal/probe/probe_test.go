// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package probe

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
)

// scriptSession returns canned command output keyed by command prefix.
type scriptSession struct {
	outputs map[string]string // cmd -> output; missing means exit 2
	files   map[string]string
	dirs    map[string][]string
	err     error // transport error injected into every call
}

func (s *scriptSession) RunStatus(ctx context.Context, cmd string) (string, int, error) {
	if s.err != nil {
		return "", 0, s.err
	}
	if out, ok := s.outputs[cmd]; ok {
		return out, 0, nil
	}
	return "", 2, nil
}

func (s *scriptSession) Stat(path string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.files[path]; ok {
		return true, nil
	}
	_, ok := s.dirs[path]
	return ok, nil
}

func (s *scriptSession) ReadFile(path string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if content, ok := s.files[path]; ok {
		return []byte(content), nil
	}
	return nil, os.ErrNotExist
}

func (s *scriptSession) List(dir string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	if names, ok := s.dirs[dir]; ok {
		return names, nil
	}
	return nil, os.ErrNotExist
}

func TestEvaluateActiveAccount(t *testing.T) {
	sess := &scriptSession{
		outputs: map[string]string{
			"getent passwd 'gchapman'": "gchapman:x:1205:1205::/home/gchapman:/bin/bash\n",
			"id -nG 'gchapman'":        "gchapman wheel\n",
			"getent shadow 'gchapman'": "gchapman:$6$hash:19700:0:99999:7:::\n",
		},
		files: map[string]string{
			"/home/gchapman/.ssh/authorized_keys": "ssh-ed25519 AAAAC3Nza gchapman@bastion\n",
		},
		dirs: map[string][]string{
			"/home/gchapman":       {},
			"/var/archives/warden": {},
		},
	}

	actual, err := Evaluate(context.Background(), sess, "web-1", "gchapman", Params{AdminGroup: "wheel", ArchiveRoot: "/var/archives/warden"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !actual.Exists || actual.UID != 1205 {
		t.Errorf("exists/uid = %v/%d", actual.Exists, actual.UID)
	}
	if !actual.InAdminGroup {
		t.Error("expected admin group membership")
	}
	if actual.PasswordLocked || actual.AccountExpired {
		t.Errorf("locked/expired = %v/%v", actual.PasswordLocked, actual.AccountExpired)
	}
	if actual.Shell != "/bin/bash" || actual.HomeDir != "/home/gchapman" || !actual.HomeExists {
		t.Errorf("shell/home = %q %q %v", actual.Shell, actual.HomeDir, actual.HomeExists)
	}
	if len(actual.Keys) != 1 || actual.Keys[0] != "ssh-ed25519 AAAAC3Nza" {
		t.Errorf("keys = %v", actual.Keys)
	}
	if actual.ArchiveExists {
		t.Error("no archive expected")
	}
}

func TestEvaluateRevokedAccount(t *testing.T) {
	sess := &scriptSession{
		outputs: map[string]string{
			"getent passwd 'gchapman'": "gchapman:x:1205:1205::/home/gchapman:/usr/sbin/nologin\n",
			"id -nG 'gchapman'":        "gchapman\n",
			"getent shadow 'gchapman'": "gchapman:!$6$hash:19700:0:99999:7::1:\n",
		},
		dirs: map[string][]string{"/home/gchapman": {}},
	}

	actual, err := Evaluate(context.Background(), sess, "web-1", "gchapman", Params{AdminGroup: "wheel", ArchiveRoot: "/var/archives/warden"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !actual.PasswordLocked {
		t.Error("shadow hash with ! prefix must read as locked")
	}
	if !actual.AccountExpired {
		t.Error("expire day 1 must read as expired")
	}
	if actual.InAdminGroup {
		t.Error("not in admin group")
	}
}

func TestEvaluatePasswdStatusFallback(t *testing.T) {
	sess := &scriptSession{
		outputs: map[string]string{
			"getent passwd 'gchapman'": "gchapman:x:1205:1205::/home/gchapman:/bin/bash\n",
			"id -nG 'gchapman'":        "gchapman wheel\n",
			"passwd -S 'gchapman'":     "gchapman L 01/01/2026 0 99999 7 -1\n",
		},
		dirs: map[string][]string{"/home/gchapman": {}},
	}

	actual, err := Evaluate(context.Background(), sess, "web-1", "gchapman", Params{AdminGroup: "wheel", ArchiveRoot: "/var/archives/warden"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !actual.PasswordLocked {
		t.Error("passwd -S fallback must detect the lock")
	}
}

func TestEvaluateMissingUserFindsOrphanHomeAndArchive(t *testing.T) {
	sess := &scriptSession{
		outputs: map[string]string{},
		dirs: map[string][]string{
			"/home/gchapman":       {},
			"/var/archives/warden": {"gchapman-1740830400.tar.gz", "other-123.tar.gz"},
		},
	}

	actual, err := Evaluate(context.Background(), sess, "web-1", "gchapman", Params{AdminGroup: "wheel", ArchiveRoot: "/var/archives/warden"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actual.Exists {
		t.Error("user must not exist")
	}
	if !actual.HomeExists {
		t.Error("orphan home must be observed")
	}
	if !actual.ArchiveExists || !strings.HasSuffix(actual.ArchivePath, "gchapman-1740830400.tar.gz") {
		t.Errorf("archive = %v %q", actual.ArchiveExists, actual.ArchivePath)
	}
}

func TestEvaluateArchiveRequiresExactUsername(t *testing.T) {
	sess := &scriptSession{
		outputs: map[string]string{
			"getent passwd 'bob'": "bob:x:1206:1206::/home/bob:/usr/sbin/nologin\n",
			"id -nG 'bob'":        "bob\n",
			"getent shadow 'bob'": "bob:!$6$hash:19700:0:99999:7::1:\n",
		},
		dirs: map[string][]string{
			"/home/bob": {},
			"/var/archives/warden": {
				"bob-smith-1740830400.tar.gz",
				"bob-backup.tar.gz",
				"bob-.tar.gz",
			},
		},
	}

	actual, err := Evaluate(context.Background(), sess, "web-1", "bob", Params{AdminGroup: "wheel", ArchiveRoot: "/var/archives/warden"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actual.ArchiveExists {
		t.Fatalf("a neighbor's archive must not be attributed to bob: %q", actual.ArchivePath)
	}

	sess.dirs["/var/archives/warden"] = append(sess.dirs["/var/archives/warden"], "bob-1740830400.tar.gz")
	actual, err = Evaluate(context.Background(), sess, "web-1", "bob", Params{AdminGroup: "wheel", ArchiveRoot: "/var/archives/warden"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !actual.ArchiveExists || !strings.HasSuffix(actual.ArchivePath, "bob-1740830400.tar.gz") {
		t.Errorf("bob's own archive must match: %v %q", actual.ArchiveExists, actual.ArchivePath)
	}
}

func TestEvaluateStarHashPrefixIsLocked(t *testing.T) {
	sess := &scriptSession{
		outputs: map[string]string{
			"getent passwd 'gchapman'": "gchapman:x:1205:1205::/home/gchapman:/usr/sbin/nologin\n",
			"id -nG 'gchapman'":        "gchapman\n",
			"getent shadow 'gchapman'": "gchapman:*LOCK*:19700:0:99999:7:::\n",
		},
		dirs: map[string][]string{"/home/gchapman": {}},
	}

	actual, err := Evaluate(context.Background(), sess, "web-1", "gchapman", Params{AdminGroup: "wheel", ArchiveRoot: "/var/archives/warden"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !actual.PasswordLocked {
		t.Error("shadow hash with * prefix must read as locked")
	}
}

func TestEvaluateOrphanHomeHonorsHomeBase(t *testing.T) {
	sess := &scriptSession{
		outputs: map[string]string{},
		dirs:    map[string][]string{"/srv/homes/gchapman": {}},
	}

	actual, err := Evaluate(context.Background(), sess, "web-1", "gchapman", Params{
		AdminGroup:  "wheel",
		ArchiveRoot: "/var/archives/warden",
		HomeBase:    "/srv/homes",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !actual.HomeExists || actual.HomeDir != "/srv/homes/gchapman" {
		t.Errorf("home = %q %v", actual.HomeDir, actual.HomeExists)
	}
}

func TestEvaluateMissingArchiveRootIsNotAnError(t *testing.T) {
	sess := &scriptSession{
		outputs: map[string]string{},
		dirs:    map[string][]string{},
	}
	actual, err := Evaluate(context.Background(), sess, "web-1", "gchapman", Params{AdminGroup: "wheel", ArchiveRoot: "/var/archives/warden"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actual.ArchiveExists {
		t.Error("no archive expected")
	}
}

func TestEvaluateTransportError(t *testing.T) {
	sess := &scriptSession{err: errors.New("connection reset")}
	_, err := Evaluate(context.Background(), sess, "web-1", "gchapman", Params{AdminGroup: "wheel", ArchiveRoot: "/var/archives/warden"})
	var unreach *HostUnreachableError
	if !errors.As(err, &unreach) {
		t.Fatalf("expected HostUnreachableError, got %v", err)
	}
	if unreach.Host != "web-1" {
		t.Errorf("host = %q", unreach.Host)
	}
}
