// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package reconcile

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/toeirei/warden/internal/hostops"
	"github.com/toeirei/warden/internal/model"
)

// FakeAccount is the mutable per-user state of a FakeSession host.
type FakeAccount struct {
	UID        int
	Shell      string
	Home       string
	Groups     []string
	Keys       []string
	Locked     bool
	ExpireDay  int // days since epoch; 0 means no expiry
	HomeExists bool
}

// FakeSession is an in-memory host used to test reconciliation without SSH.
// It implements both the probe surface and the host primitives, mutating its
// account table the way a real host would.
type FakeSession struct {
	mu          sync.Mutex
	Accounts    map[string]*FakeAccount
	OrphanHomes map[string]bool // home dirs that survive their account
	ArchiveRoot string
	Archives    map[string]bool // base names under ArchiveRoot

	// Fail injects an error for every primitive of the given kind.
	Fail map[model.ActionKind]error
}

// NewFakeSession returns an empty fake host with the given archive root.
func NewFakeSession(archiveRoot string) *FakeSession {
	return &FakeSession{
		Accounts:    map[string]*FakeAccount{},
		OrphanHomes: map[string]bool{},
		ArchiveRoot: archiveRoot,
		Archives:    map[string]bool{},
	}
}

func (f *FakeSession) Close() {}

func unquoteArg(cmd, prefix string) string {
	arg := strings.TrimPrefix(cmd, prefix)
	arg = strings.TrimSpace(arg)
	return strings.Trim(arg, "'")
}

// RunStatus emulates the probe commands.
func (f *FakeSession) RunStatus(ctx context.Context, cmd string) (string, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case strings.HasPrefix(cmd, "getent passwd "):
		u := unquoteArg(cmd, "getent passwd ")
		acc, ok := f.Accounts[u]
		if !ok {
			return "", 2, nil
		}
		return fmt.Sprintf("%s:x:%d:%d::%s:%s\n", u, acc.UID, acc.UID, acc.Home, acc.Shell), 0, nil
	case strings.HasPrefix(cmd, "id -nG "):
		u := unquoteArg(cmd, "id -nG ")
		acc, ok := f.Accounts[u]
		if !ok {
			return "", 1, nil
		}
		return strings.Join(acc.Groups, " ") + "\n", 0, nil
	case strings.HasPrefix(cmd, "getent shadow "):
		u := unquoteArg(cmd, "getent shadow ")
		acc, ok := f.Accounts[u]
		if !ok {
			return "", 2, nil
		}
		hash := "$6$fakehash"
		if acc.Locked {
			hash = "!" + hash
		}
		expire := ""
		if acc.ExpireDay > 0 {
			expire = fmt.Sprintf("%d", acc.ExpireDay)
		}
		return fmt.Sprintf("%s:%s:19700:0:99999:7::%s:\n", u, hash, expire), 0, nil
	case strings.HasPrefix(cmd, "passwd -S "):
		u := unquoteArg(cmd, "passwd -S ")
		acc, ok := f.Accounts[u]
		if !ok {
			return "", 1, nil
		}
		state := "P"
		if acc.Locked {
			state = "L"
		}
		return fmt.Sprintf("%s %s 01/01/2026 0 99999 7 -1\n", u, state), 0, nil
	}
	return "", 127, nil
}

func (f *FakeSession) Stat(p string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.Accounts {
		if acc.Home == p {
			return acc.HomeExists, nil
		}
	}
	if f.OrphanHomes[p] {
		return true, nil
	}
	return false, nil
}

func (f *FakeSession) ReadFile(p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.Accounts {
		if acc.HomeExists && p == path.Join(acc.Home, ".ssh", "authorized_keys") && len(acc.Keys) > 0 {
			return []byte(strings.Join(acc.Keys, "\n") + "\n"), nil
		}
	}
	return nil, os.ErrNotExist
}

func (f *FakeSession) List(dir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if dir != f.ArchiveRoot {
		return nil, os.ErrNotExist
	}
	names := make([]string, 0, len(f.Archives))
	for n := range f.Archives {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (f *FakeSession) failFor(kind model.ActionKind) error {
	if f.Fail == nil {
		return nil
	}
	return f.Fail[kind]
}

func (f *FakeSession) CreateUser(ctx context.Context, username, shell string, uidHint int) (hostops.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor(model.ActionCreateUser); err != nil {
		return hostops.OutcomeNoop, err
	}
	if _, ok := f.Accounts[username]; ok {
		return hostops.OutcomeNoop, nil
	}
	uid := uidHint
	if uid <= 0 {
		uid = 1000 + len(f.Accounts)
	}
	home := path.Join("/home", username)
	f.Accounts[username] = &FakeAccount{UID: uid, Shell: shell, Home: home, HomeExists: true}
	delete(f.OrphanHomes, home)
	return hostops.OutcomeApplied, nil
}

func (f *FakeSession) DeleteUser(ctx context.Context, username string) (hostops.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor(model.ActionDeleteUser); err != nil {
		return hostops.OutcomeNoop, err
	}
	if _, ok := f.Accounts[username]; !ok {
		return hostops.OutcomeNoop, nil
	}
	delete(f.Accounts, username)
	return hostops.OutcomeApplied, nil
}

func (f *FakeSession) SetGroupMembership(ctx context.Context, username, group string, member bool) (hostops.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor(model.ActionSetGroupMembership); err != nil {
		return hostops.OutcomeNoop, err
	}
	acc, ok := f.Accounts[username]
	if !ok {
		return hostops.OutcomeNoop, fmt.Errorf("no such user %s", username)
	}
	idx := -1
	for i, g := range acc.Groups {
		if g == group {
			idx = i
			break
		}
	}
	switch {
	case member && idx < 0:
		acc.Groups = append(acc.Groups, group)
	case !member && idx >= 0:
		acc.Groups = append(acc.Groups[:idx], acc.Groups[idx+1:]...)
	default:
		return hostops.OutcomeNoop, nil
	}
	return hostops.OutcomeApplied, nil
}

func (f *FakeSession) InstallKeys(ctx context.Context, username string, keys []string) (hostops.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor(model.ActionInstallKeys); err != nil {
		return hostops.OutcomeNoop, err
	}
	acc, ok := f.Accounts[username]
	if !ok {
		return hostops.OutcomeNoop, fmt.Errorf("no such user %s", username)
	}
	if strings.Join(acc.Keys, "\n") == strings.Join(keys, "\n") {
		return hostops.OutcomeNoop, nil
	}
	acc.Keys = append([]string(nil), keys...)
	return hostops.OutcomeApplied, nil
}

func (f *FakeSession) RemoveKeys(ctx context.Context, username string) (hostops.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor(model.ActionRemoveKeys); err != nil {
		return hostops.OutcomeNoop, err
	}
	acc, ok := f.Accounts[username]
	if !ok || len(acc.Keys) == 0 {
		return hostops.OutcomeNoop, nil
	}
	acc.Keys = nil
	return hostops.OutcomeApplied, nil
}

func (f *FakeSession) LockPassword(ctx context.Context, username string) (hostops.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor(model.ActionLockPassword); err != nil {
		return hostops.OutcomeNoop, err
	}
	if acc, ok := f.Accounts[username]; ok {
		acc.Locked = true
	}
	return hostops.OutcomeApplied, nil
}

func (f *FakeSession) UnlockPassword(ctx context.Context, username string) (hostops.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor(model.ActionUnlockPassword); err != nil {
		return hostops.OutcomeNoop, err
	}
	if acc, ok := f.Accounts[username]; ok {
		acc.Locked = false
	}
	return hostops.OutcomeApplied, nil
}

func (f *FakeSession) SetAccountExpiry(ctx context.Context, username, expiry string) (hostops.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor(model.ActionSetAccountExpiry); err != nil {
		return hostops.OutcomeNoop, err
	}
	acc, ok := f.Accounts[username]
	if !ok {
		return hostops.OutcomeNoop, fmt.Errorf("no such user %s", username)
	}
	if expiry == "" {
		acc.ExpireDay = 0
		return hostops.OutcomeApplied, nil
	}
	t, err := time.Parse("2006-01-02", expiry)
	if err != nil {
		return hostops.OutcomeNoop, err
	}
	acc.ExpireDay = int(t.Unix() / 86400)
	if acc.ExpireDay == 0 {
		acc.ExpireDay = 1
	}
	return hostops.OutcomeApplied, nil
}

func (f *FakeSession) SetLoginShell(ctx context.Context, username, shell string) (hostops.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor(model.ActionSetLoginShell); err != nil {
		return hostops.OutcomeNoop, err
	}
	acc, ok := f.Accounts[username]
	if !ok {
		return hostops.OutcomeNoop, fmt.Errorf("no such user %s", username)
	}
	acc.Shell = shell
	return hostops.OutcomeApplied, nil
}

func (f *FakeSession) SetInitialPassword(ctx context.Context, username string, forceChange bool) (hostops.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor(model.ActionSetInitialPassword); err != nil {
		return hostops.OutcomeNoop, err
	}
	return hostops.OutcomeApplied, nil
}

func (f *FakeSession) CreateArchiveExclusive(ctx context.Context, username, homeDir, archivePath string) (hostops.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor(model.ActionCreateArchive); err != nil {
		return hostops.OutcomeNoop, err
	}
	name := path.Base(archivePath)
	if f.Archives[name] {
		return hostops.OutcomeNoop, nil
	}
	f.Archives[name] = true
	return hostops.OutcomeApplied, nil
}

func (f *FakeSession) RemoveHomeDirectory(ctx context.Context, username, homeDir string) (hostops.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor(model.ActionRemoveHome); err != nil {
		return hostops.OutcomeNoop, err
	}
	if acc, ok := f.Accounts[username]; ok && acc.Home == homeDir {
		if !acc.HomeExists {
			return hostops.OutcomeNoop, nil
		}
		acc.HomeExists = false
		return hostops.OutcomeApplied, nil
	}
	if f.OrphanHomes[homeDir] {
		delete(f.OrphanHomes, homeDir)
		return hostops.OutcomeApplied, nil
	}
	return hostops.OutcomeNoop, nil
}
