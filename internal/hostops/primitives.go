// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

// package hostops supplies the host-primitive layer: the idempotent per-host
// operations the executor applies, and their SSH/SFTP implementation.
package hostops // import "github.com/toeirei/warden/internal/hostops"

import "context"

// Outcome is the tri-state result every primitive reports.
type Outcome int

const (
	// OutcomeNoop means the desired condition was already in place. An
	// archive-creation race lost to a concurrent run is also a no-op.
	OutcomeNoop Outcome = iota

	// OutcomeApplied means host state was changed.
	OutcomeApplied
)

// String returns the audit representation of the outcome.
func (o Outcome) String() string {
	if o == OutcomeApplied {
		return "applied"
	}
	return "noop"
}

// Primitives is the host-automation collaborator interface. Every operation
// is idempotent: repeated application produces the same end state as a
// single application, with no duplicated side effects.
type Primitives interface {
	CreateUser(ctx context.Context, username, shell string, uidHint int) (Outcome, error)
	DeleteUser(ctx context.Context, username string) (Outcome, error)
	SetGroupMembership(ctx context.Context, username, group string, member bool) (Outcome, error)
	InstallKeys(ctx context.Context, username string, keys []string) (Outcome, error)
	RemoveKeys(ctx context.Context, username string) (Outcome, error)
	LockPassword(ctx context.Context, username string) (Outcome, error)
	UnlockPassword(ctx context.Context, username string) (Outcome, error)
	SetAccountExpiry(ctx context.Context, username, expiry string) (Outcome, error)
	SetLoginShell(ctx context.Context, username, shell string) (Outcome, error)
	SetInitialPassword(ctx context.Context, username string, forceChange bool) (Outcome, error)

	// CreateArchiveExclusive archives homeDir to archivePath with
	// create-if-absent semantics: the archive path is claimed atomically
	// before any data is written, so at most one archive per user ever
	// exists even under concurrent runs.
	CreateArchiveExclusive(ctx context.Context, username, homeDir, archivePath string) (Outcome, error)

	RemoveHomeDirectory(ctx context.Context, username, homeDir string) (Outcome, error)
}
