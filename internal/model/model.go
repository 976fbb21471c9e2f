// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

// package model defines the core data structures for lifecycle reconciliation:
// desired admin records, observed host state, transition plans and run reports.
package model // import "github.com/toeirei/warden/internal/model"

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// LifecycleState is the target lifecycle label an operator has assigned to an
// administrator account, independent of any host's current condition.
type LifecycleState string

const (
	// StatePresent means the account is active: it exists, is in the admin
	// group, has its keys installed and an interactive shell.
	StatePresent LifecycleState = "present"

	// StateRevoked means access is withdrawn but the account and its home
	// directory are kept: keys removed, password locked, account expired,
	// deny shell.
	StateRevoked LifecycleState = "revoked"

	// StateOffboard means revoked plus the home directory archived and
	// removed.
	StateOffboard LifecycleState = "offboard"

	// StateDecom means the account is deleted entirely. The home archive must
	// exist before deletion. Decom is terminal.
	StateDecom LifecycleState = "decom"
)

// ParseLifecycleState converts a desired-state document value into a
// LifecycleState, rejecting anything outside the four enumerated values.
func ParseLifecycleState(s string) (LifecycleState, error) {
	switch LifecycleState(s) {
	case StatePresent, StateRevoked, StateOffboard, StateDecom:
		return LifecycleState(s), nil
	}
	return "", fmt.Errorf("unknown lifecycle state %q", s)
}

// AdminRecord is one entry of the desired-state document: the operator's
// intent for a single administrator across the whole fleet.
type AdminRecord struct {
	Username  string
	State     LifecycleState
	Keys      []string // authorized_keys lines (algorithm, data, optional comment)
	UIDHint   int      // 0 means no preference; only honored at first creation
	CreatedAt time.Time
}

// String returns the username(state) representation.
func (r AdminRecord) String() string {
	return fmt.Sprintf("%s(%s)", r.Username, r.State)
}

// ArchiveFileName returns the deterministic archive artifact name for this
// record: <username>-<created_unix>.tar.gz. Collision safety between repeated
// offboard attempts comes from the exclusive-creation claim, not from
// timestamp precision.
func (r AdminRecord) ArchiveFileName() string {
	return fmt.Sprintf("%s-%d.tar.gz", r.Username, r.CreatedAt.Unix())
}

// Host is a single reconciliation target from the inventory.
type Host struct {
	Name string   `yaml:"name" json:"name"`
	Addr string   `yaml:"addr" json:"addr"` // host or host:port; falls back to Name when empty
	Port int      `yaml:"port" json:"port"` // 0 means 22
	User string   `yaml:"user" json:"user"` // connect user; empty means the configured default
	Tags []string `yaml:"tags" json:"tags"`
}

// String returns the display name of the host.
func (h Host) String() string {
	if h.Name != "" {
		return h.Name
	}
	return h.Addr
}

// DialAddr returns the TCP address to connect to, appending the port when the
// address does not carry one already.
func (h Host) DialAddr() string {
	addr := h.Addr
	if addr == "" {
		addr = h.Name
	}
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	port := h.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

// HasTag reports whether the host carries the given inventory tag.
func (h Host) HasTag(tag string) bool {
	for _, t := range h.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HostActualState is the observed, live condition of a user account on a
// specific host. It is produced fresh by the state evaluator on every run and
// never persisted as desired state.
type HostActualState struct {
	Exists         bool
	UID            int
	InAdminGroup   bool
	Keys           []string // normalized "algorithm keydata" entries
	PasswordLocked bool
	AccountExpired bool
	Shell          string
	HomeDir        string // from the passwd entry; empty when the user does not exist
	HomeExists     bool
	ArchiveExists  bool
	ArchivePath    string // path of the found archive, or "" when absent
}
