// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package db

// New initializes and returns a bun-backed Store for the given dbType and dsn.
// It is a small convenience wrapper around NewStoreFromDSN that also sets the
// package-level `store` used by the package helpers.
func New(dbType, dsn string) (Store, error) {
	s, err := NewStoreFromDSN(dbType, dsn)
	if err != nil {
		return nil, err
	}
	store = s
	return s, nil
}
