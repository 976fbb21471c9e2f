// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"testing"
)

// WithTestStore initializes an in-memory sqlite Store for the duration of the
// provided function and restores the package-level store afterwards.
func WithTestStore(t *testing.T, fn func(s *BunStore)) {
	t.Helper()

	prevStore := store

	// Per-test shared-cache database so all pooled connections see one schema.
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	if err := InitDB("sqlite", dsn); err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	s, ok := store.(*BunStore)
	if !ok {
		t.Fatalf("store is not *BunStore")
	}

	defer func() { store = prevStore }()

	fn(s)
}
