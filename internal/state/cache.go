// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

// package state provides a secure, in-memory cache for transient application
// state, such as the passphrase of an encrypted SSH identity, that needs to
// be shared between the CLI prompt and the SSH connector.
package state

import "sync"

// PassphraseCache is a simple, concurrency-safe, in-memory "mailbox" for
// temporarily storing a passphrase. It uses a byte slice instead of a string
// so that the sensitive data can be explicitly zeroed out after use.
var PassphraseCache = &passphraseMailbox{}

type passphraseMailbox struct {
	value []byte
	mu    sync.RWMutex
}

// Set stores a copy of the passphrase in the cache. It overwrites any existing value.
func (p *passphraseMailbox) Set(pass []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pass == nil {
		p.value = nil
		return
	}
	// Store a copy so the caller's original slice isn't held by the cache.
	p.value = make([]byte, len(pass))
	copy(p.value, pass)
}

// Get retrieves a copy of the passphrase from the cache.
// The caller is responsible for zeroing out the returned byte slice after use.
// This method is safe for concurrent use by multiple goroutines.
func (p *passphraseMailbox) Get() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.value == nil {
		return nil
	}

	// Return a copy so that multiple goroutines can get the passphrase
	// and one wiping its copy doesn't affect others.
	passCopy := make([]byte, len(p.value))
	copy(passCopy, p.value)
	return passCopy
}

// Clear securely wipes the passphrase from the cache memory.
func (p *passphraseMailbox) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.value {
		p.value[i] = 0
	}
	p.value = nil
}
