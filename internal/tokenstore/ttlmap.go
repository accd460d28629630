// Package tokenstore holds single-use, time-limited values behind random
// tokens — the upload payload buffer and download-intent grants spec §4.D
// describes. Shaped after internal/driveops/session_store.go's
// SessionStore: a single mutex guarding a map, a throttled janitor,
// generalized here from on-disk JSON records to an in-process generic
// value of any type.
package tokenstore

import (
	"crypto/rand"
	"sync"
	"time"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const tokenLength = 16

type entry[V any] struct {
	value     V
	expiresAt time.Time
	mu        sync.Mutex // per-entry lock serializing regeneration work on Get
}

// TTLMap is a mapping from random tokens to values of type V, with a
// fixed per-entry time-to-live. Safe for concurrent use. The zero value
// is not usable; construct with New.
type TTLMap[V any] struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*entry[V]
}

// New constructs a TTLMap whose entries expire ttl after insertion.
func New[V any](ttl time.Duration) *TTLMap[V] {
	return &TTLMap[V]{
		ttl:     ttl,
		entries: make(map[string]*entry[V]),
	}
}

// Put stores value under a freshly generated, currently-unused token and
// returns it.
func (m *TTLMap[V]) Put(value V) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictLocked()

	token, err := m.uniqueTokenLocked()
	if err != nil {
		return "", err
	}

	m.entries[token] = &entry[V]{value: value, expiresAt: time.Now().Add(m.ttl)}

	return token, nil
}

// Get returns the value for token and whether it was found and unexpired.
func (m *TTLMap[V]) Get(token string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[token]
	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}

	return e.value, true
}

// Take returns the value for token and deletes it, for single-use tokens
// like uploaded_items (spec §4.D — consumed once by snapshot creation).
func (m *TTLMap[V]) Take(token string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[token]
	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}

	delete(m.entries, token)

	return e.value, true
}

// WithLock runs fn while holding token's per-entry lock, without
// affecting the map-level lock — used by the download-intent map so two
// concurrent requests for the same token serialize around memoizing a
// generated artifact (spec §4.D, §4.H) instead of both regenerating it.
// Returns false if token is absent or expired; fn is not called.
func (m *TTLMap[V]) WithLock(token string, fn func(current V, set func(V))) bool {
	m.mu.Lock()
	e, ok := m.entries[token]
	if ok && time.Now().After(e.expiresAt) {
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fn(e.value, func(v V) { e.value = v })

	return true
}

// Delete removes token unconditionally.
func (m *TTLMap[V]) Delete(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, token)
}

// evictLocked drops every expired entry. Called from Put so the map
// never grows unbounded even with no external janitor goroutine; m.mu
// must already be held.
func (m *TTLMap[V]) evictLocked() {
	now := time.Now()

	for token, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, token)
		}
	}
}

// uniqueTokenLocked generates a random token not already present in the
// map. m.mu must already be held.
func (m *TTLMap[V]) uniqueTokenLocked() (string, error) {
	for {
		token, err := randomToken()
		if err != nil {
			return "", err
		}

		if _, exists := m.entries[token]; !exists {
			return token, nil
		}
	}
}

// RandomToken generates a token using the same alphabet and length as
// TTLMap entries, for callers that persist tokens themselves rather than
// storing them in a TTLMap — e.g. snapshot share tokens, which live in
// the database indefinitely (spec SPEC_FULL.md §3).
func RandomToken() (string, error) {
	return randomToken()
}

func randomToken() (string, error) {
	raw := make([]byte, tokenLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	out := make([]byte, tokenLength)
	for i, b := range raw {
		out[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}

	return string(out), nil
}
