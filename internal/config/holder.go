package config

import "sync"

// Holder provides thread-safe access to a resolved *Config, shared
// between the HTTP layer and the scheduler the same way config.Holder is
// shared between SessionProvider and Orchestrator.
type Holder struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewHolder creates a Holder seeded with the initial config.
func NewHolder(cfg *Config) *Holder {
	return &Holder{cfg: cfg}
}

// Config returns the current config snapshot.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Update replaces the config. There is no SIGHUP reload for a purely
// env-var-driven config; this exists for tests and for the bootstrap
// file's in-process overlay.
func (h *Holder) Update(cfg *Config) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg
}
