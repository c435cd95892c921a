// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package config

import (
	"log/slog"
	"sync"

	"github.com/spf13/pflag"
)

// Store holds the live configuration and swaps it atomically on reload.
// Readers call Current and get a consistent snapshot; a reload that
// fails validation leaves the previous config in place.
type Store struct {
	mu     sync.RWMutex
	cfg    Config
	path   string
	flags  *pflag.FlagSet
	static bool
}

// NewStore loads the initial configuration from path and flags.
func NewStore(path string, flags *pflag.FlagSet) (*Store, error) {
	cfg, err := Load(path, flags)
	if err != nil {
		return nil, err
	}
	return &Store{cfg: cfg, path: path, flags: flags}, nil
}

// NewStaticStore wraps an already-built Config. Reload is a no-op
// re-validation. Intended for embedding and tests.
func NewStaticStore(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{cfg: cfg, static: true}, nil
}

// Current returns a snapshot of the live configuration.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Reload re-reads the config sources and swaps the result in atomically.
// On error the live config is unchanged.
func (s *Store) Reload() error {
	if s.static {
		return nil
	}
	cfg, err := Load(s.path, s.flags)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	slog.Info("configuration reloaded", "path", s.path)
	return nil
}
