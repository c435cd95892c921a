// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/civgrid/civgrid/internal/civ"
)

// Collection file names used by the JSON provider.
const (
	civsFile    = "civilizations.json"
	claimsFile  = "claims.json"
	warsFile    = "wars.json"
	invitesFile = "invitations.json"
)

// backupStamp formats backup suffixes so they sort chronologically.
const backupStamp = "20060102-150405"

// JSONProvider stores each collection as one JSON file in a data
// directory. Writes go through a temp file and rename so a crash never
// leaves a truncated collection. Single-record saves rewrite that
// record's collection, which matches the modest collection sizes this
// store is meant for.
type JSONProvider struct {
	dir string
	mu  sync.Mutex
}

// NewJSONProvider creates a provider rooted at dir.
func NewJSONProvider(dir string) *JSONProvider {
	return &JSONProvider{dir: dir}
}

// Name implements Provider.
func (p *JSONProvider) Name() string { return "json" }

// Init creates the data directory.
func (p *JSONProvider) Init(context.Context) error {
	if err := os.MkdirAll(p.dir, 0o700); err != nil {
		return oops.With("dir", p.dir).Wrapf(err, "create data directory")
	}
	return nil
}

// Close implements Provider. The JSON provider holds no resources.
func (p *JSONProvider) Close() error { return nil }

func loadJSONFile[T any](path string) (map[string]*T, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]*T), nil
	}
	if err != nil {
		return nil, oops.With("path", path).Wrapf(err, "read collection")
	}
	out := make(map[string]*T)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, oops.With("path", path).Wrapf(err, "decode collection")
	}
	return out, nil
}

func saveJSONFile[T any](path string, all map[string]*T) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return oops.With("path", path).Wrapf(err, "encode collection")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return oops.With("path", tmp).Wrapf(err, "write temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return oops.With("path", path).Wrapf(err, "replace collection")
	}
	return nil
}

// upsertJSON rewrites one collection with a single record changed.
// Caller holds p.mu.
func upsertJSON[T any](path, key string, rec *T) error {
	all, err := loadJSONFile[T](path)
	if err != nil {
		return err
	}
	all[key] = rec
	return saveJSONFile(path, all)
}

func deleteJSON[T any](path, key string) error {
	all, err := loadJSONFile[T](path)
	if err != nil {
		return err
	}
	delete(all, key)
	return saveJSONFile(path, all)
}

func (p *JSONProvider) path(name string) string { return filepath.Join(p.dir, name) }

// LoadCivilizations implements Provider.
func (p *JSONProvider) LoadCivilizations(context.Context) (map[string]*civ.Civilization, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return loadJSONFile[civ.Civilization](p.path(civsFile))
}

// SaveCivilizations implements Provider.
func (p *JSONProvider) SaveCivilizations(_ context.Context, all map[string]*civ.Civilization) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return saveJSONFile(p.path(civsFile), all)
}

// SaveCivilization implements Provider.
func (p *JSONProvider) SaveCivilization(_ context.Context, c *civ.Civilization) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return upsertJSON(p.path(civsFile), c.ID, c)
}

// DeleteCivilization implements Provider.
func (p *JSONProvider) DeleteCivilization(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return deleteJSON[civ.Civilization](p.path(civsFile), id)
}

// LoadClaims implements Provider.
func (p *JSONProvider) LoadClaims(context.Context) (map[string]*civ.Claim, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return loadJSONFile[civ.Claim](p.path(claimsFile))
}

// SaveClaims implements Provider.
func (p *JSONProvider) SaveClaims(_ context.Context, all map[string]*civ.Claim) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return saveJSONFile(p.path(claimsFile), all)
}

// SaveClaim implements Provider.
func (p *JSONProvider) SaveClaim(_ context.Context, c *civ.Claim) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return upsertJSON(p.path(claimsFile), c.Key(), c)
}

// DeleteClaim implements Provider.
func (p *JSONProvider) DeleteClaim(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return deleteJSON[civ.Claim](p.path(claimsFile), key)
}

// LoadWars implements Provider.
func (p *JSONProvider) LoadWars(context.Context) (map[string]*civ.War, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return loadJSONFile[civ.War](p.path(warsFile))
}

// SaveWars implements Provider.
func (p *JSONProvider) SaveWars(_ context.Context, all map[string]*civ.War) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return saveJSONFile(p.path(warsFile), all)
}

// SaveWar implements Provider.
func (p *JSONProvider) SaveWar(_ context.Context, w *civ.War) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return upsertJSON(p.path(warsFile), w.ID, w)
}

// DeleteWar implements Provider.
func (p *JSONProvider) DeleteWar(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return deleteJSON[civ.War](p.path(warsFile), id)
}

// LoadInvitations implements Provider.
func (p *JSONProvider) LoadInvitations(context.Context) (map[string]*civ.Invitation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return loadJSONFile[civ.Invitation](p.path(invitesFile))
}

// SaveInvitations implements Provider.
func (p *JSONProvider) SaveInvitations(_ context.Context, all map[string]*civ.Invitation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return saveJSONFile(p.path(invitesFile), all)
}

// SaveInvitation implements Provider.
func (p *JSONProvider) SaveInvitation(_ context.Context, i *civ.Invitation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return upsertJSON(p.path(invitesFile), i.ID, i)
}

// DeleteInvitation implements Provider.
func (p *JSONProvider) DeleteInvitation(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return deleteJSON[civ.Invitation](p.path(invitesFile), id)
}

// Backup copies all four collection files into backups/ with a
// timestamped suffix and prunes snapshots beyond retain.
func (p *JSONProvider) Backup(_ context.Context, retain int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	backupDir := filepath.Join(p.dir, "backups")
	if err := os.MkdirAll(backupDir, 0o700); err != nil {
		return oops.With("dir", backupDir).Wrapf(err, "create backup directory")
	}

	stamp := time.Now().Format(backupStamp)
	for _, name := range []string{civsFile, claimsFile, warsFile, invitesFile} {
		src := p.path(name)
		if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		dst := filepath.Join(backupDir, fmt.Sprintf("%s.%s", name, stamp))
		if err := copyFile(src, dst); err != nil {
			return oops.With("file", name).Wrapf(err, "copy backup")
		}
	}
	return pruneBackups(backupDir, retain)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// pruneBackups keeps the newest retain stamps; suffixes sort
// chronologically because of the stamp format.
func pruneBackups(dir string, retain int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return oops.With("dir", dir).Wrapf(err, "list backups")
	}

	stamps := make(map[string]bool)
	for _, e := range entries {
		if i := strings.LastIndex(e.Name(), ".json."); i >= 0 {
			stamps[e.Name()[i+len(".json."):]] = true
		}
	}
	if len(stamps) <= retain {
		return nil
	}

	ordered := make([]string, 0, len(stamps))
	for s := range stamps {
		ordered = append(ordered, s)
	}
	sort.Strings(ordered)

	for _, stale := range ordered[:len(ordered)-retain] {
		for _, e := range entries {
			if strings.HasSuffix(e.Name(), "."+stale) {
				if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
					return oops.With("file", e.Name()).Wrapf(err, "prune backup")
				}
			}
		}
	}
	return nil
}
