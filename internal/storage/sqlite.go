// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/oops"
	_ "modernc.org/sqlite"

	"github.com/civgrid/civgrid/internal/civ"
)

// SQLiteProvider stores each collection as a key -> JSON document table
// in an embedded SQLite database. The connection is capped at one
// writer; WAL keeps readers cheap.
type SQLiteProvider struct {
	path string
	db   *sql.DB
}

// NewSQLiteProvider creates a provider for the database file at path.
func NewSQLiteProvider(path string) *SQLiteProvider {
	return &SQLiteProvider{path: path}
}

// Name implements Provider.
func (p *SQLiteProvider) Name() string { return "sqlite" }

// Init opens the database and creates the schema.
func (p *SQLiteProvider) Init(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return oops.With("path", p.path).Wrapf(err, "create database directory")
	}

	db, err := sql.Open("sqlite", p.path)
	if err != nil {
		return oops.With("path", p.path).Wrapf(err, "open database")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL suits the append-heavy autosave workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return oops.With("pragma", pragma).Wrapf(err, "apply pragma")
		}
	}

	for _, table := range collectionTables {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			doc TEXT NOT NULL
		);`, table)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return oops.With("table", table).Wrapf(err, "create table")
		}
	}

	p.db = db
	return nil
}

// collectionTables names the SQL table per collection, shared by the
// sqlite and postgres providers.
var collectionTables = []string{"civilizations", "claims", "wars", "invitations"}

// Close implements Provider.
func (p *SQLiteProvider) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func loadSQLTable[T any](ctx context.Context, db *sql.DB, table string) (map[string]*T, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT id, doc FROM %s", table))
	if err != nil {
		return nil, oops.With("table", table).Wrapf(err, "query collection")
	}
	defer rows.Close()

	out := make(map[string]*T)
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, oops.With("table", table).Wrapf(err, "scan row")
		}
		rec := new(T)
		if err := json.Unmarshal([]byte(doc), rec); err != nil {
			return nil, oops.With("table", table).With("id", id).Wrapf(err, "decode document")
		}
		out[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("table", table).Wrapf(err, "iterate rows")
	}
	return out, nil
}

// saveSQLTable replaces the whole table inside one transaction.
func saveSQLTable[T any](ctx context.Context, db *sql.DB, table string, all map[string]*T, key func(*T) string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return oops.With("table", table).Wrapf(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return oops.With("table", table).Wrapf(err, "clear table")
	}
	for _, rec := range all {
		doc, err := json.Marshal(rec)
		if err != nil {
			return oops.With("table", table).Wrapf(err, "encode document")
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (id, doc) VALUES (?, ?)", table),
			key(rec), string(doc)); err != nil {
			return oops.With("table", table).With("id", key(rec)).Wrapf(err, "insert document")
		}
	}
	if err := tx.Commit(); err != nil {
		return oops.With("table", table).Wrapf(err, "commit")
	}
	return nil
}

func upsertSQL[T any](ctx context.Context, db *sql.DB, table, id string, rec *T) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return oops.With("table", table).With("id", id).Wrapf(err, "encode document")
	}
	_, err = db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`, table),
		id, string(doc))
	if err != nil {
		return oops.With("table", table).With("id", id).Wrapf(err, "upsert document")
	}
	return nil
}

func deleteSQL(ctx context.Context, db *sql.DB, table, id string) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id); err != nil {
		return oops.With("table", table).With("id", id).Wrapf(err, "delete document")
	}
	return nil
}

// LoadCivilizations implements Provider.
func (p *SQLiteProvider) LoadCivilizations(ctx context.Context) (map[string]*civ.Civilization, error) {
	return loadSQLTable[civ.Civilization](ctx, p.db, "civilizations")
}

// SaveCivilizations implements Provider.
func (p *SQLiteProvider) SaveCivilizations(ctx context.Context, all map[string]*civ.Civilization) error {
	return saveSQLTable(ctx, p.db, "civilizations", all, func(c *civ.Civilization) string { return c.ID })
}

// SaveCivilization implements Provider.
func (p *SQLiteProvider) SaveCivilization(ctx context.Context, c *civ.Civilization) error {
	return upsertSQL(ctx, p.db, "civilizations", c.ID, c)
}

// DeleteCivilization implements Provider.
func (p *SQLiteProvider) DeleteCivilization(ctx context.Context, id string) error {
	return deleteSQL(ctx, p.db, "civilizations", id)
}

// LoadClaims implements Provider.
func (p *SQLiteProvider) LoadClaims(ctx context.Context) (map[string]*civ.Claim, error) {
	return loadSQLTable[civ.Claim](ctx, p.db, "claims")
}

// SaveClaims implements Provider.
func (p *SQLiteProvider) SaveClaims(ctx context.Context, all map[string]*civ.Claim) error {
	return saveSQLTable(ctx, p.db, "claims", all, func(c *civ.Claim) string { return c.Key() })
}

// SaveClaim implements Provider.
func (p *SQLiteProvider) SaveClaim(ctx context.Context, c *civ.Claim) error {
	return upsertSQL(ctx, p.db, "claims", c.Key(), c)
}

// DeleteClaim implements Provider.
func (p *SQLiteProvider) DeleteClaim(ctx context.Context, key string) error {
	return deleteSQL(ctx, p.db, "claims", key)
}

// LoadWars implements Provider.
func (p *SQLiteProvider) LoadWars(ctx context.Context) (map[string]*civ.War, error) {
	return loadSQLTable[civ.War](ctx, p.db, "wars")
}

// SaveWars implements Provider.
func (p *SQLiteProvider) SaveWars(ctx context.Context, all map[string]*civ.War) error {
	return saveSQLTable(ctx, p.db, "wars", all, func(w *civ.War) string { return w.ID })
}

// SaveWar implements Provider.
func (p *SQLiteProvider) SaveWar(ctx context.Context, w *civ.War) error {
	return upsertSQL(ctx, p.db, "wars", w.ID, w)
}

// DeleteWar implements Provider.
func (p *SQLiteProvider) DeleteWar(ctx context.Context, id string) error {
	return deleteSQL(ctx, p.db, "wars", id)
}

// LoadInvitations implements Provider.
func (p *SQLiteProvider) LoadInvitations(ctx context.Context) (map[string]*civ.Invitation, error) {
	return loadSQLTable[civ.Invitation](ctx, p.db, "invitations")
}

// SaveInvitations implements Provider.
func (p *SQLiteProvider) SaveInvitations(ctx context.Context, all map[string]*civ.Invitation) error {
	return saveSQLTable(ctx, p.db, "invitations", all, func(i *civ.Invitation) string { return i.ID })
}

// SaveInvitation implements Provider.
func (p *SQLiteProvider) SaveInvitation(ctx context.Context, i *civ.Invitation) error {
	return upsertSQL(ctx, p.db, "invitations", i.ID, i)
}

// DeleteInvitation implements Provider.
func (p *SQLiteProvider) DeleteInvitation(ctx context.Context, id string) error {
	return deleteSQL(ctx, p.db, "invitations", id)
}

// Backup snapshots the whole database with VACUUM INTO and prunes old
// snapshots beyond retain.
func (p *SQLiteProvider) Backup(ctx context.Context, retain int) error {
	backupDir := filepath.Join(filepath.Dir(p.path), "backups")
	if err := os.MkdirAll(backupDir, 0o700); err != nil {
		return oops.With("dir", backupDir).Wrapf(err, "create backup directory")
	}

	base := filepath.Base(p.path)
	dst := filepath.Join(backupDir, fmt.Sprintf("%s.%s", base, time.Now().Format(backupStamp)))
	if _, err := p.db.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return oops.With("path", dst).Wrapf(err, "vacuum into backup")
	}

	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return oops.With("dir", backupDir).Wrapf(err, "list backups")
	}
	var snaps []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), base+".") {
			snaps = append(snaps, e.Name())
		}
	}
	sort.Strings(snaps)
	for len(snaps) > retain {
		if err := os.Remove(filepath.Join(backupDir, snaps[0])); err != nil {
			return oops.With("file", snaps[0]).Wrapf(err, "prune backup")
		}
		snaps = snaps[1:]
	}
	return nil
}
