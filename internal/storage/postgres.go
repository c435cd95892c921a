// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/civgrid/civgrid/internal/civ"
)

//go:embed schema.sql
var schemaSQL string

// PostgresProvider stores each collection as a key -> JSONB document
// table in PostgreSQL, for deployments where several server instances
// share one database.
type PostgresProvider struct {
	dsn  string
	pool *pgxpool.Pool
}

// NewPostgresProvider creates a provider for the given connection string.
func NewPostgresProvider(dsn string) *PostgresProvider {
	return &PostgresProvider{dsn: dsn}
}

// Name implements Provider.
func (p *PostgresProvider) Name() string { return "postgres" }

// Init connects the pool and applies the schema.
func (p *PostgresProvider) Init(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, p.dsn)
	if err != nil {
		return oops.Wrapf(err, "connect to database")
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return oops.Wrapf(mapPgError(err), "apply schema")
	}
	p.pool = pool
	return nil
}

// Close implements Provider.
func (p *PostgresProvider) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

// mapPgError translates driver error codes into domain sentinels so
// callers can match with errors.Is.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%w: %s", civ.ErrDuplicate, pgErr.Detail)
	}
	return err
}

func loadPgTable[T any](ctx context.Context, pool *pgxpool.Pool, table string) (map[string]*T, error) {
	rows, err := pool.Query(ctx, fmt.Sprintf("SELECT id, doc FROM %s", table))
	if err != nil {
		return nil, oops.With("table", table).Wrapf(mapPgError(err), "query collection")
	}
	defer rows.Close()

	out := make(map[string]*T)
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, oops.With("table", table).Wrapf(err, "scan row")
		}
		rec := new(T)
		if err := json.Unmarshal(doc, rec); err != nil {
			return nil, oops.With("table", table).With("id", id).Wrapf(err, "decode document")
		}
		out[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("table", table).Wrapf(err, "iterate rows")
	}
	return out, nil
}

// savePgTable replaces the whole table inside one transaction.
func savePgTable[T any](ctx context.Context, pool *pgxpool.Pool, table string, all map[string]*T, key func(*T) string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return oops.With("table", table).Wrapf(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return oops.With("table", table).Wrapf(mapPgError(err), "clear table")
	}

	batch := &pgx.Batch{}
	ids := make([]string, 0, len(all))
	for _, rec := range all {
		doc, err := json.Marshal(rec)
		if err != nil {
			return oops.With("table", table).Wrapf(err, "encode document")
		}
		batch.Queue(fmt.Sprintf("INSERT INTO %s (id, doc) VALUES ($1, $2)", table), key(rec), doc)
		ids = append(ids, key(rec))
	}
	results := tx.SendBatch(ctx, batch)
	for _, id := range ids {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return oops.With("table", table).With("id", id).Wrapf(mapPgError(err), "insert document")
		}
	}
	if err := results.Close(); err != nil {
		return oops.With("table", table).Wrapf(err, "close batch")
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.With("table", table).Wrapf(err, "commit")
	}
	return nil
}

func upsertPg[T any](ctx context.Context, pool *pgxpool.Pool, table, id string, rec *T) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return oops.With("table", table).With("id", id).Wrapf(err, "encode document")
	}
	_, err = pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`, table),
		id, doc)
	if err != nil {
		return oops.With("table", table).With("id", id).Wrapf(mapPgError(err), "upsert document")
	}
	return nil
}

func deletePg(ctx context.Context, pool *pgxpool.Pool, table, id string) error {
	if _, err := pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id); err != nil {
		return oops.With("table", table).With("id", id).Wrapf(mapPgError(err), "delete document")
	}
	return nil
}

// LoadCivilizations implements Provider.
func (p *PostgresProvider) LoadCivilizations(ctx context.Context) (map[string]*civ.Civilization, error) {
	return loadPgTable[civ.Civilization](ctx, p.pool, "civilizations")
}

// SaveCivilizations implements Provider.
func (p *PostgresProvider) SaveCivilizations(ctx context.Context, all map[string]*civ.Civilization) error {
	return savePgTable(ctx, p.pool, "civilizations", all, func(c *civ.Civilization) string { return c.ID })
}

// SaveCivilization implements Provider.
func (p *PostgresProvider) SaveCivilization(ctx context.Context, c *civ.Civilization) error {
	return upsertPg(ctx, p.pool, "civilizations", c.ID, c)
}

// DeleteCivilization implements Provider.
func (p *PostgresProvider) DeleteCivilization(ctx context.Context, id string) error {
	return deletePg(ctx, p.pool, "civilizations", id)
}

// LoadClaims implements Provider.
func (p *PostgresProvider) LoadClaims(ctx context.Context) (map[string]*civ.Claim, error) {
	return loadPgTable[civ.Claim](ctx, p.pool, "claims")
}

// SaveClaims implements Provider.
func (p *PostgresProvider) SaveClaims(ctx context.Context, all map[string]*civ.Claim) error {
	return savePgTable(ctx, p.pool, "claims", all, func(c *civ.Claim) string { return c.Key() })
}

// SaveClaim implements Provider.
func (p *PostgresProvider) SaveClaim(ctx context.Context, c *civ.Claim) error {
	return upsertPg(ctx, p.pool, "claims", c.Key(), c)
}

// DeleteClaim implements Provider.
func (p *PostgresProvider) DeleteClaim(ctx context.Context, key string) error {
	return deletePg(ctx, p.pool, "claims", key)
}

// LoadWars implements Provider.
func (p *PostgresProvider) LoadWars(ctx context.Context) (map[string]*civ.War, error) {
	return loadPgTable[civ.War](ctx, p.pool, "wars")
}

// SaveWars implements Provider.
func (p *PostgresProvider) SaveWars(ctx context.Context, all map[string]*civ.War) error {
	return savePgTable(ctx, p.pool, "wars", all, func(w *civ.War) string { return w.ID })
}

// SaveWar implements Provider.
func (p *PostgresProvider) SaveWar(ctx context.Context, w *civ.War) error {
	return upsertPg(ctx, p.pool, "wars", w.ID, w)
}

// DeleteWar implements Provider.
func (p *PostgresProvider) DeleteWar(ctx context.Context, id string) error {
	return deletePg(ctx, p.pool, "wars", id)
}

// LoadInvitations implements Provider.
func (p *PostgresProvider) LoadInvitations(ctx context.Context) (map[string]*civ.Invitation, error) {
	return loadPgTable[civ.Invitation](ctx, p.pool, "invitations")
}

// SaveInvitations implements Provider.
func (p *PostgresProvider) SaveInvitations(ctx context.Context, all map[string]*civ.Invitation) error {
	return savePgTable(ctx, p.pool, "invitations", all, func(i *civ.Invitation) string { return i.ID })
}

// SaveInvitation implements Provider.
func (p *PostgresProvider) SaveInvitation(ctx context.Context, i *civ.Invitation) error {
	return upsertPg(ctx, p.pool, "invitations", i.ID, i)
}

// DeleteInvitation implements Provider.
func (p *PostgresProvider) DeleteInvitation(ctx context.Context, id string) error {
	return deletePg(ctx, p.pool, "invitations", id)
}

// Backup snapshots each collection into a timestamped suffix table and
// drops snapshot generations beyond retain.
func (p *PostgresProvider) Backup(ctx context.Context, retain int) error {
	stamp := time.Now().Format("20060102_150405")
	for _, table := range collectionTables {
		snap := fmt.Sprintf("%s_bak_%s", table, stamp)
		if _, err := p.pool.Exec(ctx,
			fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", snap, table)); err != nil {
			return oops.With("table", snap).Wrapf(mapPgError(err), "create backup table")
		}
	}
	return p.pruneBackups(ctx, retain)
}

func (p *PostgresProvider) pruneBackups(ctx context.Context, retain int) error {
	rows, err := p.pool.Query(ctx,
		`SELECT tablename FROM pg_tables
		 WHERE schemaname = current_schema() AND tablename LIKE '%\_bak\_%'`)
	if err != nil {
		return oops.Wrapf(err, "list backup tables")
	}
	defer rows.Close()

	stamps := make(map[string][]string)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return oops.Wrapf(err, "scan backup table name")
		}
		if i := strings.LastIndex(name, "_bak_"); i >= 0 {
			stamp := name[i+len("_bak_"):]
			stamps[stamp] = append(stamps[stamp], name)
		}
	}
	if err := rows.Err(); err != nil {
		return oops.Wrapf(err, "iterate backup tables")
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
		for _, name := range stamps[stale] {
			if _, err := p.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", name)); err != nil {
				return oops.With("table", name).Wrapf(err, "drop backup table")
			}
		}
	}
	return nil
}
