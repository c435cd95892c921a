// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civgrid/civgrid/internal/civ"
	"github.com/civgrid/civgrid/internal/storage"
)

func newSQLite(t *testing.T) (*storage.SQLiteProvider, string) {
	t.Helper()
	dir := t.TempDir()
	p := storage.NewSQLiteProvider(filepath.Join(dir, "civgrid.db"))
	require.NoError(t, p.Init(context.Background()))
	t.Cleanup(func() { _ = p.Close() })
	return p, dir
}

func TestSQLiteProviderRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, _ := newSQLite(t)

	civs := seedCivilizations(t)
	require.NoError(t, p.SaveCivilizations(ctx, civs))

	loaded, err := p.LoadCivilizations(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	for id, want := range civs {
		got, ok := loaded[id]
		require.True(t, ok, "missing civilization %s", id)
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.LeaderID, got.LeaderID)
		assert.Equal(t, want.BankBalance, got.BankBalance)
		assert.Len(t, got.Transactions, len(want.Transactions))
	}
}

func TestSQLiteProviderSaveAllReplaces(t *testing.T) {
	ctx := context.Background()
	p, _ := newSQLite(t)

	first := civ.NewWar("civ-a", "civ-b", "", 0)
	require.NoError(t, p.SaveWars(ctx, map[string]*civ.War{first.ID: first}))

	second := civ.NewWar("civ-c", "civ-d", "", 0)
	require.NoError(t, p.SaveWars(ctx, map[string]*civ.War{second.ID: second}))

	loaded, err := p.LoadWars(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	_, ok := loaded[second.ID]
	assert.True(t, ok, "save-all should replace the previous contents")
}

func TestSQLiteProviderUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	p, _ := newSQLite(t)

	claim := civ.NewClaim("overworld", 0, 0, "civ-1")
	require.NoError(t, p.SaveClaim(ctx, claim))

	claim.Flags.ExplosionsAllowed = true
	require.NoError(t, p.SaveClaim(ctx, claim))

	loaded, err := p.LoadClaims(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.True(t, loaded[claim.Key()].Flags.ExplosionsAllowed)

	require.NoError(t, p.DeleteClaim(ctx, claim.Key()))
	loaded, err = p.LoadClaims(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSQLiteProviderInvitations(t *testing.T) {
	ctx := context.Background()
	p, _ := newSQLite(t)

	invite := civ.NewInvitation("hannibal", "civ-b", "dido", 5*time.Minute)
	require.NoError(t, p.SaveInvitation(ctx, invite))

	loaded, err := p.LoadInvitations(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	got := loaded[invite.ID]
	assert.Equal(t, invite.CivID, got.CivID)
	assert.Equal(t, invite.SenderID, got.SenderID)
	assert.WithinDuration(t, invite.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestSQLiteProviderBackupPrunes(t *testing.T) {
	ctx := context.Background()
	p, dir := newSQLite(t)

	require.NoError(t, p.SaveCivilizations(ctx, seedCivilizations(t)))

	require.NoError(t, p.Backup(ctx, 2))
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, p.Backup(ctx, 2))
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, p.Backup(ctx, 2))

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)

	var snaps int
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "civgrid.db.") {
			snaps++
		}
	}
	assert.Equal(t, 2, snaps, "only the newest two snapshots should remain")
}

func TestMigrateJSONToSQLite(t *testing.T) {
	ctx := context.Background()

	src := storage.NewJSONProvider(t.TempDir())
	require.NoError(t, src.Init(ctx))

	civs := seedCivilizations(t)
	require.NoError(t, src.SaveCivilizations(ctx, civs))
	claim := civ.NewClaim("overworld", 1, 1, "civ-1")
	require.NoError(t, src.SaveClaim(ctx, claim))
	war := civ.NewWar("civ-a", "civ-b", "", 0)
	require.NoError(t, src.SaveWar(ctx, war))
	invite := civ.NewInvitation("hannibal", "civ-b", "dido", time.Minute)
	require.NoError(t, src.SaveInvitation(ctx, invite))

	dst := storage.NewSQLiteProvider(filepath.Join(t.TempDir(), "civgrid.db"))
	t.Cleanup(func() { _ = dst.Close() })

	require.NoError(t, storage.Migrate(ctx, src, dst))

	gotCivs, err := dst.LoadCivilizations(ctx)
	require.NoError(t, err)
	assert.Len(t, gotCivs, len(civs))

	gotClaims, err := dst.LoadClaims(ctx)
	require.NoError(t, err)
	assert.Contains(t, gotClaims, claim.Key())

	gotWars, err := dst.LoadWars(ctx)
	require.NoError(t, err)
	assert.Contains(t, gotWars, war.ID)

	gotInvites, err := dst.LoadInvitations(ctx)
	require.NoError(t, err)
	assert.Contains(t, gotInvites, invite.ID)
}
