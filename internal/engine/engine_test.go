// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package engine_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/civgrid/civgrid/internal/civ"
	"github.com/civgrid/civgrid/internal/config"
	"github.com/civgrid/civgrid/internal/engine"
	"github.com/civgrid/civgrid/internal/repo"
	"github.com/civgrid/civgrid/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeCurrency is an in-memory player economy for tests.
type fakeCurrency struct {
	mu           sync.Mutex
	balances     map[string]float64
	depositError error
}

func newFakeCurrency(balances map[string]float64) *fakeCurrency {
	if balances == nil {
		balances = make(map[string]float64)
	}
	return &fakeCurrency{balances: balances}
}

func (f *fakeCurrency) Balance(_ context.Context, playerID string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[playerID], nil
}

func (f *fakeCurrency) Withdraw(_ context.Context, playerID string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[playerID] < amount {
		return engine.ErrInsufficientFunds
	}
	f.balances[playerID] -= amount
	return nil
}

func (f *fakeCurrency) Deposit(_ context.Context, playerID string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.depositError != nil {
		return f.depositError
	}
	f.balances[playerID] += amount
	return nil
}

func (f *fakeCurrency) Format(amount float64) string { return "" }

// fakeNotifier records delivered messages by player.
type fakeNotifier struct {
	mu       sync.Mutex
	messages map[string][]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{messages: make(map[string][]string)}
}

func (f *fakeNotifier) Notify(playerID, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[playerID] = append(f.messages[playerID], message)
}

func (f *fakeNotifier) received(playerID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[playerID])
}

// harness bundles a full engine stack over a throwaway JSON store.
type harness struct {
	repo     *repo.Repository
	engines  *engine.Engines
	currency *fakeCurrency
	notifier *fakeNotifier
	cfg      config.Config
	deps     engine.Deps
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	store, err := config.NewStaticStore(cfg)
	require.NoError(t, err)

	provider := storage.NewJSONProvider(t.TempDir())
	require.NoError(t, provider.Init(context.Background()))

	r := repo.New(provider, slog.Default(), nil)
	require.NoError(t, r.Load(context.Background()))
	r.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		require.NoError(t, r.Close(ctx))
	})

	currency := newFakeCurrency(nil)
	notifier := newFakeNotifier()
	deps := engine.Deps{
		Repo:     r,
		Config:   store,
		Currency: currency,
		Notify:   notifier,
	}
	return &harness{
		repo:     r,
		engines:  engine.New(deps, nil, nil),
		currency: currency,
		notifier: notifier,
		cfg:      cfg,
		deps:     deps,
	}
}

// founded creates a civilization directly in the repository, skipping
// the creation flow, and returns it.
func (h *harness) founded(t *testing.T, name, leaderID string) *civ.Civilization {
	t.Helper()
	c := civ.NewCivilization(name, leaderID)
	h.repo.PutCivilization(c)
	return c
}

// claimAt inserts a claim directly and registers it on the civ.
func (h *harness) claimAt(t *testing.T, c *civ.Civilization, world string, x, z int) *civ.Claim {
	t.Helper()
	claim := civ.NewClaim(world, x, z, c.ID)
	h.repo.PutClaim(claim)
	require.NoError(t, h.repo.WithCiv(c.ID, func(locked *civ.Civilization) error {
		locked.Claims.Add(claim.Key())
		return nil
	}))
	return claim
}
