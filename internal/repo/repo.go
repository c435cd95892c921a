// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

// Package repo holds the authoritative in-memory state: all
// civilizations, claims, wars and invitations, plus the player-to-civ
// index for O(1) membership lookups. Reads hit memory only; mutations
// are written back asynchronously through the storage provider.
package repo

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/civgrid/civgrid/internal/civ"
	"github.com/civgrid/civgrid/internal/observability"
	"github.com/civgrid/civgrid/internal/storage"
)

// Repository is the in-memory store of record. All exported methods are
// safe for concurrent use. Compound read-modify-write sequences on one
// civilization must go through WithCiv so they serialize against each
// other.
type Repository struct {
	log      *slog.Logger
	provider storage.Provider
	metrics  *observability.Metrics

	mu        sync.RWMutex
	civs      map[string]*civ.Civilization
	claims    map[string]*civ.Claim
	wars      map[string]*civ.War
	invites   map[string]*civ.Invitation
	playerCiv map[string]string

	civLocks   *keyedLocks
	claimLocks *keyedLocks
	warLocks   *keyedLocks
	writer     *asyncWriter
}

// New creates a repository over the given provider. metrics may be nil.
func New(provider storage.Provider, log *slog.Logger, metrics *observability.Metrics) *Repository {
	r := &Repository{
		log:        log,
		provider:   provider,
		metrics:    metrics,
		civs:       make(map[string]*civ.Civilization),
		claims:     make(map[string]*civ.Claim),
		wars:       make(map[string]*civ.War),
		invites:    make(map[string]*civ.Invitation),
		playerCiv:  make(map[string]string),
		civLocks:   newKeyedLocks(),
		claimLocks: newKeyedLocks(),
		warLocks:   newKeyedLocks(),
	}
	r.writer = newAsyncWriter(log, metrics)
	return r
}

// Load reads all four collections from the provider, rebuilds the
// player index and drops invitations that expired while the server was
// down. Call once at startup before serving.
func (r *Repository) Load(ctx context.Context) error {
	civs, err := r.provider.LoadCivilizations(ctx)
	if err != nil {
		return oops.With("operation", "load_civilizations").Wrap(err)
	}
	claims, err := r.provider.LoadClaims(ctx)
	if err != nil {
		return oops.With("operation", "load_claims").Wrap(err)
	}
	wars, err := r.provider.LoadWars(ctx)
	if err != nil {
		return oops.With("operation", "load_wars").Wrap(err)
	}
	invites, err := r.provider.LoadInvitations(ctx)
	if err != nil {
		return oops.With("operation", "load_invitations").Wrap(err)
	}

	now := time.Now()
	expired := 0
	for id, inv := range invites {
		if inv.Expired(now) {
			delete(invites, id)
			expired++
		}
	}

	r.mu.Lock()
	r.civs = civs
	r.claims = claims
	r.wars = wars
	r.invites = invites
	r.playerCiv = make(map[string]string, len(civs)*4)
	for id, c := range civs {
		for _, member := range c.AllMembers() {
			r.playerCiv[member] = id
		}
	}
	r.mu.Unlock()

	r.metrics.SetLoaded(len(civs), len(claims))
	r.log.Info("repository loaded",
		"civilizations", len(civs),
		"claims", len(claims),
		"wars", len(wars),
		"invitations", len(invites),
		"expired_invitations_dropped", expired)
	return nil
}

// Civilization returns the civilization by ID.
func (r *Repository) Civilization(id string) (*civ.Civilization, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.civs[id]
	return c, ok
}

// CivilizationByName finds a civilization by case-insensitive name.
func (r *Repository) CivilizationByName(name string) (*civ.Civilization, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.civs {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return nil, false
}

// NameTaken reports whether any civilization already uses the name,
// compared case-insensitively.
func (r *Repository) NameTaken(name string) bool {
	_, taken := r.CivilizationByName(name)
	return taken
}

// PlayerCivilization resolves the player's civilization through the
// index, or false if the player belongs to none.
func (r *Repository) PlayerCivilization(playerID string) (*civ.Civilization, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.playerCiv[playerID]
	if !ok {
		return nil, false
	}
	c, ok := r.civs[id]
	return c, ok
}

// Civilizations returns a snapshot slice of every civilization.
func (r *Repository) Civilizations() []*civ.Civilization {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*civ.Civilization, 0, len(r.civs))
	for _, c := range r.civs {
		out = append(out, c)
	}
	return out
}

// PutCivilization inserts a civilization, indexes its members and
// queues a persist.
func (r *Repository) PutCivilization(c *civ.Civilization) {
	r.mu.Lock()
	r.civs[c.ID] = c
	for _, member := range c.AllMembers() {
		r.playerCiv[member] = c.ID
	}
	civCount, claimCount := len(r.civs), len(r.claims)
	r.mu.Unlock()

	r.metrics.SetLoaded(civCount, claimCount)
	r.enqueueCivSave(c)
}

// SaveCivilization queues a persist of an already-registered
// civilization after a mutation.
func (r *Repository) SaveCivilization(c *civ.Civilization) {
	r.enqueueCivSave(c)
}

// DeleteCivilization removes the civilization, its claims, its pending
// invitations and its members' index entries, then queues the deletes.
// Wars are history and stay.
func (r *Repository) DeleteCivilization(id string) {
	r.mu.Lock()
	c, ok := r.civs[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.civs, id)
	for _, member := range c.AllMembers() {
		if r.playerCiv[member] == id {
			delete(r.playerCiv, member)
		}
	}

	var claimKeys []string
	for key, cl := range r.claims {
		if cl.CivID == id {
			delete(r.claims, key)
			claimKeys = append(claimKeys, key)
		}
	}
	var inviteIDs []string
	for iid, inv := range r.invites {
		if inv.CivID == id {
			delete(r.invites, iid)
			inviteIDs = append(inviteIDs, iid)
		}
	}
	civCount, claimCount := len(r.civs), len(r.claims)
	r.mu.Unlock()

	r.metrics.SetLoaded(civCount, claimCount)
	r.writer.enqueue(saveOp{
		collection: "civilizations", key: id,
		apply: func(ctx context.Context) error { return r.provider.DeleteCivilization(ctx, id) },
	})
	for _, key := range claimKeys {
		r.writer.enqueue(saveOp{
			collection: "claims", key: key,
			apply: func(ctx context.Context) error { return r.provider.DeleteClaim(ctx, key) },
		})
	}
	for _, iid := range inviteIDs {
		r.writer.enqueue(saveOp{
			collection: "invitations", key: iid,
			apply: func(ctx context.Context) error { return r.provider.DeleteInvitation(ctx, iid) },
		})
	}
}

// IndexPlayer points the player index at the civilization. Used when a
// player joins.
func (r *Repository) IndexPlayer(playerID, civID string) {
	r.mu.Lock()
	r.playerCiv[playerID] = civID
	r.mu.Unlock()
}

// UnindexPlayer drops the player's index entry. Used when a player
// leaves or is kicked.
func (r *Repository) UnindexPlayer(playerID string) {
	r.mu.Lock()
	delete(r.playerCiv, playerID)
	r.mu.Unlock()
}

// WithCiv runs fn with the civilization's record lock held, then queues
// a persist when fn succeeds. Returns civ.ErrNotFound for unknown IDs.
func (r *Repository) WithCiv(civID string, fn func(*civ.Civilization) error) error {
	lock := r.civLocks.get(civID)
	lock.Lock()
	defer lock.Unlock()

	c, ok := r.Civilization(civID)
	if !ok {
		return oops.With("civ_id", civID).Wrap(civ.ErrNotFound)
	}
	if err := fn(c); err != nil {
		return err
	}
	r.enqueueCivSave(c)
	return nil
}

// Claim returns the claim at the key ("world:x:z").
func (r *Repository) Claim(key string) (*civ.Claim, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.claims[key]
	return c, ok
}

// Claims returns a snapshot slice of every claim.
func (r *Repository) Claims() []*civ.Claim {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*civ.Claim, 0, len(r.claims))
	for _, c := range r.claims {
		out = append(out, c)
	}
	return out
}

// ClaimsOf returns the civilization's claims.
func (r *Repository) ClaimsOf(civID string) []*civ.Claim {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*civ.Claim
	for _, c := range r.claims {
		if c.CivID == civID {
			out = append(out, c)
		}
	}
	return out
}

// ClaimCount returns how many chunks the civilization holds.
func (r *Repository) ClaimCount(civID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.claims {
		if c.CivID == civID {
			n++
		}
	}
	return n
}

// PutClaim inserts or replaces a claim and queues a persist.
func (r *Repository) PutClaim(c *civ.Claim) {
	r.mu.Lock()
	r.claims[c.Key()] = c
	civCount, claimCount := len(r.civs), len(r.claims)
	r.mu.Unlock()

	r.metrics.SetLoaded(civCount, claimCount)
	r.enqueueClaimSave(c)
}

// SaveClaim queues a persist of a mutated claim.
func (r *Repository) SaveClaim(c *civ.Claim) {
	r.enqueueClaimSave(c)
}

// DeleteClaim removes the claim and queues the delete.
func (r *Repository) DeleteClaim(key string) {
	r.mu.Lock()
	_, ok := r.claims[key]
	delete(r.claims, key)
	civCount, claimCount := len(r.civs), len(r.claims)
	r.mu.Unlock()
	if !ok {
		return
	}

	r.metrics.SetLoaded(civCount, claimCount)
	r.writer.enqueue(saveOp{
		collection: "claims", key: key,
		apply: func(ctx context.Context) error { return r.provider.DeleteClaim(ctx, key) },
	})
}

// WithClaim runs fn with the claim's record lock held, then queues a
// persist when fn succeeds. Trust-map mutations must go through here so
// they serialize against permission checks on the same claim. Returns
// civ.ErrNotFound for unknown keys.
func (r *Repository) WithClaim(key string, fn func(*civ.Claim) error) error {
	lock := r.claimLocks.get(key)
	lock.Lock()
	defer lock.Unlock()

	c, ok := r.Claim(key)
	if !ok {
		return oops.With("claim", key).Wrap(civ.ErrNotFound)
	}
	if err := fn(c); err != nil {
		return err
	}
	r.enqueueClaimSave(c)
	return nil
}

// ViewClaim runs fn with the claim's record lock held without queuing a
// persist. fn may prune lapsed trust grants; the pruned map reaches the
// store with the next mutation. Returns false for unknown keys.
func (r *Repository) ViewClaim(key string, fn func(*civ.Claim)) bool {
	lock := r.claimLocks.get(key)
	lock.Lock()
	defer lock.Unlock()

	c, ok := r.Claim(key)
	if !ok {
		return false
	}
	fn(c)
	return true
}

// War returns the war by ID.
func (r *Repository) War(id string) (*civ.War, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wars[id]
	return w, ok
}

// Wars returns a snapshot slice of every war, ended ones included.
func (r *Repository) Wars() []*civ.War {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*civ.War, 0, len(r.wars))
	for _, w := range r.wars {
		out = append(out, w)
	}
	return out
}

// WarsOf returns every war the civilization is or was a belligerent in.
func (r *Repository) WarsOf(civID string) []*civ.War {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*civ.War
	for _, w := range r.wars {
		if w.Involves(civID) {
			out = append(out, w)
		}
	}
	return out
}

// LiveWarBetween finds the non-ended war between the unordered pair, if
// one exists. At most one can exist at a time.
func (r *Repository) LiveWarBetween(civA, civB string) (*civ.War, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wars {
		if !w.IsEnded() && w.Involves(civA) && w.Involves(civB) {
			return w, true
		}
	}
	return nil, false
}

// PutWar inserts a war and queues a persist.
func (r *Repository) PutWar(w *civ.War) {
	r.mu.Lock()
	r.wars[w.ID] = w
	r.mu.Unlock()
	r.enqueueWarSave(w)
}

// SaveWar queues a persist of a mutated war.
func (r *Repository) SaveWar(w *civ.War) {
	r.enqueueWarSave(w)
}

// WithWar runs fn with the war's record lock held, then queues a persist
// when fn succeeds. State transitions and score changes must go through
// here. Returns civ.ErrNotFound for unknown IDs.
func (r *Repository) WithWar(id string, fn func(*civ.War) error) error {
	lock := r.warLocks.get(id)
	lock.Lock()
	defer lock.Unlock()

	w, ok := r.War(id)
	if !ok {
		return oops.With("war_id", id).Wrap(civ.ErrNotFound)
	}
	if err := fn(w); err != nil {
		return err
	}
	r.enqueueWarSave(w)
	return nil
}

// Invitation returns the invitation by ID.
func (r *Repository) Invitation(id string) (*civ.Invitation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.invites[id]
	return i, ok
}

// InvitationFor finds the player's unexpired invitation from the given
// civilization.
func (r *Repository) InvitationFor(targetID, civID string, now time.Time) (*civ.Invitation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, i := range r.invites {
		if i.TargetID == targetID && i.CivID == civID && !i.Expired(now) {
			return i, true
		}
	}
	return nil, false
}

// InvitationsFor returns the player's unexpired invitations.
func (r *Repository) InvitationsFor(targetID string, now time.Time) []*civ.Invitation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*civ.Invitation
	for _, i := range r.invites {
		if i.TargetID == targetID && !i.Expired(now) {
			out = append(out, i)
		}
	}
	return out
}

// PutInvitation inserts an invitation and queues a persist.
func (r *Repository) PutInvitation(i *civ.Invitation) {
	r.mu.Lock()
	r.invites[i.ID] = i
	r.mu.Unlock()
	r.enqueueInviteSave(i)
}

// DeleteInvitation removes the invitation and queues the delete.
func (r *Repository) DeleteInvitation(id string) {
	r.mu.Lock()
	_, ok := r.invites[id]
	delete(r.invites, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	r.writer.enqueue(saveOp{
		collection: "invitations", key: id,
		apply: func(ctx context.Context) error { return r.provider.DeleteInvitation(ctx, id) },
	})
}

// PurgeExpiredInvitations drops every invitation that lapsed before now
// and returns how many went.
func (r *Repository) PurgeExpiredInvitations(now time.Time) int {
	r.mu.Lock()
	var stale []string
	for id, i := range r.invites {
		if i.Expired(now) {
			delete(r.invites, id)
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.writer.enqueue(saveOp{
			collection: "invitations", key: id,
			apply: func(ctx context.Context) error { return r.provider.DeleteInvitation(ctx, id) },
		})
	}
	return len(stale)
}

// Start launches the async persistence writer.
func (r *Repository) Start() {
	r.writer.start()
}

// Flush drains the async queue, then writes all four collections
// synchronously. A failing collection does not stop the others; the
// combined error is returned.
func (r *Repository) Flush(ctx context.Context) error {
	if err := r.writer.drain(ctx); err != nil {
		return err
	}

	r.mu.RLock()
	civs := make(map[string]*civ.Civilization, len(r.civs))
	for k, v := range r.civs {
		civs[k] = v
	}
	claims := make(map[string]*civ.Claim, len(r.claims))
	for k, v := range r.claims {
		claims[k] = v
	}
	wars := make(map[string]*civ.War, len(r.wars))
	for k, v := range r.wars {
		wars[k] = v
	}
	invites := make(map[string]*civ.Invitation, len(r.invites))
	for k, v := range r.invites {
		invites[k] = v
	}
	r.mu.RUnlock()

	var errs []error
	if err := r.provider.SaveCivilizations(ctx, civs); err != nil {
		errs = append(errs, oops.With("collection", "civilizations").Wrap(err))
	}
	if err := r.provider.SaveClaims(ctx, claims); err != nil {
		errs = append(errs, oops.With("collection", "claims").Wrap(err))
	}
	if err := r.provider.SaveWars(ctx, wars); err != nil {
		errs = append(errs, oops.With("collection", "wars").Wrap(err))
	}
	if err := r.provider.SaveInvitations(ctx, invites); err != nil {
		errs = append(errs, oops.With("collection", "invitations").Wrap(err))
	}
	return errors.Join(errs...)
}

// Close stops the writer after draining it. The repository is unusable
// afterwards.
func (r *Repository) Close(ctx context.Context) error {
	return r.writer.stop(ctx)
}

func (r *Repository) enqueueCivSave(c *civ.Civilization) {
	snap, err := clone(c)
	if err != nil {
		r.log.Error("snapshot civilization failed", "civ_id", c.ID, "error", err)
		return
	}
	r.writer.enqueue(saveOp{
		collection: "civilizations", key: c.ID,
		apply: func(ctx context.Context) error { return r.provider.SaveCivilization(ctx, snap) },
	})
}

func (r *Repository) enqueueClaimSave(c *civ.Claim) {
	snap, err := clone(c)
	if err != nil {
		r.log.Error("snapshot claim failed", "claim", c.Key(), "error", err)
		return
	}
	r.writer.enqueue(saveOp{
		collection: "claims", key: c.Key(),
		apply: func(ctx context.Context) error { return r.provider.SaveClaim(ctx, snap) },
	})
}

func (r *Repository) enqueueWarSave(w *civ.War) {
	snap, err := clone(w)
	if err != nil {
		r.log.Error("snapshot war failed", "war_id", w.ID, "error", err)
		return
	}
	r.writer.enqueue(saveOp{
		collection: "wars", key: w.ID,
		apply: func(ctx context.Context) error { return r.provider.SaveWar(ctx, snap) },
	})
}

func (r *Repository) enqueueInviteSave(i *civ.Invitation) {
	snap, err := clone(i)
	if err != nil {
		r.log.Error("snapshot invitation failed", "invitation_id", i.ID, "error", err)
		return
	}
	r.writer.enqueue(saveOp{
		collection: "invitations", key: i.ID,
		apply: func(ctx context.Context) error { return r.provider.SaveInvitation(ctx, snap) },
	})
}
