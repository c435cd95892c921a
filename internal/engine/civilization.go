// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/civgrid/civgrid/internal/civ"
)

// CivilizationEngine owns civilization lifecycle, membership, roles,
// alliances, invitations and the home anchor.
type CivilizationEngine struct {
	d Deps

	// createMu serializes name-check + debit + insert so two players
	// cannot race the same name or double-spend a shared wallet.
	createMu sync.Mutex
}

// NewCivilizationEngine creates the engine.
func NewCivilizationEngine(d Deps) *CivilizationEngine {
	return &CivilizationEngine{d: d.normalize()}
}

// HasPermission reports whether the player's rank in the civilization
// carries the permission. Non-members hold nothing.
func (e *CivilizationEngine) HasPermission(playerID, civID string, perm Permission) bool {
	c, ok := e.d.Repo.Civilization(civID)
	if !ok {
		return false
	}
	return RoleHolds(c.Role(playerID), perm)
}

// Create founds a civilization with the founder as leader, debiting the
// creation cost from the founder's personal balance. The whole sequence
// runs under the creation mutex; a veto after the debit refunds it.
func (e *CivilizationEngine) Create(ctx context.Context, name, founderID string) (CreateResult, *civ.Civilization) {
	cfg := e.d.Config.Current()
	name = strings.TrimSpace(name)

	if err := civ.ValidateName(name, cfg.Civilization.MinNameLength, cfg.Civilization.MaxNameLength); err != nil {
		var verr *civ.ValidationError
		if errors.As(err, &verr) {
			switch {
			case strings.HasPrefix(verr.Message, "too short"):
				return e.countCreate(CreateNameTooShort), nil
			case strings.HasPrefix(verr.Message, "too long"):
				return e.countCreate(CreateNameTooLong), nil
			}
		}
		return e.countCreate(CreateInvalidName), nil
	}

	e.createMu.Lock()
	defer e.createMu.Unlock()

	if _, member := e.d.Repo.PlayerCivilization(founderID); member {
		return e.countCreate(CreateAlreadyInCivilization), nil
	}
	if e.d.Repo.NameTaken(name) {
		return e.countCreate(CreateNameTaken), nil
	}

	if err := e.d.Currency.Withdraw(ctx, founderID, cfg.Economy.CreateCost); err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return e.countCreate(CreateInsufficientFunds), nil
		}
		e.d.Log.Error("creation debit failed", "player", founderID, "error", err)
		return e.countCreate(CreateError), nil
	}

	if err := e.d.Hooks.creating(name, founderID); err != nil {
		if rerr := e.d.Currency.Deposit(ctx, founderID, cfg.Economy.CreateCost); rerr != nil {
			e.d.Log.Error("creation refund failed after veto",
				"player", founderID, "amount", cfg.Economy.CreateCost, "error", rerr)
		}
		e.d.Log.Info("civilization creation vetoed", "name", name, "founder", founderID, "reason", err)
		return e.countCreate(CreateError), nil
	}

	c := civ.NewCivilization(name, founderID)
	e.d.Repo.PutCivilization(c)

	e.d.Hooks.created(c)
	e.d.Log.Info("civilization created", "civ_id", c.ID, "name", name, "founder", founderID)
	return e.countCreate(CreateSuccess), c
}

func (e *CivilizationEngine) countCreate(r CreateResult) CreateResult {
	e.d.Metrics.RecordOperation("create_civilization", string(r))
	return r
}

// Disband dissolves the civilization: bank refunded to the leader,
// claims and invitations removed, live wars ended, ally links severed,
// record deleted. Leader only. Cascade steps are best effort; failures
// are logged and the disband proceeds.
func (e *CivilizationEngine) Disband(ctx context.Context, actorID, civID string) error {
	c, ok := e.d.Repo.Civilization(civID)
	if !ok {
		return oops.With("civ_id", civID).Wrap(civ.ErrNotFound)
	}
	if !RoleHolds(c.Role(actorID), PermDisband) {
		return oops.With("operation", "disband").Wrap(civ.ErrPermissionDenied)
	}
	if err := e.d.Hooks.disbanding(c); err != nil {
		return oops.With("operation", "disband").Wrapf(ErrOperationVetoed, "%v", err)
	}

	if c.BankBalance > 0 {
		if err := e.d.Currency.Deposit(ctx, c.LeaderID, c.BankBalance); err != nil {
			e.d.Log.Error("disband bank refund failed",
				"civ_id", civID, "leader", c.LeaderID, "amount", c.BankBalance, "error", err)
		}
	}

	members := c.AllMembers()
	e.dissolve(c)

	e.d.Hooks.disbanded(c)
	notifyAll(e.d.Notify, members, fmt.Sprintf("%s has been disbanded", c.Name))
	e.d.Metrics.RecordOperation("disband_civilization", "SUCCESS")
	e.d.Log.Info("civilization disbanded", "civ_id", civID, "name", c.Name, "actor", actorID)
	return nil
}

// ForceDisband dissolves a civilization administratively: the same
// cascade as Disband without the permission check, the veto hook or the
// leader refund.
func (e *CivilizationEngine) ForceDisband(civID string) error {
	c, ok := e.d.Repo.Civilization(civID)
	if !ok {
		return oops.With("civ_id", civID).Wrap(civ.ErrNotFound)
	}

	members := c.AllMembers()
	e.dissolve(c)

	e.d.Hooks.disbanded(c)
	notifyAll(e.d.Notify, members, fmt.Sprintf("%s has been disbanded", c.Name))
	e.d.Metrics.RecordOperation("force_disband", "SUCCESS")
	e.d.Log.Info("civilization force-disbanded", "civ_id", civID, "name", c.Name)
	return nil
}

// dissolve runs the disband cascade: live wars end with reason
// "disbanded", ally links are severed on both sides, and the record is
// deleted along with its claims and invitations. Steps are best effort;
// failures are logged and the cascade proceeds.
func (e *CivilizationEngine) dissolve(c *civ.Civilization) {
	now := time.Now()
	for _, w := range e.d.Repo.WarsOf(c.ID) {
		err := e.d.Repo.WithWar(w.ID, func(locked *civ.War) error {
			if locked.IsEnded() {
				return errWarUnchanged
			}
			locked.State = civ.WarEnded
			locked.EndedAt = now
			locked.EndReason = "disbanded"
			return nil
		})
		if err != nil && !errors.Is(err, errWarUnchanged) {
			e.d.Log.Error("disband war end failed", "civ_id", c.ID, "war_id", w.ID, "error", err)
		}
	}

	for _, allyID := range c.Allies.Values() {
		err := e.d.Repo.WithCiv(allyID, func(ally *civ.Civilization) error {
			ally.Allies.Remove(c.ID)
			return nil
		})
		if err != nil {
			e.d.Log.Error("disband ally unlink failed", "civ_id", c.ID, "ally", allyID, "error", err)
		}
	}

	e.d.Repo.DeleteCivilization(c.ID)
}

// Rename changes the civilization's name. Leader or officer; the new
// name is validated and must be unused.
func (e *CivilizationEngine) Rename(actorID, civID, newName string) error {
	cfg := e.d.Config.Current()
	newName = strings.TrimSpace(newName)
	if err := civ.ValidateName(newName, cfg.Civilization.MinNameLength, cfg.Civilization.MaxNameLength); err != nil {
		return oops.With("operation", "rename").Wrap(err)
	}

	e.createMu.Lock()
	defer e.createMu.Unlock()

	if existing, taken := e.d.Repo.CivilizationByName(newName); taken && existing.ID != civID {
		return oops.With("operation", "rename").Wrap(civ.ErrDuplicate)
	}

	var oldName string
	var members []string
	err := e.d.Repo.WithCiv(civID, func(c *civ.Civilization) error {
		if c.Role(actorID) < civ.RoleOfficer {
			return civ.ErrPermissionDenied
		}
		oldName = c.Name
		c.Name = newName
		members = c.AllMembers()
		return nil
	})
	if err != nil {
		return oops.With("operation", "rename").Wrap(err)
	}

	c, _ := e.d.Repo.Civilization(civID)
	e.d.Hooks.renamed(c, oldName)
	notifyAll(e.d.Notify, members, fmt.Sprintf("%s is now known as %s", oldName, newName))
	e.d.Log.Info("civilization renamed", "civ_id", civID, "old", oldName, "new", newName, "actor", actorID)
	return nil
}

// Invite offers the target RECRUIT membership, valid for the configured
// expiry. Inviter needs the invite permission; the target must not
// already belong to a civilization.
func (e *CivilizationEngine) Invite(actorID, civID, targetID string) (*civ.Invitation, error) {
	cfg := e.d.Config.Current()
	c, ok := e.d.Repo.Civilization(civID)
	if !ok {
		return nil, oops.With("civ_id", civID).Wrap(civ.ErrNotFound)
	}
	if !RoleHolds(c.Role(actorID), PermInvite) {
		return nil, oops.With("operation", "invite").Wrap(civ.ErrPermissionDenied)
	}
	if _, member := e.d.Repo.PlayerCivilization(targetID); member {
		return nil, ErrAlreadyInCivilization
	}
	if c.MemberCount() >= cfg.Civilization.MaxMembers {
		return nil, ErrMemberCapReached
	}
	if err := e.d.Hooks.inviting(civID, targetID); err != nil {
		return nil, oops.With("operation", "invite").Wrapf(ErrOperationVetoed, "%v", err)
	}

	// Refresh rather than stack when an invitation is already pending.
	if existing, pending := e.d.Repo.InvitationFor(targetID, civID, time.Now()); pending {
		e.d.Repo.DeleteInvitation(existing.ID)
	}

	inv := civ.NewInvitation(targetID, civID, actorID, cfg.Invite.Expiry)
	e.d.Repo.PutInvitation(inv)

	e.d.Notify.Notify(targetID, fmt.Sprintf("%s invited you to join %s",
		e.d.Identity.DisplayName(actorID), c.Name))
	e.d.Metrics.RecordOperation("invite", "SUCCESS")
	return inv, nil
}

// AcceptInvitation consumes an invitation and joins the target as
// RECRUIT. Fails when the invitation lapsed or the target joined
// another civilization in the meantime.
func (e *CivilizationEngine) AcceptInvitation(playerID, invitationID string) error {
	inv, ok := e.d.Repo.Invitation(invitationID)
	if !ok || inv.TargetID != playerID {
		return oops.With("invitation_id", invitationID).Wrap(civ.ErrNotFound)
	}
	if inv.Expired(time.Now()) {
		e.d.Repo.DeleteInvitation(inv.ID)
		return ErrInvitationExpired
	}
	if _, member := e.d.Repo.PlayerCivilization(playerID); member {
		return ErrAlreadyInCivilization
	}
	if err := e.d.Hooks.joining(inv.CivID, playerID); err != nil {
		return oops.With("operation", "join").Wrapf(ErrOperationVetoed, "%v", err)
	}

	cfg := e.d.Config.Current()
	err := e.d.Repo.WithCiv(inv.CivID, func(c *civ.Civilization) error {
		if c.MemberCount() >= cfg.Civilization.MaxMembers {
			return ErrMemberCapReached
		}
		c.AddMember(playerID, civ.RoleRecruit)
		return nil
	})
	if err != nil {
		return oops.With("operation", "join").Wrap(err)
	}

	e.d.Repo.IndexPlayer(playerID, inv.CivID)
	e.d.Repo.DeleteInvitation(inv.ID)
	e.d.Metrics.RecordOperation("join", "SUCCESS")
	e.d.Log.Info("player joined civilization", "player", playerID, "civ_id", inv.CivID)
	return nil
}

// PendingInvitations returns the player's live invitations, purging
// lapsed ones first.
func (e *CivilizationEngine) PendingInvitations(playerID string) []*civ.Invitation {
	now := time.Now()
	e.d.Repo.PurgeExpiredInvitations(now)
	return e.d.Repo.InvitationsFor(playerID, now)
}

// Leave removes the player from their civilization. The leader cannot
// leave; leadership must be transferred or the civilization disbanded.
func (e *CivilizationEngine) Leave(playerID string) error {
	c, ok := e.d.Repo.PlayerCivilization(playerID)
	if !ok {
		return ErrNotInCivilization
	}
	err := e.d.Repo.WithCiv(c.ID, func(c *civ.Civilization) error {
		if c.LeaderID == playerID {
			return ErrLeaderCannotLeave
		}
		c.RemoveMember(playerID)
		return nil
	})
	if err != nil {
		return err
	}

	e.d.Repo.UnindexPlayer(playerID)
	e.d.Hooks.left(c.ID, playerID)
	e.d.Metrics.RecordOperation("leave", "SUCCESS")
	e.d.Log.Info("player left civilization", "player", playerID, "civ_id", c.ID)
	return nil
}

// Kick removes the target. The actor needs the kick permission and must
// outrank the target: officers cannot kick officers or the leader.
func (e *CivilizationEngine) Kick(actorID, civID, targetID string) error {
	err := e.d.Repo.WithCiv(civID, func(c *civ.Civilization) error {
		actorRole := c.Role(actorID)
		targetRole := c.Role(targetID)
		if !RoleHolds(actorRole, PermKickMembers) {
			return civ.ErrPermissionDenied
		}
		if targetRole == civ.RoleNone {
			return civ.ErrNotFound
		}
		if !actorRole.CanManage(targetRole) {
			return civ.ErrPermissionDenied
		}
		c.RemoveMember(targetID)
		return nil
	})
	if err != nil {
		return oops.With("operation", "kick").Wrap(err)
	}

	e.d.Repo.UnindexPlayer(targetID)
	e.d.Hooks.kicked(civID, targetID)
	e.d.Notify.Notify(targetID, "You have been removed from your civilization")
	e.d.Metrics.RecordOperation("kick", "SUCCESS")
	e.d.Log.Info("player kicked", "civ_id", civID, "target", targetID, "actor", actorID)
	return nil
}

// Promote moves the target up one rung. Officers may promote recruits
// to member; only the leader may promote a member to officer.
func (e *CivilizationEngine) Promote(actorID, civID, targetID string) error {
	err := e.d.Repo.WithCiv(civID, func(c *civ.Civilization) error {
		actorRole := c.Role(actorID)
		targetRole := c.Role(targetID)
		if !RoleHolds(actorRole, PermPromote) || targetRole == civ.RoleNone {
			return civ.ErrPermissionDenied
		}
		switch targetRole {
		case civ.RoleRecruit:
			// officer or leader may promote a recruit
		case civ.RoleMember:
			if actorRole != civ.RoleLeader {
				return civ.ErrPermissionDenied
			}
		default:
			return civ.ErrPermissionDenied
		}
		c.Promote(targetID)
		return nil
	})
	if err != nil {
		return oops.With("operation", "promote").Wrap(err)
	}
	e.d.Metrics.RecordOperation("promote", "SUCCESS")
	return nil
}

// Demote moves the target down one rung. Only the leader may demote an
// officer; officers may demote members to recruit.
func (e *CivilizationEngine) Demote(actorID, civID, targetID string) error {
	err := e.d.Repo.WithCiv(civID, func(c *civ.Civilization) error {
		actorRole := c.Role(actorID)
		targetRole := c.Role(targetID)
		if !RoleHolds(actorRole, PermDemote) {
			return civ.ErrPermissionDenied
		}
		switch targetRole {
		case civ.RoleOfficer:
			if actorRole != civ.RoleLeader {
				return civ.ErrPermissionDenied
			}
		case civ.RoleMember:
			// officer or leader may demote a member
		default:
			return civ.ErrPermissionDenied
		}
		c.Demote(targetID)
		return nil
	})
	if err != nil {
		return oops.With("operation", "demote").Wrap(err)
	}
	e.d.Metrics.RecordOperation("demote", "SUCCESS")
	return nil
}

// TransferLeadership hands the civilization to another member. Leader
// only; the previous leader stays on as officer.
func (e *CivilizationEngine) TransferLeadership(actorID, civID, targetID string) error {
	err := e.d.Repo.WithCiv(civID, func(c *civ.Civilization) error {
		if c.LeaderID != actorID {
			return civ.ErrPermissionDenied
		}
		if !c.IsMember(targetID) || targetID == actorID {
			return civ.ErrNotFound
		}
		c.SetLeader(targetID)
		return nil
	})
	if err != nil {
		return oops.With("operation", "transfer_leadership").Wrap(err)
	}
	e.d.Metrics.RecordOperation("transfer_leadership", "SUCCESS")
	e.d.Log.Info("leadership transferred", "civ_id", civID, "from", actorID, "to", targetID)
	return nil
}

// AddAlly links two civilizations symmetrically. Declarer needs the
// declare_war permission (diplomacy), the pair must not be at war, and
// both stay under the alliance cap.
func (e *CivilizationEngine) AddAlly(actorID, civID, otherCivID string) error {
	cfg := e.d.Config.Current()
	if !cfg.Alliance.Enabled {
		return ErrAllianceDisabled
	}
	if civID == otherCivID {
		return oops.Errorf("a civilization cannot ally itself")
	}
	if !e.HasPermission(actorID, civID, PermDeclareWar) {
		return oops.With("operation", "add_ally").Wrap(civ.ErrPermissionDenied)
	}
	if _, ok := e.d.Repo.Civilization(otherCivID); !ok {
		return oops.With("civ_id", otherCivID).Wrap(civ.ErrNotFound)
	}
	if _, atWar := e.d.Repo.LiveWarBetween(civID, otherCivID); atWar {
		return ErrWarAlreadyLive
	}

	first, second := orderPair(civID, otherCivID)
	err := e.d.Repo.WithCiv(first, func(a *civ.Civilization) error {
		if len(a.Allies) >= cfg.Alliance.MaxPerCiv && !a.Allies.Has(second) {
			return ErrAllianceCapReached
		}
		return e.d.Repo.WithCiv(second, func(b *civ.Civilization) error {
			if len(b.Allies) >= cfg.Alliance.MaxPerCiv && !b.Allies.Has(first) {
				return ErrAllianceCapReached
			}
			a.Allies.Add(b.ID)
			b.Allies.Add(a.ID)
			return nil
		})
	})
	if err != nil {
		return oops.With("operation", "add_ally").Wrap(err)
	}
	e.d.Metrics.RecordOperation("add_ally", "SUCCESS")
	return nil
}

// RemoveAlly severs the alliance from both sides.
func (e *CivilizationEngine) RemoveAlly(actorID, civID, otherCivID string) error {
	if !e.HasPermission(actorID, civID, PermDeclareWar) {
		return oops.With("operation", "remove_ally").Wrap(civ.ErrPermissionDenied)
	}

	first, second := orderPair(civID, otherCivID)
	err := e.d.Repo.WithCiv(first, func(a *civ.Civilization) error {
		return e.d.Repo.WithCiv(second, func(b *civ.Civilization) error {
			a.Allies.Remove(b.ID)
			b.Allies.Remove(a.ID)
			return nil
		})
	})
	if err != nil {
		return oops.With("operation", "remove_ally").Wrap(err)
	}
	e.d.Metrics.RecordOperation("remove_ally", "SUCCESS")
	return nil
}

// Allied reports whether the two civilizations are allies.
func (e *CivilizationEngine) Allied(civA, civB string) bool {
	a, ok := e.d.Repo.Civilization(civA)
	return ok && a.Allies.Has(civB)
}

// SetHome anchors the civilization home. Leader or officer; the anchor
// must sit inside the civilization's own territory.
func (e *CivilizationEngine) SetHome(actorID, civID string, home civ.Home) error {
	chunkX, chunkZ := chunkOf(home.X, home.Z)
	claim, claimed := e.d.Repo.Claim(civ.ClaimKey(home.World, chunkX, chunkZ))
	if !claimed || claim.CivID != civID {
		return ErrHomeOutsideTerritory
	}

	err := e.d.Repo.WithCiv(civID, func(c *civ.Civilization) error {
		if !RoleHolds(c.Role(actorID), PermSetHome) {
			return civ.ErrPermissionDenied
		}
		c.Home = &home
		return nil
	})
	if err != nil {
		return oops.With("operation", "set_home").Wrap(err)
	}
	e.d.Metrics.RecordOperation("set_home", "SUCCESS")
	return nil
}

// TopCivilizations returns up to limit civilizations ordered by member
// count, largest first, name as tiebreak.
func (e *CivilizationEngine) TopCivilizations(limit int) []*civ.Civilization {
	all := e.d.Repo.Civilizations()
	sort.Slice(all, func(i, j int) bool {
		ci, cj := all[i].MemberCount(), all[j].MemberCount()
		if ci != cj {
			return ci > cj
		}
		return all[i].Name < all[j].Name
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// orderPair orders two civ IDs so nested locking is deterministic.
func orderPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}
