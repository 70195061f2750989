package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wavehub/pincore/internal/audit"
	"github.com/wavehub/pincore/internal/auth"
	"github.com/wavehub/pincore/internal/scheduler"
)

// ClaimModule makes the caller the owner of an unclaimed module. When the
// module was provisioned with a secret, the caller must present it.
func (c *Controller) ClaimModule(ctx context.Context, creds auth.Credentials, moduleID, secret string) (*ModuleView, error) {
	userID, snap, err := c.authorize(ctx, creds, moduleID, auth.OpClaimModule)
	if err != nil {
		return nil, err
	}

	// Argon2 is slow; verify before entering the critical section.
	if snap.SecretHash != "" {
		ok, err := auth.VerifyPassword(secret, snap.SecretHash)
		if err != nil {
			return nil, fmt.Errorf("verifying module secret: %w", err)
		}
		if !ok {
			c.metrics.Denied(string(auth.OpClaimModule), "invalid_secret")
			c.logger.Warn("claim rejected: invalid secret", "module_id", moduleID, "user_id", userID)
			return nil, auth.ErrInvalidSecret
		}
	}

	m, err := c.mutate(ctx, userID, moduleID, auth.OpClaimModule, func(tx *scheduler.Tx) error {
		return tx.Module.Claim(userID, tx.Now)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("module claimed", "module_id", moduleID, "user_id", userID)
	c.record(ctx, audit.AuditLog{
		Action: audit.ActionClaim, EntityType: audit.EntityModule, EntityID: moduleID,
		ModuleID: moduleID, UserID: userID,
	})
	return viewOf(m, userID), nil
}

// RoleGrant is the result of a role assignment.
type RoleGrant struct {
	ModuleID  string    `json:"module_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      auth.Role `json:"role"`
	GrantedAt time.Time `json:"granted_at"`
}

// AssignUserRole grants or changes another user's role. target is a user
// ID or username. The owner's role cannot be changed.
func (c *Controller) AssignUserRole(ctx context.Context, creds auth.Credentials, moduleID, target string, role auth.Role) (*RoleGrant, error) {
	userID, _, err := c.authorize(ctx, creds, moduleID, auth.OpManageRoles)
	if err != nil {
		return nil, err
	}
	if !auth.IsAssignableRole(role) {
		return nil, fmt.Errorf("%w: %q", auth.ErrInvalidRole, role)
	}
	user, err := c.resolveUser(ctx, target)
	if err != nil {
		return nil, err
	}
	if user.ID == userID {
		return nil, auth.ErrSelfAssignment
	}

	grant := &RoleGrant{ModuleID: moduleID, UserID: user.ID, Username: user.Username, Role: role}
	_, err = c.mutate(ctx, userID, moduleID, auth.OpManageRoles, func(tx *scheduler.Tx) error {
		grant.GrantedAt = tx.Now
		return tx.Module.AssignRole(user.ID, role, userID, tx.Now)
	})
	if err != nil {
		return nil, err
	}

	c.record(ctx, audit.AuditLog{
		Action: audit.ActionAssignRole, EntityType: audit.EntityRole, EntityID: user.ID,
		ModuleID: moduleID, UserID: userID, Details: map[string]any{"role": string(role)},
	})
	return grant, nil
}

// RevokeUserRole removes another user's role.
func (c *Controller) RevokeUserRole(ctx context.Context, creds auth.Credentials, moduleID, target string) error {
	userID, _, err := c.authorize(ctx, creds, moduleID, auth.OpManageRoles)
	if err != nil {
		return err
	}
	user, err := c.resolveUser(ctx, target)
	if err != nil {
		return err
	}
	if user.ID == userID {
		return auth.ErrSelfAssignment
	}

	_, err = c.mutate(ctx, userID, moduleID, auth.OpManageRoles, func(tx *scheduler.Tx) error {
		return tx.Module.RevokeRole(user.ID)
	})
	if err != nil {
		return err
	}

	c.record(ctx, audit.AuditLog{
		Action: audit.ActionRevokeRole, EntityType: audit.EntityRole, EntityID: user.ID,
		ModuleID: moduleID, UserID: userID,
	})
	return nil
}

// resolveUser looks target up by ID, then by username.
func (c *Controller) resolveUser(ctx context.Context, target string) (*auth.User, error) {
	if c.users == nil {
		return nil, auth.ErrUserNotFound
	}
	user, err := c.users.GetByID(ctx, target)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, auth.ErrUserNotFound) {
		return nil, err
	}
	return c.users.GetByUsername(ctx, target)
}
