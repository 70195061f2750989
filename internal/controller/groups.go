package controller

import (
	"context"

	"github.com/wavehub/pincore/internal/audit"
	"github.com/wavehub/pincore/internal/auth"
	"github.com/wavehub/pincore/internal/module"
	"github.com/wavehub/pincore/internal/scheduler"
)

// AddGroup creates a group. Names are unique ignoring case.
func (c *Controller) AddGroup(ctx context.Context, creds auth.Credentials, moduleID, name string) (*module.Group, error) {
	userID, _, err := c.authorize(ctx, creds, moduleID, auth.OpManageGroups)
	if err != nil {
		return nil, err
	}

	var groupID string
	m, err := c.mutate(ctx, userID, moduleID, auth.OpManageGroups, func(tx *scheduler.Tx) error {
		g, err := tx.Module.AddGroup(name)
		if err != nil {
			return err
		}
		groupID = g.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	g, err := m.Group(groupID)
	if err != nil {
		return nil, err
	}
	c.record(ctx, audit.AuditLog{
		Action: audit.ActionCreate, EntityType: audit.EntityGroup, EntityID: g.ID,
		ModuleID: moduleID, UserID: userID, Details: map[string]any{"name": g.Name},
	})
	return g, nil
}

// RenameGroup changes a group's name.
func (c *Controller) RenameGroup(ctx context.Context, creds auth.Credentials, moduleID, groupID, name string) (*module.Group, error) {
	userID, _, err := c.authorize(ctx, creds, moduleID, auth.OpManageGroups)
	if err != nil {
		return nil, err
	}

	m, err := c.mutate(ctx, userID, moduleID, auth.OpManageGroups, func(tx *scheduler.Tx) error {
		return tx.Module.RenameGroup(groupID, name)
	})
	if err != nil {
		return nil, err
	}

	g, err := m.Group(groupID)
	if err != nil {
		return nil, err
	}
	c.record(ctx, audit.AuditLog{
		Action: audit.ActionRename, EntityType: audit.EntityGroup, EntityID: groupID,
		ModuleID: moduleID, UserID: userID, Details: map[string]any{"name": g.Name},
	})
	return g, nil
}

// DeleteGroup removes a group and unassigns its pins without touching
// their states. It returns the IDs of the unassigned pins.
func (c *Controller) DeleteGroup(ctx context.Context, creds auth.Credentials, moduleID, groupID string) ([]string, error) {
	userID, _, err := c.authorize(ctx, creds, moduleID, auth.OpManageGroups)
	if err != nil {
		return nil, err
	}

	var unassigned []string
	_, err = c.mutate(ctx, userID, moduleID, auth.OpManageGroups, func(tx *scheduler.Tx) error {
		var err error
		unassigned, err = tx.Module.DeleteGroup(groupID)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.record(ctx, audit.AuditLog{
		Action: audit.ActionDelete, EntityType: audit.EntityGroup, EntityID: groupID,
		ModuleID: moduleID, UserID: userID, Details: map[string]any{"unassigned_pins": len(unassigned)},
	})
	if unassigned == nil {
		unassigned = []string{}
	}
	return unassigned, nil
}
