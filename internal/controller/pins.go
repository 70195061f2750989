package controller

import (
	"context"
	"fmt"

	"github.com/wavehub/pincore/internal/audit"
	"github.com/wavehub/pincore/internal/auth"
	"github.com/wavehub/pincore/internal/automation"
	"github.com/wavehub/pincore/internal/module"
	"github.com/wavehub/pincore/internal/scheduler"
)

// PinCommand is a requested pin state. Policy is required for auto and
// must be absent otherwise.
type PinCommand struct {
	State  string           `json:"state"`
	Policy *automation.Spec `json:"policy,omitempty"`
}

// parse validates the command before anything is queued.
func (cmd PinCommand) parse() (automation.Mode, automation.Policy, error) {
	mode, err := automation.ParseMode(cmd.State)
	if err != nil {
		return "", nil, err
	}
	if mode != automation.ModeAuto {
		if cmd.Policy != nil {
			return "", nil, fmt.Errorf("%w: policy is only accepted with state auto", automation.ErrInvalidPolicy)
		}
		return mode, nil, nil
	}
	if cmd.Policy == nil {
		return "", nil, automation.ErrPolicyRequired
	}
	p, err := cmd.Policy.Policy()
	if err != nil {
		return "", nil, err
	}
	return mode, p, nil
}

// SetPinState switches a pin off, on, or into automation under a policy.
func (c *Controller) SetPinState(ctx context.Context, creds auth.Credentials, moduleID, pinID string, cmd PinCommand) (*module.Pin, error) {
	userID, _, err := c.authorize(ctx, creds, moduleID, auth.OpSetPinState)
	if err != nil {
		return nil, err
	}
	mode, policy, err := cmd.parse()
	if err != nil {
		return nil, err
	}

	m, err := c.mutate(ctx, userID, moduleID, auth.OpSetPinState, func(tx *scheduler.Tx) error {
		_, err := tx.SetPinState(pinID, mode, policy)
		return err
	})
	if err != nil {
		return nil, err
	}

	pin, err := m.Pin(pinID)
	if err != nil {
		return nil, err
	}
	details := map[string]any{"state": string(mode), "output": string(pin.Output)}
	if spec := automation.SpecOf(policy); spec != nil {
		details["policy"] = spec.Kind
	}
	c.record(ctx, audit.AuditLog{
		Action: audit.ActionSetState, EntityType: audit.EntityPin, EntityID: pinID,
		ModuleID: moduleID, UserID: userID, Details: details,
	})
	return pin, nil
}

// ConfigurePinCount grows or shrinks the module's pin list. Timers of
// removed pins are cancelled before it returns.
func (c *Controller) ConfigurePinCount(ctx context.Context, creds auth.Credentials, moduleID string, count int) (*ModuleView, error) {
	userID, _, err := c.authorize(ctx, creds, moduleID, auth.OpConfigurePins)
	if err != nil {
		return nil, err
	}

	var removed []string
	m, err := c.mutate(ctx, userID, moduleID, auth.OpConfigurePins, func(tx *scheduler.Tx) error {
		var err error
		removed, err = tx.Module.SetPinCount(count)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.record(ctx, audit.AuditLog{
		Action: audit.ActionConfigure, EntityType: audit.EntityModule, EntityID: moduleID,
		ModuleID: moduleID, UserID: userID,
		Details: map[string]any{"pin_count": count, "removed": len(removed)},
	})
	return viewOf(m, userID), nil
}

// AssignPinToGroup moves a pin into a group. An empty groupID unassigns it.
func (c *Controller) AssignPinToGroup(ctx context.Context, creds auth.Credentials, moduleID, pinID, groupID string) (*module.Pin, error) {
	userID, _, err := c.authorize(ctx, creds, moduleID, auth.OpConfigurePins)
	if err != nil {
		return nil, err
	}

	m, err := c.mutate(ctx, userID, moduleID, auth.OpConfigurePins, func(tx *scheduler.Tx) error {
		return tx.Module.AssignPinToGroup(pinID, groupID)
	})
	if err != nil {
		return nil, err
	}

	c.record(ctx, audit.AuditLog{
		Action: audit.ActionAssignGroup, EntityType: audit.EntityPin, EntityID: pinID,
		ModuleID: moduleID, UserID: userID, Details: map[string]any{"group_id": groupID},
	})
	return m.Pin(pinID)
}

// RenamePin changes a pin's display name and description.
func (c *Controller) RenamePin(ctx context.Context, creds auth.Credentials, moduleID, pinID, name, description string) (*module.Pin, error) {
	userID, _, err := c.authorize(ctx, creds, moduleID, auth.OpConfigurePins)
	if err != nil {
		return nil, err
	}

	m, err := c.mutate(ctx, userID, moduleID, auth.OpConfigurePins, func(tx *scheduler.Tx) error {
		return tx.Module.RenamePin(pinID, name, description)
	})
	if err != nil {
		return nil, err
	}

	pin, err := m.Pin(pinID)
	if err != nil {
		return nil, err
	}
	c.record(ctx, audit.AuditLog{
		Action: audit.ActionRename, EntityType: audit.EntityPin, EntityID: pinID,
		ModuleID: moduleID, UserID: userID, Details: map[string]any{"name": pin.Name},
	})
	return pin, nil
}

// PinHistory returns the most recent output directives of a pin.
func (c *Controller) PinHistory(ctx context.Context, creds auth.Credentials, moduleID, pinID string, limit int) ([]module.HistoryEntry, error) {
	_, snap, err := c.authorize(ctx, creds, moduleID, auth.OpViewModule)
	if err != nil {
		return nil, err
	}
	if _, err := snap.Pin(pinID); err != nil {
		return nil, err
	}
	if c.history == nil {
		return []module.HistoryEntry{}, nil
	}
	return c.history.History(ctx, moduleID, pinID, limit)
}
