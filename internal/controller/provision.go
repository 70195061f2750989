package controller

import (
	"context"
	"fmt"

	"github.com/wavehub/pincore/internal/auth"
	"github.com/wavehub/pincore/internal/module"
)

// InventoryModule is a physical module known to the installation before
// anyone claims it.
type InventoryModule struct {
	ID          string
	Name        string
	Description string
	MaxPins     int
	Secret      string
}

// Provision inserts inventory modules missing from the store. Existing
// modules, including their secrets, are left as they are.
func (c *Controller) Provision(ctx context.Context, inventory []InventoryModule) (int, error) {
	created := 0
	for _, inv := range inventory {
		m := &module.Module{
			ID:          inv.ID,
			Name:        inv.Name,
			Description: inv.Description,
			Status:      module.StatusActive,
			MaxPins:     inv.MaxPins,
		}
		if inv.Secret != "" {
			hash, err := auth.HashPassword(inv.Secret)
			if err != nil {
				return created, fmt.Errorf("hashing secret of module %s: %w", inv.ID, err)
			}
			m.SecretHash = hash
		}

		ok, err := c.store.Provision(ctx, m)
		if err != nil {
			return created, err
		}
		if ok {
			created++
			c.logger.Info("module provisioned", "module_id", inv.ID, "max_pins", m.MaxPins)
		}
	}
	return created, nil
}
