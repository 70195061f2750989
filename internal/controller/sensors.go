package controller

import (
	"context"
	"slices"

	"github.com/wavehub/pincore/internal/audit"
	"github.com/wavehub/pincore/internal/auth"
	"github.com/wavehub/pincore/internal/automation"
	"github.com/wavehub/pincore/internal/module"
	"github.com/wavehub/pincore/internal/scheduler"
)

// CalibrateSensor stores the calibration the module applies to a sensor's
// raw values and re-evaluates the pins watching it.
func (c *Controller) CalibrateSensor(ctx context.Context, creds auth.Credentials, moduleID, sensorID string, cal automation.Calibration) (*automation.SensorStats, error) {
	userID, _, err := c.authorize(ctx, creds, moduleID, auth.OpCalibrateSensor)
	if err != nil {
		return nil, err
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}

	_, err = c.mutate(ctx, userID, moduleID, auth.OpCalibrateSensor, func(tx *scheduler.Tx) error {
		if err := tx.Module.SetCalibration(sensorID, cal); err != nil {
			return err
		}
		tx.ReevaluateSensor(sensorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.record(ctx, audit.AuditLog{
		Action: audit.ActionCalibrate, EntityType: audit.EntitySensor, EntityID: sensorID,
		ModuleID: moduleID, UserID: userID,
		Details: map[string]any{"multiplier": cal.Multiplier, "offset": cal.Offset},
	})
	stats := c.readings.Stats(sensorID, cal)
	return &stats, nil
}

// ModuleMetrics returns calibrated statistics for every sensor the module
// watches or calibrates, ordered by sensor ID.
func (c *Controller) ModuleMetrics(ctx context.Context, creds auth.Credentials, moduleID string) ([]automation.SensorStats, error) {
	_, snap, err := c.authorize(ctx, creds, moduleID, auth.OpViewModule)
	if err != nil {
		return nil, err
	}

	ids := sensorsOf(snap)
	stats := make([]automation.SensorStats, 0, len(ids))
	for _, id := range ids {
		stats = append(stats, c.readings.Stats(id, snap.Calibration(id)))
	}
	return stats, nil
}

// SensorMetrics returns calibrated statistics for one sensor.
func (c *Controller) SensorMetrics(ctx context.Context, creds auth.Credentials, moduleID, sensorID string) (*automation.SensorStats, error) {
	_, snap, err := c.authorize(ctx, creds, moduleID, auth.OpViewModule)
	if err != nil {
		return nil, err
	}

	_, reported := c.readings.Latest(sensorID)
	if !reported && !slices.Contains(sensorsOf(snap), sensorID) {
		return nil, module.ErrSensorNotFound
	}
	stats := c.readings.Stats(sensorID, snap.Calibration(sensorID))
	return &stats, nil
}

func sensorsOf(m *module.Module) []string {
	ids := m.SensorIDs()
	for id := range m.Calibrations {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
