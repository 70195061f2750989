package automation

import (
	"math"
	"sync"
	"time"
)

// Reading is a single sensor sample.
type Reading struct {
	SensorID  string    `json:"sensor_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// IsStale reports whether the reading is older than bound at now.
// A reading dated after now is never fresh. A zero bound disables the age
// check.
func (r Reading) IsStale(now time.Time, bound time.Duration) bool {
	if r.Timestamp.After(now) {
		return true
	}
	if bound <= 0 {
		return false
	}
	return now.Sub(r.Timestamp) > bound
}

// Calibration converts a raw sensor value: calibrated = raw*Multiplier + Offset.
type Calibration struct {
	Multiplier float64 `json:"multiplier"`
	Offset     float64 `json:"offset"`
}

// IdentityCalibration leaves raw values untouched.
var IdentityCalibration = Calibration{Multiplier: 1}

// Apply returns the calibrated value of raw.
func (c Calibration) Apply(raw float64) float64 {
	return raw*c.Multiplier + c.Offset
}

// Validate rejects non-finite coefficients and a zero multiplier.
func (c Calibration) Validate() error {
	if math.IsNaN(c.Multiplier) || math.IsInf(c.Multiplier, 0) || c.Multiplier == 0 {
		return ErrInvalidCalibration
	}
	if math.IsNaN(c.Offset) || math.IsInf(c.Offset, 0) {
		return ErrInvalidCalibration
	}
	return nil
}

// SensorStats summarises the retained history of one sensor.
type SensorStats struct {
	SensorID string    `json:"sensor_id"`
	Current  *Reading  `json:"current,omitempty"`
	Min      float64   `json:"min"`
	Max      float64   `json:"max"`
	Count    int       `json:"count"`
	History  []Reading `json:"history"`
}

// ReadingCache keeps the latest raw readings per sensor plus a bounded
// history for metrics.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type ReadingCache struct {
	mu      sync.RWMutex
	size    int
	history map[string][]Reading
}

// NewReadingCache creates a cache retaining up to historySize readings per sensor.
func NewReadingCache(historySize int) *ReadingCache {
	if historySize < 1 {
		historySize = 1
	}
	return &ReadingCache{
		size:    historySize,
		history: make(map[string][]Reading),
	}
}

// Record stores r. Readings older than the current latest for the same
// sensor are kept in history but do not replace the latest.
// It reports whether r became the latest reading.
func (c *ReadingCache) Record(r Reading) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.history[r.SensorID]
	latest := len(h) == 0 || !r.Timestamp.Before(h[len(h)-1].Timestamp)

	h = append(h, r)
	if !latest {
		// Keep history ordered by timestamp.
		for i := len(h) - 1; i > 0 && h[i].Timestamp.Before(h[i-1].Timestamp); i-- {
			h[i], h[i-1] = h[i-1], h[i]
		}
	}
	if len(h) > c.size {
		h = append(h[:0:0], h[len(h)-c.size:]...)
	}
	c.history[r.SensorID] = h
	return latest
}

// Latest returns the most recent raw reading for sensorID.
func (c *ReadingCache) Latest(sensorID string) (Reading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := c.history[sensorID]
	if len(h) == 0 {
		return Reading{}, false
	}
	return h[len(h)-1], true
}

// Stats summarises sensorID's history with cal applied to every value.
func (c *ReadingCache) Stats(sensorID string, cal Calibration) SensorStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := c.history[sensorID]
	stats := SensorStats{SensorID: sensorID, Count: len(h), History: make([]Reading, 0, len(h))}
	for i, r := range h {
		r.Value = cal.Apply(r.Value)
		if i == 0 || r.Value < stats.Min {
			stats.Min = r.Value
		}
		if i == 0 || r.Value > stats.Max {
			stats.Max = r.Value
		}
		stats.History = append(stats.History, r)
	}
	if len(h) > 0 {
		current := stats.History[len(stats.History)-1]
		stats.Current = &current
	}
	return stats
}
