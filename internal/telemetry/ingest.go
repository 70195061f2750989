package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wavehub/pincore/internal/automation"
)

// ErrInvalidReading is returned for payloads that do not decode to a
// usable reading.
var ErrInvalidReading = errors.New("telemetry: invalid reading")

// ReadingHandler consumes readings. Satisfied by *scheduler.Scheduler.
type ReadingHandler interface {
	HandleReading(r automation.Reading) bool
}

// Recorder archives raw readings. Satisfied by *influxdb.Client.
type Recorder interface {
	WriteSensorReading(sensorID string, value float64, at time.Time)
}

// Metrics counts ingested readings.
type Metrics interface {
	Reading(source string, accepted bool)
}

type noopMetrics struct{}

func (noopMetrics) Reading(string, bool) {}

// Logger is the logging interface used by telemetry sources.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DefaultMaxClockSkew is how far ahead of the local clock a sensor
// timestamp may run before the reading is rejected.
const DefaultMaxClockSkew = 5 * time.Second

// Ingest validates readings and hands them on. Sources share one Ingest.
type Ingest struct {
	handler  ReadingHandler
	recorder Recorder
	metrics  Metrics
	logger   Logger
	maxSkew  time.Duration
	now      func() time.Time
}

// Deps holds the collaborators of an Ingest. Handler is required.
// MaxClockSkew defaults to DefaultMaxClockSkew.
type Deps struct {
	Handler      ReadingHandler
	Recorder     Recorder
	Metrics      Metrics
	Logger       Logger
	MaxClockSkew time.Duration
}

// NewIngest creates an Ingest.
func NewIngest(deps Deps) *Ingest {
	in := &Ingest{
		handler:  deps.Handler,
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		maxSkew:  deps.MaxClockSkew,
		now:      time.Now,
	}
	if in.maxSkew <= 0 {
		in.maxSkew = DefaultMaxClockSkew
	}
	if in.metrics == nil {
		in.metrics = noopMetrics{}
	}
	if in.logger == nil {
		in.logger = noopLogger{}
	}
	return in
}

type payload struct {
	SensorID  string     `json:"sensor_id"`
	Value     *float64   `json:"value"`
	Timestamp *time.Time `json:"timestamp"`
}

// decode parses a reading. sensorID, when non-empty, comes from the
// transport and wins over the payload. Timestamps ahead of the local
// clock by at most maxSkew are clamped to now; further ahead is invalid.
func (in *Ingest) decode(sensorID string, data []byte) (automation.Reading, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return automation.Reading{}, fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}
	if sensorID == "" {
		sensorID = strings.TrimSpace(p.SensorID)
	}
	if sensorID == "" {
		return automation.Reading{}, fmt.Errorf("%w: missing sensor id", ErrInvalidReading)
	}
	if p.Value == nil || math.IsNaN(*p.Value) || math.IsInf(*p.Value, 0) {
		return automation.Reading{}, fmt.Errorf("%w: sensor %s: missing or non-finite value", ErrInvalidReading, sensorID)
	}

	now := in.now()
	r := automation.Reading{SensorID: sensorID, Value: *p.Value, Timestamp: now}
	if p.Timestamp != nil && !p.Timestamp.IsZero() {
		ahead := p.Timestamp.Sub(now)
		if ahead > in.maxSkew {
			return automation.Reading{}, fmt.Errorf("%w: sensor %s: timestamp %s is %v in the future",
				ErrInvalidReading, sensorID, p.Timestamp.Format(time.RFC3339), ahead)
		}
		if ahead <= 0 {
			r.Timestamp = *p.Timestamp
		}
	}
	return r, nil
}

// Accept decodes and delivers one message from source. Invalid payloads
// are counted and returned.
func (in *Ingest) Accept(source, sensorID string, data []byte) error {
	r, err := in.decode(sensorID, data)
	if err != nil {
		in.metrics.Reading(source, false)
		return err
	}

	if in.recorder != nil {
		in.recorder.WriteSensorReading(r.SensorID, r.Value, r.Timestamp)
	}
	latest := in.handler.HandleReading(r)
	in.metrics.Reading(source, true)
	if !latest {
		in.logger.Debug("out-of-order reading kept for history only",
			"sensor_id", r.SensorID, "timestamp", r.Timestamp, "source", source)
	}
	return nil
}
