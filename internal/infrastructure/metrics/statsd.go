package metrics

import (
	"errors"
	"fmt"
	"sync"

	"github.com/DataDog/datadog-go/statsd"

	"github.com/wavehub/pincore/internal/automation"
	"github.com/wavehub/pincore/internal/infrastructure/config"
)

// Metric names, relative to the configured namespace.
const (
	MetricTransition      = "pin.transition"
	MetricStaleEvaluation = "policy.stale_evaluation"
	MetricStoreFailure    = "store.failure"
	MetricOperation       = "controller.operation"
	MetricDenied          = "controller.denied"
	MetricReading         = "telemetry.reading"
)

// ErrDisabled is returned by New when statsd is not enabled.
var ErrDisabled = errors.New("metrics: statsd disabled")

// statter is the part of *statsd.Client the Recorder uses.
type statter interface {
	Incr(name string, tags []string, rate float64) error
	Close() error
}

// Logger is the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder sends counters to statsd. A failed send is logged
// once per metric name and otherwise ignored.
//
// Thread Safety: all methods are safe for concurrent use.
type Recorder struct {
	client statter
	logger Logger

	mu     sync.Mutex
	warned map[string]bool
}

// New creates a Recorder for cfg. It returns ErrDisabled when statsd is
// turned off.
func New(cfg config.StatsdConfig, logger Logger) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	opts := []statsd.Option{statsd.WithNamespace(cfg.Namespace)}
	if len(cfg.Tags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.Tags))
	}
	client, err := statsd.New(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating statsd client for %s: %w", cfg.Address, err)
	}
	return newRecorder(client, logger), nil
}

// Discard returns a Recorder that drops every metric.
func Discard() *Recorder {
	return newRecorder(discard{}, nil)
}

func newRecorder(c statter, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{client: c, logger: logger, warned: make(map[string]bool)}
}

// Close flushes buffered metrics.
func (r *Recorder) Close() error {
	return r.client.Close()
}

// Transition counts an emitted output directive.
func (r *Recorder) Transition(moduleID, cause string, output automation.Output) {
	r.incr(MetricTransition, "module:"+moduleID, "cause:"+cause, "output:"+string(output))
}

// StaleEvaluation counts a threshold policy entering its degraded state.
func (r *Recorder) StaleEvaluation(moduleID, pinID string) {
	r.incr(MetricStaleEvaluation, "module:"+moduleID, "pin:"+pinID)
}

// StoreFailure counts a failed module save.
func (r *Recorder) StoreFailure(moduleID string) {
	r.incr(MetricStoreFailure, "module:"+moduleID)
}

// Operation counts an accepted controller operation.
func (r *Recorder) Operation(op string) {
	r.incr(MetricOperation, "op:"+op)
}

// Denied counts a rejected controller operation.
func (r *Recorder) Denied(op, reason string) {
	r.incr(MetricDenied, "op:"+op, "reason:"+reason)
}

// Reading counts an ingested sensor reading.
func (r *Recorder) Reading(source string, accepted bool) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	r.incr(MetricReading, "source:"+source, "result:"+result)
}

func (r *Recorder) incr(name string, tags ...string) {
	err := r.client.Incr(name, tags, 1)
	if err == nil {
		return
	}
	r.mu.Lock()
	first := !r.warned[name]
	r.warned[name] = true
	r.mu.Unlock()
	if first {
		r.logger.Warn("failed to emit metric", "metric", name, "error", err)
	}
}

type discard struct{}

func (discard) Incr(string, []string, float64) error { return nil }
func (discard) Close() error                         { return nil }
