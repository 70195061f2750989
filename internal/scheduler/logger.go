package scheduler

import "github.com/wavehub/pincore/internal/automation"

// Logger is the logging interface used by the scheduler.
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

// Metrics receives scheduler counters.
type Metrics interface {
	Transition(moduleID, cause string, output automation.Output)
	StaleEvaluation(moduleID, pinID string)
	StoreFailure(moduleID string)
}

type noopMetrics struct{}

func (noopMetrics) Transition(string, string, automation.Output) {}
func (noopMetrics) StaleEvaluation(string, string)               {}
func (noopMetrics) StoreFailure(string)                          {}
