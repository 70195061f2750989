// Package metrics emits service counters to a DogStatsD agent.
//
// A single Recorder satisfies the metric interfaces of the scheduler, the
// controller and the telemetry sources. When statsd is disabled, use
// Discard so call sites never check for nil.
//
// Configuration:
//
//	statsd:
//	  enabled: true
//	  address: "127.0.0.1:8125"
//	  namespace: "pincore."
//	  tags: ["env:prod"]
package metrics
