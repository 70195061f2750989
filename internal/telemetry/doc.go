// Package telemetry feeds sensor readings into the scheduler.
//
// Readings arrive on MQTT (pincore/telemetry/{sensorId}) and, when
// enabled, from a Kafka topic keyed by sensor ID. Both sources decode the
// same JSON payload:
//
//	{"sensor_id": "soil-1", "value": 31.5, "timestamp": "2026-03-01T06:30:00Z"}
//
// sensor_id may be omitted when the topic or message key carries it.
// timestamp defaults to the time of receipt. Values are raw; calibration
// is per module and applied at evaluation.
package telemetry
