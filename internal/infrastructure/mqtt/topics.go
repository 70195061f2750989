package mqtt

import (
	"fmt"
	"strings"
)

// TopicRoot is the first level of every pincore topic.
const TopicRoot = "pincore"

// Topics builds and parses pincore topic names.
//
//	pincore/command/{moduleId}/{pinId}   output directives to hardware
//	pincore/telemetry/{sensorId}         sensor readings from hardware
//	pincore/system/status                retained online/offline status
type Topics struct{}

// Command returns the topic a pin's output directive is published on.
func (Topics) Command(moduleID, pinID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicRoot, moduleID, pinID)
}

// Telemetry returns the topic a sensor publishes its readings on.
func (Topics) Telemetry(sensorID string) string {
	return fmt.Sprintf("%s/telemetry/%s", TopicRoot, sensorID)
}

// Status returns the retained status topic, also used for the LWT.
func (Topics) Status() string {
	return TopicRoot + "/system/status"
}

// AllTelemetry matches the readings of every sensor.
func (Topics) AllTelemetry() string {
	return TopicRoot + "/telemetry/+"
}

// AllCommands matches the directives of every pin of every module.
func (Topics) AllCommands() string {
	return TopicRoot + "/command/+/+"
}

// ParseTelemetry extracts the sensor ID from a telemetry topic.
func (Topics) ParseTelemetry(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicRoot || parts[1] != "telemetry" || parts[2] == "" {
		return "", fmt.Errorf("%w: %q is not a telemetry topic", ErrInvalidTopic, topic)
	}
	return parts[2], nil
}

// ParseCommand extracts the module and pin IDs from a command topic.
func (Topics) ParseCommand(topic string) (moduleID, pinID string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicRoot || parts[1] != "command" || parts[2] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("%w: %q is not a command topic", ErrInvalidTopic, topic)
	}
	return parts[2], parts[3], nil
}
