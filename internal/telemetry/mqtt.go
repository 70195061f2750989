package telemetry

import (
	"fmt"

	"github.com/wavehub/pincore/internal/infrastructure/mqtt"
)

// SourceMQTT labels readings received over MQTT.
const SourceMQTT = "mqtt"

// Subscriber is the subscription half of *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// MQTTSource subscribes to every sensor's telemetry topic.
type MQTTSource struct {
	sub    Subscriber
	qos    byte
	ingest *Ingest
}

// NewMQTTSource creates a source feeding ingest.
func NewMQTTSource(sub Subscriber, qos byte, ingest *Ingest) *MQTTSource {
	return &MQTTSource{sub: sub, qos: qos, ingest: ingest}
}

// Start subscribes. Readings flow until Stop.
func (s *MQTTSource) Start() error {
	if err := s.sub.Subscribe(mqtt.Topics{}.AllTelemetry(), s.qos, s.handle); err != nil {
		return fmt.Errorf("subscribing to telemetry: %w", err)
	}
	return nil
}

// Stop unsubscribes.
func (s *MQTTSource) Stop() error {
	return s.sub.Unsubscribe(mqtt.Topics{}.AllTelemetry())
}

func (s *MQTTSource) handle(topic string, payload []byte) error {
	sensorID, err := mqtt.Topics{}.ParseTelemetry(topic)
	if err != nil {
		return err
	}
	return s.ingest.Accept(SourceMQTT, sensorID, payload)
}
