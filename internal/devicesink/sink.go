// Package devicesink delivers pin output directives to the hardware and
// to everything that mirrors pin state.
package devicesink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wavehub/pincore/internal/infrastructure/mqtt"
	"github.com/wavehub/pincore/internal/module"
	"github.com/wavehub/pincore/internal/scheduler"
)

// ChannelPinOutput is the live event channel carrying directives.
const ChannelPinOutput = "pin.output"

// Publisher sends MQTT messages. Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Broadcaster pushes live events to clients watching a module.
type Broadcaster interface {
	BroadcastModule(moduleID, channel string, payload any)
}

// TimeSeries records pin outputs for dashboards. Satisfied by *influxdb.Client.
type TimeSeries interface {
	WritePinOutput(moduleID, pinID, state, output, cause string, at time.Time)
}

// Deps holds the sink's outlets. Any of them may be nil.
type Deps struct {
	Publisher  Publisher
	QoS        byte
	History    module.HistoryRepository
	TimeSeries TimeSeries
	Hub        Broadcaster
}

// Sink implements scheduler.Sink.
type Sink struct {
	publisher  Publisher
	qos        byte
	history    module.HistoryRepository
	timeSeries TimeSeries
	hub        Broadcaster
}

// New creates a Sink.
func New(deps Deps) *Sink {
	return &Sink{
		publisher:  deps.Publisher,
		qos:        deps.QoS,
		history:    deps.History,
		timeSeries: deps.TimeSeries,
		hub:        deps.Hub,
	}
}

// CommandMessage is the payload published on the command topic.
type CommandMessage struct {
	ModuleID  string `json:"module_id"`
	PinID     string `json:"pin_id"`
	Output    string `json:"output"`
	State     string `json:"state"`
	Cause     string `json:"cause"`
	Timestamp string `json:"timestamp"`
}

func messageOf(d scheduler.Directive) CommandMessage {
	return CommandMessage{
		ModuleID:  d.ModuleID,
		PinID:     d.PinID,
		Output:    string(d.Output),
		State:     string(d.State),
		Cause:     d.Cause,
		Timestamp: d.At.UTC().Format(time.RFC3339Nano),
	}
}

// Dispatch publishes d retained on the pin's command topic, so hardware
// that reconnects picks up its last output, then records and broadcasts
// it. Every outlet is attempted; the returned error joins the failures of
// the publish and the history write.
func (s *Sink) Dispatch(ctx context.Context, d scheduler.Directive) error {
	msg := messageOf(d)
	var errs []error

	if s.publisher != nil {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encoding directive: %w", err)
		}
		if err := s.publisher.Publish(mqtt.Topics{}.Command(d.ModuleID, d.PinID), payload, s.qos, true); err != nil {
			errs = append(errs, fmt.Errorf("publishing %s/%s: %w", d.ModuleID, d.PinID, err))
		}
	}

	if s.history != nil {
		err := s.history.Record(ctx, module.HistoryEntry{
			ModuleID:  d.ModuleID,
			PinID:     d.PinID,
			State:     d.State,
			Output:    d.Output,
			Cause:     d.Cause,
			CreatedAt: d.At,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("recording history: %w", err))
		}
	}

	if s.timeSeries != nil {
		s.timeSeries.WritePinOutput(d.ModuleID, d.PinID, string(d.State), string(d.Output), d.Cause, d.At)
	}
	if s.hub != nil {
		s.hub.BroadcastModule(d.ModuleID, ChannelPinOutput, msg)
	}

	return errors.Join(errs...)
}
