// Package mqtt connects pincore to the MQTT broker that links it to the
// module hardware.
//
// Output directives go out on pincore/command/{moduleId}/{pinId}; sensor
// readings arrive on pincore/telemetry/{sensorId}. A retained status
// message on pincore/system/status doubles as the Last Will, so hardware
// can tell a crash from a clean shutdown.
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllTelemetry(), 1, handleReading)
//
// Subscriptions are replayed after every reconnect because sessions are
// clean.
package mqtt
