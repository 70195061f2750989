package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementSensor = "sensor_reading"
	measurementPin    = "pin_output"
)

// WriteSensorReading records a raw sensor value. Writes are batched and
// never block; failures surface through SetOnError.
func (c *Client) WriteSensorReading(sensorID string, value float64, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(sensorPoint(c.site, sensorID, value, at))
}

// WritePinOutput records an output directive as a 0/1 level so it can be
// graphed next to the sensor that drove it.
func (c *Client) WritePinOutput(moduleID, pinID, state, output, cause string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(pinPoint(c.site, moduleID, pinID, state, output, cause, at))
}

func sensorPoint(site, sensorID string, value float64, at time.Time) *write.Point {
	return write.NewPoint(measurementSensor,
		map[string]string{"site": site, "sensor_id": sensorID},
		map[string]any{"value": value},
		at)
}

func pinPoint(site, moduleID, pinID, state, output, cause string, at time.Time) *write.Point {
	level := 0
	if output == "on" {
		level = 1
	}
	return write.NewPoint(measurementPin,
		map[string]string{"site": site, "module_id": moduleID, "pin_id": pinID, "cause": cause},
		map[string]any{"level": level, "state": state},
		at)
}
