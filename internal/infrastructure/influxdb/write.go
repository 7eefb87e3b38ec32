package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementReading  = "sensor_reading"
	MeasurementFanSpeed = "fan_speed"
)

// WriteReading records one accepted sensor reading at the sensor's own sent_at.
func (c *Client) WriteReading(roomID int64, serial, parameter string, value float64, sentAt time.Time) {
	c.write(MeasurementReading, roomID, parameter, map[string]string{"sensor": serial}, "value", value, sentAt)
}

// WriteFanSpeed records the speed computed for a room from a parameter's curve.
func (c *Client) WriteFanSpeed(roomID int64, parameter string, speed int, at time.Time) {
	c.write(MeasurementFanSpeed, roomID, parameter, nil, "speed", speed, at)
}

// write queues a single-field point tagged with room_id and parameter.
// Points written after Close are dropped.
func (c *Client) write(measurement string, roomID int64, parameter string, extra map[string]string, field string, value any, at time.Time) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"room_id":   strconv.FormatInt(roomID, 10),
		"parameter": parameter,
	}
	for k, v := range extra {
		tags[k] = v
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, map[string]any{field: value}, at))
}
