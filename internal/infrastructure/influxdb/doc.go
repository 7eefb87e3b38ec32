// Package influxdb keeps the time series of sensor readings and computed fan
// speeds in InfluxDB v2.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influxdb write failed", "error", err) })
//	client.WriteReading(roomID, "SN001", "temperature", 22.5, time.Unix(sentAt, 0))
//	client.WriteFanSpeed(roomID, "temperature", 75, time.Now())
//
// Points are tagged with room_id and parameter (and sensor serial for
// readings). Writes are batched per config (batch_size, flush_interval) and
// never block; a disconnected client drops them.
package influxdb
