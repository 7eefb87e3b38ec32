// Package device is the registry of bus-connected hardware: sensors that
// publish readings and fan devices that receive speed commands.
//
// It owns four tables:
//
//	sensors      serial number, shared secret, room, sensor type
//	sensor_data  accepted readings, unique on (sensor_id, sent_at)
//	devices      serial number, shared secret, room
//	device_data  append-only fan speed log, one row per device per command
//
// Repositories are bound to a database.Querier so a message handler can run
// every query for one message on a single checked-out connection.
package device
