// Package ingest handles sensor readings arriving on sensor/{parameter}.
//
// For every message the Handler decodes {value, sent_at}, identifies the
// sensor from the serial-number user property, checks that the sensor is in
// a room and measures the parameter, stores the reading (dropping duplicates
// of the same sensor and sent_at), mirrors it to the time-series store and
// asks the fan-curve engine for a new fan speed.
//
// Each message gets its own Scope: one checked-out database connection that
// every repository used while handling the message is bound to, released
// when handling ends.
package ingest
