package device

import (
	"slices"
	"time"
)

// Sensor is a reading source registered to at most one room.
type Sensor struct {
	ID           int64
	SerialNumber string
	// Secret is the stored credential digest. Empty means no bus access.
	Secret string
	RoomID *int64
	TypeID int64
}

// Device is a fan actuator registered to at most one room.
type Device struct {
	ID           int64
	SerialNumber string
	Secret       string
	RoomID       *int64
}

// Reading is one accepted sensor measurement.
type Reading struct {
	SensorID  int64
	Parameter string
	Value     float64
	// SentAt is the client supplied Unix time in seconds and the deduplication key.
	SentAt     int64
	ReceivedAt time.Time
}

// Parameters is the set of parameter names a sensor type measures.
type Parameters []string

// Has reports whether name is one of the parameters.
func (p Parameters) Has(name string) bool {
	return slices.Contains(p, name)
}
