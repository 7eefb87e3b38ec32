package ingest

import (
	"context"
	"fmt"

	"github.com/nerrad567/airsense-core/internal/device"
	"github.com/nerrad567/airsense-core/internal/fancurve"
	"github.com/nerrad567/airsense-core/internal/infrastructure/database"
	"github.com/nerrad567/airsense-core/internal/infrastructure/logging"
	"github.com/nerrad567/airsense-core/internal/location"
)

// Sensors is the registry and reading store used during ingestion.
type Sensors interface {
	GetSensorBySerial(ctx context.Context, serial string) (*device.Sensor, error)
	GetSensorParameters(ctx context.Context, sensorID int64) (device.Parameters, error)
	AddReading(ctx context.Context, reading device.Reading) (bool, error)
}

// Evaluator computes and applies a fan speed for a reading.
type Evaluator interface {
	Evaluate(ctx context.Context, roomID int64, parameter string, value float64) (int, bool, error)
}

// Scope is the unit of work for one message.
type Scope struct {
	Sensors Sensors
	Engine  Evaluator
	release func() error
}

// NewScope builds a scope; release may be nil.
func NewScope(sensors Sensors, engine Evaluator, release func() error) *Scope {
	return &Scope{Sensors: sensors, Engine: engine, release: release}
}

// Close releases the scope's resources.
func (s *Scope) Close() error {
	if s.release == nil {
		return nil
	}
	return s.release()
}

// ScopeFactory opens a Scope for one message.
type ScopeFactory func(ctx context.Context) (*Scope, error)

// SQLiteScopes returns a factory that checks out one connection per message
// and binds the device, location and curve repositories to it.
func SQLiteScopes(db *database.DB, publisher fancurve.Publisher, notifier fancurve.Notifier, logger *logging.Logger) ScopeFactory {
	return func(ctx context.Context) (*Scope, error) {
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, fmt.Errorf("checking out connection: %w", err)
		}

		devices := device.NewSQLiteRepository(conn)
		engine := fancurve.NewEngine(
			fancurve.NewSQLiteRepository(conn),
			devices,
			publisher,
			location.NewSQLiteRepository(conn),
			notifier,
			logger,
		)
		return NewScope(devices, engine, conn.Close), nil
	}
}
