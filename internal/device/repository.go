package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/airsense-core/internal/infrastructure/database"
)

// Repository defines the registry queries used by the bus auth bridge,
// sensor ingestion and the actuation engine.
type Repository interface {
	// GetSensorBySerial returns ErrSensorNotFound for unknown serials.
	GetSensorBySerial(ctx context.Context, serial string) (*Sensor, error)

	// GetSensorParameters lists the parameters the sensor's type measures.
	GetSensorParameters(ctx context.Context, sensorID int64) (Parameters, error)

	// GetDeviceBySerial returns ErrDeviceNotFound for unknown serials.
	GetDeviceBySerial(ctx context.Context, serial string) (*Device, error)

	// AddReading records a reading unless one with the same sensor and
	// SentAt exists. It reports whether the reading was new.
	AddReading(ctx context.Context, reading Reading) (bool, error)

	// AppendFanSpeed appends one pending command for every device in the room
	// and returns how many were written.
	AppendFanSpeed(ctx context.Context, roomID int64, speed int) (int64, error)

	// ClaimFanSpeed marks the device's pending commands applied and returns the
	// highest of them, or nil when none were pending.
	ClaimFanSpeed(ctx context.Context, deviceID int64) (*int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  database.Querier
	now func() time.Time
}

// NewSQLiteRepository creates a repository bound to db, which may be the pool,
// a checked-out connection or a transaction.
func NewSQLiteRepository(db database.Querier) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// GetSensorBySerial retrieves a sensor by serial number.
func (r *SQLiteRepository) GetSensorBySerial(ctx context.Context, serial string) (*Sensor, error) {
	const query = `
		SELECT id, serial_number, secret, room_id, type_id
		FROM sensors
		WHERE serial_number = ?`

	var s Sensor
	var roomID sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, serial).Scan(&s.ID, &s.SerialNumber, &s.Secret, &roomID, &s.TypeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSensorNotFound
		}
		return nil, fmt.Errorf("querying sensor by serial: %w", err)
	}
	if roomID.Valid {
		s.RoomID = &roomID.Int64
	}
	return &s, nil
}

// GetSensorParameters lists parameter names for the sensor's type.
func (r *SQLiteRepository) GetSensorParameters(ctx context.Context, sensorID int64) (Parameters, error) {
	const query = `
		SELECT p.name
		FROM sensors s
		JOIN sensor_type_parameters stp ON stp.type_id = s.type_id
		JOIN parameters p ON p.id = stp.parameter_id
		WHERE s.id = ?
		ORDER BY p.name`

	rows, err := r.db.QueryContext(ctx, query, sensorID)
	if err != nil {
		return nil, fmt.Errorf("querying sensor parameters: %w", err)
	}
	defer rows.Close()

	var params Parameters
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning sensor parameter: %w", err)
		}
		params = append(params, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensor parameters: %w", err)
	}
	return params, nil
}

// GetDeviceBySerial retrieves a device by serial number.
func (r *SQLiteRepository) GetDeviceBySerial(ctx context.Context, serial string) (*Device, error) {
	const query = `
		SELECT id, serial_number, secret, room_id
		FROM devices
		WHERE serial_number = ?`

	var d Device
	var roomID sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, serial).Scan(&d.ID, &d.SerialNumber, &d.Secret, &roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by serial: %w", err)
	}
	if roomID.Valid {
		d.RoomID = &roomID.Int64
	}
	return &d, nil
}

// AddReading inserts the reading. The unique (sensor_id, sent_at) index makes
// the duplicate check and the insert a single atomic statement.
func (r *SQLiteRepository) AddReading(ctx context.Context, reading Reading) (bool, error) {
	const lookup = `SELECT id FROM parameters WHERE name = ?`

	var parameterID int64
	if err := r.db.QueryRowContext(ctx, lookup, reading.Parameter).Scan(&parameterID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: %s", ErrUnknownParameter, reading.Parameter)
		}
		return false, fmt.Errorf("querying parameter id: %w", err)
	}

	receivedAt := reading.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = r.now()
	}

	const insert = `
		INSERT INTO sensor_data (sensor_id, parameter_id, value, sent_at, timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (sensor_id, sent_at) DO NOTHING`

	res, err := r.db.ExecContext(ctx, insert,
		reading.SensorID, parameterID, reading.Value, reading.SentAt, receivedAt.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("inserting sensor reading: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n == 1, nil
}

// AppendFanSpeed writes one device_data row per device in the room.
func (r *SQLiteRepository) AppendFanSpeed(ctx context.Context, roomID int64, speed int) (int64, error) {
	const query = `
		INSERT INTO device_data (device_id, value, timestamp)
		SELECT id, ?, ? FROM devices WHERE room_id = ?`

	res, err := r.db.ExecContext(ctx, query, speed, r.now().UnixMilli(), roomID)
	if err != nil {
		return 0, fmt.Errorf("appending fan speed for room %d: %w", roomID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return n, nil
}

// ClaimFanSpeed applies all pending commands in one UPDATE ... RETURNING so two
// concurrent claims never return the same row.
func (r *SQLiteRepository) ClaimFanSpeed(ctx context.Context, deviceID int64) (*int, error) {
	const query = `
		UPDATE device_data
		SET applied = 1, applied_at = ?
		WHERE device_id = ? AND applied = 0
		RETURNING value`

	rows, err := r.db.QueryContext(ctx, query, r.now().UnixMilli(), deviceID)
	if err != nil {
		return nil, fmt.Errorf("claiming fan speed for device %d: %w", deviceID, err)
	}
	defer rows.Close()

	var highest *int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning fan speed: %w", err)
		}
		if highest == nil || v > *highest {
			highest = &v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fan speeds: %w", err)
	}
	return highest, nil
}
