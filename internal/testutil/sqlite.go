// Package testutil holds fixtures shared by repository tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/airsense-core/internal/infrastructure/database"
	"github.com/nerrad567/airsense-core/migrations"
)

// OpenDB opens a migrated SQLite database in a temp directory.
// It is closed automatically when the test ends.
func OpenDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "airsense-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

// Exec runs a fixture statement and fails the test on error.
func Exec(t *testing.T, db database.Querier, query string, args ...any) int64 {
	t.Helper()

	res, err := db.ExecContext(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("fixture %q: %v", query, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("fixture %q: last insert id: %v", query, err)
	}
	return id
}

// Stored secrets for the seeded sensor and device: hex(md5("secret" + serial)).
const (
	SeedPassword = "secret"
	SensorSecret = "109943ce5d62ca676d95168d98585928"
	DeviceSecret = "19b14da47775ca6581d18fd8551c5d24"
)

// Fixture identifiers created by Seed.
type Fixture struct {
	EnvironmentID int64
	RoomID        int64
	EmptyRoomID   int64
	SensorID      int64
	SensorSerial  string
	DeviceID      int64
	DeviceSerial  string
	UserID        int64
}

// Seed inserts one environment with a member holding a push token, a room with
// a temperature/humidity sensor and one device, plus a second room with no
// environment.
func Seed(t *testing.T, db database.Querier) Fixture {
	t.Helper()

	var f Fixture
	f.EnvironmentID = Exec(t, db, `INSERT INTO environments (name) VALUES ('Office')`)
	f.UserID = Exec(t, db, `INSERT INTO users (uid, name, notification_token) VALUES ('u-1', 'Ada', 'token-1')`)
	Exec(t, db, `INSERT INTO environment_members (environment_id, member_id, role) VALUES (?, ?, 'owner')`,
		f.EnvironmentID, f.UserID)
	f.RoomID = Exec(t, db, `INSERT INTO rooms (environment_id, name) VALUES (?, 'Lab')`, f.EnvironmentID)
	f.EmptyRoomID = Exec(t, db, `INSERT INTO rooms (environment_id, name) VALUES (NULL, 'Storage')`)

	temp := Exec(t, db, `INSERT INTO parameters (name, unit) VALUES ('temperature', 'C')`)
	hum := Exec(t, db, `INSERT INTO parameters (name, unit) VALUES ('humidity', '%')`)
	Exec(t, db, `INSERT INTO parameters (name, unit) VALUES ('co2', 'ppm')`)
	typeID := Exec(t, db, `INSERT INTO sensor_types (name) VALUES ('climate')`)
	Exec(t, db, `INSERT INTO sensor_type_parameters (type_id, parameter_id) VALUES (?, ?), (?, ?)`,
		typeID, temp, typeID, hum)

	f.SensorSerial = "SN001"
	f.SensorID = Exec(t, db, `INSERT INTO sensors (serial_number, secret, room_id, type_id) VALUES (?, ?, ?, ?)`,
		f.SensorSerial, SensorSecret, f.RoomID, typeID)

	f.DeviceSerial = "DV001"
	f.DeviceID = Exec(t, db, `INSERT INTO devices (serial_number, secret, room_id) VALUES (?, ?, ?)`,
		f.DeviceSerial, DeviceSecret, f.RoomID)
	return f
}
