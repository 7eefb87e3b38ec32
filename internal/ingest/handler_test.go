package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/airsense-core/internal/fancurve"
	"github.com/nerrad567/airsense-core/internal/infrastructure/database"
	"github.com/nerrad567/airsense-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/airsense-core/internal/testutil"
)

type busRecorder struct {
	mu       sync.Mutex
	topics   []string
	commands []fancurve.Command
	notified int
	readings []string
	sentAts  []time.Time
	speeds   []int
}

func (b *busRecorder) Publish(_ context.Context, topic string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.commands = append(b.commands, payload.(fancurve.Command))
	return nil
}

func (b *busRecorder) Notify(context.Context, []string, string, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notified++
	return nil
}

func (b *busRecorder) WriteReading(roomID int64, serial, parameter string, value float64, sentAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readings = append(b.readings, fmt.Sprintf("%d/%s/%s=%g@%d", roomID, serial, parameter, value, sentAt.Unix()))
	b.sentAts = append(b.sentAts, sentAt)
}

func (b *busRecorder) WriteFanSpeed(_ int64, _ string, speed int, _ time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.speeds = append(b.speeds, speed)
}

type ingestFixture struct {
	handler *Handler
	bus     *busRecorder
	db      *database.DB
	seed    testutil.Fixture
	closed  *atomic.Int32
}

func newIngestFixture(t *testing.T) ingestFixture {
	t.Helper()

	db := testutil.OpenDB(t)
	seed := testutil.Seed(t, db)
	require.NoError(t, fancurve.NewSQLiteRepository(db).UpsertCurve(context.Background(), seed.RoomID, "temperature",
		fancurve.Curve{CriticalValue: ptr(25), Points: fancurve.DefaultCurve().Points}))

	bus := &busRecorder{}
	scopes := SQLiteScopes(db, bus, bus, nil)

	var closed atomic.Int32
	counting := func(ctx context.Context) (*Scope, error) {
		s, err := scopes(ctx)
		if err != nil {
			return nil, err
		}
		release := s.release
		s.release = func() error {
			closed.Add(1)
			return release()
		}
		return s, nil
	}

	return ingestFixture{
		handler: NewHandler(counting, bus, time.Second, nil),
		bus:     bus,
		db:      db,
		seed:    seed,
		closed:  &closed,
	}
}

func ptr(f float64) *float64 { return &f }

func sensorMessage(parameter, payload, serial string) mqtt.Message {
	msg := mqtt.Message{Topic: "sensor/" + parameter, Payload: []byte(payload)}
	if serial != "" {
		msg.Properties = map[string]string{mqtt.PropertySerialNumber: serial}
	}
	return msg
}

func countReadings(t *testing.T, db *database.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM sensor_data`).Scan(&n))
	return n
}

func TestHandle_AcceptedReadingActuates(t *testing.T) {
	f := newIngestFixture(t)

	err := f.handler.Handle(context.Background(), sensorMessage("temperature", `{"value":15,"sent_at":1700000000}`, "SN001"))
	require.NoError(t, err)

	assert.Equal(t, []string{fmt.Sprintf("room/%d", f.seed.RoomID)}, f.bus.topics)
	require.Len(t, f.bus.commands, 1)
	assert.Equal(t, 50, f.bus.commands[0].FanSpeed)
	assert.Zero(t, f.bus.notified)
	assert.Equal(t, []string{fmt.Sprintf("%d/SN001/temperature=15@1700000000", f.seed.RoomID)}, f.bus.readings)
	require.Len(t, f.bus.sentAts, 1)
	assert.True(t, f.bus.sentAts[0].Equal(time.Date(2023, time.November, 14, 22, 13, 20, 0, time.UTC)),
		"sent_at is epoch seconds, got %v", f.bus.sentAts[0])
	assert.Equal(t, []int{50}, f.bus.speeds)
	assert.Equal(t, 1, countReadings(t, f.db))
	assert.EqualValues(t, 1, f.closed.Load(), "scope released")
}

func TestHandle_CriticalReadingNotifies(t *testing.T) {
	f := newIngestFixture(t)

	require.NoError(t, f.handler.Handle(context.Background(), sensorMessage("temperature", `{"value":30,"sent_at":1}`, "SN001")))
	assert.Equal(t, 1, f.bus.notified)
}

func TestHandle_DuplicateSentAtEvaluatesOnce(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	require.NoError(t, f.handler.Handle(ctx, sensorMessage("temperature", `{"value":15,"sent_at":42}`, "SN001")))
	require.NoError(t, f.handler.Handle(ctx, sensorMessage("temperature", `{"value":27,"sent_at":42}`, "SN001")))

	assert.Len(t, f.bus.commands, 1)
	assert.Equal(t, 1, countReadings(t, f.db))

	require.NoError(t, f.handler.Handle(ctx, sensorMessage("temperature", `{"value":27,"sent_at":43}`, "SN001")))
	assert.Len(t, f.bus.commands, 2)
}

func TestHandle_ConcurrentDuplicatesEvaluateOnce(t *testing.T) {
	f := newIngestFixture(t)

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.handler.Handle(context.Background(),
				sensorMessage("temperature", `{"value":15,"sent_at":99}`, "SN001")))
		}()
	}
	wg.Wait()

	assert.Len(t, f.bus.commands, 1)
	assert.EqualValues(t, 6, f.closed.Load())
}

func TestHandle_Drops(t *testing.T) {
	tests := []struct {
		name string
		msg  mqtt.Message
	}{
		{"nested topic", mqtt.Message{Topic: "sensor/temperature/x", Payload: []byte(`{"value":1,"sent_at":1}`),
			Properties: map[string]string{mqtt.PropertySerialNumber: "SN001"}}},
		{"not json", sensorMessage("temperature", `hello`, "SN001")},
		{"string value", sensorMessage("temperature", `{"value":"15","sent_at":1}`, "SN001")},
		{"missing value", sensorMessage("temperature", `{"sent_at":1}`, "SN001")},
		{"missing sent_at", sensorMessage("temperature", `{"value":15}`, "SN001")},
		{"zero sent_at", sensorMessage("temperature", `{"value":15,"sent_at":0}`, "SN001")},
		{"fractional sent_at", sensorMessage("temperature", `{"value":15,"sent_at":1.5}`, "SN001")},
		{"missing serial", sensorMessage("temperature", `{"value":15,"sent_at":1}`, "")},
		{"unknown serial", sensorMessage("temperature", `{"value":15,"sent_at":1}`, "SN404")},
		{"parameter outside sensor type", sensorMessage("co2", `{"value":900,"sent_at":1}`, "SN001")},
		{"parameter unknown", sensorMessage("pressure", `{"value":1013,"sent_at":1}`, "SN001")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIngestFixture(t)

			require.NoError(t, f.handler.Handle(context.Background(), tt.msg))
			assert.Empty(t, f.bus.commands)
			assert.Empty(t, f.bus.readings)
			assert.Zero(t, countReadings(t, f.db))
		})
	}
}

func TestHandle_SensorWithoutRoom(t *testing.T) {
	f := newIngestFixture(t)
	testutil.Exec(t, f.db, `UPDATE sensors SET room_id = NULL WHERE id = ?`, f.seed.SensorID)

	require.NoError(t, f.handler.Handle(context.Background(), sensorMessage("temperature", `{"value":15,"sent_at":1}`, "SN001")))
	assert.Empty(t, f.bus.commands)
	assert.Zero(t, countReadings(t, f.db))
}

func TestHandle_NoCurveStoresReadingOnly(t *testing.T) {
	f := newIngestFixture(t)

	require.NoError(t, f.handler.Handle(context.Background(), sensorMessage("humidity", `{"value":55,"sent_at":1}`, "SN001")))
	assert.Empty(t, f.bus.commands)
	assert.Empty(t, f.bus.speeds)
	assert.Len(t, f.bus.readings, 1)
	assert.Equal(t, 1, countReadings(t, f.db))
}

func TestHandle_ScopeFailure(t *testing.T) {
	boom := errors.New("pool exhausted")
	h := NewHandler(func(context.Context) (*Scope, error) { return nil, boom }, nil, time.Second, nil)

	err := h.Handle(context.Background(), sensorMessage("temperature", `{"value":15,"sent_at":1}`, "SN001"))
	assert.ErrorIs(t, err, boom)
}
