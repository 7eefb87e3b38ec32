package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/airsense-core/internal/device"
	"github.com/nerrad567/airsense-core/internal/infrastructure/logging"
	"github.com/nerrad567/airsense-core/internal/infrastructure/metrics"
	"github.com/nerrad567/airsense-core/internal/infrastructure/mqtt"
)

// Drop reasons, used as metric labels.
const (
	dropTopic     = "topic"
	dropPayload   = "payload"
	dropSerial    = "serial"
	dropSensor    = "unknown_sensor"
	dropUnplaced  = "no_room"
	dropParameter = "parameter"
	dropDuplicate = "duplicate"
)

// Payload is the sensor message body.
type Payload struct {
	Value  *float64 `json:"value"`
	SentAt *int64   `json:"sent_at"`
}

// Recorder mirrors readings and fan speeds into the time-series store.
type Recorder interface {
	WriteReading(roomID int64, serial, parameter string, value float64, sentAt time.Time)
	WriteFanSpeed(roomID int64, parameter string, speed int, at time.Time)
}

// Handler processes sensor/{parameter} messages.
type Handler struct {
	newScope ScopeFactory
	recorder Recorder
	timeout  time.Duration
	logger   *logging.Logger
	now      func() time.Time
}

// NewHandler creates a Handler. recorder may be nil; a non-positive timeout
// leaves the dispatcher's context as the only deadline.
func NewHandler(newScope ScopeFactory, recorder Recorder, timeout time.Duration, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		newScope: newScope,
		recorder: recorder,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle processes one message. Malformed or unauthorised readings are
// dropped and return nil; only infrastructure failures return an error.
func (h *Handler) Handle(ctx context.Context, msg mqtt.Message) error {
	parameter, ok := mqtt.ParseSensorTopic(msg.Topic)
	if !ok {
		return h.drop(dropTopic, "topic", msg.Topic)
	}

	var p Payload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return h.drop(dropPayload, "topic", msg.Topic, "error", err)
	}
	if p.Value == nil || math.IsNaN(*p.Value) || math.IsInf(*p.Value, 0) || p.SentAt == nil || *p.SentAt <= 0 {
		return h.drop(dropPayload, "topic", msg.Topic)
	}

	serial, ok := msg.Property(mqtt.PropertySerialNumber)
	if !ok || serial == "" {
		return h.drop(dropSerial, "topic", msg.Topic)
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	scope, err := h.newScope(ctx)
	if err != nil {
		return fmt.Errorf("opening ingest scope: %w", err)
	}
	defer func() {
		if err := scope.Close(); err != nil {
			h.logger.Warn("releasing ingest scope failed", "error", err)
		}
	}()

	return h.process(ctx, scope, serial, parameter, *p.Value, *p.SentAt)
}

func (h *Handler) process(ctx context.Context, scope *Scope, serial, parameter string, value float64, sentAt int64) error {
	sensor, err := scope.Sensors.GetSensorBySerial(ctx, serial)
	if errors.Is(err, device.ErrSensorNotFound) {
		return h.drop(dropSensor, "serial", serial)
	}
	if err != nil {
		return fmt.Errorf("looking up sensor %s: %w", serial, err)
	}
	if sensor.RoomID == nil {
		return h.drop(dropUnplaced, "serial", serial)
	}
	roomID := *sensor.RoomID

	params, err := scope.Sensors.GetSensorParameters(ctx, sensor.ID)
	if err != nil {
		return fmt.Errorf("looking up parameters of sensor %s: %w", serial, err)
	}
	if !params.Has(parameter) {
		return h.drop(dropParameter, "serial", serial, "parameter", parameter)
	}

	added, err := scope.Sensors.AddReading(ctx, device.Reading{
		SensorID:   sensor.ID,
		Parameter:  parameter,
		Value:      value,
		SentAt:     sentAt,
		ReceivedAt: h.now(),
	})
	if errors.Is(err, device.ErrUnknownParameter) {
		return h.drop(dropParameter, "serial", serial, "parameter", parameter)
	}
	if err != nil {
		return fmt.Errorf("storing reading: %w", err)
	}
	if !added {
		return h.drop(dropDuplicate, "serial", serial, "sent_at", sentAt)
	}
	metrics.ReadingsAccepted.Inc()

	if h.recorder != nil {
		h.recorder.WriteReading(roomID, serial, parameter, value, time.Unix(sentAt, 0))
	}

	speed, ok, err := scope.Engine.Evaluate(ctx, roomID, parameter, value)
	if ok && h.recorder != nil {
		h.recorder.WriteFanSpeed(roomID, parameter, speed, h.now())
	}
	if err != nil {
		return fmt.Errorf("evaluating room %d %s: %w", roomID, parameter, err)
	}
	return nil
}

// drop counts and logs a discarded reading. It always returns nil.
func (h *Handler) drop(reason string, args ...any) error {
	metrics.ReadingsDropped.WithLabelValues(reason).Inc()
	h.logger.Debug("sensor reading dropped", append([]any{"reason", reason}, args...)...)
	return nil
}
