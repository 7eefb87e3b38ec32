package fancurve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/airsense-core/internal/infrastructure/logging"
	"github.com/nerrad567/airsense-core/internal/infrastructure/metrics"
	"github.com/nerrad567/airsense-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/airsense-core/internal/location"
)

// Notification text for critical readings.
const (
	CriticalTitle    = "Critical value exceeded"
	criticalBodyTmpl = "Critical value exceeded for %s in %s"
)

// CurveReader reads stored curves without provisioning defaults.
type CurveReader interface {
	GetCurve(ctx context.Context, roomID int64, parameter string) (*Curve, error)
}

// ActuationLog records computed fan speeds for the devices of a room.
type ActuationLog interface {
	AppendFanSpeed(ctx context.Context, roomID int64, speed int) (int64, error)
}

// Publisher sends a payload on the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Directory resolves who to notify about a room.
type Directory interface {
	GetEnvironmentForRoom(ctx context.Context, roomID int64) (*location.Environment, error)
	GetMemberPushTokens(ctx context.Context, environmentID int64) ([]string, error)
}

// Notifier delivers a push notification to device tokens.
type Notifier interface {
	Notify(ctx context.Context, tokens []string, title, body string) error
}

// Engine evaluates curves and performs the actuation side effects.
// It holds no mutable state; one Engine may serve concurrent evaluations,
// but the collaborators it is built from decide which connection they use.
type Engine struct {
	curves    CurveReader
	log       ActuationLog
	publisher Publisher
	directory Directory
	notifier  Notifier
	logger    *logging.Logger
	now       func() time.Time
}

// NewEngine creates an Engine. A nil logger discards output.
func NewEngine(curves CurveReader, log ActuationLog, publisher Publisher, directory Directory, notifier Notifier, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{
		curves:    curves,
		log:       log,
		publisher: publisher,
		directory: directory,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Evaluate computes the fan speed for a new reading and, when there is one,
// logs it, publishes it and raises a critical notification if due.
//
// ok is false when the room has no curve for the parameter or the curve is
// incomplete; nothing else happens then. When ok is true, err joins any side
// effect failures; the speed is still valid.
func (e *Engine) Evaluate(ctx context.Context, roomID int64, parameter string, value float64) (speed int, ok bool, err error) {
	curve, err := e.curves.GetCurve(ctx, roomID, parameter)
	if errors.Is(err, ErrCurveNotFound) {
		metrics.Evaluations.WithLabelValues("no_curve").Inc()
		return 0, false, nil
	}
	if err != nil {
		metrics.Evaluations.WithLabelValues("error").Inc()
		return 0, false, fmt.Errorf("reading curve: %w", err)
	}

	speed, ok = curve.FanSpeed(value)
	if !ok {
		metrics.Evaluations.WithLabelValues("incomplete").Inc()
		return 0, false, nil
	}
	metrics.Evaluations.WithLabelValues("actuated").Inc()

	var errs []error
	if _, err := e.log.AppendFanSpeed(ctx, roomID, speed); err != nil {
		errs = append(errs, fmt.Errorf("logging fan speed: %w", err))
	}

	cmd := Command{FanSpeed: speed, Timestamp: e.now().UnixMilli()}
	if err := e.publisher.Publish(ctx, mqtt.Topics{}.Room(roomID), cmd); err != nil {
		errs = append(errs, fmt.Errorf("publishing fan speed: %w", err))
	}

	if curve.IsCritical(value) {
		if err := e.notifyCritical(ctx, roomID, parameter); err != nil {
			errs = append(errs, err)
		}
	}

	e.logger.Debug("fan speed evaluated",
		"room_id", roomID,
		"parameter", parameter,
		"value", value,
		"fan_speed", speed,
	)
	return speed, true, errors.Join(errs...)
}

// notifyCritical tells the members of the room's environment. Rooms without
// an environment and environments without tokens are skipped silently.
func (e *Engine) notifyCritical(ctx context.Context, roomID int64, parameter string) error {
	env, err := e.directory.GetEnvironmentForRoom(ctx, roomID)
	if errors.Is(err, location.ErrEnvironmentNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving environment: %w", err)
	}

	tokens, err := e.directory.GetMemberPushTokens(ctx, env.ID)
	if err != nil {
		return fmt.Errorf("listing push tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	body := fmt.Sprintf(criticalBodyTmpl, parameter, env.Name)
	if err := e.notifier.Notify(ctx, tokens, CriticalTitle, body); err != nil {
		return fmt.Errorf("sending critical notification: %w", err)
	}
	e.logger.Info("critical value notification sent",
		"room_id", roomID,
		"parameter", parameter,
		"environment_id", env.ID,
		"recipients", len(tokens),
	)
	return nil
}
