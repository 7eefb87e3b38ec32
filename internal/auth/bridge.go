package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/airsense-core/internal/device"
	"github.com/nerrad567/airsense-core/internal/infrastructure/metrics"
)

// SensorLookup is the sensor registry as seen by the Bridge.
type SensorLookup interface {
	GetSensorBySerial(ctx context.Context, serial string) (*device.Sensor, error)
	GetSensorParameters(ctx context.Context, sensorID int64) (device.Parameters, error)
}

// DeviceLookup is the device registry as seen by the Bridge.
type DeviceLookup interface {
	GetDeviceBySerial(ctx context.Context, serial string) (*device.Device, error)
}

// Invalidator is implemented by lookups that cache identities, such as
// device.Registry.
type Invalidator interface {
	Invalidate(serial string)
}

// Bridge answers the broker's authentication and authorization hooks.
//
// A non-nil error always comes with DecisionIgnore: the lookup failed and the
// caller should log it and let the broker fall back to its own defaults.
type Bridge struct {
	sensors SensorLookup
	devices DeviceLookup
	api     APICredential
}

// NewBridge creates a Bridge over the registries and this process's API credential.
func NewBridge(sensors SensorLookup, devices DeviceLookup, api APICredential) *Bridge {
	return &Bridge{sensors: sensors, devices: devices, api: api}
}

// Authenticate decides whether a client may connect.
func (b *Bridge) Authenticate(ctx context.Context, req AuthRequest) (Decision, error) {
	class := ClassOf(req.ClientID)
	decision, err := b.authenticate(ctx, class, req)
	metrics.AuthDecisions.WithLabelValues("authenticate", class.String(), string(decision)).Inc()
	return decision, err
}

// authenticate denies only after checking the store itself: a cached secret
// may predate a re-key, so a denial from a caching lookup is retried once.
func (b *Bridge) authenticate(ctx context.Context, class Class, req AuthRequest) (Decision, error) {
	decision, err := b.checkSecret(ctx, class, req)
	if decision == DecisionDeny && b.invalidate(class, req.Username) {
		return b.checkSecret(ctx, class, req)
	}
	return decision, err
}

// invalidate drops the cached identity behind serial. It reports whether the
// lookup for class caches at all.
func (b *Bridge) invalidate(class Class, serial string) bool {
	var lookup any
	switch class {
	case ClassSensor:
		lookup = b.sensors
	case ClassDevice:
		lookup = b.devices
	default:
		return false
	}
	cache, ok := lookup.(Invalidator)
	if !ok {
		return false
	}
	cache.Invalidate(serial)
	return true
}

func (b *Bridge) checkSecret(ctx context.Context, class Class, req AuthRequest) (Decision, error) {
	var stored string
	switch class {
	case ClassSensor:
		sensor, err := b.sensors.GetSensorBySerial(ctx, req.Username)
		if errors.Is(err, device.ErrSensorNotFound) {
			return DecisionIgnore, nil
		}
		if err != nil {
			return DecisionIgnore, fmt.Errorf("looking up sensor secret: %w", err)
		}
		stored = sensor.Secret
	case ClassDevice:
		dev, err := b.devices.GetDeviceBySerial(ctx, req.Username)
		if errors.Is(err, device.ErrDeviceNotFound) {
			return DecisionIgnore, nil
		}
		if err != nil {
			return DecisionIgnore, fmt.Errorf("looking up device secret: %w", err)
		}
		stored = dev.Secret
	case ClassAPI:
		stored = b.api.Secret()
	default:
		return DecisionIgnore, nil
	}

	if stored == "" {
		return DecisionIgnore, nil
	}

	ok, err := VerifySecret(stored, req.Password, req.Username)
	if err != nil {
		return DecisionIgnore, err
	}
	if ok {
		return DecisionAllow, nil
	}
	return DecisionDeny, nil
}

// Authorize decides whether a connected client may publish or subscribe to a topic.
func (b *Bridge) Authorize(ctx context.Context, req ACLRequest) (Decision, error) {
	class := ClassOf(req.ClientID)

	var (
		decision Decision
		err      error
	)
	switch class {
	case ClassSensor:
		decision, err = b.authorizeSensor(ctx, req)
	case ClassDevice:
		decision, err = b.authorizeDevice(ctx, req)
	case ClassAPI:
		decision = DecisionAllow
	default:
		decision = DecisionIgnore
	}

	metrics.AuthDecisions.WithLabelValues("authorize", class.String(), string(decision)).Inc()
	return decision, err
}

// authorizeSensor lets a sensor publish to sensor/{parameter} for its own parameters.
func (b *Bridge) authorizeSensor(ctx context.Context, req ACLRequest) (Decision, error) {
	sensor, err := b.sensors.GetSensorBySerial(ctx, req.Username)
	if errors.Is(err, device.ErrSensorNotFound) {
		return DecisionIgnore, nil
	}
	if err != nil {
		return DecisionIgnore, fmt.Errorf("looking up sensor: %w", err)
	}

	if req.Action != ActionPublish {
		return DecisionDeny, nil
	}

	prefix, parameter, ok := splitTopic(req.Topic)
	if !ok || prefix != "sensor" {
		return DecisionDeny, nil
	}

	params, err := b.sensors.GetSensorParameters(ctx, sensor.ID)
	if err != nil {
		return DecisionIgnore, fmt.Errorf("looking up sensor parameters: %w", err)
	}
	if params.Has(parameter) {
		return DecisionAllow, nil
	}
	return DecisionDeny, nil
}

// authorizeDevice lets a device subscribe to room/{its room} and device/{its id}.
func (b *Bridge) authorizeDevice(ctx context.Context, req ACLRequest) (Decision, error) {
	dev, err := b.devices.GetDeviceBySerial(ctx, req.Username)
	if errors.Is(err, device.ErrDeviceNotFound) {
		return DecisionIgnore, nil
	}
	if err != nil {
		return DecisionIgnore, fmt.Errorf("looking up device: %w", err)
	}

	if req.Action != ActionSubscribe {
		return DecisionDeny, nil
	}

	prefix, id, ok := splitTopic(req.Topic)
	if !ok {
		return DecisionDeny, nil
	}

	switch prefix {
	case "room":
		if dev.RoomID != nil && id == strconv.FormatInt(*dev.RoomID, 10) {
			return DecisionAllow, nil
		}
	case "device":
		if id == strconv.FormatInt(dev.ID, 10) {
			return DecisionAllow, nil
		}
	}
	return DecisionDeny, nil
}

// splitTopic splits a two-segment topic. Anything else is rejected.
func splitTopic(topic string) (prefix, rest string, ok bool) {
	prefix, rest, ok = strings.Cut(topic, "/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", "", false
	}
	return prefix, rest, true
}
