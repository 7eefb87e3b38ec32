package simulator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"

	"github.com/nerrad567/airsense-core/internal/auth"
	"github.com/nerrad567/airsense-core/internal/fancurve"
	"github.com/nerrad567/airsense-core/internal/infrastructure/mqtt"
)

// Device connection constants.
const (
	deviceConnectTimeout = 10 * time.Second
	deviceSubscribeWait  = 5 * time.Second
	deviceDisconnectMS   = 250
	deviceMaxRetries     = 5
	deviceMaxElapsed     = time.Minute
)

// ErrUnauthorized is returned when the backend rejects the device's credentials.
var ErrUnauthorized = errors.New("simulator: device credentials rejected")

// DeviceConfig describes a simulated fan controller.
type DeviceConfig struct {
	Serial    string
	Password  string
	ID        int64 // subscribes to device/{ID} when non-zero
	BrokerURL string
	APIURL    string
}

// ClientID returns the bus client id the broker expects for this device.
func (c DeviceConfig) ClientID() string {
	return auth.DeviceClientPrefix + c.Serial
}

// FetchRoom asks the backend which room the device is installed in.
// A nil room means the device is not assigned yet.
func FetchRoom(ctx context.Context, client *http.Client, cfg DeviceConfig) (*int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.APIURL+"/api/v1/device", nil)
	if err != nil {
		return nil, fmt.Errorf("building room request: %w", err)
	}
	req.SetBasicAuth(cfg.Serial, cfg.Password)
	req.Header.Set("Client-Id", cfg.ClientID())

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting room: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		return nil, fmt.Errorf("requesting room: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		RoomID *int64 `json:"room_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding room response: %w", err)
	}
	return body.RoomID, nil
}

// Device receives fan speed commands over MQTT 3.1.1.
type Device struct {
	cfg    DeviceConfig
	logger Logger
	client pahomqtt.Client

	// OnCommand, if set, is called for every decoded command.
	OnCommand func(topic string, cmd fancurve.Command)
}

// NewDevice creates a disconnected device.
func NewDevice(cfg DeviceConfig, logger Logger) *Device {
	return &Device{cfg: cfg, logger: logger}
}

// Connect dials the broker, retrying with exponential backoff until it
// succeeds, the retries run out or ctx ends.
func (d *Device) Connect(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(d.cfg.BrokerURL)
	opts.SetClientID(d.cfg.ClientID())
	opts.SetUsername(d.cfg.Serial)
	opts.SetPassword(d.cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(deviceConnectTimeout)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = deviceMaxElapsed

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		client := pahomqtt.NewClient(opts)
		token := client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			d.logger.Warn("device connect failed", "serial", d.cfg.Serial, "attempt", attempt, "error", err)
			return err
		}
		d.client = client
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, deviceMaxRetries-1), ctx))
	if err != nil {
		return fmt.Errorf("connecting device %s after %d attempts: %w", d.cfg.Serial, attempt, err)
	}

	d.logger.Info("device connected", "serial", d.cfg.Serial, "broker", d.cfg.BrokerURL)
	return nil
}

// Subscribe listens on the room topic (when roomID is set) and the device's own topic.
func (d *Device) Subscribe(roomID *int64) error {
	if d.client == nil {
		return errors.New("simulator: device not connected")
	}

	filters := make(map[string]byte)
	topics := mqtt.Topics{}
	if roomID != nil {
		filters[topics.Room(*roomID)] = 1
	}
	if d.cfg.ID != 0 {
		filters[topics.Device(d.cfg.ID)] = 1
	}
	if len(filters) == 0 {
		return errors.New("simulator: nothing to subscribe to")
	}

	token := d.client.SubscribeMultiple(filters, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		d.handle(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(deviceSubscribeWait) {
		return errors.New("simulator: subscribe timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}

	for f := range filters {
		d.logger.Info("device subscribed", "topic", f)
	}
	return nil
}

// Close disconnects from the broker.
func (d *Device) Close() {
	if d.client != nil && d.client.IsConnected() {
		d.client.Disconnect(deviceDisconnectMS)
	}
}

func (d *Device) handle(topic string, payload []byte) {
	var cmd fancurve.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		d.logger.Warn("ignoring malformed command", "topic", topic, "error", err)
		return
	}
	d.logger.Info("fan speed received", "topic", topic, "fan_speed", cmd.FanSpeed, "timestamp", cmd.Timestamp)
	if d.OnCommand != nil {
		d.OnCommand(topic, cmd)
	}
}
