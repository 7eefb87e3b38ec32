package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nerrad567/airsense-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds a single CONNECT attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds waiting for PUBACK.
	defaultPublishTimeout = 5 * time.Second

	// defaultSubscribeTimeout bounds waiting for SUBACK.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultKeepAlive is used when the configuration leaves it unset.
	defaultKeepAlive = 30 * time.Second

	// defaultRetryDelay separates reconnection attempts.
	defaultRetryDelay = 2 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Credentials identify the client to the broker. The broker's auth hook
// derives the identity class from ClientID.
type Credentials struct {
	ClientID string
	Username string
	Password string
}

// Options configures a Client.
type Options struct {
	BrokerURL      string
	TLS            bool
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	RetryDelay     time.Duration
	Credentials    Credentials
}

// OptionsFromConfig maps the mqtt section of config.yaml onto Options.
func OptionsFromConfig(cfg config.MQTTConfig, creds Credentials) Options {
	return Options{
		BrokerURL:      cfg.Broker.URL(),
		TLS:            cfg.Broker.TLS,
		QoS:            byte(cfg.QoS), //nolint:gosec // validated to 0..2 by config.Validate
		KeepAlive:      time.Duration(cfg.KeepAlive) * time.Second,
		ConnectTimeout: time.Duration(cfg.ConnectTimeout) * time.Second,
		RetryDelay:     time.Duration(cfg.Reconnect.InitialDelay) * time.Second,
		Credentials:    creds,
	}
}

func (o Options) withDefaults() Options {
	if o.KeepAlive <= 0 {
		o.KeepAlive = defaultKeepAlive
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	if o.QoS > maxQoS {
		o.QoS = 1
	}
	return o
}

// buildClientConfig creates the autopaho configuration for c.
//
// This configures:
//   - Broker URL (mqtt:// or mqtts://)
//   - Client ID and username/password
//   - Clean start with no session expiry (subscriptions are replayed on connect)
//   - Fixed-delay reconnection handled by autopaho
//   - Callbacks that drive the client's state machine and dispatch
func (c *Client) buildClientConfig() (autopaho.ClientConfig, error) {
	u, err := url.Parse(c.opts.BrokerURL)
	if err != nil {
		return autopaho.ClientConfig{}, fmt.Errorf("parsing broker url: %w", err)
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     uint16(c.opts.KeepAlive / time.Second), //nolint:gosec // small positive
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         0,
		ConnectRetryDelay:             c.opts.RetryDelay,
		ConnectTimeout:                c.opts.ConnectTimeout,
		ConnectUsername:               c.opts.Credentials.Username,
		ConnectPassword:               []byte(c.opts.Credentials.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.handleConnectionUp(cm)
		},
		OnConnectError: func(err error) {
			c.logger.Warn("mqtt connect attempt failed", "broker", c.opts.BrokerURL, "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.opts.Credentials.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.onPublishReceived,
			},
			OnClientError: func(err error) {
				c.handleConnectionLost(err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.handleConnectionLost(fmt.Errorf("server disconnect, reason code %d", d.ReasonCode))
			},
		},
	}

	if c.opts.TLS {
		cfg.TlsCfg = &tls.Config{MinVersion: tlsMinVersion}
	}
	return cfg, nil
}
