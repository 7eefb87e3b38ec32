package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// State is the lifecycle state of a Client.
type State int

// Client states. A running client moves Disconnected -> Connecting -> Connected,
// drops back to Disconnected on transport errors while autopaho reconnects,
// and ends Disconnected after Stop.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Logger is the logging surface the client needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// connection is the part of autopaho.ConnectionManager the client drives.
type connection interface {
	AwaitConnection(ctx context.Context) error
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error)
	Disconnect(ctx context.Context) error
}

// dialFunc starts a connection manager. Replaced in tests.
type dialFunc func(ctx context.Context, cfg autopaho.ClientConfig) (connection, error)

func dialAutopaho(ctx context.Context, cfg autopaho.ClientConfig) (connection, error) {
	return autopaho.NewConnection(ctx, cfg)
}

// Client is the topic dispatcher: it owns one MQTT v5 connection, keeps a
// registry of filter -> handler bindings, subscribes to every registered
// filter whenever the connection comes up, and routes each inbound message to
// every binding whose filter matches.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Handlers run on their own goroutines and may run concurrently with each
//     other and with Publish.
type Client struct {
	opts   Options
	logger Logger
	dial   dialFunc

	// bindings maps literal filter strings to handlers.
	bindings map[string]MessageHandler
	bindMu   sync.RWMutex

	state   State
	conn    connection
	stateMu sync.RWMutex

	// lifecycle
	started     bool
	stopManager context.CancelFunc
	lifeMu      sync.Mutex

	// handlerCtx is passed to handlers and cancelled once Stop gives up waiting.
	handlerCtx    context.Context
	handlerCancel context.CancelFunc

	inflight   sync.WaitGroup
	stopping   bool
	inflightMu sync.Mutex
}

// New creates a stopped client. Register handlers, then call Start.
// A nil logger discards output.
func New(opts Options, logger Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		opts:     opts.withDefaults(),
		logger:   logger,
		dial:     dialAutopaho,
		bindings: make(map[string]MessageHandler),
	}
}

// Start connects to the broker and blocks until the first connection is up or
// ctx ends. After Start returns nil, autopaho keeps the connection alive and
// replays subscriptions after every reconnect.
//
// Returns:
//   - ErrAlreadyStarted if the client is running
//   - ErrConnectionFailed (wrapping ctx.Err) if no connection came up in time;
//     the client is stopped again in that case
func (c *Client) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}

	cfg, err := c.buildClientConfig()
	if err != nil {
		return err
	}

	c.inflightMu.Lock()
	c.stopping = false
	c.inflightMu.Unlock()
	c.handlerCtx, c.handlerCancel = context.WithCancel(context.Background())

	// The manager outlives ctx; Stop cancels it.
	managerCtx, cancel := context.WithCancel(context.Background())
	c.setState(StateConnecting, nil)

	conn, err := c.dial(managerCtx, cfg)
	if err != nil {
		cancel()
		c.handlerCancel()
		c.setState(StateDisconnected, nil)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	c.stateMu.Lock()
	c.conn = conn
	c.stateMu.Unlock()

	if err := conn.AwaitConnection(ctx); err != nil {
		cancel()
		c.handlerCancel()
		c.setState(StateDisconnected, nil)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.started = true
	c.stopManager = cancel
	c.logger.Info("mqtt connected", "broker", c.opts.BrokerURL, "client_id", c.opts.Credentials.ClientID)
	return nil
}

// Stop disconnects from the broker and waits for in-flight handlers, all
// bounded by ctx. Handlers still running when ctx ends are abandoned and their
// context is cancelled. Publishing after Stop is a no-op.
func (c *Client) Stop(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if !c.started {
		return nil
	}
	c.started = false

	c.inflightMu.Lock()
	c.stopping = true
	c.inflightMu.Unlock()

	c.stateMu.RLock()
	conn := c.conn
	c.stateMu.RUnlock()

	var disconnectErr error
	if conn != nil {
		if err := conn.Disconnect(ctx); err != nil {
			disconnectErr = fmt.Errorf("mqtt disconnect: %w", err)
		}
	}
	c.setState(StateDisconnected, nil)
	c.stopManager()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("abandoning in-flight mqtt handlers", "error", ctx.Err())
	}
	c.handlerCancel()

	c.logger.Info("mqtt disconnected", "client_id", c.opts.Credentials.ClientID)
	return disconnectErr
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected reports whether the client is currently connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// HealthCheck returns ErrNotConnected unless the bus connection is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) setState(s State, conn connection) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = s
	if conn != nil {
		c.conn = conn
	}
}

// handleConnectionUp runs on the initial connection and on every reconnect.
func (c *Client) handleConnectionUp(conn connection) {
	c.inflightMu.Lock()
	stopping := c.stopping
	c.inflightMu.Unlock()
	if stopping {
		return
	}

	c.setState(StateConnected, conn)

	ctx, cancel := context.WithTimeout(context.Background(), defaultSubscribeTimeout)
	defer cancel()
	if err := c.subscribe(ctx, conn, c.filters()...); err != nil {
		c.logger.Error("mqtt subscribe on connect failed", "error", err)
	}
}

// handleConnectionLost runs on transport errors and broker disconnects.
func (c *Client) handleConnectionLost(err error) {
	if c.State() == StateDisconnected {
		return
	}
	c.setState(StateDisconnected, nil)
	c.logger.Warn("mqtt connection lost", "error", err)
}
