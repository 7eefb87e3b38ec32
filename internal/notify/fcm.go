package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sony/gobreaker"
	"google.golang.org/api/option"

	"github.com/nerrad567/airsense-core/internal/infrastructure/config"
	"github.com/nerrad567/airsense-core/internal/infrastructure/logging"
	"github.com/nerrad567/airsense-core/internal/infrastructure/metrics"
)

// maxMulticastTokens is the FCM limit of tokens per multicast request.
const maxMulticastTokens = 500

// Sender is the part of the FCM messaging client used here.
type Sender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCM delivers notifications through Firebase Cloud Messaging.
type FCM struct {
	sender  Sender
	breaker *gobreaker.CircuitBreaker
	logger  *logging.Logger
}

// NewFCM creates a Firebase app from the service account file in cfg and
// returns a notifier over its messaging client.
func NewFCM(ctx context.Context, cfg config.NotificationsConfig, logger *logging.Logger) (*FCM, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("creating firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating fcm client: %w", err)
	}
	return NewFCMWithSender(client, cfg.Breaker, logger), nil
}

// NewFCMWithSender wraps an existing sender. A nil logger discards output.
func NewFCMWithSender(sender Sender, cfg config.BreakerConfig, logger *logging.Logger) *FCM {
	if logger == nil {
		logger = logging.Discard()
	}
	return &FCM{
		sender:  sender,
		breaker: newBreaker("fcm", cfg, logger),
		logger:  logger,
	}
}

func newBreaker(name string, cfg config.BreakerConfig, logger *logging.Logger) *gobreaker.CircuitBreaker {
	maxFailures := uint32(max(cfg.MaxFailures, 1)) //nolint:gosec // G115: bounded config value
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: time.Duration(cfg.Interval) * time.Second,
		Timeout:  time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// Notify sends title and body to every token. Tokens are sent in batches;
// a batch in which every token failed counts against the breaker. Partial
// failures are logged and not returned.
func (f *FCM) Notify(ctx context.Context, tokens []string, title, body string) error {
	if len(tokens) == 0 {
		metrics.Notifications.WithLabelValues("skipped").Inc()
		return nil
	}

	var errs []error
	for start := 0; start < len(tokens); start += maxMulticastTokens {
		batch := tokens[start:min(start+maxMulticastTokens, len(tokens))]
		if err := f.send(ctx, batch, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *FCM) send(ctx context.Context, tokens []string, title, body string) error {
	msg := &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: &messaging.Notification{Title: title, Body: body},
	}

	res, err := f.breaker.Execute(func() (any, error) {
		resp, err := f.sender.SendEachForMulticast(ctx, msg)
		if err != nil {
			return nil, err
		}
		if resp.SuccessCount == 0 {
			return resp, fmt.Errorf("%w: all %d tokens rejected", ErrDeliveryFailed, resp.FailureCount)
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.Notifications.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		return fmt.Errorf("sending multicast: %w", err)
	}

	resp := res.(*messaging.BatchResponse)
	metrics.Notifications.WithLabelValues("sent").Add(float64(resp.SuccessCount))
	if resp.FailureCount > 0 {
		metrics.Notifications.WithLabelValues("failed").Add(float64(resp.FailureCount))
		for i, r := range resp.Responses {
			if r != nil && !r.Success && i < len(tokens) {
				f.logger.Debug("push token rejected", "token_suffix", tokenSuffix(tokens[i]), "error", r.Error)
			}
		}
		f.logger.Warn("push notification partially delivered",
			"success", resp.SuccessCount,
			"failure", resp.FailureCount,
		)
	}
	return nil
}

// tokenSuffix keeps log lines from carrying whole device tokens.
func tokenSuffix(token string) string {
	const keep = 6
	if len(token) <= keep {
		return token
	}
	return "..." + token[len(token)-keep:]
}

// LogNotifier records notifications in the log instead of sending them.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger discards output.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the notification.
func (n *LogNotifier) Notify(_ context.Context, tokens []string, title, body string) error {
	if len(tokens) == 0 {
		metrics.Notifications.WithLabelValues("skipped").Inc()
		return nil
	}
	n.logger.Info("push notification (delivery disabled)",
		"title", title,
		"body", body,
		"recipients", len(tokens),
	)
	metrics.Notifications.WithLabelValues("logged").Inc()
	return nil
}
