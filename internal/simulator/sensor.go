package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/nerrad567/airsense-core/internal/infrastructure/mqtt"
)

// defaultInterval separates readings when SensorConfig.Interval is unset.
const defaultInterval = 5 * time.Second

// Walk bounds the random walk of one parameter.
type Walk struct {
	Start float64
	Min   float64
	Max   float64
	Step  float64 // largest change between two readings
}

// SensorConfig describes a simulated sensor.
type SensorConfig struct {
	Serial     string
	Interval   time.Duration
	Parameters map[string]Walk
}

// Reading is the payload a sensor publishes on sensor/{parameter}.
type Reading struct {
	Value  float64 `json:"value"`
	SentAt int64   `json:"sent_at"`
}

// PropertyPublisher is the bus surface a sensor needs. Implemented by mqtt.Client.
type PropertyPublisher interface {
	PublishWithProperties(ctx context.Context, topic string, payload any, props map[string]string) error
}

// Logger is the logging surface the simulators need.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Sensor publishes random-walk readings for each configured parameter.
type Sensor struct {
	cfg    SensorConfig
	pub    PropertyPublisher
	logger Logger
	rng    *rand.Rand
	now    func() time.Time

	params []string
	values map[string]float64
}

// NewSensor creates a sensor that starts every walk at its Start value.
func NewSensor(cfg SensorConfig, pub PropertyPublisher, logger Logger) *Sensor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}

	params := make([]string, 0, len(cfg.Parameters))
	values := make(map[string]float64, len(cfg.Parameters))
	for name, w := range cfg.Parameters {
		params = append(params, name)
		values[name] = clamp(w.Start, w.Min, w.Max)
	}
	sort.Strings(params)

	return &Sensor{
		cfg:    cfg,
		pub:    pub,
		logger: logger,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), //nolint:gosec // simulation only
		now:    time.Now,
		params: params,
		values: values,
	}
}

// Run publishes one round of readings per interval until ctx ends.
func (s *Sensor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.PublishOnce(ctx); err != nil {
			s.logger.Warn("publishing readings failed", "serial", s.cfg.Serial, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PublishOnce advances every walk one step and publishes the new values.
func (s *Sensor) PublishOnce(ctx context.Context) error {
	props := map[string]string{mqtt.PropertySerialNumber: s.cfg.Serial}
	topics := mqtt.Topics{}

	for _, name := range s.params {
		value := s.step(name)
		reading := Reading{Value: value, SentAt: s.now().Unix()}
		if err := s.pub.PublishWithProperties(ctx, topics.Sensor(name), reading, props); err != nil {
			return fmt.Errorf("publishing %s: %w", name, err)
		}
		s.logger.Info("reading published", "parameter", name, "value", value)
	}
	return nil
}

// step moves a parameter by a uniform amount in [-Step, Step], kept in bounds
// and rounded to two decimals.
func (s *Sensor) step(name string) float64 {
	w := s.cfg.Parameters[name]
	delta := (s.rng.Float64()*2 - 1) * w.Step
	v := clamp(s.values[name]+delta, w.Min, w.Max)
	v = math.Round(v*100) / 100
	s.values[name] = v
	return v
}

func clamp(v, lo, hi float64) float64 {
	if hi > lo {
		return math.Max(lo, math.Min(hi, v))
	}
	return v
}
