// airsense-sim - stand-in sensors and fan controllers
//
// Usage:
//
//	airsense-sim sensor -serial SN001 -password secret -params temperature=22:15:30:0.5,co2=600:400:2000:40
//	airsense-sim device -serial DV001 -password secret -api http://localhost:8080
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nerrad567/airsense-core/internal/auth"
	"github.com/nerrad567/airsense-core/internal/infrastructure/config"
	"github.com/nerrad567/airsense-core/internal/infrastructure/logging"
	"github.com/nerrad567/airsense-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/airsense-core/internal/simulator"
)

const (
	defaultBroker = "mqtt://localhost:1883"
	defaultAPI    = "http://localhost:8080"
	httpTimeout   = 10 * time.Second
	stopGrace     = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: airsense-sim <sensor|device> [flags]")
	}

	log := logging.New(config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"}, "sim")

	switch args[0] {
	case "sensor":
		return runSensor(ctx, args[1:], log)
	case "device":
		return runDevice(ctx, args[1:], log)
	default:
		return fmt.Errorf("unknown simulator %q", args[0])
	}
}

func runSensor(ctx context.Context, args []string, log *logging.Logger) error {
	fs := flag.NewFlagSet("sensor", flag.ContinueOnError)
	serial := fs.String("serial", "", "sensor serial number")
	password := fs.String("password", "", "sensor password")
	broker := fs.String("broker", defaultBroker, "broker URL")
	interval := fs.Duration("interval", 5*time.Second, "time between readings")
	params := fs.String("params", "temperature=22:15:30:0.5", "name=start:min:max:step, comma separated")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *serial == "" {
		return errors.New("sensor: -serial is required")
	}

	walks, err := parseWalks(*params)
	if err != nil {
		return err
	}

	bus := mqtt.New(mqtt.Options{
		BrokerURL: *broker,
		TLS:       strings.HasPrefix(*broker, "mqtts://"),
		QoS:       1,
		Credentials: mqtt.Credentials{
			ClientID: auth.SensorClientPrefix + *serial,
			Username: *serial,
			Password: *password,
		},
	}, log.With("component", "mqtt"))
	if err := bus.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
		defer cancel()
		if stopErr := bus.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping MQTT", "error", stopErr)
		}
	}()

	sensor := simulator.NewSensor(simulator.SensorConfig{
		Serial:     *serial,
		Interval:   *interval,
		Parameters: walks,
	}, bus, log.With("serial", *serial))
	return sensor.Run(ctx)
}

func runDevice(ctx context.Context, args []string, log *logging.Logger) error {
	fs := flag.NewFlagSet("device", flag.ContinueOnError)
	serial := fs.String("serial", "", "device serial number")
	password := fs.String("password", "", "device password")
	id := fs.Int64("id", 0, "device id; also subscribes to device/{id} when set")
	broker := fs.String("broker", strings.Replace(defaultBroker, "mqtt://", "tcp://", 1), "broker URL")
	apiURL := fs.String("api", defaultAPI, "backend base URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *serial == "" {
		return errors.New("device: -serial is required")
	}

	cfg := simulator.DeviceConfig{
		Serial:    *serial,
		Password:  *password,
		ID:        *id,
		BrokerURL: *broker,
		APIURL:    strings.TrimSuffix(*apiURL, "/"),
	}

	room, err := simulator.FetchRoom(ctx, &http.Client{Timeout: httpTimeout}, cfg)
	if err != nil {
		return err
	}
	if room == nil {
		log.Warn("device is not assigned to a room", "serial", cfg.Serial)
	} else {
		log.Info("device room resolved", "serial", cfg.Serial, "room_id", *room)
	}

	dev := simulator.NewDevice(cfg, log.With("serial", cfg.Serial))
	if err := dev.Connect(ctx); err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.Subscribe(room); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

// parseWalks reads "name=start:min:max:step" entries separated by commas.
func parseWalks(list string) (map[string]simulator.Walk, error) {
	walks := make(map[string]simulator.Walk)
	for entry := range strings.SplitSeq(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, values, ok := strings.Cut(entry, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("parameter %q: want name=start:min:max:step", entry)
		}
		parts := strings.Split(values, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("parameter %q: want 4 numbers, got %d", name, len(parts))
		}
		var nums [4]float64
		for i, p := range parts {
			n, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", name, err)
			}
			nums[i] = n
		}
		walks[name] = simulator.Walk{Start: nums[0], Min: nums[1], Max: nums[2], Step: nums[3]}
	}
	if len(walks) == 0 {
		return nil, errors.New("no parameters configured")
	}
	return walks, nil
}
