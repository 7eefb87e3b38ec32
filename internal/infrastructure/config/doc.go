// Package config handles loading and validating the Airsense backend configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional .env file
//   - Overriding with AIRSENSE_* environment variables
//   - Validation of required fields
//
// Sensitive values (JWT secret, InfluxDB token, FCM credentials path) should be
// supplied through the environment rather than the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.URL())
package config
