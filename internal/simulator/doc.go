// Package simulator provides stand-in sensors and fan controllers for
// exercising a broker and backend without hardware.
//
// A simulated sensor speaks MQTT v5 through the backend's own bus client,
// since readings carry the serial-number user property. A simulated device
// speaks MQTT 3.1.1, like the deployed fan controllers, and only subscribes.
package simulator
