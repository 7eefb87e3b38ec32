package mqtt

import (
	"strconv"
	"strings"
)

// Topic roots of the Airsense bus.
const (
	// TopicPrefixSensor carries readings: sensor/{parameter}.
	TopicPrefixSensor = "sensor"

	// TopicPrefixRoom carries fan speed commands for a room: room/{roomId}.
	TopicPrefixRoom = "room"

	// TopicPrefixDevice carries commands for one device: device/{deviceId}.
	TopicPrefixDevice = "device"

	// PropertySerialNumber is the user property naming the publishing sensor.
	PropertySerialNumber = "serial-number"
)

// Topics provides builders for Airsense topics.
//
//	topics := mqtt.Topics{}
//	topics.Room(5) // "room/5"
type Topics struct{}

// Sensor returns the topic a sensor publishes a parameter on.
func (Topics) Sensor(parameter string) string {
	return TopicPrefixSensor + "/" + parameter
}

// AllSensors returns the filter matching every sensor parameter topic.
func (Topics) AllSensors() string {
	return TopicPrefixSensor + "/+"
}

// Room returns the topic fan speed commands for a room are published on.
func (Topics) Room(roomID int64) string {
	return TopicPrefixRoom + "/" + strconv.FormatInt(roomID, 10)
}

// Device returns the topic addressed to a single device.
func (Topics) Device(deviceID int64) string {
	return TopicPrefixDevice + "/" + strconv.FormatInt(deviceID, 10)
}

// ParseSensorTopic extracts the parameter from sensor/{parameter}.
// It rejects other roots, empty parameters and deeper topics.
func ParseSensorTopic(topic string) (string, bool) {
	root, param, found := strings.Cut(topic, "/")
	if !found || !strings.EqualFold(root, TopicPrefixSensor) {
		return "", false
	}
	if param == "" || strings.Contains(param, "/") {
		return "", false
	}
	return param, true
}
