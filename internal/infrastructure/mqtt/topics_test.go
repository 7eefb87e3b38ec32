package mqtt

import "testing"

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		got  string
		want string
	}{
		{topics.Sensor("temperature"), "sensor/temperature"},
		{topics.AllSensors(), "sensor/+"},
		{topics.Room(12), "room/12"},
		{topics.Device(7), "device/7"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestParseSensorTopic(t *testing.T) {
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"sensor/temperature", "temperature", true},
		{"SENSOR/co2", "co2", true},
		{"sensor/", "", false},
		{"sensor", "", false},
		{"sensor/a/b", "", false},
		{"room/5", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := ParseSensorTopic(tt.topic)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseSensorTopic(%q) = (%q, %v), want (%q, %v)", tt.topic, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
