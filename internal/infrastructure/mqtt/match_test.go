package mqtt

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		// Single-level wildcard.
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b", false},
		{"a/+/c", "a/b/c/d", false},
		{"a/+/c", "a//c", false},
		{"sensor/+", "sensor/temperature", true},
		{"sensor/+", "sensor/temperature/extra", false},
		{"sensor/+", "sensor", false},
		{"+/+", "room/5", true},

		// Multi-level wildcard.
		{"a/#", "a", true},
		{"a/#", "a/b/c", true},
		{"room/#", "room/5/x/y", true},
		{"#", "anything/at/all", true},
		{"a/#", "b/c", false},

		// Exact and case-insensitive.
		{"room/5", "room/5", true},
		{"Room/5", "room/5", true},
		{"sensor/+", "SENSOR/co2", true},
		{"room/5", "room/50", false},

		// Wildcards only count as whole segments.
		{"sen+", "sensor", false},
		{"sensor/temp+", "sensor/temperature", false},
		{"a/b#", "a/bc", false},
		{"a/#/c", "a/b/c", false},
		{"sen+", "sen+", true},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"|"+tt.topic, func(t *testing.T) {
			if got := Match(tt.filter, tt.topic); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
			}
		})
	}
}

func TestMatch_SegmentReasoning(t *testing.T) {
	topics := []string{"sensor/temperature", "room/1", "room/1/x", "device/7", "a"}
	filters := []string{"sensor/+", "room/+", "room/#", "+/+", "device/7", "a/#", "+"}

	for _, f := range filters {
		for _, topic := range topics {
			if got, want := Match(f, topic), matchBySegments(f, topic); got != want {
				t.Errorf("Match(%q, %q) = %v, segment reasoning says %v", f, topic, got, want)
			}
		}
	}
}

// matchBySegments restates the matching rules recursively.
func matchBySegments(filter, topic string) bool {
	var walk func(f, t []string) bool
	walk = func(f, t []string) bool {
		switch {
		case len(f) == 1 && f[0] == "#":
			return true
		case len(f) == 0:
			return len(t) == 0
		case len(t) == 0:
			return false
		case f[0] == "+":
			return t[0] != "" && walk(f[1:], t[1:])
		default:
			return f[0] == t[0] && walk(f[1:], t[1:])
		}
	}
	return walk(split(filter), split(topic))
}

func split(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}
