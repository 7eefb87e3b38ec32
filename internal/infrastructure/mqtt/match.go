package mqtt

import "strings"

// Match reports whether topic is covered by the subscription filter.
//
// Comparison is case-insensitive. A filter equal to the topic always matches.
// Otherwise filters are compared segment by segment:
//   - a segment of exactly "+" matches any one non-empty topic segment
//   - a final segment of exactly "#" matches the rest of the topic, including
//     nothing, so "a/#" matches "a"
//   - every other segment, including ones that merely contain "+" or "#",
//     must equal the topic segment
func Match(filter, topic string) bool {
	if strings.EqualFold(filter, topic) {
		return true
	}

	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")

	for i, f := range fs {
		if f == "#" && i == len(fs)-1 {
			return true
		}
		if i >= len(ts) {
			return false
		}
		switch f {
		case "+":
			if ts[i] == "" {
				return false
			}
		default:
			if !strings.EqualFold(f, ts[i]) {
				return false
			}
		}
	}
	return len(fs) == len(ts)
}
