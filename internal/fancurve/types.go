package fancurve

// Fan speed bounds in percent.
const (
	MinFanSpeed = 0
	MaxFanSpeed = 100
)

// MinPoints is the smallest curve that can be evaluated.
const MinPoints = 2

// Point maps a sensor value to a fan speed in percent.
type Point struct {
	Value    float64 `json:"value"`
	FanSpeed int     `json:"fan_speed"`
}

// Curve is the response curve for one room and parameter. Points need not be
// sorted. A nil CriticalValue disables notifications.
type Curve struct {
	CriticalValue *float64 `json:"critical_value"`
	Points        []Point  `json:"points"`
}

// DefaultCurve is provisioned on first read: off at 0, full speed at 30,
// no critical value.
func DefaultCurve() Curve {
	return Curve{
		Points: []Point{
			{Value: 0, FanSpeed: 0},
			{Value: 30, FanSpeed: 100},
		},
	}
}

// Command is the actuation message published on room/{id}.
type Command struct {
	FanSpeed int `json:"fan_speed"`
	// Timestamp is Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}
