package fancurve

import (
	"cmp"
	"math"
	"slices"
)

// FanSpeed evaluates the curve at value. ok is false when the curve has fewer
// than MinPoints points or value is NaN.
func (c Curve) FanSpeed(value float64) (speed int, ok bool) {
	if len(c.Points) < MinPoints || math.IsNaN(value) {
		return 0, false
	}

	points := slices.Clone(c.Points)
	slices.SortStableFunc(points, func(a, b Point) int {
		return cmp.Compare(a.Value, b.Value)
	})

	first, last := points[0], points[len(points)-1]
	if value <= first.Value {
		return first.FanSpeed, true
	}
	if value >= last.Value {
		return last.FanSpeed, true
	}

	for i := 0; i < len(points)-1; i++ {
		current, next := points[i], points[i+1]
		if value < current.Value || value > next.Value {
			continue
		}
		if next.Value == current.Value {
			return current.FanSpeed, true
		}
		rise := float64(next.FanSpeed - current.FanSpeed)
		interpolated := float64(current.FanSpeed) + (value-current.Value)*rise/(next.Value-current.Value)
		return int(math.Round(interpolated)), true
	}
	return 0, false
}

// IsCritical reports whether value reaches the critical threshold.
func (c Curve) IsCritical(value float64) bool {
	return c.CriticalValue != nil && value >= *c.CriticalValue
}
