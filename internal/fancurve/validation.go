package fancurve

import (
	"fmt"
	"math"

	z "github.com/Oudwins/zog"
)

var pointSchema = z.Struct(z.Shape{
	"Value":    z.Float64(),
	"FanSpeed": z.Int().GTE(MinFanSpeed).LTE(MaxFanSpeed),
})

var curveSchema = z.Struct(z.Shape{
	"CriticalValue": z.Ptr(z.Float64()),
	"Points":        z.Slice(pointSchema).Min(MinPoints).Required(),
})

// Validate checks a curve before it is stored: at least MinPoints points,
// fan speeds within [MinFanSpeed, MaxFanSpeed], finite numbers.
// Failures wrap ErrInvalidCurve.
func Validate(c Curve) error {
	if issues := curveSchema.Validate(&c); len(issues) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidCurve, issues)
	}
	// zog does not reject NaN or infinities.
	for i, p := range c.Points {
		if !isFinite(p.Value) {
			return fmt.Errorf("%w: point %d value is not finite", ErrInvalidCurve, i)
		}
	}
	if c.CriticalValue != nil && !isFinite(*c.CriticalValue) {
		return fmt.Errorf("%w: critical value is not finite", ErrInvalidCurve)
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
