package fancurve

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(f float64) *float64 { return &f }

func TestCurveFanSpeed(t *testing.T) {
	def := DefaultCurve()
	unsorted := Curve{Points: []Point{{Value: 30, FanSpeed: 100}, {Value: 10, FanSpeed: 20}, {Value: 20, FanSpeed: 40}}}
	descending := Curve{Points: []Point{{Value: 0, FanSpeed: 100}, {Value: 10, FanSpeed: 0}}}
	stepped := Curve{Points: []Point{{Value: 0, FanSpeed: 0}, {Value: 10, FanSpeed: 30}, {Value: 10, FanSpeed: 80}, {Value: 20, FanSpeed: 100}}}

	tests := []struct {
		name   string
		curve  Curve
		value  float64
		want   int
		wantOK bool
	}{
		{"clamp low", def, -5, 0, true},
		{"at lowest point", def, 0, 0, true},
		{"clamp high", def, 100, 100, true},
		{"at highest point", def, 30, 100, true},
		{"midpoint", def, 15, 50, true},
		{"rounds down", def, 1, 3, true}, // 3.33
		{"rounds up", def, 2, 7, true},   // 6.67
		{"half rounds away from zero", Curve{Points: []Point{{0, 0}, {2, 1}}}, 1, 1, true},
		{"unsorted points", unsorted, 15, 30, true},
		{"unsorted clamp low", unsorted, 0, 20, true},
		{"descending fan speeds", descending, 2.5, 75, true},
		{"duplicate value bracket", stepped, 10, 30, true},
		{"after duplicate value", stepped, 15, 90, true},
		{"single point", Curve{Points: []Point{{10, 50}}}, 10, 0, false},
		{"no points", Curve{}, 10, 0, false},
		{"NaN", def, math.NaN(), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.curve.FanSpeed(tt.value)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCurveFanSpeed_DoesNotReorderCaller(t *testing.T) {
	c := Curve{Points: []Point{{30, 100}, {0, 0}}}
	_, _ = c.FanSpeed(10)
	assert.Equal(t, []Point{{30, 100}, {0, 0}}, c.Points)
}

func TestCurveIsCritical(t *testing.T) {
	c := Curve{CriticalValue: ptr(25), Points: DefaultCurve().Points}

	assert.True(t, c.IsCritical(30))
	assert.True(t, c.IsCritical(25))
	assert.False(t, c.IsCritical(20))
	assert.False(t, DefaultCurve().IsCritical(1e9), "no critical value means never critical")
}
