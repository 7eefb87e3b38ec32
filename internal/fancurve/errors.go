package fancurve

import "errors"

// Domain errors for the fancurve package.
var (
	// ErrCurveNotFound is returned when no curve is stored for a room and parameter.
	ErrCurveNotFound = errors.New("fancurve: curve not found")

	// ErrInvalidCurve is returned when an update fails validation.
	ErrInvalidCurve = errors.New("fancurve: invalid curve")

	// ErrUnknownParameter is returned when no sensor in the room measures the parameter.
	ErrUnknownParameter = errors.New("fancurve: parameter not measured in room")
)
