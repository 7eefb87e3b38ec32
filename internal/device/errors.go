package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrSensorNotFound) {
//	    // unknown serial number
//	}
var (
	// ErrSensorNotFound is returned when no sensor has the serial number.
	ErrSensorNotFound = errors.New("device: sensor not found")

	// ErrDeviceNotFound is returned when no device has the serial number.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrUnknownParameter is returned when a reading names a parameter
	// missing from the parameters table.
	ErrUnknownParameter = errors.New("device: unknown parameter")
)
