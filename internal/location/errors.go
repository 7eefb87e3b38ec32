package location

import "errors"

var (
	// ErrRoomNotFound is returned when a room ID does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrEnvironmentNotFound is returned when a room has no owning environment.
	ErrEnvironmentNotFound = errors.New("environment not found")
)
