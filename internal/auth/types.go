package auth

import (
	"errors"
	"strings"
)

// Decision is the answer returned to the broker.
type Decision string

const (
	// DecisionAllow grants the request.
	DecisionAllow Decision = "allow"

	// DecisionDeny refuses the request.
	DecisionDeny Decision = "deny"

	// DecisionIgnore leaves the request to the broker's other authorities.
	// Used whenever the identity is unknown to us.
	DecisionIgnore Decision = "ignore"
)

// Action is the operation a connected client wants to perform.
type Action string

const (
	ActionPublish   Action = "publish"
	ActionSubscribe Action = "subscribe"
)

// Class is the kind of bus identity, derived from the client id.
type Class int

const (
	ClassUnknown Class = iota
	ClassSensor
	ClassDevice
	ClassAPI
)

// Client id conventions.
const (
	SensorClientPrefix = "s-"
	DeviceClientPrefix = "d-"
	APIClientID        = "api"
)

func (c Class) String() string {
	switch c {
	case ClassSensor:
		return "sensor"
	case ClassDevice:
		return "device"
	case ClassAPI:
		return "api"
	default:
		return "unknown"
	}
}

// ClassOf resolves the identity class from a client id. The id itself is
// not authenticated; it only selects which secret to check.
func ClassOf(clientID string) Class {
	switch {
	case strings.HasPrefix(clientID, SensorClientPrefix):
		return ClassSensor
	case strings.HasPrefix(clientID, DeviceClientPrefix):
		return ClassDevice
	case clientID == APIClientID:
		return ClassAPI
	default:
		return ClassUnknown
	}
}

// AuthRequest is a broker authentication hook request.
type AuthRequest struct {
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ACLRequest is a broker authorization hook request.
type ACLRequest struct {
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Action   Action `json:"action"`
	Topic    string `json:"topic"`
}

// Role is an admin API authorisation tier.
type Role string

const (
	// RoleViewer may read curves.
	RoleViewer Role = "viewer"

	// RoleOperator may read and change curves.
	RoleOperator Role = "operator"
)

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	return r == RoleViewer || r == RoleOperator
}

// Auth errors.
var (
	ErrTokenInvalid   = errors.New("auth: invalid token")
	ErrInvalidSecret  = errors.New("auth: malformed stored secret")
	ErrEmptyJWTSecret = errors.New("auth: jwt secret is empty")
	ErrInvalidRole    = errors.New("auth: invalid role")
)
