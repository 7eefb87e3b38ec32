package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/airsense-core/internal/auth"
	"github.com/nerrad567/airsense-core/internal/device"
)

// deviceClientIDHeader carries the device's bus client id ("d-{serial}").
const deviceClientIDHeader = "Client-Id"

// authenticateDevice checks Basic credentials against the device registry via
// the auth bridge and returns the device. It writes the error response itself
// and returns nil when the request must stop.
func (s *Server) authenticateDevice(w http.ResponseWriter, r *http.Request) *device.Device {
	serial, password, ok := r.BasicAuth()
	clientID := r.Header.Get(deviceClientIDHeader)
	if !ok || auth.ClassOf(clientID) != auth.ClassDevice {
		writeUnauthorized(w, "device credentials required")
		return nil
	}

	decision, err := s.bridge.Authenticate(r.Context(), auth.AuthRequest{
		ClientID: clientID,
		Username: serial,
		Password: password,
	})
	if err != nil {
		s.logger.Error("device authentication failed", "serial", serial, "error", err)
		writeInternalError(w, "authentication unavailable")
		return nil
	}
	if decision != auth.DecisionAllow {
		writeUnauthorized(w, "invalid device credentials")
		return nil
	}

	dev, err := s.devices.GetDeviceBySerial(r.Context(), serial)
	if errors.Is(err, device.ErrDeviceNotFound) {
		// Removed between the two lookups.
		writeUnauthorized(w, "invalid device credentials")
		return nil
	}
	if err != nil {
		s.logger.Error("loading device failed", "serial", serial, "error", err)
		writeInternalError(w, "failed to load device")
		return nil
	}
	return dev
}

// handleDeviceRoom tells a device which room it is installed in, so it knows
// which room topic to subscribe to.
func (s *Server) handleDeviceRoom(w http.ResponseWriter, r *http.Request) {
	dev := s.authenticateDevice(w, r)
	if dev == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_id": dev.RoomID})
}

// handleDeviceFanSpeed hands a device the highest pending fan speed and marks
// every pending command applied. fan_speed is null when nothing is pending.
func (s *Server) handleDeviceFanSpeed(w http.ResponseWriter, r *http.Request) {
	dev := s.authenticateDevice(w, r)
	if dev == nil {
		return
	}

	speed, err := s.devices.ClaimFanSpeed(r.Context(), dev.ID)
	if err != nil {
		s.logger.Error("claiming fan speed failed", "device_id", dev.ID, "error", err)
		writeInternalError(w, "failed to claim fan speed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fan_speed": speed})
}
