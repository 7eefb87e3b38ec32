// Package api implements the HTTP surface of the Airsense backend.
//
// This package provides:
//   - Broker hook endpoints (/mqtt/auth, /mqtt/acl) backed by auth.Bridge
//   - Device endpoints for room lookup and pending fan-speed pull
//   - Fan-curve admin endpoints guarded by HS256 bearer tokens
//   - Audit trail of curve changes (/api/v1/audit, operators only)
//   - Health and Prometheus metrics endpoints
//   - Middleware stack (request ID, logging, recovery, body limit, rate limit)
//
// # Security
//
// Broker hooks are unauthenticated and must only be reachable from the broker.
// Devices authenticate with HTTP Basic (serial, password) plus the Client-Id
// header they use on the bus. Curve endpoints require a bearer token whose
// role grants curve:read or curve:write; the audit listing needs audit:read.
package api
