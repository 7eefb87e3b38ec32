package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/airsense-core/internal/audit"
	"github.com/nerrad567/airsense-core/internal/auth"
	"github.com/nerrad567/airsense-core/internal/device"
	"github.com/nerrad567/airsense-core/internal/fancurve"
	"github.com/nerrad567/airsense-core/internal/infrastructure/config"
	"github.com/nerrad567/airsense-core/internal/infrastructure/database"
	"github.com/nerrad567/airsense-core/internal/infrastructure/logging"
	"github.com/nerrad567/airsense-core/internal/location"
	"github.com/nerrad567/airsense-core/internal/testutil"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// testEnv is a server wired to real repositories over a seeded SQLite database.
type testEnv struct {
	srv     *Server
	router  http.Handler
	db      *database.DB
	fix     testutil.Fixture
	devices *device.SQLiteRepository
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func newTestEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()

	db := testutil.OpenDB(t)
	fix := testutil.Seed(t, db)

	devices := device.NewSQLiteRepository(db)
	rooms := location.NewSQLiteRepository(db)

	deps := Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testJWTSecret},
		},
		Logger:  logging.Discard(),
		Bridge:  auth.NewBridge(devices, devices, auth.NewAPICredential()),
		Devices: devices,
		Curves:  fancurve.NewService(fancurve.NewSQLiteRepository(db), rooms),
		Audit:   audit.NewSQLiteRepository(db),
		Health: map[string]HealthChecker{
			"database": db,
		},
		Version: "test",
	}
	for _, m := range mutate {
		m(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return &testEnv{srv: srv, router: srv.buildRouter(), db: db, fix: fix, devices: devices}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return resp
}

func bearer(t *testing.T, role auth.Role) string {
	t.Helper()

	token, err := auth.GenerateAccessToken("operator-1", role, testJWTSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return "Bearer " + token
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"logger", func(d *Deps) { d.Logger = nil }},
		{"bridge", func(d *Deps) { d.Bridge = nil }},
		{"devices", func(d *Deps) { d.Devices = nil }},
		{"curves", func(d *Deps) { d.Curves = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Deps{
				Logger:  logging.Discard(),
				Bridge:  auth.NewBridge(nil, nil, auth.NewAPICredential()),
				Devices: &device.SQLiteRepository{},
				Curves:  &fancurve.Service{},
			}
			tt.mutate(&deps)
			if _, err := New(deps); err == nil {
				t.Errorf("New() without %s should fail", tt.name)
			}
		})
	}
}

func TestHealthCheck_NotStarted(t *testing.T) {
	env := newTestEnv(t)
	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decodeBody(t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	components, ok := resp["components"].(map[string]any)
	if !ok || components["database"] != "ok" {
		t.Errorf("components = %v, want database ok", resp["components"])
	}
}

func TestHealth_Degraded(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Health["mqtt"] = healthFunc(func(context.Context) error {
			return errors.New("mqtt: not connected")
		})
	})

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	resp := decodeBody(t, w)
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
	components := resp["components"].(map[string]any)
	if components["mqtt"] != "mqtt: not connected" {
		t.Errorf("mqtt component = %v", components["mqtt"])
	}
	if components["database"] != "ok" {
		t.Errorf("database component = %v, want ok", components["database"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("metrics output missing runtime collectors")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := env.do(req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/nonexistent", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t)
	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Security.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 2}
	})

	for i := range 2 {
		w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.RemoteAddr = "10.0.0.9:4000"
	if w := env.do(req); w.Code != http.StatusOK {
		t.Errorf("other client status = %d, want %d", w.Code, http.StatusOK)
	}

	// Broker hooks are never limited.
	body := `{"client_id":"x","username":"x","password":"x"}`
	if w := env.do(httptest.NewRequest(http.MethodPost, "/mqtt/auth", strings.NewReader(body))); w.Code != http.StatusOK {
		t.Errorf("broker hook status = %d, want %d", w.Code, http.StatusOK)
	}
}

// ─── Broker Hook Tests ─────────────────────────────────────────────

func TestBrokerAuth(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"sensor allowed", `{"client_id":"s-SN001","username":"SN001","password":"secret"}`, "allow"},
		{"sensor wrong password", `{"client_id":"s-SN001","username":"SN001","password":"nope"}`, "deny"},
		{"unknown sensor", `{"client_id":"s-SN999","username":"SN999","password":"secret"}`, "ignore"},
		{"device allowed", `{"client_id":"d-DV001","username":"DV001","password":"secret"}`, "allow"},
		{"unknown class", `{"client_id":"dashboard","username":"SN001","password":"secret"}`, "ignore"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(httptest.NewRequest(http.MethodPost, "/mqtt/auth", strings.NewReader(tt.body)))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if got := decodeBody(t, w)["result"]; got != tt.want {
				t.Errorf("result = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestBrokerHooks_SharedSecret(t *testing.T) {
	const secret = "broker-hook-secret-1"
	env := newTestEnv(t, func(d *Deps) { d.Security.BrokerHooks.Secret = secret })

	authBody := `{"client_id":"s-SN001","username":"SN001","password":"secret"}`
	aclBody := `{"client_id":"s-SN001","username":"SN001","action":"publish","topic":"sensor/temperature"}`

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing secret", "", http.StatusUnauthorized},
		{"wrong secret", "broker-hook-secret-2", http.StatusUnauthorized},
		{"prefix of secret", secret[:8], http.StatusUnauthorized},
		{"correct secret", secret, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for path, body := range map[string]string{"/mqtt/auth": authBody, "/mqtt/acl": aclBody} {
				req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
				if tt.header != "" {
					req.Header.Set(brokerSecretHeader, tt.header)
				}
				w := env.do(req)
				if w.Code != tt.want {
					t.Fatalf("%s status = %d, want %d", path, w.Code, tt.want)
				}
				if tt.want == http.StatusOK {
					if got := decodeBody(t, w)["result"]; got != "allow" {
						t.Errorf("%s result = %v, want allow", path, got)
					}
				}
			}
		})
	}
}

func TestBrokerAuth_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/mqtt/auth", "/mqtt/acl"} {
		w := env.do(httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"client_id":`)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want %d", path, w.Code, http.StatusBadRequest)
		}
	}
}

// failingAuthenticator simulates a registry outage behind the bridge.
type failingAuthenticator struct{}

func (failingAuthenticator) Authenticate(context.Context, auth.AuthRequest) (auth.Decision, error) {
	return auth.DecisionIgnore, errors.New("database is locked")
}

func (failingAuthenticator) Authorize(context.Context, auth.ACLRequest) (auth.Decision, error) {
	return auth.DecisionIgnore, errors.New("database is locked")
}

func TestBrokerHooks_LookupFailureIgnores(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Bridge = failingAuthenticator{} })

	authBody := `{"client_id":"s-SN001","username":"SN001","password":"secret"}`
	aclBody := `{"client_id":"s-SN001","username":"SN001","action":"publish","topic":"sensor/temperature"}`
	for path, body := range map[string]string{"/mqtt/auth": authBody, "/mqtt/acl": aclBody} {
		w := env.do(httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want %d", path, w.Code, http.StatusOK)
		}
		if got := decodeBody(t, w)["result"]; got != "ignore" {
			t.Errorf("%s result = %v, want ignore", path, got)
		}
	}
}

func TestBrokerACL(t *testing.T) {
	env := newTestEnv(t)
	roomTopic := "room/" + itoa(env.fix.RoomID)

	tests := []struct {
		name     string
		clientID string
		username string
		action   string
		topic    string
		want     string
	}{
		{"sensor publishes own parameter", "s-SN001", "SN001", "publish", "sensor/temperature", "allow"},
		{"sensor publishes foreign parameter", "s-SN001", "SN001", "publish", "sensor/co2", "deny"},
		{"sensor subscribes", "s-SN001", "SN001", "subscribe", "sensor/temperature", "deny"},
		{"device subscribes to its room", "d-DV001", "DV001", "subscribe", roomTopic, "allow"},
		{"device subscribes to its own topic", "d-DV001", "DV001", "subscribe", "device/" + itoa(env.fix.DeviceID), "allow"},
		{"device subscribes elsewhere", "d-DV001", "DV001", "subscribe", "room/999", "deny"},
		{"device publishes", "d-DV001", "DV001", "publish", roomTopic, "deny"},
		{"api may do anything", "api", "api", "publish", roomTopic, "allow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := json.Marshal(auth.ACLRequest{
				ClientID: tt.clientID,
				Username: tt.username,
				Action:   auth.Action(tt.action),
				Topic:    tt.topic,
			})
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			w := env.do(httptest.NewRequest(http.MethodPost, "/mqtt/acl", strings.NewReader(string(body))))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if got := decodeBody(t, w)["result"]; got != tt.want {
				t.Errorf("result = %v, want %s", got, tt.want)
			}
		})
	}
}

// ─── Device Endpoint Tests ─────────────────────────────────────────

func deviceRequest(path, clientID, serial, password string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.SetBasicAuth(serial, password)
	if clientID != "" {
		req.Header.Set(deviceClientIDHeader, clientID)
	}
	return req
}

func TestDeviceRoom(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(deviceRequest("/api/v1/device", "d-DV001", "DV001", testutil.SeedPassword))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if got := decodeBody(t, w)["room_id"]; got != float64(env.fix.RoomID) {
		t.Errorf("room_id = %v, want %d", got, env.fix.RoomID)
	}
}

func TestDeviceRoom_Unassigned(t *testing.T) {
	env := newTestEnv(t)
	testutil.Exec(t, env.db, `INSERT INTO devices (serial_number, secret, room_id) VALUES ('DV002', ?, NULL)`,
		auth.DigestSecret(testutil.SeedPassword, "DV002"))

	w := env.do(deviceRequest("/api/v1/device", "d-DV002", "DV002", testutil.SeedPassword))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	resp := decodeBody(t, w)
	if v, ok := resp["room_id"]; !ok || v != nil {
		t.Errorf("room_id = %v, want null", v)
	}
}

func TestDeviceRoom_Unauthorized(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"no credentials", httptest.NewRequest(http.MethodGet, "/api/v1/device", nil)},
		{"missing client id", deviceRequest("/api/v1/device", "", "DV001", testutil.SeedPassword)},
		{"sensor client id", deviceRequest("/api/v1/device", "s-DV001", "DV001", testutil.SeedPassword)},
		{"wrong password", deviceRequest("/api/v1/device", "d-DV001", "DV001", "nope")},
		{"unknown device", deviceRequest("/api/v1/device", "d-DV404", "DV404", testutil.SeedPassword)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(tt.req); w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestDeviceFanSpeed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, speed := range []int{40, 70, 55} {
		if _, err := env.devices.AppendFanSpeed(ctx, env.fix.RoomID, speed); err != nil {
			t.Fatalf("AppendFanSpeed(%d): %v", speed, err)
		}
	}

	w := env.do(deviceRequest("/api/v1/device/fan-speed", "d-DV001", "DV001", testutil.SeedPassword))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if got := decodeBody(t, w)["fan_speed"]; got != float64(70) {
		t.Errorf("fan_speed = %v, want 70", got)
	}

	// Everything pending was applied by the first pull.
	w = env.do(deviceRequest("/api/v1/device/fan-speed", "d-DV001", "DV001", testutil.SeedPassword))
	if w.Code != http.StatusOK {
		t.Fatalf("second pull status = %d, want %d", w.Code, http.StatusOK)
	}
	if v, ok := decodeBody(t, w)["fan_speed"]; !ok || v != nil {
		t.Errorf("second pull fan_speed = %v, want null", v)
	}
}

// ─── Curve Endpoint Tests ──────────────────────────────────────────

func curvePath(roomID int64, parameter string) string {
	return "/api/v1/rooms/" + itoa(roomID) + "/curves/" + parameter
}

func TestGetCurve_ProvisionsDefault(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, curvePath(env.fix.RoomID, "temperature"), nil)
	req.Header.Set("Authorization", bearer(t, auth.RoleViewer))
	w := env.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var curve fancurve.Curve
	if err := json.Unmarshal(w.Body.Bytes(), &curve); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := fancurve.DefaultCurve()
	if len(curve.Points) != len(want.Points) || curve.Points[1] != want.Points[1] {
		t.Errorf("points = %v, want %v", curve.Points, want.Points)
	}
	if curve.CriticalValue != nil {
		t.Errorf("critical_value = %v, want nil", *curve.CriticalValue)
	}
}

func TestCurveAuth(t *testing.T) {
	env := newTestEnv(t)
	path := curvePath(env.fix.RoomID, "temperature")
	body := `{"critical_value":40,"points":[{"value":20,"fan_speed":10},{"value":35,"fan_speed":100}]}`

	tests := []struct {
		name   string
		method string
		auth   string
		want   int
	}{
		{"get without token", http.MethodGet, "", http.StatusUnauthorized},
		{"get with garbage token", http.MethodGet, "Bearer not-a-jwt", http.StatusUnauthorized},
		{"get with basic auth", http.MethodGet, "Basic ZGV2OmRldg==", http.StatusUnauthorized},
		{"put as viewer", http.MethodPut, bearer(t, auth.RoleViewer), http.StatusForbidden},
		{"put as operator", http.MethodPut, bearer(t, auth.RoleOperator), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, path, strings.NewReader(body))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			if w := env.do(req); w.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestUpdateCurve_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	path := curvePath(env.fix.RoomID, "humidity")
	body := `{"critical_value":85,"points":[{"value":80,"fan_speed":100},{"value":20,"fan_speed":0}]}`

	put := httptest.NewRequest(http.MethodPut, path, strings.NewReader(body))
	put.Header.Set("Authorization", bearer(t, auth.RoleOperator))
	if w := env.do(put); w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	get := httptest.NewRequest(http.MethodGet, path, nil)
	get.Header.Set("Authorization", bearer(t, auth.RoleViewer))
	w := env.do(get)
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want %d", w.Code, http.StatusOK)
	}

	var curve fancurve.Curve
	if err := json.Unmarshal(w.Body.Bytes(), &curve); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if curve.CriticalValue == nil || *curve.CriticalValue != 85 {
		t.Errorf("critical_value = %v, want 85", curve.CriticalValue)
	}
	if len(curve.Points) != 2 {
		t.Fatalf("points = %v, want 2", curve.Points)
	}
	if speed, ok := curve.FanSpeed(50); !ok || speed != 50 {
		t.Errorf("FanSpeed(50) = %d, %v; want 50, true", speed, ok)
	}
}

func TestUpdateCurve_Rejected(t *testing.T) {
	env := newTestEnv(t)
	token := bearer(t, auth.RoleOperator)
	valid := `{"points":[{"value":0,"fan_speed":0},{"value":30,"fan_speed":100}]}`

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"single point", curvePath(env.fix.RoomID, "temperature"), `{"points":[{"value":0,"fan_speed":0}]}`, http.StatusBadRequest},
		{"speed above 100", curvePath(env.fix.RoomID, "temperature"), `{"points":[{"value":0,"fan_speed":0},{"value":30,"fan_speed":120}]}`, http.StatusBadRequest},
		{"malformed json", curvePath(env.fix.RoomID, "temperature"), `{"points":`, http.StatusBadRequest},
		{"non-numeric room", "/api/v1/rooms/abc/curves/temperature", valid, http.StatusBadRequest},
		{"unknown room", curvePath(9999, "temperature"), valid, http.StatusNotFound},
		{"parameter not measured in room", curvePath(env.fix.RoomID, "co2"), valid, http.StatusBadRequest},
		{"room without sensors", curvePath(env.fix.EmptyRoomID, "temperature"), valid, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Authorization", token)
			if w := env.do(req); w.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestGetCurve_UnknownParameter(t *testing.T) {
	env := newTestEnv(t)

	for _, parameter := range []string{"co2", "not-a-parameter"} {
		req := httptest.NewRequest(http.MethodGet, curvePath(env.fix.RoomID, parameter), nil)
		req.Header.Set("Authorization", bearer(t, auth.RoleViewer))
		w := env.do(req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want %d", parameter, w.Code, http.StatusBadRequest)
			continue
		}
		if got := decodeBody(t, w)["message"]; got != "parameter not found" {
			t.Errorf("message = %v, want %q", got, "parameter not found")
		}
	}

	var n int
	if err := env.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM settings`).Scan(&n); err != nil {
		t.Fatalf("count settings: %v", err)
	}
	if n != 0 {
		t.Errorf("settings rows = %d, want 0", n)
	}
}

func TestGetCurve_UnknownRoom(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, curvePath(9999, "temperature"), nil)
	req.Header.Set("Authorization", bearer(t, auth.RoleViewer))

	if w := env.do(req); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUpdateCurve_Audited(t *testing.T) {
	env := newTestEnv(t)
	body := `{"critical_value":30,"points":[{"value":18,"fan_speed":0},{"value":28,"fan_speed":100}]}`

	put := httptest.NewRequest(http.MethodPut, curvePath(env.fix.RoomID, "temperature"), strings.NewReader(body))
	put.Header.Set("Authorization", bearer(t, auth.RoleOperator))
	if w := env.do(put); w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d; body: %s", w.Code, w.Body.String())
	}

	// A rejected update leaves no trace.
	bad := httptest.NewRequest(http.MethodPut, curvePath(env.fix.RoomID, "humidity"), strings.NewReader(`{"points":[]}`))
	bad.Header.Set("Authorization", bearer(t, auth.RoleOperator))
	if w := env.do(bad); w.Code != http.StatusBadRequest {
		t.Fatalf("bad PUT status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit?entity_type=curve", nil)
	req.Header.Set("Authorization", bearer(t, auth.RoleOperator))
	w := env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /audit status = %d; body: %s", w.Code, w.Body.String())
	}

	var page audit.ListResult
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if page.Total != 1 || len(page.Logs) != 1 {
		t.Fatalf("audit entries = %d (total %d), want 1", len(page.Logs), page.Total)
	}
	entry := page.Logs[0]
	if entry.EntityID != itoa(env.fix.RoomID)+"/temperature" {
		t.Errorf("entity_id = %q", entry.EntityID)
	}
	if entry.UserID != "operator-1" || entry.Action != audit.ActionUpdate {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Details["critical_value"] != 30.0 {
		t.Errorf("details = %v, want critical_value 30", entry.Details)
	}
}

func TestListAuditLogs(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		role auth.Role
		path string
		want int
	}{
		{"viewer forbidden", auth.RoleViewer, "/api/v1/audit", http.StatusForbidden},
		{"operator", auth.RoleOperator, "/api/v1/audit?limit=10&offset=0", http.StatusOK},
		{"bad limit", auth.RoleOperator, "/api/v1/audit?limit=ten", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Authorization", bearer(t, tt.role))
			if w := env.do(req); w.Code != tt.want {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	noAudit := newTestEnv(t, func(d *Deps) { d.Audit = nil })
	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil)
	req.Header.Set("Authorization", bearer(t, auth.RoleOperator))
	if w := noAudit.do(req); w.Code != http.StatusNotFound {
		t.Errorf("status without audit = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
