package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wavehub/pincore/internal/audit"
	"github.com/wavehub/pincore/internal/auth"
	"github.com/wavehub/pincore/internal/automation"
	"github.com/wavehub/pincore/internal/controller"
	"github.com/wavehub/pincore/internal/infrastructure/config"
	"github.com/wavehub/pincore/internal/infrastructure/logging"
	"github.com/wavehub/pincore/internal/module"
)

// call records one ModuleService invocation.
type call struct {
	op    string
	creds auth.Credentials
	args  []any
}

// mockService is a hand-written ModuleService. err, when set, is returned
// by every operation; members limits GetModule to the listed module IDs.
type mockService struct {
	mu      sync.Mutex
	calls   []call
	err     error
	members map[string]bool
}

func (m *mockService) record(op string, creds auth.Credentials, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call{op: op, creds: creds, args: args})
	return m.err
}

func (m *mockService) last() call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return call{}
	}
	return m.calls[len(m.calls)-1]
}

func testView(moduleID string) *controller.ModuleView {
	return &controller.ModuleView{
		Module:     &module.Module{ID: moduleID, Name: "Greenhouse"},
		Role:       auth.RoleOwner,
		Operations: auth.Operations(auth.RoleOwner),
	}
}

func (m *mockService) GetModule(_ context.Context, creds auth.Credentials, moduleID string) (*controller.ModuleView, error) {
	if err := m.record("GetModule", creds, moduleID); err != nil {
		return nil, err
	}
	if m.members != nil && !m.members[moduleID] {
		return nil, auth.ErrNotAMember
	}
	return testView(moduleID), nil
}

func (m *mockService) ListModules(_ context.Context, creds auth.Credentials) ([]module.UserModule, error) {
	if err := m.record("ListModules", creds); err != nil {
		return nil, err
	}
	return []module.UserModule{{ID: "mod-1", Name: "Greenhouse", Role: auth.RoleOwner, PinCount: 3}}, nil
}

func (m *mockService) ClaimModule(_ context.Context, creds auth.Credentials, moduleID, secret string) (*controller.ModuleView, error) {
	if err := m.record("ClaimModule", creds, moduleID, secret); err != nil {
		return nil, err
	}
	return testView(moduleID), nil
}

func (m *mockService) ConfigurePinCount(_ context.Context, creds auth.Credentials, moduleID string, count int) (*controller.ModuleView, error) {
	if err := m.record("ConfigurePinCount", creds, moduleID, count); err != nil {
		return nil, err
	}
	return testView(moduleID), nil
}

func (m *mockService) SetPinState(_ context.Context, creds auth.Credentials, moduleID, pinID string, cmd controller.PinCommand) (*module.Pin, error) {
	if err := m.record("SetPinState", creds, moduleID, pinID, cmd); err != nil {
		return nil, err
	}
	return &module.Pin{ID: pinID}, nil
}

func (m *mockService) AssignPinToGroup(_ context.Context, creds auth.Credentials, moduleID, pinID, groupID string) (*module.Pin, error) {
	if err := m.record("AssignPinToGroup", creds, moduleID, pinID, groupID); err != nil {
		return nil, err
	}
	return &module.Pin{ID: pinID, GroupID: groupID}, nil
}

func (m *mockService) RenamePin(_ context.Context, creds auth.Credentials, moduleID, pinID, name, description string) (*module.Pin, error) {
	if err := m.record("RenamePin", creds, moduleID, pinID, name, description); err != nil {
		return nil, err
	}
	return &module.Pin{ID: pinID, Name: name}, nil
}

func (m *mockService) PinHistory(_ context.Context, creds auth.Credentials, moduleID, pinID string, limit int) ([]module.HistoryEntry, error) {
	if err := m.record("PinHistory", creds, moduleID, pinID, limit); err != nil {
		return nil, err
	}
	return nil, nil
}

func (m *mockService) AddGroup(_ context.Context, creds auth.Credentials, moduleID, name string) (*module.Group, error) {
	if err := m.record("AddGroup", creds, moduleID, name); err != nil {
		return nil, err
	}
	return &module.Group{ID: "grp-1", Name: name}, nil
}

func (m *mockService) RenameGroup(_ context.Context, creds auth.Credentials, moduleID, groupID, name string) (*module.Group, error) {
	if err := m.record("RenameGroup", creds, moduleID, groupID, name); err != nil {
		return nil, err
	}
	return &module.Group{ID: groupID, Name: name}, nil
}

func (m *mockService) DeleteGroup(_ context.Context, creds auth.Credentials, moduleID, groupID string) ([]string, error) {
	if err := m.record("DeleteGroup", creds, moduleID, groupID); err != nil {
		return nil, err
	}
	return []string{"mod-1-pin-1"}, nil
}

func (m *mockService) AssignUserRole(_ context.Context, creds auth.Credentials, moduleID, target string, role auth.Role) (*controller.RoleGrant, error) {
	if err := m.record("AssignUserRole", creds, moduleID, target, role); err != nil {
		return nil, err
	}
	return &controller.RoleGrant{ModuleID: moduleID, UserID: "u-" + target, Username: target, Role: role}, nil
}

func (m *mockService) RevokeUserRole(_ context.Context, creds auth.Credentials, moduleID, target string) error {
	return m.record("RevokeUserRole", creds, moduleID, target)
}

func (m *mockService) CalibrateSensor(_ context.Context, creds auth.Credentials, moduleID, sensorID string, cal automation.Calibration) (*automation.SensorStats, error) {
	if err := m.record("CalibrateSensor", creds, moduleID, sensorID, cal); err != nil {
		return nil, err
	}
	return &automation.SensorStats{SensorID: sensorID}, nil
}

func (m *mockService) ModuleMetrics(_ context.Context, creds auth.Credentials, moduleID string) ([]automation.SensorStats, error) {
	if err := m.record("ModuleMetrics", creds, moduleID); err != nil {
		return nil, err
	}
	return []automation.SensorStats{{SensorID: "soil-1"}}, nil
}

func (m *mockService) SensorMetrics(_ context.Context, creds auth.Credentials, moduleID, sensorID string) (*automation.SensorStats, error) {
	if err := m.record("SensorMetrics", creds, moduleID, sensorID); err != nil {
		return nil, err
	}
	return &automation.SensorStats{SensorID: sensorID}, nil
}

func (m *mockService) AuditLog(_ context.Context, creds auth.Credentials, moduleID string, limit, offset int) (*audit.ListResult, error) {
	if err := m.record("AuditLog", creds, moduleID, limit, offset); err != nil {
		return nil, err
	}
	return &audit.ListResult{Logs: []audit.AuditLog{}, Limit: limit, Offset: offset}, nil
}

type mockAuth struct{}

func (mockAuth) Authenticate(_ context.Context, creds auth.Credentials) (string, error) {
	if creds.Token != "token-alice" {
		return "", auth.ErrAuthenticationFailed
	}
	return "u-alice", nil
}

func (mockAuth) Register(_ context.Context, username, displayName, password string) (*auth.User, error) {
	if username == "alice" {
		return nil, auth.ErrUsernameExists
	}
	if len(password) < auth.MinPasswordLength {
		return nil, auth.ErrWeakPassword
	}
	return &auth.User{ID: "u-" + username, Username: username, DisplayName: displayName, IsActive: true}, nil
}

func (mockAuth) Login(_ context.Context, username, password string) (*auth.User, string, error) {
	if username != "alice" || password != "correct horse" {
		return nil, "", auth.ErrAuthenticationFailed
	}
	return &auth.User{ID: "u-alice", Username: "alice", IsActive: true}, "token-alice", nil
}

func (mockAuth) TokenTTL() time.Duration { return 15 * time.Minute }

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test")
}

func testServer(t *testing.T) (*Server, *mockService) {
	t.Helper()
	svc := &mockService{}
	srv, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1"},
		WS:      config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:  testLogger(),
		Modules: svc,
		Auth:    mockAuth{},
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, svc
}

// do sends a request through the router with a bearer token.
func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer token-alice")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

// ─── Server & Middleware ───────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Modules: &mockService{}, Auth: mockAuth{}}); err == nil {
		t.Error("New() without logger succeeded")
	}
	if _, err := New(Deps{Logger: testLogger(), Auth: mockAuth{}}); err == nil {
		t.Error("New() without module service succeeded")
	}
	if _, err := New(Deps{Logger: testLogger(), Modules: &mockService{}}); err == nil {
		t.Error("New() without authenticator succeeded")
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var m SystemMetrics
	decodeBody(t, w, &m)
	if m.Version != "test" || m.Runtime.Goroutines == 0 || m.MQTT.Enabled {
		t.Errorf("metrics = %+v", m)
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/modules", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q", got)
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv, svc := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/modules", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no header: status = %d, want 401", w.Code)
	}
	if len(svc.calls) != 0 {
		t.Errorf("service called without credentials: %v", svc.calls)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/modules", nil)
	req.SetBasicAuth("alice", "correct horse")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("basic auth: status = %d, want 200", w.Code)
	}
	if got := svc.last().creds; got.Username != "alice" || got.Password != "correct horse" || got.Token != "" {
		t.Errorf("credentials = %+v", got)
	}

	do(t, router, http.MethodGet, "/api/v1/modules", "")
	if got := svc.last().creds; got.Token != "token-alice" {
		t.Errorf("bearer credentials = %+v", got)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Auth ──────────────────────────────────────────────────────────

func TestLogin(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username": "alice", "password": "correct horse"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp loginResponse
	decodeBody(t, w, &resp)
	if resp.AccessToken != "token-alice" || resp.TokenType != "Bearer" || resp.ExpiresIn != 900 {
		t.Errorf("login response = %+v", resp)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username": "alice", "password": "wrong"}`))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{`))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", w.Code)
	}
}

func TestWSTicket_SingleUse(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/auth/ws-ticket", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]any
	decodeBody(t, w, &resp)
	ticket, _ := resp["ticket"].(string)
	if ticket == "" {
		t.Fatal("expected ticket to be a non-empty string")
	}

	entry, ok := srv.tickets.consume(ticket)
	if !ok {
		t.Fatal("ticket should be valid on first use")
	}
	if entry.creds.Token != "token-alice" {
		t.Errorf("ticket credentials = %+v", entry.creds)
	}
	if _, ok := srv.tickets.consume(ticket); ok {
		t.Error("ticket should not be valid on second use")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	store := newTicketStore()
	store.issue("old", auth.Credentials{Token: "t"}, time.Now().Add(-time.Second))
	store.issue("fresh", auth.Credentials{Token: "t"}, time.Now().Add(time.Minute))

	store.clean(time.Now())
	if _, ok := store.tickets["old"]; ok {
		t.Error("clean kept an expired ticket")
	}

	store.issue("stale", auth.Credentials{}, time.Now().Add(-time.Second))
	if _, ok := store.consume("stale"); ok {
		t.Error("expired ticket should not be valid")
	}
	if _, ok := store.consume("fresh"); !ok {
		t.Error("fresh ticket should be valid")
	}
}

// ─── Module Operations ─────────────────────────────────────────────

func TestModuleRoutes(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		op     string
		args   []any
	}{
		{"list", http.MethodGet, "/api/v1/modules", "", 200, "ListModules", nil},
		{"get", http.MethodGet, "/api/v1/modules/mod-1", "", 200, "GetModule", []any{"mod-1"}},
		{"claim", http.MethodPost, "/api/v1/modules/mod-1/claim", `{"secret":"s3cret"}`, 200, "ClaimModule", []any{"mod-1", "s3cret"}},
		{"pin count", http.MethodPut, "/api/v1/modules/mod-1/pins", `{"count":4}`, 200, "ConfigurePinCount", []any{"mod-1", 4}},
		{"assign group", http.MethodPut, "/api/v1/modules/mod-1/pins/mod-1-pin-2/group", `{"group_id":"grp-1"}`, 200, "AssignPinToGroup", []any{"mod-1", "mod-1-pin-2", "grp-1"}},
		{"rename pin", http.MethodPatch, "/api/v1/modules/mod-1/pins/mod-1-pin-2", `{"name":"Pump","description":"north bed"}`, 200, "RenamePin", []any{"mod-1", "mod-1-pin-2", "Pump", "north bed"}},
		{"history default", http.MethodGet, "/api/v1/modules/mod-1/pins/mod-1-pin-2/history", "", 200, "PinHistory", []any{"mod-1", "mod-1-pin-2", defaultHistoryLimit}},
		{"history limit", http.MethodGet, "/api/v1/modules/mod-1/pins/mod-1-pin-2/history?limit=5", "", 200, "PinHistory", []any{"mod-1", "mod-1-pin-2", 5}},
		{"add group", http.MethodPost, "/api/v1/modules/mod-1/groups", `{"name":"Beds"}`, 201, "AddGroup", []any{"mod-1", "Beds"}},
		{"rename group", http.MethodPatch, "/api/v1/modules/mod-1/groups/grp-1", `{"name":"Rows"}`, 200, "RenameGroup", []any{"mod-1", "grp-1", "Rows"}},
		{"delete group", http.MethodDelete, "/api/v1/modules/mod-1/groups/grp-1", "", 200, "DeleteGroup", []any{"mod-1", "grp-1"}},
		{"assign role", http.MethodPut, "/api/v1/modules/mod-1/roles/bob", `{"role":"operator"}`, 200, "AssignUserRole", []any{"mod-1", "bob", auth.RoleOperator}},
		{"revoke role", http.MethodDelete, "/api/v1/modules/mod-1/roles/bob", "", 204, "RevokeUserRole", []any{"mod-1", "bob"}},
		{"calibrate", http.MethodPut, "/api/v1/modules/mod-1/sensors/soil-1/calibration", `{"offset":-0.5}`, 200, "CalibrateSensor", []any{"mod-1", "soil-1", automation.Calibration{Multiplier: 1, Offset: -0.5}}},
		{"sensor", http.MethodGet, "/api/v1/modules/mod-1/sensors/soil-1", "", 200, "SensorMetrics", []any{"mod-1", "soil-1"}},
		{"metrics", http.MethodGet, "/api/v1/modules/mod-1/metrics", "", 200, "ModuleMetrics", []any{"mod-1"}},
		{"audit", http.MethodGet, "/api/v1/modules/mod-1/audit?limit=10&offset=20", "", 200, "AuditLog", []any{"mod-1", 10, 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, svc := testServer(t)
			w := do(t, srv.buildRouter(), tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, tt.status, w.Body.String())
			}
			got := svc.last()
			if got.op != tt.op {
				t.Fatalf("op = %q, want %q", got.op, tt.op)
			}
			if fmt.Sprint(got.args) != fmt.Sprint(tt.args) {
				t.Errorf("args = %v, want %v", got.args, tt.args)
			}
		})
	}
}

func TestSetPinState_DecodesPolicy(t *testing.T) {
	srv, svc := testServer(t)
	body := `{"state":"auto","policy":{"kind":"sensor","sensor_id":"soil-1","condition":"below","threshold":30}}`
	w := do(t, srv.buildRouter(), http.MethodPut, "/api/v1/modules/mod-1/pins/mod-1-pin-1/state", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	cmd, ok := svc.last().args[2].(controller.PinCommand)
	if !ok {
		t.Fatalf("args = %v", svc.last().args)
	}
	if cmd.State != "auto" || cmd.Policy == nil || cmd.Policy.SensorID != "soil-1" || *cmd.Policy.Threshold != 30 {
		t.Errorf("command = %+v policy = %+v", cmd, cmd.Policy)
	}
}

func TestBadInput(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"invalid json", http.MethodPost, "/api/v1/modules/mod-1/groups", `{"name":`},
		{"missing count", http.MethodPut, "/api/v1/modules/mod-1/pins", `{}`},
		{"negative limit", http.MethodGet, "/api/v1/modules/mod-1/pins/p/history?limit=-1", ""},
		{"bad offset", http.MethodGet, "/api/v1/modules/mod-1/audit?offset=x", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, svc := testServer(t)
			w := do(t, srv.buildRouter(), tt.method, tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if len(svc.calls) != 0 {
				t.Errorf("service called: %v", svc.calls)
			}
		})
	}
}

func TestServiceErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{auth.ErrAuthenticationFailed, http.StatusUnauthorized, ErrCodeUnauthorized},
		{auth.ErrInvalidSecret, http.StatusUnauthorized, ErrCodeUnauthorized},
		{auth.ErrNotAMember, http.StatusForbidden, ErrCodeForbidden},
		{auth.ErrInsufficientRole, http.StatusForbidden, ErrCodeForbidden},
		{auth.ErrAlreadyClaimed, http.StatusConflict, ErrCodeConflict},
		{fmt.Errorf("adding group: %w", module.ErrGroupNameTaken), http.StatusConflict, ErrCodeConflict},
		{module.ErrModuleNotFound, http.StatusNotFound, ErrCodeNotFound},
		{module.ErrPinNotFound, http.StatusNotFound, ErrCodeNotFound},
		{auth.ErrUserNotFound, http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("%w: window start", automation.ErrInvalidPolicy), http.StatusBadRequest, ErrCodeValidation},
		{module.ErrInvalidPinCount, http.StatusBadRequest, ErrCodeValidation},
		{auth.ErrSelfAssignment, http.StatusBadRequest, ErrCodeValidation},
		{fmt.Errorf("%w: disk I/O error", module.ErrStore), http.StatusServiceUnavailable, ErrCodeUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			srv, svc := testServer(t)
			svc.err = tt.err

			w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/modules/mod-1", "")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			var e Error
			decodeBody(t, w, &e)
			if e.Code != tt.code {
				t.Errorf("code = %q, want %q", e.Code, tt.code)
			}
			if tt.status >= 500 && strings.Contains(e.Message, "disk") {
				t.Errorf("internal detail leaked: %q", e.Message)
			}
		})
	}
}

func TestCreateUser(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/users", `{"username":"bob","display_name":"Bob","password":"long enough"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var user auth.User
	decodeBody(t, w, &user)
	if user.ID != "u-bob" || user.Username != "bob" {
		t.Errorf("user = %+v", user)
	}

	if w := do(t, router, http.MethodPost, "/api/v1/users", `{"username":"alice","password":"long enough"}`); w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/api/v1/users", `{"username":"carol","password":"short"}`); w.Code != http.StatusBadRequest {
		t.Errorf("weak password status = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users", strings.NewReader(`{"username":"dan","password":"long enough"}`))
	req.Header.Set("Authorization", "Bearer forged")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("forged token status = %d, want 401", w.Code)
	}
}
