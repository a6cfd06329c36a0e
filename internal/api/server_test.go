package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	_ "github.com/mattn/go-sqlite3"

	"github.com/glovelink/glove-core/internal/auth"
	"github.com/glovelink/glove-core/internal/binding"
	"github.com/glovelink/glove-core/internal/device"
	"github.com/glovelink/glove-core/internal/infrastructure/config"
	"github.com/glovelink/glove-core/internal/infrastructure/logging"
	"github.com/glovelink/glove-core/internal/learning"
	"github.com/glovelink/glove-core/internal/telemetry"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// testServer wires a Server against a real in-memory SQLite database with
// the full schema, the way the production wiring does.
func testServer(t *testing.T) *Server {
	t.Helper()

	db := setupTestDB(t)
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	users := auth.NewUserRepository(db)
	bindings := binding.NewManager(db, log)
	devices := device.NewService(device.NewSQLiteRepository(db), bindings, log)
	engine := learning.NewEngine(db, log)

	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)
	go hub.Run(context.Background())

	tel := telemetry.NewService(db, bindings, devices, engine, nil, hub, log)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15},
		},
		Logger:      log,
		DB:          db,
		Users:       users,
		Devices:     devices,
		Bindings:    bindings,
		Telemetry:   tel,
		Learning:    engine,
		ExternalHub: hub,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			status TEXT NOT NULL DEFAULT 'active',
			last_login_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'data_glove',
			hardware_version TEXT NOT NULL DEFAULT '',
			firmware_version TEXT NOT NULL DEFAULT '',
			mac_address TEXT UNIQUE,
			status TEXT NOT NULL DEFAULT 'offline',
			location TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			last_heartbeat TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE bindings (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users (id),
			device_id TEXT NOT NULL REFERENCES devices (id),
			bind_time TEXT NOT NULL,
			unbind_time TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (user_id, device_id)
		);
		CREATE UNIQUE INDEX idx_bindings_device_active
			ON bindings (device_id) WHERE is_active = 1;
		CREATE TABLE sensor_events (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			position TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE TABLE gesture_results (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			gesture TEXT NOT NULL,
			confidence REAL NOT NULL,
			raw_payload TEXT NOT NULL DEFAULT '',
			recognized_text TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE TABLE learning_records (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			gesture TEXT NOT NULL,
			practice_count INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			average_confidence REAL NOT NULL DEFAULT 0,
			last_practice_time TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (user_id, gesture)
		);
	`
	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser inserts an account and returns it with a valid access token.
func createTestUser(t *testing.T, srv *Server, username string, role auth.Role) (*auth.User, string) {
	t.Helper()

	hash, err := auth.HashPassword("correct-horse-battery")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	now := time.Now().UTC()
	user := &auth.User{
		ID:           "usr-" + uuid.NewString()[:8],
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		Status:       auth.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := srv.users.Create(context.Background(), user); err != nil {
		t.Fatalf("Create user: %v", err)
	}

	token, err := auth.GenerateAccessToken(user, testJWTSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return user, token
}

// registerTestDevice adds a glove to the registry.
func registerTestDevice(t *testing.T, srv *Server, hardwareID string) *device.Device {
	t.Helper()

	now := time.Now().UTC()
	dev := &device.Device{
		ID:        "dev-" + uuid.NewString()[:8],
		DeviceID:  hardwareID,
		Name:      "Glove " + hardwareID,
		Type:      device.TypeDataGlove,
		Status:    device.StatusOffline,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := srv.devices.Register(context.Background(), dev); err != nil {
		t.Fatalf("Register device: %v", err)
	}
	return dev
}

// doRequest runs a request through the full router and returns the recorder.
func doRequest(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("expected version test, got %v", body["version"])
	}
}

func TestLogin_Success(t *testing.T) {
	srv := testServer(t)
	createTestUser(t, srv, "alice", auth.RoleUser)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice",
		"password": "correct-horse-battery",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp loginResponse
	decodeBody(t, rec, &resp)
	if resp.AccessToken == "" {
		t.Error("expected access token")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("expected Bearer, got %s", resp.TokenType)
	}
	if resp.User == nil || resp.User.Username != "alice" {
		t.Errorf("expected user alice in response, got %+v", resp.User)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	srv := testServer(t)
	createTestUser(t, srv, "alice", auth.RoleUser)

	for _, req := range []map[string]string{
		{"username": "alice", "password": "wrong"},
		{"username": "nobody", "password": "correct-horse-battery"},
	} {
		rec := doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", "", req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("login %v: expected 401, got %d", req["username"], rec.Code)
		}
	}
}

func TestLogin_InactiveAccount(t *testing.T) {
	srv := testServer(t)
	user, _ := createTestUser(t, srv, "alice", auth.RoleUser)

	user.Status = auth.StatusInactive
	if err := srv.users.Update(context.Background(), user); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice",
		"password": "correct-horse-battery",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for inactive account, got %d", rec.Code)
	}
}

func TestAuthMiddleware_RejectsMissingAndBadTokens(t *testing.T) {
	srv := testServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/auth/me", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: expected 401, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/auth/me", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: expected 401, got %d", rec.Code)
	}
}

func TestMe(t *testing.T) {
	srv := testServer(t)
	user, token := createTestUser(t, srv, "alice", auth.RoleUser)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var me auth.User
	decodeBody(t, rec, &me)
	if me.ID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, me.ID)
	}
}

func TestCreateUser_AdminOnly(t *testing.T) {
	srv := testServer(t)
	_, userToken := createTestUser(t, srv, "alice", auth.RoleUser)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)

	body := map[string]string{
		"username": "bob",
		"email":    "bob@example.com",
		"password": "another-password",
	}

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/users", userToken, body)
	if rec.Code != http.StatusForbidden {
		t.Errorf("user token: expected 403, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/users", adminToken, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin token: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Duplicate username is a conflict
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/users", adminToken, body)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", rec.Code)
	}
}

func TestGetUser_OwnAccountOnly(t *testing.T) {
	srv := testServer(t)
	alice, aliceToken := createTestUser(t, srv, "alice", auth.RoleUser)
	bob, _ := createTestUser(t, srv, "bob", auth.RoleUser)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/users/"+alice.ID, aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("own account: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/users/"+bob.ID, aliceToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("other account: expected 403, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/users/"+bob.ID, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("admin: expected 200, got %d", rec.Code)
	}
}

func TestDeviceLifecycle(t *testing.T) {
	srv := testServer(t)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/devices", adminToken, map[string]any{
		"device_id": "GLV-0001",
		"name":      "Left glove",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created device.Device
	decodeBody(t, rec, &created)
	if created.Type != device.TypeDataGlove {
		t.Errorf("expected default type data_glove, got %s", created.Type)
	}

	// Duplicate hardware id conflicts
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/devices", adminToken, map[string]any{
		"device_id": "GLV-0001",
		"name":      "Clone",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/devices/"+created.ID, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/devices/by-hardware/GLV-0001", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get by hardware id: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPatch, "/api/v1/devices/"+created.ID, adminToken, map[string]any{
		"name": "Left glove (lab)",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d", rec.Code)
	}
	var patched device.Device
	decodeBody(t, rec, &patched)
	if patched.Name != "Left glove (lab)" {
		t.Errorf("expected renamed device, got %s", patched.Name)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/devices/"+created.ID, adminToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/devices/"+created.ID, adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: expected 404, got %d", rec.Code)
	}
}

func TestBindingLifecycle(t *testing.T) {
	srv := testServer(t)
	alice, aliceToken := createTestUser(t, srv, "alice", auth.RoleUser)
	bob, bobToken := createTestUser(t, srv, "bob", auth.RoleUser)
	registerTestDevice(t, srv, "GLV-0001")

	bindBody := map[string]string{"device_id": "GLV-0001", "user_id": alice.ID}

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/bindings", aliceToken, bindBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("bind: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Same user binding again is a conflict
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/bindings", aliceToken, bindBody)
	if rec.Code != http.StatusConflict {
		t.Errorf("double bind: expected 409, got %d", rec.Code)
	}

	// Another user cannot grab a held device
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/bindings", bobToken,
		map[string]string{"device_id": "GLV-0001", "user_id": bob.ID})
	if rec.Code != http.StatusConflict {
		t.Errorf("bind held device: expected 409, got %d", rec.Code)
	}

	// Owner resolves to alice
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/devices/by-hardware/GLV-0001/owner", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d", rec.Code)
	}
	var owner map[string]string
	decodeBody(t, rec, &owner)
	if owner["user_id"] != alice.ID {
		t.Errorf("expected owner %s, got %s", alice.ID, owner["user_id"])
	}

	// Alice's active bindings include the glove
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/users/"+alice.ID+"/bindings", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list bindings: expected 200, got %d", rec.Code)
	}
	var listed struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &listed)
	if listed.Count != 1 {
		t.Errorf("expected 1 active binding, got %d", listed.Count)
	}

	// Unbind releases the device
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/bindings/unbind", aliceToken, bindBody)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unbind: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	// Unbinding again conflicts; the pair's row is already inactive
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/bindings/unbind", aliceToken, bindBody)
	if rec.Code != http.StatusConflict {
		t.Errorf("double unbind: expected 409, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/devices/by-hardware/GLV-0001/owner", aliceToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("owner after unbind: expected 404, got %d", rec.Code)
	}

	// Bob can now claim the glove
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/bindings", bobToken,
		map[string]string{"device_id": "GLV-0001", "user_id": bob.ID})
	if rec.Code != http.StatusCreated {
		t.Errorf("bind after release: expected 201, got %d", rec.Code)
	}
}

func TestBind_ForAnotherUserForbidden(t *testing.T) {
	srv := testServer(t)
	_, aliceToken := createTestUser(t, srv, "alice", auth.RoleUser)
	bob, _ := createTestUser(t, srv, "bob", auth.RoleUser)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)
	registerTestDevice(t, srv, "GLV-0001")

	body := map[string]string{"device_id": "GLV-0001", "user_id": bob.ID}

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/bindings", aliceToken, body)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}

	// Admins bind on behalf of anyone
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/bindings", adminToken, body)
	if rec.Code != http.StatusCreated {
		t.Errorf("admin bind: expected 201, got %d", rec.Code)
	}
}

func TestDeleteDevice_BoundConflicts(t *testing.T) {
	srv := testServer(t)
	alice, aliceToken := createTestUser(t, srv, "alice", auth.RoleUser)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)
	dev := registerTestDevice(t, srv, "GLV-0001")

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/bindings", aliceToken,
		map[string]string{"device_id": "GLV-0001", "user_id": alice.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("bind: expected 201, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/devices/"+dev.ID, adminToken, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("delete bound device: expected 409, got %d", rec.Code)
	}
}

func TestIngestGestureResult_FeedsLearning(t *testing.T) {
	srv := testServer(t)
	alice, aliceToken := createTestUser(t, srv, "alice", auth.RoleUser)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)
	registerTestDevice(t, srv, "GLV-0001")

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/bindings", aliceToken,
		map[string]string{"device_id": "GLV-0001", "user_id": alice.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("bind: expected 201, got %d", rec.Code)
	}

	for _, confidence := range []float64{0.95, 0.70} {
		rec = doRequest(t, srv, http.MethodPost, "/api/v1/ingest/gesture-results", adminToken, map[string]any{
			"device_id":       "GLV-0001",
			"gesture":         "wave",
			"confidence":      confidence,
			"recognized_text": "hello",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("ingest: expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	// Results are attributed to the bound user and queryable
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/data/gesture-results", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("query results: expected 200, got %d", rec.Code)
	}
	var results struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &results)
	if results.Count != 2 {
		t.Errorf("expected 2 gesture results, got %d", results.Count)
	}

	// The learning record aggregates both attempts
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/users/"+alice.ID+"/learning/wave", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("learning record: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var record learning.Record
	decodeBody(t, rec, &record)
	if record.PracticeCount != 2 {
		t.Errorf("expected practice count 2, got %d", record.PracticeCount)
	}
	if record.SuccessCount != 1 {
		t.Errorf("expected success count 1, got %d", record.SuccessCount)
	}
	if record.AverageConfidence != 0.825 {
		t.Errorf("expected average 0.825, got %v", record.AverageConfidence)
	}
}

func TestIngest_Unbound(t *testing.T) {
	srv := testServer(t)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)
	registerTestDevice(t, srv, "GLV-0001")

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/ingest/sensor-events", adminToken, map[string]any{
		"device_id": "GLV-0001",
		"kind":      "flex",
		"payload":   map[string]any{"finger": 3},
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("unbound device: expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestIngestSensorEvent_InvalidKind(t *testing.T) {
	srv := testServer(t)
	alice, aliceToken := createTestUser(t, srv, "alice", auth.RoleUser)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)
	registerTestDevice(t, srv, "GLV-0001")

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/bindings", aliceToken,
		map[string]string{"device_id": "GLV-0001", "user_id": alice.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("bind: expected 201, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/ingest/sensor-events", adminToken, map[string]any{
		"device_id": "GLV-0001",
		"kind":      "thermal",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid kind: expected 400, got %d", rec.Code)
	}
}

func TestIngestGestureResult_ConfidenceRange(t *testing.T) {
	srv := testServer(t)
	alice, aliceToken := createTestUser(t, srv, "alice", auth.RoleUser)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)
	registerTestDevice(t, srv, "GLV-0001")

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/bindings", aliceToken,
		map[string]string{"device_id": "GLV-0001", "user_id": alice.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("bind: expected 201, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/ingest/gesture-results", adminToken, map[string]any{
		"device_id":  "GLV-0001",
		"gesture":    "wave",
		"confidence": 1.5,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("out-of-range confidence: expected 400, got %d", rec.Code)
	}
}

func TestIngestDeviceStatus(t *testing.T) {
	srv := testServer(t)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)
	registerTestDevice(t, srv, "GLV-0001")

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/ingest/device-status", adminToken,
		map[string]string{"device_id": "GLV-0001", "status": "online"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status report: expected 204, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/devices/by-hardware/GLV-0001", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get device: expected 200, got %d", rec.Code)
	}
	var dev device.Device
	decodeBody(t, rec, &dev)
	if dev.Status != device.StatusOnline {
		t.Errorf("expected status online, got %q", dev.Status)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/ingest/device-status", adminToken,
		map[string]string{"device_id": "GLV-0001", "status": "asleep"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad status: expected 400, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/ingest/device-status", adminToken,
		map[string]string{"device_id": "GLV-9999", "status": "offline"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown device: expected 404, got %d", rec.Code)
	}
}

func TestDataQueries_ScopedToCaller(t *testing.T) {
	srv := testServer(t)
	alice, aliceToken := createTestUser(t, srv, "alice", auth.RoleUser)
	bob, bobToken := createTestUser(t, srv, "bob", auth.RoleUser)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)
	registerTestDevice(t, srv, "GLV-0001")
	registerTestDevice(t, srv, "GLV-0002")

	for userID, token := range map[string]string{alice.ID: aliceToken, bob.ID: bobToken} {
		deviceID := "GLV-0001"
		if userID == bob.ID {
			deviceID = "GLV-0002"
		}
		rec := doRequest(t, srv, http.MethodPost, "/api/v1/bindings", token,
			map[string]string{"device_id": deviceID, "user_id": userID})
		if rec.Code != http.StatusCreated {
			t.Fatalf("bind %s: expected 201, got %d", deviceID, rec.Code)
		}
		rec = doRequest(t, srv, http.MethodPost, "/api/v1/ingest/sensor-events", adminToken, map[string]any{
			"device_id": deviceID,
			"kind":      "imu",
			"payload":   map[string]any{"ax": 0.1},
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("ingest %s: expected 201, got %d", deviceID, rec.Code)
		}
	}

	// Alice only sees her own events even when asking for bob's
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/data/sensor-events?user_id="+bob.ID, aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var scoped struct {
		Events []telemetry.SensorEvent `json:"events"`
	}
	decodeBody(t, rec, &scoped)
	if len(scoped.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(scoped.Events))
	}
	if scoped.Events[0].UserID != alice.ID {
		t.Errorf("expected alice's event, got user %s", scoped.Events[0].UserID)
	}

	// Admin sees everything
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/data/sensor-events", adminToken, nil)
	var all struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &all)
	if all.Count != 2 {
		t.Errorf("expected 2 events for admin, got %d", all.Count)
	}
}

func TestPurgeSensorEvents_AdminOnly(t *testing.T) {
	srv := testServer(t)
	_, userToken := createTestUser(t, srv, "alice", auth.RoleUser)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)

	cutoff := time.Now().UTC().Format(time.RFC3339)
	path := "/api/v1/data/sensor-events?before=" + cutoff

	rec := doRequest(t, srv, http.MethodDelete, path, userToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("user purge: expected 403, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, path, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin purge: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var purged struct {
		Deleted int64 `json:"deleted"`
	}
	decodeBody(t, rec, &purged)
	if purged.Deleted != 0 {
		t.Errorf("expected 0 deleted on empty store, got %d", purged.Deleted)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/data/sensor-events", adminToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing cutoff: expected 400, got %d", rec.Code)
	}
}

func TestLearningLeaderboard_AdminOnly(t *testing.T) {
	srv := testServer(t)
	_, userToken := createTestUser(t, srv, "alice", auth.RoleUser)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/learning/top", userToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("user: expected 403, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/learning/top?by=confidence", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("admin: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/learning/top?by=speed", adminToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad ranking: expected 400, got %d", rec.Code)
	}
}

// bindAndIngestGestures binds the device to the user and ingests one
// gesture result per entry.
func bindAndIngestGestures(t *testing.T, srv *Server, userID, userToken, adminToken, deviceID string, gestures map[string]float64) {
	t.Helper()

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/bindings", userToken,
		map[string]string{"device_id": deviceID, "user_id": userID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("bind %s: expected 201, got %d", deviceID, rec.Code)
	}
	for gesture, confidence := range gestures {
		rec = doRequest(t, srv, http.MethodPost, "/api/v1/ingest/gesture-results", adminToken, map[string]any{
			"device_id":  deviceID,
			"gesture":    gesture,
			"confidence": confidence,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("ingest %s: expected 201, got %d: %s", gesture, rec.Code, rec.Body.String())
		}
	}
}

func TestUserLearningTop(t *testing.T) {
	srv := testServer(t)
	alice, aliceToken := createTestUser(t, srv, "alice", auth.RoleUser)
	bob, bobToken := createTestUser(t, srv, "bob", auth.RoleUser)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)
	registerTestDevice(t, srv, "GLV-0001")
	registerTestDevice(t, srv, "GLV-0002")

	bindAndIngestGestures(t, srv, alice.ID, aliceToken, adminToken, "GLV-0001",
		map[string]float64{"wave": 0.9, "fist": 0.6})
	bindAndIngestGestures(t, srv, bob.ID, bobToken, adminToken, "GLV-0002",
		map[string]float64{"point": 0.95})

	// Users can rank their own gestures; nobody else's records leak in.
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/users/"+alice.ID+"/learning/top?by=confidence", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("own top: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var top struct {
		Records []learning.Record `json:"records"`
		Count   int               `json:"count"`
	}
	decodeBody(t, rec, &top)
	if top.Count != 2 {
		t.Fatalf("expected 2 records for alice, got %d", top.Count)
	}
	if top.Records[0].Gesture != "wave" {
		t.Errorf("expected wave first by confidence, got %s", top.Records[0].Gesture)
	}
	for _, record := range top.Records {
		if record.UserID != alice.ID {
			t.Errorf("expected only alice's records, got user %s", record.UserID)
		}
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/users/"+alice.ID+"/learning/top?limit=1", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("limited top: expected 200, got %d", rec.Code)
	}
	decodeBody(t, rec, &top)
	if top.Count != 1 {
		t.Errorf("expected 1 record with limit=1, got %d", top.Count)
	}

	// Cross-user access is forbidden for non-admins, open to admins.
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/users/"+alice.ID+"/learning/top", bobToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("cross-user top: expected 403, got %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/users/"+alice.ID+"/learning/top", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("admin top: expected 200, got %d", rec.Code)
	}

	// The admin leaderboard narrows to one user with user_id.
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/learning/top?user_id="+bob.ID, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("scoped leaderboard: expected 200, got %d", rec.Code)
	}
	decodeBody(t, rec, &top)
	if top.Count != 1 || top.Records[0].UserID != bob.ID {
		t.Errorf("expected only bob's record, got %+v", top.Records)
	}
}

func TestDataStats(t *testing.T) {
	srv := testServer(t)
	alice, aliceToken := createTestUser(t, srv, "alice", auth.RoleUser)
	bob, bobToken := createTestUser(t, srv, "bob", auth.RoleUser)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)
	registerTestDevice(t, srv, "GLV-0001")
	registerTestDevice(t, srv, "GLV-0002")

	bindAndIngestGestures(t, srv, alice.ID, aliceToken, adminToken, "GLV-0001",
		map[string]float64{"wave": 0.9})
	bindAndIngestGestures(t, srv, bob.ID, bobToken, adminToken, "GLV-0002",
		map[string]float64{"point": 0.95})

	for _, deviceID := range []string{"GLV-0001", "GLV-0001", "GLV-0002"} {
		rec := doRequest(t, srv, http.MethodPost, "/api/v1/ingest/sensor-events", adminToken, map[string]any{
			"device_id": deviceID,
			"kind":      "flex",
			"payload":   map[string]any{"angle": 12.0},
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("ingest %s: expected 201, got %d", deviceID, rec.Code)
		}
	}

	type stats struct {
		SensorEvents      int64                     `json:"sensor_events"`
		GestureResults    int64                     `json:"gesture_results"`
		SensorEventsToday int64                     `json:"sensor_events_today"`
		RecentResults     []telemetry.GestureResult `json:"recent_results"`
	}

	// Alice sees her own figures even when asking for bob's.
	rec := doRequest(t, srv, http.MethodGet, "/api/v1/data/stats?user_id="+bob.ID, aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var own stats
	decodeBody(t, rec, &own)
	if own.SensorEvents != 2 || own.GestureResults != 1 {
		t.Errorf("alice stats = %d events / %d results, want 2 / 1", own.SensorEvents, own.GestureResults)
	}
	if own.SensorEventsToday != 2 {
		t.Errorf("alice events today = %d, want 2", own.SensorEventsToday)
	}
	if len(own.RecentResults) != 1 || own.RecentResults[0].UserID != alice.ID {
		t.Errorf("recent results = %+v, want alice's single result", own.RecentResults)
	}

	// Admin without a user filter sees global figures.
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/data/stats", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin stats: expected 200, got %d", rec.Code)
	}
	var global stats
	decodeBody(t, rec, &global)
	if global.SensorEvents != 3 || global.GestureResults != 2 {
		t.Errorf("global stats = %d events / %d results, want 3 / 2", global.SensorEvents, global.GestureResults)
	}
}

func TestDataQueries_TotalIgnoresPaging(t *testing.T) {
	srv := testServer(t)
	alice, aliceToken := createTestUser(t, srv, "alice", auth.RoleUser)
	_, adminToken := createTestUser(t, srv, "root", auth.RoleAdmin)
	registerTestDevice(t, srv, "GLV-0001")

	bindAndIngestGestures(t, srv, alice.ID, aliceToken, adminToken, "GLV-0001",
		map[string]float64{"wave": 0.9, "fist": 0.7, "point": 0.8})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/data/gesture-results?limit=1", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page struct {
		Count int   `json:"count"`
		Total int64 `json:"total"`
	}
	decodeBody(t, rec, &page)
	if page.Count != 1 {
		t.Errorf("page count = %d, want 1", page.Count)
	}
	if page.Total != 3 {
		t.Errorf("total = %d, want 3", page.Total)
	}
}

func TestWSTicket_SingleUse(t *testing.T) {
	srv := testServer(t)
	_, token := createTestUser(t, srv, "alice", auth.RoleUser)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/auth/ws-ticket", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Ticket string `json:"ticket"`
	}
	decodeBody(t, rec, &resp)
	if resp.Ticket == "" {
		t.Fatal("expected ticket")
	}

	entry, ok := srv.validateTicket(resp.Ticket)
	if !ok {
		t.Fatal("expected ticket to validate")
	}
	if entry.userID == "" {
		t.Error("expected ticket to carry the caller's identity")
	}

	if _, ok := srv.validateTicket(resp.Ticket); ok {
		t.Error("expected ticket to be single-use")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	srv := testServer(t)

	ticket := generateTicket()
	srv.wsTickets.mu.Lock()
	srv.wsTickets.tickets[ticket] = ticketEntry{
		userID:    "usr-test",
		role:      auth.RoleUser,
		expiresAt: time.Now().Add(-time.Second),
	}
	srv.wsTickets.mu.Unlock()

	if _, ok := srv.validateTicket(ticket); ok {
		t.Error("expected expired ticket to be rejected")
	}
}

func TestWebSocket_TicketHandshake(t *testing.T) {
	srv := testServer(t)
	_, token := createTestUser(t, srv, "alice", auth.RoleUser)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/auth/ws-ticket", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ws-ticket: expected 200, got %d", rec.Code)
	}
	var resp struct {
		Ticket string `json:"ticket"`
	}
	decodeBody(t, rec, &resp)

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	// The handshake carries no Authorization header; the ticket alone
	// authenticates the connection.
	conn, handshake, err := websocket.DefaultDialer.Dial(wsURL+"?ticket="+resp.Ticket, nil)
	if err != nil {
		t.Fatalf("dial with valid ticket: %v", err)
	}
	defer conn.Close()
	if handshake.StatusCode != http.StatusSwitchingProtocols {
		t.Errorf("handshake status = %d, want 101", handshake.StatusCode)
	}

	if _, _, err := websocket.DefaultDialer.Dial(wsURL+"?ticket="+resp.Ticket, nil); err == nil {
		t.Error("expected reused ticket to be rejected")
	}

	_, handshake, err = websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected handshake without a ticket to fail")
	}
	if handshake == nil || handshake.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing ticket: expected 401 handshake response")
	}

	_, handshake, err = websocket.DefaultDialer.Dial(wsURL+"?ticket=bogus", nil)
	if err == nil {
		t.Fatal("expected handshake with an unknown ticket to fail")
	}
	if handshake == nil || handshake.StatusCode != http.StatusUnauthorized {
		t.Errorf("unknown ticket: expected 401 handshake response")
	}
}

func TestHub_BroadcastScopedToOwner(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{}, log)

	aliceClient := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 4),
		subscriptions: map[string]struct{}{ChannelGestureResult: {}},
		userID:        "usr-alice",
		role:          auth.RoleUser,
	}
	bobClient := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 4),
		subscriptions: map[string]struct{}{ChannelGestureResult: {}},
		userID:        "usr-bob",
		role:          auth.RoleUser,
	}
	adminClient := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 4),
		subscriptions: map[string]struct{}{ChannelGestureResult: {}},
		userID:        "usr-root",
		role:          auth.RoleAdmin,
	}
	hub.Register(aliceClient)
	hub.Register(bobClient)
	hub.Register(adminClient)

	hub.Broadcast(ChannelGestureResult, map[string]string{"user_id": "usr-alice", "gesture": "wave"})

	if len(aliceClient.send) != 1 {
		t.Errorf("expected alice to receive the event, got %d messages", len(aliceClient.send))
	}
	if len(bobClient.send) != 0 {
		t.Errorf("expected bob to receive nothing, got %d messages", len(bobClient.send))
	}
	if len(adminClient.send) != 1 {
		t.Errorf("expected admin to receive the event, got %d messages", len(adminClient.send))
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{}, log)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 4),
		subscriptions: map[string]struct{}{ChannelSensorEvent: {}},
		role:          auth.RoleAdmin,
	}
	hub.Register(client)

	hub.Broadcast(ChannelGestureResult, map[string]string{"gesture": "wave"})

	if len(client.send) != 0 {
		t.Errorf("expected no message for unsubscribed channel, got %d", len(client.send))
	}
}

func TestServer_StartAndClose(t *testing.T) {
	srv := testServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestRequestID_Generated(t *testing.T) {
	srv := testServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID header")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-supplied-id")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "client-supplied-id" {
		t.Errorf("expected client request id to be preserved, got %q", got)
	}
}

func TestNotFound(t *testing.T) {
	srv := testServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestChangePassword_SelfRequiresCurrent(t *testing.T) {
	srv := testServer(t)
	alice, aliceToken := createTestUser(t, srv, "alice", auth.RoleUser)

	rec := doRequest(t, srv, http.MethodPost,
		fmt.Sprintf("/api/v1/users/%s/password", alice.ID), aliceToken,
		map[string]string{"current_password": "wrong", "new_password": "a-new-password"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong current password: expected 401, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost,
		fmt.Sprintf("/api/v1/users/%s/password", alice.ID), aliceToken,
		map[string]string{"current_password": "correct-horse-battery", "new_password": "a-new-password"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	// New password works for login
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice",
		"password": "a-new-password",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("login with new password: expected 200, got %d", rec.Code)
	}
}
