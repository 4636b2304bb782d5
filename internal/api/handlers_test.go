package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/notify"
	"github.com/runevault/storefront-backend/internal/service"
	"github.com/runevault/storefront-backend/internal/storage/memory"
	"github.com/runevault/storefront-backend/pkg/config"
	"github.com/runevault/storefront-backend/pkg/middleware"
)

const (
	testCSRF    = "0123456789abcdef0123456789abcdef"
	adminEmail  = "ops@example.com"
	fingerprint = "fp_0000abcd"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			KeyTTLSeconds:      300,
			CodeTTLSeconds:     600,
			SessionTTLHours:    24,
			AdminContactMethod: "email",
			AdminContactValue:  adminEmail,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

type testServer struct {
	router *gin.Engine
	sink   *notify.MemorySink
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	sink := notify.NewMemorySink()
	services := service.NewServices(store, testConfig(), sink, nil, zap.NewNop())
	return &testServer{
		router: NewRouter(testConfig(), services, store, zap.NewNop()),
		sink:   sink,
	}
}

func (s *testServer) post(t *testing.T, req AuthRequest, csrf bool) (*httptest.ResponseRecorder, AuthResponse) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/api/admin/auth", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	if csrf {
		httpReq.Header.Set(middleware.CSRFHeader, testCSRF)
		httpReq.AddCookie(&http.Cookie{Name: middleware.CSRFCookie, Value: testCSRF})
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httpReq)

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func (s *testServer) lastValue(t *testing.T, name string) string {
	t.Helper()
	msg, ok := s.sink.Last()
	require.True(t, ok, "no notification delivered")
	return msg.Value(name)
}

// login runs the full handshake and returns the session token
func (s *testServer) login(t *testing.T) string {
	t.Helper()
	_, issued := s.post(t, AuthRequest{Action: ActionGenerateKey, DeviceFingerprint: fingerprint}, false)
	require.True(t, issued.Success)

	_, pending := s.post(t, AuthRequest{Action: ActionVerifyKey, Key: s.lastValue(t, "Key"), Nonce: issued.Nonce, DeviceFingerprint: fingerprint}, true)
	require.True(t, pending.Success)

	_, granted := s.post(t, AuthRequest{
		Action:            ActionVerify2FACode,
		ContactMethod:     pending.ContactMethod,
		ContactValue:      pending.ContactValue,
		AuthCode:          s.lastValue(t, "Code"),
		DeviceFingerprint: fingerprint,
	}, true)
	require.True(t, granted.Success)
	require.NotEmpty(t, granted.SessionToken)
	return granted.SessionToken
}

func TestHandlers_Status(t *testing.T) {
	s := setupTestServer(t)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, CurrentAPIVersion, resp.APIVersion)
	assert.Contains(t, resp.Capabilities, "two-factor")
}

type downStore struct{}

func (downStore) Ping(ctx context.Context) error { return errors.New("down") }

func TestHandlers_Health(t *testing.T) {
	s := setupTestServer(t)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	h := NewHandlers(nil, downStore{}, nil, zap.NewNop())
	router := gin.New()
	router.GET("/health", h.Health)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminAuth_FullFlow(t *testing.T) {
	s := setupTestServer(t)
	token := s.login(t)

	w, resp := s.post(t, AuthRequest{Action: ActionValidateSession, SessionToken: token, DeviceFingerprint: fingerprint}, false)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, resp.Valid)
	assert.True(t, *resp.Valid)
	assert.Positive(t, resp.RemainingSeconds)

	w, resp = s.post(t, AuthRequest{Action: ActionLogout, SessionToken: token}, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	w, resp = s.post(t, AuthRequest{Action: ActionValidateSession, SessionToken: token, DeviceFingerprint: fingerprint}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, resp.Valid)
	assert.False(t, *resp.Valid)
}

func TestAdminAuth_GenerateKeyDoesNotLeakKey(t *testing.T) {
	s := setupTestServer(t)

	w := httptest.NewRecorder()
	body, _ := json.Marshal(AuthRequest{Action: ActionGenerateKey, DeviceFingerprint: fingerprint})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/auth", bytes.NewReader(body))
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), s.lastValue(t, "Key"))
}

func TestAdminAuth_VerifyKeyTwice(t *testing.T) {
	s := setupTestServer(t)

	_, issued := s.post(t, AuthRequest{Action: ActionGenerateKey, DeviceFingerprint: fingerprint}, false)
	key := s.lastValue(t, "Key")

	w, _ := s.post(t, AuthRequest{Action: ActionVerifyKey, Key: key, Nonce: issued.Nonce, DeviceFingerprint: fingerprint}, true)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := s.post(t, AuthRequest{Action: ActionVerifyKey, Key: key, Nonce: issued.Nonce, DeviceFingerprint: fingerprint}, true)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, service.ErrInvalidOrExpiredAttempt.Error(), resp.Message)
}

func TestAdminAuth_CSRFRequired(t *testing.T) {
	s := setupTestServer(t)

	for _, action := range []string{ActionVerifyKey, ActionSend2FACode, ActionVerify2FACode} {
		t.Run(action, func(t *testing.T) {
			w, resp := s.post(t, AuthRequest{Action: action}, false)
			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.False(t, resp.Success)
		})
	}
}

func TestAdminAuth_ErrorMapping(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name string
		req  AuthRequest
		csrf bool
		want int
	}{
		{"unknown action", AuthRequest{Action: "deleteEverything"}, false, http.StatusBadRequest},
		{"missing fingerprint", AuthRequest{Action: ActionGenerateKey}, false, http.StatusBadRequest},
		{"missing key", AuthRequest{Action: ActionVerifyKey, Nonce: "n"}, true, http.StatusBadRequest},
		{"unknown nonce", AuthRequest{Action: ActionVerifyKey, Key: "k", Nonce: "n", DeviceFingerprint: fingerprint}, true, http.StatusUnauthorized},
		{"foreign contact", AuthRequest{Action: ActionSend2FACode, ContactMethod: "email", ContactValue: "evil@example.com"}, true, http.StatusBadRequest},
		{"bad code", AuthRequest{Action: ActionVerify2FACode, ContactMethod: "email", ContactValue: adminEmail, AuthCode: "000000", DeviceFingerprint: fingerprint}, true, http.StatusUnauthorized},
		{"unknown session", AuthRequest{Action: ActionValidateSession, SessionToken: "nope", DeviceFingerprint: fingerprint}, false, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := s.post(t, tt.req, tt.csrf)
			assert.Equal(t, tt.want, w.Code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestAdminAuth_InvalidBody(t *testing.T) {
	s := setupTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/auth", bytes.NewBufferString("{not json"))
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminAuth_LogoutUnknownToken(t *testing.T) {
	s := setupTestServer(t)

	w, resp := s.post(t, AuthRequest{Action: ActionLogout, SessionToken: "never-issued"}, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestAdminAuth_Send2FACode(t *testing.T) {
	s := setupTestServer(t)

	w, resp := s.post(t, AuthRequest{Action: ActionSend2FACode, ContactMethod: "email", ContactValue: adminEmail}, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "email", resp.ContactMethod)
	assert.NotNil(t, resp.ExpiresAt)
	assert.Len(t, s.lastValue(t, "Code"), 6)
}

func TestAdminSession_Route(t *testing.T) {
	s := setupTestServer(t)
	token := s.login(t)

	get := func(fp string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/admin/session", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(middleware.FingerprintHeader, fp)
		s.router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get(fingerprint))
	assert.Equal(t, http.StatusUnauthorized, get("fp_ffff0000"))
}

func TestCORSConfig_NoOrigins(t *testing.T) {
	c := corsConfig(config.CORSConfig{})
	require.NotNil(t, c.AllowOriginFunc)
	assert.False(t, c.AllowOriginFunc("http://evil.example"))
}

func TestAdminAuth_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Security.AuthRateLimit = config.AuthRateLimitConfig{Enabled: true, MaxAttempts: 2, WindowSeconds: 60, LockoutSeconds: 60}
	store := memory.NewStore()
	services := service.NewServices(store, cfg, notify.NewMemorySink(), nil, zap.NewNop())
	s := &testServer{router: NewRouter(cfg, services, store, zap.NewNop())}

	w, _ := s.post(t, AuthRequest{Action: ActionLogout}, false)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := s.post(t, AuthRequest{Action: ActionLogout}, false)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.False(t, resp.Success)
}
