package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/api"
	"github.com/runevault/storefront-backend/internal/backend"
	"github.com/runevault/storefront-backend/internal/notify"
	"github.com/runevault/storefront-backend/internal/service"
	"github.com/runevault/storefront-backend/pkg/config"
	"github.com/runevault/storefront-backend/pkg/middleware"
)

const (
	// TestAdminEmail receives every two-factor code
	TestAdminEmail = "ops@example.com"
	// TestFingerprint is the device fingerprint used by harness requests
	TestFingerprint = "fp_1a2b3c4d"
	// TestCSRFToken is sent as header and cookie when a request needs it
	TestCSRFToken = "integration-csrf-token-0123456789"
)

// TestHarness provides a complete test environment with an HTTP server,
// configured services, and helper methods for making API requests.
type TestHarness struct {
	T       *testing.T
	Server  *httptest.Server
	Config  *config.Config
	Router  *gin.Engine
	Storage backend.Backend
	Sink    *notify.MemorySink
	Logger  *zap.Logger

	// Client is a pre-configured HTTP client for making requests
	Client *http.Client

	// BaseURL is the URL of the test server
	BaseURL string
}

// TestHarnessOption configures the test harness
type TestHarnessOption func(*TestHarness)

// WithConfig sets a custom config for the test harness
func WithConfig(cfg *config.Config) TestHarnessOption {
	return func(h *TestHarness) {
		h.Config = cfg
	}
}

// DefaultConfig is the harness configuration: memory storage, no rate
// limiting, no background workers
func DefaultConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Host: "localhost", Port: 8080},
		Storage: config.StorageConfig{Type: "memory"},
		Auth: config.AuthConfig{
			KeyTTLSeconds:      300,
			CodeTTLSeconds:     600,
			SessionTTLHours:    24,
			AdminContactMethod: "email",
			AdminContactValue:  TestAdminEmail,
		},
		Notifier: config.NotifierConfig{Type: "log"},
	}
}

// NewTestHarness creates a new test harness with a running test server
func NewTestHarness(t *testing.T, opts ...TestHarnessOption) *TestHarness {
	t.Helper()

	gin.SetMode(gin.TestMode)

	logger, _ := zap.NewDevelopment()

	h := &TestHarness{
		T:      t,
		Logger: logger,
		Sink:   notify.NewMemorySink(),
		Client: &http.Client{Timeout: 10 * time.Second},
	}

	// Apply options
	for _, opt := range opts {
		opt(h)
	}

	if h.Config == nil {
		h.Config = DefaultConfig()
	}

	store, err := backend.New(t.Context(), h.Config, logger)
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	h.Storage = store

	services := service.NewServices(store, h.Config, h.Sink, nil, logger)
	h.Router = api.NewRouter(h.Config, services, store, logger)

	// Create test server
	h.Server = httptest.NewServer(h.Router)
	h.BaseURL = h.Server.URL

	// Register cleanup
	t.Cleanup(func() {
		h.Server.Close()
		_ = store.Close()
	})

	return h
}

// Auth posts an action to the admin auth endpoint without an anti-forgery token
func (h *TestHarness) Auth(req api.AuthRequest) *Response {
	h.T.Helper()
	return h.Do(h.newAuthRequest(req))
}

// AuthCSRF posts an action with a matching anti-forgery header and cookie
func (h *TestHarness) AuthCSRF(req api.AuthRequest) *Response {
	h.T.Helper()
	httpReq := h.newAuthRequest(req)
	httpReq.Header.Set(middleware.CSRFHeader, TestCSRFToken)
	httpReq.AddCookie(&http.Cookie{Name: middleware.CSRFCookie, Value: TestCSRFToken})
	return h.Do(httpReq)
}

func (h *TestHarness) newAuthRequest(body api.AuthRequest) *http.Request {
	h.T.Helper()
	jsonBody, err := json.Marshal(body)
	if err != nil {
		h.T.Fatalf("Failed to marshal request body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, h.BaseURL+"/api/admin/auth", bytes.NewReader(jsonBody))
	if err != nil {
		h.T.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// Delivered returns a field of the last out-of-band notification
func (h *TestHarness) Delivered(field string) string {
	h.T.Helper()
	msg, ok := h.Sink.Last()
	if !ok {
		h.T.Fatal("No notification was delivered")
	}
	return msg.Value(field)
}

// Login runs the whole handshake for TestFingerprint and returns the session token
func (h *TestHarness) Login() string {
	h.T.Helper()

	var issued api.AuthResponse
	h.Auth(api.AuthRequest{Action: api.ActionGenerateKey, DeviceFingerprint: TestFingerprint}).
		Status(http.StatusOK).JSON(&issued)

	var pending api.AuthResponse
	h.AuthCSRF(api.AuthRequest{
		Action:            api.ActionVerifyKey,
		Key:               h.Delivered("Key"),
		Nonce:             issued.Nonce,
		DeviceFingerprint: TestFingerprint,
	}).Status(http.StatusOK).JSON(&pending)

	var granted api.AuthResponse
	h.AuthCSRF(api.AuthRequest{
		Action:            api.ActionVerify2FACode,
		ContactMethod:     pending.ContactMethod,
		ContactValue:      pending.ContactValue,
		AuthCode:          h.Delivered("Code"),
		DeviceFingerprint: TestFingerprint,
	}).Status(http.StatusOK).JSON(&granted)

	if granted.SessionToken == "" {
		h.T.Fatal("Login returned no session token")
	}
	return granted.SessionToken
}

// Request makes an HTTP request to the test server
func (h *TestHarness) Request(method, path string, body interface{}) *Response {
	h.T.Helper()

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			h.T.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, h.BaseURL+path, bodyReader)
	if err != nil {
		h.T.Fatalf("Failed to create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return h.Do(req)
}

// Do executes an HTTP request and returns a Response wrapper
func (h *TestHarness) Do(req *http.Request) *Response {
	h.T.Helper()

	resp, err := h.Client.Do(req)
	if err != nil {
		h.T.Fatalf("Request failed: %v", err)
	}

	return &Response{
		T:        h.T,
		Response: resp,
	}
}

// GET makes a GET request
func (h *TestHarness) GET(path string) *Response {
	return h.Request(http.MethodGet, path, nil)
}

// SessionGET makes a GET request carrying a session token and device fingerprint
func (h *TestHarness) SessionGET(path, token, fingerprint string) *Response {
	h.T.Helper()
	req, _ := http.NewRequest(http.MethodGet, h.BaseURL+path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(middleware.FingerprintHeader, fingerprint)
	return h.Do(req)
}

// Response wraps an HTTP response with assertion helpers
type Response struct {
	T        *testing.T
	Response *http.Response
	body     []byte
	bodyRead bool
}

// Body returns the response body as bytes
func (r *Response) Body() []byte {
	r.T.Helper()
	if !r.bodyRead {
		var err error
		r.body, err = io.ReadAll(r.Response.Body)
		if err != nil {
			r.T.Fatalf("Failed to read response body: %v", err)
		}
		r.Response.Body.Close()
		r.bodyRead = true
	}
	return r.body
}

// JSON unmarshals the response body into the given target
func (r *Response) JSON(target interface{}) *Response {
	r.T.Helper()
	if err := json.Unmarshal(r.Body(), target); err != nil {
		r.T.Fatalf("Failed to unmarshal response: %v\nBody: %s", err, string(r.Body()))
	}
	return r
}

// Status asserts the response status code
func (r *Response) Status(expected int) *Response {
	r.T.Helper()
	if r.Response.StatusCode != expected {
		r.T.Errorf("Expected status %d, got %d\nBody: %s", expected, r.Response.StatusCode, r.Pretty())
	}
	return r
}

// BodyContains asserts the response body contains a substring
func (r *Response) BodyContains(substr string) *Response {
	r.T.Helper()
	if !bytes.Contains(r.Body(), []byte(substr)) {
		r.T.Errorf("Expected body to contain %q\nBody: %s", substr, string(r.Body()))
	}
	return r
}

// Pretty returns the body as indented JSON, or raw when it is not JSON
func (r *Response) Pretty() string {
	var v interface{}
	if err := json.Unmarshal(r.Body(), &v); err != nil {
		return string(r.Body())
	}
	pretty, _ := json.MarshalIndent(v, "", "  ")
	return string(pretty)
}
