package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/runevault/storefront-backend/internal/api"
	"github.com/runevault/storefront-backend/pkg/middleware"
)

const authPath = "/api/admin/auth"

// APIError is a non-2xx answer from the auth endpoint
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Unauthorized reports whether the server rejected the credentials, as
// opposed to being unreachable or failing internally
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// HTTPClient talks to the admin auth endpoint over HTTP
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the server at baseURL
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Auth posts one action. A non-empty csrfToken is sent both as header and
// cookie.
func (c *HTTPClient) Auth(ctx context.Context, req api.AuthRequest, csrfToken string) (*api.AuthResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+authPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if csrfToken != "" {
		httpReq.Header.Set(middleware.CSRFHeader, csrfToken)
		httpReq.AddCookie(&http.Cookie{Name: middleware.CSRFCookie, Value: csrfToken})
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out api.AuthResponse
	decodeErr := json.Unmarshal(respBody, &out)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: out.Message}
		if decodeErr != nil {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return &out, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", decodeErr)
	}
	return &out, nil
}
