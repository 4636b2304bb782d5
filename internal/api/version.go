// Package api provides HTTP API handlers for the storefront admin backend.
package api

// APIVersion represents the current API version supported by this server.
// Admin clients read it from /status to detect capabilities.
const (
	// APIVersion1 is the key, two-factor and session handshake
	APIVersion1 = 1

	// CurrentAPIVersion is the highest API version supported by this server.
	CurrentAPIVersion = APIVersion1
)

// APICapabilities describes the features available at each API version.
var APICapabilities = map[int][]string{
	APIVersion1: {
		"admin-key",
		"two-factor",
		"device-bound-sessions",
		"csrf-double-submit",
	},
}

// StatusResponse is the response from the /status endpoint.
type StatusResponse struct {
	Status       string   `json:"status"`
	Service      string   `json:"service"`
	APIVersion   int      `json:"api_version"`
	Capabilities []string `json:"capabilities,omitempty"`
}
