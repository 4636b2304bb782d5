package api

import "time"

// Actions accepted by the admin auth endpoint
const (
	ActionGenerateKey     = "generateKey"
	ActionVerifyKey       = "verifyKey"
	ActionValidateSession = "validateSession"
	ActionSend2FACode     = "send2FACode"
	ActionVerify2FACode   = "verify2FACode"
	ActionLogout          = "logout"
)

// AuthRequest is the body of POST /api/admin/auth. Which fields are read
// depends on Action.
type AuthRequest struct {
	Action            string `json:"action"`
	Key               string `json:"key,omitempty"`
	Nonce             string `json:"nonce,omitempty"`
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
	IPAddress         string `json:"ipAddress,omitempty"`
	SessionToken      string `json:"sessionToken,omitempty"`
	ContactMethod     string `json:"contactMethod,omitempty"`
	ContactValue      string `json:"contactValue,omitempty"`
	AuthCode          string `json:"authCode,omitempty"`
}

// AuthResponse is the body of every admin auth reply
type AuthResponse struct {
	Success           bool       `json:"success"`
	Message           string     `json:"message,omitempty"`
	Nonce             string     `json:"nonce,omitempty"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
	TwoFactorRequired bool       `json:"twoFactorRequired,omitempty"`
	ContactMethod     string     `json:"contactMethod,omitempty"`
	ContactValue      string     `json:"contactValue,omitempty"`
	SessionToken      string     `json:"sessionToken,omitempty"`
	Valid             *bool      `json:"valid,omitempty"`
	RemainingSeconds  int64      `json:"remainingSeconds,omitempty"`
}

// SessionInfo is the body of GET /api/admin/session
type SessionInfo struct {
	Success   bool      `json:"success"`
	ExpiresAt time.Time `json:"expiresAt"`
}
