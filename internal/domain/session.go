package domain

import (
	"time"
)

// SessionRecord is an admin session bound to the device fingerprint it was
// issued to.
type SessionRecord struct {
	ID                string    `json:"id" bson:"_id"`
	SessionToken      string    `json:"-" bson:"session_token"`
	DeviceFingerprint string    `json:"deviceFingerprint" bson:"device_fingerprint"`
	IPAddress         string    `json:"ipAddress" bson:"ip_address"`
	UserAgent         string    `json:"userAgent" bson:"user_agent"`
	CreatedAt         time.Time `json:"createdAt" bson:"created_at"`
	ExpiresAt         time.Time `json:"expiresAt" bson:"expires_at"`
	LastActiveAt      time.Time `json:"lastActiveAt" bson:"last_active_at"`
}

// IsExpired reports whether the session is past its expiry at the given instant
func (s *SessionRecord) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
