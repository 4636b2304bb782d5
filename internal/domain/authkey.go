package domain

import (
	"time"
)

// AuthKeyRecord is a one-time admin authentication key. Records are never
// deleted; consumption flips Used exactly once.
type AuthKeyRecord struct {
	ID                string     `json:"id" bson:"_id"`
	AuthKey           string     `json:"-" bson:"auth_key"`
	KeyHash           string     `json:"keyHash" bson:"key_hash"`
	Nonce             string     `json:"nonce" bson:"nonce"`
	DeviceFingerprint string     `json:"deviceFingerprint" bson:"device_fingerprint"`
	IPAddress         string     `json:"ipAddress" bson:"ip_address"`
	CreatedAt         time.Time  `json:"createdAt" bson:"created_at"`
	ExpiresAt         time.Time  `json:"expiresAt" bson:"expires_at"`
	Used              bool       `json:"used" bson:"used"`
	UsedAt            *time.Time `json:"usedAt,omitempty" bson:"used_at,omitempty"`
}

// IsExpired reports whether the key is past its expiry at the given instant
func (r *AuthKeyRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
