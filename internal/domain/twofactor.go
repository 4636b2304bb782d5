package domain

import (
	"time"
)

// Contact methods accepted for two-factor delivery
const (
	ContactMethodEmail = "email"
	ContactMethodSMS   = "sms"
)

// TwoFactorRecord is a six-digit code bound to a contact channel
type TwoFactorRecord struct {
	ID            string     `json:"id" bson:"_id"`
	AuthCode      string     `json:"-" bson:"auth_code"`
	ContactMethod string     `json:"contactMethod" bson:"contact_method"`
	ContactValue  string     `json:"contactValue" bson:"contact_value"`
	CreatedAt     time.Time  `json:"createdAt" bson:"created_at"`
	ExpiresAt     time.Time  `json:"expiresAt" bson:"expires_at"`
	Verified      bool       `json:"verified" bson:"verified"`
	VerifiedAt    *time.Time `json:"verifiedAt,omitempty" bson:"verified_at,omitempty"`
}

// IsExpired reports whether the code is past its expiry at the given instant
func (r *TwoFactorRecord) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// ValidContactMethod reports whether m is a supported delivery channel
func ValidContactMethod(m string) bool {
	return m == ContactMethodEmail || m == ContactMethodSMS
}
