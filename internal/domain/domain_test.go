package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuthKeyRecord_IsExpired(t *testing.T) {
	now := time.Now()
	rec := &AuthKeyRecord{ExpiresAt: now.Add(5 * time.Minute)}

	assert.False(t, rec.IsExpired(now))
	assert.False(t, rec.IsExpired(now.Add(5*time.Minute)), "expiry instant itself is still valid")
	assert.True(t, rec.IsExpired(now.Add(5*time.Minute+time.Nanosecond)))
}

func TestTwoFactorRecord_IsExpired(t *testing.T) {
	now := time.Now()
	rec := &TwoFactorRecord{ExpiresAt: now.Add(-time.Second)}

	assert.True(t, rec.IsExpired(now))
}

func TestSessionRecord_IsExpired(t *testing.T) {
	now := time.Now()
	s := &SessionRecord{ExpiresAt: now.Add(24 * time.Hour)}

	assert.False(t, s.IsExpired(now))
	assert.True(t, s.IsExpired(now.Add(25*time.Hour)))
}

func TestValidContactMethod(t *testing.T) {
	tests := []struct {
		method string
		want   bool
	}{
		{"email", true},
		{"sms", true},
		{"", false},
		{"pigeon", false},
		{"EMAIL", false},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidContactMethod(tt.method))
		})
	}
}
