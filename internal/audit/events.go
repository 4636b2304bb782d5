// Package audit records admin authentication events.
package audit

import "time"

// EventType names an audited auth step
type EventType string

const (
	EventKeyIssued       EventType = "key_issued"
	EventKeyVerified     EventType = "key_verified"
	EventKeyRejected     EventType = "key_rejected"
	EventCodeSent        EventType = "code_sent"
	EventCodeVerified    EventType = "code_verified"
	EventCodeRejected    EventType = "code_rejected"
	EventSessionIssued   EventType = "session_issued"
	EventSessionRejected EventType = "session_rejected"
	EventSessionRevoked  EventType = "session_revoked"
	EventNotifyFailed    EventType = "notify_failed"
)

// Event is one audit record. It never carries keys, codes or session tokens.
type Event struct {
	Timestamp         time.Time `json:"@timestamp"`
	Type              EventType `json:"type"`
	Nonce             string    `json:"nonce,omitempty"`
	DeviceFingerprint string    `json:"device_fingerprint,omitempty"`
	IPAddress         string    `json:"ip_address,omitempty"`
	ContactMethod     string    `json:"contact_method,omitempty"`
	Reason            string    `json:"reason,omitempty"`
}
