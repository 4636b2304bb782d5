package audit

import (
	"time"

	"go.uber.org/zap"
)

// Auditor records auth events. Record must not block the caller.
type Auditor interface {
	Record(ev Event)
}

// Nop discards all events
type Nop struct{}

func (Nop) Record(Event) {}

// LogAuditor writes events to a zap logger
type LogAuditor struct {
	logger *zap.Logger
}

// NewLogAuditor creates an auditor backed by the application log
func NewLogAuditor(logger *zap.Logger) *LogAuditor {
	return &LogAuditor{logger: logger.Named("audit")}
}

func (a *LogAuditor) Record(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	a.logger.Info("Auth event",
		zap.String("type", string(ev.Type)),
		zap.Time("at", ev.Timestamp),
		zap.String("nonce", ev.Nonce),
		zap.String("device_fingerprint", ev.DeviceFingerprint),
		zap.String("ip_address", ev.IPAddress),
		zap.String("contact_method", ev.ContactMethod),
		zap.String("reason", ev.Reason),
	)
}
