package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMonitorInterval is how often the saved session is re-validated
const DefaultMonitorInterval = 5 * time.Minute

// Validator re-checks the saved session
type Validator interface {
	Validate(ctx context.Context) (*SessionStatus, error)
}

// Monitor re-validates the session on a timer and on wake events. A rejected
// session is logged out by the Validator; network errors are only logged.
type Monitor struct {
	validator Validator
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger

	wakeCh chan struct{}

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewMonitor creates a monitor. A zero interval means DefaultMonitorInterval.
func NewMonitor(validator Validator, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{
		validator: validator,
		interval:  interval,
		timeout:   30 * time.Second,
		logger:    logger.Named("session-monitor"),
		wakeCh:    make(chan struct{}, 1),
	}
}

// Start begins the background checks
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.wg.Add(1)

	go m.run()
	m.logger.Debug("Session monitor started", zap.Duration("interval", m.interval))
}

// Stop halts the background checks and waits for a running check to finish
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
}

// Wake requests an immediate check, e.g. after the machine resumed or the
// terminal regained focus. Wakes coalesce while a check is pending.
func (m *Monitor) Wake() {
	select {
	case m.wakeCh <- struct{}{}:
	default:
	}
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Check()
		case <-m.wakeCh:
			m.Check()
		}
	}
}

// Check validates once and reports whether the session is still good
func (m *Monitor) Check() bool {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	status, err := m.validator.Validate(ctx)
	if err != nil {
		var apiErr *APIError
		switch {
		case errors.Is(err, ErrNoSession):
			m.logger.Debug("No saved session")
		case errors.As(err, &apiErr) && apiErr.Unauthorized():
			m.logger.Info("Session no longer valid")
		default:
			m.logger.Warn("Session check failed, keeping session", zap.Error(err))
			return true
		}
		return false
	}

	m.logger.Debug("Session valid", zap.Duration("remaining", status.Remaining))
	return true
}
