package service

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/audit"
	"github.com/runevault/storefront-backend/internal/notify"
	"github.com/runevault/storefront-backend/internal/storage/memory"
	"github.com/runevault/storefront-backend/pkg/config"
)

const (
	adminEmail = "ops@example.com"
	deviceA    = "fp_0000abcd"
	deviceB    = "fp_1234ffff"
)

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			KeyTTLSeconds:      300,
			CodeTTLSeconds:     600,
			SessionTTLHours:    24,
			AdminContactMethod: "email",
			AdminContactValue:  adminEmail,
		},
		Security: config.SecurityConfig{
			SessionCleanup: config.SessionCleanupConfig{Enabled: true, IntervalSeconds: 60},
		},
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAuditor) Record(ev audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *recordingAuditor) types() []audit.EventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.EventType, 0, len(a.events))
	for _, ev := range a.events {
		out = append(out, ev.Type)
	}
	return out
}

type testEnv struct {
	svc     *Services
	store   *memory.Store
	sink    *notify.MemorySink
	auditor *recordingAuditor
	clock   *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   memory.NewStore(),
		sink:    notify.NewMemorySink(),
		auditor: &recordingAuditor{},
		clock:   &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	env.svc = NewServices(env.store, testConfig(), env.sink, env.auditor, zap.NewNop())
	env.svc.Keys.now = env.clock.Now
	env.svc.TwoFactor.now = env.clock.Now
	env.svc.Sessions.now = env.clock.Now
	env.svc.SessionCleanup.now = env.clock.Now
	return env
}

// lastValue returns a field of the most recent notification
func (e *testEnv) lastValue(t *testing.T, name string) string {
	t.Helper()
	msg, ok := e.sink.Last()
	if !ok {
		t.Fatal("no notification delivered")
	}
	return msg.Value(name)
}
