package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/api"
)

type countingValidator struct {
	calls atomic.Int32
	err   error
}

func (v *countingValidator) Validate(ctx context.Context) (*SessionStatus, error) {
	v.calls.Add(1)
	if v.err != nil {
		return nil, v.err
	}
	return &SessionStatus{Remaining: time.Hour}, nil
}

func TestMonitor_Check(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"valid", nil, true},
		{"rejected", &APIError{StatusCode: 401}, false},
		{"no session", ErrNoSession, false},
		{"network error", errors.New("connection reset"), true},
		{"server error", &APIError{StatusCode: 500}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(&countingValidator{err: tt.err}, time.Hour, zap.NewNop())
			assert.Equal(t, tt.want, m.Check())
		})
	}
}

func TestMonitor_Wake(t *testing.T) {
	v := &countingValidator{}
	m := NewMonitor(v, time.Hour, zap.NewNop())
	m.Start()
	defer m.Stop()

	m.Wake()
	assert.Eventually(t, func() bool { return v.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestMonitor_Ticks(t *testing.T) {
	v := &countingValidator{}
	m := NewMonitor(v, 10*time.Millisecond, zap.NewNop())
	m.Start()
	m.Start()

	assert.Eventually(t, func() bool { return v.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	m.Stop()
	m.Stop()

	n := v.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, v.calls.Load(), "no checks after Stop")
}

func TestMonitor_ForcesLogoutThroughOrchestrator(t *testing.T) {
	loggedOut := make(chan string, 1)
	o, _, tokens := newTestOrchestrator(t, func(api.AuthRequest) (*api.AuthResponse, error) {
		return nil, &APIError{StatusCode: 401}
	}, WithLogoutHandler(func(reason string) { loggedOut <- reason }))
	_ = tokens.Save(SavedSession{Token: "tok"})

	m := NewMonitor(o, time.Hour, zap.NewNop())
	m.Start()
	defer m.Stop()
	m.Wake()

	select {
	case <-loggedOut:
	case <-time.After(time.Second):
		t.Fatal("expected forced logout")
	}
	_, err := tokens.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestMonitor_ForcesLogoutDuringStep(t *testing.T) {
	entered, release := make(chan struct{}), make(chan struct{})
	var fired atomic.Int32
	o, _, tokens := newTestOrchestrator(t, func(req api.AuthRequest) (*api.AuthResponse, error) {
		switch req.Action {
		case api.ActionValidateSession:
			return nil, &APIError{StatusCode: 401}
		case api.ActionGenerateKey:
			close(entered)
			<-release
		}
		return happyServer(req)
	}, WithLogoutHandler(func(string) { fired.Add(1) }))
	require.NoError(t, tokens.Save(SavedSession{Token: "tok"}))

	done := make(chan error, 1)
	go func() { done <- o.RequestKey(context.Background()) }()
	<-entered

	m := NewMonitor(o, time.Hour, zap.NewNop())
	assert.False(t, m.Check(), "rejection is not held up by the running step")
	assert.Equal(t, int32(1), fired.Load())
	_, err := tokens.Load()
	assert.ErrorIs(t, err, ErrNoSession)

	close(release)
	assert.ErrorIs(t, <-done, ErrFlowReset)
	st := o.State()
	assert.Equal(t, StepKey, st.Step)
	assert.Empty(t, st.PendingNonce)
}
