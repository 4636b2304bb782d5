// Package client drives the admin login handshake from the admin's side:
// request a key, submit it, submit the two-factor code, keep the session.
package client

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/api"
	"github.com/runevault/storefront-backend/internal/fingerprint"
)

// DefaultMaxFailures is the number of failed steps after which the flow resets
const DefaultMaxFailures = 3

// Step is a position in the login flow
type Step string

const (
	StepKey           Step = "key"
	StepVerification  Step = "verification"
	StepTwoFactor     Step = "twoFactor"
	StepAuthenticated Step = "authenticated"
)

var (
	// ErrTooManyAttempts replaces the underlying error on the failure that
	// exhausts the attempt budget. The flow is back at StepKey.
	ErrTooManyAttempts = errors.New("too many failed attempts, start over")

	// ErrStepInProgress is returned when another step has not finished yet
	ErrStepInProgress = errors.New("another step is in progress")

	// ErrWrongStep is returned when an operation does not fit the current step
	ErrWrongStep = errors.New("operation not allowed at this step")

	// ErrFlowReset is returned by a step whose flow was reset by Back, Reset
	// or a forced logout while the request was in flight. Its outcome is
	// discarded.
	ErrFlowReset = errors.New("login flow was reset while the step was running")
)

// API is the server surface the orchestrator talks to
type API interface {
	Auth(ctx context.Context, req api.AuthRequest, csrfToken string) (*api.AuthResponse, error)
}

// State is the in-memory view of the login flow
type State struct {
	Step           Step
	PendingNonce   string
	KeyExpiresAt   time.Time
	ContactMethod  string
	ContactValue   string
	CodeExpiresAt  time.Time
	FailedAttempts int
}

// SessionStatus is the server's view of the saved session
type SessionStatus struct {
	ExpiresAt time.Time
	Remaining time.Duration
}

// Orchestrator sequences the login steps. Steps are serialized: a step
// called while another is running fails with ErrStepInProgress.
type Orchestrator struct {
	api         API
	env         fingerprint.Environment
	tokens      TokenStore
	logger      *zap.Logger
	maxFailures int

	stepMu sync.Mutex

	mu          sync.Mutex
	state       State
	gen         uint64 // advances on every reset
	csrfToken   string
	fingerprint string
	onLogout    []func(reason string)
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithMaxFailures overrides DefaultMaxFailures
func WithMaxFailures(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxFailures = n
		}
	}
}

// WithLogoutHandler registers a callback fired when the session ends,
// whether by Logout or by a failed re-validation
func WithLogoutHandler(fn func(reason string)) Option {
	return func(o *Orchestrator) {
		o.onLogout = append(o.onLogout, fn)
	}
}

// NewOrchestrator creates an orchestrator at StepKey, or at
// StepAuthenticated when tokens already holds a session
func NewOrchestrator(client API, env fingerprint.Environment, tokens TokenStore, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:         client,
		env:         env,
		tokens:      tokens,
		logger:      logger.Named("auth-flow"),
		maxFailures: DefaultMaxFailures,
		state:       State{Step: StepKey},
	}
	for _, opt := range opts {
		opt(o)
	}
	if saved, err := tokens.Load(); err == nil {
		o.state.Step = StepAuthenticated
		o.fingerprint = o.pinnedFingerprint(saved)
	}
	return o
}

// State returns a copy of the current flow state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Fingerprint returns the device fingerprint. A saved session from this
// device pins the fingerprint it was issued to; otherwise it is generated on
// first use.
func (o *Orchestrator) Fingerprint() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fingerprintLocked()
}

// pinnedFingerprint returns the fingerprint saved with the session when the
// screen-independent signals still match this device. Terminal geometry may
// change between runs; anything else means another machine.
func (o *Orchestrator) pinnedFingerprint(saved *SavedSession) string {
	if saved.Fingerprint == "" || saved.Device != fingerprint.Device(o.env) {
		return ""
	}
	return saved.Fingerprint
}

func (o *Orchestrator) fingerprintLocked() string {
	if o.fingerprint == "" {
		o.fingerprint = fingerprint.Generate(o.env)
	}
	return o.fingerprint
}

// RequestKey asks the server to issue a key to the administrator and moves
// to StepVerification
func (o *Orchestrator) RequestKey(ctx context.Context) error {
	if !o.stepMu.TryLock() {
		return ErrStepInProgress
	}
	defer o.stepMu.Unlock()

	o.mu.Lock()
	if o.state.Step != StepKey {
		o.mu.Unlock()
		return ErrWrongStep
	}
	if o.csrfToken == "" {
		token, err := newCSRFToken()
		if err != nil {
			o.mu.Unlock()
			return err
		}
		o.csrfToken = token
	}
	req := api.AuthRequest{Action: api.ActionGenerateKey, DeviceFingerprint: o.fingerprintLocked()}
	csrf, gen := o.csrfToken, o.gen
	o.mu.Unlock()

	resp, err := o.api.Auth(ctx, req, csrf)
	if err != nil {
		return o.fail(api.ActionGenerateKey, gen, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return ErrFlowReset
	}
	o.state.Step = StepVerification
	o.state.PendingNonce = resp.Nonce
	if resp.ExpiresAt != nil {
		o.state.KeyExpiresAt = *resp.ExpiresAt
	}
	o.logger.Debug("Key requested", zap.String("nonce", resp.Nonce))
	return nil
}

// SubmitKey sends the key the administrator received and moves to
// StepTwoFactor. The server sends a code to the admin contact.
func (o *Orchestrator) SubmitKey(ctx context.Context, key string) error {
	if !o.stepMu.TryLock() {
		return ErrStepInProgress
	}
	defer o.stepMu.Unlock()

	o.mu.Lock()
	if o.state.Step != StepVerification {
		o.mu.Unlock()
		return ErrWrongStep
	}
	req := api.AuthRequest{
		Action:            api.ActionVerifyKey,
		Key:               key,
		Nonce:             o.state.PendingNonce,
		DeviceFingerprint: o.fingerprintLocked(),
	}
	csrf, gen := o.csrfToken, o.gen
	o.mu.Unlock()

	resp, err := o.api.Auth(ctx, req, csrf)
	if err != nil {
		return o.fail(api.ActionVerifyKey, gen, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return ErrFlowReset
	}
	o.state.Step = StepTwoFactor
	o.state.ContactMethod = resp.ContactMethod
	o.state.ContactValue = resp.ContactValue
	if resp.ExpiresAt != nil {
		o.state.CodeExpiresAt = *resp.ExpiresAt
	}
	return nil
}

// ResendCode asks for a fresh two-factor code at StepTwoFactor
func (o *Orchestrator) ResendCode(ctx context.Context) error {
	if !o.stepMu.TryLock() {
		return ErrStepInProgress
	}
	defer o.stepMu.Unlock()

	o.mu.Lock()
	if o.state.Step != StepTwoFactor {
		o.mu.Unlock()
		return ErrWrongStep
	}
	req := api.AuthRequest{
		Action:        api.ActionSend2FACode,
		ContactMethod: o.state.ContactMethod,
		ContactValue:  o.state.ContactValue,
	}
	csrf, gen := o.csrfToken, o.gen
	o.mu.Unlock()

	resp, err := o.api.Auth(ctx, req, csrf)
	if err != nil {
		return o.fail(api.ActionSend2FACode, gen, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return ErrFlowReset
	}
	if resp.ExpiresAt != nil {
		o.state.CodeExpiresAt = *resp.ExpiresAt
	}
	return nil
}

// SubmitCode sends the two-factor code. On success the session token is
// saved and the flow is authenticated.
func (o *Orchestrator) SubmitCode(ctx context.Context, code string) error {
	if !o.stepMu.TryLock() {
		return ErrStepInProgress
	}
	defer o.stepMu.Unlock()

	o.mu.Lock()
	if o.state.Step != StepTwoFactor {
		o.mu.Unlock()
		return ErrWrongStep
	}
	req := api.AuthRequest{
		Action:            api.ActionVerify2FACode,
		ContactMethod:     o.state.ContactMethod,
		ContactValue:      o.state.ContactValue,
		AuthCode:          code,
		DeviceFingerprint: o.fingerprintLocked(),
	}
	csrf, gen := o.csrfToken, o.gen
	o.mu.Unlock()

	resp, err := o.api.Auth(ctx, req, csrf)
	if err != nil {
		return o.fail(api.ActionVerify2FACode, gen, err)
	}
	if resp.SessionToken == "" {
		return o.fail(api.ActionVerify2FACode, gen, errors.New("server returned no session token"))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return ErrFlowReset
	}
	saved := SavedSession{
		Token:       resp.SessionToken,
		Fingerprint: req.DeviceFingerprint,
		Device:      fingerprint.Device(o.env),
	}
	if err := o.tokens.Save(saved); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	o.state = State{Step: StepAuthenticated}
	o.csrfToken = ""
	o.logger.Info("Admin session established")
	return nil
}

// Back abandons the current attempt from StepVerification or StepTwoFactor.
// It is not counted as a failure. A step still in flight returns
// ErrFlowReset and leaves the state alone.
func (o *Orchestrator) Back() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Step == StepVerification || o.state.Step == StepTwoFactor {
		o.resetLocked()
	}
}

// Reset returns to StepKey and discards the anti-forgery token. A saved
// session is left alone.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked()
}

func (o *Orchestrator) resetLocked() {
	o.state = State{Step: StepKey}
	o.csrfToken = ""
	o.gen++
}

// Validate asks the server whether the saved session is still good. A
// rejection logs out locally; transport or server errors leave the session
// in place.
func (o *Orchestrator) Validate(ctx context.Context) (*SessionStatus, error) {
	saved, err := o.tokens.Load()
	if err != nil {
		return nil, err
	}
	fp := o.pinnedFingerprint(saved)
	if fp == "" {
		fp = o.Fingerprint()
	}

	resp, err := o.api.Auth(ctx, api.AuthRequest{
		Action:            api.ActionValidateSession,
		SessionToken:      saved.Token,
		DeviceFingerprint: fp,
	}, "")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Unauthorized() {
			o.forceLogout("session rejected by server")
		}
		return nil, err
	}
	if resp.Valid == nil || !*resp.Valid {
		o.forceLogout("session rejected by server")
		return nil, &APIError{StatusCode: 401, Message: "Invalid session"}
	}

	status := &SessionStatus{Remaining: time.Duration(resp.RemainingSeconds) * time.Second}
	if resp.ExpiresAt != nil {
		status.ExpiresAt = *resp.ExpiresAt
	}
	return status, nil
}

// Logout revokes the session on the server and clears it locally. The local
// session is cleared even when the server cannot be reached.
func (o *Orchestrator) Logout(ctx context.Context) error {
	saved, err := o.tokens.Load()
	if errors.Is(err, ErrNoSession) {
		o.Reset()
		return nil
	}
	if err != nil {
		return err
	}

	_, remoteErr := o.api.Auth(ctx, api.AuthRequest{Action: api.ActionLogout, SessionToken: saved.Token}, "")
	if remoteErr != nil {
		o.logger.Warn("Server logout failed, clearing local session", zap.Error(remoteErr))
	}
	o.forceLogout("logout")
	return remoteErr
}

// forceLogout clears the local session without waiting for a running step
func (o *Orchestrator) forceLogout(reason string) {
	o.mu.Lock()
	if err := o.tokens.Clear(); err != nil {
		o.logger.Error("Failed to clear saved session", zap.Error(err))
	}
	o.resetLocked()
	handlers := append([]func(string){}, o.onLogout...)
	o.mu.Unlock()

	o.logger.Info("Logged out", zap.String("reason", reason))
	for _, fn := range handlers {
		fn(reason)
	}
}

// fail counts a failed step against the flow it started in. The failure
// that reaches maxFailures resets the flow and is reported as
// ErrTooManyAttempts.
func (o *Orchestrator) fail(action string, gen uint64, err error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.gen != gen {
		o.logger.Debug("Step failed after reset", zap.String("action", action), zap.Error(err))
		return ErrFlowReset
	}

	o.state.FailedAttempts++
	o.logger.Debug("Step failed",
		zap.String("action", action),
		zap.Int("failed_attempts", o.state.FailedAttempts),
		zap.Error(err),
	)
	if o.state.FailedAttempts >= o.maxFailures {
		o.resetLocked()
		return ErrTooManyAttempts
	}
	return err
}

func newCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate anti-forgery token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
