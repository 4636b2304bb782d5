package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/runevault/storefront-backend/internal/storage"
	"github.com/runevault/storefront-backend/pkg/config"
)

// SessionCleanupWorker periodically deletes expired admin sessions.
// Validation never deletes, so without it expired sessions stay in storage.
type SessionCleanupWorker struct {
	config config.SessionCleanupConfig
	store  storage.Store
	logger *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSessionCleanupWorker creates a new session cleanup worker
func NewSessionCleanupWorker(cfg config.SessionCleanupConfig, store storage.Store, logger *zap.Logger) *SessionCleanupWorker {
	cfg.SetDefaults()
	return &SessionCleanupWorker{
		config: cfg,
		store:  store,
		logger: logger.Named("session-cleanup"),
		now:    time.Now,
	}
}

// Start begins the cleanup worker in the background
func (w *SessionCleanupWorker) Start() {
	if !w.config.Enabled {
		w.logger.Info("Session cleanup worker disabled")
		return
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.wg.Add(1)

	go w.run()

	w.logger.Info("Session cleanup worker started",
		zap.Int("interval_seconds", w.config.IntervalSeconds),
	)
}

// Stop gracefully stops the cleanup worker
func (w *SessionCleanupWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("Session cleanup worker stopped")
}

func (w *SessionCleanupWorker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(time.Duration(w.config.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	// Run once immediately on startup
	w.cleanup()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.cleanup()
		}
	}
}

func (w *SessionCleanupWorker) cleanup() {
	ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
	defer cancel()

	n, err := w.RunOnce(ctx)
	if err != nil {
		w.logger.Error("Failed to cleanup expired sessions", zap.Error(err))
		return
	}

	w.logger.Debug("Completed session cleanup pass", zap.Int64("deleted", n))
}

// RunOnce runs a single cleanup pass and reports how many sessions it removed
func (w *SessionCleanupWorker) RunOnce(ctx context.Context) (int64, error) {
	return w.store.Sessions().DeleteExpired(ctx, w.now())
}
