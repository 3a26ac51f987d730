package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Watchdog closes sync log entries stuck in the running state, so a
// crashed or timed-out pass never appears in-flight forever
type Watchdog struct {
	logs      SyncLogStore
	threshold time.Duration
	interval  time.Duration
	logger    *logrus.Logger
}

// NewWatchdog creates a watchdog
func NewWatchdog(logs SyncLogStore, threshold, interval time.Duration, logger *logrus.Logger) *Watchdog {
	return &Watchdog{
		logs:      logs,
		threshold: threshold,
		interval:  interval,
		logger:    logger,
	}
}

// Start blocks until the context is cancelled
func (w *Watchdog) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Watchdog) sweep(ctx context.Context) {
	closed, err := w.logs.CloseStale(ctx, time.Now().UTC().Add(-w.threshold))
	if err != nil {
		w.logger.Errorf("Watchdog sweep failed: %v", err)
		return
	}
	if closed > 0 {
		w.logger.Warnf("Watchdog closed %d stale running sync entries", closed)
	}
}
