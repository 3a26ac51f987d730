package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SyncScheduler runs periodic reconciliation ticks over all enabled
// servers. Jobs for different servers run in parallel on a worker pool;
// each pass is cancellable as a unit through its own timeout.
type SyncScheduler struct {
	sync     *SyncService
	servers  ServerStore
	interval time.Duration
	timeout  time.Duration
	workers  int
	logger   *logrus.Logger
}

// NewSyncScheduler creates a scheduler
func NewSyncScheduler(syncService *SyncService, servers ServerStore, interval, timeout time.Duration, workers int, logger *logrus.Logger) *SyncScheduler {
	if workers <= 0 {
		workers = 1
	}
	return &SyncScheduler{
		sync:     syncService,
		servers:  servers,
		interval: interval,
		timeout:  timeout,
		workers:  workers,
		logger:   logger,
	}
}

// Start blocks until the context is cancelled, running one pass
// immediately and then one per interval
func (s *SyncScheduler) Start(ctx context.Context) {
	s.logger.Infof("Sync scheduler started (interval %s, %d workers)", s.interval, s.workers)

	s.runPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sync scheduler stopped")
			return
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

// runPass dispatches one job per enabled server to the worker pool
func (s *SyncScheduler) runPass(ctx context.Context) {
	servers, err := s.servers.ListEnabled(ctx)
	if err != nil {
		s.logger.Errorf("Failed to list servers for sync pass: %v", err)
		return
	}
	if len(servers) == 0 {
		return
	}

	jobs := make(chan uint)
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for serverID := range jobs {
				s.syncOne(ctx, serverID)
			}
		}()
	}

dispatch:
	for _, server := range servers {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- server.ID:
		}
	}
	close(jobs)
	wg.Wait()
}

func (s *SyncScheduler) syncOne(ctx context.Context, serverID uint) {
	passCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.sync.SyncServer(passCtx, serverID); err != nil {
		s.logger.Errorf("Reconciliation of server %d failed: %v", serverID, err)
	}
}
