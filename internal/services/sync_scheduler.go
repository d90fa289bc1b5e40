package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"finsync/internal/core"
	"finsync/internal/log"
)

// SchedulerConfig holds configuration for the sync scheduler
type SchedulerConfig struct {
	// Interval is how often accounts are checked for dueness (default: 15m)
	Interval time.Duration

	// Parallelism caps concurrent account syncs (default: 4)
	Parallelism int
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:    15 * time.Minute,
		Parallelism: 4,
	}
}

// SyncScheduler triggers scheduled syncs for accounts whose frequency says
// they are due.
type SyncScheduler struct {
	accounts AccountLister
	syncer   AccountSyncer
	config   SchedulerConfig
	logger   *log.Logger
	now      func() time.Time

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncScheduler(accounts AccountLister, syncer AccountSyncer, config SchedulerConfig, logger *log.Logger) *SyncScheduler {
	defaults := DefaultSchedulerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Parallelism <= 0 {
		config.Parallelism = defaults.Parallelism
	}
	return &SyncScheduler{
		accounts: accounts,
		syncer:   syncer,
		config:   config,
		logger:   log.Or(logger, log.ComponentScheduler),
		now:      time.Now,
	}
}

// Start begins the scheduling loop. Returns an error if already running.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sync scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.runLoop(ctx, stopCh, doneCh)

	s.logger.InfoContext(ctx, "Sync scheduler started",
		"interval", s.config.Interval,
		"parallelism", s.config.Parallelism)
	return nil
}

// Stop signals the loop and waits for the current round to finish.
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.logger.InfoContext(ctx, "Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Sync scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *SyncScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *SyncScheduler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Process immediately on startup
	s.RunOnce(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce syncs every due account and returns how many syncs were started.
// Different accounts run in parallel up to the configured limit; a failed
// sync is logged and never stops the round.
func (s *SyncScheduler) RunOnce(ctx context.Context) int {
	accounts, err := s.accounts.ListActiveAccounts(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list accounts", log.FieldError, err)
		return 0
	}

	now := s.now()
	var due []core.LinkedAccount
	for _, a := range accounts {
		ok, err := IsAccountDue(a, now)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping account with unknown frequency",
				log.FieldAccountID, a.ID, "frequency", string(a.SyncFrequency))
			continue
		}
		if ok {
			due = append(due, a)
		}
	}
	if len(due) == 0 {
		return 0
	}

	s.logger.DebugContext(ctx, "Running scheduled syncs", "due", len(due))

	var g errgroup.Group
	g.SetLimit(s.config.Parallelism)
	for _, a := range due {
		g.Go(func() error {
			s.syncOne(ctx, a)
			return nil
		})
	}
	_ = g.Wait()
	return len(due)
}

func (s *SyncScheduler) syncOne(ctx context.Context, a core.LinkedAccount) {
	outcome, err := s.syncer.SyncAccount(ctx, a.UserID, a.ID, SyncOptions{Trigger: core.TriggerScheduled})
	if err != nil {
		if core.IsCode(err, core.CodeSyncInProgress) {
			s.logger.DebugContext(ctx, "Account already syncing", log.FieldAccountID, a.ID)
			return
		}
		s.logger.WarnContext(ctx, "Scheduled sync failed",
			log.FieldAccountID, a.ID,
			log.FieldErrorCode, core.CodeOf(err),
			log.FieldError, err)
		return
	}
	s.logger.InfoContext(ctx, "Scheduled sync finished",
		log.FieldAccountID, a.ID,
		log.FieldRunID, outcome.RunID,
		log.FieldTransactions, outcome.TotalTransactions)
}
