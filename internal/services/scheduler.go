package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/qzplatform/qz-service/internal/models"
	"github.com/qzplatform/qz-service/internal/repositories"
)

// TickReport summarises one poller pass
type TickReport struct {
	Due      int `json:"due"`
	Claimed  int `json:"claimed"`
	Executed int `json:"executed"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
}

// Scheduler executes deferred email assignments once their time has come.
//
// Each due test is claimed with a conditional write (enabled true -> false)
// before anything is sent, so a claim lost to a concurrent writer skips the
// test. Sends that fail are logged and not retried.
type Scheduler struct {
	repo     repositories.Repository
	db       *gorm.DB
	resolver *AssignmentResolver
	logger   *slog.Logger
	interval time.Duration
	now      Clock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
}

func NewScheduler(repo repositories.Repository, db *gorm.DB, resolver *AssignmentResolver, logger *slog.Logger, interval time.Duration, now Clock) *Scheduler {
	return &Scheduler{
		repo:     repo,
		db:       db,
		resolver: resolver,
		logger:   logger.With("component", "scheduler"),
		interval: interval,
		now:      now,
	}
}

// Start runs the poller until ctx is cancelled or Stop is called
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("Scheduler started", "interval", s.interval.String())
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Scheduler stopped")
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight tick to finish
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick performs one pass. A tick that starts while another is still running
// returns immediately.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	var report TickReport
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("Previous tick still running, skipping")
		return report
	}
	defer s.running.Store(false)

	now := s.now()
	due, err := s.repo.Test().ListDueScheduledAssignments(ctx, s.db, now)
	if err != nil {
		s.logger.Error("Failed to list due assignments", "error", err)
		return report
	}
	report.Due = len(due)

	for _, test := range due {
		if ctx.Err() != nil {
			break
		}

		claimed, err := s.repo.Test().ClaimScheduledAssignment(ctx, s.db, test.ID)
		if err != nil {
			s.logger.Error("Failed to claim scheduled assignment", "test_id", test.ID, "error", err)
			continue
		}
		if !claimed {
			s.logger.Info("Scheduled assignment claimed elsewhere", "test_id", test.ID)
			continue
		}
		report.Claimed++

		// Only email invitations are deferred; other methods just lose the flag
		if test.Assignment.Method != models.AssignmentEmail {
			s.logger.Info("Scheduled assignment cleared without sending", "test_id", test.ID, "method", test.Assignment.Method)
			continue
		}

		link, err := s.resolver.MintLink(test, models.LinkRestricted)
		if err != nil {
			s.logger.Error("Cannot mint invitation link", "test_id", test.ID, "error", err)
			continue
		}

		delivery := s.resolver.SendInvitations(ctx, test, link)
		report.Executed++
		report.Sent += delivery.Sent
		report.Failed += delivery.Failed
		s.resolver.publishExecuted(ctx, test, true, delivery)

		s.logger.Info("Scheduled assignment executed",
			"test_id", test.ID, "sent", delivery.Sent, "failed", delivery.Failed)
	}
	return report
}
