// Package sweeper implements the retention sweep over externally aggregated
// job and scholarship postings. Internal postings are never touched; external
// postings are deleted once their expiration is older than the grace period.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"talentsphere/internal/types"
)

// PostingStore is the posting access the sweeper needs. Satisfied by
// db.PostingRepository.
type PostingStore interface {
	CountStats(ctx context.Context, kind types.PostingKind, cutoff time.Time) (types.PostingStats, error)
	DeleteExpiredExternal(ctx context.Context, kind types.PostingKind, cutoff time.Time) (int64, error)
	ListExpiringExternal(ctx context.Context, kind types.PostingKind, cutoff, windowEnd time.Time, limit int) ([]types.ExpiringPosting, error)
}

// Notifier publishes expiry warnings. Satisfied by dispatch.Publisher via a
// small adapter in cmd wiring.
type Notifier interface {
	Notify(ctx context.Context, n *types.Notification) error
}

// Config tunes one Sweeper instance.
type Config struct {
	GracePeriodDays int
	WarningWindow   time.Duration
}

// Status is the live service state served by the admin status endpoint.
type Status struct {
	Running         bool       `json:"running"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	LastRunDeleted  int64      `json:"last_run_deleted"`
	LastRunError    string     `json:"last_run_error,omitempty"`
	GracePeriodDays int        `json:"grace_period_days"`
}

// Sweeper deletes expired external postings and warns owners of postings
// nearing deletion. A mutex serializes runs; overlapping triggers get a
// conflict error instead of a second concurrent sweep.
type Sweeper struct {
	postings PostingStore
	notifier Notifier
	clock    types.Clock
	logger   types.Logger
	cfg      Config

	mu       sync.Mutex
	running  bool
	lastRun  *time.Time
	lastDel  int64
	lastFail string
}

// New creates a Sweeper.
func New(postings PostingStore, notifier Notifier, clock types.Clock, logger types.Logger, cfg Config) *Sweeper {
	if cfg.GracePeriodDays <= 0 {
		cfg.GracePeriodDays = 30
	}
	if cfg.WarningWindow <= 0 {
		cfg.WarningWindow = 72 * time.Hour
	}
	return &Sweeper{
		postings: postings,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
	}
}

// ComputeCutoff derives the deletion cutoff from the current time: postings
// whose expires_at is strictly before now minus the grace period are
// eligible. Exact equality keeps the posting alive.
func ComputeCutoff(now time.Time, gracePeriodDays int) time.Time {
	return now.AddDate(0, 0, -gracePeriodDays)
}

// CollectStats builds the read-only eligibility report for both tables.
func (s *Sweeper) CollectStats(ctx context.Context) (*types.CleanupStats, error) {
	cutoff := ComputeCutoff(s.clock.Now(), s.cfg.GracePeriodDays)

	jobs, err := s.postings.CountStats(ctx, types.PostingJob, cutoff)
	if err != nil {
		return nil, err
	}
	scholarships, err := s.postings.CountStats(ctx, types.PostingScholarship, cutoff)
	if err != nil {
		return nil, err
	}

	return &types.CleanupStats{
		Jobs:            jobs,
		Scholarships:    scholarships,
		CutoffDate:      cutoff,
		GracePeriodDays: s.cfg.GracePeriodDays,
	}, nil
}

// SweepJobs deletes eligible external jobs and returns the count.
func (s *Sweeper) SweepJobs(ctx context.Context) (int64, error) {
	return s.sweepKind(ctx, types.PostingJob)
}

// SweepScholarships deletes eligible external scholarships and returns the
// count.
func (s *Sweeper) SweepScholarships(ctx context.Context) (int64, error) {
	return s.sweepKind(ctx, types.PostingScholarship)
}

func (s *Sweeper) sweepKind(ctx context.Context, kind types.PostingKind) (int64, error) {
	cutoff := ComputeCutoff(s.clock.Now(), s.cfg.GracePeriodDays)
	deleted, err := s.postings.DeleteExpiredExternal(ctx, kind, cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.Info("swept expired postings",
		"kind", string(kind),
		"deleted", deleted,
		"cutoff", cutoff.Format(time.RFC3339),
	)
	return deleted, nil
}

// Run executes one full sweep over both tables. A failure in one table does
// not abort the other; the summary carries whatever succeeded and the first
// error is returned. Concurrent runs are rejected with a conflict error.
func (s *Sweeper) Run(ctx context.Context) (*types.SweepSummary, error) {
	if !s.tryStart() {
		return nil, types.NewAppError(types.ErrCodeConflictSweepRunning, "a sweep is already in progress", nil)
	}

	summary := &types.SweepSummary{}
	var firstErr error

	jobs, err := s.SweepJobs(ctx)
	if err != nil {
		s.logger.Error("job sweep failed", "error", err.Error())
		firstErr = err
	} else {
		summary.JobsDeleted = jobs
	}

	scholarships, err := s.SweepScholarships(ctx)
	if err != nil {
		s.logger.Error("scholarship sweep failed", "error", err.Error())
		if firstErr == nil {
			firstErr = err
		}
	} else {
		summary.ScholarshipsDeleted = scholarships
	}

	summary.TotalDeleted = summary.JobsDeleted + summary.ScholarshipsDeleted
	s.finish(summary.TotalDeleted, firstErr)

	s.logger.Info("sweep complete",
		"jobs_deleted", summary.JobsDeleted,
		"scholarships_deleted", summary.ScholarshipsDeleted,
		"total_deleted", summary.TotalDeleted,
	)
	return summary, firstErr
}

// Status reports the current service state.
func (s *Sweeper) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:         s.running,
		LastRunAt:       s.lastRun,
		LastRunDeleted:  s.lastDel,
		LastRunError:    s.lastFail,
		GracePeriodDays: s.cfg.GracePeriodDays,
	}
}

func (s *Sweeper) tryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Sweeper) finish(deleted int64, err error) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.lastRun = &now
	s.lastDel = deleted
	if err != nil {
		s.lastFail = err.Error()
	} else {
		s.lastFail = ""
	}
}

// WarnExpiring notifies owners of external postings that will become
// eligible for deletion within the warning window. Each posting is warned at
// most once; one owner's failure does not block the rest.
//
// Returns the number of warnings published.
func (s *Sweeper) WarnExpiring(ctx context.Context) (int, error) {
	now := s.clock.Now()
	cutoff := ComputeCutoff(now, s.cfg.GracePeriodDays)
	windowEnd := cutoff.Add(s.cfg.WarningWindow)

	warned := 0
	for _, kind := range []types.PostingKind{types.PostingJob, types.PostingScholarship} {
		postings, err := s.postings.ListExpiringExternal(ctx, kind, cutoff, windowEnd, 100)
		if err != nil {
			return warned, err
		}

		for _, p := range postings {
			deleteAt := p.ExpiresAt.AddDate(0, 0, s.cfg.GracePeriodDays)
			n := &types.Notification{
				UserID:    p.OwnerID,
				Category:  types.CategoryJobExpiryWarning,
				Priority:  types.PriorityHigh,
				Title:     fmt.Sprintf("%q will be removed soon", p.Title),
				Message: fmt.Sprintf(
					"The external %s posting %q expired on %s and will be permanently removed on %s.",
					kind, p.Title,
					p.ExpiresAt.Format("January 2, 2006"),
					deleteAt.Format("January 2, 2006"),
				),
				SendEmail: true,
			}
			if err := s.notifier.Notify(ctx, n); err != nil {
				s.logger.Error("failed to publish expiry warning",
					"posting_id", p.ID,
					"owner_id", p.OwnerID,
					"error", err.Error(),
				)
				continue
			}
			warned++
		}
	}

	if warned > 0 {
		s.logger.Info("published expiry warnings", "count", warned)
	}
	return warned, nil
}
