package freshness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dot5enko/mvstore/catalog"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSchedule    = "@every 5m"
	DefaultConcurrency = 4
)

type SweepReport struct {
	Checked int
	Expired int
	Removed int
	Failed  int
	// expired when listed, refreshed or removed by someone else before
	// the sweep got to them
	Skipped int

	Duration time.Duration
}

// Sweeper deletes expired views. For every expired view the catalog entry
// goes first so no new reader can open it, then the cluster copies, then the
// local files. Readers already holding a handle may finish or fail
// depending on the filesystem.
type Sweeper struct {
	policy  Policy
	catalog catalog.Catalog
	cluster catalog.ClusterCoordinator
	logger  *slog.Logger

	concurrency int
	guard       ViewGuard

	// held by the scheduled sweep
	sweeping sync.Mutex

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// ViewGuard serializes the removal of a view with other writers of the same
// view. The returned func releases it.
type ViewGuard func(name string) (release func())

var errViewChanged = errors.New("view changed since it was listed")

func NewSweeper(policy Policy, cat catalog.Catalog, cluster catalog.ClusterCoordinator, logger *slog.Logger) *Sweeper {
	if cluster == nil {
		cluster = catalog.LocalOnly{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		policy:      policy,
		catalog:     cat,
		cluster:     cluster,
		logger:      logger,
		concurrency: DefaultConcurrency,
	}
}

// SetConcurrency bounds how many views are removed at once.
func (s *Sweeper) SetConcurrency(n int) {
	if n <= 0 {
		n = 1
	}
	s.concurrency = n
}

// SetViewGuard makes every removal run under guard.
func (s *Sweeper) SetViewGuard(guard ViewGuard) {
	s.guard = guard
}

func (s *Sweeper) Policy() Policy {
	return s.policy
}

// Cleanup runs one sweep. Failures of a single view are logged and counted,
// the sweep goes on with the rest. Only a failure to list the catalog is
// returned.
func (s *Sweeper) Cleanup(ctx context.Context) (SweepReport, error) {
	started := time.Now()
	var report SweepReport

	if !s.policy.ExpirationEnabled() {
		return report, nil
	}

	entries, err := s.catalog.List(ctx)
	if err != nil {
		return report, fmt.Errorf("unable to list materialized views: %w", err)
	}

	report.Checked = len(entries)

	var expired []catalog.Entry
	for _, e := range entries {
		if s.policy.IsExpired(e.LastUpdate) {
			expired = append(expired, e)
		}
	}
	report.Expired = len(expired)

	var counters sync.Mutex

	var group errgroup.Group
	group.SetLimit(s.concurrency)

	for idx, entry := range expired {
		if ctx.Err() != nil {
			s.logger.Warn("sweep interrupted", "error", ctx.Err(), "skipped", len(expired)-idx)
			break
		}

		group.Go(func() error {
			removeErr := s.remove(ctx, entry)

			counters.Lock()
			switch {
			case errors.Is(removeErr, errViewChanged):
				report.Skipped++
			case removeErr != nil:
				report.Failed++
			default:
				report.Removed++
			}
			counters.Unlock()

			// errors never abort the group
			return nil
		})
	}

	group.Wait()

	report.Duration = time.Since(started)

	return report, nil
}

func (s *Sweeper) remove(ctx context.Context, entry catalog.Entry) error {
	log := s.logger.With("mv", entry.Name, "last_update", entry.LastUpdate)

	if s.guard != nil {
		release := s.guard(entry.Name)
		defer release()
	}

	current, ok := s.catalog.Get(entry.Name)
	if !ok || current.Uid != entry.Uid || !s.policy.IsExpired(current.LastUpdate) {
		log.Info("expired mv changed during sweep, skipped")
		return errViewChanged
	}

	if err := s.catalog.Remove(ctx, entry.Name); err != nil {
		log.Warn("unable to remove expired mv from catalog", "error", err)
		return err
	}

	var failed error

	if err := s.cluster.DeleteClusterMV(ctx, entry.Name); err != nil {
		log.Warn("cluster removal of expired mv failed", "error", err)
		failed = err
	}

	if err := s.catalog.DeleteStorage(ctx, entry); err != nil {
		log.Warn("unable to delete storage of expired mv", "error", err)
		failed = err
	}

	if failed == nil {
		log.Info("removed expired mv", "segments", len(entry.Segments))
	}

	return failed
}

// Start runs Cleanup on schedule (cron syntax or @every), DefaultSchedule
// when empty.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper already running")
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		s.scheduledSweep()
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	c.Start()

	s.cron = c
	s.running = true

	s.logger.Info("mv sweeper started", "schedule", schedule, "policy", s.policy.String())

	return nil
}

// scheduledSweep runs Cleanup unless the previous run is still going.
func (s *Sweeper) scheduledSweep() bool {
	if !s.sweeping.TryLock() {
		s.logger.Warn("previous mv sweep still running, skipped")
		return false
	}
	defer s.sweeping.Unlock()

	report, err := s.Cleanup(context.Background())
	if err != nil {
		s.logger.Error("mv sweep failed", "error", err)
		return true
	}
	if report.Expired > 0 {
		s.logger.Info("mv sweep finished",
			"checked", report.Checked,
			"expired", report.Expired,
			"removed", report.Removed,
			"skipped", report.Skipped,
			"failed", report.Failed,
			"took", report.Duration,
		)
	}

	return true
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	<-s.cron.Stop().Done()

	s.cron = nil
	s.running = false

	s.logger.Info("mv sweeper stopped")
}
