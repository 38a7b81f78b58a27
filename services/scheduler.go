package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"
	"golang.org/x/sync/errgroup"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
)

type SchedulerState int32

const (
	StateIdle SchedulerState = iota
	StateRunning
)

func (s SchedulerState) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// StatsRecomputer is the slice of StatsEngine the scheduler drives.
type StatsRecomputer interface {
	FindActiveTenantIDs(ctx context.Context) []int64
	RecomputeForTenant(ctx context.Context, tenantID int64) (int, error)
}

// Publisher receives the completion summary of each run.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

type SchedulerConfig struct {
	Spec        string
	Concurrency int
}

// RunSummary is the one outcome a sweep emits, even when every tenant failed.
type RunSummary struct {
	StartedAt    time.Time     `json:"startedAt"`
	TenantCount  int           `json:"tenantCount"`
	SuccessCount int           `json:"successCount"`
	FailedCount  int           `json:"failedCount"`
	TotalUpdated int           `json:"totalUpdated"`
	Duration     time.Duration `json:"durationNs"`
	Skipped      bool          `json:"skipped,omitempty"`
}

type tenantOutcome struct {
	updated int
	err     error
}

type Scheduler struct {
	engine    StatsRecomputer
	publisher Publisher
	log       *logger.Logger
	cfg       SchedulerConfig
	state     atomic.Int32
	cron      *cron.Cron
}

func NewScheduler(engine StatsRecomputer, publisher Publisher, baseLog *logger.Logger, cfg SchedulerConfig) *Scheduler {
	if cfg.Spec == "" {
		cfg.Spec = "0 30 2 * * *"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Scheduler{
		engine:    engine,
		publisher: publisher,
		log:       baseLog.With("service", "Scheduler"),
		cfg:       cfg,
	}
}

func (s *Scheduler) State() SchedulerState {
	return SchedulerState(s.state.Load())
}

// Start registers the daily trigger. Runs use ctx, so cancelling it aborts an
// in-flight sweep at the next tenant boundary.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New()
	if err := c.AddFunc(s.cfg.Spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid stats schedule %q: %w", s.cfg.Spec, err)
	}
	c.Start()
	s.cron = c
	s.log.Info("stats scheduler started", "spec", s.cfg.Spec, "concurrency", s.cfg.Concurrency)
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

// RunOnce performs one sweep over the active tenants. A trigger that arrives while a
// sweep is running is skipped.
func (s *Scheduler) RunOnce(ctx context.Context) RunSummary {
	start := time.Now()
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		s.log.Warn("stats run already in progress, trigger skipped")
		return RunSummary{StartedAt: start, Skipped: true}
	}
	defer s.state.Store(int32(StateIdle))

	tenants := s.engine.FindActiveTenantIDs(ctx)
	outcomes := make([]tenantOutcome, len(tenants))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, tenantID := range tenants {
		g.Go(func() error {
			outcomes[i] = s.runTenant(ctx, tenantID)
			return nil
		})
	}
	_ = g.Wait()

	summary := RunSummary{StartedAt: start, TenantCount: len(tenants)}
	for i, out := range outcomes {
		if out.err != nil {
			summary.FailedCount++
			statsTenantRuns.WithLabelValues("failed").Inc()
			s.log.Error("tenant stats recompute failed", "tenant_id", tenants[i], "error", out.err)
			continue
		}
		summary.SuccessCount++
		summary.TotalUpdated += out.updated
		statsTenantRuns.WithLabelValues("success").Inc()
	}
	summary.Duration = time.Since(start)
	statsRunDuration.Observe(summary.Duration.Seconds())

	s.log.Info("stats run completed",
		"tenants", summary.TenantCount,
		"success", summary.SuccessCount,
		"failed", summary.FailedCount,
		"updated", summary.TotalUpdated,
		"duration", summary.Duration.String(),
	)
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, StatsRunChannel, summary); err != nil {
			s.log.Warn("publish stats run summary failed", "error", err)
		}
	}
	return summary
}

// runTenant is the per-tenant error boundary; panics become failures.
func (s *Scheduler) runTenant(ctx context.Context, tenantID int64) (out tenantOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = tenantOutcome{err: &TenantComputeError{TenantID: tenantID, Err: fmt.Errorf("panic: %v", r)}}
		}
	}()
	if err := ctx.Err(); err != nil {
		return tenantOutcome{err: &TenantComputeError{TenantID: tenantID, Err: err}}
	}
	updated, err := s.engine.RecomputeForTenant(ctx, tenantID)
	if err != nil {
		return tenantOutcome{updated: updated, err: err}
	}
	return tenantOutcome{updated: updated}
}
