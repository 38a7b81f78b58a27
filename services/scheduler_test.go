package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/models"
)

type fakeRecomputer struct {
	tenants  []int64
	run      func(ctx context.Context, tenantID int64) (int, error)
	mu       sync.Mutex
	attempts []int64
}

func (f *fakeRecomputer) FindActiveTenantIDs(ctx context.Context) []int64 {
	return f.tenants
}

func (f *fakeRecomputer) RecomputeForTenant(ctx context.Context, tenantID int64) (int, error) {
	f.mu.Lock()
	f.attempts = append(f.attempts, tenantID)
	f.mu.Unlock()
	return f.run(ctx, tenantID)
}

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	messages []interface{}
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.messages = append(p.messages, message)
	return nil
}

func TestRunOnceIsolatesTenantFailures(t *testing.T) {
	engine := &fakeRecomputer{
		tenants: []int64{1, 2, 3},
		run: func(ctx context.Context, tenantID int64) (int, error) {
			switch tenantID {
			case 1:
				return 0, &TenantComputeError{TenantID: 1, Err: errStoreDown}
			case 2:
				panic("corrupt scan row")
			}
			return 4, nil
		},
	}
	pub := &recordingPublisher{}
	s := NewScheduler(engine, pub, logger.NewNop(), SchedulerConfig{})

	summary := s.RunOnce(context.Background())

	if summary.TenantCount != 3 || summary.SuccessCount != 1 || summary.FailedCount != 2 {
		t.Errorf("summary = %+v, want 3 tenants, 1 success, 2 failed", summary)
	}
	if summary.TotalUpdated != 4 {
		t.Errorf("TotalUpdated = %d, want 4", summary.TotalUpdated)
	}
	if len(engine.attempts) != 3 {
		t.Errorf("attempted %v, want every tenant", engine.attempts)
	}
	if len(pub.channels) != 1 || pub.channels[0] != StatsRunChannel {
		t.Fatalf("published to %v, want one message on %s", pub.channels, StatsRunChannel)
	}
	if got, ok := pub.messages[0].(RunSummary); !ok || got.FailedCount != 2 {
		t.Errorf("published %+v", pub.messages[0])
	}
	if s.State() != StateIdle {
		t.Errorf("State = %s, want idle", s.State())
	}
}

func TestRunOnceNoTenants(t *testing.T) {
	engine := &fakeRecomputer{run: func(ctx context.Context, tenantID int64) (int, error) { return 0, nil }}
	pub := &recordingPublisher{}
	s := NewScheduler(engine, pub, logger.NewNop(), SchedulerConfig{})

	summary := s.RunOnce(context.Background())
	if summary.TenantCount != 0 || summary.Skipped {
		t.Errorf("summary = %+v", summary)
	}
	if len(pub.messages) != 1 {
		t.Errorf("an empty run should still publish a summary, got %d", len(pub.messages))
	}
}

func TestRunOnceSkipsWhileRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	engine := &fakeRecomputer{
		tenants: []int64{1},
		run: func(ctx context.Context, tenantID int64) (int, error) {
			close(started)
			<-release
			return 1, nil
		},
	}
	s := NewScheduler(engine, nil, logger.NewNop(), SchedulerConfig{})

	done := make(chan RunSummary)
	go func() { done <- s.RunOnce(context.Background()) }()
	<-started

	if s.State() != StateRunning {
		t.Errorf("State = %s, want running", s.State())
	}
	if second := s.RunOnce(context.Background()); !second.Skipped {
		t.Errorf("overlapping run = %+v, want skipped", second)
	}

	close(release)
	if first := <-done; first.SuccessCount != 1 {
		t.Errorf("first run = %+v", first)
	}
	if len(engine.attempts) != 1 {
		t.Errorf("attempts = %v, want one", engine.attempts)
	}
}

func TestRunOnceBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	engine := &fakeRecomputer{
		tenants: []int64{1, 2, 3, 4, 5, 6},
		run: func(ctx context.Context, tenantID int64) (int, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return 1, nil
		},
	}
	s := NewScheduler(engine, nil, logger.NewNop(), SchedulerConfig{Concurrency: 2})

	summary := s.RunOnce(context.Background())
	if summary.SuccessCount != 6 || summary.TotalUpdated != 6 {
		t.Errorf("summary = %+v", summary)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestRunOnceCancelledContext(t *testing.T) {
	engine := &fakeRecomputer{
		tenants: []int64{1, 2},
		run:     func(ctx context.Context, tenantID int64) (int, error) { return 1, nil },
	}
	s := NewScheduler(engine, nil, logger.NewNop(), SchedulerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary := s.RunOnce(ctx)
	if summary.FailedCount != 2 {
		t.Errorf("summary = %+v, want both tenants failed", summary)
	}
	if len(engine.attempts) != 0 {
		t.Errorf("attempts = %v, want none after cancellation", engine.attempts)
	}
}

func TestSchedulerStart(t *testing.T) {
	engine := &fakeRecomputer{run: func(ctx context.Context, tenantID int64) (int, error) { return 0, nil }}

	bad := NewScheduler(engine, nil, logger.NewNop(), SchedulerConfig{Spec: "not a schedule"})
	if err := bad.Start(context.Background()); err == nil {
		t.Error("expected error for invalid schedule")
	}

	s := NewScheduler(engine, nil, logger.NewNop(), SchedulerConfig{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	s.Stop()
	s.Stop()
}

func TestTenantComputeErrorUnwraps(t *testing.T) {
	err := &TenantComputeError{TenantID: 4, Err: &UpstreamUnavailableError{Source: "scan store", Err: errStoreDown}}
	if !errors.Is(err, errStoreDown) || !IsUpstreamUnavailable(err) {
		t.Errorf("error chain lost: %v", err)
	}
}

func TestRunOnceContinuesPastTimedOutTenant(t *testing.T) {
	scans := newFakeScans()
	scans.tenants = []int64{1, 2, 3}
	for _, id := range scans.tenants {
		scans.add(id, "cutting", cuttingSpans()...)
	}
	scans.hang[2] = true
	engine, stats := newTestEngine(t, scans)
	engine.cfg.TenantTimeout = 20 * time.Millisecond
	s := NewScheduler(engine, nil, logger.NewNop(), SchedulerConfig{Concurrency: 1})

	summary := s.RunOnce(context.Background())

	if summary.TenantCount != 3 || summary.SuccessCount != 2 || summary.FailedCount != 1 {
		t.Errorf("summary = %+v, want 3 tenants, 2 success, 1 failed", summary)
	}
	for _, id := range []int64{1, 3} {
		if got, _ := stats.Get(context.Background(), id, "cutting", models.ScanTypeProduction); got == nil || got.SampleCount != 3 {
			t.Errorf("tenant %d snapshot = %+v", id, got)
		}
	}
}
