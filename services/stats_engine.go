package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/models"
	"github.com/chenguojun06-star/fz66666-sub008/repos"
)

// ScanSource reads a tenant's historical scans. Implemented by repos.ScanReader.
type ScanSource interface {
	StageGroups(ctx context.Context, tenantID int64, since, until time.Time) ([]models.StageGroup, error)
	OrderSpans(ctx context.Context, tenantID int64, group models.StageGroup, since, until time.Time) ([]models.OrderSpan, error)
}

// TenantRegistry answers which tenants have recent activity.
type TenantRegistry interface {
	ActiveTenantIDs(ctx context.Context, since time.Time) ([]int64, error)
}

type StatsEngineConfig struct {
	LookbackDays  int
	TenantTimeout time.Duration
	// CacheTTL > 0 writes fresh rows through to the cache; 0 only evicts.
	CacheTTL time.Duration
}

// StatsEngine rebuilds StageStatistic rows from the last LookbackDays of scans.
// Each run fully replaces a tenant's snapshot; nothing is merged incrementally.
type StatsEngine struct {
	scans   ScanSource
	tenants TenantRegistry
	stats   repos.StatsRepo
	cache   statsCache
	log     *logger.Logger
	cfg     StatsEngineConfig
	now     func() time.Time
}

func NewStatsEngine(scans ScanSource, tenants TenantRegistry, stats repos.StatsRepo, cache *CacheService, baseLog *logger.Logger, cfg StatsEngineConfig) *StatsEngine {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 90
	}
	if cfg.TenantTimeout <= 0 {
		cfg.TenantTimeout = 2 * time.Minute
	}
	return &StatsEngine{
		scans:   scans,
		tenants: tenants,
		stats:   stats,
		cache:   cache,
		log:     baseLog.With("service", "StatsEngine"),
		cfg:     cfg,
		now:     time.Now,
	}
}

func (e *StatsEngine) window() (since, until, computedAt time.Time) {
	computedAt = e.now().UTC().Truncate(time.Second)
	return computedAt.AddDate(0, 0, -e.cfg.LookbackDays), computedAt, computedAt
}

// FindActiveTenantIDs never fails: registry errors are logged and yield no tenants.
func (e *StatsEngine) FindActiveTenantIDs(ctx context.Context) []int64 {
	since, _, _ := e.window()
	ids, err := e.tenants.ActiveTenantIDs(ctx, since)
	if err != nil {
		e.log.Error("list active tenants failed", "error", err)
		return nil
	}
	return ids
}

// RecomputeForTenant rewrites every stage group of one tenant and returns the number
// of rows written. Group failures are skipped; the tenant fails as a whole only when
// its groups cannot be listed, every group failed, or the tenant timeout elapsed.
func (e *StatsEngine) RecomputeForTenant(ctx context.Context, tenantID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.TenantTimeout)
	defer cancel()

	log := e.log.With("tenant_id", tenantID)
	since, until, computedAt := e.window()

	groups, err := e.scans.StageGroups(ctx, tenantID, since, until)
	if err != nil {
		return 0, &TenantComputeError{TenantID: tenantID, Err: &UpstreamUnavailableError{Source: "scan store", Err: err}}
	}

	updated, failed := 0, 0
	seen := make(map[models.StageGroup]bool, len(groups))
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return updated, &TenantComputeError{TenantID: tenantID, Err: fmt.Errorf("timed out after %d groups: %w", updated+failed, err)}
		}
		seen[group] = true
		if err := e.recomputeGroup(ctx, tenantID, group, since, until, computedAt); err != nil {
			failed++
			statsGroupsFailed.Inc()
			log.Warn("stage group skipped", "stage", group.StageName, "scan_type", group.ScanType, "error", err)
			continue
		}
		updated++
		statsGroupsUpdated.Inc()
	}

	if err := ctx.Err(); err != nil {
		return updated, &TenantComputeError{TenantID: tenantID, Err: fmt.Errorf("timed out after %d groups: %w", updated+failed, err)}
	}
	if failed > 0 && updated == 0 {
		return 0, &TenantComputeError{TenantID: tenantID, Err: fmt.Errorf("all %d stage groups failed", failed)}
	}

	retired, err := e.retireStale(ctx, tenantID, seen, computedAt)
	if err != nil {
		log.Warn("retiring stale stage rows failed", "error", err)
	}
	updated += retired

	log.Info("tenant stats recomputed", "groups", len(groups), "updated", updated, "failed", failed, "retired", retired)
	return updated, nil
}

func (e *StatsEngine) recomputeGroup(ctx context.Context, tenantID int64, group models.StageGroup, since, until, computedAt time.Time) error {
	spans, err := e.scans.OrderSpans(ctx, tenantID, group, since, until)
	if err != nil {
		return &UpstreamUnavailableError{Source: "scan store", Err: err}
	}
	return e.write(ctx, AggregateStage(tenantID, group, spans, computedAt))
}

// retireStale zeroes rows whose group no longer has scans inside the window, so a
// snapshot never outlives its data.
func (e *StatsEngine) retireStale(ctx context.Context, tenantID int64, seen map[models.StageGroup]bool, computedAt time.Time) (int, error) {
	existing, err := e.stats.ListByTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	retired := 0
	for _, row := range existing {
		group := models.StageGroup{StageName: row.StageName, ScanType: row.ScanType}
		if seen[group] || row.SampleCount == 0 {
			continue
		}
		empty := emptyStatistic(tenantID, group, computedAt)
		if err := e.write(ctx, empty); err != nil {
			return retired, err
		}
		retired++
	}
	return retired, nil
}

func (e *StatsEngine) write(ctx context.Context, row *models.StageStatistic) error {
	if err := e.stats.Upsert(ctx, row); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", row.StageName, row.ScanType, err)
	}
	key := statsCacheKey(row.TenantID, row.StageName, row.ScanType)
	var err error
	if e.cfg.CacheTTL > 0 {
		err = e.cache.Set(ctx, key, row, e.cfg.CacheTTL)
	} else {
		err = e.cache.Delete(ctx, key)
	}
	if err != nil {
		e.log.Debug("stats cache refresh failed", "tenant_id", row.TenantID, "stage", row.StageName, "error", err)
	}
	return nil
}

// AggregateStage turns per-order spans into one snapshot. An order qualifies when it
// spans a positive duration and scanned a positive quantity.
func AggregateStage(tenantID int64, group models.StageGroup, spans []models.OrderSpan, computedAt time.Time) *models.StageStatistic {
	perUnit := make([]float64, 0, len(spans))
	totals := make([]float64, 0, len(spans))
	for _, span := range spans {
		minutes := span.Duration().Minutes()
		if span.Quantity <= 0 || minutes <= 0 {
			continue
		}
		perUnit = append(perUnit, minutes/float64(span.Quantity))
		totals = append(totals, minutes)
	}

	row := emptyStatistic(tenantID, group, computedAt)
	n := len(perUnit)
	if n == 0 {
		return row
	}

	minUnit := round(floats.Min(perUnit), 2)
	maxUnit := round(floats.Max(perUnit), 2)
	avgUnit := round(stat.Mean(perUnit, nil), 2)
	// float summation can land a hair outside the observed range
	avgUnit = math.Min(math.Max(avgUnit, minUnit), maxUnit)

	row.SampleCount = n
	row.MinMinutesPerUnit = minUnit
	row.AvgMinutesPerUnit = avgUnit
	row.MaxMinutesPerUnit = maxUnit
	row.AvgStageTotalMinutes = round(stat.Mean(totals, nil), 2)
	row.ConfidenceScore = round(ConfidenceScore(n), 4)
	return row
}

func emptyStatistic(tenantID int64, group models.StageGroup, computedAt time.Time) *models.StageStatistic {
	return &models.StageStatistic{
		TenantID:         tenantID,
		StageName:        group.StageName,
		ScanType:         group.ScanType,
		LastComputedTime: computedAt,
	}
}
