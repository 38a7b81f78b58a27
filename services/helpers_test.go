package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/models"
	"github.com/chenguojun06-star/fz66666-sub008/repos"
)

var errStoreDown = errors.New("connection refused")

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repos.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	if err := repos.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func nopCache() *CacheService {
	return NewCacheServiceWithClient(nil, logger.NewNop())
}

// memCache is an in-process stand-in for the Redis snapshot cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *memCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = raw
	return true, nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

type spanKey struct {
	tenantID int64
	group    models.StageGroup
}

// fakeScans serves canned scan history per tenant and group.
type fakeScans struct {
	tenants   []int64
	tenantErr error
	groups    map[int64][]models.StageGroup
	groupErr  map[int64]error
	spans     map[spanKey][]models.OrderSpan
	spanErr   map[spanKey]error
	// hang makes OrderSpans wait for the caller's deadline.
	hang map[int64]bool
}

func newFakeScans() *fakeScans {
	return &fakeScans{
		groups:   make(map[int64][]models.StageGroup),
		groupErr: make(map[int64]error),
		spans:    make(map[spanKey][]models.OrderSpan),
		spanErr:  make(map[spanKey]error),
		hang:     make(map[int64]bool),
	}
}

func (f *fakeScans) add(tenantID int64, stage string, spans ...models.OrderSpan) {
	group := models.StageGroup{StageName: stage, ScanType: models.ScanTypeProduction}
	f.groups[tenantID] = append(f.groups[tenantID], group)
	f.spans[spanKey{tenantID, group}] = spans
}

func (f *fakeScans) ActiveTenantIDs(ctx context.Context, since time.Time) ([]int64, error) {
	return f.tenants, f.tenantErr
}

func (f *fakeScans) StageGroups(ctx context.Context, tenantID int64, since, until time.Time) ([]models.StageGroup, error) {
	if err := f.groupErr[tenantID]; err != nil {
		return nil, err
	}
	return f.groups[tenantID], nil
}

func (f *fakeScans) OrderSpans(ctx context.Context, tenantID int64, group models.StageGroup, since, until time.Time) ([]models.OrderSpan, error) {
	if f.hang[tenantID] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	key := spanKey{tenantID, group}
	if err := f.spanErr[key]; err != nil {
		return nil, err
	}
	return f.spans[key], nil
}

// span builds an order that took minutes to scan qty units.
func span(orderID string, start time.Time, minutes, qty int) models.OrderSpan {
	return models.OrderSpan{
		OrderID:   orderID,
		FirstScan: start,
		LastScan:  start.Add(time.Duration(minutes) * time.Minute),
		Quantity:  int64(qty),
	}
}

// failingStatsRepo simulates an unreachable stats store.
type failingStatsRepo struct{}

func (failingStatsRepo) Upsert(ctx context.Context, stat *models.StageStatistic) error {
	return errStoreDown
}

func (failingStatsRepo) Get(ctx context.Context, tenantID int64, stageName, scanType string) (*models.StageStatistic, error) {
	return nil, errStoreDown
}

func (failingStatsRepo) ListByTenant(ctx context.Context, tenantID int64) ([]models.StageStatistic, error) {
	return nil, errStoreDown
}

// failingPredictionRepo simulates an unreachable prediction log.
type failingPredictionRepo struct{}

func (failingPredictionRepo) Create(ctx context.Context, rec *models.PredictionRecord) error {
	return errStoreDown
}

func (failingPredictionRepo) Get(ctx context.Context, tenantID int64, predictionID string) (*models.PredictionRecord, error) {
	return nil, errStoreDown
}

func (failingPredictionRepo) List(ctx context.Context, filter repos.PredictionFilter) ([]models.PredictionRecord, error) {
	return nil, errStoreDown
}

func (failingPredictionRepo) ApplyFeedback(ctx context.Context, tenantID int64, predictionID string, upd repos.FeedbackUpdate) (bool, error) {
	return false, errStoreDown
}
