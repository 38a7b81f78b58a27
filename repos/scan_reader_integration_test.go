//go:build integration

package repos

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/models"
)

// setupScanReader connects to SCAN_TEST_DSN and seeds a throwaway t_scan_record.
// It skips the test when no database is configured.
func setupScanReader(t *testing.T) *ScanReader {
	t.Helper()

	dsn := os.Getenv("SCAN_TEST_DSN")
	if dsn == "" {
		t.Skip("SCAN_TEST_DSN not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool init: %v", err)
	}
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		DROP TABLE IF EXISTS t_scan_record;
		CREATE TABLE t_scan_record (
			id BIGSERIAL PRIMARY KEY,
			tenant_id BIGINT,
			order_id TEXT NOT NULL,
			order_no TEXT,
			progress_stage TEXT NOT NULL,
			process_name TEXT,
			scan_type TEXT NOT NULL,
			quantity INT NOT NULL,
			scan_time TIMESTAMPTZ NOT NULL,
			scan_result TEXT NOT NULL
		)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	base := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	seed := []struct {
		tenant int64
		order  string
		stage  string
		qty    int
		at     time.Time
		result string
	}{
		{1, "PO-1", "cutting", 50, base, "success"},
		{1, "PO-1", "cutting", 50, base.Add(100 * time.Minute), "success"},
		{1, "PO-2", "cutting", 20, base, "success"},
		{1, "PO-2", "cutting", 20, base.Add(80 * time.Minute), "failure"},
		{2, "PO-9", "sewing", 10, base, "success"},
	}
	for _, s := range seed {
		_, err := pool.Exec(ctx, `
			INSERT INTO t_scan_record (tenant_id, order_id, progress_stage, scan_type, quantity, scan_time, scan_result)
			VALUES ($1, $2, $3, 'production', $4, $5, $6)`,
			s.tenant, s.order, s.stage, s.qty, s.at, s.result)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return NewScanReader(pool, logger.NewNop())
}

func TestScanReaderRoundTrip(t *testing.T) {
	r := setupScanReader(t)
	ctx := context.Background()
	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	tenants, err := r.ActiveTenantIDs(ctx, since)
	if err != nil {
		t.Fatal(err)
	}
	if len(tenants) != 2 {
		t.Errorf("tenants = %v, want 2 entries", tenants)
	}

	groups, err := r.StageGroups(ctx, 1, since, until)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || groups[0] != (models.StageGroup{StageName: "cutting", ScanType: "production"}) {
		t.Fatalf("groups = %+v", groups)
	}

	spans, err := r.OrderSpans(ctx, 1, groups[0], since, until)
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 2 {
		t.Fatalf("spans = %+v, want 2", spans)
	}
	if spans[0].Duration() != 100*time.Minute || spans[0].Quantity != 100 {
		t.Errorf("PO-1 span = %+v", spans[0])
	}
	if spans[1].Duration() != 0 {
		t.Errorf("PO-2 span should ignore failed scans, got %v", spans[1].Duration())
	}
}
