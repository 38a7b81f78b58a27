package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/models"
)

// ScanReader is a read-only view over t_scan_record, which the ERP scan write
// path owns.
type ScanReader struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewScanReader(pool *pgxpool.Pool, baseLog *logger.Logger) *ScanReader {
	return &ScanReader{
		pool: pool,
		log:  baseLog.With("repo", "ScanReader"),
	}
}

// ActiveTenantIDs lists tenants with at least one successful scan since the given time.
func (r *ScanReader) ActiveTenantIDs(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT tenant_id
		FROM t_scan_record
		WHERE scan_time >= $1
		  AND scan_result = 'success'
		  AND tenant_id IS NOT NULL
		ORDER BY tenant_id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query active tenants: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return ids, nil
}

// StageGroups lists the distinct (stage, scan type) pairs a tenant scanned in [since, until).
func (r *ScanReader) StageGroups(ctx context.Context, tenantID int64, since, until time.Time) ([]models.StageGroup, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT progress_stage, scan_type
		FROM t_scan_record
		WHERE tenant_id = $1
		  AND scan_time >= $2 AND scan_time < $3
		  AND scan_result = 'success'
		  AND quantity > 0
		  AND progress_stage <> ''
		GROUP BY progress_stage, scan_type
		ORDER BY progress_stage, scan_type
	`, tenantID, since, until)
	if err != nil {
		return nil, fmt.Errorf("query stage groups: %w", err)
	}
	defer rows.Close()

	var groups []models.StageGroup
	for rows.Next() {
		var g models.StageGroup
		if err := rows.Scan(&g.StageName, &g.ScanType); err != nil {
			return nil, fmt.Errorf("scan stage group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage groups: %w", err)
	}
	return groups, nil
}

// OrderSpans returns, per order, the first and last successful scan and the
// scanned quantity inside one stage group.
func (r *ScanReader) OrderSpans(ctx context.Context, tenantID int64, group models.StageGroup, since, until time.Time) ([]models.OrderSpan, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT order_id, MIN(scan_time), MAX(scan_time), SUM(quantity)
		FROM t_scan_record
		WHERE tenant_id = $1
		  AND progress_stage = $2
		  AND scan_type = $3
		  AND scan_time >= $4 AND scan_time < $5
		  AND scan_result = 'success'
		  AND quantity > 0
		GROUP BY order_id
		ORDER BY order_id
	`, tenantID, group.StageName, group.ScanType, since, until)
	if err != nil {
		return nil, fmt.Errorf("query order spans for %s/%s: %w", group.StageName, group.ScanType, err)
	}
	defer rows.Close()

	var spans []models.OrderSpan
	for rows.Next() {
		var s models.OrderSpan
		if err := rows.Scan(&s.OrderID, &s.FirstScan, &s.LastScan, &s.Quantity); err != nil {
			return nil, fmt.Errorf("scan order span: %w", err)
		}
		spans = append(spans, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order spans: %w", err)
	}
	return spans, nil
}
