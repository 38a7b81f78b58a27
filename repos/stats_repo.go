package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/models"
)

type StatsRepo interface {
	Upsert(ctx context.Context, stat *models.StageStatistic) error
	Get(ctx context.Context, tenantID int64, stageName, scanType string) (*models.StageStatistic, error)
	ListByTenant(ctx context.Context, tenantID int64) ([]models.StageStatistic, error)
}

type statsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStatsRepo(db *gorm.DB, baseLog *logger.Logger) StatsRepo {
	return &statsRepo{
		db:  db,
		log: baseLog.With("repo", "StatsRepo"),
	}
}

// Upsert replaces every value column of the (tenant, stage, scan type) row in a
// single statement, so readers see either the old or the new snapshot.
func (r *statsRepo) Upsert(ctx context.Context, stat *models.StageStatistic) error {
	row := *stat
	row.ID = 0
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "stage_name"}, {Name: "scan_type"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"sample_count",
				"avg_minutes_per_unit",
				"min_minutes_per_unit",
				"max_minutes_per_unit",
				"avg_stage_total_minutes",
				"confidence_score",
				"last_computed_time",
			}),
		}).
		Create(&row).Error
}

// Get returns nil, nil when no snapshot exists.
func (r *statsRepo) Get(ctx context.Context, tenantID int64, stageName, scanType string) (*models.StageStatistic, error) {
	var rows []models.StageStatistic
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND stage_name = ? AND scan_type = ?", tenantID, stageName, scanType).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *statsRepo) ListByTenant(ctx context.Context, tenantID int64) ([]models.StageStatistic, error) {
	var rows []models.StageStatistic
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("stage_name, scan_type").
		Find(&rows).Error
	return rows, err
}
