package repos

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/models"
)

// FeedbackUpdate carries the only columns allowed to change after creation.
type FeedbackUpdate struct {
	ActualFinishTime time.Time
	DeviationMinutes int
	Accepted         *bool
	FeedbackTime     time.Time
}

// PredictionFilter selects one page of a tenant's prediction log, newest first.
type PredictionFilter struct {
	TenantID    int64
	Before      *time.Time
	PendingOnly bool
	Limit       int
}

type PredictionRepo interface {
	Create(ctx context.Context, rec *models.PredictionRecord) error
	Get(ctx context.Context, tenantID int64, predictionID string) (*models.PredictionRecord, error)
	List(ctx context.Context, filter PredictionFilter) ([]models.PredictionRecord, error)
	ApplyFeedback(ctx context.Context, tenantID int64, predictionID string, upd FeedbackUpdate) (bool, error)
}

type predictionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPredictionRepo(db *gorm.DB, baseLog *logger.Logger) PredictionRepo {
	return &predictionRepo{
		db:  db,
		log: baseLog.With("repo", "PredictionRepo"),
	}
}

func (r *predictionRepo) Create(ctx context.Context, rec *models.PredictionRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// Get returns nil, nil when the prediction does not exist for the tenant.
func (r *predictionRepo) Get(ctx context.Context, tenantID int64, predictionID string) (*models.PredictionRecord, error) {
	var rows []models.PredictionRecord
	err := r.db.WithContext(ctx).
		Where("prediction_id = ? AND tenant_id = ?", predictionID, tenantID).
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

func (r *predictionRepo) List(ctx context.Context, filter PredictionFilter) ([]models.PredictionRecord, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ?", filter.TenantID).
		Order("created_at DESC, id DESC")
	if filter.Before != nil {
		query = query.Where("created_at < ?", *filter.Before)
	}
	if filter.PendingOnly {
		query = query.Where("actual_finish_time IS NULL")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.PredictionRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ApplyFeedback sets the feedback columns only while actual_finish_time is still
// null. It reports whether a row was updated.
func (r *predictionRepo) ApplyFeedback(ctx context.Context, tenantID int64, predictionID string, upd FeedbackUpdate) (bool, error) {
	values := map[string]interface{}{
		"actual_finish_time": upd.ActualFinishTime,
		"deviation_minutes":  upd.DeviationMinutes,
		"feedback_time":      upd.FeedbackTime,
	}
	if upd.Accepted != nil {
		values["feedback_accepted"] = *upd.Accepted
	}
	res := r.db.WithContext(ctx).
		Model(&models.PredictionRecord{}).
		Where("prediction_id = ? AND tenant_id = ? AND actual_finish_time IS NULL", predictionID, tenantID).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
