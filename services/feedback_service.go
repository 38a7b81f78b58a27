package services

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/models"
	"github.com/chenguojun06-star/fz66666-sub008/repos"
)

// FeedbackService records the actual outcome of a prediction, once.
type FeedbackService struct {
	predictions repos.PredictionRepo
	log         *logger.Logger
	now         func() time.Time
}

func NewFeedbackService(predictions repos.PredictionRepo, baseLog *logger.Logger) *FeedbackService {
	return &FeedbackService{
		predictions: predictions,
		log:         baseLog.With("service", "FeedbackService"),
		now:         time.Now,
	}
}

type FeedbackRequest struct {
	TenantID         int64
	PredictionID     string
	ActualFinishTime *time.Time
	Accepted         *bool
}

// DeviationMinutes is predicted minus actual, rounded to whole minutes: a negative
// value means the work finished later than predicted.
func DeviationMinutes(predicted, actual time.Time) int {
	return int(math.Round(predicted.Sub(actual).Minutes()))
}

func (s *FeedbackService) AcceptFeedback(ctx context.Context, req FeedbackRequest) (*models.PredictionRecord, error) {
	if req.TenantID <= 0 {
		return nil, newValidationError("tenantId", "missing tenant")
	}
	if strings.TrimSpace(req.PredictionID) == "" {
		return nil, newValidationError("predictionId", "is required")
	}
	if req.ActualFinishTime == nil || req.ActualFinishTime.IsZero() {
		return nil, newValidationError("actualFinishTime", "is required")
	}

	rec, err := s.predictions.Get(ctx, req.TenantID, req.PredictionID)
	if err != nil {
		return nil, &UpstreamUnavailableError{Source: "prediction log", Err: err}
	}
	if rec == nil {
		feedbackReceived.WithLabelValues("not_found").Inc()
		return nil, &NotFoundError{PredictionID: req.PredictionID}
	}
	if rec.HasFeedback() {
		feedbackReceived.WithLabelValues("duplicate").Inc()
		return nil, &AlreadyFeedbackError{PredictionID: req.PredictionID}
	}

	actual := req.ActualFinishTime.UTC()
	upd := repos.FeedbackUpdate{
		ActualFinishTime: actual,
		DeviationMinutes: DeviationMinutes(rec.PredictedFinishTime, actual),
		Accepted:         req.Accepted,
		FeedbackTime:     s.now().UTC(),
	}
	applied, err := s.predictions.ApplyFeedback(ctx, req.TenantID, req.PredictionID, upd)
	if err != nil {
		return nil, &UpstreamUnavailableError{Source: "prediction log", Err: err}
	}
	if !applied {
		// lost the race to a concurrent submission, or the row vanished
		feedbackReceived.WithLabelValues("duplicate").Inc()
		again, err := s.predictions.Get(ctx, req.TenantID, req.PredictionID)
		if err == nil && again == nil {
			return nil, &NotFoundError{PredictionID: req.PredictionID}
		}
		return nil, &AlreadyFeedbackError{PredictionID: req.PredictionID}
	}

	rec.ActualFinishTime = &upd.ActualFinishTime
	rec.DeviationMinutes = &upd.DeviationMinutes
	rec.FeedbackAccepted = req.Accepted
	rec.FeedbackTime = &upd.FeedbackTime

	feedbackReceived.WithLabelValues("accepted").Inc()
	feedbackDeviation.Observe(math.Abs(float64(upd.DeviationMinutes)))
	s.log.Info("prediction feedback recorded",
		"tenant_id", req.TenantID,
		"prediction_id", req.PredictionID,
		"stage", rec.StageName,
		"algorithm", rec.AlgorithmVersion,
		"deviation_minutes", upd.DeviationMinutes,
	)
	return rec, nil
}
