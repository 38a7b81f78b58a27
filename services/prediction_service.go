package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/models"
	"github.com/chenguojun06-star/fz66666-sub008/repos"
)

const (
	PrecheckNormal           = "normal"
	PrecheckTooFast          = "too_fast"
	PrecheckTooSlow          = "too_slow"
	PrecheckInsufficientData = "insufficient_data"

	ActionMoveNext = "move_next"
	ActionHold     = "hold"
	ActionExpedite = "expedite"

	anomalyLowFactor  = 0.5
	anomalyHighFactor = 1.5
	readyFraction     = 0.10
)

type PredictionServiceConfig struct {
	RuleStageMinutes int
	CacheTTL         time.Duration
}

// PredictionService answers precheck, finish-time and in/out questions from the
// stats snapshot of one tenant. Only PredictFinishTime writes, and only an append.
type PredictionService struct {
	stats       repos.StatsRepo
	predictions repos.PredictionRepo
	cache       statsCache
	rule        RuleBased
	cacheTTL    time.Duration
	log         *logger.Logger
	now         func() time.Time
}

func NewPredictionService(stats repos.StatsRepo, predictions repos.PredictionRepo, cache *CacheService, baseLog *logger.Logger, cfg PredictionServiceConfig) *PredictionService {
	if cfg.RuleStageMinutes <= 0 {
		cfg.RuleStageMinutes = 480
	}
	return &PredictionService{
		stats:       stats,
		predictions: predictions,
		cache:       cache,
		rule:        RuleBased{StageMinutes: float64(cfg.RuleStageMinutes)},
		cacheTTL:    cfg.CacheTTL,
		log:         baseLog.With("service", "PredictionService"),
		now:         time.Now,
	}
}

type PredictRequest struct {
	TenantID        int64
	OrderID         string
	OrderNo         string
	StageName       string
	ProcessName     string
	ScanType        string
	CurrentProgress int
}

type PredictResult struct {
	PredictionID        string    `json:"predictionId"`
	PredictedFinishTime time.Time `json:"predictedFinishTime"`
	RemainingMinutes    int       `json:"remainingMinutes"`
	Confidence          float64   `json:"confidence"`
	AlgorithmVersion    string    `json:"algorithmVersion"`
	SampleCount         int       `json:"sampleCount"`
}

func (s *PredictionService) PredictFinishTime(ctx context.Context, req PredictRequest) (*PredictResult, error) {
	scanType, err := normalizeScope(req.TenantID, req.StageName, req.ScanType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, newValidationError("orderId", "is required")
	}
	if err := validateProgress(req.CurrentProgress); err != nil {
		return nil, err
	}

	est := s.estimator(ctx, req.TenantID, req.StageName, scanType).Estimate(req.CurrentProgress)
	remaining := int(math.Round(est.RemainingMinutes))
	createdAt := s.now().UTC()
	now := createdAt.Truncate(time.Second)

	rec := &models.PredictionRecord{
		PredictionID:        uuid.NewString(),
		TenantID:            req.TenantID,
		OrderID:             req.OrderID,
		OrderNo:             req.OrderNo,
		StageName:           req.StageName,
		ProcessName:         req.ProcessName,
		ScanType:            scanType,
		CurrentProgress:     req.CurrentProgress,
		PredictedFinishTime: now.Add(time.Duration(remaining) * time.Minute),
		RemainingMinutes:    remaining,
		Confidence:          est.Confidence,
		SampleCount:         est.SampleCount,
		AlgorithmVersion:    est.AlgorithmVersion,
		CreatedAt:           createdAt,
	}
	if err := s.predictions.Create(ctx, rec); err != nil {
		return nil, &UpstreamUnavailableError{Source: "prediction log", Err: err}
	}
	predictionsServed.WithLabelValues(est.AlgorithmVersion).Inc()

	return &PredictResult{
		PredictionID:        rec.PredictionID,
		PredictedFinishTime: rec.PredictedFinishTime,
		RemainingMinutes:    remaining,
		Confidence:          est.Confidence,
		AlgorithmVersion:    est.AlgorithmVersion,
		SampleCount:         est.SampleCount,
	}, nil
}

type PrecheckRequest struct {
	TenantID       int64
	OrderID        string
	StageName      string
	ScanType       string
	Quantity       int
	ElapsedMinutes float64
}

type PrecheckResult struct {
	Anomaly        bool    `json:"anomaly"`
	Level          string  `json:"level"`
	Rationale      string  `json:"rationale"`
	PerUnitMinutes float64 `json:"perUnitMinutes"`
	ExpectedMin    float64 `json:"expectedMinPerUnit"`
	ExpectedMax    float64 `json:"expectedMaxPerUnit"`
	SampleCount    int     `json:"sampleCount"`
}

// PrecheckScan flags a scan whose implied per-unit time falls outside
// [min*0.5, max*1.5] of the stage history. Without history nothing is flagged.
func (s *PredictionService) PrecheckScan(ctx context.Context, req PrecheckRequest) (*PrecheckResult, error) {
	scanType, err := normalizeScope(req.TenantID, req.StageName, req.ScanType)
	if err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, newValidationError("quantity", "must be positive, got %d", req.Quantity)
	}
	if req.ElapsedMinutes < 0 || math.IsNaN(req.ElapsedMinutes) || math.IsInf(req.ElapsedMinutes, 0) {
		return nil, newValidationError("elapsedMinutes", "must be a non-negative number")
	}

	perUnit := round(req.ElapsedMinutes/float64(req.Quantity), 2)
	res := &PrecheckResult{PerUnitMinutes: perUnit, Level: PrecheckInsufficientData}

	stat, err := s.lookupStat(ctx, req.TenantID, req.StageName, scanType)
	if err != nil {
		s.log.Warn("precheck without stats", "tenant_id", req.TenantID, "stage", req.StageName, "error", err)
	}
	if !stat.HasSamples() {
		res.Rationale = fmt.Sprintf("no completed history for stage %q yet, scan accepted", req.StageName)
		prechecksServed.WithLabelValues(res.Level).Inc()
		return res, nil
	}

	res.SampleCount = stat.SampleCount
	res.ExpectedMin = round(stat.MinMinutesPerUnit*anomalyLowFactor, 2)
	res.ExpectedMax = round(stat.MaxMinutesPerUnit*anomalyHighFactor, 2)
	switch {
	case perUnit < res.ExpectedMin:
		res.Anomaly = true
		res.Level = PrecheckTooFast
		res.Rationale = fmt.Sprintf("%.2f min/unit is faster than the historical floor %.2f (fastest %.2f over %d orders)",
			perUnit, res.ExpectedMin, stat.MinMinutesPerUnit, stat.SampleCount)
	case perUnit > res.ExpectedMax:
		res.Anomaly = true
		res.Level = PrecheckTooSlow
		res.Rationale = fmt.Sprintf("%.2f min/unit is slower than the historical ceiling %.2f (slowest %.2f over %d orders)",
			perUnit, res.ExpectedMax, stat.MaxMinutesPerUnit, stat.SampleCount)
	default:
		res.Level = PrecheckNormal
		res.Rationale = fmt.Sprintf("%.2f min/unit is within the expected range %.2f-%.2f", perUnit, res.ExpectedMin, res.ExpectedMax)
	}
	prechecksServed.WithLabelValues(res.Level).Inc()
	return res, nil
}

type RecommendRequest struct {
	TenantID        int64
	OrderID         string
	StageName       string
	ScanType        string
	CurrentProgress int
	ElapsedMinutes  float64
}

type RecommendResult struct {
	Action           string  `json:"action"`
	RemainingMinutes int     `json:"remainingMinutes"`
	Confidence       float64 `json:"confidence"`
	AlgorithmVersion string  `json:"algorithmVersion"`
	Rationale        string  `json:"rationale"`
}

// RecommendInOut is advisory: it reads the snapshot and writes nothing.
func (s *PredictionService) RecommendInOut(ctx context.Context, req RecommendRequest) (*RecommendResult, error) {
	scanType, err := normalizeScope(req.TenantID, req.StageName, req.ScanType)
	if err != nil {
		return nil, err
	}
	if err := validateProgress(req.CurrentProgress); err != nil {
		return nil, err
	}
	if req.ElapsedMinutes < 0 || math.IsNaN(req.ElapsedMinutes) || math.IsInf(req.ElapsedMinutes, 0) {
		return nil, newValidationError("elapsedMinutes", "must be a non-negative number")
	}

	estimator := s.estimator(ctx, req.TenantID, req.StageName, scanType)
	est := estimator.Estimate(req.CurrentProgress)
	res := &RecommendResult{
		RemainingMinutes: int(math.Round(est.RemainingMinutes)),
		Confidence:       est.Confidence,
		AlgorithmVersion: est.AlgorithmVersion,
	}

	stageMinutes := estimator.stageMinutes()
	switch {
	case req.CurrentProgress >= 100:
		res.Action = ActionMoveNext
		res.Rationale = "stage complete, move the batch to the next process"
	case est.RemainingMinutes <= stageMinutes*readyFraction:
		res.Action = ActionMoveNext
		res.Rationale = fmt.Sprintf("about %d minutes left, within the last %.0f%% of a typical %.0f-minute stage",
			res.RemainingMinutes, readyFraction*100, stageMinutes)
	default:
		res.Action = ActionHold
		res.Rationale = fmt.Sprintf("about %d minutes left of a typical %.0f-minute stage", res.RemainingMinutes, stageMinutes)
	}

	if model, ok := estimator.(StatisticalModel); ok && res.Action == ActionHold && req.ElapsedMinutes > 0 {
		if slowest := model.SlowestStageMinutes(); req.ElapsedMinutes > slowest {
			res.Action = ActionExpedite
			res.Rationale = fmt.Sprintf("%.0f minutes elapsed exceeds the slowest historical pace (%.0f minutes over %d orders)",
				req.ElapsedMinutes, slowest, model.SampleCount)
		}
	}
	if est.AlgorithmVersion == AlgorithmRuleV1 {
		res.Rationale += " (no stage history, rule-based estimate)"
	}

	recommendationsServed.WithLabelValues(res.Action).Inc()
	return res, nil
}

// estimator resolves the variant once per call. A store failure degrades to the rule.
func (s *PredictionService) estimator(ctx context.Context, tenantID int64, stageName, scanType string) Estimator {
	stat, err := s.lookupStat(ctx, tenantID, stageName, scanType)
	if err != nil {
		statsLookupFallbacks.Inc()
		s.log.Warn("stats lookup failed, using rule estimate", "tenant_id", tenantID, "stage", stageName, "error", err)
		return s.rule
	}
	return SelectEstimator(stat, s.rule)
}

// lookupStat returns nil, nil when no snapshot exists. Errors are UpstreamUnavailableError.
func (s *PredictionService) lookupStat(ctx context.Context, tenantID int64, stageName, scanType string) (*models.StageStatistic, error) {
	key := statsCacheKey(tenantID, stageName, scanType)

	var cached models.StageStatistic
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.log.Debug("stats cache read failed", "key", key, "error", err)
	}
	if hit && cached.TenantID == tenantID {
		return &cached, nil
	}

	stat, err := s.stats.Get(ctx, tenantID, stageName, scanType)
	if err != nil {
		return nil, &UpstreamUnavailableError{Source: "stats store", Err: err}
	}
	// SetNX so a row read before a recompute never replaces the engine's fresh copy.
	if stat != nil && s.cacheTTL > 0 {
		if _, err := s.cache.SetNX(ctx, key, stat, s.cacheTTL); err != nil {
			s.log.Debug("stats cache write failed", "key", key, "error", err)
		}
	}
	return stat, nil
}

func normalizeScope(tenantID int64, stageName, scanType string) (string, error) {
	if tenantID <= 0 {
		return "", newValidationError("tenantId", "missing tenant")
	}
	if strings.TrimSpace(stageName) == "" {
		return "", newValidationError("stageName", "is required")
	}
	if scanType == "" {
		return models.ScanTypeProduction, nil
	}
	if !models.ValidScanType(scanType) {
		return "", newValidationError("scanType", "unknown scan type %q", scanType)
	}
	return scanType, nil
}

func validateProgress(progress int) error {
	if progress < 0 || progress > 100 {
		return newValidationError("currentProgress", "must be within [0,100], got %d", progress)
	}
	return nil
}
