package services

import (
	"math"

	"github.com/chenguojun06-star/fz66666-sub008/models"
)

const (
	AlgorithmRuleV1 = "rule_v1"
	AlgorithmMLV1   = "ml_v1"

	ruleConfidence = 0.30
)

// Estimate is what a prediction is built from.
type Estimate struct {
	RemainingMinutes float64
	Confidence       float64
	SampleCount      int
	AlgorithmVersion string
}

// Estimator is either RuleBased or StatisticalModel. The unexported method keeps
// the set closed.
type Estimator interface {
	Estimate(progress int) Estimate
	stageMinutes() float64
}

// RuleBased estimates from a fixed stage length when no history is usable.
type RuleBased struct {
	StageMinutes float64
}

func (r RuleBased) Estimate(progress int) Estimate {
	return Estimate{
		RemainingMinutes: remainingFraction(r.StageMinutes, progress),
		Confidence:       ruleConfidence,
		AlgorithmVersion: AlgorithmRuleV1,
	}
}

func (r RuleBased) stageMinutes() float64 { return r.StageMinutes }

// StatisticalModel estimates from a tenant's stage snapshot.
type StatisticalModel struct {
	AvgStageTotalMinutes float64
	AvgMinutesPerUnit    float64
	MaxMinutesPerUnit    float64
	Confidence           float64
	SampleCount          int
}

func (m StatisticalModel) Estimate(progress int) Estimate {
	return Estimate{
		RemainingMinutes: remainingFraction(m.AvgStageTotalMinutes, progress),
		Confidence:       m.Confidence,
		SampleCount:      m.SampleCount,
		AlgorithmVersion: AlgorithmMLV1,
	}
}

func (m StatisticalModel) stageMinutes() float64 { return m.AvgStageTotalMinutes }

// SlowestStageMinutes scales the average stage length by the slowest observed pace.
func (m StatisticalModel) SlowestStageMinutes() float64 {
	if m.AvgMinutesPerUnit <= 0 {
		return m.AvgStageTotalMinutes
	}
	return m.AvgStageTotalMinutes * m.MaxMinutesPerUnit / m.AvgMinutesPerUnit
}

// SelectEstimator picks the statistical model when the snapshot has samples and
// falls back to the rule otherwise.
func SelectEstimator(stat *models.StageStatistic, rule RuleBased) Estimator {
	if !stat.HasSamples() {
		return rule
	}
	return StatisticalModel{
		AvgStageTotalMinutes: stat.AvgStageTotalMinutes,
		AvgMinutesPerUnit:    stat.AvgMinutesPerUnit,
		MaxMinutesPerUnit:    stat.MaxMinutesPerUnit,
		Confidence:           stat.ConfidenceScore,
		SampleCount:          stat.SampleCount,
	}
}

func remainingFraction(total float64, progress int) float64 {
	if progress >= 100 || total <= 0 {
		return 0
	}
	if progress < 0 {
		progress = 0
	}
	return math.Max(0, total*float64(100-progress)/100)
}
