package models

import "time"

const (
	ScanTypeProduction = "production"
	ScanTypeQuality    = "quality"
	ScanTypeWarehouse  = "warehouse"
)

// ValidScanType reports whether s is one of the known scan categories.
func ValidScanType(s string) bool {
	switch s {
	case ScanTypeProduction, ScanTypeQuality, ScanTypeWarehouse:
		return true
	}
	return false
}

// StageStatistic is the current duration snapshot for one tenant, stage and scan type.
// Rows are rewritten wholesale by the nightly recompute.
type StageStatistic struct {
	ID                   uint      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	TenantID             int64     `gorm:"column:tenant_id;not null;uniqueIndex:uk_stage_stats" json:"tenantId"`
	StageName            string    `gorm:"column:stage_name;size:64;not null;uniqueIndex:uk_stage_stats" json:"stageName"`
	ScanType             string    `gorm:"column:scan_type;size:32;not null;uniqueIndex:uk_stage_stats" json:"scanType"`
	SampleCount          int       `gorm:"column:sample_count;not null;default:0" json:"sampleCount"`
	AvgMinutesPerUnit    float64   `gorm:"column:avg_minutes_per_unit;not null;default:0" json:"avgMinutesPerUnit"`
	MinMinutesPerUnit    float64   `gorm:"column:min_minutes_per_unit;not null;default:0" json:"minMinutesPerUnit"`
	MaxMinutesPerUnit    float64   `gorm:"column:max_minutes_per_unit;not null;default:0" json:"maxMinutesPerUnit"`
	AvgStageTotalMinutes float64   `gorm:"column:avg_stage_total_minutes;not null;default:0" json:"avgStageTotalMinutes"`
	ConfidenceScore      float64   `gorm:"column:confidence_score;not null;default:0" json:"confidenceScore"`
	LastComputedTime     time.Time `gorm:"column:last_computed_time;not null" json:"lastComputedTime"`
}

func (StageStatistic) TableName() string { return "t_process_stage_stats" }

// HasSamples reports whether the snapshot was built from at least one order.
func (s *StageStatistic) HasSamples() bool {
	return s != nil && s.SampleCount > 0
}
