package models

import "time"

// PredictionRecord logs one served finish-time prediction. Core fields are written once
// at creation; the feedback fields are filled at most once afterwards.
type PredictionRecord struct {
	ID                  uint       `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	PredictionID        string     `gorm:"column:prediction_id;size:64;not null;uniqueIndex" json:"predictionId"`
	TenantID            int64      `gorm:"column:tenant_id;not null;index:idx_prediction_tenant_order;index:idx_prediction_tenant_created" json:"tenantId"`
	OrderID             string     `gorm:"column:order_id;size:64;not null;index:idx_prediction_tenant_order" json:"orderId"`
	OrderNo             string     `gorm:"column:order_no;size:64" json:"orderNo,omitempty"`
	StageName           string     `gorm:"column:stage_name;size:64;not null" json:"stageName"`
	ProcessName         string     `gorm:"column:process_name;size:64" json:"processName,omitempty"`
	ScanType            string     `gorm:"column:scan_type;size:32;not null" json:"scanType"`
	CurrentProgress     int        `gorm:"column:current_progress;not null" json:"currentProgress"`
	PredictedFinishTime time.Time  `gorm:"column:predicted_finish_time;not null" json:"predictedFinishTime"`
	RemainingMinutes    int        `gorm:"column:remaining_minutes;not null" json:"remainingMinutes"`
	Confidence          float64    `gorm:"column:confidence;not null" json:"confidence"`
	SampleCount         int        `gorm:"column:sample_count;not null" json:"sampleCount"`
	AlgorithmVersion    string     `gorm:"column:algorithm_version;size:16;not null" json:"algorithmVersion"`
	ActualFinishTime    *time.Time `gorm:"column:actual_finish_time" json:"actualFinishTime,omitempty"`
	DeviationMinutes    *int       `gorm:"column:deviation_minutes" json:"deviationMinutes,omitempty"`
	FeedbackAccepted    *bool      `gorm:"column:feedback_accepted" json:"feedbackAccepted,omitempty"`
	FeedbackTime        *time.Time `gorm:"column:feedback_time" json:"feedbackTime,omitempty"`
	CreatedAt           time.Time  `gorm:"column:created_at;not null;index:idx_prediction_tenant_created" json:"createdAt"`
}

func (PredictionRecord) TableName() string { return "t_intelligence_prediction_log" }

// HasFeedback reports whether the actual outcome has already been recorded.
func (r *PredictionRecord) HasFeedback() bool {
	return r != nil && r.ActualFinishTime != nil
}
