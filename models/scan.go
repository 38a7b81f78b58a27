package models

import "time"

// StageGroup identifies one aggregation bucket of a tenant's scan history.
type StageGroup struct {
	StageName string
	ScanType  string
}

// OrderSpan summarises one order's successful scans inside a stage group.
type OrderSpan struct {
	OrderID   string
	FirstScan time.Time
	LastScan  time.Time
	Quantity  int64
}

// Duration is the wall-clock time between the first and last scan.
func (s OrderSpan) Duration() time.Duration {
	return s.LastScan.Sub(s.FirstScan)
}
