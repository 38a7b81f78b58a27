package services

import "math"

const (
	confidenceBase  = 0.35
	confidenceSlope = 0.12
	confidenceCap   = 0.92
)

// ConfidenceScore maps a sample count onto [0, 0.92] with a saturating log curve:
// 0.35 + ln(n+1)*0.12, capped, and 0 when there are no samples.
func ConfidenceScore(n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Min(confidenceCap, confidenceBase+math.Log(float64(n)+1)*confidenceSlope)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
