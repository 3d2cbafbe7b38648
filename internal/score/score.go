// Package score computes a 0-100 threat score for a set of findings and
// assigns it a severity band. Scoring is pure: the same findings always
// produce the same score, and no state is kept between calls.
package score

import (
	"math"

	"iris-triage/internal/schema"
)

// Band is the qualitative label for a score range. The canonical band
// table has no separate High label: everything at 80 and above reports
// as Critical, so the top of the Medium band hands off directly to the
// Critical band.
type Band string

const (
	BandVeryLow  Band = "VeryLow"
	BandLow      Band = "Low"
	BandMedium   Band = "Medium"
	BandCritical Band = "Critical"
)

// Band thresholds. A score in [0,20) is VeryLow, [20,50) Low, [50,80)
// Medium, and [80,100] Critical.
const (
	lowThreshold      = 20
	mediumThreshold   = 50
	criticalThreshold = 80
)

// MaxSeverity is the per-finding severity ceiling used for normalization.
const MaxSeverity = 5

// Result is a computed threat assessment.
type Result struct {
	Score    int  `json:"score"`
	Band     Band `json:"band"`
	Findings int  `json:"findings"`
}

// Compute scores a finding set. The score is the mean severity of the
// findings normalized to 0-100, rounded half away from zero, and clamped
// to [0,100]. No findings scores 0.
//
// Because each severity is at most MaxSeverity, adding a finding can
// never push the score above 100; the clamp guards out-of-range
// severities that bypassed validation.
func Compute(findings []schema.Finding) Result {
	if len(findings) == 0 {
		return Result{Score: 0, Band: BandVeryLow}
	}
	sum := 0
	for _, f := range findings {
		sum += f.Severity
	}
	raw := float64(sum) / float64(len(findings)*MaxSeverity) * 100
	s := int(math.Round(raw))
	if s < 0 {
		s = 0
	}
	if s > 100 {
		s = 100
	}
	return Result{Score: s, Band: BandFor(s), Findings: len(findings)}
}

// BandFor maps a score to its band.
func BandFor(score int) Band {
	switch {
	case score < lowThreshold:
		return BandVeryLow
	case score < mediumThreshold:
		return BandLow
	case score < criticalThreshold:
		return BandMedium
	default:
		return BandCritical
	}
}
