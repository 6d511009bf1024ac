package batch

import "time"

// ItemError records the failure of one identifier.
type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Stats accumulates counters for a single Run. It is owned by that Run's stack
// frame and never shared, so one Processor can serve concurrent runs.
type Stats struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Skipped    int         `json:"skipped"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time"`
	Errors     []ItemError `json:"errors"`
}

// Processed returns how many identifiers have settled so far.
func (s *Stats) Processed() int {
	return s.Successful + s.Failed
}

func (s *Stats) record(out Outcome) {
	if out.Success {
		s.Successful++
		if out.Skipped() {
			s.Skipped++
		}
		return
	}
	s.Failed++
	s.Errors = append(s.Errors, ItemError{ID: out.ID, Error: out.Error})
}

// Summary is the derived, read-only view of Stats returned to callers.
type Summary struct {
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Errors     []ItemError   `json:"errors"`
}

// SuccessRate returns the share of successful items as a percentage (0-100).
func (s Summary) SuccessRate() float64 {
	processed := s.Successful + s.Failed
	if processed == 0 {
		return 0
	}
	return float64(s.Successful) / float64(processed) * percentMultiplier
}

// HasFailures reports whether any identifier failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Result is the final value of a Run.
type Result struct {
	// Results holds one outcome per identifier, ordered by group and then by
	// position within the group.
	Results []Outcome `json:"results"`
	Stats   Stats     `json:"stats"`
	Summary Summary   `json:"summary"`
}

func newResult(results []Outcome, stats Stats) Result {
	errs := make([]ItemError, len(stats.Errors))
	copy(errs, stats.Errors)
	stats.Errors = errs

	duration := stats.EndTime.Sub(stats.StartTime)
	return Result{
		Results: results,
		Stats:   stats,
		Summary: Summary{
			Total:      stats.Total,
			Successful: stats.Successful,
			Failed:     stats.Failed,
			Skipped:    stats.Skipped,
			Duration:   duration,
			DurationMS: duration.Milliseconds(),
			Errors:     errs,
		},
	}
}
