package batch

import "time"

// percentMultiplier is used to convert a ratio to percentage (0-100).
const percentMultiplier = 100

// Progress is emitted once per settled identifier and carries running totals.
type Progress struct {
	// Total is the number of identifiers in the run.
	Total int

	// Processed is the number of identifiers settled so far, this one included.
	Processed int

	// Successful, Failed and Skipped are running counters.
	Successful int
	Failed     int
	Skipped    int

	// ID is the identifier that just settled and Label names the operation.
	ID    string
	Label string

	// Outcome is the settled result for ID.
	Outcome Outcome

	// StartTime is when the run started.
	StartTime time.Time
}

// PercentComplete returns the completion percentage (0-100).
func (p Progress) PercentComplete() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Processed) / float64(p.Total) * percentMultiplier
}

// IsComplete returns true if all identifiers have settled.
func (p Progress) IsComplete() bool {
	return p.Processed >= p.Total
}

// ElapsedTime returns the time elapsed since the run started.
func (p Progress) ElapsedTime() time.Duration {
	return time.Since(p.StartTime)
}

// ItemsPerSecond returns the processing rate in identifiers per second.
func (p Progress) ItemsPerSecond() float64 {
	elapsed := time.Since(p.StartTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(p.Processed) / elapsed
}

// EstimatedTimeRemaining estimates the remaining time based on the average so far.
// Returns 0 if nothing has been processed yet.
func (p Progress) EstimatedTimeRemaining() time.Duration {
	if p.Processed == 0 {
		return 0
	}
	avg := time.Since(p.StartTime) / time.Duration(p.Processed)
	return avg * time.Duration(p.Total-p.Processed)
}

// ProgressSink receives progress events. Run delivers events sequentially from
// the goroutine that called it, never concurrently.
type ProgressSink interface {
	OnProgress(p Progress)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(p Progress)

// OnProgress calls f(p).
func (f ProgressFunc) OnProgress(p Progress) { f(p) }

type multiSink []ProgressSink

func (m multiSink) OnProgress(p Progress) {
	for _, s := range m {
		s.OnProgress(p)
	}
}

// MultiSink fans an event out to every non-nil sink. It returns nil when no sink remains.
func MultiSink(sinks ...ProgressSink) ProgressSink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}
