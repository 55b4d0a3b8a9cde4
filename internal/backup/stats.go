package backup

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatistics aggregates all items of one run. Counters only grow.
type RunStatistics struct {
	ID         uuid.UUID
	TotalItems int
	Errors     int
	Warnings   int
	Files      int64
	Bytes      int64
	Duration   time.Duration
}

// DurationSeconds returns the run time in whole seconds.
func (s RunStatistics) DurationSeconds() int64 {
	return int64(s.Duration / time.Second)
}

// Failed reports whether any error occurred.
func (s RunStatistics) Failed() bool {
	return s.Errors > 0
}

// RunReport is handed to observers after a run.
type RunReport struct {
	Statistics RunStatistics
	StartedAt  time.Time
	FinishedAt time.Time
	Items      []Result
}

// Status summarises the run for history records.
func (r RunReport) Status() string {
	if r.Statistics.Failed() {
		return "failed"
	}
	return "succeeded"
}

// aggregate folds item results into run statistics.
type aggregate struct {
	mu      sync.Mutex
	stats   RunStatistics
	results []Result
}

func (a *aggregate) addItem(res Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Errors += res.Statistics.Errors
	a.stats.Warnings += res.Statistics.Warnings
	a.stats.Files += res.Statistics.Files
	a.stats.Bytes += res.Statistics.Bytes
	a.results = append(a.results, res)
}

func (a *aggregate) addRun(errors, warnings int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Errors += errors
	a.stats.Warnings += warnings
}

func (a *aggregate) snapshot() (RunStatistics, []Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats, append([]Result(nil), a.results...)
}
