package resweep

import (
	"time"

	"github.com/resweep/resweep/errors"
	"github.com/resweep/resweep/handles"
)

// Result records the terminal outcome of one resource's teardown in a pass.
type Result struct {
	ResourceID   string
	ResourceType ResourceType
	// Success is true when some attempt settled without error.
	Success bool
	// Duration covers all attempts for this resource, including retry
	// delays.
	Duration time.Duration
	// Attempts is the number of attempts made.
	Attempts int
	// Forced marks that a timeout, not completion, ended the terminal
	// attempt.
	Forced bool
	// Err is the terminal failure, nil on success.
	Err *errors.CleanupError
}

// ResourceTotals aggregates resource outcomes for one pass.
type ResourceTotals struct {
	Total   int
	Cleaned int
	Failed  int
	Forced  int
}

// TypeStats is the per-type breakdown of one pass.
type TypeStats struct {
	Count   int
	Success int
	Failed  int
	AvgTime time.Duration
}

// HandleDelta is the handle-detection summary folded into a report.
type HandleDelta struct {
	// Before and After are active handle counts at pass start and end.
	Before int
	After  int
	// Leaks are the handles the pass-start snapshot cannot explain.
	Leaks []handles.Handle
}

// Report describes one cleanup pass. Cleanup never fails because a resource
// failed; callers must inspect the report to learn what happened.
type Report struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Resources ResourceTotals
	ByType    map[ResourceType]TypeStats
	Results   []Result

	// Errors holds every terminal resource failure of the pass.
	Errors []*errors.CleanupError
	// Warnings holds non-fatal findings, including detected leaks when
	// strict mode is off.
	Warnings []string

	// OpenHandles is present when handle detection ran for this pass.
	OpenHandles *HandleDelta

	// byTypeTime accumulates per-type teardown time until finalize.
	byTypeTime map[ResourceType]time.Duration
}

func newReport() *Report {
	return &Report{
		StartTime:  time.Now(),
		ByType:     make(map[ResourceType]TypeStats),
		byTypeTime: make(map[ResourceType]time.Duration),
	}
}

// add folds one resource result into the report totals.
func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)

	if res.Success {
		r.Resources.Cleaned++
	} else {
		r.Resources.Failed++
		if res.Forced {
			r.Resources.Forced++
		}
		if res.Err != nil {
			r.Errors = append(r.Errors, res.Err)
		}
	}

	stats := r.ByType[res.ResourceType]
	stats.Count++
	if res.Success {
		stats.Success++
	} else {
		stats.Failed++
	}
	r.ByType[res.ResourceType] = stats
	r.byTypeTime[res.ResourceType] += res.Duration
}

// finalize stamps the end time and computes per-type averages.
func (r *Report) finalize() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)

	for typ, stats := range r.ByType {
		if stats.Count > 0 {
			stats.AvgTime = r.byTypeTime[typ] / time.Duration(stats.Count)
			r.ByType[typ] = stats
		}
	}
}
