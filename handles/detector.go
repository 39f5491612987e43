// Package handles approximates "what is keeping the process alive" without
// requiring every resource to be registered for cleanup. It combines three
// sources: Terminable instances tracked through an explicit capability
// contract, OS-level introspection of the current process (open files,
// sockets, child processes), and live goroutine enumeration. Snapshots taken
// at different times are diffed; a handle the baseline cannot explain is a
// leak.
//
// The detector is a heuristic safety net, not an ownership model. Every
// introspection failure degrades to an empty result rather than an error, so
// a restricted platform costs coverage, never correctness.
package handles

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Options configures a Detector.
type Options struct {
	// CaptureStacks records a creation stack for each tracked handle.
	CaptureStacks bool
	// IncludeOS enables OS-level introspection (files, sockets, child
	// processes).
	IncludeOS bool
	// IncludeGoroutines enables goroutine enumeration.
	IncludeGoroutines bool
	// SnapshotTimeout bounds the time spent on OS introspection per
	// snapshot. Zero means no bound.
	SnapshotTimeout time.Duration
}

// DefaultOptions returns the options used when a Manager constructs its own
// detector.
func DefaultOptions() Options {
	return Options{
		CaptureStacks:     false,
		IncludeOS:         true,
		IncludeGoroutines: true,
		SnapshotTimeout:   5 * time.Second,
	}
}

// Detector captures and diffs handle snapshots.
// It is safe for concurrent use.
type Detector struct {
	opts Options
	proc *process.Process // nil when process introspection is unavailable

	mu       sync.Mutex
	tracked  map[uint64]*Tracked
	nextID   uint64
	baseline *Snapshot
}

// NewDetector creates a Detector. If the current process cannot be
// introspected on this platform, OS-level coverage is silently absent.
func NewDetector(opts Options) *Detector {
	d := &Detector{
		opts:    opts,
		tracked: make(map[uint64]*Tracked),
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		d.proc = proc
	}
	return d
}

// untrack removes a tracked handle by ID.
func (d *Detector) untrack(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tracked, id)
}

// CaptureBaseline snapshots the current handle set and stores it as the
// reference point for DetectLeaks. Call it early, before test resources are
// created. Returns the captured snapshot.
func (d *Detector) CaptureBaseline() *Snapshot {
	snap := d.Snapshot()
	d.mu.Lock()
	d.baseline = snap
	d.mu.Unlock()
	return snap
}

// Baseline returns the stored baseline snapshot, or nil if none was
// captured.
func (d *Detector) Baseline() *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baseline
}

// DetectLeaks snapshots again and returns the handles the baseline cannot
// explain. Without a baseline there is nothing to compare against and no
// leaks are reported.
func (d *Detector) DetectLeaks() []Handle {
	baseline := d.Baseline()
	if baseline == nil {
		return nil
	}
	return Diff(baseline, d.Snapshot())
}

// Report summarizes the current handle state against the baseline.
type Report struct {
	// Total is the number of currently active handles.
	Total int
	// Baseline is the number of handles in the baseline snapshot.
	Baseline int
	// Current lists all currently active handles.
	Current []Handle
	// Leaks lists the handles the baseline cannot explain.
	Leaks []Handle
}

// GetReport builds a Report from a fresh snapshot.
func (d *Detector) GetReport() *Report {
	current := d.Snapshot()

	r := &Report{
		Total:   len(current.Handles),
		Current: current.Handles,
	}
	if baseline := d.Baseline(); baseline != nil {
		r.Baseline = len(baseline.Handles)
		r.Leaks = Diff(baseline, current)
	}
	return r
}

// FormatReport renders the handle report as human-readable text.
func (d *Detector) FormatReport() string {
	r := d.GetReport()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Open handles: %d active, %d in baseline, %d leaked\n",
		r.Total, r.Baseline, len(r.Leaks))

	if len(r.Leaks) == 0 {
		sb.WriteString("No leaked handles detected.\n")
		return sb.String()
	}

	sb.WriteString("Leaked handles:\n")
	for i, h := range r.Leaks {
		fmt.Fprintf(&sb, "  %d. [%s] %s\n", i+1, h.Type, h.Description)
		if h.Stack != "" {
			for _, line := range strings.Split(strings.TrimSpace(h.Stack), "\n") {
				fmt.Fprintf(&sb, "       %s\n", line)
			}
		}
	}
	return sb.String()
}

// WouldBlockExit reports whether any non-baseline handle matches a kind
// known to keep a test-runner process alive past its expected exit point.
func (d *Detector) WouldBlockExit() bool {
	for _, h := range d.DetectLeaks() {
		if h.Type.keepsProcessAlive() {
			return true
		}
	}
	return false
}

// CloseResult summarizes a ForceCloseLeaked call.
type CloseResult struct {
	Closed int
	Failed int
	Errors []error
}

// ForceCloseLeaked invokes the known termination method on each leaked
// handle. Only tracked Terminables have one; leaked OS handles without a
// tracked owner are skipped. Per-handle failures are collected, never
// raised, and a panicking Close counts as a failure.
func (d *Detector) ForceCloseLeaked() CloseResult {
	leaks := d.DetectLeaks()

	var result CloseResult
	for _, h := range leaks {
		var id uint64
		if _, err := fmt.Sscanf(h.ID, "tracked:%d", &id); err != nil {
			continue
		}

		d.mu.Lock()
		t := d.tracked[id]
		d.mu.Unlock()
		if t == nil {
			continue
		}

		if err := closeTracked(t); err != nil {
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Errorf("close %s (%s): %w", h.Description, h.Type, err))
			continue
		}
		result.Closed++
	}
	return result
}

// closeTracked closes a tracked handle, converting panics to errors.
func closeTracked(t *Tracked) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("close panicked: %v", r)
		}
	}()
	return t.Close()
}
