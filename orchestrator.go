package resweep

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/resweep/resweep/config"
	"github.com/resweep/resweep/errors"
	"github.com/resweep/resweep/event"
	"github.com/resweep/resweep/handles"
)

// Forced passes clamp the configured budgets so an emergency teardown
// cannot stall on a generous config.
const (
	maxForcedGracefulTimeout = 2 * time.Second
	maxForcedForceTimeout    = 5 * time.Second
)

// Cleanup tears down every registered resource in priority order and
// returns a report of what happened. It never returns an error: resource
// failures are recorded in the report, and the registry is cleared whether
// or not resources failed.
//
// At most one pass runs at a time. A call that arrives while another pass
// is running returns immediately with an empty report.
func (m *Manager) Cleanup(ctx context.Context) *Report {
	return m.runPass(ctx, false)
}

// ForceCleanup is Cleanup with the per-resource budgets clamped down for
// emergency teardown, such as a signal handler or a panicking test harness.
func (m *Manager) ForceCleanup(ctx context.Context) *Report {
	return m.runPass(ctx, true)
}

func (m *Manager) runPass(ctx context.Context, force bool) *Report {
	if !m.cleaning.CompareAndSwap(false, true) {
		rep := newReport()
		rep.finalize()
		return rep
	}
	defer func() {
		m.reg.clear()
		m.cleaning.Store(false)
	}()

	// The pass runs on a config snapshot; concurrent UpdateConfig calls
	// apply from the next pass on.
	cfg := m.snapshotConfig()
	if force {
		if cfg.GracefulTimeout > maxForcedGracefulTimeout {
			cfg.GracefulTimeout = maxForcedGracefulTimeout
		}
		if cfg.ForceTimeout > maxForcedForceTimeout {
			cfg.ForceTimeout = maxForcedForceTimeout
		}
	}

	passKind := "graceful"
	if force {
		passKind = "force"
	}
	log := m.log.WithPass(passKind)

	resources := m.reg.list()
	// Highest priority first. The registry lists in registration order, so
	// the stable sort preserves it as the tie-break.
	sort.SliceStable(resources, func(i, j int) bool {
		return resources[i].Priority > resources[j].Priority
	})

	rep := newReport()
	rep.Resources.Total = len(resources)

	log.Info("cleanup pass started", "resources", len(resources))
	m.bus.Publish(event.NewPassStartedEvent(len(resources), force))

	var before *handles.Snapshot
	if cfg.DetectHandles {
		before = m.detector.Snapshot()
	}

	for i := range resources {
		res := &resources[i]
		result := m.cleanupResource(ctx, res, cfg, force)
		rep.add(result)

		if result.Success {
			log.Info("resource cleaned",
				"resource_id", res.ID, "resource_type", string(res.Type),
				"attempts", result.Attempts, "duration", result.Duration)
			m.bus.Publish(event.NewResourceCleanedEvent(
				res.ID, string(res.Type), result.Duration, result.Attempts))
			continue
		}

		log.Error("resource cleanup failed",
			"resource_id", res.ID, "resource_type", string(res.Type),
			"error", result.Err.Error(), "kind", string(result.Err.Kind),
			"attempts", result.Attempts, "forced", result.Forced)
		m.bus.Publish(event.NewResourceCleanupFailedEvent(
			res.ID, string(res.Type), string(result.Err.Kind), result.Err.Error(),
			result.Duration, result.Attempts, result.Forced))
	}

	var leaks []handles.Handle
	if cfg.DetectHandles {
		after := m.detector.Snapshot()
		leaks = handles.Diff(before, after)
		rep.OpenHandles = &HandleDelta{
			Before: len(before.Handles),
			After:  len(after.Handles),
			Leaks:  leaks,
		}
		for _, h := range leaks {
			log.Warn("handle leak detected",
				"handle_type", string(h.Type), "description", h.Description)
			m.bus.Publish(event.NewLeakDetectedEvent(string(h.Type), h.Description))

			msg := fmt.Sprintf("leaked handle: %s (%s)", h.Description, h.Type)
			if cfg.StrictMode {
				rep.Errors = append(rep.Errors,
					errors.NewCleanupError(msg, nil).WithKind(errors.KindResourceBusy))
			} else {
				rep.Warnings = append(rep.Warnings, msg)
			}
		}
	}

	rep.finalize()

	m.bus.Publish(event.NewPassCompletedEvent(
		rep.Resources.Total, rep.Resources.Cleaned, rep.Resources.Failed,
		rep.Resources.Forced, len(leaks), rep.Duration))
	if rep.Resources.Failed > 0 || len(leaks) > 0 {
		log.Warn("cleanup pass completed with problems",
			"cleaned", rep.Resources.Cleaned, "failed", rep.Resources.Failed,
			"leaks", len(leaks), "duration", rep.Duration)
	} else {
		log.Info("cleanup pass completed",
			"cleaned", rep.Resources.Cleaned, "duration", rep.Duration)
	}
	return rep
}

// cleanupResource drives one resource through its attempt loop and returns
// its terminal result.
func (m *Manager) cleanupResource(ctx context.Context, res *Resource, cfg config.Config, force bool) Result {
	timeout := res.Timeout
	if timeout <= 0 {
		if t, ok := cfg.TypeTimeouts[string(res.Type)]; ok && t > 0 {
			timeout = t
		} else {
			timeout = cfg.GracefulTimeout
		}
	}
	if force && timeout > cfg.ForceTimeout {
		timeout = cfg.ForceTimeout
	}

	maxAttempts := cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	start := time.Now()
	var lastErr error
	var timedOut bool
	attempts := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		err, expired := m.attempt(ctx, res, timeout)
		if err == nil {
			return Result{
				ResourceID:   res.ID,
				ResourceType: res.Type,
				Success:      true,
				Duration:     time.Since(start),
				Attempts:     attempt,
			}
		}
		lastErr = err
		timedOut = expired

		if ctx.Err() != nil {
			break
		}
		if attempt < maxAttempts && cfg.RetryDelay > 0 {
			select {
			case <-time.After(cfg.RetryDelay):
			case <-ctx.Done():
				lastErr = ctx.Err()
			}
			if ctx.Err() != nil {
				break
			}
		}
	}

	cerr := errors.NewCleanupError("cleanup failed", lastErr).
		WithResource(res.ID, string(res.Type))
	return Result{
		ResourceID:   res.ID,
		ResourceType: res.Type,
		Duration:     time.Since(start),
		Attempts:     attempts,
		Forced:       timedOut,
		Err:          cerr,
	}
}

// attempt runs the cleanup function once, racing it against the timeout.
// The function receives a context carrying the deadline so cooperative
// teardown can abort early; a function that ignores the deadline is
// abandoned in its goroutine when the timer wins the race. expired reports
// that the timeout, not the parent context, ended the attempt.
func (m *Manager) attempt(ctx context.Context, res *Resource, timeout time.Duration) (err error, expired bool) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", errors.ErrCleanupPanicked, r)
			}
		}()
		done <- res.Cleanup(attemptCtx)
	}()

	select {
	case err := <-done:
		return err, false
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err(), false
		}
		return errors.ErrTimeout, true
	}
}
