// Package resweep tracks the external resources a test suite opens and
// tears them down in one orchestrated pass.
//
// Tests register each resource with a cleanup function and a priority.
// Cleanup runs the functions highest priority first, bounds each one with a
// timeout, retries transient failures, and returns a report instead of
// aborting on the first problem. The registry is cleared after every pass
// so a failed teardown cannot be retried against stale state.
//
// The handles subpackage watches for resources the suite never registered:
// it snapshots tracked handles, OS-level file descriptors and sockets, and
// goroutines, and diffs them against a baseline to surface leaks that would
// keep the test-runner process alive.
//
// A minimal session:
//
//	m := resweep.New(nil)
//	m.CaptureHandleBaseline()
//
//	m.Register(resweep.Resource{
//		ID:       "postgres-pool",
//		Type:     resweep.ResourceDatabase,
//		Priority: 10,
//		Cleanup:  func(ctx context.Context) error { return pool.Close(ctx) },
//	})
//
//	report := m.Cleanup(context.Background())
//	if len(report.Errors) > 0 {
//		log.Fatalf("teardown failed: %v", report.Errors)
//	}
package resweep
