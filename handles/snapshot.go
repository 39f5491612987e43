package handles

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// HandleType is a best-effort classification of a low-level handle.
type HandleType string

const (
	HandleTimer     HandleType = "timer"
	HandleSocket    HandleType = "socket"
	HandleServer    HandleType = "server"
	HandleProcess   HandleType = "process"
	HandleFile      HandleType = "file"
	HandleGoroutine HandleType = "goroutine"
	HandleCustom    HandleType = "custom"
)

// keepsProcessAlive reports whether handles of this kind are known to keep a
// test-runner process from exiting.
func (t HandleType) keepsProcessAlive() bool {
	switch t {
	case HandleTimer, HandleSocket, HandleServer, HandleProcess:
		return true
	default:
		return false
	}
}

// Handle is one active low-level handle at snapshot time.
type Handle struct {
	// ID identifies the handle across snapshots; two snapshots that both
	// see the same live handle produce the same ID.
	ID string
	// Type is the best-effort classification.
	Type HandleType
	// Description is human-readable context for reports.
	Description string
	// Stack is the captured creation stack for tracked handles, if stack
	// capture is enabled. Empty for handles found by OS introspection.
	Stack string
}

// Snapshot is a point-in-time list of active handles.
type Snapshot struct {
	TakenAt time.Time
	Handles []Handle
}

// Diff returns the handles present in after but not explainable by before.
// A nil before is treated as empty, so everything in after is a leak.
func Diff(before, after *Snapshot) []Handle {
	if after == nil {
		return nil
	}

	known := make(map[string]struct{})
	if before != nil {
		for _, h := range before.Handles {
			known[h.ID] = struct{}{}
		}
	}

	var leaks []Handle
	for _, h := range after.Handles {
		if _, ok := known[h.ID]; !ok {
			leaks = append(leaks, h)
		}
	}
	return leaks
}

// Snapshot captures the current handle set: tracked Terminables, OS-level
// handles from process introspection, and live goroutines, depending on the
// detector's options. Introspection failures degrade to empty contributions.
func (d *Detector) Snapshot() *Snapshot {
	snap := &Snapshot{TakenAt: time.Now()}

	snap.Handles = append(snap.Handles, d.trackedHandles()...)

	ctx := context.Background()
	if d.opts.SnapshotTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.SnapshotTimeout)
		defer cancel()
	}

	if d.opts.IncludeOS {
		snap.Handles = append(snap.Handles, d.osHandles(ctx)...)
	}
	if d.opts.IncludeGoroutines {
		snap.Handles = append(snap.Handles, d.goroutineHandles()...)
	}

	sort.Slice(snap.Handles, func(i, j int) bool {
		return snap.Handles[i].ID < snap.Handles[j].ID
	})
	return snap
}

// trackedHandles lists the currently tracked Terminables.
func (d *Detector) trackedHandles() []Handle {
	d.mu.Lock()
	defer d.mu.Unlock()

	handles := make([]Handle, 0, len(d.tracked))
	for id, t := range d.tracked {
		handles = append(handles, Handle{
			ID:          fmt.Sprintf("tracked:%d", id),
			Type:        t.handleType,
			Description: t.description,
			Stack:       t.stack,
		})
	}
	return handles
}

// osHandles lists open files, sockets, and child processes of this process
// via OS introspection. Each source degrades independently.
func (d *Detector) osHandles(ctx context.Context) []Handle {
	if d.proc == nil {
		return nil
	}

	var handles []Handle

	if files, err := d.proc.OpenFilesWithContext(ctx); err == nil {
		for _, f := range files {
			handles = append(handles, Handle{
				ID:          fmt.Sprintf("file:%d:%s", f.Fd, f.Path),
				Type:        HandleFile,
				Description: fmt.Sprintf("open file %s (fd %d)", f.Path, f.Fd),
			})
		}
	}

	if conns, err := d.proc.ConnectionsWithContext(ctx); err == nil {
		for _, c := range conns {
			typ := HandleSocket
			if c.Status == "LISTEN" {
				typ = HandleServer
			}
			handles = append(handles, Handle{
				ID: fmt.Sprintf("socket:%d:%s:%d-%s:%d",
					c.Fd, c.Laddr.IP, c.Laddr.Port, c.Raddr.IP, c.Raddr.Port),
				Type: typ,
				Description: fmt.Sprintf("socket %s:%d -> %s:%d (%s)",
					c.Laddr.IP, c.Laddr.Port, c.Raddr.IP, c.Raddr.Port, c.Status),
			})
		}
	}

	if children, err := d.proc.ChildrenWithContext(ctx); err == nil {
		for _, child := range children {
			name, _ := child.NameWithContext(ctx)
			handles = append(handles, Handle{
				ID:          fmt.Sprintf("process:%d", child.Pid),
				Type:        HandleProcess,
				Description: fmt.Sprintf("child process %s (pid %d)", name, child.Pid),
			})
		}
	}

	return handles
}

// goroutineHandles lists live goroutines, excluding runtime and test
// infrastructure.
func (d *Detector) goroutineHandles() []Handle {
	var handles []Handle
	for _, g := range captureGoroutines() {
		handles = append(handles, Handle{
			ID:          fmt.Sprintf("goroutine:%d", g.id),
			Type:        HandleGoroutine,
			Description: fmt.Sprintf("goroutine %d [%s] at %s", g.id, g.state, g.topFunction),
			Stack:       g.createdBy,
		})
	}
	return handles
}
