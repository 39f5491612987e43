package handles

import (
	"fmt"
	"net"
	"os"
	"time"
)

// Terminable is the capability contract for anything the detector can close.
// Resource types a platform exposes as closeable implement it directly
// (net.Listener, net.Conn, *sql.DB); stdlib types that terminate under a
// different name are adapted by the Track* helpers below.
type Terminable interface {
	Close() error
}

// TerminableFunc adapts a plain function to the Terminable interface.
type TerminableFunc func() error

// Close calls the underlying function.
func (f TerminableFunc) Close() error { return f() }

// Tracked is a Terminable registered with a Detector. It stays in every
// snapshot until released or force-closed.
type Tracked struct {
	id          uint64
	handleType  HandleType
	description string
	stack       string
	target      Terminable
	detector    *Detector
}

// Release untracks the handle without invoking its termination method.
// Call it from the owner's own cleanup path once the underlying resource is
// gone. Releasing twice is a no-op.
func (t *Tracked) Release() {
	t.detector.untrack(t.id)
}

// Close invokes the handle's termination method. The handle is released
// only on success; a handle that failed to close is still open and stays
// visible in snapshots.
func (t *Tracked) Close() error {
	if err := t.target.Close(); err != nil {
		return err
	}
	t.Release()
	return nil
}

// Track registers a Terminable with the detector so it shows up in
// snapshots. The returned Tracked must be released when the underlying
// resource is closed by its owner.
func (d *Detector) Track(handleType HandleType, description string, target Terminable) *Tracked {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	t := &Tracked{
		id:          d.nextID,
		handleType:  handleType,
		description: description,
		target:      target,
		detector:    d,
	}
	if d.opts.CaptureStacks {
		t.stack = creationStack()
	}
	d.tracked[t.id] = t
	return t
}

// TrackTimer tracks a *time.Timer; force-closing stops it.
func (d *Detector) TrackTimer(timer *time.Timer, description string) *Tracked {
	return d.Track(HandleTimer, description, TerminableFunc(func() error {
		timer.Stop()
		return nil
	}))
}

// TrackTicker tracks a *time.Ticker; force-closing stops it.
func (d *Detector) TrackTicker(ticker *time.Ticker, description string) *Tracked {
	return d.Track(HandleTimer, description, TerminableFunc(func() error {
		ticker.Stop()
		return nil
	}))
}

// TrackListener tracks a net.Listener as a server handle.
func (d *Detector) TrackListener(l net.Listener, description string) *Tracked {
	if description == "" && l.Addr() != nil {
		description = fmt.Sprintf("listener on %s", l.Addr())
	}
	return d.Track(HandleServer, description, l)
}

// TrackConn tracks a net.Conn as a socket handle.
func (d *Detector) TrackConn(c net.Conn, description string) *Tracked {
	if description == "" && c.RemoteAddr() != nil {
		description = fmt.Sprintf("conn to %s", c.RemoteAddr())
	}
	return d.Track(HandleSocket, description, c)
}

// TrackProcess tracks a child *os.Process; force-closing kills it.
func (d *Detector) TrackProcess(p *os.Process, description string) *Tracked {
	if description == "" {
		description = fmt.Sprintf("child process pid %d", p.Pid)
	}
	return d.Track(HandleProcess, description, TerminableFunc(func() error {
		return p.Kill()
	}))
}
