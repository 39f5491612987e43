package resweep

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/resweep/resweep/config"
	"github.com/resweep/resweep/errors"
	"github.com/resweep/resweep/event"
	"github.com/resweep/resweep/handles"
	"github.com/resweep/resweep/logging"
)

// Manager owns the resource registry, the cleanup orchestrator, and the
// handle detector. It is an explicit instance: the test-harness bootstrap
// constructs one and passes it to registration call sites, so nothing is
// shared process-wide by accident.
//
// All methods are safe for concurrent use. Exactly one cleanup pass runs at
// a time; see Cleanup.
type Manager struct {
	reg      *registry
	bus      *event.Bus
	detector *handles.Detector
	log      *logging.Logger

	cfgMu sync.RWMutex
	cfg   config.Config

	cleaning atomic.Bool
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger. Without it, the manager builds one
// from the config's logging section, falling back to a no-op logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithBus sets the event bus. Without it, the manager creates its own;
// consumers reach it via Bus.
func WithBus(b *event.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithDetector sets the handle detector. Without it, the manager builds one
// with default options bounded by the config's handle detection timeout.
func WithDetector(d *handles.Detector) Option {
	return func(m *Manager) { m.detector = d }
}

// New creates a Manager. A nil cfg means defaults.
func New(cfg *config.Config, opts ...Option) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}

	m := &Manager{
		reg: newRegistry(),
		cfg: *cfg,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.bus == nil {
		m.bus = event.NewBus()
	}
	if m.detector == nil {
		detOpts := handles.DefaultOptions()
		detOpts.SnapshotTimeout = cfg.HandleDetectionTimeout
		m.detector = handles.NewDetector(detOpts)
	}
	if m.log == nil {
		m.log = buildLogger(cfg.Logging)
	}
	return m
}

// buildLogger constructs a logger from the logging config, degrading to a
// no-op logger when the file cannot be opened.
func buildLogger(cfg config.LoggingConfig) *logging.Logger {
	if !cfg.Enabled {
		return logging.NopLogger()
	}
	l, err := logging.NewLogger(cfg.File, cfg.Level)
	if err != nil {
		return logging.NopLogger()
	}
	return l
}

// Bus returns the event bus carrying the lifecycle event stream.
func (m *Manager) Bus() *event.Bus {
	return m.bus
}

// Detector returns the handle detector.
func (m *Manager) Detector() *handles.Detector {
	return m.detector
}

// -----------------------------------------------------------------------------
// Registration
// -----------------------------------------------------------------------------

// Register adds a resource to the registry, overwriting any entry with the
// same ID. While a cleanup pass is running the registry is frozen:
// registration is rejected with ErrCleanupInProgress, logged, and published
// as a RegistrationRejectedEvent.
func (m *Manager) Register(res Resource) error {
	if res.ID == "" {
		return errors.New("resource ID must not be empty")
	}
	if res.Cleanup == nil {
		return errors.New("resource cleanup function must not be nil")
	}
	if res.Type == "" {
		res.Type = ResourceCustom
	}
	if !res.Type.Valid() {
		return errors.New("unknown resource type: " + string(res.Type))
	}

	if m.cleaning.Load() {
		m.log.Warn("registration rejected, cleanup pass in progress", "resource_id", res.ID)
		m.bus.Publish(event.NewRegistrationRejectedEvent(res.ID, "cleanup pass in progress"))
		return errors.ErrCleanupInProgress
	}

	overwrote := m.reg.insert(&res)
	m.log.Debug("resource registered",
		"resource_id", res.ID, "resource_type", string(res.Type),
		"priority", res.Priority, "overwrote", overwrote)
	m.bus.Publish(event.NewResourceRegisteredEvent(
		res.ID, string(res.Type), res.Priority, overwrote, res.Metadata))
	return nil
}

// RegisterFunc registers a bare cleanup function as a custom resource.
func (m *Manager) RegisterFunc(id string, fn CleanupFunc, priority int) error {
	return m.Register(Resource{
		ID:       id,
		Type:     ResourceCustom,
		Cleanup:  fn,
		Priority: priority,
	})
}

// Unregister removes a resource without invoking its cleanup. Returns
// whether it existed. Like Register, it is rejected while a pass is running.
func (m *Manager) Unregister(id string) bool {
	if m.cleaning.Load() {
		m.log.Warn("unregister rejected, cleanup pass in progress", "resource_id", id)
		return false
	}

	existed := m.reg.remove(id)
	m.bus.Publish(event.NewResourceUnregisteredEvent(id, existed))
	return existed
}

// ActiveResources returns a read-only snapshot of all registered resources
// in registration order.
func (m *Manager) ActiveResources() []Resource {
	return m.reg.list()
}

// ResourcesByType returns a read-only snapshot of the registered resources
// of one type.
func (m *Manager) ResourcesByType(t ResourceType) []Resource {
	return m.reg.listByType(t)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config returns a copy of the current configuration.
func (m *Manager) Config() config.Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

// UpdateConfig shallow-merges the patch into the current configuration.
// A pass that is already running keeps the configuration it snapshotted at
// entry; the patch applies from the next pass on.
func (m *Manager) UpdateConfig(p config.Patch) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	m.cfg = m.cfg.Apply(p)
}

// SetTimeout sets the graceful timeout.
func (m *Manager) SetTimeout(d time.Duration) {
	m.UpdateConfig(config.Patch{GracefulTimeout: &d})
}

// SetRetryAttempts sets the total attempts per resource.
func (m *Manager) SetRetryAttempts(n int) {
	m.UpdateConfig(config.Patch{MaxRetries: &n})
}

// WatchConfig loads the configuration file at path, applies it, and keeps
// applying changes as the file is edited. The caller owns the returned
// watcher and must Stop it when done.
func (m *Manager) WatchConfig(path string) (*config.Watcher, error) {
	w, err := config.NewWatcher(path, m.UpdateConfig)
	if err != nil {
		return nil, err
	}

	initial := w.Current()
	m.cfgMu.Lock()
	m.cfg = *initial
	m.cfgMu.Unlock()

	w.SetErrorCallback(func(err error) {
		m.log.Warn("config reload failed", "path", path, "error", err.Error())
	})
	w.Start()
	return w, nil
}

// snapshotConfig copies the configuration for the duration of one pass.
func (m *Manager) snapshotConfig() config.Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

// -----------------------------------------------------------------------------
// Handle introspection
// -----------------------------------------------------------------------------

// CaptureHandleBaseline snapshots the current handle set as the leak
// reference point. Call early, before test resources are created.
func (m *Manager) CaptureHandleBaseline() {
	m.detector.CaptureBaseline()
}

// DetectOpenHandles returns the handles the baseline cannot explain.
func (m *Manager) DetectOpenHandles() []handles.Handle {
	return m.detector.DetectLeaks()
}

// HandleReport renders the current handle state as human-readable text.
func (m *Manager) HandleReport() string {
	return m.detector.FormatReport()
}

// WouldBlockExit reports whether any leaked handle is of a kind known to
// keep the test-runner process alive past its expected exit.
func (m *Manager) WouldBlockExit() bool {
	return m.detector.WouldBlockExit()
}

// ForceCloseLeakedHandles best-effort closes every leaked handle with a
// known termination method.
func (m *Manager) ForceCloseLeakedHandles() handles.CloseResult {
	return m.detector.ForceCloseLeaked()
}
