package resweep

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/resweep/resweep/config"
	"github.com/resweep/resweep/errors"
	"github.com/resweep/resweep/event"
	"github.com/resweep/resweep/handles"
)

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	m := New(nil)

	cfg := m.Config()
	if cfg.GracefulTimeout != 30*time.Second {
		t.Errorf("GracefulTimeout = %v, want 30s", cfg.GracefulTimeout)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if m.Bus() == nil || m.Detector() == nil {
		t.Error("New left bus or detector nil")
	}
}

func TestRegister_Validation(t *testing.T) {
	m := New(testConfig())
	noop := func(ctx context.Context) error { return nil }

	tests := []struct {
		name    string
		res     Resource
		wantErr bool
	}{
		{"empty id", Resource{Cleanup: noop}, true},
		{"nil cleanup", Resource{ID: "x"}, true},
		{"unknown type", Resource{ID: "x", Type: "quantum", Cleanup: noop}, true},
		{"valid", Resource{ID: "ok", Type: ResourceTimer, Cleanup: noop}, false},
		{"empty type defaults to custom", Resource{ID: "bare", Cleanup: noop}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Register(tt.res)
			if (err != nil) != tt.wantErr {
				t.Errorf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	res, ok := m.reg.get("bare")
	if !ok || res.Type != ResourceCustom {
		t.Errorf("empty type registered as %q, want %q", res.Type, ResourceCustom)
	}
}

func TestRegister_OverwriteKeepsSingleEntry(t *testing.T) {
	m := New(testConfig())
	noop := func(ctx context.Context) error { return nil }

	mustRegister(t, m, Resource{ID: "db", Cleanup: noop, Priority: 1})
	mustRegister(t, m, Resource{ID: "db", Cleanup: noop, Priority: 7})

	list := m.ActiveResources()
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	if list[0].Priority != 7 {
		t.Errorf("priority = %d, want 7", list[0].Priority)
	}
}

func TestRegisterFunc(t *testing.T) {
	m := New(testConfig())

	if err := m.RegisterFunc("quick", func(ctx context.Context) error { return nil }, 4); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	list := m.ActiveResources()
	if len(list) != 1 || list[0].Type != ResourceCustom || list[0].Priority != 4 {
		t.Errorf("registered = %+v", list)
	}
}

func TestUnregister(t *testing.T) {
	m := New(testConfig())
	mustRegister(t, m, Resource{
		ID:      "tmp",
		Cleanup: func(ctx context.Context) error { return nil },
	})

	if !m.Unregister("tmp") {
		t.Error("Unregister returned false for existing resource")
	}
	if m.Unregister("tmp") {
		t.Error("Unregister returned true for absent resource")
	}
}

func TestResourcesByType(t *testing.T) {
	m := New(testConfig())
	noop := func(ctx context.Context) error { return nil }

	mustRegister(t, m, Resource{ID: "d1", Type: ResourceDatabase, Cleanup: noop})
	mustRegister(t, m, Resource{ID: "s1", Type: ResourceServer, Cleanup: noop})

	if got := m.ResourcesByType(ResourceDatabase); len(got) != 1 || got[0].ID != "d1" {
		t.Errorf("ResourcesByType(database) = %v", got)
	}
}

func TestUpdateConfig(t *testing.T) {
	m := New(testConfig())

	m.SetTimeout(42 * time.Second)
	m.SetRetryAttempts(9)

	cfg := m.Config()
	if cfg.GracefulTimeout != 42*time.Second {
		t.Errorf("GracefulTimeout = %v, want 42s", cfg.GracefulTimeout)
	}
	if cfg.MaxRetries != 9 {
		t.Errorf("MaxRetries = %d, want 9", cfg.MaxRetries)
	}

	strict := true
	m.UpdateConfig(config.Patch{StrictMode: &strict})
	if !m.Config().StrictMode {
		t.Error("StrictMode patch did not apply")
	}
}

func TestWatchConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cleanup.yaml")
	if err := os.WriteFile(path, []byte("graceful_timeout: 7s\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := New(testConfig())
	w, err := m.WatchConfig(path)
	if err != nil {
		t.Fatalf("WatchConfig: %v", err)
	}
	defer w.Stop()

	if got := m.Config().GracefulTimeout; got != 7*time.Second {
		t.Fatalf("GracefulTimeout = %v, want 7s after initial load", got)
	}

	if err := os.WriteFile(path, []byte("graceful_timeout: 9s\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for m.Config().GracefulTimeout != 9*time.Second {
		select {
		case <-deadline:
			t.Fatalf("GracefulTimeout = %v, want 9s after file change", m.Config().GracefulTimeout)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestCleanup_EventSequence(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	m := New(cfg)

	var mu sync.Mutex
	var types []string
	m.Bus().SubscribeAll(func(e event.Event) {
		mu.Lock()
		types = append(types, e.EventType())
		mu.Unlock()
	})

	mustRegister(t, m, Resource{
		ID:      "ok",
		Cleanup: func(ctx context.Context) error { return nil },
	})
	mustRegister(t, m, Resource{
		ID:      "bad",
		Cleanup: func(ctx context.Context) error { return errors.New("boom") },
	})

	m.Cleanup(context.Background())

	want := []string{
		"resource.registered",
		"resource.registered",
		"cleanup.started",
		"cleanup.succeeded",
		"cleanup.failed",
		"cleanup.completed",
	}
	mu.Lock()
	defer mu.Unlock()
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
}

func TestCleanup_LeakBecomesWarning(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.DetectHandles = true
	det := handles.NewDetector(handles.Options{})
	m := New(cfg, WithDetector(det))

	timer := time.NewTimer(time.Hour)
	t.Cleanup(func() { timer.Stop() })

	mustRegister(t, m, Resource{
		ID: "leaky",
		Cleanup: func(ctx context.Context) error {
			det.TrackTimer(timer, "forgotten timer")
			return nil
		},
	})

	rep := m.Cleanup(context.Background())

	if rep.OpenHandles == nil {
		t.Fatal("OpenHandles is nil with detection enabled")
	}
	if len(rep.OpenHandles.Leaks) != 1 {
		t.Fatalf("leaks = %v, want 1", rep.OpenHandles.Leaks)
	}
	if len(rep.Warnings) != 1 || !strings.Contains(rep.Warnings[0], "forgotten timer") {
		t.Errorf("Warnings = %v, want one mentioning the timer", rep.Warnings)
	}
	if len(rep.Errors) != 0 {
		t.Errorf("Errors = %v, leaks should stay warnings outside strict mode", rep.Errors)
	}
}

func TestCleanup_StrictModePromotesLeaks(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.DetectHandles = true
	cfg.StrictMode = true
	det := handles.NewDetector(handles.Options{})
	m := New(cfg, WithDetector(det))

	timer := time.NewTimer(time.Hour)
	t.Cleanup(func() { timer.Stop() })

	mustRegister(t, m, Resource{
		ID: "leaky",
		Cleanup: func(ctx context.Context) error {
			det.TrackTimer(timer, "forgotten timer")
			return nil
		},
	})

	rep := m.Cleanup(context.Background())

	if len(rep.Errors) != 1 {
		t.Fatalf("Errors = %v, want exactly the leak", rep.Errors)
	}
	if len(rep.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none in strict mode", rep.Warnings)
	}
}

func TestManager_HandleDelegation(t *testing.T) {
	det := handles.NewDetector(handles.Options{})
	m := New(testConfig(), WithDetector(det))

	m.CaptureHandleBaseline()

	timer := time.NewTimer(time.Hour)
	t.Cleanup(func() { timer.Stop() })
	tracked := det.TrackTimer(timer, "delegation test timer")
	defer tracked.Release()

	leaks := m.DetectOpenHandles()
	if len(leaks) != 1 {
		t.Fatalf("leaks = %v, want 1", leaks)
	}
	if !m.WouldBlockExit() {
		t.Error("WouldBlockExit = false with a leaked timer")
	}
	if rep := m.HandleReport(); !strings.Contains(rep, "delegation test timer") {
		t.Errorf("HandleReport missing tracked handle:\n%s", rep)
	}

	result := m.ForceCloseLeakedHandles()
	if result.Closed != 1 || result.Failed != 0 {
		t.Errorf("ForceCloseLeakedHandles = %+v, want 1 closed", result)
	}
	if len(m.DetectOpenHandles()) != 0 {
		t.Error("leak still reported after force close")
	}
}
