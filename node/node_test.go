package node

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/jamnode/jam/types"
)

type fakeBackend struct{}

func (fakeBackend) ProcessBlock(block json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (fakeBackend) Authorize(pub types.Ed25519Pub, payload json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

type fakeService struct {
	name    string
	started bool
	stopped bool
}

func (s *fakeService) Name() string { return s.name }
func (s *fakeService) Start() error { s.started = true; return nil }
func (s *fakeService) Stop() error  { s.stopped = true; return nil }

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.RPCPort = 0 // let the OS assign a port; ListenAndServe below isn't exercised directly
	return cfg
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.NumCores = 0
	if _, err := New(cfg, fakeBackend{}); err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestNewCreatesDataDirLayout(t *testing.T) {
	cfg := testConfig(t)
	if _, err := New(cfg, fakeBackend{}); err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, sub := range []string{"state", "blocks", "votes", "keystore"} {
		info, err := os.Stat(cfg.DataDir + "/" + sub)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected %s subdirectory to exist", sub)
		}
	}
}

func TestRegisterStartsAndStopsServices(t *testing.T) {
	cfg := testConfig(t)
	n, err := New(cfg, fakeBackend{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	svc := &fakeService{name: "test-service"}
	if err := n.Register(svc, 1); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !svc.started {
		t.Fatal("expected registered service to be started")
	}
	if !n.Running() {
		t.Fatal("expected node to report running")
	}

	// Starting twice is a no-op, not an error.
	if err := n.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if err := n.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !svc.stopped {
		t.Fatal("expected registered service to be stopped")
	}
	if n.Running() {
		t.Fatal("expected node to report not running after Stop")
	}
}

func TestMetricsReporterStartsAndStopsWithNode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics = true
	n, err := New(cfg, fakeBackend{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n.metricsReporter == nil {
		t.Fatal("expected metrics reporter to be created when Metrics is enabled")
	}

	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !n.metricsReporter.Running() {
		t.Fatal("expected metrics reporter to be running after Start")
	}
	if err := n.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if n.metricsReporter.Running() {
		t.Fatal("expected metrics reporter to be stopped after Stop")
	}
}

func TestHealthReportsRegisteredSubsystems(t *testing.T) {
	cfg := testConfig(t)
	n, err := New(cfg, fakeBackend{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n.RegisterHealthCheck("dummy", healthyChecker{})

	report := n.Health()
	if report.OverallStatus != StatusHealthy {
		t.Fatalf("expected healthy report, got %+v", report)
	}
	if len(report.Subsystems) != 1 {
		t.Fatalf("expected 1 subsystem, got %d", len(report.Subsystems))
	}
}

type healthyChecker struct{}

func (healthyChecker) Check() *SubsystemHealth {
	return &SubsystemHealth{Status: StatusHealthy}
}

func TestEventsReturnsUsableBus(t *testing.T) {
	cfg := testConfig(t)
	n, err := New(cfg, fakeBackend{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sub := n.Events().Subscribe(EventBlockProduced)
	n.Events().Publish(EventBlockProduced, nil)

	select {
	case ev := <-sub.Chan():
		if ev.Type != EventBlockProduced {
			t.Fatalf("unexpected event type %v", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
