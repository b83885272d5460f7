package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/urbanfield/deployment-core/internal/audit"
	"github.com/urbanfield/deployment-core/internal/infrastructure/config"
)

// testConfig returns a configuration for the local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "deployd-dev-token",
		Org:           "urbanfield",
		Bucket:        "audit",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// skipIfNoInfluxDB skips the test if InfluxDB is not running.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	cfg := testConfig()
	r, err := audit.Connect(cfg)
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	r.Close()
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := audit.Connect(cfg)
	if !errors.Is(err, audit.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := audit.Connect(cfg)
	if !errors.Is(err, audit.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestRecordLifecycle(t *testing.T) {
	skipIfNoInfluxDB(t)

	r, err := audit.Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer r.Close()

	var writeErr error
	r.SetOnError(func(err error) { writeErr = err })

	r.Record(audit.Event{
		ResourceType:  "sensor",
		ResourceID:    "rain-gauge-1",
		Action:        audit.ActionCreated,
		CorrelationID: "corr-123",
	})
	r.RecordFailure(audit.Event{
		ResourceType:  "deployment",
		ResourceID:    "harbour-study",
		Action:        audit.ActionDeleted,
		CorrelationID: "corr-124",
	}, "NotFound")

	r.Flush()

	if writeErr != nil {
		t.Errorf("async write error: %v", writeErr)
	}

	if err := r.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestRecord_Disconnected(t *testing.T) {
	skipIfNoInfluxDB(t)

	r, err := audit.Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	r.Close()

	// Record after Close must be a silent no-op.
	r.Record(audit.Event{ResourceType: "sensor", ResourceID: "x", Action: audit.ActionUpdated})
	r.Flush()

	if err := r.HealthCheck(context.Background()); !errors.Is(err, audit.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}
