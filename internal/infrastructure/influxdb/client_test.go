package influxdb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glovelink/glove-core/internal/infrastructure/config"
	"github.com/glovelink/glove-core/internal/infrastructure/influxdb"
)

// testConfig matches the local dev InfluxDB in docker-compose.yml. The
// short flush interval keeps test feedback fast.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "glovelink-dev-token",
		Org:           "glovelink",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip connects to the dev server, skipping the test when it
// is not running. Returns a client that closes with the test.
func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()

	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	t.Cleanup(func() {
		client.Close() //nolint:errcheck
	})
	return client
}

// trackWriteErrors registers an error callback and returns a getter for
// the last async write failure.
func trackWriteErrors(t *testing.T, client *influxdb.Client) func() error {
	t.Helper()

	var mu sync.Mutex
	var writeErr error
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})
	return func() error {
		mu.Lock()
		defer mu.Unlock()
		return writeErr
	}
}

// flushAndCheck flushes pending points and reports any async error.
func flushAndCheck(t *testing.T, client *influxdb.Client, lastErr func() error) {
	t.Helper()

	client.Flush()
	time.Sleep(100 * time.Millisecond)
	if err := lastErr(); err != nil {
		t.Errorf("async write error = %v", err)
	}
}

func TestConnect(t *testing.T) {
	client := connectOrSkip(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	defer client.Close() //nolint:errcheck

	if !client.IsConnected() {
		t.Error("IsConnected() = false with default batch settings")
	}
}

func TestHealthCheck(t *testing.T) {
	client := connectOrSkip(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	client := connectOrSkip(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should return error for cancelled context")
	}
}

func TestWriteGestureMetric(t *testing.T) {
	client := connectOrSkip(t)
	lastErr := trackWriteErrors(t, client)

	client.WriteGestureMetric("GLV-test-001", "usr-test", "hello", 0.93)

	flushAndCheck(t, client, lastErr)
}

func TestWriteSensorMetric(t *testing.T) {
	client := connectOrSkip(t)
	lastErr := trackWriteErrors(t, client)

	client.WriteSensorMetric("GLV-test-002", "usr-test", "flex", "index_tip")
	// Position is optional for sensors like the IMU.
	client.WriteSensorMetric("GLV-test-002", "usr-test", "imu", "")

	flushAndCheck(t, client, lastErr)
}

func TestWriteDeviceStatus(t *testing.T) {
	client := connectOrSkip(t)
	lastErr := trackWriteErrors(t, client)

	client.WriteDeviceStatus("GLV-test-003", "online")
	client.WriteDeviceStatus("GLV-test-003", "offline")

	flushAndCheck(t, client, lastErr)
}

func TestClose(t *testing.T) {
	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}

	client.WriteGestureMetric("GLV-close-test", "usr-test", "bye", 0.5)

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	// Writes after Close are silently dropped.
	client.WriteGestureMetric("GLV-close-test", "usr-test", "bye", 0.5)
	client.Flush()
}
