package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(dir string, scan ScanFunc, targets ...Target) Options {
	return Options{
		Targets: targets,
		PIDPath: filepath.Join(dir, "watcher.pid"),
		LogPath: filepath.Join(dir, "watcher.log"),
		Scan:    scan,
	}
}

func TestNewRequiresScanFunc(t *testing.T) {
	_, err := New(Options{PIDPath: "/tmp/x.pid"})
	assert.Error(t, err)
}

func TestWatcherRunsCycles(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var scanned []string
	scan := func(ctx context.Context, subnet string) error {
		mu.Lock()
		scanned = append(scanned, subnet)
		mu.Unlock()
		return nil
	}

	w, err := New(testOptions(dir, scan,
		Target{Subnet: "192.168.1.0/24", Interval: time.Hour},
		Target{Subnet: "10.0.0.0/24", Interval: time.Hour},
	))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(scanned) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	w.Stop()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"192.168.1.0/24", "10.0.0.0/24"}, scanned[:2])

	// PID file is gone after a clean stop.
	_, err = os.Stat(filepath.Join(dir, "watcher.pid"))
	assert.True(t, os.IsNotExist(err))
}

func TestWatcherSingleTargetFailureDoesNotAbortCycle(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var scanned []string
	scan := func(ctx context.Context, subnet string) error {
		mu.Lock()
		scanned = append(scanned, subnet)
		mu.Unlock()
		if subnet == "192.168.1.0/24" {
			return fmt.Errorf("network unreachable")
		}
		return nil
	}

	w, err := New(testOptions(dir, scan,
		Target{Subnet: "192.168.1.0/24", Interval: time.Hour},
		Target{Subnet: "10.0.0.0/24", Interval: time.Hour},
	))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(scanned) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	w.Stop()
	require.NoError(t, <-done)
}

func TestWatcherRefusesSecondInstance(t *testing.T) {
	dir := t.TempDir()

	block := make(chan struct{})
	scan := func(ctx context.Context, subnet string) error {
		<-block
		return nil
	}

	w1, err := New(testOptions(dir, scan, Target{Subnet: "10.0.0.0/24", Interval: time.Hour}))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w1.Start(context.Background()) }()

	// Wait for w1 to claim the PID file.
	pidPath := filepath.Join(dir, "watcher.pid")
	require.Eventually(t, func() bool {
		_, err := os.Stat(pidPath)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	w2, err := New(testOptions(dir, scan, Target{Subnet: "10.0.0.0/24", Interval: time.Hour}))
	require.NoError(t, err)
	err = w2.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
	assert.Contains(t, err.Error(), strconv.Itoa(os.Getpid()))

	close(block)
	w1.Stop()
	require.NoError(t, <-done)
}

func TestWatcherCleansStalePIDFile(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "watcher.pid")

	// A PID that cannot be a live process.
	require.NoError(t, os.WriteFile(pidPath, []byte("999999"), 0o644))

	scanned := make(chan string, 1)
	scan := func(ctx context.Context, subnet string) error {
		select {
		case scanned <- subnet:
		default:
		}
		return nil
	}

	w, err := New(testOptions(dir, scan, Target{Subnet: "10.0.0.0/24", Interval: time.Hour}))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	select {
	case <-scanned:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not start over a stale PID file")
	}

	w.Stop()
	require.NoError(t, <-done)
}

func TestWatcherContextCancelStops(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	scan := func(ctx context.Context, subnet string) error { return nil }
	w, err := New(testOptions(dir, scan, Target{Subnet: "10.0.0.0/24", Interval: time.Hour}))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}

func TestWatcherNoTargets(t *testing.T) {
	dir := t.TempDir()
	w, err := New(testOptions(dir, func(ctx context.Context, subnet string) error { return nil }))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
}

func TestMinInterval(t *testing.T) {
	w := &Watcher{targets: []Target{
		{Subnet: "a", Interval: 10 * time.Minute},
		{Subnet: "b", Interval: 2 * time.Minute},
		{Subnet: "c"},
	}}
	assert.Equal(t, 2*time.Minute, w.minInterval())

	empty := &Watcher{}
	assert.Equal(t, defaultInterval, empty.minInterval())
}

func TestReadStatus(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "watcher.pid")

	status := ReadStatus(pidPath)
	assert.False(t, status.Running)
	assert.Contains(t, status.Message, "no PID file")

	require.NoError(t, os.WriteFile(pidPath, []byte("garbage"), 0o644))
	status = ReadStatus(pidPath)
	assert.False(t, status.Running)
	assert.Contains(t, status.Message, "invalid")

	// Current process is definitely alive.
	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644))
	status = ReadStatus(pidPath)
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)

	// Stale PID files are cleaned on read.
	require.NoError(t, os.WriteFile(pidPath, []byte("999999"), 0o644))
	status = ReadStatus(pidPath)
	assert.False(t, status.Running)
	_, err := os.Stat(pidPath)
	assert.True(t, os.IsNotExist(err))
}

func TestSignalStopNotRunning(t *testing.T) {
	err := SignalStop(filepath.Join(t.TempDir(), "watcher.pid"))
	assert.Error(t, err)
}

func TestWatcherWritesLog(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "watcher.log")

	w, err := New(testOptions(dir, func(ctx context.Context, subnet string) error { return nil },
		Target{Subnet: "10.0.0.0/24", Interval: time.Hour}))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logPath)
		return err == nil && len(data) > 0
	}, 5*time.Second, 20*time.Millisecond)

	w.Stop()
	require.NoError(t, <-done)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "[INFO]")
	assert.Contains(t, content, "Watcher started")
}
