// Package watcher is the single-instance scheduler that drives the
// scan → classify → persist chain per target on a fixed cadence, with
// PID-file-based mutual exclusion and a rotating log file.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Target is one scheduled scan target.
type Target struct {
	Subnet   string
	Interval time.Duration
	Label    string
}

// ScanFunc performs one full scan cycle for a subnet.
type ScanFunc func(ctx context.Context, subnet string) error

// defaultInterval applies when a target carries no cadence of its own.
const defaultInterval = 5 * time.Minute

// Watcher runs scan cycles until stopped. One instance per PID file.
type Watcher struct {
	targets  []Target
	pidPath  string
	logPath  string
	scan     ScanFunc
	fileLock *flock.Flock
	logger   zerolog.Logger
	logSink  *lumberjack.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Options configures a Watcher.
type Options struct {
	Targets []Target
	PIDPath string // required
	LogPath string // defaults to <dir of PIDPath>/watcher.log when empty
	Scan    ScanFunc
}

// New builds a Watcher. The scan function is required.
func New(opts Options) (*Watcher, error) {
	if opts.Scan == nil {
		return nil, fmt.Errorf("watcher: scan function is required")
	}
	if opts.PIDPath == "" {
		return nil, fmt.Errorf("watcher: pid path is required")
	}

	if err := os.MkdirAll(filepath.Dir(opts.PIDPath), 0o755); err != nil {
		return nil, fmt.Errorf("watcher: create state directory: %w", err)
	}

	logPath := opts.LogPath
	if logPath == "" {
		logPath = filepath.Join(filepath.Dir(opts.PIDPath), "watcher.log")
	}

	sink := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    5, // megabytes
		MaxBackups: 3,
	}
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        sink,
		NoColor:    true,
		TimeFormat: "2006-01-02 15:04:05",
		FormatLevel: func(i any) string {
			return "[" + strings.ToUpper(fmt.Sprintf("%s", i)) + "]"
		},
	}).With().Timestamp().Logger()

	return &Watcher{
		targets:  opts.Targets,
		pidPath:  opts.PIDPath,
		logPath:  logPath,
		scan:     opts.Scan,
		fileLock: flock.New(opts.PIDPath + ".lock"),
		logger:   logger,
		logSink:  sink,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start claims the PID file and runs scan cycles until Stop is called or
// ctx is canceled. A live watcher on the same PID file makes Start fail
// with "watcher already running (PID N)"; a stale PID file is cleaned.
func (w *Watcher) Start(ctx context.Context) error {
	locked, err := w.fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("watcher: acquire lock: %w", err)
	}
	if !locked {
		pid, _ := readPIDFile(w.pidPath)
		return fmt.Errorf("watcher already running (PID %d)", pid)
	}
	defer w.fileLock.Unlock()

	if pid, err := readPIDFile(w.pidPath); err == nil {
		if processAlive(pid) {
			return fmt.Errorf("watcher already running (PID %d)", pid)
		}
		// Stale PID file left by a dead watcher.
		_ = os.Remove(w.pidPath)
	}

	if err := os.WriteFile(w.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("watcher: write pid file: %w", err)
	}
	defer w.cleanup()

	w.logger.Info().Int("pid", os.Getpid()).Int("targets", len(w.targets)).Msg("Watcher started")

	if len(w.targets) == 0 {
		w.logger.Warn().Msg("No targets configured, exiting")
		return nil
	}

	interval := w.minInterval()
	for {
		w.runCycle(ctx)

		select {
		case <-w.stopCh:
			w.logger.Info().Msg("Watcher stopped")
			return nil
		case <-ctx.Done():
			w.logger.Info().Msg("Watcher stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

// Stop wakes the cycle loop and makes Start return after the in-flight
// target scan completes.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// LogPath returns the resolved rotating-log location.
func (w *Watcher) LogPath() string {
	return w.logPath
}

// minInterval is the shortest interval across targets; targets without one
// count as the default cadence.
func (w *Watcher) minInterval() time.Duration {
	min := time.Duration(0)
	for _, t := range w.targets {
		interval := t.Interval
		if interval <= 0 {
			interval = defaultInterval
		}
		if min == 0 || interval < min {
			min = interval
		}
	}
	if min == 0 {
		min = defaultInterval
	}
	return min
}

// runCycle scans every target sequentially; one failing target never
// aborts the rest of the cycle.
func (w *Watcher) runCycle(ctx context.Context) {
	for _, target := range w.targets {
		if target.Subnet == "" {
			continue
		}
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		w.logger.Info().Str("target", target.Subnet).Msg("Scanning")
		if err := w.scan(ctx, target.Subnet); err != nil {
			w.logger.Error().Err(err).Str("target", target.Subnet).Msg("Scan failed")
			continue
		}
		w.logger.Info().Str("target", target.Subnet).Msg("Scan complete")
	}
}

func (w *Watcher) cleanup() {
	if pid, err := readPIDFile(w.pidPath); err == nil && pid == os.Getpid() {
		_ = os.Remove(w.pidPath)
	}
	_ = w.logSink.Close()
}

// Status describes the watcher's liveness as seen from outside.
type Status struct {
	Running bool
	PID     int
	Message string
}

// ReadStatus inspects the PID file and probes the referenced process with
// a null signal. Stale PID files are cleaned on read.
func ReadStatus(pidPath string) Status {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Status{Message: "Not running (no PID file)."}
		}
		return Status{Message: "Not running (invalid PID file)."}
	}

	if processAlive(pid) {
		return Status{Running: true, PID: pid, Message: fmt.Sprintf("Running (PID %d).", pid)}
	}

	_ = os.Remove(pidPath)
	return Status{Message: "Not running (stale PID cleaned)."}
}

// SignalStop sends SIGTERM to the watcher referenced by the PID file.
func SignalStop(pidPath string) error {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("watcher is not running")
	}
	if !processAlive(pid) {
		_ = os.Remove(pidPath)
		return fmt.Errorf("watcher is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find watcher process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("stop watcher (PID %d): %w", pid, err)
	}
	return nil
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}

// processAlive probes a PID with signal 0.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
