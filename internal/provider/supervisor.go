package provider

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/thinglink-core/internal/infrastructure/config"
)

// BridgeState is the supervised process state.
type BridgeState string

const (
	BridgeStopped  BridgeState = "stopped"
	BridgeStarting BridgeState = "starting"
	BridgeRunning  BridgeState = "running"
	BridgeFailed   BridgeState = "failed"
)

// maxHealthFailures consecutive failed checks kill the bridge.
const maxHealthFailures = 3

// SupervisorConfig describes the bridge process.
type SupervisorConfig struct {
	Name    string
	Binary  string
	Args    []string
	Env     []string
	WorkDir string

	RestartOnFailure bool
	RestartDelay     time.Duration

	// MaxRestartAttempts limits restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is the wait between SIGTERM and SIGKILL.
	GracefulTimeout time.Duration

	// HealthCheck is run every HealthInterval while the bridge is up.
	// Nil disables the watchdog.
	HealthCheck    func(ctx context.Context) error
	HealthInterval time.Duration
}

// SupervisorConfigFrom maps the bridge section of the core config.
func SupervisorConfigFrom(cfg config.BridgeConfig) SupervisorConfig {
	return SupervisorConfig{
		Name:               "provider-bridge",
		Binary:             cfg.Binary,
		Args:               append([]string(nil), cfg.Args...),
		WorkDir:            cfg.WorkDir,
		RestartOnFailure:   cfg.RestartOnFailure,
		RestartDelay:       time.Duration(cfg.RestartDelaySeconds) * time.Second,
		MaxRestartAttempts: cfg.MaxRestartAttempts,
	}
}

func (c SupervisorConfig) withDefaults() SupervisorConfig {
	if c.Name == "" {
		c.Name = "provider-bridge"
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = 5 * time.Second
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = 10 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	return c
}

// BridgeStats is a snapshot for the health endpoint.
type BridgeStats struct {
	Name      string        `json:"name"`
	State     BridgeState   `json:"state"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// Supervisor runs the bridge binary, restarts it when it dies and stops
// it with SIGTERM, then SIGKILL.
type Supervisor struct {
	cfg    SupervisorConfig
	logger Logger

	mu        sync.RWMutex
	cmd       *exec.Cmd
	state     BridgeState
	restarts  int
	lastErr   error
	startedAt time.Time
	stopping  bool
	done      chan struct{}
}

// NewSupervisor creates a stopped supervisor.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	return &Supervisor{
		cfg:    cfg.withDefaults(),
		logger: noopLogger{},
		state:  BridgeStopped,
	}
}

// SetLogger sets the supervisor logger.
func (s *Supervisor) SetLogger(l Logger) {
	if l != nil {
		s.logger = l
	}
}

// Start launches the bridge and the goroutine that watches it.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.cfg.Binary == "" {
		return errors.New("provider: bridge binary not configured")
	}

	s.mu.Lock()
	if s.state == BridgeRunning || s.state == BridgeStarting {
		s.mu.Unlock()
		return fmt.Errorf("%s already running", s.cfg.Name)
	}
	s.state = BridgeStarting
	s.stopping = false
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.spawn(ctx); err != nil {
		s.mu.Lock()
		s.state = BridgeFailed
		s.lastErr = err
		close(s.done)
		s.mu.Unlock()
		return err
	}

	go s.watch(ctx)
	return nil
}

func (s *Supervisor) spawn(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.cfg.Binary, s.cfg.Args...) //nolint:gosec // binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if s.cfg.Env != nil {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	cmd.Dir = s.cfg.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("bridge stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("bridge stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.state = BridgeRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	go s.pipeLogs("stdout", stdout)
	go s.pipeLogs("stderr", stderr)

	s.logger.Info("bridge started", "name", s.cfg.Name, "pid", cmd.Process.Pid)
	return nil
}

// pipeLogs forwards the bridge's output line by line.
func (s *Supervisor) pipeLogs(stream string, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.logger.Debug("bridge output", "name", s.cfg.Name, "stream", stream, "line", sc.Text())
	}
}

// wait blocks until the bridge exits, ctx ends, or the health check fails
// maxHealthFailures times in a row (the bridge is then killed).
func (s *Supervisor) wait(ctx context.Context, cmd *exec.Cmd) error {
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	if s.cfg.HealthCheck == nil {
		select {
		case err := <-exited:
			return err
		case <-ctx.Done():
			return <-exited
		}
	}

	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case err := <-exited:
			return err
		case <-ctx.Done():
			return <-exited
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := s.cfg.HealthCheck(checkCtx)
			cancel()
			if err == nil {
				if failures > 0 {
					s.logger.Info("bridge health recovered", "name", s.cfg.Name, "after", failures)
				}
				failures = 0
				continue
			}

			failures++
			s.logger.Warn("bridge health check failed", "name", s.cfg.Name, "error", err, "consecutive", failures)
			if failures < maxHealthFailures {
				continue
			}
			s.logger.Error("bridge unresponsive, killing", "name", s.cfg.Name)
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL) //nolint:errcheck // exit is observed below
			}
			<-exited
			return fmt.Errorf("killed after %d failed health checks", failures)
		}
	}
}

func (s *Supervisor) watch(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()
	}()

	for {
		s.mu.RLock()
		cmd := s.cmd
		s.mu.RUnlock()

		err := s.wait(ctx, cmd)

		s.mu.Lock()
		if s.stopping || ctx.Err() != nil {
			s.state = BridgeStopped
			s.mu.Unlock()
			s.logger.Info("bridge stopped", "name", s.cfg.Name)
			return
		}
		s.state = BridgeFailed
		s.lastErr = err
		s.mu.Unlock()

		s.logger.Warn("bridge exited unexpectedly", "name", s.cfg.Name, "error", err)
		if !s.cfg.RestartOnFailure {
			return
		}

		s.mu.Lock()
		s.restarts++
		attempt := s.restarts
		s.mu.Unlock()
		if s.cfg.MaxRestartAttempts > 0 && attempt > s.cfg.MaxRestartAttempts {
			s.logger.Error("bridge restart limit reached", "name", s.cfg.Name, "attempts", attempt-1)
			return
		}

		s.logger.Info("restarting bridge", "name", s.cfg.Name, "attempt", attempt, "delay", s.cfg.RestartDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RestartDelay):
		}

		s.mu.RLock()
		stopping := s.stopping
		s.mu.RUnlock()
		if stopping {
			return
		}

		for {
			if err := s.spawn(ctx); err == nil {
				break
			} else {
				s.logger.Error("bridge restart failed", "name", s.cfg.Name, "error", err)
				s.mu.Lock()
				s.lastErr = err
				s.restarts++
				attempt = s.restarts
				s.mu.Unlock()
			}
			if s.cfg.MaxRestartAttempts > 0 && attempt > s.cfg.MaxRestartAttempts {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.RestartDelay):
			}
		}
	}
}

// Stop terminates the bridge process group.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.state != BridgeRunning && s.state != BridgeStarting {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	cmd := s.cmd
	done := s.done
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil || done == nil {
		return nil
	}
	pid := cmd.Process.Pid
	s.logger.Info("stopping bridge", "name", s.cfg.Name, "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("SIGTERM failed", "name", s.cfg.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.GracefulTimeout):
		s.logger.Warn("bridge ignored SIGTERM, killing", "name", s.cfg.Name, "timeout", s.cfg.GracefulTimeout)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing %s: %w", s.cfg.Name, err)
	}
	<-done
	return nil
}

// State returns the current state.
func (s *Supervisor) State() BridgeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Stats returns a snapshot of the supervised process.
func (s *Supervisor) Stats() BridgeStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := BridgeStats{Name: s.cfg.Name, State: s.state, Restarts: s.restarts}
	if s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
	}
	if s.state == BridgeRunning {
		st.Uptime = time.Since(s.startedAt)
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
