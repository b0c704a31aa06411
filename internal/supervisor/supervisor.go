package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/bsewire/internal/common"
	"github.com/ternarybob/bsewire/internal/interfaces"
	"github.com/ternarybob/bsewire/internal/models"
)

const (
	shutdownGrace     = 10 * time.Second
	freezeNotifyEvery = 120 * time.Second
)

// Supervisor keeps one worker process running: it gates starts on stable
// connectivity, stops the worker on network loss, restarts it after exits,
// and reports state changes through the notifier.
type Supervisor struct {
	config    *common.Config
	heartbeat *Heartbeat
	checker   *ConnectivityChecker
	stderr    *StderrMonitor
	notifier  interfaces.Notifier
	logger    arbor.ILogger

	lastFreezeNotify time.Time
}

func New(config *common.Config, notifier interfaces.Notifier, logger arbor.ILogger) *Supervisor {
	sup := config.Supervisor
	return &Supervisor{
		config:    config,
		heartbeat: NewHeartbeat(sup.HeartbeatFile, logger),
		checker:   NewConnectivityChecker(logger),
		stderr:    NewStderrMonitor(notifier, sup.StderrTail, sup.FuzzyThreshold, logger),
		notifier:  notifier,
		logger:    logger,
	}
}

// Run supervises the worker until ctx is cancelled. Always exits cleanly: the
// final heartbeat records supervisor_running=false.
func (s *Supervisor) Run(ctx context.Context) error {
	sup := s.config.Supervisor
	if len(sup.WorkerCmd) == 0 {
		return fmt.Errorf("supervisor worker_cmd is empty")
	}

	checkInterval := time.Duration(sup.InternetCheckIntervalSec) * time.Second

	go s.heartbeat.Run(ctx, time.Duration(sup.HeartbeatIntervalSec)*time.Second)
	go s.stderr.Run(ctx, time.Duration(sup.ErrorMsgIntervalSec)*time.Second)

	s.logger.Info().Str("worker", strings.Join(sup.WorkerCmd, " ")).Msg("Supervisor started")
	_ = s.notifier.Send(ctx, "Supervisor started")

	for ctx.Err() == nil {
		// Require a stable network before each (re)start
		if !s.checker.WaitStable(ctx, checkInterval) {
			break
		}
		s.heartbeat.Update(func(st *models.HeartbeatStatus) { st.InternetOnline = true })

		restart, err := s.runChildOnce(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("Worker spawn failed")
			_ = s.notifier.Send(ctx, fmt.Sprintf("Worker spawn failed: %v", err))
		}
		if !restart {
			break
		}
		if !sleepCtx(ctx, time.Duration(sup.RestartDelaySec)*time.Second) {
			break
		}
	}

	s.logger.Info().Msg("Supervisor stopping")
	_ = s.notifier.Send(context.Background(), "Supervisor stopped")
	// Heartbeat.Run writes the final record on ctx cancellation; give it a
	// moment before the process exits.
	time.Sleep(100 * time.Millisecond)
	return nil
}

// runChildOnce spawns the worker and blocks until it exits or must be
// stopped. Returns whether the supervisor should restart it.
func (s *Supervisor) runChildOnce(ctx context.Context) (bool, error) {
	sup := s.config.Supervisor

	cmd := exec.Command(sup.WorkerCmd[0], sup.WorkerCmd[1:]...)
	stdout, err := s.openStdoutLog()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Worker stdout log unavailable, discarding stdout")
	} else {
		cmd.Stdout = stdout
		defer stdout.Close()
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return true, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return true, fmt.Errorf("failed to start worker: %w", err)
	}
	go s.stderr.Attach(stderrPipe)

	s.heartbeat.Update(func(st *models.HeartbeatStatus) {
		st.ChildRunning = true
		st.ChildPID = cmd.Process.Pid
	})
	s.heartbeat.Write()
	s.logger.Info().Int("pid", cmd.Process.Pid).Msg("Worker started")

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	ticker := time.NewTicker(time.Duration(sup.InternetCheckIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case waitErr := <-done:
			s.onChildExit(ctx, exitCode(waitErr))
			return true, nil

		case <-ticker.C:
			if !s.checker.Online(ctx) {
				s.logger.Warn().Msg("Connectivity lost, stopping worker")
				_ = s.notifier.Send(ctx, "Internet connectivity lost, stopping worker")
				s.heartbeat.Update(func(st *models.HeartbeatStatus) { st.InternetOnline = false })
				s.stopChild(cmd, done)
				s.heartbeat.Update(func(st *models.HeartbeatStatus) {
					st.ChildRunning = false
					st.LastExitTime = time.Now()
				})
				s.heartbeat.Write()
				return true, nil
			}
			s.checkFreeze(ctx)

		case <-ctx.Done():
			s.logger.Info().Msg("Shutdown requested, stopping worker")
			s.stopChild(cmd, done)
			s.heartbeat.Update(func(st *models.HeartbeatStatus) { st.ChildRunning = false })
			return false, nil
		}
	}
}

// onChildExit records the exit, notifies with the stderr tail, and bumps the
// restart counter.
func (s *Supervisor) onChildExit(ctx context.Context, code int) {
	s.logger.Warn().Int("exit_code", code).Msg("Worker exited")

	s.heartbeat.Update(func(st *models.HeartbeatStatus) {
		st.ChildRunning = false
		st.ChildExitCode = code
		st.LastExitTime = time.Now()
		st.RestartCount++
	})
	s.heartbeat.Write()

	msg := ExitNotification(code, s.stderr.Tail())
	_ = s.notifier.Send(ctx, msg)
}

// ExitNotification formats the crash message sent when the worker exits.
func ExitNotification(code int, tail []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Worker exited. Exit code %d", code)
	if len(tail) > 0 {
		b.WriteString("\nLast stderr output:\n")
		b.WriteString(strings.Join(tail, "\n"))
	}
	return b.String()
}

// stopChild asks the worker to stop with SIGINT, escalating to SIGKILL after
// the grace period. Always drains the wait channel.
func (s *Supervisor) stopChild(cmd *exec.Cmd, done <-chan error) {
	if cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		s.logger.Debug().Err(err).Msg("SIGINT failed, killing worker")
		_ = cmd.Process.Kill()
		<-done
		return
	}

	timer := time.NewTimer(shutdownGrace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn().Msg("Worker ignored SIGINT, killing")
		_ = cmd.Process.Kill()
		<-done
	}
}

// checkFreeze notifies when the worker's own heartbeat file goes stale, which
// means the process is alive but its pipeline loop stopped making progress.
func (s *Supervisor) checkFreeze(ctx context.Context) {
	sup := s.config.Supervisor
	if sup.WorkerHeartbeatFile == "" {
		return
	}

	info, err := os.Stat(sup.WorkerHeartbeatFile)
	if err != nil {
		return // Absent until the worker's first completed iteration
	}

	age := time.Since(info.ModTime())
	if age < time.Duration(sup.FreezeTimeoutSec)*time.Second {
		return
	}
	if time.Since(s.lastFreezeNotify) < freezeNotifyEvery {
		return
	}
	s.lastFreezeNotify = time.Now()

	s.logger.Warn().Str("age", age.Round(time.Second).String()).Msg("Worker heartbeat stale")
	_ = s.notifier.Send(ctx, fmt.Sprintf("Worker appears frozen: heartbeat %s old", age.Round(time.Second)))
}

func (s *Supervisor) openStdoutLog() (*os.File, error) {
	dir := s.config.Logging.Dir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "worker.stdout.log")
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// exitCode extracts the process exit code from cmd.Wait's error.
func exitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
