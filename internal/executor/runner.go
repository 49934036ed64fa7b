// Package executor runs external processes with cancellation, timeouts and
// line-streamed output capture.
package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	deckerr "github.com/meow-stack/actiondeck/internal/errors"
	"github.com/meow-stack/actiondeck/internal/logging"
	"github.com/meow-stack/actiondeck/internal/types"
)

// Stream names passed to LineFunc.
const (
	Stdout = "stdout"
	Stderr = "stderr"
)

// LineFunc receives every captured output line. It may be called from two
// goroutines at once (one per stream).
type LineFunc func(stream, line string)

// Invocation is one fully resolved process launch.
type Invocation struct {
	Program string
	Args    []string
	Dir     string
	// Env is the complete child environment as KEY=value pairs.
	Env   []string
	Shell bool
	// Timeout of zero means no limit.
	Timeout time.Duration
	Stdout  types.StreamTarget
	Stderr  types.StreamTarget
	OnLine  LineFunc
}

// Result of a finished invocation. Stdout/Stderr are nil unless captured.
type Result struct {
	ExitCode int
	Stdout   *string
	Stderr   *string
	Duration time.Duration
	TimedOut bool
}

// Runner launches invocations.
type Runner interface {
	Run(ctx context.Context, inv *Invocation) (*Result, error)
}

// ProcessRunner runs invocations as local processes in their own process
// group so that cancellation reaches the whole tree.
type ProcessRunner struct {
	// Shell interprets shell-mode programs. Defaults to "/bin/sh".
	Shell string
	// KillGrace is the wait between SIGTERM and SIGKILL.
	KillGrace time.Duration
	// Inherit receives inherited streams. Defaults to os.Stdout/os.Stderr.
	InheritStdout io.Writer
	InheritStderr io.Writer

	logger *slog.Logger
}

// NewProcessRunner creates a ProcessRunner with default settings.
func NewProcessRunner(logger *slog.Logger) *ProcessRunner {
	if logger == nil {
		logger = logging.NewForTest()
	}
	return &ProcessRunner{
		Shell:         "/bin/sh",
		KillGrace:     3 * time.Second,
		InheritStdout: os.Stdout,
		InheritStderr: os.Stderr,
		logger:        logger,
	}
}

// Run starts the process and waits for it. A non-zero exit is reported in
// the Result, not as an error. Launch failures, timeouts and cancellation
// are PROC_* errors; failing to write a file: stream is an IO_* error.
func (r *ProcessRunner) Run(ctx context.Context, inv *Invocation) (*Result, error) {
	name, args := inv.Program, inv.Args
	if inv.Shell {
		shell := r.Shell
		if shell == "" {
			shell = "/bin/sh"
		}
		// The program is a shell snippet; argv become its positional parameters.
		args = append([]string{"-c", inv.Program + ` "$@"`, "sh"}, inv.Args...)
		name = shell
	}

	// Not CommandContext: cancellation is handled below to allow SIGTERM
	// before SIGKILL.
	cmd := exec.Command(name, args...)
	cmd.Dir = inv.Dir
	if inv.Env != nil {
		cmd.Env = inv.Env
	}

	var outW, errW *lineWriter
	if captured(inv.Stdout) {
		outW = newLineWriter(Stdout, inv.OnLine)
		cmd.Stdout = outW
	} else {
		cmd.Stdout = r.InheritStdout
	}
	if captured(inv.Stderr) {
		errW = newLineWriter(Stderr, inv.OnLine)
		cmd.Stderr = errW
	} else {
		cmd.Stderr = r.InheritStderr
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = r.grace() + time.Second

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, deckerr.ProcessLaunch(inv.Program, err)
	}
	r.logger.Debug("process started", "program", inv.Program, "pid", cmd.Process.Pid)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var timeout <-chan time.Time
	if inv.Timeout > 0 {
		timer := time.NewTimer(inv.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	res := &Result{}
	var runErr error

	select {
	case <-ctx.Done():
		r.kill(cmd, done)
		res.ExitCode = -1
		runErr = deckerr.ProcessCancelled(ctx.Err())

	case <-timeout:
		r.kill(cmd, done)
		res.ExitCode = -1
		res.TimedOut = true
		runErr = deckerr.ProcessTimeout(inv.Program, int(inv.Timeout/time.Millisecond))

	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				res.ExitCode = exitErr.ExitCode()
			} else {
				res.ExitCode = -1
				runErr = deckerr.ProcessLaunch(inv.Program, err)
			}
		}
	}
	res.Duration = time.Since(start)

	if outW != nil {
		text := outW.Close()
		res.Stdout = &text
	}
	if errW != nil {
		text := errW.Close()
		res.Stderr = &text
	}
	r.logger.Debug("process finished", "program", inv.Program, "exit_code", res.ExitCode, "duration", res.Duration)

	if runErr != nil {
		return res, runErr
	}
	if err := writeStream(inv.Stdout, res.Stdout); err != nil {
		return res, err
	}
	if err := writeStream(inv.Stderr, res.Stderr); err != nil {
		return res, err
	}
	return res, nil
}

func (r *ProcessRunner) grace() time.Duration {
	if r.KillGrace <= 0 {
		return 3 * time.Second
	}
	return r.KillGrace
}

// kill terminates the process group: SIGTERM, then SIGKILL after the grace
// period.
func (r *ProcessRunner) kill(cmd *exec.Cmd, done <-chan error) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)

	select {
	case <-done:
	case <-time.After(r.grace()):
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
	}
}

// writeStream writes captured text to a file: target. Parent directories are
// not created.
func writeStream(target types.StreamTarget, text *string) error {
	if !target.IsFile() || text == nil {
		return nil
	}
	if err := os.WriteFile(target.Path, []byte(*text), 0644); err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return deckerr.IOFileNotFound(target.Path).WithCause(err)
		case errors.Is(err, os.ErrPermission):
			return deckerr.IOPermissionDenied(target.Path, err)
		}
		return deckerr.IOWriteError(target.Path, err)
	}
	return nil
}

// CommandLine renders an invocation for logs and dry runs.
func CommandLine(inv *Invocation) string {
	parts := make([]string, 0, len(inv.Args)+1)
	parts = append(parts, quoteArg(inv.Program))
	for _, a := range inv.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if s == "" {
		return "''"
	}
	if strings.ContainsAny(s, " \t\n'\"\\$`|&;<>()*?[]{}") {
		return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
	}
	return s
}
