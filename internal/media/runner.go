package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// RunResult holds the output and status of a completed subprocess.
type RunResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner abstracts subprocess execution so the toolkit can be faked in tests.
type Runner interface {
	Run(ctx context.Context, binary string, args ...string) (*RunResult, error)
}

// execRunner executes subprocesses via os/exec with process-group kill
// semantics: on context cancellation SIGTERM goes to the whole group first,
// SIGKILL after the grace period.
type execRunner struct {
	gracePeriod time.Duration
}

// NewRunner returns the production Runner.
func NewRunner() Runner {
	return &execRunner{gracePeriod: 5 * time.Second}
}

func (r *execRunner) Run(ctx context.Context, binary string, args ...string) (*RunResult, error) {
	if binary == "" {
		return nil, fmt.Errorf("media: binary is required")
	}

	c := exec.CommandContext(ctx, binary, args...) //nolint:gosec // argv is built from fixed toolkit flags
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = r.gracePeriod

	start := time.Now()
	err := c.Run()
	duration := time.Since(start)

	result := &RunResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
		Duration: duration,
	}
	if c.ProcessState != nil {
		result.ExitCode = c.ProcessState.ExitCode()
	}

	if err != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf("media: killed by context: %w", ctx.Err())
		}
		return result, fmt.Errorf("media: %s exit code %d: %w", binary, result.ExitCode, err)
	}
	return result, nil
}
