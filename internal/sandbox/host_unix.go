//go:build !windows
// +build !windows

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// waitDelay bounds how long Wait blocks on output pipes after the process group is killed.
const waitDelay = 2 * time.Second

// HostRunner runs blocks directly on the host machine without isolation.
// Each command gets its own process group so a timeout kills every descendant.
type HostRunner struct {
	config Config
}

// NewHostRunner returns a runner that executes on the host.
func NewHostRunner(config Config) *HostRunner {
	return &HostRunner{config: config}
}

// RunCmd runs name with args in dir, killing the whole process group on timeout
// or cancellation. Output produced before the kill is returned.
func (r *HostRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error) {
	timeout = r.config.timeout(timeout)

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), r.config.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = waitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return Result{}, err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-cctx.Done():
			// negative pid: signal the whole group
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	// reap anything the block left running in its group
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)

	res := Result{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	if ctx.Err() != nil {
		res.Code = -1
		return res, ctx.Err()
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.Code = -1
		return res, nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.Code = exitErr.ExitCode()
			return res, nil
		}
		// a background child kept the output pipes open after the block exited
		if errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil {
			res.Code = cmd.ProcessState.ExitCode()
			return res, nil
		}
		res.Code = 1
		return res, waitErr
	}
	return res, nil
}
