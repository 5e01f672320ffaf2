// Package sandbox runs code blocks as child processes, on the host or in Docker.
package sandbox

import (
	"context"
	"time"
)

// Result captures output of a command.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Runner runs one command inside a working directory.
//
// A non-zero exit status is reported in Result.Code, not as an error. Errors are
// reserved for commands that could not be started or supervised, and for
// cancellation of ctx (in which case any partial Result is still returned).
type Runner interface {
	// RunCmd runs name with args in dir. timeout <= 0 uses the runner's default.
	RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error)
}
