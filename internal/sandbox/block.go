package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/duet/internal/engine"
)

// DefaultMaxOutput caps stdout and stderr per block.
const DefaultMaxOutput = 64 * 1024

// BlockOptions tune a single RunBlock call.
type BlockOptions struct {
	Timeout   time.Duration
	MaxOutput int // Bytes kept per stream (0 = DefaultMaxOutput)
}

// EnsureWorkDir creates dir if it is missing. Failure is an *engine.ExecutionSetupError.
func EnsureWorkDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return &engine.ExecutionSetupError{Dir: dir, Err: errors.New("not a directory")}
		}
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &engine.ExecutionSetupError{Dir: dir, Err: err}
	}
	return nil
}

// FileName returns the workspace-relative file a block is saved as.
func FileName(block engine.CodeBlock, lang Language) string {
	if block.Filename != "" {
		return block.Filename
	}
	sum := sha256.Sum256([]byte(block.Source))
	return fmt.Sprintf("tmp_code_%s.%s", hex.EncodeToString(sum[:16]), lang.Ext)
}

// ResolveInWorkDir joins name onto workDir and rejects paths that leave it.
func ResolveInWorkDir(workDir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("filename %s is not in the workspace", name)
	}
	path := filepath.Join(workDir, name)
	rel, err := filepath.Rel(workDir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("filename %s is not in the workspace", name)
	}
	return path, nil
}

// RunBlock saves block into workDir and runs it with runner.
//
// Failures of the block itself (unknown language, bad filename, non-zero exit,
// timeout) are reported in the returned result. An error is returned only when
// the working directory is unusable (*engine.ExecutionSetupError) or ctx is done.
func RunBlock(ctx context.Context, runner Runner, workDir string, block engine.CodeBlock, opts BlockOptions) (engine.ExecutionResult, error) {
	res := engine.ExecutionResult{Lang: block.Lang}

	lang, ok := LookupLanguage(block.Lang)
	if !ok {
		res.ExitCode = 1
		res.Stderr = fmt.Sprintf("unknown language %s", block.Lang)
		res.Status = engine.ExecStatusUnavailable
		res.Reason = "unknown_language"
		return res, nil
	}

	name := FileName(block, lang)
	path, err := ResolveInWorkDir(workDir, name)
	if err != nil {
		res.Filename = name
		res.ExitCode = 1
		res.Stderr = err.Error()
		res.Status = engine.ExecStatusFailed
		res.Reason = "outside_workspace"
		return res, nil
	}
	res.Filename = filepath.ToSlash(name)

	if err := writeBlock(workDir, path, block.Source); err != nil {
		return res, err
	}

	interp, args := lang.Command(filepath.ToSlash(name))
	out, runErr := runner.RunCmd(ctx, workDir, interp, args, opts.Timeout)
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	maxOutput := opts.MaxOutput
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	res.Stdout, res.StdoutTruncated = truncateOutput(out.Stdout, maxOutput)
	res.Stderr, res.StderrTruncated = truncateOutput(out.Stderr, maxOutput)

	switch {
	case out.TimedOut:
		timeout := &engine.ExecutionTimeout{Filename: res.Filename, Timeout: opts.Timeout}
		res.ExitCode = engine.TimeoutExitCode
		res.TimedOut = true
		res.Status = engine.ExecStatusTimeout
		res.Reason = "timeout"
		res.Stderr = strings.TrimRight(res.Stderr, "\n")
		if res.Stderr != "" {
			res.Stderr += "\n"
		}
		res.Stderr += "Timeout: " + timeout.Error()
	case runErr != nil:
		res.ExitCode = 1
		res.Status = engine.ExecStatusUnavailable
		res.Reason = "start_failed"
		if errors.Is(runErr, exec.ErrNotFound) {
			res.ExitCode = 127
			res.Reason = "interpreter_not_found"
		}
		res.Stderr = strings.TrimSpace(res.Stderr + "\n" + runErr.Error())
	case out.Code != 0:
		res.ExitCode = out.Code
		res.Status = engine.ExecStatusFailed
	default:
		res.Status = engine.ExecStatusOK
	}
	return res, nil
}

// writeBlock saves source at path, recreating the working directory once if it vanished.
func writeBlock(workDir, path, source string) error {
	write := func() error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, []byte(source), 0o644)
	}
	if err := write(); err != nil {
		if err := EnsureWorkDir(workDir); err != nil {
			return err
		}
		if err := write(); err != nil {
			return &engine.ExecutionSetupError{Dir: workDir, Err: err}
		}
	}
	return nil
}

// truncateOutput keeps the head and tail of s when it exceeds max bytes.
func truncateOutput(s string, max int) (string, bool) {
	if len(s) <= max {
		return s, false
	}
	head, tail := engine.HeadTail(s, max/2)
	return head + "\n... [output truncated] ...\n" + tail, true
}
