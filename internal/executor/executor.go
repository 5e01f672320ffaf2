// Package executor implements the agent that runs the assistant's code blocks
// and reports the results back into the conversation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ChamsBouzaiene/duet/internal/codeblock"
	"github.com/ChamsBouzaiene/duet/internal/engine"
	"github.com/ChamsBouzaiene/duet/internal/engine/protocol"
	"github.com/ChamsBouzaiene/duet/internal/prompts"
	"github.com/ChamsBouzaiene/duet/internal/sandbox"
	"github.com/ChamsBouzaiene/duet/internal/workspace"
)

// Name is the agent name set on executor messages.
const Name = "executor"

// Executor runs code blocks from assistant messages inside one working directory.
// It is driven by engine.Run and is not safe for concurrent use.
type Executor struct {
	cfg       engine.SessionConfig
	runner    sandbox.Runner
	hooks     engine.Hooks
	sessionID string
	maxOutput int
	logger    *log.Logger

	matcher workspace.Matcher
	snap    workspace.Snapshot
}

// Option configures an Executor.
type Option func(*Executor)

// WithHooks registers lifecycle hooks for sessions started with Initiate.
func WithHooks(hooks ...engine.Hook) Option {
	return func(e *Executor) { e.hooks = append(e.hooks, hooks...) }
}

// WithSessionID fixes the ID of the next session instead of generating one.
func WithSessionID(id string) Option {
	return func(e *Executor) { e.sessionID = id }
}

// WithMaxOutput caps the bytes of stdout and stderr kept per block.
func WithMaxOutput(n int) Option {
	return func(e *Executor) { e.maxOutput = n }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New creates an executor. cfg must already be validated.
func New(cfg engine.SessionConfig, runner sandbox.Runner, opts ...Option) *Executor {
	e := &Executor{
		cfg:    cfg,
		runner: runner,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initiate starts a session: it sends task as the first message and runs the
// loop against assistant until a termination condition is met.
//
// The returned state always carries the full history, also when err is non-nil.
func (e *Executor) Initiate(ctx context.Context, assistant engine.Responder, task string) (*engine.State, error) {
	if strings.TrimSpace(task) == "" {
		return nil, errors.New("task is required")
	}

	id := e.sessionID
	if id == "" {
		id = protocol.NewSessionID()
	}
	st := engine.NewState(id, e.cfg)
	e.hooks.OnSessionStart(ctx, st)

	if err := sandbox.EnsureWorkDir(e.cfg.WorkDir); err != nil {
		st.Terminate(engine.ReasonError, err)
		e.hooks.OnDone(ctx, st)
		return st, err
	}
	e.matcher = workspace.NewIgnoreMatcher(e.cfg.WorkDir)
	e.snap = e.takeSnapshot()

	first := engine.ChatMessage{Role: engine.RoleExecutor, Name: Name, Content: task}
	if err := engine.AppendMessage(ctx, st, e.hooks, first); err != nil {
		st.Terminate(engine.ReasonError, err)
		e.hooks.OnDone(ctx, st)
		return st, err
	}

	err := engine.Run(ctx, assistant, e, st, e.hooks)
	return st, err
}

// Step handles one assistant message. The termination phrase only ends the
// session when the message carries no runnable code.
//
// Block failures and timeouts are reported in the reply; the returned error is
// reserved for an unusable working directory and cancellation.
func (e *Executor) Step(ctx context.Context, msg engine.ChatMessage) (engine.StepResult, error) {
	blocks, malformed := codeblock.Extract(msg.Content)
	for _, err := range malformed {
		e.logger.Printf("⚠️  %v", err)
	}

	if len(blocks) == 0 {
		if e.isTermination(msg.Content) {
			return engine.StepResult{Terminal: true, Malformed: malformed}, nil
		}
		content, err := prompts.Render(prompts.NoCodePromptID, map[string]string{
			"termination_phrase": e.cfg.TerminationPhrase,
		})
		if err != nil {
			return engine.StepResult{}, err
		}
		reply := engine.ChatMessage{Role: engine.RoleExecutor, Name: Name, Content: content}
		return engine.StepResult{Reply: &reply, NoCode: true, Malformed: malformed}, nil
	}

	if err := sandbox.EnsureWorkDir(e.cfg.WorkDir); err != nil {
		return engine.StepResult{Malformed: malformed}, err
	}
	if e.matcher == nil {
		e.matcher = workspace.NewIgnoreMatcher(e.cfg.WorkDir)
		e.snap = e.takeSnapshot()
	}

	exec, err := e.runBlocks(ctx, blocks)
	if err != nil {
		return engine.StepResult{Execution: exec, Malformed: malformed}, err
	}

	after := e.takeSnapshot()
	exec.FilesChanged = producedFiles(workspace.Changes(e.snap, after), exec.Results)
	e.snap = after

	reply := engine.ChatMessage{Role: engine.RoleExecutor, Name: Name, Content: FormatReply(*exec, malformed)}
	return engine.StepResult{Reply: &reply, Execution: exec, Malformed: malformed}, nil
}

// runBlocks runs blocks in order and stops at the first one that does not succeed.
// The remaining blocks are reported as skipped.
func (e *Executor) runBlocks(ctx context.Context, blocks []engine.CodeBlock) (*engine.Execution, error) {
	exec := &engine.Execution{}
	opts := sandbox.BlockOptions{Timeout: e.cfg.BlockTimeout, MaxOutput: e.maxOutput}

	for i, block := range blocks {
		e.logger.Printf("▶️  Running block %d/%d (%s)", i+1, len(blocks), codeblock.Summary([]engine.CodeBlock{block}))
		res, err := sandbox.RunBlock(ctx, e.runner, e.cfg.WorkDir, block, opts)
		if err != nil {
			return exec, err
		}
		exec.Results = append(exec.Results, res)
		exec.ExitCode = res.ExitCode

		if !res.Succeeded() {
			for _, rest := range blocks[i+1:] {
				exec.Results = append(exec.Results, engine.ExecutionResult{
					Lang:     rest.Lang,
					Filename: rest.Filename,
					Status:   engine.ExecStatusSkipped,
					Reason:   "previous_block_failed",
				})
			}
			break
		}
	}
	return exec, nil
}

func (e *Executor) isTermination(content string) bool {
	phrase := e.cfg.TerminationPhrase
	return phrase != "" && strings.Contains(strings.TrimSpace(content), phrase)
}

func (e *Executor) takeSnapshot() workspace.Snapshot {
	snap, err := workspace.Take(e.cfg.WorkDir, e.matcher, e.snap)
	if err != nil {
		e.logger.Printf("⚠️  Workspace snapshot failed: %v", err)
		return e.snap
	}
	return snap
}

// producedFiles drops the block sources themselves from changed.
func producedFiles(changed []string, results []engine.ExecutionResult) []string {
	sources := make(map[string]bool, len(results))
	for _, r := range results {
		if r.Filename != "" {
			sources[r.Filename] = true
		}
	}
	var out []string
	for _, f := range changed {
		if !sources[f] {
			out = append(out, f)
		}
	}
	return out
}

// FormatReply renders an execution as the executor's message to the assistant.
func FormatReply(exec engine.Execution, malformed []error) string {
	status := "execution succeeded"
	if exec.Failed() {
		status = "execution failed"
	}

	ran := 0
	for _, r := range exec.Results {
		if r.Status != engine.ExecStatusSkipped {
			ran++
		}
	}

	var parts []string
	for i, r := range exec.Results {
		if r.Status == engine.ExecStatusSkipped {
			parts = append(parts, fmt.Sprintf("[block %d skipped: an earlier block failed]", i+1))
			continue
		}
		if ran > 1 {
			name := r.Filename
			if name == "" {
				name = r.Lang
			}
			parts = append(parts, fmt.Sprintf("[block %d: %s, exitcode %d]", i+1, name, r.ExitCode))
		}
		if out := joinOutput(r.Stdout, r.Stderr); out != "" {
			parts = append(parts, out)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "exitcode: %d (%s)\n", exec.ExitCode, status)
	b.WriteString("Code output: ")
	b.WriteString(strings.Join(parts, "\n"))
	if len(exec.FilesChanged) > 0 {
		fmt.Fprintf(&b, "\n\nFiles changed: %s", strings.Join(exec.FilesChanged, ", "))
	}
	for _, err := range malformed {
		fmt.Fprintf(&b, "\n\nNote: %v (treated as text, not run)", err)
	}
	b.WriteString("\n")
	return b.String()
}

func joinOutput(stdout, stderr string) string {
	stdout = strings.TrimRight(stdout, "\n")
	stderr = strings.TrimRight(stderr, "\n")
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	}
	return stdout + "\n" + stderr
}
