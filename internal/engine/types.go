package engine

import (
	"context"
	"fmt"
)

// MessageRole represents the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleAssistant MessageRole = "assistant"
	RoleExecutor  MessageRole = "executor"
)

// CodeBlock is a fenced unit of source code found in a message.
type CodeBlock struct {
	Lang     string // Normalized language tag ("python", "sh", "javascript", or the raw tag if unknown)
	Source   string // Block body without the fences
	Filename string // Set when the first line carries a "# filename: <name>" header
	Index    int    // Position of the block in its message (0-based)
}

// ChatMessage is the provider-agnostic message we pass around.
// Messages are never modified once appended to a State.
type ChatMessage struct {
	Role       MessageRole // Role of the message sender
	Content    string      // Message text, including any fences
	Name       string      // Optional: agent name ("assistant", "executor")
	CodeBlocks []CodeBlock // Blocks extracted from Content (assistant messages only)
}

// Validate checks if the ChatMessage is valid.
func (m ChatMessage) Validate() error {
	switch m.Role {
	case RoleSystem, RoleAssistant, RoleExecutor:
	default:
		return fmt.Errorf("invalid message role: %s", m.Role)
	}
	if m.Role != RoleAssistant && len(m.CodeBlocks) > 0 {
		return fmt.Errorf("%s messages cannot carry code blocks", m.Role)
	}
	return nil
}

// Usage holds token accounting returned by providers.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
}

// Add accumulates u into the receiver.
func (u *Usage) Add(o Usage) {
	u.Prompt += o.Prompt
	u.Completion += o.Completion
	u.Total += o.Total
}

// LLMResponse is a normalized result of one chat call.
type LLMResponse struct {
	Assistant    ChatMessage
	Usage        Usage
	FinishReason string // "stop" | "length" | "content_filter"
}

// LLMClient abstracts your chosen SDK (OpenAI, Anthropic, etc.)
type LLMClient interface {
	Chat(ctx context.Context, model string, messages []ChatMessage, opts ChatOptions) (LLMResponse, error)
}

// ChatOptions keeps knobs you'll forward to the SDK.
type ChatOptions struct {
	Temperature     float32
	MaxOutputTokens int
	RetryConfig     *RetryConfig // Optional retry configuration (nil = use defaults)
}

// Execution status values reported in ExecutionResult.Status.
const (
	ExecStatusOK          = "ok"
	ExecStatusFailed      = "failed"
	ExecStatusTimeout     = "timeout"
	ExecStatusUnavailable = "unavailable"
	ExecStatusSkipped     = "skipped"
)

// TimeoutExitCode is reported for blocks killed after exceeding their timeout.
const TimeoutExitCode = 124

// ExecutionResult is the outcome of running one code block.
type ExecutionResult struct {
	Lang            string `json:"lang"`
	Filename        string `json:"filename,omitempty"`  // Workspace-relative file the block was saved as
	ExitCode        int    `json:"exit_code"`           // Exit code (0 = success)
	Stdout          string `json:"stdout"`              // Standard output
	Stderr          string `json:"stderr"`              // Standard error output
	TimedOut        bool   `json:"timed_out,omitempty"` // Whether the block was killed on timeout
	Status          string `json:"status,omitempty"`    // "ok", "failed", "timeout", "unavailable", "skipped"
	Reason          string `json:"reason,omitempty"`    // Reason for status (e.g., "unknown_language")
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
}

// Succeeded reports whether the block ran to completion with exit code 0.
func (r ExecutionResult) Succeeded() bool {
	return r.ExitCode == 0 && !r.TimedOut && r.Status != ExecStatusSkipped
}

// Execution aggregates the results of every block run in one executor turn.
type Execution struct {
	Results      []ExecutionResult `json:"results"`
	ExitCode     int               `json:"exit_code"` // Exit code of the last block that ran
	FilesChanged []string          `json:"files_changed,omitempty"`
}

// Failed reports whether any block in the turn did not succeed.
func (e Execution) Failed() bool {
	for _, r := range e.Results {
		if r.Status == ExecStatusSkipped {
			continue
		}
		if !r.Succeeded() {
			return true
		}
	}
	return false
}

// StepResult is what an Executor returns for one assistant message.
type StepResult struct {
	Reply     *ChatMessage // nil when the session is over
	Terminal  bool         // Termination phrase seen
	NoCode    bool         // Message carried no executable block
	Execution *Execution   // Nil unless at least one block ran
	Malformed []error      // ProtocolErrors recovered while extracting blocks
}

// Responder produces the next assistant message from the history.
type Responder interface {
	Respond(ctx context.Context, st *State) (ChatMessage, error)
}

// Executor consumes an assistant message and produces the next executor message.
type Executor interface {
	Step(ctx context.Context, msg ChatMessage) (StepResult, error)
}
