package assistant

import (
	"fmt"

	"github.com/ChamsBouzaiene/duet/internal/engine"
	"github.com/ChamsBouzaiene/duet/internal/prompts"
)

// Builder constructs an Agent with a fluent API.
type Builder struct {
	cfg       engine.SessionConfig
	llm       engine.LLMClient
	hooks     engine.Hooks
	prompt    *prompts.Prompt
	rules     string
	promptErr error
}

// NewBuilder starts from cfg, which must already be validated.
func NewBuilder(cfg engine.SessionConfig) *Builder {
	return &Builder{cfg: cfg}
}

// WithLLM sets the model backend.
func (b *Builder) WithLLM(llm engine.LLMClient) *Builder {
	b.llm = llm
	return b
}

// WithHooks sets the hooks notified of model calls and retries.
func (b *Builder) WithHooks(hooks engine.Hooks) *Builder {
	b.hooks = hooks
	return b
}

// WithPrompt selects a registered system prompt version instead of the latest assistant prompt.
// An unknown prompt is reported by Build.
func (b *Builder) WithPrompt(id string, version prompts.PromptVersion) *Builder {
	b.prompt, b.promptErr = prompts.DefaultRegistry().Get(id, version)
	return b
}

// WithSystemMessage appends extra instructions to the system prompt.
func (b *Builder) WithSystemMessage(rules string) *Builder {
	b.rules = rules
	return b
}

// Build renders the system prompt and returns the agent.
func (b *Builder) Build() (*Agent, error) {
	if b.llm == nil {
		return nil, fmt.Errorf("LLM client not configured: use WithLLM")
	}
	if b.cfg.Model == "" {
		return nil, fmt.Errorf("model not configured")
	}
	if b.promptErr != nil {
		return nil, b.promptErr
	}
	if b.prompt == nil {
		p, err := prompts.DefaultRegistry().GetLatest(prompts.AssistantPromptID)
		if err != nil {
			return nil, err
		}
		b.prompt = p
	}

	pb, err := prompts.NewPromptBuilder(prompts.DefaultRegistry(), b.prompt.ID, b.prompt.Version)
	if err != nil {
		return nil, err
	}
	system, err := pb.
		AddFragment(b.rules).
		SetVariable("termination_phrase", b.cfg.TerminationPhrase).
		SetVariable("work_dir", b.cfg.WorkDir).
		SetVariable("block_timeout", b.cfg.BlockTimeout.String()).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build system prompt: %w", err)
	}

	processors := []engine.Processor{engine.TruncateLongOutputs(b.cfg.TruncateOutputAt)}
	if b.cfg.HistoryWindow > 0 {
		processors = append([]engine.Processor{engine.KeepLastN(b.cfg.HistoryWindow)}, processors...)
	}

	return &Agent{
		cfg:        b.cfg,
		llm:        b.llm,
		hooks:      b.hooks,
		system:     system,
		processors: processors,
	}, nil
}
