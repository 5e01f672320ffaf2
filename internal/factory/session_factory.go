// Package factory wires the model backend, assistant, sandbox and executor
// into a runnable session.
package factory

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/ChamsBouzaiene/duet/internal/assistant"
	"github.com/ChamsBouzaiene/duet/internal/config"
	"github.com/ChamsBouzaiene/duet/internal/engine"
	"github.com/ChamsBouzaiene/duet/internal/engine/protocol"
	"github.com/ChamsBouzaiene/duet/internal/executor"
	"github.com/ChamsBouzaiene/duet/internal/providers"
	"github.com/ChamsBouzaiene/duet/internal/sandbox"
	"github.com/ChamsBouzaiene/duet/internal/session"
)

// Options are the collaborators a session can be given instead of building
// them from the resolved config.
type Options struct {
	SessionID string
	Logger    *log.Logger
	Hooks     []engine.Hook

	// Store and Index persist the transcript. Both are optional.
	Store *session.Store
	Index *session.SearchIndex

	LLM    engine.LLMClient // overrides the configured backend
	Runner sandbox.Runner   // overrides the configured sandbox
}

// Session is a wired assistant/executor pair ready to run one task.
type Session struct {
	ID        string
	Model     string
	WorkDir   string
	Assistant *assistant.Agent
	Executor  *executor.Executor

	llm     engine.LLMClient
	store   *session.Store
	titles  bool
	logger  *log.Logger
	closers []io.Closer
}

// NewSession builds a session from res. The caller must Close it.
func NewSession(res *config.Resolved, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	llm := opts.LLM
	if llm == nil {
		var err error
		if llm, err = providers.NewLLMClient(res.Backend); err != nil {
			return nil, fmt.Errorf("model backend: %w", err)
		}
	}

	s := &Session{
		ID:      opts.SessionID,
		Model:   res.Session.Model,
		WorkDir: res.Session.WorkDir,
		llm:     llm,
		store:   opts.Store,
		titles:  res.GenerateTitles,
		logger:  logger,
	}
	if s.ID == "" {
		s.ID = protocol.NewSessionID()
	}

	runner := opts.Runner
	if runner == nil {
		r, err := sandbox.NewRunner(res.Sandbox)
		if err != nil {
			return nil, fmt.Errorf("sandbox: %w", err)
		}
		runner = r
		if c, ok := r.(io.Closer); ok {
			s.closers = append(s.closers, c)
		}
	}

	hooks := engine.Hooks{engine.LoggerHook{L: logger}}
	if opts.Store != nil {
		hooks = append(hooks, &session.RecorderHook{
			Store:   opts.Store,
			Index:   opts.Index,
			Logger:  logger,
			WorkDir: res.Session.WorkDir,
		})
	}
	hooks = append(hooks, opts.Hooks...)

	agent, err := assistant.NewBuilder(res.Session).
		WithLLM(llm).
		WithHooks(hooks).
		WithSystemMessage(res.SystemMessage).
		Build()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Assistant = agent
	s.Executor = executor.New(res.Session, runner,
		executor.WithHooks(hooks...),
		executor.WithSessionID(s.ID),
		executor.WithLogger(logger),
		executor.WithMaxOutput(res.MaxOutput),
	)
	return s, nil
}

// Run sends task to the assistant and drives the session to termination.
// When titles are enabled and a store is set, the finished session is
// annotated with a generated title and summary.
func (s *Session) Run(ctx context.Context, task string) (*engine.State, error) {
	st, err := s.Executor.Initiate(ctx, s.Assistant, task)
	if st != nil && s.titles && s.store != nil && len(st.History) > 1 {
		sum := session.NewSummarizer(s.llm, s.Model)
		if aerr := sum.Annotate(context.WithoutCancel(ctx), s.store, st); aerr != nil {
			s.logger.Printf("⚠️  session title: %v", aerr)
		}
	}
	return st, err
}

// Close releases the sandbox.
func (s *Session) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// StartSession builds a session for res, runs task and releases it.
func StartSession(ctx context.Context, task string, res *config.Resolved, opts Options) (*engine.State, error) {
	s, err := NewSession(res, opts)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Run(ctx, task)
}
