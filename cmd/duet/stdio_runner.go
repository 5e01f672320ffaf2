package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/duet/internal/config"
	"github.com/ChamsBouzaiene/duet/internal/engine"
	engineprotocol "github.com/ChamsBouzaiene/duet/internal/engine/protocol"
	"github.com/ChamsBouzaiene/duet/internal/factory"
	"github.com/ChamsBouzaiene/duet/internal/sandbox"
	"github.com/ChamsBouzaiene/duet/internal/workspace"
)

func runStdIOEngine(ctx context.Context, env *runtimeEnv, flags *sessionFlags) error {
	log.Println("🔌 Starting engine stdio bridge (--stdio)")
	runner := newStdIORunner(os.Stdin, os.Stdout, env, flags)
	runner.emitEvent(engineprotocol.NewStatusEvent("", "engine_ready", "stdio protocol ready"))
	return runner.Run(ctx)
}

// stdioRunner serves sessions over newline-delimited JSON: commands on in, events on out.
type stdioRunner struct {
	scanner *bufio.Scanner
	writer  *bufio.Writer
	events  chan engineprotocol.Event
	env     *runtimeEnv
	flags   *sessionFlags

	// newSession is factory.NewSession unless replaced in tests.
	newSession func(*config.Resolved, factory.Options) (*factory.Session, error)

	mu       sync.Mutex
	sessions map[string]*activeSession
	wg       sync.WaitGroup
}

type activeSession struct {
	id     string
	cancel context.CancelFunc
}

func newStdIORunner(in io.Reader, out io.Writer, env *runtimeEnv, flags *sessionFlags) *stdioRunner {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	return &stdioRunner{
		scanner:    scanner,
		writer:     bufio.NewWriter(out),
		events:     make(chan engineprotocol.Event, 256),
		env:        env,
		flags:      flags,
		newSession: factory.NewSession,
		sessions:   make(map[string]*activeSession),
	}
}

// scanLines feeds scanner lines into the returned channel, which is closed at
// EOF or once ctx is done.
func scanLines(ctx context.Context, scanner *bufio.Scanner) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// Run reads commands until in is exhausted or ctx is cancelled. Running
// sessions are cancelled and drained before Run returns.
func (r *stdioRunner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go r.flushEvents(errCh)

	lines := scanLines(ctx, r.scanner)

	eof := false
	for !eof {
		select {
		case <-ctx.Done():
			r.cancelAll()
			eof = true
		case line, ok := <-lines:
			if !ok {
				eof = true
				if err := r.scanner.Err(); err != nil {
					r.emitEvent(engineprotocol.NewErrorEvent("", fmt.Sprintf("stdin error: %v", err), "protocol_error", ""))
				}
				continue
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			// cancel_request must be handled while a session is running
			if err := r.handleLine(ctx, line); err != nil {
				log.Printf("stdio command error: %v", err)
			}
		}
	}

	// running sessions finish on EOF and are cancelled on interrupt
	r.wg.Wait()
	close(r.events)
	return <-errCh
}

func (r *stdioRunner) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		s.cancel()
	}
}

func (r *stdioRunner) flushEvents(errCh chan<- error) {
	for ev := range r.events {
		if err := r.writeEvent(ev); err != nil {
			errCh <- err
			// keep draining so emitters never block
			for range r.events {
			}
			return
		}
	}
	errCh <- r.writer.Flush()
}

func (r *stdioRunner) writeEvent(ev engineprotocol.Event) error {
	payload, err := engineprotocol.MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := r.writer.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return r.writer.Flush()
}

func (r *stdioRunner) emitEvent(ev engineprotocol.Event) {
	select {
	case r.events <- ev:
	default:
		log.Printf("stdio: dropping event %s due to full buffer", ev.GetType())
	}
}

func (r *stdioRunner) handleLine(ctx context.Context, line string) error {
	cmd, err := engineprotocol.DecodeCommand([]byte(line))
	if err != nil {
		r.emitEvent(engineprotocol.NewErrorEvent("", err.Error(), "invalid_command", truncate(line, 256)))
		return err
	}

	switch c := cmd.(type) {
	case engineprotocol.StartSessionCommand:
		if err := r.startSession(ctx, c); err != nil {
			r.emitEvent(engineprotocol.NewErrorEvent(c.SessionID, err.Error(), "session_error", ""))
			return err
		}
		return nil
	case engineprotocol.CancelRequestCommand:
		r.mu.Lock()
		s, ok := r.sessions[c.SessionID]
		r.mu.Unlock()
		if !ok {
			r.emitEvent(engineprotocol.NewErrorEvent(c.SessionID, "session not found: "+c.SessionID, "session_error", ""))
			return nil
		}
		s.cancel()
		r.emitEvent(engineprotocol.NewCancelledEvent(c.SessionID, "Cancelled by user request"))
		return nil
	case engineprotocol.GetConfigCommand:
		cfg, err := r.env.Config.Load()
		if err != nil {
			r.emitEvent(engineprotocol.NewErrorEvent("", err.Error(), "config_error", ""))
			return err
		}
		r.emitEvent(engineprotocol.NewConfigLoadedEvent(cfg.ToMap()))
		return nil
	case engineprotocol.SaveConfigCommand:
		if err := r.saveConfig(c.Config); err != nil {
			r.emitEvent(engineprotocol.NewErrorEvent("", err.Error(), "config_save_error", ""))
			return err
		}
		r.emitEvent(engineprotocol.NewStatusEvent("", "config_saved", r.env.Config.Path()))
		return nil
	}
	return fmt.Errorf("unsupported command type %T", cmd)
}

// saveConfig merges values into the stored config. New sessions pick it up; running ones keep theirs.
func (r *stdioRunner) saveConfig(values map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, err := r.env.Config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Merge(values); err != nil {
		return err
	}
	if err := r.env.Config.Save(cfg); err != nil {
		return err
	}
	r.env.UserCfg = cfg
	return nil
}

func (r *stdioRunner) startSession(ctx context.Context, c engineprotocol.StartSessionCommand) error {
	overrides := make(map[string]string, len(c.Config)+1)
	for k, v := range c.Config {
		overrides[k] = v
	}
	if c.WorkDir != "" {
		overrides["work_dir"] = c.WorkDir
	}

	r.mu.Lock()
	userCfg := *r.env.UserCfg
	if c.SessionID != "" {
		if _, exists := r.sessions[c.SessionID]; exists {
			r.mu.Unlock()
			return fmt.Errorf("session already running: %s", c.SessionID)
		}
	}
	r.mu.Unlock()

	res, err := r.flags.resolve(r.env, &userCfg, overrides)
	if err != nil {
		return err
	}

	hook := &protocolHook{emit: r.emitEvent}
	sess, err := r.newSession(res, factory.Options{
		SessionID: c.SessionID,
		Store:     r.env.Store,
		Index:     r.env.Index,
		Hooks:     []engine.Hook{hook},
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	active := &activeSession{id: sess.ID, cancel: cancel}
	r.mu.Lock()
	if _, exists := r.sessions[sess.ID]; exists {
		r.mu.Unlock()
		cancel()
		sess.Close()
		return fmt.Errorf("session already running: %s", sess.ID)
	}
	r.sessions[sess.ID] = active
	r.mu.Unlock()

	watcher := r.watch(sess.ID, sess.WorkDir)
	hook.reportFiles = watcher == nil

	r.emitEvent(engineprotocol.NewSessionStartedEvent(sess.ID, sess.WorkDir, sess.Model))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		defer func() {
			r.mu.Lock()
			delete(r.sessions, sess.ID)
			r.mu.Unlock()
		}()
		defer sess.Close()
		if watcher != nil {
			defer watcher.Stop()
		}

		if _, err := sess.Run(runCtx, c.Task); err != nil && runCtx.Err() == nil {
			log.Printf("session %s ended with error: %v", sess.ID, err)
		}
	}()
	return nil
}

// watch streams files_changed events for dir while a session runs.
// It returns nil when the directory cannot be watched.
func (r *stdioRunner) watch(sessionID, dir string) *workspace.Watcher {
	if err := sandbox.EnsureWorkDir(dir); err != nil {
		return nil
	}
	w, err := workspace.NewWatcher(dir, workspace.NewIgnoreMatcher(dir), func(files []string) {
		r.emitEvent(engineprotocol.NewFilesChangedEvent(sessionID, files))
	})
	if err != nil {
		log.Printf("⚠️  file watcher unavailable: %v", err)
		return nil
	}
	w.SetDebounce(200 * time.Millisecond)
	if err := w.Start(); err != nil {
		log.Printf("⚠️  file watcher unavailable: %v", err)
		return nil
	}
	return w
}

// protocolHook translates session lifecycle events into protocol events.
type protocolHook struct {
	engine.NopHook
	emit func(engineprotocol.Event)

	// reportFiles emits files_changed from execution results when no watcher is running.
	reportFiles bool
}

func (h *protocolHook) OnMessage(_ context.Context, st *engine.State, msg engine.ChatMessage) {
	h.emit(engineprotocol.NewMessageEvent(st.ID, string(msg.Role), msg.Content, st.Round(), len(msg.CodeBlocks)))
}

func (h *protocolHook) OnAfterLLM(_ context.Context, st *engine.State, _ engine.LLMResponse) {
	h.emit(engineprotocol.NewTokenUsageEvent(st.ID, st.Totals.Prompt, st.Totals.Completion, st.Totals.Total))
}

func (h *protocolHook) OnExecution(_ context.Context, st *engine.State, exec engine.Execution) {
	results := make([]engineprotocol.BlockResult, 0, len(exec.Results))
	for _, r := range exec.Results {
		results = append(results, engineprotocol.BlockResult{
			Lang:     r.Lang,
			Filename: r.Filename,
			ExitCode: r.ExitCode,
			Stdout:   r.Stdout,
			Stderr:   r.Stderr,
			TimedOut: r.TimedOut,
			Status:   r.Status,
		})
	}
	h.emit(engineprotocol.NewExecutionEvent(st.ID, st.Round(), exec.ExitCode, results))
	if h.reportFiles && len(exec.FilesChanged) > 0 {
		h.emit(engineprotocol.NewFilesChangedEvent(st.ID, exec.FilesChanged))
	}
}

func (h *protocolHook) OnStatus(_ context.Context, st *engine.State, status engine.Status) {
	h.emit(engineprotocol.NewStatusEvent(st.ID, string(status), ""))
}

func (h *protocolHook) OnRetryAttempt(_ context.Context, st *engine.State, attempt, maxAttempts int, delay time.Duration, err error) {
	h.emit(engineprotocol.NewStatusEvent(st.ID, "retrying", fmt.Sprintf("attempt %d/%d in %s: %v", attempt, maxAttempts, delay, err)))
}

func (h *protocolHook) OnDone(_ context.Context, st *engine.State) {
	var errMsg string
	if st.Err != nil {
		errMsg = st.Err.Error()
	}
	h.emit(engineprotocol.NewDoneEvent(st.ID, string(st.Reason), st.Turn, errMsg))
}
