package session

import (
	"context"
	"log"

	"github.com/ChamsBouzaiene/duet/internal/engine"
)

// RecorderHook writes every message and execution of a session to a Store as
// it happens, and to a SearchIndex when one is set. Failures are logged and
// never interrupt the session.
type RecorderHook struct {
	engine.NopHook

	Store   *Store
	Index   *SearchIndex // optional
	Logger  *log.Logger
	WorkDir string
}

func (h *RecorderHook) logf(format string, args ...any) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (h *RecorderHook) OnSessionStart(ctx context.Context, st *engine.State) {
	sess := Session{ID: st.ID, Model: st.Model, WorkDir: h.WorkDir, Status: st.Status, CreatedAt: st.StartedAt}
	if err := h.Store.CreateSession(ctx, sess); err != nil {
		h.logf("⚠️  session record: %v", err)
	}
}

func (h *RecorderHook) OnMessage(ctx context.Context, st *engine.State, msg engine.ChatMessage) {
	// the record must land even when the session is being cancelled
	ctx = context.WithoutCancel(ctx)
	seq := len(st.History) - 1
	if seq == 0 {
		if err := h.Store.SetTask(ctx, st.ID, msg.Content); err != nil {
			h.logf("⚠️  session record: %v", err)
		}
	}
	if err := h.Store.AppendMessage(ctx, st.ID, seq, msg); err != nil {
		h.logf("⚠️  session record: %v", err)
	}
	if h.Index != nil {
		m := Message{SessionID: st.ID, Seq: seq, Role: msg.Role, Name: msg.Name, Content: msg.Content}
		if err := h.Index.IndexMessage(m); err != nil {
			h.logf("⚠️  search index: %v", err)
		}
	}
}

func (h *RecorderHook) OnExecution(ctx context.Context, st *engine.State, exec engine.Execution) {
	if err := h.Store.AppendExecution(context.WithoutCancel(ctx), st.ID, st.Round(), exec); err != nil {
		h.logf("⚠️  session record: %v", err)
	}
}

func (h *RecorderHook) OnDone(ctx context.Context, st *engine.State) {
	if err := h.Store.Finish(context.WithoutCancel(ctx), st); err != nil {
		h.logf("⚠️  session record: %v", err)
	}
}
