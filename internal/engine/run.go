package engine

import (
	"context"
	"fmt"
)

// Run alternates responder and executor until the session terminates.
//
// st must already hold the task message (see AppendMessage). Turns are strictly
// sequential: one model call, then one executor step. Run always leaves st in
// StatusTerminated with its history intact, and returns the error that ended
// the session, if any.
func Run(ctx context.Context, responder Responder, executor Executor, st *State, hooks Hooks) error {
	if len(st.History) == 0 {
		err := fmt.Errorf("session %s has no task message", st.ID)
		st.Terminate(ReasonError, err)
		hooks.OnDone(ctx, st)
		return err
	}

	for !st.Done() {
		if err := ctx.Err(); err != nil {
			st.Terminate(ReasonCancelled, err)
			break
		}
		if st.Turn >= st.MaxTurns {
			st.Terminate(ReasonMaxTurns, nil)
			break
		}
		hooks.OnTurnStart(ctx, st)
		runTurn(ctx, responder, executor, st, hooks)
	}

	hooks.OnStatus(ctx, st, st.Status)
	hooks.OnDone(ctx, st)
	return st.Err
}

// runTurn performs one assistant/executor round. Failures terminate st.
func runTurn(ctx context.Context, responder Responder, executor Executor, st *State, hooks Hooks) {
	setStatus(ctx, st, hooks, StatusAwaitingResponse)
	reply, err := responder.Respond(ctx, st)
	if err != nil {
		fail(ctx, st, WrapWithContext(err, st, "respond"))
		return
	}
	if err := AppendMessage(ctx, st, hooks, reply); err != nil {
		fail(ctx, st, WrapWithContext(err, st, "append"))
		return
	}

	setStatus(ctx, st, hooks, StatusExecuting)
	res, err := executor.Step(ctx, reply)
	if res.Execution != nil {
		hooks.OnExecution(ctx, st, *res.Execution)
	}
	if err != nil {
		fail(ctx, st, WrapWithContext(err, st, "execute"))
		return
	}
	st.Turn++

	if res.Terminal {
		st.Terminate(ReasonTerminationPhrase, nil)
		return
	}
	if res.NoCode {
		st.NoCodeRun++
		if st.MaxNoCode > 0 && st.NoCodeRun >= st.MaxNoCode {
			st.Terminate(ReasonNoCode, nil)
			return
		}
	} else {
		st.NoCodeRun = 0
	}
	if res.Reply == nil {
		st.Terminate(ReasonError, WrapWithContext(fmt.Errorf("executor returned no reply"), st, "execute"))
		return
	}
	if err := AppendMessage(ctx, st, hooks, *res.Reply); err != nil {
		fail(ctx, st, WrapWithContext(err, st, "append"))
	}
}

// AppendMessage validates msg, appends it to the history and notifies hooks.
func AppendMessage(ctx context.Context, st *State, hooks Hooks, msg ChatMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	st.Append(msg)
	hooks.OnMessage(ctx, st, msg)
	return nil
}

func setStatus(ctx context.Context, st *State, hooks Hooks, s Status) {
	if st.Status == s {
		return
	}
	st.Status = s
	hooks.OnStatus(ctx, st, s)
}

func fail(ctx context.Context, st *State, err error) {
	if ctx.Err() != nil {
		st.Terminate(ReasonCancelled, err)
		return
	}
	st.Terminate(ReasonError, err)
}
