// Package engine provides the two-agent session loop and its shared types.

package engine

import "time"

// Status is the position of a session in its turn-taking state machine.
type Status string

const (
	StatusAwaitingResponse Status = "awaiting_response"
	StatusExecuting        Status = "executing"
	StatusTerminated       Status = "terminated"
)

// Reason explains why a session reached StatusTerminated.
type Reason string

const (
	ReasonTerminationPhrase Reason = "termination_phrase"
	ReasonMaxTurns          Reason = "max_turns"
	ReasonNoCode            Reason = "no_code"
	ReasonCancelled         Reason = "cancelled"
	ReasonError             Reason = "error"
)

type State struct {
	ID        string        // Session ID
	History   []ChatMessage // Dialogue history, append-only
	Turn      int           // Completed assistant/executor rounds
	MaxTurns  int           // Round limit copied from the session config
	MaxNoCode int           // Consecutive no-code replies tolerated
	Status    Status        // Current state machine position
	Reason    Reason        // Set once Status is StatusTerminated
	Err       error         // Unrecovered error that ended the session, if any
	Model     string        // LLM model name
	Totals    Usage         // Accumulated token usage across all calls
	Retries   int           // Retry attempts (tracked separately from turns)
	NoCodeRun int           // Consecutive assistant replies without executable code
	StartedAt time.Time
	EndedAt   time.Time
}

// NewState returns a session state ready for the first message.
func NewState(id string, cfg SessionConfig) *State {
	return &State{
		ID:        id,
		MaxTurns:  cfg.MaxTurns,
		MaxNoCode: cfg.MaxNoCodeReplies,
		Model:     cfg.Model,
		Status:    StatusAwaitingResponse,
		StartedAt: time.Now(),
	}
}

func (s *State) Append(msg ChatMessage) { s.History = append(s.History, msg) }

// Last returns the most recent message, if any.
func (s *State) Last() (ChatMessage, bool) {
	if len(s.History) == 0 {
		return ChatMessage{}, false
	}
	return s.History[len(s.History)-1], true
}

// Round returns the 1-based round the latest message belongs to. The task
// message is round 0; each round is one assistant reply and its executor answer.
func (s *State) Round() int { return len(s.History) / 2 }

// Done reports whether the session has terminated.
func (s *State) Done() bool { return s.Status == StatusTerminated }

// Terminate moves the session to its terminal state. Only the first call has effect.
func (s *State) Terminate(reason Reason, err error) {
	if s.Status == StatusTerminated {
		return
	}
	s.Status = StatusTerminated
	s.Reason = reason
	s.Err = err
	s.EndedAt = time.Now()
}
