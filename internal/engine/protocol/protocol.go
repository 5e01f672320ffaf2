package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CommandType enumerates all supported driver -> engine commands.
type CommandType string

const (
	CommandStartSession  CommandType = "start_session"
	CommandCancelRequest CommandType = "cancel_request"
	CommandGetConfig     CommandType = "get_config"
	CommandSaveConfig    CommandType = "save_config"
)

// Command is a marker interface implemented by all protocol commands.
type Command interface {
	GetType() CommandType
}

// StartSessionCommand starts a new two-agent session for Task.
type StartSessionCommand struct {
	Type      CommandType       `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Task      string            `json:"task"`
	WorkDir   string            `json:"work_dir,omitempty"`
	Config    map[string]string `json:"config,omitempty"`
}

// GetType implements Command.
func (c StartSessionCommand) GetType() CommandType { return CommandStartSession }

// CancelRequestCommand stops a running session.
type CancelRequestCommand struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"session_id"`
}

// GetType implements Command.
func (c CancelRequestCommand) GetType() CommandType { return CommandCancelRequest }

// GetConfigCommand asks for the persisted user configuration.
type GetConfigCommand struct {
	Type CommandType `json:"type"`
}

// GetType implements Command.
func (c GetConfigCommand) GetType() CommandType { return CommandGetConfig }

// SaveConfigCommand persists user configuration.
type SaveConfigCommand struct {
	Type   CommandType       `json:"type"`
	Config map[string]string `json:"config"`
}

// GetType implements Command.
func (c SaveConfigCommand) GetType() CommandType { return CommandSaveConfig }

type rawCommand struct {
	Type CommandType `json:"type"`
}

// DecodeCommand converts raw JSON into a strongly typed command.
func DecodeCommand(data []byte) (Command, error) {
	var base rawCommand
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	switch base.Type {
	case CommandStartSession:
		var cmd StartSessionCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode start_session: %w", err)
		}
		if cmd.Task == "" {
			return nil, errors.New("start_session requires task")
		}
		return cmd, nil
	case CommandCancelRequest:
		var cmd CancelRequestCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode cancel_request: %w", err)
		}
		if cmd.SessionID == "" {
			return nil, errors.New("cancel_request requires session_id")
		}
		return cmd, nil
	case CommandGetConfig:
		var cmd GetConfigCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode get_config: %w", err)
		}
		return cmd, nil
	case CommandSaveConfig:
		var cmd SaveConfigCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode save_config: %w", err)
		}
		if len(cmd.Config) == 0 {
			return nil, errors.New("save_config requires config")
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("unknown command type: %s", base.Type)
	}
}

// NewSessionID generates a new opaque session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// EventType enumerates engine -> driver events.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventMessage        EventType = "message"
	EventExecution      EventType = "execution"
	EventFilesChanged   EventType = "files_changed"
	EventStatus         EventType = "status"
	EventTokenUsage     EventType = "token_usage"
	EventDone           EventType = "done"
	EventError          EventType = "error"
	EventCancelled      EventType = "cancelled"
	EventConfigLoaded   EventType = "config_loaded"
)

// Event is implemented by every outgoing message.
type Event interface {
	isEvent()
	GetType() EventType
}

// MarshalEvent serializes an event into JSON for NDJSON transport.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

type eventBase struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
}

func (eventBase) isEvent() {}

// GetType implements Event.
func (e eventBase) GetType() EventType { return e.Type }

// SessionStartedEvent acknowledges start_session.
type SessionStartedEvent struct {
	eventBase
	WorkDir string `json:"work_dir"`
	Model   string `json:"model"`
}

// NewSessionStartedEvent constructs a session_started event.
func NewSessionStartedEvent(sessionID, workDir, model string) SessionStartedEvent {
	return SessionStartedEvent{
		eventBase: eventBase{Type: EventSessionStarted, SessionID: sessionID},
		WorkDir:   workDir,
		Model:     model,
	}
}

// MessageEvent carries one dialogue message.
type MessageEvent struct {
	eventBase
	Role    string `json:"role"`
	Content string `json:"content"`
	Turn    int    `json:"turn"`
	Blocks  int    `json:"blocks,omitempty"`
}

// NewMessageEvent constructs a message event.
func NewMessageEvent(sessionID, role, content string, turn, blocks int) MessageEvent {
	return MessageEvent{
		eventBase: eventBase{Type: EventMessage, SessionID: sessionID},
		Role:      role,
		Content:   content,
		Turn:      turn,
		Blocks:    blocks,
	}
}

// BlockResult is the wire form of one executed code block.
type BlockResult struct {
	Lang     string `json:"lang"`
	Filename string `json:"filename,omitempty"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`
	Status   string `json:"status,omitempty"`
}

// ExecutionEvent reports the blocks run in one executor turn.
type ExecutionEvent struct {
	eventBase
	Turn     int           `json:"turn"`
	ExitCode int           `json:"exit_code"`
	Results  []BlockResult `json:"results"`
}

// NewExecutionEvent constructs an execution event.
func NewExecutionEvent(sessionID string, turn, exitCode int, results []BlockResult) ExecutionEvent {
	return ExecutionEvent{
		eventBase: eventBase{Type: EventExecution, SessionID: sessionID},
		Turn:      turn,
		ExitCode:  exitCode,
		Results:   results,
	}
}

// FilesChangedEvent communicates file modifications in the working directory.
type FilesChangedEvent struct {
	eventBase
	Files []string `json:"files"`
}

// NewFilesChangedEvent constructs a files_changed event.
func NewFilesChangedEvent(sessionID string, files []string) FilesChangedEvent {
	return FilesChangedEvent{
		eventBase: eventBase{Type: EventFilesChanged, SessionID: sessionID},
		Files:     files,
	}
}

// StatusEvent communicates coarse session state.
type StatusEvent struct {
	eventBase
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// NewStatusEvent constructs a status event.
func NewStatusEvent(sessionID, status, detail string) StatusEvent {
	return StatusEvent{
		eventBase: eventBase{Type: EventStatus, SessionID: sessionID},
		Status:    status,
		Detail:    detail,
	}
}

// TokenUsageEvent reports cumulative token usage.
type TokenUsageEvent struct {
	eventBase
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// NewTokenUsageEvent constructs a token_usage event.
func NewTokenUsageEvent(sessionID string, prompt, completion, total int) TokenUsageEvent {
	return TokenUsageEvent{
		eventBase:  eventBase{Type: EventTokenUsage, SessionID: sessionID},
		Prompt:     prompt,
		Completion: completion,
		Total:      total,
	}
}

// DoneEvent signals that a session terminated.
type DoneEvent struct {
	eventBase
	Reason string `json:"reason"`
	Turns  int    `json:"turns"`
	Error  string `json:"error,omitempty"`
}

// NewDoneEvent constructs a done event.
func NewDoneEvent(sessionID, reason string, turns int, errMsg string) DoneEvent {
	return DoneEvent{
		eventBase: eventBase{Type: EventDone, SessionID: sessionID},
		Reason:    reason,
		Turns:     turns,
		Error:     errMsg,
	}
}

// ErrorEvent reports failures that are not tied to a finished session.
type ErrorEvent struct {
	eventBase
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// NewErrorEvent constructs an error event.
func NewErrorEvent(sessionID, message, kind, details string) ErrorEvent {
	return ErrorEvent{
		eventBase: eventBase{Type: EventError, SessionID: sessionID},
		Message:   message,
		Kind:      kind,
		Details:   details,
	}
}

// CancelledEvent acknowledges cancel_request.
type CancelledEvent struct {
	eventBase
	Reason string `json:"reason,omitempty"`
}

// NewCancelledEvent constructs a cancelled event.
func NewCancelledEvent(sessionID, reason string) CancelledEvent {
	return CancelledEvent{
		eventBase: eventBase{Type: EventCancelled, SessionID: sessionID},
		Reason:    reason,
	}
}

// ConfigLoadedEvent returns the persisted configuration with secrets masked.
type ConfigLoadedEvent struct {
	eventBase
	Config map[string]string `json:"config"`
}

// NewConfigLoadedEvent constructs a config_loaded event.
func NewConfigLoadedEvent(config map[string]string) ConfigLoadedEvent {
	return ConfigLoadedEvent{
		eventBase: eventBase{Type: EventConfigLoaded},
		Config:    config,
	}
}
