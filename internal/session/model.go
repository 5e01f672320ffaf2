// Package session persists session transcripts to SQLite and indexes them for search.
package session

import (
	"time"

	"github.com/ChamsBouzaiene/duet/internal/engine"
)

// Session is one recorded two-agent session.
type Session struct {
	ID        string
	Task      string
	Title     string
	Summary   string
	Model     string
	WorkDir   string
	Status    engine.Status
	Reason    engine.Reason
	Error     string
	Turns     int
	Tokens    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one stored history entry. Seq is its 0-based position in the history.
type Message struct {
	SessionID string
	Seq       int
	Role      engine.MessageRole
	Name      string
	Content   string
	Blocks    int
	CreatedAt time.Time
}

// ChatMessage converts m back into an engine message.
func (m Message) ChatMessage() engine.ChatMessage {
	return engine.ChatMessage{Role: m.Role, Name: m.Name, Content: m.Content}
}

// ExecutionRecord is one stored block result.
type ExecutionRecord struct {
	SessionID string
	Turn      int
	Block     int
	Result    engine.ExecutionResult
}
