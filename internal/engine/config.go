package engine

import (
	"fmt"
	"path/filepath"
	"time"
)

// Defaults for SessionConfig.
const (
	DefaultModel             = "gpt-4"
	DefaultWorkDir           = "coding"
	DefaultMaxTurns          = 10
	DefaultTerminationPhrase = "TERMINATE"
	DefaultBlockTimeout      = 60 * time.Second
	DefaultMaxNoCodeReplies  = 2
	DefaultHistoryWindow     = 20
	DefaultTruncateOutputAt  = 4000
)

// SessionConfig holds everything a session needs. It is treated as read-only after Validate.
type SessionConfig struct {
	Model             string
	MaxOutputTokens   int     // 0 = provider default
	Temperature       float32 // Sampling temperature forwarded to the backend
	WorkDir           string  // Working directory every block runs in
	MaxTurns          int     // Maximum assistant/executor rounds
	TerminationPhrase string  // Sentinel that ends the session when seen in an assistant reply
	BlockTimeout      time.Duration
	MaxNoCodeReplies  int // Consecutive replies without code before the session ends
	HistoryWindow     int // Messages sent to the model besides the task (0 = all)
	TruncateOutputAt  int // Max chars of executor output sent back to the model
	RetryConfig       RetryConfig
}

// DefaultSessionConfig returns sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Model:             DefaultModel,
		WorkDir:           DefaultWorkDir,
		MaxTurns:          DefaultMaxTurns,
		TerminationPhrase: DefaultTerminationPhrase,
		BlockTimeout:      DefaultBlockTimeout,
		MaxNoCodeReplies:  DefaultMaxNoCodeReplies,
		HistoryWindow:     DefaultHistoryWindow,
		TruncateOutputAt:  DefaultTruncateOutputAt,
		RetryConfig:       DefaultRetryConfig(),
	}
}

// Validate checks the config and resolves WorkDir to an absolute path.
func (c *SessionConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("working directory is required")
	}
	abs, err := filepath.Abs(c.WorkDir)
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	c.WorkDir = abs
	if c.MaxTurns <= 0 {
		return fmt.Errorf("max turns must be positive, got %d", c.MaxTurns)
	}
	if c.TerminationPhrase == "" {
		return fmt.Errorf("termination phrase is required")
	}
	if c.BlockTimeout <= 0 {
		return fmt.Errorf("block timeout must be positive, got %s", c.BlockTimeout)
	}
	if c.MaxNoCodeReplies <= 0 {
		c.MaxNoCodeReplies = DefaultMaxNoCodeReplies
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("history window cannot be negative")
	}
	if c.TruncateOutputAt <= 0 {
		c.TruncateOutputAt = DefaultTruncateOutputAt
	}
	if c.RetryConfig.LLMPolicy.Multiplier == 0 {
		c.RetryConfig = DefaultRetryConfig()
	}
	return nil
}

// ChatOptions derives the per-call model options.
func (c SessionConfig) ChatOptions() ChatOptions {
	rc := c.RetryConfig
	return ChatOptions{
		Temperature:     c.Temperature,
		MaxOutputTokens: c.MaxOutputTokens,
		RetryConfig:     &rc,
	}
}

// DefaultRetryConfig returns sensible default retry policies.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		LLMPolicy: RetryPolicy{
			MaxRetries:   3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
	}
}
