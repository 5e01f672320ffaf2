package prompts

// PromptVersion identifies one revision of a prompt.
type PromptVersion string

const PromptV1 PromptVersion = "1.0.0"

// Prompt is a versioned prompt template. Variables are written as {{name}}.
type Prompt struct {
	ID          string // "assistant", "executor_no_code"
	Version     PromptVersion
	Content     string
	Description string
	Tags        []string
	Deprecated  bool
}
