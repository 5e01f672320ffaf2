package prompts

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{([a-z_]+)\}\}`)

// PromptBuilder composes a registered prompt with extra fragments and variables.
type PromptBuilder struct {
	base      *Prompt
	fragments []string
	variables map[string]string
}

// NewPromptBuilder starts from a registered prompt version.
func NewPromptBuilder(registry *PromptRegistry, id string, version PromptVersion) (*PromptBuilder, error) {
	base, err := registry.Get(id, version)
	if err != nil {
		return nil, fmt.Errorf("failed to get base prompt: %w", err)
	}
	return &PromptBuilder{
		base:      base,
		fragments: []string{base.Content},
		variables: make(map[string]string),
	}, nil
}

// AddFragment appends text after the base prompt. Empty fragments are ignored.
func (b *PromptBuilder) AddFragment(text string) *PromptBuilder {
	if strings.TrimSpace(text) != "" {
		b.fragments = append(b.fragments, text)
	}
	return b
}

func (b *PromptBuilder) SetVariable(key, value string) *PromptBuilder {
	b.variables[key] = value
	return b
}

// Build joins the fragments and substitutes {{name}} placeholders.
// A placeholder with no value is an error.
func (b *PromptBuilder) Build() (string, error) {
	result := strings.Join(b.fragments, "\n\n")

	var missing []string
	result = placeholderRe.ReplaceAllStringFunc(result, func(m string) string {
		key := m[2 : len(m)-2]
		if v, ok := b.variables[key]; ok {
			return v
		}
		missing = append(missing, key)
		return m
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt %s: no value for %s", b.base.ID, strings.Join(missing, ", "))
	}
	return result, nil
}

// Render builds the latest version of prompt id from the default registry.
func Render(id string, vars map[string]string, fragments ...string) (string, error) {
	p, err := DefaultRegistry().GetLatest(id)
	if err != nil {
		return "", err
	}
	b, err := NewPromptBuilder(DefaultRegistry(), id, p.Version)
	if err != nil {
		return "", err
	}
	for _, f := range fragments {
		b.AddFragment(f)
	}
	for k, v := range vars {
		b.SetVariable(k, v)
	}
	return b.Build()
}
