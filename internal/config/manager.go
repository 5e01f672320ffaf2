// Package config loads the user configuration file and resolves it, together
// with the environment, into the configs of the session, backend and sandbox.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

// Config holds the user's persistent preferences. Empty fields fall back to the
// environment and then to built-in defaults.
type Config struct {
	LLMProvider       string `json:"llm_provider,omitempty"`
	APIKey            string `json:"api_key,omitempty"`
	Model             string `json:"model,omitempty"`
	BaseURL           string `json:"base_url,omitempty"` // OpenAI-compatible base URL, or the Azure endpoint
	AzureAPIVersion   string `json:"azure_api_version,omitempty"`
	AzureDeployment   string `json:"azure_deployment,omitempty"`
	MaxTokens         int    `json:"max_tokens,omitempty"`
	WorkDir           string `json:"work_dir,omitempty"`
	MaxTurns          int    `json:"max_turns,omitempty"`
	BlockTimeout      string `json:"block_timeout,omitempty"` // Go duration, e.g. "90s"
	TerminationPhrase string `json:"termination_phrase,omitempty"`
	SystemMessage     string `json:"system_message,omitempty"` // Appended to the assistant system prompt
	SandboxMode       string `json:"sandbox_mode,omitempty"`
	DockerImage       string `json:"docker_image,omitempty"`
	MaxOutput         int    `json:"max_output,omitempty"` // Bytes of stdout and stderr kept per block
	GenerateTitles    bool   `json:"generate_titles,omitempty"`
}

// Manager loads and saves the configuration file.
type Manager struct {
	configDir string
}

// NewManager returns a manager for $XDG_CONFIG_HOME/duet (or the platform equivalent).
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return NewManagerAt(filepath.Join(configDir, "duet")), nil
}

// NewManagerAt returns a manager rooted at dir.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

func (m *Manager) Dir() string { return m.configDir }

// Path returns the absolute path of config.json.
func (m *Manager) Path() string {
	return filepath.Join(m.configDir, "config.json")
}

// DatabasePath returns where the session database lives.
func (m *Manager) DatabasePath() string {
	return filepath.Join(m.configDir, "sessions.db")
}

// IndexPath returns where the transcript search index lives.
func (m *Manager) IndexPath() string {
	return filepath.Join(m.configDir, "messages.bleve")
}

// Load reads and validates the configuration. A missing file yields an empty Config.
func (m *Manager) Load() (*Config, error) {
	data, err := os.ReadFile(m.Path())
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Path(), err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}
	return &cfg, nil
}

// Save validates cfg and writes it readable only by the owner, since it may hold an API key.
func (m *Manager) Save(cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := Validate(data); err != nil {
		return err
	}
	if err := os.MkdirAll(m.configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(m.Path(), data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists reports whether the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.Path())
	return !os.IsNotExist(err)
}

// Validate checks raw JSON against the configuration schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
