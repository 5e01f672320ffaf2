// Package project reads per-directory session settings from a .duet directory.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// Dir is the per-project settings directory.
	Dir = ".duet"
	// ConfigFile holds the project's session overrides.
	ConfigFile = "config.json"
	// RulesFile holds extra instructions for the assistant.
	RulesFile = "rules"
)

// ProjectConfig overrides the user configuration for sessions started in one directory.
type ProjectConfig struct {
	WorkDir           string `json:"work_dir,omitempty"`
	MaxTurns          int    `json:"max_turns,omitempty"`
	BlockTimeout      string `json:"block_timeout,omitempty"`
	TerminationPhrase string `json:"termination_phrase,omitempty"`
	SandboxMode       string `json:"sandbox_mode,omitempty"`
	DockerImage       string `json:"docker_image,omitempty"`
}

func configPath(root string) string {
	return filepath.Join(root, Dir, ConfigFile)
}

func rulesPath(root string) string {
	return filepath.Join(root, Dir, RulesFile)
}

// ConfigExists checks if a project configuration file exists.
func ConfigExists(root string) bool {
	_, err := os.Stat(configPath(root))
	return !os.IsNotExist(err)
}

// LoadConfig reads the project configuration.
// Returns nil and no error if the config file does not exist.
func LoadConfig(root string) (*ProjectConfig, error) {
	data, err := os.ReadFile(configPath(root))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	var cfg ProjectConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse project config: %w", err)
	}
	// a relative work dir is relative to the project, not to the caller's cwd
	if cfg.WorkDir != "" && !filepath.IsAbs(cfg.WorkDir) {
		cfg.WorkDir = filepath.Join(root, cfg.WorkDir)
	}
	return &cfg, nil
}

// SaveConfig writes the project configuration, creating .duet if needed.
func SaveConfig(root string, cfg *ProjectConfig) error {
	if err := os.MkdirAll(filepath.Join(root, Dir), 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", Dir, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project config: %w", err)
	}
	if err := os.WriteFile(configPath(root), data, 0o644); err != nil {
		return fmt.Errorf("failed to write project config: %w", err)
	}
	return nil
}

// Settings returns the non-empty overrides keyed like the user config file.
func (c *ProjectConfig) Settings() map[string]string {
	m := map[string]string{}
	if c == nil {
		return m
	}
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set("work_dir", c.WorkDir)
	if c.MaxTurns > 0 {
		m["max_turns"] = strconv.Itoa(c.MaxTurns)
	}
	set("block_timeout", c.BlockTimeout)
	set("termination_phrase", c.TerminationPhrase)
	set("sandbox_mode", c.SandboxMode)
	set("docker_image", c.DockerImage)
	return m
}

// LoadRules reads extra assistant instructions from .duet/rules.
// Returns empty string and no error if the file does not exist.
func LoadRules(root string) (string, error) {
	data, err := os.ReadFile(rulesPath(root))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read rules file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
