package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/duet/internal/engine"
	"github.com/ChamsBouzaiene/duet/internal/providers"
	"github.com/ChamsBouzaiene/duet/internal/sandbox"
)

// Resolved is everything a session needs, resolved from the file and the environment.
type Resolved struct {
	Session        engine.SessionConfig
	Backend        providers.BackendConfig
	Sandbox        sandbox.Config
	SystemMessage  string
	MaxOutput      int // Bytes of stdout and stderr kept per block (0 = sandbox default)
	GenerateTitles bool
}

// Env maps the file settings onto the environment variables they stand for.
func (c *Config) Env() map[string]string {
	env := map[string]string{}
	set := func(key, val string) {
		if key != "" && val != "" {
			env[key] = val
		}
	}

	set("LLM_PROVIDER", c.LLMProvider)
	keyVar, modelVar, urlVar := providers.EnvKeys(c.LLMProvider)
	set(keyVar, c.APIKey)
	set(modelVar, c.Model)
	set(urlVar, c.BaseURL)
	set("AZURE_OPENAI_API_VERSION", c.AzureAPIVersion)
	set("AZURE_OPENAI_DEPLOYMENT", c.AzureDeployment)
	if c.MaxTokens > 0 {
		set("MAX_TOKENS", strconv.Itoa(c.MaxTokens))
	}
	set("DUET_WORK_DIR", c.WorkDir)
	if c.MaxTurns > 0 {
		set("DUET_MAX_TURNS", strconv.Itoa(c.MaxTurns))
	}
	set("DUET_BLOCK_TIMEOUT", c.BlockTimeout)
	set("DUET_TERMINATION_PHRASE", c.TerminationPhrase)
	set("DUET_SANDBOX_MODE", c.SandboxMode)
	set("DUET_DOCKER_IMAGE", c.DockerImage)
	if c.MaxOutput > 0 {
		set("DUET_MAX_OUTPUT", strconv.Itoa(c.MaxOutput))
	}
	return env
}

// Lookup returns a variable source where the process environment wins over the file.
func (c *Config) Lookup() func(string) string {
	fileEnv := c.Env()
	return func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fileEnv[key]
	}
}

// Resolve builds the session, backend and sandbox configs. The session config
// is validated and its working directory made absolute.
func (c *Config) Resolve() (*Resolved, error) {
	getenv := c.Lookup()
	backend := providers.BackendConfigFromLookup(getenv)

	session, err := SessionConfigFromLookup(getenv)
	if err != nil {
		return nil, err
	}
	if backend.Model != "" {
		session.Model = backend.Model
	}
	session.MaxOutputTokens = backend.MaxTokens
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	sb := sandbox.ConfigFromLookup(getenv)
	sb.CmdTimeout = session.BlockTimeout

	maxOutput := 0
	if v := getenv("DUET_MAX_OUTPUT"); v != "" {
		if maxOutput, err = strconv.Atoi(v); err != nil || maxOutput < 0 {
			return nil, fmt.Errorf("invalid DUET_MAX_OUTPUT %q", v)
		}
	}

	return &Resolved{
		Session:        session,
		Backend:        backend,
		Sandbox:        sb,
		SystemMessage:  c.SystemMessage,
		MaxOutput:      maxOutput,
		GenerateTitles: c.GenerateTitles,
	}, nil
}

// SessionConfigFromLookup reads DUET_WORK_DIR, DUET_MAX_TURNS, DUET_BLOCK_TIMEOUT
// and DUET_TERMINATION_PHRASE over the defaults.
func SessionConfigFromLookup(getenv func(string) string) (engine.SessionConfig, error) {
	cfg := engine.DefaultSessionConfig()
	if v := getenv("DUET_WORK_DIR"); v != "" {
		cfg.WorkDir = v
	}
	if v := getenv("DUET_MAX_TURNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid DUET_MAX_TURNS %q", v)
		}
		cfg.MaxTurns = n
	}
	if v := getenv("DUET_BLOCK_TIMEOUT"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid DUET_BLOCK_TIMEOUT %q: %w", v, err)
		}
		cfg.BlockTimeout = d
	}
	if v := getenv("DUET_TERMINATION_PHRASE"); v != "" {
		cfg.TerminationPhrase = v
	}
	return cfg, nil
}

// parseTimeout accepts a Go duration or a bare number of seconds.
func parseTimeout(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// ToMap renders c for display with the API key masked.
func (c *Config) ToMap() map[string]string {
	m := map[string]string{
		"llm_provider":       c.LLMProvider,
		"model":              c.Model,
		"base_url":           c.BaseURL,
		"azure_api_version":  c.AzureAPIVersion,
		"azure_deployment":   c.AzureDeployment,
		"work_dir":           c.WorkDir,
		"block_timeout":      c.BlockTimeout,
		"termination_phrase": c.TerminationPhrase,
		"system_message":     c.SystemMessage,
		"sandbox_mode":       c.SandboxMode,
		"docker_image":       c.DockerImage,
		"generate_titles":    strconv.FormatBool(c.GenerateTitles),
	}
	if c.MaxTokens > 0 {
		m["max_tokens"] = strconv.Itoa(c.MaxTokens)
	}
	if c.MaxTurns > 0 {
		m["max_turns"] = strconv.Itoa(c.MaxTurns)
	}
	if c.MaxOutput > 0 {
		m["max_output"] = strconv.Itoa(c.MaxOutput)
	}
	if c.APIKey != "" {
		m["api_key"] = maskKey(c.APIKey)
	}
	return m
}

// Merge applies string settings (as sent by save_config) onto c.
// A masked API key leaves the stored key unchanged.
func (c *Config) Merge(values map[string]string) error {
	for k, v := range values {
		switch k {
		case "llm_provider":
			c.LLMProvider = strings.ToLower(v)
		case "api_key":
			if !strings.Contains(v, "…") {
				c.APIKey = v
			}
		case "model":
			c.Model = v
		case "base_url":
			c.BaseURL = v
		case "azure_api_version":
			c.AzureAPIVersion = v
		case "azure_deployment":
			c.AzureDeployment = v
		case "work_dir":
			c.WorkDir = v
		case "block_timeout":
			c.BlockTimeout = v
		case "termination_phrase":
			c.TerminationPhrase = v
		case "system_message":
			c.SystemMessage = v
		case "sandbox_mode":
			c.SandboxMode = v
		case "docker_image":
			c.DockerImage = v
		case "max_tokens", "max_turns", "max_output":
			n := 0
			if v != "" {
				var err error
				if n, err = strconv.Atoi(v); err != nil {
					return fmt.Errorf("%s must be an integer: %w", k, err)
				}
			}
			switch k {
			case "max_tokens":
				c.MaxTokens = n
			case "max_turns":
				c.MaxTurns = n
			default:
				c.MaxOutput = n
			}
		case "generate_titles":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("generate_titles must be a boolean: %w", err)
			}
			c.GenerateTitles = b
		default:
			return fmt.Errorf("unknown config key %q", k)
		}
	}
	return nil
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "…"
	}
	return key[:4] + "…" + key[len(key)-4:]
}
