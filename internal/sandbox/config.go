package sandbox

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode represents the sandbox execution mode.
type Mode string

const (
	// ModeDocker uses Docker containers for isolation.
	ModeDocker Mode = "docker"
	// ModeHost runs blocks directly on the host (no isolation).
	ModeHost Mode = "host"
	// ModeAuto selects Docker if available, otherwise falls back to host.
	ModeAuto Mode = "auto"
)

const defaultCmdTimeout = 60 * time.Second

// Config holds configuration for sandbox execution.
type Config struct {
	Mode        Mode
	DockerImage string        // Image override for every language
	CPU         string        // CPU limit (e.g., "2", "1.5")
	Memory      string        // Memory limit (e.g., "1g", "512m")
	Network     bool          // Allow network access inside containers
	CmdTimeout  time.Duration // Default command timeout (0 = 60s)
	Env         []string      // Extra KEY=VALUE pairs for every block
}

// ParseMode converts a user-supplied mode string. An empty string means host:
// containers run without network, so Docker is opt-in.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeHost:
		return ModeHost, nil
	case ModeAuto:
		return ModeAuto, nil
	case ModeDocker:
		return ModeDocker, nil
	}
	return "", fmt.Errorf("unknown sandbox mode %q (want auto, docker or host)", s)
}

// ConfigFromEnv builds a Config from DUET_SANDBOX_MODE and the DUET_DOCKER_* variables.
func ConfigFromEnv() Config {
	return ConfigFromLookup(os.Getenv)
}

// ConfigFromLookup is ConfigFromEnv with a custom variable source.
func ConfigFromLookup(getenv func(string) string) Config {
	mode, err := ParseMode(getenv("DUET_SANDBOX_MODE"))
	if err != nil {
		log.Printf("WARNING: %v, defaulting to 'host'", err)
		mode = ModeHost
	}

	network := false
	if v := getenv("DUET_DOCKER_NETWORK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			network = b
		} else {
			log.Printf("WARNING: Invalid DUET_DOCKER_NETWORK value '%s', network stays disabled", v)
		}
	}

	return Config{
		Mode:        mode,
		DockerImage: getenv("DUET_DOCKER_IMAGE"),
		CPU:         orDefault(getenv("DUET_DOCKER_CPU"), "2"),
		Memory:      orDefault(getenv("DUET_DOCKER_MEMORY"), "1g"),
		Network:     network,
	}
}

func orDefault(val, defaultValue string) string {
	if val != "" {
		return val
	}
	return defaultValue
}

func (c Config) timeout(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	if c.CmdTimeout > 0 {
		return c.CmdTimeout
	}
	return defaultCmdTimeout
}

// NewRunner creates a runner for config.Mode:
//   - "docker": Docker, or an error if the daemon is unreachable
//   - "host" or empty: host process groups (no isolation)
//   - "auto": Docker if reachable, host otherwise
func NewRunner(config Config) (Runner, error) {
	switch config.Mode {
	case ModeDocker:
		return NewDockerRunner(config)
	case ModeHost, "":
		log.Printf("WARNING: Using host executor (no sandboxing). Code runs with your user's permissions.")
		return NewHostRunner(config), nil
	case ModeAuto:
		dockerRunner, err := NewDockerRunner(config)
		if err == nil {
			return dockerRunner, nil
		}
		log.Printf("WARNING: Docker not available (%v). Using host executor (no sandboxing).", err)
		return NewHostRunner(config), nil
	default:
		return nil, fmt.Errorf("unknown runner mode: %s", config.Mode)
	}
}
