package main

import (
	"flag"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/duet/internal/config"
	"github.com/ChamsBouzaiene/duet/internal/sandbox"
)

func TestSessionFlags_Resolve(t *testing.T) {
	for _, k := range []string{"DUET_WORK_DIR", "DUET_MAX_TURNS", "DUET_BLOCK_TIMEOUT", "DUET_TERMINATION_PHRASE", "DUET_SANDBOX_MODE"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()

	tests := []struct {
		name      string
		args      []string
		project   map[string]string
		overrides map[string]string
		check     func(t *testing.T, res *config.Resolved)
	}{
		{
			name:    "project settings over user config",
			project: map[string]string{"max_turns": "3", "work_dir": dir},
			check: func(t *testing.T, res *config.Resolved) {
				if res.Session.MaxTurns != 3 || res.Session.WorkDir != dir {
					t.Errorf("Session = %+v", res.Session)
				}
			},
		},
		{
			name:      "request overrides over project",
			project:   map[string]string{"max_turns": "3"},
			overrides: map[string]string{"max_turns": "8", "work_dir": filepath.Join(dir, "req")},
			check: func(t *testing.T, res *config.Resolved) {
				if res.Session.MaxTurns != 8 || res.Session.WorkDir != filepath.Join(dir, "req") {
					t.Errorf("Session = %+v", res.Session)
				}
			},
		},
		{
			name:      "flags win",
			args:      []string{"-max-turns", "2", "-timeout", "5s", "-sandbox", "host", "-termination-phrase", "STOP"},
			overrides: map[string]string{"max_turns": "8"},
			check: func(t *testing.T, res *config.Resolved) {
				if res.Session.MaxTurns != 2 || res.Session.TerminationPhrase != "STOP" {
					t.Errorf("Session = %+v", res.Session)
				}
				if res.Session.BlockTimeout != 5*time.Second || res.Sandbox.CmdTimeout != 5*time.Second {
					t.Errorf("timeouts = %s / %s", res.Session.BlockTimeout, res.Sandbox.CmdTimeout)
				}
				if res.Sandbox.Mode != sandbox.ModeHost {
					t.Errorf("Sandbox.Mode = %q", res.Sandbox.Mode)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			flags := registerSessionFlags(fs)
			if err := fs.Parse(tt.args); err != nil {
				t.Fatal(err)
			}
			env := &runtimeEnv{UserCfg: &config.Config{MaxTurns: 9}, Project: tt.project}
			res, err := flags.resolve(env, env.UserCfg, tt.overrides)
			if err != nil {
				t.Fatalf("resolve() error = %v", err)
			}
			tt.check(t, res)
		})
	}
}

func TestSessionFlags_RulesAppended(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := registerSessionFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatal(err)
	}
	env := &runtimeEnv{UserCfg: &config.Config{SystemMessage: "Be brief."}, Rules: "Use pandas."}
	res, err := flags.resolve(env, env.UserCfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.SystemMessage != "Be brief.\n\nUse pandas." {
		t.Errorf("SystemMessage = %q", res.SystemMessage)
	}
}

func TestSessionFlags_BadSandbox(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := registerSessionFlags(fs)
	if err := fs.Parse([]string{"-sandbox", "vm"}); err != nil {
		t.Fatal(err)
	}
	env := &runtimeEnv{UserCfg: &config.Config{}}
	if _, err := flags.resolve(env, env.UserCfg, nil); err == nil {
		t.Fatal("resolve() accepted an unknown sandbox mode")
	}
}
