package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/duet/internal/config"
	"github.com/ChamsBouzaiene/duet/internal/project"
	"github.com/ChamsBouzaiene/duet/internal/sandbox"
	"github.com/ChamsBouzaiene/duet/internal/session"
)

// runtimeEnv holds the process-wide collaborators shared by every session.
type runtimeEnv struct {
	Config  *config.Manager
	Store   *session.Store       // nil when recording is disabled
	Index   *session.SearchIndex // nil when the index could not be opened
	UserCfg *config.Config

	// Settings and rules from .duet in the current directory.
	Project map[string]string
	Rules   string
}

func (r *runtimeEnv) Close() {
	if r.Index != nil {
		if err := r.Index.Close(); err != nil {
			log.Printf("⚠️  close search index: %v", err)
		}
	}
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			log.Printf("⚠️  close session store: %v", err)
		}
	}
}

// prepareRuntimeEnv loads the user config and opens the transcript store.
// A store or index that cannot be opened disables recording instead of failing.
func prepareRuntimeEnv(ctx context.Context, record bool) (*runtimeEnv, error) {
	mgr, err := config.NewManager()
	if err != nil {
		return nil, err
	}
	userCfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}
	if mgr.Exists() {
		log.Printf("User config loaded from: %s", mgr.Path())
	}

	env := &runtimeEnv{Config: mgr, UserCfg: userCfg}
	if err := env.loadProject(); err != nil {
		return nil, err
	}
	if !record {
		return env, nil
	}

	if err := os.MkdirAll(mgr.Dir(), 0o755); err != nil {
		log.Printf("⚠️  Failed to create %s: %v (sessions will not be recorded)", mgr.Dir(), err)
		return env, nil
	}
	store, err := session.NewStore(ctx, mgr.DatabasePath())
	if err != nil {
		log.Printf("⚠️  Failed to open session store: %v (sessions will not be recorded)", err)
		return env, nil
	}
	env.Store = store

	index, err := session.OpenSearchIndex(mgr.IndexPath())
	if err != nil {
		log.Printf("⚠️  Failed to open search index: %v (search disabled)", err)
	} else {
		env.Index = index
	}
	return env, nil
}

func (r *runtimeEnv) loadProject() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	pc, err := project.LoadConfig(cwd)
	if err != nil {
		return err
	}
	r.Project = pc.Settings()
	if pc != nil {
		log.Printf("Project settings loaded from %s", filepath.Join(cwd, project.Dir))
	}
	if r.Rules, err = project.LoadRules(cwd); err != nil {
		return err
	}
	if r.Rules != "" {
		log.Printf("📜 Custom rules active from %s", filepath.Join(project.Dir, project.RulesFile))
	}
	return nil
}

// sessionFlags are the command-line overrides shared by run and --stdio.
type sessionFlags struct {
	fs       *flag.FlagSet
	workDir  string
	maxTurns int
	timeout  time.Duration
	phrase   string
	sandbox  string
	system   string
}

func registerSessionFlags(fs *flag.FlagSet) *sessionFlags {
	f := &sessionFlags{fs: fs}
	fs.StringVar(&f.workDir, "work-dir", "", "Working directory code blocks run in (default: coding)")
	fs.IntVar(&f.maxTurns, "max-turns", 0, "Maximum assistant/executor rounds (default: 10)")
	fs.DurationVar(&f.timeout, "timeout", 0, "Per-block execution timeout (default: 60s)")
	fs.StringVar(&f.phrase, "termination-phrase", "", "Phrase that ends the session (default: TERMINATE)")
	fs.StringVar(&f.sandbox, "sandbox", "", "Sandbox mode: host (default), docker or auto")
	fs.StringVar(&f.system, "system", "", "Extra instructions appended to the assistant system prompt")
	return f
}

// resolve layers the user config, the project settings, per-request overrides,
// the environment and the flags that were set, later ones winning.
func (f *sessionFlags) resolve(env *runtimeEnv, userCfg *config.Config, overrides map[string]string) (*config.Resolved, error) {
	cfg := *userCfg
	if err := cfg.Merge(env.Project); err != nil {
		return nil, fmt.Errorf("project settings: %w", err)
	}
	if err := cfg.Merge(overrides); err != nil {
		return nil, err
	}
	res, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	if env.Rules != "" {
		res.SystemMessage = strings.TrimSpace(res.SystemMessage + "\n\n" + env.Rules)
	}

	var applyErr error
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "work-dir":
			res.Session.WorkDir = f.workDir
		case "max-turns":
			res.Session.MaxTurns = f.maxTurns
		case "timeout":
			res.Session.BlockTimeout = f.timeout
			res.Sandbox.CmdTimeout = f.timeout
		case "termination-phrase":
			res.Session.TerminationPhrase = f.phrase
		case "sandbox":
			mode, err := sandbox.ParseMode(f.sandbox)
			if err != nil {
				applyErr = err
			}
			res.Sandbox.Mode = mode
		case "system":
			res.SystemMessage = f.system
		}
	})
	if applyErr != nil {
		return nil, applyErr
	}
	if err := res.Session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	return res, nil
}
