package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ChamsBouzaiene/duet/internal/engine"
	"github.com/ChamsBouzaiene/duet/internal/factory"
)

const defaultTask = "Plot a chart of NVDA and TESLA stock price change YTD. and save the chart as a PNG file."

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	var err error
	switch {
	case len(args) > 0 && args[0] == "history":
		err = runHistoryCommand(ctx, args[1:])
	case len(args) > 0 && args[0] == "run":
		err = runCommand(ctx, args[1:])
	default:
		err = runCommand(ctx, args)
	}
	if err != nil {
		// stdout may be carrying NDJSON, so fatal errors go to stderr either way
		fmt.Fprintf(os.Stderr, "duet: %v\n", err)
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("duet", flag.ExitOnError)
	task := fs.String("task", defaultTask, "Task sent to the assistant")
	stdioMode := fs.Bool("stdio", false, "Serve sessions over the NDJSON stdio protocol")
	noRecord := fs.Bool("no-record", false, "Do not record the session transcript")
	flags := registerSessionFlags(fs)

	if err := fs.Parse(args); err != nil {
		return err
	}
	if rest := fs.Args(); len(rest) > 0 {
		*task = strings.Join(rest, " ")
	}

	// stdout carries only the protocol in stdio mode
	log.SetOutput(os.Stderr)

	env, err := prepareRuntimeEnv(ctx, !*noRecord)
	if err != nil {
		return fmt.Errorf("failed to prepare runtime environment: %w", err)
	}
	defer env.Close()

	if *stdioMode {
		return runStdIOEngine(ctx, env, flags)
	}

	res, err := flags.resolve(env, env.UserCfg, nil)
	if err != nil {
		return err
	}
	log.Printf("🧠 Starting session (model: %s, work dir: %s, max turns: %d)", res.Session.Model, res.Session.WorkDir, res.Session.MaxTurns)

	st, err := factory.StartSession(ctx, *task, res, factory.Options{
		Store: env.Store,
		Index: env.Index,
	})
	if st != nil {
		printTranscript(st)
	}
	return err
}

func printTranscript(st *engine.State) {
	for _, msg := range st.History {
		fmt.Printf("--- %s ---\n%s\n\n", msg.Role, strings.TrimRight(msg.Content, "\n"))
	}
	fmt.Printf("Session %s finished after %d turns (%s), %d tokens\n", st.ID, st.Turn, st.Reason, st.Totals.Total)
}
