package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

func runHistoryCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: duet history list|show <id>|search <text>|reindex")
	}

	env, err := prepareRuntimeEnv(ctx, true)
	if err != nil {
		return err
	}
	defer env.Close()
	if env.Store == nil {
		return errors.New("session store unavailable")
	}

	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("history list", flag.ExitOnError)
		limit := fs.Int("n", 20, "Number of sessions to show")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return listSessions(ctx, env, *limit)
	case "show":
		if len(args) < 2 {
			return errors.New("usage: duet history show <id>")
		}
		return showSession(ctx, env, args[1])
	case "search":
		fs := flag.NewFlagSet("history search", flag.ExitOnError)
		role := fs.String("role", "", "Only match messages from this role (assistant, executor)")
		limit := fs.Int("n", 10, "Maximum number of hits")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() == 0 {
			return errors.New("usage: duet history search [-role r] <text>")
		}
		return searchSessions(ctx, env, strings.Join(fs.Args(), " "), *role, *limit)
	case "reindex":
		if env.Index == nil {
			return errors.New("search index unavailable")
		}
		n, err := env.Index.Reindex(ctx, env.Store)
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d messages\n", n)
		return nil
	}
	return fmt.Errorf("unknown history command %q", args[0])
}

func listSessions(ctx context.Context, env *runtimeEnv, limit int) error {
	sessions, err := env.Store.List(ctx, limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPDATED\tTURNS\tREASON\tTITLE")
	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = truncate(s.Task, 60)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", s.ID, s.UpdatedAt.Format(time.DateTime), s.Turns, s.Reason, title)
	}
	return w.Flush()
}

func showSession(ctx context.Context, env *runtimeEnv, id string) error {
	sess, err := env.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	msgs, err := env.Store.Messages(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("Session %s (%s)\nTask: %s\nWork dir: %s\nTurns: %d  Reason: %s  Tokens: %d\n",
		sess.ID, sess.Model, sess.Task, sess.WorkDir, sess.Turns, sess.Reason, sess.Tokens)
	if sess.Error != "" {
		fmt.Printf("Error: %s\n", sess.Error)
	}
	if sess.Summary != "" {
		fmt.Printf("Summary: %s\n", sess.Summary)
	}
	fmt.Println()
	for _, m := range msgs {
		fmt.Printf("--- #%d %s ---\n%s\n\n", m.Seq, m.Role, strings.TrimRight(m.Content, "\n"))
	}
	return nil
}

// searchSessions prints index hits with the message text read back from the store.
func searchSessions(ctx context.Context, env *runtimeEnv, text, role string, limit int) error {
	if env.Index == nil {
		return errors.New("search index unavailable")
	}
	hits, err := env.Index.Search(text, role, limit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("No matches")
		return nil
	}
	transcripts := map[string][]string{}
	for _, h := range hits {
		msgs, ok := transcripts[h.SessionID]
		if !ok {
			stored, err := env.Store.Messages(ctx, h.SessionID)
			if err != nil {
				return err
			}
			for _, m := range stored {
				msgs = append(msgs, m.Content)
			}
			transcripts[h.SessionID] = msgs
		}
		var content string
		if h.Seq < len(msgs) {
			content = strings.ReplaceAll(msgs[h.Seq], "\n", " ")
		}
		fmt.Printf("%s #%d %s (%.2f)\n  %s\n", h.SessionID, h.Seq, h.Role, h.Score, truncate(content, 160))
	}
	return nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}
	return s[:limit-3] + "..."
}
