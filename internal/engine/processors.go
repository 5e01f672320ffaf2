// engine/processors.go
package engine

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// Processor rewrites the message list sent to the model. It never touches State.History.
type Processor func(ctx context.Context, st *State, msgs []ChatMessage) ([]ChatMessage, error)

func ApplyProcessors(ctx context.Context, st *State, msgs []ChatMessage, ps ...Processor) ([]ChatMessage, error) {
	var err error
	for _, p := range ps {
		msgs, err = p(ctx, st, msgs)
		if err != nil {
			return msgs, err
		}
	}
	return msgs, nil
}

// KeepLastN keeps the last n messages.
// The leading system prompt and the first executor message (the task) are always kept.
func KeepLastN(n int) Processor {
	return func(ctx context.Context, st *State, msgs []ChatMessage) ([]ChatMessage, error) {
		if n <= 0 || len(msgs) <= n {
			return msgs, nil
		}

		cut := len(msgs) - n
		var head []ChatMessage
		for i, msg := range msgs[:cut] {
			if i == 0 && msg.Role == RoleSystem {
				head = append(head, msg)
				continue
			}
			if msg.Role == RoleExecutor {
				head = append(head, msg)
				break
			}
		}

		out := make([]ChatMessage, 0, len(head)+1+n)
		out = append(out, head...)
		if dropped := cut - len(head); dropped > 0 {
			out = append(out, ChatMessage{
				Role:    RoleSystem,
				Content: fmt.Sprintf("[%d earlier messages omitted]", dropped),
			})
		}
		return append(out, msgs[cut:]...), nil
	}
}

// HeadTail returns at most n bytes from each end of s. Cut points move inward
// to rune boundaries so no UTF-8 sequence is split.
func HeadTail(s string, n int) (head, tail string) {
	if n >= len(s) {
		return s, s
	}
	h := n
	for h > 0 && !utf8.RuneStart(s[h]) {
		h--
	}
	t := len(s) - n
	for t < len(s) && !utf8.RuneStart(s[t]) {
		t++
	}
	return s[:h], s[t:]
}

// TruncateLongOutputs trims huge executor messages, keeping head and tail.
func TruncateLongOutputs(maxChars int) Processor {
	return func(ctx context.Context, st *State, msgs []ChatMessage) ([]ChatMessage, error) {
		if maxChars <= 0 {
			return msgs, nil
		}
		out := make([]ChatMessage, 0, len(msgs))
		seenTask := false
		for _, m := range msgs {
			if m.Role == RoleExecutor {
				// the task message is never truncated
				if seenTask && len(m.Content) > maxChars {
					head, tail := HeadTail(m.Content, maxChars/2)
					m.Content = head + "\n...\n" + tail
				}
				seenTask = true
			}
			out = append(out, m)
		}
		return out, nil
	}
}
