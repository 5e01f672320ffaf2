package engine

import "strings"

// RenderForSummary flattens messages into a plain transcript.
func RenderForSummary(ms []ChatMessage) string {
	var b strings.Builder
	for _, m := range ms {
		b.WriteString("[" + string(m.Role) + "] ")
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}
