// Package codeblock extracts fenced code blocks from assistant messages.
package codeblock

import (
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/duet/internal/engine"
)

// Canonical language tags.
const (
	LangPython     = "python"
	LangShell      = "sh"
	LangJavaScript = "javascript"
)

// DefaultLang is used for fences without a language tag.
const DefaultLang = LangPython

var aliases = map[string]string{
	"python":     LangPython,
	"python3":    LangPython,
	"py":         LangPython,
	"sh":         LangShell,
	"bash":       LangShell,
	"shell":      LangShell,
	"javascript": LangJavaScript,
	"js":         LangJavaScript,
	"node":       LangJavaScript,
}

// NormalizeLang maps a fence tag to its canonical language.
// Unknown tags are returned lowercased so callers can report them.
func NormalizeLang(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return DefaultLang
	}
	if canon, ok := aliases[tag]; ok {
		return canon
	}
	return tag
}

// Extract scans text for ``` fences and returns the blocks in order.
//
// Malformed fences (unterminated or empty) are reported as *engine.ProtocolError
// and their text is left as plain prose.
func Extract(text string) ([]engine.CodeBlock, []error) {
	var (
		blocks []engine.CodeBlock
		errs   []error
	)

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i := 0; i < len(lines); i++ {
		fence, tag, ok := openingFence(lines[i])
		if !ok {
			continue
		}

		start := i
		end := -1
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == fence {
				end = j
				break
			}
		}
		if end < 0 {
			errs = append(errs, &engine.ProtocolError{Line: start + 1, Reason: "unterminated code fence"})
			break
		}
		i = end

		body := strings.Join(lines[start+1:end], "\n")
		if strings.TrimSpace(body) == "" {
			errs = append(errs, &engine.ProtocolError{Line: start + 1, Reason: "empty code block"})
			continue
		}
		blocks = append(blocks, engine.CodeBlock{
			Lang:     NormalizeLang(tag),
			Source:   body,
			Filename: ParseFilename(body),
			Index:    len(blocks),
		})
	}
	return blocks, errs
}

// openingFence reports whether line opens a fenced block and returns the
// closing marker and language tag.
func openingFence(line string) (fence, tag string, ok bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "```") {
		return "", "", false
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == '`' {
		n++
	}
	fence = trimmed[:n]
	info := strings.TrimSpace(trimmed[n:])
	// inline code like ```x``` on one line is not a fence
	if strings.Contains(info, "`") {
		return "", "", false
	}
	if fields := strings.Fields(info); len(fields) > 0 {
		tag = fields[0]
	}
	return fence, tag, true
}

// ParseFilename returns the name given by a "# filename: <name>" (or
// "// filename: <name>") header on the first line of source.
func ParseFilename(source string) string {
	first, _, _ := strings.Cut(strings.TrimLeft(source, "\n"), "\n")
	first = strings.TrimSpace(first)
	for _, prefix := range []string{"#", "//"} {
		rest, ok := strings.CutPrefix(first, prefix)
		if !ok {
			continue
		}
		rest = strings.TrimSpace(rest)
		if name, ok := strings.CutPrefix(rest, "filename:"); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}

// Summary renders a short description of blocks for logs.
func Summary(blocks []engine.CodeBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Filename != "" {
			parts = append(parts, fmt.Sprintf("%s:%s", b.Lang, b.Filename))
			continue
		}
		parts = append(parts, b.Lang)
	}
	return strings.Join(parts, ", ")
}
