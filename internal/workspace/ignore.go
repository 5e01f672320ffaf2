// Package workspace tracks files in the session's working directory.
package workspace

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnorePatterns are skipped when snapshotting or watching a working directory.
var DefaultIgnorePatterns = []string{
	".git",
	"__pycache__",
	"*.pyc",
	".ipynb_checkpoints",
	"node_modules",
	".venv",
	".cache",
	".DS_Store",
}

// Matcher reports whether a workspace-relative path is ignored.
type Matcher interface {
	MatchesPath(string) bool
}

// NewIgnoreMatcher compiles DefaultIgnorePatterns plus root/.gitignore.
func NewIgnoreMatcher(root string) Matcher {
	patterns := append([]string{}, DefaultIgnorePatterns...)
	if lines, err := readGitignoreLines(filepath.Join(root, ".gitignore")); err == nil {
		patterns = append(patterns, lines...)
	}
	return gitignore.CompileIgnoreLines(patterns...)
}

// readGitignoreLines reads patterns from a .gitignore file.
func readGitignoreLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
