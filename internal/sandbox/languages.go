package sandbox

import (
	"github.com/ChamsBouzaiene/duet/internal/codeblock"
)

// Language describes how a canonical language tag is saved and run.
type Language struct {
	Name        string
	Ext         string   // File extension without the dot
	Interpreter string   // Executable looked up in PATH (host) or the image (docker)
	Args        []string // Arguments placed before the file name
}

var languages = map[string]Language{
	codeblock.LangPython: {
		Name:        codeblock.LangPython,
		Ext:         "py",
		Interpreter: "python3",
		Args:        []string{"-u"}, // unbuffered, so output survives a timeout kill
	},
	codeblock.LangShell: {
		Name:        codeblock.LangShell,
		Ext:         "sh",
		Interpreter: "sh",
	},
	codeblock.LangJavaScript: {
		Name:        codeblock.LangJavaScript,
		Ext:         "js",
		Interpreter: "node",
	},
}

// LookupLanguage returns the runtime for a canonical tag.
func LookupLanguage(lang string) (Language, bool) {
	l, ok := languages[lang]
	return l, ok
}

// Command returns the argv that runs file.
func (l Language) Command(file string) (string, []string) {
	args := make([]string, 0, len(l.Args)+1)
	args = append(args, l.Args...)
	return l.Interpreter, append(args, file)
}
