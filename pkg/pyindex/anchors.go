package pyindex

import (
	"strings"
)

// ImportAnchors locates relative import statements in index text.
type ImportAnchors interface {
	// FindImportLines returns the indexes (into strings.Split(text, "\n")) of
	// lines importing name.
	FindImportLines(text, name string) []int
	// HasImport reports whether a line equal to the import statement exists.
	HasImport(text, name string) bool
	// ImportedNames returns every name imported by a `from . import` line.
	ImportedNames(text string) []string
}

// ImportLine returns the statement registering name.
func ImportLine(name string) string {
	return "from . import " + name
}

// TextAnchors matches `from . import <name>` line prefixes.
type TextAnchors struct{}

// FindImportLines implements ImportAnchors. A line matches when its trimmed
// content starts with the statement and the name is not merely a prefix of a
// longer identifier: removing foo keeps `from . import foo_bar`, which a plain
// prefix match would drop.
func (TextAnchors) FindImportLines(text, name string) []int {
	stmt := ImportLine(name)
	var idx []int
	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, stmt) {
			continue
		}
		if rest := trimmed[len(stmt):]; rest == "" || strings.ContainsRune(" \t,;#", rune(rest[0])) {
			idx = append(idx, i)
		}
	}
	return idx
}

// HasImport implements ImportAnchors.
func (TextAnchors) HasImport(text, name string) bool {
	stmt := ImportLine(name)
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == stmt {
			return true
		}
	}
	return false
}

// ImportedNames implements ImportAnchors. Multi-name lines
// (`from . import a, b`) contribute every name.
func (TextAnchors) ImportedNames(text string) []string {
	const prefix = "from . import "
	var names []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, prefix) {
			continue
		}
		body := trimmed[len(prefix):]
		if hash := strings.IndexByte(body, '#'); hash >= 0 {
			body = body[:hash]
		}
		for _, part := range strings.Split(body, ",") {
			fields := strings.Fields(part)
			if len(fields) == 0 || fields[0] == "(" {
				continue
			}
			names = append(names, strings.Trim(fields[0], "()"))
		}
	}
	return names
}
