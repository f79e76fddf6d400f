// Package ignore decides which project paths addonsync must never touch: a fixed
// denylist of build/VCS/cache directory names, doublestar globs from config and,
// optionally, the project's gitignore files (via go-git).
package ignore

import (
	"bufio"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5"
	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoreFileName is the repo-level override file, read in addition to .gitignore.
const IgnoreFileName = ".addonsyncignore"

// DefaultSegments are directory names whose subtrees are always ignored.
var DefaultSegments = []string{
	".git", ".hg", ".svn",
	"__pycache__", ".pytest_cache", ".mypy_cache", ".ruff_cache", ".tox",
	".venv", "venv", "node_modules",
	"build", "dist",
	".idea", ".vscode",
}

// Options configures a Matcher.
type Options struct {
	// Segments is the directory-name denylist; nil means DefaultSegments.
	Segments []string
	// Globs are doublestar patterns matched against the slash-separated relative path.
	Globs []string
	// UseGitignore layers .gitignore, .git/info/exclude and .addonsyncignore patterns.
	UseGitignore bool
}

// Matcher provides path filtering for paths relative to the project root.
type Matcher struct {
	segments map[string]struct{}
	globs    []string
	matcher  gitignore.Matcher
}

// NewMatcher creates a matcher rooted at fs. Layers, in order:
// 1. segment denylist (always)
// 2. config globs
// 3. .gitignore and related git ignore files, then .addonsyncignore (when enabled)
func NewMatcher(fs billy.Filesystem, opts Options) (*Matcher, error) {
	segs := opts.Segments
	if segs == nil {
		segs = DefaultSegments
	}
	m := &Matcher{
		segments: make(map[string]struct{}, len(segs)),
	}
	for _, s := range segs {
		if s = strings.TrimSpace(s); s != "" {
			m.segments[s] = struct{}{}
		}
	}
	for _, g := range opts.Globs {
		if !doublestar.ValidatePattern(g) {
			continue
		}
		m.globs = append(m.globs, g)
	}

	if opts.UseGitignore && fs != nil {
		var patterns []gitignore.Pattern
		// ReadPatterns with nil reads .gitignore files recursively and .git/info/exclude
		if gitPatterns, err := gitignore.ReadPatterns(fs, nil); err == nil {
			patterns = append(patterns, gitPatterns...)
		}
		if local, err := readIgnoreFile(fs, IgnoreFileName); err == nil {
			for _, p := range local {
				patterns = append(patterns, gitignore.ParsePattern(p, nil))
			}
		}
		if len(patterns) > 0 {
			m.matcher = gitignore.NewMatcher(patterns)
		}
	}

	return m, nil
}

// readIgnoreFile reads patterns from a text file (like .addonsyncignore)
func readIgnoreFile(fs billy.Filesystem, name string) ([]string, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}

// Match reports whether rel (slash-separated, relative to the root) is ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	parts := splitPath(rel)
	if len(parts) == 0 {
		return false
	}

	for _, p := range parts {
		if _, ok := m.segments[p]; ok {
			return true
		}
	}

	clean := strings.Join(parts, "/")
	for _, g := range m.globs {
		if ok, _ := doublestar.Match(g, clean); ok {
			return true
		}
	}

	if m.matcher != nil {
		return m.matcher.Match(parts, isDir)
	}
	return false
}

// splitPath converts a slash-separated path into components for go-git matching
func splitPath(p string) []string {
	if p == "" || p == "." {
		return []string{}
	}
	p = path.Clean(strings.TrimPrefix(p, "/"))

	parts := strings.Split(p, "/")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}
