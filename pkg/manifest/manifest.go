// Package manifest edits the declarative list literals of a manifest document
// (`'data': [...]`) without parsing the host language.
package manifest

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fulmenhq/addonsync/pkg/docstore"
	"github.com/fulmenhq/addonsync/pkg/logger"
)

// DefaultIndent prefixes every inserted entry.
const DefaultIndent = "        "

// Route sends entries matching Pattern (relative to the manifest) to list Key.
type Route struct {
	Pattern string
	Key     string
}

// Options configures an Editor.
type Options struct {
	ListKey string
	Indent  string
	Routes  []Route
}

// Editor adds and removes entries in manifest documents.
type Editor struct {
	store   docstore.Store
	anchors ListAnchors
	opts    Options
}

// NewEditor creates an editor over store using textual anchors.
func NewEditor(store docstore.Store, opts Options) *Editor {
	if opts.ListKey == "" {
		opts.ListKey = "data"
	}
	if opts.Indent == "" {
		opts.Indent = DefaultIndent
	}
	return &Editor{store: store, anchors: TextAnchors{}, opts: opts}
}

// WithAnchors swaps the anchor implementation.
func (e *Editor) WithAnchors(a ListAnchors) *Editor {
	e.anchors = a
	return e
}

// Anchors returns the anchor implementation in use.
func (e *Editor) Anchors() ListAnchors {
	return e.anchors
}

// RelativeEntry returns target relative to the manifest's directory with
// forward slashes. Both paths are slash-separated and share a root.
func RelativeEntry(manifestPath, target string) (string, error) {
	rel, err := filepath.Rel(filepath.FromSlash(path.Dir(manifestPath)), filepath.FromSlash(target))
	if err != nil {
		return "", fmt.Errorf("failed to relate %s to %s: %w", target, manifestPath, err)
	}
	return filepath.ToSlash(rel), nil
}

// KeyFor returns the list key an entry is registered under.
func (e *Editor) KeyFor(entry string) string {
	for _, r := range e.opts.Routes {
		if ok, _ := doublestar.Match(r.Pattern, entry); ok {
			return r.Key
		}
	}
	return e.opts.ListKey
}

// Keys returns every list key the editor may write to.
func (e *Editor) Keys() []string {
	keys := []string{e.opts.ListKey}
	for _, r := range e.opts.Routes {
		dup := false
		for _, k := range keys {
			if k == r.Key {
				dup = true
				break
			}
		}
		if !dup {
			keys = append(keys, r.Key)
		}
	}
	return keys
}

// Contains reports whether entry occurs in text as a quoted string in either style.
// A bare substring is not enough: views/a.xml is absent from a manifest that
// only lists wizard/views/a.xml.
func Contains(text, entry string) bool {
	return strings.Contains(text, "'"+entry+"'") || strings.Contains(text, `"`+entry+`"`)
}

// AddEntry registers targetPath in the manifest at manifestPath. It is a no-op
// when the manifest is missing, already references the entry, or has no list
// for the entry's key. The boolean reports whether the document changed.
func (e *Editor) AddEntry(manifestPath, targetPath string) (bool, error) {
	rel, err := RelativeEntry(manifestPath, targetPath)
	if err != nil {
		return false, err
	}

	text, err := e.store.ReadText(manifestPath)
	if err != nil {
		if errors.Is(err, docstore.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	if Contains(text, rel) {
		logger.Debug("Manifest entry already present", logger.String("manifest", manifestPath), logger.String("entry", rel))
		return false, nil
	}

	key := e.KeyFor(rel)
	offset, ok := e.anchors.FindListAnchor(text, key)
	if !ok {
		logger.Debug("Manifest has no list for key", logger.String("manifest", manifestPath), logger.String("key", key))
		return false, nil
	}

	if err := e.store.ApplyEdit(manifestPath, e.insertion(text, offset, rel)); err != nil {
		return false, err
	}
	if err := e.store.Persist(manifestPath); err != nil {
		return false, err
	}

	logger.Info("Added manifest entry", logger.String("manifest", manifestPath), logger.String("entry", rel), logger.String("key", key))
	return true, nil
}

// insertion builds the edit placing rel on its own line right after the
// bracket at offset. When the list continues on the bracket line, that content
// is moved to the following line so every entry stays line-addressable.
func (e *Editor) insertion(text string, offset int, rel string) docstore.Edit {
	entry := "\n" + e.opts.Indent + "'" + rel + "',"

	rest := text[offset:]
	spaces := len(rest) - len(strings.TrimLeft(rest, " \t"))
	next := rest[spaces:]
	if next == "" || next[0] == '\n' || strings.HasPrefix(next, "\r\n") {
		return docstore.Insert(offset, entry)
	}

	tail := "\n" + e.opts.Indent
	if next[0] == ']' {
		tail = "\n" + lineIndent(text, offset)
	}
	return docstore.Edit{Offset: offset, Length: spaces, Text: entry + tail}
}

// lineIndent returns the leading whitespace of the line containing offset.
func lineIndent(text string, offset int) string {
	start := strings.LastIndexByte(text[:offset], '\n') + 1
	line := text[start:offset]
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// RemoveEntry drops every line referencing targetPath in single or double
// quotes. Lines listing several entries are dropped whole.
func (e *Editor) RemoveEntry(manifestPath, targetPath string) (bool, error) {
	rel, err := RelativeEntry(manifestPath, targetPath)
	if err != nil {
		return false, err
	}

	text, err := e.store.ReadText(manifestPath)
	if err != nil {
		if errors.Is(err, docstore.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	single, double := "'"+rel+"'", `"`+rel+`"`
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.Contains(line, single) || strings.Contains(line, double) {
			continue
		}
		kept = append(kept, line)
	}
	dropped := len(lines) - len(kept)
	if dropped == 0 {
		return false, nil
	}

	if err := e.store.ApplyEdit(manifestPath, docstore.ReplaceAll(strings.Join(kept, "\n"))); err != nil {
		return false, err
	}
	if err := e.store.Persist(manifestPath); err != nil {
		return false, err
	}

	logger.Info("Removed manifest entry", logger.String("manifest", manifestPath), logger.String("entry", rel), logger.Int("lines", dropped))
	return true, nil
}

// RenameEntry rewrites references to oldPath as newPath in place, keeping the
// entry's position in its list. It reports false when oldPath is not
// referenced; when newPath already is, the old references are removed instead.
func (e *Editor) RenameEntry(manifestPath, oldPath, newPath string) (bool, error) {
	oldRel, err := RelativeEntry(manifestPath, oldPath)
	if err != nil {
		return false, err
	}
	newRel, err := RelativeEntry(manifestPath, newPath)
	if err != nil {
		return false, err
	}

	text, err := e.store.ReadText(manifestPath)
	if err != nil {
		if errors.Is(err, docstore.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !Contains(text, oldRel) {
		return false, nil
	}
	if Contains(text, newRel) {
		return e.RemoveEntry(manifestPath, oldPath)
	}

	updated := strings.NewReplacer(
		"'"+oldRel+"'", "'"+newRel+"'",
		`"`+oldRel+`"`, `"`+newRel+`"`,
	).Replace(text)

	if err := e.store.ApplyEdit(manifestPath, docstore.ReplaceAll(updated)); err != nil {
		return false, err
	}
	if err := e.store.Persist(manifestPath); err != nil {
		return false, err
	}

	logger.Info("Renamed manifest entry", logger.String("manifest", manifestPath), logger.String("from", oldRel), logger.String("to", newRel))
	return true, nil
}
