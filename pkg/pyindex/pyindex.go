// Package pyindex maintains the per-directory package index: one
// `from . import <name>` line per sibling module or sub-package.
package pyindex

import (
	"errors"
	"path"
	"strings"

	"github.com/fulmenhq/addonsync/pkg/docstore"
	"github.com/fulmenhq/addonsync/pkg/logger"
)

// Options configures an Editor.
type Options struct {
	IndexName       string
	ModuleExtension string
}

// Editor edits index documents through a docstore.
type Editor struct {
	store   docstore.Store
	anchors ImportAnchors
	opts    Options
}

// NewEditor creates an editor over store using textual anchors.
func NewEditor(store docstore.Store, opts Options) *Editor {
	if opts.IndexName == "" {
		opts.IndexName = "__init__.py"
	}
	if opts.ModuleExtension == "" {
		opts.ModuleExtension = ".py"
	}
	return &Editor{store: store, anchors: TextAnchors{}, opts: opts}
}

// WithAnchors swaps the anchor implementation.
func (e *Editor) WithAnchors(a ImportAnchors) *Editor {
	e.anchors = a
	return e
}

// Anchors returns the anchor implementation in use.
func (e *Editor) Anchors() ImportAnchors {
	return e.anchors
}

// IndexFor returns the index document path of dir.
func (e *Editor) IndexFor(dir string) string {
	return path.Join(dir, e.opts.IndexName)
}

// ModuleName derives the import name from a path string alone: the extension
// is stripped only when the literal path ends with the module extension.
func ModuleName(p, moduleExt string) string {
	base := path.Base(p)
	if moduleExt != "" && strings.HasSuffix(base, moduleExt) && base != moduleExt {
		return strings.TrimSuffix(base, moduleExt)
	}
	return base
}

// ModuleName applies the package-level rule with the editor's extension.
func (e *Editor) ModuleName(p string) string {
	return ModuleName(p, e.opts.ModuleExtension)
}

// AppendImport adds `from . import <name>` at the end of the index unless an
// equal line exists. When create is set a missing index is created empty
// first; otherwise a missing index is a no-op.
func (e *Editor) AppendImport(indexPath, name string, create bool) (bool, error) {
	if name == "" {
		return false, nil
	}
	if !e.store.Exists(indexPath) {
		if !create {
			logger.Debug("Index document missing", logger.String("index", indexPath))
			return false, nil
		}
		if err := e.store.Create(indexPath); err != nil {
			return false, err
		}
		logger.Info("Created index document", logger.String("index", indexPath))
	}

	text, err := e.store.ReadText(indexPath)
	if err != nil {
		if errors.Is(err, docstore.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if e.anchors.HasImport(text, name) {
		return false, nil
	}

	prefix := ""
	if len(text) > 0 && !strings.HasSuffix(text, "\n") {
		prefix = "\n"
	}
	if err := e.store.ApplyEdit(indexPath, docstore.Insert(len(text), prefix+ImportLine(name)+"\n")); err != nil {
		return false, err
	}
	if err := e.store.Persist(indexPath); err != nil {
		return false, err
	}

	logger.Info("Added import", logger.String("index", indexPath), logger.String("module", name))
	return true, nil
}

// RemoveImport drops every line importing name. A missing index is a no-op.
func (e *Editor) RemoveImport(indexPath, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	text, err := e.store.ReadText(indexPath)
	if err != nil {
		if errors.Is(err, docstore.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	drop := e.anchors.FindImportLines(text, name)
	if len(drop) == 0 {
		return false, nil
	}

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines)-len(drop))
	next := 0
	for i, line := range lines {
		if next < len(drop) && drop[next] == i {
			next++
			continue
		}
		kept = append(kept, line)
	}

	if err := e.store.ApplyEdit(indexPath, docstore.ReplaceAll(strings.Join(kept, "\n"))); err != nil {
		return false, err
	}
	if err := e.store.Persist(indexPath); err != nil {
		return false, err
	}

	logger.Info("Removed import", logger.String("index", indexPath), logger.String("module", name), logger.Int("lines", len(drop)))
	return true, nil
}

// packageParent returns the directory a marker registers and its parent, or
// false when the marker sits at the root.
func packageParent(markerPath string) (dir, parent string, ok bool) {
	dir = path.Dir(markerPath)
	parent = path.Dir(dir)
	if parent == dir {
		return "", "", false
	}
	return dir, parent, true
}

// PromoteDirectoryAsPackage registers the marker's directory in its parent's
// index. The parent index is never created.
func (e *Editor) PromoteDirectoryAsPackage(markerPath string) (bool, error) {
	dir, parent, ok := packageParent(markerPath)
	if !ok {
		return false, nil
	}
	return e.AppendImport(e.IndexFor(parent), path.Base(dir), false)
}

// DemoteDirectory removes the marker's directory from its parent's index.
func (e *Editor) DemoteDirectory(markerPath string) (bool, error) {
	dir, parent, ok := packageParent(markerPath)
	if !ok {
		return false, nil
	}
	return e.RemoveImport(e.IndexFor(parent), path.Base(dir))
}
