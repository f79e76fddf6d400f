// Package router turns file-system change events into registry edits.
//
// Every path is classified first; ignored paths never reach an editor. Data
// files go to the nearest manifest, module files and package markers to the
// package index of their directory (or its parent). Each dispatch call arms
// the maintenance trigger exactly once.
package router

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/fulmenhq/addonsync/pkg/classify"
	"github.com/fulmenhq/addonsync/pkg/logger"
	"github.com/fulmenhq/addonsync/pkg/manifest"
	"github.com/fulmenhq/addonsync/pkg/pathfinder"
	"github.com/fulmenhq/addonsync/pkg/pyindex"
	"github.com/fulmenhq/addonsync/pkg/safeio"
)

// Op is the kind of a change event.
type Op int

const (
	OpCreate Op = iota
	OpDelete
	OpRename
)

// String returns the string representation of the op
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpDelete:
		return "delete"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is one change. OldPath is set for renames only.
type Event struct {
	Op      Op
	Path    string
	OldPath string
}

// Rename pairs the old and new path of a moved file or directory.
type Rename struct {
	Old string
	New string
}

// Trigger is armed after every dispatch call.
type Trigger interface {
	Trigger()
}

// Options tunes routing policy.
type Options struct {
	// Root is the project root on disk; absolute event paths are made relative
	// to it and paths outside it are skipped.
	Root string
	// CreateMissingIndex creates an empty index for a new module file's directory.
	CreateMissingIndex bool
	// RenameInPlace rewrites a renamed data file's manifest entry at its position.
	RenameInPlace bool
}

// Router dispatches change events to the manifest and package index editors.
type Router struct {
	fs        pathfinder.Statter
	classify  *classify.Classifier
	manifests *manifest.Editor
	index     *pyindex.Editor
	trigger   Trigger
	opts      Options
}

// New creates a router. fs is rooted at the project root; trigger may be nil.
func New(fs pathfinder.Statter, c *classify.Classifier, m *manifest.Editor, ix *pyindex.Editor, trigger Trigger, opts Options) *Router {
	return &Router{
		fs:        fs,
		classify:  c,
		manifests: m,
		index:     ix,
		trigger:   trigger,
		opts:      opts,
	}
}

func (r *Router) fire() {
	if r.trigger != nil {
		r.trigger.Trigger()
	}
}

// Created handles a batch of created paths.
func (r *Router) Created(paths ...string) error {
	defer r.fire()
	var errs []error
	for _, p := range paths {
		errs = append(errs, r.created(p))
	}
	return errors.Join(errs...)
}

// Deleted handles a batch of deleted paths.
func (r *Router) Deleted(paths ...string) error {
	defer r.fire()
	var errs []error
	for _, p := range paths {
		errs = append(errs, r.deleted(p))
	}
	return errors.Join(errs...)
}

// Renamed handles a batch of renames.
func (r *Router) Renamed(renames ...Rename) error {
	defer r.fire()
	var errs []error
	for _, rn := range renames {
		errs = append(errs, r.renamed(rn.Old, rn.New))
	}
	return errors.Join(errs...)
}

// Dispatch handles an ordered mixed batch as one call.
func (r *Router) Dispatch(events []Event) error {
	defer r.fire()
	var errs []error
	for _, ev := range events {
		switch ev.Op {
		case OpCreate:
			errs = append(errs, r.created(ev.Path))
		case OpDelete:
			errs = append(errs, r.deleted(ev.Path))
		case OpRename:
			errs = append(errs, r.renamed(ev.OldPath, ev.Path))
		default:
			errs = append(errs, fmt.Errorf("unknown event op %d for %s", ev.Op, ev.Path))
		}
	}
	return errors.Join(errs...)
}

// relative maps an event path to a clean root-relative slash path.
func (r *Router) relative(p string) (string, bool) {
	if filepath.IsAbs(p) {
		if r.opts.Root == "" {
			logger.Trace("Skipping absolute path without project root", logger.String("path", p))
			return "", false
		}
		rel, err := safeio.RelativeTo(r.opts.Root, p)
		if err != nil {
			logger.Trace("Skipping path outside project root", logger.String("path", p))
			return "", false
		}
		p = rel
	}
	clean, err := safeio.CleanUserPath(p)
	if err != nil || clean == "." {
		logger.Trace("Skipping unusable path", logger.String("path", p))
		return "", false
	}
	return clean, true
}

// resolve returns the relative path and classification, or false when the
// path must not reach an editor.
func (r *Router) resolve(p string) (string, classify.Kind, bool) {
	rel, ok := r.relative(p)
	if !ok {
		return "", classify.KindOther, false
	}
	res := r.classify.Classify(rel)
	if res.Ignored {
		logger.Trace("Skipping ignored path", logger.String("path", rel))
		return "", classify.KindOther, false
	}
	return rel, res.Kind, true
}

func (r *Router) isDir(rel string) bool {
	st, err := r.fs.Stat(rel)
	return err == nil && st.IsDir()
}

func (r *Router) hasIndex(dir string) bool {
	st, err := r.fs.Stat(r.index.IndexFor(dir))
	return err == nil && !st.IsDir()
}

// owner returns the manifest governing rel.
func (r *Router) owner(rel string) (string, bool) {
	m, ok := pathfinder.FindNearest(r.fs, path.Dir(rel), r.classify.ManifestName())
	if !ok {
		logger.Debug("No manifest governs path", logger.String("path", rel))
	}
	return m, ok
}

func (r *Router) created(p string) error {
	rel, kind, ok := r.resolve(p)
	if !ok {
		return nil
	}
	return r.createdRel(rel, kind)
}

func (r *Router) createdRel(rel string, kind classify.Kind) error {
	switch kind {
	case classify.KindManifestEntry:
		m, ok := r.owner(rel)
		if !ok {
			return nil
		}
		_, err := r.manifests.AddEntry(m, rel)
		return err
	case classify.KindPackageMarker:
		_, err := r.index.PromoteDirectoryAsPackage(rel)
		return err
	case classify.KindModuleFile:
		_, err := r.index.AppendImport(r.index.IndexFor(path.Dir(rel)), r.index.ModuleName(rel), r.opts.CreateMissingIndex)
		return err
	default:
		// A directory moved or copied in with its index already present.
		if r.isDir(rel) && r.hasIndex(rel) {
			_, err := r.index.PromoteDirectoryAsPackage(r.index.IndexFor(rel))
			return err
		}
		return nil
	}
}

func (r *Router) deleted(p string) error {
	rel, kind, ok := r.resolve(p)
	if !ok {
		return nil
	}
	return r.deletedRel(rel, kind)
}

func (r *Router) deletedRel(rel string, kind classify.Kind) error {
	switch kind {
	case classify.KindManifestEntry:
		m, ok := r.owner(rel)
		if !ok {
			return nil
		}
		_, err := r.manifests.RemoveEntry(m, rel)
		return err
	case classify.KindPackageMarker:
		_, err := r.index.DemoteDirectory(rel)
		return err
	default:
		// The path is gone, so the name comes from the path string alone.
		_, err := r.index.RemoveImport(r.index.IndexFor(path.Dir(rel)), r.index.ModuleName(rel))
		return err
	}
}

func (r *Router) renamed(oldPath, newPath string) error {
	oldRel, oldKind, oldOK := r.resolve(oldPath)
	newRel, newKind, newOK := r.resolve(newPath)

	var errs []error

	// Manifest half.
	oldEntry := oldOK && oldKind == classify.KindManifestEntry
	newEntry := newOK && newKind == classify.KindManifestEntry
	handled := false
	if oldEntry && newEntry && r.opts.RenameInPlace {
		oldOwner, ok1 := r.owner(oldRel)
		newOwner, ok2 := r.owner(newRel)
		if ok1 && ok2 && oldOwner == newOwner {
			changed, err := r.manifests.RenameEntry(newOwner, oldRel, newRel)
			errs = append(errs, err)
			handled = changed || err != nil
		}
	}
	if !handled {
		if oldEntry {
			errs = append(errs, r.deletedRel(oldRel, oldKind))
		}
		if newEntry {
			errs = append(errs, r.createdRel(newRel, newKind))
		}
	}

	// Package index half.
	newIsDir := newOK && newKind == classify.KindOther && r.isDir(newRel)
	if oldOK {
		switch {
		case oldKind == classify.KindModuleFile, oldKind == classify.KindPackageMarker:
			errs = append(errs, r.deletedRel(oldRel, oldKind))
		case oldKind == classify.KindOther && newIsDir:
			_, err := r.index.RemoveImport(r.index.IndexFor(path.Dir(oldRel)), path.Base(oldRel))
			errs = append(errs, err)
		}
	}
	if newOK && newKind != classify.KindManifestEntry {
		errs = append(errs, r.createdRel(newRel, newKind))
	}

	return errors.Join(errs...)
}
