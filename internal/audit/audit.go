// Package audit compares the registries with the file tree in one pass and
// optionally reconciles them through the same editors the watcher uses.
package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"github.com/fulmenhq/addonsync/internal/project"
	"github.com/fulmenhq/addonsync/pkg/classify"
	"github.com/fulmenhq/addonsync/pkg/docstore"
	"github.com/fulmenhq/addonsync/pkg/logger"
	"github.com/fulmenhq/addonsync/pkg/manifest"
	"github.com/fulmenhq/addonsync/pkg/pathfinder"
	"golang.org/x/sync/errgroup"
)

// Kind categorises a finding.
type Kind string

const (
	KindUnregistered  Kind = "unregistered-data-file"
	KindMissingFile   Kind = "missing-data-file"
	KindMalformedXML  Kind = "malformed-xml"
	KindMissingImport Kind = "missing-import"
	KindStaleImport   Kind = "stale-import"
)

// Kinds lists every kind in report order.
var Kinds = []Kind{KindUnregistered, KindMissingFile, KindMalformedXML, KindMissingImport, KindStaleImport}

func (k Kind) rank() int {
	for i, kk := range Kinds {
		if kk == k {
			return i
		}
	}
	return len(Kinds)
}

// Finding is one disagreement between a registry and the tree.
type Finding struct {
	Kind     Kind   `json:"kind" yaml:"kind" toml:"kind"`
	Registry string `json:"registry,omitempty" yaml:"registry,omitempty" toml:"registry,omitempty"`
	Entry    string `json:"entry,omitempty" yaml:"entry,omitempty" toml:"entry,omitempty"`
	Path     string `json:"path" yaml:"path" toml:"path"`
	Detail   string `json:"detail,omitempty" yaml:"detail,omitempty" toml:"detail,omitempty"`
	Fixed    bool   `json:"fixed" yaml:"fixed" toml:"fixed"`
}

// Summary counts what was scanned and found.
type Summary struct {
	Manifests   int `json:"manifests" yaml:"manifests" toml:"manifests"`
	Indexes     int `json:"indexes" yaml:"indexes" toml:"indexes"`
	DataFiles   int `json:"data_files" yaml:"data_files" toml:"data_files"`
	ModuleFiles int `json:"module_files" yaml:"module_files" toml:"module_files"`
	Findings    int `json:"findings" yaml:"findings" toml:"findings"`
	Fixed       int `json:"fixed" yaml:"fixed" toml:"fixed"`
	Remaining   int `json:"remaining" yaml:"remaining" toml:"remaining"`
}

// Report is the outcome of an audit.
type Report struct {
	Root     string    `json:"root" yaml:"root" toml:"root"`
	Summary  Summary   `json:"summary" yaml:"summary" toml:"summary"`
	Findings []Finding `json:"findings" yaml:"findings" toml:"findings"`
}

// Drift reports whether unresolved findings remain.
func (r *Report) Drift() bool {
	return r.Summary.Remaining > 0
}

// Options selects reconciliation behaviour.
type Options struct {
	// Fix registers unregistered data files and missing imports.
	Fix bool
	// Prune also removes entries and imports whose target is gone.
	Prune bool
	// Concurrency bounds parallel manifest and XML checks; 0 means 8.
	Concurrency int
}

// Auditor scans one project.
type Auditor struct {
	p    *project.Project
	opts Options
}

// New creates an auditor.
func New(p *project.Project, opts Options) *Auditor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Auditor{p: p, opts: opts}
}

// tree is the classified snapshot of the project.
type tree struct {
	manifests []string
	indexes   []string
	data      []string
	modules   []string
}

func (a *Auditor) walk(ctx context.Context) (*tree, error) {
	t := &tree{}
	manifestName := a.p.Classifier.ManifestName()
	err := filepath.WalkDir(a.p.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == a.p.Root {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, relErr := filepath.Rel(a.p.Root, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if a.p.Ignore.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		res := a.p.Classifier.Classify(rel)
		if res.Ignored {
			return nil
		}
		switch {
		case path.Base(rel) == manifestName:
			t.manifests = append(t.manifests, rel)
		case res.Kind == classify.KindPackageMarker:
			t.indexes = append(t.indexes, rel)
		case res.Kind == classify.KindManifestEntry:
			t.data = append(t.data, rel)
		case res.Kind == classify.KindModuleFile:
			t.modules = append(t.modules, rel)
		}
		return nil
	})
	return t, err
}

func (a *Auditor) exists(rel string) (isFile, isDir bool) {
	st, err := a.p.FS.Stat(rel)
	if err != nil {
		return false, false
	}
	return !st.IsDir(), st.IsDir()
}

// Scan audits the project and, when asked, reconciles it. Editor failures are
// joined into the returned error; the report is returned regardless.
func (a *Auditor) Scan(ctx context.Context) (*Report, error) {
	t, err := a.walk(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", a.p.Root, err)
	}

	texts, err := a.readAll(ctx, append(append([]string{}, t.manifests...), t.indexes...))
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		findings []Finding
	)
	add := func(f ...Finding) {
		mu.Lock()
		findings = append(findings, f...)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for _, m := range t.manifests {
		g.Go(func() error {
			add(a.checkManifest(m, texts[m])...)
			return gctx.Err()
		})
	}
	for _, d := range t.data {
		g.Go(func() error {
			if f, ok := a.checkRegistered(d, texts); ok {
				add(f)
			}
			if f, ok := a.checkXML(d); ok {
				add(f)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	findings = append(findings, a.checkIndexes(t, texts)...)

	sortFindings(findings)
	report := &Report{
		Root: a.p.Root,
		Summary: Summary{
			Manifests:   len(t.manifests),
			Indexes:     len(t.indexes),
			DataFiles:   len(t.data),
			ModuleFiles: len(t.modules),
		},
		Findings: findings,
	}

	fixErr := a.reconcile(report)

	report.Summary.Findings = len(report.Findings)
	for _, f := range report.Findings {
		if f.Fixed {
			report.Summary.Fixed++
		}
	}
	report.Summary.Remaining = report.Summary.Findings - report.Summary.Fixed
	return report, fixErr
}

func (a *Auditor) readAll(ctx context.Context, docs []string) (map[string]string, error) {
	texts := make(map[string]string, len(docs))
	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for _, doc := range docs {
		g.Go(func() error {
			text, err := a.p.Store.ReadText(doc)
			if err != nil {
				if errors.Is(err, docstore.ErrNotExist) {
					return nil
				}
				return err
			}
			mu.Lock()
			texts[doc] = text
			mu.Unlock()
			return nil
		})
	}
	return texts, g.Wait()
}

// checkManifest reports list entries whose file is gone.
func (a *Auditor) checkManifest(m, text string) []Finding {
	var out []Finding
	dir := path.Dir(m)
	for _, key := range a.p.Manifests.Keys() {
		for _, entry := range a.p.Manifests.Anchors().ListEntries(text, key) {
			target := path.Join(dir, entry)
			if isFile, _ := a.exists(target); isFile {
				continue
			}
			out = append(out, Finding{Kind: KindMissingFile, Registry: m, Entry: entry, Path: target, Detail: "list " + key})
		}
	}
	return out
}

// checkRegistered reports a data file its nearest manifest does not list.
func (a *Auditor) checkRegistered(d string, texts map[string]string) (Finding, bool) {
	owner, ok := pathfinder.FindNearest(a.p.FS, path.Dir(d), a.p.Classifier.ManifestName())
	if !ok {
		return Finding{}, false
	}
	text, ok := texts[owner]
	if !ok {
		return Finding{}, false
	}
	entry, err := manifest.RelativeEntry(owner, d)
	if err != nil || manifest.Contains(text, entry) {
		return Finding{}, false
	}
	return Finding{Kind: KindUnregistered, Registry: owner, Entry: entry, Path: d, Detail: "list " + a.p.Manifests.KeyFor(entry)}, true
}

// checkXML reports a non-empty .xml data file that is not well-formed.
func (a *Auditor) checkXML(d string) (Finding, bool) {
	if !strings.EqualFold(path.Ext(d), ".xml") {
		return Finding{}, false
	}
	data, err := os.ReadFile(filepath.Join(a.p.Root, filepath.FromSlash(d)))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return Finding{}, false
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return Finding{Kind: KindMalformedXML, Path: d, Detail: err.Error()}, true
	}
	if doc.Root() == nil {
		return Finding{Kind: KindMalformedXML, Path: d, Detail: "no root element"}, true
	}
	return Finding{}, false
}

// checkIndexes compares each index with its directory's modules and packages.
func (a *Auditor) checkIndexes(t *tree, texts map[string]string) []Finding {
	expected := make(map[string][]string)
	for _, m := range t.modules {
		dir := path.Dir(m)
		expected[dir] = append(expected[dir], a.p.Index.ModuleName(m))
	}
	for _, idx := range t.indexes {
		pkg := path.Dir(idx)
		parent := path.Dir(pkg)
		if parent == pkg {
			continue
		}
		expected[parent] = append(expected[parent], path.Base(pkg))
	}

	var out []Finding
	ext := a.p.Config.Index.ModuleExtension
	for _, idx := range t.indexes {
		text, ok := texts[idx]
		if !ok {
			continue
		}
		dir := path.Dir(idx)
		present := make(map[string]bool)
		for _, name := range a.p.Index.Anchors().ImportedNames(text) {
			present[name] = true
		}

		for _, name := range expected[dir] {
			if !present[name] {
				present[name] = true
				out = append(out, Finding{Kind: KindMissingImport, Registry: idx, Entry: name, Path: path.Join(dir, name)})
			}
		}
		for _, name := range a.p.Index.Anchors().ImportedNames(text) {
			if name == "*" {
				continue
			}
			if isFile, _ := a.exists(path.Join(dir, name+ext)); isFile {
				continue
			}
			if _, isDir := a.exists(path.Join(dir, name)); isDir {
				continue
			}
			out = append(out, Finding{Kind: KindStaleImport, Registry: idx, Entry: name, Path: path.Join(dir, name)})
		}
	}
	return out
}

func sortFindings(f []Finding) {
	sort.SliceStable(f, func(i, j int) bool {
		if f[i].Kind != f[j].Kind {
			return f[i].Kind.rank() < f[j].Kind.rank()
		}
		if f[i].Registry != f[j].Registry {
			return f[i].Registry < f[j].Registry
		}
		return f[i].Path < f[j].Path
	})
}

// reconcile applies fixes sequentially, one editor call per finding.
func (a *Auditor) reconcile(r *Report) error {
	if !a.opts.Fix && !a.opts.Prune {
		return nil
	}
	var errs []error
	for i := range r.Findings {
		f := &r.Findings[i]
		var (
			changed bool
			err     error
		)
		switch {
		case f.Kind == KindUnregistered && (a.opts.Fix || a.opts.Prune):
			changed, err = a.p.Manifests.AddEntry(f.Registry, f.Path)
		case f.Kind == KindMissingImport && (a.opts.Fix || a.opts.Prune):
			changed, err = a.p.Index.AppendImport(f.Registry, f.Entry, false)
		case f.Kind == KindMissingFile && a.opts.Prune:
			changed, err = a.p.Manifests.RemoveEntry(f.Registry, f.Path)
		case f.Kind == KindStaleImport && a.opts.Prune:
			changed, err = a.p.Index.RemoveImport(f.Registry, f.Entry)
		default:
			continue
		}
		if err != nil {
			logger.Warn("Failed to reconcile finding", logger.String("kind", string(f.Kind)), logger.String("path", f.Path), logger.Err(err))
			errs = append(errs, err)
			continue
		}
		f.Fixed = changed
	}
	return errors.Join(errs...)
}
