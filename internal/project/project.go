// Package project assembles the registry engine for one project root from its
// configuration: filesystem, document store, ignore rules, classifier, editors,
// router and the debounced maintenance trigger.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/addonsync/internal/maintenance"
	"github.com/fulmenhq/addonsync/internal/router"
	"github.com/fulmenhq/addonsync/pkg/classify"
	"github.com/fulmenhq/addonsync/pkg/config"
	"github.com/fulmenhq/addonsync/pkg/docstore"
	"github.com/fulmenhq/addonsync/pkg/ignore"
	"github.com/fulmenhq/addonsync/pkg/manifest"
	"github.com/fulmenhq/addonsync/pkg/pyindex"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// Project is the wired engine for one root.
type Project struct {
	Root       string
	Config     *config.Config
	FS         billy.Filesystem
	Store      *docstore.FSStore
	Ignore     *ignore.Matcher
	Classifier *classify.Classifier
	Manifests  *manifest.Editor
	Index      *pyindex.Editor
}

// Open wires a project rooted at root. fs may be nil to use the OS filesystem.
func Open(root string, cfg *config.Config, fs billy.Filesystem) (*Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	if fs == nil {
		st, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("project root: %w", err)
		}
		if !st.IsDir() {
			return nil, fmt.Errorf("project root %s is not a directory", abs)
		}
		fs = osfs.New(abs, osfs.WithBoundOS())
	}
	if cfg == nil {
		cfg = config.Default()
	}

	matcher, err := ignore.NewMatcher(fs, ignore.Options{
		Segments:     cfg.Ignore.Segments,
		Globs:        cfg.Ignore.Patterns,
		UseGitignore: cfg.Ignore.UseGitignore,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build ignore rules: %w", err)
	}

	store := docstore.NewFSStore(fs)
	routes := make([]manifest.Route, 0, len(cfg.Manifest.Routes))
	for _, r := range cfg.Manifest.Routes {
		routes = append(routes, manifest.Route{Pattern: r.Pattern, Key: r.Key})
	}

	return &Project{
		Root:   abs,
		Config: cfg,
		FS:     fs,
		Store:  store,
		Ignore: matcher,
		Classifier: classify.New(classify.Options{
			ManifestName:    cfg.Manifest.Filename,
			IndexName:       cfg.Index.Filename,
			ModuleExtension: cfg.Index.ModuleExtension,
			DataExtensions:  cfg.Manifest.Extensions,
		}, matcher),
		Manifests: manifest.NewEditor(store, manifest.Options{
			ListKey: cfg.Manifest.ListKey,
			Indent:  cfg.Manifest.Indent,
			Routes:  routes,
		}),
		Index: pyindex.NewEditor(store, pyindex.Options{
			IndexName:       cfg.Index.Filename,
			ModuleExtension: cfg.Index.ModuleExtension,
		}),
	}, nil
}

// Trigger returns the debounced maintenance trigger, or nil when maintenance
// is disabled.
func (p *Project) Trigger(notifier maintenance.Notifier) *maintenance.Trigger {
	m := p.Config.Maintenance
	if !m.Enabled {
		return nil
	}
	runner := maintenance.NewRunner(maintenance.Options{
		Root:           p.Root,
		Script:         m.Script,
		Shell:          m.Shell,
		RestartCommand: m.RestartCommand,
		Timeout:        m.Timeout,
	}, nil, notifier)
	return maintenance.NewTrigger(m.Delay, runner)
}

// Router returns a router over the project's editors. trigger may be nil.
func (p *Project) Router(trigger *maintenance.Trigger) *router.Router {
	var t router.Trigger
	if trigger != nil {
		t = trigger
	}
	return router.New(p.FS, p.Classifier, p.Manifests, p.Index, t, router.Options{
		Root:               p.Root,
		CreateMissingIndex: p.Config.Index.CreateMissing,
		RenameInPlace:      p.Config.Manifest.RenameInPlace,
	})
}
