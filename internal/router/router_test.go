package router

import (
	"strings"
	"testing"

	"github.com/fulmenhq/addonsync/pkg/classify"
	"github.com/fulmenhq/addonsync/pkg/docstore"
	"github.com/fulmenhq/addonsync/pkg/ignore"
	"github.com/fulmenhq/addonsync/pkg/manifest"
	"github.com/fulmenhq/addonsync/pkg/pyindex"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emptyManifest = "{\n    'name': 'Addon',\n    'data': [\n    ],\n}\n"

type countingTrigger struct{ n int }

func (c *countingTrigger) Trigger() { c.n++ }

type fixture struct {
	fs      billy.Filesystem
	router  *Router
	trigger *countingTrigger
}

func newFixture(t *testing.T, files map[string]string, opts Options, wrap func(docstore.Store) docstore.Store) *fixture {
	t.Helper()
	fs := memfs.New()
	for name, content := range files {
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
	}

	matcher, err := ignore.NewMatcher(fs, ignore.Options{Globs: []string{"**/*.orig.xml"}})
	require.NoError(t, err)
	c := classify.New(classify.Options{
		ManifestName:    "__manifest__.py",
		IndexName:       "__init__.py",
		ModuleExtension: ".py",
		DataExtensions:  []string{".xml"},
	}, matcher)

	var store docstore.Store = docstore.NewFSStore(fs)
	if wrap != nil {
		store = wrap(store)
	}
	trigger := &countingTrigger{}
	r := New(fs, c,
		manifest.NewEditor(store, manifest.Options{}),
		pyindex.NewEditor(store, pyindex.Options{}),
		trigger, opts)
	return &fixture{fs: fs, router: r, trigger: trigger}
}

func (f *fixture) read(t *testing.T, name string) string {
	t.Helper()
	data, err := util.ReadFile(f.fs, name)
	require.NoError(t, err)
	return string(data)
}

func TestCreatedDataFileUsesNearestManifest(t *testing.T) {
	f := newFixture(t, map[string]string{
		"addon/__manifest__.py":     emptyManifest,
		"addon/sub/__manifest__.py": emptyManifest,
	}, Options{}, nil)

	require.NoError(t, f.router.Created("addon/sub/views/a.xml", "addon/views/b.xml"))

	sub := f.read(t, "addon/sub/__manifest__.py")
	top := f.read(t, "addon/__manifest__.py")
	assert.Contains(t, sub, "'views/a.xml',")
	assert.NotContains(t, sub, "b.xml")
	assert.Contains(t, top, "'views/b.xml',")
	assert.NotContains(t, top, "a.xml")
	assert.Equal(t, 1, f.trigger.n)
}

func TestCreatedDataFileWithoutManifestIsNoop(t *testing.T) {
	f := newFixture(t, map[string]string{"docs/index.xml": ""}, Options{}, nil)

	require.NoError(t, f.router.Created("docs/index.xml"))
	_, err := f.fs.Stat("docs/__manifest__.py")
	assert.Error(t, err)
}

func TestCreatedModuleFile(t *testing.T) {
	files := map[string]string{
		"addon/__init__.py":          "from . import models\n",
		"addon/models/__init__.py":   "from . import sale_order\n",
		"addon/models/res_users.py":  "",
		"addon/wizard/confirm.py":    "",
		"addon/__manifest__.py":      emptyManifest,
		"addon/controllers/main.py":  "",
		"addon/controllers/README":   "",
		"addon/models/sale_order.py": "",
	}

	t.Run("relaxed", func(t *testing.T) {
		f := newFixture(t, files, Options{CreateMissingIndex: true}, nil)
		require.NoError(t, f.router.Created("addon/models/res_users.py", "addon/wizard/confirm.py"))
		assert.Equal(t, "from . import sale_order\nfrom . import res_users\n", f.read(t, "addon/models/__init__.py"))
		assert.Equal(t, "from . import confirm\n", f.read(t, "addon/wizard/__init__.py"))
	})

	t.Run("strict", func(t *testing.T) {
		f := newFixture(t, files, Options{}, nil)
		require.NoError(t, f.router.Created("addon/controllers/main.py"))
		_, err := f.fs.Stat("addon/controllers/__init__.py")
		assert.Error(t, err)
	})

	t.Run("manifest is not a module", func(t *testing.T) {
		f := newFixture(t, files, Options{CreateMissingIndex: true}, nil)
		require.NoError(t, f.router.Created("addon/__manifest__.py"))
		assert.Equal(t, "from . import models\n", f.read(t, "addon/__init__.py"))
	})
}

func TestRenameModuleFile(t *testing.T) {
	f := newFixture(t, map[string]string{
		"addon/models/__init__.py": "from . import foo\n",
		"addon/models/bar.py":      "",
	}, Options{}, nil)

	require.NoError(t, f.router.Renamed(Rename{Old: "addon/models/foo.py", New: "addon/models/bar.py"}))

	got := f.read(t, "addon/models/__init__.py")
	assert.Equal(t, "from . import bar\n", got)
	assert.NotContains(t, got, "foo")
	assert.Equal(t, 1, f.trigger.n)
}

func TestPackagePromotionHappensOnce(t *testing.T) {
	f := newFixture(t, map[string]string{
		"addon/__init__.py":        "from . import models\n",
		"addon/wizard/__init__.py": "",
	}, Options{}, nil)

	require.NoError(t, f.router.Created("addon/wizard/__init__.py"))
	require.NoError(t, f.router.Created("addon/wizard/__init__.py"))

	assert.Equal(t, 1, strings.Count(f.read(t, "addon/__init__.py"), "from . import wizard"))
	assert.Equal(t, 2, f.trigger.n)
}

func TestIgnoredPathsProduceNoMutations(t *testing.T) {
	files := map[string]string{
		"addon/__manifest__.py":           emptyManifest,
		"addon/__init__.py":               "from . import models\n",
		"addon/__pycache__/__init__.py":   "",
		"addon/node_modules/pkg/x.xml":    "",
		"addon/views/legacy.orig.xml":     "",
		"addon/__pycache__/models.cpy.py": "",
	}
	f := newFixture(t, files, Options{CreateMissingIndex: true}, nil)

	require.NoError(t, f.router.Created(
		"addon/__pycache__/__init__.py",
		"addon/node_modules/pkg/x.xml",
		"addon/views/legacy.orig.xml",
		"addon/__pycache__/models.cpy.py",
	))
	require.NoError(t, f.router.Deleted("addon/__pycache__/models.py"))
	require.NoError(t, f.router.Renamed(Rename{Old: ".git/index.xml", New: ".git/index2.xml"}))

	assert.Equal(t, emptyManifest, f.read(t, "addon/__manifest__.py"))
	assert.Equal(t, "from . import models\n", f.read(t, "addon/__init__.py"))
	_, err := f.fs.Stat("addon/node_modules/pkg/__init__.py")
	assert.Error(t, err)
	assert.Equal(t, 3, f.trigger.n)
}

func TestEveryCallArmsTriggerOnce(t *testing.T) {
	f := newFixture(t, nil, Options{}, nil)

	require.NoError(t, f.router.Created())
	require.NoError(t, f.router.Deleted())
	require.NoError(t, f.router.Renamed())
	require.NoError(t, f.router.Dispatch(nil))
	assert.Equal(t, 4, f.trigger.n)
}

func TestDeleted(t *testing.T) {
	f := newFixture(t, map[string]string{
		"addon/__manifest__.py":    "{\n    'data': [\n        'views/a.xml',\n        'views/b.xml',\n    ],\n}\n",
		"addon/__init__.py":        "from . import models\nfrom . import wizard\nfrom . import report\n",
		"addon/models/__init__.py": "from . import sale\nfrom . import stock\n",
	}, Options{}, nil)

	require.NoError(t, f.router.Deleted(
		"addon/views/a.xml",
		"addon/models/sale.py",
		"addon/wizard/__init__.py",
		"addon/report",
	))

	assert.Equal(t, "{\n    'data': [\n        'views/b.xml',\n    ],\n}\n", f.read(t, "addon/__manifest__.py"))
	assert.Equal(t, "from . import stock\n", f.read(t, "addon/models/__init__.py"))
	assert.Equal(t, "from . import models\n", f.read(t, "addon/__init__.py"))
}

func TestRenameDataFile(t *testing.T) {
	files := map[string]string{
		"addon/__manifest__.py": "{\n    'data': [\n        'views/a.xml',\n        'views/z.xml',\n    ],\n}\n",
		"addon/views/b.xml":     "",
	}

	t.Run("remove then add", func(t *testing.T) {
		f := newFixture(t, files, Options{}, nil)
		require.NoError(t, f.router.Renamed(Rename{Old: "addon/views/a.xml", New: "addon/views/b.xml"}))
		assert.Equal(t, "{\n    'data': [\n        'views/b.xml',\n        'views/z.xml',\n    ],\n}\n", f.read(t, "addon/__manifest__.py"))
	})

	t.Run("in place", func(t *testing.T) {
		files := map[string]string{
			"addon/__manifest__.py": "{\n    'data': [\n        'views/z.xml',\n        'views/a.xml',\n    ],\n}\n",
			"addon/views/b.xml":     "",
		}
		f := newFixture(t, files, Options{RenameInPlace: true}, nil)
		require.NoError(t, f.router.Renamed(Rename{Old: "addon/views/a.xml", New: "addon/views/b.xml"}))
		assert.Equal(t, "{\n    'data': [\n        'views/z.xml',\n        'views/b.xml',\n    ],\n}\n", f.read(t, "addon/__manifest__.py"))
	})

	t.Run("out of the data extensions", func(t *testing.T) {
		f := newFixture(t, files, Options{}, nil)
		require.NoError(t, f.router.Renamed(Rename{Old: "addon/views/a.xml", New: "addon/views/a.xml.bak"}))
		assert.Equal(t, "{\n    'data': [\n        'views/z.xml',\n    ],\n}\n", f.read(t, "addon/__manifest__.py"))
	})

	t.Run("across manifests", func(t *testing.T) {
		files := map[string]string{
			"addon/__manifest__.py": "{\n    'data': [\n        'views/a.xml',\n    ],\n}\n",
			"other/__manifest__.py": emptyManifest,
			"other/views/a.xml":     "",
		}
		f := newFixture(t, files, Options{RenameInPlace: true}, nil)
		require.NoError(t, f.router.Renamed(Rename{Old: "addon/views/a.xml", New: "other/views/a.xml"}))
		assert.Equal(t, "{\n    'data': [\n    ],\n}\n", f.read(t, "addon/__manifest__.py"))
		assert.Contains(t, f.read(t, "other/__manifest__.py"), "'views/a.xml',")
	})
}

func TestRenameDirectory(t *testing.T) {
	f := newFixture(t, map[string]string{
		"addon/__init__.py":         "from . import models\nfrom . import wizard\n",
		"addon/wizards/__init__.py": "from . import confirm\n",
		"addon/wizards/confirm.py":  "",
	}, Options{}, nil)

	require.NoError(t, f.router.Renamed(Rename{Old: "addon/wizard", New: "addon/wizards"}))
	assert.Equal(t, "from . import models\nfrom . import wizards\n", f.read(t, "addon/__init__.py"))
}

func TestCreatedDirectoryWithIndexIsPromoted(t *testing.T) {
	f := newFixture(t, map[string]string{
		"addon/__init__.py":        "from . import models\n",
		"addon/report/__init__.py": "",
		"addon/static/description": "",
	}, Options{}, nil)

	require.NoError(t, f.router.Created("addon/report", "addon/static"))
	assert.Equal(t, "from . import models\nfrom . import report\n", f.read(t, "addon/__init__.py"))
}

func TestAbsolutePathsAreMadeRelative(t *testing.T) {
	f := newFixture(t, map[string]string{"addon/__manifest__.py": emptyManifest}, Options{Root: "/work/project"}, nil)

	require.NoError(t, f.router.Created("/work/project/addon/views/a.xml", "/elsewhere/addon/views/b.xml"))

	got := f.read(t, "addon/__manifest__.py")
	assert.Contains(t, got, "'views/a.xml',")
	assert.NotContains(t, got, "b.xml")
}

func TestDispatchMixedBatch(t *testing.T) {
	f := newFixture(t, map[string]string{
		"addon/__manifest__.py":    emptyManifest,
		"addon/models/__init__.py": "from . import old\n",
	}, Options{}, nil)

	err := f.router.Dispatch([]Event{
		{Op: OpCreate, Path: "addon/views/a.xml"},
		{Op: OpRename, OldPath: "addon/models/old.py", Path: "addon/models/new.py"},
		{Op: OpDelete, Path: "addon/views/a.xml"},
		{Op: OpCreate, Path: "addon/views/b.xml"},
	})
	require.NoError(t, err)

	assert.Equal(t, "{\n    'name': 'Addon',\n    'data': [\n        'views/b.xml',\n    ],\n}\n", f.read(t, "addon/__manifest__.py"))
	assert.Equal(t, "from . import new\n", f.read(t, "addon/models/__init__.py"))
	assert.Equal(t, 1, f.trigger.n)
}

func TestDispatchUnknownOp(t *testing.T) {
	f := newFixture(t, nil, Options{}, nil)
	assert.Error(t, f.router.Dispatch([]Event{{Op: Op(42), Path: "x"}}))
	assert.Equal(t, 1, f.trigger.n)
}

// interleavingStore runs hook once, just before the first edit is applied.
type interleavingStore struct {
	docstore.Store
	hook func()
}

func (s *interleavingStore) ApplyEdit(p string, e docstore.Edit) error {
	if hook := s.hook; hook != nil {
		s.hook = nil
		hook()
	}
	return s.Store.ApplyEdit(p, e)
}

// Read-modify-persist is not transactional: a removal computed from a snapshot
// taken before a concurrent addition overwrites that addition.
func TestConcurrentEditsLastStoreWins(t *testing.T) {
	var store *interleavingStore
	f := newFixture(t, map[string]string{
		"addon/__manifest__.py": "{\n    'data': [\n        'views/a.xml',\n    ],\n}\n",
	}, Options{}, func(s docstore.Store) docstore.Store {
		store = &interleavingStore{Store: s}
		return store
	})

	var added string
	store.hook = func() {
		require.NoError(t, f.router.Created("addon/views/b.xml"))
		added = f.read(t, "addon/__manifest__.py")
	}

	require.NoError(t, f.router.Deleted("addon/views/a.xml"))

	assert.Contains(t, added, "'views/b.xml',")
	assert.Equal(t, "{\n    'data': [\n    ],\n}\n", f.read(t, "addon/__manifest__.py"))
	assert.Equal(t, 2, f.trigger.n)
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "delete", OpDelete.String())
	assert.Equal(t, "rename", OpRename.String())
	assert.Equal(t, "unknown", Op(9).String())
}
