package pathfinder

import (
	"os"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindNearest(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "A/__manifest__.py", []byte("{}"), 0o644))
	require.NoError(t, util.WriteFile(fs, "A/B/__manifest__.py", []byte("{}"), 0o644))
	require.NoError(t, fs.MkdirAll("A/B/views/deep", 0o755))
	require.NoError(t, fs.MkdirAll("A/views", 0o755))
	require.NoError(t, fs.MkdirAll("orphan/views", 0o755))

	tests := []struct {
		start string
		want  string
		found bool
	}{
		{"A/B/views/deep", "A/B/__manifest__.py", true},
		{"A/B", "A/B/__manifest__.py", true},
		{"A/views", "A/__manifest__.py", true},
		{"A", "A/__manifest__.py", true},
		{"orphan/views", "", false},
		{".", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.start, func(t *testing.T) {
			got, ok := FindNearest(fs, tt.start, "__manifest__.py")
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindNearestAtRoot(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "__manifest__.py", []byte("{}"), 0o644))

	got, ok := FindNearest(fs, "views", "__manifest__.py")
	assert.True(t, ok)
	assert.Equal(t, "__manifest__.py", got)
}

func TestFindNearestSkipsDirectoriesWithTargetName(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("A/B/__manifest__.py", 0o755))
	require.NoError(t, util.WriteFile(fs, "A/__manifest__.py", []byte("{}"), 0o644))

	got, ok := FindNearest(fs, "A/B", "__manifest__.py")
	assert.True(t, ok)
	assert.Equal(t, "A/__manifest__.py", got)
}

type countingFS struct {
	calls int
}

func (c *countingFS) Stat(string) (os.FileInfo, error) {
	c.calls++
	return nil, os.ErrNotExist
}

func TestFindNearestTerminatesAtAbsoluteRoot(t *testing.T) {
	fs := &countingFS{}
	_, ok := FindNearest(fs, "/a/b/c", "x")
	assert.False(t, ok)
	// /a/b/c, /a/b, /a, /
	assert.Equal(t, 4, fs.calls)
}

func TestAncestors(t *testing.T) {
	assert.Equal(t, []string{"a/b/c", "a/b", "a", "."}, Ancestors("a/b/c"))
	assert.Equal(t, []string{"."}, Ancestors("."))
	assert.Equal(t, []string{"/x", "/"}, Ancestors("/x"))
}
