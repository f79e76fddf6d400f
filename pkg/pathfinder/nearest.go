// Package pathfinder locates registry documents relative to an arbitrary project path.
package pathfinder

import (
	"os"
	"path"
)

// Statter is the slice of a filesystem the locator needs; billy.Filesystem satisfies it.
type Statter interface {
	Stat(filename string) (os.FileInfo, error)
}

// FindNearest walks from startDir towards the root and returns the first
// regular file named name. Paths are slash-separated; the walk ends when a
// directory's parent is itself ("." for relative paths, "/" for absolute).
func FindNearest(fs Statter, startDir, name string) (string, bool) {
	for _, dir := range Ancestors(startDir) {
		candidate := path.Join(dir, name)
		if st, err := fs.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// Ancestors returns dir and each of its ancestors, nearest first.
func Ancestors(dir string) []string {
	dir = path.Clean(dir)
	out := []string{dir}
	for {
		parent := path.Dir(dir)
		if parent == dir {
			return out
		}
		out = append(out, parent)
		dir = parent
	}
}
