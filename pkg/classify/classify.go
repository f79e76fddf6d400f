// Package classify tags project paths with the registry they belong to.
package classify

import (
	"path"
	"strings"
)

// Kind is the registry category of a path.
type Kind int

const (
	KindOther Kind = iota
	KindManifestEntry
	KindModuleFile
	KindPackageMarker
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindManifestEntry:
		return "manifest-entry"
	case KindModuleFile:
		return "module-file"
	case KindPackageMarker:
		return "package-marker"
	default:
		return "other"
	}
}

// Result is the outcome of classifying one path.
type Result struct {
	Ignored bool
	Kind    Kind
}

// IgnoreMatcher reports whether a root-relative slash path is ignored.
type IgnoreMatcher interface {
	Match(rel string, isDir bool) bool
}

// Options names the registry documents and extensions.
type Options struct {
	ManifestName    string
	IndexName       string
	ModuleExtension string
	DataExtensions  []string
}

// Classifier is a pure function of the path string once constructed.
type Classifier struct {
	opts     Options
	dataExts map[string]struct{}
	ignore   IgnoreMatcher
}

// New creates a classifier. ignore may be nil.
func New(opts Options, ignore IgnoreMatcher) *Classifier {
	c := &Classifier{
		opts:     opts,
		dataExts: make(map[string]struct{}, len(opts.DataExtensions)),
		ignore:   ignore,
	}
	for _, ext := range opts.DataExtensions {
		c.dataExts[strings.ToLower(ext)] = struct{}{}
	}
	return c
}

// Classify tags rel, a slash-separated path relative to the project root.
func (c *Classifier) Classify(rel string) Result {
	res := Result{Ignored: c.ignore != nil && c.ignore.Match(rel, false)}

	base := path.Base(rel)
	ext := strings.ToLower(path.Ext(base))
	switch {
	case base == c.opts.IndexName:
		res.Kind = KindPackageMarker
	case base == c.opts.ManifestName:
		res.Kind = KindOther
	case c.isData(ext):
		res.Kind = KindManifestEntry
	case ext != "" && ext == c.opts.ModuleExtension:
		res.Kind = KindModuleFile
	default:
		res.Kind = KindOther
	}
	return res
}

func (c *Classifier) isData(ext string) bool {
	if ext == "" {
		return false
	}
	_, ok := c.dataExts[ext]
	return ok
}

// ModuleExtension returns the configured module extension.
func (c *Classifier) ModuleExtension() string {
	return c.opts.ModuleExtension
}

// IndexName returns the configured index document name.
func (c *Classifier) IndexName() string {
	return c.opts.IndexName
}

// ManifestName returns the configured manifest document name.
func (c *Classifier) ManifestName() string {
	return c.opts.ManifestName
}
