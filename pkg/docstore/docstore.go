// Package docstore is the read / edit / persist boundary the registry editors
// work through. Edits are applied to an in-memory copy of the document and only
// reach the filesystem on Persist, so a failed edit never leaves a partial write.
package docstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fulmenhq/addonsync/pkg/logger"
	"github.com/fulmenhq/addonsync/pkg/safeio"
	"github.com/go-git/go-billy/v5"
)

var (
	// ErrNotExist is returned when the document is absent.
	ErrNotExist = errors.New("document does not exist")
	// ErrEditOutOfRange is returned when an edit does not fit the current text.
	ErrEditOutOfRange = errors.New("edit out of range")
)

// WholeDocument as an Edit length replaces the entire current text.
const WholeDocument = -1

// Edit is an insertion (Length == 0) or a replacement of Length bytes at Offset.
type Edit struct {
	Offset int
	Length int
	Text   string
}

// Insert returns an insertion edit.
func Insert(offset int, text string) Edit {
	return Edit{Offset: offset, Text: text}
}

// ReplaceAll returns an edit replacing whatever the document holds with text.
// Two replacements computed from the same snapshot resolve as last store wins.
func ReplaceAll(text string) Edit {
	return Edit{Offset: 0, Length: WholeDocument, Text: text}
}

// Apply returns text with e applied.
func (e Edit) Apply(text string) (string, error) {
	if e.Length == WholeDocument && e.Offset == 0 {
		return e.Text, nil
	}
	if e.Offset < 0 || e.Length < 0 || e.Offset+e.Length > len(text) {
		return "", fmt.Errorf("%w: offset %d length %d in %d bytes", ErrEditOutOfRange, e.Offset, e.Length, len(text))
	}
	return text[:e.Offset] + e.Text + text[e.Offset+e.Length:], nil
}

// Store reads, edits and persists text documents addressed by slash paths.
type Store interface {
	// ReadText returns the current text, including unpersisted edits.
	ReadText(path string) (string, error)
	// ApplyEdit applies e to the current text without persisting it.
	ApplyEdit(path string, e Edit) error
	// Persist writes pending edits for path; a no-op when nothing is pending.
	// A failed write discards the pending edit.
	Persist(path string) error
	// Exists reports whether path exists as a regular document.
	Exists(path string) bool
	// Create makes an empty document, leaving an existing one untouched.
	Create(path string) error
}

// FSStore is a Store over a billy filesystem.
type FSStore struct {
	fs billy.Filesystem

	mu      sync.Mutex
	pending map[string]string
	dryRun  bool
}

// NewFSStore creates a store over fs.
func NewFSStore(fs billy.Filesystem) *FSStore {
	return &FSStore{
		fs:      fs,
		pending: make(map[string]string),
	}
}

// SetDryRun makes Persist keep edits in memory instead of writing them.
func (s *FSStore) SetDryRun(dryRun bool) {
	s.mu.Lock()
	s.dryRun = dryRun
	s.mu.Unlock()
}

// ReadText implements Store.
func (s *FSStore) ReadText(path string) (string, error) {
	s.mu.Lock()
	text, ok := s.pending[path]
	s.mu.Unlock()
	if ok {
		return text, nil
	}
	return s.readDisk(path)
}

func (s *FSStore) readDisk(path string) (string, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// ApplyEdit implements Store.
func (s *FSStore) ApplyEdit(path string, e Edit) error {
	current, err := s.ReadText(path)
	if err != nil {
		return err
	}
	updated, err := e.Apply(current)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	s.mu.Lock()
	s.pending[path] = updated
	s.mu.Unlock()
	return nil
}

// Persist implements Store.
func (s *FSStore) Persist(path string) error {
	s.mu.Lock()
	text, ok := s.pending[path]
	dryRun := s.dryRun
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if dryRun {
		logger.Info("Would write document", logger.String("path", path), logger.Int("bytes", len(text)))
		return nil
	}

	if err := safeio.WriteFilePreservePerms(s.fs, path, []byte(text)); err != nil {
		// Drop the edit so the next read sees the disk again.
		s.mu.Lock()
		if s.pending[path] == text {
			delete(s.pending, path)
		}
		s.mu.Unlock()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	s.mu.Lock()
	// A newer edit may have landed while writing; keep it pending.
	if s.pending[path] == text {
		delete(s.pending, path)
	}
	s.mu.Unlock()
	return nil
}

// Exists implements Store.
func (s *FSStore) Exists(path string) bool {
	s.mu.Lock()
	_, ok := s.pending[path]
	s.mu.Unlock()
	if ok {
		return true
	}
	st, err := s.fs.Stat(path)
	return err == nil && !st.IsDir()
}

// Create implements Store. In dry-run mode the document only exists in memory.
func (s *FSStore) Create(path string) error {
	if s.Exists(path) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dryRun {
		if _, ok := s.pending[path]; !ok {
			s.pending[path] = ""
		}
		return nil
	}
	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f.Close()
}

// Pending reports whether path has unpersisted edits.
func (s *FSStore) Pending(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[path]
	return ok
}
