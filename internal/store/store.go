// Package store holds the single-file JSON document that backs every
// repository. The document is loaded once, cached in memory and flushed
// atomically after each mutation. All access is serialized by one RWMutex.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/domain"
	"github.com/straye-as/pfmt-tracker/internal/metrics"
)

// ErrLegacyDocument is returned by mutations while the loaded file still has
// the legacy shape. The migration manager must normalize it first.
var ErrLegacyDocument = errors.New("document is in legacy shape, migration required")

// ErrNoChange is returned by an Update or Transaction callback that left the
// document as it was. The write is skipped and the call returns nil.
var ErrNoChange = errors.New("document unchanged")

// Option configures a Store
type Option func(*Store)

// WithMetrics records operation metrics on m
func WithMetrics(m *metrics.StoreMetrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithClock overrides the time source used for document and record stamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is the document store
type Store struct {
	mu      sync.RWMutex
	fs      afero.Fs
	path    string
	logger  *zap.Logger
	metrics *metrics.StoreMetrics
	now     func() time.Time

	doc    *Document
	raw    []byte
	loaded bool
	legacy bool
}

// New creates a store for the document at path on fs. Nothing is read until
// the first call to Read, View or Update.
func New(path string, fs afero.Fs, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		fs:     fs,
		path:   path,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the document file path
func (s *Store) Path() string {
	return s.path
}

// Now returns the current time from the store clock
func (s *Store) Now() time.Time {
	return s.now()
}

// Read loads the on-disk document into memory if it is not loaded yet or if
// refresh is set. A missing file is initialized with an empty document.
func (s *Store) Read(refresh bool) error {
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded && !refresh {
		return nil
	}
	err := s.load()
	s.metrics.Observe("read", started, err)
	return err
}

// Write persists the in-memory document
func (s *Store) Write() error {
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	if s.legacy {
		return ErrLegacyDocument
	}
	err := s.persist(s.doc)
	s.metrics.Observe("write", started, err)
	return err
}

// View runs fn with shared access to the document. fn must not mutate it.
func (s *Store) View(ctx context.Context, fn func(*Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Read(false); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.doc)
}

// Update runs fn with exclusive access to the document and persists the
// result. If fn or the write fails, the in-memory document reverts to the
// last persisted state.
func (s *Store) Update(ctx context.Context, fn func(*Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	if s.legacy {
		return ErrLegacyDocument
	}

	err := fn(s.doc)
	if errors.Is(err, ErrNoChange) {
		s.metrics.Observe("update", started, nil)
		return nil
	}
	if err == nil {
		err = s.persist(s.doc)
	}
	if err != nil {
		if revertErr := s.revert(); revertErr != nil {
			s.logger.Error("failed to revert document after failed update", zap.Error(revertErr))
		}
	}
	s.metrics.Observe("update", started, err)
	return err
}

// Transaction runs fn against a deep copy of the document. The copy is
// written once and swapped in only when fn and the write both succeed.
func (s *Store) Transaction(ctx context.Context, fn func(*Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	if s.legacy {
		return ErrLegacyDocument
	}

	working, err := s.doc.Clone()
	if err != nil {
		return err
	}
	err = fn(working)
	if errors.Is(err, ErrNoChange) {
		s.metrics.Observe("transaction", started, nil)
		return nil
	}
	if err == nil {
		err = s.persist(working)
	}
	if err == nil {
		s.doc = working
	}
	s.metrics.Observe("transaction", started, err)
	return err
}

// Raw returns a copy of the last bytes read from or written to disk
func (s *Store) Raw() ([]byte, error) {
	if err := s.Read(false); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]byte, len(s.raw))
	copy(out, s.raw)
	return out, nil
}

// Shape inspects the last persisted bytes
func (s *Store) Shape() (ShapeInfo, error) {
	raw, err := s.Raw()
	if err != nil {
		return ShapeInfo{}, err
	}
	return InspectShape(raw)
}

// Snapshot returns a deep copy of the in-memory document
func (s *Store) Snapshot() (*Document, error) {
	if err := s.Read(false); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// Replace persists doc and makes it the current document
func (s *Store) Replace(doc *Document) error {
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.normalize()
	err := s.persist(doc)
	if err == nil {
		s.doc = doc
		s.loaded = true
		s.legacy = false
	}
	s.metrics.Observe("replace", started, err)
	return err
}

// Restore writes raw back to disk unchanged and reloads from it
func (s *Store) Restore(raw []byte) error {
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.writeFile(raw)
	if err == nil {
		err = s.decode(raw)
	}
	s.metrics.Observe("restore", started, err)
	return err
}

func (s *Store) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	return s.load()
}

func (s *Store) load() error {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: read %s: %v", domain.ErrStoreIO, s.path, err)
		}
		s.logger.Info("document not found, initializing empty store", zap.String("path", s.path))
		doc := NewDocument(s.now())
		if err := s.persist(doc); err != nil {
			return err
		}
		s.doc = doc
		s.loaded = true
		s.legacy = false
		return nil
	}
	return s.decode(data)
}

// decode replaces the in-memory state with data. A legacy-shaped document
// is kept only as raw bytes behind an empty in-memory document.
func (s *Store) decode(data []byte) error {
	shape, err := InspectShape(data)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreIO, err)
	}

	s.raw = data
	s.loaded = true
	if shape.NeedsMigration() {
		s.logger.Warn("document has legacy shape", zap.String("path", s.path))
		s.doc = NewDocument(s.now())
		s.legacy = true
		return nil
	}

	doc := &Document{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, doc); err != nil {
			s.loaded = false
			return fmt.Errorf("%w: decode %s: %v", domain.ErrStoreIO, s.path, err)
		}
	}
	doc.normalize()
	s.doc = doc
	s.legacy = false
	return nil
}

func (s *Store) revert() error {
	if len(s.raw) == 0 {
		s.doc = NewDocument(s.now())
		return nil
	}
	return s.decode(s.raw)
}

func (s *Store) persist(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode document: %v", domain.ErrStoreIO, err)
	}
	if err := s.writeFile(data); err != nil {
		return err
	}
	return nil
}

// writeFile replaces the document file via a temp file and rename
func (s *Store) writeFile(data []byte) error {
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create directory %s: %v", domain.ErrStoreIO, dir, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrStoreIO, tmp, err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("%w: rename %s: %v", domain.ErrStoreIO, tmp, err)
	}
	s.raw = data
	s.metrics.Flushed(len(data))
	return nil
}
