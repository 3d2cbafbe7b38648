package rules

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Catalog is a read-only snapshot of the loaded rule set. The version
// increments on every mutation, so consumers can tell whether two
// snapshots came from the same catalog state. Callers must not assume
// rule order is stable across reloads.
type Catalog struct {
	Version uint64
	Rules   []Rule
}

// Enabled returns the subset of rules with Enabled set, the only subset
// the match engine may evaluate.
func (c Catalog) Enabled() []Rule {
	out := make([]Rule, 0, len(c.Rules))
	for _, r := range c.Rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// Store maintains the authoritative catalog of detection rules backed by
// a directory of one-document-per-rule files.
//
// The catalog map is guarded by a read-write lock: loads and lookups take
// the read side, mutations the write side. Saves and deletes for
// different rule names proceed independently; calls for the same name
// serialize on a per-name lock.
type Store struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	catalog map[string]Rule // keyed by RuleID(name)
	version uint64

	nameMu    sync.Mutex
	nameLocks map[string]*sync.Mutex
}

// NewStore creates a Store over the given rule directory. The directory
// is not required to exist; a missing directory loads as an empty
// catalog.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:       dir,
		logger:    logger,
		catalog:   make(map[string]Rule),
		nameLocks: make(map[string]*sync.Mutex),
	}
}

// Dir returns the backing rule directory.
func (s *Store) Dir() string {
	return s.dir
}

// LoadAll enumerates rule documents in the store directory
// (non-recursive), parses each, and replaces the in-memory catalog. A
// document that fails to parse is skipped and reported as a warning; it
// does not abort the load. A missing directory is reported and yields an
// empty catalog. The returned catalog is complete even when some
// documents failed.
func (s *Store) LoadAll() (Catalog, []error) {
	var warnings []error

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("rule directory missing, loading empty catalog", "dir", s.dir)
			warnings = append(warnings, fmt.Errorf("%w: %s", ErrDirectoryMissing, s.dir))
			return s.replaceCatalog(nil), warnings
		}
		warnings = append(warnings, &StoreError{Op: "Load", Err: err})
		return s.replaceCatalog(nil), warnings
	}

	loaded := make(map[string]Rule)
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), RuleFileExt) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		rule, err := s.ingestDocument(path, entry)
		if err != nil {
			s.logger.Warn("skipping unparsable rule document", "path", path, "error", err)
			warnings = append(warnings, &ParseError{Path: path, Err: err})
			continue
		}
		// Name uniqueness within the catalog: last write wins.
		loaded[RuleID(rule.Name)] = rule
	}

	s.logger.Info("rule catalog loaded",
		"dir", s.dir,
		"rules", len(loaded),
		"warnings", len(warnings))

	return s.replaceCatalog(loaded), warnings
}

// ingestDocument reads and parses one rule document into a Rule.
func (s *Store) ingestDocument(path string, entry os.DirEntry) (Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rule{}, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	rule, err := FromDocument(name, string(data))
	if err != nil {
		return Rule{}, err
	}

	info, err := entry.Info()
	if err != nil {
		return Rule{}, err
	}
	rule.CreatedAt = info.ModTime()
	rule.ModifiedAt = info.ModTime()

	return rule, nil
}

// replaceCatalog swaps in a freshly loaded catalog under the write lock.
func (s *Store) replaceCatalog(loaded map[string]Rule) Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loaded == nil {
		loaded = make(map[string]Rule)
	}
	s.catalog = loaded
	s.version++
	return s.snapshotLocked()
}

// Snapshot returns the current catalog snapshot.
func (s *Store) Snapshot() Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Catalog {
	out := Catalog{Version: s.version, Rules: make([]Rule, 0, len(s.catalog))}
	for _, r := range s.catalog {
		out.Rules = append(out.Rules, r.clone())
	}
	return out
}

// GetAll returns a read-only copy of every rule in the catalog. Order is
// unspecified.
func (s *Store) GetAll() []Rule {
	return s.Snapshot().Rules
}

// GetByName returns the rule with the given name, matched
// case-insensitively.
func (s *Store) GetByName(name string) (Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.catalog[RuleID(name)]
	if !ok {
		return Rule{}, false
	}
	return r.clone(), true
}

// Save validates the rule, writes or overwrites its backing document,
// refreshes ModifiedAt, and upserts the catalog entry. Disk failures are
// surfaced as a StoreError and not retried.
func (s *Store) Save(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return &StoreError{Op: "Save", Rule: rule.Name, Err: fmt.Errorf("%w: %v", ErrInvalidRule, err)}
	}

	unlock := s.lockName(rule.Name)
	defer unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &StoreError{Op: "Save", Rule: rule.Name, Err: err}
	}

	path := s.documentPath(rule.Name)
	if err := os.WriteFile(path, []byte(rule.Content), 0o644); err != nil {
		return &StoreError{Op: "Save", Rule: rule.Name, Err: err}
	}

	now := time.Now()
	rule.ID = RuleID(rule.Name)
	rule.ModifiedAt = now
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}

	s.mu.Lock()
	s.catalog[rule.ID] = rule.clone()
	s.version++
	s.mu.Unlock()

	s.logger.Info("rule saved", "rule", rule.Name, "severity", rule.Severity, "enabled", rule.Enabled)
	return nil
}

// Delete removes the backing document if present and drops the catalog
// entry. Deleting an absent rule is a no-op, not an error.
func (s *Store) Delete(name string) error {
	unlock := s.lockName(name)
	defer unlock()

	// Resolve the stored casing so the backing document is found on
	// case-sensitive filesystems.
	s.mu.RLock()
	if stored, ok := s.catalog[RuleID(name)]; ok {
		name = stored.Name
	}
	s.mu.RUnlock()

	path := s.documentPath(name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &StoreError{Op: "Delete", Rule: name, Err: err}
	}

	s.mu.Lock()
	id := RuleID(name)
	if _, ok := s.catalog[id]; ok {
		delete(s.catalog, id)
		s.version++
	}
	s.mu.Unlock()

	s.logger.Info("rule deleted", "rule", name)
	return nil
}

// documentPath maps a rule name to its backing document. Document names
// preserve the rule's declared casing; lookups stay case-insensitive via
// the catalog key.
func (s *Store) documentPath(name string) string {
	return filepath.Join(s.dir, name+RuleFileExt)
}

// lockName serializes writes for a single rule name while letting writes
// for different names proceed independently.
func (s *Store) lockName(name string) func() {
	id := RuleID(name)
	s.nameMu.Lock()
	l, ok := s.nameLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.nameLocks[id] = l
	}
	s.nameMu.Unlock()
	l.Lock()
	return l.Unlock
}
