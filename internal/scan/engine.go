package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"iris-triage/internal/rules"
	"iris-triage/internal/schema"
)

// Matcher is the pattern-matching backend contract. Given artifact
// content and a candidate rule set, it returns the names of the rules
// whose patterns match. Implementations must be deterministic for a
// given content and candidate set.
type Matcher interface {
	Match(ctx context.Context, content []byte, candidates []rules.Rule) ([]string, error)
}

// EngineConfig configures the match engine.
type EngineConfig struct {
	// MaxReadBytes caps how much artifact content is read for
	// evaluation. Oversized volume images and memory dumps are read
	// up to this limit from the front.
	MaxReadBytes int64

	// WorkDir is where per-run working files are created. Empty means
	// the system temp directory.
	WorkDir string

	// Workers is the batch-scan worker count.
	Workers int
}

// DefaultEngineConfig returns default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxReadBytes: 64 * 1024 * 1024,
		Workers:      4,
	}
}

// Engine evaluates artifacts against the enabled subset of a rule
// catalog. Category routing picks the applicable rule families before any
// byte-level evaluation runs; extension and category are never a positive
// signal on their own.
type Engine struct {
	config  EngineConfig
	matcher Matcher
	logger  *slog.Logger
}

// NewEngine creates an engine with the built-in evaluator.
func NewEngine(config EngineConfig, logger *slog.Logger) *Engine {
	return NewEngineWithMatcher(config, builtinMatcher{logger: logger}, logger)
}

// NewEngineWithMatcher creates an engine over a caller-supplied backend.
func NewEngineWithMatcher(config EngineConfig, matcher Matcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxReadBytes <= 0 {
		config.MaxReadBytes = DefaultEngineConfig().MaxReadBytes
	}
	if config.Workers <= 0 {
		config.Workers = DefaultEngineConfig().Workers
	}
	return &Engine{config: config, matcher: matcher, logger: logger}
}

// categoryFamilies routes artifact categories to rule tag families. A
// rule with none of its tags in the family list is skipped for that
// category; untagged rules apply everywhere. Memory dumps and
// uncategorized artifacts are evaluated against the full catalog.
var categoryFamilies = map[schema.Category][]string{
	schema.CategoryExecutable:  {"malware", "ransomware", "backdoor", "credential", "trojan", "packer"},
	schema.CategoryScript:      {"script", "behavioral", "persistence", "backdoor", "phishing"},
	schema.CategoryVolumeImage: {"ransomware", "persistence", "credential"},
}

// applicableRules filters the enabled catalog subset down to the rule
// families routed for the artifact's category.
func applicableRules(catalog rules.Catalog, category schema.Category) []rules.Rule {
	enabled := catalog.Enabled()
	families, routed := categoryFamilies[category]
	if !routed {
		return enabled
	}
	out := make([]rules.Rule, 0, len(enabled))
	for _, r := range enabled {
		if len(r.Tags) == 0 || r.HasAnyTag(families...) {
			out = append(out, r)
		}
	}
	return out
}

// Scan evaluates one artifact against the catalog and returns the
// matching rules sorted by name. The same artifact content and the same
// enabled-rule snapshot always produce the same match set.
//
// Transient working files for the run are removed on every exit path,
// including cancellation.
func (e *Engine) Scan(ctx context.Context, artifact schema.Artifact, catalog rules.Catalog) ([]rules.Rule, error) {
	candidates := applicableRules(catalog, artifact.Category)
	if len(candidates) == 0 {
		return nil, nil
	}

	content, err := e.readArtifact(artifact.Path)
	if err != nil {
		return nil, &ScanError{Artifact: artifact.Path, Err: err}
	}

	workDir, err := os.MkdirTemp(e.config.WorkDir, "iris-scan-*")
	if err != nil {
		return nil, &ScanError{Artifact: artifact.Path, Err: fmt.Errorf("%w: %v", ErrEngineUnavailable, err)}
	}
	defer os.RemoveAll(workDir)

	// The active rule bundle for the run. External backends consume
	// this file; the built-in evaluator works from the candidates
	// directly, but the bundle still documents exactly what a run saw.
	if err := writeRuleBundle(filepath.Join(workDir, "active-rules.yar"), candidates); err != nil {
		return nil, &ScanError{Artifact: artifact.Path, Err: fmt.Errorf("%w: %v", ErrEngineUnavailable, err)}
	}

	matchedNames, err := e.matcher.Match(ctx, content, candidates)
	if err != nil {
		return nil, &ScanError{Artifact: artifact.Path, Err: err}
	}

	byName := make(map[string]rules.Rule, len(candidates))
	for _, r := range candidates {
		byName[r.Name] = r
	}
	matched := make([]rules.Rule, 0, len(matchedNames))
	for _, name := range matchedNames {
		if r, ok := byName[name]; ok {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	e.logger.Info("artifact scanned",
		"artifact", artifact.Name,
		"category", artifact.Category,
		"candidates", len(candidates),
		"matches", len(matched))
	return matched, nil
}

// Findings converts a match set into findings for the artifact, copying
// each rule's severity at match time.
func Findings(scanID uuid.UUID, artifact schema.Artifact, matched []rules.Rule, at time.Time) []schema.Finding {
	out := make([]schema.Finding, 0, len(matched))
	for _, r := range matched {
		out = append(out, schema.Finding{
			ID:         uuid.New(),
			ScanID:     scanID,
			ArtifactID: artifact.ID,
			RuleID:     r.ID,
			RuleName:   r.Name,
			Severity:   r.Severity,
			Tags:       r.Tags,
			MatchedAt:  at,
		})
	}
	return out
}

func (e *Engine) readArtifact(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrArtifactNotFound, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}
	defer f.Close()

	size := info.Size()
	if size > e.config.MaxReadBytes {
		size = e.config.MaxReadBytes
	}
	content := make([]byte, size)
	// ReadFull so a short read from a pipe-backed or racing file cannot
	// silently truncate what gets evaluated.
	n, err := io.ReadFull(f, content)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactNotFound, path, err)
	}
	return content[:n], nil
}

// writeRuleBundle concatenates the candidate rule documents into one
// working file, the shape an external signature backend expects.
func writeRuleBundle(path string, candidates []rules.Rule) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, r := range candidates {
		if _, err := f.WriteString(r.Content); err != nil {
			return err
		}
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	return nil
}
