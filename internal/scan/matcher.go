package scan

import (
	"bytes"
	"context"
	"log/slog"

	"iris-triage/internal/rules"
)

// builtinMatcher is the in-process evaluator for the documented pattern
// subset. It compiles each candidate's strings: section and condition:
// clause and evaluates them against the artifact content.
type builtinMatcher struct {
	logger *slog.Logger
}

// Match returns the names of candidate rules whose conditions hold for
// the content. A candidate that fails to compile is skipped and logged;
// a malformed rule must not poison the rest of the run.
func (m builtinMatcher) Match(ctx context.Context, content []byte, candidates []rules.Rule) ([]string, error) {
	logger := m.logger
	if logger == nil {
		logger = slog.Default()
	}

	lowered := bytes.ToLower(content)

	var matched []string
	for _, r := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		patterns, err := compilePatterns(r.Content)
		if err != nil {
			logger.Warn("skipping rule with uncompilable patterns", "rule", r.Name, "error", err)
			continue
		}
		cond, err := compileCondition(r.Content, patterns)
		if err != nil {
			logger.Warn("skipping rule with uncompilable condition", "rule", r.Name, "error", err)
			continue
		}

		hits := make(map[string]bool, len(patterns))
		for i := range patterns {
			if patterns[i].matches(content, lowered) {
				hits[patterns[i].id] = true
			}
		}

		if cond.eval(hits, content) {
			matched = append(matched, r.Name)
		}
	}
	return matched, nil
}
