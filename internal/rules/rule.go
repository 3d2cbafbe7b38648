// Package rules provides the detection-rule catalog for iris-triage.
// Rules are signature documents stored one file per rule in a designated
// directory; the catalog is the authoritative in-memory view of that
// directory. The pattern body of a document is opaque to this package and
// round-trips verbatim; only the metadata header is interpreted here.
package rules

import (
	"fmt"
	"strings"
	"time"

	"iris-triage/internal/schema"
)

// RuleFileExt is the file extension for rule documents.
const RuleFileExt = ".yar"

// Rule is a named signature definition with structured metadata and an
// opaque matching body. Consumers receive value copies; the catalog's
// entries are owned exclusively by the Store.
type Rule struct {
	// ID is a stable identifier derived from the document name.
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Author      string    `json:"author,omitempty"`
	Severity    int       `json:"severity"`
	Tags        []string  `json:"tags,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`

	// Content is the raw pattern-language source, opaque to the
	// metadata layer.
	Content string `json:"content,omitempty"`
}

// Validate checks the rule's structural invariants.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if !schema.ValidateRuleName(r.Name) {
		return fmt.Errorf("invalid rule name: %q", r.Name)
	}
	if r.Severity < 1 || r.Severity > 5 {
		return fmt.Errorf("severity must be in [1,5], got %d", r.Severity)
	}
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("rule content is required")
	}
	return nil
}

// HasTag reports whether the rule carries the given tag. Tag comparison
// is case-insensitive; tag order is irrelevant.
func (r *Rule) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the rule carries at least one of the given
// tags. An empty tag list matches every rule.
func (r *Rule) HasAnyTag(tags ...string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, tag := range tags {
		if r.HasTag(tag) {
			return true
		}
	}
	return false
}

// clone returns a deep copy so catalog entries never escape by reference.
func (r *Rule) clone() Rule {
	out := *r
	if r.Tags != nil {
		out.Tags = make([]string, len(r.Tags))
		copy(out.Tags, r.Tags)
	}
	return out
}

// RuleID derives the stable identifier for a rule name. Identifiers are
// the lowercased name so lookups stay case-insensitive across reloads.
func RuleID(name string) string {
	return strings.ToLower(name)
}

// FromDocument builds a Rule from a raw rule document. The name keys the
// catalog entry; the document body must carry a rule declaration. Metadata
// is read from the header, with an unparsable severity defaulting to the
// floor value. Timestamps are left zero for the store to fill on save.
func FromDocument(name, content string) (Rule, error) {
	if !schema.ValidateRuleName(name) {
		return Rule{}, fmt.Errorf("invalid rule name: %q", name)
	}
	if DeclaredName(content) == "" {
		return Rule{}, fmt.Errorf("no rule declaration found")
	}

	description, _ := ExtractField(content, "description")
	author, _ := ExtractField(content, "author")

	// Enabled state lives in the document header so it survives
	// reloads; anything other than an explicit "false" loads enabled.
	enabled := true
	if v, ok := ExtractField(content, "enabled"); ok && strings.EqualFold(v, "false") {
		enabled = false
	}

	return Rule{
		ID:          RuleID(name),
		Name:        name,
		Description: description,
		Author:      author,
		Severity:    ExtractSeverity(content),
		Tags:        ExtractTags(content),
		Enabled:     enabled,
		Content:     content,
	}, nil
}
