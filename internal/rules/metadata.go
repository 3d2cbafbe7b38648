package rules

import (
	"regexp"
	"strconv"
	"strings"
)

// Metadata extraction is pure text parsing of a rule document's header,
// independent of the pattern body. A document header looks like:
//
//	rule LockBit_Ransomware : ransomware lockbit encryption
//	{
//	    meta:
//	        description = "Detects LockBit 3.0 ransomware signatures"
//	        severity = "5"
//	    strings:
//	        ...
//	    condition:
//	        ...
//	}
//
// Absence of a section, marker, or field is a normal outcome, never an
// error.

// DefaultSeverity is used when a document's severity field is missing or
// does not parse as an integer.
const DefaultSeverity = 1

var (
	// tagClausePattern matches the rule declaration line with a tag
	// clause: "rule <identifier> : <tag> <tag> ... {".
	tagClausePattern = regexp.MustCompile(`rule\s+\w+\s*:\s*([\w\s]+)\s*\{`)

	// declPattern matches any rule declaration line, tagged or not.
	declPattern = regexp.MustCompile(`rule\s+(\w+)`)
)

// metadataMarkers bound the metadata section. The section ends at
// whichever marker appears first after it.
var metadataMarkers = []string{"strings:", "condition:"}

// ExtractField locates the metadata section of a rule document and
// returns the value of a `field = "value"` assignment within it. It
// returns ("", false) when there is no metadata section, no bounding
// marker, or no matching field.
//
// Both `meta:` and `metadata:` open the section; the document language
// uses the former, older documents in the wild use the latter.
func ExtractField(document, field string) (string, bool) {
	start := strings.Index(document, "metadata:")
	if start < 0 {
		start = strings.Index(document, "meta:")
	}
	if start < 0 {
		return "", false
	}

	end := -1
	for _, marker := range metadataMarkers {
		if i := strings.Index(document[start:], marker); i >= 0 {
			if end < 0 || start+i < end {
				end = start + i
			}
		}
	}
	if end < 0 {
		return "", false
	}

	section := document[start:end]
	re, err := regexp.Compile(regexp.QuoteMeta(field) + `\s*=\s*"([^"]*)"`)
	if err != nil {
		return "", false
	}
	m := re.FindStringSubmatch(section)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractTags parses the rule declaration line and returns its
// whitespace-separated tag list. A declaration without a tag clause, or
// one that does not match the expected shape, yields an empty slice.
func ExtractTags(document string) []string {
	m := tagClausePattern.FindStringSubmatch(document)
	if m == nil {
		return nil
	}
	return strings.Fields(m[1])
}

// ExtractSeverity returns the document's severity, defaulting to
// DefaultSeverity when the field is absent or not an integer.
func ExtractSeverity(document string) int {
	raw, ok := ExtractField(document, "severity")
	if !ok {
		return DefaultSeverity
	}
	sev, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultSeverity
	}
	if sev < 1 || sev > 5 {
		return DefaultSeverity
	}
	return sev
}

// DeclaredName returns the identifier on the rule declaration line, or
// "" when the document has no recognizable declaration.
func DeclaredName(document string) string {
	m := declPattern.FindStringSubmatch(document)
	if m == nil {
		return ""
	}
	return m[1]
}
