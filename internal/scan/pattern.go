// Package scan evaluates artifacts against the enabled detection rules.
// The built-in evaluator implements the documented subset of the rule
// pattern language: quoted text strings (with an optional nocase
// modifier), hex byte strings with ?? wildcards, and boolean conditions
// over them. It is substitutable behind the Matcher interface, so a full
// signature-matching backend can replace it without touching callers.
package scan

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// pattern is one compiled entry from a rule's strings: section.
type pattern struct {
	id     string // identifier without the $ sigil
	text   []byte // literal bytes for text patterns, lowercased when nocase
	mask   []bool // hex wildcard mask; nil for text patterns
	nocase bool
}

var (
	textPatternLine = regexp.MustCompile(`^\$(\w+)\s*=\s*"((?:[^"\\]|\\.)*)"\s*(nocase)?\s*$`)
	hexPatternLine  = regexp.MustCompile(`^\$(\w+)\s*=\s*\{\s*([0-9A-Fa-f?\s]+)\s*\}.*$`)
)

// compilePatterns parses the strings: section of a rule document. The
// section is bounded by the condition: marker. A document without a
// strings: section compiles to an empty set, which is valid: its
// condition then decides on structural checks alone.
func compilePatterns(document string) ([]pattern, error) {
	start := strings.Index(document, "strings:")
	if start < 0 {
		return nil, nil
	}
	end := strings.Index(document[start:], "condition:")
	if end < 0 {
		return nil, fmt.Errorf("strings section has no terminating condition")
	}
	section := document[start+len("strings:") : start+end]

	var out []pattern
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if m := textPatternLine.FindStringSubmatch(line); m != nil {
			p := pattern{id: m[1], nocase: m[3] != ""}
			text := unescape(m[2])
			if p.nocase {
				text = strings.ToLower(text)
			}
			p.text = []byte(text)
			if len(p.text) == 0 {
				return nil, fmt.Errorf("pattern $%s: empty text string", p.id)
			}
			out = append(out, p)
			continue
		}
		if m := hexPatternLine.FindStringSubmatch(line); m != nil {
			p, err := compileHex(m[1], m[2])
			if err != nil {
				return nil, err
			}
			out = append(out, p)
			continue
		}
		return nil, fmt.Errorf("unrecognized pattern line: %q", line)
	}
	return out, nil
}

// compileHex turns a "{ AA ?? BB }" body into bytes plus a wildcard mask.
func compileHex(id, body string) (pattern, error) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return pattern{}, fmt.Errorf("pattern $%s: empty hex string", id)
	}
	text := make([]byte, 0, len(fields))
	mask := make([]bool, 0, len(fields))
	for _, f := range fields {
		if f == "??" {
			text = append(text, 0)
			mask = append(mask, false)
			continue
		}
		if len(f) != 2 || strings.ContainsRune(f, '?') {
			// Nibble wildcards are outside the supported subset.
			return pattern{}, fmt.Errorf("pattern $%s: unsupported hex token %q", id, f)
		}
		var b byte
		if _, err := fmt.Sscanf(f, "%02x", &b); err != nil {
			return pattern{}, fmt.Errorf("pattern $%s: bad hex token %q", id, f)
		}
		text = append(text, b)
		mask = append(mask, true)
	}
	return pattern{id: id, text: text, mask: mask}, nil
}

func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// matches reports whether the pattern occurs anywhere in content.
// lowered is the pre-lowercased content, shared across patterns so each
// nocase pattern does not re-lowercase the artifact.
func (p *pattern) matches(content, lowered []byte) bool {
	if p.mask != nil {
		return matchHex(content, p.text, p.mask)
	}
	if p.nocase {
		return bytes.Contains(lowered, p.text)
	}
	return bytes.Contains(content, p.text)
}

func matchHex(content, text []byte, mask []bool) bool {
	n := len(text)
	if n == 0 || len(content) < n {
		return false
	}
	for i := 0; i+n <= len(content); i++ {
		hit := true
		for j := 0; j < n; j++ {
			if mask[j] && content[i+j] != text[j] {
				hit = false
				break
			}
		}
		if hit {
			return true
		}
	}
	return false
}
