package scan

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// condition is a compiled condition: clause. Evaluation needs the set of
// matched pattern identifiers plus the raw content for structural checks
// like uint16(0) == 0x5A4D.
type condition interface {
	eval(matched map[string]bool, content []byte) bool
}

type boolLit bool

func (b boolLit) eval(map[string]bool, []byte) bool { return bool(b) }

type patternRef struct{ id string }

func (p patternRef) eval(matched map[string]bool, _ []byte) bool { return matched[p.id] }

type binaryOp struct {
	op   string // "and" or "or"
	l, r condition
}

func (b binaryOp) eval(matched map[string]bool, content []byte) bool {
	if b.op == "and" {
		return b.l.eval(matched, content) && b.r.eval(matched, content)
	}
	return b.l.eval(matched, content) || b.r.eval(matched, content)
}

type notOp struct{ inner condition }

func (n notOp) eval(matched map[string]bool, content []byte) bool {
	return !n.inner.eval(matched, content)
}

// quantifier implements "N of <set>", "any of them", "all of ($p*)".
type quantifier struct {
	min int // minimum matches required; -1 means all
	// setRefs holds exact ids and "prefix*" globs; empty means "them".
	setRefs []string
	ids     []string // resolved at compile time
}

func (q quantifier) eval(matched map[string]bool, _ []byte) bool {
	hits := 0
	for _, id := range q.ids {
		if matched[id] {
			hits++
		}
	}
	if q.min < 0 {
		return len(q.ids) > 0 && hits == len(q.ids)
	}
	return hits >= q.min
}

// structCheck implements uintN(offset) == value.
type structCheck struct {
	width  int // 1, 2, or 4 bytes, little-endian
	offset int
	value  uint64
}

func (s structCheck) eval(_ map[string]bool, content []byte) bool {
	if s.offset < 0 || s.offset+s.width > len(content) {
		return false
	}
	var got uint64
	switch s.width {
	case 1:
		got = uint64(content[s.offset])
	case 2:
		got = uint64(binary.LittleEndian.Uint16(content[s.offset:]))
	case 4:
		got = uint64(binary.LittleEndian.Uint32(content[s.offset:]))
	}
	return got == s.value
}

// compileCondition parses the condition: clause of a rule document
// against its compiled pattern list.
func compileCondition(document string, patterns []pattern) (condition, error) {
	start := strings.Index(document, "condition:")
	if start < 0 {
		return nil, fmt.Errorf("no condition section")
	}
	clause := document[start+len("condition:"):]
	// The clause runs to the rule's closing brace.
	if i := strings.LastIndex(clause, "}"); i >= 0 {
		clause = clause[:i]
	}
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return nil, fmt.Errorf("empty condition")
	}

	p := &condParser{tokens: tokenizeCondition(clause), patterns: patterns}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("trailing tokens in condition: %q", p.rest())
	}
	return cond, nil
}

func tokenizeCondition(s string) []string {
	var tokens []string
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(' || c == ')' || c == ',' || c == '*':
			tokens = append(tokens, string(c))
			i++
		case c == '=' && i+1 < len(s) && s[i+1] == '=':
			tokens = append(tokens, "==")
			i += 2
		default:
			j := i
			for j < len(s) && !strings.ContainsRune(" \t\n\r(),*=", rune(s[j])) {
				j++
			}
			tokens = append(tokens, s[i:j])
			i = j
		}
	}
	return tokens
}

type condParser struct {
	tokens   []string
	pos      int
	patterns []pattern
}

func (p *condParser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *condParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *condParser) done() bool { return p.pos >= len(p.tokens) }

func (p *condParser) rest() string { return strings.Join(p.tokens[p.pos:], " ") }

func (p *condParser) expect(tok string) error {
	if got := p.next(); got != tok {
		return fmt.Errorf("expected %q, got %q", tok, got)
	}
	return nil
}

func (p *condParser) parseOr() (condition, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == "or" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryOp{op: "or", l: left, r: right}
	}
	return left, nil
}

func (p *condParser) parseAnd() (condition, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek() == "and" {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryOp{op: "and", l: left, r: right}
	}
	return left, nil
}

func (p *condParser) parseUnary() (condition, error) {
	tok := p.peek()
	switch {
	case tok == "not":
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notOp{inner: inner}, nil
	case tok == "(":
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return inner, nil
	case tok == "true":
		p.next()
		return boolLit(true), nil
	case tok == "false":
		p.next()
		return boolLit(false), nil
	case tok == "any" || tok == "all":
		return p.parseQuantifier()
	case strings.HasPrefix(tok, "uint"):
		return p.parseStructCheck()
	case strings.HasPrefix(tok, "$"):
		p.next()
		return patternRef{id: strings.TrimPrefix(tok, "$")}, nil
	default:
		if _, err := strconv.Atoi(tok); err == nil {
			return p.parseQuantifier()
		}
	}
	return nil, fmt.Errorf("unexpected token %q in condition", tok)
}

// parseQuantifier handles "<count> of <set>" where count is an integer,
// "any", or "all", and set is "them" or a parenthesized list of pattern
// references and prefix globs.
func (p *condParser) parseQuantifier() (condition, error) {
	q := quantifier{}
	switch tok := p.next(); tok {
	case "any":
		q.min = 1
	case "all":
		q.min = -1
	default:
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad quantifier count %q", tok)
		}
		q.min = n
	}
	if err := p.expect("of"); err != nil {
		return nil, err
	}

	switch p.peek() {
	case "them":
		p.next()
	case "(":
		p.next()
		for {
			ref := p.next()
			if !strings.HasPrefix(ref, "$") {
				return nil, fmt.Errorf("expected pattern reference, got %q", ref)
			}
			ref = strings.TrimPrefix(ref, "$")
			if p.peek() == "*" {
				p.next()
				ref += "*"
			}
			q.setRefs = append(q.setRefs, ref)
			if p.peek() == "," {
				p.next()
				continue
			}
			break
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("expected 'them' or pattern set, got %q", p.peek())
	}

	q.ids = resolveSet(q.setRefs, p.patterns)
	if len(q.ids) == 0 {
		return nil, fmt.Errorf("quantifier resolves to no patterns")
	}
	return q, nil
}

// resolveSet expands pattern references ("id" or "prefix*") against the
// rule's compiled pattern list. An empty ref list means every pattern.
func resolveSet(refs []string, patterns []pattern) []string {
	var ids []string
	if len(refs) == 0 {
		for _, p := range patterns {
			ids = append(ids, p.id)
		}
		return ids
	}
	for _, ref := range refs {
		if prefix, ok := strings.CutSuffix(ref, "*"); ok {
			for _, p := range patterns {
				if strings.HasPrefix(p.id, prefix) {
					ids = append(ids, p.id)
				}
			}
			continue
		}
		for _, p := range patterns {
			if p.id == ref {
				ids = append(ids, p.id)
			}
		}
	}
	return ids
}

// parseStructCheck handles "uintN(offset) == value".
func (p *condParser) parseStructCheck() (condition, error) {
	s := structCheck{}
	switch p.next() {
	case "uint8":
		s.width = 1
	case "uint16":
		s.width = 2
	case "uint32":
		s.width = 4
	default:
		return nil, fmt.Errorf("unsupported structural accessor")
	}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	off, err := strconv.Atoi(p.next())
	if err != nil {
		return nil, fmt.Errorf("bad structural offset: %v", err)
	}
	s.offset = off
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	if err := p.expect("=="); err != nil {
		return nil, err
	}
	raw := strings.ToLower(p.next())
	base := 10
	if rest, ok := strings.CutPrefix(raw, "0x"); ok {
		raw, base = rest, 16
	}
	val, err := strconv.ParseUint(raw, base, 64)
	if err != nil {
		return nil, fmt.Errorf("bad structural value: %v", err)
	}
	s.value = val
	return s, nil
}
