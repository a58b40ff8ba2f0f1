package extraction

import "strings"

// parser is a cursor over one clause body.
type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) rest() string { return p.src[p.pos:] }

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) fail(field Field, reason string) *ClauseError {
	return &ClauseError{Field: field, Offset: p.pos, Reason: reason}
}

func (p *parser) expect(c byte, field Field) *ClauseError {
	p.skipSpace()
	if p.eof() {
		return p.fail(field, "unexpected end of clause, want "+string(c))
	}
	if p.peek() != c {
		return p.fail(field, "want "+string(c)+", got "+string(p.peek()))
	}
	p.pos++
	return nil
}

// list reads a bracketed list of identifiers. A bare token without brackets
// (NULL, ALL) is accepted as a one-element list.
func (p *parser) list(field Field) ([]string, *ClauseError) {
	p.skipSpace()
	if p.eof() {
		return nil, p.fail(field, "missing list")
	}
	if p.peek() != '[' {
		var item string
		if isQuote(p.peek()) {
			item = p.quoted()
		} else {
			item = p.bare()
		}
		if item == "" {
			return nil, p.fail(field, "missing list")
		}
		return []string{item}, nil
	}
	p.pos++

	items := []string{}
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.fail(field, "unterminated list")
		}
		switch p.peek() {
		case ']':
			p.pos++
			return items, nil
		case ',':
			p.pos++
			continue
		}
		var item string
		if isQuote(p.peek()) {
			item = p.quoted()
		} else {
			item = p.bare()
		}
		if item != "" {
			items = append(items, item)
		}
	}
}

// bare reads up to the next ',' or ']'.
func (p *parser) bare() string {
	start := p.pos
	for !p.eof() && p.peek() != ',' && p.peek() != ']' {
		p.pos++
	}
	return strings.TrimSpace(p.src[start:p.pos])
}

// quoted reads a quoted identifier. The closing quote is the first quote
// character followed by a list delimiter, so identifiers may contain
// apostrophes and the two quotes need not match.
func (p *parser) quoted() string {
	start := p.pos + 1
	for i := start; i < len(p.src); i++ {
		if !isQuote(p.src[i]) {
			continue
		}
		j := i + 1
		for j < len(p.src) && (p.src[j] == ' ' || p.src[j] == '\t') {
			j++
		}
		if j == len(p.src) || p.src[j] == ',' || p.src[j] == ']' {
			p.pos = i + 1
			return strings.TrimSpace(p.src[start:i])
		}
	}
	// No closing quote: treat the rest of the element as bare text.
	p.pos = start
	return p.bare()
}

func isQuote(c byte) bool {
	return c == '\'' || c == '"' || c == '`'
}
