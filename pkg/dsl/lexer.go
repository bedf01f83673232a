// Package dsl parses the authored S-expression sheet syntax into
// contracts.Program (§4.5/§6.1):
//
//	(domain.verb :key value ... :as @binding)
//
// Values may be quoted strings, bare ints/decimals, booleans, null,
// bare UUIDs, @name symbol references, [...] lists, {k v ...} maps, or
// entity_type:search_value entity references. Line comments start with
// ';'. Parse failures surface as a single SyntaxError diagnostic with a
// best-effort span rather than a Go error, so the validator pipeline
// always has something to report against.
package dsl

import "unicode"

// reader is a rune-at-a-time scanner over the authored source text,
// tracking 1-indexed line/column the way editor tooling expects.
type reader struct {
	src  []rune
	pos  int
	line int
	col  int
}

func newReader(src string) *reader {
	return &reader{src: []rune(src), line: 1, col: 1}
}

func (r *reader) eof() bool {
	return r.pos >= len(r.src)
}

func (r *reader) peek() rune {
	if r.eof() {
		return 0
	}
	return r.src[r.pos]
}

func (r *reader) peekAt(offset int) rune {
	i := r.pos + offset
	if i < 0 || i >= len(r.src) {
		return 0
	}
	return r.src[i]
}

func (r *reader) advance() rune {
	c := r.src[r.pos]
	r.pos++
	if c == '\n' {
		r.line++
		r.col = 1
	} else {
		r.col++
	}
	return c
}

func (r *reader) mark() (line, col int) {
	return r.line, r.col
}

// skipWhitespace consumes spaces, tabs, and newlines, but not comments —
// used between top-level statements so a standalone comment line can
// still be recognized and preserved as its own Statement.
func (r *reader) skipWhitespace() {
	for !r.eof() && unicode.IsSpace(r.peek()) {
		r.advance()
	}
}

// skipInsignificant consumes whitespace and ';' line comments, the
// blend used everywhere inside an expression where comments carry no
// structural meaning.
func (r *reader) skipInsignificant() {
	for {
		for !r.eof() && unicode.IsSpace(r.peek()) {
			r.advance()
		}
		if !r.eof() && r.peek() == ';' {
			for !r.eof() && r.peek() != '\n' {
				r.advance()
			}
			continue
		}
		break
	}
}

// readLineComment consumes a ';' comment through end of line, returning
// its text without the leading ';'.
func (r *reader) readLineComment() string {
	r.advance() // ';'
	start := r.pos
	for !r.eof() && r.peek() != '\n' {
		r.advance()
	}
	return string(r.src[start:r.pos])
}

func isIdentChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '-'
}

func isDelimiter(c rune) bool {
	switch c {
	case '(', ')', '[', ']', '{', '}', '"':
		return true
	}
	return unicode.IsSpace(c)
}

// readIdent consumes identifier characters (letters, digits, '_', '-').
func (r *reader) readIdent() string {
	start := r.pos
	for !r.eof() && isIdentChar(r.peek()) {
		r.advance()
	}
	return string(r.src[start:r.pos])
}

// readBareToken consumes everything up to the next delimiter, quote or
// whitespace — the unit a value outside quotes/brackets is lexed as,
// before classification (entity ref, UUID, number, bool, null, or bare
// string).
func (r *reader) readBareToken() string {
	start := r.pos
	for !r.eof() && !isDelimiter(r.peek()) {
		r.advance()
	}
	return string(r.src[start:r.pos])
}

// readQuotedString consumes a double-quoted string, honoring \" and \\
// escapes, assuming the caller has already confirmed peek() == '"'.
func (r *reader) readQuotedString() (string, bool) {
	r.advance() // opening quote
	var out []rune
	for {
		if r.eof() {
			return string(out), false
		}
		c := r.advance()
		if c == '"' {
			return string(out), true
		}
		if c == '\\' && !r.eof() {
			esc := r.advance()
			switch esc {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case '"', '\\':
				out = append(out, esc)
			default:
				out = append(out, esc)
			}
			continue
		}
		out = append(out, c)
	}
}
