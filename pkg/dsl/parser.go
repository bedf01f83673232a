package dsl

import (
	"regexp"
	"strconv"

	"github.com/onboardkit/semos/pkg/contracts"
)

var (
	uuidPattern    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	intPattern     = regexp.MustCompile(`^-?[0-9]+$`)
	decimalPattern = regexp.MustCompile(`^-?[0-9]+\.[0-9]+$`)
)

// parser turns a reader into a contracts.Program via recursive descent.
type parser struct {
	r *reader
}

// Parse parses one authored sheet. On success it returns a Program and
// a nil diagnostic. On the first unrecoverable syntax error it returns
// whatever statements parsed cleanly before the failure, plus a single
// SyntaxError diagnostic carrying a best-effort span.
func Parse(src string) (*contracts.Program, *contracts.Diagnostic) {
	p := &parser{r: newReader(src)}
	prog := &contracts.Program{}

	for {
		p.r.skipWhitespace()
		if p.r.eof() {
			return prog, nil
		}
		startLine, startCol := p.r.mark()
		if p.r.peek() == ';' {
			text := p.r.readLineComment()
			endLine, endCol := p.r.mark()
			prog.Statements = append(prog.Statements, contracts.Statement{
				Kind:    contracts.StatementComment,
				Comment: text,
				Span:    span(startLine, startCol, endLine, endCol),
			})
			continue
		}
		if p.r.peek() != '(' {
			return prog, syntaxError(startLine, startCol, "expected '(' to start a verb call")
		}
		call, diag := p.parseVerbCall()
		if diag != nil {
			return prog, diag
		}
		prog.Statements = append(prog.Statements, contracts.Statement{
			Kind: contracts.StatementVerbCall,
			Call: call,
			Span: call.Span,
		})
	}
}

func span(startLine, startCol, endLine, endCol int) contracts.Span {
	return contracts.Span{StartLine: startLine, StartCol: startCol, EndLine: endLine, EndCol: endCol}
}

func syntaxError(line, col int, msg string) *contracts.Diagnostic {
	return &contracts.Diagnostic{
		Code:     contracts.DiagSyntaxError,
		Severity: contracts.SeverityError,
		Message:  msg,
		Span:     span(line, col, line, col),
	}
}

func (p *parser) parseVerbCall() (*contracts.VerbCall, *contracts.Diagnostic) {
	startLine, startCol := p.r.mark()
	p.r.advance() // '('
	p.r.skipInsignificant()

	if p.r.eof() || !isIdentChar(p.r.peek()) {
		return nil, syntaxError(startLine, startCol, "expected verb name after '('")
	}
	first := p.r.readIdent()
	domain, verb := "", first
	if p.r.peek() == '.' {
		p.r.advance()
		verb = p.r.readIdent()
		domain = first
	}

	call := &contracts.VerbCall{Domain: domain, Verb: verb}

	for {
		p.r.skipInsignificant()
		if p.r.eof() {
			return nil, syntaxError(startLine, startCol, "unterminated verb call "+call.FQN())
		}
		if p.r.peek() == ')' {
			p.r.advance()
			break
		}
		if p.r.peek() != ':' {
			line, col := p.r.mark()
			return nil, syntaxError(line, col, "expected ':key' argument or ')' in "+call.FQN())
		}
		argStartLine, argStartCol := p.r.mark()
		p.r.advance() // ':'
		if p.r.eof() || !isIdentChar(p.r.peek()) {
			return nil, syntaxError(argStartLine, argStartCol, "expected argument name after ':'")
		}
		key := p.r.readIdent()
		p.r.skipInsignificant()

		if key == "as" {
			if p.r.peek() != '@' {
				line, col := p.r.mark()
				return nil, syntaxError(line, col, "expected '@binding' after :as")
			}
			p.r.advance()
			call.Binding = p.r.readIdent()
			continue
		}

		val, diag := p.parseValue()
		if diag != nil {
			return nil, diag
		}
		endLine, endCol := p.r.mark()
		call.Arguments = append(call.Arguments, contracts.Argument{
			Key:   key,
			Value: val,
			Span:  span(argStartLine, argStartCol, endLine, endCol),
		})
	}

	endLine, endCol := p.r.mark()
	call.Span = span(startLine, startCol, endLine, endCol)
	return call, nil
}

func (p *parser) parseValue() (contracts.Value, *contracts.Diagnostic) {
	p.r.skipInsignificant()
	startLine, startCol := p.r.mark()
	if p.r.eof() {
		return contracts.Value{}, syntaxError(startLine, startCol, "expected a value")
	}

	switch p.r.peek() {
	case '(':
		nested, diag := p.parseVerbCall()
		if diag != nil {
			return contracts.Value{}, diag
		}
		return contracts.Value{Kind: contracts.NodeNested, Nested: nested, Span: nested.Span}, nil

	case '[':
		return p.parseList(startLine, startCol)

	case '{':
		return p.parseMap(startLine, startCol)

	case '@':
		p.r.advance()
		name := p.r.readIdent()
		endLine, endCol := p.r.mark()
		return contracts.Value{Kind: contracts.NodeSymbolRef, SymbolName: name, Span: span(startLine, startCol, endLine, endCol)}, nil

	case '"':
		text, ok := p.r.readQuotedString()
		if !ok {
			return contracts.Value{}, syntaxError(startLine, startCol, "unterminated string literal")
		}
		endLine, endCol := p.r.mark()
		return contracts.Value{Kind: contracts.NodeLiteral, LiteralKind: contracts.LiteralString, StringVal: text, Span: span(startLine, startCol, endLine, endCol)}, nil

	default:
		return p.parseBareValue(startLine, startCol)
	}
}

func (p *parser) parseList(startLine, startCol int) (contracts.Value, *contracts.Diagnostic) {
	p.r.advance() // '['
	var items []contracts.Value
	for {
		p.r.skipInsignificant()
		if p.r.eof() {
			return contracts.Value{}, syntaxError(startLine, startCol, "unterminated list")
		}
		if p.r.peek() == ']' {
			p.r.advance()
			break
		}
		v, diag := p.parseValue()
		if diag != nil {
			return contracts.Value{}, diag
		}
		items = append(items, v)
	}
	endLine, endCol := p.r.mark()
	return contracts.Value{Kind: contracts.NodeList, Items: items, Span: span(startLine, startCol, endLine, endCol)}, nil
}

func (p *parser) parseMap(startLine, startCol int) (contracts.Value, *contracts.Diagnostic) {
	p.r.advance() // '{'
	var pairs []contracts.KV
	for {
		p.r.skipInsignificant()
		if p.r.eof() {
			return contracts.Value{}, syntaxError(startLine, startCol, "unterminated map")
		}
		if p.r.peek() == '}' {
			p.r.advance()
			break
		}
		keyLine, keyCol := p.r.mark()
		var key string
		if p.r.peek() == '"' {
			text, ok := p.r.readQuotedString()
			if !ok {
				return contracts.Value{}, syntaxError(keyLine, keyCol, "unterminated map key string")
			}
			key = text
		} else if isIdentChar(p.r.peek()) {
			key = p.r.readIdent()
		} else {
			return contracts.Value{}, syntaxError(keyLine, keyCol, "expected map key")
		}
		p.r.skipInsignificant()
		v, diag := p.parseValue()
		if diag != nil {
			return contracts.Value{}, diag
		}
		pairs = append(pairs, contracts.KV{Key: key, Value: v})
	}
	endLine, endCol := p.r.mark()
	return contracts.Value{Kind: contracts.NodeMap, Pairs: pairs, Span: span(startLine, startCol, endLine, endCol)}, nil
}

func (p *parser) parseBareValue(startLine, startCol int) (contracts.Value, *contracts.Diagnostic) {
	token := p.r.readBareToken()
	if token == "" {
		return contracts.Value{}, syntaxError(startLine, startCol, "unexpected character")
	}

	if idx := indexRune(token, ':'); idx > 0 {
		entityType := token[:idx]
		searchValue := token[idx+1:]
		if searchValue == "" {
			p.r.skipInsignificant()
			if p.r.peek() == '"' {
				text, ok := p.r.readQuotedString()
				if !ok {
					return contracts.Value{}, syntaxError(startLine, startCol, "unterminated entity-ref search value")
				}
				searchValue = text
			} else {
				searchValue = p.r.readBareToken()
			}
		}
		endLine, endCol := p.r.mark()
		return contracts.Value{Kind: contracts.NodeEntityRef, EntityType: entityType, SearchValue: searchValue, Span: span(startLine, startCol, endLine, endCol)}, nil
	}

	endLine, endCol := p.r.mark()
	s := span(startLine, startCol, endLine, endCol)

	switch {
	case token == "true":
		return contracts.Value{Kind: contracts.NodeLiteral, LiteralKind: contracts.LiteralBool, BoolVal: true, Span: s}, nil
	case token == "false":
		return contracts.Value{Kind: contracts.NodeLiteral, LiteralKind: contracts.LiteralBool, BoolVal: false, Span: s}, nil
	case token == "null":
		return contracts.Value{Kind: contracts.NodeLiteral, LiteralKind: contracts.LiteralNull, Span: s}, nil
	case uuidPattern.MatchString(token):
		return contracts.Value{Kind: contracts.NodeLiteral, LiteralKind: contracts.LiteralUUID, StringVal: token, Span: s}, nil
	case intPattern.MatchString(token):
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return contracts.Value{}, syntaxError(startLine, startCol, "malformed integer literal "+token)
		}
		return contracts.Value{Kind: contracts.NodeLiteral, LiteralKind: contracts.LiteralInt, IntVal: n, Span: s}, nil
	case decimalPattern.MatchString(token):
		return contracts.Value{Kind: contracts.NodeLiteral, LiteralKind: contracts.LiteralDecimal, DecimalVal: token, Span: s}, nil
	default:
		return contracts.Value{Kind: contracts.NodeLiteral, LiteralKind: contracts.LiteralString, StringVal: token, Span: s}, nil
	}
}

func indexRune(s string, r rune) int {
	for i, c := range s {
		if c == r {
			return i
		}
	}
	return -1
}
