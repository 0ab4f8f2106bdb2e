// Package expr compiles the small boolean guard language used by effect
// descriptors:
//
//   - truthiness: `enabled`
//   - comparisons: `country == "china"`, `qty >= 3`, `note != null`
//   - composition: `a && (b || !c)`
//
// Identifiers are form keys (`country`, `items[r1].qty`) resolved through a
// Lookup at evaluation time.
package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Lookup resolves an identifier to its current value.
type Lookup func(key string) (any, bool)

// Expr is a compiled expression. It is immutable and safe for concurrent use.
type Expr struct {
	source string
	root   node
	idents []string
}

// Compile parses src. An empty source compiles to an expression that is
// always true.
func Compile(src string) (*Expr, error) {
	trimmed := strings.TrimSpace(src)
	e := &Expr{source: trimmed}
	if trimmed == "" {
		return e, nil
	}
	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("expr: unexpected token %q", p.tokens[p.pos].raw)
	}
	e.root = root
	e.idents = p.idents
	return e, nil
}

// MustCompile is Compile for sources known to be valid.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the source the expression was compiled from.
func (e *Expr) String() string {
	return e.source
}

// Identifiers lists the keys the expression reads, in order of appearance.
func (e *Expr) Identifiers() []string {
	return append([]string(nil), e.idents...)
}

// Eval evaluates the expression. A nil lookup resolves nothing.
func (e *Expr) Eval(lookup Lookup) (bool, error) {
	if e == nil || e.root == nil {
		return true, nil
	}
	if lookup == nil {
		lookup = func(string) (any, bool) { return nil, false }
	}
	return e.root.eval(lookup)
}

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenString
	tokenNumber
	tokenBool
	tokenNull
	tokenEq
	tokenNeq
	tokenLt
	tokenLte
	tokenGt
	tokenGte
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	raw  string
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	peek := func(offset int) byte {
		if i+offset >= len(input) {
			return 0
		}
		return input[i+offset]
	}
	emit := func(kind tokenKind, raw string) {
		tokens = append(tokens, token{kind: kind, raw: raw})
		i += len(raw)
	}

	for i < len(input) {
		ch := input[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '(':
			emit(tokenLParen, "(")
		case ch == ')':
			emit(tokenRParen, ")")
		case ch == '!' && peek(1) == '=':
			emit(tokenNeq, "!=")
		case ch == '!':
			emit(tokenNot, "!")
		case ch == '=' && peek(1) == '=':
			emit(tokenEq, "==")
		case ch == '<' && peek(1) == '=':
			emit(tokenLte, "<=")
		case ch == '<':
			emit(tokenLt, "<")
		case ch == '>' && peek(1) == '=':
			emit(tokenGte, ">=")
		case ch == '>':
			emit(tokenGt, ">")
		case ch == '&' && peek(1) == '&':
			emit(tokenAnd, "&&")
		case ch == '|' && peek(1) == '|':
			emit(tokenOr, "||")
		case ch == '=' || ch == '&' || ch == '|':
			return nil, fmt.Errorf("expr: unexpected %q at %d", ch, i)
		case ch == '"' || ch == '\'':
			end := i + 1
			for end < len(input) && input[end] != ch {
				if input[end] == '\\' {
					end++
				}
				end++
			}
			if end >= len(input) {
				return nil, errors.New("expr: unterminated string literal")
			}
			body := input[i+1 : end]
			if ch == '\'' {
				body = strings.ReplaceAll(body, `"`, `\"`)
				body = strings.ReplaceAll(body, `\'`, `'`)
			}
			value, err := strconv.Unquote(`"` + body + `"`)
			if err != nil {
				return nil, fmt.Errorf("expr: invalid string literal: %w", err)
			}
			tokens = append(tokens, token{kind: tokenString, raw: value})
			i = end + 1
		default:
			start := i
			for i < len(input) && !strings.ContainsRune(" \t\n\r()!=<>&|\"'", rune(input[i])) {
				i++
			}
			raw := input[start:i]
			switch strings.ToLower(raw) {
			case "true", "false":
				tokens = append(tokens, token{kind: tokenBool, raw: strings.ToLower(raw)})
			case "null", "nil":
				tokens = append(tokens, token{kind: tokenNull, raw: "null"})
			default:
				if _, err := strconv.ParseFloat(raw, 64); err == nil {
					tokens = append(tokens, token{kind: tokenNumber, raw: raw})
				} else {
					tokens = append(tokens, token{kind: tokenIdent, raw: raw})
				}
			}
		}
	}
	return tokens, nil
}

type parser struct {
	tokens []token
	pos    int
	idents []string
}

func (p *parser) match(kind tokenKind) bool {
	if p.pos < len(p.tokens) && p.tokens[p.pos].kind == kind {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match(tokenOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.match(tokenAnd) {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.match(tokenNot) {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.match(tokenLParen) {
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.match(tokenRParen) {
			return nil, errors.New("expr: missing closing ')'")
		}
		return inner, nil
	}
	if p.pos >= len(p.tokens) {
		return nil, errors.New("expr: unexpected end of expression")
	}
	tok := p.tokens[p.pos]
	if tok.kind != tokenIdent {
		return nil, fmt.Errorf("expr: expected identifier, got %q", tok.raw)
	}
	p.pos++
	p.idents = append(p.idents, tok.raw)

	if p.pos < len(p.tokens) {
		switch op := p.tokens[p.pos].kind; op {
		case tokenEq, tokenNeq, tokenLt, tokenLte, tokenGt, tokenGte:
			p.pos++
			lit, err := p.literal()
			if err != nil {
				return nil, err
			}
			if op != tokenEq && op != tokenNeq && lit.kind != tokenNumber {
				return nil, fmt.Errorf("expr: ordering comparison on %q needs a number", tok.raw)
			}
			return compareNode{ident: tok.raw, op: op, lit: lit}, nil
		}
	}
	return truthyNode{ident: tok.raw}, nil
}

func (p *parser) literal() (token, error) {
	if p.pos >= len(p.tokens) {
		return token{}, errors.New("expr: missing literal")
	}
	tok := p.tokens[p.pos]
	p.pos++
	switch tok.kind {
	case tokenString, tokenNumber, tokenBool, tokenNull:
		return tok, nil
	case tokenIdent:
		// bare words compare as strings
		return token{kind: tokenString, raw: tok.raw}, nil
	default:
		return token{}, fmt.Errorf("expr: expected literal, got %q", tok.raw)
	}
}
