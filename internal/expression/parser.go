package expression

import (
	"errors"
	"fmt"
	"strconv"
)

// maxDepth bounds parenthesis and unary-sign nesting.
const maxDepth = 256

// parser is a recursive-descent evaluator over the grammar
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = ("+" | "-") unary | primary
//	primary = number | "(" expr ")"
//
// It works on the already whitelisted ASCII input.
type parser struct {
	input string
	pos   int
	depth int
}

func parse(s string) (float64, error) {
	p := &parser{input: s}

	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}

	if ch := p.peek(); ch != 0 {
		return 0, p.errorf("unexpected %q", ch)
	}

	return v, nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d", ErrEvaluationFailure, fmt.Sprintf(format, args...), p.pos)
}

func isSpace(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// peek skips whitespace and returns the next byte, or 0 at end of input.
func (p *parser) peek() byte {
	for p.pos < len(p.input) && isSpace(p.input[p.pos]) {
		p.pos++
	}
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return p.errorf("nesting deeper than %d", maxDepth)
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) parseExpr() (float64, error) {
	v, err := p.parseTerm()
	if err != nil {
		return 0, err
	}

	for {
		switch p.peek() {
		case '+':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v += rhs
		case '-':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v -= rhs
		default:
			return v, nil
		}
	}
}

func (p *parser) parseTerm() (float64, error) {
	v, err := p.parseUnary()
	if err != nil {
		return 0, err
	}

	for {
		switch p.peek() {
		case '*':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			v *= rhs
		case '/':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			// IEEE division: x/0 is ±Inf, 0/0 is NaN.
			v /= rhs
		default:
			return v, nil
		}
	}
}

func (p *parser) parseUnary() (float64, error) {
	switch p.peek() {
	case '-', '+':
		sign := p.input[p.pos]
		p.pos++

		if err := p.enter(); err != nil {
			return 0, err
		}
		defer p.leave()

		v, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if sign == '-' {
			return -v, nil
		}
		return v, nil
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (float64, error) {
	ch := p.peek()

	switch {
	case ch == '(':
		p.pos++

		if err := p.enter(); err != nil {
			return 0, err
		}
		defer p.leave()

		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, p.errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil

	case isDigit(ch) || ch == '.':
		return p.parseNumber()

	case ch == 0:
		return 0, p.errorf("unexpected end of expression")

	default:
		return 0, p.errorf("unexpected %q", ch)
	}
}

// parseNumber reads digits [ "." digits ]; either side of the dot may be
// empty but not both.
func (p *parser) parseNumber() (float64, error) {
	start := p.pos
	digits := 0

	for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
		p.pos++
		digits++
	}
	if p.pos < len(p.input) && p.input[p.pos] == '.' {
		p.pos++
		for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
			p.pos++
			digits++
		}
	}

	if digits == 0 {
		p.pos = start
		return 0, p.errorf("malformed number")
	}

	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if errors.Is(err, strconv.ErrRange) {
		// Overflowing literals become ±Inf like any other non-finite value.
		return v, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEvaluationFailure, err)
	}
	return v, nil
}
