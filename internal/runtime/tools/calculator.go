package tools

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const calcAllowed = "0123456789+-*/.() "

var errDivisionByZero = errors.New("division by zero")

// evalExpression evaluates an arithmetic expression with + - * / ** and
// parentheses. ** binds tighter than unary minus and is right-associative.
func evalExpression(expr string) (float64, error) {
	for _, r := range expr {
		if !strings.ContainsRune(calcAllowed, r) {
			return 0, fmt.Errorf("表达式包含非法字符 %q", r)
		}
	}
	p := &calcParser{src: expr}
	p.next()
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	if p.tok != "" {
		return 0, fmt.Errorf("unexpected %q at offset %d", p.tok, p.start)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("result out of range")
	}
	return v, nil
}

type calcParser struct {
	src   string
	pos   int
	start int
	tok   string
}

// next advances to the next token; tok is "" at end of input.
func (p *calcParser) next() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
	p.start = p.pos
	if p.pos >= len(p.src) {
		p.tok = ""
		return
	}
	c := p.src[p.pos]
	switch {
	case c == '*' && strings.HasPrefix(p.src[p.pos:], "**"):
		p.pos += 2
	case strings.IndexByte("+-*/()", c) >= 0:
		p.pos++
	default:
		for p.pos < len(p.src) && (p.src[p.pos] == '.' || (p.src[p.pos] >= '0' && p.src[p.pos] <= '9')) {
			p.pos++
		}
	}
	p.tok = p.src[p.start:p.pos]
}

func (p *calcParser) expr() (float64, error) {
	v, err := p.term()
	if err != nil {
		return 0, err
	}
	for p.tok == "+" || p.tok == "-" {
		op := p.tok
		p.next()
		r, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			v += r
		} else {
			v -= r
		}
	}
	return v, nil
}

func (p *calcParser) term() (float64, error) {
	v, err := p.unary()
	if err != nil {
		return 0, err
	}
	for p.tok == "*" || p.tok == "/" {
		op := p.tok
		p.next()
		r, err := p.unary()
		if err != nil {
			return 0, err
		}
		if op == "*" {
			v *= r
			continue
		}
		if r == 0 {
			return 0, errDivisionByZero
		}
		v /= r
	}
	return v, nil
}

func (p *calcParser) unary() (float64, error) {
	switch p.tok {
	case "-":
		p.next()
		v, err := p.unary()
		return -v, err
	case "+":
		p.next()
		return p.unary()
	}
	return p.power()
}

func (p *calcParser) power() (float64, error) {
	base, err := p.primary()
	if err != nil {
		return 0, err
	}
	if p.tok != "**" {
		return base, nil
	}
	p.next()
	exp, err := p.unary()
	if err != nil {
		return 0, err
	}
	return math.Pow(base, exp), nil
}

func (p *calcParser) primary() (float64, error) {
	switch tok := p.tok; {
	case tok == "":
		return 0, errors.New("unexpected end of expression")
	case tok == "(":
		p.next()
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if p.tok != ")" {
			return 0, fmt.Errorf("missing ) at offset %d", p.start)
		}
		p.next()
		return v, nil
	case tok[0] == '.' || (tok[0] >= '0' && tok[0] <= '9'):
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", tok)
		}
		p.next()
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected %q at offset %d", tok, p.start)
	}
}
