package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Calculator evaluates arithmetic expressions. Only numbers, + - * / ^,
// parentheses, a fixed set of functions and the constants pi and e are
// accepted.
type Calculator struct{}

var _ Tool = Calculator{}

func (Calculator) Name() string { return "Calculator" }

func (Calculator) Description() string {
	return "Evaluates arithmetic expressions. Supports + - * / ^ and parentheses, " +
		"functions abs, sqrt, round, floor, ceil, min, max, log, exp, pow and constants pi, e. " +
		"Input: an expression such as (1.5 - 0.8) * 100"
}

// Run returns the result, or an "Error calculating" message for invalid input.
func (Calculator) Run(_ context.Context, input string) (string, error) {
	expr := strings.Trim(strings.TrimSpace(input), "`\"'")
	v, err := Evaluate(expr)
	if err != nil {
		return fmt.Sprintf("Error calculating '%s': %v", expr, err), nil
	}
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}

var errDivisionByZero = errors.New("division by zero")

type calcFunc struct {
	arity int // -1 means one or more
	fn    func(args []float64) float64
}

var calcFuncs = map[string]calcFunc{
	"abs":   {1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"sqrt":  {1, func(a []float64) float64 { return math.Sqrt(a[0]) }},
	"round": {1, func(a []float64) float64 { return math.Round(a[0]) }},
	"floor": {1, func(a []float64) float64 { return math.Floor(a[0]) }},
	"ceil":  {1, func(a []float64) float64 { return math.Ceil(a[0]) }},
	"log":   {1, func(a []float64) float64 { return math.Log(a[0]) }},
	"exp":   {1, func(a []float64) float64 { return math.Exp(a[0]) }},
	"pow":   {2, func(a []float64) float64 { return math.Pow(a[0], a[1]) }},
	"min": {-1, func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m
	}},
	"max": {-1, func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m
	}},
}

var calcConsts = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

// Evaluate parses and evaluates expr.
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = ("-" | "+") unary | power
//	power   = primary [ ("^" | "**") unary ]
//	primary = number | name | name "(" expr { "," expr } ")" | "(" expr ")"
func Evaluate(expr string) (float64, error) {
	p := &calcParser{src: expr}
	p.next()
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	if p.tok.kind != tokEOF {
		return 0, fmt.Errorf("unexpected %q at position %d", p.tok.text, p.tok.pos)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("result is not a finite number")
	}
	return v, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokName
	tokOp
)

type calcToken struct {
	kind tokKind
	text string
	num  float64
	pos  int
}

type calcParser struct {
	src string
	pos int
	tok calcToken
	err error
}

func (p *calcParser) next() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
	start := p.pos
	if p.pos >= len(p.src) {
		p.tok = calcToken{kind: tokEOF, pos: start}
		return
	}

	c := p.src[p.pos]
	switch {
	case c >= '0' && c <= '9' || c == '.':
		for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
			p.pos++
		}
		// exponent: 1e5, 2.5E-3
		if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
			j := p.pos + 1
			if j < len(p.src) && (p.src[j] == '+' || p.src[j] == '-') {
				j++
			}
			if j < len(p.src) && isDigit(p.src[j]) {
				for j < len(p.src) && isDigit(p.src[j]) {
					j++
				}
				p.pos = j
			}
		}
		text := p.src[start:p.pos]
		v, err := strconv.ParseFloat(text, 64)
		if err != nil && p.err == nil {
			p.err = fmt.Errorf("invalid number %q", text)
		}
		p.tok = calcToken{kind: tokNum, text: text, num: v, pos: start}
	case isLetter(c):
		for p.pos < len(p.src) && (isLetter(p.src[p.pos]) || isDigit(p.src[p.pos])) {
			p.pos++
		}
		p.tok = calcToken{kind: tokName, text: strings.ToLower(p.src[start:p.pos]), pos: start}
	case c == '*' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '*':
		p.pos += 2
		p.tok = calcToken{kind: tokOp, text: "^", pos: start}
	case strings.IndexByte("+-*/^(),", c) >= 0:
		p.pos++
		p.tok = calcToken{kind: tokOp, text: string(c), pos: start}
	default:
		p.pos++
		p.tok = calcToken{kind: tokOp, text: string(c), pos: start}
		if p.err == nil {
			p.err = fmt.Errorf("unexpected character %q at position %d", c, start)
		}
	}
}

func (p *calcParser) is(op string) bool {
	return p.tok.kind == tokOp && p.tok.text == op
}

func (p *calcParser) expr() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for p.is("+") || p.is("-") {
		op := p.tok.text
		p.next()
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

func (p *calcParser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for p.is("*") || p.is("/") {
		op := p.tok.text
		p.next()
		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		if op == "*" {
			left *= right
			continue
		}
		if right == 0 {
			return 0, errDivisionByZero
		}
		left /= right
	}
	return left, nil
}

func (p *calcParser) unary() (float64, error) {
	switch {
	case p.is("-"):
		p.next()
		v, err := p.unary()
		return -v, err
	case p.is("+"):
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
	if !p.is("^") {
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
	if p.err != nil {
		return 0, p.err
	}
	tok := p.tok
	switch tok.kind {
	case tokNum:
		p.next()
		return tok.num, p.err
	case tokName:
		p.next()
		if !p.is("(") {
			if v, ok := calcConsts[tok.text]; ok {
				return v, nil
			}
			return 0, fmt.Errorf("unknown name %q", tok.text)
		}
		return p.call(tok.text)
	case tokOp:
		if tok.text == "(" {
			p.next()
			v, err := p.expr()
			if err != nil {
				return 0, err
			}
			if !p.is(")") {
				return 0, errors.New("missing closing parenthesis")
			}
			p.next()
			return v, nil
		}
		return 0, fmt.Errorf("unexpected %q at position %d", tok.text, tok.pos)
	default:
		return 0, errors.New("unexpected end of expression")
	}
}

func (p *calcParser) call(name string) (float64, error) {
	f, ok := calcFuncs[name]
	if !ok {
		return 0, fmt.Errorf("unknown function %q", name)
	}
	p.next() // (

	var args []float64
	if !p.is(")") {
		for {
			v, err := p.expr()
			if err != nil {
				return 0, err
			}
			args = append(args, v)
			if !p.is(",") {
				break
			}
			p.next()
		}
	}
	if !p.is(")") {
		return 0, fmt.Errorf("missing closing parenthesis after %s arguments", name)
	}
	p.next()

	if f.arity >= 0 && len(args) != f.arity {
		return 0, fmt.Errorf("%s expects %d argument(s), got %d", name, f.arity, len(args))
	}
	if f.arity < 0 && len(args) == 0 {
		return 0, fmt.Errorf("%s expects at least one argument", name)
	}
	return f.fn(args), nil
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' }
