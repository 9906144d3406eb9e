// Package script recognizes the three action primitives of a script:
//
//	click('#submit-button', 'submitBtn')
//	fill('#email', 'test@example.com', 'emailInput')
//	wait(1000)
//
// One call per line. Blank lines and lines starting with '#' are ignored,
// as is a trailing '# comment' after a call. The locator name argument is
// optional and may also be passed as name=... or locator_name=...
package script

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"selfheal/domain/entities"
)

// maxWaitMillis is the longest wait a time.Duration can hold
const maxWaitMillis = math.MaxInt64 / int64(time.Millisecond)

// SyntaxError reports a malformed line
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Parse turns script source into an ordered list of actions
func Parse(code string) ([]entities.Action, error) {
	var actions []entities.Action

	for i, raw := range strings.Split(code, "\n") {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		call, err := parseCall(line)
		if err != nil {
			return nil, &SyntaxError{Line: lineNo, Msg: err.Error()}
		}

		action, err := call.toAction()
		if err != nil {
			return nil, &SyntaxError{Line: lineNo, Msg: err.Error()}
		}
		actions = append(actions, action)
	}

	if len(actions) == 0 {
		return nil, &SyntaxError{Line: 0, Msg: "script contains no actions"}
	}
	return actions, nil
}

type argKind int

const (
	argString argKind = iota
	argNumber
)

type arg struct {
	kind    argKind
	keyword string
	text    string
	number  int
}

type call struct {
	fn   string
	args []arg
}

// toAction maps positional and keyword arguments onto an Action
func (c call) toAction() (entities.Action, error) {
	var positional []arg
	keywords := make(map[string]arg)
	for _, a := range c.args {
		if a.keyword == "" {
			if len(keywords) > 0 {
				return entities.Action{}, fmt.Errorf("%s: positional argument after keyword argument", c.fn)
			}
			positional = append(positional, a)
			continue
		}
		if _, dup := keywords[a.keyword]; dup {
			return entities.Action{}, fmt.Errorf("%s: duplicate argument %q", c.fn, a.keyword)
		}
		keywords[a.keyword] = a
	}

	switch c.fn {
	case "click":
		params, err := bind(c.fn, positional, keywords, []string{"selector", "name"}, 1)
		if err != nil {
			return entities.Action{}, err
		}
		selector, err := params.str("selector")
		if err != nil {
			return entities.Action{}, err
		}
		name, err := params.str("name")
		if err != nil {
			return entities.Action{}, err
		}
		return entities.Click(selector, name), nil

	case "fill":
		params, err := bind(c.fn, positional, keywords, []string{"selector", "value", "name"}, 2)
		if err != nil {
			return entities.Action{}, err
		}
		selector, err := params.str("selector")
		if err != nil {
			return entities.Action{}, err
		}
		value, err := params.str("value")
		if err != nil {
			return entities.Action{}, err
		}
		name, err := params.str("name")
		if err != nil {
			return entities.Action{}, err
		}
		return entities.Fill(selector, value, name), nil

	case "wait":
		params, err := bind(c.fn, positional, keywords, []string{"ms"}, 1)
		if err != nil {
			return entities.Action{}, err
		}
		a := params["ms"]
		if a.kind != argNumber {
			return entities.Action{}, fmt.Errorf("wait: milliseconds must be a number")
		}
		if int64(a.number) > maxWaitMillis {
			return entities.Action{}, fmt.Errorf("wait: %d milliseconds is out of range", a.number)
		}
		return entities.Wait(a.number), nil

	default:
		return entities.Action{}, fmt.Errorf("unknown action %q (expected click, fill or wait)", c.fn)
	}
}

type boundArgs map[string]arg

func (b boundArgs) str(name string) (string, error) {
	a, ok := b[name]
	if !ok {
		return "", nil
	}
	if a.kind != argString {
		return "", fmt.Errorf("%s must be a string", name)
	}
	return a.text, nil
}

var keywordAliases = map[string]string{
	"locator_name": "name",
	"milliseconds": "ms",
}

// bind assigns arguments to parameter names, the first `required` are mandatory
func bind(fn string, positional []arg, keywords map[string]arg, params []string, required int) (boundArgs, error) {
	if len(positional) > len(params) {
		return nil, fmt.Errorf("%s: expected at most %d arguments, got %d", fn, len(params), len(positional))
	}

	out := make(boundArgs, len(params))
	for i, a := range positional {
		out[params[i]] = a
	}
	for key, a := range keywords {
		name := key
		if alias, ok := keywordAliases[key]; ok {
			name = alias
		}
		if !contains(params, name) {
			return nil, fmt.Errorf("%s: unexpected argument %q", fn, key)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%s: argument %q given twice", fn, name)
		}
		out[name] = a
	}
	for _, p := range params[:required] {
		if _, ok := out[p]; !ok {
			return nil, fmt.Errorf("%s: missing %s", fn, p)
		}
	}
	if sel, ok := out["selector"]; ok && sel.kind == argString && strings.TrimSpace(sel.text) == "" {
		return nil, fmt.Errorf("%s: selector must not be empty", fn)
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// parseCall parses `ident(arg, arg, ...)` followed by an optional comment
func parseCall(line string) (call, error) {
	l := &lexer{src: line}

	fn := l.ident()
	if fn == "" {
		return call{}, fmt.Errorf("expected an action name")
	}
	// page.click(...) is accepted for compatibility with recorded scripts
	if fn == "page" && l.peek() == '.' {
		l.pos++
		fn = l.ident()
	}

	l.skipSpace()
	if !l.consume('(') {
		return call{}, fmt.Errorf("expected '(' after %s", fn)
	}

	var args []arg
	l.skipSpace()
	if !l.consume(')') {
		for {
			a, err := l.arg()
			if err != nil {
				return call{}, err
			}
			args = append(args, a)

			l.skipSpace()
			if l.consume(')') {
				break
			}
			if !l.consume(',') {
				return call{}, fmt.Errorf("expected ',' or ')' at column %d", l.pos+1)
			}
			l.skipSpace()
		}
	}

	l.skipSpace()
	rest := l.src[l.pos:]
	rest = strings.TrimPrefix(rest, ";")
	rest = strings.TrimSpace(rest)
	if rest != "" && !strings.HasPrefix(rest, "#") {
		return call{}, fmt.Errorf("unexpected text after call: %q", rest)
	}

	return call{fn: fn, args: args}, nil
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) consume(c byte) bool {
	if l.peek() == c {
		l.pos++
		return true
	}
	return false
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\r') {
		l.pos++
	}
}

func (l *lexer) ident() string {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (l.pos > start && c >= '0' && c <= '9') {
			l.pos++
			continue
		}
		break
	}
	return l.src[start:l.pos]
}

func (l *lexer) arg() (arg, error) {
	l.skipSpace()

	// keyword argument
	save := l.pos
	if kw := l.ident(); kw != "" {
		l.skipSpace()
		if l.consume('=') {
			l.skipSpace()
			a, err := l.literal()
			if err != nil {
				return arg{}, err
			}
			a.keyword = kw
			return a, nil
		}
		l.pos = save
	}

	return l.literal()
}

func (l *lexer) literal() (arg, error) {
	switch c := l.peek(); {
	case c == '\'' || c == '"':
		s, err := l.quoted(c)
		if err != nil {
			return arg{}, err
		}
		return arg{kind: argString, text: s}, nil
	case c == '-' || (c >= '0' && c <= '9'):
		start := l.pos
		l.pos++
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			l.pos++
		}
		n, err := strconv.Atoi(l.src[start:l.pos])
		if err != nil {
			return arg{}, fmt.Errorf("invalid number %q", l.src[start:l.pos])
		}
		if n < 0 {
			return arg{}, fmt.Errorf("negative number %d", n)
		}
		return arg{kind: argNumber, number: n}, nil
	case c == 0:
		return arg{}, fmt.Errorf("unexpected end of line")
	default:
		return arg{}, fmt.Errorf("unexpected character %q at column %d", c, l.pos+1)
	}
}

func (l *lexer) quoted(q byte) (string, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\' && l.pos+1 < len(l.src):
			next := l.src[l.pos+1]
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(next)
			}
			l.pos += 2
		case c == q:
			l.pos++
			return b.String(), nil
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return "", fmt.Errorf("unterminated string starting at column %d", start+1)
}
