package temme

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/corey/temmekit/internal/ports"
)

// Parse parses selector text into a Program and runs the structural checks.
// Every failure is a *ports.SyntaxError; grammar failures carry a location,
// structural ones do not.
func Parse(src string) (*Program, error) {
	p := &parser{src: src, line: 1, col: 1}
	prog, err := p.program()
	if err != nil {
		return nil, err
	}
	if err := check(prog); err != nil {
		return nil, err
	}
	return prog, nil
}

// parser is a hand-written recursive descent parser over runes. It tracks
// line and UTF-16 column as it advances so errors map directly onto editor
// positions.
type parser struct {
	src  string
	pos  int
	line int
	col  int
}

type state struct{ pos, line, col int }

func (p *parser) save() state     { return state{p.pos, p.line, p.col} }
func (p *parser) restore(s state) { p.pos, p.line, p.col = s.pos, s.line, s.col }

func (p *parser) mark() ports.SourcePos {
	return ports.SourcePos{Line: p.line, Column: p.col, Offset: p.pos}
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() rune {
	if p.eof() {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(p.src[p.pos:])
	return r
}

func (p *parser) peekN(n int) string {
	if p.pos+n > len(p.src) {
		return p.src[p.pos:]
	}
	return p.src[p.pos : p.pos+n]
}

func (p *parser) next() rune {
	r, size := utf8.DecodeRuneInString(p.src[p.pos:])
	p.pos += size
	if r == '\n' {
		p.line++
		p.col = 1
	} else {
		p.col += utf16Len(r)
	}
	return r
}

func utf16Len(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}

// fail reports that expected was wanted at the current position.
func (p *parser) fail(expected string) error {
	start := p.mark()
	end := start
	found := "end of input"
	if !p.eof() {
		s := p.save()
		r := p.next()
		end = p.mark()
		p.restore(s)
		found = strconv.Quote(string(r))
	}
	return &ports.SyntaxError{
		Message:  fmt.Sprintf("Expected %s but %s found.", expected, found),
		Location: &ports.SourceSpan{Start: start, End: end},
	}
}

// skipSpace consumes whitespace and comments. It reports whether anything
// was consumed.
func (p *parser) skipSpace() (bool, error) {
	start := p.pos
	for !p.eof() {
		switch {
		case unicode.IsSpace(p.peek()):
			p.next()
		case p.peekN(2) == "//":
			for !p.eof() && p.peek() != '\n' {
				p.next()
			}
		case p.peekN(2) == "/*":
			p.next()
			p.next()
			for {
				if p.eof() {
					return true, p.fail(`"*/"`)
				}
				if p.peekN(2) == "*/" {
					p.next()
					p.next()
					break
				}
				p.next()
			}
		default:
			return p.pos > start, nil
		}
	}
	return p.pos > start, nil
}

func (p *parser) program() (*Program, error) {
	prog := &Program{}
	for {
		if _, err := p.skipSpace(); err != nil {
			return nil, err
		}
		if p.eof() {
			return prog, nil
		}
		st, err := p.statement(false)
		if err != nil {
			return nil, err
		}
		if st != nil {
			prog.Stmts = append(prog.Stmts, st)
		}
	}
}

// statement parses one statement. A nil Stmt with nil error is an empty
// statement (";").
func (p *parser) statement(inBody bool) (Stmt, error) {
	switch p.peek() {
	case ';':
		p.next()
		return nil, nil
	case '$':
		return p.dollar(inBody)
	default:
		return p.rule()
	}
}

// dollar parses "$name = literal" anywhere, or "$name|filters" inside a body.
func (p *parser) dollar(inBody bool) (Stmt, error) {
	start := p.mark()
	p.next()
	name := p.varName()
	if name == "" {
		return nil, p.fail("capture name")
	}
	if _, err := p.skipSpace(); err != nil {
		return nil, err
	}
	if p.peek() == '=' {
		p.next()
		if _, err := p.skipSpace(); err != nil {
			return nil, err
		}
		v, err := p.literal()
		if err != nil {
			return nil, err
		}
		return &Assignment{Name: name, Value: v, Pos: start}, nil
	}
	if !inBody {
		return nil, p.fail(`"="`)
	}
	filters, err := p.filters()
	if err != nil {
		return nil, err
	}
	return &ContentCapture{Name: name, Filters: filters, Pos: start}, nil
}

func (p *parser) filters() ([]Filter, error) {
	var out []Filter
	for {
		s := p.save()
		if _, err := p.skipSpace(); err != nil {
			return nil, err
		}
		if p.peek() != '|' {
			p.restore(s)
			return out, nil
		}
		p.next()
		if _, err := p.skipSpace(); err != nil {
			return nil, err
		}
		pos := p.mark()
		name := p.varName()
		if name == "" {
			return nil, p.fail("filter name")
		}
		out = append(out, Filter{Name: name, Pos: pos})
	}
}

func (p *parser) literal() (any, error) {
	r := p.peek()
	switch {
	case r == '"' || r == '\'':
		return p.quoted()
	case r == '-' || (r >= '0' && r <= '9'):
		return p.number()
	case isIdentStart(r):
		s := p.save()
		word := p.ident()
		switch word {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}
		p.restore(s)
	}
	return nil, p.fail("literal")
}

func (p *parser) quoted() (string, error) {
	q := p.next()
	var b strings.Builder
	for {
		if p.eof() || p.peek() == '\n' {
			return "", p.fail(strconv.Quote(string(q)))
		}
		r := p.next()
		switch r {
		case q:
			return b.String(), nil
		case '\\':
			if p.eof() {
				return "", p.fail("escape sequence")
			}
			switch e := p.next(); e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteRune(e)
			}
		default:
			b.WriteRune(r)
		}
	}
}

func (p *parser) number() (float64, error) {
	start := p.pos
	s := p.save()
	if p.peek() == '-' {
		p.next()
	}
	digits := 0
	for r := p.peek(); r >= '0' && r <= '9'; r = p.peek() {
		p.next()
		digits++
	}
	if digits == 0 {
		p.restore(s)
		return 0, p.fail("literal")
	}
	if p.peek() == '.' {
		p.next()
		frac := 0
		for r := p.peek(); r >= '0' && r <= '9'; r = p.peek() {
			p.next()
			frac++
		}
		if frac == 0 {
			return 0, p.fail("digit")
		}
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		p.restore(s)
		return 0, p.fail("literal")
	}
	return v, nil
}

func (p *parser) rule() (Stmt, error) {
	start := p.mark()
	parts, err := p.selector()
	if err != nil {
		return nil, err
	}
	r := &SelectorRule{Parts: parts, Pos: start}
	if _, err := p.skipSpace(); err != nil {
		return nil, err
	}
	if p.peek() == '@' {
		p.next()
		r.Array = true
		r.ArrayName = p.varName()
		if _, err := p.skipSpace(); err != nil {
			return nil, err
		}
	}
	if p.peek() != '{' {
		return r, nil
	}
	p.next()
	for {
		if _, err := p.skipSpace(); err != nil {
			return nil, err
		}
		if p.eof() {
			return nil, p.fail(`"}"`)
		}
		if p.peek() == '}' {
			p.next()
			return r, nil
		}
		st, err := p.statement(true)
		if err != nil {
			return nil, err
		}
		if st != nil {
			r.Children = append(r.Children, st)
		}
	}
}

func (p *parser) selector() ([]Part, error) {
	first, err := p.compound()
	if err != nil {
		return nil, err
	}
	parts := []Part{first}
	for {
		s := p.save()
		ws, err := p.skipSpace()
		if err != nil {
			return nil, err
		}
		var comb string
		switch r := p.peek(); {
		case r == '>' || r == '+' || r == '~':
			p.next()
			comb = string(r)
			if _, err := p.skipSpace(); err != nil {
				return nil, err
			}
		case ws && isCompoundStart(r):
			comb = " "
		default:
			p.restore(s)
			return parts, nil
		}
		c, err := p.compound()
		if err != nil {
			return nil, err
		}
		c.Combinator = comb
		parts = append(parts, c)
	}
}

func (p *parser) compound() (Part, error) {
	c := Part{Pos: p.mark()}
	var b strings.Builder
	switch r := p.peek(); {
	case r == '*':
		p.next()
		b.WriteByte('*')
	case isIdentStart(r):
		b.WriteString(p.ident())
	}
	for {
		switch p.peek() {
		case '.', '#':
			sigil := p.next()
			name := p.ident()
			if name == "" {
				if sigil == '.' {
					return c, p.fail("class name")
				}
				return c, p.fail("id")
			}
			b.WriteRune(sigil)
			b.WriteString(name)
		case '[':
			css, capture, err := p.attribute()
			if err != nil {
				return c, err
			}
			b.WriteString(css)
			if capture != nil {
				c.Captures = append(c.Captures, *capture)
			}
		case ':':
			css, err := p.pseudo()
			if err != nil {
				return c, err
			}
			b.WriteString(css)
		default:
			if b.Len() == 0 {
				return c, p.fail("selector")
			}
			c.CSS = b.String()
			return c, nil
		}
	}
}

var attrOps = []string{"~=", "^=", "$=", "*=", "|=", "="}

// attribute parses "[name]", "[name op value]" or the capture "[name=$var]".
func (p *parser) attribute() (string, *AttrCapture, error) {
	p.next()
	if _, err := p.skipSpace(); err != nil {
		return "", nil, err
	}
	name := p.ident()
	if name == "" {
		return "", nil, p.fail("attribute name")
	}
	if _, err := p.skipSpace(); err != nil {
		return "", nil, err
	}
	if p.peek() == ']' {
		p.next()
		return "[" + name + "]", nil, nil
	}
	op := ""
	for _, o := range attrOps {
		if strings.HasPrefix(p.src[p.pos:], o) {
			op = o
			break
		}
	}
	if op == "" {
		return "", nil, p.fail(`"]"`)
	}
	for range op {
		p.next()
	}
	if _, err := p.skipSpace(); err != nil {
		return "", nil, err
	}

	var (
		css     string
		capture *AttrCapture
	)
	if op == "=" && p.peek() == '$' {
		p.next()
		v := p.varName()
		if v == "" {
			return "", nil, p.fail("capture name")
		}
		filters, err := p.filters()
		if err != nil {
			return "", nil, err
		}
		capture = &AttrCapture{Attr: name, Name: v, Filters: filters}
		css = "[" + name + "]"
	} else {
		var value string
		if r := p.peek(); r == '"' || r == '\'' {
			v, err := p.quoted()
			if err != nil {
				return "", nil, err
			}
			value = v
		} else {
			start := p.pos
			for !p.eof() && p.peek() != ']' && !unicode.IsSpace(p.peek()) {
				p.next()
			}
			value = p.src[start:p.pos]
			if value == "" {
				return "", nil, p.fail("attribute value")
			}
		}
		css = "[" + name + op + cssString(value) + "]"
	}
	if _, err := p.skipSpace(); err != nil {
		return "", nil, err
	}
	if p.peek() != ']' {
		return "", nil, p.fail(`"]"`)
	}
	p.next()
	return css, capture, nil
}

// pseudo copies ":name" or "::name" plus an optional balanced argument list.
func (p *parser) pseudo() (string, error) {
	start := p.pos
	p.next()
	if p.peek() == ':' {
		p.next()
	}
	if p.ident() == "" {
		return "", p.fail("pseudo-class name")
	}
	if p.peek() == '(' {
		depth := 0
		for {
			if p.eof() {
				return "", p.fail(`")"`)
			}
			r := p.next()
			if r == '(' {
				depth++
			} else if r == ')' {
				depth--
				if depth == 0 {
					break
				}
			}
		}
	}
	return p.src[start:p.pos], nil
}

func (p *parser) ident() string {
	start := p.pos
	if !isIdentStart(p.peek()) {
		return ""
	}
	for !p.eof() && isIdentPart(p.peek()) {
		p.next()
	}
	return p.src[start:p.pos]
}

// varName is a capture or filter name: letters, digits, underscore.
func (p *parser) varName() string {
	start := p.pos
	r := p.peek()
	if !(unicode.IsLetter(r) || r == '_') {
		return ""
	}
	for r := p.peek(); unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'; r = p.peek() {
		p.next()
	}
	return p.src[start:p.pos]
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '-'
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

func isCompoundStart(r rune) bool {
	return isIdentStart(r) || r == '*' || r == '.' || r == '#' || r == '[' || r == ':'
}

func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
