package runtime

import (
	"fmt"
	"strconv"
	"strings"
)

// Form is one top-level form read from source, with the line it
// started on. Lines feed var metadata and fault locations.
type Form struct {
	Value Value
	Line  int
}

// ReadString reads every top-level form out of src. Errors are Faults
// of kind SyntaxError; the caller fills in the source label.
func ReadString(src string) ([]Form, error) {
	r := &reader{src: src, line: 1}
	var forms []Form
	for {
		r.skipSpace()
		if r.pos >= len(r.src) {
			return forms, nil
		}
		line := r.line
		v, err := r.readForm()
		if err != nil {
			return nil, err
		}
		forms = append(forms, Form{Value: v, Line: line})
	}
}

type reader struct {
	src  string
	pos  int
	line int
}

func (r *reader) fault(format string, args ...any) error {
	return &Fault{
		Kind:    "SyntaxError",
		Message: fmt.Sprintf(format, args...),
		Line:    r.line,
	}
}

func (r *reader) peek() byte {
	if r.pos >= len(r.src) {
		return 0
	}
	return r.src[r.pos]
}

func (r *reader) next() byte {
	c := r.src[r.pos]
	r.pos++
	if c == '\n' {
		r.line++
	}
	return c
}

func (r *reader) skipSpace() {
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == ',':
			r.next()
		case c == ';':
			for r.pos < len(r.src) && r.src[r.pos] != '\n' {
				r.pos++
			}
		default:
			return
		}
	}
}

func (r *reader) readForm() (Value, error) {
	r.skipSpace()
	if r.pos >= len(r.src) {
		return nil, r.fault("unexpected end of input")
	}
	switch c := r.peek(); c {
	case '(':
		r.next()
		return r.readSeq(')')
	case '[':
		r.next()
		seq, err := r.readSeq(']')
		if err != nil {
			return nil, err
		}
		return Vector(seq), nil
	case ')', ']':
		return nil, r.fault("unmatched delimiter %q", c)
	case '\'':
		r.next()
		form, err := r.readForm()
		if err != nil {
			return nil, err
		}
		return List{Symbol("quote"), form}, nil
	case '"':
		return r.readStringLit()
	default:
		return r.readAtom()
	}
}

func (r *reader) readSeq(close byte) (List, error) {
	seq := List{}
	for {
		r.skipSpace()
		if r.pos >= len(r.src) {
			return nil, r.fault("unexpected end of input, expected %q", close)
		}
		if r.peek() == close {
			r.next()
			return seq, nil
		}
		v, err := r.readForm()
		if err != nil {
			return nil, err
		}
		seq = append(seq, v)
	}
}

func (r *reader) readStringLit() (Value, error) {
	r.next() // opening quote
	var b strings.Builder
	for {
		if r.pos >= len(r.src) {
			return nil, r.fault("unterminated string")
		}
		c := r.next()
		switch c {
		case '"':
			return b.String(), nil
		case '\\':
			if r.pos >= len(r.src) {
				return nil, r.fault("unterminated string")
			}
			switch esc := r.next(); esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			default:
				return nil, r.fault("unknown escape \\%c", esc)
			}
		default:
			b.WriteByte(c)
		}
	}
}

func isTerminator(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', ',', '(', ')', '[', ']', '"', ';', 0:
		return true
	}
	return false
}

func (r *reader) readAtom() (Value, error) {
	start := r.pos
	for r.pos < len(r.src) && !isTerminator(r.src[r.pos]) {
		r.pos++
	}
	tok := r.src[start:r.pos]
	if tok == "" {
		return nil, r.fault("unexpected character %q", r.peek())
	}
	return atomValue(tok, r)
}

func atomValue(tok string, r *reader) (Value, error) {
	switch tok {
	case "nil":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if tok[0] == ':' {
		if len(tok) == 1 {
			return nil, r.fault("invalid keyword %q", tok)
		}
		return Keyword(tok[1:]), nil
	}
	if c := tok[0]; c == '-' && len(tok) > 1 || c >= '0' && c <= '9' {
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return f, nil
		}
		if c != '-' {
			return nil, r.fault("invalid number %q", tok)
		}
	}
	return Symbol(tok), nil
}
