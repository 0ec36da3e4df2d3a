package runtime

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is any Slate runtime value. Concrete kinds:
//
//	nil       — nil
//	bool      — booleans
//	int64     — integers
//	float64   — floating point
//	string    — strings
//	Symbol    — identifiers, possibly namespace-qualified ("ns/name")
//	Keyword   — keyword literals (":k", ":ns/k", stored without the colon)
//	List      — evaluated as calls and special forms
//	Vector    — self-evaluating sequential collection
//	*Fn       — user-defined function
//	*Builtin  — host function
//	*Var      — a resolved var reference
type Value = any

// Symbol is an identifier token, optionally qualified as "ns/name".
type Symbol string

// Keyword is a keyword value. The sigil is not stored: the token :foo
// is Keyword("foo"), :ns/foo is Keyword("ns/foo").
type Keyword string

// List is the call/special-form sequence type.
type List []Value

// Vector is the self-evaluating sequential collection.
type Vector []Value

// Fn is a user-defined function or macro body.
type Fn struct {
	Name   string
	Params []string
	Rest   string // name bound to surplus args after "&", empty if fixed arity
	Body   []Value
	scope  *scope
}

// Builtin is a function implemented by the host.
type Builtin struct {
	Name string
	Fn   func(ec *evalCtx, args []Value) (Value, error)
}

// Split separates a symbol into its namespace part and name part.
// The namespace part is empty for bare symbols. A leading or lone "/"
// is the division symbol, not a qualifier.
func (s Symbol) Split() (ns, name string) {
	str := string(s)
	if i := strings.Index(str, "/"); i > 0 && i < len(str)-1 {
		return str[:i], str[i+1:]
	}
	return "", str
}

// Split separates a keyword into namespace and name parts, the same
// way Symbol.Split does.
func (k Keyword) Split() (ns, name string) {
	return Symbol(k).Split()
}

// PrintString renders v in readable form: strings are quoted, so the
// result reads back as the same value where possible.
func PrintString(v Value) string {
	var b strings.Builder
	printValue(&b, v, true)
	return b.String()
}

// DisplayString renders v for human display: strings appear without
// quotes. Used by print/println and str.
func DisplayString(v Value) string {
	var b strings.Builder
	printValue(&b, v, false)
	return b.String()
}

func printValue(b *strings.Builder, v Value, readable bool) {
	switch v := v.(type) {
	case nil:
		b.WriteString("nil")
	case bool:
		if v {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case int64:
		b.WriteString(strconv.FormatInt(v, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case string:
		if readable {
			b.WriteString(strconv.Quote(v))
		} else {
			b.WriteString(v)
		}
	case Symbol:
		b.WriteString(string(v))
	case Keyword:
		b.WriteByte(':')
		b.WriteString(string(v))
	case List:
		b.WriteByte('(')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(' ')
			}
			printValue(b, item, readable)
		}
		b.WriteByte(')')
	case Vector:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(' ')
			}
			printValue(b, item, readable)
		}
		b.WriteByte(']')
	case *Fn:
		name := v.Name
		if name == "" {
			name = "anonymous"
		}
		fmt.Fprintf(b, "#<fn %s>", name)
	case *Builtin:
		fmt.Fprintf(b, "#<builtin %s>", v.Name)
	case *Var:
		fmt.Fprintf(b, "#'%s/%s", v.Namespace().Name(), v.Name())
	default:
		fmt.Fprintf(b, "#<%T %v>", v, v)
	}
}

// Truthy reports logical truth: everything except nil and false.
func Truthy(v Value) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}
