package bencode

import (
	"errors"
	"fmt"
	"io"
	"sort"
)

// Allocation limits to prevent OOM via hostile length prefixes.
const (
	// DefaultMaxAllocation is the maximum byte-string length accepted
	// by the decoder (4MB). Large enough for any realistic code body.
	DefaultMaxAllocation = 4 * 1024 * 1024

	// MaxNestingDepth bounds recursion for nested lists/dictionaries.
	MaxNestingDepth = 64
)

// Common decoding errors.
var (
	ErrAllocationTooLarge = errors.New("bencode: declared length exceeds limit")
	ErrTooDeep            = errors.New("bencode: value nested too deeply")
)

// SyntaxError reports malformed input: an unrecognized tag byte, a
// non-numeric length prefix, or similar. It is fatal to the stream,
// unlike io.ErrUnexpectedEOF which only means "read more bytes".
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("bencode: %s at offset %d", e.Msg, e.Offset)
}

// DecodeOptions controls post-processing of decoded values.
type DecodeOptions struct {
	// StringFn, when set, is applied to every decoded byte-string
	// payload value. Dictionary keys are never passed through it; they
	// always decode as string. The default converts to string.
	StringFn func([]byte) any
}

// decoder is a single-pass recursive-descent parser over a byte slice.
type decoder struct {
	buf  []byte
	pos  int
	opts *DecodeOptions
}

// Decode parses one complete value from data. It returns the value and
// the unconsumed remainder of data.
//
// If data ends mid-value the error is io.ErrUnexpectedEOF and the
// caller should retry with more input appended. Malformed input yields
// a *SyntaxError.
func Decode(data []byte, opts *DecodeOptions) (any, []byte, error) {
	d := &decoder{buf: data, opts: opts}
	v, err := d.value(0)
	if err != nil {
		return nil, data, err
	}
	return v, data[d.pos:], nil
}

// DecodeAll parses every complete value out of data. It returns the
// decoded values in order plus the unconsumed tail; the caller must
// prepend the tail to the next chunk read from the transport.
//
// A *SyntaxError aborts immediately; io.ErrUnexpectedEOF is not an
// error here, it just terminates the drain.
func DecodeAll(data []byte, opts *DecodeOptions) ([]any, []byte, error) {
	var vals []any
	rest := data
	for len(rest) > 0 {
		v, tail, err := Decode(rest, opts)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return vals, rest, nil
			}
			return vals, rest, err
		}
		vals = append(vals, v)
		rest = tail
	}
	return vals, rest, nil
}

func (d *decoder) value(depth int) (any, error) {
	if depth > MaxNestingDepth {
		return nil, ErrTooDeep
	}
	if d.pos >= len(d.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	switch c := d.buf[d.pos]; {
	case c == 'i':
		d.pos++
		return d.integer()
	case c >= '0' && c <= '9':
		b, err := d.byteString()
		if err != nil {
			return nil, err
		}
		if d.opts != nil && d.opts.StringFn != nil {
			return d.opts.StringFn(b), nil
		}
		return string(b), nil
	case c == 'l':
		d.pos++
		return d.list(depth)
	case c == 'd':
		d.pos++
		return d.dict(depth)
	default:
		return nil, &SyntaxError{Offset: d.pos, Msg: fmt.Sprintf("unknown type tag %q", c)}
	}
}

// integer parses the body of i<decimal>e with the leading 'i' consumed.
func (d *decoder) integer() (int64, error) {
	start := d.pos
	neg := false
	if d.pos < len(d.buf) && d.buf[d.pos] == '-' {
		neg = true
		d.pos++
	}
	var n int64
	digits := 0
	for d.pos < len(d.buf) {
		c := d.buf[d.pos]
		if c == 'e' {
			if digits == 0 {
				return 0, &SyntaxError{Offset: start, Msg: "integer with no digits"}
			}
			d.pos++
			if neg {
				n = -n
			}
			return n, nil
		}
		if c < '0' || c > '9' {
			return 0, &SyntaxError{Offset: d.pos, Msg: fmt.Sprintf("non-digit %q in integer", c)}
		}
		n = n*10 + int64(c-'0')
		digits++
		d.pos++
	}
	return 0, io.ErrUnexpectedEOF
}

// byteString parses <length>:<bytes> from the current position.
func (d *decoder) byteString() ([]byte, error) {
	start := d.pos
	var length int64
	digits := 0
	for {
		if d.pos >= len(d.buf) {
			return nil, io.ErrUnexpectedEOF
		}
		c := d.buf[d.pos]
		if c == ':' {
			if digits == 0 {
				return nil, &SyntaxError{Offset: start, Msg: "string length with no digits"}
			}
			d.pos++
			break
		}
		if c < '0' || c > '9' {
			return nil, &SyntaxError{Offset: d.pos, Msg: fmt.Sprintf("non-digit %q in string length", c)}
		}
		length = length*10 + int64(c-'0')
		digits++
		if length > DefaultMaxAllocation {
			return nil, ErrAllocationTooLarge
		}
		d.pos++
	}
	if int64(len(d.buf)-d.pos) < length {
		return nil, io.ErrUnexpectedEOF
	}
	n := int(length)
	b := make([]byte, n)
	copy(b, d.buf[d.pos:d.pos+n])
	d.pos += n
	return b, nil
}

func (d *decoder) list(depth int) ([]any, error) {
	vals := []any{}
	for {
		if d.pos >= len(d.buf) {
			return nil, io.ErrUnexpectedEOF
		}
		if d.buf[d.pos] == 'e' {
			d.pos++
			return vals, nil
		}
		v, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
}

func (d *decoder) dict(depth int) (map[string]any, error) {
	m := map[string]any{}
	for {
		if d.pos >= len(d.buf) {
			return nil, io.ErrUnexpectedEOF
		}
		if d.buf[d.pos] == 'e' {
			d.pos++
			return m, nil
		}
		// Keys are byte strings, decoded without StringFn.
		if c := d.buf[d.pos]; c < '0' || c > '9' {
			return nil, &SyntaxError{Offset: d.pos, Msg: fmt.Sprintf("dictionary key must be a string, got tag %q", c)}
		}
		key, err := d.byteString()
		if err != nil {
			return nil, err
		}
		v, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		m[string(key)] = v
	}
}

// sortedKeys returns the dictionary keys in canonical wire order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
