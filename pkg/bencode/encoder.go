package bencode

import (
	"fmt"
	"strconv"
)

// Encoder appends encoded values to an internal buffer. It is designed
// for reuse across messages on one connection: Reset keeps the
// underlying allocation.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an encoder with a default initial capacity.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 256)}
}

// Reset resets the encoder to empty, reusing the underlying buffer.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the encoded bytes. The slice is valid until the next
// call to Reset or AppendValue.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes currently encoded.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// AppendValue encodes v onto the buffer.
//
// Supported kinds: integers, strings/[]byte, []any and []string lists,
// and map[string]any dictionaries. Dictionary keys are emitted in
// byte-sorted order so encoding is deterministic regardless of map
// iteration order. nil encodes as the empty string.
func (e *Encoder) AppendValue(v any) error {
	switch v := v.(type) {
	case nil:
		e.buf = append(e.buf, '0', ':')
	case int:
		e.appendInt(int64(v))
	case int64:
		e.appendInt(v)
	case uint:
		e.appendInt(int64(v))
	case string:
		e.appendString(v)
	case []byte:
		e.buf = strconv.AppendInt(e.buf, int64(len(v)), 10)
		e.buf = append(e.buf, ':')
		e.buf = append(e.buf, v...)
	case []any:
		e.buf = append(e.buf, 'l')
		for _, item := range v {
			if err := e.AppendValue(item); err != nil {
				return err
			}
		}
		e.buf = append(e.buf, 'e')
	case []string:
		e.buf = append(e.buf, 'l')
		for _, item := range v {
			e.appendString(item)
		}
		e.buf = append(e.buf, 'e')
	case map[string]any:
		e.buf = append(e.buf, 'd')
		for _, k := range sortedKeys(v) {
			e.appendString(k)
			if err := e.AppendValue(v[k]); err != nil {
				return err
			}
		}
		e.buf = append(e.buf, 'e')
	default:
		return fmt.Errorf("bencode: cannot encode value of type %T", v)
	}
	return nil
}

func (e *Encoder) appendInt(v int64) {
	e.buf = append(e.buf, 'i')
	e.buf = strconv.AppendInt(e.buf, v, 10)
	e.buf = append(e.buf, 'e')
}

func (e *Encoder) appendString(s string) {
	e.buf = strconv.AppendInt(e.buf, int64(len(s)), 10)
	e.buf = append(e.buf, ':')
	e.buf = append(e.buf, s...)
}

// Encode encodes a single value to a fresh byte slice.
func Encode(v any) ([]byte, error) {
	e := NewEncoder()
	if err := e.AppendValue(v); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}
