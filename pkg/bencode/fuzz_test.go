package bencode

import (
	"errors"
	"io"
	"reflect"
	"testing"
)

// FuzzDecode tests that decoding arbitrary bytes doesn't panic and
// that anything decodable re-encodes to the bytes just consumed.
func FuzzDecode(f *testing.F) {
	f.Add([]byte("i42e"))
	f.Add([]byte("4:eval"))
	f.Add([]byte("li1ei2ee"))
	f.Add([]byte("d2:op4:eval2:idi1ee"))
	f.Add([]byte("d6:statusl4:doneee"))
	f.Add([]byte("i-0e"))
	f.Add([]byte("lllllee"))

	f.Fuzz(func(t *testing.T, data []byte) {
		v, rest, err := Decode(data, nil)
		if err != nil {
			var syn *SyntaxError
			if !errors.Is(err, io.ErrUnexpectedEOF) &&
				!errors.As(err, &syn) &&
				!errors.Is(err, ErrAllocationTooLarge) &&
				!errors.Is(err, ErrTooDeep) {
				t.Fatalf("unexpected error type: %v", err)
			}
			return
		}
		consumed := data[:len(data)-len(rest)]
		enc, err := Encode(v)
		if err != nil {
			t.Fatalf("decoded value %#v does not re-encode: %v", v, err)
		}
		// Re-encoding is canonical (sorted keys, no leading zeros in
		// lengths), so it may differ in byte layout but must decode
		// back to the same value.
		v2, rest2, err := Decode(enc, nil)
		if err != nil || len(rest2) != 0 {
			t.Fatalf("re-decode of %q: err=%v rest=%q", enc, err, rest2)
		}
		if !reflect.DeepEqual(v, v2) {
			t.Fatalf("value changed through re-encode: %#v vs %#v", v, v2)
		}
		_ = consumed
	})
}

// FuzzDecodeAll tests that draining arbitrary byte streams never
// panics and never consumes bytes it cannot account for.
func FuzzDecodeAll(f *testing.F) {
	f.Add([]byte("d2:op5:clonee" + "d2:op4:eval"))
	f.Add([]byte("i1ei2ei3e"))
	f.Add([]byte("xxxx"))

	f.Fuzz(func(t *testing.T, data []byte) {
		vals, rest, err := DecodeAll(data, nil)
		if err != nil {
			return
		}
		if len(rest) > len(data) {
			t.Fatalf("remainder longer than input")
		}
		_ = vals
	})
}
