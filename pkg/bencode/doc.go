// Package bencode implements the wire codec for the Slate remote
// evaluation protocol.
//
// Every message on a connection is one self-delimiting bencode value:
//
//	i42e                integer (decimal, optional leading '-')
//	3:foo               byte string (length prefix + raw bytes)
//	l3:fooi1ee          list (ordered concatenation of elements)
//	d2:op4:evale        dictionary (byte-sorted keys)
//
// Decoding distinguishes two failure modes. Short input — the buffer
// ends in the middle of a value — returns io.ErrUnexpectedEOF and the
// caller retries once more bytes arrive. Malformed input — an unknown
// tag byte or bad length syntax — returns a *SyntaxError, which is
// fatal to the stream.
//
// DecodeAll drains every complete value out of a buffer and hands back
// the unconsumed tail, so a connection can feed it arbitrary read
// chunks and carry the remainder between reads.
package bencode
