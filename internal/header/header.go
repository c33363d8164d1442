// Package header declares the interface to the Crypt4GH header parser,
// an external library out of scope for this worker (spec.md §1). The
// parser reads the framing that precedes an encrypted payload from a
// stream and leaves the cursor positioned at the start of the
// ciphertext.
package header

import "io"

// Parser splits a Crypt4GH header from the remainder of a stream.
// Beginning is any bytes read before the header proper (a quirk of some
// implementations that peek at the stream first); Header is the header
// blob itself. Together, Beginning+Header form the exact byte prefix the
// worker must persist; r is left positioned at the payload start.
type Parser interface {
	ReadHeader(r io.Reader) (beginning []byte, header []byte, err error)
}
