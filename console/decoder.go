package console

import (
	"strings"
	"unicode/utf8"
)

// streamDecoder converts a byte stream into text one chunk at a time. The
// transport may split a multi-byte character across frames, so a trailing
// incomplete sequence is carried over and completed by the next chunk's
// leading bytes. Invalid bytes become U+FFFD instead of an error, so one
// corrupt chunk never interrupts the stream.
//
// A decoder belongs to exactly one connection. Sharing one across
// connections would leak a partial character from one session into another.
type streamDecoder struct {
	carry []byte // up to 3 pending bytes of an incomplete trailing sequence
}

func newStreamDecoder() *streamDecoder {
	return &streamDecoder{}
}

// Write decodes p and returns the text that is complete so far. The result
// may be empty when p only extends a pending multi-byte sequence.
func (d *streamDecoder) Write(p []byte) string {
	if len(d.carry) > 0 {
		p = append(d.carry, p...)
		d.carry = nil
	}
	if keep := incompleteTrailing(p); keep > 0 {
		d.carry = append([]byte(nil), p[len(p)-keep:]...)
		p = p[:len(p)-keep]
	}
	return replaceInvalid(p)
}

// Pending reports how many bytes are buffered waiting for the rest of a
// multi-byte sequence.
func (d *streamDecoder) Pending() int {
	return len(d.carry)
}

// Reset drops any buffered partial sequence. Called when the connection
// closes; leftover bytes belong to a stream that no longer exists.
func (d *streamDecoder) Reset() {
	d.carry = nil
}

// incompleteTrailing returns the number of trailing bytes of p that begin a
// multi-byte sequence whose continuation bytes have not arrived yet, or 0
// when p ends on a complete (or undecodable) boundary.
func incompleteTrailing(p []byte) int {
	n := len(p)
	for back := 1; back <= 3 && back <= n; back++ {
		b := p[n-back]
		if b&0xC0 == 0x80 {
			// Continuation byte, keep scanning for the lead.
			continue
		}
		if need := seqLen(b); need > back {
			return back
		}
		return 0
	}
	return 0
}

// seqLen returns the encoded length implied by a lead byte, or 0 when b
// cannot start a sequence.
func seqLen(b byte) int {
	switch {
	case b&0x80 == 0x00:
		return 1
	case b&0xE0 == 0xC0:
		return 2
	case b&0xF0 == 0xE0:
		return 3
	case b&0xF8 == 0xF0:
		return 4
	default:
		return 0
	}
}

// replaceInvalid converts p to a string, substituting U+FFFD for each byte
// that is not part of a valid sequence.
func replaceInvalid(p []byte) string {
	if utf8.Valid(p) {
		return string(p)
	}
	var b strings.Builder
	b.Grow(len(p))
	for len(p) > 0 {
		r, size := utf8.DecodeRune(p)
		b.WriteRune(r)
		p = p[size:]
	}
	return b.String()
}
