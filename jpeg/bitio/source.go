// Package bitio provides the byte and bit level I/O used by the JPEG
// entropy coders. Every read or write that cannot complete reports false
// without consuming input or producing output, so callers can suspend and
// retry once more data or room is available.
package bitio

import (
	"encoding/binary"
	"log/slog"

	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

// Source is a growable input buffer fed by Write and terminated by Close.
type Source struct {
	buf    []byte
	pos    int
	closed bool

	// fakeEOI is set once the synthetic EOI has been appended.
	fakeEOI bool

	// UnreadMarker holds a marker (0xFFxx) that has been read from the
	// stream but not yet processed, or 0.
	UnreadMarker uint16

	diag *common.Diagnostics
}

// NewSource creates an empty source. Warnings go to diag, which may be nil.
func NewSource(diag *common.Diagnostics) *Source {
	return &Source{diag: diag}
}

// NewSourceBytes creates a closed source over data.
func NewSourceBytes(data []byte, diag *common.Diagnostics) *Source {
	return &Source{buf: data[:len(data):len(data)], closed: true, diag: diag}
}

// Write appends input. It never fails.
func (s *Source) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// Close marks the end of input. The first read past the end then sees a
// synthetic EOI marker instead of suspending.
func (s *Source) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *Source) Closed() bool {
	return s.closed
}

// Available returns the number of buffered, unread bytes.
func (s *Source) Available() int {
	return len(s.buf) - s.pos
}

// Pos returns the read position, for use with Rewind.
func (s *Source) Pos() int {
	return s.pos
}

// Rewind returns the read position to one obtained from Pos.
func (s *Source) Rewind(pos int) {
	s.pos = pos
}

// compactMin is the smallest consumed prefix worth discarding.
const compactMin = 4096

// Compact discards consumed input once it makes up at least half of the
// buffer, so repeated calls copy each byte a bounded number of times.
// Positions obtained from Pos before a compaction become invalid.
func (s *Source) Compact() {
	if s.pos < compactMin || s.pos < len(s.buf)-s.pos {
		return
	}
	s.buf = append([]byte(nil), s.buf[s.pos:]...)
	s.pos = 0
}

// TryGetByte returns the next byte. At the end of closed input it inserts
// an EOI marker, once, so that parsers terminate; reads past that marker
// report false.
func (s *Source) TryGetByte() (byte, bool) {
	if s.pos < len(s.buf) {
		b := s.buf[s.pos]
		s.pos++
		return b, true
	}
	if !s.closed || s.fakeEOI {
		return 0, false
	}
	s.fakeEOI = true
	s.diag.Warn(common.WarnPrematureEOF, slog.Int("offset", s.pos))
	s.buf = append(s.buf, 0xFF, byte(common.MarkerEOI&0xFF))
	s.pos++
	return 0xFF, true
}

// TryGetUint16 returns the next two bytes as a big-endian value, or false
// if both are not available.
func (s *Source) TryGetUint16() (uint16, bool) {
	if len(s.buf)-s.pos < 2 {
		return 0, false
	}
	v := binary.BigEndian.Uint16(s.buf[s.pos:])
	s.pos += 2
	return v, true
}

// TryRead returns the next n bytes, or false if they are not all available.
// The returned slice aliases the buffer and is valid until the next Write.
func (s *Source) TryRead(n int) ([]byte, bool) {
	if n < 0 || len(s.buf)-s.pos < n {
		return nil, false
	}
	p := s.buf[s.pos : s.pos+n]
	s.pos += n
	return p, true
}

// TrySkip skips n bytes. At the end of closed input the skip is truncated.
func (s *Source) TrySkip(n int) bool {
	if len(s.buf)-s.pos >= n {
		s.pos += n
		return true
	}
	if !s.closed {
		return false
	}
	s.pos = len(s.buf)
	return true
}
