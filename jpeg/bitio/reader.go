package bitio

import (
	"log/slog"

	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

// minGetBits is the fill target; any request of up to 16 bits plus a
// lookahead peek is satisfied from a full buffer.
const minGetBits = 57

// ReaderState is the bit accumulator: the low n bits of acc are unread,
// most significant first.
type ReaderState struct {
	acc uint64
	n   int
}

// Reader fetches bits from an entropy-coded segment. Reads operate on a
// working state opened by Begin; Commit makes it permanent and Rollback
// restores the permanent state and the source position.
type Reader struct {
	src  *Source
	diag *common.Diagnostics

	perm ReaderState
	work ReaderState
	mark int

	// insufficient is set once the segment ran out of data and zero bits
	// are being substituted.
	insufficient bool
}

// NewReader creates a bit reader over src.
func NewReader(src *Source, diag *common.Diagnostics) *Reader {
	return &Reader{src: src, diag: diag}
}

// Source returns the underlying byte source.
func (r *Reader) Source() *Source {
	return r.src
}

// Reset empties the bit buffer and clears the insufficient-data flag.
// Called at the start of each scan.
func (r *Reader) Reset() {
	r.perm = ReaderState{}
	r.work = ReaderState{}
	r.insufficient = false
}

// Insufficient reports whether the current segment ran out of data.
func (r *Reader) Insufficient() bool {
	return r.insufficient
}

// ClearInsufficient re-arms data-exhaustion detection after a restart marker.
func (r *Reader) ClearInsufficient() {
	r.insufficient = false
}

// Begin opens a transaction.
func (r *Reader) Begin() {
	r.work = r.perm
	r.mark = r.src.Pos()
}

// Commit makes the working state permanent.
func (r *Reader) Commit() {
	r.perm = r.work
}

// Rollback abandons the working state and returns the source to where
// the transaction began.
func (r *Reader) Rollback() {
	r.work = r.perm
	r.src.Rewind(r.mark)
}

// DiscardPartial drops buffered bits ahead of a restart marker and returns
// the number of whole bytes discarded.
func (r *Reader) DiscardPartial() int {
	n := r.perm.n / 8
	r.perm = ReaderState{}
	r.work = ReaderState{}
	return n
}

// fill loads bytes until the buffer holds minGetBits bits or input stops.
// It reports false only if fewer than need bits are buffered and the
// source must suspend. A marker ends the segment: its code is latched in
// the source and, if need bits are still missing, zeros are substituted.
func (r *Reader) fill(need int) bool {
	src := r.src
	for r.work.n < minGetBits && src.UnreadMarker == 0 {
		start := src.Pos()
		c, ok := src.TryGetByte()
		if !ok {
			break
		}
		if c == 0xFF {
			// Skip fill bytes; FF 00 is a stuffed data byte.
			for {
				c, ok = src.TryGetByte()
				if !ok || c != 0xFF {
					break
				}
			}
			if !ok {
				src.Rewind(start)
				break
			}
			if c == 0 {
				c = 0xFF
			} else {
				src.UnreadMarker = 0xFF00 | uint16(c)
				break
			}
		}
		r.work.acc = r.work.acc<<8 | uint64(c)
		r.work.n += 8
	}

	if r.work.n >= need {
		return true
	}
	if src.UnreadMarker == 0 {
		return false
	}
	if !r.insufficient {
		r.diag.Warn(common.WarnHitMarker, slog.String("marker", common.MarkerName(src.UnreadMarker)))
		r.insufficient = true
	}
	for r.work.n < minGetBits {
		r.work.acc <<= 8
		r.work.n += 8
	}
	return true
}

// GetBits returns the next n bits (n <= 16).
func (r *Reader) GetBits(n int) (int, bool) {
	if n == 0 {
		return 0, true
	}
	if r.work.n < n && !r.fill(n) {
		return 0, false
	}
	r.work.n -= n
	return int(r.work.acc>>uint(r.work.n)) & (1<<n - 1), true
}

// GetBit returns the next bit.
func (r *Reader) GetBit() (int, bool) {
	return r.GetBits(1)
}

// Decode reads one Huffman-coded symbol. Codes of up to LookaheadBits bits
// resolve with a single table probe; longer ones are assembled bit by bit.
// A code matching no table entry decodes as symbol 0 with a warning.
func (r *Reader) Decode(t *common.DecodeTable) (byte, bool) {
	const look = common.LookaheadBits
	minBits := look + 1
	if r.work.n < look {
		if !r.fill(0) {
			return 0, false
		}
		if r.work.n < look {
			minBits = 1
		}
	}
	if minBits > look {
		peek := int(r.work.acc>>uint(r.work.n-look)) & (1<<look - 1)
		if nb, sym := t.Lookahead(peek); nb != 0 {
			r.work.n -= nb
			return sym, true
		}
	}

	v, ok := r.GetBits(minBits)
	if !ok {
		return 0, false
	}
	code := int32(v)
	l := minBits
	for code > t.MaxCode(l) {
		bit, ok := r.GetBits(1)
		if !ok {
			return 0, false
		}
		code = code<<1 | int32(bit)
		l++
	}
	if l > 16 {
		r.diag.Warn(common.WarnHuffBadCode)
		return 0, true
	}
	return t.Symbol(l, code), true
}

// Extend converts the n-bit magnitude v into a signed value: values in
// the lower half of the range are negative.
func Extend(v, n int) int {
	if n == 0 {
		return 0
	}
	if v < 1<<(n-1) {
		return v - (1 << n) + 1
	}
	return v
}
