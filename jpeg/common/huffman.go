package common

import "fmt"

// LookaheadBits is the width of the fast decode table index.
const LookaheadBits = 8

// NumHuffTables is the number of DC (and of AC) table slots.
const NumHuffTables = 4

// HuffmanSpec is a Huffman table as it appears in a DHT segment.
type HuffmanSpec struct {
	Bits   [16]int // Bits[i] is the number of codes of length i+1
	Values []byte  // Symbols in order of increasing code length

	// Sent is set once the table has been written to the output stream.
	Sent bool
}

func (s *HuffmanSpec) clone() *HuffmanSpec {
	if s == nil {
		return nil
	}
	c := *s
	c.Values = append([]byte(nil), s.Values...)
	return &c
}

// canonicalCodes expands the spec into per-symbol code lengths and codes
// (ITU T.81 Annex C, figures C.1 and C.2).
func (s *HuffmanSpec) canonicalCodes() (sizes []int, codes []uint32, err error) {
	total := 0
	for l := 0; l < 16; l++ {
		if s.Bits[l] < 0 {
			return nil, nil, fmt.Errorf("%w: negative count for length %d", ErrBadHuffmanTable, l+1)
		}
		total += s.Bits[l]
	}
	if total > 256 {
		return nil, nil, fmt.Errorf("%w: %d symbols", ErrBadHuffmanTable, total)
	}
	if total > len(s.Values) {
		return nil, nil, fmt.Errorf("%w: %d codes but %d values", ErrBadHuffmanTable, total, len(s.Values))
	}

	sizes = make([]int, 0, total)
	for l := 1; l <= 16; l++ {
		for i := 0; i < s.Bits[l-1]; i++ {
			sizes = append(sizes, l)
		}
	}

	codes = make([]uint32, total)
	code := uint32(0)
	p := 0
	for si := 1; si <= 16; si++ {
		for p < total && sizes[p] == si {
			codes[p] = code
			code++
			p++
		}
		// no code may be all ones
		if code >= uint32(1)<<si {
			return nil, nil, fmt.Errorf("%w: over-subscribed at length %d", ErrBadHuffmanTable, si)
		}
		code <<= 1
	}
	return sizes, codes, nil
}

// DecodeTable is the decoder's derived form of a HuffmanSpec.
type DecodeTable struct {
	maxcode   [18]int32 // largest code of length k, -1 if none; [17] is a sentinel
	valoffset [18]int32 // huffval index of the first code of length k minus that code
	lookNBits [1 << LookaheadBits]uint8
	lookSym   [1 << LookaheadBits]uint8
	huffval   [256]byte
}

// BuildDecodeTable derives a decode table. DC tables may only carry
// magnitude categories 0..15.
func BuildDecodeTable(spec *HuffmanSpec, isDC bool) (*DecodeTable, error) {
	t := &DecodeTable{}
	if err := t.build(spec, isDC); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *DecodeTable) build(spec *HuffmanSpec, isDC bool) error {
	if spec == nil {
		return ErrMissingHuffTable
	}
	sizes, codes, err := spec.canonicalCodes()
	if err != nil {
		return err
	}
	*t = DecodeTable{}
	copy(t.huffval[:], spec.Values[:len(sizes)])

	p := int32(0)
	for l := 1; l <= 16; l++ {
		n := int32(spec.Bits[l-1])
		if n == 0 {
			t.maxcode[l] = -1
			continue
		}
		t.valoffset[l] = p - int32(codes[p])
		p += n
		t.maxcode[l] = int32(codes[p-1])
	}
	t.maxcode[17] = 0xFFFFF

	p = 0
	for l := 1; l <= LookaheadBits; l++ {
		for i := 0; i < spec.Bits[l-1]; i, p = i+1, p+1 {
			look := int(codes[p]) << (LookaheadBits - l)
			for ctr := 1 << (LookaheadBits - l); ctr > 0; ctr-- {
				t.lookNBits[look] = uint8(l)
				t.lookSym[look] = spec.Values[p]
				look++
			}
		}
	}

	if isDC {
		for _, sym := range t.huffval[:len(sizes)] {
			if sym > 15 {
				return fmt.Errorf("%w: DC symbol %d", ErrBadHuffmanTable, sym)
			}
		}
	}
	return nil
}

// Lookahead resolves a LookaheadBits-wide peek. A zero length means the
// code is longer than the lookahead window.
func (t *DecodeTable) Lookahead(peek int) (nbits int, sym byte) {
	return int(t.lookNBits[peek]), t.lookSym[peek]
}

// MaxCode returns the largest code of length l, or -1.
func (t *DecodeTable) MaxCode(l int) int32 {
	return t.maxcode[l]
}

// Symbol returns the value for code of length l.
func (t *DecodeTable) Symbol(l int, code int32) byte {
	return t.huffval[(t.valoffset[l]+code)&0xFF]
}

// EncodeTable is the encoder's derived form of a HuffmanSpec.
type EncodeTable struct {
	Code [256]uint32
	Size [256]uint8 // zero if the symbol has no code
}

// BuildEncodeTable derives an encode table.
func BuildEncodeTable(spec *HuffmanSpec, isDC bool) (*EncodeTable, error) {
	t := &EncodeTable{}
	if err := t.build(spec, isDC); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *EncodeTable) build(spec *HuffmanSpec, isDC bool) error {
	if spec == nil {
		return ErrMissingHuffTable
	}
	sizes, codes, err := spec.canonicalCodes()
	if err != nil {
		return err
	}
	*t = EncodeTable{}
	maxSym := byte(255)
	if isDC {
		maxSym = 15
	}
	for p, size := range sizes {
		sym := spec.Values[p]
		if sym > maxSym || t.Size[sym] != 0 {
			return fmt.Errorf("%w: bad or duplicate symbol %d", ErrBadHuffmanTable, sym)
		}
		t.Code[sym] = codes[p]
		t.Size[sym] = uint8(size)
	}
	return nil
}

// Histogram counts symbol occurrences. The last bucket is reserved so that
// no real symbol is assigned the all-ones code.
type Histogram [257]int64

// GenerateOptimal builds a length-limited Huffman table for the counts in
// h (ITU T.81 Annex K.2). h is not modified.
func GenerateOptimal(h *Histogram) (*HuffmanSpec, error) {
	var (
		bits     [33]int
		codesize [257]int
		others   [257]int
		freq     = *h
	)
	for i := range others {
		others[i] = -1
	}
	freq[256] = 1

	for {
		// smallest nonzero frequency, ties go to the larger symbol
		c1 := -1
		v := int64(1) << 62
		for i := 0; i <= 256; i++ {
			if freq[i] != 0 && freq[i] <= v {
				v = freq[i]
				c1 = i
			}
		}
		c2 := -1
		v = int64(1) << 62
		for i := 0; i <= 256; i++ {
			if freq[i] != 0 && freq[i] <= v && i != c1 {
				v = freq[i]
				c2 = i
			}
		}
		if c2 < 0 {
			break
		}

		freq[c1] += freq[c2]
		freq[c2] = 0

		codesize[c1]++
		for others[c1] >= 0 {
			c1 = others[c1]
			codesize[c1]++
		}
		others[c1] = c2

		codesize[c2]++
		for others[c2] >= 0 {
			c2 = others[c2]
			codesize[c2]++
		}
	}

	for i := 0; i <= 256; i++ {
		if codesize[i] != 0 {
			if codesize[i] > 32 {
				return nil, fmt.Errorf("%w: code length overflow", ErrBadHuffmanTable)
			}
			bits[codesize[i]]++
		}
	}

	// Limit code lengths to 16 bits (Annex K, figure K.3).
	for i := 32; i > 16; i-- {
		for bits[i] > 0 {
			j := i - 2
			for bits[j] == 0 {
				j--
			}
			bits[i] -= 2
			bits[i-1]++
			bits[j+1] += 2
			bits[j]--
		}
	}

	// Drop the reserved code point from the longest length.
	i := 16
	for i > 0 && bits[i] == 0 {
		i--
	}
	if i > 0 {
		bits[i]--
	}

	spec := &HuffmanSpec{}
	copy(spec.Bits[:], bits[1:17])
	for l := 1; l <= 32; l++ {
		for sym := 0; sym <= 255; sym++ {
			if codesize[sym] == l {
				spec.Values = append(spec.Values, byte(sym))
			}
		}
	}
	return spec, nil
}

type slotState uint8

const (
	slotStale slotState = iota
	slotBuilt
)

// DecodeSlots caches derived decode tables per table slot. Invalidate
// marks every slot stale; Get rebuilds a stale slot on first use.
type DecodeSlots struct {
	tables [NumHuffTables]DecodeTable
	state  [NumHuffTables]slotState
}

// Invalidate marks all slots stale.
func (s *DecodeSlots) Invalidate() {
	s.state = [NumHuffTables]slotState{}
}

// Get returns the derived table for slot, building it from spec if stale.
func (s *DecodeSlots) Get(slot int, spec *HuffmanSpec, isDC bool) (*DecodeTable, error) {
	if slot < 0 || slot >= NumHuffTables {
		return nil, fmt.Errorf("%w: slot %d", ErrMissingHuffTable, slot)
	}
	if s.state[slot] != slotBuilt {
		if err := s.tables[slot].build(spec, isDC); err != nil {
			return nil, fmt.Errorf("table %d: %w", slot, err)
		}
		s.state[slot] = slotBuilt
	}
	return &s.tables[slot], nil
}

// EncodeSlots caches derived encode tables per table slot.
type EncodeSlots struct {
	tables [NumHuffTables]EncodeTable
	state  [NumHuffTables]slotState
}

// Invalidate marks all slots stale.
func (s *EncodeSlots) Invalidate() {
	s.state = [NumHuffTables]slotState{}
}

// Get returns the derived table for slot, building it from spec if stale.
func (s *EncodeSlots) Get(slot int, spec *HuffmanSpec, isDC bool) (*EncodeTable, error) {
	if slot < 0 || slot >= NumHuffTables {
		return nil, fmt.Errorf("%w: slot %d", ErrMissingHuffTable, slot)
	}
	if s.state[slot] != slotBuilt {
		if err := s.tables[slot].build(spec, isDC); err != nil {
			return nil, fmt.Errorf("table %d: %w", slot, err)
		}
		s.state[slot] = slotBuilt
	}
	return &s.tables[slot], nil
}
