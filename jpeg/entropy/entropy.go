// Package entropy implements the Huffman MCU coders: sequential (baseline
// and extended) and progressive, in both directions. Each coder processes
// one MCU per call and either completes it or reports suspension with its
// state unchanged.
package entropy

import (
	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

// Decoder decodes MCUs of the active scan.
type Decoder interface {
	// StartPass prepares for the scan most recently activated on the frame.
	StartPass(f *common.Frame) error
	// DecodeMCU decodes one MCU into blocks, which has one entry per block
	// in the MCU. It returns false if input must be supplied first.
	DecodeMCU(blocks []*common.Block) (bool, error)
}

// Encoder encodes MCUs of the active scan.
type Encoder interface {
	// StartPass prepares for the active scan. With gather set, symbols are
	// only counted and no output is produced.
	StartPass(f *common.Frame, gather bool) error
	// EncodeMCU codes one MCU. It returns false if output room is needed.
	EncodeMCU(blocks []*common.Block) (bool, error)
	// FinishPass flushes buffered output, or in a gather pass replaces the
	// scan's Huffman tables with optimal ones.
	FinishPass() (bool, error)
}

// RestartReader consumes the restart marker that ends an interval.
type RestartReader interface {
	// ReadRestartMarker reads the next expected RSTn, resynchronizing on a
	// mismatch. It returns false if input must be supplied first.
	ReadRestartMarker() (bool, error)
}

// bitLength returns the number of bits needed to represent v >= 0.
func bitLength(v int) int {
	n := 0
	for v != 0 {
		n++
		v >>= 1
	}
	return n
}

// magnitude splits a coefficient into its bit length and the raw bits
// to emit: negative values are sent as v-1 in n bits.
func magnitude(v int) (nbits int, bits uint32) {
	if v < 0 {
		nbits = bitLength(-v)
		return nbits, uint32(v - 1)
	}
	return bitLength(v), uint32(v)
}

// scanSlots lists the DC or AC table slots used by the active scan, each
// once, in first-use order.
func scanSlots(f *common.Frame, ac bool) []int {
	var seen [common.NumHuffTables]bool
	var out []int
	for _, c := range f.ScanComps {
		slot := c.Td
		if ac {
			slot = c.Ta
		}
		if slot >= 0 && slot < common.NumHuffTables && !seen[slot] {
			seen[slot] = true
			out = append(out, slot)
		}
	}
	return out
}
