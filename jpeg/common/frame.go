package common

import (
	"cmp"
	"fmt"
)

const (
	// DCTSize is the width and height of a block.
	DCTSize = 8
	// BlockSize is the number of coefficients in a block.
	BlockSize = DCTSize * DCTSize
	// MaxComponents is the largest component count accepted in a frame.
	MaxComponents = 10
	// MaxCompsInScan is the largest component count in one scan.
	MaxCompsInScan = 4
	// MaxSampFactor is the largest sampling factor.
	MaxSampFactor = 4
	// MaxBlocksInMCU is the largest number of blocks in an interleaved MCU.
	MaxBlocksInMCU = 10
	// MaxDimension is the largest accepted image width or height.
	MaxDimension = 65500
)

// Block holds 64 quantized DCT coefficients in natural (row-major) order.
type Block [BlockSize]int16

// QuantTable is a quantization table in natural order.
type QuantTable struct {
	Values [BlockSize]uint16

	// Sent is set once the table has been written to the output stream.
	Sent bool
}

// Precision returns 1 if any entry needs 16 bits, else 0.
func (q *QuantTable) Precision() int {
	for _, v := range q.Values {
		if v > 255 {
			return 1
		}
	}
	return 0
}

// Tables holds the quantization and Huffman table slots of a codec.
type Tables struct {
	Quant [4]*QuantTable
	DC    [NumHuffTables]*HuffmanSpec
	AC    [NumHuffTables]*HuffmanSpec
}

// Clone returns a deep copy of the table slots.
func (t *Tables) Clone() *Tables {
	c := &Tables{}
	for i, q := range t.Quant {
		if q != nil {
			qc := *q
			c.Quant[i] = &qc
		}
	}
	for i := 0; i < NumHuffTables; i++ {
		c.DC[i] = t.DC[i].clone()
		c.AC[i] = t.AC[i].clone()
	}
	return c
}

// Component describes one image component.
type Component struct {
	ID    int // component identifier from the frame header
	Index int // position in Frame.Components
	H, V  int // sampling factors
	Tq    int // quantization table slot
	Td    int // DC Huffman table slot for the current scan
	Ta    int // AC Huffman table slot for the current scan

	WidthInBlocks  int
	HeightInBlocks int

	// Per-scan geometry, filled by Frame.SetupScan.
	MCUWidth      int // blocks per MCU horizontally
	MCUHeight     int // blocks per MCU vertically
	MCUBlocks     int
	LastColWidth  int // non-dummy blocks across in the last MCU column
	LastRowHeight int // non-dummy blocks down in the last MCU row
}

// ScanInfo describes one scan: component subset, spectral band and
// successive approximation bit positions.
type ScanInfo struct {
	Components []int // indexes into Frame.Components, in scan order
	Ss, Se     int
	Ah, Al     int
}

// IsDCBand reports whether the scan codes the DC coefficient.
func (s *ScanInfo) IsDCBand() bool {
	return s.Ss == 0
}

// IsSequential reports whether the scan covers the full band at full precision.
func (s *ScanInfo) IsSequential() bool {
	return s.Ss == 0 && s.Se == BlockSize-1 && s.Ah == 0 && s.Al == 0
}

// Frame holds the image geometry and the active scan geometry.
type Frame struct {
	Precision   int
	Width       int
	Height      int
	Components  []Component
	Progressive bool

	MaxH, MaxV    int
	TotalIMCURows int

	// RestartInterval is the number of MCUs per restart interval, 0 for none.
	RestartInterval int

	// Active scan
	Scan          ScanInfo
	ScanComps     []*Component
	MCUsPerRow    int
	MCURowsInScan int
	BlocksInMCU   int
	MCUMembership []int // scan component index of each block in an MCU
}

// NewFrame creates a frame from its header parameters and computes the
// per-component block geometry.
func NewFrame(precision, width, height int, comps []Component) (*Frame, error) {
	f := &Frame{
		Precision:  precision,
		Width:      width,
		Height:     height,
		Components: comps,
	}
	if err := f.setup(); err != nil {
		return nil, err
	}
	return f, nil
}

// setup validates the frame and derives block dimensions.
func (f *Frame) setup() error {
	if f.Width <= 0 || f.Height <= 0 || f.Width > MaxDimension || f.Height > MaxDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, f.Width, f.Height)
	}
	if f.Precision != 8 && f.Precision != 12 {
		return fmt.Errorf("%w: %d bits", ErrInvalidPrecision, f.Precision)
	}
	if len(f.Components) == 0 || len(f.Components) > MaxComponents {
		return fmt.Errorf("%w: %d", ErrInvalidComponents, len(f.Components))
	}

	f.MaxH, f.MaxV = 1, 1
	for i := range f.Components {
		c := &f.Components[i]
		if c.H <= 0 || c.H > MaxSampFactor || c.V <= 0 || c.V > MaxSampFactor {
			return fmt.Errorf("%w: component %d is %dx%d", ErrInvalidSampling, c.ID, c.H, c.V)
		}
		for j := 0; j < i; j++ {
			if f.Components[j].ID == c.ID {
				return fmt.Errorf("%w: duplicate component id %d", ErrInvalidSOF, c.ID)
			}
		}
		c.Index = i
		f.MaxH = max(f.MaxH, c.H)
		f.MaxV = max(f.MaxV, c.V)
	}

	for i := range f.Components {
		c := &f.Components[i]
		c.WidthInBlocks = DivCeil(f.Width*c.H, f.MaxH*DCTSize)
		c.HeightInBlocks = DivCeil(f.Height*c.V, f.MaxV*DCTSize)
	}
	f.TotalIMCURows = DivCeil(f.Height, f.MaxV*DCTSize)
	return nil
}

// ComponentByID returns the component with the given identifier.
func (f *Frame) ComponentByID(id int) (*Component, bool) {
	for i := range f.Components {
		if f.Components[i].ID == id {
			return &f.Components[i], true
		}
	}
	return nil, false
}

// HasMultipleScans reports whether the first scan leaves data for later scans.
func (f *Frame) HasMultipleScans() bool {
	return f.Progressive || len(f.Scan.Components) < len(f.Components)
}

// SetupScan activates scan and computes its MCU geometry. Interleaved scans
// use the frame MCU; a single-component scan uses one block per MCU.
func (f *Frame) SetupScan(scan ScanInfo) error {
	n := len(scan.Components)
	if n == 0 || n > MaxCompsInScan {
		return fmt.Errorf("%w: %d components in scan", ErrInvalidSOS, n)
	}

	f.Scan = scan
	f.ScanComps = f.ScanComps[:0]
	f.MCUMembership = f.MCUMembership[:0]
	for _, ci := range scan.Components {
		if ci < 0 || ci >= len(f.Components) {
			return fmt.Errorf("%w: index %d", ErrBadComponentID, ci)
		}
		f.ScanComps = append(f.ScanComps, &f.Components[ci])
	}

	if n == 1 {
		c := f.ScanComps[0]
		f.MCUsPerRow = c.WidthInBlocks
		f.MCURowsInScan = c.HeightInBlocks
		c.MCUWidth, c.MCUHeight, c.MCUBlocks = 1, 1, 1
		c.LastColWidth = 1
		c.LastRowHeight = c.HeightInBlocks % c.V
		if c.LastRowHeight == 0 {
			c.LastRowHeight = c.V
		}
		f.BlocksInMCU = 1
		f.MCUMembership = append(f.MCUMembership, 0)
		return nil
	}

	f.MCUsPerRow = DivCeil(f.Width, f.MaxH*DCTSize)
	f.MCURowsInScan = f.TotalIMCURows
	f.BlocksInMCU = 0
	for si, c := range f.ScanComps {
		c.MCUWidth = c.H
		c.MCUHeight = c.V
		c.MCUBlocks = c.H * c.V
		c.LastColWidth = c.WidthInBlocks % c.H
		if c.LastColWidth == 0 {
			c.LastColWidth = c.H
		}
		c.LastRowHeight = c.HeightInBlocks % c.V
		if c.LastRowHeight == 0 {
			c.LastRowHeight = c.V
		}
		if f.BlocksInMCU+c.MCUBlocks > MaxBlocksInMCU {
			return fmt.Errorf("%w: %d", ErrTooManyBlocks, f.BlocksInMCU+c.MCUBlocks)
		}
		for b := 0; b < c.MCUBlocks; b++ {
			f.MCUMembership = append(f.MCUMembership, si)
		}
		f.BlocksInMCU += c.MCUBlocks
	}
	return nil
}

// DivCeil returns a/b rounded up.
func DivCeil(a, b int) int {
	return (a + b - 1) / b
}

// Clamp limits v to [lo, hi].
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RoundUp rounds a up to a multiple of b.
func RoundUp(a, b int) int {
	return DivCeil(a, b) * b
}

// MaxCoefBits returns the largest magnitude category an AC coefficient may
// have at the given sample precision. DC differences may use one more bit.
func MaxCoefBits(precision int) int {
	if precision > 8 {
		return 14
	}
	return 10
}
