// Package coef buffers quantized DCT coefficients between the block
// producer or consumer and the entropy coders. It walks the MCU layout of
// each scan, creates the dummy blocks that pad partial MCUs at the image
// edges, and keeps whole-image coefficient arrays when a frame is coded
// in more than one scan.
package coef

import "github.com/cocosip/go-dicom-jpeg/jpeg/common"

// BlockSource supplies the quantized blocks of an image to a compressor.
// comp is the index of the component in the frame; row and col are block
// coordinates within the component.
type BlockSource interface {
	ReadBlock(comp, row, col int, dst *common.Block) error
}

// BlockSink receives decoded blocks. Only blocks inside the image are
// delivered. blk is only valid for the duration of the call.
type BlockSink interface {
	WriteBlock(comp, row, col int, blk *common.Block) error
}

// VirtualArray holds the coefficient blocks of one component for the
// whole image, padded to whole MCUs.
type VirtualArray struct {
	BlocksWide int
	BlocksHigh int

	blocks []common.Block
}

// NewVirtualArray allocates a zeroed array.
func NewVirtualArray(wide, high int) *VirtualArray {
	return &VirtualArray{BlocksWide: wide, BlocksHigh: high, blocks: make([]common.Block, wide*high)}
}

// NewComponentArrays allocates one array per frame component, each padded
// to a multiple of the component's sampling factors.
func NewComponentArrays(f *common.Frame) []*VirtualArray {
	arrays := make([]*VirtualArray, len(f.Components))
	for i := range f.Components {
		c := &f.Components[i]
		arrays[i] = NewVirtualArray(common.RoundUp(c.WidthInBlocks, c.H), common.RoundUp(c.HeightInBlocks, c.V))
	}
	return arrays
}

// ArrayBytes returns the memory NewComponentArrays allocates for f.
func ArrayBytes(f *common.Frame) int64 {
	var blocks int64
	for i := range f.Components {
		c := &f.Components[i]
		blocks += int64(common.RoundUp(c.WidthInBlocks, c.H)) * int64(common.RoundUp(c.HeightInBlocks, c.V))
	}
	return blocks * common.BlockSize * 2
}

// Row returns block row r.
func (a *VirtualArray) Row(r int) []common.Block {
	return a.blocks[r*a.BlocksWide : (r+1)*a.BlocksWide]
}

// Rows borrows n block rows starting at start.
func (a *VirtualArray) Rows(start, n int) [][]common.Block {
	rows := make([][]common.Block, n)
	for i := range rows {
		rows[i] = a.Row(start + i)
	}
	return rows
}

// At returns the block at (row, col).
func (a *VirtualArray) At(row, col int) *common.Block {
	return &a.blocks[row*a.BlocksWide+col]
}

// Reset zeroes every block.
func (a *VirtualArray) Reset() {
	clear(a.blocks)
}

// ArraySource serves blocks from coefficient arrays, for recompressing
// decoded coefficients without going through pixels.
type ArraySource struct {
	Arrays []*VirtualArray
}

// ReadBlock implements BlockSource.
func (s *ArraySource) ReadBlock(comp, row, col int, dst *common.Block) error {
	*dst = *s.Arrays[comp].At(row, col)
	return nil
}
