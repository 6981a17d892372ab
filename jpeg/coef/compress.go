package coef

import (
	"fmt"

	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
	"github.com/cocosip/go-dicom-jpeg/jpeg/entropy"
)

// BufferMode selects what a compression pass does with the coefficient
// arrays.
type BufferMode int

const (
	// PassThrough codes blocks straight from the source. Single-scan
	// frames only.
	PassThrough BufferMode = iota
	// SaveAndPass fills the arrays from the source while coding the first
	// scan from them.
	SaveAndPass
	// CrankDest codes a later scan from the filled arrays.
	CrankDest
)

func (m BufferMode) String() string {
	switch m {
	case PassThrough:
		return "pass through"
	case SaveAndPass:
		return "save and pass"
	case CrankDest:
		return "crank dest"
	}
	return "unknown"
}

// CompressController feeds MCUs of the active scan to the entropy encoder
// one iMCU row at a time. A suspended row resumes at the MCU that could
// not be written.
type CompressController struct {
	frame  *common.Frame
	enc    entropy.Encoder
	src    BlockSource
	arrays []*VirtualArray

	mode      BufferMode
	iMCURow   int
	mcuCtr    int
	vertOff   int
	rowsInRow int // MCU rows in the current iMCU row
	loaded    bool
	rowLoaded bool

	mcuBuf [common.MaxBlocksInMCU]common.Block
	ptrs   [common.MaxBlocksInMCU]*common.Block
}

// NewCompressController creates a controller reading from src. With
// fullBuffer set, the whole image is kept in coefficient arrays so that
// several passes can be made over it.
func NewCompressController(f *common.Frame, enc entropy.Encoder, src BlockSource, fullBuffer bool) *CompressController {
	c := &CompressController{frame: f, enc: enc, src: src}
	if fullBuffer {
		c.arrays = NewComponentArrays(f)
	}
	return c
}

// Arrays returns the coefficient arrays, or nil without a full buffer.
func (c *CompressController) Arrays() []*VirtualArray {
	return c.arrays
}

// StartPass prepares a pass over the frame's active scan.
func (c *CompressController) StartPass(mode BufferMode) error {
	if (mode == PassThrough) != (c.arrays == nil) {
		return fmt.Errorf("%w: buffer mode %v", common.ErrBadScanScript, mode)
	}
	c.mode = mode
	c.iMCURow = 0
	c.rowLoaded = false
	c.startIMCURow()
	return nil
}

// Done reports whether every iMCU row of the pass has been coded.
func (c *CompressController) Done() bool {
	return c.iMCURow >= c.frame.TotalIMCURows
}

func (c *CompressController) startIMCURow() {
	f := c.frame
	switch {
	case len(f.ScanComps) > 1:
		c.rowsInRow = 1
	case c.iMCURow < f.TotalIMCURows-1:
		c.rowsInRow = f.ScanComps[0].V
	default:
		c.rowsInRow = f.ScanComps[0].LastRowHeight
	}
	c.mcuCtr = 0
	c.vertOff = 0
	c.loaded = false
}

// CompressIMCURow codes the next iMCU row. It returns false if the encoder
// suspended; calling it again resumes where it stopped.
func (c *CompressController) CompressIMCURow() (bool, error) {
	switch c.mode {
	case PassThrough:
		return c.compressData()
	case SaveAndPass:
		if !c.rowLoaded {
			if err := c.loadIMCURow(); err != nil {
				return false, err
			}
			c.rowLoaded = true
		}
		ok, err := c.compressOutput()
		if ok {
			c.rowLoaded = false
		}
		return ok, err
	}
	return c.compressOutput()
}

// compressData codes one iMCU row straight from the source.
func (c *CompressController) compressData() (bool, error) {
	f := c.frame
	lastCol := f.MCUsPerRow - 1
	for ; c.vertOff < c.rowsInRow; c.vertOff++ {
		for ; c.mcuCtr <= lastCol; c.mcuCtr++ {
			if !c.loaded {
				if err := c.loadMCU(c.mcuCtr, lastCol); err != nil {
					return false, err
				}
				c.loaded = true
			}
			ok, err := c.enc.EncodeMCU(c.ptrs[:f.BlocksInMCU])
			if !ok || err != nil {
				return false, err
			}
			c.loaded = false
		}
		c.mcuCtr = 0
	}
	c.iMCURow++
	c.startIMCURow()
	return true, nil
}

// loadMCU reads the blocks of one MCU. Blocks past the right edge repeat
// the DC of their left neighbour; block rows past the bottom edge repeat
// the DC of the block before them. All other coefficients of a dummy
// block are zero, which keeps their cost to a few bits.
func (c *CompressController) loadMCU(col, lastCol int) error {
	f := c.frame
	lastIMCURow := f.TotalIMCURows - 1
	blkn := 0
	for _, comp := range f.ScanComps {
		blockcnt := comp.MCUWidth
		if col == lastCol {
			blockcnt = comp.LastColWidth
		}
		for y := 0; y < comp.MCUHeight; y++ {
			blocks := c.mcuBuf[blkn : blkn+comp.MCUWidth]
			if c.iMCURow < lastIMCURow || c.vertOff+y < comp.LastRowHeight {
				row := c.iMCURow*comp.V + c.vertOff + y
				for bi := 0; bi < blockcnt; bi++ {
					if err := c.src.ReadBlock(comp.Index, row, col*comp.MCUWidth+bi, &blocks[bi]); err != nil {
						return err
					}
				}
				for bi := blockcnt; bi < comp.MCUWidth; bi++ {
					blocks[bi] = common.Block{}
					blocks[bi][0] = blocks[bi-1][0]
				}
			} else {
				dc := c.mcuBuf[blkn-1][0]
				for bi := range blocks {
					blocks[bi] = common.Block{}
					blocks[bi][0] = dc
				}
			}
			blkn += comp.MCUWidth
		}
	}
	for i := 0; i < blkn; i++ {
		c.ptrs[i] = &c.mcuBuf[i]
	}
	return nil
}

// loadIMCURow copies the current iMCU row of every component into the
// arrays and fills the padding blocks.
func (c *CompressController) loadIMCURow() error {
	f := c.frame
	last := c.iMCURow == f.TotalIMCURows-1
	for ci := range f.Components {
		comp := &f.Components[ci]
		arr := c.arrays[ci]
		base := c.iMCURow * comp.V

		blockRows := comp.V
		if last {
			if blockRows = comp.HeightInBlocks % comp.V; blockRows == 0 {
				blockRows = comp.V
			}
		}
		ndummy := comp.WidthInBlocks % comp.H
		if ndummy > 0 {
			ndummy = comp.H - ndummy
		}

		for br := 0; br < blockRows; br++ {
			row := arr.Row(base + br)
			for col := 0; col < comp.WidthInBlocks; col++ {
				if err := c.src.ReadBlock(ci, base+br, col, &row[col]); err != nil {
					return err
				}
			}
			dc := row[comp.WidthInBlocks-1][0]
			for bi := comp.WidthInBlocks; bi < comp.WidthInBlocks+ndummy; bi++ {
				row[bi] = common.Block{}
				row[bi][0] = dc
			}
		}

		if last {
			// Dummy block rows take the DC of the last real block of the
			// MCU above them.
			across := comp.WidthInBlocks + ndummy
			for br := blockRows; br < comp.V; br++ {
				this, above := arr.Row(base+br), arr.Row(base+br-1)
				for m := 0; m < across; m += comp.H {
					dc := above[m+comp.H-1][0]
					for bi := 0; bi < comp.H; bi++ {
						this[m+bi] = common.Block{}
						this[m+bi][0] = dc
					}
				}
			}
		}
	}
	return nil
}

// compressOutput codes one iMCU row of the active scan from the arrays.
func (c *CompressController) compressOutput() (bool, error) {
	f := c.frame
	for ; c.vertOff < c.rowsInRow; c.vertOff++ {
		for ; c.mcuCtr < f.MCUsPerRow; c.mcuCtr++ {
			blkn := 0
			for _, comp := range f.ScanComps {
				arr := c.arrays[comp.Index]
				startCol := c.mcuCtr * comp.MCUWidth
				for y := 0; y < comp.MCUHeight; y++ {
					row := arr.Row(c.iMCURow*comp.V + c.vertOff + y)
					for x := 0; x < comp.MCUWidth; x++ {
						c.ptrs[blkn] = &row[startCol+x]
						blkn++
					}
				}
			}
			ok, err := c.enc.EncodeMCU(c.ptrs[:blkn])
			if !ok || err != nil {
				return false, err
			}
		}
		c.mcuCtr = 0
	}
	c.iMCURow++
	c.startIMCURow()
	return true, nil
}
