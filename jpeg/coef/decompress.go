package coef

import (
	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
	"github.com/cocosip/go-dicom-jpeg/jpeg/entropy"
)

// DecompressController drives the entropy decoder over the MCUs of each
// scan. A single-scan frame is decoded straight to a BlockSink; frames
// with several scans are decoded into coefficient arrays, which are
// delivered once input is complete.
type DecompressController struct {
	frame  *common.Frame
	dec    entropy.Decoder
	arrays []*VirtualArray

	iMCURow   int
	mcuCtr    int
	vertOff   int
	rowsInRow int

	mcuBuf [common.MaxBlocksInMCU]common.Block
	ptrs   [common.MaxBlocksInMCU]*common.Block
}

// NewDecompressController creates a controller. multiScan allocates
// zeroed coefficient arrays for the whole image.
func NewDecompressController(f *common.Frame, dec entropy.Decoder, multiScan bool) *DecompressController {
	c := &DecompressController{frame: f, dec: dec}
	if multiScan {
		c.arrays = NewComponentArrays(f)
	}
	for i := range c.ptrs {
		c.ptrs[i] = &c.mcuBuf[i]
	}
	return c
}

// Arrays returns the coefficient arrays, or nil for single-scan decoding.
func (c *DecompressController) Arrays() []*VirtualArray {
	return c.arrays
}

// StartInputPass prepares for the scan just activated on the frame.
func (c *DecompressController) StartInputPass() {
	c.iMCURow = 0
	c.startIMCURow()
}

// InputDone reports whether the active scan has been fully decoded.
func (c *DecompressController) InputDone() bool {
	return c.iMCURow >= c.frame.TotalIMCURows
}

// IMCURow returns the number of iMCU rows of the active scan decoded so far.
func (c *DecompressController) IMCURow() int {
	return c.iMCURow
}

func (c *DecompressController) startIMCURow() {
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
}

// ConsumeIMCURow decodes the next iMCU row of the active scan. Without
// coefficient arrays the decoded blocks go to sink. It returns false if
// the decoder needs more input.
func (c *DecompressController) ConsumeIMCURow(sink BlockSink) (bool, error) {
	if c.arrays != nil {
		return c.consumeData()
	}
	return c.decompressOnePass(sink)
}

func (c *DecompressController) decompressOnePass(sink BlockSink) (bool, error) {
	f := c.frame
	lastCol := f.MCUsPerRow - 1
	lastIMCURow := f.TotalIMCURows - 1
	for ; c.vertOff < c.rowsInRow; c.vertOff++ {
		for ; c.mcuCtr <= lastCol; c.mcuCtr++ {
			blocks := c.ptrs[:f.BlocksInMCU]
			for _, b := range blocks {
				*b = common.Block{}
			}
			ok, err := c.dec.DecodeMCU(blocks)
			if !ok || err != nil {
				return false, err
			}

			blkn := 0
			for _, comp := range f.ScanComps {
				useful := comp.MCUWidth
				if c.mcuCtr == lastCol {
					useful = comp.LastColWidth
				}
				for y := 0; y < comp.MCUHeight; y++ {
					if c.iMCURow < lastIMCURow || c.vertOff+y < comp.LastRowHeight {
						row := c.iMCURow*comp.V + c.vertOff + y
						for x := 0; x < useful; x++ {
							if err := sink.WriteBlock(comp.Index, row, c.mcuCtr*comp.MCUWidth+x, &c.mcuBuf[blkn+x]); err != nil {
								return false, err
							}
						}
					}
					blkn += comp.MCUWidth
				}
			}
		}
		c.mcuCtr = 0
	}
	c.iMCURow++
	c.startIMCURow()
	return true, nil
}

// consumeData decodes one iMCU row into the arrays, dummy blocks included.
func (c *DecompressController) consumeData() (bool, error) {
	f := c.frame
	var ptrs [common.MaxBlocksInMCU]*common.Block
	for ; c.vertOff < c.rowsInRow; c.vertOff++ {
		for ; c.mcuCtr < f.MCUsPerRow; c.mcuCtr++ {
			blkn := 0
			for _, comp := range f.ScanComps {
				arr := c.arrays[comp.Index]
				startCol := c.mcuCtr * comp.MCUWidth
				for y := 0; y < comp.MCUHeight; y++ {
					row := arr.Row(c.iMCURow*comp.V + c.vertOff + y)
					for x := 0; x < comp.MCUWidth; x++ {
						ptrs[blkn] = &row[startCol+x]
						blkn++
					}
				}
			}
			ok, err := c.dec.DecodeMCU(ptrs[:blkn])
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

// Output delivers every block inside the image from the arrays.
func (c *DecompressController) Output(sink BlockSink) error {
	for ci := range c.frame.Components {
		comp := &c.frame.Components[ci]
		arr := c.arrays[ci]
		for row := 0; row < comp.HeightInBlocks; row++ {
			blocks := arr.Row(row)
			for col := 0; col < comp.WidthInBlocks; col++ {
				if err := sink.WriteBlock(ci, row, col, &blocks[col]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
