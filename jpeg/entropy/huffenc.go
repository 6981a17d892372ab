package entropy

import (
	"fmt"

	"github.com/cocosip/go-dicom-jpeg/jpeg/bitio"
	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

// HuffmanEncoder encodes sequential scans. In a gather pass it counts
// symbols instead of writing them and derives optimal tables at the end.
type HuffmanEncoder struct {
	bw     *bitio.Writer
	tables *common.Tables

	frame   *common.Frame
	gather  bool
	maxBits int
	dcSlot  common.EncodeSlots
	acSlot  common.EncodeSlots
	dcTbl   [common.MaxBlocksInMCU]*common.EncodeTable
	acTbl   [common.MaxBlocksInMCU]*common.EncodeTable
	dcHist  [common.NumHuffTables]common.Histogram
	acHist  [common.NumHuffTables]common.Histogram

	saved          dcState
	restartsToGo   int
	nextRestartNum int
}

// NewHuffmanEncoder creates a sequential encoder writing through bw.
func NewHuffmanEncoder(bw *bitio.Writer, tables *common.Tables) *HuffmanEncoder {
	return &HuffmanEncoder{bw: bw, tables: tables}
}

// StartPass implements Encoder.
func (e *HuffmanEncoder) StartPass(f *common.Frame, gather bool) error {
	e.frame = f
	e.gather = gather
	e.maxBits = common.MaxCoefBits(f.Precision)
	e.dcSlot.Invalidate()
	e.acSlot.Invalidate()

	for _, c := range f.ScanComps {
		if c.Td >= common.NumHuffTables || c.Ta >= common.NumHuffTables {
			return fmt.Errorf("%w: component %d", common.ErrMissingHuffTable, c.ID)
		}
		if gather {
			e.dcHist[c.Td] = common.Histogram{}
			e.acHist[c.Ta] = common.Histogram{}
		}
	}
	if !gather {
		for blkn, si := range f.MCUMembership {
			c := f.ScanComps[si]
			dc, err := e.dcSlot.Get(c.Td, e.tables.DC[c.Td], true)
			if err != nil {
				return fmt.Errorf("DC %w", err)
			}
			ac, err := e.acSlot.Get(c.Ta, e.tables.AC[c.Ta], false)
			if err != nil {
				return fmt.Errorf("AC %w", err)
			}
			e.dcTbl[blkn] = dc
			e.acTbl[blkn] = ac
		}
	}

	e.saved = dcState{}
	e.restartsToGo = f.RestartInterval
	e.nextRestartNum = 0
	e.bw.Reset()
	return nil
}

// EncodeMCU implements Encoder.
func (e *HuffmanEncoder) EncodeMCU(blocks []*common.Block) (bool, error) {
	if e.gather {
		return e.gatherMCU(blocks)
	}
	f := e.frame
	bw := e.bw
	bw.Begin()
	state := e.saved

	if f.RestartInterval != 0 && e.restartsToGo == 0 {
		if !bw.FlushBits() || !bw.EmitMarker(common.RST(e.nextRestartNum)) {
			bw.Rollback()
			return false, nil
		}
		state = dcState{}
	}

	for blkn, blk := range blocks {
		ci := f.MCUMembership[blkn]
		ok, err := e.encodeBlock(blk, state.lastDC[ci], e.dcTbl[blkn], e.acTbl[blkn])
		if err != nil {
			bw.Rollback()
			return false, err
		}
		if !ok {
			bw.Rollback()
			return false, nil
		}
		state.lastDC[ci] = int(blk[0])
	}

	bw.Commit()
	e.saved = state
	e.advanceRestart()
	return true, nil
}

func (e *HuffmanEncoder) advanceRestart() {
	if e.frame.RestartInterval == 0 {
		return
	}
	if e.restartsToGo == 0 {
		e.restartsToGo = e.frame.RestartInterval
		e.nextRestartNum = (e.nextRestartNum + 1) & 7
	}
	e.restartsToGo--
}

func (e *HuffmanEncoder) putSymbol(t *common.EncodeTable, sym int) (bool, error) {
	size := int(t.Size[sym])
	if size == 0 {
		return false, fmt.Errorf("%w: %#02x", common.ErrMissingCode, sym)
	}
	return e.bw.PutBits(t.Code[sym], size), nil
}

// encodeBlock emits one block: the DC difference category and bits, then
// run/size coded AC values with ZRL for each full run of 16 zeros and a
// final EOB if the block ends in zeros.
func (e *HuffmanEncoder) encodeBlock(blk *common.Block, lastDC int, dct, act *common.EncodeTable) (bool, error) {
	nbits, bits := magnitude(int(blk[0]) - lastDC)
	if nbits > e.maxBits+1 {
		return false, fmt.Errorf("%w: DC difference needs %d bits", common.ErrCoefOverflow, nbits)
	}
	if ok, err := e.putSymbol(dct, nbits); !ok || err != nil {
		return false, err
	}
	if !e.bw.PutBits(bits, nbits) {
		return false, nil
	}

	r := 0
	for k := 1; k < common.BlockSize; k++ {
		v := int(blk[common.NaturalOrder[k]])
		if v == 0 {
			r++
			continue
		}
		for r > 15 {
			if ok, err := e.putSymbol(act, 0xF0); !ok || err != nil {
				return false, err
			}
			r -= 16
		}
		nbits, bits := magnitude(v)
		if nbits > e.maxBits {
			return false, fmt.Errorf("%w: AC value needs %d bits", common.ErrCoefOverflow, nbits)
		}
		if ok, err := e.putSymbol(act, r<<4+nbits); !ok || err != nil {
			return false, err
		}
		if !e.bw.PutBits(bits, nbits) {
			return false, nil
		}
		r = 0
	}
	if r > 0 {
		return e.putSymbol(act, 0)
	}
	return true, nil
}

// gatherMCU counts the symbols encodeBlock would emit.
func (e *HuffmanEncoder) gatherMCU(blocks []*common.Block) (bool, error) {
	f := e.frame
	if f.RestartInterval != 0 && e.restartsToGo == 0 {
		e.saved = dcState{}
	}
	for blkn, blk := range blocks {
		ci := f.MCUMembership[blkn]
		c := f.ScanComps[ci]
		dc := &e.dcHist[c.Td]
		ac := &e.acHist[c.Ta]

		nbits, _ := magnitude(int(blk[0]) - e.saved.lastDC[ci])
		if nbits > e.maxBits+1 {
			return false, fmt.Errorf("%w: DC difference needs %d bits", common.ErrCoefOverflow, nbits)
		}
		dc[nbits]++

		r := 0
		for k := 1; k < common.BlockSize; k++ {
			v := int(blk[common.NaturalOrder[k]])
			if v == 0 {
				r++
				continue
			}
			for r > 15 {
				ac[0xF0]++
				r -= 16
			}
			nbits, _ := magnitude(v)
			if nbits > e.maxBits {
				return false, fmt.Errorf("%w: AC value needs %d bits", common.ErrCoefOverflow, nbits)
			}
			ac[r<<4+nbits]++
			r = 0
		}
		if r > 0 {
			ac[0]++
		}
		e.saved.lastDC[ci] = int(blk[0])
	}
	e.advanceRestart()
	return true, nil
}

// FinishPass implements Encoder.
func (e *HuffmanEncoder) FinishPass() (bool, error) {
	if e.gather {
		return true, e.installOptimalTables()
	}
	e.bw.Begin()
	if !e.bw.FlushBits() {
		e.bw.Rollback()
		return false, nil
	}
	e.bw.Commit()
	return true, nil
}

func (e *HuffmanEncoder) installOptimalTables() error {
	for _, slot := range scanSlots(e.frame, false) {
		spec, err := common.GenerateOptimal(&e.dcHist[slot])
		if err != nil {
			return err
		}
		e.tables.DC[slot] = spec
	}
	for _, slot := range scanSlots(e.frame, true) {
		spec, err := common.GenerateOptimal(&e.acHist[slot])
		if err != nil {
			return err
		}
		e.tables.AC[slot] = spec
	}
	return nil
}
