package entropy

import (
	"fmt"

	"github.com/cocosip/go-dicom-jpeg/jpeg/bitio"
	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

// dcState is the part of the MCU coder state that changes per MCU.
type dcState struct {
	lastDC [common.MaxCompsInScan]int
}

// HuffmanDecoder decodes sequential (baseline and extended) scans.
type HuffmanDecoder struct {
	br      *bitio.Reader
	tables  *common.Tables
	restart RestartReader
	diag    *common.Diagnostics

	frame  *common.Frame
	dcSlot common.DecodeSlots
	acSlot common.DecodeSlots
	dcTbl  [common.MaxBlocksInMCU]*common.DecodeTable
	acTbl  [common.MaxBlocksInMCU]*common.DecodeTable

	saved        dcState
	restartsToGo int
}

// NewHuffmanDecoder creates a sequential decoder reading through br with
// table definitions from tables. restart consumes RSTn markers.
func NewHuffmanDecoder(br *bitio.Reader, tables *common.Tables, restart RestartReader, diag *common.Diagnostics) *HuffmanDecoder {
	return &HuffmanDecoder{br: br, tables: tables, restart: restart, diag: diag}
}

// StartPass implements Decoder.
func (d *HuffmanDecoder) StartPass(f *common.Frame) error {
	if !f.Scan.IsSequential() {
		d.diag.Warn(common.WarnNotSequential)
	}
	d.frame = f
	d.dcSlot.Invalidate()
	d.acSlot.Invalidate()

	for blkn, si := range f.MCUMembership {
		c := f.ScanComps[si]
		if c.Td >= common.NumHuffTables || c.Ta >= common.NumHuffTables {
			return fmt.Errorf("%w: component %d", common.ErrMissingHuffTable, c.ID)
		}
		dc, err := d.dcSlot.Get(c.Td, d.tables.DC[c.Td], true)
		if err != nil {
			return fmt.Errorf("DC %w", err)
		}
		ac, err := d.acSlot.Get(c.Ta, d.tables.AC[c.Ta], false)
		if err != nil {
			return fmt.Errorf("AC %w", err)
		}
		d.dcTbl[blkn] = dc
		d.acTbl[blkn] = ac
	}

	d.saved = dcState{}
	d.restartsToGo = f.RestartInterval
	d.br.Reset()
	return nil
}

// processRestart consumes a restart marker and resets the predictors.
func (d *HuffmanDecoder) processRestart() (bool, error) {
	d.br.DiscardPartial()
	ok, err := d.restart.ReadRestartMarker()
	if !ok || err != nil {
		return false, err
	}
	d.saved = dcState{}
	d.restartsToGo = d.frame.RestartInterval
	// A marker still pending means resync left us short of the next
	// interval; keep substituting zeros until then.
	if d.br.Source().UnreadMarker == 0 {
		d.br.ClearInsufficient()
	}
	return true, nil
}

// DecodeMCU implements Decoder.
func (d *HuffmanDecoder) DecodeMCU(blocks []*common.Block) (bool, error) {
	f := d.frame
	if f.RestartInterval != 0 && d.restartsToGo == 0 {
		if ok, err := d.processRestart(); !ok || err != nil {
			return false, err
		}
	}

	for _, blk := range blocks {
		*blk = common.Block{}
	}

	if !d.br.Insufficient() {
		br := d.br
		br.Begin()
		state := d.saved
		for blkn, blk := range blocks {
			ci := f.MCUMembership[blkn]

			s, ok := br.Decode(d.dcTbl[blkn])
			if !ok {
				br.Rollback()
				return false, nil
			}
			diff := 0
			if s != 0 {
				r, ok := br.GetBits(int(s))
				if !ok {
					br.Rollback()
					return false, nil
				}
				diff = bitio.Extend(r, int(s))
			}
			state.lastDC[ci] += diff
			blk[0] = int16(state.lastDC[ci])

			ac := d.acTbl[blkn]
			for k := 1; k < common.BlockSize; k++ {
				rs, ok := br.Decode(ac)
				if !ok {
					br.Rollback()
					return false, nil
				}
				run := int(rs >> 4)
				size := int(rs & 15)
				if size != 0 {
					k += run
					r, ok := br.GetBits(size)
					if !ok {
						br.Rollback()
						return false, nil
					}
					blk[common.NaturalOrder[k]] = int16(bitio.Extend(r, size))
				} else {
					if run != 15 {
						break
					}
					k += 15
				}
			}
		}
		br.Commit()
		d.saved = state
	}

	d.restartsToGo--
	return true, nil
}
