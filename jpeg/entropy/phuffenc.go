package entropy

import (
	"fmt"

	"github.com/cocosip/go-dicom-jpeg/jpeg/bitio"
	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

// MaxCorrBits bounds the correction bits buffered for one EOB run of an
// AC refinement scan. The run is emitted early rather than exceed it.
const MaxCorrBits = 1000

// maxEOBRun is the longest EOB run a single EOBn symbol can express.
const maxEOBRun = 0x7FFF

type progEncState struct {
	eobrun int
	be     int // buffered correction bits owed by the pending EOB run
	lastDC [common.MaxCompsInScan]int
}

// ProgressiveEncoder encodes progressive scans. Like HuffmanEncoder it can
// run as a gather pass that only counts symbols.
type ProgressiveEncoder struct {
	bw     *bitio.Writer
	tables *common.Tables

	frame   *common.Frame
	mode    ScanMode
	gather  bool
	maxBits int
	slots   common.EncodeSlots
	tbl     [common.NumHuffTables]*common.EncodeTable
	hist    [common.NumHuffTables]common.Histogram
	blkSlot [common.MaxBlocksInMCU]int

	// corr holds the correction bits of the pending EOB run, one bit per
	// byte; its length is saved.be between calls.
	corr []byte
	// brBuf collects correction bits produced by the block being coded.
	brBuf [common.BlockSize]byte
	nbr   int

	saved          progEncState
	restartsToGo   int
	nextRestartNum int
}

// NewProgressiveEncoder creates a progressive encoder writing through bw.
func NewProgressiveEncoder(bw *bitio.Writer, tables *common.Tables) *ProgressiveEncoder {
	return &ProgressiveEncoder{bw: bw, tables: tables}
}

// StartPass implements Encoder. DC refinement scans use no tables.
func (e *ProgressiveEncoder) StartPass(f *common.Frame, gather bool) error {
	e.frame = f
	e.mode = ModeOf(&f.Scan)
	e.gather = gather
	e.maxBits = common.MaxCoefBits(f.Precision)
	e.slots.Invalidate()

	isDC := f.Scan.IsDCBand()
	if e.mode != DCRefine {
		for blkn, si := range f.MCUMembership {
			c := f.ScanComps[si]
			slot := c.Ta
			if isDC {
				slot = c.Td
			}
			if slot < 0 || slot >= common.NumHuffTables {
				return fmt.Errorf("%w: component %d", common.ErrMissingHuffTable, c.ID)
			}
			e.blkSlot[blkn] = slot
		}
		for _, slot := range scanSlots(f, !isDC) {
			if gather {
				e.hist[slot] = common.Histogram{}
				continue
			}
			spec := e.tables.AC[slot]
			if isDC {
				spec = e.tables.DC[slot]
			}
			t, err := e.slots.Get(slot, spec, isDC)
			if err != nil {
				return err
			}
			e.tbl[slot] = t
		}
	}

	e.saved = progEncState{}
	e.corr = e.corr[:0]
	e.restartsToGo = f.RestartInterval
	e.nextRestartNum = 0
	e.bw.Reset()
	return nil
}

func (e *ProgressiveEncoder) putSymbol(slot, sym int) (bool, error) {
	if e.gather {
		e.hist[slot][sym]++
		return true, nil
	}
	t := e.tbl[slot]
	size := int(t.Size[sym])
	if size == 0 {
		return false, fmt.Errorf("%w: %#02x", common.ErrMissingCode, sym)
	}
	return e.bw.PutBits(t.Code[sym], size), nil
}

func (e *ProgressiveEncoder) putBits(v uint32, n int) bool {
	if e.gather {
		return true
	}
	return e.bw.PutBits(v, n)
}

func (e *ProgressiveEncoder) putCorrection(bits []byte) bool {
	if e.gather {
		return true
	}
	for _, b := range bits {
		if !e.bw.PutBits(uint32(b), 1) {
			return false
		}
	}
	return true
}

// emitEOBRun sends the pending EOB run followed by its buffered
// correction bits and then extra.
func (e *ProgressiveEncoder) emitEOBRun(st *progEncState, extra []byte) (bool, error) {
	if st.eobrun == 0 {
		return true, nil
	}
	nbits := bitLength(st.eobrun) - 1
	if nbits > 14 {
		return false, fmt.Errorf("%w: %d", common.ErrEOBRunTooLong, st.eobrun)
	}
	if ok, err := e.putSymbol(e.blkSlot[0], nbits<<4); !ok || err != nil {
		return false, err
	}
	if !e.putBits(uint32(st.eobrun), nbits) {
		return false, nil
	}
	if !e.putCorrection(e.corr[:st.be]) || !e.putCorrection(extra) {
		return false, nil
	}
	st.eobrun = 0
	st.be = 0
	return true, nil
}

// EncodeMCU implements Encoder.
func (e *ProgressiveEncoder) EncodeMCU(blocks []*common.Block) (bool, error) {
	f := e.frame
	bw := e.bw
	bw.Begin()
	st := e.saved
	e.nbr = 0

	if f.RestartInterval != 0 && e.restartsToGo == 0 {
		ok, err := e.emitEOBRun(&st, nil)
		if ok && !e.gather {
			ok = bw.FlushBits() && bw.EmitMarker(common.RST(e.nextRestartNum))
		}
		if !ok || err != nil {
			bw.Rollback()
			return false, err
		}
		st = progEncState{}
	}

	var ok bool
	var err error
	switch e.mode {
	case DCFirst:
		ok, err = e.encodeDCFirst(&st, blocks)
	case ACFirst:
		ok, err = e.encodeACFirst(&st, blocks[0])
	case DCRefine:
		ok = e.encodeDCRefine(blocks)
	case ACRefine:
		ok, err = e.encodeACRefine(&st, blocks[0])
	}
	if !ok || err != nil {
		bw.Rollback()
		return false, err
	}

	bw.Commit()
	e.corr = append(e.corr[:st.be-e.nbr], e.brBuf[:e.nbr]...)
	e.saved = st
	e.advanceRestart()
	return true, nil
}

func (e *ProgressiveEncoder) advanceRestart() {
	if e.frame.RestartInterval == 0 {
		return
	}
	if e.restartsToGo == 0 {
		e.restartsToGo = e.frame.RestartInterval
		e.nextRestartNum = (e.nextRestartNum + 1) & 7
	}
	e.restartsToGo--
}

func (e *ProgressiveEncoder) encodeDCFirst(st *progEncState, blocks []*common.Block) (bool, error) {
	al := e.frame.Scan.Al
	for blkn, blk := range blocks {
		ci := e.frame.MCUMembership[blkn]
		v := int(blk[0]) >> al
		nbits, bits := magnitude(v - st.lastDC[ci])
		st.lastDC[ci] = v
		if nbits > e.maxBits+1 {
			return false, fmt.Errorf("%w: DC difference needs %d bits", common.ErrCoefOverflow, nbits)
		}
		if ok, err := e.putSymbol(e.blkSlot[blkn], nbits); !ok || err != nil {
			return false, err
		}
		if !e.putBits(bits, nbits) {
			return false, nil
		}
	}
	return true, nil
}

func (e *ProgressiveEncoder) encodeDCRefine(blocks []*common.Block) bool {
	al := e.frame.Scan.Al
	for _, blk := range blocks {
		if !e.putBits(uint32(blk[0]>>al)&1, 1) {
			return false
		}
	}
	return true
}

func (e *ProgressiveEncoder) encodeACFirst(st *progEncState, blk *common.Block) (bool, error) {
	scan := &e.frame.Scan
	slot := e.blkSlot[0]
	r := 0
	for k := scan.Ss; k <= scan.Se; k++ {
		v := int(blk[common.NaturalOrder[k]])
		var bits int
		if v < 0 {
			v = -v >> scan.Al
			bits = ^v
		} else {
			v >>= scan.Al
			bits = v
		}
		if v == 0 {
			r++
			continue
		}

		if ok, err := e.emitEOBRun(st, nil); !ok || err != nil {
			return false, err
		}
		for r > 15 {
			if ok, err := e.putSymbol(slot, 0xF0); !ok || err != nil {
				return false, err
			}
			r -= 16
		}
		nbits := bitLength(v)
		if nbits > e.maxBits {
			return false, fmt.Errorf("%w: AC value needs %d bits", common.ErrCoefOverflow, nbits)
		}
		if ok, err := e.putSymbol(slot, r<<4+nbits); !ok || err != nil {
			return false, err
		}
		if !e.putBits(uint32(bits), nbits) {
			return false, nil
		}
		r = 0
	}

	if r > 0 {
		st.eobrun++
		if st.eobrun == maxEOBRun {
			return e.emitEOBRun(st, nil)
		}
	}
	return true, nil
}

// encodeACRefine codes one refinement block. Coefficients that become
// nonzero in this scan are sent as run/size symbols with a sign bit; those
// already nonzero get a correction bit, buffered until the next symbol or
// for the whole EOB run the block joins.
func (e *ProgressiveEncoder) encodeACRefine(st *progEncState, blk *common.Block) (bool, error) {
	scan := &e.frame.Scan
	slot := e.blkSlot[0]

	var absvalues [common.BlockSize]int
	eob := 0
	for k := scan.Ss; k <= scan.Se; k++ {
		v := int(blk[common.NaturalOrder[k]])
		if v < 0 {
			v = -v
		}
		v >>= scan.Al
		absvalues[k] = v
		if v == 1 {
			eob = k
		}
	}

	r := 0
	for k := scan.Ss; k <= scan.Se; k++ {
		v := absvalues[k]
		if v == 0 {
			r++
			continue
		}

		// ZRLs are only needed ahead of a newly nonzero coefficient;
		// otherwise the run folds into the EOB.
		for r > 15 && k <= eob {
			if ok, err := e.emitEOBRun(st, nil); !ok || err != nil {
				return false, err
			}
			if ok, err := e.putSymbol(slot, 0xF0); !ok || err != nil {
				return false, err
			}
			r -= 16
			if !e.putCorrection(e.brBuf[:e.nbr]) {
				return false, nil
			}
			e.nbr = 0
		}

		if v > 1 {
			e.brBuf[e.nbr] = byte(v & 1)
			e.nbr++
			continue
		}

		if ok, err := e.emitEOBRun(st, nil); !ok || err != nil {
			return false, err
		}
		if ok, err := e.putSymbol(slot, r<<4+1); !ok || err != nil {
			return false, err
		}
		sign := uint32(1)
		if blk[common.NaturalOrder[k]] < 0 {
			sign = 0
		}
		if !e.putBits(sign, 1) || !e.putCorrection(e.brBuf[:e.nbr]) {
			return false, nil
		}
		e.nbr = 0
		r = 0
	}

	if r > 0 || e.nbr > 0 {
		st.eobrun++
		if st.eobrun == maxEOBRun || st.be+e.nbr > MaxCorrBits-common.BlockSize+1 {
			ok, err := e.emitEOBRun(st, e.brBuf[:e.nbr])
			if !ok || err != nil {
				return false, err
			}
			e.nbr = 0
		} else {
			st.be += e.nbr
		}
	}
	return true, nil
}

// FinishPass implements Encoder.
func (e *ProgressiveEncoder) FinishPass() (bool, error) {
	e.nbr = 0
	if e.gather {
		st := e.saved
		if _, err := e.emitEOBRun(&st, nil); err != nil {
			return false, err
		}
		e.saved = st
		e.corr = e.corr[:0]
		return true, e.installOptimalTables()
	}

	bw := e.bw
	bw.Begin()
	st := e.saved
	ok, err := e.emitEOBRun(&st, nil)
	if ok && err == nil {
		ok = bw.FlushBits()
	}
	if !ok || err != nil {
		bw.Rollback()
		return false, err
	}
	bw.Commit()
	e.saved = st
	e.corr = e.corr[:0]
	return true, nil
}

func (e *ProgressiveEncoder) installOptimalTables() error {
	if e.mode == DCRefine {
		return nil
	}
	isDC := e.frame.Scan.IsDCBand()
	for _, slot := range scanSlots(e.frame, !isDC) {
		spec, err := common.GenerateOptimal(&e.hist[slot])
		if err != nil {
			return err
		}
		if isDC {
			e.tables.DC[slot] = spec
		} else {
			e.tables.AC[slot] = spec
		}
	}
	return nil
}
