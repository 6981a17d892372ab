package entropy

import (
	"fmt"
	"log/slog"

	"github.com/cocosip/go-dicom-jpeg/jpeg/bitio"
	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

// ScanMode selects the progressive sub-coder for a scan.
type ScanMode int

const (
	DCFirst ScanMode = iota
	ACFirst
	DCRefine
	ACRefine
)

func (m ScanMode) String() string {
	switch m {
	case DCFirst:
		return "DC first"
	case ACFirst:
		return "AC first"
	case DCRefine:
		return "DC refine"
	case ACRefine:
		return "AC refine"
	}
	return "unknown"
}

// ModeOf picks the sub-coder from the scan's band and approximation.
func ModeOf(scan *common.ScanInfo) ScanMode {
	switch {
	case scan.Ss == 0 && scan.Ah == 0:
		return DCFirst
	case scan.Ss == 0:
		return DCRefine
	case scan.Ah == 0:
		return ACFirst
	}
	return ACRefine
}

// progState is the progressive MCU coder state that changes per MCU.
type progState struct {
	eobrun int
	lastDC [common.MaxCompsInScan]int
}

// ProgressiveDecoder decodes progressive scans. It tracks, per component
// and coefficient, the last successive approximation bit decoded so far,
// to detect out-of-order scans.
type ProgressiveDecoder struct {
	br      *bitio.Reader
	tables  *common.Tables
	restart RestartReader
	diag    *common.Diagnostics

	frame  *common.Frame
	mode   ScanMode
	dcSlot common.DecodeSlots
	acSlot common.DecodeSlots
	dcTbl  [common.MaxBlocksInMCU]*common.DecodeTable
	acTbl  *common.DecodeTable

	// coefBits[c][k] is the Al of the last scan covering coefficient k of
	// component c, or -1 before any scan.
	coefBits [][common.BlockSize]int

	saved        progState
	restartsToGo int
}

// NewProgressiveDecoder creates a progressive decoder.
func NewProgressiveDecoder(br *bitio.Reader, tables *common.Tables, restart RestartReader, diag *common.Diagnostics) *ProgressiveDecoder {
	return &ProgressiveDecoder{br: br, tables: tables, restart: restart, diag: diag}
}

// CoefBits returns the progression state of component ci.
func (d *ProgressiveDecoder) CoefBits(ci int) [common.BlockSize]int {
	return d.coefBits[ci]
}

// validate rejects impossible scan parameters and warns about scans that
// do not follow on from earlier ones.
func (d *ProgressiveDecoder) validate(f *common.Frame) error {
	s := &f.Scan
	switch {
	case s.Ss == 0 && s.Se != 0:
		return fmt.Errorf("%w: DC scan with Se=%d", common.ErrBadProgression, s.Se)
	case s.Ss > s.Se || s.Se >= common.BlockSize:
		return fmt.Errorf("%w: band %d..%d", common.ErrBadProgression, s.Ss, s.Se)
	case s.Ss != 0 && len(s.Components) != 1:
		return fmt.Errorf("%w: AC scan with %d components", common.ErrBadProgression, len(s.Components))
	case s.Al > 13 || s.Ah > 13:
		return fmt.Errorf("%w: Ah=%d Al=%d", common.ErrBadProgression, s.Ah, s.Al)
	}

	if d.coefBits == nil || len(d.coefBits) != len(f.Components) {
		d.coefBits = make([][common.BlockSize]int, len(f.Components))
		for ci := range d.coefBits {
			for k := range d.coefBits[ci] {
				d.coefBits[ci][k] = -1
			}
		}
	}

	bogus := s.Ah != 0 && s.Al != s.Ah-1
	for _, ci := range s.Components {
		bits := &d.coefBits[ci]
		if s.Ss != 0 && bits[0] < 0 {
			bogus = true
		}
		for k := s.Ss; k <= s.Se; k++ {
			expected := max(bits[k], 0)
			if s.Ah != expected {
				bogus = true
			}
			bits[k] = s.Al
		}
	}
	if bogus {
		d.diag.Warn(common.WarnBogusProgression,
			slog.Int("ss", s.Ss), slog.Int("se", s.Se), slog.Int("ah", s.Ah), slog.Int("al", s.Al))
	}
	return nil
}

// StartPass implements Decoder.
func (d *ProgressiveDecoder) StartPass(f *common.Frame) error {
	if err := d.validate(f); err != nil {
		return err
	}
	d.frame = f
	d.mode = ModeOf(&f.Scan)
	d.dcSlot.Invalidate()
	d.acSlot.Invalidate()

	for blkn, si := range f.MCUMembership {
		c := f.ScanComps[si]
		switch d.mode {
		case DCFirst:
			if c.Td >= common.NumHuffTables {
				return fmt.Errorf("%w: component %d", common.ErrMissingHuffTable, c.ID)
			}
			t, err := d.dcSlot.Get(c.Td, d.tables.DC[c.Td], true)
			if err != nil {
				return fmt.Errorf("DC %w", err)
			}
			d.dcTbl[blkn] = t
		case ACFirst, ACRefine:
			if c.Ta >= common.NumHuffTables {
				return fmt.Errorf("%w: component %d", common.ErrMissingHuffTable, c.ID)
			}
			t, err := d.acSlot.Get(c.Ta, d.tables.AC[c.Ta], false)
			if err != nil {
				return fmt.Errorf("AC %w", err)
			}
			d.acTbl = t
		}
	}

	d.saved = progState{}
	d.restartsToGo = f.RestartInterval
	d.br.Reset()
	return nil
}

func (d *ProgressiveDecoder) processRestart() (bool, error) {
	d.br.DiscardPartial()
	ok, err := d.restart.ReadRestartMarker()
	if !ok || err != nil {
		return false, err
	}
	d.saved = progState{}
	d.restartsToGo = d.frame.RestartInterval
	if d.br.Source().UnreadMarker == 0 {
		d.br.ClearInsufficient()
	}
	return true, nil
}

// DecodeMCU implements Decoder.
func (d *ProgressiveDecoder) DecodeMCU(blocks []*common.Block) (bool, error) {
	if d.frame.RestartInterval != 0 && d.restartsToGo == 0 {
		if ok, err := d.processRestart(); !ok || err != nil {
			return false, err
		}
	}

	var ok bool
	switch d.mode {
	case DCFirst:
		ok = d.decodeDCFirst(blocks)
	case ACFirst:
		ok = d.decodeACFirst(blocks[0])
	case DCRefine:
		ok = d.decodeDCRefine(blocks)
	case ACRefine:
		ok = d.decodeACRefine(blocks[0])
	}
	if !ok {
		return false, nil
	}
	d.restartsToGo--
	return true, nil
}

func (d *ProgressiveDecoder) decodeDCFirst(blocks []*common.Block) bool {
	if d.br.Insufficient() {
		return true
	}
	br := d.br
	al := d.frame.Scan.Al
	br.Begin()
	state := d.saved
	for blkn, blk := range blocks {
		ci := d.frame.MCUMembership[blkn]
		s, ok := br.Decode(d.dcTbl[blkn])
		if !ok {
			br.Rollback()
			return false
		}
		diff := 0
		if s != 0 {
			r, ok := br.GetBits(int(s))
			if !ok {
				br.Rollback()
				return false
			}
			diff = bitio.Extend(r, int(s))
		}
		state.lastDC[ci] += diff
		blk[0] = int16(state.lastDC[ci] << al)
	}
	br.Commit()
	d.saved = state
	return true
}

func (d *ProgressiveDecoder) decodeACFirst(blk *common.Block) bool {
	if d.br.Insufficient() {
		return true
	}
	scan := &d.frame.Scan
	br := d.br
	eobrun := d.saved.eobrun

	if eobrun > 0 {
		eobrun--
	} else {
		br.Begin()
		for k := scan.Ss; k <= scan.Se; k++ {
			rs, ok := br.Decode(d.acTbl)
			if !ok {
				br.Rollback()
				return false
			}
			run := int(rs >> 4)
			size := int(rs & 15)
			if size != 0 {
				k += run
				r, ok := br.GetBits(size)
				if !ok {
					br.Rollback()
					return false
				}
				blk[common.NaturalOrder[k]] = int16(bitio.Extend(r, size) << scan.Al)
				continue
			}
			if run != 15 {
				eobrun = 1 << run
				if run != 0 {
					r, ok := br.GetBits(run)
					if !ok {
						br.Rollback()
						return false
					}
					eobrun += r
				}
				eobrun--
				break
			}
			k += 15
		}
		br.Commit()
	}
	d.saved.eobrun = eobrun
	return true
}

func (d *ProgressiveDecoder) decodeDCRefine(blocks []*common.Block) bool {
	// Reading zeros past the end of data changes nothing, so there is no
	// insufficient-data check here.
	br := d.br
	p1 := int16(1) << d.frame.Scan.Al
	br.Begin()
	for _, blk := range blocks {
		bit, ok := br.GetBit()
		if !ok {
			br.Rollback()
			return false
		}
		if bit != 0 {
			blk[0] |= p1
		}
	}
	br.Commit()
	return true
}

// decodeACRefine applies one refinement scan to a block. Corrections to
// coefficients that were already nonzero only set bit Al, so they can be
// re-applied safely; coefficients that became nonzero in this call are
// cleared again if the call suspends.
func (d *ProgressiveDecoder) decodeACRefine(blk *common.Block) bool {
	if d.br.Insufficient() {
		return true
	}
	scan := &d.frame.Scan
	br := d.br
	p1 := int16(1) << scan.Al
	m1 := int16(-1) << scan.Al

	var newnz [common.BlockSize]int
	numNewnz := 0
	undo := func() bool {
		for numNewnz > 0 {
			numNewnz--
			blk[newnz[numNewnz]] = 0
		}
		br.Rollback()
		return false
	}
	correct := func(coef *int16) bool {
		bit, ok := br.GetBit()
		if !ok {
			return false
		}
		if bit != 0 && *coef&p1 == 0 {
			if *coef >= 0 {
				*coef += p1
			} else {
				*coef += m1
			}
		}
		return true
	}

	br.Begin()
	eobrun := d.saved.eobrun
	k := scan.Ss

	if eobrun == 0 {
		for ; k <= scan.Se; k++ {
			rs, ok := br.Decode(d.acTbl)
			if !ok {
				return undo()
			}
			r := int(rs >> 4)
			s := int16(rs & 15)
			if s != 0 {
				if s != 1 {
					d.diag.Warn(common.WarnHuffBadCode)
				}
				bit, ok := br.GetBit()
				if !ok {
					return undo()
				}
				if bit != 0 {
					s = p1
				} else {
					s = m1
				}
			} else if r != 15 {
				eobrun = 1 << r
				if r != 0 {
					v, ok := br.GetBits(r)
					if !ok {
						return undo()
					}
					eobrun += v
				}
				break
			}

			// Skip r zero-history coefficients, correcting the nonzero
			// ones passed on the way.
			for ; k <= scan.Se; k++ {
				coef := &blk[common.NaturalOrder[k]]
				if *coef != 0 {
					if !correct(coef) {
						return undo()
					}
				} else {
					r--
					if r < 0 {
						break
					}
				}
			}
			if s != 0 {
				pos := common.NaturalOrder[k]
				blk[pos] = s
				newnz[numNewnz] = pos
				numNewnz++
			}
		}
	}

	if eobrun > 0 {
		// The band is done apart from corrections to nonzero coefficients.
		for ; k <= scan.Se; k++ {
			coef := &blk[common.NaturalOrder[k]]
			if *coef != 0 {
				if !correct(coef) {
					return undo()
				}
			}
		}
		eobrun--
	}

	br.Commit()
	d.saved.eobrun = eobrun
	return true
}
