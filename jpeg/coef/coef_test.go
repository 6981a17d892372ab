package coef

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

// patternSource serves a recognisable block for every position inside
// the image and fails on anything outside it.
type patternSource struct {
	frame *common.Frame
	reads int
}

func patternBlock(comp, row, col int) common.Block {
	var b common.Block
	b[0] = int16(comp*1000 + row*50 + col)
	b[1] = int16(row + 1)
	b[9] = int16(col - 3)
	return b
}

func (s *patternSource) ReadBlock(comp, row, col int, dst *common.Block) error {
	c := &s.frame.Components[comp]
	if row < 0 || row >= c.HeightInBlocks || col < 0 || col >= c.WidthInBlocks {
		return fmt.Errorf("read outside component %d: row %d col %d", comp, row, col)
	}
	s.reads++
	*dst = patternBlock(comp, row, col)
	return nil
}

// recordingEncoder keeps a copy of every MCU it codes. With suspendEvery
// set, every n-th call suspends.
type recordingEncoder struct {
	mcus         [][]common.Block
	calls        int
	suspendEvery int
}

func (e *recordingEncoder) StartPass(*common.Frame, bool) error { return nil }
func (e *recordingEncoder) FinishPass() (bool, error)          { return true, nil }

func (e *recordingEncoder) EncodeMCU(blocks []*common.Block) (bool, error) {
	e.calls++
	if e.suspendEvery > 0 && e.calls%e.suspendEvery == 0 {
		return false, nil
	}
	mcu := make([]common.Block, len(blocks))
	for i, b := range blocks {
		mcu[i] = *b
	}
	e.mcus = append(e.mcus, mcu)
	return true, nil
}

// replayDecoder hands back recorded MCUs in order.
type replayDecoder struct {
	mcus         [][]common.Block
	next         int
	calls        int
	suspendEvery int
}

func (d *replayDecoder) StartPass(*common.Frame) error { return nil }

func (d *replayDecoder) DecodeMCU(blocks []*common.Block) (bool, error) {
	d.calls++
	if d.suspendEvery > 0 && d.calls%d.suspendEvery == 0 {
		return false, nil
	}
	if d.next >= len(d.mcus) {
		return false, errors.New("replay exhausted")
	}
	mcu := d.mcus[d.next]
	if len(mcu) != len(blocks) {
		return false, fmt.Errorf("MCU %d has %d blocks, want %d", d.next, len(blocks), len(mcu))
	}
	for i, b := range blocks {
		*b = mcu[i]
	}
	d.next++
	return true, nil
}

// mapSink collects delivered blocks and rejects duplicates.
type mapSink struct {
	frame  *common.Frame
	blocks map[[3]int]common.Block
}

func newMapSink(f *common.Frame) *mapSink {
	return &mapSink{frame: f, blocks: map[[3]int]common.Block{}}
}

func (s *mapSink) WriteBlock(comp, row, col int, blk *common.Block) error {
	c := &s.frame.Components[comp]
	if row >= c.HeightInBlocks || col >= c.WidthInBlocks {
		return fmt.Errorf("dummy block delivered: comp %d row %d col %d", comp, row, col)
	}
	key := [3]int{comp, row, col}
	if _, dup := s.blocks[key]; dup {
		return fmt.Errorf("block delivered twice: %v", key)
	}
	s.blocks[key] = *blk
	return nil
}

func (s *mapSink) check(t *testing.T) {
	t.Helper()
	for ci := range s.frame.Components {
		c := &s.frame.Components[ci]
		for row := 0; row < c.HeightInBlocks; row++ {
			for col := 0; col < c.WidthInBlocks; col++ {
				got, ok := s.blocks[[3]int{ci, row, col}]
				if !ok {
					t.Fatalf("block comp %d row %d col %d never delivered", ci, row, col)
				}
				if want := patternBlock(ci, row, col); got != want {
					t.Fatalf("block comp %d row %d col %d = %v, want %v", ci, row, col, got[:10], want[:10])
				}
			}
		}
	}
}

// colorFrame builds a 2x2,1x1,1x1 frame whose luma does not fill whole MCUs
// in either direction.
func colorFrame(t *testing.T, width, height int) *common.Frame {
	t.Helper()
	f, err := common.NewFrame(8, width, height, []common.Component{
		{ID: 1, H: 2, V: 2},
		{ID: 2, H: 1, V: 1},
		{ID: 3, H: 1, V: 1},
	})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	return f
}

func activate(t *testing.T, f *common.Frame, comps ...int) {
	t.Helper()
	if err := f.SetupScan(common.ScanInfo{Components: comps, Ss: 0, Se: 63}); err != nil {
		t.Fatalf("SetupScan: %v", err)
	}
}

func compressAll(t *testing.T, c *CompressController, mode BufferMode) {
	t.Helper()
	if err := c.StartPass(mode); err != nil {
		t.Fatalf("StartPass(%v): %v", mode, err)
	}
	for !c.Done() {
		for {
			ok, err := c.CompressIMCURow()
			if err != nil {
				t.Fatalf("CompressIMCURow: %v", err)
			}
			if ok {
				break
			}
		}
	}
}

func TestDummyBlocks(t *testing.T) {
	// 20x20: luma is 3x3 blocks in 2x2 MCUs, chroma 2x2 blocks.
	f := colorFrame(t, 20, 20)
	activate(t, f, 0, 1, 2)
	enc := &recordingEncoder{}
	src := &patternSource{frame: f}
	c := NewCompressController(f, enc, src, false)
	compressAll(t, c, PassThrough)

	if len(enc.mcus) != 4 {
		t.Fatalf("coded %d MCUs, want 4", len(enc.mcus))
	}
	// Second MCU of the first row: the right luma column is padding.
	mcu := enc.mcus[1]
	for y := 0; y < 2; y++ {
		edge, dummy := mcu[2*y], mcu[2*y+1]
		if edge != patternBlock(0, y, 2) {
			t.Errorf("row %d: edge block = %v", y, edge[:10])
		}
		want := common.Block{}
		want[0] = edge[0]
		if dummy != want {
			t.Errorf("row %d: dummy block = %v, want DC %d only", y, dummy[:10], edge[0])
		}
	}
	// Last MCU: bottom luma row is padding and takes the DC of the last
	// block above it in the MCU.
	mcu = enc.mcus[3]
	above := mcu[1][0]
	if above != patternBlock(0, 2, 2)[0] {
		t.Fatalf("padding column DC = %d, want %d", above, patternBlock(0, 2, 2)[0])
	}
	for _, b := range mcu[2:4] {
		want := common.Block{}
		want[0] = above
		if b != want {
			t.Errorf("dummy row block = %v, want DC %d only", b[:10], above)
		}
	}
	if want := 9 + 4 + 4; src.reads != want {
		t.Errorf("source reads = %d, want %d", src.reads, want)
	}
}

func TestCompressSuspendResumes(t *testing.T) {
	f := colorFrame(t, 37, 29)
	activate(t, f, 0, 1, 2)

	ref := &recordingEncoder{}
	compressAll(t, NewCompressController(f, ref, &patternSource{frame: f}, false), PassThrough)

	for _, every := range []int{2, 3, 7} {
		t.Run(fmt.Sprint(every), func(t *testing.T) {
			enc := &recordingEncoder{suspendEvery: every}
			src := &patternSource{frame: f}
			compressAll(t, NewCompressController(f, enc, src, false), PassThrough)
			if len(enc.mcus) != len(ref.mcus) {
				t.Fatalf("coded %d MCUs, want %d", len(enc.mcus), len(ref.mcus))
			}
			for i := range ref.mcus {
				for b := range ref.mcus[i] {
					if enc.mcus[i][b] != ref.mcus[i][b] {
						t.Fatalf("MCU %d block %d differs after suspension", i, b)
					}
				}
			}
			// Resumed MCUs are not read again.
			total := 0
			for _, c := range f.Components {
				total += c.WidthInBlocks * c.HeightInBlocks
			}
			if src.reads != total {
				t.Errorf("source reads = %d, want %d", src.reads, total)
			}
		})
	}
}

func TestBufferedMatchesPassThrough(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
	}{
		{"whole MCUs", 32, 32},
		{"partial both", 37, 29},
		{"single block", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := colorFrame(t, tt.width, tt.height)
			activate(t, f, 0, 1, 2)
			ref := &recordingEncoder{}
			compressAll(t, NewCompressController(f, ref, &patternSource{frame: f}, false), PassThrough)

			enc := &recordingEncoder{suspendEvery: 5}
			c := NewCompressController(f, enc, &patternSource{frame: f}, true)
			compressAll(t, c, SaveAndPass)
			// A second pass over the filled arrays codes the same MCUs.
			compressAll(t, c, CrankDest)

			if len(enc.mcus) != 2*len(ref.mcus) {
				t.Fatalf("coded %d MCUs, want %d", len(enc.mcus), 2*len(ref.mcus))
			}
			for pass := 0; pass < 2; pass++ {
				for i, mcu := range ref.mcus {
					got := enc.mcus[pass*len(ref.mcus)+i]
					for b := range mcu {
						if got[b] != mcu[b] {
							t.Fatalf("pass %d MCU %d block %d = %v, want %v", pass, i, b, got[b][:10], mcu[b][:10])
						}
					}
				}
			}
		})
	}
}

func TestStartPassChecksBuffering(t *testing.T) {
	f := colorFrame(t, 16, 16)
	activate(t, f, 0, 1, 2)
	src := &patternSource{frame: f}
	if err := NewCompressController(f, &recordingEncoder{}, src, true).StartPass(PassThrough); !errors.Is(err, common.ErrBadScanScript) {
		t.Errorf("PassThrough with arrays: err = %v", err)
	}
	if err := NewCompressController(f, &recordingEncoder{}, src, false).StartPass(CrankDest); !errors.Is(err, common.ErrBadScanScript) {
		t.Errorf("CrankDest without arrays: err = %v", err)
	}
}

func TestSingleScanRoundTrip(t *testing.T) {
	for _, size := range [][2]int{{16, 16}, {37, 29}, {9, 70}} {
		t.Run(fmt.Sprintf("%dx%d", size[0], size[1]), func(t *testing.T) {
			f := colorFrame(t, size[0], size[1])
			activate(t, f, 0, 1, 2)
			enc := &recordingEncoder{}
			compressAll(t, NewCompressController(f, enc, &patternSource{frame: f}, false), PassThrough)

			dec := &replayDecoder{mcus: enc.mcus, suspendEvery: 4}
			c := NewDecompressController(f, dec, false)
			if c.Arrays() != nil {
				t.Fatal("single-scan controller allocated arrays")
			}
			sink := newMapSink(f)
			c.StartInputPass()
			for !c.InputDone() {
				if _, err := c.ConsumeIMCURow(sink); err != nil {
					t.Fatalf("ConsumeIMCURow: %v", err)
				}
			}
			if dec.next != len(enc.mcus) {
				t.Fatalf("decoded %d MCUs, want %d", dec.next, len(enc.mcus))
			}
			sink.check(t)
		})
	}
}

func TestMultiScanRoundTrip(t *testing.T) {
	f := colorFrame(t, 37, 29)
	scans := [][]int{{0}, {1, 2}}

	activate(t, f, scans[0]...)
	enc := &recordingEncoder{}
	cc := NewCompressController(f, enc, &patternSource{frame: f}, true)
	var recorded [][][]common.Block
	for i, scan := range scans {
		activate(t, f, scan...)
		mode := CrankDest
		if i == 0 {
			mode = SaveAndPass
		}
		enc.mcus = nil
		compressAll(t, cc, mode)
		recorded = append(recorded, enc.mcus)
	}

	dc := NewDecompressController(f, nil, true)
	for i, scan := range scans {
		activate(t, f, scan...)
		dc.dec = &replayDecoder{mcus: recorded[i], suspendEvery: 3}
		dc.StartInputPass()
		for !dc.InputDone() {
			if _, err := dc.ConsumeIMCURow(nil); err != nil {
				t.Fatalf("scan %d: ConsumeIMCURow: %v", i, err)
			}
		}
		if got := dc.IMCURow(); got != f.TotalIMCURows {
			t.Fatalf("scan %d: IMCURow = %d, want %d", i, got, f.TotalIMCURows)
		}
	}
	sink := newMapSink(f)
	if err := dc.Output(sink); err != nil {
		t.Fatalf("Output: %v", err)
	}
	sink.check(t)
}

func TestVirtualArrayPadding(t *testing.T) {
	f := colorFrame(t, 37, 29)
	arrays := NewComponentArrays(f)
	want := [][2]int{{6, 4}, {3, 2}, {3, 2}}
	for i, a := range arrays {
		if a.BlocksWide != want[i][0] || a.BlocksHigh != want[i][1] {
			t.Errorf("component %d array is %dx%d, want %dx%d", i, a.BlocksWide, a.BlocksHigh, want[i][0], want[i][1])
		}
	}
	a := arrays[0]
	a.At(3, 5)[0] = 42
	if rows := a.Rows(2, 2); rows[1][5][0] != 42 {
		t.Error("Rows does not share storage with At")
	}
	src := &ArraySource{Arrays: arrays}
	var blk common.Block
	if err := src.ReadBlock(0, 3, 5, &blk); err != nil || blk[0] != 42 {
		t.Errorf("ArraySource.ReadBlock = %d, %v", blk[0], err)
	}
	a.Reset()
	if a.At(3, 5)[0] != 0 {
		t.Error("Reset left data behind")
	}
}
