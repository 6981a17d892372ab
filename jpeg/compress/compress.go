// Package compress sequences the passes of a JPEG compression: it lays out
// the scan script, decides which scans need a statistics pass for optimal
// Huffman tables, writes the headers and trailer, and drives the
// coefficient controller and entropy encoder through each pass.
package compress

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cocosip/go-dicom-jpeg/jpeg/bitio"
	"github.com/cocosip/go-dicom-jpeg/jpeg/coef"
	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
	"github.com/cocosip/go-dicom-jpeg/jpeg/entropy"
	"github.com/cocosip/go-dicom-jpeg/jpeg/marker"
)

// Config describes the image and how it is to be coded.
type Config struct {
	Precision int
	Width     int
	Height    int
	// Components lists the image components. ID, H, V, Tq, Td and Ta are
	// used; the geometry fields are computed.
	Components []common.Component

	// Progressive selects SOF2 coding. Optimal Huffman tables are always
	// generated for progressive frames.
	Progressive bool
	// Scans is the scan script. Empty selects SequentialScript or
	// SimpleProgression.
	Scans []common.ScanInfo
	// OptimizeCoding makes an extra pass per scan to compute optimal
	// Huffman tables.
	OptimizeCoding bool

	// RestartInterval is the number of MCUs between restart markers.
	RestartInterval int
	// RestartInRows, when set, overrides RestartInterval with a number of
	// MCU rows, converted per scan.
	RestartInRows int

	// JFIF, when set, is written as an APP0 segment after SOI.
	JFIF *marker.JFIF
	// WriteAdobe adds an Adobe APP14 segment carrying AdobeTransform.
	WriteAdobe     bool
	AdobeTransform int
	// Comment, when non-empty, is written as a COM segment.
	Comment []byte

	// Logger receives pass transitions at debug level. Nil is silent.
	Logger *slog.Logger
}

// Validate checks the parts of the configuration that do not depend on
// the frame geometry.
func (c *Config) Validate() error {
	if c.Precision != 8 && c.Precision != 12 {
		return fmt.Errorf("%w: %d bits", common.ErrInvalidPrecision, c.Precision)
	}
	if c.RestartInterval < 0 || c.RestartInterval > 65535 {
		return fmt.Errorf("%w: restart interval %d", common.ErrInvalidDRI, c.RestartInterval)
	}
	if c.RestartInRows < 0 {
		return fmt.Errorf("%w: restart interval %d rows", common.ErrInvalidDRI, c.RestartInRows)
	}
	for i := range c.Components {
		comp := &c.Components[i]
		if comp.Tq < 0 || comp.Tq > 3 {
			return fmt.Errorf("%w: component %d uses table %d", common.ErrMissingQuantTable, comp.ID, comp.Tq)
		}
		if comp.Td < 0 || comp.Td >= common.NumHuffTables || comp.Ta < 0 || comp.Ta >= common.NumHuffTables {
			return fmt.Errorf("%w: component %d uses tables %d/%d", common.ErrMissingHuffTable, comp.ID, comp.Td, comp.Ta)
		}
	}
	return nil
}

type passKind int

const (
	mainPass passKind = iota
	huffOptPass
	outputPass
)

func (k passKind) String() string {
	switch k {
	case mainPass:
		return "main"
	case huffOptPass:
		return "huffman optimize"
	case outputPass:
		return "output"
	}
	return "unknown"
}

type pass struct {
	kind   passKind
	scan   int
	gather bool
	mode   coef.BufferMode
}

type stage int

const (
	stageStart stage = iota
	stageHeaders
	stageData
	stageFinish
	stageTrailer
	stageDone
)

// Compressor codes one image from quantized blocks. Output accumulates in
// a sink; with a sink limit set, Step returns whenever the sink fills so
// the caller can drain it.
type Compressor struct {
	cfg    Config
	frame  *common.Frame
	tables *common.Tables
	scans  []common.ScanInfo
	passes []pass

	sink *bitio.Sink
	mw   *marker.Writer
	enc  entropy.Encoder
	coef *coef.CompressController
	log  *slog.Logger

	passIdx    int
	stage      stage
	headerStep int
}

// New prepares a compressor. tables supplies the quantization tables and,
// unless they are to be optimized, the Huffman tables; missing Huffman
// tables in slots 0 and 1 are filled with the standard ones. The
// compressor works on a copy of tables, available from Tables. src
// supplies the quantized blocks.
func New(cfg Config, tables *common.Tables, src coef.BlockSource) (*Compressor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tables = tables.Clone()
	comps := make([]common.Component, len(cfg.Components))
	copy(comps, cfg.Components)
	f, err := common.NewFrame(cfg.Precision, cfg.Width, cfg.Height, comps)
	if err != nil {
		return nil, err
	}
	f.Progressive = cfg.Progressive

	scans := cfg.Scans
	if len(scans) == 0 {
		if cfg.Progressive {
			scans = SimpleProgression(len(comps))
		} else {
			scans = SequentialScript(len(comps))
		}
	}
	if err := ValidateScript(f, scans); err != nil {
		return nil, err
	}

	optimize := cfg.OptimizeCoding || cfg.Progressive
	for i := range comps {
		c := &comps[i]
		if tables.Quant[c.Tq] == nil {
			return nil, fmt.Errorf("%w: slot %d", common.ErrMissingQuantTable, c.Tq)
		}
		if !optimize {
			if tables.DC[c.Td] == nil && c.Td < 2 {
				tables.DC[c.Td] = common.StandardSpec(false, c.Td)
			}
			if tables.AC[c.Ta] == nil && c.Ta < 2 {
				tables.AC[c.Ta] = common.StandardSpec(true, c.Ta)
			}
		}
	}
	// Every table goes out with this image.
	for _, q := range tables.Quant {
		if q != nil {
			q.Sent = false
		}
	}
	for i := 0; i < common.NumHuffTables; i++ {
		if tables.DC[i] != nil {
			tables.DC[i].Sent = false
		}
		if tables.AC[i] != nil {
			tables.AC[i].Sent = false
		}
	}

	fullBuffer := len(scans) > 1 || optimize
	c := &Compressor{
		cfg:    cfg,
		frame:  f,
		tables: tables,
		scans:  scans,
		passes: planPasses(f, scans, optimize, fullBuffer),
		sink:   bitio.NewSink(),
		log:    cfg.Logger,
	}
	bw := bitio.NewWriter(c.sink)
	if cfg.Progressive {
		c.enc = entropy.NewProgressiveEncoder(bw, tables)
	} else {
		c.enc = entropy.NewHuffmanEncoder(bw, tables)
	}
	c.mw = marker.NewWriter(c.sink, tables)
	c.coef = coef.NewCompressController(f, c.enc, src, fullBuffer)
	return c, nil
}

// planPasses lists the passes in order. The first scan is read from the
// source in the main pass; when that pass only gathers statistics, an
// output pass follows it. Later scans get a statistics pass when optimizing,
// except DC refinement scans, which use no Huffman tables.
func planPasses(f *common.Frame, scans []common.ScanInfo, optimize, fullBuffer bool) []pass {
	var passes []pass
	for i := range scans {
		needOpt := optimize
		if f.Progressive && entropy.ModeOf(&scans[i]) == entropy.DCRefine {
			needOpt = false
		}
		if i == 0 {
			mode := coef.PassThrough
			if fullBuffer {
				mode = coef.SaveAndPass
			}
			passes = append(passes, pass{kind: mainPass, scan: 0, gather: needOpt, mode: mode})
			if needOpt {
				passes = append(passes, pass{kind: outputPass, scan: 0, mode: coef.CrankDest})
			}
			continue
		}
		if needOpt {
			passes = append(passes, pass{kind: huffOptPass, scan: i, gather: true, mode: coef.CrankDest})
		}
		passes = append(passes, pass{kind: outputPass, scan: i, mode: coef.CrankDest})
	}
	return passes
}

// Frame returns the frame being coded.
func (c *Compressor) Frame() *common.Frame {
	return c.frame
}

// Tables returns the tables the image is coded with, including any
// optimal Huffman tables generated so far.
func (c *Compressor) Tables() *common.Tables {
	return c.tables
}

// Scans returns the scan script in use.
func (c *Compressor) Scans() []common.ScanInfo {
	return c.scans
}

// Passes returns the number of passes the image takes.
func (c *Compressor) Passes() int {
	return len(c.passes)
}

// Sink returns the output buffer.
func (c *Compressor) Sink() *bitio.Sink {
	return c.sink
}

// SetOutputLimit bounds the undrained output; see bitio.Sink.SetLimit.
func (c *Compressor) SetOutputLimit(n int) {
	c.sink.SetLimit(n)
}

// Done reports whether the whole image, EOI included, has been written.
func (c *Compressor) Done() bool {
	return c.stage == stageDone
}

// Step runs the compression until it completes or the sink is full. It
// returns true once the image is complete.
func (c *Compressor) Step() (bool, error) {
	for c.stage != stageDone {
		if c.passIdx >= len(c.passes) && c.stage != stageTrailer {
			c.stage = stageTrailer
		}
		var ok bool
		var err error
		switch c.stage {
		case stageStart:
			err = c.startPass()
			ok = err == nil
		case stageHeaders:
			ok, err = c.writeHeaders()
		case stageData:
			ok, err = c.compressData()
		case stageFinish:
			ok, err = c.enc.FinishPass()
			if ok && err == nil {
				c.passIdx++
				c.stage = stageStart
			}
		case stageTrailer:
			ok, err = c.tryWrite(c.mw.WriteEOI)
			if ok && err == nil {
				c.stage = stageDone
			}
		}
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Compress runs the whole compression, writing output to w.
func (c *Compressor) Compress(w io.Writer) error {
	for {
		done, err := c.Step()
		if err != nil {
			return err
		}
		if !done && c.sink.Len() == 0 {
			return fmt.Errorf("%w: output limit too small to make progress", common.ErrBufferTooSmall)
		}
		if _, err := c.sink.WriteTo(w); err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (c *Compressor) startPass() error {
	p := &c.passes[c.passIdx]
	f := c.frame
	if err := f.SetupScan(c.scans[p.scan]); err != nil {
		return err
	}
	f.RestartInterval = c.cfg.RestartInterval
	if c.cfg.RestartInRows > 0 {
		f.RestartInterval = min(c.cfg.RestartInRows*f.MCUsPerRow, 65535)
	}
	if err := c.enc.StartPass(f, p.gather); err != nil {
		return fmt.Errorf("scan %d: %w", p.scan, err)
	}
	if err := c.coef.StartPass(p.mode); err != nil {
		return err
	}
	if c.log != nil {
		c.log.Debug("start pass", "pass", c.passIdx, "kind", p.kind.String(), "scan", p.scan,
			"mode", p.mode.String(), "gather", p.gather)
	}
	c.headerStep = 0
	c.stage = stageData
	if !p.gather {
		c.stage = stageHeaders
	}
	return nil
}

// tryWrite runs a marker write. A full sink with output waiting suspends
// so the caller can drain it; a full sink with nothing in it is fatal.
// Marker segments are written whole, so retrying the write is safe.
func (c *Compressor) tryWrite(write func() error) (bool, error) {
	err := write()
	if errors.Is(err, common.ErrCantSuspend) && c.sink.Len() > 0 {
		return false, nil
	}
	return err == nil, err
}

// writeHeaders writes the file header and frame header before the first
// output pass and the scan header before each output pass.
func (c *Compressor) writeHeaders() (bool, error) {
	first := c.passes[c.passIdx].scan == 0
	steps := []func() error{c.writeScanHeader}
	if first {
		steps = []func() error{
			c.mw.WriteSOI,
			c.writeJFIF,
			c.writeAdobe,
			c.writeComment,
			c.writeFrameHeader,
			c.writeScanHeader,
		}
	}
	for c.headerStep < len(steps) {
		ok, err := c.tryWrite(steps[c.headerStep])
		if !ok || err != nil {
			return false, err
		}
		c.headerStep++
	}
	c.stage = stageData
	return true, nil
}

func (c *Compressor) writeJFIF() error {
	if c.cfg.JFIF == nil {
		return nil
	}
	return c.mw.WriteJFIF(c.cfg.JFIF)
}

func (c *Compressor) writeAdobe() error {
	if !c.cfg.WriteAdobe {
		return nil
	}
	return c.mw.WriteAdobe(c.cfg.AdobeTransform)
}

func (c *Compressor) writeComment() error {
	if len(c.cfg.Comment) == 0 {
		return nil
	}
	return c.mw.WriteMarker(common.MarkerCOM, c.cfg.Comment)
}

func (c *Compressor) writeFrameHeader() error {
	return c.mw.WriteFrameHeader(c.frame)
}

func (c *Compressor) writeScanHeader() error {
	return c.mw.WriteScanHeader(c.frame)
}

func (c *Compressor) compressData() (bool, error) {
	for !c.coef.Done() {
		ok, err := c.coef.CompressIMCURow()
		if !ok || err != nil {
			return false, err
		}
	}
	c.stage = stageFinish
	return true, nil
}
