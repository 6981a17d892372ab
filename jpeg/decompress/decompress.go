// Package decompress drives JPEG decoding from a byte stream that may
// arrive in pieces. Each call consumes what input is available and reports
// how far it got; decoded coefficient blocks are delivered to a BlockSink.
package decompress

import (
	"fmt"
	"log/slog"

	"github.com/cocosip/go-dicom-jpeg/jpeg/bitio"
	"github.com/cocosip/go-dicom-jpeg/jpeg/coef"
	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
	"github.com/cocosip/go-dicom-jpeg/jpeg/entropy"
	"github.com/cocosip/go-dicom-jpeg/jpeg/marker"
)

// Result tells the caller what ConsumeInput accomplished.
type Result int

const (
	// Suspended means more input is needed.
	Suspended Result = iota
	// ReachedSOS means a scan header was read and its data follows.
	ReachedSOS
	// ReachedEOI means the image is complete.
	ReachedEOI
	// RowCompleted means an iMCU row of the current scan was decoded.
	RowCompleted
	// ScanCompleted means the last iMCU row of the current scan was decoded.
	ScanCompleted
)

func (r Result) String() string {
	switch r {
	case Suspended:
		return "suspended"
	case ReachedSOS:
		return "reached SOS"
	case ReachedEOI:
		return "reached EOI"
	case RowCompleted:
		return "row completed"
	case ScanCompleted:
		return "scan completed"
	}
	return "unknown"
}

type state int

const (
	stateHeader state = iota
	stateScan
	stateMarkers
	stateDone
)

// DefaultMaxMemory is the default limit on the coefficient arrays of a
// buffered image.
const DefaultMaxMemory = 512 << 20

// Decompressor decodes one JPEG image.
type Decompressor struct {
	src    *bitio.Source
	diag   *common.Diagnostics
	tables *common.Tables
	mr     *marker.Reader
	br     *bitio.Reader
	dec    entropy.Decoder
	coef   *coef.DecompressController
	sink   coef.BlockSink
	log    *slog.Logger

	frame     *common.Frame
	multiScan bool
	state     state
	maxMemory int64
}

// New creates a decompressor delivering blocks to sink. With a nil sink
// every scan is kept in coefficient arrays, available from Coefficients
// once the image is complete. Warnings are logged through logger, which
// may be nil.
func New(sink coef.BlockSink, logger *slog.Logger) *Decompressor {
	diag := common.NewDiagnostics(logger)
	src := bitio.NewSource(diag)
	tables := &common.Tables{}
	return &Decompressor{
		src:    src,
		diag:   diag,
		tables: tables,
		mr:     marker.NewReader(src, tables, diag),
		sink:   sink,
		log:    logger,

		maxMemory: DefaultMaxMemory,
	}
}

// SetMaxMemory limits the bytes of coefficient arrays kept for
// progressive, multi-scan and sinkless decoding. A frame needing more
// fails with ErrMemoryLimit before anything is allocated. n <= 0 removes
// the limit. It must be called before the first scan header is read.
func (d *Decompressor) SetMaxMemory(n int64) {
	d.maxMemory = n
}

// Write supplies more input.
func (d *Decompressor) Write(p []byte) (int, error) {
	return d.src.Write(p)
}

// Close marks the end of input. A stream cut short then decodes as if the
// missing data were zero, with a warning.
func (d *Decompressor) Close() error {
	return d.src.Close()
}

// Markers exposes the marker reader, for JFIF and Adobe fields, saved
// application segments and the restart resync hook.
func (d *Decompressor) Markers() *marker.Reader {
	return d.mr
}

// Diagnostics returns the warning counters.
func (d *Decompressor) Diagnostics() *common.Diagnostics {
	return d.diag
}

// Tables returns the quantization and Huffman tables defined so far.
func (d *Decompressor) Tables() *common.Tables {
	return d.tables
}

// Frame returns the frame once the header has been read, else nil.
func (d *Decompressor) Frame() *common.Frame {
	return d.frame
}

// Coefficients returns the coefficient arrays when the image was decoded
// into them: for progressive and multi-scan images, and whenever no sink
// was given.
func (d *Decompressor) Coefficients() []*coef.VirtualArray {
	if d.coef == nil {
		return nil
	}
	return d.coef.Arrays()
}

// ReadHeader reads markers up to the first scan. It returns false if more
// input is needed.
func (d *Decompressor) ReadHeader() (bool, error) {
	if d.state != stateHeader {
		return true, nil
	}
	res, err := d.ConsumeInput()
	if err != nil {
		return false, err
	}
	if res == ReachedEOI {
		return false, common.ErrSOFWithoutSOS
	}
	return res == ReachedSOS, nil
}

// ConsumeInput makes as much progress as the buffered input allows, up to
// the next scan boundary or iMCU row.
func (d *Decompressor) ConsumeInput() (Result, error) {
	d.src.Compact()
	switch d.state {
	case stateHeader, stateMarkers:
		return d.consumeMarkers()
	case stateScan:
		return d.consumeData()
	}
	return ReachedEOI, nil
}

func (d *Decompressor) consumeMarkers() (Result, error) {
	res, err := d.mr.ReadMarkers()
	if err != nil {
		return Suspended, err
	}
	switch res {
	case marker.ReachedSOS:
		if d.state == stateHeader {
			if err := d.initialSetup(); err != nil {
				return Suspended, err
			}
		} else if !d.multiScan {
			return Suspended, common.ErrEOIExpected
		}
		if err := d.dec.StartPass(d.frame); err != nil {
			return Suspended, err
		}
		d.coef.StartInputPass()
		d.state = stateScan
		if d.log != nil {
			scan := &d.frame.Scan
			d.log.Debug("start scan", "scan", d.mr.Scans, "components", len(scan.Components),
				"ss", scan.Ss, "se", scan.Se, "ah", scan.Ah, "al", scan.Al)
		}
		return ReachedSOS, nil
	case marker.ReachedEOI:
		if d.state == stateHeader {
			if d.mr.Frame != nil {
				return Suspended, common.ErrSOFWithoutSOS
			}
			// Tables-only stream.
			d.state = stateDone
			return ReachedEOI, nil
		}
		if d.multiScan && d.sink != nil {
			if err := d.coef.Output(d.sink); err != nil {
				return Suspended, err
			}
		}
		d.state = stateDone
		return ReachedEOI, nil
	}
	return Suspended, nil
}

// initialSetup builds the decoding machinery once the first scan header
// has been read.
func (d *Decompressor) initialSetup() error {
	f := d.mr.Frame
	if f == nil {
		return common.ErrSOSBeforeSOF
	}
	d.multiScan = f.HasMultipleScans()
	buffered := d.multiScan || d.sink == nil
	if need := coef.ArrayBytes(f); buffered && d.maxMemory > 0 && need > d.maxMemory {
		return fmt.Errorf("%w: %dx%d frame needs %d bytes, limit %d",
			common.ErrMemoryLimit, f.Width, f.Height, need, d.maxMemory)
	}
	d.frame = f
	d.br = bitio.NewReader(d.src, d.diag)
	if f.Progressive {
		d.dec = entropy.NewProgressiveDecoder(d.br, d.tables, d.mr, d.diag)
	} else {
		d.dec = entropy.NewHuffmanDecoder(d.br, d.tables, d.mr, d.diag)
	}
	d.coef = coef.NewDecompressController(f, d.dec, buffered)
	if d.log != nil {
		d.log.Debug("frame", "width", f.Width, "height", f.Height, "precision", f.Precision,
			"components", len(f.Components), "progressive", f.Progressive)
	}
	return nil
}

func (d *Decompressor) consumeData() (Result, error) {
	ok, err := d.coef.ConsumeIMCURow(d.sink)
	if err != nil {
		return Suspended, fmt.Errorf("scan %d row %d: %w", d.mr.Scans, d.coef.IMCURow(), err)
	}
	if !ok {
		return Suspended, nil
	}
	if d.coef.InputDone() {
		d.state = stateMarkers
		return ScanCompleted, nil
	}
	return RowCompleted, nil
}

// Run consumes all buffered input, returning ReachedEOI when the image is
// complete or Suspended when more input is needed.
func (d *Decompressor) Run() (Result, error) {
	for {
		res, err := d.ConsumeInput()
		if err != nil || res == Suspended || res == ReachedEOI {
			return res, err
		}
	}
}

// Decode decodes a complete in-memory image.
func Decode(data []byte, sink coef.BlockSink, logger *slog.Logger) (*Decompressor, error) {
	d := New(sink, logger)
	d.Write(data)
	d.Close()
	res, err := d.Run()
	if err != nil {
		return nil, err
	}
	if res != ReachedEOI {
		return nil, common.ErrUnexpectedEOF
	}
	return d, nil
}
