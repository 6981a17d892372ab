// Package standard converts between interleaved pixel buffers and JPEG
// streams. It supplies the pixel side of the codec: colour conversion,
// chroma resampling, level shift, DCT and quantization, and hands
// coefficient blocks to the compress and decompress drivers.
package standard

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"

	"github.com/cocosip/go-dicom-jpeg/jpeg/coef"
	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
	"github.com/cocosip/go-dicom-jpeg/jpeg/compress"
	"github.com/cocosip/go-dicom-jpeg/jpeg/decompress"
	"github.com/cocosip/go-dicom-jpeg/jpeg/marker"
)

// Transform selects the colour transform applied to three-component images.
type Transform int

const (
	// TransformYCbCr converts RGB to YCbCr before coding.
	TransformYCbCr Transform = iota
	// TransformNone codes the components as given.
	TransformNone
)

// Subsampling selects the chroma sampling of YCbCr images.
type Subsampling int

const (
	Subsample420 Subsampling = iota
	Subsample422
	Subsample444
)

// Options controls encoding.
type Options struct {
	// Quality scales the standard quantization tables (1-100).
	Quality int
	// Precision is the sample precision, 8 or 12. 12-bit samples are
	// little-endian uint16.
	Precision int

	Progressive     bool
	OptimizeCoding  bool
	RestartInterval int
	RestartInRows   int
	// Scans overrides the default scan script.
	Scans []common.ScanInfo

	Subsampling Subsampling
	Transform   Transform
	Comment     []byte

	Logger *slog.Logger
}

// DefaultOptions returns quality 85, 8-bit, 4:2:0 YCbCr.
func DefaultOptions() Options {
	return Options{Quality: 85, Precision: 8}
}

// Validate checks the options.
func (o *Options) Validate() error {
	if o.Quality < 1 || o.Quality > 100 {
		return common.ErrInvalidQuality
	}
	if o.Precision != 8 && o.Precision != 12 {
		return fmt.Errorf("%w: %d bits", common.ErrInvalidPrecision, o.Precision)
	}
	if o.Subsampling < Subsample420 || o.Subsampling > Subsample444 {
		return fmt.Errorf("%w: subsampling %d", common.ErrInvalidSampling, o.Subsampling)
	}
	return nil
}

// Image is a decoded image with interleaved samples.
type Image struct {
	Pixels      []byte
	Width       int
	Height      int
	Components  int
	Precision   int
	Progressive bool
	Transform   Transform
}

// Encode compresses interleaved pixels.
func Encode(pixels []byte, width, height, components int, opts Options) ([]byte, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 || width > 65535 || height > 65535 {
		return nil, common.ErrInvalidDimensions
	}
	if components < 1 || components > common.MaxCompsInScan {
		return nil, common.ErrInvalidComponents
	}
	bytesPerSample := 1
	if opts.Precision > 8 {
		bytesPerSample = 2
	}
	if len(pixels) < width*height*components*bytesPerSample {
		return nil, common.ErrBufferTooSmall
	}

	center := int32(1) << (opts.Precision - 1)
	planes := deinterleave(pixels, width, height, components, opts.Precision)
	ycc := components == 3 && opts.Transform == TransformYCbCr
	if ycc {
		rgbToYCbCr(planes, center)
	}

	comps := make([]common.Component, components)
	for i := range comps {
		comps[i] = common.Component{ID: i + 1, H: 1, V: 1}
	}
	tables := &common.Tables{}
	forceBaseline := opts.Precision == 8
	tables.Quant[0] = &common.QuantTable{
		Values: common.ScaleQuantTable(common.DefaultLuminanceQuantTable, opts.Quality, forceBaseline),
	}
	switch {
	case ycc:
		switch opts.Subsampling {
		case Subsample420:
			comps[0].H, comps[0].V = 2, 2
		case Subsample422:
			comps[0].H = 2
		}
		tables.Quant[1] = &common.QuantTable{
			Values: common.ScaleQuantTable(common.DefaultChrominanceQuantTable, opts.Quality, forceBaseline),
		}
		for i := 1; i < 3; i++ {
			comps[i].Tq, comps[i].Td, comps[i].Ta = 1, 1, 1
		}
	case components == 3:
		comps[0].ID, comps[1].ID, comps[2].ID = 'R', 'G', 'B'
	}

	maxH, maxV := comps[0].H, comps[0].V
	for i := range planes {
		planes[i] = downsample(planes[i], maxH/comps[i].H, maxV/comps[i].V)
	}

	cfg := compress.Config{
		Precision:       opts.Precision,
		Width:           width,
		Height:          height,
		Components:      comps,
		Progressive:     opts.Progressive,
		OptimizeCoding:  opts.OptimizeCoding,
		RestartInterval: opts.RestartInterval,
		RestartInRows:   opts.RestartInRows,
		Scans:           opts.Scans,
		Comment:         opts.Comment,
		Logger:          opts.Logger,
	}
	if opts.Precision > 8 {
		// The standard Huffman tables have no codes for the magnitude
		// categories 12-bit samples reach.
		cfg.OptimizeCoding = true
	}
	if components == 3 && !ycc {
		cfg.WriteAdobe = true
	} else if components == 1 || ycc {
		cfg.JFIF = &marker.JFIF{MajorVersion: 1, MinorVersion: 1, XDensity: 1, YDensity: 1}
	}

	src := &planeSource{planes: planes, tables: tables, comps: comps, center: center}
	c, err := compress.New(cfg, tables, src)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := c.Compress(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// planeSource produces quantized blocks from component planes.
type planeSource struct {
	planes []*plane
	tables *common.Tables
	comps  []common.Component
	center int32
}

func (s *planeSource) ReadBlock(comp, row, col int, dst *common.Block) error {
	p := s.planes[comp]
	var blk [64]float64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			blk[y*8+x] = float64(p.at(col*8+x, row*8+y) - s.center)
		}
	}
	FDCT(&blk)
	Quantize(&blk, &s.tables.Quant[s.comps[comp].Tq].Values, dst)
	return nil
}

var _ coef.BlockSource = (*planeSource)(nil)

// planeSink reconstructs component planes from coefficient blocks.
type planeSink struct {
	frame  *common.Frame
	tables *common.Tables
	planes []*plane
	center int32
	maxVal int32
}

func newPlaneSink(f *common.Frame, tables *common.Tables) *planeSink {
	s := &planeSink{
		frame:  f,
		tables: tables,
		planes: make([]*plane, len(f.Components)),
		center: int32(1) << (f.Precision - 1),
	}
	s.maxVal = 2*s.center - 1
	for i := range f.Components {
		c := &f.Components[i]
		s.planes[i] = newPlane(c.WidthInBlocks*8, c.HeightInBlocks*8)
	}
	return s
}

func (s *planeSink) WriteBlock(comp, row, col int, blk *common.Block) error {
	c := &s.frame.Components[comp]
	q := s.tables.Quant[c.Tq]
	if q == nil {
		return fmt.Errorf("%w: slot %d", common.ErrMissingQuantTable, c.Tq)
	}
	var buf [64]float64
	Dequantize(blk, &q.Values, &buf)
	IDCT(&buf)
	p := s.planes[comp]
	for y := 0; y < 8; y++ {
		line := p.pix[(row*8+y)*p.width+col*8:]
		for x := 0; x < 8; x++ {
			v := int32(math.Round(buf[y*8+x])) + s.center
			line[x] = common.Clamp(v, 0, s.maxVal)
		}
	}
	return nil
}

// lazySink defers building the plane sink until the frame is known.
type lazySink struct {
	d    *decompress.Decompressor
	sink *planeSink
}

func (l *lazySink) WriteBlock(comp, row, col int, blk *common.Block) error {
	if l.sink == nil {
		l.sink = newPlaneSink(l.d.Frame(), l.d.Tables())
	}
	return l.sink.WriteBlock(comp, row, col, blk)
}

// Decode decompresses a complete JPEG stream.
func Decode(data []byte, logger *slog.Logger) (*Image, error) {
	lazy := &lazySink{}
	d := decompress.New(lazy, logger)
	lazy.d = d
	d.Write(data)
	d.Close()
	res, err := d.Run()
	if err != nil {
		return nil, err
	}
	f := d.Frame()
	if res != decompress.ReachedEOI || f == nil {
		return nil, common.ErrUnexpectedEOF
	}
	if lazy.sink == nil {
		return nil, common.ErrUnexpectedEOF
	}

	planes := lazy.sink.planes
	for i := range planes {
		c := &f.Components[i]
		planes[i] = upsample(planes[i], c.H, c.V, f.MaxH, f.MaxV, f.Width, f.Height)
	}
	transform := colorTransform(d.Markers(), f)
	if transform == TransformYCbCr {
		ycbcrToRGB(planes, lazy.sink.center)
	}
	return &Image{
		Pixels:      interleave(planes, f.Width, f.Height, f.Precision),
		Width:       f.Width,
		Height:      f.Height,
		Components:  len(f.Components),
		Precision:   f.Precision,
		Progressive: f.Progressive,
		Transform:   transform,
	}, nil
}

// colorTransform decides whether a three-component image is YCbCr: an
// Adobe segment says so explicitly, JFIF implies it, and component IDs
// 'R', 'G', 'B' rule it out.
func colorTransform(mr *marker.Reader, f *common.Frame) Transform {
	if len(f.Components) != 3 {
		return TransformNone
	}
	if mr.Adobe != nil {
		if mr.Adobe.Transform == 0 {
			return TransformNone
		}
		return TransformYCbCr
	}
	if mr.JFIF != nil {
		return TransformYCbCr
	}
	c := f.Components
	if c[0].ID == 'R' && c[1].ID == 'G' && c[2].ID == 'B' {
		return TransformNone
	}
	return TransformYCbCr
}
