package extended

import (
	"github.com/cocosip/go-dicom-jpeg/codec"
)

// Codec implements the codec.Codec interface for JPEG Extended
type Codec struct{}

// NewCodec creates a new JPEG Extended codec
func NewCodec() *Codec {
	return &Codec{}
}

// Options contains encoding options for JPEG Extended
type Options struct {
	codec.BaseOptions
	OptimizeCoding  bool
	RestartInterval int
}

// Validate validates the options
func (o *Options) Validate() error {
	if o.RestartInterval < 0 || o.RestartInterval > 65535 {
		return codec.ErrInvalidParameter
	}
	return o.BaseOptions.Validate()
}

// Encode encodes pixel data using JPEG Extended. BitDepth selects 8 or
// 12-bit coding; 0 means 8.
func (c *Codec) Encode(params codec.EncodeParams) ([]byte, error) {
	p := NewExtendedParameters()
	p.BitDepth = 8
	if params.BitDepth > 8 {
		p.BitDepth = params.BitDepth
	}
	if opts, ok := params.Options.(*Options); ok {
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		if opts.Quality > 0 {
			p.Quality = opts.Quality
		}
		p.OptimizeCoding = opts.OptimizeCoding
		p.RestartInterval = opts.RestartInterval
	}
	return encode(params.PixelData, params.Width, params.Height, params.Components, p)
}

// Decode decodes JPEG Extended data
func (c *Codec) Decode(data []byte) (*codec.DecodeResult, error) {
	pixelData, width, height, components, bitDepth, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return &codec.DecodeResult{
		PixelData:  pixelData,
		Width:      width,
		Height:     height,
		Components: components,
		BitDepth:   bitDepth,
	}, nil
}

// UID returns the DICOM Transfer Syntax UID for JPEG Extended
func (c *Codec) UID() string {
	return "1.2.840.10008.1.2.4.51"
}

// Name returns the human-readable name
func (c *Codec) Name() string {
	return "jpeg-extended"
}

func init() {
	codec.Register(NewCodec())
}
