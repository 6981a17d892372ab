package progressive

import (
	"github.com/cocosip/go-dicom-jpeg/codec"
)

// Codec implements the codec.Codec interface for progressive JPEG.
//
// go-dicom defines no transfer syntax for Processes 10 & 12, so this codec
// is only reachable through the local registry.
type Codec struct{}

// NewCodec creates a new progressive JPEG codec
func NewCodec() *Codec {
	return &Codec{}
}

// Options contains encoding options for progressive JPEG
type Options struct {
	codec.BaseOptions
	RestartInterval int
	FullChroma      bool
}

// Validate validates the options
func (o *Options) Validate() error {
	if o.RestartInterval < 0 || o.RestartInterval > 65535 {
		return codec.ErrInvalidParameter
	}
	return o.BaseOptions.Validate()
}

// Encode encodes pixel data as progressive JPEG
func (c *Codec) Encode(params codec.EncodeParams) ([]byte, error) {
	p := NewProgressiveParameters()
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
		p.RestartInterval = opts.RestartInterval
		p.FullChroma = opts.FullChroma
	}
	return encode(params.PixelData, params.Width, params.Height, params.Components, p)
}

// Decode decodes progressive JPEG data
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

// UID returns the DICOM Transfer Syntax UID for JPEG Full Progression
func (c *Codec) UID() string {
	return "1.2.840.10008.1.2.4.55"
}

// Name returns the human-readable name
func (c *Codec) Name() string {
	return "jpeg-progressive"
}

func init() {
	codec.Register(NewCodec())
}
