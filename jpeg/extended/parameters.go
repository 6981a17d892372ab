package extended

import (
	"github.com/cocosip/go-dicom/pkg/imaging/codec"
)

// Ensure JPEGExtendedParameters implements codec.Parameters
var _ codec.Parameters = (*JPEGExtendedParameters)(nil)

// JPEGExtendedParameters contains parameters for JPEG Extended compression
type JPEGExtendedParameters struct {
	// Quality controls the JPEG compression quality (1-100)
	// - 100: Best quality, minimal compression
	// - 85:  High quality (default)
	// - 50:  Lower quality, higher compression
	Quality int

	// BitDepth controls the bits per sample (8 or 12)
	// - 8:  Standard 8-bit encoding
	// - 12: Extended 12-bit encoding (default, main feature of JPEG Extended)
	BitDepth int

	// OptimizeCoding computes image-specific Huffman tables.
	OptimizeCoding bool

	// RestartInterval inserts a restart marker every N MCUs (0 = none).
	RestartInterval int

	// internal storage for compatibility with generic parameter interface
	params map[string]interface{}
}

// NewExtendedParameters creates a new JPEGExtendedParameters with default values
func NewExtendedParameters() *JPEGExtendedParameters {
	return &JPEGExtendedParameters{
		Quality:  85,
		BitDepth: 12,
		params:   make(map[string]interface{}),
	}
}

// GetParameter retrieves a parameter by name (implements codec.Parameters)
func (p *JPEGExtendedParameters) GetParameter(name string) interface{} {
	switch name {
	case "quality":
		return p.Quality
	case "bitDepth":
		return p.BitDepth
	case "optimizeCoding":
		return p.OptimizeCoding
	case "restartInterval":
		return p.RestartInterval
	default:
		return p.params[name]
	}
}

// SetParameter sets a parameter value (implements codec.Parameters)
func (p *JPEGExtendedParameters) SetParameter(name string, value interface{}) {
	switch name {
	case "quality":
		if v, ok := value.(int); ok {
			p.Quality = v
		}
	case "bitDepth":
		if v, ok := value.(int); ok {
			p.BitDepth = v
		}
	case "optimizeCoding":
		if v, ok := value.(bool); ok {
			p.OptimizeCoding = v
		}
	case "restartInterval":
		if v, ok := value.(int); ok {
			p.RestartInterval = v
		}
	default:
		p.params[name] = value
	}
}

// Validate checks if the parameters are valid and adjusts them if needed
func (p *JPEGExtendedParameters) Validate() error {
	if p.Quality < 1 || p.Quality > 100 {
		p.Quality = 85
	}
	if p.BitDepth != 8 && p.BitDepth != 12 {
		p.BitDepth = 12
	}
	if p.RestartInterval < 0 || p.RestartInterval > 65535 {
		p.RestartInterval = 0
	}
	return nil
}

// WithQuality sets the quality and returns the parameters for chaining
func (p *JPEGExtendedParameters) WithQuality(quality int) *JPEGExtendedParameters {
	p.Quality = quality
	return p
}

// WithBitDepth sets the bit depth and returns the parameters for chaining
func (p *JPEGExtendedParameters) WithBitDepth(bitDepth int) *JPEGExtendedParameters {
	p.BitDepth = bitDepth
	return p
}
