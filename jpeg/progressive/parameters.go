package progressive

import (
	"github.com/cocosip/go-dicom/pkg/imaging/codec"

	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

var _ codec.Parameters = (*JPEGProgressiveParameters)(nil)

// JPEGProgressiveParameters contains parameters for progressive JPEG compression
type JPEGProgressiveParameters struct {
	// Quality controls the compression quality (1-100, default 85)
	Quality int

	// BitDepth is the sample precision, 8 or 12 (default 8)
	BitDepth int

	// RestartInterval inserts a restart marker every N MCUs (0 = none).
	RestartInterval int

	// FullChroma keeps chroma at full resolution (4:4:4) instead of 4:2:0.
	FullChroma bool

	// Scans replaces the default scan script. Component indexes follow
	// frame order.
	Scans []common.ScanInfo

	params map[string]interface{}
}

// NewProgressiveParameters creates parameters with default values
func NewProgressiveParameters() *JPEGProgressiveParameters {
	return &JPEGProgressiveParameters{
		Quality:  85,
		BitDepth: 8,
		params:   make(map[string]interface{}),
	}
}

// GetParameter retrieves a parameter by name (implements codec.Parameters)
func (p *JPEGProgressiveParameters) GetParameter(name string) interface{} {
	switch name {
	case "quality":
		return p.Quality
	case "bitDepth":
		return p.BitDepth
	case "restartInterval":
		return p.RestartInterval
	case "fullChroma":
		return p.FullChroma
	default:
		return p.params[name]
	}
}

// SetParameter sets a parameter value (implements codec.Parameters)
func (p *JPEGProgressiveParameters) SetParameter(name string, value interface{}) {
	switch name {
	case "quality":
		if v, ok := value.(int); ok {
			p.Quality = v
		}
	case "bitDepth":
		if v, ok := value.(int); ok {
			p.BitDepth = v
		}
	case "restartInterval":
		if v, ok := value.(int); ok {
			p.RestartInterval = v
		}
	case "fullChroma":
		if v, ok := value.(bool); ok {
			p.FullChroma = v
		}
	default:
		p.params[name] = value
	}
}

// Validate resets out-of-range values to their defaults
func (p *JPEGProgressiveParameters) Validate() error {
	if p.Quality < 1 || p.Quality > 100 {
		p.Quality = 85
	}
	if p.BitDepth != 8 && p.BitDepth != 12 {
		p.BitDepth = 8
	}
	if p.RestartInterval < 0 || p.RestartInterval > 65535 {
		p.RestartInterval = 0
	}
	return nil
}

// WithQuality sets the quality and returns the parameters for chaining
func (p *JPEGProgressiveParameters) WithQuality(quality int) *JPEGProgressiveParameters {
	p.Quality = quality
	return p
}

// WithBitDepth sets the sample precision
func (p *JPEGProgressiveParameters) WithBitDepth(bitDepth int) *JPEGProgressiveParameters {
	p.BitDepth = bitDepth
	return p
}

// WithScans sets a custom scan script
func (p *JPEGProgressiveParameters) WithScans(scans []common.ScanInfo) *JPEGProgressiveParameters {
	p.Scans = scans
	return p
}
