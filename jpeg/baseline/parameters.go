package baseline

import (
	"github.com/cocosip/go-dicom/pkg/imaging/codec"
)

// Ensure JPEGBaselineParameters implements codec.Parameters
var _ codec.Parameters = (*JPEGBaselineParameters)(nil)

// JPEGBaselineParameters contains parameters for JPEG Baseline compression
type JPEGBaselineParameters struct {
	// Quality controls the JPEG compression quality (1-100)
	// - 100: Best quality, minimal compression
	// - 85:  High quality (default)
	// - 75:  Medium quality, good balance
	// - 50:  Lower quality, higher compression
	// - 1:   Lowest quality, maximum compression
	Quality int

	// OptimizeCoding computes image-specific Huffman tables in an extra
	// pass instead of using the standard ones.
	OptimizeCoding bool

	// RestartInterval inserts a restart marker every N MCUs (0 = none).
	RestartInterval int

	// internal storage for compatibility with generic parameter interface
	params map[string]interface{}
}

// NewBaselineParameters creates a new JPEGBaselineParameters with default values
func NewBaselineParameters() *JPEGBaselineParameters {
	return &JPEGBaselineParameters{
		Quality: 85, // Default high quality
		params:  make(map[string]interface{}),
	}
}

// GetParameter retrieves a parameter by name (implements codec.Parameters)
func (p *JPEGBaselineParameters) GetParameter(name string) interface{} {
	switch name {
	case "quality":
		return p.Quality
	case "optimizeCoding":
		return p.OptimizeCoding
	case "restartInterval":
		return p.RestartInterval
	default:
		// Check custom parameters
		return p.params[name]
	}
}

// SetParameter sets a parameter value (implements codec.Parameters)
func (p *JPEGBaselineParameters) SetParameter(name string, value interface{}) {
	switch name {
	case "quality":
		if v, ok := value.(int); ok {
			p.Quality = v
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
		// Store as custom parameter
		p.params[name] = value
	}
}

// Validate checks if the parameters are valid
func (p *JPEGBaselineParameters) Validate() error {
	if p.Quality < 1 || p.Quality > 100 {
		p.Quality = 85 // Reset to default
	}
	if p.RestartInterval < 0 || p.RestartInterval > 65535 {
		p.RestartInterval = 0
	}
	return nil
}

// WithQuality sets the quality and returns the parameters for chaining
func (p *JPEGBaselineParameters) WithQuality(quality int) *JPEGBaselineParameters {
	p.Quality = quality
	return p
}

// WithOptimizeCoding enables optimal Huffman tables
func (p *JPEGBaselineParameters) WithOptimizeCoding(optimize bool) *JPEGBaselineParameters {
	p.OptimizeCoding = optimize
	return p
}

// WithRestartInterval sets the restart interval in MCUs
func (p *JPEGBaselineParameters) WithRestartInterval(mcus int) *JPEGBaselineParameters {
	p.RestartInterval = mcus
	return p
}
