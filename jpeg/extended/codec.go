package extended

import (
	"fmt"

	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"github.com/cocosip/go-dicom/pkg/imaging/codec"
	"github.com/cocosip/go-dicom/pkg/imaging/imagetypes"

	"github.com/cocosip/go-dicom-jpeg/jpeg/standard"
)

var _ codec.Codec = (*ExtendedCodec)(nil)

// ExtendedCodec implements the external codec.Codec interface for JPEG Extended
type ExtendedCodec struct {
	quality  int
	bitDepth int // 8 or 12
}

// NewExtendedCodec creates a new JPEG Extended codec
// bitDepth: 8 or 12 bits per sample
// quality: 1-100, where 100 is best quality (default 85)
func NewExtendedCodec(bitDepth int, quality int) *ExtendedCodec {
	if bitDepth != 8 && bitDepth != 12 {
		bitDepth = 12
	}
	if quality < 1 || quality > 100 {
		quality = 85
	}
	return &ExtendedCodec{
		quality:  quality,
		bitDepth: bitDepth,
	}
}

// Name returns the codec name
func (c *ExtendedCodec) Name() string {
	return fmt.Sprintf("JPEG Extended (%d-bit, Quality %d)", c.bitDepth, c.quality)
}

// TransferSyntax returns the transfer syntax this codec handles
func (c *ExtendedCodec) TransferSyntax() *transfer.Syntax {
	return transfer.JPEGExtended12Bit
}

// GetDefaultParameters returns the default codec parameters
func (c *ExtendedCodec) GetDefaultParameters() codec.Parameters {
	return NewExtendedParameters().WithQuality(c.quality).WithBitDepth(c.bitDepth)
}

func (c *ExtendedCodec) parameters(parameters codec.Parameters) *JPEGExtendedParameters {
	if parameters == nil {
		return NewExtendedParameters().WithQuality(c.quality).WithBitDepth(c.bitDepth)
	}
	if jp, ok := parameters.(*JPEGExtendedParameters); ok {
		cp := *jp
		return &cp
	}
	// Fallback: create from generic parameters
	p := NewExtendedParameters().WithQuality(c.quality).WithBitDepth(c.bitDepth)
	if q, ok := parameters.GetParameter("quality").(int); ok && q >= 1 && q <= 100 {
		p.Quality = q
	}
	if bd, ok := parameters.GetParameter("bitDepth").(int); ok && (bd == 8 || bd == 12) {
		p.BitDepth = bd
	}
	if o, ok := parameters.GetParameter("optimizeCoding").(bool); ok {
		p.OptimizeCoding = o
	}
	if r, ok := parameters.GetParameter("restartInterval").(int); ok {
		p.RestartInterval = r
	}
	return p
}

// Encode encodes pixel data using JPEG Extended
func (c *ExtendedCodec) Encode(oldPixelData imagetypes.PixelData, newPixelData imagetypes.PixelData, parameters codec.Parameters) error {
	if oldPixelData == nil || newPixelData == nil {
		return fmt.Errorf("source and destination PixelData cannot be nil")
	}
	frameInfo := oldPixelData.GetFrameInfo()
	if frameInfo == nil {
		return fmt.Errorf("failed to get frame info from source pixel data")
	}

	p := c.parameters(parameters)
	p.Validate()

	// The sample container decides the precision.
	switch {
	case frameInfo.BitsStored > 12:
		return fmt.Errorf("JPEG Extended supports at most 12 bits per sample, got %d", frameInfo.BitsStored)
	case frameInfo.BitsAllocated > 8:
		p.BitDepth = 12
	case frameInfo.BitsStored > 0:
		p.BitDepth = 8
	}

	frameCount := oldPixelData.FrameCount()
	for frameIndex := 0; frameIndex < frameCount; frameIndex++ {
		frameData, err := oldPixelData.GetFrame(frameIndex)
		if err != nil {
			return fmt.Errorf("failed to get frame %d: %w", frameIndex, err)
		}
		if frameInfo.PixelRepresentation == 1 {
			frameData, err = standard.ShiftSignedFrame(frameData, frameInfo.BitsStored, frameInfo.HighBit, frameInfo.BitsAllocated, true)
			if err != nil {
				return fmt.Errorf("frame %d: %w", frameIndex, err)
			}
		}

		encoded, err := encode(frameData, int(frameInfo.Width), int(frameInfo.Height), int(frameInfo.SamplesPerPixel), p)
		if err != nil {
			return fmt.Errorf("JPEG Extended encode failed for frame %d: %w", frameIndex, err)
		}
		if err := newPixelData.AddFrame(encoded); err != nil {
			return fmt.Errorf("failed to add encoded frame %d: %w", frameIndex, err)
		}
	}
	return nil
}

// Decode decodes JPEG Extended data
func (c *ExtendedCodec) Decode(oldPixelData imagetypes.PixelData, newPixelData imagetypes.PixelData, parameters codec.Parameters) error {
	if oldPixelData == nil || newPixelData == nil {
		return fmt.Errorf("source and destination PixelData cannot be nil")
	}
	frameInfo := oldPixelData.GetFrameInfo()

	frameCount := oldPixelData.FrameCount()
	for frameIndex := 0; frameIndex < frameCount; frameIndex++ {
		frameData, err := oldPixelData.GetFrame(frameIndex)
		if err != nil {
			return fmt.Errorf("failed to get frame %d: %w", frameIndex, err)
		}

		decoded, width, height, _, _, err := Decode(frameData)
		if err != nil {
			return fmt.Errorf("JPEG Extended decode failed for frame %d: %w", frameIndex, err)
		}
		if frameInfo != nil {
			if width != int(frameInfo.Width) || height != int(frameInfo.Height) {
				return fmt.Errorf("decoded dimensions (%dx%d) don't match expected (%dx%d)",
					width, height, frameInfo.Width, frameInfo.Height)
			}
			if frameInfo.PixelRepresentation == 1 {
				decoded, err = standard.ShiftSignedFrame(decoded, frameInfo.BitsStored, frameInfo.HighBit, frameInfo.BitsAllocated, false)
				if err != nil {
					return fmt.Errorf("frame %d: %w", frameIndex, err)
				}
			}
		}

		if err := newPixelData.AddFrame(decoded); err != nil {
			return fmt.Errorf("failed to add decoded frame %d: %w", frameIndex, err)
		}
	}
	return nil
}

// RegisterExtendedCodec registers JPEG Extended codec with the global registry
// bitDepth: 8 or 12 (default 12)
// quality: 1-100 (default 85)
func RegisterExtendedCodec(bitDepth int, quality int) {
	registry := codec.GetGlobalRegistry()
	registry.RegisterCodec(transfer.JPEGProcess2_4, NewExtendedCodec(bitDepth, quality))
}

func init() {
	RegisterExtendedCodec(12, 85)
}
