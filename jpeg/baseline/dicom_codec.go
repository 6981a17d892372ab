package baseline

import (
	"fmt"

	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"github.com/cocosip/go-dicom/pkg/imaging/codec"
	"github.com/cocosip/go-dicom/pkg/imaging/imagetypes"

	"github.com/cocosip/go-dicom-jpeg/jpeg/standard"
)

var _ codec.Codec = (*BaselineCodec)(nil)

// BaselineCodec implements the external codec.Codec interface for JPEG Baseline
type BaselineCodec struct {
	quality int
}

// NewBaselineCodec creates a new JPEG Baseline codec
// quality: 1-100, where 100 is best quality (default 85)
func NewBaselineCodec(quality int) *BaselineCodec {
	if quality < 1 || quality > 100 {
		quality = 85
	}
	return &BaselineCodec{quality: quality}
}

// Name returns the codec name
func (c *BaselineCodec) Name() string {
	return fmt.Sprintf("JPEG Baseline (Quality %d)", c.quality)
}

// TransferSyntax returns the transfer syntax this codec handles
func (c *BaselineCodec) TransferSyntax() *transfer.Syntax {
	return transfer.JPEGBaseline8Bit
}

// GetDefaultParameters returns the default codec parameters
func (c *BaselineCodec) GetDefaultParameters() codec.Parameters {
	return NewBaselineParameters().WithQuality(c.quality)
}

// parameters resolves typed, generic or default parameters.
func (c *BaselineCodec) parameters(parameters codec.Parameters) *JPEGBaselineParameters {
	if parameters == nil {
		return NewBaselineParameters().WithQuality(c.quality)
	}
	if bp, ok := parameters.(*JPEGBaselineParameters); ok {
		cp := *bp
		return &cp
	}
	// Fallback: create from generic parameters
	p := NewBaselineParameters().WithQuality(c.quality)
	if q, ok := parameters.GetParameter("quality").(int); ok {
		p.Quality = q
	}
	if o, ok := parameters.GetParameter("optimizeCoding").(bool); ok {
		p.OptimizeCoding = o
	}
	if r, ok := parameters.GetParameter("restartInterval").(int); ok {
		p.RestartInterval = r
	}
	return p
}

// Encode encodes pixel data using JPEG Baseline
func (c *BaselineCodec) Encode(oldPixelData imagetypes.PixelData, newPixelData imagetypes.PixelData, parameters codec.Parameters) error {
	if oldPixelData == nil || newPixelData == nil {
		return fmt.Errorf("source and destination PixelData cannot be nil")
	}
	frameInfo := oldPixelData.GetFrameInfo()
	if frameInfo == nil {
		return fmt.Errorf("failed to get frame info from source pixel data")
	}
	if frameInfo.BitsAllocated != 8 || frameInfo.BitsStored > 8 {
		return fmt.Errorf("JPEG Baseline requires 8-bit samples, got BitsAllocated=%d BitsStored=%d",
			frameInfo.BitsAllocated, frameInfo.BitsStored)
	}

	p := c.parameters(parameters)
	p.Validate()

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
			return fmt.Errorf("JPEG Baseline encode failed for frame %d: %w", frameIndex, err)
		}
		if err := newPixelData.AddFrame(encoded); err != nil {
			return fmt.Errorf("failed to add encoded frame %d: %w", frameIndex, err)
		}
	}
	return nil
}

// Decode decodes JPEG Baseline data
func (c *BaselineCodec) Decode(oldPixelData imagetypes.PixelData, newPixelData imagetypes.PixelData, parameters codec.Parameters) error {
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

		decoded, width, height, components, err := Decode(frameData)
		if err != nil {
			return fmt.Errorf("JPEG Baseline decode failed for frame %d: %w", frameIndex, err)
		}
		if frameInfo != nil {
			if width != int(frameInfo.Width) || height != int(frameInfo.Height) {
				return fmt.Errorf("decoded dimensions (%dx%d) don't match expected (%dx%d)",
					width, height, frameInfo.Width, frameInfo.Height)
			}
			if components != int(frameInfo.SamplesPerPixel) {
				return fmt.Errorf("decoded components (%d) don't match expected (%d)",
					components, frameInfo.SamplesPerPixel)
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

// RegisterBaselineCodec registers the JPEG Baseline codec with the global registry
func RegisterBaselineCodec(quality int) {
	registry := codec.GetGlobalRegistry()
	registry.RegisterCodec(transfer.JPEGBaseline8Bit, NewBaselineCodec(quality))
}

func init() {
	RegisterBaselineCodec(85)
}
