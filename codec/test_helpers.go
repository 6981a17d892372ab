package codec

import (
	"bytes"
	"fmt"

	"github.com/cocosip/go-dicom/pkg/imaging/imagetypes"
)

// TestPixelData is an in-memory imagetypes.PixelData holding either native
// frames or JPEG streams, for tests and examples.
type TestPixelData struct {
	frames    [][]byte
	frameInfo *imagetypes.FrameInfo
}

// NewTestPixelData creates an empty frame list described by frameInfo.
func NewTestPixelData(frameInfo *imagetypes.FrameInfo) *TestPixelData {
	return &TestPixelData{frameInfo: frameInfo}
}

// GetFrame returns frame frameIndex (0-based).
func (p *TestPixelData) GetFrame(frameIndex int) ([]byte, error) {
	if frameIndex < 0 || frameIndex >= len(p.frames) {
		return nil, fmt.Errorf("%w: frame %d of %d", ErrInvalidParameter, frameIndex, len(p.frames))
	}
	return p.frames[frameIndex], nil
}

// AddFrame appends a frame.
func (p *TestPixelData) AddFrame(frameData []byte) error {
	p.frames = append(p.frames, frameData)
	return nil
}

// FrameCount returns the number of frames.
func (p *TestPixelData) FrameCount() int {
	return len(p.frames)
}

// GetFrameInfo returns the frame description.
func (p *TestPixelData) GetFrameInfo() *imagetypes.FrameInfo {
	return p.frameInfo
}

// IsEncapsulated reports whether the frames are JPEG streams, judged by an
// SOI marker at the start of the first frame.
func (p *TestPixelData) IsEncapsulated() bool {
	return len(p.frames) > 0 && bytes.HasPrefix(p.frames[0], []byte{0xFF, 0xD8})
}
