// Package baseline implements JPEG Baseline (Process 1): 8-bit samples,
// sequential Huffman coding, at most two table pairs.
package baseline

import (
	"fmt"

	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
	"github.com/cocosip/go-dicom-jpeg/jpeg/standard"
)

// Encode encodes pixel data to JPEG Baseline format
// components: 1 for grayscale, 3 for RGB (coded as YCbCr 4:2:0)
// quality: 1-100, where 100 is best quality
func Encode(pixelData []byte, width, height, components, quality int) ([]byte, error) {
	p := NewBaselineParameters()
	p.Quality = quality
	return encode(pixelData, width, height, components, p)
}

func encode(pixelData []byte, width, height, components int, p *JPEGBaselineParameters) ([]byte, error) {
	if components != 1 && components != 3 {
		return nil, common.ErrInvalidComponents
	}
	opts := standard.Options{
		Quality:         p.Quality,
		Precision:       8,
		OptimizeCoding:  p.OptimizeCoding,
		RestartInterval: p.RestartInterval,
	}
	return standard.Encode(pixelData, width, height, components, opts)
}

// Decode decodes JPEG Baseline data. Three-component images are returned
// as interleaved RGB.
func Decode(jpegData []byte) (pixelData []byte, width, height, components int, err error) {
	img, err := standard.Decode(jpegData, nil)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	if img.Precision != 8 {
		return nil, 0, 0, 0, fmt.Errorf("%w: %d-bit image is not baseline", common.ErrInvalidPrecision, img.Precision)
	}
	return img.Pixels, img.Width, img.Height, img.Components, nil
}
