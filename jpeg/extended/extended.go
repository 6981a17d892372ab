// Package extended implements JPEG Extended (Process 2 & 4): sequential
// Huffman coding of 8-bit or 12-bit samples.
package extended

import (
	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
	"github.com/cocosip/go-dicom-jpeg/jpeg/standard"
)

// Encode encodes pixel data to JPEG Extended format (SOF1 for 12-bit)
// components: 1 for grayscale, 3 for RGB
// bitDepth: 8 or 12 bits per sample; 12-bit samples are little-endian uint16
// quality: 1-100, where 100 is best quality
func Encode(pixelData []byte, width, height, components, bitDepth, quality int) ([]byte, error) {
	p := NewExtendedParameters()
	p.Quality = quality
	p.BitDepth = bitDepth
	return encode(pixelData, width, height, components, p)
}

func encode(pixelData []byte, width, height, components int, p *JPEGExtendedParameters) ([]byte, error) {
	if components != 1 && components != 3 {
		return nil, common.ErrInvalidComponents
	}
	opts := standard.Options{
		Quality:         p.Quality,
		Precision:       p.BitDepth,
		OptimizeCoding:  p.OptimizeCoding,
		RestartInterval: p.RestartInterval,
		Subsampling:     standard.Subsample444,
	}
	return standard.Encode(pixelData, width, height, components, opts)
}

// Decode decodes JPEG Extended (SOF0/SOF1) data
func Decode(jpegData []byte) (pixelData []byte, width, height, components, bitDepth int, err error) {
	img, err := standard.Decode(jpegData, nil)
	if err != nil {
		return nil, 0, 0, 0, 0, err
	}
	return img.Pixels, img.Width, img.Height, img.Components, img.Precision, nil
}
