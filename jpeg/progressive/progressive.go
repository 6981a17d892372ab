// Package progressive implements JPEG Full Progression (Process 10 & 12):
// DCT coefficients sent as spectral-selection and successive-approximation
// scans of 8-bit or 12-bit samples.
package progressive

import (
	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
	"github.com/cocosip/go-dicom-jpeg/jpeg/standard"
)

// Encode encodes pixel data to progressive JPEG (SOF2)
// components: 1 for grayscale, 3 for RGB (coded as YCbCr)
// bitDepth: 8 or 12 bits per sample; 12-bit samples are little-endian uint16
// quality: 1-100, where 100 is best quality
func Encode(pixelData []byte, width, height, components, bitDepth, quality int) ([]byte, error) {
	p := NewProgressiveParameters()
	p.Quality = quality
	p.BitDepth = bitDepth
	return encode(pixelData, width, height, components, p)
}

func encode(pixelData []byte, width, height, components int, p *JPEGProgressiveParameters) ([]byte, error) {
	if components != 1 && components != 3 {
		return nil, common.ErrInvalidComponents
	}
	opts := standard.Options{
		Quality:         p.Quality,
		Precision:       p.BitDepth,
		Progressive:     true,
		RestartInterval: p.RestartInterval,
		Scans:           p.Scans,
		Subsampling:     standard.Subsample420,
	}
	if p.FullChroma {
		opts.Subsampling = standard.Subsample444
	}
	return standard.Encode(pixelData, width, height, components, opts)
}

// Decode decodes progressive JPEG data. Sequential streams are accepted too.
func Decode(jpegData []byte) (pixelData []byte, width, height, components, bitDepth int, err error) {
	img, err := standard.Decode(jpegData, nil)
	if err != nil {
		return nil, 0, 0, 0, 0, err
	}
	return img.Pixels, img.Width, img.Height, img.Components, img.Precision, nil
}
