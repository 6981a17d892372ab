package baseline

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
	"github.com/cocosip/go-dicom-jpeg/jpeg/extended"
)

func gradient(width, height, components int) []byte {
	data := make([]byte, width*height*components)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < components; c++ {
				data[(y*width+x)*components+c] = byte(x*(c+1) + y)
			}
		}
	}
	return data
}

func maxError(a, b []byte) int {
	m := 0
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		m = max(m, d)
	}
	return m
}

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name       string
		width      int
		height     int
		components int
		params     *JPEGBaselineParameters
		limit      int
	}{
		{"grayscale", 64, 64, 1, NewBaselineParameters(), 50},
		{"grayscale odd size", 29, 11, 1, NewBaselineParameters(), 50},
		{"rgb", 64, 64, 3, NewBaselineParameters(), 60},
		{"optimized", 64, 40, 3, NewBaselineParameters().WithOptimizeCoding(true), 60},
		{"restarts", 64, 40, 1, NewBaselineParameters().WithRestartInterval(3), 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pixelData := gradient(tt.width, tt.height, tt.components)
			jpegData, err := encode(pixelData, tt.width, tt.height, tt.components, tt.params)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			t.Logf("Encoded size: %d bytes (compression ratio: %.2fx)",
				len(jpegData), float64(len(pixelData))/float64(len(jpegData)))

			decoded, w, h, components, err := Decode(jpegData)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if w != tt.width || h != tt.height || components != tt.components {
				t.Fatalf("got %dx%dx%d, want %dx%dx%d", w, h, components, tt.width, tt.height, tt.components)
			}
			if len(decoded) != len(pixelData) {
				t.Fatalf("Data length mismatch: got %d, want %d", len(decoded), len(pixelData))
			}
			if e := maxError(pixelData, decoded); e > tt.limit {
				t.Errorf("Maximum error too large: %d (expected <= %d)", e, tt.limit)
			}
		})
	}
}

func TestOptimizedCodingIsSmaller(t *testing.T) {
	pixelData := gradient(96, 96, 1)
	standardTables, err := encode(pixelData, 96, 96, 1, NewBaselineParameters())
	if err != nil {
		t.Fatal(err)
	}
	optimized, err := encode(pixelData, 96, 96, 1, NewBaselineParameters().WithOptimizeCoding(true))
	if err != nil {
		t.Fatal(err)
	}
	if len(optimized) >= len(standardTables) {
		t.Errorf("optimized %d bytes, standard tables %d bytes", len(optimized), len(standardTables))
	}

	// Both describe the same quantized image.
	a, _, _, _, err := Decode(standardTables)
	if err != nil {
		t.Fatal(err)
	}
	b, _, _, _, err := Decode(optimized)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("optimized tables changed the decoded image")
	}
}

func TestEncodeInvalidParameters(t *testing.T) {
	pixelData := make([]byte, 64*64*3)
	tests := []struct {
		name                               string
		width, height, components, quality int
		want                               error
	}{
		{"zero width", 0, 64, 1, 85, common.ErrInvalidDimensions},
		{"negative height", 64, -1, 1, 85, common.ErrInvalidDimensions},
		{"four components", 32, 32, 4, 85, common.ErrInvalidComponents},
		{"quality 0", 64, 64, 1, 0, common.ErrInvalidQuality},
		{"quality 101", 64, 64, 1, 101, common.ErrInvalidQuality},
		{"short buffer", 128, 64, 3, 85, common.ErrBufferTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(pixelData, tt.width, tt.height, tt.components, tt.quality)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeRejects12Bit(t *testing.T) {
	data := make([]byte, 16*16*2)
	jpegData, err := extended.Encode(data, 16, 16, 1, 12, 85)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, _, err := Decode(jpegData); !errors.Is(err, common.ErrInvalidPrecision) {
		t.Errorf("got %v, want ErrInvalidPrecision", err)
	}
}

func TestQualityLevels(t *testing.T) {
	pixelData := gradient(64, 64, 1)
	prevSize := 0
	for _, quality := range []int{25, 50, 75, 95} {
		jpegData, err := Encode(pixelData, 64, 64, 1, quality)
		if err != nil {
			t.Fatalf("quality %d: %v", quality, err)
		}
		decoded, _, _, _, err := Decode(jpegData)
		if err != nil {
			t.Fatalf("quality %d: %v", quality, err)
		}
		e := maxError(pixelData, decoded)
		t.Logf("Quality %d: %d bytes, max error %d", quality, len(jpegData), e)
		if len(jpegData) < prevSize {
			t.Errorf("quality %d: %d bytes, less than %d at lower quality", quality, len(jpegData), prevSize)
		}
		if e > 60 {
			t.Errorf("quality %d: max error %d", quality, e)
		}
		prevSize = len(jpegData)
	}
}

func BenchmarkEncodeGrayscale(b *testing.B) {
	pixelData := gradient(512, 512, 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Encode(pixelData, 512, 512, 1, 85); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeGrayscale(b *testing.B) {
	pixelData := gradient(512, 512, 1)
	jpegData, err := Encode(pixelData, 512, 512, 1, 85)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, _, _, err := Decode(jpegData); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncodeRGB(b *testing.B) {
	pixelData := gradient(512, 512, 3)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Encode(pixelData, 512, 512, 3, 85); err != nil {
			b.Fatal(err)
		}
	}
}
