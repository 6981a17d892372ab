package extended

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

// ramp12 builds a smooth 12-bit grayscale image as little-endian uint16.
func ramp12(width, height int) []byte {
	data := make([]byte, width*height*2)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := (x*4095/(width-1) + y*1000/(height-1)) % 4096
			binary.LittleEndian.PutUint16(data[2*(y*width+x):], uint16(v))
		}
	}
	return data
}

func diff12(t *testing.T, a, b []byte) (maxDiff int, mean float64) {
	t.Helper()
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	var sum int
	n := len(a) / 2
	for i := 0; i < n; i++ {
		d := int(binary.LittleEndian.Uint16(a[2*i:])) - int(binary.LittleEndian.Uint16(b[2*i:]))
		if d < 0 {
			d = -d
		}
		sum += d
		maxDiff = max(maxDiff, d)
	}
	return maxDiff, float64(sum) / float64(n)
}

func diff8(t *testing.T, a, b []byte) (maxDiff int, mean float64) {
	t.Helper()
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	var sum int
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
		maxDiff = max(maxDiff, d)
	}
	return maxDiff, float64(sum) / float64(len(a))
}

func TestEncodeDecode8Bit(t *testing.T) {
	width, height := 64, 64
	pixelData := make([]byte, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pixelData[y*width+x] = byte((x*2 + y) % 256)
		}
	}

	jpegData, err := Encode(pixelData, width, height, 1, 8, 85)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// 8-bit images use SOF0.
	if i := findSOF(jpegData); i < 0 || jpegData[i+1] != 0xC0 {
		t.Fatalf("expected SOF0 marker")
	}

	decoded, w, h, c, bitDepth, err := Decode(jpegData)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if w != width || h != height || c != 1 || bitDepth != 8 {
		t.Fatalf("got %dx%d c=%d bits=%d", w, h, c, bitDepth)
	}
	maxDiff, mean := diff8(t, pixelData, decoded)
	t.Logf("max diff %d, mean %.2f, %d bytes", maxDiff, mean, len(jpegData))
	if mean > 3 || maxDiff > 32 {
		t.Errorf("error too large: max %d mean %.2f", maxDiff, mean)
	}
}

func TestEncodeDecode12Bit(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		params func(p *JPEGExtendedParameters)
	}{
		{"default", 64, 64, func(*JPEGExtendedParameters) {}},
		{"odd size", 37, 23, func(*JPEGExtendedParameters) {}},
		{"optimized", 64, 48, func(p *JPEGExtendedParameters) { p.OptimizeCoding = true }},
		{"restarts", 64, 48, func(p *JPEGExtendedParameters) { p.RestartInterval = 5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pixelData := ramp12(tt.width, tt.height)
			p := NewExtendedParameters()
			tt.params(p)

			jpegData, err := encode(pixelData, tt.width, tt.height, 1, p)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if i := findSOF(jpegData); i < 0 || jpegData[i+1] != 0xC1 {
				t.Fatalf("expected SOF1 marker")
			}

			decoded, w, h, c, bitDepth, err := Decode(jpegData)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if w != tt.width || h != tt.height || c != 1 || bitDepth != 12 {
				t.Fatalf("got %dx%d c=%d bits=%d", w, h, c, bitDepth)
			}
			maxDiff, mean := diff12(t, pixelData, decoded)
			t.Logf("max diff %d, mean %.2f, %d bytes", maxDiff, mean, len(jpegData))
			if mean > 8 || maxDiff > 64 {
				t.Errorf("error too large: max %d mean %.2f", maxDiff, mean)
			}
		})
	}
}

func TestEncodeDecodeRGB(t *testing.T) {
	width, height := 48, 40
	pixelData := make([]byte, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 3
			pixelData[i] = byte(x * 255 / (width - 1))
			pixelData[i+1] = byte(y * 255 / (height - 1))
			pixelData[i+2] = 128
		}
	}

	jpegData, err := Encode(pixelData, width, height, 3, 8, 90)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, w, h, c, _, err := Decode(jpegData)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if w != width || h != height || c != 3 {
		t.Fatalf("got %dx%d c=%d", w, h, c)
	}
	maxDiff, mean := diff8(t, pixelData, decoded)
	if mean > 4 || maxDiff > 40 {
		t.Errorf("error too large: max %d mean %.2f", maxDiff, mean)
	}
}

func TestEncodeInvalidParameters(t *testing.T) {
	pixelData := make([]byte, 64*64*2)
	tests := []struct {
		name       string
		width      int
		height     int
		components int
		bitDepth   int
		quality    int
		want       error
	}{
		{"zero width", 0, 64, 1, 12, 85, common.ErrInvalidDimensions},
		{"two components", 64, 64, 2, 12, 85, common.ErrInvalidComponents},
		{"bit depth 7", 64, 64, 1, 7, 85, common.ErrInvalidPrecision},
		{"bit depth 16", 64, 64, 1, 16, 85, common.ErrInvalidPrecision},
		{"quality 0", 64, 64, 1, 12, 0, common.ErrInvalidQuality},
		{"short buffer", 64, 65, 1, 12, 85, common.ErrBufferTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(pixelData, tt.width, tt.height, tt.components, tt.bitDepth, tt.quality)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestQualityLevels(t *testing.T) {
	width, height := 64, 64
	pixelData := ramp12(width, height)
	prevSize := 0
	for _, quality := range []int{50, 75, 95} {
		jpegData, err := Encode(pixelData, width, height, 1, 12, quality)
		if err != nil {
			t.Fatalf("quality %d: %v", quality, err)
		}
		if len(jpegData) < prevSize {
			t.Errorf("quality %d: size %d smaller than previous %d", quality, len(jpegData), prevSize)
		}
		prevSize = len(jpegData)
	}
}

// findSOF returns the offset of the first SOFn marker.
func findSOF(data []byte) int {
	for i := 0; i+1 < len(data); i++ {
		if data[i] == 0xFF && data[i+1] >= 0xC0 && data[i+1] <= 0xC2 {
			return i
		}
	}
	return -1
}
