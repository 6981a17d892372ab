package progressive

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/cocosip/go-dicom-jpeg/codec"
	"github.com/cocosip/go-dicom-jpeg/jpeg/baseline"
	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

func gray8(width, height int) []byte {
	data := make([]byte, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			data[y*width+x] = byte((x*3 + y*2) % 256)
		}
	}
	return data
}

func gray12(width, height int) []byte {
	data := make([]byte, width*height*2)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := x*4000/width + y*2
			binary.LittleEndian.PutUint16(data[2*(y*width+x):], uint16(v))
		}
	}
	return data
}

func rgb8(width, height int) []byte {
	data := make([]byte, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 3
			data[i] = byte(x * 255 / (width - 1))
			data[i+1] = byte(y * 255 / (height - 1))
			data[i+2] = byte((x + y) * 2)
		}
	}
	return data
}

// sampleDiff returns the largest and mean absolute difference between two
// sample buffers.
func sampleDiff(t *testing.T, a, b []byte, bitDepth int) (int, float64) {
	t.Helper()
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	step := 1
	if bitDepth > 8 {
		step = 2
	}
	var maxDiff, sum, n int
	for i := 0; i < len(a); i += step {
		var d int
		if step == 2 {
			d = int(binary.LittleEndian.Uint16(a[i:])) - int(binary.LittleEndian.Uint16(b[i:]))
		} else {
			d = int(a[i]) - int(b[i])
		}
		if d < 0 {
			d = -d
		}
		maxDiff = max(maxDiff, d)
		sum += d
		n++
	}
	return maxDiff, float64(sum) / float64(n)
}

func hasMarker(data []byte, code byte) bool {
	for i := 0; i+1 < len(data); i++ {
		if data[i] == 0xFF && data[i+1] == code {
			return true
		}
	}
	return false
}

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name       string
		width      int
		height     int
		components int
		bitDepth   int
		pixels     []byte
		params     func(p *JPEGProgressiveParameters)
		maxDiff    int
		meanDiff   float64
	}{
		{"gray 8-bit", 64, 64, 1, 8, gray8(64, 64), nil, 32, 3},
		{"gray odd size", 33, 17, 1, 8, gray8(33, 17), nil, 32, 3},
		{"gray 12-bit", 64, 48, 1, 12, gray12(64, 48), nil, 64, 8},
		{"rgb 4:2:0", 48, 32, 3, 8, rgb8(48, 32), nil, 60, 6},
		{"rgb 4:4:4", 48, 32, 3, 8, rgb8(48, 32), func(p *JPEGProgressiveParameters) { p.FullChroma = true }, 40, 4},
		{"restarts", 64, 64, 1, 8, gray8(64, 64), func(p *JPEGProgressiveParameters) { p.RestartInterval = 3 }, 32, 3},
		{"spectral selection only", 64, 64, 1, 8, gray8(64, 64), func(p *JPEGProgressiveParameters) {
			p.Scans = []common.ScanInfo{
				{Components: []int{0}, Ss: 0, Se: 0},
				{Components: []int{0}, Ss: 1, Se: 9},
				{Components: []int{0}, Ss: 10, Se: 63},
			}
		}, 32, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgressiveParameters().WithBitDepth(tt.bitDepth)
			if tt.params != nil {
				tt.params(p)
			}
			jpegData, err := encode(tt.pixels, tt.width, tt.height, tt.components, p)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if !hasMarker(jpegData, 0xC2) {
				t.Fatal("no SOF2 marker")
			}
			if p.RestartInterval > 0 && !hasMarker(jpegData, 0xDD) {
				t.Error("no DRI marker")
			}

			decoded, w, h, c, bitDepth, err := Decode(jpegData)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if w != tt.width || h != tt.height || c != tt.components || bitDepth != tt.bitDepth {
				t.Fatalf("got %dx%d c=%d bits=%d", w, h, c, bitDepth)
			}
			maxDiff, mean := sampleDiff(t, tt.pixels, decoded, tt.bitDepth)
			t.Logf("%d bytes, max diff %d, mean %.2f", len(jpegData), maxDiff, mean)
			if maxDiff > tt.maxDiff || mean > tt.meanDiff {
				t.Errorf("error too large: max %d mean %.2f", maxDiff, mean)
			}
		})
	}
}

// The same quantized coefficients come out whichever way they were sent.
func TestMatchesSequential(t *testing.T) {
	width, height := 40, 24
	pixels := gray8(width, height)

	seqData, err := baseline.Encode(pixels, width, height, 1, 85)
	if err != nil {
		t.Fatal(err)
	}
	progData, err := Encode(pixels, width, height, 1, 8, 85)
	if err != nil {
		t.Fatal(err)
	}
	seq, _, _, _, _, err := Decode(seqData)
	if err != nil {
		t.Fatalf("decode sequential: %v", err)
	}
	prog, _, _, _, _, err := Decode(progData)
	if err != nil {
		t.Fatalf("decode progressive: %v", err)
	}
	for i := range seq {
		if seq[i] != prog[i] {
			t.Fatalf("sample %d: sequential %d, progressive %d", i, seq[i], prog[i])
		}
	}
}

func TestEncodeRejects(t *testing.T) {
	pixels := gray8(16, 16)
	_, err := encode(pixels, 16, 16, 1, NewProgressiveParameters().WithScans([]common.ScanInfo{
		{Components: []int{0}, Ss: 1, Se: 63},
	}))
	if !errors.Is(err, common.ErrBadScanScript) {
		t.Errorf("AC before DC: got %v", err)
	}
	if _, err := Encode(pixels, 16, 16, 2, 8, 85); !errors.Is(err, common.ErrInvalidComponents) {
		t.Errorf("two components: got %v", err)
	}
	if _, err := Encode(pixels, 16, 16, 1, 10, 85); !errors.Is(err, common.ErrInvalidPrecision) {
		t.Errorf("10-bit: got %v", err)
	}
}

func TestParameters(t *testing.T) {
	p := NewProgressiveParameters()
	p.SetParameter("quality", 0)
	p.SetParameter("bitDepth", 16)
	p.SetParameter("restartInterval", -1)
	p.SetParameter("fullChroma", true)
	p.SetParameter("custom", "x")
	if err := p.Validate(); err != nil {
		t.Fatal(err)
	}
	if p.Quality != 85 || p.BitDepth != 8 || p.RestartInterval != 0 {
		t.Errorf("Validate did not reset: %+v", p)
	}
	if p.GetParameter("fullChroma") != true || p.GetParameter("custom") != "x" {
		t.Error("GetParameter lost values")
	}
}

func TestLocalCodec(t *testing.T) {
	c, err := codec.Get("jpeg-progressive")
	if err != nil {
		t.Fatal(err)
	}
	if c.UID() != "1.2.840.10008.1.2.4.55" {
		t.Errorf("UID = %s", c.UID())
	}

	pixels := gray12(32, 32)
	data, err := c.Encode(codec.EncodeParams{
		PixelData:  pixels,
		Width:      32,
		Height:     32,
		Components: 1,
		BitDepth:   12,
		Options:    &Options{BaseOptions: codec.BaseOptions{Quality: 95}, RestartInterval: 2},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	res, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if res.Width != 32 || res.Height != 32 || res.Components != 1 || res.BitDepth != 12 {
		t.Fatalf("result %dx%d c=%d bits=%d", res.Width, res.Height, res.Components, res.BitDepth)
	}
	if maxDiff, _ := sampleDiff(t, pixels, res.PixelData, 12); maxDiff > 32 {
		t.Errorf("max diff %d", maxDiff)
	}

	bad := &Options{RestartInterval: -1}
	if _, err := c.Encode(codec.EncodeParams{PixelData: pixels, Width: 32, Height: 32, Components: 1, Options: bad}); !errors.Is(err, codec.ErrInvalidParameter) {
		t.Errorf("negative restart interval: got %v", err)
	}
}
