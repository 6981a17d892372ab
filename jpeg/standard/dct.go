package standard

import (
	"math"

	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

// cosTable[x][u] = C(u)/2 * cos((2x+1)u*pi/16), so that a row pass followed
// by a column pass yields the T.81 A.3.3 normalisation.
var cosTable [8][8]float64

func init() {
	for x := 0; x < 8; x++ {
		for u := 0; u < 8; u++ {
			c := 0.5
			if u == 0 {
				c = 0.5 / math.Sqrt2
			}
			cosTable[x][u] = c * math.Cos(float64(2*x+1)*float64(u)*math.Pi/16)
		}
	}
}

// FDCT performs the forward DCT of a level-shifted 8x8 block in place.
func FDCT(block *[64]float64) {
	var tmp [64]float64

	// Rows
	for y := 0; y < 8; y++ {
		row := block[y*8 : y*8+8]
		for u := 0; u < 8; u++ {
			var s float64
			for x := 0; x < 8; x++ {
				s += row[x] * cosTable[x][u]
			}
			tmp[y*8+u] = s
		}
	}

	// Columns
	for u := 0; u < 8; u++ {
		for v := 0; v < 8; v++ {
			var s float64
			for y := 0; y < 8; y++ {
				s += tmp[y*8+u] * cosTable[y][v]
			}
			block[v*8+u] = s
		}
	}
}

// IDCT performs the inverse DCT of a dequantized 8x8 block in place. The
// result is still level-shifted.
func IDCT(block *[64]float64) {
	var tmp [64]float64

	// Columns
	for u := 0; u < 8; u++ {
		// All-zero AC column: the output is flat.
		flat := true
		for v := 1; v < 8; v++ {
			if block[v*8+u] != 0 {
				flat = false
				break
			}
		}
		for y := 0; y < 8; y++ {
			if flat {
				tmp[y*8+u] = block[u] * cosTable[y][0]
				continue
			}
			var s float64
			for v := 0; v < 8; v++ {
				s += block[v*8+u] * cosTable[y][v]
			}
			tmp[y*8+u] = s
		}
	}

	// Rows
	for y := 0; y < 8; y++ {
		row := tmp[y*8 : y*8+8]
		for x := 0; x < 8; x++ {
			var s float64
			for u := 0; u < 8; u++ {
				s += row[u] * cosTable[x][u]
			}
			block[y*8+x] = s
		}
	}
}

// Quantize divides DCT output by the quantization table, rounding to
// nearest, into a natural-order coefficient block.
func Quantize(in *[64]float64, q *[64]uint16, out *common.Block) {
	for i := 0; i < 64; i++ {
		out[i] = int16(math.Round(in[i] / float64(q[i])))
	}
}

// Dequantize multiplies coefficients by the quantization table.
func Dequantize(in *common.Block, q *[64]uint16, out *[64]float64) {
	for i := 0; i < 64; i++ {
		out[i] = float64(in[i]) * float64(q[i])
	}
}
