package common

import "fmt"

// JPEG marker constants
const (
	// Start of Image
	MarkerSOI = 0xFFD8

	// End of Image
	MarkerEOI = 0xFFD9

	// Start of Frame markers
	MarkerSOF0  = 0xFFC0 // Baseline DCT
	MarkerSOF1  = 0xFFC1 // Extended Sequential DCT
	MarkerSOF2  = 0xFFC2 // Progressive DCT
	MarkerSOF3  = 0xFFC3 // Lossless (Sequential)
	MarkerSOF5  = 0xFFC5 // Differential Sequential DCT
	MarkerSOF6  = 0xFFC6 // Differential Progressive DCT
	MarkerSOF7  = 0xFFC7 // Differential Lossless
	MarkerJPG   = 0xFFC8 // Reserved for JPEG extensions
	MarkerSOF9  = 0xFFC9 // Extended Sequential DCT, Arithmetic coding
	MarkerSOF10 = 0xFFCA // Progressive DCT, Arithmetic coding
	MarkerSOF11 = 0xFFCB // Lossless, Arithmetic coding
	MarkerSOF13 = 0xFFCD // Differential Sequential DCT, Arithmetic coding
	MarkerSOF14 = 0xFFCE // Differential Progressive DCT, Arithmetic coding
	MarkerSOF15 = 0xFFCF // Differential Lossless, Arithmetic coding

	// Define Huffman Table
	MarkerDHT = 0xFFC4

	// Define Arithmetic Coding conditioning
	MarkerDAC = 0xFFCC

	// Define Quantization Table
	MarkerDQT = 0xFFDB

	// Define Number of Lines
	MarkerDNL = 0xFFDC

	// Define Restart Interval
	MarkerDRI = 0xFFDD

	// Start of Scan
	MarkerSOS = 0xFFDA

	// Application segments
	MarkerAPP0  = 0xFFE0
	MarkerAPP14 = 0xFFEE
	MarkerAPP15 = 0xFFEF

	// Comment
	MarkerCOM = 0xFFFE

	// Temporary private use, no length field
	MarkerTEM = 0xFF01

	// Restart markers
	MarkerRST0 = 0xFFD0
	MarkerRST7 = 0xFFD7
)

// IsSOF returns true if the marker is a Start of Frame marker
func IsSOF(marker uint16) bool {
	return (marker >= MarkerSOF0 && marker <= MarkerSOF3) ||
		(marker >= MarkerSOF5 && marker <= MarkerSOF7) ||
		(marker >= MarkerSOF9 && marker <= MarkerSOF11) ||
		(marker >= MarkerSOF13 && marker <= MarkerSOF15)
}

// IsRST returns true if the marker is a Restart marker
func IsRST(marker uint16) bool {
	return marker >= MarkerRST0 && marker <= MarkerRST7
}

// IsAPP returns true if the marker is an APPn marker
func IsAPP(marker uint16) bool {
	return marker >= MarkerAPP0 && marker <= MarkerAPP15
}

// RST returns the restart marker with sequence number n modulo 8.
func RST(n int) uint16 {
	return MarkerRST0 + uint16(n&7)
}

// HasLength returns true if the marker is followed by a length field
func HasLength(marker uint16) bool {
	if marker == MarkerSOI || marker == MarkerEOI || marker == MarkerTEM {
		return false
	}
	return !IsRST(marker)
}

// MarkerName returns a short printable name for a marker code.
func MarkerName(marker uint16) string {
	switch {
	case marker == MarkerSOI:
		return "SOI"
	case marker == MarkerEOI:
		return "EOI"
	case marker == MarkerSOS:
		return "SOS"
	case marker == MarkerDHT:
		return "DHT"
	case marker == MarkerDQT:
		return "DQT"
	case marker == MarkerDRI:
		return "DRI"
	case marker == MarkerCOM:
		return "COM"
	case IsRST(marker):
		return fmt.Sprintf("RST%d", marker-MarkerRST0)
	case IsAPP(marker):
		return fmt.Sprintf("APP%d", marker-MarkerAPP0)
	case IsSOF(marker):
		return fmt.Sprintf("SOF%d", marker-MarkerSOF0)
	}
	return fmt.Sprintf("0x%04X", marker)
}
