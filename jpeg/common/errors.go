package common

import "errors"

// Common errors
var (
	ErrInvalidMarker      = errors.New("invalid JPEG marker")
	ErrInvalidSOI         = errors.New("missing SOI marker")
	ErrDuplicateSOI       = errors.New("duplicate SOI marker")
	ErrInvalidSOF         = errors.New("invalid Start of Frame")
	ErrDuplicateSOF       = errors.New("duplicate Start of Frame")
	ErrInvalidDHT         = errors.New("invalid Huffman table")
	ErrInvalidDQT         = errors.New("invalid Quantization table")
	ErrInvalidDRI         = errors.New("invalid restart interval segment")
	ErrInvalidSOS         = errors.New("invalid Start of Scan")
	ErrSOSBeforeSOF       = errors.New("Start of Scan before Start of Frame")
	ErrSOFWithoutSOS      = errors.New("image has a frame header but no scans")
	ErrEOIExpected        = errors.New("unexpected scan in single-scan image")
	ErrUnsupportedFormat  = errors.New("unsupported JPEG format")
	ErrUnsupportedProcess = errors.New("unsupported JPEG process")
	ErrUnexpectedEOF      = errors.New("unexpected end of file")
	ErrInvalidDimensions  = errors.New("invalid image dimensions")
	ErrInvalidComponents  = errors.New("invalid number of components")
	ErrInvalidSampling    = errors.New("invalid sampling factors")
	ErrInvalidPrecision   = errors.New("invalid precision")
	ErrInvalidQuality     = errors.New("invalid quality factor")
	ErrBadComponentID     = errors.New("scan references unknown component")
	ErrBadHuffmanTable    = errors.New("bad Huffman table definition")
	ErrMissingHuffTable   = errors.New("Huffman table not defined")
	ErrMissingQuantTable  = errors.New("quantization table not defined")
	ErrMissingCode        = errors.New("missing Huffman code for symbol")
	ErrCoefOverflow       = errors.New("DCT coefficient out of range")
	ErrBadProgression     = errors.New("invalid progressive parameters")
	ErrBadScanScript      = errors.New("invalid scan script")
	ErrTooManyBlocks      = errors.New("too many blocks in MCU")
	ErrEOBRunTooLong      = errors.New("EOB run length out of range")
	ErrCantSuspend        = errors.New("suspension not allowed here")
	ErrBufferTooSmall     = errors.New("buffer too small")
	ErrMemoryLimit        = errors.New("coefficient buffer exceeds memory limit")
)
