package standard

import (
	"encoding/binary"
	"fmt"
)

// ShiftSignedFrame moves two's-complement samples (PixelRepresentation 1)
// into the unsigned range JPEG codes, or back. Samples are 1 byte, or 2
// bytes little-endian when bitsAllocated exceeds 8; the sign bit is
// highBit. On the way back the sign is extended through the unused high
// bits.
func ShiftSignedFrame(frame []byte, bitsStored, highBit, bitsAllocated uint16, toUnsigned bool) ([]byte, error) {
	if bitsStored == 0 || bitsStored > bitsAllocated || bitsAllocated > 16 {
		return nil, fmt.Errorf("unsupported BitsStored=%d BitsAllocated=%d", bitsStored, bitsAllocated)
	}
	if highBit >= bitsAllocated || highBit+1 < bitsStored {
		return nil, fmt.Errorf("invalid HighBit=%d for BitsStored=%d BitsAllocated=%d", highBit, bitsStored, bitsAllocated)
	}
	bytesPerSample := int(bitsAllocated+7) / 8
	if len(frame)%bytesPerSample != 0 {
		return nil, fmt.Errorf("frame length %d is not aligned to %d bytes/sample", len(frame), bytesPerSample)
	}

	offset := int32(1) << (bitsStored - 1)
	valueMask := uint32(1)<<(highBit+1) - 1
	signMask := uint32(1) << highBit

	out := make([]byte, len(frame))
	for i := 0; i < len(frame); i += bytesPerSample {
		var raw uint32
		if bytesPerSample == 1 {
			raw = uint32(frame[i])
		} else {
			raw = uint32(binary.LittleEndian.Uint16(frame[i:]))
		}

		var v uint32
		if toUnsigned {
			s := raw & valueMask
			if s&signMask != 0 {
				s |= ^valueMask
			}
			v = uint32(max(0, min(int32(s)+offset, 2*offset-1)))
		} else {
			s := max(-offset, min(int32(raw)-offset, offset-1))
			v = uint32(s) & valueMask
			if v&signMask != 0 {
				v |= ^valueMask
			}
		}

		if bytesPerSample == 1 {
			out[i] = byte(v)
		} else {
			binary.LittleEndian.PutUint16(out[i:], uint16(v))
		}
	}
	return out, nil
}
