package standard

import (
	"encoding/binary"

	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

// plane holds one component's samples, row-major.
type plane struct {
	width  int
	height int
	pix    []int32
}

func newPlane(width, height int) *plane {
	return &plane{width: width, height: height, pix: make([]int32, width*height)}
}

// at returns the sample at (x, y), replicating the edges for coordinates
// outside the plane.
func (p *plane) at(x, y int) int32 {
	x = common.Clamp(x, 0, p.width-1)
	y = common.Clamp(y, 0, p.height-1)
	return p.pix[y*p.width+x]
}

// deinterleave splits interleaved samples into one plane per component.
// Samples wider than 8 bits are little-endian uint16.
func deinterleave(data []byte, width, height, components, precision int) []*plane {
	planes := make([]*plane, components)
	for c := range planes {
		planes[c] = newPlane(width, height)
	}
	n := width * height
	for i := 0; i < n; i++ {
		for c := 0; c < components; c++ {
			k := i*components + c
			if precision > 8 {
				planes[c].pix[i] = int32(binary.LittleEndian.Uint16(data[2*k:]))
			} else {
				planes[c].pix[i] = int32(data[k])
			}
		}
	}
	return planes
}

// interleave is the inverse of deinterleave. Planes must be at least
// width x height; extra columns and rows are dropped.
func interleave(planes []*plane, width, height, precision int) []byte {
	components := len(planes)
	bytesPerSample := 1
	if precision > 8 {
		bytesPerSample = 2
	}
	out := make([]byte, width*height*components*bytesPerSample)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c, p := range planes {
				v := p.pix[y*p.width+x]
				k := (y*width+x)*components + c
				if bytesPerSample == 2 {
					binary.LittleEndian.PutUint16(out[2*k:], uint16(v))
				} else {
					out[k] = byte(v)
				}
			}
		}
	}
	return out
}

// rgbToYCbCr converts three full-resolution planes in place. center is
// half the sample range.
func rgbToYCbCr(planes []*plane, center int32) {
	maxVal := 2*center - 1
	offset := center<<16 + 32768
	r, g, b := planes[0].pix, planes[1].pix, planes[2].pix
	for i := range r {
		rr, gg, bb := int64(r[i]), int64(g[i]), int64(b[i])
		y := (19595*rr + 38470*gg + 7471*bb + 32768) >> 16
		cb := (-11056*rr - 21712*gg + 32768*bb + int64(offset)) >> 16
		cr := (32768*rr - 27440*gg - 5328*bb + int64(offset)) >> 16
		r[i] = common.Clamp(int32(y), 0, maxVal)
		g[i] = common.Clamp(int32(cb), 0, maxVal)
		b[i] = common.Clamp(int32(cr), 0, maxVal)
	}
}

// ycbcrToRGB converts three full-resolution planes in place.
func ycbcrToRGB(planes []*plane, center int32) {
	maxVal := 2*center - 1
	yp, cbp, crp := planes[0].pix, planes[1].pix, planes[2].pix
	for i := range yp {
		y := int64(yp[i])
		cb := int64(cbp[i] - center)
		cr := int64(crp[i] - center)
		r := y + (91881*cr+32768)>>16
		g := y + (-22554*cb-46802*cr+32768)>>16
		b := y + (116130*cb+32768)>>16
		yp[i] = common.Clamp(int32(r), 0, maxVal)
		cbp[i] = common.Clamp(int32(g), 0, maxVal)
		crp[i] = common.Clamp(int32(b), 0, maxVal)
	}
}

// downsample averages hf x vf boxes, replicating edge samples where a box
// runs off the plane.
func downsample(src *plane, hf, vf int) *plane {
	if hf == 1 && vf == 1 {
		return src
	}
	dst := newPlane(common.DivCeil(src.width, hf), common.DivCeil(src.height, vf))
	n := int32(hf * vf)
	for y := 0; y < dst.height; y++ {
		for x := 0; x < dst.width; x++ {
			var sum int32
			for dy := 0; dy < vf; dy++ {
				for dx := 0; dx < hf; dx++ {
					sum += src.at(x*hf+dx, y*vf+dy)
				}
			}
			dst.pix[y*dst.width+x] = (sum + n/2) / n
		}
	}
	return dst
}

// upsample expands a component sampled at h x v (of maxH x maxV) to a
// width x height plane by replication.
func upsample(src *plane, h, v, maxH, maxV, width, height int) *plane {
	if h == maxH && v == maxV && src.width == width && src.height == height {
		return src
	}
	dst := newPlane(width, height)
	for y := 0; y < height; y++ {
		sy := y * v / maxV
		for x := 0; x < width; x++ {
			dst.pix[y*width+x] = src.at(x*h/maxH, sy)
		}
	}
	return dst
}
