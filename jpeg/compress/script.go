package compress

import (
	"fmt"

	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

// SequentialScript returns a single interleaved scan over the first
// MaxCompsInScan components, followed by one scan per remaining component.
func SequentialScript(numComps int) []common.ScanInfo {
	if numComps <= common.MaxCompsInScan {
		return []common.ScanInfo{fullScan(seq(0, numComps), 0, 63, 0, 0)}
	}
	scans := make([]common.ScanInfo, 0, numComps)
	for ci := 0; ci < numComps; ci++ {
		scans = append(scans, fullScan([]int{ci}, 0, 63, 0, 0))
	}
	return scans
}

// SimpleProgression returns the standard progressive script: DC first with
// one bit of point transform, then low and high AC bands, then the
// refinement scans. Three-component images get the script tuned for
// YCbCr, where chroma is sent in fewer scans.
func SimpleProgression(numComps int) []common.ScanInfo {
	if numComps == 3 {
		return []common.ScanInfo{
			fullScan([]int{0, 1, 2}, 0, 0, 0, 1),
			fullScan([]int{0}, 1, 5, 0, 2),
			fullScan([]int{2}, 1, 63, 0, 1),
			fullScan([]int{1}, 1, 63, 0, 1),
			fullScan([]int{0}, 6, 63, 0, 2),
			fullScan([]int{0}, 1, 63, 2, 1),
			fullScan([]int{0, 1, 2}, 0, 0, 1, 0),
			fullScan([]int{2}, 1, 63, 1, 0),
			fullScan([]int{1}, 1, 63, 1, 0),
			fullScan([]int{0}, 1, 63, 1, 0),
		}
	}

	var scans []common.ScanInfo
	dcScans := func(ah, al int) {
		if numComps <= common.MaxCompsInScan {
			scans = append(scans, fullScan(seq(0, numComps), 0, 0, ah, al))
			return
		}
		for ci := 0; ci < numComps; ci++ {
			scans = append(scans, fullScan([]int{ci}, 0, 0, ah, al))
		}
	}
	acScans := func(ss, se, ah, al int) {
		for ci := 0; ci < numComps; ci++ {
			scans = append(scans, fullScan([]int{ci}, ss, se, ah, al))
		}
	}
	dcScans(0, 1)
	acScans(1, 5, 0, 2)
	acScans(6, 63, 0, 2)
	acScans(1, 63, 2, 1)
	dcScans(1, 0)
	acScans(1, 63, 1, 0)
	return scans
}

func fullScan(comps []int, ss, se, ah, al int) common.ScanInfo {
	return common.ScanInfo{Components: comps, Ss: ss, Se: se, Ah: ah, Al: al}
}

func seq(start, n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = start + i
	}
	return s
}

// maxAhAl is the largest successive approximation bit position.
func maxAhAl(precision int) int {
	if precision > 8 {
		return 13
	}
	return 10
}

// ValidateScript checks a scan script against a frame. Sequential scripts
// must send every component exactly once over the full band. Progressive
// scripts must send DC before AC for each component, may only refine by
// one bit at a time, and must send at least the first DC scan of every
// component.
func ValidateScript(f *common.Frame, scans []common.ScanInfo) error {
	if len(scans) == 0 {
		return fmt.Errorf("%w: no scans", common.ErrBadScanScript)
	}
	ncomps := len(f.Components)
	limit := maxAhAl(f.Precision)

	var lastBitPos [][common.BlockSize]int
	sent := make([]bool, ncomps)
	if f.Progressive {
		lastBitPos = make([][common.BlockSize]int, ncomps)
		for ci := range lastBitPos {
			for k := range lastBitPos[ci] {
				lastBitPos[ci][k] = -1
			}
		}
	}

	for si := range scans {
		scan := &scans[si]
		n := len(scan.Components)
		if n == 0 || n > common.MaxCompsInScan {
			return fmt.Errorf("%w: scan %d has %d components", common.ErrBadScanScript, si, n)
		}
		for i, ci := range scan.Components {
			if ci < 0 || ci >= ncomps {
				return fmt.Errorf("%w: scan %d names component %d", common.ErrBadScanScript, si, ci)
			}
			if i > 0 && ci <= scan.Components[i-1] {
				return fmt.Errorf("%w: scan %d components out of order", common.ErrBadScanScript, si)
			}
		}

		ss, se, ah, al := scan.Ss, scan.Se, scan.Ah, scan.Al
		if !f.Progressive {
			if ss != 0 || se != common.BlockSize-1 || ah != 0 || al != 0 {
				return fmt.Errorf("%w: scan %d is %d..%d Ah %d Al %d in a sequential frame",
					common.ErrBadScanScript, si, ss, se, ah, al)
			}
			for _, ci := range scan.Components {
				if sent[ci] {
					return fmt.Errorf("%w: component %d sent twice", common.ErrBadScanScript, ci)
				}
				sent[ci] = true
			}
			continue
		}

		if ss < 0 || ss >= common.BlockSize || se < ss || se >= common.BlockSize ||
			ah < 0 || ah > limit || al < 0 || al > limit {
			return fmt.Errorf("%w: scan %d is %d..%d Ah %d Al %d", common.ErrBadScanScript, si, ss, se, ah, al)
		}
		if ss == 0 {
			if se != 0 {
				return fmt.Errorf("%w: scan %d mixes DC and AC", common.ErrBadScanScript, si)
			}
		} else if n != 1 {
			return fmt.Errorf("%w: AC scan %d has %d components", common.ErrBadScanScript, si, n)
		}
		for _, ci := range scan.Components {
			bits := &lastBitPos[ci]
			if ss != 0 && bits[0] < 0 {
				return fmt.Errorf("%w: scan %d sends AC of component %d before DC", common.ErrBadScanScript, si, ci)
			}
			for k := ss; k <= se; k++ {
				if bits[k] < 0 {
					if ah != 0 {
						return fmt.Errorf("%w: scan %d refines coefficient %d never sent", common.ErrBadScanScript, si, k)
					}
				} else if ah != bits[k] || al != ah-1 {
					return fmt.Errorf("%w: scan %d refines coefficient %d from bit %d to %d, last sent %d",
						common.ErrBadScanScript, si, k, ah, al, bits[k])
				}
				bits[k] = al
			}
			sent[ci] = true
		}
	}

	for ci, ok := range sent {
		if !ok {
			return fmt.Errorf("%w: component %d never sent", common.ErrBadScanScript, ci)
		}
	}
	return nil
}
