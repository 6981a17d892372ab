// Package marker reads and writes the JPEG marker layer: the segments
// between entropy-coded data that carry frame and scan headers, tables,
// restart intervals and application data.
package marker

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/cocosip/go-dicom-jpeg/jpeg/bitio"
	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

// Result tells the caller why ReadMarkers returned.
type Result int

const (
	// Suspended means more input is needed.
	Suspended Result = iota
	// ReachedSOS means a scan header was read and entropy data follows.
	ReachedSOS
	// ReachedEOI means the end of the image was reached.
	ReachedEOI
)

func (r Result) String() string {
	switch r {
	case Suspended:
		return "suspended"
	case ReachedSOS:
		return "reached SOS"
	case ReachedEOI:
		return "reached EOI"
	}
	return "unknown"
}

// JFIF holds the fields of a JFIF APP0 segment.
type JFIF struct {
	MajorVersion int
	MinorVersion int
	DensityUnit  int
	XDensity     int
	YDensity     int
	ThumbWidth   int
	ThumbHeight  int
}

// Adobe holds the fields of an Adobe APP14 segment.
type Adobe struct {
	Version   int
	Flags0    int
	Flags1    int
	Transform int
}

// Saved is an APPn or COM segment kept for the application.
type Saved struct {
	Marker uint16
	// Data is the segment payload, possibly cut short at the save limit.
	Data []byte
	// Length is the full payload length in the stream.
	Length int
}

// ResyncFunc recovers from a marker found where restart marker RSTn
// (n = desired) was expected. It returns false to suspend.
type ResyncFunc func(r *Reader, desired int) bool

// Reader parses marker segments from a Source. Each segment is processed
// as a unit: if the source runs dry part way through, the reader rewinds
// to the segment start and reports Suspended.
type Reader struct {
	src    *bitio.Source
	tables *common.Tables
	diag   *common.Diagnostics

	Frame *common.Frame
	JFIF  *JFIF
	JFXX  bool
	Adobe *Adobe
	Saved []Saved

	// RestartInterval is the most recent DRI value.
	RestartInterval int
	// NextRestartNum is the RSTn index expected next in the current scan.
	NextRestartNum int
	// Scans counts the SOS markers read.
	Scans int
	// Resync replaces ResyncToRestart when set.
	Resync ResyncFunc

	saveLimit map[uint16]int
	sawSOI    bool
	discarded int
}

// NewReader creates a marker reader. Table definitions are stored into
// tables.
func NewReader(src *bitio.Source, tables *common.Tables, diag *common.Diagnostics) *Reader {
	return &Reader{src: src, tables: tables, diag: diag, saveLimit: map[uint16]int{}}
}

// SaveMarkers asks for APPn or COM segments of the given type to be kept,
// up to limit bytes each. A limit of 0 stops saving them.
func (r *Reader) SaveMarkers(marker uint16, limit int) {
	if limit <= 0 {
		delete(r.saveLimit, marker)
		return
	}
	r.saveLimit[marker] = limit
}

// ReadMarkers processes segments until a scan header, the end of the
// image, or the end of available input.
func (r *Reader) ReadMarkers() (Result, error) {
	for {
		if r.src.UnreadMarker == 0 {
			var ok bool
			var err error
			if !r.sawSOI {
				ok, err = r.firstMarker()
			} else {
				ok = r.NextMarker()
			}
			if err != nil || !ok {
				return Suspended, err
			}
		}

		m := r.src.UnreadMarker
		var ok bool
		var err error
		switch {
		case m == common.MarkerSOI:
			ok, err = r.readSOI()
		case m == common.MarkerSOF0 || m == common.MarkerSOF1:
			ok, err = r.readSOF(false)
		case m == common.MarkerSOF2:
			ok, err = r.readSOF(true)
		case common.IsSOF(m) || m == common.MarkerJPG:
			return Suspended, fmt.Errorf("%w: %s", common.ErrUnsupportedProcess, common.MarkerName(m))
		case m == common.MarkerSOS:
			ok, err = r.readSOS()
			if ok && err == nil {
				r.src.UnreadMarker = 0
				return ReachedSOS, nil
			}
		case m == common.MarkerEOI:
			r.src.UnreadMarker = 0
			return ReachedEOI, nil
		case m == common.MarkerDHT:
			ok, err = r.readDHT()
		case m == common.MarkerDQT:
			ok, err = r.readDQT()
		case m == common.MarkerDRI:
			ok, err = r.readDRI()
		case common.IsAPP(m) || m == common.MarkerCOM:
			ok, err = r.readVariable(m)
		case m == common.MarkerDAC || m == common.MarkerDNL:
			ok, err = r.skipVariable()
		case common.IsRST(m) || m == common.MarkerTEM:
			// Parameterless; stray ones are ignored.
			ok = true
		default:
			return Suspended, fmt.Errorf("%w: %s", common.ErrInvalidMarker, common.MarkerName(m))
		}
		if err != nil || !ok {
			return Suspended, err
		}
		r.src.UnreadMarker = 0
	}
}

// firstMarker requires the stream to open with SOI.
func (r *Reader) firstMarker() (bool, error) {
	start := r.src.Pos()
	v, ok := r.src.TryGetUint16()
	if !ok {
		if r.src.Closed() {
			return false, common.ErrInvalidSOI
		}
		r.src.Rewind(start)
		return false, nil
	}
	if v != common.MarkerSOI {
		return false, fmt.Errorf("%w: found %#04x", common.ErrInvalidSOI, v)
	}
	r.src.UnreadMarker = v
	return true, nil
}

// NextMarker finds the next marker, skipping anything that is not one, and
// leaves it in the source's UnreadMarker. It reports false if input ran out.
func (r *Reader) NextMarker() bool {
	src := r.src
	for {
		c, ok := src.TryGetByte()
		if !ok {
			return false
		}
		if c != 0xFF {
			r.discarded++
			continue
		}
		// Any number of FF fill bytes may precede the marker code.
		mark := src.Pos() - 1
		for c == 0xFF {
			if c, ok = src.TryGetByte(); !ok {
				src.Rewind(mark)
				return false
			}
		}
		if c == 0 {
			// A stuffed zero is data, not a marker.
			r.discarded += 2
			continue
		}
		marker := 0xFF00 | uint16(c)
		if r.discarded > 0 {
			r.diag.Warn(common.WarnExtraneousData,
				slog.Int("bytes", r.discarded), slog.String("marker", common.MarkerName(marker)))
			r.discarded = 0
		}
		src.UnreadMarker = marker
		return true
	}
}

// readSegment returns the payload of a length-prefixed segment. It
// reports false, with the source rewound to start, if the payload is
// not yet buffered.
func (r *Reader) readSegment(start int) ([]byte, bool, error) {
	length, ok := r.src.TryGetUint16()
	if ok && length < 2 {
		return nil, false, fmt.Errorf("%w: %s length %d", common.ErrInvalidMarker,
			common.MarkerName(r.src.UnreadMarker), length)
	}
	var data []byte
	if ok {
		data, ok = r.src.TryRead(int(length) - 2)
	}
	if !ok {
		return nil, false, r.suspend(start)
	}
	return data, true, nil
}

func (r *Reader) suspend(start int) error {
	if r.src.Closed() {
		return fmt.Errorf("%w in %s segment", common.ErrUnexpectedEOF, common.MarkerName(r.src.UnreadMarker))
	}
	r.src.Rewind(start)
	return nil
}

func (r *Reader) readSOI() (bool, error) {
	if r.sawSOI {
		return false, common.ErrDuplicateSOI
	}
	r.sawSOI = true
	r.RestartInterval = 0
	r.JFIF = nil
	r.JFXX = false
	r.Adobe = nil
	return true, nil
}

func (r *Reader) readSOF(progressive bool) (bool, error) {
	data, ok, err := r.readSegment(r.src.Pos())
	if !ok {
		return false, err
	}
	if r.Frame != nil {
		return false, common.ErrDuplicateSOF
	}
	if len(data) < 6 {
		return false, fmt.Errorf("%w: %d byte segment", common.ErrInvalidSOF, len(data))
	}
	precision := int(data[0])
	height := int(binary.BigEndian.Uint16(data[1:]))
	width := int(binary.BigEndian.Uint16(data[3:]))
	n := int(data[5])
	if len(data) != 6+3*n {
		return false, fmt.Errorf("%w: %d components in %d byte segment", common.ErrInvalidSOF, n, len(data))
	}

	comps := make([]common.Component, n)
	for i := range comps {
		p := data[6+3*i:]
		comps[i] = common.Component{ID: int(p[0]), H: int(p[1] >> 4), V: int(p[1] & 15), Tq: int(p[2])}
		if comps[i].Tq >= len(r.tables.Quant) {
			return false, fmt.Errorf("%w: quantization table %d", common.ErrInvalidSOF, comps[i].Tq)
		}
	}
	f, err := common.NewFrame(precision, width, height, comps)
	if err != nil {
		return false, err
	}
	f.Progressive = progressive
	r.Frame = f
	return true, nil
}

func (r *Reader) readSOS() (bool, error) {
	data, ok, err := r.readSegment(r.src.Pos())
	if !ok {
		return false, err
	}
	if r.Frame == nil {
		return false, common.ErrSOSBeforeSOF
	}
	if len(data) < 1 {
		return false, fmt.Errorf("%w: empty segment", common.ErrInvalidSOS)
	}
	n := int(data[0])
	if n < 1 || n > common.MaxCompsInScan || len(data) != 1+2*n+3 {
		return false, fmt.Errorf("%w: %d components in %d byte segment", common.ErrInvalidSOS, n, len(data))
	}

	f := r.Frame
	scan := common.ScanInfo{Components: make([]int, 0, n)}
	for i := 0; i < n; i++ {
		id, tbl := int(data[1+2*i]), data[2+2*i]
		c, found := f.ComponentByID(id)
		if !found {
			return false, fmt.Errorf("%w: id %d", common.ErrBadComponentID, id)
		}
		for _, prev := range scan.Components {
			if prev == c.Index {
				return false, fmt.Errorf("%w: id %d repeated", common.ErrBadComponentID, id)
			}
		}
		c.Td = int(tbl >> 4)
		c.Ta = int(tbl & 15)
		scan.Components = append(scan.Components, c.Index)
	}
	p := data[1+2*n:]
	scan.Ss = int(p[0])
	scan.Se = int(p[1])
	scan.Ah = int(p[2] >> 4)
	scan.Al = int(p[2] & 15)

	f.RestartInterval = r.RestartInterval
	if err := f.SetupScan(scan); err != nil {
		return false, err
	}
	r.NextRestartNum = 0
	r.Scans++
	return true, nil
}

func (r *Reader) readDHT() (bool, error) {
	data, ok, err := r.readSegment(r.src.Pos())
	if !ok {
		return false, err
	}
	for len(data) > 0 {
		if len(data) < 17 {
			return false, fmt.Errorf("%w: truncated table", common.ErrInvalidDHT)
		}
		index := int(data[0])
		spec := &common.HuffmanSpec{}
		count := 0
		for i := range spec.Bits {
			spec.Bits[i] = int(data[1+i])
			count += spec.Bits[i]
		}
		if count > 256 || len(data) < 17+count {
			return false, fmt.Errorf("%w: %d symbols", common.ErrInvalidDHT, count)
		}
		spec.Values = append([]byte(nil), data[17:17+count]...)
		data = data[17+count:]

		slots := &r.tables.DC
		if index&0x10 != 0 {
			slots = &r.tables.AC
			index -= 0x10
		}
		if index < 0 || index >= common.NumHuffTables {
			return false, fmt.Errorf("%w: table index %#x", common.ErrInvalidDHT, index)
		}
		slots[index] = spec
	}
	return true, nil
}

func (r *Reader) readDQT() (bool, error) {
	data, ok, err := r.readSegment(r.src.Pos())
	if !ok {
		return false, err
	}
	for len(data) > 0 {
		n := int(data[0] & 15)
		prec := int(data[0] >> 4)
		if n >= len(r.tables.Quant) || prec > 1 {
			return false, fmt.Errorf("%w: table %d precision %d", common.ErrInvalidDQT, n, prec)
		}
		size := common.BlockSize * (prec + 1)
		if len(data) < 1+size {
			return false, fmt.Errorf("%w: truncated table %d", common.ErrInvalidDQT, n)
		}
		q := &common.QuantTable{}
		for i := 0; i < common.BlockSize; i++ {
			var v uint16
			if prec == 1 {
				v = binary.BigEndian.Uint16(data[1+2*i:])
			} else {
				v = uint16(data[1+i])
			}
			q.Values[common.NaturalOrder[i]] = v
		}
		r.tables.Quant[n] = q
		data = data[1+size:]
	}
	return true, nil
}

func (r *Reader) readDRI() (bool, error) {
	data, ok, err := r.readSegment(r.src.Pos())
	if !ok {
		return false, err
	}
	if len(data) != 2 {
		return false, fmt.Errorf("%w: length %d", common.ErrInvalidDRI, len(data)+2)
	}
	r.RestartInterval = int(binary.BigEndian.Uint16(data))
	return true, nil
}

// readVariable handles APPn and COM: recognized APP0 and APP14 headers are
// parsed, segments registered with SaveMarkers are kept, and the rest of
// the payload is skipped.
func (r *Reader) readVariable(m uint16) (bool, error) {
	src := r.src
	start := src.Pos()
	length, ok := src.TryGetUint16()
	if !ok {
		return false, r.suspend(start)
	}
	if length < 2 {
		return false, fmt.Errorf("%w: %s length %d", common.ErrInvalidMarker, common.MarkerName(m), length)
	}
	total := int(length) - 2

	want := r.saveLimit[m]
	switch m {
	case common.MarkerAPP0:
		want = max(want, 14)
	case common.MarkerAPP14:
		want = max(want, 12)
	}
	want = min(want, total)

	head, ok := src.TryRead(want)
	if !ok || !src.TrySkip(total-want) {
		return false, r.suspend(start)
	}

	switch m {
	case common.MarkerAPP0:
		r.examineAPP0(head, total)
	case common.MarkerAPP14:
		r.examineAPP14(head)
	}
	if limit, save := r.saveLimit[m]; save {
		n := min(limit, len(head))
		r.Saved = append(r.Saved, Saved{Marker: m, Data: append([]byte(nil), head[:n]...), Length: total})
	}
	return true, nil
}

func (r *Reader) examineAPP0(data []byte, total int) {
	switch {
	case len(data) >= 14 && bytes.HasPrefix(data, []byte("JFIF\x00")):
		j := &JFIF{
			MajorVersion: int(data[5]),
			MinorVersion: int(data[6]),
			DensityUnit:  int(data[7]),
			XDensity:     int(binary.BigEndian.Uint16(data[8:])),
			YDensity:     int(binary.BigEndian.Uint16(data[10:])),
			ThumbWidth:   int(data[12]),
			ThumbHeight:  int(data[13]),
		}
		if j.MajorVersion != 1 {
			r.diag.Warn(common.WarnJFIFRevision, slog.Int("major", j.MajorVersion), slog.Int("minor", j.MinorVersion))
		}
		if total-14 != 3*j.ThumbWidth*j.ThumbHeight {
			r.diag.Warn(common.WarnJFIFThumbnail, slog.Int("length", total))
		}
		r.JFIF = j
	case len(data) >= 6 && bytes.HasPrefix(data, []byte("JFXX\x00")):
		r.JFXX = true
	case bytes.HasPrefix(data, []byte("JFIF")) || bytes.HasPrefix(data, []byte("JFXX")):
		r.diag.Warn(common.WarnShortAPP, slog.String("marker", "APP0"), slog.Int("length", total))
	}
}

func (r *Reader) examineAPP14(data []byte) {
	switch {
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("Adobe")):
		r.Adobe = &Adobe{
			Version:   int(binary.BigEndian.Uint16(data[5:])),
			Flags0:    int(binary.BigEndian.Uint16(data[7:])),
			Flags1:    int(binary.BigEndian.Uint16(data[9:])),
			Transform: int(data[11]),
		}
	case bytes.HasPrefix(data, []byte("Adobe")):
		r.diag.Warn(common.WarnShortAPP, slog.String("marker", "APP14"), slog.Int("length", len(data)))
	}
}

// skipVariable skips a segment whose content is not used. The skip is
// truncated at the end of input.
func (r *Reader) skipVariable() (bool, error) {
	start := r.src.Pos()
	length, ok := r.src.TryGetUint16()
	if !ok {
		return false, r.suspend(start)
	}
	if length < 2 {
		return false, fmt.Errorf("%w: %s length %d", common.ErrInvalidMarker,
			common.MarkerName(r.src.UnreadMarker), length)
	}
	if !r.src.TrySkip(int(length) - 2) {
		r.src.Rewind(start)
		return false, nil
	}
	return true, nil
}

// ReadRestartMarker implements the entropy decoders' restart hook: it
// consumes the expected RSTn, or resynchronizes if another marker is
// found instead.
func (r *Reader) ReadRestartMarker() (bool, error) {
	if r.src.UnreadMarker == 0 && !r.NextMarker() {
		return false, nil
	}
	if r.src.UnreadMarker == common.RST(r.NextRestartNum) {
		r.src.UnreadMarker = 0
	} else {
		resync := r.Resync
		if resync == nil {
			resync = (*Reader).ResyncToRestart
		}
		if !resync(r, r.NextRestartNum) {
			return false, nil
		}
	}
	r.NextRestartNum = (r.NextRestartNum + 1) & 7
	return true, nil
}

// ResyncToRestart decides what to do with a marker found where RSTn
// (n = desired) was expected:
//
//   - a non-restart marker, or one of the next two restarts, is left for
//     later; the decoder fills the missing intervals with zeros.
//   - one of the two previous restarts, or a byte sequence that is not a
//     valid marker, means we are behind: scan on to the next marker.
//   - anything else is taken as the desired marker.
func (r *Reader) ResyncToRestart(desired int) bool {
	marker := r.src.UnreadMarker
	r.diag.Warn(common.WarnMustResync,
		slog.String("found", common.MarkerName(marker)), slog.Int("expected", desired))

	for {
		action := 1
		switch {
		case marker < common.MarkerSOF0:
			action = 2
		case !common.IsRST(marker):
			action = 3
		case marker == common.RST(desired+1) || marker == common.RST(desired+2):
			action = 3
		case marker == common.RST(desired-1) || marker == common.RST(desired-2):
			action = 2
		}

		switch action {
		case 1:
			r.src.UnreadMarker = 0
			return true
		case 2:
			if !r.NextMarker() {
				return false
			}
			marker = r.src.UnreadMarker
		case 3:
			return true
		}
	}
}
