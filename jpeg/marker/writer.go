package marker

import (
	"encoding/binary"
	"fmt"

	"github.com/cocosip/go-dicom-jpeg/jpeg/bitio"
	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

// Writer emits marker segments. Segments are written whole or not at all;
// a sink without room for one fails with ErrCantSuspend.
type Writer struct {
	sink   *bitio.Sink
	tables *common.Tables

	lastRestartInterval int
	buf                 []byte
}

// NewWriter creates a marker writer. Tables are written from tables the
// first time a frame or scan needs them.
func NewWriter(sink *bitio.Sink, tables *common.Tables) *Writer {
	return &Writer{sink: sink, tables: tables}
}

func (w *Writer) begin(marker uint16) {
	w.buf = append(w.buf[:0], byte(marker>>8), byte(marker))
}

// beginSegment starts a segment with a length field of 2+n.
func (w *Writer) beginSegment(marker uint16, n int) {
	w.begin(marker)
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(2+n))
}

func (w *Writer) flush() error {
	if !w.sink.TryEmit(w.buf) {
		return fmt.Errorf("%w: no room for %s segment", common.ErrCantSuspend, common.MarkerName(uint16(w.buf[0])<<8|uint16(w.buf[1])))
	}
	return nil
}

// WriteSOI starts a new image.
func (w *Writer) WriteSOI() error {
	w.lastRestartInterval = 0
	w.begin(common.MarkerSOI)
	return w.flush()
}

// WriteEOI ends the image.
func (w *Writer) WriteEOI() error {
	w.begin(common.MarkerEOI)
	return w.flush()
}

// WriteJFIF writes a JFIF APP0 segment without a thumbnail.
func (w *Writer) WriteJFIF(j *JFIF) error {
	w.beginSegment(common.MarkerAPP0, 14)
	w.buf = append(w.buf, 'J', 'F', 'I', 'F', 0,
		byte(j.MajorVersion), byte(j.MinorVersion), byte(j.DensityUnit))
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(j.XDensity))
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(j.YDensity))
	w.buf = append(w.buf, 0, 0)
	return w.flush()
}

// WriteAdobe writes an Adobe APP14 segment recording the color transform.
func (w *Writer) WriteAdobe(transform int) error {
	w.beginSegment(common.MarkerAPP14, 12)
	w.buf = append(w.buf, 'A', 'd', 'o', 'b', 'e')
	w.buf = binary.BigEndian.AppendUint16(w.buf, 100)
	w.buf = binary.BigEndian.AppendUint16(w.buf, 0)
	w.buf = binary.BigEndian.AppendUint16(w.buf, 0)
	w.buf = append(w.buf, byte(transform))
	return w.flush()
}

// WriteMarker writes an APPn or COM segment with the given payload.
func (w *Writer) WriteMarker(marker uint16, data []byte) error {
	if !common.IsAPP(marker) && marker != common.MarkerCOM {
		return fmt.Errorf("%w: %s is not an application marker", common.ErrInvalidMarker, common.MarkerName(marker))
	}
	if len(data) > 65533 {
		return fmt.Errorf("%w: %d byte %s payload", common.ErrInvalidMarker, len(data), common.MarkerName(marker))
	}
	w.beginSegment(marker, len(data))
	w.buf = append(w.buf, data...)
	return w.flush()
}

// writeDQT writes quantization table n unless it was already sent and
// returns its precision.
func (w *Writer) writeDQT(n int) (int, error) {
	q := w.tables.Quant[n]
	if q == nil {
		return 0, fmt.Errorf("%w: table %d", common.ErrMissingQuantTable, n)
	}
	prec := q.Precision()
	if q.Sent {
		return prec, nil
	}
	w.beginSegment(common.MarkerDQT, 1+common.BlockSize*(prec+1))
	w.buf = append(w.buf, byte(prec<<4|n))
	for i := 0; i < common.BlockSize; i++ {
		v := q.Values[common.NaturalOrder[i]]
		if prec == 1 {
			w.buf = append(w.buf, byte(v>>8))
		}
		w.buf = append(w.buf, byte(v))
	}
	if err := w.flush(); err != nil {
		return 0, err
	}
	q.Sent = true
	return prec, nil
}

// writeDHT writes a Huffman table unless it was already sent.
func (w *Writer) writeDHT(n int, ac bool) error {
	slots := &w.tables.DC
	index := n
	if ac {
		slots = &w.tables.AC
		index |= 0x10
	}
	if n < 0 || n >= common.NumHuffTables || slots[n] == nil {
		return fmt.Errorf("%w: table %d", common.ErrMissingHuffTable, n)
	}
	spec := slots[n]
	if spec.Sent {
		return nil
	}
	count := 0
	for _, b := range spec.Bits {
		count += b
	}
	w.beginSegment(common.MarkerDHT, 1+16+count)
	w.buf = append(w.buf, byte(index))
	for _, b := range spec.Bits {
		w.buf = append(w.buf, byte(b))
	}
	w.buf = append(w.buf, spec.Values[:count]...)
	if err := w.flush(); err != nil {
		return err
	}
	spec.Sent = true
	return nil
}

func (w *Writer) writeDRI(interval int) error {
	w.beginSegment(common.MarkerDRI, 2)
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(interval))
	return w.flush()
}

// WriteFrameHeader writes the quantization tables used by f followed by
// the frame header. SOF0 is chosen when the frame meets the baseline
// limits: 8-bit samples, 8-bit quantization tables, and Huffman slots 0
// and 1 only.
func (w *Writer) WriteFrameHeader(f *common.Frame) error {
	prec := 0
	for i := range f.Components {
		p, err := w.writeDQT(f.Components[i].Tq)
		if err != nil {
			return err
		}
		prec += p
	}

	baseline := !f.Progressive && f.Precision == 8 && prec == 0
	for i := range f.Components {
		c := &f.Components[i]
		if c.Td > 1 || c.Ta > 1 {
			baseline = false
		}
	}

	code := uint16(common.MarkerSOF1)
	switch {
	case f.Progressive:
		code = common.MarkerSOF2
	case baseline:
		code = common.MarkerSOF0
	}

	w.beginSegment(code, 6+3*len(f.Components))
	w.buf = append(w.buf, byte(f.Precision))
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(f.Height))
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(f.Width))
	w.buf = append(w.buf, byte(len(f.Components)))
	for i := range f.Components {
		c := &f.Components[i]
		w.buf = append(w.buf, byte(c.ID), byte(c.H<<4|c.V), byte(c.Tq))
	}
	return w.flush()
}

// WriteScanHeader writes the Huffman tables the active scan needs, a DRI
// segment if the restart interval changed, and the scan header.
func (w *Writer) WriteScanHeader(f *common.Frame) error {
	scan := &f.Scan
	for _, c := range f.ScanComps {
		var err error
		switch {
		case !f.Progressive:
			if err = w.writeDHT(c.Td, false); err == nil {
				err = w.writeDHT(c.Ta, true)
			}
		case scan.Ss == 0:
			if scan.Ah == 0 {
				err = w.writeDHT(c.Td, false)
			}
		default:
			err = w.writeDHT(c.Ta, true)
		}
		if err != nil {
			return err
		}
	}

	if f.RestartInterval != w.lastRestartInterval {
		if err := w.writeDRI(f.RestartInterval); err != nil {
			return err
		}
		w.lastRestartInterval = f.RestartInterval
	}

	w.beginSegment(common.MarkerSOS, 1+2*len(f.ScanComps)+3)
	w.buf = append(w.buf, byte(len(f.ScanComps)))
	for _, c := range f.ScanComps {
		td, ta := c.Td, c.Ta
		if f.Progressive {
			// Progressive scans name only the table they use.
			if scan.Ss == 0 {
				ta = 0
				if scan.Ah != 0 {
					td = 0
				}
			} else {
				td = 0
			}
		}
		w.buf = append(w.buf, byte(c.ID), byte(td<<4|ta))
	}
	w.buf = append(w.buf, byte(scan.Ss), byte(scan.Se), byte(scan.Ah<<4|scan.Al))
	return w.flush()
}
