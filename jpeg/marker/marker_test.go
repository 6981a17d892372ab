package marker

import (
	"bytes"
	"errors"
	"testing"

	"github.com/cocosip/go-dicom-jpeg/jpeg/bitio"
	"github.com/cocosip/go-dicom-jpeg/jpeg/common"
)

func testTables() *common.Tables {
	tables := &common.Tables{}
	tables.Quant[0] = &common.QuantTable{Values: common.ScaleQuantTable(common.DefaultLuminanceQuantTable, 75, true)}
	tables.Quant[1] = &common.QuantTable{Values: common.ScaleQuantTable(common.DefaultChrominanceQuantTable, 75, true)}
	for i := 0; i < 2; i++ {
		tables.DC[i] = common.StandardSpec(false, i)
		tables.AC[i] = common.StandardSpec(true, i)
	}
	return tables
}

func colorFrame(t *testing.T) *common.Frame {
	t.Helper()
	f, err := common.NewFrame(8, 33, 17, []common.Component{
		{ID: 1, H: 2, V: 2, Tq: 0},
		{ID: 2, H: 1, V: 1, Tq: 1, Td: 1, Ta: 1},
		{ID: 3, H: 1, V: 1, Tq: 1, Td: 1, Ta: 1},
	})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	if err := f.SetupScan(common.ScanInfo{Components: []int{0, 1, 2}, Se: 63}); err != nil {
		t.Fatalf("SetupScan: %v", err)
	}
	f.RestartInterval = 4
	return f
}

// headerStream writes the markers of a baseline color image up to and
// including its scan header.
func headerStream(t *testing.T, tables *common.Tables, f *common.Frame) []byte {
	t.Helper()
	sink := bitio.NewSink()
	w := NewWriter(sink, tables)
	steps := []func() error{
		w.WriteSOI,
		func() error {
			return w.WriteJFIF(&JFIF{MajorVersion: 1, MinorVersion: 1, XDensity: 1, YDensity: 1})
		},
		func() error { return w.WriteMarker(common.MarkerCOM, []byte("hello")) },
		func() error { return w.WriteFrameHeader(f) },
		func() error { return w.WriteScanHeader(f) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	return sink.Bytes()
}

func sameSpec(a, b *common.HuffmanSpec) bool {
	return a != nil && b != nil && a.Bits == b.Bits && bytes.Equal(a.Values, b.Values)
}

func checkHeaders(t *testing.T, r *Reader, want *common.Frame, tables *common.Tables) {
	t.Helper()
	f := r.Frame
	if f == nil {
		t.Fatal("no frame read")
	}
	if f.Width != want.Width || f.Height != want.Height || f.Precision != want.Precision || f.Progressive {
		t.Errorf("frame = %dx%d %d-bit progressive=%v", f.Width, f.Height, f.Precision, f.Progressive)
	}
	for i := range want.Components {
		g, w := f.Components[i], want.Components[i]
		if g.ID != w.ID || g.H != w.H || g.V != w.V || g.Tq != w.Tq || g.Td != w.Td || g.Ta != w.Ta {
			t.Errorf("component %d = %+v, want %+v", i, g, w)
		}
	}
	if f.RestartInterval != 4 {
		t.Errorf("RestartInterval = %d, want 4", f.RestartInterval)
	}
	if len(f.ScanComps) != 3 || f.Scan.Se != 63 {
		t.Errorf("scan = %+v", f.Scan)
	}
	for i := 0; i < 2; i++ {
		if r.tables.Quant[i] == nil || r.tables.Quant[i].Values != tables.Quant[i].Values {
			t.Errorf("quantization table %d differs", i)
		}
		if !sameSpec(r.tables.DC[i], tables.DC[i]) || !sameSpec(r.tables.AC[i], tables.AC[i]) {
			t.Errorf("Huffman tables %d differ", i)
		}
	}
	if r.JFIF == nil || r.JFIF.MajorVersion != 1 || r.JFIF.MinorVersion != 1 {
		t.Errorf("JFIF = %+v", r.JFIF)
	}
	if len(r.Saved) != 1 || string(r.Saved[0].Data) != "hello" {
		t.Errorf("saved markers = %+v", r.Saved)
	}
}

func TestHeadersRoundTrip(t *testing.T) {
	tables := testTables()
	f := colorFrame(t)
	data := append(headerStream(t, tables, f), 0xFF, 0xD9)

	r := NewReader(bitio.NewSourceBytes(data, nil), &common.Tables{}, nil)
	r.SaveMarkers(common.MarkerCOM, 100)
	res, err := r.ReadMarkers()
	if err != nil || res != ReachedSOS {
		t.Fatalf("ReadMarkers = %v, %v; want ReachedSOS", res, err)
	}
	checkHeaders(t, r, f, tables)

	res, err = r.ReadMarkers()
	if err != nil || res != ReachedEOI {
		t.Fatalf("ReadMarkers = %v, %v; want ReachedEOI", res, err)
	}
}

func TestHeadersByteAtATime(t *testing.T) {
	tables := testTables()
	f := colorFrame(t)
	data := headerStream(t, tables, f)

	src := bitio.NewSource(nil)
	r := NewReader(src, &common.Tables{}, nil)
	r.SaveMarkers(common.MarkerCOM, 100)
	for i, b := range data {
		src.Write([]byte{b})
		res, err := r.ReadMarkers()
		if err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
		last := i == len(data)-1
		if last && res != ReachedSOS {
			t.Fatalf("after all input ReadMarkers = %v", res)
		}
		if !last && res != Suspended {
			t.Fatalf("byte %d: ReadMarkers = %v, want Suspended", i, res)
		}
	}
	checkHeaders(t, r, f, tables)
}

func TestReadErrors(t *testing.T) {
	sof := []byte{0xFF, 0xC0, 0, 11, 8, 0, 8, 0, 8, 1, 1, 0x11, 0}
	sos := []byte{0xFF, 0xDA, 0, 8, 1, 1, 0, 0, 63, 0}
	cat := func(parts ...[]byte) []byte { return bytes.Join(parts, nil) }
	soi := []byte{0xFF, 0xD8}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"missing SOI", []byte{0xFF, 0xC0, 0, 2}, common.ErrInvalidSOI},
		{"empty input", nil, common.ErrInvalidSOI},
		{"duplicate SOI", cat(soi, soi), common.ErrDuplicateSOI},
		{"duplicate SOF", cat(soi, sof, sof), common.ErrDuplicateSOF},
		{"SOS before SOF", cat(soi, sos), common.ErrSOSBeforeSOF},
		{"lossless frame", cat(soi, []byte{0xFF, 0xC3, 0, 2}), common.ErrUnsupportedProcess},
		{"arithmetic frame", cat(soi, []byte{0xFF, 0xC9, 0, 2}), common.ErrUnsupportedProcess},
		{"bad DRI length", cat(soi, []byte{0xFF, 0xDD, 0, 5, 0, 1, 0}), common.ErrInvalidDRI},
		{"bad DHT index", cat(soi, []byte{0xFF, 0xC4, 0, 19, 0x04}, make([]byte, 16)), common.ErrInvalidDHT},
		{"bad DQT precision", cat(soi, []byte{0xFF, 0xDB, 0, 3, 0x20}), common.ErrInvalidDQT},
		{"SOF length mismatch", cat(soi, []byte{0xFF, 0xC0, 0, 11, 8, 0, 8, 0, 8, 2, 1, 0x11, 0}), common.ErrInvalidSOF},
		{"unknown component in scan", cat(soi, sof, []byte{0xFF, 0xDA, 0, 8, 1, 9, 0, 0, 63, 0}), common.ErrBadComponentID},
		{"truncated segment", cat(soi, []byte{0xFF, 0xDB, 0, 67, 0}), common.ErrUnexpectedEOF},
		{"reserved marker", cat(soi, []byte{0xFF, 0x02}), common.ErrInvalidMarker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(bitio.NewSourceBytes(tt.data, nil), &common.Tables{}, nil)
			var err error
			for i := 0; i < 8 && err == nil; i++ {
				_, err = r.ReadMarkers()
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExtraneousBytesSkipped(t *testing.T) {
	diag := common.NewDiagnostics(nil)
	data := []byte{0xFF, 0xD8, 0x12, 0x34, 0xFF, 0x00, 0xFF, 0xFF, 0xD9}
	r := NewReader(bitio.NewSourceBytes(data, diag), &common.Tables{}, diag)
	res, err := r.ReadMarkers()
	if err != nil || res != ReachedEOI {
		t.Fatalf("ReadMarkers = %v, %v", res, err)
	}
	if diag.Count(common.WarnExtraneousData) != 1 {
		t.Errorf("WarnExtraneousData count = %d, want 1", diag.Count(common.WarnExtraneousData))
	}
}

func TestMissingEOIIsSynthesized(t *testing.T) {
	tables := testTables()
	data := headerStream(t, tables, colorFrame(t))
	diag := common.NewDiagnostics(nil)
	r := NewReader(bitio.NewSourceBytes(data, diag), &common.Tables{}, diag)
	if res, err := r.ReadMarkers(); res != ReachedSOS || err != nil {
		t.Fatalf("ReadMarkers = %v, %v", res, err)
	}
	if res, err := r.ReadMarkers(); res != ReachedEOI || err != nil {
		t.Fatalf("ReadMarkers = %v, %v; want ReachedEOI", res, err)
	}
	if diag.Count(common.WarnPrematureEOF) != 1 {
		t.Error("premature end not reported")
	}
}

func TestAppSegments(t *testing.T) {
	sink := bitio.NewSink()
	w := NewWriter(sink, &common.Tables{})
	if err := w.WriteSOI(); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteJFIF(&JFIF{MajorVersion: 2, MinorVersion: 0, DensityUnit: 1, XDensity: 72, YDensity: 72}); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteAdobe(1); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteMarker(common.MarkerAPP0+2, bytes.Repeat([]byte{7}, 50)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteEOI(); err != nil {
		t.Fatal(err)
	}

	diag := common.NewDiagnostics(nil)
	r := NewReader(bitio.NewSourceBytes(sink.Bytes(), diag), &common.Tables{}, diag)
	r.SaveMarkers(common.MarkerAPP0+2, 10)
	if res, err := r.ReadMarkers(); res != ReachedEOI || err != nil {
		t.Fatalf("ReadMarkers = %v, %v", res, err)
	}
	if r.JFIF == nil || r.JFIF.XDensity != 72 || r.JFIF.DensityUnit != 1 {
		t.Errorf("JFIF = %+v", r.JFIF)
	}
	if diag.Count(common.WarnJFIFRevision) != 1 {
		t.Error("JFIF 2.0 not reported")
	}
	if r.Adobe == nil || r.Adobe.Transform != 1 || r.Adobe.Version != 100 {
		t.Errorf("Adobe = %+v", r.Adobe)
	}
	if len(r.Saved) != 1 || len(r.Saved[0].Data) != 10 || r.Saved[0].Length != 50 {
		t.Errorf("saved = %+v", r.Saved)
	}
}

func TestFrameMarkerSelection(t *testing.T) {
	tests := []struct {
		name        string
		precision   int
		progressive bool
		td          int
		bigQuant    bool
		want        byte
	}{
		{"baseline", 8, false, 0, false, 0xC0},
		{"12-bit", 12, false, 0, false, 0xC1},
		{"third table slot", 8, false, 2, false, 0xC1},
		{"16-bit quantization", 8, false, 0, true, 0xC1},
		{"progressive", 8, true, 0, false, 0xC2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tables := testTables()
			if tt.bigQuant {
				tables.Quant[0].Values[5] = 300
			}
			f, err := common.NewFrame(tt.precision, 8, 8, []common.Component{{ID: 1, H: 1, V: 1, Td: tt.td}})
			if err != nil {
				t.Fatal(err)
			}
			f.Progressive = tt.progressive
			sink := bitio.NewSink()
			if err := NewWriter(sink, tables).WriteFrameHeader(f); err != nil {
				t.Fatal(err)
			}
			out := sink.Bytes()
			i := bytes.Index(out, []byte{0xFF, tt.want})
			if i < 0 {
				t.Fatalf("frame marker FF %02X not found in % X", tt.want, out)
			}
			if tt.bigQuant {
				r := NewReader(bitio.NewSourceBytes(append([]byte{0xFF, 0xD8}, out...), nil), &common.Tables{}, nil)
				r.ReadMarkers()
				if r.tables.Quant[0] == nil || r.tables.Quant[0].Values != tables.Quant[0].Values {
					t.Error("16-bit quantization table did not survive")
				}
			}
		})
	}
}

func TestTablesSentOnce(t *testing.T) {
	tables := testTables()
	f := colorFrame(t)
	sink := bitio.NewSink()
	w := NewWriter(sink, tables)
	if err := w.WriteScanHeader(f); err != nil {
		t.Fatal(err)
	}
	first := sink.Len()
	if err := w.WriteScanHeader(f); err != nil {
		t.Fatal(err)
	}
	second := sink.Len() - first
	// Only the SOS segment is repeated.
	if want := 2 + 2 + 1 + 2*3 + 3; second != want {
		t.Errorf("second header is %d bytes, want %d", second, want)
	}
	if bytes.Count(sink.Bytes(), []byte{0xFF, 0xC4}) != 4 || bytes.Count(sink.Bytes(), []byte{0xFF, 0xDD}) != 1 {
		t.Errorf("unexpected segments in % X", sink.Bytes())
	}
}

func TestProgressiveScanHeaderTables(t *testing.T) {
	tables := testTables()
	f := colorFrame(t)
	f.Progressive = true
	tests := []struct {
		name     string
		scan     common.ScanInfo
		wantDHT  int
		wantSels []byte
	}{
		{"DC first", common.ScanInfo{Components: []int{0, 1, 2}}, 2, []byte{0x00, 0x10, 0x10}},
		{"DC refine", common.ScanInfo{Components: []int{0, 1, 2}, Ah: 1}, 0, []byte{0, 0, 0}},
		{"AC first", common.ScanInfo{Components: []int{1}, Ss: 1, Se: 63}, 1, []byte{0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, q := range tables.DC {
				if q != nil {
					q.Sent = false
				}
			}
			for _, q := range tables.AC {
				if q != nil {
					q.Sent = false
				}
			}
			if err := f.SetupScan(tt.scan); err != nil {
				t.Fatal(err)
			}
			sink := bitio.NewSink()
			w := NewWriter(sink, tables)
			w.lastRestartInterval = f.RestartInterval
			if err := w.WriteScanHeader(f); err != nil {
				t.Fatal(err)
			}
			out := sink.Bytes()
			if n := bytes.Count(out, []byte{0xFF, 0xC4}); n != tt.wantDHT {
				t.Errorf("%d DHT segments, want %d", n, tt.wantDHT)
			}
			sos := out[bytes.Index(out, []byte{0xFF, 0xDA}):]
			for i, want := range tt.wantSels {
				if got := sos[5+2*i+1]; got != want {
					t.Errorf("component %d table selector = %#02x, want %#02x", i, got, want)
				}
			}
		})
	}
}

func TestWriterCannotSuspend(t *testing.T) {
	sink := bitio.NewSink()
	sink.SetLimit(10)
	w := NewWriter(sink, testTables())
	if err := w.WriteSOI(); err != nil {
		t.Fatal(err)
	}
	err := w.WriteJFIF(&JFIF{MajorVersion: 1, MinorVersion: 1})
	if !errors.Is(err, common.ErrCantSuspend) {
		t.Fatalf("error = %v, want ErrCantSuspend", err)
	}
	if sink.Len() != 2 {
		t.Errorf("partial segment written: % X", sink.Bytes())
	}
}

func TestRestartResync(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		wantUnread uint16
		wantWarn   int
	}{
		{"expected marker", []byte{0xFF, 0xD0}, 0, 0},
		{"next marker is left", []byte{0xFF, 0xD1}, common.RST(1), 1},
		{"non-restart marker is left", []byte{0xFF, 0xD9}, common.MarkerEOI, 1},
		{"previous marker is skipped", []byte{0xFF, 0xD7, 0x12, 0x34, 0xFF, 0xD0}, 0, 1},
		{"invalid marker is skipped", []byte{0xFF, 0x01, 0xFF, 0xD0}, 0, 1},
		{"distant marker is taken", []byte{0xFF, 0xD4}, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diag := common.NewDiagnostics(nil)
			src := bitio.NewSourceBytes(tt.data, diag)
			r := NewReader(src, &common.Tables{}, diag)
			ok, err := r.ReadRestartMarker()
			if !ok || err != nil {
				t.Fatalf("ReadRestartMarker = %v, %v", ok, err)
			}
			if src.UnreadMarker != tt.wantUnread {
				t.Errorf("UnreadMarker = %#x, want %#x", src.UnreadMarker, tt.wantUnread)
			}
			if r.NextRestartNum != 1 {
				t.Errorf("NextRestartNum = %d, want 1", r.NextRestartNum)
			}
			if got := diag.Count(common.WarnMustResync); got != tt.wantWarn {
				t.Errorf("WarnMustResync count = %d, want %d", got, tt.wantWarn)
			}
		})
	}
}

func TestRestartMarkerSuspends(t *testing.T) {
	src := bitio.NewSource(nil)
	r := NewReader(src, &common.Tables{}, nil)
	src.Write([]byte{0xFF})
	if ok, err := r.ReadRestartMarker(); ok || err != nil {
		t.Fatalf("ReadRestartMarker = %v, %v; want suspension", ok, err)
	}
	src.Write([]byte{0xD0})
	if ok, err := r.ReadRestartMarker(); !ok || err != nil {
		t.Fatalf("ReadRestartMarker = %v, %v", ok, err)
	}
}
