package bitio

// WriterState is the bit accumulator: the low n bits of acc are pending.
type WriterState struct {
	acc uint64
	n   int
}

// Writer packs bits into bytes with 0xFF stuffing. Like Reader it works
// on a transaction: Begin, then Commit on success or Rollback to drop
// both the pending bits and the bytes emitted since Begin.
type Writer struct {
	sink *Sink

	perm WriterState
	work WriterState
	mark int
}

// NewWriter creates a bit writer over sink.
func NewWriter(sink *Sink) *Writer {
	return &Writer{sink: sink}
}

// Sink returns the underlying byte sink.
func (w *Writer) Sink() *Sink {
	return w.sink
}

// Reset drops pending bits. Called at the start of each scan.
func (w *Writer) Reset() {
	w.perm = WriterState{}
	w.work = WriterState{}
}

// Begin opens a transaction.
func (w *Writer) Begin() {
	w.work = w.perm
	w.mark = w.sink.Pos()
}

// Commit makes the working state permanent.
func (w *Writer) Commit() {
	w.perm = w.work
}

// Rollback abandons the working state and the bytes emitted since Begin.
func (w *Writer) Rollback() {
	w.work = w.perm
	w.sink.Rewind(w.mark)
}

// PutBits appends the low size bits of code (size <= 24).
func (w *Writer) PutBits(code uint32, size int) bool {
	if size == 0 {
		return true
	}
	w.work.acc = w.work.acc<<uint(size) | uint64(code)&(1<<uint(size)-1)
	w.work.n += size
	for w.work.n >= 8 {
		b := byte(w.work.acc >> uint(w.work.n-8))
		if !w.sink.TryEmitByte(b) {
			return false
		}
		if b == 0xFF && !w.sink.TryEmitByte(0) {
			return false
		}
		w.work.n -= 8
	}
	return true
}

// FlushBits pads the final partial byte with 1 bits.
func (w *Writer) FlushBits() bool {
	if !w.PutBits(0x7F, 7) {
		return false
	}
	w.work = WriterState{}
	return true
}

// EmitMarker writes a two-byte marker. Pending bits must have been flushed.
func (w *Writer) EmitMarker(marker uint16) bool {
	return w.sink.TryEmit([]byte{0xFF, byte(marker)})
}
