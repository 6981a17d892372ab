package bitio

import "io"

// Sink collects output bytes. With a limit set, emits fail once the
// undrained output reaches the limit.
type Sink struct {
	buf   []byte
	limit int
}

// NewSink creates an unlimited sink.
func NewSink() *Sink {
	return &Sink{}
}

// SetLimit bounds the number of undrained bytes. Zero removes the bound.
func (s *Sink) SetLimit(n int) {
	s.limit = n
}

func (s *Sink) room() int {
	if s.limit <= 0 {
		return int(^uint(0) >> 1)
	}
	return s.limit - len(s.buf)
}

// TryEmitByte appends b, or reports false if the sink is full.
func (s *Sink) TryEmitByte(b byte) bool {
	if s.room() < 1 {
		return false
	}
	s.buf = append(s.buf, b)
	return true
}

// TryEmit appends all of p, or nothing.
func (s *Sink) TryEmit(p []byte) bool {
	if s.room() < len(p) {
		return false
	}
	s.buf = append(s.buf, p...)
	return true
}

// Pos returns the write position, for use with Rewind.
func (s *Sink) Pos() int {
	return len(s.buf)
}

// Rewind drops output written after pos.
func (s *Sink) Rewind(pos int) {
	s.buf = s.buf[:pos]
}

// Len returns the number of undrained bytes.
func (s *Sink) Len() int {
	return len(s.buf)
}

// Bytes returns the undrained output.
func (s *Sink) Bytes() []byte {
	return s.buf
}

// Drain returns the undrained output and empties the sink. Positions
// obtained from Pos before the call become invalid.
func (s *Sink) Drain() []byte {
	p := s.buf
	s.buf = nil
	return p
}

// WriteTo drains the sink into w.
func (s *Sink) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(s.buf)
	s.buf = s.buf[n:]
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return int64(n), err
}
