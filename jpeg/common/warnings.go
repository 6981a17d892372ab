package common

import (
	"context"
	"log/slog"
)

// Warning identifies a recoverable problem found in a JPEG stream.
// Coding continues after a warning, possibly with degraded output.
type Warning int

const (
	// WarnNotSequential reports scan parameters other than 0,63,0,0 in a sequential image.
	WarnNotSequential Warning = iota + 1
	// WarnHitMarker reports an entropy-coded segment that ended before the data did.
	WarnHitMarker
	// WarnHuffBadCode reports a Huffman code that matches no table entry.
	WarnHuffBadCode
	// WarnMustResync reports a restart marker that did not match the expected sequence.
	WarnMustResync
	// WarnBogusProgression reports out-of-order successive approximation.
	WarnBogusProgression
	// WarnJFIFRevision reports an unknown JFIF version number.
	WarnJFIFRevision
	// WarnJFIFThumbnail reports a JFIF thumbnail whose size disagrees with the segment length.
	WarnJFIFThumbnail
	// WarnExtraneousData reports garbage bytes skipped while searching for a marker.
	WarnExtraneousData
	// WarnPrematureEOF reports input that ended without an EOI marker.
	WarnPrematureEOF
	// WarnShortAPP reports an APP0 or APP14 segment too short to parse.
	WarnShortAPP

	warnCount
)

var warningText = [...]string{
	WarnNotSequential:    "invalid SOS parameters for sequential JPEG",
	WarnHitMarker:        "premature end of data segment",
	WarnHuffBadCode:      "bad Huffman code",
	WarnMustResync:       "found marker instead of expected restart",
	WarnBogusProgression: "inconsistent progression sequence",
	WarnJFIFRevision:     "unknown JFIF revision number",
	WarnJFIFThumbnail:    "JFIF thumbnail size does not match segment length",
	WarnExtraneousData:   "extraneous bytes before marker",
	WarnPrematureEOF:     "premature end of JPEG file",
	WarnShortAPP:         "short APP segment",
}

func (w Warning) String() string {
	if w > 0 && w < warnCount {
		return warningText[w]
	}
	return "unknown warning"
}

// Diagnostics counts warnings and logs the first occurrence of each kind.
// A nil *Diagnostics discards everything.
type Diagnostics struct {
	// Logger receives one record per warning kind. Nil keeps warnings silent.
	Logger *slog.Logger

	counts [warnCount]int
}

// NewDiagnostics creates a Diagnostics that logs through logger.
func NewDiagnostics(logger *slog.Logger) *Diagnostics {
	return &Diagnostics{Logger: logger}
}

// Warn records a warning. attrs are attached to the log record.
func (d *Diagnostics) Warn(w Warning, attrs ...slog.Attr) {
	if d == nil || w <= 0 || w >= warnCount {
		return
	}
	d.counts[w]++
	if d.counts[w] > 1 || d.Logger == nil {
		return
	}
	attrs = append(attrs, slog.Int("code", int(w)))
	d.Logger.LogAttrs(context.Background(), slog.LevelWarn, w.String(), attrs...)
}

// Count returns how many times w was raised.
func (d *Diagnostics) Count(w Warning) int {
	if d == nil || w <= 0 || w >= warnCount {
		return 0
	}
	return d.counts[w]
}

// Total returns the number of warnings raised.
func (d *Diagnostics) Total() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, c := range d.counts {
		n += c
	}
	return n
}

// Reset clears all counters.
func (d *Diagnostics) Reset() {
	if d != nil {
		d.counts = [warnCount]int{}
	}
}
