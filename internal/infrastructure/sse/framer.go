// Package sse reassembles upstream stream bytes into complete lines for the
// provider parsers. Upstream chunk boundaries carry no meaning: one read may
// hold half a line or twenty, so the framer buffers across reads and hands
// back only LF-terminated lines.
package sse

import "bytes"

// DefaultMaxLineLength bounds a single line at 1 MiB. A well-behaved
// upstream never comes close; a corrupt or hostile stream must not grow the
// buffer without limit.
const DefaultMaxLineLength = 1 << 20

// Framer splits a byte stream on LF, stripping one trailing CR per line.
// Lines longer than the limit are dropped whole while input is still
// consumed through their terminating LF, so one oversized line cannot take
// down the rest of the stream.
type Framer struct {
	maxLine      int
	buf          []byte
	dropping     bool
	droppedLines int
}

// NewFramer creates a framer with the given line limit; zero or negative
// means DefaultMaxLineLength.
func NewFramer(maxLine int) *Framer {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &Framer{maxLine: maxLine, buf: make([]byte, 0, 4096)}
}

// Push appends one read's worth of bytes and returns every line it
// completes, including empty ones. Callers decide which lines matter.
func (f *Framer) Push(p []byte) []string {
	var lines []string
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			if f.dropping {
				return lines
			}
			f.buf = append(f.buf, p...)
			if len(f.buf) > f.maxLine {
				f.enterDrop()
			}
			return lines
		}

		segment := p[:i]
		p = p[i+1:]

		if f.dropping {
			// The oversized line just ended; resume with the next one.
			f.dropping = false
			continue
		}

		f.buf = append(f.buf, segment...)
		if len(f.buf) > f.maxLine {
			f.buf = f.buf[:0]
			f.droppedLines++
			continue
		}
		lines = append(lines, string(trimCR(f.buf)))
		f.buf = f.buf[:0]
	}
	return lines
}

// Flush returns the final unterminated line, if any. Some upstreams end the
// body without a trailing LF and the last data line still counts.
func (f *Framer) Flush() (string, bool) {
	if f.dropping {
		f.dropping = false
		return "", false
	}
	if len(f.buf) == 0 {
		return "", false
	}
	line := string(trimCR(f.buf))
	f.buf = f.buf[:0]
	return line, true
}

// DroppedLines reports how many lines were discarded for exceeding the
// limit, for end-of-stream logging.
func (f *Framer) DroppedLines() int {
	return f.droppedLines
}

func (f *Framer) enterDrop() {
	f.dropping = true
	f.droppedLines++
	f.buf = f.buf[:0]
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}
