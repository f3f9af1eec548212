package sshlogs

import (
	"bytes"
	"unicode/utf8"
)

// Reassembler turns an arbitrary sequence of byte chunks into complete text
// lines. Lines end at '\n'; a single trailing '\r' is stripped. Chunks may
// split lines and multi-byte characters anywhere: feeding a stream in pieces
// yields exactly the lines a single Feed of the concatenation would.
//
// A completed line that is not valid UTF-8 is dropped and counted rather than
// failing the stream.
//
// If maxLine > 0, a line longer than maxLine bytes is cut at the last rune
// boundary at or below maxLine; the rest of that line is discarded up to the
// next terminator and the shortened line is emitted when it arrives.
//
// A Reassembler is owned by a single goroutine and is not safe for
// concurrent use.
type Reassembler struct {
	buf        []byte
	maxLine    int
	discarding bool

	dropped   int
	truncated int
}

// NewReassembler returns a Reassembler with the given line cap (0 = unbounded).
func NewReassembler(maxLine int) *Reassembler {
	if maxLine < 0 {
		maxLine = 0
	}
	return &Reassembler{maxLine: maxLine}
}

// Feed appends p to the held bytes and returns every line completed by it,
// in stream order.
func (r *Reassembler) Feed(p []byte) []string {
	var lines []string
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			r.hold(p)
			break
		}
		r.hold(p[:i])
		if line, ok := r.take(); ok {
			lines = append(lines, line)
		}
		p = p[i+1:]
	}
	return lines
}

// Remainder returns a copy of the unterminated bytes held since the last
// completed line.
func (r *Reassembler) Remainder() []byte {
	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	return out
}

// Flush returns the held fragment as a final line, as when the stream has
// ended without a trailing terminator. ok is false if nothing usable is held.
func (r *Reassembler) Flush() (line string, ok bool) {
	if len(r.buf) == 0 {
		r.discarding = false
		return "", false
	}
	return r.take()
}

// Dropped reports how many completed lines were discarded as non-UTF-8.
func (r *Reassembler) Dropped() int { return r.dropped }

// Truncated reports how many lines were cut to the line cap.
func (r *Reassembler) Truncated() int { return r.truncated }

func (r *Reassembler) hold(p []byte) {
	if r.discarding {
		return
	}
	r.buf = append(r.buf, p...)
	if r.maxLine > 0 && len(r.buf) > r.maxLine {
		r.buf = trimPartialRune(r.buf[:r.maxLine])
		r.discarding = true
		r.truncated++
	}
}

func (r *Reassembler) take() (string, bool) {
	line := r.buf
	r.buf = r.buf[:0]
	r.discarding = false

	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if !utf8.Valid(line) {
		r.dropped++
		return "", false
	}
	return string(line), true
}

// trimPartialRune drops an incomplete multi-byte sequence at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}
