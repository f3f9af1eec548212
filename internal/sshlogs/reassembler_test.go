package sshlogs

import (
	"bytes"
	"math/rand"
	"reflect"
	"strings"
	"testing"
)

func TestReassemblerScenario(t *testing.T) {
	r := NewReassembler(0)

	lines := r.Feed([]byte("line1\nline2\nline3"))
	if !reflect.DeepEqual(lines, []string{"line1", "line2"}) {
		t.Fatalf("expected [line1 line2], got %q", lines)
	}
	if string(r.Remainder()) != "line3" {
		t.Fatalf("expected remainder %q, got %q", "line3", r.Remainder())
	}

	lines = r.Feed([]byte("\n"))
	if !reflect.DeepEqual(lines, []string{"line3"}) {
		t.Fatalf("expected [line3], got %q", lines)
	}
	if len(r.Remainder()) != 0 {
		t.Fatalf("expected empty remainder, got %q", r.Remainder())
	}
}

func TestReassemblerSplitInvariance(t *testing.T) {
	stream := []byte("alpha\nbeta\r\n\nγάμμα δέλτα\n日本語のログ\npartial\xff\xfe line\nlast line 😀\nunterminated ü")

	whole := NewReassembler(0)
	want := whole.Feed(stream)
	wantRem := whole.Remainder()

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		r := NewReassembler(0)
		var got []string
		rest := stream
		for len(rest) > 0 {
			n := rng.Intn(len(rest)) + 1
			if trial%3 == 0 {
				n = 1
			}
			got = append(got, r.Feed(rest[:n])...)
			rest = rest[n:]
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("trial %d: lines differ\n got: %q\nwant: %q", trial, got, want)
		}
		if !bytes.Equal(r.Remainder(), wantRem) {
			t.Fatalf("trial %d: remainder %q, want %q", trial, r.Remainder(), wantRem)
		}
	}

	if string(wantRem) != "unterminated ü" {
		t.Errorf("unexpected remainder %q", wantRem)
	}
}

func TestReassemblerSplitMultiByteCharacter(t *testing.T) {
	r := NewReassembler(0)
	euro := []byte("€") // 3 bytes
	var got []string
	got = append(got, r.Feed([]byte("price: "))...)
	got = append(got, r.Feed(euro[:1])...)
	got = append(got, r.Feed(euro[1:2])...)
	got = append(got, r.Feed(append(euro[2:], '\n'))...)
	if !reflect.DeepEqual(got, []string{"price: €"}) {
		t.Errorf("expected [price: €], got %q", got)
	}
	if r.Dropped() != 0 {
		t.Errorf("expected no dropped lines, got %d", r.Dropped())
	}
}

func TestReassemblerDropsInvalidUTF8(t *testing.T) {
	r := NewReassembler(0)
	lines := r.Feed([]byte("good\n\xc3\x28bad\nalso good\n"))
	if !reflect.DeepEqual(lines, []string{"good", "also good"}) {
		t.Errorf("unexpected lines %q", lines)
	}
	if r.Dropped() != 1 {
		t.Errorf("expected 1 dropped line, got %d", r.Dropped())
	}
}

func TestReassemblerStripsCarriageReturn(t *testing.T) {
	r := NewReassembler(0)
	lines := r.Feed([]byte("windows\r"))
	if len(lines) != 0 {
		t.Fatalf("expected no lines yet, got %q", lines)
	}
	lines = r.Feed([]byte("\nkeep\rinner\n"))
	if !reflect.DeepEqual(lines, []string{"windows", "keep\rinner"}) {
		t.Errorf("unexpected lines %q", lines)
	}
}

func TestReassemblerEmptyLines(t *testing.T) {
	r := NewReassembler(0)
	lines := r.Feed([]byte("\n\n\n"))
	if !reflect.DeepEqual(lines, []string{"", "", ""}) {
		t.Errorf("expected three empty lines, got %q", lines)
	}
}

func TestReassemblerLineCap(t *testing.T) {
	r := NewReassembler(8)
	var got []string
	got = append(got, r.Feed([]byte("0123456789"))...)
	got = append(got, r.Feed([]byte("abcdef\nshort\n"))...)
	if !reflect.DeepEqual(got, []string{"01234567", "short"}) {
		t.Errorf("unexpected lines %q", got)
	}
	if r.Truncated() != 1 {
		t.Errorf("expected 1 truncated line, got %d", r.Truncated())
	}
}

func TestReassemblerLineCapKeepsRuneBoundary(t *testing.T) {
	r := NewReassembler(5)
	// "abcd" + 2-byte rune crosses the cap at byte 5.
	lines := r.Feed([]byte("abcdéf\n"))
	if !reflect.DeepEqual(lines, []string{"abcd"}) {
		t.Errorf("expected [abcd], got %q", lines)
	}
}

func TestReassemblerFlush(t *testing.T) {
	r := NewReassembler(0)
	r.Feed([]byte("a\ntrailing"))
	line, ok := r.Flush()
	if !ok || line != "trailing" {
		t.Errorf("expected trailing, got %q (%v)", line, ok)
	}
	if _, ok := r.Flush(); ok {
		t.Error("second Flush should report nothing held")
	}
}

func TestReassemblerLargeInput(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 10000; i++ {
		b.WriteString("log entry with some payload\n")
	}
	r := NewReassembler(0)
	lines := r.Feed([]byte(b.String()))
	if len(lines) != 10000 {
		t.Errorf("expected 10000 lines, got %d", len(lines))
	}
}
