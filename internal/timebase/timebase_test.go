package timebase

import (
	"bytes"
	"strings"
	"testing"

	"framesource/internal/mediatypes"
)

func TestSeconds(t *testing.T) {
	tb := mediatypes.Rational{Num: 1, Den: 1000}
	if got := Seconds(1500, tb); got != 1.5 {
		t.Fatalf("Seconds = %v, want 1.5", got)
	}
	if got := Seconds(1, mediatypes.Rational{Num: 1, Den: 0}); got != 0 {
		t.Fatalf("Seconds with zero denominator = %v, want 0", got)
	}
}

func TestFrameByTime(t *testing.T) {
	tb := mediatypes.Rational{Num: 1, Den: 1000}
	pts := []int64{0, 1000, 2000, 3000}

	cases := []struct {
		t    float64
		want int64
	}{
		{-1, -1},
		{0, 0},
		{0.5, 0},
		{1.0, 1},
		{2.999, 2},
		{3.5, 3},
	}
	for _, c := range cases {
		if got := FrameByTime(pts, tb, c.t); got != c.want {
			t.Errorf("FrameByTime(%v) = %d, want %d", c.t, got, c.want)
		}
	}
}

func TestFrameByTimeEmpty(t *testing.T) {
	if got := FrameByTime(nil, mediatypes.Rational{Num: 1, Den: 1}, 0); got != -1 {
		t.Fatalf("FrameByTime on empty slice = %d, want -1", got)
	}
}

func TestRelativeStartTime(t *testing.T) {
	if got := RelativeStartTime(2.5, 1.0); got != 1.5 {
		t.Fatalf("RelativeStartTime = %v, want 1.5", got)
	}
}

func TestWriteTimecodes(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTimecodes(&buf, []float64{0, 41.708, 83.417}); err != nil {
		t.Fatalf("WriteTimecodes: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4 (header + 3 timestamps)", len(lines))
	}
	if lines[0] != "# timecode format v2" {
		t.Fatalf("header = %q", lines[0])
	}
}
