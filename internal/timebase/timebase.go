// Package timebase implements conversions between frame index, PTS, and
// wall-clock seconds, plus the timecode file writer.
package timebase

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"framesource/internal/mediatypes"
)

// Seconds converts a PTS value expressed in the given time base to
// seconds.
func Seconds(pts int64, tb mediatypes.Rational) float64 {
	if tb.Den == 0 {
		return 0
	}
	return float64(pts) * float64(tb.Num) / float64(tb.Den)
}

// FrameByTime performs a binary search over ascending per-frame PTS
// values for the frame whose [pts_i, pts_i+1) interval (in seconds)
// contains t pts must be sorted ascending (true in
// container/display order for every format this module's callers index).
// Returns -1 if pts is empty or t precedes the first frame.
func FrameByTime(pts []int64, tb mediatypes.Rational, t float64) int64 {
	if len(pts) == 0 {
		return -1
	}

	idx := sort.Search(len(pts), func(i int) bool {
		return Seconds(pts[i], tb) > t
	})
	// idx is the first frame whose start time exceeds t; the answer is
	// the frame before it, unless t precedes frame 0 entirely.
	if idx == 0 {
		return -1
	}
	return int64(idx - 1)
}

// RelativeStartTime is the difference, in seconds, between two tracks'
// start times.
func RelativeStartTime(thisStart, otherStart float64) float64 {
	return thisStart - otherStart
}

// WriteTimecodes emits a "# timecode format v2" header line followed by
// one ascending millisecond timestamp per frame.
func WriteTimecodes(w io.Writer, msTimestamps []float64) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintln(bw, "# timecode format v2"); err != nil {
		return err
	}
	for _, ms := range msTimestamps {
		if _, err := fmt.Fprintf(bw, "%f\n", ms); err != nil {
			return err
		}
	}

	return bw.Flush()
}
