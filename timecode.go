package framesource

import (
	"io"
	"os"

	"framesource/internal/timebase"
)

// writeTimecodeFile creates (or truncates) path and writes a v2 timecode
// file for the given ascending millisecond timestamps.
func writeTimecodeFile(path string, msTimestamps []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeTimecodes(f, msTimestamps)
}

func writeTimecodes(w io.Writer, msTimestamps []float64) error {
	return timebase.WriteTimecodes(w, msTimestamps)
}
