// Package trackindex holds the shared, persistence-agnostic track index
// types used by both the indexer (which builds one) and indexio (which
// serializes one). Splitting them out avoids an import cycle between
// those two packages, the same way mediatypes separates the cursor
// contract's data from its cgo implementation.
package trackindex

// HashSize is the width of the content hash stored per frame.
const HashSize = 16

// VideoFrameInfo is one persisted video-track record.
type VideoFrameInfo struct {
	PTS        int64
	RepeatPict int32
	KeyFrame   bool
	TFF        bool
	Hash       [HashSize]byte
}

// AudioFrameInfo is one persisted audio-track record.
type AudioFrameInfo struct {
	PTS           int64
	StartSample   int64
	LengthSamples int64
	Hash          [HashSize]byte
}

// GapInfo records a PTS discontinuity the indexer observed between two
// consecutive audio frames. It is purely informational: start_sample is
// never adjusted because of it.
type GapInfo struct {
	FrameIndex int
	PTSGap     int64
}

// VideoIndex is the complete, built track index for a video track.
type VideoIndex struct {
	Frames            []VideoFrameInfo
	LastFrameDuration int64
	NumRFFFrames      int64
}

// AudioIndex is the complete, built track index for an audio track.
type AudioIndex struct {
	Frames     []AudioFrameInfo
	NumSamples int64
	Gaps       []GapInfo
}

// Header identifies the source a persisted index was built against. An
// index is only reused when every field matches the currently-opened
// source exactly.
type Header struct {
	SourceSize       int64
	SourceMTime      int64
	Track            int32
	CodecFingerprint []byte
}

// Equal reports whether two headers describe the same source+track+codec
// combination.
func (h Header) Equal(o Header) bool {
	if h.SourceSize != o.SourceSize || h.SourceMTime != o.SourceMTime || h.Track != o.Track {
		return false
	}
	if len(h.CodecFingerprint) != len(o.CodecFingerprint) {
		return false
	}
	for i := range h.CodecFingerprint {
		if h.CodecFingerprint[i] != o.CodecFingerprint[i] {
			return false
		}
	}
	return true
}
