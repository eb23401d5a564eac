// Package mediatypes holds the data types shared between the demux/decode
// adapter (package avio, cgo) and everything above it (indexer, pool,
// seek engine, ...), plus their test double (avtest). It has no cgo and
// no libav dependency so that everything above the adapter can be built
// and tested without a libav toolchain.
package mediatypes

import "fmt"

// MediaType distinguishes the two kinds of track the adapter opens.
type MediaType int

const (
	// Video selects a video track.
	Video MediaType = iota
	// Audio selects an audio track.
	Audio
)

func (t MediaType) String() string {
	switch t {
	case Video:
		return "video"
	case Audio:
		return "audio"
	default:
		return "unknown"
	}
}

// SourceDescriptor is the immutable description of what to open and how.
//
// Track is either an absolute stream index (>= 0) or, when negative, the
// Nth track of Type counting from one: Track == -1 means the first and
// Track == -2 "the second track of this media type".
type SourceDescriptor struct {
	Path           string
	Type           MediaType
	Track          int
	VariableFormat bool
	Threads        int
	DecoderOptions map[string]string
	HWDeviceName   string
	ExtraHWFrames  int
	DRCScale       float64
}

// ResolvedTrack turns the descriptor's Track selector into an absolute
// stream index given the ordered list of stream indices of the matching
// media type, in container order.
func (d SourceDescriptor) ResolvedTrack(sameTypeStreamIndices []int) (int, error) {
	if d.Track >= 0 {
		return d.Track, nil
	}

	nth := -d.Track - 1
	if nth < 0 || nth >= len(sameTypeStreamIndices) {
		return 0, fmt.Errorf("track selector %d has no matching %s track (found %d)", d.Track, d.Type, len(sameTypeStreamIndices))
	}

	return sameTypeStreamIndices[nth], nil
}

// Rational is a simple numerator/denominator pair (AVRational's Go twin).
type Rational struct {
	Num, Den int
}

// VideoFormat describes a decoded video frame's pixel layout.
type VideoFormat struct {
	ColorFamily  int // 0 unknown, 1 gray, 2 rgb, 3 yuv
	Alpha        bool
	Float        bool
	Bits         int
	SubSamplingW int
	SubSamplingH int
}

// VideoFrameMeta carries the per-frame metadata needed for the video
// track index plus decoded-frame HDR/colorimetric side-data.
type VideoFrameMeta struct {
	PTS          int64
	CodedIndex   int
	DisplayIndex int
	RepeatPict   int
	TFF          bool
	KeyFrame     bool
	PictType     byte

	Matrix        int
	Primaries     int
	Transfer      int
	ChromaLoc     int
	ColorRange    int
	InterlacedPic bool

	HasMasteringDisplay bool
	MasteringPrimaries  [3][2]Rational
	MasteringWhitePoint [2]Rational
	HasMasteringLuma    bool
	MasteringMinLuma    Rational
	MasteringMaxLuma    Rational

	HasContentLightLevel bool
	ContentLightMax      uint
	ContentLightAvg      uint

	DolbyVisionRPU []byte
	HDR10Plus      []byte
	ICCProfile     []byte
}

// VideoFrame is a single decoded picture plus its format and metadata.
type VideoFrame struct {
	Meta VideoFrameMeta

	Width, Height int
	SSModWidth    int
	SSModHeight   int
	Format        VideoFormat

	// Planes holds the decoded picture as native planar byte slices, one
	// per plane, in decoder-native layout. No color conversion is
	// performed.
	Planes  [][]byte
	Strides []int
}

// AudioFrame is one codec packet's worth of decoded audio samples in the
// decoder's native sample format.
type AudioFrame struct {
	PTS        int64
	NumSamples int64
	// Data is one slice holding interleaved samples if Planar is false,
	// or one slice per channel if Planar is true.
	Data   [][]byte
	Planar bool
}

// AudioProperties describes the format of an audio track's decoded
// samples. NumFrames/NumSamples are only final once the track has been
// fully indexed; until then NumFrames is -1.
type AudioProperties struct {
	IsFloat         bool
	BytesPerSample  int
	BitsPerSample   int
	SampleRate      int
	Channels        int
	ChannelLayout   uint64
	NumFrames       int64
	NumSamples      int64
	StartTimeSecond float64
}

// VideoProperties describes the format of a video track's decoded
// frames.
type VideoProperties struct {
	TimeBase      Rational
	StartTime     float64
	Duration      int64
	NumFrames     int64
	NumRFFFrames  int64
	FPS           Rational
	SAR           Rational
	Format        VideoFormat
	Width, Height int
	SSModWidth    int
	SSModHeight   int
	FieldBased    bool
	TFF           bool
	Stereo3DType  int
	Stereo3DFlags int

	HasMasteringDisplay bool
	MasteringPrimaries  [3][2]Rational
	MasteringWhitePoint [2]Rational
	HasMasteringLuma    bool
	MasteringMinLuma    Rational
	MasteringMaxLuma    Rational

	HasContentLightLevel bool
	ContentLightMax      uint
	ContentLightAvg      uint

	FlipVertical   bool
	FlipHorizontal bool
	RotationDeg    int
}
