// Package decoder declares the demux/decode cursor contract as plain
// Go interfaces, with no cgo and no libav dependency. The real
// implementation lives in package avio (cgo); the test double lives in
// avio/avtest. Everything from the indexer up depends only on this
// package, so it builds and tests without a libav toolchain.
package decoder

import "framesource/internal/mediatypes"

// Cursor is the behavior shared by VideoCursor and AudioCursor: one
// independent demux+decode position into a source.
type Cursor interface {
	// CurrentFrame is the frame index the next GetNextFrame call returns.
	CurrentFrame() int64
	// SourceSize is the size, in bytes, of the underlying source, or -1
	// if unknown.
	SourceSize() int64
	// SourcePosition is the current byte offset consumed from the
	// source, or -1 if unknown.
	SourcePosition() int64
	// Track returns the absolute stream index this cursor decodes.
	Track() int
	// HasMoreFrames reports false once decoding has reached EOF or an
	// unrecoverable decoder error; a successful Seek clears that state.
	HasMoreFrames() bool
	// HasSeeked reports whether the cursor is in the post-seek state
	// where CurrentFrame is not yet meaningful.
	HasSeeked() bool
	// Seek requests a seek to the given PTS. On success the cursor
	// enters the seeked state; CurrentFrame is left unchanged until
	// SetFrameNumber is called once the first post-seek frame's true
	// index is known.
	Seek(pts int64) bool
	// SetFrameNumber resets CurrentFrame (and, for audio, the sample
	// position) after a successful seek has been resolved.
	SetFrameNumber(frame int64, samplePos int64)
	// Close releases the codec/format context and any HW device context.
	Close() error
}

// VideoCursor specializes Cursor for video tracks.
type VideoCursor interface {
	Cursor
	// GetVideoProperties decodes exactly one frame to populate the
	// fields that only become known after first decode; only valid
	// immediately after open.
	GetVideoProperties() (mediatypes.VideoProperties, error)
	// GetNextFrame returns the next decoded frame, or nil at EOF.
	GetNextFrame() (*mediatypes.VideoFrame, error)
	// SkipFrames attempts to advance n frames without retaining decoded
	// output, returning whether all n were skipped before EOF.
	SkipFrames(n int64) (bool, error)
}

// AudioCursor specializes Cursor for audio tracks.
type AudioCursor interface {
	Cursor
	// GetAudioProperties decodes exactly one frame to populate the
	// fields that only become known after first decode; only valid
	// immediately after open.
	GetAudioProperties() (mediatypes.AudioProperties, error)
	// GetNextFrame returns the next decoded frame, or nil at EOF.
	GetNextFrame() (*mediatypes.AudioFrame, error)
	// SkipFrames attempts to advance n frames without retaining decoded
	// output, returning whether all n were skipped before EOF.
	SkipFrames(n int64) (bool, error)
	// CurrentSample is the sample position the next decoded frame starts
	// at.
	CurrentSample() int64
}

// VideoOpener opens a new, independent video cursor.
type VideoOpener func(mediatypes.SourceDescriptor) (VideoCursor, error)

// AudioOpener opens a new, independent audio cursor.
type AudioOpener func(mediatypes.SourceDescriptor) (AudioCursor, error)
