// Package avtest is a hand-written fake of the demux/decode adapter
// (decoder.VideoCursor / decoder.AudioCursor), so that everything built
// on top of it can be tested without a libav toolchain. It plays back a
// fixed, in-memory sequence of frames (a Script), including
// configurable seek failures, to exercise the seek/retry engine's
// bad-seek and linear-mode-fallback paths deterministically.
package avtest

import (
	"errors"
	"io"

	"framesource/internal/decoder"
	"framesource/internal/mediatypes"
)

// VideoFrameSpec describes one frame a fake video cursor will produce.
type VideoFrameSpec struct {
	PTS        int64
	RepeatPict int
	TFF        bool
	KeyFrame   bool
	Plane0     []byte
}

// AudioFrameSpec describes one frame a fake audio cursor will produce.
type AudioFrameSpec struct {
	PTS        int64
	NumSamples int64
	Buf0       []byte
}

// Script is the fixed timeline a fake cursor plays back.
type Script struct {
	VideoFrames []VideoFrameSpec
	AudioFrames []AudioFrameSpec

	// BadSeekPTS marks PTS values at which Seek should report failure,
	// modeling a container with unreliable seek tables.
	BadSeekPTS map[int64]bool

	SourceSize int64
}

// VideoCursor is the avtest fake satisfying decoder.VideoCursor.
type VideoCursor struct {
	script  *Script
	pos     int64
	seeked  bool
	track   int
	sourceN int64
}

// NewVideoCursor builds a fake video cursor over script, starting at
// frame 0.
func NewVideoCursor(script *Script, track int) *VideoCursor {
	return &VideoCursor{script: script, track: track}
}

// OpenVideo matches decoder.VideoOpener's signature so a Script can be
// wired directly into a pool.Pool[decoder.VideoCursor].
func OpenVideo(script *Script, track int) decoder.VideoOpener {
	return func(mediatypes.SourceDescriptor) (decoder.VideoCursor, error) {
		return NewVideoCursor(script, track), nil
	}
}

func (c *VideoCursor) CurrentFrame() int64    { return c.pos }
func (c *VideoCursor) SourceSize() int64      { return c.script.SourceSize }
func (c *VideoCursor) SourcePosition() int64  { return c.pos }
func (c *VideoCursor) Track() int             { return c.track }
func (c *VideoCursor) HasSeeked() bool        { return c.seeked }
func (c *VideoCursor) Close() error            { return nil }

func (c *VideoCursor) HasMoreFrames() bool {
	return c.pos < int64(len(c.script.VideoFrames))
}

func (c *VideoCursor) SetFrameNumber(frame int64, _ int64) {
	c.pos = frame
	c.seeked = false
}

func (c *VideoCursor) Seek(pts int64) bool {
	if c.script.BadSeekPTS[pts] {
		return false
	}

	idx := c.indexForPTS(pts)
	if idx < 0 {
		return false
	}
	c.pos = idx
	c.seeked = true
	return true
}

func (c *VideoCursor) indexForPTS(pts int64) int64 {
	for i, f := range c.script.VideoFrames {
		if f.PTS == pts {
			return int64(i)
		}
	}
	return -1
}

func (c *VideoCursor) GetVideoProperties() (mediatypes.VideoProperties, error) {
	return mediatypes.VideoProperties{
		TimeBase:  mediatypes.Rational{Num: 1, Den: 1},
		NumFrames: -1,
	}, nil
}

func (c *VideoCursor) GetNextFrame() (*mediatypes.VideoFrame, error) {
	if !c.HasMoreFrames() {
		return nil, nil
	}
	f := c.script.VideoFrames[c.pos]
	vf := &mediatypes.VideoFrame{
		Planes: [][]byte{f.Plane0},
		Meta: mediatypes.VideoFrameMeta{
			PTS:        f.PTS,
			RepeatPict: f.RepeatPict,
			TFF:        f.TFF,
			KeyFrame:   f.KeyFrame,
		},
	}
	c.pos++
	return vf, nil
}

func (c *VideoCursor) SkipFrames(n int64) (bool, error) {
	for i := int64(0); i < n; i++ {
		if f, err := c.GetNextFrame(); err != nil {
			return false, err
		} else if f == nil {
			return false, nil
		}
	}
	return true, nil
}

// AudioCursor is the avtest fake satisfying decoder.AudioCursor.
type AudioCursor struct {
	script *Script
	pos    int64
	sample int64
	seeked bool
	track  int
}

// NewAudioCursor builds a fake audio cursor over script, starting at
// frame 0.
func NewAudioCursor(script *Script, track int) *AudioCursor {
	return &AudioCursor{script: script, track: track}
}

// OpenAudio matches decoder.AudioOpener's signature.
func OpenAudio(script *Script, track int) decoder.AudioOpener {
	return func(mediatypes.SourceDescriptor) (decoder.AudioCursor, error) {
		return NewAudioCursor(script, track), nil
	}
}

func (c *AudioCursor) CurrentFrame() int64   { return c.pos }
func (c *AudioCursor) SourceSize() int64     { return c.script.SourceSize }
func (c *AudioCursor) SourcePosition() int64 { return c.pos }
func (c *AudioCursor) Track() int            { return c.track }
func (c *AudioCursor) HasSeeked() bool       { return c.seeked }
func (c *AudioCursor) Close() error           { return nil }
func (c *AudioCursor) CurrentSample() int64  { return c.sample }

func (c *AudioCursor) HasMoreFrames() bool {
	return c.pos < int64(len(c.script.AudioFrames))
}

func (c *AudioCursor) SetFrameNumber(frame int64, samplePos int64) {
	c.pos = frame
	c.sample = samplePos
	c.seeked = false
}

func (c *AudioCursor) Seek(pts int64) bool {
	if c.script.BadSeekPTS[pts] {
		return false
	}
	for i, f := range c.script.AudioFrames {
		if f.PTS == pts {
			c.pos = int64(i)
			c.seeked = true
			return true
		}
	}
	return false
}

func (c *AudioCursor) GetAudioProperties() (mediatypes.AudioProperties, error) {
	return mediatypes.AudioProperties{NumFrames: -1}, nil
}

func (c *AudioCursor) GetNextFrame() (*mediatypes.AudioFrame, error) {
	if !c.HasMoreFrames() {
		return nil, nil
	}
	f := c.script.AudioFrames[c.pos]
	af := &mediatypes.AudioFrame{
		PTS:        f.PTS,
		NumSamples: f.NumSamples,
		Data:       [][]byte{f.Buf0},
	}
	c.pos++
	c.sample += f.NumSamples
	return af, nil
}

func (c *AudioCursor) SkipFrames(n int64) (bool, error) {
	for i := int64(0); i < n; i++ {
		if f, err := c.GetNextFrame(); err != nil {
			return false, err
		} else if f == nil {
			return false, nil
		}
	}
	return true, nil
}

// ErrShortBuffer mirrors io.ErrShortBuffer for fake decode-failure tests.
var ErrShortBuffer = errors.New(io.ErrShortBuffer.Error())
