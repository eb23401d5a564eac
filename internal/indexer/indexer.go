// Package indexer implements the track indexer: drives a cursor from
// open to EOF, recording per-frame metadata and a content hash, and
// reports progress.
package indexer

import (
	"framesource/internal/decoder"
	"framesource/internal/errs"
	"framesource/internal/hashprefix"
	"framesource/internal/trackindex"
)

// ProgressFunc reports indexing progress as (track, bytes consumed so
// far, total source bytes); total may be -1 if unknown. Returning true
// cancels indexing.
type ProgressFunc func(track int, bytesConsumed, totalBytes int64) (cancel bool)

// ErrCancelled is returned when the progress callback requests
// cancellation.
var ErrCancelled = errCancelled{}

type errCancelled struct{}

func (errCancelled) Error() string { return "indexing cancelled" }

// IndexVideo drives cursor to EOF, building a complete video track index.
// The cursor must be freshly opened (current_frame == 0). Calling
// GetVideoProperties on it first is fine: the frame that call decodes is
// held pending and re-surfaced by GetNextFrame, so it is not lost.
func IndexVideo(cursor decoder.VideoCursor, progress ProgressFunc) (trackindex.VideoIndex, error) {
	var idx trackindex.VideoIndex
	track := cursor.Track()
	total := cursor.SourceSize()

	var prevPTS int64
	havePrev := false

	for {
		frame, err := cursor.GetNextFrame()
		if err != nil {
			return trackindex.VideoIndex{}, errs.NewIndexError(track, err)
		}
		if frame == nil {
			break
		}

		idx.Frames = append(idx.Frames, trackindex.VideoFrameInfo{
			PTS:        frame.Meta.PTS,
			RepeatPict: int32(frame.Meta.RepeatPict),
			KeyFrame:   frame.Meta.KeyFrame,
			TFF:        frame.Meta.TFF,
			Hash:       hashprefix.SumVideoPlane(frame.Planes),
		})

		if havePrev {
			idx.LastFrameDuration = max64(frame.Meta.PTS-prevPTS, 1)
		}
		prevPTS = frame.Meta.PTS
		havePrev = true

		if progress != nil {
			if progress(track, cursor.SourcePosition(), total) {
				return trackindex.VideoIndex{}, errs.NewIndexError(track, ErrCancelled)
			}
		}
	}

	return idx, nil
}

// IndexAudio drives cursor to EOF, building a complete audio track index.
// Gaps are recorded informationally but never adjust start_sample.
func IndexAudio(cursor decoder.AudioCursor, sampleDelay int64, progress ProgressFunc) (trackindex.AudioIndex, error) {
	var idx trackindex.AudioIndex
	track := cursor.Track()
	total := cursor.SourceSize()

	nextStart := sampleDelay
	var prevPTS int64
	var prevLen int64
	havePrev := false

	for {
		frame, err := cursor.GetNextFrame()
		if err != nil {
			return trackindex.AudioIndex{}, errs.NewIndexError(track, err)
		}
		if frame == nil {
			break
		}

		if havePrev {
			// Audio PTS is expressed in samples (time_base == 1/sample_rate)
			// for every format this module indexes, so the expected PTS
			// delta between consecutive frames is exactly the previous
			// frame's sample count.
			delta := frame.PTS - prevPTS
			if d := delta - prevLen; d > 1 || d < -1 {
				idx.Gaps = append(idx.Gaps, trackindex.GapInfo{
					FrameIndex: len(idx.Frames),
					PTSGap:     d,
				})
			}
		}

		info := trackindex.AudioFrameInfo{
			PTS:           frame.PTS,
			StartSample:   nextStart,
			LengthSamples: frame.NumSamples,
			Hash:          hashprefix.SumAudioBuffer(frame.Data),
		}
		idx.Frames = append(idx.Frames, info)
		nextStart += frame.NumSamples

		prevPTS = frame.PTS
		prevLen = frame.NumSamples
		havePrev = true

		if progress != nil {
			if progress(track, cursor.SourcePosition(), total) {
				return trackindex.AudioIndex{}, errs.NewIndexError(track, ErrCancelled)
			}
		}
	}

	idx.NumSamples = nextStart
	return idx, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
