package framesource

import (
	"sort"

	"framesource/internal/mediatypes"
	"framesource/internal/trackindex"
)

// AudioBuffer is an assembled run of consecutive audio samples. Data holds one slice if Planar is
// false (interleaved channels) or one slice per channel if Planar is
// true, matching the track's native decoded layout.
type AudioBuffer struct {
	Data       [][]byte
	Planar     bool
	NumSamples int64
}

// FrameRange locates the frames spanning a sample range without decoding
// anything: the first and last frame index overlapping it, and the
// sample position the first frame starts at.
type FrameRange struct {
	FirstFrame     int64
	LastFrame      int64
	FirstSamplePos int64
}

// GetFrameRangeBySamples finds, by binary search against the frame index,
// the frames covering the half-open sample range [start, start+count).
// It performs no decoding; use GetPackedAudio/GetPlanarAudio to fetch the
// actual samples. A count <= 0 or a range entirely outside the track's
// sample span yields the zero FrameRange.
func (s *AudioSource) GetFrameRangeBySamples(start, count int64) (FrameRange, error) {
	s.mu.Lock()
	frames := s.frames
	s.mu.Unlock()

	if count <= 0 || len(frames) == 0 {
		return FrameRange{}, nil
	}

	end := start + count - 1
	last := frames[len(frames)-1]
	if end < frames[0].StartSample || start >= last.StartSample+last.LengthSamples {
		return FrameRange{}, nil
	}

	first := sampleFloorFrame(frames, start)
	return FrameRange{
		FirstFrame:     first,
		LastFrame:      sampleFloorFrame(frames, end),
		FirstSamplePos: frames[first].StartSample,
	}, nil
}

// sampleFloorFrame returns the index of the last frame whose StartSample
// is <= sample, clamped to the first frame when sample precedes it.
func sampleFloorFrame(frames []trackindex.AudioFrameInfo, sample int64) int64 {
	i := sort.Search(len(frames), func(i int) bool {
		return frames[i].StartSample > sample
	})
	if i == 0 {
		return 0
	}
	return int64(i - 1)
}

// assembleSampleRange decodes as many underlying frames as needed to fill
// exactly numSamples samples starting at startSample, zero-filling any
// portion of the requested range that falls outside [0, NumSamples).
func (s *AudioSource) assembleSampleRange(startSample, numSamples int64) (AudioBuffer, error) {
	s.mu.Lock()
	props := s.props
	planar := s.planar
	s.mu.Unlock()

	if numSamples <= 0 {
		return AudioBuffer{Planar: planar, NumSamples: 0}, nil
	}

	bytesPerSample := props.BytesPerSample
	channels := props.Channels
	if channels <= 0 {
		channels = 1
	}

	out := newSampleBuffer(planar, channels, bytesPerSample, numSamples)

	cur := startSample
	end := startSample + numSamples

	for cur < end {
		if cur < 0 {
			// Zero-fill the pre-start portion in one jump; out is
			// already zeroed by allocation.
			if end <= 0 {
				cur = end
			} else {
				cur = 0
			}
			continue
		}
		if props.NumSamples > 0 && cur >= props.NumSamples {
			break // remainder stays zero-filled
		}

		frameIdx := s.frameForSample(cur)
		if frameIdx < 0 {
			cur++ // isolated gap sample: leave zero-filled, advance one
			continue
		}

		val, err := s.GetFrame(frameIdx)
		if err != nil {
			return AudioBuffer{}, err
		}

		info, _ := s.GetFrameInfo(frameIdx)
		offsetInFrame := cur - info.StartSample
		available := info.LengthSamples - offsetInFrame
		take := end - cur
		if take > available {
			take = available
		}
		if take <= 0 {
			cur++
			continue
		}

		copySamples(out, planar, channels, bytesPerSample, cur-startSample, val, offsetInFrame, take)
		cur += take
	}

	return AudioBuffer{Data: out, Planar: planar, NumSamples: numSamples}, nil
}

// GetPackedAudio assembles numSamples samples starting at startSample
// into a single interleaved buffer regardless of the track's native
// layout.
func (s *AudioSource) GetPackedAudio(startSample, numSamples int64) ([]byte, error) {
	buf, err := s.assembleSampleRange(startSample, numSamples)
	if err != nil {
		return nil, err
	}
	if !buf.Planar {
		return buf.Data[0], nil
	}

	s.mu.Lock()
	bytesPerSample := s.props.BytesPerSample
	s.mu.Unlock()

	channels := len(buf.Data)
	packed := make([]byte, int64(channels*bytesPerSample)*numSamples)
	for sampleIdx := int64(0); sampleIdx < numSamples; sampleIdx++ {
		for c := 0; c < channels; c++ {
			srcOff := sampleIdx * int64(bytesPerSample)
			dstOff := (sampleIdx*int64(channels) + int64(c)) * int64(bytesPerSample)
			copy(packed[dstOff:dstOff+int64(bytesPerSample)], buf.Data[c][srcOff:srcOff+int64(bytesPerSample)])
		}
	}
	return packed, nil
}

// GetPlanarAudio assembles numSamples samples starting at startSample
// into one slice per channel regardless of the track's native layout.
func (s *AudioSource) GetPlanarAudio(startSample, numSamples int64) ([][]byte, error) {
	buf, err := s.assembleSampleRange(startSample, numSamples)
	if err != nil {
		return nil, err
	}
	if buf.Planar {
		return buf.Data, nil
	}

	s.mu.Lock()
	bytesPerSample := s.props.BytesPerSample
	channels := s.props.Channels
	s.mu.Unlock()
	if channels <= 0 {
		channels = 1
	}

	planes := make([][]byte, channels)
	for c := range planes {
		planes[c] = make([]byte, numSamples*int64(bytesPerSample))
	}
	packed := buf.Data[0]
	for sampleIdx := int64(0); sampleIdx < numSamples; sampleIdx++ {
		for c := 0; c < channels; c++ {
			srcOff := (sampleIdx*int64(channels) + int64(c)) * int64(bytesPerSample)
			dstOff := sampleIdx * int64(bytesPerSample)
			if int(srcOff)+bytesPerSample > len(packed) {
				continue
			}
			copy(planes[c][dstOff:dstOff+int64(bytesPerSample)], packed[srcOff:srcOff+int64(bytesPerSample)])
		}
	}
	return planes, nil
}

func newSampleBuffer(planar bool, channels, bytesPerSample int, numSamples int64) [][]byte {
	if planar {
		out := make([][]byte, channels)
		for c := range out {
			out[c] = make([]byte, numSamples*int64(bytesPerSample))
		}
		return out
	}
	return [][]byte{make([]byte, numSamples*int64(channels)*int64(bytesPerSample))}
}

// copySamples copies take samples starting at offsetInFrame from frame's
// native buffer into out at destination sample offset dstSample.
func copySamples(out [][]byte, planar bool, channels, bytesPerSample int, dstSample int64, frame *mediatypes.AudioFrame, offsetInFrame, take int64) {
	if planar {
		for c := 0; c < channels && c < len(frame.Data) && c < len(out); c++ {
			src := frame.Data[c]
			srcOff := offsetInFrame * int64(bytesPerSample)
			dstOff := dstSample * int64(bytesPerSample)
			n := take * int64(bytesPerSample)
			if int(srcOff+n) > len(src) {
				n = int64(len(src)) - srcOff
			}
			if n <= 0 {
				continue
			}
			copy(out[c][dstOff:dstOff+n], src[srcOff:srcOff+n])
		}
		return
	}

	src := frame.Data[0]
	frameSize := int64(channels * bytesPerSample)
	srcOff := offsetInFrame * frameSize
	dstOff := dstSample * frameSize
	n := take * frameSize
	if int(srcOff+n) > len(src) {
		n = int64(len(src)) - srcOff
	}
	if n <= 0 {
		return
	}
	copy(out[0][dstOff:dstOff+n], src[srcOff:srcOff+n])
}
