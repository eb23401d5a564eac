package framesource

import (
	"log/slog"
	"testing"

	"framesource/internal/avio/avtest"
	"framesource/internal/decoder"
	"framesource/internal/framecache"
	"framesource/internal/hashprefix"
	"framesource/internal/mediatypes"
	"framesource/internal/pool"
	"framesource/internal/seekengine"
	"framesource/internal/trackindex"
)

func audioOpenerFor(script *avtest.Script) func(mediatypes.SourceDescriptor) (decoder.AudioCursor, error) {
	return func(mediatypes.SourceDescriptor) (decoder.AudioCursor, error) {
		return avtest.NewAudioCursor(script, 0), nil
	}
}

// newTestAudioSource builds an AudioSource by hand over an avtest.Script,
// replicating OpenAudioSource's wiring without a real libav cursor.
func newTestAudioSource(script *avtest.Script, preRoll int64, maxRetries int, bytesPerSample, channels int) *AudioSource {
	frames := make([]trackindex.AudioFrameInfo, len(script.AudioFrames))
	var total int64
	for i, f := range script.AudioFrames {
		frames[i] = trackindex.AudioFrameInfo{
			PTS:           f.PTS,
			StartSample:   total,
			LengthSamples: f.NumSamples,
			Hash:          hashprefix.SumAudioBuffer([][]byte{f.Buf0}),
		}
		total += f.NumSamples
	}

	p := pool.New[decoder.AudioCursor](audioOpenerFor(script), mediatypes.SourceDescriptor{})
	cache := framecache.New(1 << 24)
	view := audioIndexView{frames: frames}

	adapter := seekengine.Adapter[decoder.AudioCursor]{
		NextFrame: func(c decoder.AudioCursor) (any, [16]byte, int64, bool, error) {
			f, err := c.GetNextFrame()
			if err != nil {
				return nil, [16]byte{}, 0, false, err
			}
			if f == nil {
				return nil, [16]byte{}, 0, false, nil
			}
			return f, hashprefix.SumAudioBuffer(f.Data), bufBytes(f.Data), true, nil
		},
		SamplePos: func(i int64) int64 {
			if i < 0 || i >= int64(len(frames)) {
				return total
			}
			return frames[i].StartSample
		},
	}

	engine := seekengine.New[decoder.AudioCursor](p, cache, view, adapter, preRoll, maxRetries, slog.Default())

	return &AudioSource{
		props: mediatypes.AudioProperties{
			BytesPerSample: bytesPerSample,
			Channels:       channels,
			NumSamples:     total,
		},
		frames: frames,
		pool:   p,
		cache:  cache,
		engine: engine,
	}
}

// TestAudioSourceGetPackedAudioZeroFillsNegativeStart drives scenario:
// a request starting before sample 0 must zero-fill the out-of-range
// portion and splice in real decoded samples for the rest, through the
// public API.
func TestAudioSourceGetPackedAudioZeroFillsNegativeStart(t *testing.T) {
	script := &avtest.Script{
		SourceSize: 4096,
		AudioFrames: []avtest.AudioFrameSpec{
			{PTS: 0, NumSamples: 5, Buf0: []byte{0x11, 0x11, 0x22, 0x22, 0x33, 0x33, 0x44, 0x44, 0x55, 0x55}},
			{PTS: 5, NumSamples: 5, Buf0: []byte{0x66, 0x66, 0x77, 0x77, 0x88, 0x88, 0x99, 0x99, 0xAA, 0xAA}},
		},
	}
	source := newTestAudioSource(script, 2, 10, 2, 1)

	got, err := source.GetPackedAudio(-3, 5)
	if err != nil {
		t.Fatalf("GetPackedAudio(-3, 5): %v", err)
	}

	want := []byte{0, 0, 0, 0, 0, 0, 0x11, 0x11, 0x22, 0x22}
	if len(got) != len(want) {
		t.Fatalf("GetPackedAudio(-3, 5) length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("GetPackedAudio(-3, 5)[%d] = %#x, want %#x (full buffer %x)", i, got[i], want[i], got)
		}
	}
}

// TestAudioSourceGetFrameRangeBySamplesLocatesWithoutDecoding checks the
// binary-search locator with a request that starts mid-frame and spans
// two frames, one that lies entirely before the track, and one with a
// zero count.
func TestAudioSourceGetFrameRangeBySamplesLocatesWithoutDecoding(t *testing.T) {
	script := &avtest.Script{
		SourceSize: 4096,
		AudioFrames: []avtest.AudioFrameSpec{
			{PTS: 0, NumSamples: 4, Buf0: make([]byte, 8)},
			{PTS: 4, NumSamples: 4, Buf0: make([]byte, 8)},
			{PTS: 8, NumSamples: 4, Buf0: make([]byte, 8)},
		},
	}
	source := newTestAudioSource(script, 2, 10, 2, 1)

	rng, err := source.GetFrameRangeBySamples(5, 4)
	if err != nil {
		t.Fatalf("GetFrameRangeBySamples(5, 4): %v", err)
	}
	if rng.FirstFrame != 1 || rng.LastFrame != 2 || rng.FirstSamplePos != 4 {
		t.Fatalf("GetFrameRangeBySamples(5, 4) = %+v, want {FirstFrame:1 LastFrame:2 FirstSamplePos:4}", rng)
	}

	rng, err = source.GetFrameRangeBySamples(-10, 3)
	if err != nil {
		t.Fatalf("GetFrameRangeBySamples(-10, 3): %v", err)
	}
	if rng != (FrameRange{}) {
		t.Fatalf("GetFrameRangeBySamples(-10, 3) = %+v, want the zero FrameRange (entirely before the track)", rng)
	}

	rng, err = source.GetFrameRangeBySamples(0, 0)
	if err != nil {
		t.Fatalf("GetFrameRangeBySamples(0, 0): %v", err)
	}
	if rng != (FrameRange{}) {
		t.Fatalf("GetFrameRangeBySamples(0, 0) = %+v, want the zero FrameRange for a non-positive count", rng)
	}
}
