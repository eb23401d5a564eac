package framesource

import (
	"bytes"
	"log/slog"
	"testing"

	"framesource/internal/avio/avtest"
	"framesource/internal/decoder"
	"framesource/internal/framecache"
	"framesource/internal/hashprefix"
	"framesource/internal/mediatypes"
	"framesource/internal/pool"
	"framesource/internal/rff"
	"framesource/internal/seekengine"
	"framesource/internal/trackindex"
)

// videoOpenerFor wires an avtest.Script into a pool.Pool[decoder.VideoCursor],
// matching the test-double pattern internal/seekengine uses for its own
// engine-level tests.
func videoOpenerFor(script *avtest.Script) func(mediatypes.SourceDescriptor) (decoder.VideoCursor, error) {
	return func(mediatypes.SourceDescriptor) (decoder.VideoCursor, error) {
		return avtest.NewVideoCursor(script, 0), nil
	}
}

func videoAdapterFor() seekengine.Adapter[decoder.VideoCursor] {
	return seekengine.Adapter[decoder.VideoCursor]{
		NextFrame: func(c decoder.VideoCursor) (any, [16]byte, int64, bool, error) {
			f, err := c.GetNextFrame()
			if err != nil {
				return nil, [16]byte{}, 0, false, err
			}
			if f == nil {
				return nil, [16]byte{}, 0, false, nil
			}
			return f, hashprefix.SumVideoPlane(f.Planes), planeBytes(f.Planes), true, nil
		},
		SamplePos: func(int64) int64 { return 0 },
	}
}

// newTestVideoSource builds a VideoSource by hand over an avtest.Script,
// replicating OpenVideoSource's wiring without a real libav cursor.
func newTestVideoSource(script *avtest.Script, preRoll int64, maxRetries int) *VideoSource {
	frames := make([]trackindex.VideoFrameInfo, len(script.VideoFrames))
	for i, f := range script.VideoFrames {
		frames[i] = trackindex.VideoFrameInfo{
			PTS:        f.PTS,
			RepeatPict: int32(f.RepeatPict),
			KeyFrame:   f.KeyFrame,
			TFF:        f.TFF,
			Hash:       hashprefix.SumVideoPlane([][]byte{f.Plane0}),
		}
	}

	p := pool.New[decoder.VideoCursor](videoOpenerFor(script), mediatypes.SourceDescriptor{})
	cache := framecache.New(1 << 24)
	view := videoIndexView{frames: frames}
	engine := seekengine.New[decoder.VideoCursor](p, cache, view, videoAdapterFor(), preRoll, maxRetries, slog.Default())

	return &VideoSource{
		frames: frames,
		rff:    rff.NewExpander(frames),
		pool:   p,
		cache:  cache,
		engine: engine,
	}
}

func videoScriptWithFrames(n int) *avtest.Script {
	frames := make([]avtest.VideoFrameSpec, n)
	for i := range frames {
		frames[i] = avtest.VideoFrameSpec{
			PTS:      int64(i * 100),
			KeyFrame: i%5 == 0,
			TFF:      true,
			Plane0:   []byte{byte(i), byte(i + 1), byte(i + 2)},
		}
	}
	return &avtest.Script{VideoFrames: frames, SourceSize: int64(n * 4096)}
}

// TestVideoSourceLinearModeMatchesRandomMode asserts invariant: forcing
// permanent linear mode and re-fetching the same frames through the
// public API yields byte-identical frames to the ones decoded while still
// in random mode.
func TestVideoSourceLinearModeMatchesRandomMode(t *testing.T) {
	targets := []int64{1, 7, 13, 19}

	randomScript := videoScriptWithFrames(20)
	randomSource := newTestVideoSource(randomScript, 2, 10)

	got := make(map[int64]*mediatypes.VideoFrame, len(targets))
	for _, n := range targets {
		f, err := randomSource.GetFrame(n)
		if err != nil {
			t.Fatalf("random mode GetFrame(%d): %v", n, err)
		}
		got[n] = f
	}
	if randomSource.LinearMode() {
		t.Fatal("source should still be in random mode with every seek succeeding")
	}

	linearScript := videoScriptWithFrames(20)
	linearScript.BadSeekPTS = map[int64]bool{0: true, 500: true, 1000: true, 1500: true}
	linearSource := newTestVideoSource(linearScript, 2, 1)

	if _, err := linearSource.GetFrame(0); err != nil {
		t.Fatalf("priming GetFrame(0): %v", err)
	}
	if !linearSource.LinearMode() {
		t.Fatal("source should have fallen back to linear mode once every keyframe seek fails")
	}

	for _, n := range targets {
		f, err := linearSource.GetFrame(n)
		if err != nil {
			t.Fatalf("linear mode GetFrame(%d): %v", n, err)
		}
		want := got[n]
		if f.Meta.PTS != want.Meta.PTS {
			t.Fatalf("frame %d: PTS = %d, want %d", n, f.Meta.PTS, want.Meta.PTS)
		}
		if !bytes.Equal(f.Planes[0], want.Planes[0]) {
			t.Fatalf("frame %d: plane data differs between random and linear mode", n)
		}
	}
}

// TestVideoSourceGetFrameWithRFFMergesFields drives the RFF merge-field
// path end to end through the public API with a classic two-frame 3:2
// pulldown step (3 fields then 2 fields -> one whole frame, one merge,
// one trailing whole frame), matching internal/rff's own expansion test.
func TestVideoSourceGetFrameWithRFFMergesFields(t *testing.T) {
	script := &avtest.Script{
		SourceSize: 4096,
		VideoFrames: []avtest.VideoFrameSpec{
			{PTS: 0, KeyFrame: true, TFF: true, RepeatPict: 1, Plane0: []byte{1, 1, 1, 1}},
			{PTS: 100, TFF: true, RepeatPict: 0, Plane0: []byte{2, 2, 2, 2}},
		},
	}

	source := newTestVideoSource(script, 2, 10)

	if n := source.NumRFFFrames(); n != 3 {
		t.Fatalf("NumRFFFrames = %d, want 3", n)
	}

	whole0, err := source.GetFrameWithRFF(0)
	if err != nil {
		t.Fatalf("GetFrameWithRFF(0): %v", err)
	}
	if whole0.Meta.PTS != 0 {
		t.Fatalf("display frame 0 PTS = %d, want 0 (whole, unmerged frame 0)", whole0.Meta.PTS)
	}

	merged, err := source.GetFrameWithRFF(1)
	if err != nil {
		t.Fatalf("GetFrameWithRFF(1): %v", err)
	}
	if merged == nil || len(merged.Planes) == 0 {
		t.Fatal("GetFrameWithRFF(1) should return a synthesized merge of frames 0 and 1")
	}

	tail, err := source.GetFrameWithRFF(2)
	if err != nil {
		t.Fatalf("GetFrameWithRFF(2): %v", err)
	}
	if tail.Meta.PTS != 100 {
		t.Fatalf("display frame 2 PTS = %d, want 100 (whole, unmerged frame 1)", tail.Meta.PTS)
	}
}
