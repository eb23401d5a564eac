package seekengine

import (
	"errors"
	"log/slog"
	"testing"

	"framesource/internal/avio/avtest"
	"framesource/internal/decoder"
	"framesource/internal/errs"
	"framesource/internal/framecache"
	"framesource/internal/hashprefix"
	"framesource/internal/mediatypes"
	"framesource/internal/pool"
)

// lyingIndex reports a Len beyond what its backing script can actually
// decode, so a test can drive the engine into linear mode and then have
// the linear-mode fetch itself fail (hitting EOF before the target frame).
type lyingIndex struct {
	frames []avtest.VideoFrameSpec
	length int64
}

func (t lyingIndex) Len() int64 { return t.length }
func (t lyingIndex) PTS(i int64) int64 {
	if int(i) < len(t.frames) {
		return t.frames[i].PTS
	}
	return i * 100
}
func (t lyingIndex) KeyFrame(i int64) bool { return i == 0 }
func (t lyingIndex) Hash(i int64) [16]byte {
	if int(i) < len(t.frames) {
		return hashprefix.SumVideoPlane([][]byte{t.frames[i].Plane0})
	}
	return [16]byte{}
}

// testIndex is a minimal seekengine.Index built directly from a Script's
// video frames, for tests that don't need the full internal/indexer.
type testIndex struct {
	frames []avtest.VideoFrameSpec
}

func (t testIndex) Len() int64 { return int64(len(t.frames)) }
func (t testIndex) PTS(i int64) int64 { return t.frames[i].PTS }
func (t testIndex) KeyFrame(i int64) bool {
	return i == 0 || i == 5
}
func (t testIndex) Hash(i int64) [16]byte {
	return hashprefix.SumVideoPlane([][]byte{t.frames[i].Plane0})
}

func buildScript(n int) *avtest.Script {
	frames := make([]avtest.VideoFrameSpec, n)
	for i := range frames {
		frames[i] = avtest.VideoFrameSpec{
			PTS:    int64(i * 100),
			TFF:    true,
			Plane0: []byte{byte(i), byte(i + 1)},
		}
	}
	return &avtest.Script{VideoFrames: frames, SourceSize: int64(n * 4096)}
}

func openerFor(script *avtest.Script) func(mediatypes.SourceDescriptor) (decoder.VideoCursor, error) {
	return func(mediatypes.SourceDescriptor) (decoder.VideoCursor, error) {
		return avtest.NewVideoCursor(script, 0), nil
	}
}

func videoAdapter() Adapter[decoder.VideoCursor] {
	return Adapter[decoder.VideoCursor]{
		NextFrame: func(c decoder.VideoCursor) (any, [16]byte, int64, bool, error) {
			f, err := c.GetNextFrame()
			if err != nil {
				return nil, [16]byte{}, 0, false, err
			}
			if f == nil {
				return nil, [16]byte{}, 0, false, nil
			}
			return f, hashprefix.SumVideoPlane(f.Planes), int64(len(f.Planes[0])), true, nil
		},
		SamplePos: func(int64) int64 { return 0 },
	}
}

func TestGetFrameRetriesPastBadSeek(t *testing.T) {
	script := buildScript(10)
	script.BadSeekPTS = map[int64]bool{500: true} // frame 5's PTS

	idx := testIndex{frames: script.VideoFrames}
	p := pool.New[decoder.VideoCursor](openerFor(script), mediatypes.SourceDescriptor{})
	cache := framecache.New(1 << 20)

	e := New[decoder.VideoCursor](p, cache, idx, videoAdapter(), 2, 10, slog.Default())

	v, err := e.GetFrame(9)
	if err != nil {
		t.Fatalf("GetFrame(9): %v", err)
	}
	frame := v.(*mediatypes.VideoFrame)
	if frame.Meta.PTS != 900 {
		t.Fatalf("got frame with PTS %d, want 900", frame.Meta.PTS)
	}
	if e.LinearMode() {
		t.Fatal("engine should still be in random mode after one bad seek")
	}
	if e.BadSeekCount() != 1 {
		t.Fatalf("BadSeekCount = %d, want 1", e.BadSeekCount())
	}
}

func TestGetFrameFallsBackToLinearMode(t *testing.T) {
	script := buildScript(6)
	script.BadSeekPTS = map[int64]bool{0: true, 500: true} // both keyframes unreachable

	idx := testIndex{frames: script.VideoFrames}
	p := pool.New[decoder.VideoCursor](openerFor(script), mediatypes.SourceDescriptor{})
	cache := framecache.New(1 << 20)

	e := New[decoder.VideoCursor](p, cache, idx, videoAdapter(), 1, 1, slog.Default())

	v, err := e.GetFrame(5)
	if err != nil {
		t.Fatalf("GetFrame(5): %v", err)
	}
	frame := v.(*mediatypes.VideoFrame)
	if frame.Meta.PTS != 500 {
		t.Fatalf("got frame with PTS %d, want 500", frame.Meta.PTS)
	}
	if !e.LinearMode() {
		t.Fatal("engine should have fallen back to linear mode")
	}
}

func TestGetFrameServesFromCache(t *testing.T) {
	script := buildScript(4)
	idx := testIndex{frames: script.VideoFrames}
	p := pool.New[decoder.VideoCursor](openerFor(script), mediatypes.SourceDescriptor{})
	cache := framecache.New(1 << 20)
	e := New[decoder.VideoCursor](p, cache, idx, videoAdapter(), 2, 10, slog.Default())

	if _, err := e.GetFrame(2); err != nil {
		t.Fatalf("GetFrame(2): %v", err)
	}
	if !cache.Has(2) {
		t.Fatal("frame 2 should be cached after decode")
	}

	v, err := e.GetFrame(2)
	if err != nil {
		t.Fatalf("GetFrame(2) cached: %v", err)
	}
	if v.(*mediatypes.VideoFrame).Meta.PTS != 200 {
		t.Fatalf("cached frame PTS = %d, want 200", v.(*mediatypes.VideoFrame).Meta.PTS)
	}
}

func TestGetFrameWrapsLinearFailureAfterRetryBudget(t *testing.T) {
	script := buildScript(3)
	script.BadSeekPTS = map[int64]bool{0: true} // the only keyframe is unreachable

	idx := lyingIndex{frames: script.VideoFrames, length: 6} // claims 6 frames, only 3 decodable
	p := pool.New[decoder.VideoCursor](openerFor(script), mediatypes.SourceDescriptor{Track: 3})
	cache := framecache.New(1 << 20)

	e := New[decoder.VideoCursor](p, cache, idx, videoAdapter(), 1, 1, slog.Default())

	_, err := e.GetFrame(5)
	if err == nil {
		t.Fatal("expected an error once both random-mode retries and the linear-mode fetch fail")
	}
	var se *errs.SeekError
	if !errors.As(err, &se) {
		t.Fatalf("GetFrame error = %T, want *errs.SeekError", err)
	}
	if se.Track != 3 {
		t.Fatalf("SeekError.Track = %d, want 3", se.Track)
	}
	if se.Attempt != 1 {
		t.Fatalf("SeekError.Attempt = %d, want 1 (one failed seek exhausts a budget of 1)", se.Attempt)
	}
	if !e.LinearMode() {
		t.Fatal("engine should have fallen back to linear mode before the failing fetch")
	}
}

func TestGetFrameOutOfRange(t *testing.T) {
	script := buildScript(3)
	idx := testIndex{frames: script.VideoFrames}
	p := pool.New[decoder.VideoCursor](openerFor(script), mediatypes.SourceDescriptor{Track: 7})
	cache := framecache.New(1 << 20)
	e := New[decoder.VideoCursor](p, cache, idx, videoAdapter(), 2, 10, slog.Default())

	if _, err := e.GetFrame(99); err == nil {
		t.Fatal("expected a range error for an out-of-bounds frame index")
	}
}
