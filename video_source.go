package framesource

import (
	"fmt"
	"sync"

	"framesource/internal/avio"
	"framesource/internal/decoder"
	"framesource/internal/errs"
	"framesource/internal/framecache"
	"framesource/internal/hashprefix"
	"framesource/internal/indexer"
	"framesource/internal/indexio"
	"framesource/internal/mediatypes"
	"framesource/internal/pool"
	"framesource/internal/rff"
	"framesource/internal/seekengine"
	"framesource/internal/timebase"
	"framesource/internal/trackindex"
)

// VideoSourceOptions extends SourceOptions with the video-specific
// construction parameters.
type VideoSourceOptions struct {
	SourceOptions
	HWDeviceName  string
	ExtraHWFrames int
}

// VideoSource is a frame-accurate, randomly-addressable video track.
// One coarse mutex serializes every call; two independent VideoSources
// never block each other.
type VideoSource struct {
	mu sync.Mutex

	desc  mediatypes.SourceDescriptor
	props mediatypes.VideoProperties
	frames []trackindex.VideoFrameInfo

	rff    *rff.Expander
	pool   *pool.Pool[decoder.VideoCursor]
	cache  *framecache.Cache
	engine *seekengine.Engine[decoder.VideoCursor]

	failed error
}

// videoIndexView adapts a built video track index to seekengine.Index.
type videoIndexView struct {
	frames []trackindex.VideoFrameInfo
}

func (v videoIndexView) Len() int64            { return int64(len(v.frames)) }
func (v videoIndexView) PTS(i int64) int64     { return v.frames[i].PTS }
func (v videoIndexView) KeyFrame(i int64) bool { return v.frames[i].KeyFrame }
func (v videoIndexView) Hash(i int64) [16]byte { return v.frames[i].Hash }

// OpenVideoSource opens a video track for frame-accurate random access,
// building or loading its persisted frame index.
func OpenVideoSource(opts VideoSourceOptions) (*VideoSource, error) {
	cfg := opts.SourceOptions.toConfig(mediatypes.Video)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	desc := mediatypes.SourceDescriptor{
		Path:           cfg.Path,
		Type:           mediatypes.Video,
		Track:          cfg.Track,
		VariableFormat: cfg.VariableFormat,
		Threads:        cfg.Threads,
		DecoderOptions: cfg.DecoderOptions,
		HWDeviceName:   opts.HWDeviceName,
		ExtraHWFrames:  opts.ExtraHWFrames,
	}

	cursor, err := avio.OpenVideoCursor(desc)
	if err != nil {
		return nil, errs.NewOpenError(cfg.Path, err)
	}

	props, err := cursor.GetVideoProperties()
	if err != nil {
		cursor.Close()
		return nil, errs.NewOpenError(cfg.Path, err)
	}

	hdr := buildHeader(cfg.Path, cursor.Track(), cursor.SourceSize(), fmt.Sprintf("%+v", props))

	idx, err := loadOrBuildVideoIndex(cursor, cfg.CachePath, hdr, opts.Progress, opts.logger())
	cursor.Close()
	if err != nil {
		return nil, err
	}

	expander := rff.NewExpander(idx.Frames)

	props.NumFrames = int64(len(idx.Frames))
	props.NumRFFFrames = expander.NumRFFFrames()
	if len(idx.Frames) > 0 {
		props.Duration = idx.Frames[len(idx.Frames)-1].PTS + idx.LastFrameDuration
	}

	p := pool.New[decoder.VideoCursor](avio.OpenVideoCursor, desc)
	p.MaxCursors = cfg.MaxCursors
	p.MaxSkipAhead = cfg.MaxSkipAhead

	cache := framecache.New(cfg.MaxCacheSize)
	view := videoIndexView{frames: idx.Frames}

	adapter := seekengine.Adapter[decoder.VideoCursor]{
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

	engine := seekengine.New[decoder.VideoCursor](p, cache, view, adapter, cfg.PreRoll, cfg.RetrySeekAttempts, opts.logger())

	return &VideoSource{
		desc:   desc,
		props:  props,
		frames: idx.Frames,
		rff:    expander,
		pool:   p,
		cache:  cache,
		engine: engine,
	}, nil
}

// loadOrBuildVideoIndex tries the persisted cache first,
// falling back to a full index build on any miss or mismatch.
func loadOrBuildVideoIndex(cursor decoder.VideoCursor, cachePath string, hdr trackindex.Header, progress ProgressFunc, log interface {
	Warn(msg string, args ...any)
}) (trackindex.VideoIndex, error) {
	if cachePath != "" {
		if idx, ok, err := indexio.LoadVideo(cachePath, hdr); err != nil {
			return trackindex.VideoIndex{}, err
		} else if ok {
			return idx, nil
		}
	}

	idx, err := indexer.IndexVideo(cursor, indexer.ProgressFunc(progress))
	if err != nil {
		return trackindex.VideoIndex{}, err
	}

	if cachePath != "" {
		if serr := indexio.SaveVideo(cachePath, hdr, idx); serr != nil {
			// Persistence is an optimization, not a correctness
			// requirement: a write failure does not fail
			// the open.
			log.Warn("failed to persist track index", "path", cachePath, "err", serr)
		}
	}

	return idx, nil
}

// Close releases every decoder cursor held by the pool.
func (s *VideoSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool.Close()
	return nil
}

// Track returns the absolute stream index this source decodes.
func (s *VideoSource) Track() int { return s.desc.Track }

// Failed reports the permanent failure, if any, this source has entered.
func (s *VideoSource) Failed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// GetVideoProperties returns the track's decoded properties, finalized
// once the index has been built.
func (s *VideoSource) GetVideoProperties() mediatypes.VideoProperties {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props
}

// GetFrameInfo returns the persisted per-frame metadata for frame n.
func (s *VideoSource) GetFrameInfo(n int64) (trackindex.VideoFrameInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || n >= int64(len(s.frames)) {
		return trackindex.VideoFrameInfo{}, errs.NewRangeError(s.desc.Track, n, int64(len(s.frames)))
	}
	return s.frames[n], nil
}

// GetFrame returns the decoded frame whose underlying index is exactly n.
func (s *VideoSource) GetFrame(n int64) (*mediatypes.VideoFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed != nil {
		return nil, s.failed
	}

	v, err := s.engine.GetFrame(n)
	if err != nil {
		markFailed(&s.failed, asPermanent(err))
		return nil, err
	}
	return v.(*mediatypes.VideoFrame), nil
}

// GetFrameIsTFF reports whether frame n (or, if useRFF, the underlying
// frame backing RFF-expanded display index n) is top-field-first.
func (s *VideoSource) GetFrameIsTFF(n int64, useRFF bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := n
	if useRFF {
		df := s.rff.At(n)
		idx = int64(df.FrameA)
	}
	if idx < 0 || idx >= int64(len(s.frames)) {
		return false, errs.NewRangeError(s.desc.Track, idx, int64(len(s.frames)))
	}
	return s.frames[idx].TFF, nil
}

// GetFrameWithRFF returns the display frame at RFF-expanded index d,
// synthesizing a field-merged frame when d spans two underlying frames.
func (s *VideoSource) GetFrameWithRFF(d int64) (*mediatypes.VideoFrame, error) {
	df := s.rffAt(d)
	if df.FrameB < 0 {
		return s.GetFrame(int64(df.FrameA))
	}

	a, err := s.GetFrame(int64(df.FrameA))
	if err != nil {
		return nil, err
	}
	b, err := s.GetFrame(int64(df.FrameB))
	if err != nil {
		return nil, err
	}

	if df.FieldA == rff.TopField {
		return mergeFields(a, b), nil
	}
	return mergeFields(b, a), nil
}

func (s *VideoSource) rffAt(d int64) rff.DisplayFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rff.At(d)
}

// NumRFFFrames is the size of the RFF-expanded display sequence, or -1 if
// RFF expansion is unused (every frame's repeat_pict == 0).
func (s *VideoSource) NumRFFFrames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rff.NumRFFFrames()
}

// GetFrameByTime returns the frame index covering wall-clock time t
// (seconds), or -1 if t precedes the track's first frame.
func (s *VideoSource) GetFrameByTime(t float64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	pts := make([]int64, len(s.frames))
	for i, f := range s.frames {
		pts[i] = f.PTS
	}
	return timebase.FrameByTime(pts, s.props.TimeBase, t)
}

// GetRelativeStartTime returns the difference, in seconds, between this
// track's start time and otherStart.
func (s *VideoSource) GetRelativeStartTime(otherStart float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return timebase.RelativeStartTime(s.props.StartTime, otherStart)
}

// LinearMode reports whether the seek/retry engine has permanently fallen
// back to decode-forward-only access.
func (s *VideoSource) LinearMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.LinearMode()
}

// BadSeekCount reports how many seek targets have been blacklisted.
func (s *VideoSource) BadSeekCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.BadSeekCount()
}

// SetMaxCacheSize adjusts the decoded-frame cache's byte budget.
func (s *VideoSource) SetMaxCacheSize(bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.SetMaxSize(bytes)
}

// WriteTimecodes writes a v2 timecode file for this track's display
// sequence (RFF-expanded if active) to path.
func (s *VideoSource) WriteTimecodes(path string) error {
	s.mu.Lock()
	n := s.rff.NumRFFFrames()
	tb := s.props.TimeBase
	frames := s.frames
	expander := s.rff
	s.mu.Unlock()

	if n < 0 {
		n = int64(len(frames))
	}

	ms := make([]float64, n)
	for i := int64(0); i < n; i++ {
		var pts int64
		if expander.State() == rff.Unused {
			pts = frames[i].PTS
		} else {
			df := expander.At(i)
			pts = frames[df.FrameA].PTS
		}
		ms[i] = timebase.Seconds(pts, tb) * 1000
	}

	return writeTimecodeFile(path, ms)
}

func asPermanent(err error) error {
	if _, ok := err.(*errs.DecodeError); ok {
		return err
	}
	return nil
}

func planeBytes(planes [][]byte) int64 {
	var total int64
	for _, p := range planes {
		total += int64(len(p))
	}
	return total
}

// mergeFields synthesizes one display frame from two underlying frames'
// fields: even rows of each plane come from top, odd rows from bottom.
func mergeFields(top, bottom *mediatypes.VideoFrame) *mediatypes.VideoFrame {
	out := &mediatypes.VideoFrame{
		Meta:        top.Meta,
		Width:       top.Width,
		Height:      top.Height,
		SSModWidth:  top.SSModWidth,
		SSModHeight: top.SSModHeight,
		Format:      top.Format,
		Strides:     append([]int(nil), top.Strides...),
	}

	out.Planes = make([][]byte, len(top.Planes))
	for p := range top.Planes {
		stride := 0
		if p < len(top.Strides) {
			stride = top.Strides[p]
		}
		topPlane := top.Planes[p]
		var botPlane []byte
		if p < len(bottom.Planes) {
			botPlane = bottom.Planes[p]
		}

		merged := make([]byte, len(topPlane))
		if stride <= 0 {
			copy(merged, topPlane)
			out.Planes[p] = merged
			continue
		}

		rows := len(topPlane) / stride
		for row := 0; row < rows; row++ {
			lo, hi := row*stride, (row+1)*stride
			if hi > len(merged) {
				hi = len(merged)
			}
			if row%2 == 0 || hi > len(botPlane) {
				copy(merged[lo:hi], topPlane[lo:hi])
			} else {
				copy(merged[lo:hi], botPlane[lo:hi])
			}
		}
		out.Planes[p] = merged
	}

	return out
}
