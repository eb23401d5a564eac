package framesource

import (
	"fmt"
	"sort"
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
	"framesource/internal/seekengine"
	"framesource/internal/timebase"
	"framesource/internal/trackindex"
)

// AudioSourceOptions extends SourceOptions with the audio-specific
// construction parameters.
type AudioSourceOptions struct {
	SourceOptions
	// DRCScale applies dynamic range compression during decode (AC3/EAC3
	// drc_scale), 0 disables it.
	DRCScale float64
	// SampleDelay offsets every frame's recorded start_sample, for
	// containers whose first audio frame doesn't start at sample 0
	// relative to the track's reported start time.
	SampleDelay int64
}

// audioIndexView adapts a built audio track index to seekengine.Index.
// Audio frames are always independently decodable (no key-frame concept),
// so KeyFrame is unconditionally true.
type audioIndexView struct {
	frames []trackindex.AudioFrameInfo
}

func (v audioIndexView) Len() int64            { return int64(len(v.frames)) }
func (v audioIndexView) PTS(i int64) int64     { return v.frames[i].PTS }
func (v audioIndexView) KeyFrame(i int64) bool { return true }
func (v audioIndexView) Hash(i int64) [16]byte { return v.frames[i].Hash }

// AudioSource is a frame-accurate, sample-addressable audio track.
type AudioSource struct {
	mu sync.Mutex

	desc  mediatypes.SourceDescriptor
	props mediatypes.AudioProperties
	frames []trackindex.AudioFrameInfo
	gaps   []trackindex.GapInfo
	planar bool

	pool   *pool.Pool[decoder.AudioCursor]
	cache  *framecache.Cache
	engine *seekengine.Engine[decoder.AudioCursor]

	failed error
}

// OpenAudioSource opens an audio track for frame- and sample-accurate
// random access, building or loading its persisted frame index.
func OpenAudioSource(opts AudioSourceOptions) (*AudioSource, error) {
	cfg := opts.SourceOptions.toConfig(mediatypes.Audio)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	desc := mediatypes.SourceDescriptor{
		Path:           cfg.Path,
		Type:           mediatypes.Audio,
		Track:          cfg.Track,
		VariableFormat: cfg.VariableFormat,
		Threads:        cfg.Threads,
		DecoderOptions: cfg.DecoderOptions,
		DRCScale:       opts.DRCScale,
	}

	cursor, err := avio.OpenAudioCursor(desc)
	if err != nil {
		return nil, errs.NewOpenError(cfg.Path, err)
	}

	props, err := cursor.GetAudioProperties()
	if err != nil {
		cursor.Close()
		return nil, errs.NewOpenError(cfg.Path, err)
	}

	hdr := buildHeader(cfg.Path, cursor.Track(), cursor.SourceSize(), fmt.Sprintf("%+v", props))

	idx, err := loadOrBuildAudioIndex(cursor, cfg.CachePath, hdr, opts.SampleDelay, opts.Progress, opts.logger())
	cursor.Close()
	if err != nil {
		return nil, err
	}

	props.NumFrames = int64(len(idx.Frames))
	props.NumSamples = idx.NumSamples

	p := pool.New[decoder.AudioCursor](avio.OpenAudioCursor, desc)
	p.MaxCursors = cfg.MaxCursors
	p.MaxSkipAhead = cfg.MaxSkipAhead

	cache := framecache.New(cfg.MaxCacheSize)
	view := audioIndexView{frames: idx.Frames}

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
			if i < 0 || i >= int64(len(idx.Frames)) {
				return idx.NumSamples
			}
			return idx.Frames[i].StartSample
		},
	}

	engine := seekengine.New[decoder.AudioCursor](p, cache, view, adapter, cfg.PreRoll, cfg.RetrySeekAttempts, opts.logger())

	s := &AudioSource{
		desc:   desc,
		props:  props,
		frames: idx.Frames,
		gaps:   idx.Gaps,
		pool:   p,
		cache:  cache,
		engine: engine,
	}

	if len(idx.Frames) > 0 {
		if v, ferr := engine.GetFrame(0); ferr == nil {
			s.planar = v.(*mediatypes.AudioFrame).Planar
		}
	}

	return s, nil
}

func loadOrBuildAudioIndex(cursor decoder.AudioCursor, cachePath string, hdr trackindex.Header, sampleDelay int64, progress ProgressFunc, log interface {
	Warn(msg string, args ...any)
}) (trackindex.AudioIndex, error) {
	if cachePath != "" {
		if idx, ok, err := indexio.LoadAudio(cachePath, hdr); err != nil {
			return trackindex.AudioIndex{}, err
		} else if ok {
			return idx, nil
		}
	}

	idx, err := indexer.IndexAudio(cursor, sampleDelay, indexer.ProgressFunc(progress))
	if err != nil {
		return trackindex.AudioIndex{}, err
	}

	if cachePath != "" {
		if serr := indexio.SaveAudio(cachePath, hdr, idx); serr != nil {
			log.Warn("failed to persist track index", "path", cachePath, "err", serr)
		}
	}

	return idx, nil
}

// Close releases every decoder cursor held by the pool.
func (s *AudioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool.Close()
	return nil
}

// Track returns the absolute stream index this source decodes.
func (s *AudioSource) Track() int { return s.desc.Track }

// Failed reports the permanent failure, if any, this source has entered.
func (s *AudioSource) Failed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// GetAudioProperties returns the track's decoded properties, finalized
// once the index has been built.
func (s *AudioSource) GetAudioProperties() mediatypes.AudioProperties {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props
}

// GetFrameInfo returns the persisted per-frame metadata for frame n.
func (s *AudioSource) GetFrameInfo(n int64) (trackindex.AudioFrameInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || n >= int64(len(s.frames)) {
		return trackindex.AudioFrameInfo{}, errs.NewRangeError(s.desc.Track, n, int64(len(s.frames)))
	}
	return s.frames[n], nil
}

// GetFrame returns the decoded frame whose underlying index is exactly n.
func (s *AudioSource) GetFrame(n int64) (*mediatypes.AudioFrame, error) {
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
	return v.(*mediatypes.AudioFrame), nil
}

// GapsDetected returns the PTS discontinuities the indexer observed;
// purely informational.
func (s *AudioSource) GapsDetected() []trackindex.GapInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gaps
}

// LinearMode reports whether the seek/retry engine has permanently fallen
// back to decode-forward-only access.
func (s *AudioSource) LinearMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.LinearMode()
}

// BadSeekCount reports how many seek targets have been blacklisted.
func (s *AudioSource) BadSeekCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.BadSeekCount()
}

// SetMaxCacheSize adjusts the decoded-frame cache's byte budget.
func (s *AudioSource) SetMaxCacheSize(bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.SetMaxSize(bytes)
}

// GetRelativeStartTime returns the difference, in seconds, between this
// track's start time and otherStart.
func (s *AudioSource) GetRelativeStartTime(otherStart float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return timebase.RelativeStartTime(s.props.StartTimeSecond, otherStart)
}

// frameForSample returns the index of the frame covering sample, or -1 if
// sample lies outside every frame's [StartSample, StartSample+Length)
// range.
func (s *AudioSource) frameForSample(sample int64) int64 {
	frames := s.frames
	i := sort.Search(len(frames), func(i int) bool {
		return frames[i].StartSample > sample
	})
	if i == 0 {
		return -1
	}
	i--
	f := frames[i]
	if sample < f.StartSample || sample >= f.StartSample+f.LengthSamples {
		return -1
	}
	return int64(i)
}

func bufBytes(data [][]byte) int64 {
	var total int64
	for _, d := range data {
		total += int64(len(d))
	}
	return total
}
