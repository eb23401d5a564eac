// Package seekengine implements the seek/retry engine, the heart of
// the system: turns "give me frame N" into a correct
// decoded frame, handling misbehaving seeks via retry, blacklisting, and
// eventual permanent fallback to linear mode.
//
// Engine is generic over the concrete cursor type (decoder.VideoCursor or
// decoder.AudioCursor) and parameterized by a small Adapter of
// media-specific callbacks, so the same retry/fallback logic is written
// once and instantiated for both video and audio.
package seekengine

import (
	"log/slog"

	"framesource/internal/decoder"
	"framesource/internal/errs"
	"framesource/internal/framecache"
	"framesource/internal/pool"
)

// Adapter supplies the media-specific parts of the algorithm: decoding
// one frame from a cursor, and the sample position to realign a cursor
// to after a resync (ignored/zero for video).
type Adapter[C any] struct {
	// NextFrame decodes exactly one frame from cursor. hash is the
	// frame-identity content hash; size is the decoded
	// byte size for cache accounting; ok is false at EOF.
	NextFrame func(cursor C) (value any, hash [16]byte, size int64, ok bool, err error)
	// SamplePos returns the sample position frame index idx starts at;
	// video adapters return 0 (SetFrameNumber ignores it there).
	SamplePos func(idx int64) int64
}

// Index is the read-only view over track-index metadata the engine needs:
// PTS/key-frame/hash per entry, by position.
type Index interface {
	Len() int64
	PTS(i int64) int64
	KeyFrame(i int64) bool
	Hash(i int64) [16]byte
}

// Engine is the seek/retry state machine for one track.
type Engine[C decoder.Cursor] struct {
	pool    *pool.Pool[C]
	cache   *framecache.Cache
	index   Index
	adapter Adapter[C]

	preRoll    int64
	maxRetries int

	badSeek map[int64]bool
	linear  bool

	log *slog.Logger
}

// errNeedLinear signals that random-mode resolution gave up and the
// caller must retry via linear mode (handled internally by GetFrame).
type errNeedLinear struct{}

func (errNeedLinear) Error() string { return "seek retry budget exhausted" }

// New builds an Engine backed by p and cache, indexing against idx.
func New[C decoder.Cursor](p *pool.Pool[C], cache *framecache.Cache, idx Index, adapter Adapter[C], preRoll int64, maxRetries int, log *slog.Logger) *Engine[C] {
	if log == nil {
		log = slog.Default()
	}
	return &Engine[C]{
		pool:       p,
		cache:      cache,
		index:      idx,
		adapter:    adapter,
		preRoll:    preRoll,
		maxRetries: maxRetries,
		badSeek:    make(map[int64]bool),
		log:        log,
	}
}

// LinearMode reports whether the engine has permanently fallen back to
// decode-forward-only access.
func (e *Engine[C]) LinearMode() bool { return e.linear }

// BadSeekCount reports how many seek targets have been blacklisted, for
// diagnostics/tests.
func (e *Engine[C]) BadSeekCount() int { return len(e.badSeek) }

// GetFrame returns the decoded frame whose index is exactly n.
func (e *Engine[C]) GetFrame(n int64) (any, error) {
	if n < 0 || n >= e.index.Len() {
		return nil, errs.NewRangeError(e.pool.Desc.Track, n, e.index.Len())
	}

	if v, ok := e.cache.Get(n); ok {
		return v, nil
	}

	fellBack := false
	// Each failed seek attempt blacklists one new seek target, so the
	// growth of badSeek during this call counts its attempts.
	seeksBefore := len(e.badSeek)
	if !e.linear {
		v, err := e.randomGet(n)
		if err == nil {
			return v, nil
		}
		if _, needLinear := err.(errNeedLinear); !needLinear {
			return nil, err
		}
		fellBack = true
	}

	v, err := e.linearGet(n)
	if err != nil && fellBack {
		return nil, errs.NewSeekError(e.pool.Desc.Track, len(e.badSeek)-seeksBefore, err)
	}
	return v, err
}

func (e *Engine[C]) randomGet(n int64) (any, error) {
	attempts := 0

	for {
		if sel := e.pool.Select(n, e.preRoll); sel.Found {
			e.pool.Touch(sel.Cursor)
			return e.forwardDecodeAndCache(sel.Cursor, n)
		}

		seekFrame, found := e.getSeekFrame(n)
		if !found {
			e.enterLinearMode("no valid seek target", n)
			return nil, errNeedLinear{}
		}

		cursor, err := e.pool.OpenFresh()
		if err != nil {
			return nil, err
		}

		if !cursor.Seek(e.index.PTS(seekFrame)) {
			e.log.Debug("seek failed", "seek_frame", seekFrame)
			e.badSeek[seekFrame] = true
			attempts++
			if attempts >= e.maxRetries {
				e.enterLinearMode("retry budget exhausted", n)
				return nil, errNeedLinear{}
			}
			continue
		}

		val, hash, size, ok, err := e.adapter.NextFrame(cursor)
		if err != nil {
			return nil, errs.NewDecodeError(cursor.Track(), seekFrame, err)
		}
		if !ok {
			e.badSeekAndRetry(seekFrame, &attempts)
			if e.linear {
				return nil, errNeedLinear{}
			}
			continue
		}

		resolved, matched := e.resolveIdentity(hash, seekFrame, n)
		if !matched || resolved > n {
			e.log.Debug("seek declared bad", "seek_frame", seekFrame, "resolved", resolved, "matched", matched)
			e.badSeekAndRetry(seekFrame, &attempts)
			if e.linear {
				return nil, errNeedLinear{}
			}
			continue
		}

		e.cache.CacheFrame(resolved, val, size)
		cursor.SetFrameNumber(resolved+1, e.adapter.SamplePos(resolved+1))
		e.pool.Touch(cursor)

		if resolved == n {
			return val, nil
		}
		return e.forwardDecodeAndCache(cursor, n)
	}
}

func (e *Engine[C]) badSeekAndRetry(seekFrame int64, attempts *int) {
	e.badSeek[seekFrame] = true
	*attempts++
	if *attempts >= e.maxRetries {
		e.enterLinearMode("retry budget exhausted", seekFrame)
	}
}

func (e *Engine[C]) enterLinearMode(reason string, n int64) {
	e.log.Warn("entering linear mode", "reason", reason, "frame", n)
	e.linear = true
	e.pool.DiscardAll()
}

// getSeekFrame locates the latest key frame at or before n-PreRoll that
// is not blacklisted.
func (e *Engine[C]) getSeekFrame(n int64) (int64, bool) {
	k := n - e.preRoll
	if k < 0 {
		k = 0
	}
	for k >= 0 {
		if e.index.KeyFrame(k) && !e.badSeek[k] {
			return k, true
		}
		k--
	}
	return 0, false
}

// resolveIdentity searches the index window near seekFrame for an entry
// whose hash matches the just-decoded frame.
func (e *Engine[C]) resolveIdentity(hash [16]byte, seekFrame, n int64) (int64, bool) {
	lo := seekFrame - e.preRoll
	if lo < 0 {
		lo = 0
	}
	hi := n
	for i := lo; i <= hi; i++ {
		if e.index.Hash(i) == hash {
			return i, true
		}
	}
	return 0, false
}

func (e *Engine[C]) linearGet(n int64) (any, error) {
	sel := e.pool.Select(n, e.index.Len())
	var cursor C
	if sel.Found {
		cursor = sel.Cursor
		e.pool.Touch(cursor)
	} else {
		var err error
		cursor, err = e.pool.OpenFresh()
		if err != nil {
			return nil, err
		}
	}

	return e.forwardDecodeAndCache(cursor, n)
}

// forwardDecodeAndCache decodes forward from cursor's current position
// through target, caching every intermediate frame, and returns the decoded value at target.
func (e *Engine[C]) forwardDecodeAndCache(cursor C, target int64) (any, error) {
	for {
		idx := cursor.CurrentFrame()
		if idx > target {
			return nil, errs.NewDecodeError(cursor.Track(), target, errOvershoot{})
		}

		val, hash, size, ok, err := e.adapter.NextFrame(cursor)
		_ = hash
		if err != nil {
			return nil, errs.NewDecodeError(cursor.Track(), idx, err)
		}
		if !ok {
			return nil, errs.NewDecodeError(cursor.Track(), idx, errUnexpectedEOF{})
		}

		e.cache.CacheFrame(idx, val, size)
		if idx == target {
			return val, nil
		}
	}
}

type errOvershoot struct{}

func (errOvershoot) Error() string { return "cursor overshot the target frame" }

type errUnexpectedEOF struct{}

func (errUnexpectedEOF) Error() string { return "unexpected end of stream before target frame" }
