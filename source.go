// Package framesource turns an opaque container+codec byte stream into a
// deterministic, randomly-addressable sequence of decoded audio and video
// frames keyed by integer index.
package framesource

import (
	"context"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"framesource/internal/config"
	"framesource/internal/hashprefix"
	"framesource/internal/mediatypes"
	"framesource/internal/trackindex"
)

// ProgressFunc reports indexing progress as (track, bytes consumed so
// far, total source bytes); total is -1 if unknown. Returning true
// cancels the in-progress indexing pass.
type ProgressFunc func(track int, bytesConsumed, totalBytes int64) (cancel bool)

// SourceOptions holds the construction parameters common to both
// VideoSource and AudioSource.
type SourceOptions struct {
	// Path is the media file to open.
	Path string
	// Track selects a track: >=0 is an absolute stream index, <0 is the
	// Nth track of the relevant media type (-1 == first).
	Track int
	// VariableFormat allows the decoded format to change frame to frame
	// (container/codec dependent); most sources should leave this false.
	VariableFormat bool
	// Threads is the decoder thread count; 0 lets the codec choose.
	Threads int
	// DecoderOptions are opaque key/value pairs passed to the codec.
	DecoderOptions map[string]string
	// CachePath is where the persisted track index is read from/written
	// to. Empty disables persistence (the track is always re-indexed).
	CachePath string

	// MaxCursors bounds the decoder pool; 0 defaults to 4.
	MaxCursors int
	// MaxCacheSize bounds the decoded-frame cache in bytes; 0
	// defaults to 1 GiB.
	MaxCacheSize int64
	// PreRoll overrides the per-media-type default (40 audio, 20 video).
	PreRoll int64
	// RetrySeekAttempts overrides the default retry budget of 10.
	RetrySeekAttempts int

	// Logger receives structured diagnostics for internal state
	// transitions (bad seek, linear-mode entry, failed index persist); nil
	// uses slog.Default().
	Logger *slog.Logger
	// Progress, if set, is invoked during the first-time indexing pass.
	Progress ProgressFunc
}

func (o SourceOptions) toConfig(mt mediatypes.MediaType) config.Options {
	return config.Options{
		Path:              o.Path,
		Type:              mt,
		Track:             o.Track,
		VariableFormat:    o.VariableFormat,
		Threads:           o.Threads,
		DecoderOptions:    o.DecoderOptions,
		CachePath:         o.CachePath,
		MaxCursors:        o.MaxCursors,
		MaxCacheSize:      o.MaxCacheSize,
		PreRoll:           o.PreRoll,
		MaxSkipAhead:      0,
		RetrySeekAttempts: o.RetrySeekAttempts,
	}
}

func (o SourceOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// buildHeader identifies the opened source for the persisted index:
// size, modification time (best-effort), track, and a codec-parameters
// fingerprint so a format change invalidates the cache.
func buildHeader(path string, track int, sourceSize int64, fingerprint string) trackindex.Header {
	var mtime int64
	if st, err := os.Stat(path); err == nil {
		mtime = st.ModTime().UnixNano()
	}

	sum := hashprefix.Sum([]byte(fingerprint))
	return trackindex.Header{
		SourceSize:       sourceSize,
		SourceMTime:      mtime,
		Track:            int32(track),
		CodecFingerprint: sum[:],
	}
}

// OpenTracks opens several tracks of the same file concurrently using
// golang.org/x/sync/errgroup. Each track gets
// its own fully independent Source, so this does not violate the
// single-source-serialization rule — it parallelizes N independent
// first-time indexing passes, which are I/O/CPU bound.
func OpenTracks(ctx context.Context, opens ...func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, open := range opens {
		open := open
		g.Go(func() error { return open(ctx) })
	}
	return g.Wait()
}

// markFailed records a permanent failure.
func markFailed(failed *error, err error) error {
	if err == nil {
		return nil
	}
	if *failed == nil {
		*failed = err
	}
	return err
}
