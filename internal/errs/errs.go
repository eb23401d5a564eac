// Package errs defines the taxonomy of errors a Source can return:
// OpenError, IndexError, CacheError, DecodeError, SeekError, and
// RangeError. Each kind except RangeError wraps an underlying cause with
// github.com/pkg/errors so that %+v formatting keeps a stack trace, and
// exposes Unwrap so callers can use errors.As/errors.Is against the
// underlying cause. RangeError has no cause and no Unwrap.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// OpenError is returned when a source fails to open: the file doesn't
// exist, the container can't be demuxed, the requested track doesn't
// exist, or no matching decoder is registered.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// NewOpenError wraps err as an OpenError, recording a stack trace if err
// does not already carry one.
func NewOpenError(path string, err error) error {
	if err == nil {
		return nil
	}
	return &OpenError{Path: path, Err: errors.WithStack(err)}
}

// IndexError is returned when building the track index fails: a decode
// error during indexing or a cancelled index build.
type IndexError struct {
	Track int
	Err   error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index track %d: %v", e.Track, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// NewIndexError wraps err as an IndexError.
func NewIndexError(track int, err error) error {
	if err == nil {
		return nil
	}
	return &IndexError{Track: track, Err: errors.WithStack(err)}
}

// CacheError is returned when the persisted index cache can't be
// read or written: permission errors, or a failed temp-file write or
// atomic rename. A checksum or header mismatch is not a CacheError; the
// cache file is then ignored and the track re-indexed.
type CacheError struct {
	Path string
	Err  error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Path, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// NewCacheError wraps err as a CacheError.
func NewCacheError(path string, err error) error {
	if err == nil {
		return nil
	}
	return &CacheError{Path: path, Err: errors.WithStack(err)}
}

// DecodeError is returned when the underlying decoder reports an
// unrecoverable failure while producing a frame.
type DecodeError struct {
	Track int
	Frame int64
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode track %d frame %d: %v", e.Track, e.Frame, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NewDecodeError wraps err as a DecodeError.
func NewDecodeError(track int, frame int64, err error) error {
	if err == nil {
		return nil
	}
	return &DecodeError{Track: track, Frame: frame, Err: errors.WithStack(err)}
}

// SeekError is returned when the seek/retry engine gave up on random
// access during a request (its retry budget ran out, or no usable seek
// target was left) and the linear-mode fetch that followed also failed.
// Err is that linear-mode failure; Attempt is the number of failed seek
// attempts made during the request. The engine stays in linear mode.
type SeekError struct {
	Track   int
	Attempt int
	Err     error
}

func (e *SeekError) Error() string {
	return fmt.Sprintf("seek track %d (attempt %d): %v", e.Track, e.Attempt, e.Err)
}

func (e *SeekError) Unwrap() error { return e.Err }

// NewSeekError wraps err as a SeekError.
func NewSeekError(track, attempt int, err error) error {
	if err == nil {
		return nil
	}
	return &SeekError{Track: track, Attempt: attempt, Err: errors.WithStack(err)}
}

// RangeError is returned when a requested frame/sample index is outside
// [0, num_frames) (or the corresponding sample range) once that bound is
// known.
type RangeError struct {
	Track     int
	Requested int64
	Bound     int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("track %d: index %d out of range [0, %d)", e.Track, e.Requested, e.Bound)
}

// NewRangeError builds a RangeError.
func NewRangeError(track int, requested, bound int64) error {
	return &RangeError{Track: track, Requested: requested, Bound: bound}
}
