// Package config validates and defaults the construction options shared
// by video and audio sources. It deliberately does not parse any file
// format or flag set; command-line and configuration-file parsing is an
// external, out-of-scope collaborator concern. This package only
// validates/defaults a Go struct the caller already built.
package config

import (
	"errors"

	"framesource/internal/errs"
	"framesource/internal/mediatypes"
)

var (
	errEmptyPath       = errors.New("path is required")
	errNegativeThreads = errors.New("thread count cannot be negative")
)

// Defaults for the tunables below.
const (
	DefaultMaxCursors        = 4
	DefaultAudioPreRoll      = 40
	DefaultVideoPreRoll      = 20
	DefaultRetrySeekAttempts = 10
	DefaultMaxCacheSize      = 1 << 30 // 1 GiB
)

// Options holds the construction parameters common to both video and
// audio sources.
type Options struct {
	Path           string
	Type           mediatypes.MediaType
	Track          int
	VariableFormat bool
	Threads        int
	DecoderOptions map[string]string
	CachePath      string

	MaxCursors        int
	MaxCacheSize      int64
	PreRoll           int64
	MaxSkipAhead      int64
	RetrySeekAttempts int
}

// Validate fills in defaults for zero-valued tunables and rejects
// impossible combinations, returning a typed OpenError.
func (o *Options) Validate() error {
	if o.Path == "" {
		return errs.NewOpenError(o.Path, errEmptyPath)
	}
	if o.Threads < 0 {
		return errs.NewOpenError(o.Path, errNegativeThreads)
	}

	if o.MaxCursors <= 0 {
		o.MaxCursors = DefaultMaxCursors
	}
	if o.MaxCacheSize == 0 {
		o.MaxCacheSize = DefaultMaxCacheSize
	}
	if o.PreRoll <= 0 {
		if o.Type == mediatypes.Audio {
			o.PreRoll = DefaultAudioPreRoll
		} else {
			o.PreRoll = DefaultVideoPreRoll
		}
	}
	if o.MaxSkipAhead <= 0 {
		o.MaxSkipAhead = 1 << 20
	}
	if o.RetrySeekAttempts <= 0 {
		o.RetrySeekAttempts = DefaultRetrySeekAttempts
	}

	return nil
}
