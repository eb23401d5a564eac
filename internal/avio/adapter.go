package avio

import (
	"framesource/internal/decoder"
	"framesource/internal/mediatypes"
)

// OpenVideoCursor adapts OpenVideo to decoder.VideoOpener: it returns the
// decoder.VideoCursor interface rather than the concrete *VideoCursor, so
// a decoder pool is typed over the interface and the same pool, engine
// and tests work with the real cursor or the avtest fake.
func OpenVideoCursor(desc mediatypes.SourceDescriptor) (decoder.VideoCursor, error) {
	c, err := OpenVideo(desc)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// OpenAudioCursor adapts OpenAudio to decoder.AudioOpener.
func OpenAudioCursor(desc mediatypes.SourceDescriptor) (decoder.AudioCursor, error) {
	c, err := OpenAudio(desc)
	if err != nil {
		return nil, err
	}
	return c, nil
}
