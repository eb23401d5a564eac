package avio

// #cgo pkg-config: libavformat libavcodec libavutil libswresample
// #include <stdlib.h>
// #include <libavformat/avformat.h>
// #include <libavcodec/avcodec.h>
// #include <libavutil/avutil.h>
// #include <libavutil/opt.h>
// #include <libavutil/samplefmt.h>
import "C"

import (
	"unsafe"

	"framesource/internal/mediatypes"
)

// AudioCursor is the demux/decode adapter specialization for audio tracks.
type AudioCursor struct {
	baseCursor
	currentSample int64
	pending       *mediatypes.AudioFrame
}

// OpenAudio opens a new, independent audio cursor).
func OpenAudio(desc mediatypes.SourceDescriptor) (*AudioCursor, error) {
	fmtCtx, err := openFormat(desc)
	if err != nil {
		return nil, err
	}

	track, err := desc.ResolvedTrack(findStreamsOfType(fmtCtx, C.AVMEDIA_TYPE_AUDIO))
	if err != nil {
		C.avformat_close_input(&fmtCtx)
		return nil, err
	}

	c := &AudioCursor{baseCursor: baseCursor{desc: desc, fmtCtx: fmtCtx, trackIdx: track}}
	streams := unsafe.Slice(fmtCtx.streams, int(fmtCtx.nb_streams))
	c.stream = streams[track]

	if err := c.openCodec(desc.Threads); err != nil {
		c.Close()
		return nil, err
	}

	if desc.DRCScale != 0 {
		cKey := C.CString("drc_scale")
		C.av_opt_set_double(unsafe.Pointer(c.codecCtx), cKey, C.double(desc.DRCScale), 0)
		C.free(unsafe.Pointer(cKey))
	}

	return c, nil
}

// GetAudioProperties decodes exactly one frame to populate the fields
// that are only known after first decode It must be
// called immediately after OpenAudio. The consumed frame is cached and
// will be the one GetNextFrame() returns first, so no frame is lost.
func (c *AudioCursor) GetAudioProperties() (mediatypes.AudioProperties, error) {
	var ap mediatypes.AudioProperties

	ap.SampleRate = int(c.codecCtx.sample_rate)
	ap.Channels = int(c.codecCtx.ch_layout.nb_channels)
	ap.ChannelLayout = uint64(c.codecCtx.ch_layout.u[0])
	ap.NumFrames = -1

	tbNum, tbDen := rationalToFraction(c.stream.time_base)
	ap.StartTimeSecond = ptsToSeconds(int64(c.stream.start_time), tbNum, tbDen)

	sampleFmt := c.codecCtx.sample_fmt
	ap.IsFloat = sampleFmt == C.AV_SAMPLE_FMT_FLT || sampleFmt == C.AV_SAMPLE_FMT_FLTP ||
		sampleFmt == C.AV_SAMPLE_FMT_DBL || sampleFmt == C.AV_SAMPLE_FMT_DBLP
	ap.BytesPerSample = int(C.av_get_bytes_per_sample(sampleFmt))
	ap.BitsPerSample = ap.BytesPerSample * 8

	frame, ok, err := c.decodeOne()
	if err != nil {
		return ap, err
	}
	if ok {
		c.pending = frame
	}

	return ap, nil
}

// GetNextFrame implements Cursor.
func (c *AudioCursor) GetNextFrame() (*mediatypes.AudioFrame, error) {
	if c.pending != nil {
		f := c.pending
		c.pending = nil
		c.currentFrame++
		c.currentSample += f.NumSamples
		return f, nil
	}

	frame, ok, err := c.decodeOne()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	c.currentFrame++
	c.currentSample += frame.NumSamples
	return frame, nil
}

// CurrentSample returns the sample position the next decoded frame starts
// at.
func (c *AudioCursor) CurrentSample() int64 { return c.currentSample }

// SetFrameNumber overrides baseCursor.SetFrameNumber to also reset the
// sample position, matching LWAudioDecoder::SetFrameNumber(N, SampleNumber).
func (c *AudioCursor) SetFrameNumber(frame int64, samplePos int64) {
	c.baseCursor.SetFrameNumber(frame, samplePos)
	c.currentSample = samplePos
}

// SkipFrames implements Cursor.
func (c *AudioCursor) SkipFrames(n int64) (bool, error) {
	return c.skipFrames(n, func() (bool, error) {
		f, err := c.GetNextFrame()
		return f != nil, err
	})
}

func (c *AudioCursor) decodeOne() (*mediatypes.AudioFrame, bool, error) {
	for {
		ok, err := c.readPacket()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			if r := C.avcodec_send_packet(c.codecCtx, nil); r < 0 && r != errAgain {
				c.decodeSuccess = false
				return nil, false, errf("%d: couldn't flush the decoder", int(r))
			}
		} else if r := C.avcodec_send_packet(c.codecCtx, c.packet); r < 0 && r != errAgain {
			c.decodeSuccess = false
			return nil, false, errf("%d: couldn't send packet to decoder", int(r))
		}

		r := C.avcodec_receive_frame(c.codecCtx, c.frame)
		if r == errAgain {
			if !ok {
				return nil, false, nil
			}
			continue
		}
		if r < 0 {
			c.decodeSuccess = false
			return nil, false, errf("%d: couldn't receive frame from decoder", int(r))
		}

		af := c.exportFrame()
		C.av_frame_unref(c.frame)
		return af, true, nil
	}
}

func (c *AudioCursor) exportFrame() *mediatypes.AudioFrame {
	f := c.frame
	planar := C.av_sample_fmt_is_planar(int32(f.format)) != 0
	bytesPerSample := int(C.av_get_bytes_per_sample(int32(f.format)))
	nSamples := int(f.nb_samples)
	nChannels := int(f.ch_layout.nb_channels)

	af := &mediatypes.AudioFrame{
		PTS:        int64(f.pts),
		NumSamples: int64(nSamples),
		Planar:     planar,
	}

	if planar {
		af.Data = make([][]byte, nChannels)
		for ch := 0; ch < nChannels; ch++ {
			size := nSamples * bytesPerSample
			af.Data[ch] = C.GoBytes(unsafe.Pointer(f.data[ch]), C.int(size))
		}
	} else {
		size := nSamples * bytesPerSample * nChannels
		af.Data = [][]byte{C.GoBytes(unsafe.Pointer(f.data[0]), C.int(size))}
	}

	return af
}

// Close implements Cursor.
func (c *AudioCursor) Close() error {
	c.closeCommon()
	return nil
}
