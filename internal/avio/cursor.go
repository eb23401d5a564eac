package avio

// #cgo pkg-config: libavformat libavcodec libavutil libswscale libswresample libavdevice
// #include <stdlib.h>
// #include <libavformat/avformat.h>
// #include <libavcodec/avcodec.h>
// #include <libavutil/avutil.h>
// #include <libavutil/opt.h>
// #include <libavutil/hwcontext.h>
import "C"

import (
	"unsafe"

	"framesource/internal/mediatypes"
)

// errAgain mirrors AVERROR(EAGAIN): the decoder needs more input before it
// can produce output, a recoverable per-packet condition.
const errAgain = C.int(-C.EAGAIN)

// baseCursor holds the libav state shared by video and audio cursors: one
// AVFormatContext + one AVCodecContext per cursor (each cursor owns its
// own format context, not shared across the pool). It implements the
// common methods of decoder.Cursor; VideoCursor and AudioCursor embed it
// and add their media-specific decode step.
type baseCursor struct {
	desc mediatypes.SourceDescriptor

	fmtCtx   *C.AVFormatContext
	codecCtx *C.AVCodecContext
	hwDevice *C.AVBufferRef
	stream   *C.AVStream
	trackIdx int

	packet *C.AVPacket
	frame  *C.AVFrame

	currentFrame  int64
	seeked        bool
	decodeSuccess bool
	eof           bool
}

func openFormat(desc mediatypes.SourceDescriptor) (*C.AVFormatContext, error) {
	cPath := C.CString(desc.Path)
	defer C.free(unsafe.Pointer(cPath))

	var dict *C.AVDictionary
	for k, v := range desc.DecoderOptions {
		ck, cv := C.CString(k), C.CString(v)
		C.av_dict_set(&dict, ck, cv, 0)
		C.free(unsafe.Pointer(ck))
		C.free(unsafe.Pointer(cv))
	}
	defer C.av_dict_free(&dict)

	fmtCtx := C.avformat_alloc_context()
	if fmtCtx == nil {
		return nil, errf("couldn't allocate a format context")
	}

	if desc.Threads > 0 {
		// Thread count is applied per codec context below; nothing to do
		// at the format-context level.
	}

	if r := C.avformat_open_input(&fmtCtx, cPath, nil, &dict); r < 0 {
		return nil, errf("%d: couldn't open %q", int(r), desc.Path)
	}

	if r := C.avformat_find_stream_info(fmtCtx, nil); r < 0 {
		C.avformat_close_input(&fmtCtx)
		return nil, errf("%d: couldn't find stream information", int(r))
	}

	return fmtCtx, nil
}

func findStreamsOfType(fmtCtx *C.AVFormatContext, mediaType C.enum_AVMediaType) []int {
	n := int(fmtCtx.nb_streams)
	streams := unsafe.Slice(fmtCtx.streams, n)
	var indices []int
	for i, s := range streams {
		if s.codecpar.codec_type == mediaType {
			indices = append(indices, i)
		}
	}
	return indices
}

func (c *baseCursor) openCodec(threads int) error {
	params := c.stream.codecpar
	codec := C.avcodec_find_decoder(params.codec_id)
	if codec == nil {
		return errf("no decoder registered for codec id %d", int(params.codec_id))
	}

	c.codecCtx = C.avcodec_alloc_context3(codec)
	if c.codecCtx == nil {
		return errf("couldn't allocate a codec context")
	}

	if r := C.avcodec_parameters_to_context(c.codecCtx, params); r < 0 {
		return errf("%d: couldn't copy codec parameters", int(r))
	}

	if threads > 0 {
		c.codecCtx.thread_count = C.int(threads)
	}

	c.codecCtx.pkt_timebase = c.stream.time_base

	if r := C.avcodec_open2(c.codecCtx, codec, nil); r < 0 {
		return errf("%d: couldn't open the codec", int(r))
	}

	c.packet = C.av_packet_alloc()
	if c.packet == nil {
		return errf("couldn't allocate a packet")
	}

	c.frame = C.av_frame_alloc()
	if c.frame == nil {
		return errf("couldn't allocate a frame")
	}

	c.decodeSuccess = true
	return nil
}

// CurrentFrame implements Cursor.
func (c *baseCursor) CurrentFrame() int64 { return c.currentFrame }

// SourceSize implements Cursor.
func (c *baseCursor) SourceSize() int64 {
	if c.fmtCtx == nil {
		return -1
	}
	size := C.avio_size(c.fmtCtx.pb)
	return int64(size)
}

// SourcePosition implements Cursor.
func (c *baseCursor) SourcePosition() int64 {
	if c.fmtCtx == nil || c.fmtCtx.pb == nil {
		return -1
	}
	return int64(C.avio_tell(c.fmtCtx.pb))
}

// Track implements Cursor.
func (c *baseCursor) Track() int { return c.trackIdx }

// HasMoreFrames implements Cursor.
func (c *baseCursor) HasMoreFrames() bool { return !c.eof && c.decodeSuccess }

// HasSeeked implements Cursor.
func (c *baseCursor) HasSeeked() bool { return c.seeked }

// SetFrameNumber implements Cursor; samplePos is ignored by the video
// cursor and used by the audio cursor to also reset current_sample.
func (c *baseCursor) SetFrameNumber(frame int64, _ int64) {
	c.currentFrame = frame
	c.seeked = false
}

// readPacket reads the next packet belonging to this cursor's stream,
// silently discarding packets from other streams in the same container
// (a cursor only ever surfaces one track). EAGAIN is retried; any other
// read error is treated as end of stream. ok is false at end of stream;
// the error result is always nil.
func (c *baseCursor) readPacket() (bool, error) {
	for {
		C.av_packet_unref(c.packet)
		r := C.av_read_frame(c.fmtCtx, c.packet)
		if r < 0 {
			if r == errAgain {
				continue
			}
			c.eof = true
			return false, nil
		}

		if int(c.packet.stream_index) != c.trackIdx {
			continue
		}

		return true, nil
	}
}

// Seek implements Cursor: seeks by PTS in the cursor's own stream time
// base, backward to the nearest keyframe at or before pts. The cursor's
// CurrentFrame is deliberately left untouched; the caller is responsible
// for reconciling it once it learns which frame the seek actually landed
// on.
func (c *baseCursor) Seek(pts int64) bool {
	r := C.av_seek_frame(c.fmtCtx, C.int(c.trackIdx), C.int64_t(pts),
		C.AVSEEK_FLAG_BACKWARD)
	if r < 0 {
		return false
	}

	C.avcodec_flush_buffers(c.codecCtx)
	c.seeked = true
	c.eof = false
	c.decodeSuccess = true
	return true
}

// skipFrames backs SkipFrames by decoding and discarding n frames.
// decodeOne is supplied by the embedding video/audio cursor.
func (c *baseCursor) skipFrames(n int64, decodeOne func() (bool, error)) (bool, error) {
	for i := int64(0); i < n; i++ {
		ok, err := decodeOne()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c *baseCursor) closeCommon() {
	if c.frame != nil {
		C.av_frame_free(&c.frame)
		c.frame = nil
	}
	if c.packet != nil {
		C.av_packet_free(&c.packet)
		c.packet = nil
	}
	if c.codecCtx != nil {
		C.avcodec_free_context(&c.codecCtx)
		c.codecCtx = nil
	}
	if c.hwDevice != nil {
		C.av_buffer_unref(&c.hwDevice)
		c.hwDevice = nil
	}
	if c.fmtCtx != nil {
		C.avformat_close_input(&c.fmtCtx)
		c.fmtCtx = nil
	}
}

func rationalToFraction(r C.AVRational) (int, int) {
	return int(r.num), int(r.den)
}
