package avio

// #cgo pkg-config: libavformat libavcodec libavutil libavdevice
// #include <stdlib.h>
// #include <libavformat/avformat.h>
// #include <libavcodec/avcodec.h>
// #include <libavutil/avutil.h>
// #include <libavutil/frame.h>
// #include <libavutil/hdr_dynamic_metadata.h>
// #include <libavutil/mastering_display_metadata.h>
// #include <libavutil/hwcontext.h>
// #include <libavutil/stereo3d.h>
// #include <libavutil/display.h>
import "C"

import (
	"unsafe"

	"framesource/internal/mediatypes"
)

// VideoCursor is the demux/decode adapter specialization for video tracks.
type VideoCursor struct {
	baseCursor
	pending *mediatypes.VideoFrame
}

// OpenVideo opens a new, independent video cursor).
func OpenVideo(desc mediatypes.SourceDescriptor) (*VideoCursor, error) {
	fmtCtx, err := openFormat(desc)
	if err != nil {
		return nil, err
	}

	track, err := desc.ResolvedTrack(findStreamsOfType(fmtCtx, C.AVMEDIA_TYPE_VIDEO))
	if err != nil {
		C.avformat_close_input(&fmtCtx)
		return nil, err
	}

	c := &VideoCursor{baseCursor: baseCursor{desc: desc, fmtCtx: fmtCtx, trackIdx: track}}
	streams := unsafe.Slice(fmtCtx.streams, int(fmtCtx.nb_streams))
	c.stream = streams[track]

	if err := c.openCodec(desc.Threads); err != nil {
		c.Close()
		return nil, err
	}

	if desc.HWDeviceName != "" {
		if err := c.setupHWAccel(desc.HWDeviceName, desc.ExtraHWFrames); err != nil {
			c.Close()
			return nil, wrap(err, "hw accel setup")
		}
	}

	return c, nil
}

func (c *VideoCursor) setupHWAccel(name string, extraFrames int) error {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	hwType := C.av_hwdevice_find_type_by_name(cName)
	if hwType == C.AV_HWDEVICE_TYPE_NONE {
		return errf("unknown HW device type %q", name)
	}

	var hwCtx *C.AVBufferRef
	if r := C.av_hwdevice_ctx_create(&hwCtx, hwType, nil, nil, 0); r < 0 {
		return errf("%d: couldn't create HW device context", int(r))
	}

	c.hwDevice = hwCtx
	c.codecCtx.hw_device_ctx = C.av_buffer_ref(hwCtx)

	// extraFrames is accepted but not applied: the decoder's hwaccel
	// frame pool keeps the codec's default size.
	_ = extraFrames

	return nil
}

// GetVideoProperties decodes exactly one frame to populate the fields
// that are only known after first decode It must be
// called immediately after OpenVideo. The consumed frame is cached and
// will be the one GetNextFrame() returns first, so no frame is lost.
func (c *VideoCursor) GetVideoProperties() (mediatypes.VideoProperties, error) {
	var vp mediatypes.VideoProperties

	tbNum, tbDen := rationalToFraction(c.stream.time_base)
	vp.TimeBase = mediatypes.Rational{tbNum, tbDen}
	vp.StartTime = ptsToSeconds(int64(c.stream.start_time), tbNum, tbDen)
	vp.Duration = int64(c.stream.duration)
	vp.NumFrames = -1
	vp.NumRFFFrames = -1

	frNum, frDen := rationalToFraction(c.stream.r_frame_rate)
	vp.FPS = mediatypes.Rational{frNum, frDen}
	sarNum, sarDen := rationalToFraction(c.codecCtx.sample_aspect_ratio)
	vp.SAR = mediatypes.Rational{sarNum, sarDen}

	vp.Width = int(c.codecCtx.width)
	vp.Height = int(c.codecCtx.height)

	desc := C.av_pix_fmt_desc_get(c.codecCtx.pix_fmt)
	if desc != nil {
		vp.Format = pixFmtToVideoFormat(desc)
		vp.SSModWidth = (vp.Width + (1 << uint(desc.log2_chroma_w)) - 1) &^ ((1 << uint(desc.log2_chroma_w)) - 1)
		vp.SSModHeight = (vp.Height + (1 << uint(desc.log2_chroma_h)) - 1) &^ ((1 << uint(desc.log2_chroma_h)) - 1)
	}

	if sd := C.av_stream_get_side_data(c.stream, C.AV_PKT_DATA_STEREO3D, nil); sd != nil {
		st := (*C.AVStereo3D)(unsafe.Pointer(sd))
		vp.Stereo3DType = int(st._type)
		vp.Stereo3DFlags = int(st.flags)
	}

	if sd := C.av_stream_get_side_data(c.stream, C.AV_PKT_DATA_DISPLAYMATRIX, nil); sd != nil {
		matrix := (*C.int32_t)(unsafe.Pointer(sd))
		vp.RotationDeg = int(C.av_display_rotation_get(matrix))
		vp.FlipHorizontal, vp.FlipVertical = displayMatrixFlip(matrix)
	}

	frame, ok, err := c.decodeOne()
	if err != nil {
		return vp, err
	}
	if ok {
		c.pending = frame
		vp.TFF = frame.Meta.TFF
		vp.FieldBased = frame.Meta.InterlacedPic
		vp.HasMasteringDisplay = frame.Meta.HasMasteringDisplay
		vp.MasteringPrimaries = frame.Meta.MasteringPrimaries
		vp.MasteringWhitePoint = frame.Meta.MasteringWhitePoint
		vp.HasMasteringLuma = frame.Meta.HasMasteringLuma
		vp.MasteringMinLuma = frame.Meta.MasteringMinLuma
		vp.MasteringMaxLuma = frame.Meta.MasteringMaxLuma
		vp.HasContentLightLevel = frame.Meta.HasContentLightLevel
		vp.ContentLightMax = frame.Meta.ContentLightMax
		vp.ContentLightAvg = frame.Meta.ContentLightAvg
	}

	return vp, nil
}

// GetNextFrame implements Cursor: returns the next decoded frame or nil
// at true EOF.
func (c *VideoCursor) GetNextFrame() (*mediatypes.VideoFrame, error) {
	if c.pending != nil {
		f := c.pending
		c.pending = nil
		c.currentFrame++
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
	return frame, nil
}

// SkipFrames implements Cursor.
func (c *VideoCursor) SkipFrames(n int64) (bool, error) {
	return c.skipFrames(n, func() (bool, error) {
		f, err := c.GetNextFrame()
		return f != nil, err
	})
}

func (c *VideoCursor) decodeOne() (*mediatypes.VideoFrame, bool, error) {
	for {
		ok, err := c.readPacket()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			// Flush: ask the decoder for any delayed frames.
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

		vf := c.exportFrame()
		C.av_frame_unref(c.frame)
		return vf, true, nil
	}
}

func (c *VideoCursor) exportFrame() *mediatypes.VideoFrame {
	f := c.frame

	vf := &mediatypes.VideoFrame{
		Width:  int(f.width),
		Height: int(f.height),
	}

	desc := C.av_pix_fmt_desc_get(int32(f.format))
	if desc != nil {
		vf.Format = pixFmtToVideoFormat(desc)
		vf.SubSamplingW = int(desc.log2_chroma_w)
		vf.SubSamplingH = int(desc.log2_chroma_h)

		nPlanes := int(C.av_pix_fmt_count_planes(int32(f.format)))
		planes := make([][]byte, 0, nPlanes)
		strides := make([]int, 0, nPlanes)
		planeHeight := func(p int) int {
			if p == 0 || vf.Format.ColorFamily != 3 /* YUV */ {
				return vf.Height
			}
			return (vf.Height + (1 << uint(desc.log2_chroma_h)) - 1) >> uint(desc.log2_chroma_h)
		}

		for p := 0; p < nPlanes; p++ {
			stride := int(f.linesize[p])
			if stride == 0 {
				break
			}
			size := stride * planeHeight(p)
			data := C.GoBytes(unsafe.Pointer(f.data[p]), C.int(size))
			planes = append(planes, data)
			strides = append(strides, stride)
		}
		vf.Planes = planes
		vf.Strides = strides
	}

	vf.Meta = mediatypes.VideoFrameMeta{
		PTS:           int64(f.pts),
		CodedIndex:    int(f.coded_picture_number),
		DisplayIndex:  int(f.display_picture_number),
		RepeatPict:    int(f.repeat_pict),
		TFF:           f.top_field_first != 0,
		KeyFrame:      f.key_frame != 0,
		PictType:      byte(f.pict_type),
		Matrix:        int(f.colorspace),
		Primaries:     int(f.color_primaries),
		Transfer:      int(f.color_trc),
		ChromaLoc:     int(f.chroma_location),
		ColorRange:    int(f.color_range),
		InterlacedPic: f.interlaced_frame != 0,
	}

	if sd := C.av_frame_get_side_data(f, C.AV_FRAME_DATA_MASTERING_DISPLAY_METADATA); sd != nil {
		md := (*C.AVMasteringDisplayMetadata)(unsafe.Pointer(sd.data))
		if md.has_primaries != 0 {
			vf.Meta.HasMasteringDisplay = true
			for i := 0; i < 3; i++ {
				vf.Meta.MasteringPrimaries[i][0] = mediatypes.Rational{int(md.display_primaries[i][0].num), int(md.display_primaries[i][0].den)}
				vf.Meta.MasteringPrimaries[i][1] = mediatypes.Rational{int(md.display_primaries[i][1].num), int(md.display_primaries[i][1].den)}
			}
			vf.Meta.MasteringWhitePoint[0] = mediatypes.Rational{int(md.white_point[0].num), int(md.white_point[0].den)}
			vf.Meta.MasteringWhitePoint[1] = mediatypes.Rational{int(md.white_point[1].num), int(md.white_point[1].den)}
		}
		if md.has_luminance != 0 {
			vf.Meta.HasMasteringLuma = true
			vf.Meta.MasteringMinLuma = mediatypes.Rational{int(md.min_luminance.num), int(md.min_luminance.den)}
			vf.Meta.MasteringMaxLuma = mediatypes.Rational{int(md.max_luminance.num), int(md.max_luminance.den)}
		}
	}

	if sd := C.av_frame_get_side_data(f, C.AV_FRAME_DATA_CONTENT_LIGHT_LEVEL); sd != nil {
		cll := (*C.AVContentLightMetadata)(unsafe.Pointer(sd.data))
		vf.Meta.HasContentLightLevel = true
		vf.Meta.ContentLightMax = uint(cll.MaxCLL)
		vf.Meta.ContentLightAvg = uint(cll.MaxFALL)
	}

	if sd := C.av_frame_get_side_data(f, C.AV_FRAME_DATA_DOVI_RPU_BUFFER); sd != nil {
		vf.Meta.DolbyVisionRPU = C.GoBytes(unsafe.Pointer(sd.data), sd.size)
	}

	if sd := C.av_frame_get_side_data(f, C.AV_FRAME_DATA_HDR_PLUS); sd != nil {
		vf.Meta.HDR10Plus = C.GoBytes(unsafe.Pointer(sd.data), sd.size)
	}

	if sd := C.av_frame_get_side_data(f, C.AV_FRAME_DATA_ICC_PROFILE); sd != nil {
		vf.Meta.ICCProfile = C.GoBytes(unsafe.Pointer(sd.data), sd.size)
	}

	return vf
}

func pixFmtToVideoFormat(desc *C.AVPixFmtDescriptor) mediatypes.VideoFormat {
	vf := mediatypes.VideoFormat{
		SubSamplingW: int(desc.log2_chroma_w),
		SubSamplingH: int(desc.log2_chroma_h),
		Bits:         int(desc.comp[0].depth),
	}

	flags := desc.flags
	switch {
	case flags&C.AV_PIX_FMT_FLAG_RGB != 0:
		vf.ColorFamily = 2
	case int(desc.nb_components) <= 2:
		vf.ColorFamily = 1
	default:
		vf.ColorFamily = 3
	}

	vf.Alpha = flags&C.AV_PIX_FMT_FLAG_ALPHA != 0
	vf.Float = flags&C.AV_PIX_FMT_FLAG_FLOAT != 0

	return vf
}

// displayMatrixFlip reads the axis flip out of a DISPLAYMATRIX side-data
// buffer's 3x3 fixed-point (16.16) matrix. A rotation-only matrix has a
// positive determinant in its 2x2 linear part; a negative determinant
// means one axis is mirrored, and its sign picks which one.
func displayMatrixFlip(matrix *C.int32_t) (hflip, vflip bool) {
	m := (*[9]C.int32_t)(unsafe.Pointer(matrix))
	det := int64(m[0])*int64(m[4]) - int64(m[1])*int64(m[3])
	if det >= 0 {
		return false, false
	}
	if m[0] < 0 {
		return true, false
	}
	return false, true
}

func ptsToSeconds(pts int64, num, den int) float64 {
	if den == 0 || pts == int64(C.int64_t(C.AV_NOPTS_VALUE)) {
		return 0
	}
	return float64(pts) * float64(num) / float64(den)
}

// Close implements Cursor.
func (c *VideoCursor) Close() error {
	c.closeCommon()
	return nil
}
