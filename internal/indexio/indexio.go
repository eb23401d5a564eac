// Package indexio persists a track index to a side-car cache file and
// reloads it. The wire format is a fixed-layout little-endian record;
// this is the one component in the module implemented directly on
// encoding/binary and hash/crc32 rather than a third-party library — see
// DESIGN.md for why no corpus dependency fits a byte-exact format.
package indexio

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"framesource/internal/errs"
	"framesource/internal/trackindex"
)

// magic identifies a framesource index file; format bumps Version, never
// reuses a retired one.
var magic = [4]byte{'F', 'S', 'I', 'X'}

// Version is the current on-disk format version. Bumping it invalidates
// every previously written cache file: on a version mismatch, LoadVideo
// and LoadAudio ignore the file and the caller re-indexes.
const Version = 1

// SaveVideo atomically writes a video track index to path.
func SaveVideo(path string, hdr trackindex.Header, idx trackindex.VideoIndex) error {
	var buf bytes.Buffer
	writeHeader(&buf, hdr)
	binary.Write(&buf, binary.LittleEndian, uint64(len(idx.Frames)))
	for _, f := range idx.Frames {
		binary.Write(&buf, binary.LittleEndian, f.PTS)
		binary.Write(&buf, binary.LittleEndian, f.RepeatPict)
		binary.Write(&buf, binary.LittleEndian, boolToByte(f.KeyFrame))
		binary.Write(&buf, binary.LittleEndian, boolToByte(f.TFF))
		buf.Write(f.Hash[:])
	}
	binary.Write(&buf, binary.LittleEndian, idx.LastFrameDuration)
	binary.Write(&buf, binary.LittleEndian, idx.NumRFFFrames)

	appendCRC(&buf)
	return atomicWrite(path, buf.Bytes())
}

// LoadVideo reads a previously saved video track index. ok is false (with
// a nil error) whenever the header doesn't match want, the file is
// absent, or the record is corrupt — every such case falls back to
// re-indexing rather than failing the open.
func LoadVideo(path string, want trackindex.Header) (idx trackindex.VideoIndex, ok bool, err error) {
	raw, hdr, body, valid, rerr := readAndValidate(path, want)
	if rerr != nil {
		return idx, false, rerr
	}
	if !valid {
		return idx, false, nil
	}
	_ = raw
	_ = hdr

	r := bytes.NewReader(body)
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return idx, false, nil
	}

	idx.Frames = make([]trackindex.VideoFrameInfo, 0, count)
	for i := uint64(0); i < count; i++ {
		var f trackindex.VideoFrameInfo
		var kf, tff byte
		if err := binary.Read(r, binary.LittleEndian, &f.PTS); err != nil {
			return trackindex.VideoIndex{}, false, nil
		}
		if err := binary.Read(r, binary.LittleEndian, &f.RepeatPict); err != nil {
			return trackindex.VideoIndex{}, false, nil
		}
		if err := binary.Read(r, binary.LittleEndian, &kf); err != nil {
			return trackindex.VideoIndex{}, false, nil
		}
		if err := binary.Read(r, binary.LittleEndian, &tff); err != nil {
			return trackindex.VideoIndex{}, false, nil
		}
		if _, err := io.ReadFull(r, f.Hash[:]); err != nil {
			return trackindex.VideoIndex{}, false, nil
		}
		f.KeyFrame = kf != 0
		f.TFF = tff != 0
		idx.Frames = append(idx.Frames, f)
	}

	if err := binary.Read(r, binary.LittleEndian, &idx.LastFrameDuration); err != nil {
		return trackindex.VideoIndex{}, false, nil
	}
	if err := binary.Read(r, binary.LittleEndian, &idx.NumRFFFrames); err != nil {
		return trackindex.VideoIndex{}, false, nil
	}

	return idx, true, nil
}

// SaveAudio atomically writes an audio track index to path. Gaps are
// informational and are not part of the persisted
// format; they are recomputed on re-index rather than cached, so a gap
// detector change doesn't require bumping Version.
func SaveAudio(path string, hdr trackindex.Header, idx trackindex.AudioIndex) error {
	var buf bytes.Buffer
	writeHeader(&buf, hdr)
	binary.Write(&buf, binary.LittleEndian, uint64(len(idx.Frames)))
	for _, f := range idx.Frames {
		binary.Write(&buf, binary.LittleEndian, f.PTS)
		binary.Write(&buf, binary.LittleEndian, f.StartSample)
		binary.Write(&buf, binary.LittleEndian, f.LengthSamples)
		buf.Write(f.Hash[:])
	}
	binary.Write(&buf, binary.LittleEndian, idx.NumSamples)

	appendCRC(&buf)
	return atomicWrite(path, buf.Bytes())
}

// LoadAudio reads a previously saved audio track index.
func LoadAudio(path string, want trackindex.Header) (idx trackindex.AudioIndex, ok bool, err error) {
	_, _, body, valid, rerr := readAndValidate(path, want)
	if rerr != nil {
		return idx, false, rerr
	}
	if !valid {
		return idx, false, nil
	}

	r := bytes.NewReader(body)
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return idx, false, nil
	}

	idx.Frames = make([]trackindex.AudioFrameInfo, 0, count)
	for i := uint64(0); i < count; i++ {
		var f trackindex.AudioFrameInfo
		if err := binary.Read(r, binary.LittleEndian, &f.PTS); err != nil {
			return trackindex.AudioIndex{}, false, nil
		}
		if err := binary.Read(r, binary.LittleEndian, &f.StartSample); err != nil {
			return trackindex.AudioIndex{}, false, nil
		}
		if err := binary.Read(r, binary.LittleEndian, &f.LengthSamples); err != nil {
			return trackindex.AudioIndex{}, false, nil
		}
		if _, err := io.ReadFull(r, f.Hash[:]); err != nil {
			return trackindex.AudioIndex{}, false, nil
		}
		idx.Frames = append(idx.Frames, f)
	}

	if err := binary.Read(r, binary.LittleEndian, &idx.NumSamples); err != nil {
		return trackindex.AudioIndex{}, false, nil
	}

	return idx, true, nil
}

func writeHeader(buf *bytes.Buffer, hdr trackindex.Header) {
	buf.Write(magic[:])
	binary.Write(buf, binary.LittleEndian, uint32(Version))
	binary.Write(buf, binary.LittleEndian, hdr.SourceSize)
	binary.Write(buf, binary.LittleEndian, hdr.SourceMTime)
	binary.Write(buf, binary.LittleEndian, hdr.Track)
	binary.Write(buf, binary.LittleEndian, uint32(len(hdr.CodecFingerprint)))
	buf.Write(hdr.CodecFingerprint)
}

// readAndValidate loads path, checks the magic/version/CRC and the header
// against want, and returns the body (everything after the header, up to
// but excluding the trailing CRC) on success.
func readAndValidate(path string, want trackindex.Header) (raw []byte, hdr trackindex.Header, body []byte, ok bool, err error) {
	raw, err = os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, hdr, nil, false, nil
		}
		return nil, hdr, nil, false, errs.NewCacheError(path, err)
	}

	if len(raw) < len(magic)+4+4 {
		return nil, hdr, nil, false, nil
	}
	if !bytes.Equal(raw[:4], magic[:]) {
		return nil, hdr, nil, false, nil
	}

	if len(raw) < 4 {
		return nil, hdr, nil, false, nil
	}
	payload := raw[:len(raw)-4]
	wantCRC := binary.LittleEndian.Uint32(raw[len(raw)-4:])
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return nil, hdr, nil, false, nil
	}

	r := bytes.NewReader(payload[4:])
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil || version != Version {
		return nil, hdr, nil, false, nil
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr.SourceSize); err != nil {
		return nil, hdr, nil, false, nil
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr.SourceMTime); err != nil {
		return nil, hdr, nil, false, nil
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr.Track); err != nil {
		return nil, hdr, nil, false, nil
	}
	var fpLen uint32
	if err := binary.Read(r, binary.LittleEndian, &fpLen); err != nil {
		return nil, hdr, nil, false, nil
	}
	hdr.CodecFingerprint = make([]byte, fpLen)
	if _, err := io.ReadFull(r, hdr.CodecFingerprint); err != nil {
		return nil, hdr, nil, false, nil
	}

	if !hdr.Equal(want) {
		return nil, hdr, nil, false, nil
	}

	rest := make([]byte, r.Len())
	io.ReadFull(r, rest)
	return raw, hdr, rest, true, nil
}

// atomicWrite writes data to a temp file in path's directory, named with
// a random UUID suffix so concurrent writers (e.g. two processes indexing
// the same file) never collide, then renames it over path.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, filepath.Base(path)+"."+uuid.NewString()+".tmp")

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.NewCacheError(path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.NewCacheError(path, err)
	}
	return nil
}

// appendCRC appends the CRC32 (IEEE) of buf's current contents as a
// trailing field covering everything written above it.
func appendCRC(buf *bytes.Buffer) {
	sum := crc32.ChecksumIEEE(buf.Bytes())
	binary.Write(buf, binary.LittleEndian, sum)
}

func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
