// Package hashprefix computes the short content hash used to re-identify
// a decoded frame after a seek lands somewhere other than where it was
// requested. The hash is
// taken over at most the first 4096 bytes of the frame's native decoded
// buffer: the first plane for video (pre-RFF-merge), the native
// interleaved/planar sample buffer for audio. 16 bytes is enough to
// disambiguate neighboring frames in a single track without the cost of
// hashing the full picture.
package hashprefix

import "golang.org/x/crypto/blake2b"

// Size is the length, in bytes, of the digest Sum returns.
const Size = 16

// maxBytes bounds how much of the buffer is hashed
const maxBytes = 4096

// Sum computes the frozen content-hash digest over buf, truncating to the
// first maxBytes bytes.
func Sum(buf []byte) [Size]byte {
	if len(buf) > maxBytes {
		buf = buf[:maxBytes]
	}

	h, err := blake2b.New(Size, nil)
	if err != nil {
		// Size (16) is within blake2b's valid digest size range
		// (1..64) so New never fails for a nil key; panic would only
		// fire on a programming mistake.
		panic(err)
	}
	h.Write(buf)

	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SumVideoPlane hashes a video frame's first plane, the frame-identity
// input for video tracks.
func SumVideoPlane(planes [][]byte) [Size]byte {
	if len(planes) == 0 {
		return [Size]byte{}
	}
	return Sum(planes[0])
}

// SumAudioBuffer hashes an audio frame's native sample buffer: for
// planar audio this is the first channel, so packed and planar layouts
// truncate and hash the same way.
func SumAudioBuffer(data [][]byte) [Size]byte {
	if len(data) == 0 {
		return [Size]byte{}
	}
	return Sum(data[0])
}
