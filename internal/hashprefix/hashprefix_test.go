package hashprefix

import "testing"

func TestSumIsDeterministic(t *testing.T) {
	buf := []byte("a short decoded frame buffer")
	a := Sum(buf)
	b := Sum(buf)
	if a != b {
		t.Fatal("Sum should be deterministic for identical input")
	}
}

func TestSumDistinguishesContent(t *testing.T) {
	a := Sum([]byte{1, 2, 3})
	b := Sum([]byte{1, 2, 4})
	if a == b {
		t.Fatal("distinct buffers should not collide")
	}
}

func TestSumTruncatesToMaxBytes(t *testing.T) {
	big := make([]byte, maxBytes+1000)
	for i := range big {
		big[i] = byte(i)
	}
	truncated := make([]byte, maxBytes)
	copy(truncated, big)

	if Sum(big) != Sum(truncated) {
		t.Fatal("Sum should only hash the first maxBytes bytes")
	}
}

func TestSumVideoPlaneEmpty(t *testing.T) {
	if got := SumVideoPlane(nil); got != ([Size]byte{}) {
		t.Fatalf("SumVideoPlane(nil) = %v, want zero value", got)
	}
}

func TestSumAudioBufferUsesFirstChannel(t *testing.T) {
	left := []byte{9, 9, 9}
	right := []byte{1, 1, 1}
	got := SumAudioBuffer([][]byte{left, right})
	want := Sum(left)
	if got != want {
		t.Fatal("SumAudioBuffer should hash only the first channel")
	}
}
