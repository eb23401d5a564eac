package indexer

import (
	"testing"

	"framesource/internal/avio/avtest"
)

func TestIndexVideoRecordsFrames(t *testing.T) {
	script := &avtest.Script{
		VideoFrames: []avtest.VideoFrameSpec{
			{PTS: 0, TFF: true, KeyFrame: true, Plane0: []byte{1}},
			{PTS: 1001, TFF: true, Plane0: []byte{2}},
			{PTS: 2002, TFF: true, Plane0: []byte{3}},
		},
		SourceSize: 4096,
	}
	cursor := avtest.NewVideoCursor(script, 0)

	idx, err := IndexVideo(cursor, nil)
	if err != nil {
		t.Fatalf("IndexVideo: %v", err)
	}
	if len(idx.Frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(idx.Frames))
	}
	if !idx.Frames[0].KeyFrame {
		t.Error("frame 0 should be marked as a key frame")
	}
	if idx.Frames[0].Hash == idx.Frames[1].Hash {
		t.Error("distinct frame content should hash differently")
	}
	if idx.LastFrameDuration != 1001 {
		t.Fatalf("LastFrameDuration = %d, want 1001", idx.LastFrameDuration)
	}
}

func TestIndexVideoCancellation(t *testing.T) {
	script := &avtest.Script{
		VideoFrames: []avtest.VideoFrameSpec{
			{PTS: 0, Plane0: []byte{1}},
			{PTS: 1, Plane0: []byte{2}},
		},
	}
	cursor := avtest.NewVideoCursor(script, 0)

	calls := 0
	_, err := IndexVideo(cursor, func(track int, consumed, total int64) bool {
		calls++
		return true
	})
	if err == nil {
		t.Fatal("expected an error when progress requests cancellation")
	}
	if calls != 1 {
		t.Fatalf("progress called %d times, want exactly 1 before bailing", calls)
	}
}

func TestIndexAudioAssignsStartSamples(t *testing.T) {
	script := &avtest.Script{
		AudioFrames: []avtest.AudioFrameSpec{
			{PTS: 0, NumSamples: 1024, Buf0: []byte{1, 2}},
			{PTS: 1024, NumSamples: 1024, Buf0: []byte{3, 4}},
			{PTS: 2048, NumSamples: 512, Buf0: []byte{5, 6}},
		},
	}
	cursor := avtest.NewAudioCursor(script, 0)

	idx, err := IndexAudio(cursor, 0, nil)
	if err != nil {
		t.Fatalf("IndexAudio: %v", err)
	}
	want := []int64{0, 1024, 2048}
	for i, f := range idx.Frames {
		if f.StartSample != want[i] {
			t.Errorf("frame %d StartSample = %d, want %d", i, f.StartSample, want[i])
		}
	}
	if idx.NumSamples != 2560 {
		t.Fatalf("NumSamples = %d, want 2560", idx.NumSamples)
	}
	if len(idx.Gaps) != 0 {
		t.Fatalf("Gaps = %v, want none for a contiguous stream", idx.Gaps)
	}
}

func TestIndexAudioAppliesSampleDelay(t *testing.T) {
	script := &avtest.Script{
		AudioFrames: []avtest.AudioFrameSpec{
			{PTS: 0, NumSamples: 100, Buf0: []byte{1}},
		},
	}
	cursor := avtest.NewAudioCursor(script, 0)

	idx, err := IndexAudio(cursor, 50, nil)
	if err != nil {
		t.Fatalf("IndexAudio: %v", err)
	}
	if idx.Frames[0].StartSample != 50 {
		t.Fatalf("StartSample = %d, want 50 (sample delay applied)", idx.Frames[0].StartSample)
	}
	if idx.NumSamples != 150 {
		t.Fatalf("NumSamples = %d, want 150", idx.NumSamples)
	}
}

func TestIndexAudioRecordsGap(t *testing.T) {
	script := &avtest.Script{
		AudioFrames: []avtest.AudioFrameSpec{
			{PTS: 0, NumSamples: 1024, Buf0: []byte{1}},
			// Jumps ahead by 100 samples more than the previous frame's
			// length predicts, modeling a dropped chunk of audio.
			{PTS: 1124, NumSamples: 1024, Buf0: []byte{2}},
		},
	}
	cursor := avtest.NewAudioCursor(script, 0)

	idx, err := IndexAudio(cursor, 0, nil)
	if err != nil {
		t.Fatalf("IndexAudio: %v", err)
	}
	if len(idx.Gaps) != 1 {
		t.Fatalf("Gaps = %v, want exactly one recorded gap", idx.Gaps)
	}
	if idx.Gaps[0].FrameIndex != 1 {
		t.Fatalf("gap FrameIndex = %d, want 1", idx.Gaps[0].FrameIndex)
	}
	// start_sample must not be perturbed by the detected gap: it still
	// advances by the previous frame's sample count.
	if idx.Frames[1].StartSample != 1024 {
		t.Fatalf("StartSample = %d, want 1024 (gap is informational only)", idx.Frames[1].StartSample)
	}
}
