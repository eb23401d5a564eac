// Package rff implements the RFF (Repeat-First-Field) expander: it turns
// the underlying decoded-frame stream into the telecined/pulldown
// display sequence, using each frame's RepeatPict and TFF metadata.
package rff

import "framesource/internal/trackindex"

// State describes whether an Expander's field map is built and in use.
type State int

const (
	// Uninitialized: the field map has not yet been built.
	Uninitialized State = iota
	// Ready: the field map is built and in use.
	Ready
	// Unused: every frame has repeat_pict == 0, so display-indexed
	// access is identical to frame-indexed access and no map is needed.
	Unused
)

// Field selects which part of an underlying frame a display frame is
// built from.
type Field int

const (
	// WholeFrame means the display frame is exactly one underlying
	// frame, no field synthesis needed.
	WholeFrame Field = iota
	// TopField selects the top field of an underlying frame.
	TopField
	// BottomField selects the bottom field of an underlying frame.
	BottomField
)

// DisplayFrame describes how to produce one entry of the RFF-expanded
// display sequence. FrameB is -1 unless this display frame is synthesized
// by merging a field from FrameA with a field from FrameB.
type DisplayFrame struct {
	FrameA int
	FieldA Field
	FrameB int
	FieldB Field
}

// Expander holds the built (frame_index, field_selector) map for one
// video track.
type Expander struct {
	state   State
	display []DisplayFrame
}

// NewExpander builds the expansion eagerly from a completed video index,
// keeping Expander's public methods allocation-free and panic-free
// without a separate "not yet built" error path.
func NewExpander(frames []trackindex.VideoFrameInfo) *Expander {
	e := &Expander{}

	allZero := true
	for _, f := range frames {
		if f.RepeatPict != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		e.state = Unused
		return e
	}

	type fieldRef struct {
		frame  int
		parity int // 0 = top, 1 = bottom
	}

	var seq []fieldRef
	for i, f := range frames {
		repeat := f.RepeatPict
		if repeat < 0 {
			repeat = 0
		}
		count := int(repeat) + 2

		first := 0
		if !f.TFF {
			first = 1
		}
		for k := 0; k < count; k++ {
			seq = append(seq, fieldRef{frame: i, parity: (first + k) % 2})
		}
	}

	var out []DisplayFrame
	for idx := 0; idx < len(seq); idx += 2 {
		a := seq[idx]
		if idx+1 >= len(seq) {
			out = append(out, DisplayFrame{FrameA: a.frame, FieldA: WholeFrame, FrameB: -1})
			break
		}
		b := seq[idx+1]
		if a.frame == b.frame {
			out = append(out, DisplayFrame{FrameA: a.frame, FieldA: WholeFrame, FrameB: -1})
		} else {
			out = append(out, DisplayFrame{
				FrameA: a.frame, FieldA: parityToField(a.parity),
				FrameB: b.frame, FieldB: parityToField(b.parity),
			})
		}
	}

	e.state = Ready
	e.display = out
	return e
}

func parityToField(parity int) Field {
	if parity == 0 {
		return TopField
	}
	return BottomField
}

// State reports the expander's current state.
func (e *Expander) State() State { return e.state }

// NumRFFFrames is the size of the display sequence: the total count of
// field-pairs produced by expansion.
func (e *Expander) NumRFFFrames() int64 {
	if e.state == Unused {
		return -1
	}
	return int64(len(e.display))
}

// At returns the DisplayFrame describing display index d. If the
// expander is Unused, display indices are identical to frame indices.
func (e *Expander) At(d int64) DisplayFrame {
	if e.state == Unused {
		return DisplayFrame{FrameA: int(d), FieldA: WholeFrame, FrameB: -1}
	}
	return e.display[d]
}
