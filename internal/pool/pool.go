// Package pool implements the decoder pool: up to MaxCursors independent
// cursors, each stamped with a monotonically increasing last-use
// sequence number, selected by a preroll/skip-ahead/evict policy.
package pool

import (
	"framesource/internal/decoder"
	"framesource/internal/mediatypes"
)

// DefaultMaxCursors is the default cap on concurrently open cursors.
const DefaultMaxCursors = 4

// DefaultMaxSkipAhead bounds how far ahead of a request a cursor may sit
// and still be reused by decoding forward, before the pool prefers to
// spawn a fresh cursor via seek instead.
const DefaultMaxSkipAhead = 1 << 20

// slot holds one pooled cursor plus its pool bookkeeping.
type slot[C decoder.Cursor] struct {
	cursor  C
	lastUse int64
	full    bool
}

// Pool manages up to MaxCursors cursors of a single concrete type (either
// decoder.VideoCursor or decoder.AudioCursor), opened through Opener.
// Generic over C so the selection/eviction policy is written once and
// instantiated for both media types.
type Pool[C decoder.Cursor] struct {
	Opener       func(mediatypes.SourceDescriptor) (C, error)
	Desc         mediatypes.SourceDescriptor
	MaxCursors   int
	MaxSkipAhead int64

	slots    []slot[C]
	sequence int64
}

// New builds a pool that opens cursors for desc via opener.
func New[C decoder.Cursor](opener func(mediatypes.SourceDescriptor) (C, error), desc mediatypes.SourceDescriptor) *Pool[C] {
	maxCursors := DefaultMaxCursors
	return &Pool[C]{
		Opener:       opener,
		Desc:         desc,
		MaxCursors:   maxCursors,
		MaxSkipAhead: DefaultMaxSkipAhead,
		slots:        make([]slot[C], maxCursors),
	}
}

// Selection reports which existing cursor (if any) the policy picked, and
// whether the caller must instead open a fresh cursor via seek.
type Selection[C decoder.Cursor] struct {
	Cursor    C
	Found     bool
	NeedsSeek bool
}

// Select applies a three-step policy for a request targeting frame N:
//  1. the cursor with the smallest non-negative N-P_i, P_i <= N, within preRoll;
//  2. else the cursor with the smallest non-negative N-P_i within MaxSkipAhead;
//  3. else the caller must evict the LRU slot and open a fresh cursor.
//
// Select does not itself bump last_use; call Touch once the caller has
// decided to actually use the returned cursor.
func (p *Pool[C]) Select(n int64, preRoll int64) Selection[C] {
	if sel, ok := p.bestWithin(n, preRoll); ok {
		return Selection[C]{Cursor: sel, Found: true}
	}
	if sel, ok := p.bestWithin(n, p.MaxSkipAhead); ok {
		return Selection[C]{Cursor: sel, Found: true}
	}
	return Selection[C]{NeedsSeek: true}
}

func (p *Pool[C]) bestWithin(n, bound int64) (C, bool) {
	var best C
	bestDelta := int64(-1)
	haveBest := false

	for i := range p.slots {
		s := &p.slots[i]
		if !s.full {
			continue
		}
		pos := s.cursor.CurrentFrame()
		delta := n - pos
		if delta < 0 || delta > bound {
			continue
		}
		if !haveBest || delta < bestDelta {
			best = s.cursor
			bestDelta = delta
			haveBest = true
		}
	}

	return best, haveBest
}

// Touch records that cursor was just used, bumping its last-use stamp.
func (p *Pool[C]) Touch(cursor C) {
	for i := range p.slots {
		s := &p.slots[i]
		if s.full && sameCursor(s.cursor, cursor) {
			p.sequence++
			s.lastUse = p.sequence
			return
		}
	}
}

// OpenFresh evicts the least-recently-used slot (if every slot is full)
// and opens a new cursor in its place step 3. The
// evicted cursor is closed.
func (p *Pool[C]) OpenFresh() (C, error) {
	var zero C

	if p.MaxCursors > 0 && len(p.slots) != p.MaxCursors {
		for i := p.MaxCursors; i < len(p.slots); i++ {
			if p.slots[i].full {
				p.slots[i].cursor.Close()
			}
		}
		resized := make([]slot[C], p.MaxCursors)
		copy(resized, p.slots)
		p.slots = resized
	}

	idx := p.emptySlot()
	if idx < 0 {
		idx = p.lruSlot()
		p.slots[idx].cursor.Close()
	}

	c, err := p.Opener(p.Desc)
	if err != nil {
		p.slots[idx] = slot[C]{}
		return zero, err
	}

	p.sequence++
	p.slots[idx] = slot[C]{cursor: c, lastUse: p.sequence, full: true}
	return c, nil
}

func (p *Pool[C]) emptySlot() int {
	for i := range p.slots {
		if !p.slots[i].full {
			return i
		}
	}
	return -1
}

func (p *Pool[C]) lruSlot() int {
	idx := 0
	min := p.slots[0].lastUse
	for i := 1; i < len(p.slots); i++ {
		if p.slots[i].lastUse < min {
			min = p.slots[i].lastUse
			idx = i
		}
	}
	return idx
}

// Close releases every pooled cursor. Safe to call once, on source drop.
func (p *Pool[C]) Close() {
	for i := range p.slots {
		if p.slots[i].full {
			p.slots[i].cursor.Close()
			p.slots[i] = slot[C]{}
		}
	}
}

// DiscardAll closes and clears every cursor without closing the pool
// itself, used by the seek engine's transition into linear mode.
func (p *Pool[C]) DiscardAll() {
	p.Close()
}

// sameCursor compares two interface values holding comparable concrete
// pointer types, which decoder.VideoCursor/AudioCursor implementations
// always are (*avio.VideoCursor, *avio.AudioCursor, or their avtest
// fakes).
func sameCursor[C decoder.Cursor](a, b C) bool {
	var ai, bi any = a, b
	return ai == bi
}
