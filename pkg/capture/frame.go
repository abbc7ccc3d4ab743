// Package capture implements the rolling video buffer, on-demand clip
// extraction, and the capture loop that feeds them from an emulator
// display. The buffer is owned by exactly one goroutine (the loop);
// everything else talks to it through request/reply channels.
package capture

import (
	"image"
	"time"
)

// TimestampedFrame is one captured frame. Number is strictly increasing
// within a capture session.
type TimestampedFrame struct {
	Image     image.Image
	Timestamp time.Time
	Number    uint64
}

// FrameBuffer is a fixed-capacity time-ordered ring of frames. Once at
// capacity, pushing evicts the oldest frame. Not safe for concurrent use;
// the capture loop is its sole owner.
type FrameBuffer struct {
	frames []*TimestampedFrame
	head   int // index of the oldest frame
	size   int
}

// NewFrameBuffer creates a ring holding at most capacity frames.
// A typical capacity is fps * windowSeconds.
func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameBuffer{frames: make([]*TimestampedFrame, capacity)}
}

// Push appends a frame, evicting the oldest when full.
func (b *FrameBuffer) Push(f *TimestampedFrame) {
	if b.size < len(b.frames) {
		b.frames[(b.head+b.size)%len(b.frames)] = f
		b.size++
		return
	}
	b.frames[b.head] = f
	b.head = (b.head + 1) % len(b.frames)
}

// Len returns the number of buffered frames.
func (b *FrameBuffer) Len() int { return b.size }

// Capacity returns the fixed ring capacity.
func (b *FrameBuffer) Capacity() int { return len(b.frames) }

// Oldest returns the oldest buffered frame, or nil when empty.
func (b *FrameBuffer) Oldest() *TimestampedFrame {
	if b.size == 0 {
		return nil
	}
	return b.frames[b.head]
}

// Newest returns the most recently pushed frame, or nil when empty.
func (b *FrameBuffer) Newest() *TimestampedFrame {
	if b.size == 0 {
		return nil
	}
	return b.frames[(b.head+b.size-1)%len(b.frames)]
}

// Duration is the time span between the oldest and newest frame. Fewer
// than two frames means zero.
func (b *FrameBuffer) Duration() time.Duration {
	if b.size < 2 {
		return 0
	}
	return b.Newest().Timestamp.Sub(b.Oldest().Timestamp)
}

// Frames returns an insertion-ordered snapshot of frame pointers. Pixel
// data is never copied; callers must treat frames as read-only.
func (b *FrameBuffer) Frames() []*TimestampedFrame {
	out := make([]*TimestampedFrame, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.frames[(b.head+i)%len(b.frames)]
	}
	return out
}

// FramesInWindow returns buffered frames with start <= timestamp <= end,
// inclusive on both ends, in insertion order.
func (b *FrameBuffer) FramesInWindow(start, end time.Time) []*TimestampedFrame {
	var out []*TimestampedFrame
	for i := 0; i < b.size; i++ {
		f := b.frames[(b.head+i)%len(b.frames)]
		if f.Timestamp.Before(start) || f.Timestamp.After(end) {
			continue
		}
		out = append(out, f)
	}
	return out
}
