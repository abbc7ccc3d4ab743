package capture

import (
	"image"
	"testing"
	"time"
)

func testFrame(num uint64, ts time.Time) *TimestampedFrame {
	return &TimestampedFrame{
		Image:     image.NewRGBA(image.Rect(0, 0, 4, 4)),
		Timestamp: ts,
		Number:    num,
	}
}

func TestFrameBufferEviction(t *testing.T) {
	const capacity, extra = 10, 7
	buf := NewFrameBuffer(capacity)
	base := time.Unix(1700000000, 0)

	for i := 0; i < capacity+extra; i++ {
		buf.Push(testFrame(uint64(i+1), base.Add(time.Duration(i)*100*time.Millisecond)))
	}

	if buf.Len() != capacity {
		t.Fatalf("Len() = %d, want %d", buf.Len(), capacity)
	}
	frames := buf.Frames()
	for i, f := range frames {
		if want := uint64(extra + i + 1); f.Number != want {
			t.Fatalf("frames[%d].Number = %d, want %d (oldest must evict first)", i, f.Number, want)
		}
	}
	if buf.Oldest().Number != uint64(extra+1) {
		t.Errorf("Oldest().Number = %d, want %d", buf.Oldest().Number, extra+1)
	}
	if buf.Newest().Number != uint64(capacity+extra) {
		t.Errorf("Newest().Number = %d, want %d", buf.Newest().Number, capacity+extra)
	}
}

func TestFrameBufferDuration(t *testing.T) {
	buf := NewFrameBuffer(10)
	base := time.Unix(1700000000, 0)

	if buf.Duration() != 0 {
		t.Errorf("empty buffer Duration() = %v, want 0", buf.Duration())
	}
	buf.Push(testFrame(1, base))
	if buf.Duration() != 0 {
		t.Errorf("single-frame Duration() = %v, want 0", buf.Duration())
	}
	buf.Push(testFrame(2, base.Add(300*time.Millisecond)))
	buf.Push(testFrame(3, base.Add(900*time.Millisecond)))
	if got := buf.Duration(); got != 900*time.Millisecond {
		t.Errorf("Duration() = %v, want 900ms", got)
	}
}

func TestFramesInWindowInclusive(t *testing.T) {
	buf := NewFrameBuffer(10)
	base := time.Unix(1700000000, 0)
	for i := 0; i < 5; i++ {
		buf.Push(testFrame(uint64(i+1), base.Add(time.Duration(i)*time.Second)))
	}

	// Window endpoints land exactly on frame timestamps: both included.
	got := buf.FramesInWindow(base.Add(1*time.Second), base.Add(3*time.Second))
	if len(got) != 3 {
		t.Fatalf("FramesInWindow returned %d frames, want 3", len(got))
	}
	if got[0].Number != 2 || got[2].Number != 4 {
		t.Errorf("window frames = %d..%d, want 2..4", got[0].Number, got[2].Number)
	}

	if got := buf.FramesInWindow(base.Add(time.Hour), base.Add(2*time.Hour)); len(got) != 0 {
		t.Errorf("disjoint window returned %d frames", len(got))
	}
}
