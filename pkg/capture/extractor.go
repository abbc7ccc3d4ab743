package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/grvsrs/playclaw/pkg/logger"
)

// ErrNoFrames reports a window with no buffered frames. It is a routine
// outcome right after startup or after a capture gap, not a failure.
var ErrNoFrames = errors.New("no frames available in window")

// ExtractorConfig bounds clip size and timing.
type ExtractorConfig struct {
	// MaxClipFrames caps frames per clip; larger selections are
	// stride-downsampled.
	MaxClipFrames int
	// TargetWidth is the output width; wider frames are scaled down,
	// narrower ones are never upscaled.
	TargetWidth int
	// MinFrameDelay floors per-frame display time so short windows don't
	// produce zero-length frames.
	MinFrameDelay time.Duration
	// TargetDuration is the intended wall-clock playback length; per-frame
	// delay is TargetDuration/frames, floored by MinFrameDelay.
	TargetDuration time.Duration
	// InitialLookback is the window used by the first incremental
	// extraction of a session.
	InitialLookback time.Duration
	// GapCeiling caps how far back an incremental extraction may reach
	// after a stall.
	GapCeiling time.Duration
}

// Clip is one encoded, looping animated-image artifact.
type Clip struct {
	Data       []byte
	FrameCount int
	// Duration is the gameplay time the clip covers (newest - oldest
	// selected frame).
	Duration time.Duration
	Start    time.Time
	End      time.Time
}

// ClipExtractor produces clips from a FrameBuffer. It remembers the end of
// its last successful extraction so consecutive calls cover continuous,
// non-overlapping time. Not safe for concurrent use; owned by the capture
// loop alongside its buffer.
type ClipExtractor struct {
	buf     *FrameBuffer
	cfg     ExtractorConfig
	lastEnd time.Time
}

// NewClipExtractor wires an extractor to a buffer.
func NewClipExtractor(buf *FrameBuffer, cfg ExtractorConfig) *ClipExtractor {
	if cfg.MaxClipFrames < 1 {
		cfg.MaxClipFrames = 1
	}
	return &ClipExtractor{buf: buf, cfg: cfg}
}

// LastEnd returns the end time of the last successful extraction (zero if
// none yet).
func (e *ClipExtractor) LastEnd() time.Time { return e.lastEnd }

// ExtractNext extracts the window since the last successful extraction.
// The start defaults to that extraction's end for gapless coverage, but is
// clamped to now-GapCeiling after a stall. The first call of a session
// looks back InitialLookback (further bounded by what the buffer holds,
// since selection only sees buffered frames).
func (e *ClipExtractor) ExtractNext(now time.Time) (*Clip, error) {
	start := e.lastEnd
	if start.IsZero() {
		start = now.Add(-e.cfg.InitialLookback)
	} else if now.Sub(start) > e.cfg.GapCeiling {
		start = now.Add(-e.cfg.GapCeiling)
	}
	return e.Extract(start, now)
}

// Extract selects buffered frames with start <= t <= end (inclusive),
// downsamples and resizes them per config, and encodes a looping GIF.
// An empty selection returns ErrNoFrames and leaves the incremental state
// untouched.
func (e *ClipExtractor) Extract(start, end time.Time) (*Clip, error) {
	selected := e.buf.FramesInWindow(start, end)
	if len(selected) == 0 {
		return nil, ErrNoFrames
	}

	sampled := downsample(selected, e.cfg.MaxClipFrames)
	span := selected[len(selected)-1].Timestamp.Sub(selected[0].Timestamp)

	delay := e.frameDelayCS(len(sampled))
	anim := &gif.GIF{LoopCount: 0}
	for _, f := range sampled {
		pal, err := e.palettize(f.Image)
		if err != nil {
			return nil, fmt.Errorf("encode frame %d: %w", f.Number, err)
		}
		anim.Image = append(anim.Image, pal)
		anim.Delay = append(anim.Delay, delay)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("encode gif: %w", err)
	}

	e.lastEnd = end
	logger.DebugCF("capture", "Clip extracted", map[string]interface{}{
		"frames": len(sampled), "selected": len(selected),
		"span_ms": span.Milliseconds(), "bytes": buf.Len(),
	})
	return &Clip{
		Data:       buf.Bytes(),
		FrameCount: len(sampled),
		Duration:   span,
		Start:      start,
		End:        end,
	}, nil
}

// downsample thins frames to at most max using a fixed stride, keeping the
// first and last frames so the clip still spans the whole window.
func downsample(frames []*TimestampedFrame, max int) []*TimestampedFrame {
	n := len(frames)
	if n <= max {
		return frames
	}
	// Ceiling stride keeps the sample count within max while spreading
	// picks across the whole selection rather than truncating the tail.
	stride := (n + max - 1) / max
	out := make([]*TimestampedFrame, 0, max)
	for i := 0; i < n; i += stride {
		out = append(out, frames[i])
	}
	if out[len(out)-1] != frames[n-1] {
		if len(out) < max {
			out = append(out, frames[n-1])
		} else {
			out[len(out)-1] = frames[n-1]
		}
	}
	return out
}

// frameDelayCS computes the per-frame GIF delay in centiseconds:
// max(MinFrameDelay, TargetDuration/frames).
func (e *ClipExtractor) frameDelayCS(frames int) int {
	per := e.cfg.TargetDuration / time.Duration(frames)
	if per < e.cfg.MinFrameDelay {
		per = e.cfg.MinFrameDelay
	}
	cs := int(per / (10 * time.Millisecond))
	if cs < 1 {
		cs = 1
	}
	return cs
}

// palettize resizes (down only) and quantizes one frame for GIF encoding.
func (e *ClipExtractor) palettize(src image.Image) (*image.Paletted, error) {
	if src == nil {
		return nil, fmt.Errorf("nil frame image")
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty frame image")
	}

	if e.cfg.TargetWidth > 0 && w > e.cfg.TargetWidth {
		scaledH := h * e.cfg.TargetWidth / w
		if scaledH < 1 {
			scaledH = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, e.cfg.TargetWidth, scaledH))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, xdraw.Src, nil)
		src = dst
		bounds = dst.Bounds()
	}

	pal := image.NewPaletted(image.Rect(0, 0, bounds.Dx(), bounds.Dy()), palette.Plan9)
	draw.FloydSteinberg.Draw(pal, pal.Bounds(), src, bounds.Min)
	return pal, nil
}
