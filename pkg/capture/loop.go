package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grvsrs/playclaw/pkg/logger"
)

// ErrNotRunning is returned for requests made while the loop is not in the
// Running state.
var ErrNotRunning = errors.New("capture loop is not running")

// ErrRequestQueueFull is returned when the bounded request queue cannot
// accept another request without blocking the caller.
var ErrRequestQueueFull = errors.New("capture request queue is full")

// State is the capture loop lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateInitializing
	StateRunning
	StateStopping
	StateStopped
	// StateError is absorbing: entered from Initializing or Running on an
	// unrecoverable backend failure. The hosting process stays up; the
	// supervisor decides whether to build a fresh loop.
	StateError
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// FrameSource abstracts the capture backend (emulator screen, window
// handle, test generator).
type FrameSource interface {
	// Init acquires the backend. Failure is fatal to the loop instance.
	Init(ctx context.Context) error
	// Capture grabs one frame. A transient error skips the tick.
	Capture(ctx context.Context) (image.Image, error)
	// Close releases the backend.
	Close() error
}

// Status is the supervisor-facing snapshot.
type Status struct {
	Running               bool    `json:"running"`
	State                 string  `json:"state"`
	FrameCount            uint64  `json:"frame_count"`
	BufferFrames          int     `json:"buffer_frames"`
	BufferDurationSeconds float64 `json:"buffer_duration_seconds"`
	CaptureFPS            int     `json:"capture_fps"`
}

type requestKind int

const (
	reqClipNext requestKind = iota
	reqClipWindow
	reqStatus
)

type request struct {
	kind       requestKind
	start, end time.Time
	// reply has capacity 1 so the loop's send never blocks, even when the
	// requester has timed out and walked away.
	reply chan response
}

type response struct {
	clip   *Clip
	status Status
	err    error
}

// LoopConfig sizes the loop and its buffer/extractor.
type LoopConfig struct {
	FPS           int
	WindowSeconds int
	Extractor     ExtractorConfig
}

// Loop continuously samples a FrameSource at a fixed rate into a
// FrameBuffer, and services clip/status requests between ticks. The
// buffer and extractor are confined to the loop goroutine; all access
// goes through the request channel.
type Loop struct {
	source FrameSource
	cfg    LoopConfig

	buf       *FrameBuffer
	extractor *ClipExtractor

	requests chan *request
	state    atomic.Int32
	frames   atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// requestQueueCap bounds pending requests; the loop drains the queue
// between capture ticks, so a small bound keeps added latency low.
const requestQueueCap = 8

// NewLoop builds a loop around a source; nothing runs until Start.
func NewLoop(source FrameSource, cfg LoopConfig) *Loop {
	if cfg.FPS < 1 {
		cfg.FPS = 1
	}
	buf := NewFrameBuffer(cfg.FPS * cfg.WindowSeconds)
	return &Loop{
		source:    source,
		cfg:       cfg,
		buf:       buf,
		extractor: NewClipExtractor(buf, cfg.Extractor),
		requests:  make(chan *request, requestQueueCap),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State { return State(l.state.Load()) }

// Start initializes the backend synchronously, then runs the capture loop
// in its own goroutine. An initialization failure moves the loop to Error
// and is returned; the loop never enters Running.
func (l *Loop) Start(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(StateCreated), int32(StateInitializing)) {
		return fmt.Errorf("capture loop already started (state %s)", l.State())
	}
	if err := l.source.Init(ctx); err != nil {
		l.state.Store(int32(StateError))
		close(l.done)
		return fmt.Errorf("initialize capture backend: %w", err)
	}

	l.state.Store(int32(StateRunning))
	logger.InfoCF("capture", "Capture loop running", map[string]interface{}{
		"fps": l.cfg.FPS, "buffer_capacity": l.buf.Capacity(),
	})
	go l.run(ctx)
	return nil
}

// Stop signals the loop and waits for it to release the backend, or for
// ctx to expire. Safe to call multiple times, including concurrently.
func (l *Loop) Stop(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for capture loop to stop: %w", ctx.Err())
	}
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(time.Second / time.Duration(l.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return
		case <-l.stop:
			l.shutdown()
			return
		case <-ticker.C:
			l.captureOne(ctx)
			l.drainRequests(time.Now())
		}
	}
}

func (l *Loop) shutdown() {
	l.state.Store(int32(StateStopping))
	if err := l.source.Close(); err != nil {
		logger.WarnCF("capture", "Backend close failed", map[string]interface{}{"err": err.Error()})
	}
	l.state.Store(int32(StateStopped))
	logger.InfoCF("capture", "Capture loop stopped", map[string]interface{}{
		"frames_captured": l.frames.Load(),
	})
}

// captureOne grabs a single frame. Transient failures are logged and
// skipped; they never stop the loop.
func (l *Loop) captureOne(ctx context.Context) {
	img, err := l.source.Capture(ctx)
	if err != nil {
		logger.WarnCF("capture", "Frame capture failed, skipping tick", map[string]interface{}{
			"err": err.Error(),
		})
		return
	}
	n := l.frames.Add(1)
	l.buf.Push(&TimestampedFrame{Image: img, Timestamp: time.Now(), Number: n})
}

// drainRequests services every pending request without blocking, so
// request servicing never delays the next scheduled capture by more than
// the work already queued.
func (l *Loop) drainRequests(now time.Time) {
	for {
		select {
		case req := <-l.requests:
			l.serve(req, now)
		default:
			return
		}
	}
}

func (l *Loop) serve(req *request, now time.Time) {
	var resp response
	switch req.kind {
	case reqClipNext:
		resp.clip, resp.err = l.extractor.ExtractNext(now)
	case reqClipWindow:
		resp.clip, resp.err = l.extractor.Extract(req.start, req.end)
	case reqStatus:
		resp.status = l.statusLocked()
	}
	// Non-blocking: the requester may have timed out; its loss.
	select {
	case req.reply <- resp:
	default:
	}
}

// statusLocked builds the snapshot; called only from the loop goroutine.
func (l *Loop) statusLocked() Status {
	return Status{
		Running:               l.State() == StateRunning,
		State:                 l.State().String(),
		FrameCount:            l.frames.Load(),
		BufferFrames:          l.buf.Len(),
		BufferDurationSeconds: l.buf.Duration().Seconds(),
		CaptureFPS:            l.cfg.FPS,
	}
}

func (l *Loop) submit(ctx context.Context, req *request) (response, error) {
	if l.State() != StateRunning {
		return response{}, ErrNotRunning
	}
	select {
	case l.requests <- req:
	default:
		return response{}, ErrRequestQueueFull
	}
	select {
	case resp := <-req.reply:
		return resp, nil
	case <-ctx.Done():
		// Abandon the reply; the loop still computes it and the buffered
		// reply channel absorbs the unclaimed send.
		return response{}, fmt.Errorf("waiting for capture reply: %w", ctx.Err())
	}
}

// RequestClip asks the loop for the next incremental clip. It blocks until
// the loop replies or ctx expires.
func (l *Loop) RequestClip(ctx context.Context) (*Clip, error) {
	resp, err := l.submit(ctx, &request{kind: reqClipNext, reply: make(chan response, 1)})
	if err != nil {
		return nil, err
	}
	return resp.clip, resp.err
}

// RequestClipWindow asks for a clip covering an explicit window.
func (l *Loop) RequestClipWindow(ctx context.Context, start, end time.Time) (*Clip, error) {
	resp, err := l.submit(ctx, &request{kind: reqClipWindow, start: start, end: end, reply: make(chan response, 1)})
	if err != nil {
		return nil, err
	}
	return resp.clip, resp.err
}

// Status returns the supervisor snapshot. While Running it round-trips
// through the loop goroutine; otherwise it is assembled from counters so
// a stopped or failed loop still reports.
func (l *Loop) Status(ctx context.Context) Status {
	if l.State() == StateRunning {
		resp, err := l.submit(ctx, &request{kind: reqStatus, reply: make(chan response, 1)})
		if err == nil {
			return resp.status
		}
	}
	return Status{
		Running:    false,
		State:      l.State().String(),
		FrameCount: l.frames.Load(),
		CaptureFPS: l.cfg.FPS,
	}
}
