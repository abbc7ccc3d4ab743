package control

import (
	"context"
	"errors"
	"time"

	"github.com/grvsrs/playclaw/pkg/bus"
	"github.com/grvsrs/playclaw/pkg/capture"
	"github.com/grvsrs/playclaw/pkg/logger"
)

// Source identifiers stamped on published messages.
const (
	sourceControl = "game_control"
	sourceCapture = "video_capture"
)

// ClipRequester is the control loop's view of the capture side.
type ClipRequester interface {
	RequestClip(ctx context.Context) (*capture.Clip, error)
}

// Config tunes the decision cycle.
type Config struct {
	// Interval is the pause between cycles.
	Interval time.Duration
	// RequestTimeout bounds the wait for a clip reply.
	RequestTimeout time.Duration
}

// Loop runs independent decision cycles: clip in, decision out, messages
// published. A skipped cycle (timeout, no frames, engine failure) is
// reported as a system warning and never blocks the next cycle.
type Loop struct {
	clips  ClipRequester
	engine DecisionEngine
	bus    *bus.MessageBus
	cfg    Config
}

// New wires a control loop. The decision engine is fixed at construction.
func New(clips ClipRequester, engine DecisionEngine, b *bus.MessageBus, cfg Config) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Loop{clips: clips, engine: engine, bus: b, cfg: cfg}
}

// Run blocks until ctx is cancelled, executing one cycle per interval.
func (l *Loop) Run(ctx context.Context) {
	logger.InfoCF("control", "Control loop running", map[string]interface{}{
		"interval": l.cfg.Interval.String(), "request_timeout": l.cfg.RequestTimeout.String(),
	})
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoC("control", "Control loop stopped")
			return
		case <-ticker.C:
			l.Cycle(ctx)
		}
	}
}

// Cycle executes one decision cycle.
func (l *Loop) Cycle(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
	clip, err := l.clips.RequestClip(reqCtx)
	cancel()
	if err != nil {
		l.skip(clipFailureNotice(err))
		return
	}

	// Let the dashboard see exactly what the engine sees.
	l.publish(bus.NewGIF(sourceCapture, clip.Data, bus.GIFMetadata{
		FrameCount: clip.FrameCount,
		Duration:   clip.Duration.Seconds(),
		Size:       len(clip.Data),
		Timestamp:  float64(clip.End.UnixNano()) / float64(time.Second),
	}))

	started := time.Now()
	decision, err := l.engine.Decide(ctx, clip)
	if err != nil {
		l.skip("decision engine failed: " + err.Error())
		return
	}
	elapsed := time.Since(started).Seconds()

	l.publish(bus.NewResponse(sourceControl, decision.Text, decision.Reasoning, elapsed, decision.Confidence))

	if len(decision.Buttons) == 0 {
		logger.DebugC("control", "Decision has no button presses, observing only")
		return
	}
	l.publish(bus.NewAction(sourceControl, decision.Buttons, decision.ButtonNames, decision.Durations))
}

// skip documents a skipped cycle on the bus at warning level.
func (l *Loop) skip(reason string) {
	logger.WarnCF("control", "Decision cycle skipped", map[string]interface{}{"reason": reason})
	l.publish(bus.NewSystem(sourceControl, "decision cycle skipped: "+reason, bus.LevelWarning))
}

func (l *Loop) publish(msg bus.Message) {
	if err := l.bus.Publish(msg); err != nil {
		logger.ErrorCF("control", "Publish failed", map[string]interface{}{
			"type": string(msg.Type), "err": err.Error(),
		})
	}
}

func clipFailureNotice(err error) string {
	switch {
	case errors.Is(err, capture.ErrNoFrames):
		return "no frames available in window"
	case errors.Is(err, context.DeadlineExceeded):
		return "clip request timed out"
	case errors.Is(err, capture.ErrNotRunning):
		return "capture loop not running"
	default:
		return "clip request failed: " + err.Error()
	}
}
