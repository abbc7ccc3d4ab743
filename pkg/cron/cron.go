// Package cron publishes periodic health snapshots onto the bus on a cron
// schedule, so the dashboard, archive, and notifiers all see the same
// heartbeat through the same pipe as everything else.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/grvsrs/playclaw/pkg/bus"
	"github.com/grvsrs/playclaw/pkg/capture"
	"github.com/grvsrs/playclaw/pkg/logger"
)

const source = "health_cron"

// StatusSource is the reporter's view of the capture loop.
type StatusSource interface {
	Status(ctx context.Context) capture.Status
}

// HealthReporter emits a system message whenever the schedule fires.
type HealthReporter struct {
	bus      *bus.MessageBus
	capture  StatusSource
	schedule string
	gron     *gronx.Gronx
}

// NewHealthReporter validates the cron expression and builds a reporter.
func NewHealthReporter(mb *bus.MessageBus, cap StatusSource, schedule string) (*HealthReporter, error) {
	g := gronx.New()
	if !g.IsValid(schedule) {
		return nil, fmt.Errorf("invalid cron expression %q", schedule)
	}
	return &HealthReporter{bus: mb, capture: cap, schedule: schedule, gron: g}, nil
}

// Run checks the schedule once per minute and publishes when due. Blocks
// until ctx is cancelled.
func (r *HealthReporter) Run(ctx context.Context) {
	logger.InfoCF("cron", "Health reporter running", map[string]interface{}{"schedule": r.schedule})
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := r.gron.IsDue(r.schedule, now)
			if err != nil || !due {
				continue
			}
			r.publishSnapshot(ctx)
		}
	}
}

func (r *HealthReporter) publishSnapshot(ctx context.Context) {
	stats := r.bus.Stats()
	text := fmt.Sprintf("health: published=%d delivered=%d errors=%d dropped=%d",
		stats.TotalPublished, stats.TotalDelivered, stats.TotalErrors, stats.TotalDropped)
	if r.capture != nil {
		status := r.capture.Status(ctx)
		text += fmt.Sprintf(" capture=%s frames=%d buffer=%.1fs",
			status.State, status.FrameCount, status.BufferDurationSeconds)
	}
	if err := r.bus.Publish(bus.NewSystem(source, text, bus.LevelInfo)); err != nil {
		logger.WarnCF("cron", "Health snapshot publish failed", map[string]interface{}{"err": err.Error()})
	}
}
