package cron

import (
	"context"
	"strings"
	"testing"

	"github.com/grvsrs/playclaw/pkg/bus"
	"github.com/grvsrs/playclaw/pkg/capture"
)

type stubStatus struct{}

func (stubStatus) Status(context.Context) capture.Status {
	return capture.Status{Running: true, State: "running", FrameCount: 42, BufferDurationSeconds: 3.5}
}

func TestNewHealthReporterValidatesSchedule(t *testing.T) {
	b := bus.New()
	defer b.Shutdown()

	if _, err := NewHealthReporter(b, nil, "not a cron line"); err == nil {
		t.Fatal("accepted an invalid cron expression")
	}
	if _, err := NewHealthReporter(b, nil, "*/5 * * * *"); err != nil {
		t.Fatalf("rejected a valid cron expression: %v", err)
	}
}

func TestPublishSnapshot(t *testing.T) {
	b := bus.New()
	defer b.Shutdown()
	r, err := NewHealthReporter(b, stubStatus{}, "* * * * *")
	if err != nil {
		t.Fatalf("NewHealthReporter: %v", err)
	}

	r.publishSnapshot(context.Background())

	msgs := b.History(bus.TypeSystem, 1)
	if len(msgs) != 1 {
		t.Fatalf("published %d system messages, want 1", len(msgs))
	}
	if msgs[0].Source != "health_cron" {
		t.Errorf("source = %q", msgs[0].Source)
	}
	content, ok := msgs[0].Content.(bus.SystemContent)
	if !ok {
		t.Fatalf("content is %T", msgs[0].Content)
	}
	if !strings.Contains(content.Message, "capture=running") || !strings.Contains(content.Message, "frames=42") {
		t.Errorf("snapshot text = %q", content.Message)
	}
}
