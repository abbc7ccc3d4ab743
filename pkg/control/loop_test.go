package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/grvsrs/playclaw/pkg/bus"
	"github.com/grvsrs/playclaw/pkg/capture"
)

type fakeRequester struct {
	clip *capture.Clip
	err  error
}

func (f *fakeRequester) RequestClip(ctx context.Context) (*capture.Clip, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.clip, nil
}

type fakeEngine struct {
	decision *Decision
	err      error
	clips    []*capture.Clip
}

func (f *fakeEngine) Decide(ctx context.Context, clip *capture.Clip) (*Decision, error) {
	f.clips = append(f.clips, clip)
	if f.err != nil {
		return nil, f.err
	}
	return f.decision, nil
}

func testClip() *capture.Clip {
	now := time.Now()
	return &capture.Clip{
		Data:       []byte("GIF89a..."),
		FrameCount: 12,
		Duration:   4900 * time.Millisecond,
		Start:      now.Add(-5 * time.Second),
		End:        now,
	}
}

func collect(b *bus.MessageBus) *[]bus.Message {
	var got []bus.Message
	b.Subscribe("collector", func(m bus.Message) error {
		got = append(got, m)
		return nil
	}, true)
	return &got
}

func TestCycleHappyPath(t *testing.T) {
	b := bus.New()
	defer b.Shutdown()
	got := collect(b)

	engine := &fakeEngine{decision: &Decision{
		Text:       "heading to the gym",
		Reasoning:  "badge needed",
		Buttons:    []string{"up", "a"},
		Durations:  []float64{0.2, 0.1},
		Confidence: 0.8,
	}}
	clip := testClip()
	loop := New(&fakeRequester{clip: clip}, engine, b, Config{})

	loop.Cycle(context.Background())

	if len(engine.clips) != 1 || engine.clips[0] != clip {
		t.Fatalf("engine saw %d clips, want the requested one", len(engine.clips))
	}
	if len(*got) != 3 {
		t.Fatalf("published %d messages, want 3 (gif, response, action)", len(*got))
	}

	gifMsg, respMsg, actMsg := (*got)[0], (*got)[1], (*got)[2]
	if gifMsg.Type != bus.TypeGIF {
		t.Errorf("first message type = %s, want gif", gifMsg.Type)
	}
	gifContent := gifMsg.Content.(bus.GIFContent)
	if !gifContent.Available || gifContent.Metadata.FrameCount != 12 {
		t.Errorf("gif content = %+v", gifContent)
	}

	if respMsg.Type != bus.TypeResponse {
		t.Errorf("second message type = %s, want response", respMsg.Type)
	}
	respContent := respMsg.Content.(bus.ResponseContent)
	if respContent.Text != "heading to the gym" || respContent.Confidence != 0.8 {
		t.Errorf("response content = %+v", respContent)
	}

	if actMsg.Type != bus.TypeAction {
		t.Errorf("third message type = %s, want action", actMsg.Type)
	}
	actContent := actMsg.Content.(bus.ActionContent)
	if len(actContent.Buttons) != 2 || actContent.Buttons[0] != "up" {
		t.Errorf("action content = %+v", actContent)
	}
	if err := actMsg.Validate(); err != nil {
		t.Errorf("published action fails validation: %v", err)
	}
}

func TestCycleSkipCases(t *testing.T) {
	tests := []struct {
		name      string
		requester ClipRequester
		engine    DecisionEngine
	}{
		{
			name:      "no frames available",
			requester: &fakeRequester{err: capture.ErrNoFrames},
			engine:    &fakeEngine{},
		},
		{
			name:      "clip request timeout",
			requester: &fakeRequester{err: context.DeadlineExceeded},
			engine:    &fakeEngine{},
		},
		{
			name:      "capture loop down",
			requester: &fakeRequester{err: capture.ErrNotRunning},
			engine:    &fakeEngine{},
		},
		{
			name:      "engine failure",
			requester: &fakeRequester{clip: testClip()},
			engine:    &fakeEngine{err: errors.New("model unavailable")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bus.New()
			defer b.Shutdown()
			got := collect(b)

			loop := New(tt.requester, tt.engine, b, Config{})
			loop.Cycle(context.Background())

			var warnings, responses, actions int
			for _, msg := range *got {
				switch msg.Type {
				case bus.TypeSystem:
					if msg.Content.(bus.SystemContent).Level == bus.LevelWarning {
						warnings++
					}
				case bus.TypeResponse:
					responses++
				case bus.TypeAction:
					actions++
				}
			}
			if warnings != 1 {
				t.Errorf("published %d warning system messages, want 1", warnings)
			}
			if responses != 0 || actions != 0 {
				t.Errorf("skipped cycle published response=%d action=%d, want none", responses, actions)
			}

			// Cycles are independent: the bus keeps accepting afterwards.
			if err := b.Publish(bus.NewSystem("test", "next cycle fine", bus.LevelInfo)); err != nil {
				t.Errorf("bus unusable after skipped cycle: %v", err)
			}
		})
	}
}

func TestCycleObservationOnly(t *testing.T) {
	b := bus.New()
	defer b.Shutdown()
	got := collect(b)

	engine := &fakeEngine{decision: &Decision{Text: "waiting", Confidence: 0.5}}
	loop := New(&fakeRequester{clip: testClip()}, engine, b, Config{})
	loop.Cycle(context.Background())

	var actions int
	for _, msg := range *got {
		if msg.Type == bus.TypeAction {
			actions++
		}
	}
	if actions != 0 {
		t.Errorf("observation-only decision published %d action messages", actions)
	}
}
