package api

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/grvsrs/playclaw/pkg/bus"
)

type fakeBroadcaster struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeBroadcaster) Broadcast(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]byte(nil), data...))
}

func TestEventBridgeAssignsMonotonicSequence(t *testing.T) {
	b := bus.New()
	defer b.Shutdown()
	sink := &fakeBroadcaster{}
	bridge := NewEventBridge(b, sink)
	if err := bridge.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	const count = 10
	for i := 0; i < count; i++ {
		if err := b.Publish(bus.NewSystem("test", fmt.Sprintf("msg %d", i), bus.LevelInfo)); err != nil {
			t.Fatalf("Publish #%d: %v", i, err)
		}
	}

	if len(sink.frames) != count {
		t.Fatalf("broadcast %d frames, want %d", len(sink.frames), count)
	}
	for i, frame := range sink.frames {
		var msg bus.Message
		if err := json.Unmarshal(frame, &msg); err != nil {
			t.Fatalf("frame %d is not a message envelope: %v", i, err)
		}
		if want := int64(i + 1); msg.Sequence != want {
			t.Errorf("frame %d sequence = %d, want %d", i, msg.Sequence, want)
		}
	}
}

func TestEventBridgeForwardsFullEnvelope(t *testing.T) {
	b := bus.New()
	defer b.Shutdown()
	sink := &fakeBroadcaster{}
	if err := NewEventBridge(b, sink).Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	published := bus.NewAction("game_control", []string{"a", "b"}, nil, []float64{0.2, 0.3})
	if err := b.Publish(published); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(sink.frames) != 1 {
		t.Fatalf("broadcast %d frames, want 1", len(sink.frames))
	}
	var msg bus.Message
	if err := json.Unmarshal(sink.frames[0], &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msg.ID != published.ID || msg.Source != "game_control" {
		t.Errorf("forwarded envelope lost identity: %+v", msg)
	}
	content, ok := msg.Content.(bus.ActionContent)
	if !ok {
		t.Fatalf("forwarded content is %T", msg.Content)
	}
	if len(content.Buttons) != 2 || content.ButtonNames[1] != "b" {
		t.Errorf("forwarded content = %+v", content)
	}
}

func TestEventBridgeDetach(t *testing.T) {
	b := bus.New()
	defer b.Shutdown()
	sink := &fakeBroadcaster{}
	bridge := NewEventBridge(b, sink)
	if err := bridge.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	bridge.Detach()

	b.Publish(bus.NewSystem("test", "hello", bus.LevelInfo))
	if len(sink.frames) != 0 {
		t.Errorf("detached bridge still received %d frames", len(sink.frames))
	}
}
