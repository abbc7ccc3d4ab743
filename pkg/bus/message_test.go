package bus

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Message)
		wantErr bool
	}{
		{
			name:   "valid system message",
			mutate: func(m *Message) {},
		},
		{
			name:    "empty id",
			mutate:  func(m *Message) { m.ID = "" },
			wantErr: true,
		},
		{
			name:    "empty type",
			mutate:  func(m *Message) { m.Type = "" },
			wantErr: true,
		},
		{
			name:    "zero timestamp",
			mutate:  func(m *Message) { m.Timestamp = time.Time{} },
			wantErr: true,
		},
		{
			name:    "empty source",
			mutate:  func(m *Message) { m.Source = "" },
			wantErr: true,
		},
		{
			name:    "nil content",
			mutate:  func(m *Message) { m.Content = nil },
			wantErr: true,
		},
		{
			name:    "content shape mismatching type",
			mutate:  func(m *Message) { m.Content = ResponseContent{Text: "hi"} },
			wantErr: true,
		},
		{
			name:   "unknown type passes structural checks only",
			mutate: func(m *Message) { m.Type = "telemetry"; m.Content = RawContent{"k": "v"} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := NewSystem("test", "hello", LevelInfo)
			tt.mutate(&msg)
			err := msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestContentValidation(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{
			name: "action with mismatched durations",
			msg: NewMessage(TypeAction, "t", ActionContent{
				Buttons:     []string{"a", "b"},
				ButtonNames: []string{"a", "b"},
				Durations:   []float64{0.5},
			}),
			wantErr: true,
		},
		{
			name:    "action with no buttons",
			msg:     NewMessage(TypeAction, "t", ActionContent{}),
			wantErr: true,
		},
		{
			name: "action with non-positive duration",
			msg: NewMessage(TypeAction, "t", ActionContent{
				Buttons:     []string{"a"},
				ButtonNames: []string{"a"},
				Durations:   []float64{0},
			}),
			wantErr: true,
		},
		{
			name:    "response without text",
			msg:     NewMessage(TypeResponse, "t", ResponseContent{Confidence: 0.5}),
			wantErr: true,
		},
		{
			name:    "response confidence out of range",
			msg:     NewMessage(TypeResponse, "t", ResponseContent{Text: "x", Confidence: 1.5}),
			wantErr: true,
		},
		{
			name:    "system with unknown level",
			msg:     NewMessage(TypeSystem, "t", SystemContent{Message: "m", Level: "fatal"}),
			wantErr: true,
		},
		{
			name:    "gif available without data",
			msg:     NewMessage(TypeGIF, "t", GIFContent{Available: true}),
			wantErr: true,
		},
		{
			name: "gif unavailable is fine without data",
			msg:  NewGIFUnavailable("t"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestActionDefaultsButtonNames(t *testing.T) {
	msg := NewAction("test", []string{"A", "B"}, nil, []float64{0.5, 0.5})
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	content := msg.Content.(ActionContent)
	if len(content.ButtonNames) != 2 || content.ButtonNames[0] != "A" || content.ButtonNames[1] != "B" {
		t.Errorf("ButtonNames = %v, want [A B]", content.ButtonNames)
	}
}

func TestMessageIDFormat(t *testing.T) {
	msg := NewSystem("test", "hello", LevelInfo)
	parts := strings.Split(msg.ID, "_")
	if len(parts) != 3 {
		t.Fatalf("ID %q does not have 3 underscore-separated parts", msg.ID)
	}
	if parts[0] != "system" {
		t.Errorf("ID prefix = %q, want type %q", parts[0], "system")
	}
	if len(parts[2]) != 8 {
		t.Errorf("ID suffix %q is not 8 chars", parts[2])
	}

	// Same-millisecond construction must still yield distinct ids.
	other := NewSystem("test", "hello", LevelInfo)
	if msg.ID == other.ID {
		t.Errorf("two messages share id %q", msg.ID)
	}
}

func TestMessageJSONEnvelope(t *testing.T) {
	msg := NewAction("game_control", []string{"a"}, nil, []float64{0.3}).WithSequence(7)

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var envelope map[string]interface{}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("Unmarshal to map: %v", err)
	}
	for _, key := range []string{"id", "type", "timestamp", "source", "sequence", "content"} {
		if _, ok := envelope[key]; !ok {
			t.Errorf("envelope missing %q", key)
		}
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ID != msg.ID || decoded.Type != TypeAction || decoded.Sequence != 7 {
		t.Errorf("round trip lost fields: %+v", decoded)
	}
	content, ok := decoded.Content.(ActionContent)
	if !ok {
		t.Fatalf("decoded content is %T, want ActionContent", decoded.Content)
	}
	if len(content.Buttons) != 1 || content.Buttons[0] != "a" {
		t.Errorf("decoded buttons = %v", content.Buttons)
	}
	if got, want := decoded.Timestamp.Unix(), msg.Timestamp.Unix(); got != want {
		t.Errorf("timestamp second = %d, want %d", got, want)
	}
}

func TestUnknownTypeJSONRoundTrip(t *testing.T) {
	raw := `{"id":"telemetry_1_abc","type":"telemetry","timestamp":1700000000.5,"source":"probe","content":{"k":"v"}}`

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if err := msg.Validate(); err != nil {
		t.Errorf("unknown type should pass structural validation: %v", err)
	}
	content, ok := msg.Content.(RawContent)
	if !ok {
		t.Fatalf("content is %T, want RawContent", msg.Content)
	}
	if content["k"] != "v" {
		t.Errorf("content = %v", content)
	}
}

func TestWithSequenceDoesNotMutate(t *testing.T) {
	msg := NewSystem("test", "hello", LevelInfo)
	stamped := msg.WithSequence(42)
	if msg.Sequence != 0 {
		t.Errorf("original sequence mutated to %d", msg.Sequence)
	}
	if stamped.Sequence != 42 {
		t.Errorf("stamped sequence = %d, want 42", stamped.Sequence)
	}
}
