package control

import (
	"testing"

	"github.com/grvsrs/playclaw/pkg/bus"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    Decision
		wantErr bool
	}{
		{
			name:  "plain json",
			reply: `{"text":"walk up","reasoning":"door is north","buttons":["up","up"],"durations":[0.2,0.2],"confidence":0.9}`,
			want: Decision{
				Text:       "walk up",
				Reasoning:  "door is north",
				Buttons:    []string{"up", "up"},
				Durations:  []float64{0.2, 0.2},
				Confidence: 0.9,
			},
		},
		{
			name: "markdown fenced json",
			reply: "Here is my move:\n```json\n" +
				`{"text":"press a","buttons":["A"],"durations":[0.3],"confidence":0.8}` +
				"\n```",
			want: Decision{
				Text:       "press a",
				Buttons:    []string{"a"}, // normalized lowercase
				Durations:  []float64{0.3},
				Confidence: 0.8,
			},
		},
		{
			name:  "missing durations padded",
			reply: `{"text":"mash a","buttons":["a","a","a"],"durations":[0.5],"confidence":0.5}`,
			want: Decision{
				Text:       "mash a",
				Buttons:    []string{"a", "a", "a"},
				Durations:  []float64{0.5, defaultPressSeconds, defaultPressSeconds},
				Confidence: 0.5,
			},
		},
		{
			name:  "excess durations trimmed",
			reply: `{"text":"tap b","buttons":["b"],"durations":[0.2,0.9,0.9],"confidence":0.5}`,
			want: Decision{
				Text:       "tap b",
				Buttons:    []string{"b"},
				Durations:  []float64{0.2},
				Confidence: 0.5,
			},
		},
		{
			name:  "confidence clamped",
			reply: `{"text":"go","buttons":["a"],"durations":[0.2],"confidence":1.7}`,
			want: Decision{
				Text:       "go",
				Buttons:    []string{"a"},
				Durations:  []float64{0.2},
				Confidence: 1,
			},
		},
		{
			name:  "observation only",
			reply: `{"text":"waiting for the dialog to finish","buttons":[],"durations":[],"confidence":0.6}`,
			want: Decision{
				Text:       "waiting for the dialog to finish",
				Buttons:    []string{},
				Durations:  []float64{},
				Confidence: 0.6,
			},
		},
		{
			name:    "no json at all",
			reply:   "I think we should go north.",
			wantErr: true,
		},
		{
			name:    "json without text",
			reply:   `{"buttons":["a"],"durations":[0.2]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDecision(tt.reply)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDecision() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got.Text != tt.want.Text || got.Reasoning != tt.want.Reasoning {
				t.Errorf("text/reasoning = %q/%q, want %q/%q", got.Text, got.Reasoning, tt.want.Text, tt.want.Reasoning)
			}
			if got.Confidence != tt.want.Confidence {
				t.Errorf("confidence = %v, want %v", got.Confidence, tt.want.Confidence)
			}
			if len(got.Buttons) != len(tt.want.Buttons) {
				t.Fatalf("buttons = %v, want %v", got.Buttons, tt.want.Buttons)
			}
			for i := range got.Buttons {
				if got.Buttons[i] != tt.want.Buttons[i] {
					t.Errorf("buttons[%d] = %q, want %q", i, got.Buttons[i], tt.want.Buttons[i])
				}
			}
			if len(got.Durations) != len(tt.want.Durations) {
				t.Fatalf("durations = %v, want %v", got.Durations, tt.want.Durations)
			}
			for i := range got.Durations {
				if got.Durations[i] != tt.want.Durations[i] {
					t.Errorf("durations[%d] = %v, want %v", i, got.Durations[i], tt.want.Durations[i])
				}
			}
		})
	}
}

func TestParseDecisionButtonNames(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantNames []string // nil means "defaulted from buttons"
	}{
		{
			name:      "empty list dropped",
			reply:     `{"text":"press a","buttons":["a"],"button_names":[],"durations":[0.2],"confidence":0.5}`,
			wantNames: nil,
		},
		{
			name:      "mismatched length dropped",
			reply:     `{"text":"combo","buttons":["a","b"],"button_names":["A Button"],"durations":[0.2,0.2],"confidence":0.5}`,
			wantNames: nil,
		},
		{
			name:      "matching names kept",
			reply:     `{"text":"press a","buttons":["a"],"button_names":["A Button"],"durations":[0.2],"confidence":0.5}`,
			wantNames: []string{"A Button"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDecision(tt.reply)
			if err != nil {
				t.Fatalf("parseDecision() error = %v", err)
			}
			if len(got.ButtonNames) != len(tt.wantNames) {
				t.Fatalf("button names = %v, want %v", got.ButtonNames, tt.wantNames)
			}
			for i := range got.ButtonNames {
				if got.ButtonNames[i] != tt.wantNames[i] {
					t.Errorf("button names[%d] = %q, want %q", i, got.ButtonNames[i], tt.wantNames[i])
				}
			}
			// The decision must always yield a publishable action.
			msg := bus.NewAction("game_control", got.Buttons, got.ButtonNames, got.Durations)
			if err := msg.Validate(); err != nil {
				t.Errorf("action built from decision fails validation: %v", err)
			}
		})
	}
}
