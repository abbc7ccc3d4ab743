// Package control drives the decision cycle: fetch a recent gameplay clip
// from the capture loop, hand it to a decision engine, and publish the
// outcome (response and action messages) on the bus.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/grvsrs/playclaw/pkg/capture"
	"github.com/grvsrs/playclaw/pkg/providers"
)

// Decision is the engine's output for one cycle.
type Decision struct {
	Text        string    `json:"text"`
	Reasoning   string    `json:"reasoning,omitempty"`
	Buttons     []string  `json:"buttons"`
	ButtonNames []string  `json:"button_names,omitempty"`
	Durations   []float64 `json:"durations"`
	Confidence  float64   `json:"confidence"`
}

// DecisionEngine turns a clip into a decision. It is a constructor-time
// strategy of the control loop; implementations must be safe to call from
// the loop's goroutine.
type DecisionEngine interface {
	Decide(ctx context.Context, clip *capture.Clip) (*Decision, error)
}

const decisionPrompt = `You are playing a video game. The attached animated image shows the last few seconds of gameplay.

Decide the next controller inputs. Reply with a single JSON object, no prose:
{
  "text": "<one-line summary of what you will do>",
  "reasoning": "<why>",
  "buttons": ["a"|"b"|"start"|"select"|"up"|"down"|"left"|"right"|"l"|"r", ...],
  "durations": [<seconds per button press>, ...],
  "confidence": <0.0-1.0>
}
buttons and durations must have the same length. Use short presses (0.1-0.5s) unless holding is needed.`

const defaultPressSeconds = 0.2

// LLMEngine implements DecisionEngine on a multimodal provider.
type LLMEngine struct {
	provider  providers.VisionProvider
	model     string
	maxTokens int
}

// NewLLMEngine wires a provider. model may be empty for the provider
// default.
func NewLLMEngine(p providers.VisionProvider, model string) *LLMEngine {
	return &LLMEngine{provider: p, model: model, maxTokens: 1024}
}

// Decide prompts the model with the clip and parses its JSON reply.
func (e *LLMEngine) Decide(ctx context.Context, clip *capture.Clip) (*Decision, error) {
	resp, err := e.provider.Complete(ctx, providers.VisionRequest{
		Prompt:    decisionPrompt,
		Media:     clip.Data,
		MediaType: "image/gif",
		Model:     e.model,
		MaxTokens: e.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	return parseDecision(resp.Text)
}

// parseDecision extracts the JSON object from the model's reply, tolerating
// markdown fences and surrounding prose, then normalizes the result.
func parseDecision(reply string) (*Decision, error) {
	raw := strings.TrimSpace(reply)
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}

	var d Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("parse decision reply: %w", err)
	}
	if d.Text == "" {
		return nil, fmt.Errorf("decision reply has no text")
	}

	for i, b := range d.Buttons {
		d.Buttons[i] = strings.ToLower(strings.TrimSpace(b))
	}
	// A mismatched (often empty) button_names list would fail action
	// validation downstream; fall back to the buttons themselves.
	if len(d.ButtonNames) != len(d.Buttons) {
		d.ButtonNames = nil
	}
	// Pad or trim durations so buttons/durations stay parallel even when
	// the model miscounts.
	for len(d.Durations) < len(d.Buttons) {
		d.Durations = append(d.Durations, defaultPressSeconds)
	}
	if len(d.Durations) > len(d.Buttons) {
		d.Durations = d.Durations[:len(d.Buttons)]
	}
	for i, dur := range d.Durations {
		if dur <= 0 {
			d.Durations[i] = defaultPressSeconds
		}
	}
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}
	return &d, nil
}

var _ DecisionEngine = (*LLMEngine)(nil)
