// Package providers abstracts the multimodal LLM backends that turn a
// gameplay clip plus a prompt into text. The core is agnostic to which
// vendor sits behind the interface.
package providers

import (
	"context"
	"fmt"
)

// VisionRequest is one image-grounded completion request.
type VisionRequest struct {
	Prompt string
	// Media is the raw encoded image (typically the GIF clip bytes).
	Media []byte
	// MediaType is the MIME type of Media, e.g. "image/gif".
	MediaType string
	Model     string // empty means the provider default
	MaxTokens int    // <=0 means the provider default
}

// VisionResponse is the model's textual reply.
type VisionResponse struct {
	Text  string
	Model string
}

// VisionProvider is implemented per vendor.
type VisionProvider interface {
	Complete(ctx context.Context, req VisionRequest) (*VisionResponse, error)
	DefaultModel() string
}

// New builds a provider by name ("anthropic" or "openai").
func New(name, apiKey, apiBase string) (VisionProvider, error) {
	switch name {
	case "anthropic", "":
		return NewAnthropicProvider(apiKey), nil
	case "openai":
		return NewOpenAIProvider(apiKey, apiBase), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
