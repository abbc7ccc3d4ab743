package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider sends vision requests to the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a provider authenticated with apiKey.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// DefaultModel returns the model used when the request names none.
func (p *AnthropicProvider) DefaultModel() string {
	return "claude-sonnet-4-20250514"
}

// Complete sends the image and prompt as one user turn and concatenates
// the text blocks of the reply.
func (p *AnthropicProvider) Complete(ctx context.Context, req VisionRequest) (*VisionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	blocks := []anthropic.ContentBlockParamUnion{}
	if len(req.Media) > 0 {
		mediaType := req.MediaType
		if mediaType == "" {
			mediaType = "image/gif"
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(
			mediaType, base64.StdEncoding.EncodeToString(req.Media)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return &VisionResponse{Text: sb.String(), Model: model}, nil
}

var _ VisionProvider = (*AnthropicProvider)(nil)
