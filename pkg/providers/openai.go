package providers

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider sends vision requests to the OpenAI Chat Completions API
// or any OpenAI-compatible endpoint (set apiBase for local runners or
// compatible vendors).
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a provider. apiBase may be empty for the
// official endpoint.
func NewOpenAIProvider(apiKey, apiBase string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...)}
}

// DefaultModel returns the model used when the request names none.
func (p *OpenAIProvider) DefaultModel() string {
	return "gpt-4o-mini"
}

// Complete sends the image as a data URL content part alongside the prompt.
func (p *OpenAIProvider) Complete(ctx context.Context, req VisionRequest) (*VisionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	parts := []openai.ChatCompletionContentPartUnionParam{}
	if len(req.Media) > 0 {
		mediaType := req.MediaType
		if mediaType == "" {
			mediaType = "image/gif"
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s",
			mediaType, base64.StdEncoding.EncodeToString(req.Media))
		parts = append(parts, openai.ImageContentPart(
			openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}))
	}
	parts = append(parts, openai.TextContentPart(req.Prompt))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(model),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(parts),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai completion: empty choices")
	}
	return &VisionResponse{Text: resp.Choices[0].Message.Content, Model: model}, nil
}

var _ VisionProvider = (*OpenAIProvider)(nil)
