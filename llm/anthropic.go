// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for Anthropic Messages API
// - Streaming via official SDK
//
// Anthropic has no response_format parameter; structured output is steered
// through the system prompt and recovered by the caller's JSON extraction.

package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, model string, maxTokens uint32, temperature float32) *AnthropicProvider {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicProvider{
		client:      client,
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the current model.
func (p *AnthropicProvider) Model() string {
	return p.model
}

// Chat sends a completion request.
func (p *AnthropicProvider) Chat(ctx context.Context, req Request) (Response, error) {
	params := p.buildParams(req)

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, TransientError(fmt.Errorf("chat completion failed: %w", err))
	}

	content := ""
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += variant.Text
		}
	}

	var usage *TokenUsage
	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		usage = &TokenUsage{
			PromptTokens:     uint32(message.Usage.InputTokens),
			CompletionTokens: uint32(message.Usage.OutputTokens),
			TotalTokens:      uint32(message.Usage.InputTokens + message.Usage.OutputTokens),
		}
	}

	return Response{Content: content, Usage: usage}, nil
}

// StreamChat streams a completion.
func (p *AnthropicProvider) StreamChat(ctx context.Context, req Request, chunks chan<- string) (*TokenUsage, error) {
	params := p.buildParams(req)

	stream := p.client.Messages.NewStreaming(ctx, params)
	var usage *TokenUsage
	for stream.Next() {
		event := stream.Current()
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text != "" {
					select {
					case chunks <- deltaVariant.Text:
					case <-ctx.Done():
						return usage, ctx.Err()
					}
				}
			}
		case anthropic.MessageDeltaEvent:
			usage = &TokenUsage{
				CompletionTokens: uint32(eventVariant.Usage.OutputTokens),
				TotalTokens:      uint32(eventVariant.Usage.OutputTokens),
			}
		}
	}
	if err := stream.Err(); err != nil {
		return usage, TransientError(fmt.Errorf("stream failed: %w", err))
	}
	return usage, nil
}

// Embed is not supported by the Anthropic API.
func (p *AnthropicProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	return nil, fmt.Errorf("anthropic provider has no embedding endpoint")
}

func (p *AnthropicProvider) buildParams(req Request) anthropic.MessageNewParams {
	anthropicMessages, systemPrompt := convertToAnthropicMessages(req.Messages)

	temperature := p.temperature
	if req.Temperature >= 0 {
		temperature = float64(req.Temperature)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Messages:    anthropicMessages,
		Temperature: anthropic.Float(temperature),
	}

	if req.Format != nil && req.Format.JSONSchema != nil {
		systemPrompt += fmt.Sprintf(
			"\n\nRespond with a single JSON object matching this schema, and nothing else:\n%s",
			string(req.Format.JSONSchema.Schema),
		)
	} else if req.Format != nil && req.Format.Type == ResponseFormatJSONObject {
		systemPrompt += "\n\nRespond with a single JSON object and nothing else."
	}

	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}
	return params
}

// convertToAnthropicMessages separates system messages (joined into the
// system prompt) from the user/assistant conversation.
func convertToAnthropicMessages(messages []ChatMessage) ([]anthropic.MessageParam, string) {
	var result []anthropic.MessageParam
	systemPrompt := ""

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
		case "assistant":
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return result, systemPrompt
}

// Verify AnthropicProvider implements Provider
var _ Provider = (*AnthropicProvider)(nil)
