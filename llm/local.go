// Local provider implementation using go-openai library.
//
// Information Hiding:
// - Uses an OpenAI-compatible API with a configurable base URL, suitable
//   for LM Studio / llama.cpp style local servers
// - Structured outputs via response_format json_schema
// - Embeddings via the /v1/embeddings endpoint

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

const defaultLocalBaseURL = "http://localhost:1234/v1"

// LocalProvider implements the Provider interface for OpenAI-compatible
// local inference servers.
type LocalProvider struct {
	client      *openai.Client
	model       string
	embedModel  string
	maxTokens   int
	temperature float32
}

// NewLocalProvider creates a provider against baseURL. An empty baseURL
// uses the LM Studio default. apiKey may be empty for unauthenticated
// local servers.
func NewLocalProvider(baseURL, apiKey, model, embedModel string, maxTokens uint32, temperature float32) *LocalProvider {
	if baseURL == "" {
		baseURL = defaultLocalBaseURL
	}
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &LocalProvider{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		embedModel:  embedModel,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *LocalProvider) Name() string {
	return "local"
}

// Model returns the current model.
func (p *LocalProvider) Model() string {
	return p.model
}

// Chat sends a completion request.
func (p *LocalProvider) Chat(ctx context.Context, req Request) (Response, error) {
	creq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    convertMessages(req.Messages),
		MaxTokens:   p.maxTokens,
		Temperature: p.effectiveTemperature(req),
	}
	if req.Format != nil {
		creq.ResponseFormat = convertFormat(req.Format)
	}

	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return Response{}, TransientError(fmt.Errorf("chat completion failed: %w", err))
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	usage := &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}

	return Response{Content: content, Usage: usage}, nil
}

// StreamChat streams a completion.
func (p *LocalProvider) StreamChat(ctx context.Context, req Request, chunks chan<- string) (*TokenUsage, error) {
	creq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    convertMessages(req.Messages),
		MaxTokens:   p.maxTokens,
		Temperature: p.effectiveTemperature(req),
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return nil, TransientError(fmt.Errorf("stream creation failed: %w", err))
	}
	defer stream.Close()

	var usage *TokenUsage
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return usage, nil
		}
		if err != nil {
			return usage, TransientError(fmt.Errorf("stream recv failed: %w", err))
		}

		// Usage arrives in the final chunk
		if response.Usage != nil {
			usage = &TokenUsage{
				PromptTokens:     uint32(response.Usage.PromptTokens),
				CompletionTokens: uint32(response.Usage.CompletionTokens),
				TotalTokens:      uint32(response.Usage.TotalTokens),
			}
		}

		if len(response.Choices) > 0 {
			content := response.Choices[0].Delta.Content
			if content != "" {
				select {
				case chunks <- content:
				case <-ctx.Done():
					return usage, ctx.Err()
				}
			}
		}
	}
}

// Embed returns an embedding for the given text.
func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.embedModel),
	})
	if err != nil {
		return nil, TransientError(fmt.Errorf("embedding request failed: %w", err))
	}
	if len(resp.Data) == 0 {
		return nil, MalformedError(fmt.Errorf("embedding response contained no data"))
	}

	vec := make([]float64, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float64(v)
	}
	return vec, nil
}

func (p *LocalProvider) effectiveTemperature(req Request) float32 {
	if req.Temperature >= 0 {
		return req.Temperature
	}
	return p.temperature
}

// convertMessages converts our ChatMessage to openai.ChatCompletionMessage.
func convertMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		result[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return result
}

// convertFormat converts a ResponseFormat to the go-openai representation.
func convertFormat(format *ResponseFormat) *openai.ChatCompletionResponseFormat {
	out := &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatType(format.Type),
	}
	if format.JSONSchema != nil {
		out.JSONSchema = &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   format.JSONSchema.Name,
			Schema: format.JSONSchema.Schema,
			Strict: format.JSONSchema.Strict,
		}
	}
	return out
}

// Verify LocalProvider implements Provider
var _ Provider = (*LocalProvider)(nil)
