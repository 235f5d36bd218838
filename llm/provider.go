// Reasoning Service provider interface.
//
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error handling

package llm

import (
	"context"
)

// Provider defines the abstract interface for Reasoning Service backends.
// Implementations hide provider-specific details while exposing a consistent
// interface for completions, streaming, and embeddings.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends a completion request.
	Chat(ctx context.Context, req Request) (Response, error)

	// StreamChat streams a completion, sending text deltas to the provided
	// channel. The channel is not closed by the provider.
	StreamChat(ctx context.Context, req Request, chunks chan<- string) (*TokenUsage, error)

	// Embed returns a vector embedding for the given text.
	// Providers without an embedding endpoint return an error; callers
	// treat a failed embedding as an empty vector, not a fatal condition.
	Embed(ctx context.Context, text string) ([]float64, error)
}
