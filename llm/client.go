// Client - timeout-bounded wrapper around providers with structured decoding.

package llm

import (
	"context"
	"time"

	"github.com/richinex/carlos/internal/llmjson"
)

// DefaultTimeout bounds every Reasoning Service call. A timeout is a hard
// failure of that call, never silently retried within the same turn.
const DefaultTimeout = 60 * time.Second

// Client wraps a Provider with per-call timeouts and structured decoding.
type Client struct {
	provider Provider
	timeout  time.Duration
}

// NewClient creates a new client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider, timeout: DefaultTimeout}
}

// WithTimeout overrides the per-call timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// Chat sends a completion request and returns just the content.
func (c *Client) Chat(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	response, err := c.provider.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	return response.Content, nil
}

// Structured sends a completion request constrained to the given schema and
// decodes the JSON answer into out. A transport failure is returned as-is
// (transient); an undecodable answer is returned wrapped as malformed, with
// out left at its zero value so callers can degrade instead of aborting.
func (c *Client) Structured(ctx context.Context, req Request, out any) error {
	content, err := c.Chat(ctx, req)
	if err != nil {
		return err
	}
	if err := llmjson.Decode(content, out); err != nil {
		return MalformedError(err)
	}
	return nil
}

// Stream streams a completion, sending text deltas to chunks.
func (c *Client) Stream(ctx context.Context, req Request, chunks chan<- string) (*TokenUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.provider.StreamChat(ctx, req, chunks)
}

// Embed returns an embedding for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.provider.Embed(ctx, text)
}
