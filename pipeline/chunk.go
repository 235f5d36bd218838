package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/richinex/carlos/llm"
	"github.com/richinex/carlos/store"
)

// DefaultChunkThreshold is the message length above which the input is not
// fed to the reasoning loop directly but split, summarized per chunk, and
// stored as separate memory records.
const DefaultChunkThreshold = 4000

// splitChunks splits text on whitespace into chunks whose joined length
// stays within size. Words longer than size become their own chunk.
func splitChunks(text string, size int) []string {
	words := strings.Fields(text)
	var chunks []string
	var current []string
	length := 0

	for _, word := range words {
		// joined length if word were appended
		next := length + len(word)
		if len(current) > 0 {
			next++ // joining space
		}
		if len(current) > 0 && next > size {
			chunks = append(chunks, strings.Join(current, " "))
			current = []string{word}
			length = len(word)
			continue
		}
		current = append(current, word)
		length = next
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// summarizeChunks handles an oversized message: each chunk is summarized and
// tagged independently and stored as its own message record, the tag sets
// are unioned, and the summaries are joined for the reasoning context. The
// original long text is never embedded verbatim.
func (p *Pipeline) summarizeChunks(ctx context.Context, message string) (string, []string, error) {
	chunks := splitChunks(message, p.chunkThreshold)

	var summaries []string
	tagSet := make(map[string]bool)
	var tags []string

	for i, chunk := range chunks {
		out, err := p.summarize(ctx, chunk, true)
		if err != nil {
			return "", nil, fmt.Errorf("summarize chunk %d/%d: %w", i+1, len(chunks), err)
		}
		summaries = append(summaries, out.Summary)
		for _, tag := range out.Tags {
			if !tagSet[tag] {
				tagSet[tag] = true
				tags = append(tags, tag)
			}
		}

		embedding := p.embed(ctx, chunk)
		_, err = p.store.Insert(ctx, store.Messages, store.Document{
			"user_id":   p.userID,
			"message":   chunk,
			"summary":   out.Summary,
			"tags":      out.Tags,
			"embedding": embedding,
		})
		if err != nil {
			p.logger.Warn("store chunk record failed", zap.Int("chunk", i+1), zap.Error(err))
		}
	}

	return strings.Join(summaries, " "), tags, nil
}

// summarize runs the summarizer role over one piece of text. Malformed
// output degrades to empty summary and tags.
func (p *Pipeline) summarize(ctx context.Context, text string, chunked bool) (summarizerOutput, error) {
	messages := []llm.ChatMessage{
		llm.SystemMessage(summarizerPrompt),
		llm.UserMessage("Message to summarize: " + text),
	}
	if chunked {
		messages = append(messages, llm.SystemMessage(
			"Long input split into chunks. Store all information for later synthesis."))
	}

	var out summarizerOutput
	req := llm.NewRequest(messages...).
		WithFormat(llm.NewJSONSchemaFormat("summarizer", summarizerSchema)).
		WithTemperature(0)
	if err := p.llm.Structured(ctx, req, &out); err != nil {
		if llm.IsMalformed(err) {
			p.logger.Warn("summarizer output malformed", zap.Error(err))
			return summarizerOutput{}, nil
		}
		return summarizerOutput{}, err
	}
	return out, nil
}
