// Package llm talks to an OpenAI-compatible completion and embedding API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kylegalloway/taskloop/internal/config"
	"github.com/kylegalloway/taskloop/internal/sanitize"
)

// ErrEmptyResponse is returned when the API answers without any choices or vectors.
var ErrEmptyResponse = errors.New("empty response from model")

var tracer = otel.Tracer("github.com/kylegalloway/taskloop/internal/llm")

// Client wraps the chat completion and embedding endpoints.
type Client struct {
	api        openai.Client
	completion string
	embedding  string
	dimensions int
}

// New creates a Client from the llm and models config sections.
func New(cfg *config.Config, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{
		option.WithAPIKey(cfg.LLM.APIKey()),
		option.WithBaseURL(cfg.LLM.BaseURL),
		option.WithRequestTimeout(cfg.LLM.RequestTimeout),
		option.WithMaxRetries(cfg.LLM.MaxRetries),
	}
	base = append(base, opts...)
	return &Client{
		api:        openai.NewClient(base...),
		completion: cfg.Models.Completion,
		embedding:  cfg.Models.Embedding,
		dimensions: cfg.Models.EmbeddingDimensions,
	}
}

// Complete sends a single user message and returns the trimmed reply.
func (c *Client) Complete(ctx context.Context, prompt string, s config.Sampling) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.completion),
		attribute.Float64("llm.temperature", s.Temperature),
		attribute.Int("llm.max_tokens", s.MaxTokens),
	)

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.completion),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(s.Temperature),
		MaxTokens:   openai.Int(int64(s.MaxTokens)),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "no choices")
		return "", fmt.Errorf("chat completion: %w", ErrEmptyResponse)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// CreateEmbedding embeds a single input and returns the first vector.
// Newlines are replaced with spaces before the request.
func (c *Client) CreateEmbedding(ctx context.Context, text string) ([]float64, error) {
	ctx, span := tracer.Start(ctx, "llm.embed")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.embedding))

	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embedding),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{sanitize.SingleLine(text)},
		},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		span.SetStatus(codes.Error, "no vectors")
		return nil, fmt.Errorf("create embedding: %w", ErrEmptyResponse)
	}
	return resp.Data[0].Embedding, nil
}

// Embed is CreateEmbedding with a fallback: any failure is logged and a zero
// vector of the configured width is returned instead. All-zero vectors match
// nothing useful in similarity search; callers accept that degradation.
func (c *Client) Embed(ctx context.Context, text string) []float64 {
	vec, err := c.CreateEmbedding(ctx, text)
	if err != nil {
		log.Printf("Warning: %v; using zero vector", err)
		return make([]float64, c.dimensions)
	}
	return vec
}
