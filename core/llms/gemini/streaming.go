// Package gemini is a streaming Gemini API client. Unlike chat completions
// providers it takes images as inline blobs, so frames do not need a data
// URL detour.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/onyxvoice/onyx-core/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

type Client struct {
	apiKey string
	model  string

	client *genai.Client
}

type ClientOption func(*Client)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// NewClient creates a Gemini client. The API key falls back to the
// GEMINI_API_KEY environment variable.
func NewClient(ctx context.Context, opts ...ClientOption) (*Client, error) {
	client := &Client{model: defaultModel}
	for _, opt := range opts {
		opt(client)
	}

	if client.apiKey == "" {
		client.apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if client.apiKey == "" {
		return nil, fmt.Errorf("missing Gemini API key")
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  client.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	client.client = genaiClient

	return client, nil
}

// PromptWithStream prepares a streamed generation request. No network
// traffic happens until the returned stream's Chunks iterator is consumed.
func (c *Client) PromptWithStream(_ context.Context, opts ...llms.StreamOption) llms.Stream {
	options := llms.StreamOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	systemInstruction, contents := toContents(options.Messages)

	config := &genai.GenerateContentConfig{SystemInstruction: systemInstruction}
	if len(options.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(options.Tools)}}
	}

	return &Stream{
		client:   c.client,
		model:    c.model,
		contents: contents,
		config:   config,
	}
}

type Stream struct {
	client *genai.Client

	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.model))

		toolCallNames := []string{}
		for response, err := range s.client.Models.GenerateContentStream(ctx, s.model, s.contents, s.config) {
			if err != nil {
				err = fmt.Errorf("failed to stream generated content: %w", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				yield(nil, err)
				return
			}

			if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
				continue
			}
			candidate := response.Candidates[0]

			var finishReason *string
			if candidate.FinishReason != "" {
				reason := string(candidate.FinishReason)
				finishReason = &reason
			}

			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					if !yield(StreamContentChunk{finishReason: finishReason, content: part.Text}, nil) {
						return
					}
				}

				if part.FunctionCall != nil {
					arguments, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						err = fmt.Errorf("failed to marshal tool call arguments: %w", err)
						span.RecordError(err)
						if !yield(nil, err) {
							return
						}
						continue
					}
					toolCallNames = append(toolCallNames, part.FunctionCall.Name)
					if !yield(StreamToolCallChunk{
						finishReason: finishReason,
						toolCall: llms.ToolCall{
							ID:        part.FunctionCall.ID,
							Name:      part.FunctionCall.Name,
							Arguments: string(arguments),
						},
					}, nil) {
						return
					}
				}
			}

			if response.UsageMetadata != nil {
				span.SetAttributes(
					attribute.Int("usage.input", int(response.UsageMetadata.PromptTokenCount)),
					attribute.Int("usage.output", int(response.UsageMetadata.CandidatesTokenCount)),
					attribute.Int("usage.total", int(response.UsageMetadata.TotalTokenCount)),
				)
				if !yield(StreamUsageChunk{
					finishReason: finishReason,
					usage: llms.Usage{
						InputTokens:  int(response.UsageMetadata.PromptTokenCount),
						OutputTokens: int(response.UsageMetadata.CandidatesTokenCount),
						TotalTokens:  int(response.UsageMetadata.TotalTokenCount),
					},
				}, nil) {
					return
				}
			}
		}
		span.SetAttributes(attribute.StringSlice("response.tool_calls", toolCallNames))
	}
}

type StreamContentChunk struct {
	finishReason *string
	content      string
}

func (s StreamContentChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamContentChunk) Content() string {
	return s.content
}

type StreamToolCallChunk struct {
	finishReason *string
	toolCall     llms.ToolCall
}

func (s StreamToolCallChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamToolCallChunk) ToolCall() llms.ToolCall {
	return s.toolCall
}

type StreamUsageChunk struct {
	finishReason *string
	usage        llms.Usage
}

func (s StreamUsageChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamUsageChunk) Usage() llms.Usage {
	return s.usage
}
