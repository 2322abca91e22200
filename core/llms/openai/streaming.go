// Package openai is a streaming chat completions client. It supports tool
// calling and multimodal user messages carrying image snapshots.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/onyxvoice/onyx-core/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	url = "https://api.openai.com/v1/chat/completions"

	endMessage  = "[DONE]"
	chunkPrefix = "data:"

	defaultModel = "gpt-4o"
)

type Client struct {
	apiKey string
	model  string
}

type ClientOption func(*Client)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// NewClient creates a chat completions client. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...ClientOption) (*Client, error) {
	client := &Client{model: defaultModel}
	for _, opt := range opts {
		opt(client)
	}

	if client.apiKey == "" {
		client.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if client.apiKey == "" {
		return nil, fmt.Errorf("missing OpenAI API key")
	}

	return client, nil
}

// PromptWithStream prepares a streamed completion request. No network
// traffic happens until the returned stream's Chunks iterator is consumed.
func (c *Client) PromptWithStream(_ context.Context, opts ...llms.StreamOption) llms.Stream {
	options := llms.StreamOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	var tools []tool
	if options.Tools != nil {
		tools = toWireTools(options.Tools)
	}

	return &Stream{
		apiKey:   c.apiKey,
		model:    c.model,
		tools:    tools,
		messages: toWireMessages(options.Messages),
	}
}

type Stream struct {
	apiKey string

	model    string
	tools    []tool
	messages []message
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.model))
		var toolNames []string
		for _, tool := range s.tools {
			toolNames = append(toolNames, tool.Function.Name)
		}
		span.SetAttributes(attribute.StringSlice("request.available_tools", toolNames))

		var toolChoice *string
		if s.tools != nil {
			choice := "auto"
			toolChoice = &choice
		}

		reqBody := requestBody{
			Model:      s.model,
			Messages:   s.messages,
			Stream:     true,
			Tools:      s.tools,
			ToolChoice: toolChoice,
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			err = fmt.Errorf("error marshalling JSON: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			err = fmt.Errorf("error creating HTTP request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

		span.SetAttributes(attribute.String("request.url", req.URL.String()))
		client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)}
		resp, err := client.Do(req)
		if err != nil {
			err = fmt.Errorf("error sending request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(resp.Body); err != nil {
				err = fmt.Errorf("error reading error body: %w", err)
				span.RecordError(err)
			} else {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}

			err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			yield(nil, err)
			return
		}

		// Tool call deltas arrive fragmented: the first delta for an index
		// carries the id and name, later ones append argument text. They are
		// assembled here and emitted once the stream finishes.
		pendingToolCalls := map[int]*llms.ToolCall{}
		var finishReason *string

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))

			if len(chunk) == 0 {
				continue
			}

			if chunk == endMessage {
				break
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
				err = fmt.Errorf("error unmarshalling JSON: %w", err)
				span.RecordError(err)
				if !yield(nil, err) {
					return
				}
				continue
			}

			if len(responseBody.Choices) > 0 {
				choice := responseBody.Choices[0]
				if choice.FinishReason != nil {
					finishReason = choice.FinishReason
				}

				for _, delta := range choice.Delta.ToolCalls {
					index := 0
					if delta.Index != nil {
						index = *delta.Index
					}
					pending, ok := pendingToolCalls[index]
					if !ok {
						pending = &llms.ToolCall{}
						pendingToolCalls[index] = pending
					}
					if delta.ID != "" {
						pending.ID = delta.ID
					}
					if delta.Function.Name != "" {
						pending.Name = delta.Function.Name
					}
					pending.Arguments += delta.Function.Arguments
				}

				if choice.Delta.Content != "" {
					if !yield(StreamContentChunk{
						finishReason: choice.FinishReason,
						content:      choice.Delta.Content,
					}, nil) {
						return
					}
				}
			}

			if responseBody.Usage != nil {
				span.SetAttributes(
					attribute.Int("usage.input", responseBody.Usage.PromptTokens),
					attribute.Int("usage.output", responseBody.Usage.CompletionTokens),
					attribute.Int("usage.total", responseBody.Usage.TotalTokens),
				)
				if !yield(StreamUsageChunk{
					usage: llms.Usage{
						InputTokens:  responseBody.Usage.PromptTokens,
						OutputTokens: responseBody.Usage.CompletionTokens,
						TotalTokens:  responseBody.Usage.TotalTokens,
					},
				}, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			err = fmt.Errorf("error reading streamed response: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		indices := make([]int, 0, len(pendingToolCalls))
		for index := range pendingToolCalls {
			indices = append(indices, index)
		}
		sort.Ints(indices)

		assembledToolNames := []string{}
		for _, index := range indices {
			assembled := pendingToolCalls[index]
			assembledToolNames = append(assembledToolNames, assembled.Name)
			if !yield(StreamToolCallChunk{
				finishReason: finishReason,
				toolCall:     *assembled,
			}, nil) {
				return
			}
		}
		span.SetAttributes(attribute.StringSlice("response.tool_calls", assembledToolNames))
	}
}

type requestBody struct {
	Model      string    `json:"model"`
	Messages   []message `json:"messages"`
	Stream     bool      `json:"stream"`
	ToolChoice *string   `json:"tool_choice,omitempty"`
	Tools      []tool    `json:"tools,omitempty"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Role      string     `json:"role,omitempty"`
			Content   string     `json:"content,omitempty"`
			ToolCalls []toolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
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
