// Package openai renders speech through the OpenAI audio API. It has no
// streaming synthesis endpoint, so it is meant to be wrapped in a
// synthesis.SentenceGenerator.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/onyxvoice/onyx-core/core/audio"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	url = "https://api.openai.com/v1/audio/speech"

	defaultModel = "tts-1"
	defaultVoice = "alloy"

	// The PCM response format is fixed at 24kHz 16-bit mono.
	pcmSampleRate = 24000
)

type Client struct {
	apiKey string
	model  string
	voice  string

	httpClient *http.Client
}

type ClientOption func(*Client)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func WithVoice(voice string) ClientOption {
	return func(c *Client) { c.voice = voice }
}

// NewClient creates a speech client. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...ClientOption) (*Client, error) {
	client := &Client{
		model: defaultModel,
		voice: defaultVoice,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
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

// EncodingInfo describes the audio the client produces.
func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: pcmSampleRate, Format: audio.EncodingLinear16}
}

// Synthesize renders text as raw PCM audio.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", c.model),
		attribute.String("request.voice", c.voice),
		attribute.Int("request.text_length", len(text)),
	)

	requestBodyBytes, err := json.Marshal(requestBody{
		Model:          c.model,
		Voice:          c.voice,
		Input:          text,
		ResponseFormat: "pcm",
	})
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}

		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	speech, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("error reading response body: %w", err)
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("response.audio_bytes", len(speech)))
	return speech, nil
}

type requestBody struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}
