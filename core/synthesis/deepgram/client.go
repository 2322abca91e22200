// Package deepgram streams text to the Deepgram speak websocket and relays
// synthesized audio through the synthesis callbacks.
package deepgram

import (
	"fmt"
	"os"
	"slices"
)

type Client struct {
	apiKey string
	voice  Voice
}

type ClientOption func(*Client)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithVoice(voice Voice) ClientOption {
	return func(c *Client) { c.voice = voice }
}

// NewClient creates a speech synthesis client. The API key falls back to the
// DEEPGRAM_API_KEY environment variable.
func NewClient(opts ...ClientOption) (*Client, error) {
	client := &Client{voice: defaultVoice}
	for _, opt := range opts {
		opt(client)
	}

	if !slices.Contains(GetAvailableVoices(), client.voice) {
		return nil, fmt.Errorf("invalid voice %q", client.voice)
	}

	if client.apiKey == "" {
		client.apiKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if client.apiKey == "" {
		return nil, fmt.Errorf("missing Deepgram API key")
	}

	return client, nil
}
