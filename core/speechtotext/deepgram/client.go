// Package deepgram streams audio to the Deepgram listen websocket and turns
// its messages into transcription callbacks.
package deepgram

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultModel    = "nova-2"
	defaultLanguage = "en-US"
)

type TranscriptionClient struct {
	apiKey   string
	model    string
	language string

	conn   *websocket.Conn
	connMu sync.Mutex

	lastAudioAt       time.Time
	pendingTranscript string
	openSegment       bool
}

type ClientOption func(*TranscriptionClient)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *TranscriptionClient) { c.apiKey = apiKey }
}

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) { c.model = model }
}

func WithLanguage(language string) ClientOption {
	return func(c *TranscriptionClient) { c.language = language }
}

// NewTranscriptionClient creates a live transcription client. The API key
// falls back to the DEEPGRAM_API_KEY environment variable.
func NewTranscriptionClient(opts ...ClientOption) (*TranscriptionClient, error) {
	client := &TranscriptionClient{
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, opt := range opts {
		opt(client)
	}

	if client.apiKey == "" {
		client.apiKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if client.apiKey == "" {
		return nil, fmt.Errorf("missing Deepgram API key")
	}

	return client, nil
}
