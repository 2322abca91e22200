package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/onyxvoice/onyx-core/core/audio"
	"github.com/onyxvoice/onyx-core/core/synthesis"
)

type speechGenerator struct {
	ws *websocket.Conn
	mu sync.Mutex

	// textBuffer holds mark-delimited text segments. Only the head segment
	// is in flight at the websocket; the rest are sent one Flushed message
	// at a time because Deepgram drops text sent right after a flush.
	textBuffer   []string
	textBufferMu sync.Mutex

	options synthesis.Options

	// State flags are shared between callers and the read-loop goroutine,
	// which flips closed while callers are mid-send.
	textComplete atomic.Bool
	cancelled    atomic.Bool
	closed       atomic.Bool
}

// NewSpeechGenerator opens a websocket to the speak endpoint and starts
// relaying its messages to the configured callbacks.
func (c *Client) NewSpeechGenerator(ctx context.Context, opts ...synthesis.Option) (synthesis.SpeechGenerator, error) {
	generator := &speechGenerator{}
	for _, opt := range opts {
		opt(&generator.options)
	}
	generator.options.ApplyDefaults()

	var err error
	if generator.ws, err = connectWebsocket(ctx, c.apiKey, c.voice, generator.options.EncodingInfo); err != nil {
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	go generator.processIncomingMessages(ctx)

	return generator, nil
}

func connectWebsocket(ctx context.Context, apiKey string, voice Voice, encodingInfo audio.EncodingInfo) (*websocket.Conn, error) {
	urlValues := url.Values{}
	urlValues.Set("encoding", encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	urlValues.Set("model", string(voice))
	urlValues.Set("container", "none")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx,
		(&url.URL{
			Scheme: "wss",
			Host:   "api.deepgram.com", Path: "/v1/speak",
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{"Authorization": {"token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (g *speechGenerator) processIncomingMessages(ctx context.Context) {
	for {
		msgType, msg, err := g.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !g.closed.Load() {
				logger.ErrorContext(ctx, "Websocket read error", "error", err)
				g.options.ErrorCallback(fmt.Errorf("failed to read websocket message: %w", err))
			}
			if err := g.Cancel(); err != nil {
				_ = g.Close() // Ignored on purpose
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			g.options.SpeechAudioCallback(msg)

		case websocket.TextMessage:
			var parsedMsg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.WarnContext(ctx, "Failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				g.advanceTextBuffer(ctx)
			case "Warning":
				logger.WarnContext(ctx, "Deepgram warning", "message", string(msg))
			}
		}
	}
}

// advanceTextBuffer handles a Flushed confirmation: the head segment has
// been fully synthesized, so report its mark and put the next segment on
// the wire.
func (g *speechGenerator) advanceTextBuffer(ctx context.Context) {
	g.textBufferMu.Lock()
	defer g.textBufferMu.Unlock()

	if len(g.textBuffer) > 0 {
		g.options.SpeechMarkCallback(g.textBuffer[0])
		g.textBuffer = g.textBuffer[1:]
	}

	if len(g.textBuffer) == 0 && g.textComplete.Load() {
		g.options.SpeechEndedCallback()
		_ = g.Close()
		return
	}

	if len(g.textBuffer) > 0 {
		if err := g.sendWebsocketMessage(sendTextMsg(g.textBuffer[0])); err != nil {
			logger.ErrorContext(ctx, "Failed to send deepgram text", "error", err)
		}
	}
	if len(g.textBuffer) > 1 {
		if err := g.sendWebsocketMessage(flushMsg); err != nil {
			logger.ErrorContext(ctx, "Failed to flush deepgram buffer", "error", err)
		}
	}
}

func (g *speechGenerator) SendText(text string) error {
	if g.closed.Load() {
		return fmt.Errorf("speech generator closed")
	} else if g.cancelled.Load() {
		return fmt.Errorf("speech generator cancelled")
	} else if g.textComplete.Load() {
		return fmt.Errorf("speech generator text already completed")
	}

	g.textBufferMu.Lock()
	defer g.textBufferMu.Unlock()

	if len(g.textBuffer) == 0 {
		g.textBuffer = append(g.textBuffer, "")
	}

	if len(g.textBuffer) == 1 {
		if err := g.sendWebsocketMessage(sendTextMsg(text)); err != nil {
			return fmt.Errorf("failed to send websocket send text message: %w", err)
		}
	}
	g.textBuffer[len(g.textBuffer)-1] += text
	return nil
}

func (g *speechGenerator) Mark() error {
	if g.closed.Load() {
		return fmt.Errorf("speech generator closed")
	} else if g.cancelled.Load() {
		return fmt.Errorf("speech generator cancelled")
	} else if g.textComplete.Load() {
		return fmt.Errorf("speech generator text already completed")
	}

	g.textBufferMu.Lock()
	defer g.textBufferMu.Unlock()

	if len(g.textBuffer) == 1 {
		if err := g.sendWebsocketMessage(flushMsg); err != nil {
			return fmt.Errorf("failed to send websocket flush message: %w", err)
		}
	}

	// Deepgram sometimes drops text passed right after a flush, so the next
	// segment is held back until the flush confirmation arrives.
	g.textBuffer = append(g.textBuffer, "")

	return nil
}

func (g *speechGenerator) EndOfText() error {
	if g.closed.Load() {
		return fmt.Errorf("speech generator closed")
	} else if g.cancelled.Load() {
		return fmt.Errorf("speech generator cancelled")
	}
	g.textBufferMu.Lock()
	defer g.textBufferMu.Unlock()

	g.textComplete.Store(true)
	if len(g.textBuffer) == 0 ||
		(len(g.textBuffer) == 1 && g.textBuffer[0] == "") {
		g.textBuffer = nil
		g.options.SpeechEndedCallback()
		_ = g.Close()
		return nil
	}

	if len(g.textBuffer) == 1 {
		if err := g.sendWebsocketMessage(flushMsg); err != nil {
			return fmt.Errorf("failed to send websocket flush message: %w", err)
		}
	}

	return nil
}

func (g *speechGenerator) Cancel() error {
	if g.closed.Load() {
		return fmt.Errorf("speech generator closed")
	}

	g.cancelled.Store(true)
	if err := g.sendWebsocketMessage(clearMsg); err != nil {
		_ = g.Close()
		return fmt.Errorf("failed to send websocket clear message: %w", err)
	}

	return g.Close()
}

func (g *speechGenerator) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := g.sendClosedWebsocketMessage(closeMsg); err != nil {
		if aggressiveCloseErr := g.ws.Close(); aggressiveCloseErr != nil {
			return fmt.Errorf("failed to close websocket: %w", errors.Join(err, aggressiveCloseErr))
		}
	}
	return nil
}

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var (
	sendTextMsg = func(text string) speakMessage {
		return speakMessage{Type: "Speak", Text: text}
	}
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

func (g *speechGenerator) sendWebsocketMessage(msg any) error {
	if g.closed.Load() {
		return fmt.Errorf("websocket connection closed")
	}
	return g.sendClosedWebsocketMessage(msg)
}

// sendClosedWebsocketMessage writes even after the generator is marked
// closed, which Close itself needs to deliver the Close message.
func (g *speechGenerator) sendClosedWebsocketMessage(msg any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ws == nil {
		return fmt.Errorf("websocket connection closed")
	}

	if err := g.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}
