package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/onyxvoice/onyx-core/core/audio"
	"github.com/onyxvoice/onyx-core/core/speechtotext"
	"github.com/onyxvoice/onyx-core/internal/utils"
)

// Transcribe opens a live transcription stream. Audio is fed in through
// SendAudio; recognition results come back through the option callbacks.
func (s *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	options := &speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		return fmt.Errorf("invalid encoding: %w", err)
	}

	params := listenParams{
		sampleRate: encoding.SampleRate,
		encoding:   encoding.Format.Name(),

		vadEvents: options.SpeechStartedCallback != nil ||
			options.TranscriptionCallback != nil || options.SpeechEndedCallback != nil,
		utteranceEnds: options.TranscriptionCallback != nil ||
			options.SpeechEndedCallback != nil,
		interimResults: options.InterimTranscriptionCallback != nil ||
			options.PartialInterimTranscriptionCallback != nil,
	}

	conn, err := s.dialListen(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	go s.readLoop(ctx, conn, *options)

	return nil
}

type listenParams struct {
	sampleRate int
	encoding   string

	vadEvents      bool
	utteranceEnds  bool
	interimResults bool
}

func (s *TranscriptionClient) dialListen(ctx context.Context, params listenParams) (*websocket.Conn, error) {
	query := url.Values{}
	query.Set("encoding", params.encoding)
	query.Set("sample_rate", strconv.Itoa(params.sampleRate))
	query.Set("channels", "1")
	query.Set("model", s.model)
	query.Set("language", s.language)
	query.Set("smart_format", "true")
	query.Set("endpointing", "300")
	if params.utteranceEnds {
		// Utterance ends require interim results on the wire even when no
		// interim callback is set.
		query.Set("utterance_end_ms", "1000")
		query.Set("interim_results", "true")
	} else if params.interimResults {
		query.Set("interim_results", "true")
	}
	if params.vadEvents {
		query.Set("vad_events", "true")
	}

	listenURL := url.URL{
		Scheme:   "wss",
		Host:     "api.deepgram.com",
		Path:     "/v1/listen",
		RawQuery: query.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + s.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

// SendAudio forwards a chunk of caller audio to the stream.
func (s *TranscriptionClient) SendAudio(audio []byte) error {
	s.lastAudioAt = time.Now()
	return s.writeBinary(audio)
}

func (s *TranscriptionClient) writeBinary(chunk []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("transcription stream is not open")
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (s *TranscriptionClient) writeControl(msgType string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return nil
	}
	if err := s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: msgType}); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

// StopStream announces the end of the audio without closing the websocket,
// letting deepgram flush any pending results.
func (s *TranscriptionClient) StopStream() error {
	return s.writeControl(string(api.TypeCloseStreamResponse))
}

// Close announces the end of the stream and closes the websocket.
func (s *TranscriptionClient) Close(ctx context.Context) error {
	if err := s.StopStream(); err != nil {
		logger.WarnContext(ctx, "Failed to announce transcription stream close", "error", err)
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close deepgram websocket: %w", err)
	}
	return nil
}

func (s *TranscriptionClient) readLoop(ctx context.Context, conn *websocket.Conn, options speechtotext.TranscriptionOptions) {
	fillerCtx, stopFiller := context.WithCancel(ctx)
	defer stopFiller()
	go s.fillAudioGaps(fillerCtx, options.EncodingInfo)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.ErrorContext(ctx, "Failed to read deepgram websocket message", "error", err)
			}

			s.connMu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			s.connMu.Unlock()
			conn.Close()
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		// Dispatch on the read loop itself. Transcript handling mutates the
		// pending segment state, which is only safe from a single goroutine,
		// and callers rely on callbacks arriving in wire order.
		s.dispatchMessage(ctx, msg, options)
	}
}

func (s *TranscriptionClient) dispatchMessage(ctx context.Context, msg []byte, options speechtotext.TranscriptionOptions) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &header); err != nil {
		logger.WarnContext(ctx, "Failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(header.Type) {
	case api.TypeMessageResponse:
		var result api.MessageResponse
		if err := json.Unmarshal(msg, &result); err != nil {
			logger.WarnContext(ctx, "Failed to unmarshal deepgram transcript", "error", err)
			return
		}
		s.handleTranscript(result, options)

	case api.TypeUtteranceEndResponse:
		// Fired after a gap with no speech-final transcript; ends the open
		// segment if one is pending.
		if s.openSegment {
			s.endSegment(options)
		}

	case api.TypeSpeechStartedResponse:
		s.openSegment = true
		if options.SpeechStartedCallback != nil {
			options.SpeechStartedCallback()
		}
	}
}

func (s *TranscriptionClient) handleTranscript(result api.MessageResponse, options speechtotext.TranscriptionOptions) {
	if len(result.Channel.Alternatives) == 0 {
		return
	}
	transcript := strings.TrimSpace(result.Channel.Alternatives[0].Transcript)

	if !result.IsFinal {
		if transcript == "" {
			return
		}
		if options.PartialInterimTranscriptionCallback != nil {
			options.PartialInterimTranscriptionCallback(transcript)
		} else if options.InterimTranscriptionCallback != nil {
			options.InterimTranscriptionCallback(strings.TrimSpace(s.pendingTranscript + " " + transcript))
		}
		return
	}

	if transcript != "" {
		if options.TranscriptionCallback != nil {
			s.pendingTranscript += " " + transcript
		}
		if options.PartialTranscriptionCallback != nil {
			options.PartialTranscriptionCallback(transcript)
		}
	}
	if result.SpeechFinal {
		s.endSegment(options)
	}
}

func (s *TranscriptionClient) endSegment(options speechtotext.TranscriptionOptions) {
	s.openSegment = false
	if options.TranscriptionCallback != nil {
		transcript := strings.TrimSpace(s.pendingTranscript)
		s.pendingTranscript = ""
		if transcript != "" {
			options.TranscriptionCallback(transcript)
		}
	}
	if options.SpeechEndedCallback != nil {
		options.SpeechEndedCallback()
	}
}

const (
	fillerInterval = 50 * time.Millisecond
	// After this much continuous silence the filler switches from silence
	// audio to KeepAlive messages, so endpointing can settle.
	silencePadding    = time.Second
	keepAliveInterval = 5 * time.Second
)

// fillAudioGaps keeps the websocket alive through gaps in the audio feed.
// Short gaps are padded with silence so endpointing still works; longer ones
// degrade to periodic KeepAlive messages.
func (s *TranscriptionClient) fillAudioGaps(ctx context.Context, encoding audio.EncodingInfo) {
	silence := make([]byte, encoding.SampleRate*encoding.Format.ByteSize()*int(fillerInterval.Milliseconds())/1000)
	for i := range silence {
		silence[i] = encoding.SilenceValue()
	}

	ticker := time.NewTicker(fillerInterval)
	defer ticker.Stop()

	var silenceSince *time.Time
	var keepAliveAt *time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if time.Since(s.lastAudioAt) < fillerInterval {
			// Real audio is flowing.
			silenceSince = nil
			keepAliveAt = nil
			continue
		}

		if keepAliveAt != nil {
			if time.Since(*keepAliveAt) >= keepAliveInterval {
				keepAliveAt = utils.Ptr(time.Now())
				if err := s.writeControl("KeepAlive"); err != nil {
					logger.ErrorContext(ctx, "Failed to send keepalive", "error", err)
				}
			}
			continue
		}

		if silenceSince == nil {
			silenceSince = utils.Ptr(time.Now())
		}
		if time.Since(*silenceSince) >= silencePadding {
			silenceSince = nil
			keepAliveAt = utils.Ptr(time.Now())
			continue
		}

		if err := s.writeBinary(silence); err != nil {
			logger.ErrorContext(ctx, "Sending silence audio error", "error", err)
		}
	}
}
