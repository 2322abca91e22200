package orchestration

import (
	"context"
	"time"

	"github.com/onyxvoice/onyx-core/core/audio"
	"github.com/onyxvoice/onyx-core/core/llms"
	"github.com/onyxvoice/onyx-core/core/speechtotext"
	"github.com/onyxvoice/onyx-core/core/synthesis"
	livekittransport "github.com/onyxvoice/onyx-core/core/transport/livekit"
	"github.com/onyxvoice/onyx-core/core/vision"
)

type OrchestratorOption func(*Orchestrator)

// LLM produces streamed replies over the conversation history.
type LLM interface {
	PromptWithStream(ctx context.Context, opts ...llms.StreamOption) llms.Stream
}

func WithLLM(client LLM) OrchestratorOption {
	return func(o *Orchestrator) { o.llm = client }
}

// Synthesizer opens speech generators that turn reply text into audio.
type Synthesizer interface {
	NewSpeechGenerator(ctx context.Context, opts ...synthesis.Option) (synthesis.SpeechGenerator, error)
}

func WithSynthesizer(client Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.synthesizer = client }
}

type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
}

func WithSpeechToText(client SpeechToText) OrchestratorOption {
	return func(o *Orchestrator) { o.speechToText = client }
}

type AudioOutput interface {
	EncodingInfo() audio.EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
}

func WithAudioOutput(client AudioOutput) OrchestratorOption {
	return func(o *Orchestrator) { o.audioOutput = client }
}

type AudioInput interface {
	EncodingInfo() audio.EncodingInfo
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	Close()
}

func WithAudioInput(client AudioInput) OrchestratorOption {
	return func(o *Orchestrator) { o.audioInput = client }
}

// VideoTrack is one remote video stream the frame reader can drain.
type VideoTrack interface {
	ID() string
	NextFrame(ctx context.Context) (vision.Frame, error)
}

// VideoSource hands out video tracks as they become available. The frame
// reader waits on it for the lifetime of the session, re-acquiring whenever
// the current track ends.
type VideoSource interface {
	AwaitVideoTrack(ctx context.Context) (VideoTrack, error)
	Done() <-chan struct{}
}

func WithVideoSource(source VideoSource) OrchestratorOption {
	return func(o *Orchestrator) { o.videoSource = source }
}

// WithRoom wires a LiveKit room as both the chat message source and the
// video source. Apply it before connecting the room so the chat handler is
// in place when data packets start arriving.
func WithRoom(room *livekittransport.Room) OrchestratorOption {
	return func(o *Orchestrator) {
		room.OnChatMessage(func(text, sender string) {
			o.SendChatMessage(text, sender)
		})
		o.videoSource = roomVideoSource{room: room}
	}
}

// roomVideoSource narrows the concrete room track type to the VideoTrack
// interface.
type roomVideoSource struct {
	room *livekittransport.Room
}

func (s roomVideoSource) AwaitVideoTrack(ctx context.Context) (VideoTrack, error) {
	track, err := s.room.AwaitVideoTrack(ctx)
	if err != nil {
		return nil, err
	}
	return track, nil
}

func (s roomVideoSource) Done() <-chan struct{} { return s.room.Done() }

func WithSystemPrompt(prompt string) OrchestratorOption {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

// WithGreeting sets a scripted line the session speaks before going idle.
func WithGreeting(greeting string) OrchestratorOption {
	return func(o *Orchestrator) { o.greeting = greeting }
}

func WithTools(tools ...llms.Tool) OrchestratorOption {
	return func(o *Orchestrator) { o.extraTools = append(o.extraTools, tools...) }
}

// WithTrackAwaitTimeout bounds each wait for a video track to appear. The
// frame reader retries after every timeout while the session is open.
func WithTrackAwaitTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.trackAwaitTimeout = timeout
		}
	}
}

// WithResponseTimeout bounds each response from trigger to end of speech.
// Zero, the default, leaves responses bounded only by the session context.
func WithResponseTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.responseTimeout = timeout
		}
	}
}

type OrchestrateOptions struct {
	onTranscription func(transcript string)
	onResponse      func(response string)
	onResponseEnd   func()
	onCancellation  func()
	onInputAudio    func(audio []byte)
	onAudio         func(audio []byte)
	onAudioEnded    func(spokenText string)
	onError         func(err error)
}

type OrchestrateOption func(*OrchestrateOptions)

// WithTranscriptionCallback registers a callback for final transcriptions
// produced by the configured speech-to-text client.
func WithTranscriptionCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onTranscription = callback }
}

// WithResponseCallback registers a callback for reply fragments as the model
// streams them.
func WithResponseCallback(callback func(response string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onResponse = callback }
}

func WithResponseEndCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onResponseEnd = callback }
}

// WithCancellationCallback registers a callback fired when an in-progress
// response is interrupted.
func WithCancellationCallback(callback func()) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onCancellation = callback }
}

func WithAudioCallback(callback func(audio []byte)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onAudio = callback }
}

// WithAudioEndedCallback registers a callback fired once a response has been
// fully spoken, with the text that was spoken.
func WithAudioEndedCallback(callback func(spokenText string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onAudioEnded = callback }
}

// WithInputAudioCallback registers a callback for raw input audio chunks.
//
// The provided slice is passed through as-is (no defensive copy). The
// callback runs inline on the input-audio path and should not block.
func WithInputAudioCallback(callback func(audio []byte)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onInputAudio = callback }
}

// WithErrorCallback registers a callback for response pipeline failures.
// After a failure the session returns to idle; no retry is attempted.
func WithErrorCallback(callback func(err error)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onError = callback }
}
