// Package orchestration coordinates one realtime voice and vision session:
// it owns the conversation history, the latest-frame cache, the function
// call broker, and the response pipeline, and enforces that a new trigger
// always interrupts the response currently being spoken.
package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/onyxvoice/onyx-core/core/audio"
	"github.com/onyxvoice/onyx-core/core/events"
	"github.com/onyxvoice/onyx-core/core/llms"
	"github.com/onyxvoice/onyx-core/core/speechtotext"
	"github.com/onyxvoice/onyx-core/core/vision"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultSystemPrompt = "You are a helpful voice assistant. Keep your responses short and conversational."

const defaultTrackAwaitTimeout = 10 * time.Second

// VisionFunctionName is the builtin function the model calls to answer
// questions about the current camera view. Its completion re-triggers a
// response with the latest cached frame attached.
const VisionFunctionName = "describe_scene"

type describeSceneArguments struct {
	UserMsg string `json:"user_msg" jsonschema_description:"The user message that asked about the current view, passed through unchanged"`
}

type Orchestrator struct {
	conversation *Conversation
	frames       *vision.FrameCache
	broker       *FunctionCallBroker
	loop         *sessionLoop

	llm          LLM
	synthesizer  Synthesizer
	speechToText SpeechToText
	audioInput   AudioInput
	audioOutput  AudioOutput
	videoSource  VideoSource

	systemPrompt      string
	greeting          string
	extraTools        []llms.Tool
	trackAwaitTimeout time.Duration
	responseTimeout   time.Duration

	orchestrateOptions OrchestrateOptions
	baseContext        context.Context

	closeOnce sync.Once
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		frames:            vision.NewFrameCache(),
		systemPrompt:      defaultSystemPrompt,
		trackAwaitTimeout: defaultTrackAwaitTimeout,
		baseContext:       context.Background(),
	}
	o.loop = newSessionLoop(o)
	o.broker = newFunctionCallBroker(func(event events.Event) { o.Handle(event) })

	for _, opt := range opts {
		opt(o)
	}

	o.conversation = NewConversation(o.systemPrompt)

	visionTool := llms.NewReflectedTool(
		VisionFunctionName,
		"Call this when the user asks about what can currently be seen through the camera.",
		func(arguments describeSceneArguments) (string, error) {
			return arguments.UserMsg, nil
		},
	)
	for _, tool := range append([]llms.Tool{visionTool}, o.extraTools...) {
		if err := o.broker.Register(tool); err != nil {
			logger.WarnContext(o.baseContext, "skipping tool registration", "tool", tool.Name, "error", err)
		}
	}

	return o
}

// Orchestrate starts the session: it speaks the configured greeting, begins
// consuming triggers, and wires up the configured speech-to-text, audio
// input, and video source. ctx bounds the whole session; when it ends the
// orchestrator closes.
//
// Call Orchestrate at most once per orchestrator instance.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) {
	if !o.loop.CanIngest() {
		logger.WarnContext(ctx, "orchestrator already closed, skipping Orchestrate")
		return
	}

	o.orchestrateOptions = OrchestrateOptions{}
	for _, opt := range opts {
		opt(&o.orchestrateOptions)
	}
	o.baseContext = ctx

	if started := o.loop.Start(ctx, o.greeting); !started {
		return
	}

	go func() {
		<-ctx.Done()
		o.Close()
	}()

	if o.videoSource != nil {
		go o.readFrames(ctx)
		go func() {
			select {
			case <-o.videoSource.Done():
				o.Close()
			case <-o.loop.done:
			}
		}()
	}

	o.startSpeechToText(ctx)
	o.startAudioInput(ctx)
}

// Handle submits an event to the session's intake queue. Events arriving
// after Close are dropped.
func (o *Orchestrator) Handle(event events.Event) {
	if !o.loop.Ingest(event) {
		logger.WarnContext(o.baseContext, "intake closed, dropping event", "kind", string(event.Kind()))
	}
}

// SendChatMessage submits a user chat message as a response trigger.
func (o *Orchestrator) SendChatMessage(text, sender string) {
	o.Handle(events.NewChatMessage(text, sender))
}

// SendAudio forwards captured audio to the configured speech-to-text client.
func (o *Orchestrator) SendAudio(chunk []byte) error {
	if o.speechToText == nil {
		return nil
	}
	return o.speechToText.SendAudio(chunk)
}

// State reports whether the session is idle or currently responding.
func (o *Orchestrator) State() State {
	return o.loop.State()
}

// Conversation returns a point-in-time copy of the message history.
func (o *Orchestrator) Conversation() []llms.Message {
	return o.conversation.Snapshot()
}

// LatestFrame returns the most recent cached video frame, if any.
func (o *Orchestrator) LatestFrame() (vision.Frame, bool) {
	return o.frames.Get()
}

// Broker exposes the function call broker, for registering additional tools
// before Orchestrate is called.
func (o *Orchestrator) Broker() *FunctionCallBroker {
	return o.broker
}

func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.loop.Stop()

		if o.audioInput != nil {
			o.audioInput.Close()
		}
		if err := o.closeSpeechToText(o.baseContext); err != nil {
			recordedErr := fmt.Errorf("failed to close speech-to-text client: %w", err)
			span := trace.SpanFromContext(o.baseContext)
			span.RecordError(recordedErr)
			span.SetStatus(codes.Error, recordedErr.Error())
		}

		o.loop.AwaitDone()
	})
}

func (o *Orchestrator) newResponsePipeline(ctx context.Context) *responsePipeline {
	var runCtx context.Context
	var cancel context.CancelFunc
	if o.responseTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.responseTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	return &responsePipeline{
		llm:          o.llm,
		synthesizer:  o.synthesizer,
		audioOutput:  o.audioOutput,
		conversation: o.conversation,
		broker:       o.broker,
		frames:       o.frames,
		callbacks:    o.orchestrateOptions.runtimeCallbacks(),
		textBuffer:   newTextBuffer(),
		ctx:          runCtx,
		cancelRun:    cancel,
	}
}

func (o *Orchestrator) startSpeechToText(ctx context.Context) {
	if o.speechToText == nil {
		return
	}

	encodingInfo := audio.GetDefaultEncodingInfo()
	if o.audioInput != nil {
		encodingInfo = o.audioInput.EncodingInfo()
	}

	err := o.speechToText.Transcribe(ctx,
		speechtotext.WithEncodingInfo(encodingInfo),
		speechtotext.WithSpeechStartedCallback(func() {
			o.Handle(events.NewUserSpeechStarted())
		}),
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			if callback := o.orchestrateOptions.onTranscription; callback != nil {
				callback(transcript)
			}
			o.Handle(events.NewUserTranscriptFinal(transcript))
		}),
	)
	if err != nil {
		recordedErr := fmt.Errorf("failed to start transcribing: %w", err)
		span := trace.SpanFromContext(ctx)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
		logger.ErrorContext(ctx, "failed to start transcribing", "error", err)
	}
}

func (o *Orchestrator) startAudioInput(ctx context.Context) {
	if o.audioInput == nil {
		return
	}

	// Stream blocks for the session's lifetime on some backends.
	go func() {
		err := o.audioInput.Stream(ctx, func(chunk []byte) {
			if callback := o.orchestrateOptions.onInputAudio; callback != nil {
				callback(chunk)
			}
			if o.speechToText != nil {
				if err := o.speechToText.SendAudio(chunk); err != nil {
					logger.WarnContext(ctx, "failed to forward captured audio", "error", err)
				}
			}
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to start audio capture", "error", err)
		}
	}()
}

func (o *Orchestrator) closeSpeechToText(ctx context.Context) error {
	if o.speechToText == nil {
		return nil
	}

	switch client := o.speechToText.(type) {
	case interface{ Close(context.Context) error }:
		return client.Close(ctx)
	case interface{ Close(context.Context) }:
		client.Close(ctx)
	case interface{ Close() error }:
		return client.Close()
	case interface{ Close() }:
		client.Close()
	}

	return nil
}
