package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/onyxvoice/onyx-core/core/llms"
	"github.com/onyxvoice/onyx-core/core/synthesis"
	"github.com/onyxvoice/onyx-core/core/vision"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// runtimeCallbacks are the per-session callbacks a pipeline reports through.
// All fields are non-nil after OrchestrateOptions.runtimeCallbacks.
type runtimeCallbacks struct {
	onResponse     func(response string)
	onResponseEnd  func()
	onAudio        func(audio []byte)
	onAudioEnded   func(spokenText string)
	onCancellation func()
	onError        func(err error)
}

func (o OrchestrateOptions) runtimeCallbacks() runtimeCallbacks {
	callbacks := runtimeCallbacks{
		onResponse:     o.onResponse,
		onResponseEnd:  o.onResponseEnd,
		onAudio:        o.onAudio,
		onAudioEnded:   o.onAudioEnded,
		onCancellation: o.onCancellation,
		onError:        o.onError,
	}
	if callbacks.onResponse == nil {
		callbacks.onResponse = func(string) {}
	}
	if callbacks.onResponseEnd == nil {
		callbacks.onResponseEnd = func() {}
	}
	if callbacks.onAudio == nil {
		callbacks.onAudio = func([]byte) {}
	}
	if callbacks.onAudioEnded == nil {
		callbacks.onAudioEnded = func(string) {}
	}
	if callbacks.onCancellation == nil {
		callbacks.onCancellation = func() {}
	}
	if callbacks.onError == nil {
		callbacks.onError = func(error) {}
	}
	return callbacks
}

// responsePipeline turns one trigger into a model call, a streamed reply,
// and spoken output. A pipeline runs at most once; interruption goes through
// Cancel, which stops audio promptly and suppresses the assistant append.
type responsePipeline struct {
	llm          LLM
	synthesizer  Synthesizer
	audioOutput  AudioOutput
	conversation *Conversation
	broker       *FunctionCallBroker
	frames       *vision.FrameCache
	callbacks    runtimeCallbacks

	textBuffer *textBuffer

	ctx       context.Context
	cancelRun context.CancelFunc

	genMu     sync.Mutex
	generator synthesis.SpeechGenerator

	started   atomic.Bool
	cancelled atomic.Bool
}

// run responds to a trigger. The user message is appended before generation
// starts; the assistant message is appended only when the run finishes
// without error or cancellation.
func (p *responsePipeline) run(trigger string, useImage bool) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrPipelineActive
	}
	if p.llm == nil {
		return errors.New("no language model configured")
	}

	ctx, span := tracer.Start(p.ctx, "respond")
	defer span.End()
	span.SetAttributes(attribute.Bool("respond.use_image", useImage))

	if err := p.conversation.Append(p.buildUserMessage(trigger, useImage)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	ctx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var workerErr error
	workerErrMu := sync.Mutex{}
	addWorkerErr := func(err error) {
		if err == nil {
			return
		}
		workerErrMu.Lock()
		workerErr = errors.Join(workerErr, err)
		workerErrMu.Unlock()
		cancelWorkers()
	}

	var toolCalls []llms.ToolCall
	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		addWorkerErr(namedWorker("reply generation", func(ctx context.Context) error {
			var err error
			toolCalls, err = p.generate(ctx)
			return err
		})(ctx))
	}()
	go func() {
		defer wg.Done()
		addWorkerErr(namedWorker("speech synthesis", p.speak)(ctx))
	}()
	wg.Wait()

	if workerErr != nil {
		span.RecordError(workerErr)
		span.SetStatus(codes.Error, workerErr.Error())
		return workerErr
	}
	if p.IsCancelled() {
		return nil
	}

	if replyText := p.textBuffer.String(); replyText != "" || len(toolCalls) > 0 {
		if err := p.conversation.Append(llms.NewAssistantMessage(replyText, toolCalls...)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	for _, toolCall := range toolCalls {
		// Malformed calls are logged and dropped by the broker.
		if err := p.broker.Invoke(ctx, toolCall.Name, toolCall.Arguments); err != nil &&
			!errors.Is(err, ErrUnknownFunction) && !errors.Is(err, ErrMissingArgument) {
			span.RecordError(err)
		}
	}

	return nil
}

// runScripted speaks a fixed line, bypassing the model. Used for the opening
// greeting. The line is appended as an assistant message unless interrupted.
func (p *responsePipeline) runScripted(text string) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrPipelineActive
	}

	ctx, span := tracer.Start(p.ctx, "respond scripted")
	defer span.End()

	p.textBuffer.AddChunk(text)
	p.textBuffer.TextComplete()
	p.callbacks.onResponse(text)
	p.callbacks.onResponseEnd()

	if err := namedWorker("speech synthesis", p.speak)(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if p.IsCancelled() {
		return nil
	}

	return p.conversation.Append(llms.NewAssistantMessage(text))
}

func (p *responsePipeline) buildUserMessage(trigger string, useImage bool) llms.Message {
	parts := []llms.Part{llms.TextPart(trigger)}
	if useImage {
		if frame, ok := p.frames.Get(); ok {
			parts = append(parts, llms.ImagePart(llms.ImageRef{
				MIMEType: frame.MIMEType,
				Data:     frame.Data,
				Width:    frame.Width,
				Height:   frame.Height,
			}))
		}
	}
	return llms.NewUserMessage(parts...)
}

func (p *responsePipeline) generate(ctx context.Context) ([]llms.ToolCall, error) {
	ctx, span := tracer.Start(ctx, "generate reply")
	defer span.End()
	defer p.textBuffer.TextComplete()

	stream := p.llm.PromptWithStream(ctx,
		llms.WithMessages(p.conversation.Snapshot()...),
		llms.WithTools(p.broker.DescribeAll()...),
	)

	var toolCalls []llms.ToolCall
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			if p.IsCancelled() || ctx.Err() != nil {
				return toolCalls, nil
			}
			err := fmt.Errorf("failed to generate reply: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if p.IsCancelled() {
			break
		}

		switch chunk := chunk.(type) {
		case llms.StreamContentChunk:
			p.textBuffer.AddChunk(chunk.Content())
			p.callbacks.onResponse(chunk.Content())
		case llms.StreamToolCallChunk:
			toolCalls = append(toolCalls, chunk.ToolCall())
		case llms.StreamUsageChunk:
			usage := chunk.Usage()
			span.SetAttributes(
				attribute.Int("llm.usage.input_tokens", usage.InputTokens),
				attribute.Int("llm.usage.output_tokens", usage.OutputTokens),
			)
		}
	}

	if !p.IsCancelled() {
		p.callbacks.onResponseEnd()
		if len(toolCalls) > 0 {
			names := make([]string, 0, len(toolCalls))
			for _, toolCall := range toolCalls {
				names = append(names, toolCall.Name)
			}
			span.SetAttributes(attribute.StringSlice("respond.tool_calls", names))
		}
	}

	return toolCalls, nil
}

func (p *responsePipeline) speak(ctx context.Context) error {
	if p.synthesizer == nil {
		return nil
	}

	disarm := onContextCancel(ctx, p.textBuffer.Clear)
	defer disarm()

	ctx, span := tracer.Start(ctx, "synthesize reply")
	defer span.End()

	speechEnded := make(chan struct{})
	// Generators report asynchronous failures through the error callback and
	// may never fire the ended callback afterwards, so failures must unblock
	// the wait below.
	speechFailed := make(chan error, 1)
	opts := []synthesis.Option{
		synthesis.WithSpeechAudioCallback(func(chunk []byte) {
			if p.IsCancelled() {
				return
			}
			p.callbacks.onAudio(chunk)
			if p.audioOutput != nil {
				if err := p.audioOutput.SendAudio(chunk); err != nil {
					span.RecordError(fmt.Errorf("failed to send audio to output: %w", err))
				}
			}
		}),
		synthesis.WithSpeechEndedCallback(func() { close(speechEnded) }),
		synthesis.WithErrorCallback(func(err error) {
			span.RecordError(fmt.Errorf("speech generation error: %w", err))
			select {
			case speechFailed <- err:
			default:
			}
		}),
	}
	if p.audioOutput != nil {
		opts = append(opts, synthesis.WithEncodingInfo(p.audioOutput.EncodingInfo()))
	}

	generator, err := p.synthesizer.NewSpeechGenerator(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to open speech generator: %w", err)
	}
	p.setGenerator(generator)
	defer generator.Close()

	for chunk := range p.textBuffer.Chunks {
		if p.IsCancelled() {
			break
		}
		if err := generator.SendText(chunk); err != nil {
			span.RecordError(fmt.Errorf("failed to send text to speech generator: %w", err))
			break
		}
		if strings.ContainsAny(chunk, ".?!") {
			if err := generator.Mark(); err != nil {
				span.RecordError(fmt.Errorf("failed to mark speech generator: %w", err))
			}
		}
	}

	if p.IsCancelled() {
		return nil
	}
	if err := generator.EndOfText(); err != nil {
		return fmt.Errorf("failed to finish speech generation: %w", err)
	}

	select {
	case <-speechEnded:
		p.callbacks.onAudioEnded(p.textBuffer.String())
	case err := <-speechFailed:
		if p.IsCancelled() {
			return nil
		}
		return fmt.Errorf("speech generation failed: %w", err)
	case <-ctx.Done():
	}

	return nil
}

// Cancel interrupts the pipeline: it stops pulling model fragments, stops
// speech generation, and clears any buffered output audio. The run never
// appends an assistant message after Cancel wins the swap.
func (p *responsePipeline) Cancel() {
	if p == nil || !p.cancelled.CompareAndSwap(false, true) {
		return
	}

	p.textBuffer.Clear()
	if generator := p.currentGenerator(); generator != nil {
		if err := generator.Cancel(); err != nil {
			logger.WarnContext(p.ctx, "failed to cancel speech generator", "error", err)
		}
	}
	p.cancelRun()
	if p.audioOutput != nil {
		p.audioOutput.ClearBuffer()
	}
	p.callbacks.onCancellation()
}

func (p *responsePipeline) IsCancelled() bool {
	if p == nil {
		return false
	}

	return p.cancelled.Load()
}

func (p *responsePipeline) setGenerator(generator synthesis.SpeechGenerator) {
	p.genMu.Lock()
	p.generator = generator
	p.genMu.Unlock()
}

func (p *responsePipeline) currentGenerator() synthesis.SpeechGenerator {
	p.genMu.Lock()
	defer p.genMu.Unlock()

	return p.generator
}
