package orchestration

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/onyxvoice/onyx-core/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const intakeQueueCapacity = 10

// State is the session's response state.
type State string

const (
	// StateIdle means no response is in flight.
	StateIdle State = "idle"
	// StateResponding means a response pipeline is generating or speaking.
	StateResponding State = "responding"
)

// sessionLoop consumes the typed event intake on a single goroutine. That
// single consumer is what serializes pipeline starts: a new qualifying
// trigger first cancels the active pipeline and waits for its goroutine to
// exit, so at most one pipeline ever runs and conversation appends happen in
// pipeline-start order.
type sessionLoop struct {
	orchestrator *Orchestrator

	intake  chan events.Event
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once
	started   atomic.Bool

	state atomic.Value

	// active and activeDone belong to the loop goroutine.
	active     *responsePipeline
	activeDone chan struct{}
}

func newSessionLoop(orchestrator *Orchestrator) *sessionLoop {
	loop := &sessionLoop{
		orchestrator: orchestrator,
		intake:       make(chan events.Event, intakeQueueCapacity),
		closeCh:      make(chan struct{}),
		done:         make(chan struct{}),
	}
	loop.state.Store(StateIdle)
	return loop
}

func (loop *sessionLoop) State() State {
	return loop.state.Load().(State)
}

func (loop *sessionLoop) CanIngest() bool {
	if loop == nil {
		return false
	}

	select {
	case <-loop.closeCh:
		return false
	default:
		return true
	}
}

// Ingest queues an event for the loop. It reports false once the loop has
// been stopped.
func (loop *sessionLoop) Ingest(event events.Event) bool {
	if loop == nil || !loop.CanIngest() {
		return false
	}

	select {
	case <-loop.closeCh:
		return false
	case loop.intake <- event:
		return true
	}
}

// Start launches the consumer goroutine. greeting, when non-empty, is spoken
// before any queued event is processed.
func (loop *sessionLoop) Start(ctx context.Context, greeting string) (started bool) {
	if loop == nil || !loop.CanIngest() {
		return false
	}

	loop.startOnce.Do(func() {
		started = true
		loop.started.Store(true)
		go loop.run(ctx, greeting)
	})

	return started
}

func (loop *sessionLoop) Stop() {
	if loop == nil {
		return
	}

	loop.endOnce.Do(func() { close(loop.closeCh) })
}

func (loop *sessionLoop) AwaitDone() {
	if loop == nil {
		return
	}

	if loop.started.Load() {
		<-loop.done
	}
}

func (loop *sessionLoop) run(ctx context.Context, greeting string) {
	defer close(loop.done)
	defer loop.interrupt()

	if greeting != "" {
		loop.startPipeline(ctx, func(pipeline *responsePipeline) error {
			return pipeline.runScripted(greeting)
		})
	}

	for {
		select {
		case <-loop.closeCh:
			return
		case <-loop.activeDoneOrNil():
			loop.active = nil
			loop.activeDone = nil
			loop.state.Store(StateIdle)
		case event := <-loop.intake:
			if !loop.CanIngest() {
				return
			}
			loop.handleEvent(ctx, event)
		}
	}
}

// activeDoneOrNil returns a nil channel while no pipeline is active, which
// disables that select case.
func (loop *sessionLoop) activeDoneOrNil() <-chan struct{} {
	if loop.activeDone == nil {
		return nil
	}
	return loop.activeDone
}

func (loop *sessionLoop) handleEvent(ctx context.Context, event events.Event) {
	ctx, span := tracer.Start(ctx, "handle session event")
	defer span.End()
	span.SetAttributes(attribute.String("event.kind", string(event.Kind())))

	switch event := event.(type) {
	case events.ChatMessage:
		if strings.TrimSpace(event.Text) == "" {
			return
		}
		loop.startResponse(ctx, event.Text, false)

	case events.UserTranscriptFinal:
		if strings.TrimSpace(event.Transcript) == "" {
			return
		}
		loop.startResponse(ctx, event.Transcript, false)

	case events.FunctionCallCompleted:
		if strings.TrimSpace(event.UserMessage) == "" {
			logger.WarnContext(ctx, "dropping function call completion without a usable user message",
				"function", event.Name)
			return
		}
		loop.startResponse(ctx, event.UserMessage, true)

	case events.UserSpeechStarted:
		// Barge-in: stop current playback without starting anything new.
		loop.interrupt()

	default:
		logger.WarnContext(ctx, "ignoring unhandled event", "kind", string(event.Kind()))
	}
}

// startResponse cancels any active pipeline, waits for it to exit, and
// starts a fresh one for the trigger.
func (loop *sessionLoop) startResponse(ctx context.Context, trigger string, useImage bool) {
	loop.startPipeline(ctx, func(pipeline *responsePipeline) error {
		return pipeline.run(trigger, useImage)
	})
}

func (loop *sessionLoop) startPipeline(ctx context.Context, run func(*responsePipeline) error) {
	loop.interrupt()

	pipeline := loop.orchestrator.newResponsePipeline(ctx)
	done := make(chan struct{})
	loop.active = pipeline
	loop.activeDone = done
	loop.state.Store(StateResponding)

	go func() {
		defer close(done)
		defer pipeline.cancelRun()

		if err := run(pipeline); err != nil {
			_, span := tracer.Start(pipeline.ctx, "response pipeline failure")
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			pipeline.callbacks.onError(err)
		}
	}()
}

// interrupt cancels the active pipeline and blocks until its goroutine has
// exited, acknowledging that audio output has stopped.
func (loop *sessionLoop) interrupt() {
	if loop.active == nil {
		return
	}

	select {
	case <-loop.activeDone:
		// Already finished, nothing to cancel.
	default:
		loop.active.Cancel()
		<-loop.activeDone
	}
	loop.active = nil
	loop.activeDone = nil
	loop.state.Store(StateIdle)
}
