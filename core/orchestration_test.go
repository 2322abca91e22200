package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onyxvoice/onyx-core/core/events"
	"github.com/onyxvoice/onyx-core/core/llms"
	"github.com/onyxvoice/onyx-core/core/synthesis"
	"github.com/onyxvoice/onyx-core/core/vision"
)

func TestGreetingThenChatProducesOrderedTranscript(t *testing.T) {
	llm := &scriptedLLM{scripts: []scriptedStream{
		{chunks: contentChunks("Hi ", "there.")},
	}}
	synthesizer := &stubSynthesizer{}

	o := NewOrchestrator(
		WithLLM(llm),
		WithSynthesizer(synthesizer),
		WithSystemPrompt("You are a test assistant."),
		WithGreeting("Hello! How can I help?"),
	)
	defer o.Close()

	audioReceived := make(chan []byte, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o.Orchestrate(ctx, WithAudioCallback(func(audio []byte) {
		select {
		case audioReceived <- audio:
		default:
		}
	}))

	waitForCondition(t, 2*time.Second, "greeting to be spoken", func() bool {
		return len(o.Conversation()) == 2
	})

	select {
	case <-audioReceived:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for greeting audio")
	}

	o.SendChatMessage("hello", "tester")

	waitForCondition(t, 2*time.Second, "reply to be appended", func() bool {
		return len(o.Conversation()) == 4
	})

	messages := o.Conversation()
	if messages[0].Role != llms.RoleSystem || messages[0].Text() != "You are a test assistant." {
		t.Fatalf("expected the system prompt first, got %+v", messages[0])
	}
	if messages[1].Role != llms.RoleAssistant || messages[1].Text() != "Hello! How can I help?" {
		t.Fatalf("expected the greeting second, got %+v", messages[1])
	}
	if messages[2].Role != llms.RoleUser || messages[2].Text() != "hello" {
		t.Fatalf("expected the user message third, got %+v", messages[2])
	}
	if messages[3].Role != llms.RoleAssistant || messages[3].Text() != "Hi there." {
		t.Fatalf("expected the reply fourth, got %+v", messages[3])
	}

	waitForCondition(t, 2*time.Second, "session to go idle", func() bool {
		return o.State() == StateIdle
	})
}

func TestNewTriggerInterruptsActiveResponse(t *testing.T) {
	llm := &scriptedLLM{scripts: []scriptedStream{
		{chunks: contentChunks("Working on A"), hold: true},
		{chunks: contentChunks("Reply to B.")},
	}}

	o := NewOrchestrator(WithLLM(llm), WithSynthesizer(&stubSynthesizer{}))
	defer o.Close()

	cancelled := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o.Orchestrate(ctx, WithCancellationCallback(func() {
		select {
		case cancelled <- struct{}{}:
		default:
		}
	}))

	o.SendChatMessage("message A", "tester")

	waitForCondition(t, 2*time.Second, "first response to start", func() bool {
		return o.State() == StateResponding && len(o.Conversation()) == 2
	})

	o.SendChatMessage("message B", "tester")

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the interruption")
	}

	waitForCondition(t, 2*time.Second, "reply to B to be appended", func() bool {
		return len(o.Conversation()) == 4
	})

	messages := o.Conversation()
	if messages[1].Role != llms.RoleUser || messages[1].Text() != "message A" {
		t.Fatalf("expected user message A at index 1, got %+v", messages[1])
	}
	if messages[2].Role != llms.RoleUser || messages[2].Text() != "message B" {
		t.Fatalf("expected user message B at index 2 with no reply to A before it, got %+v", messages[2])
	}
	if messages[3].Role != llms.RoleAssistant || messages[3].Text() != "Reply to B." {
		t.Fatalf("expected the reply to B last, got %+v", messages[3])
	}
}

func TestVisionFunctionCallAttachesCachedFrame(t *testing.T) {
	frame := vision.Frame{Data: []byte{0xf0, 0x0d}, MIMEType: "image/jpeg", TrackID: "TR_1"}

	llm := &scriptedLLM{scripts: []scriptedStream{
		{chunks: []llms.StreamChunk{toolCallChunkStub{call: llms.ToolCall{
			ID:        "call_1",
			Name:      VisionFunctionName,
			Arguments: `{"user_msg":"what is this"}`,
		}}}},
		{chunks: contentChunks("It looks like a plant.")},
	}}

	o := NewOrchestrator(WithLLM(llm), WithSynthesizer(&stubSynthesizer{}))
	defer o.Close()

	o.frames.Set(frame)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Orchestrate(ctx)

	o.SendChatMessage("what is this?", "tester")

	waitForCondition(t, 2*time.Second, "vision follow-up reply", func() bool {
		return len(o.Conversation()) == 5
	})

	messages := o.Conversation()
	if len(messages[2].ToolCalls) != 1 || messages[2].ToolCalls[0].Name != VisionFunctionName {
		t.Fatalf("expected the assistant tool call at index 2, got %+v", messages[2])
	}

	followUp := messages[3]
	if followUp.Role != llms.RoleUser || followUp.Text() != "what is this" {
		t.Fatalf("expected the follow-up user message, got %+v", followUp)
	}
	var image *llms.ImageRef
	for _, part := range followUp.Parts {
		if part.Kind == llms.PartKindImage {
			image = part.Image
		}
	}
	if image == nil {
		t.Fatal("expected the follow-up message to carry the cached frame")
	}
	if image.MIMEType != "image/jpeg" || len(image.Data) != 2 {
		t.Fatalf("expected the cached frame to be attached, got %+v", image)
	}

	if messages[4].Text() != "It looks like a plant." {
		t.Fatalf("expected the vision reply last, got %+v", messages[4])
	}

	if len(llm.recordedCalls()) != 2 {
		t.Fatalf("expected two model calls, got %d", len(llm.recordedCalls()))
	}
	firstCall := llm.recordedCalls()[0]
	foundVisionTool := false
	for _, tool := range firstCall.Tools {
		if tool.Name == VisionFunctionName {
			foundVisionTool = true
		}
	}
	if !foundVisionTool {
		t.Fatal("expected the vision tool to be offered to the model")
	}
}

func TestVisionTriggerWithEmptyCacheAttachesNoImage(t *testing.T) {
	llm := &scriptedLLM{scripts: []scriptedStream{
		{chunks: contentChunks("I cannot see anything yet.")},
	}}

	o := NewOrchestrator(WithLLM(llm), WithSynthesizer(&stubSynthesizer{}))
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Orchestrate(ctx)

	o.Handle(events.NewFunctionCallCompleted(VisionFunctionName, `{"user_msg":"describe"}`, "describe"))

	waitForCondition(t, 2*time.Second, "reply to be appended", func() bool {
		return len(o.Conversation()) == 3
	})

	userMessage := o.Conversation()[1]
	if len(userMessage.Parts) != 1 || userMessage.Parts[0].Kind != llms.PartKindText {
		t.Fatalf("expected a text-only user message when the cache is empty, got %+v", userMessage.Parts)
	}
}

func TestMalformedFunctionCompletionNeverStartsPipeline(t *testing.T) {
	llm := &scriptedLLM{}
	o := NewOrchestrator(WithLLM(llm), WithSynthesizer(&stubSynthesizer{}))
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Orchestrate(ctx)

	o.Handle(events.NewFunctionCallCompleted(VisionFunctionName, `{}`, ""))
	o.SendChatMessage("   ", "tester")

	time.Sleep(100 * time.Millisecond)

	if got := len(o.Conversation()); got != 1 {
		t.Fatalf("expected the conversation to stay untouched, got %d messages", got)
	}
	if o.State() != StateIdle {
		t.Fatalf("expected the session to stay idle, got %v", o.State())
	}
	if calls := len(llm.recordedCalls()); calls != 0 {
		t.Fatalf("expected no model calls, got %d", calls)
	}
}

func TestModelFailureReturnsToIdleWithUserMessageKept(t *testing.T) {
	llm := &scriptedLLM{scripts: []scriptedStream{
		{err: errors.New("backend unavailable")},
	}}

	o := NewOrchestrator(WithLLM(llm), WithSynthesizer(&stubSynthesizer{}))
	defer o.Close()

	failed := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o.Orchestrate(ctx, WithErrorCallback(func(err error) {
		select {
		case failed <- err:
		default:
		}
	}))

	o.SendChatMessage("hello", "tester")

	select {
	case err := <-failed:
		if !strings.Contains(err.Error(), "backend unavailable") {
			t.Fatalf("expected the backend failure to surface, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the failure callback")
	}

	waitForCondition(t, 2*time.Second, "session to go idle", func() bool {
		return o.State() == StateIdle
	})

	messages := o.Conversation()
	if len(messages) != 2 || messages[1].Role != llms.RoleUser {
		t.Fatalf("expected only the user message to be appended, got %+v", messages)
	}
}

func TestSynthesisFailureAbortsResponseAndReturnsToIdle(t *testing.T) {
	llm := &scriptedLLM{scripts: []scriptedStream{
		{chunks: contentChunks("All done.")},
	}}
	// The generator accepts all text but reports an asynchronous failure
	// instead of ever signalling that speech ended.
	synthesizer := &stubSynthesizer{failAsync: errors.New("websocket: close 1006 (abnormal closure)")}

	o := NewOrchestrator(WithLLM(llm), WithSynthesizer(synthesizer))
	defer o.Close()

	failed := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o.Orchestrate(ctx, WithErrorCallback(func(err error) {
		select {
		case failed <- err:
		default:
		}
	}))

	o.SendChatMessage("read me the summary", "tester")

	select {
	case err := <-failed:
		if !strings.Contains(err.Error(), "close 1006") {
			t.Fatalf("expected the generator failure to surface, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the synthesis failure to surface")
	}

	waitForCondition(t, 2*time.Second, "session to go idle", func() bool {
		return o.State() == StateIdle
	})

	messages := o.Conversation()
	if len(messages) != 2 || messages[1].Role != llms.RoleUser {
		t.Fatalf("expected no assistant message after the synthesis failure, got %+v", messages)
	}
}

func TestUserSpeechStartedStopsPlaybackWithoutNewResponse(t *testing.T) {
	llm := &scriptedLLM{scripts: []scriptedStream{
		{chunks: contentChunks("Long running reply"), hold: true},
	}}

	o := NewOrchestrator(WithLLM(llm), WithSynthesizer(&stubSynthesizer{}))
	defer o.Close()

	cancelled := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o.Orchestrate(ctx, WithCancellationCallback(func() {
		select {
		case cancelled <- struct{}{}:
		default:
		}
	}))

	o.SendChatMessage("tell me a story", "tester")

	waitForCondition(t, 2*time.Second, "response to start", func() bool {
		return o.State() == StateResponding
	})

	o.Handle(events.NewUserSpeechStarted())

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the barge-in cancellation")
	}

	waitForCondition(t, 2*time.Second, "session to go idle", func() bool {
		return o.State() == StateIdle
	})

	messages := o.Conversation()
	if len(messages) != 2 {
		t.Fatalf("expected no assistant message after barge-in, got %+v", messages)
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

func contentChunks(texts ...string) []llms.StreamChunk {
	chunks := make([]llms.StreamChunk, 0, len(texts))
	for _, text := range texts {
		chunks = append(chunks, contentChunkStub{content: text})
	}
	return chunks
}

type scriptedLLM struct {
	mu      sync.Mutex
	calls   []llms.StreamOptions
	scripts []scriptedStream
}

func (s *scriptedLLM) PromptWithStream(_ context.Context, opts ...llms.StreamOption) llms.Stream {
	options := llms.StreamOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, options)
	script := scriptedStream{err: errors.New("no script configured")}
	if len(s.scripts) > 0 {
		script = s.scripts[0]
		s.scripts = s.scripts[1:]
	}
	return script
}

func (s *scriptedLLM) recordedCalls() []llms.StreamOptions {
	s.mu.Lock()
	defer s.mu.Unlock()

	calls := make([]llms.StreamOptions, len(s.calls))
	copy(calls, s.calls)
	return calls
}

// scriptedStream replays its chunks, then either finishes, fails, or holds
// open until the consumer's context is cancelled.
type scriptedStream struct {
	chunks []llms.StreamChunk
	err    error
	hold   bool
}

func (s scriptedStream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, chunk := range s.chunks {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}

		if s.err != nil {
			yield(nil, s.err)
			return
		}
		if s.hold {
			<-ctx.Done()
			yield(nil, ctx.Err())
		}
	}
}

type contentChunkStub struct{ content string }

func (c contentChunkStub) FinishReason() *string { return nil }
func (c contentChunkStub) Content() string       { return c.content }

type toolCallChunkStub struct{ call llms.ToolCall }

func (c toolCallChunkStub) FinishReason() *string { return nil }

func (c toolCallChunkStub) ToolCall() llms.ToolCall { return c.call }

type stubSynthesizer struct {
	mu         sync.Mutex
	failToOpen error
	failAsync  error
	generators []*stubGenerator
}

func (s *stubSynthesizer) NewSpeechGenerator(_ context.Context, opts ...synthesis.Option) (synthesis.SpeechGenerator, error) {
	if s.failToOpen != nil {
		return nil, s.failToOpen
	}

	options := synthesis.Options{}
	for _, opt := range opts {
		opt(&options)
	}
	options.ApplyDefaults()

	generator := &stubGenerator{options: options, failAsync: s.failAsync}
	s.mu.Lock()
	s.generators = append(s.generators, generator)
	s.mu.Unlock()
	return generator, nil
}

type stubGenerator struct {
	mu        sync.Mutex
	options   synthesis.Options
	failAsync error
	sent      []string
	cancelled bool
	closed    bool
}

func (g *stubGenerator) SendText(text string) error {
	g.mu.Lock()
	if g.closed || g.cancelled {
		g.mu.Unlock()
		return fmt.Errorf("speech generator closed")
	}
	g.sent = append(g.sent, text)
	g.mu.Unlock()

	g.options.SpeechAudioCallback([]byte(text))
	return nil
}

func (g *stubGenerator) Mark() error { return nil }

func (g *stubGenerator) EndOfText() error {
	g.mu.Lock()
	if g.closed || g.cancelled {
		g.mu.Unlock()
		return fmt.Errorf("speech generator closed")
	}
	g.closed = true
	failure := g.failAsync
	g.mu.Unlock()

	if failure != nil {
		go g.options.ErrorCallback(failure)
		return nil
	}

	g.options.SpeechEndedCallback()
	return nil
}

func (g *stubGenerator) Cancel() error {
	g.mu.Lock()
	g.cancelled = true
	g.closed = true
	g.mu.Unlock()
	return nil
}

func (g *stubGenerator) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	return nil
}
