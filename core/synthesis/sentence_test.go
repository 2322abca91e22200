package synthesis

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSplitSentences(t *testing.T) {
	for _, tc := range []struct {
		name      string
		text      string
		sentences []string
		rest      string
	}{
		{
			name: "no boundary",
			text: "still going",
			rest: "still going",
		},
		{
			name:      "single sentence with trailing fragment",
			text:      "Hello there. What a",
			sentences: []string{"Hello there."},
			rest:      "What a",
		},
		{
			name:      "multiple terminators",
			text:      "Really?! Yes. Absol",
			sentences: []string{"Really?!", "Yes."},
			rest:      "Absol",
		},
		{
			name:      "terminator at end of text",
			text:      "All done!",
			sentences: []string{"All done!"},
			rest:      "",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sentences, rest := SplitSentences(tc.text)
			if len(sentences) != len(tc.sentences) {
				t.Fatalf("expected sentences %q, got %q", tc.sentences, sentences)
			}
			for i := range sentences {
				if sentences[i] != tc.sentences[i] {
					t.Errorf("expected sentence %q, got %q", tc.sentences[i], sentences[i])
				}
			}
			if rest != tc.rest {
				t.Errorf("expected rest %q, got %q", tc.rest, rest)
			}
		})
	}
}

type scriptedSpeaker struct {
	mu        sync.Mutex
	requested []string
}

func (s *scriptedSpeaker) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested = append(s.requested, text)
	return []byte(text), nil
}

func (s *scriptedSpeaker) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requested...)
}

func TestSentenceGeneratorSynthesizesInOrder(t *testing.T) {
	speaker := &scriptedSpeaker{}

	var audio strings.Builder
	marks := make(chan string, 4)
	ended := make(chan struct{})

	generator := NewSentenceGenerator(t.Context(), speaker,
		WithSpeechAudioCallback(func(chunk []byte) { audio.Write(chunk) }),
		WithSpeechMarkCallback(func(mark string) { marks <- mark }),
		WithSpeechEndedCallback(func() { close(ended) }),
	)
	defer generator.Close()

	for _, chunk := range []string{"Hello ", "there. How ", "are you?"} {
		if err := generator.SendText(chunk); err != nil {
			t.Fatalf("unexpected error sending text: %v", err)
		}
	}
	if err := generator.Mark(); err != nil {
		t.Fatalf("unexpected error marking: %v", err)
	}
	if err := generator.EndOfText(); err != nil {
		t.Fatalf("unexpected error ending text: %v", err)
	}

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for speech to end")
	}

	requests := speaker.requests()
	if len(requests) != 2 {
		t.Fatalf("expected 2 synthesized sentences, got %q", requests)
	}
	if requests[0] != "Hello there." || requests[1] != "How are you?" {
		t.Errorf("unexpected synthesis order: %q", requests)
	}

	select {
	case mark := <-marks:
		if mark != "Hello there. How are you?" {
			t.Errorf("expected mark to cover all sent text, got %q", mark)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mark")
	}
}

func TestSentenceGeneratorRejectsTextAfterEnd(t *testing.T) {
	generator := NewSentenceGenerator(t.Context(), &scriptedSpeaker{})
	defer generator.Close()

	if err := generator.EndOfText(); err != nil {
		t.Fatalf("unexpected error ending text: %v", err)
	}
	if err := generator.SendText("too late"); err == nil {
		t.Fatal("expected an error sending text after EndOfText")
	}
}

type blockingSpeaker struct {
	started chan struct{}
	once    sync.Once
}

func (s *blockingSpeaker) Synthesize(ctx context.Context, _ string) ([]byte, error) {
	s.once.Do(func() { close(s.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSentenceGeneratorCancelReturnsWhileQueueIsFull(t *testing.T) {
	speaker := &blockingSpeaker{started: make(chan struct{})}
	generator := NewSentenceGenerator(t.Context(), speaker,
		WithErrorCallback(func(error) {}),
	)
	defer generator.Close()

	// One sentence occupies the worker, the rest back up in the queue until
	// a sender ends up blocked handing over its job.
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for range 100 {
			if err := generator.SendText("Filling the queue. "); err != nil {
				return
			}
		}
	}()

	select {
	case <-speaker.started:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for synthesis to start")
	}

	cancelled := make(chan error, 1)
	go func() { cancelled <- generator.Cancel() }()

	select {
	case err := <-cancelled:
		if err != nil {
			t.Fatalf("unexpected error cancelling: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancel blocked behind a sender stuck on the full queue")
	}

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("sender did not unblock after cancel")
	}
}

func TestSentenceGeneratorCancelStopsSynthesis(t *testing.T) {
	generator := NewSentenceGenerator(t.Context(), &scriptedSpeaker{})

	if err := generator.Cancel(); err != nil {
		t.Fatalf("unexpected error cancelling: %v", err)
	}
	if err := generator.SendText("after cancel"); err == nil {
		t.Fatal("expected an error sending text after Cancel")
	}
	if err := generator.Cancel(); err == nil {
		t.Fatal("expected an error cancelling a closed generator")
	}
}
