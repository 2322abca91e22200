package deepgram

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/onyxvoice/onyx-core/core/synthesis"
)

// newLoopbackGenerator connects a generator to a local websocket server that
// drains everything it receives, so write paths behave like the live API.
func newLoopbackGenerator(t *testing.T, opts ...synthesis.Option) *speechGenerator {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("failed to dial loopback websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	generator := &speechGenerator{ws: conn}
	for _, opt := range opts {
		opt(&generator.options)
	}
	generator.options.ApplyDefaults()
	return generator
}

func TestCloseRacesWithSenders(t *testing.T) {
	g := newLoopbackGenerator(t)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if err := g.SendText("hello "); err != nil {
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = g.Close()
	}()
	wg.Wait()

	if err := g.Close(); err != nil {
		t.Fatalf("repeated close must be a no-op, got %v", err)
	}
	if err := g.SendText("late"); err == nil {
		t.Fatal("expected SendText on a closed generator to fail")
	}
	if err := g.Mark(); err == nil {
		t.Fatal("expected Mark on a closed generator to fail")
	}
	if err := g.Cancel(); err == nil {
		t.Fatal("expected Cancel on a closed generator to fail")
	}
}

func TestCancelRejectsFurtherText(t *testing.T) {
	g := newLoopbackGenerator(t)

	if err := g.SendText("partial response"); err != nil {
		t.Fatalf("failed to send text: %v", err)
	}
	if err := g.Cancel(); err != nil {
		t.Fatalf("failed to cancel: %v", err)
	}

	if err := g.SendText("more"); err == nil {
		t.Fatal("expected SendText after cancel to fail")
	}
	if err := g.EndOfText(); err == nil {
		t.Fatal("expected EndOfText after cancel to fail")
	}
}

func TestEndOfTextWithNothingBufferedEndsImmediately(t *testing.T) {
	ended := make(chan struct{})
	g := newLoopbackGenerator(t, synthesis.WithSpeechEndedCallback(func() {
		close(ended)
	}))

	if err := g.EndOfText(); err != nil {
		t.Fatalf("failed to end text: %v", err)
	}

	select {
	case <-ended:
	default:
		t.Fatal("expected the ended callback to fire synchronously")
	}

	if err := g.SendText("too late"); err == nil {
		t.Fatal("expected SendText after end of text to fail")
	}
}
