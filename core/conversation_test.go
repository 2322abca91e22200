package orchestration

import (
	"errors"
	"sync"
	"testing"

	"github.com/onyxvoice/onyx-core/core/llms"
)

func TestConversationKeepsSystemMessageAtIndexZero(t *testing.T) {
	conversation := NewConversation("You are a helpful assistant.")

	if err := conversation.Append(llms.NewUserMessage(llms.TextPart("hello"))); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}
	if err := conversation.Append(llms.NewAssistantMessage("hi there")); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}

	messages := conversation.Snapshot()
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].Role != llms.RoleSystem || messages[0].Text() != "You are a helpful assistant." {
		t.Fatalf("expected the system prompt at index 0, got %+v", messages[0])
	}
	if messages[1].Role != llms.RoleUser || messages[2].Role != llms.RoleAssistant {
		t.Fatalf("expected user then assistant, got %v then %v", messages[1].Role, messages[2].Role)
	}
}

func TestConversationRejectsSecondSystemMessage(t *testing.T) {
	conversation := NewConversation("prompt")

	err := conversation.Append(llms.NewSystemMessage("replacement prompt"))
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}

	if conversation.Len() != 1 {
		t.Fatalf("expected history to stay untouched, got %d messages", conversation.Len())
	}
}

func TestConversationSnapshotIsIndependentCopy(t *testing.T) {
	conversation := NewConversation("prompt")
	if err := conversation.Append(llms.NewUserMessage(llms.TextPart("hello"))); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}

	snapshot := conversation.Snapshot()
	if err := conversation.Append(llms.NewUserMessage(llms.TextPart("again"))); err != nil {
		t.Fatalf("unexpected append error: %v", err)
	}

	if len(snapshot) != 2 {
		t.Fatalf("expected snapshot to keep 2 messages, got %d", len(snapshot))
	}
}

func TestConversationConcurrentAppends(t *testing.T) {
	conversation := NewConversation("prompt")

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = conversation.Append(llms.NewUserMessage(llms.TextPart("msg")))
		}()
	}
	wg.Wait()

	if conversation.Len() != 11 {
		t.Fatalf("expected 11 messages, got %d", conversation.Len())
	}
	if conversation.Snapshot()[0].Role != llms.RoleSystem {
		t.Fatal("expected the system prompt to stay at index 0")
	}
}
