package orchestration

import (
	"fmt"
	"sync"

	"github.com/onyxvoice/onyx-core/core/llms"
)

// Conversation is the ordered message history for one session. The system
// prompt sits at index 0 for the session's lifetime; every other message is
// appended and never reordered or removed.
type Conversation struct {
	mu       sync.RWMutex
	messages []llms.Message
}

func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{
		messages: []llms.Message{llms.NewSystemMessage(systemPrompt)},
	}
}

// Append adds a message to the end of the history. Appending a system
// message after construction would displace the fixed system prompt and
// returns ErrInvariantViolation.
func (c *Conversation) Append(message llms.Message) error {
	if message.Role == llms.RoleSystem {
		return fmt.Errorf("%w: system message is fixed at construction", ErrInvariantViolation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, message)
	return nil
}

// Snapshot returns a point-in-time copy of the history. It reflects every
// append that completed before the call.
func (c *Conversation) Snapshot() []llms.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	messages := make([]llms.Message, len(c.messages))
	copy(messages, c.messages)
	return messages
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.messages)
}
