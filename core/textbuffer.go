package orchestration

import (
	"strings"
	"sync"
)

// textBuffer decouples the pace of model generation from the pace of speech
// synthesis. The generation worker appends chunks as they stream in; the
// speech worker drains them through Chunks, blocking while the buffer is
// empty but not yet complete.
type textBuffer struct {
	mu       sync.Mutex
	pending  []string
	read     int
	complete bool
	cleared  bool

	more chan struct{}
}

func newTextBuffer() *textBuffer {
	return &textBuffer{more: make(chan struct{}, 1)}
}

func (b *textBuffer) AddChunk(chunk string) {
	b.mu.Lock()
	b.pending = append(b.pending, chunk)
	b.mu.Unlock()
	b.wake()
}

// TextComplete marks the buffer as fully written. Chunks returns once the
// remaining chunks are consumed.
func (b *textBuffer) TextComplete() {
	b.mu.Lock()
	b.complete = true
	b.mu.Unlock()
	b.wake()
}

// Clear unblocks and terminates any Chunks iteration. Used on cancellation.
func (b *textBuffer) Clear() {
	b.mu.Lock()
	b.cleared = true
	b.mu.Unlock()
	b.wake()
}

// Chunks yields buffered chunks in order, waiting for more while the buffer
// is neither complete nor cleared. Single consumer.
func (b *textBuffer) Chunks(yield func(string) bool) {
	for {
		chunk, ok := b.next()
		if !ok {
			return
		}
		if chunk == nil {
			<-b.more
			continue
		}
		if !yield(*chunk) {
			return
		}
	}
}

// next returns the next unread chunk, nil when the consumer should wait, or
// ok=false when iteration is over.
func (b *textBuffer) next() (*string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cleared {
		return nil, false
	}
	if b.read < len(b.pending) {
		chunk := b.pending[b.read]
		b.read++
		return &chunk, true
	}
	if b.complete {
		return nil, false
	}
	return nil, true
}

func (b *textBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return strings.Join(b.pending, "")
}

func (b *textBuffer) wake() {
	select {
	case b.more <- struct{}{}:
	default:
	}
}
