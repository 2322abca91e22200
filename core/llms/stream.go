package llms

import "context"

// Stream is a lazily consumed model response. Chunks returns a single-use
// iterator; breaking out of it abandons the underlying request.
type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

// StreamChunk is one delta from a streamed response. Concrete chunks also
// implement one of the specialized interfaces below depending on what the
// delta carries.
type StreamChunk interface {
	FinishReason() *string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

type StreamToolCallChunk interface {
	StreamChunk
	// ToolCall returns a fully accumulated tool call. Providers that stream
	// fragmented tool call deltas assemble them before emitting a chunk.
	ToolCall() ToolCall
}

type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
