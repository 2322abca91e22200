package llms

// StreamOptions collects the inputs of a streamed prompt.
type StreamOptions struct {
	Messages []Message
	Tools    []Tool
}

type StreamOption func(*StreamOptions)

// WithMessages appends messages to the prompt. Repeating this option keeps
// appending.
func WithMessages(messages ...Message) StreamOption {
	return func(opts *StreamOptions) {
		opts.Messages = append(opts.Messages, messages...)
	}
}

// WithTools makes tools available to the model for this prompt.
func WithTools(tools ...Tool) StreamOption {
	return func(opts *StreamOptions) {
		opts.Tools = append(opts.Tools, tools...)
	}
}
