package orchestration

import "errors"

var (
	// ErrInvariantViolation reports an attempt to displace the system
	// message or otherwise rewrite conversation history. It indicates a
	// programming error, not a runtime condition.
	ErrInvariantViolation = errors.New("conversation history invariant violated")

	// ErrUnknownFunction reports a model-issued call to a function that was
	// never registered. The invocation is logged and dropped.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrMissingArgument reports a model-issued call that omits a required
	// argument. The invocation is logged and dropped.
	ErrMissingArgument = errors.New("missing required argument")

	// ErrPipelineActive reports an attempt to start a response pipeline
	// while another is still running.
	ErrPipelineActive = errors.New("response pipeline already active")
)
