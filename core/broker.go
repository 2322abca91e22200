package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/onyxvoice/onyx-core/core/events"
	"github.com/onyxvoice/onyx-core/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// FunctionCallBroker holds the functions the model may invoke and dispatches
// model-issued calls to their handlers. Registration happens at startup; a
// successful invocation is forwarded to the session as a
// FunctionCallCompleted event carrying the handler's result.
//
// Malformed calls (unknown name, missing required argument) are logged and
// dropped without emitting anything. They indicate a model mistake, not a
// user-facing failure.
type FunctionCallBroker struct {
	mu    sync.RWMutex
	tools map[string]llms.Tool
	order []string

	emitEvent func(events.Event)
}

func newFunctionCallBroker(emitEvent func(events.Event)) *FunctionCallBroker {
	if emitEvent == nil {
		emitEvent = func(events.Event) {}
	}

	return &FunctionCallBroker{
		tools:     map[string]llms.Tool{},
		emitEvent: emitEvent,
	}
}

// Register adds a tool to the broker. Registering the same name twice is an
// error.
func (b *FunctionCallBroker) Register(tool llms.Tool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.tools[tool.Name]; exists {
		return fmt.Errorf("tool %q is already registered", tool.Name)
	}

	b.tools[tool.Name] = tool
	b.order = append(b.order, tool.Name)
	return nil
}

// DescribeAll returns the registered tools in registration order, for
// inclusion in model requests.
func (b *FunctionCallBroker) DescribeAll() []llms.Tool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	tools := make([]llms.Tool, 0, len(b.order))
	for _, name := range b.order {
		tools = append(tools, b.tools[name])
	}
	return tools
}

// Invoke dispatches a model-issued call. arguments is the raw argument JSON
// produced by the model and is echoed on the completion event.
func (b *FunctionCallBroker) Invoke(ctx context.Context, name, arguments string) error {
	ctx, span := tracer.Start(ctx, "invoke function call")
	defer span.End()
	span.SetAttributes(attribute.String("function_call.name", name))

	b.mu.RLock()
	tool, exists := b.tools[name]
	b.mu.RUnlock()
	if !exists {
		err := fmt.Errorf("%w: %q", ErrUnknownFunction, name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "dropping call to unknown function", "function", name)
		return err
	}

	if err := checkRequiredArguments(tool, arguments); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "dropping malformed function call", "function", name, "error", err)
		return err
	}

	result, err := tool.Execute(arguments)
	if err != nil {
		err := fmt.Errorf("function %q failed: %w", name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	b.emitEvent(events.NewFunctionCallCompleted(name, arguments, result))
	return nil
}

func checkRequiredArguments(tool llms.Tool, arguments string) error {
	provided := map[string]json.RawMessage{}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &provided); err != nil {
			return fmt.Errorf("failed to unmarshal arguments for function %q: %w", tool.Name, err)
		}
	}

	for _, required := range tool.Required {
		if _, ok := provided[required]; !ok {
			return fmt.Errorf("%w: function %q requires %q", ErrMissingArgument, tool.Name, required)
		}
	}

	return nil
}
