package events

// KindFunctionCallCompleted identifies a tool invocation that finished and
// wants a follow-up response generated.
const KindFunctionCallCompleted Kind = "function_call.completed"

// FunctionCallCompleted is emitted by the function call broker after a tool
// ran to completion. UserMessage is the user-facing question that prompted
// the call, and is what the follow-up response should answer.
type FunctionCallCompleted struct {
	Base
	Name        string
	Arguments   string
	UserMessage string
}

func NewFunctionCallCompleted(name, arguments, userMessage string) FunctionCallCompleted {
	return FunctionCallCompleted{
		Base:        NewBase(KindFunctionCallCompleted),
		Name:        name,
		Arguments:   arguments,
		UserMessage: userMessage,
	}
}
