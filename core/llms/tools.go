package llms

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// Parameter describes a single tool parameter for providers that take flat
// JSON schema style declarations.
type Parameter struct {
	Type        string
	Description string
}

// Tool is a function the model may ask to call. Parameters and Required
// describe its argument schema; Execute runs it against the raw argument
// JSON the model produced.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]Parameter
	Required    []string

	execute func(arguments string) (string, error)
}

// NewTool creates a tool with an explicitly declared parameter schema. All
// declared parameters are required. T is the struct the model's argument
// JSON unmarshals into before being handed to the handler.
func NewTool[T any](
	name string,
	description string,
	parameters map[string]Parameter,
	handler func(parameters T) (string, error),
) Tool {
	required := make([]string, 0, len(parameters))
	for parameter := range parameters {
		required = append(required, parameter)
	}

	return Tool{
		Name:        name,
		Description: description,
		Parameters:  parameters,
		Required:    required,
		execute:     unmarshalAndCall(name, handler),
	}
}

// NewReflectedTool derives the parameter schema from T's fields and json
// tags instead of an explicit declaration.
func NewReflectedTool[T any](
	name string,
	description string,
	handler func(parameters T) (string, error),
) Tool {
	reflector := jsonschema.Reflector{DoNotReference: true}

	var zero T
	schema := reflector.ReflectFromType(reflect.TypeOf(zero))

	parameters := map[string]Parameter{}
	if schema.Properties != nil {
		for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			parameters[pair.Key] = Parameter{
				Type:        pair.Value.Type,
				Description: pair.Value.Description,
			}
		}
	}

	return Tool{
		Name:        name,
		Description: description,
		Parameters:  parameters,
		Required:    schema.Required,
		execute:     unmarshalAndCall(name, handler),
	}
}

// Execute runs the tool against the raw argument JSON from the model.
func (t Tool) Execute(arguments string) (string, error) {
	if t.execute == nil {
		return "", fmt.Errorf("tool %q has no handler", t.Name)
	}
	return t.execute(arguments)
}

func unmarshalAndCall[T any](name string, handler func(T) (string, error)) func(string) (string, error) {
	return func(arguments string) (string, error) {
		var parameters T
		if arguments != "" {
			if err := json.Unmarshal([]byte(arguments), &parameters); err != nil {
				return "", fmt.Errorf("failed to unmarshal arguments for tool %q: %w", name, err)
			}
		}
		return handler(parameters)
	}
}
