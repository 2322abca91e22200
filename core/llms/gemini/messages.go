package gemini

import (
	"encoding/json"

	"github.com/onyxvoice/onyx-core/core/llms"
	"google.golang.org/genai"
)

// toContents splits a conversation into the system instruction and the
// alternating user/model contents the Gemini API expects. Image parts are
// passed as inline blobs rather than data URLs.
func toContents(conversation []llms.Message) (systemInstruction *genai.Content, contents []*genai.Content) {
	for _, msg := range conversation {
		switch msg.Role {
		case llms.RoleSystem:
			systemInstruction = genai.NewContentFromText(msg.Text(), genai.RoleUser)

		case llms.RoleUser:
			content := &genai.Content{Role: genai.RoleUser}
			for _, part := range msg.Parts {
				switch part.Kind {
				case llms.PartKindText:
					content.Parts = append(content.Parts, genai.NewPartFromText(part.Text))
				case llms.PartKindImage:
					if part.Image == nil {
						continue
					}
					content.Parts = append(content.Parts, genai.NewPartFromBytes(part.Image.Data, part.Image.MIMEType))
				}
			}
			contents = append(contents, content)

		case llms.RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if text := msg.Text(); text != "" {
				content.Parts = append(content.Parts, genai.NewPartFromText(text))
			}

			var responses []*genai.Content
			for _, toolCall := range msg.ToolCalls {
				var args map[string]any
				if toolCall.Arguments != "" {
					if err := json.Unmarshal([]byte(toolCall.Arguments), &args); err != nil {
						logger.Warn("Dropping tool call with unparseable arguments", "tool", toolCall.Name, "error", err)
						continue
					}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: toolCall.ID, Name: toolCall.Name, Args: args},
				})
				if toolCall.Response != "" {
					responses = append(responses, &genai.Content{
						Role: genai.RoleUser,
						Parts: []*genai.Part{{
							FunctionResponse: &genai.FunctionResponse{
								ID:       toolCall.ID,
								Name:     toolCall.Name,
								Response: map[string]any{"output": toolCall.Response},
							},
						}},
					})
				}
			}

			contents = append(contents, content)
			contents = append(contents, responses...)
		}
	}
	return systemInstruction, contents
}

func toDeclarations(tools []llms.Tool) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		properties := map[string]*genai.Schema{}
		for name, parameter := range tool.Parameters {
			properties[name] = &genai.Schema{
				Type:        toSchemaType(parameter.Type),
				Description: parameter.Description,
			}
		}

		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   tool.Required,
			},
		})
	}
	return declarations
}

func toSchemaType(jsonType string) genai.Type {
	switch jsonType {
	case "string":
		return genai.TypeString
	case "boolean":
		return genai.TypeBoolean
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	}
	return genai.TypeUnspecified
}
