package openai

import (
	"encoding/json"

	"github.com/jinzhu/copier"
	"github.com/onyxvoice/onyx-core/core/llms"
)

type message struct {
	Role       messageRole    `json:"role"`
	Content    messageContent `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCall     `json:"tool_calls,omitempty"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
	messageRoleTool      messageRole = "tool"
)

// messageContent marshals as a plain string for text-only messages and as a
// content-part array when an image is present, matching what the chat
// completions endpoint expects for multimodal input.
type messageContent struct {
	parts []contentPart
}

func textContent(text string) messageContent {
	return messageContent{parts: []contentPart{{Type: contentTypeText, Text: text}}}
}

func (c messageContent) MarshalJSON() ([]byte, error) {
	if len(c.parts) == 0 {
		return json.Marshal("")
	}
	if len(c.parts) == 1 && c.parts[0].Type == contentTypeText {
		return json.Marshal(c.parts[0].Text)
	}
	return json.Marshal(c.parts)
}

type contentType string

const (
	contentTypeText     contentType = "text"
	contentTypeImageURL contentType = "image_url"
)

type contentPart struct {
	Type     contentType `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL *imageURL   `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type toolCall struct {
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  toolFunctionSchema `json:"parameters"`
}

type toolFunctionSchema struct {
	Type       string                   `json:"type"`
	Properties map[string]toolParameter `json:"properties"`
	Required   []string                 `json:"required,omitempty"`
}

type toolParameter struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

func toWireMessages(conversation []llms.Message) []message {
	messages := make([]message, 0, len(conversation))
	for _, msg := range conversation {
		wireMsg := message{Role: messageRole(msg.Role)}
		for _, part := range msg.Parts {
			switch part.Kind {
			case llms.PartKindText:
				wireMsg.Content.parts = append(wireMsg.Content.parts, contentPart{
					Type: contentTypeText,
					Text: part.Text,
				})
			case llms.PartKindImage:
				if part.Image == nil {
					continue
				}
				wireMsg.Content.parts = append(wireMsg.Content.parts, contentPart{
					Type:     contentTypeImageURL,
					ImageURL: &imageURL{URL: part.Image.DataURL()},
				})
			}
		}

		responseMsgs := []message{}
		for _, tCall := range msg.ToolCalls {
			wireMsg.ToolCalls = append(wireMsg.ToolCalls, toolCall{
				ID:   tCall.ID,
				Type: "function",
				Function: toolCallFunction{
					Name:      tCall.Name,
					Arguments: tCall.Arguments,
				},
			})
			if tCall.Response != "" {
				responseMsgs = append(responseMsgs, message{
					Role:       messageRoleTool,
					Content:    textContent(tCall.Response),
					ToolCallID: tCall.ID,
				})
			}
		}

		messages = append(messages, wireMsg)
		messages = append(messages, responseMsgs...)
	}
	return messages
}

func toWireTools(tools []llms.Tool) []tool {
	wireTools := make([]tool, 0, len(tools))
	for _, t := range tools {
		var properties map[string]toolParameter
		copier.Copy(&properties, t.Parameters)

		wireTools = append(wireTools, tool{
			Type: "function",
			Function: toolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters: toolFunctionSchema{
					Type:       "object",
					Properties: properties,
					Required:   t.Required,
				},
			},
		})
	}
	return wireTools
}
