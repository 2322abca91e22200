// Package llms defines the provider-neutral conversation model and the
// streaming interfaces the orchestration layer consumes. Provider clients
// live in subpackages and translate these types to their wire formats.
package llms

import (
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// Role describes who a message is from.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single message in a conversation history. A message is an
// ordered list of parts so that a user turn can mix text with an image
// snapshot.
type Message struct {
	ID    string
	Role  Role
	Parts []Part

	// ToolCalls holds the tool invocations an assistant message requested,
	// with their responses filled in once executed.
	ToolCalls []ToolCall
}

func NewSystemMessage(text string) Message {
	return Message{ID: uuid.NewString(), Role: RoleSystem, Parts: []Part{TextPart(text)}}
}

func NewUserMessage(parts ...Part) Message {
	return Message{ID: uuid.NewString(), Role: RoleUser, Parts: parts}
}

func NewAssistantMessage(text string, toolCalls ...ToolCall) Message {
	msg := Message{ID: uuid.NewString(), Role: RoleAssistant, ToolCalls: toolCalls}
	if text != "" {
		msg.Parts = []Part{TextPart(text)}
	}
	return msg
}

// Text concatenates the text parts of the message, ignoring any other kinds.
func (m Message) Text() string {
	var text strings.Builder
	for _, part := range m.Parts {
		if part.Kind == PartKindText {
			text.WriteString(part.Text)
		}
	}
	return text.String()
}

type PartKind string

const (
	PartKindText  PartKind = "text"
	PartKindImage PartKind = "image"
)

// Part is one piece of a message's content.
type Part struct {
	Kind  PartKind
	Text  string
	Image *ImageRef
}

func TextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

func ImagePart(image ImageRef) Part {
	return Part{Kind: PartKindImage, Image: &image}
}

// ImageRef carries encoded image bytes alongside the metadata providers need
// to embed them in a request.
type ImageRef struct {
	MIMEType string
	Data     []byte
	Width    int
	Height   int
}

// DataURL renders the image as an RFC 2397 data URL, the form expected by
// chat-completions style APIs.
func (r ImageRef) DataURL() string {
	return "data:" + r.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Response  string
}
