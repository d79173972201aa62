// Package ai defines the provider-neutral chat model contract used by the
// interview controller and the evaluator.
package ai

import (
	"context"
	"errors"
)

// Role of a chat message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ErrEmptyResponse is returned by providers that got no usable candidate back.
var ErrEmptyResponse = errors.New("model returned an empty response")

// ToolCall is one invocation of a declared tool requested by the model.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func Human(content string) Message     { return Message{Role: RoleHuman, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// FindToolCall returns the first call of the named tool.
func (m Message) FindToolCall(name string) (ToolCall, bool) {
	for _, tc := range m.ToolCalls {
		if tc.Name == name {
			return tc, true
		}
	}
	return ToolCall{}, false
}

// SchemaType is a JSON schema primitive type name.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
	TypeBoolean SchemaType = "boolean"
)

// Schema is the subset of JSON schema the bot needs to describe tool parameters.
type Schema struct {
	Type        SchemaType         `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Minimum     *float64           `json:"minimum,omitempty"`
	Maximum     *float64           `json:"maximum,omitempty"`
}

// Tool is a function the model may call with arguments matching Parameters.
type Tool struct {
	Name        string
	Description string
	Parameters  *Schema
}

// Model is a chat model invoked with an ordered message list.
type Model interface {
	Invoke(ctx context.Context, messages []Message) (Message, error)
	InvokeWithTools(ctx context.Context, messages []Message, tools ...Tool) (Message, error)
	Provider() string
	Model() string
}
