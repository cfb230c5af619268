// Package conversation holds the ordered transcript handed to the model on
// every turn.
package conversation

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"

	"github.com/knolabs/daela/pkg/llm"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Image is an image reference attached to a user message. Either Data
// (with MIME) or URL is set.
type Image struct {
	MIME string
	Data []byte
	URL  string
}

// Part is one content segment: text or image.
type Part struct {
	Text  string
	Image *Image
}

type Message struct {
	Role       Role
	Parts      []Part
	ToolCalls  []llm.ToolCall
	ToolCallID string
}

// Text returns the concatenated text parts.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		out += p.Text
	}
	return out
}

// HasImage reports whether any part carries an image.
func (m Message) HasImage() bool {
	for _, p := range m.Parts {
		if p.Image != nil {
			return true
		}
	}
	return false
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{{Text: text}}}
}

// UserWithImage builds a user message carrying text followed by an image.
func UserWithImage(text string, img Image) Message {
	return Message{Role: RoleUser, Parts: []Part{{Text: text}, {Image: &img}}}
}

func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{{Text: text}}}
}

// AssistantCall records the function call the model asked for.
func AssistantCall(call llm.ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: []llm.ToolCall{call}}
}

// ToolResult answers a previous AssistantCall.
func ToolResult(callID, text string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Parts: []Part{{Text: text}}}
}

var ErrSystemAppend = errors.New("conversation: system message can only be set at creation")

// Context is an append-only transcript whose first message is always the
// system persona.
type Context struct {
	mu       sync.RWMutex
	messages []Message
}

func New(systemPrompt string) *Context {
	return &Context{
		messages: []Message{{Role: RoleSystem, Parts: []Part{{Text: systemPrompt}}}},
	}
}

// Append adds a message at the end. System messages are rejected.
func (c *Context) Append(m Message) error {
	if m.Role == RoleSystem {
		return ErrSystemAppend
	}
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
	return nil
}

// Messages returns a copy of the transcript.
func (c *Context) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Message(nil), c.messages...)
}

func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Last returns the most recent message.
func (c *Context) Last() Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.messages[len(c.messages)-1]
}

// ProviderMessages renders the transcript in the chat-completions wire shape.
// Text-only messages use a plain string content; messages with images use
// the content-part array form.
func (c *Context) ProviderMessages() []map[string]any {
	msgs := c.Messages()
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, renderMessage(m))
	}
	return out
}

// Request builds a model request with the given tools.
func (c *Context) Request(tools []llm.Tool) llm.Context {
	return llm.Context{Messages: c.ProviderMessages(), Tools: tools}
}

func renderMessage(m Message) map[string]any {
	out := map[string]any{"role": string(m.Role)}
	if m.Role == RoleTool {
		out["tool_call_id"] = m.ToolCallID
	}
	if len(m.ToolCalls) > 0 {
		calls := make([]map[string]any, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			calls = append(calls, map[string]any{
				"id":   tc.ID,
				"type": "function",
				"function": map[string]any{
					"name":      tc.Name,
					"arguments": string(args),
				},
			})
		}
		out["tool_calls"] = calls
	}
	if !m.HasImage() {
		if len(m.Parts) > 0 || len(m.ToolCalls) == 0 {
			out["content"] = m.Text()
		}
		return out
	}
	parts := make([]map[string]any, 0, len(m.Parts))
	for _, p := range m.Parts {
		if p.Image != nil {
			parts = append(parts, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": imageURL(*p.Image)},
			})
			continue
		}
		parts = append(parts, map[string]any{"type": "text", "text": p.Text})
	}
	out["content"] = parts
	return out
}

func imageURL(img Image) string {
	if img.URL != "" {
		return img.URL
	}
	mime := img.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
