package conversation

import (
	"errors"
	"strings"
	"testing"

	"github.com/knolabs/daela/pkg/llm"
)

func TestSystemMessageStaysFirst(t *testing.T) {
	c := New("You are Daela.")
	if err := c.Append(UserText("hi")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := c.Append(Message{Role: RoleSystem, Parts: []Part{{Text: "override"}}}); !errors.Is(err, ErrSystemAppend) {
		t.Fatalf("expected ErrSystemAppend, got %v", err)
	}
	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleSystem || msgs[0].Text() != "You are Daela." {
		t.Fatalf("system message not first: %+v", msgs[0])
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	c := New("sys")
	_ = c.Append(UserText("one"))
	msgs := c.Messages()
	msgs[1] = UserText("changed")
	if c.Last().Text() != "one" {
		t.Fatalf("transcript mutated through copy")
	}
}

func TestProviderMessagesRendersImageParts(t *testing.T) {
	c := New("sys")
	_ = c.Append(UserWithImage("what is this?", Image{MIME: "image/png", Data: []byte("png")}))

	rendered := c.ProviderMessages()
	parts, ok := rendered[1]["content"].([]map[string]any)
	if !ok {
		t.Fatalf("expected content parts, got %T", rendered[1]["content"])
	}
	if len(parts) != 2 || parts[0]["type"] != "text" || parts[1]["type"] != "image_url" {
		t.Fatalf("unexpected parts %+v", parts)
	}
	url := parts[1]["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("unexpected image url %q", url)
	}
}

func TestProviderMessagesRendersToolRoundTrip(t *testing.T) {
	c := New("sys")
	call := llm.ToolCall{ID: "call_1", Name: "check_appointment_status", Arguments: map[string]any{"email": "bob@example.com"}}
	_ = c.Append(AssistantCall(call))
	_ = c.Append(ToolResult("call_1", "You have successfully booked a dental appointment."))

	rendered := c.ProviderMessages()
	calls, ok := rendered[1]["tool_calls"].([]map[string]any)
	if !ok || len(calls) != 1 {
		t.Fatalf("expected one tool call, got %+v", rendered[1])
	}
	if _, hasContent := rendered[1]["content"]; hasContent {
		t.Fatalf("assistant call message should not carry content")
	}
	if rendered[2]["role"] != "tool" || rendered[2]["tool_call_id"] != "call_1" {
		t.Fatalf("unexpected tool message %+v", rendered[2])
	}
}
