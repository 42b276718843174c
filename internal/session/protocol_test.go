package session

import (
	"encoding/json"
	"errors"
	"testing"

	"agentdash/internal/layout"
)

func TestParseFrameShapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		raw   string
		check func(t *testing.T, f Frame)
	}{
		{
			name: "thinking",
			raw:  `{"type":"thinking","text":"looking around"}`,
			check: func(t *testing.T, f Frame) {
				got, ok := f.(*ThinkingFrame)
				if !ok || got.Text != "looking around" {
					t.Fatalf("unexpected frame: %#v", f)
				}
			},
		},
		{
			name: "tool_call",
			raw:  `{"type":"tool_call","id":"t1","tool":"read_file","input":{"filename":"a.go"}}`,
			check: func(t *testing.T, f Frame) {
				got, ok := f.(*ToolCallFrame)
				if !ok || got.Tool != "read_file" || got.ID != "t1" {
					t.Fatalf("unexpected frame: %#v", f)
				}
			},
		},
		{
			name: "proposal",
			raw:  `{"type":"proposal","id":"p1","tool":"write_file","input":{"filename":"a.go"},"displayTitle":"write_file: a.go"}`,
			check: func(t *testing.T, f Frame) {
				got, ok := f.(*ProposalFrame)
				if !ok || got.DisplayTitle != "write_file: a.go" {
					t.Fatalf("unexpected frame: %#v", f)
				}
			},
		},
		{
			name: "execution_result",
			raw:  `{"type":"execution_result","id":"p1","status":"completed","result":"ok"}`,
			check: func(t *testing.T, f Frame) {
				got, ok := f.(*ExecutionResultFrame)
				if !ok || got.Status != ExecutionCompleted {
					t.Fatalf("unexpected frame: %#v", f)
				}
			},
		},
		{
			name: "token_usage",
			raw:  `{"type":"token_usage","deltaIn":120,"deltaOut":30,"totalIn":400,"totalOut":90,"iteration":2}`,
			check: func(t *testing.T, f Frame) {
				got, ok := f.(*TokenUsageFrame)
				if !ok || got.TotalIn != 400 || got.Iteration != 2 {
					t.Fatalf("unexpected frame: %#v", f)
				}
			},
		},
		{
			name: "chat_response",
			raw:  `{"type":"chat_response","response":"done","tokensIn":400,"tokensOut":90}`,
			check: func(t *testing.T, f Frame) {
				got, ok := f.(*ChatResponseFrame)
				if !ok || got.Response != "done" || got.TokensOut != 90 {
					t.Fatalf("unexpected frame: %#v", f)
				}
			},
		},
		{
			name: "ui_action",
			raw:  `{"type":"ui_action","action":"add","widgetId":"notes","widgetType":"markdown","position":{"x":10,"y":2},"size":{"w":4,"h":4},"props":{"content":"hi"},"tabId":"tab-main"}`,
			check: func(t *testing.T, f Frame) {
				got, ok := f.(*UIActionFrame)
				if !ok {
					t.Fatalf("unexpected frame: %#v", f)
				}
				a := got.Action
				if a.Type != layout.ActionAdd || a.WidgetID != "notes" || a.WidgetType != "markdown" {
					t.Fatalf("unexpected action: %+v", a)
				}
				if a.Position == nil || a.Position.X != 10 || a.Size == nil || a.Size.W != 4 {
					t.Fatalf("unexpected geometry: %+v", a)
				}
			},
		},
		{
			name: "error",
			raw:  `{"type":"error","message":"boom"}`,
			check: func(t *testing.T, f Frame) {
				got, ok := f.(*ErrorFrame)
				if !ok || got.Message != "boom" {
					t.Fatalf("unexpected frame: %#v", f)
				}
			},
		},
		{
			name: "pong",
			raw:  `{"type":"pong","uptime":12,"activeSessions":3}`,
			check: func(t *testing.T, f Frame) {
				got, ok := f.(*PongFrame)
				if !ok || got.ActiveSessions != 3 {
					t.Fatalf("unexpected frame: %#v", f)
				}
			},
		},
		{
			name: "plan_result",
			raw:  `{"type":"plan_result","plan":{"summary":"A todo app","steps":[{"tool":"write_file","target":"app.js"}],"estimatedInputTokens":3000,"complexity":"simple"},"planTokensIn":420,"planTokensOut":180,"planCost":0.004}`,
			check: func(t *testing.T, f Frame) {
				got, ok := f.(*PlanResultFrame)
				if !ok || got.Plan.Summary != "A todo app" || got.PlanTokensIn != 420 {
					t.Fatalf("unexpected frame: %#v", f)
				}
				if len(got.Plan.Steps) != 1 || got.Plan.Steps[0].Target != "app.js" {
					t.Fatalf("unexpected steps: %#v", got.Plan.Steps)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f, err := ParseFrame([]byte(tc.raw))
			if err != nil {
				t.Fatalf("ParseFrame failed: %v", err)
			}
			tc.check(t, f)
		})
	}
}

func TestParseFrameRejectsUnknownAndInvalid(t *testing.T) {
	t.Parallel()

	if _, err := ParseFrame([]byte(`{"type":"plan_result"}`)); !errors.Is(err, ErrUnknownFrame) {
		t.Fatalf("expected ErrUnknownFrame, got %v", err)
	}
	if _, err := ParseFrame([]byte(`{"text":"no type"}`)); err == nil {
		t.Fatalf("expected error for missing type")
	}
	if _, err := ParseFrame([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestChatRequestWireShape(t *testing.T) {
	t.Parallel()

	c, err := NewClient(ClientOptions{ServerURL: "ws://localhost:1", APIKey: "sk-test", UserID: "u1", IncludeContext: true})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	req := c.chatRequest("hello", []HistoryEntry{{Role: RoleUser, Content: "earlier"}}, "likes go", nil)
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, key := range []string{"type", "prompt", "apiKey", "history", "includeSystemContext", "userId", "memoryContext"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("chat frame missing %q: %s", key, raw)
		}
	}
	if decoded["type"] != "chat" {
		t.Fatalf("unexpected type %v", decoded["type"])
	}
}
