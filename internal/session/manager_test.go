package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"agentdash/internal/layout"
)

// newTestServer runs one scripted websocket handler per connection and
// returns a ws:// url for it.
func newTestServer(t *testing.T, handle func(ctx context.Context, conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		handle(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func sendFrame(ctx context.Context, t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Errorf("marshal frame: %v", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Errorf("write frame: %v", err)
	}
}

func readJSON(ctx context.Context, t *testing.T, conn *websocket.Conn, out any) bool {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Errorf("decode client frame: %v", err)
		return false
	}
	return true
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestManager(t *testing.T, url string, opts ManagerOptions) *Manager {
	t.Helper()
	client, err := NewClient(ClientOptions{ServerURL: url, APIKey: "sk-test", UserID: "u1", IncludeContext: true})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	opts.Client = client
	m, err := NewManager(opts)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.Close(ctx)
	})
	return m
}

func TestSendMessageFullExchange(t *testing.T) {
	t.Parallel()

	var gotReq ChatRequest
	var reqMu sync.Mutex
	url := newTestServer(t, func(ctx context.Context, conn *websocket.Conn) {
		var req ChatRequest
		if !readJSON(ctx, t, conn, &req) {
			return
		}
		reqMu.Lock()
		gotReq = req
		reqMu.Unlock()
		sendFrame(ctx, t, conn, map[string]any{"type": "thinking", "text": "reading"})
		sendFrame(ctx, t, conn, map[string]any{"type": "tool_call", "id": "t1", "tool": "read_file", "input": map[string]any{"filename": "a.go"}})
		sendFrame(ctx, t, conn, map[string]any{"type": "tool_result", "id": "t1", "tool": "read_file", "result": "package a"})
		sendFrame(ctx, t, conn, map[string]any{"type": "token_usage", "deltaIn": 10, "deltaOut": 2, "totalIn": 10, "totalOut": 2})
		sendFrame(ctx, t, conn, map[string]any{"type": "chat_response", "response": "all done", "tokensIn": 10, "tokensOut": 2})
	})

	m := newTestManager(t, url, ManagerOptions{})
	if err := m.SendMessage(context.Background(), "check a.go", SendOptions{}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	waitFor(t, "exchange to finish", func() bool {
		snap := m.Master().Snapshot()
		return !snap.Loading && len(snap.Messages) == 2
	})

	reqMu.Lock()
	defer reqMu.Unlock()
	if gotReq.Type != FrameTypeChat || gotReq.Prompt != "check a.go" || gotReq.APIKey != "sk-test" {
		t.Fatalf("unexpected chat frame: %+v", gotReq)
	}
	snap := m.Master().Snapshot()
	if snap.Messages[1].Content != "all done" {
		t.Fatalf("unexpected assistant message: %+v", snap.Messages[1])
	}
	if len(snap.Messages[1].Trace) != 4 {
		t.Fatalf("expected 4 committed trace entries, got %d", len(snap.Messages[1].Trace))
	}
	if snap.TokensIn != 10 || snap.TokensOut != 2 {
		t.Fatalf("unexpected token counters: %d/%d", snap.TokensIn, snap.TokensOut)
	}
}

func TestProposalApproveRoundTrip(t *testing.T) {
	t.Parallel()

	url := newTestServer(t, func(ctx context.Context, conn *websocket.Conn) {
		var req ChatRequest
		if !readJSON(ctx, t, conn, &req) {
			return
		}
		sendFrame(ctx, t, conn, map[string]any{"type": "proposal", "id": "p1", "tool": "write_file", "input": map[string]any{"filename": "a.go"}, "displayTitle": "write_file: a.go"})

		var decision DecisionRequest
		if !readJSON(ctx, t, conn, &decision) {
			return
		}
		if decision.Type != FrameTypeApprove || decision.ID != "p1" {
			t.Errorf("unexpected decision frame: %+v", decision)
		}
		sendFrame(ctx, t, conn, map[string]any{"type": "execution_result", "id": "p1", "status": "completed", "result": "wrote a.go"})
		sendFrame(ctx, t, conn, map[string]any{"type": "chat_response", "response": "file written", "tokensIn": 5, "tokensOut": 1})
	})

	m := newTestManager(t, url, ManagerOptions{})
	if err := m.SendMessage(context.Background(), "write it", SendOptions{}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	waitFor(t, "proposal to arrive", func() bool {
		return len(m.Master().Snapshot().Proposals) == 1
	})
	m.ApproveProposal(context.Background(), "master", "p1", nil)

	waitFor(t, "exchange to finish", func() bool {
		snap := m.Master().Snapshot()
		return !snap.Loading && len(snap.Messages) == 2
	})
	if got := m.Master().Snapshot().Messages[1].Content; got != "file written" {
		t.Fatalf("unexpected final message %q", got)
	}
}

func TestUIActionFramesAreRouted(t *testing.T) {
	t.Parallel()

	url := newTestServer(t, func(ctx context.Context, conn *websocket.Conn) {
		var req ChatRequest
		if !readJSON(ctx, t, conn, &req) {
			return
		}
		sendFrame(ctx, t, conn, map[string]any{"type": "ui_action", "action": "add", "widgetId": "notes", "widgetType": "markdown"})
		sendFrame(ctx, t, conn, map[string]any{"type": "chat_response", "response": "added a widget"})
	})

	var mu sync.Mutex
	var actions []layout.Action
	m := newTestManager(t, url, ManagerOptions{
		OnUIAction: func(sessionID string, a layout.Action) {
			mu.Lock()
			actions = append(actions, a)
			mu.Unlock()
		},
	})
	if err := m.SendMessage(context.Background(), "add notes", SendOptions{}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	waitFor(t, "ui action", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(actions) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if actions[0].Type != layout.ActionAdd || actions[0].WidgetID != "notes" {
		t.Fatalf("unexpected routed action: %+v", actions[0])
	}
}

func TestDialFailureSynthesizesConnectError(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, "ws://127.0.0.1:1", ManagerOptions{})
	if err := m.SendMessage(context.Background(), "hello", SendOptions{}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	waitFor(t, "connect failure message", func() bool {
		snap := m.Master().Snapshot()
		if snap.Loading || len(snap.Messages) != 2 {
			return false
		}
		return snap.Messages[1].Content == "Error: failed to connect"
	})
}

func TestCancelChildRemovesItAndFiresHook(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	url := newTestServer(t, func(ctx context.Context, conn *websocket.Conn) {
		var req ChatRequest
		if !readJSON(ctx, t, conn, &req) {
			return
		}
		<-block
	})
	defer close(block)

	var mu sync.Mutex
	var closed []string
	m := newTestManager(t, url, ManagerOptions{
		OnChildClosed: func(id string) {
			mu.Lock()
			closed = append(closed, id)
			mu.Unlock()
		},
	})
	if _, err := m.EnsureChild("child-1"); err != nil {
		t.Fatalf("EnsureChild failed: %v", err)
	}
	if err := m.SendChildMessage(context.Background(), "child-1", "work", SendOptions{}); err != nil {
		t.Fatalf("SendChildMessage failed: %v", err)
	}
	waitFor(t, "child streaming", func() bool {
		s, ok := m.Session("child-1")
		return ok && s.Snapshot().State == StateStreaming
	})

	m.CancelSession(context.Background(), "child-1")

	if _, ok := m.Session("child-1"); ok {
		t.Fatalf("child still registered after cancel")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(closed) != 1 || closed[0] != "child-1" {
		t.Fatalf("unexpected closed hooks: %v", closed)
	}
}

func TestSendChildMessageRequiresExistingChild(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, "ws://127.0.0.1:1", ManagerOptions{})
	if err := m.SendChildMessage(context.Background(), "nope", "hi", SendOptions{}); err == nil {
		t.Fatalf("expected error for unknown child")
	}
}

func TestPing(t *testing.T) {
	t.Parallel()

	url := newTestServer(t, func(ctx context.Context, conn *websocket.Conn) {
		var req ControlRequest
		if !readJSON(ctx, t, conn, &req) {
			return
		}
		if req.Type != FrameTypePing {
			t.Errorf("expected ping frame, got %+v", req)
			return
		}
		sendFrame(ctx, t, conn, map[string]any{"type": "pong", "uptime": 42, "activeSessions": 1})
	})

	m := newTestManager(t, url, ManagerOptions{})
	pong, err := m.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if pong.Uptime != 42 || pong.ActiveSessions != 1 {
		t.Fatalf("unexpected pong: %+v", pong)
	}
}

func TestPlanReturnsEstimate(t *testing.T) {
	t.Parallel()

	url := newTestServer(t, func(ctx context.Context, conn *websocket.Conn) {
		var req PlanRequest
		if !readJSON(ctx, t, conn, &req) {
			return
		}
		if req.Type != FrameTypePlan || req.Prompt != "build a todo app" || req.APIKey != "sk-test" {
			t.Errorf("unexpected plan request: %+v", req)
			return
		}
		sendFrame(ctx, t, conn, map[string]any{
			"type": "plan_result",
			"plan": map[string]any{
				"summary":               "A small todo app",
				"steps":                 []map[string]any{{"tool": "write_file", "target": "index.html", "description": "markup"}},
				"files":                 []string{"index.html"},
				"estimatedIterations":   2,
				"estimatedInputTokens":  3000,
				"estimatedOutputTokens": 1200,
				"estimatedCost":         "0.027",
				"complexity":            "simple",
			},
			"planTokensIn":  420,
			"planTokensOut": 180,
			"planCost":      0.00398,
		})
	})

	m := newTestManager(t, url, ManagerOptions{})
	res, err := m.Plan(context.Background(), "build a todo app")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if res.Plan.Summary != "A small todo app" || res.Plan.Complexity != "simple" {
		t.Fatalf("unexpected plan: %+v", res.Plan)
	}
	if len(res.Plan.Steps) != 1 || res.Plan.Steps[0].Tool != "write_file" {
		t.Fatalf("unexpected steps: %+v", res.Plan.Steps)
	}
	if res.PlanTokensIn != 420 || res.PlanTokensOut != 180 {
		t.Fatalf("unexpected plan token counts: %+v", res)
	}
}

func TestPlanSurfacesServerError(t *testing.T) {
	t.Parallel()

	url := newTestServer(t, func(ctx context.Context, conn *websocket.Conn) {
		var req PlanRequest
		if !readJSON(ctx, t, conn, &req) {
			return
		}
		sendFrame(ctx, t, conn, map[string]any{"type": "error", "message": "prompt and apiKey are required"})
	})

	m := newTestManager(t, url, ManagerOptions{})
	if _, err := m.Plan(context.Background(), "x"); err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("expected server error surfaced, got %v", err)
	}
}
