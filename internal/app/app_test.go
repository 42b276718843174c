package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentdash/internal/config"
	"agentdash/internal/layout"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Config{
		ServerURL:      "ws://127.0.0.1:1",
		APIKey:         "sk-test",
		DataDir:        t.TempDir(),
		SaveDebounceMs: 10,
	}
	a, err := New(context.Background(), Options{Config: cfg, Logf: t.Logf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestNewResolvesDefaultLayout(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	l := a.Layout()
	if len(l.Tabs) != 1 {
		t.Fatalf("expected one default tab, got %d", len(l.Tabs))
	}
	if ti, _ := l.FindWidget(layout.MasterChatWidgetID); ti < 0 {
		t.Fatal("default layout missing master chat widget")
	}
}

func TestNewRejectsMissingAPIKey(t *testing.T) {
	t.Parallel()
	cfg := config.Config{ServerURL: "ws://localhost:1", DataDir: t.TempDir()}
	if _, err := New(context.Background(), Options{Config: cfg}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestDispatchNotifiesSubscribers(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	ch := a.Subscribe()

	next := a.Dispatch(context.Background(), layout.Action{
		Type:       layout.ActionAdd,
		WidgetID:   "w-note",
		WidgetType: "markdown",
	})
	if ti, _ := next.FindWidget("w-note"); ti < 0 {
		t.Fatal("dispatch did not add widget")
	}
	select {
	case got := <-ch:
		if ti, _ := got.FindWidget("w-note"); ti < 0 {
			t.Fatal("subscriber snapshot missing widget")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestDispatchPersistsThroughClose(t *testing.T) {
	t.Parallel()
	dataDir := t.TempDir()
	cfg := config.Config{
		ServerURL:      "ws://127.0.0.1:1",
		APIKey:         "sk-test",
		DataDir:        dataDir,
		SaveDebounceMs: 60_000, // force the flush-on-close path
	}
	a, err := New(context.Background(), Options{Config: cfg, Logf: t.Logf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.Dispatch(context.Background(), layout.Action{
		Type:       layout.ActionAdd,
		WidgetID:   "w-note",
		WidgetType: "markdown",
	})
	a.Close(context.Background())

	data, err := os.ReadFile(filepath.Join(dataDir, "layout.json"))
	if err != nil {
		t.Fatalf("layout.json not written: %v", err)
	}
	var doc layout.TabbedLayout
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("saved document invalid: %v", err)
	}
	if ti, _ := doc.FindWidget("w-note"); ti < 0 {
		t.Fatal("saved document missing widget")
	}
}

func TestRemovingSessionWidgetTearsDownChild(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	a.Dispatch(context.Background(), layout.Action{
		Type:       layout.ActionAdd,
		WidgetID:   "w-child",
		WidgetType: "chat",
		SessionID:  "sess-1",
	})
	if ids := a.Sessions().ChildIDs(); len(ids) != 1 || ids[0] != "sess-1" {
		t.Fatalf("expected child sess-1, got %v", ids)
	}

	a.Dispatch(context.Background(), layout.Action{
		Type:     layout.ActionRemove,
		WidgetID: "w-child",
	})
	if ids := a.Sessions().ChildIDs(); len(ids) != 0 {
		t.Fatalf("child not torn down: %v", ids)
	}
	if ti, _ := a.Layout().FindWidget("w-child"); ti >= 0 {
		t.Fatal("widget still present")
	}
}
