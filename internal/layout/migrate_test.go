package layout

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestMigrateCurrentFormatPassesThrough(t *testing.T) {
	t.Parallel()

	l := testLayout()
	raw, _ := json.Marshal(l)
	got := Migrate(raw)
	mustEqual(t, got, l)
}

func TestMigrateRepairsDanglingActiveTab(t *testing.T) {
	t.Parallel()

	l := testLayout()
	l.ActiveTabID = "gone"
	raw, _ := json.Marshal(l)
	got := Migrate(raw)
	if got.ActiveTabID != "tab-main" {
		t.Fatalf("expected activeTabId repaired to first tab, got %q", got.ActiveTabID)
	}
}

func TestMigrateLegacyV1WidgetsObject(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"widgets":[{"id":"w1","type":"markdown","x":3,"y":2,"w":4,"h":4}]}`)
	got := Migrate(raw)
	if got.Version != LayoutVersion {
		t.Fatalf("expected version %d, got %d", LayoutVersion, got.Version)
	}
	if len(got.Tabs) != 1 || got.Tabs[0].Label != "Main" {
		t.Fatalf("expected one Main tab, got %+v", got.Tabs)
	}
	if len(got.Tabs[0].Widgets) != 1 || got.Tabs[0].Widgets[0].ID != "w1" {
		t.Fatalf("expected widget w1 preserved, got %+v", got.Tabs[0].Widgets)
	}
	if got.ActiveTabID != got.Tabs[0].ID {
		t.Fatalf("activeTabId %q does not reference the only tab %q", got.ActiveTabID, got.Tabs[0].ID)
	}
}

func TestMigrateLegacyV0BareArray(t *testing.T) {
	t.Parallel()

	raw := []byte(`[{"id":"w1","type":"table","x":0,"y":0,"w":6,"h":4}]`)
	got := Migrate(raw)
	if len(got.Tabs) != 1 || got.Tabs[0].Label != "Main" {
		t.Fatalf("expected one Main tab, got %+v", got.Tabs)
	}
	if len(got.Tabs[0].Widgets) != 1 || got.Tabs[0].Widgets[0].ID != "w1" {
		t.Fatalf("expected widget w1 preserved, got %+v", got.Tabs[0].Widgets)
	}
}

func TestMigrateGarbageYieldsDefault(t *testing.T) {
	t.Parallel()

	inputs := [][]byte{
		nil,
		[]byte(""),
		[]byte("null"),
		[]byte("[]"),
		[]byte(`"not a layout"`),
		[]byte(`{"version":2,"tabs":[]}`),
		[]byte(`{"version":1,"activeTabId":"x"}`),
		[]byte(`{{{`),
	}
	want := DefaultLayout()
	for _, raw := range inputs {
		got := Migrate(raw)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("input %q: expected default layout, got %+v", raw, got)
		}
	}
}

func TestMigrateNeverReturnsZeroTabs(t *testing.T) {
	t.Parallel()

	inputs := [][]byte{
		nil,
		[]byte(`{"version":2,"tabs":[]}`),
		[]byte(`{"widgets":[]}`),
		[]byte(`[{"id":""}]`),
	}
	for _, raw := range inputs {
		if got := Migrate(raw); len(got.Tabs) == 0 {
			t.Fatalf("input %q: migration returned zero tabs", raw)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := [][]byte{
		nil,
		[]byte(`{"widgets":[{"id":"w1","type":"markdown","x":-2,"y":1,"w":0,"h":0}]}`),
		[]byte(`[{"id":"a","type":"chat"},{"id":"a","type":"chat"},{"id":"b","type":"table"}]`),
		mustJSON(testLayout()),
	}
	for _, raw := range inputs {
		once := Migrate(raw)
		onceRaw, _ := json.Marshal(once)
		twice := Migrate(onceRaw)
		if !reflect.DeepEqual(twice, once) {
			t.Fatalf("input %q: migrate not idempotent:\nonce  %+v\ntwice %+v", raw, once, twice)
		}
	}
}

func TestMigrateDropsDuplicateAndEmptyIDs(t *testing.T) {
	t.Parallel()

	raw := []byte(`[{"id":"a","type":"chat","w":7,"h":8},{"id":"a","type":"table"},{"id":"","type":"html"}]`)
	got := Migrate(raw)
	if len(got.Tabs[0].Widgets) != 1 {
		t.Fatalf("expected 1 widget after dedupe, got %d", len(got.Tabs[0].Widgets))
	}
	if got.Tabs[0].Widgets[0].Type != "chat" {
		t.Fatalf("expected first occurrence to win, got %+v", got.Tabs[0].Widgets[0])
	}
}

func TestMigrateNormalizesGeometry(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"widgets":[{"id":"w1","type":"markdown","x":-4,"y":-1,"w":0,"h":0}]}`)
	got := Migrate(raw)
	w := got.Tabs[0].Widgets[0]
	if w.X != 0 || w.Y != 0 {
		t.Fatalf("expected origin clamped to (0,0), got (%d,%d)", w.X, w.Y)
	}
	if w.W != 4 || w.H != 4 {
		t.Fatalf("expected markdown default 4x4, got %dx%d", w.W, w.H)
	}
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
