package layout

import (
	"encoding/json"
	"strings"
)

// Migrate normalizes an arbitrary previously-stored document into the current
// format. The cascade mirrors how the stored shape evolved: current tabbed
// documents pass through (with activeTabId repair), a bare {widgets:[...]}
// object or a bare widget array gets wrapped into a single "Main" tab, and
// anything else yields the default layout. It never returns zero tabs and
// never fails.
func Migrate(raw []byte) TabbedLayout {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return DefaultLayout()
	}

	var current TabbedLayout
	if err := json.Unmarshal(raw, &current); err == nil && current.Version == LayoutVersion && len(current.Tabs) > 0 {
		return normalize(current)
	}

	var wrapped struct {
		Widgets []Widget `json:"widgets"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Widgets != nil {
		return wrapWidgets(wrapped.Widgets)
	}

	var bare []Widget
	if err := json.Unmarshal(raw, &bare); err == nil && len(bare) > 0 {
		return wrapWidgets(bare)
	}

	return DefaultLayout()
}

// MigrateDocument is Migrate for callers that already hold a decoded value
// rather than raw bytes (the remote store returns decoded documents).
func MigrateDocument(doc any) TabbedLayout {
	if doc == nil {
		return DefaultLayout()
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return DefaultLayout()
	}
	return Migrate(raw)
}

func wrapWidgets(widgets []Widget) TabbedLayout {
	l := TabbedLayout{
		Version:     LayoutVersion,
		ActiveTabID: "tab-main",
		Tabs: []Tab{
			{ID: "tab-main", Label: "Main", Widgets: widgets},
		},
	}
	return normalize(l)
}

// normalize repairs what loading legacy or hand-edited documents can break:
// dangling activeTabId, tabs without ids, widgets without ids, duplicate
// widget ids (first wins), and out-of-range geometry.
func normalize(l TabbedLayout) TabbedLayout {
	out := TabbedLayout{Version: LayoutVersion}
	seen := make(map[string]bool)
	for i, tab := range l.Tabs {
		id := strings.TrimSpace(tab.ID)
		if id == "" || out.tabIndex(id) >= 0 {
			id = newLayoutID("tab")
		}
		label := strings.TrimSpace(tab.Label)
		if label == "" {
			label = "Main"
			if i > 0 {
				label = "Tab " + id
			}
		}
		widgets := make([]Widget, 0, len(tab.Widgets))
		for _, w := range tab.Widgets {
			w.ID = strings.TrimSpace(w.ID)
			if w.ID == "" || seen[w.ID] {
				continue
			}
			seen[w.ID] = true
			spec := LookupWidgetSpec(w.Type)
			w.W, w.H = spec.clampSize(w.W, w.H)
			w.X, w.Y = clampOrigin(w.X, w.Y)
			widgets = append(widgets, w)
		}
		out.Tabs = append(out.Tabs, Tab{ID: id, Label: label, Widgets: widgets})
	}
	if len(out.Tabs) == 0 {
		return DefaultLayout()
	}
	out.ActiveTabID = strings.TrimSpace(l.ActiveTabID)
	if out.tabIndex(out.ActiveTabID) < 0 {
		out.ActiveTabID = out.Tabs[0].ID
	}
	return out
}
