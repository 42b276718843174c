package layout

import "strings"

// LayoutVersion is the current stored-document format.
const LayoutVersion = 2

const (
	// GridColumns is the width of the dashboard canvas in grid columns.
	GridColumns = 48

	// DefaultColumn is the column new content centers around.
	DefaultColumn = 16
)

// MasterChatWidgetID is the always-present chat widget bound to the master
// session. It can never be removed and its tab can never be deleted.
const MasterChatWidgetID = "master-chat"

// MasterSessionID is the session id of the master conversation.
const MasterSessionID = "master"

var protectedWidgetIDs = map[string]bool{
	MasterChatWidgetID: true,
}

// IsProtectedWidget reports whether the given widget id may never be removed.
func IsProtectedWidget(id string) bool {
	return protectedWidgetIDs[strings.TrimSpace(id)]
}

// Widget is one placed dashboard element. Props are opaque to this package
// and handed verbatim to whatever renders the widget.
type Widget struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	X         int            `json:"x"`
	Y         int            `json:"y"`
	W         int            `json:"w"`
	H         int            `json:"h"`
	Props     map[string]any `json:"props,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
}

// Tab is a named, ordered container of widgets.
type Tab struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Widgets []Widget `json:"widgets"`
}

// TabbedLayout is the complete persisted dashboard document.
type TabbedLayout struct {
	Version     int    `json:"version"`
	ActiveTabID string `json:"activeTabId"`
	Tabs        []Tab  `json:"tabs"`
}

// Clone returns a deep copy. The reducer never mutates its input, so every
// mutation path starts from a clone.
func (l TabbedLayout) Clone() TabbedLayout {
	out := TabbedLayout{
		Version:     l.Version,
		ActiveTabID: l.ActiveTabID,
		Tabs:        make([]Tab, len(l.Tabs)),
	}
	for i, tab := range l.Tabs {
		out.Tabs[i] = tab.clone()
	}
	return out
}

func (t Tab) clone() Tab {
	out := Tab{ID: t.ID, Label: t.Label, Widgets: make([]Widget, len(t.Widgets))}
	for i, w := range t.Widgets {
		out.Widgets[i] = w.clone()
	}
	return out
}

func (w Widget) clone() Widget {
	out := w
	if w.Props != nil {
		props := make(map[string]any, len(w.Props))
		for k, v := range w.Props {
			props[k] = v
		}
		out.Props = props
	}
	return out
}

func (l TabbedLayout) tabIndex(tabID string) int {
	for i, tab := range l.Tabs {
		if tab.ID == tabID {
			return i
		}
	}
	return -1
}

// FindWidget returns the tab index and widget index for the given widget id,
// or (-1, -1) when absent.
func (l TabbedLayout) FindWidget(widgetID string) (tabIdx, widgetIdx int) {
	for ti, tab := range l.Tabs {
		for wi, w := range tab.Widgets {
			if w.ID == widgetID {
				return ti, wi
			}
		}
	}
	return -1, -1
}

// WidgetSessionID returns the session id linked to the given widget, if any.
func (l TabbedLayout) WidgetSessionID(widgetID string) (string, bool) {
	ti, wi := l.FindWidget(widgetID)
	if ti < 0 {
		return "", false
	}
	sid := strings.TrimSpace(l.Tabs[ti].Widgets[wi].SessionID)
	return sid, sid != ""
}

// ActiveTab returns the index of the active tab, repairing a dangling
// ActiveTabID by falling back to the first tab. Returns -1 only when the
// layout has no tabs at all, which valid documents never do.
func (l TabbedLayout) ActiveTab() int {
	if len(l.Tabs) == 0 {
		return -1
	}
	if idx := l.tabIndex(l.ActiveTabID); idx >= 0 {
		return idx
	}
	return 0
}

func (t Tab) hasProtectedWidget() bool {
	for _, w := range t.Widgets {
		if IsProtectedWidget(w.ID) {
			return true
		}
	}
	return false
}

func (t Tab) widgetIndex(widgetID string) int {
	for i, w := range t.Widgets {
		if w.ID == widgetID {
			return i
		}
	}
	return -1
}
