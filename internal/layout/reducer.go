package layout

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// Reduce applies one action to a layout and returns the next layout. It is a
// pure function: the input is never mutated, invalid references return the
// input unchanged, and it never panics. Two independent action producers (the
// user and the remote agent) can therefore interleave freely without guards.
func Reduce(l TabbedLayout, a Action) TabbedLayout {
	if len(l.Tabs) == 0 {
		return l
	}
	if a.IsTabAction() {
		return reduceTab(l, a)
	}
	return reduceWidget(l, a)
}

func reduceTab(l TabbedLayout, a Action) TabbedLayout {
	switch a.Type {
	case ActionTabCreate:
		return tabCreate(l, a)
	case ActionTabDelete:
		return tabDelete(l, a)
	case ActionTabRename:
		return tabRename(l, a)
	case ActionTabReorder:
		return tabReorder(l, a)
	case ActionTabSwitch:
		return tabSwitch(l, a)
	case ActionMoveToTab:
		return moveToTab(l, a)
	case ActionAdd, ActionRemove, ActionUpdate, ActionMove, ActionResize, ActionClear, ActionReset:
		return l
	}
	return l
}

func reduceWidget(l TabbedLayout, a Action) TabbedLayout {
	tabIdx := l.ActiveTab()
	if id := a.tabID(); id != "" {
		tabIdx = l.tabIndex(id)
	}
	if tabIdx < 0 {
		return l
	}
	switch a.Type {
	case ActionAdd:
		return widgetAdd(l, tabIdx, a)
	case ActionRemove:
		return widgetRemove(l, tabIdx, a)
	case ActionUpdate:
		return widgetUpdate(l, tabIdx, a)
	case ActionMove:
		return widgetMove(l, tabIdx, a)
	case ActionResize:
		return widgetResize(l, tabIdx, a)
	case ActionClear:
		return tabClear(l, tabIdx)
	case ActionReset:
		return tabReset(l, tabIdx)
	case ActionTabCreate, ActionTabDelete, ActionTabRename, ActionTabReorder, ActionTabSwitch, ActionMoveToTab:
		return l
	}
	return l
}

func tabCreate(l TabbedLayout, a Action) TabbedLayout {
	id := a.tabID()
	if id == "" {
		id = newLayoutID("tab")
	}
	if l.tabIndex(id) >= 0 {
		return l
	}
	label := strings.TrimSpace(a.TabLabel)
	if label == "" {
		label = "New Tab"
	}
	next := l.Clone()
	next.Tabs = append(next.Tabs, Tab{ID: id, Label: label, Widgets: []Widget{}})
	next.ActiveTabID = id
	return next
}

func tabDelete(l TabbedLayout, a Action) TabbedLayout {
	idx := l.tabIndex(a.tabID())
	if idx < 0 || len(l.Tabs) <= 1 {
		return l
	}
	if l.Tabs[idx].hasProtectedWidget() {
		return l
	}
	next := l.Clone()
	deleted := next.Tabs[idx].ID
	next.Tabs = append(next.Tabs[:idx], next.Tabs[idx+1:]...)
	if next.ActiveTabID == deleted {
		next.ActiveTabID = next.Tabs[0].ID
	}
	return next
}

func tabRename(l TabbedLayout, a Action) TabbedLayout {
	idx := l.tabIndex(a.tabID())
	label := strings.TrimSpace(a.TabLabel)
	if idx < 0 || label == "" {
		return l
	}
	next := l.Clone()
	next.Tabs[idx].Label = label
	return next
}

func tabReorder(l TabbedLayout, a Action) TabbedLayout {
	idx := l.tabIndex(a.tabID())
	if idx < 0 || a.TabIndex == nil {
		return l
	}
	target := *a.TabIndex
	if target < 0 {
		target = 0
	}
	if target > len(l.Tabs)-1 {
		target = len(l.Tabs) - 1
	}
	if target == idx {
		return l
	}
	next := l.Clone()
	tab := next.Tabs[idx]
	tabs := append(next.Tabs[:idx], next.Tabs[idx+1:]...)
	if target > len(tabs) {
		target = len(tabs)
	}
	tail := append([]Tab{tab}, tabs[target:]...)
	next.Tabs = append(tabs[:target:target], tail...)
	return next
}

func tabSwitch(l TabbedLayout, a Action) TabbedLayout {
	idx := l.tabIndex(a.tabID())
	if idx < 0 || l.ActiveTabID == l.Tabs[idx].ID {
		return l
	}
	next := l.Clone()
	next.ActiveTabID = next.Tabs[idx].ID
	return next
}

func moveToTab(l TabbedLayout, a Action) TabbedLayout {
	targetIdx := l.tabIndex(a.tabID())
	srcIdx, widgetIdx := l.FindWidget(a.widgetID())
	if targetIdx < 0 || srcIdx < 0 || targetIdx == srcIdx {
		return l
	}
	next := l.Clone()
	w := next.Tabs[srcIdx].Widgets[widgetIdx]
	next.Tabs[srcIdx].Widgets = append(next.Tabs[srcIdx].Widgets[:widgetIdx], next.Tabs[srcIdx].Widgets[widgetIdx+1:]...)
	next.Tabs[targetIdx].Widgets = append(next.Tabs[targetIdx].Widgets, w)
	return next
}

func widgetAdd(l TabbedLayout, tabIdx int, a Action) TabbedLayout {
	id := a.widgetID()
	if id == "" {
		return l
	}
	if ti, _ := l.FindWidget(id); ti >= 0 {
		return l
	}
	spec := LookupWidgetSpec(a.WidgetType)
	w := Widget{
		ID:        id,
		Type:      strings.TrimSpace(a.WidgetType),
		SessionID: a.sessionID(),
	}
	if a.Size != nil {
		w.W, w.H = spec.clampSize(a.Size.W, a.Size.H)
	} else {
		w.W, w.H = spec.DefaultW, spec.DefaultH
	}
	if a.Position != nil {
		w.X, w.Y = clampOrigin(a.Position.X, a.Position.Y)
	} else {
		w.X, w.Y = autoPlace(l.Tabs[tabIdx])
	}
	if len(a.Props) > 0 {
		w.Props = make(map[string]any, len(a.Props))
		for k, v := range a.Props {
			w.Props[k] = v
		}
	}
	next := l.Clone()
	next.Tabs[tabIdx].Widgets = append(next.Tabs[tabIdx].Widgets, w)
	return next
}

// autoPlace stacks a new widget below the lowest bottom edge of the tab,
// aligned with the tab's leftmost occupied column.
func autoPlace(t Tab) (x, y int) {
	if len(t.Widgets) == 0 {
		return DefaultColumn, 0
	}
	x = t.Widgets[0].X
	bottom := 0
	for _, w := range t.Widgets {
		if w.X < x {
			x = w.X
		}
		if edge := w.Y + w.H; edge > bottom {
			bottom = edge
		}
	}
	if x < 0 {
		x = 0
	}
	return x, bottom
}

func widgetRemove(l TabbedLayout, tabIdx int, a Action) TabbedLayout {
	id := a.widgetID()
	if IsProtectedWidget(id) {
		return l
	}
	widgetIdx := l.Tabs[tabIdx].widgetIndex(id)
	if widgetIdx < 0 {
		return l
	}
	next := l.Clone()
	tab := &next.Tabs[tabIdx]
	tab.Widgets = append(tab.Widgets[:widgetIdx], tab.Widgets[widgetIdx+1:]...)
	return next
}

func widgetUpdate(l TabbedLayout, tabIdx int, a Action) TabbedLayout {
	widgetIdx := l.Tabs[tabIdx].widgetIndex(a.widgetID())
	if widgetIdx < 0 || len(a.Props) == 0 {
		return l
	}
	next := l.Clone()
	w := &next.Tabs[tabIdx].Widgets[widgetIdx]
	if w.Props == nil {
		w.Props = make(map[string]any, len(a.Props))
	}
	for k, v := range a.Props {
		w.Props[k] = v
	}
	return next
}

func widgetMove(l TabbedLayout, tabIdx int, a Action) TabbedLayout {
	widgetIdx := l.Tabs[tabIdx].widgetIndex(a.widgetID())
	if widgetIdx < 0 || a.Position == nil {
		return l
	}
	next := l.Clone()
	w := &next.Tabs[tabIdx].Widgets[widgetIdx]
	w.X, w.Y = clampOrigin(a.Position.X, a.Position.Y)
	return next
}

func widgetResize(l TabbedLayout, tabIdx int, a Action) TabbedLayout {
	widgetIdx := l.Tabs[tabIdx].widgetIndex(a.widgetID())
	if widgetIdx < 0 || a.Size == nil {
		return l
	}
	next := l.Clone()
	w := &next.Tabs[tabIdx].Widgets[widgetIdx]
	spec := LookupWidgetSpec(w.Type)
	w.W, w.H = spec.clampSize(a.Size.W, a.Size.H)
	return next
}

func tabClear(l TabbedLayout, tabIdx int) TabbedLayout {
	next := l.Clone()
	tab := &next.Tabs[tabIdx]
	kept := tab.Widgets[:0]
	for _, w := range tab.Widgets {
		if IsProtectedWidget(w.ID) {
			kept = append(kept, w)
		}
	}
	tab.Widgets = kept
	return next
}

// tabReset replaces the tab's widgets with the default set. Default widgets
// whose ids already live on another tab are skipped so the global uniqueness
// invariant holds.
func tabReset(l TabbedLayout, tabIdx int) TabbedLayout {
	next := l.Clone()
	widgets := make([]Widget, 0)
	for _, w := range defaultWidgets() {
		if ti, _ := l.FindWidget(w.ID); ti >= 0 && ti != tabIdx {
			continue
		}
		widgets = append(widgets, w)
	}
	next.Tabs[tabIdx].Widgets = widgets
	return next
}

func clampOrigin(x, y int) (int, int) {
	if x < 0 {
		x = 0
	}
	if x > GridColumns-1 {
		x = GridColumns - 1
	}
	if y < 0 {
		y = 0
	}
	return x, y
}

func newLayoutID(prefix string) string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return prefix + "-" + hex.EncodeToString(b[:])
}
