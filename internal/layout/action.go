package layout

import "strings"

// ActionType enumerates every mutation the reducer understands. The set is
// closed: both reducer halves switch over it exhaustively and anything else
// is a no-op.
type ActionType string

const (
	// Widget-level actions, scoped to a tab.
	ActionAdd    ActionType = "add"
	ActionRemove ActionType = "remove"
	ActionUpdate ActionType = "update"
	ActionMove   ActionType = "move"
	ActionResize ActionType = "resize"
	ActionClear  ActionType = "clear"
	ActionReset  ActionType = "reset"

	// Tab-level actions.
	ActionTabCreate  ActionType = "tab_create"
	ActionTabDelete  ActionType = "tab_delete"
	ActionTabRename  ActionType = "tab_rename"
	ActionTabReorder ActionType = "tab_reorder"
	ActionTabSwitch  ActionType = "tab_switch"
	ActionMoveToTab  ActionType = "move_to_tab"
)

// Position is a grid coordinate.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a grid extent.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// Action is one mutation command. Which fields matter depends on Type; the
// reducer ignores the rest. A zero TabID targets the active tab for
// widget-level actions.
type Action struct {
	Type       ActionType     `json:"action"`
	WidgetID   string         `json:"widgetId,omitempty"`
	WidgetType string         `json:"widgetType,omitempty"`
	Position   *Position      `json:"position,omitempty"`
	Size       *Size          `json:"size,omitempty"`
	Props      map[string]any `json:"props,omitempty"`
	SessionID  string         `json:"sessionId,omitempty"`
	TabID      string         `json:"tabId,omitempty"`
	TabLabel   string         `json:"tabLabel,omitempty"`
	TabIndex   *int           `json:"tabIndex,omitempty"`
}

// IsTabAction reports whether the action is handled by the tab-level half of
// the reducer.
func (a Action) IsTabAction() bool {
	switch a.Type {
	case ActionTabCreate, ActionTabDelete, ActionTabRename, ActionTabReorder, ActionTabSwitch, ActionMoveToTab:
		return true
	case ActionAdd, ActionRemove, ActionUpdate, ActionMove, ActionResize, ActionClear, ActionReset:
		return false
	}
	return false
}

func (a Action) widgetID() string  { return strings.TrimSpace(a.WidgetID) }
func (a Action) tabID() string     { return strings.TrimSpace(a.TabID) }
func (a Action) sessionID() string { return strings.TrimSpace(a.SessionID) }
