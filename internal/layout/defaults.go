package layout

// DefaultLayout is the layout a fresh user starts with and the one `reset`
// restores: a single "Main" tab holding the master chat widget.
func DefaultLayout() TabbedLayout {
	return TabbedLayout{
		Version:     LayoutVersion,
		ActiveTabID: "tab-main",
		Tabs: []Tab{
			{
				ID:      "tab-main",
				Label:   "Main",
				Widgets: defaultWidgets(),
			},
		},
	}
}

func defaultWidgets() []Widget {
	return []Widget{
		{
			ID:        MasterChatWidgetID,
			Type:      "chat",
			X:         DefaultColumn,
			Y:         0,
			W:         7,
			H:         8,
			SessionID: MasterSessionID,
		},
	}
}
