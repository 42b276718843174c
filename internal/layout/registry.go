package layout

import "strings"

// WidgetSpec is the registry entry for one widget type: default grid size and
// the bounds a resize is clamped to. Renderers live outside this package; the
// reducer only consumes sizes.
type WidgetSpec struct {
	Type     string
	DefaultW int
	DefaultH int
	MinW     int
	MinH     int
	MaxW     int
	MaxH     int
}

var widgetRegistry = map[string]WidgetSpec{
	"chat":               {Type: "chat", DefaultW: 7, DefaultH: 8, MinW: 4, MinH: 4},
	"stat-card":          {Type: "stat-card", DefaultW: 3, DefaultH: 2, MinW: 2, MinH: 2},
	"memory-table":       {Type: "memory-table", DefaultW: 7, DefaultH: 5, MinW: 4, MinH: 3},
	"screenshot-gallery": {Type: "screenshot-gallery", DefaultW: 5, DefaultH: 5, MinW: 3, MinH: 3},
	"vault":              {Type: "vault", DefaultW: 5, DefaultH: 5, MinW: 3, MinH: 3},
	"markdown":           {Type: "markdown", DefaultW: 4, DefaultH: 4, MinW: 2, MinH: 2},
	"code-block":         {Type: "code-block", DefaultW: 6, DefaultH: 4, MinW: 3, MinH: 2},
	"image":              {Type: "image", DefaultW: 4, DefaultH: 4, MinW: 2, MinH: 2},
	"table":              {Type: "table", DefaultW: 6, DefaultH: 4, MinW: 3, MinH: 2},
	"html":               {Type: "html", DefaultW: 6, DefaultH: 5, MinW: 2, MinH: 2},
	"agent-control":      {Type: "agent-control", DefaultW: 8, DefaultH: 7, MinW: 6, MinH: 5},
}

var fallbackSpec = WidgetSpec{DefaultW: 4, DefaultH: 4, MinW: 2, MinH: 2}

// LookupWidgetSpec returns the registry entry for a widget type. Unknown
// types get a generic spec so agent-invented types still place sanely.
func LookupWidgetSpec(widgetType string) WidgetSpec {
	typ := strings.TrimSpace(widgetType)
	spec, ok := widgetRegistry[typ]
	if !ok {
		spec = fallbackSpec
		spec.Type = typ
	}
	if spec.MaxW <= 0 {
		spec.MaxW = GridColumns
	}
	if spec.MaxH <= 0 {
		spec.MaxH = 64
	}
	return spec
}

// RegisteredWidgetTypes returns all known widget type tags.
func RegisteredWidgetTypes() []string {
	out := make([]string, 0, len(widgetRegistry))
	for typ := range widgetRegistry {
		out = append(out, typ)
	}
	return out
}

func (s WidgetSpec) clampSize(w, h int) (int, int) {
	if w <= 0 {
		w = s.DefaultW
	}
	if h <= 0 {
		h = s.DefaultH
	}
	if w < s.MinW {
		w = s.MinW
	}
	if h < s.MinH {
		h = s.MinH
	}
	if w > s.MaxW {
		w = s.MaxW
	}
	if h > s.MaxH {
		h = s.MaxH
	}
	return w, h
}
