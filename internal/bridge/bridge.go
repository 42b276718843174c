// Package bridge connects the layout document to the live sessions: layout
// mutations that touch session-linked widgets are turned into session
// lifecycle calls, and session lifecycle events are turned back into layout
// mutations.
package bridge

import (
	"context"
	"reflect"
	"sync"

	"agentdash/internal/layout"
	"agentdash/internal/session"
)

// SessionController is the slice of the session manager the bridge drives.
type SessionController interface {
	EnsureChild(sessionID string) (*session.Session, error)
	CancelSession(ctx context.Context, sessionID string)
}

type Options struct {
	Initial  layout.TabbedLayout
	Sessions SessionController

	// OnChange is invoked with a deep copy of the new layout after every
	// dispatch that changed it.
	OnChange func(layout.TabbedLayout)

	Logf func(format string, args ...any)
}

type Bridge struct {
	mu       sync.Mutex
	layout   layout.TabbedLayout
	sessions SessionController
	onChange func(layout.TabbedLayout)
	logf     func(format string, args ...any)
}

func New(opts Options) *Bridge {
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Bridge{
		layout:   opts.Initial.Clone(),
		sessions: opts.Sessions,
		onChange: opts.OnChange,
		logf:     logf,
	}
}

// Layout returns a deep copy of the current document.
func (b *Bridge) Layout() layout.TabbedLayout {
	if b == nil {
		return layout.TabbedLayout{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.layout.Clone()
}

// Dispatch applies the action to the document and fires the session side
// effects it implies. Invalid actions fall through as silent no-ops, same as
// the reducer itself.
func (b *Bridge) Dispatch(ctx context.Context, a layout.Action) layout.TabbedLayout {
	if b == nil {
		return layout.TabbedLayout{}
	}
	b.mu.Lock()
	before := b.layout
	next := layout.Reduce(before, a)
	changed := !reflect.DeepEqual(before, next)
	if changed {
		b.layout = next
	}
	cancelled := removedSessions(before, next)
	ensure := addedSessions(before, next)
	snapshot := next.Clone()
	b.mu.Unlock()

	for _, id := range ensure {
		if _, err := b.sessions.EnsureChild(id); err != nil {
			b.logf("bridge: ensure child %s: %v", id, err)
		}
	}
	// Cancelling may re-enter Dispatch via the child-closed hook; the lock
	// is released by now and the follow-up remove is a no-op.
	for _, id := range cancelled {
		b.logf("bridge: widget for session %s removed, cancelling", id)
		b.sessions.CancelSession(ctx, id)
	}
	if changed && b.onChange != nil {
		b.onChange(snapshot)
	}
	return snapshot
}

// HandleUIAction routes an agent-emitted layout action through Dispatch.
// Wired as the session manager's OnUIAction hook.
func (b *Bridge) HandleUIAction(sessionID string, a layout.Action) {
	if b == nil {
		return
	}
	b.logf("bridge: ui_action %s from session %s", a.Type, sessionID)
	b.Dispatch(context.Background(), a)
}

// HandleChildClosed removes the widget bound to a terminated child session.
// Wired as the session manager's OnChildClosed hook.
func (b *Bridge) HandleChildClosed(sessionID string) {
	if b == nil || sessionID == "" {
		return
	}
	b.mu.Lock()
	var widgetID, tabID string
	for _, tab := range b.layout.Tabs {
		for _, w := range tab.Widgets {
			if w.SessionID == sessionID && !layout.IsProtectedWidget(w.ID) {
				widgetID, tabID = w.ID, tab.ID
				break
			}
		}
		if widgetID != "" {
			break
		}
	}
	b.mu.Unlock()
	if widgetID == "" {
		return
	}
	b.Dispatch(context.Background(), layout.Action{
		Type:     layout.ActionRemove,
		WidgetID: widgetID,
		TabID:    tabID,
	})
}

// removedSessions lists non-master session ids whose widgets exist in before
// but not in after.
func removedSessions(before, after layout.TabbedLayout) []string {
	var out []string
	seen := map[string]bool{}
	for _, tab := range before.Tabs {
		for _, w := range tab.Widgets {
			sid := w.SessionID
			if sid == "" || sid == layout.MasterSessionID || seen[sid] {
				continue
			}
			if ti, _ := after.FindWidget(w.ID); ti < 0 {
				seen[sid] = true
				out = append(out, sid)
			}
		}
	}
	return out
}

// addedSessions lists non-master session ids carried by widgets that are new
// in after.
func addedSessions(before, after layout.TabbedLayout) []string {
	var out []string
	seen := map[string]bool{}
	for _, tab := range after.Tabs {
		for _, w := range tab.Widgets {
			sid := w.SessionID
			if sid == "" || sid == layout.MasterSessionID || seen[sid] {
				continue
			}
			if ti, _ := before.FindWidget(w.ID); ti < 0 {
				seen[sid] = true
				out = append(out, sid)
			}
		}
	}
	return out
}
