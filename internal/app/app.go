// Package app assembles the dashboard runtime from its parts. Everything is
// carried explicitly on the App value; there is no package-level state.
package app

import (
	"context"
	"sync"
	"time"

	"agentdash/internal/bridge"
	"agentdash/internal/config"
	"agentdash/internal/layout"
	"agentdash/internal/memory"
	"agentdash/internal/session"
	"agentdash/internal/store"
)

type Options struct {
	Config config.Config
	Logf   func(format string, args ...any)
}

// App owns the layout document, the persistence reconciler, and the session
// manager for one dashboard instance.
type App struct {
	cfg        config.Config
	reconciler *store.Reconciler
	remote     store.RemoteStore
	manager    *session.Manager
	bridge     *bridge.Bridge
	notes      *memory.Notes
	logf       func(format string, args ...any)

	mu   sync.Mutex
	subs []chan layout.TabbedLayout
}

// New wires the full runtime: stores, reconciler, session manager, bridge.
// The initial layout is resolved here so callers start from a usable
// document even when every store is down.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	local, err := store.NewLocalStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	var remote store.RemoteStore
	if cfg.RedisURL != "" {
		remote, err = store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			// Remote layout sync is optional; the local fallback carries on.
			logf("app: redis unavailable, continuing with local store only: %v", err)
			remote = nil
		}
	}
	reconciler, err := store.NewReconciler(store.ReconcilerOptions{
		Local:    local,
		Remote:   remote,
		UserID:   cfg.UserID,
		Debounce: time.Duration(cfg.SaveDebounceMs) * time.Millisecond,
		Logf:     logf,
	})
	if err != nil {
		return nil, err
	}

	client, err := session.NewClient(session.ClientOptions{
		ServerURL:      cfg.ServerURL,
		APIKey:         cfg.APIKey,
		UserID:         cfg.UserID,
		IncludeContext: cfg.IncludeSystemContext == nil || *cfg.IncludeSystemContext,
		Logf:           logf,
	})
	if err != nil {
		return nil, err
	}

	notes, err := memory.NewNotes(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		reconciler: reconciler,
		remote:     remote,
		notes:      notes,
		logf:       logf,
	}
	// Manager hooks and the bridge reference each other; the closures bind
	// through the App so construction order does not matter.
	a.manager, err = session.NewManager(session.ManagerOptions{
		Client:       client,
		HistoryLimit: cfg.HistoryLimit,
		OnUIAction:   func(sessionID string, act layout.Action) { a.bridge.HandleUIAction(sessionID, act) },
		OnChildClosed: func(sessionID string) {
			a.bridge.HandleChildClosed(sessionID)
		},
		Logf: logf,
	})
	if err != nil {
		return nil, err
	}
	a.bridge = bridge.New(bridge.Options{
		Initial:  reconciler.Resolve(ctx),
		Sessions: a.manager,
		OnChange: a.layoutChanged,
		Logf:     logf,
	})
	return a, nil
}

func (a *App) layoutChanged(l layout.TabbedLayout) {
	a.reconciler.Notify(l)
	a.mu.Lock()
	subs := make([]chan layout.TabbedLayout, len(a.subs))
	copy(subs, a.subs)
	a.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- l.Clone():
		default:
			// Slow subscriber; it will catch up from the next snapshot.
		}
	}
}

// Layout returns a deep copy of the current document.
func (a *App) Layout() layout.TabbedLayout {
	return a.bridge.Layout()
}

// Dispatch applies one layout action, including its session side effects,
// and returns the resulting document.
func (a *App) Dispatch(ctx context.Context, act layout.Action) layout.TabbedLayout {
	return a.bridge.Dispatch(ctx, act)
}

// Subscribe returns a channel that receives a snapshot after every layout
// change. Snapshots may be dropped for slow receivers.
func (a *App) Subscribe() <-chan layout.TabbedLayout {
	ch := make(chan layout.TabbedLayout, 16)
	a.mu.Lock()
	a.subs = append(a.subs, ch)
	a.mu.Unlock()
	return ch
}

// Send routes a prompt to the given session. Master exchanges carry the
// user's standing notes as memory context; notes problems only cost the
// context, never the message.
func (a *App) Send(ctx context.Context, sessionID, prompt string) error {
	if sessionID == "" || sessionID == layout.MasterSessionID {
		memoryContext, err := a.notes.Context()
		if err != nil {
			a.logf("app: read notes: %v", err)
		}
		return a.manager.SendMessage(ctx, prompt, session.SendOptions{MemoryContext: memoryContext})
	}
	return a.manager.SendChildMessage(ctx, sessionID, prompt, session.SendOptions{})
}

// Notes exposes the standing-notes store.
func (a *App) Notes() *memory.Notes {
	return a.notes
}

// Sessions exposes the session manager for chat, proposals, and pings.
func (a *App) Sessions() *session.Manager {
	return a.manager
}

// Config returns the effective configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Close cancels live sessions, flushes the pending save, and releases the
// remote store.
func (a *App) Close(ctx context.Context) {
	a.manager.Close(ctx)
	a.reconciler.Close()
	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			a.logf("app: close remote store: %v", err)
		}
	}
}
