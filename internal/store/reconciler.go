package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"agentdash/internal/layout"
)

// ReconcilerOptions configures document resolution and saving.
type ReconcilerOptions struct {
	Local    *LocalStore
	Remote   RemoteStore // optional; used only when a user id is present
	UserID   string
	Debounce time.Duration
	Logf     func(format string, args ...any)
}

// Reconciler resolves the authoritative starting document once, then keeps
// every accepted layout durably saved. Saves are debounced, best-effort, and
// never block or roll back in-memory state.
type Reconciler struct {
	local    *LocalStore
	remote   RemoteStore
	userID   string
	debounce time.Duration
	logf     func(format string, args ...any)

	mu      sync.Mutex
	pending *layout.TabbedLayout
	timer   *time.Timer
	closed  bool
}

const defaultSaveDebounce = 800 * time.Millisecond

// NewReconciler builds a reconciler. Remote saving is active only when both
// a remote store and a user id are configured.
func NewReconciler(opts ReconcilerOptions) (*Reconciler, error) {
	if opts.Local == nil {
		return nil, errors.New("local store is required")
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultSaveDebounce
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Reconciler{
		local:    opts.Local,
		remote:   opts.Remote,
		userID:   strings.TrimSpace(opts.UserID),
		debounce: debounce,
		logf:     logf,
	}, nil
}

// Resolve picks the starting layout: remote store first (when a user id is
// known), then the local fallback, then the built-in default. Whatever loads
// is migrated before adoption.
func (r *Reconciler) Resolve(ctx context.Context) layout.TabbedLayout {
	if r == nil {
		return layout.DefaultLayout()
	}
	if r.remote != nil && r.userID != "" {
		data, err := r.remote.Load(ctx, r.userID)
		switch {
		case err != nil:
			r.logf("store: remote load failed: %v", err)
		case len(data) > 0:
			// A saved layout always carries the protected master widget, so
			// a widgetless migration result means the remote document had no
			// real content and must not shadow the local fallback.
			migrated := layout.Migrate(data)
			if hasAnyWidget(migrated) {
				return migrated
			}
			r.logf("store: remote document is empty, trying local")
		}
	}

	data, err := r.local.Load()
	if err != nil {
		r.logf("store: local load failed: %v", err)
	} else if len(data) > 0 {
		migrated := layout.Migrate(data)
		if hasAnyWidget(migrated) {
			return migrated
		}
	}

	return layout.DefaultLayout()
}

func hasAnyWidget(l layout.TabbedLayout) bool {
	for _, tab := range l.Tabs {
		if len(tab.Widgets) > 0 {
			return true
		}
	}
	return false
}

// Notify schedules a durable save of the given layout. Rapid successive
// changes coalesce into one write after a quiet period.
func (r *Reconciler) Notify(l layout.TabbedLayout) {
	if r == nil {
		return
	}
	snapshot := l.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.pending = &snapshot
	if r.timer == nil {
		r.timer = time.AfterFunc(r.debounce, r.flush)
	} else {
		r.timer.Reset(r.debounce)
	}
}

func (r *Reconciler) flush() {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.timer = nil
	r.mu.Unlock()
	if pending != nil {
		r.write(*pending)
	}
}

// write persists to every sink. Failures are logged and swallowed: the
// in-memory layout stays the source of truth either way.
func (r *Reconciler) write(l layout.TabbedLayout) {
	if err := r.local.Save(l); err != nil {
		r.logf("store: local save failed: %v", err)
	}
	if r.remote == nil || r.userID == "" {
		return
	}
	data, err := json.Marshal(l)
	if err != nil {
		r.logf("store: encode layout failed: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.remote.Save(ctx, r.userID, data); err != nil {
		r.logf("store: remote save failed: %v", err)
	}
}

// Close stops the debounce timer and flushes any pending write.
func (r *Reconciler) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()
	if pending != nil {
		r.write(*pending)
	}
}
