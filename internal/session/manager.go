package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"nhooyr.io/websocket"

	"agentdash/internal/layout"
)

// ManagerOptions wires the session registry to the rest of the application.
type ManagerOptions struct {
	Client       *Client
	HistoryLimit int

	// OnUIAction receives agent-issued dashboard mutations as they arrive on
	// any session's stream.
	OnUIAction func(sessionID string, action layout.Action)

	// OnChildClosed fires after a child session is cancelled or removed.
	OnChildClosed func(sessionID string)

	Logf func(format string, args ...any)
}

// Manager owns the master session and any number of concurrently running
// child sessions, each with its own stream and state machine.
type Manager struct {
	client       *Client
	historyLimit int

	onUIAction    func(string, layout.Action)
	onChildClosed func(string)
	logf          func(format string, args ...any)

	mu       sync.Mutex
	master   *Session
	children map[string]*Session

	wg sync.WaitGroup
}

const defaultHistoryLimit = 40

// NewManager builds a session manager with an idle master session.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Client == nil {
		return nil, errors.New("stream client is required")
	}
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Manager{
		client:        opts.Client,
		historyLimit:  limit,
		onUIAction:    opts.OnUIAction,
		onChildClosed: opts.OnChildClosed,
		logf:          logf,
		master:        newSession(layout.MasterSessionID, true),
		children:      make(map[string]*Session),
	}, nil
}

// Master returns the master session.
func (m *Manager) Master() *Session {
	if m == nil {
		return nil
	}
	return m.master
}

// Session returns the session with the given id, master included.
func (m *Manager) Session(sessionID string) (*Session, bool) {
	if m == nil {
		return nil, false
	}
	id := strings.TrimSpace(sessionID)
	if id == "" || id == m.master.id {
		return m.master, id == m.master.id
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.children[id]
	return s, ok
}

// EnsureChild returns the child session with the given externally generated
// id, creating an idle one when absent.
func (m *Manager) EnsureChild(sessionID string) (*Session, error) {
	if m == nil {
		return nil, errors.New("manager is nil")
	}
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil, errors.New("child session id is required")
	}
	if id == m.master.id {
		return nil, fmt.Errorf("%q is the master session id", id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.children[id]; ok {
		return s, nil
	}
	s := newSession(id, false)
	m.children[id] = s
	return s, nil
}

// ChildIDs returns the ids of all live child sessions, sorted.
func (m *Manager) ChildIDs() []string {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.children))
	for id := range m.children {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SendOptions carries the optional context attached to a chat frame.
type SendOptions struct {
	MemoryContext string
	Attachments   []Attachment
}

// SendMessage starts a new exchange on the master session.
func (m *Manager) SendMessage(ctx context.Context, prompt string, opts SendOptions) error {
	if m == nil {
		return errors.New("manager is nil")
	}
	return m.send(ctx, m.master, prompt, opts)
}

// SendChildMessage starts a new exchange on an existing child session.
func (m *Manager) SendChildMessage(ctx context.Context, sessionID, prompt string, opts SendOptions) error {
	s, ok := m.Session(sessionID)
	if !ok || s == m.master {
		return fmt.Errorf("no child session %q", sessionID)
	}
	return m.send(ctx, s, prompt, opts)
}

func (m *Manager) send(ctx context.Context, s *Session, prompt string, opts SendOptions) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return errors.New("prompt is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	history := s.History(m.historyLimit)
	if err := s.beginExchange(prompt); err != nil {
		return err
	}
	req := m.client.chatRequest(prompt, history, opts.MemoryContext, opts.Attachments)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runExchange(ctx, s, req)
	}()
	return nil
}

const connectFailedMessage = "failed to connect"

// runExchange owns one stream from dial to terminal frame. Stream failure at
// any point surfaces as a synthetic assistant message; there is no retry.
func (m *Manager) runExchange(ctx context.Context, s *Session, req ChatRequest) {
	conn, err := m.client.dial(ctx)
	if err != nil {
		m.logf("session %s: dial failed: %v", s.id, err)
		s.failExchange(connectFailedMessage)
		return
	}
	s.attachStream(conn)

	if err := conn.writeJSON(ctx, req); err != nil {
		m.logf("session %s: chat frame write failed: %v", s.id, err)
		conn.close(websocket.StatusInternalError, "write failed")
		s.failExchange(connectFailedMessage)
		return
	}

	for {
		frame, err := conn.read(ctx)
		if err != nil {
			conn.close(websocket.StatusInternalError, "read failed")
			s.failExchange(connectFailedMessage)
			return
		}
		if ui, ok := frame.(*UIActionFrame); ok {
			if m.onUIAction != nil {
				m.onUIAction(s.id, ui.Action)
			}
			continue
		}
		if s.applyFrame(frame) {
			conn.close(websocket.StatusNormalClosure, "done")
			return
		}
	}
}

// ApproveProposal marks a pending proposal approved and notifies the stream.
// No-op when the proposal is unknown or the stream is closed.
func (m *Manager) ApproveProposal(ctx context.Context, sessionID, proposalID string, editedInput json.RawMessage) {
	m.decide(ctx, sessionID, proposalID, true, editedInput)
}

// DenyProposal marks a pending proposal denied and notifies the stream.
func (m *Manager) DenyProposal(ctx context.Context, sessionID, proposalID string) {
	m.decide(ctx, sessionID, proposalID, false, nil)
}

func (m *Manager) decide(ctx context.Context, sessionID, proposalID string, approve bool, editedInput json.RawMessage) {
	if m == nil {
		return
	}
	s, ok := m.Session(sessionID)
	if !ok {
		return
	}
	conn := s.decideProposal(strings.TrimSpace(proposalID), approve)
	if conn == nil {
		return
	}
	typ := FrameTypeDeny
	if approve {
		typ = FrameTypeApprove
	}
	req := DecisionRequest{Type: typ, ID: strings.TrimSpace(proposalID)}
	if approve && len(editedInput) > 0 {
		req.EditedInput = editedInput
	}
	if err := conn.writeJSON(ctx, req); err != nil {
		m.logf("session %s: decision write failed: %v", sessionID, err)
	}
}

// CancelSession stops the in-flight exchange immediately. Cancelling a child
// also removes it from the registry and fires the closed hook.
func (m *Manager) CancelSession(ctx context.Context, sessionID string) {
	if m == nil {
		return
	}
	s, ok := m.Session(sessionID)
	if !ok {
		return
	}
	conn := s.currentStream()
	s.markCancelled()
	if conn != nil {
		// best effort: tell the server, then drop the stream
		_ = conn.writeJSON(ctx, ControlRequest{Type: FrameTypeCancel})
		conn.close(websocket.StatusNormalClosure, "cancelled")
	}
	if s != m.master {
		m.removeChild(s.id)
	}
}

func (m *Manager) removeChild(sessionID string) {
	m.mu.Lock()
	_, ok := m.children[sessionID]
	delete(m.children, sessionID)
	m.mu.Unlock()
	if ok && m.onChildClosed != nil {
		m.onChildClosed(sessionID)
	}
}

// ClearMessages drops the session's local history and asks the server to
// clear its side too. The remote request is best-effort.
func (m *Manager) ClearMessages(ctx context.Context, sessionID string) {
	if m == nil {
		return
	}
	s, ok := m.Session(sessionID)
	if !ok {
		return
	}
	s.clearMessages()

	conn, err := m.client.dial(ctx)
	if err != nil {
		m.logf("session %s: clear request dial failed: %v", sessionID, err)
		return
	}
	defer conn.close(websocket.StatusNormalClosure, "bye")
	if err := conn.writeJSON(ctx, ControlRequest{Type: FrameTypeClear}); err != nil {
		m.logf("session %s: clear request write failed: %v", sessionID, err)
	}
}

// Ping runs the stream health probe.
func (m *Manager) Ping(ctx context.Context) (PongFrame, error) {
	if m == nil {
		return PongFrame{}, errors.New("manager is nil")
	}
	return m.client.Ping(ctx)
}

// Plan requests a build plan and cost estimate for a prompt without
// executing it.
func (m *Manager) Plan(ctx context.Context, prompt string) (PlanResultFrame, error) {
	if m == nil {
		return PlanResultFrame{}, errors.New("manager is nil")
	}
	return m.client.Plan(ctx, prompt)
}

// Close cancels every session and waits for exchange goroutines to drain.
func (m *Manager) Close(ctx context.Context) {
	if m == nil {
		return
	}
	for _, id := range m.ChildIDs() {
		m.CancelSession(ctx, id)
	}
	m.CancelSession(ctx, m.master.id)
	m.wg.Wait()
}
