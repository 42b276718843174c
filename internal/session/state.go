package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// State is the per-session stream lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateAwaitingOpen State = "awaiting_open"
	StateStreaming    State = "streaming"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TraceEntry kinds.
const (
	TraceThinking   = "thinking"
	TraceToolCall   = "tool_call"
	TraceToolResult = "tool_result"
	TraceExecution  = "execution"
	TraceTokens     = "tokens"
)

// ProposalStatus values. A proposal is pending until the user decides; the
// decision is final once the matching execution_result frame lands.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalDenied   ProposalStatus = "denied"
)

// TraceEntry is one step of the in-progress thinking trace.
type TraceEntry struct {
	Kind string    `json:"kind"`
	Tool string    `json:"tool,omitempty"`
	Text string    `json:"text,omitempty"`
	At   time.Time `json:"at"`
}

// Proposal is an agent-requested action awaiting explicit user approval.
type Proposal struct {
	ID           string          `json:"id"`
	Tool         string          `json:"tool"`
	Input        json.RawMessage `json:"input,omitempty"`
	DisplayTitle string          `json:"displayTitle,omitempty"`
	Status       ProposalStatus  `json:"status"`
	Final        bool            `json:"final"`
	Result       string          `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// ChatMessage is one committed history entry. Assistant messages carry the
// trace that produced them.
type ChatMessage struct {
	Role    string       `json:"role"`
	Content string       `json:"content"`
	Trace   []TraceEntry `json:"trace,omitempty"`
	At      time.Time    `json:"at"`
}

// Snapshot is a deep copy of a session's observable state, safe to hand to
// the UI layer.
type Snapshot struct {
	ID        string
	Master    bool
	State     State
	Loading   bool
	Messages  []ChatMessage
	Trace     []TraceEntry
	Proposals []Proposal
	TokensIn  int
	TokensOut int
}

// Session is one logical conversation with the remote agent. All state is
// guarded by the mutex; exchange goroutines and UI readers may touch it
// concurrently.
type Session struct {
	id     string
	master bool

	mu        sync.Mutex
	state     State
	messages  []ChatMessage
	trace     []TraceEntry
	proposals []Proposal
	tokensIn  int
	tokensOut int
	liveUsage TokenUsageFrame
	cancelled bool

	conn *streamConn
}

func newSession(id string, master bool) *Session {
	return &Session{
		id:     strings.TrimSpace(id),
		master: master,
		state:  StateIdle,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Snapshot returns a deep copy of the current session state.
func (s *Session) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:        s.id,
		Master:    s.master,
		State:     s.state,
		Loading:   s.state != StateIdle,
		Messages:  make([]ChatMessage, len(s.messages)),
		Trace:     append([]TraceEntry(nil), s.trace...),
		Proposals: append([]Proposal(nil), s.proposals...),
		TokensIn:  s.tokensIn,
		TokensOut: s.tokensOut,
	}
	for i, m := range s.messages {
		m.Trace = append([]TraceEntry(nil), m.Trace...)
		snap.Messages[i] = m
	}
	return snap
}

// History returns the committed message history trimmed to the most recent
// limit entries, shaped for an outbound chat frame.
func (s *Session) History(limit int) []HistoryEntry {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return out
}

// beginExchange commits the user prompt to history and moves the session to
// awaiting_open. It refuses when an exchange is already in flight.
func (s *Session) beginExchange(prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("session %s is busy", s.id)
	}
	s.cancelled = false
	s.state = StateAwaitingOpen
	s.messages = append(s.messages, ChatMessage{Role: RoleUser, Content: prompt, At: time.Now().UTC()})
	return nil
}

func (s *Session) attachStream(conn *streamConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.state = StateStreaming
}

func (s *Session) currentStream() *streamConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// applyFrame folds one inbound frame into the session state and reports
// whether the frame terminated the exchange.
func (s *Session) applyFrame(f Frame) (terminal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming {
		return true
	}
	now := time.Now().UTC()
	switch frame := f.(type) {
	case *ThinkingFrame:
		s.trace = append(s.trace, TraceEntry{Kind: TraceThinking, Text: frame.Text, At: now})
	case *ToolCallFrame:
		s.trace = append(s.trace, TraceEntry{Kind: TraceToolCall, Tool: frame.Tool, Text: compactJSON(frame.Input), At: now})
	case *ToolResultFrame:
		s.trace = append(s.trace, TraceEntry{Kind: TraceToolResult, Tool: frame.Tool, Text: frame.Result, At: now})
	case *ProposalFrame:
		s.proposals = append(s.proposals, Proposal{
			ID:           frame.ID,
			Tool:         frame.Tool,
			Input:        frame.Input,
			DisplayTitle: frame.DisplayTitle,
			Status:       ProposalPending,
		})
	case *ExecutionResultFrame:
		s.finalizeProposal(frame, now)
	case *TokenUsageFrame:
		// accumulated silently; cumulative counters land with chat_response
		s.liveUsage = *frame
	case *ChatResponseFrame:
		// servers that skip token_usage frames still report totals here
		if s.tokensInLive() == 0 && s.tokensOutLive() == 0 {
			s.liveUsage.TotalIn = frame.TokensIn
			s.liveUsage.TotalOut = frame.TokensOut
		}
		s.commitAssistant(frame.Response, now)
		s.tokensIn += frame.TokensIn
		s.tokensOut += frame.TokensOut
		return true
	case *ErrorFrame:
		s.commitAssistant(errorMessageText(frame.Message), now)
		return true
	case *UIActionFrame, *PongFrame:
		// routed elsewhere; not part of the trace
	}
	return false
}

// finalizeProposal settles a proposal from its execution_result frame and
// records the outcome in the live trace.
func (s *Session) finalizeProposal(frame *ExecutionResultFrame, now time.Time) {
	for i := range s.proposals {
		p := &s.proposals[i]
		if p.ID != frame.ID {
			continue
		}
		p.Final = true
		if frame.Status == ExecutionCompleted {
			p.Status = ProposalApproved
			p.Result = frame.Result
			s.trace = append(s.trace, TraceEntry{Kind: TraceExecution, Tool: p.Tool, Text: frame.Result, At: now})
		} else {
			p.Status = ProposalDenied
			p.Error = frame.Error
			s.trace = append(s.trace, TraceEntry{Kind: TraceExecution, Tool: p.Tool, Text: frame.Error, At: now})
		}
		return
	}
}

// commitAssistant ends the exchange: the live trace plus a closing token
// entry become a new assistant message, and in-flight state is cleared.
func (s *Session) commitAssistant(content string, now time.Time) {
	trace := s.trace
	if s.tokensInLive() > 0 || s.tokensOutLive() > 0 {
		trace = append(trace, TraceEntry{
			Kind: TraceTokens,
			Text: fmt.Sprintf("%d in / %d out", s.tokensInLive(), s.tokensOutLive()),
			At:   now,
		})
	}
	s.messages = append(s.messages, ChatMessage{Role: RoleAssistant, Content: content, Trace: trace, At: now})
	s.trace = nil
	s.proposals = nil
	s.liveUsage = TokenUsageFrame{}
	s.state = StateIdle
	s.conn = nil
}

// failExchange handles a stream that never opened or dropped mid-flight.
func (s *Session) failExchange(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return
	}
	if s.cancelled {
		s.resetInFlightLocked()
		return
	}
	s.commitAssistant(errorMessageText(message), time.Now().UTC())
}

// markCancelled stops frame processing for the in-flight exchange. Pending
// proposals are denied locally, mirroring what the server does on cancel.
func (s *Session) markCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	s.resetInFlightLocked()
}

func (s *Session) resetInFlightLocked() {
	for i := range s.proposals {
		if s.proposals[i].Status == ProposalPending {
			s.proposals[i].Status = ProposalDenied
		}
	}
	s.proposals = nil
	s.trace = nil
	s.liveUsage = TokenUsageFrame{}
	s.state = StateIdle
	s.conn = nil
}

// decideProposal applies a local approve/deny. It returns the stream to
// notify, or nil when the proposal is unknown, already decided, or the
// stream is closed.
func (s *Session) decideProposal(id string, approve bool) *streamConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.proposals {
		p := &s.proposals[i]
		if p.ID != id || p.Status != ProposalPending {
			continue
		}
		if approve {
			p.Status = ProposalApproved
		} else {
			p.Status = ProposalDenied
		}
		return s.conn
	}
	return nil
}

// clearMessages drops the committed history. In-flight state is untouched.
func (s *Session) clearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.tokensIn = 0
	s.tokensOut = 0
}

// Live token counters come from the trailing token_usage totals; the session
// keeps only the latest frame per exchange.
func (s *Session) tokensInLive() int  { return s.liveUsage.TotalIn }
func (s *Session) tokensOutLive() int { return s.liveUsage.TotalOut }

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	return string(raw)
}

func errorMessageText(message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = "unknown error"
	}
	return "Error: " + msg
}
