package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"agentdash/internal/layout"
)

// Frame type discriminants. Frames are flat JSON objects with a "type" field
// beside the payload fields; the shapes match the agent server wire format.
const (
	// Inbound (server -> client).
	FrameTypeThinking        = "thinking"
	FrameTypeToolCall        = "tool_call"
	FrameTypeToolResult      = "tool_result"
	FrameTypeProposal        = "proposal"
	FrameTypeExecutionResult = "execution_result"
	FrameTypeTokenUsage      = "token_usage"
	FrameTypeChatResponse    = "chat_response"
	FrameTypeError           = "error"
	FrameTypeUIAction        = "ui_action"
	FrameTypePong            = "pong"
	FrameTypePlanResult      = "plan_result"

	// Outbound (client -> server).
	FrameTypeChat    = "chat"
	FrameTypeApprove = "approve"
	FrameTypeDeny    = "deny"
	FrameTypeCancel  = "cancel"
	FrameTypeClear   = "clear"
	FrameTypePing    = "ping"
	FrameTypePlan    = "plan"
)

// Execution result statuses.
const (
	ExecutionCompleted = "completed"
	ExecutionDenied    = "denied"
	ExecutionFailed    = "failed"
)

// Frame is the closed set of inbound protocol frames. ParseFrame returns one
// of the concrete types below; consumers switch over them exhaustively.
type Frame interface {
	frameType() string
}

type ThinkingFrame struct {
	Text string `json:"text"`
}

type ToolCallFrame struct {
	ID    string          `json:"id"`
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input,omitempty"`
}

type ToolResultFrame struct {
	ID     string `json:"id"`
	Tool   string `json:"tool"`
	Result string `json:"result"`
}

type ProposalFrame struct {
	ID           string          `json:"id"`
	Tool         string          `json:"tool"`
	Input        json.RawMessage `json:"input,omitempty"`
	DisplayTitle string          `json:"displayTitle,omitempty"`
}

type ExecutionResultFrame struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

type TokenUsageFrame struct {
	DeltaIn   int `json:"deltaIn"`
	DeltaOut  int `json:"deltaOut"`
	TotalIn   int `json:"totalIn"`
	TotalOut  int `json:"totalOut"`
	Iteration int `json:"iteration,omitempty"`
}

type ChatResponseFrame struct {
	Response  string `json:"response"`
	TokensIn  int    `json:"tokensIn"`
	TokensOut int    `json:"tokensOut"`
}

type ErrorFrame struct {
	Message string `json:"message"`
}

// UIActionFrame carries an agent-issued dashboard mutation. The embedded
// action uses the same field names as the layout action JSON shape.
type UIActionFrame struct {
	layout.Action
}

type PongFrame struct {
	Uptime         int `json:"uptime"`
	ActiveSessions int `json:"activeSessions"`
}

// PlanStep is one step of a proposed build plan.
type PlanStep struct {
	Tool        string `json:"tool"`
	Target      string `json:"target,omitempty"`
	Description string `json:"description,omitempty"`
}

// BuildPlan is the server's structured analysis of a build request,
// including its token and cost estimate.
type BuildPlan struct {
	Summary               string     `json:"summary"`
	Steps                 []PlanStep `json:"steps,omitempty"`
	Files                 []string   `json:"files,omitempty"`
	Packages              []string   `json:"packages,omitempty"`
	EstimatedIterations   int        `json:"estimatedIterations,omitempty"`
	EstimatedInputTokens  int        `json:"estimatedInputTokens,omitempty"`
	EstimatedOutputTokens int        `json:"estimatedOutputTokens,omitempty"`
	EstimatedCost         string     `json:"estimatedCost,omitempty"`
	Complexity            string     `json:"complexity,omitempty"`
	Reasoning             string     `json:"reasoning,omitempty"`
}

type PlanResultFrame struct {
	Plan          BuildPlan `json:"plan"`
	PlanTokensIn  int       `json:"planTokensIn"`
	PlanTokensOut int       `json:"planTokensOut"`
	PlanCost      float64   `json:"planCost"`
}

func (ThinkingFrame) frameType() string        { return FrameTypeThinking }
func (ToolCallFrame) frameType() string        { return FrameTypeToolCall }
func (ToolResultFrame) frameType() string      { return FrameTypeToolResult }
func (ProposalFrame) frameType() string        { return FrameTypeProposal }
func (ExecutionResultFrame) frameType() string { return FrameTypeExecutionResult }
func (TokenUsageFrame) frameType() string      { return FrameTypeTokenUsage }
func (ChatResponseFrame) frameType() string    { return FrameTypeChatResponse }
func (ErrorFrame) frameType() string           { return FrameTypeError }
func (UIActionFrame) frameType() string        { return FrameTypeUIAction }
func (PongFrame) frameType() string            { return FrameTypePong }
func (PlanResultFrame) frameType() string      { return FrameTypePlanResult }

// ErrUnknownFrame marks frame types this client does not understand. Callers
// skip them instead of failing the stream.
var ErrUnknownFrame = errors.New("unknown frame type")

// ParseFrame decodes one inbound frame.
func ParseFrame(data []byte) (Frame, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	typ := strings.TrimSpace(head.Type)
	if typ == "" {
		return nil, errors.New("frame has no type")
	}

	decode := func(out Frame) (Frame, error) {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("decode %s frame: %w", typ, err)
		}
		return out, nil
	}

	switch typ {
	case FrameTypeThinking:
		return decode(&ThinkingFrame{})
	case FrameTypeToolCall:
		return decode(&ToolCallFrame{})
	case FrameTypeToolResult:
		return decode(&ToolResultFrame{})
	case FrameTypeProposal:
		return decode(&ProposalFrame{})
	case FrameTypeExecutionResult:
		return decode(&ExecutionResultFrame{})
	case FrameTypeTokenUsage:
		return decode(&TokenUsageFrame{})
	case FrameTypeChatResponse:
		return decode(&ChatResponseFrame{})
	case FrameTypeError:
		return decode(&ErrorFrame{})
	case FrameTypeUIAction:
		return decode(&UIActionFrame{})
	case FrameTypePong:
		return decode(&PongFrame{})
	case FrameTypePlanResult:
		return decode(&PlanResultFrame{})
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, typ)
}

// HistoryEntry is one prior message sent along with a chat frame.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Attachment references uploaded context the server may read back.
type Attachment struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// ChatRequest is the outbound frame that opens an exchange.
type ChatRequest struct {
	Type                 string         `json:"type"`
	Prompt               string         `json:"prompt"`
	APIKey               string         `json:"apiKey"`
	History              []HistoryEntry `json:"history"`
	IncludeSystemContext bool           `json:"includeSystemContext"`
	UserID               string         `json:"userId,omitempty"`
	MemoryContext        string         `json:"memoryContext,omitempty"`
	Attachments          []Attachment   `json:"attachments,omitempty"`
}

// DecisionRequest answers a pending proposal.
type DecisionRequest struct {
	Type        string          `json:"type"` // approve|deny
	ID          string          `json:"id"`
	EditedInput json.RawMessage `json:"editedInput,omitempty"`
}

// ControlRequest is a bare typed frame (cancel, clear, ping).
type ControlRequest struct {
	Type string `json:"type"`
}

// PlanRequest asks the server to analyze a build prompt without running it.
type PlanRequest struct {
	Type        string       `json:"type"`
	Prompt      string       `json:"prompt"`
	APIKey      string       `json:"apiKey"`
	Attachments []Attachment `json:"attachments,omitempty"`
}
