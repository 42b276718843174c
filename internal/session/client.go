package session

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ClientOptions configures the stream client shared by all sessions.
type ClientOptions struct {
	ServerURL          string
	APIKey             string
	UserID             string
	IncludeContext     bool
	DialTimeout        time.Duration
	MaxMessageBytes    int64
	InsecureSkipVerify bool
	Logf               func(format string, args ...any)
}

// Client dials the agent server. One exchange owns one stream: SendMessage
// opens a connection, transmits the chat frame, and the stream lives until a
// terminal frame, a drop, or a cancel.
type Client struct {
	serverURL       string
	apiKey          string
	userID          string
	includeContext  bool
	dialTimeout     time.Duration
	maxMessageBytes int64
	tlsConfig       *tls.Config
	logf            func(format string, args ...any)
}

// NewClient validates options and returns a stream client.
func NewClient(opts ClientOptions) (*Client, error) {
	url := strings.TrimSpace(opts.ServerURL)
	if url == "" {
		return nil, errors.New("server url is required")
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 15 * time.Second
	}
	maxMsg := opts.MaxMessageBytes
	if maxMsg <= 0 {
		maxMsg = 4 << 20
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	var tlsCfg *tls.Config
	if strings.HasPrefix(strings.ToLower(url), "wss://") {
		tlsCfg = &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify} //nolint:gosec
	}
	return &Client{
		serverURL:       url,
		apiKey:          strings.TrimSpace(opts.APIKey),
		userID:          strings.TrimSpace(opts.UserID),
		includeContext:  opts.IncludeContext,
		dialTimeout:     dialTimeout,
		maxMessageBytes: maxMsg,
		tlsConfig:       tlsCfg,
		logf:            logf,
	}, nil
}

// streamConn wraps one websocket connection with a write mutex so decision
// frames and the exchange sender do not interleave writes.
type streamConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
}

func (s *streamConn) writeJSON(ctx context.Context, v any) error {
	if s == nil || s.conn == nil {
		return context.Canceled
	}
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return context.Canceled
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *streamConn) close(status websocket.StatusCode, reason string) {
	if s == nil || s.conn == nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close(status, reason)
}

// read blocks for the next text frame and parses it. Unknown frame types are
// skipped rather than surfaced.
func (s *streamConn) read(ctx context.Context) (Frame, error) {
	for {
		mt, data, err := s.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if mt != websocket.MessageText {
			continue
		}
		frame, err := ParseFrame(data)
		if err != nil {
			if errors.Is(err, ErrUnknownFrame) {
				continue
			}
			return nil, err
		}
		return frame, nil
	}
}

func (c *Client) dial(ctx context.Context) (*streamConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	var dialOpts websocket.DialOptions
	if c.tlsConfig != nil {
		dialOpts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: c.tlsConfig,
			},
		}
	}
	conn, _, err := websocket.Dial(dialCtx, c.serverURL, &dialOpts)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(c.maxMessageBytes)
	return &streamConn{conn: conn}, nil
}

// chatRequest assembles the outbound chat frame for a prompt.
func (c *Client) chatRequest(prompt string, history []HistoryEntry, memoryContext string, attachments []Attachment) ChatRequest {
	if history == nil {
		history = []HistoryEntry{}
	}
	return ChatRequest{
		Type:                 FrameTypeChat,
		Prompt:               prompt,
		APIKey:               c.apiKey,
		History:              history,
		IncludeSystemContext: c.includeContext,
		UserID:               c.userID,
		MemoryContext:        strings.TrimSpace(memoryContext),
		Attachments:          attachments,
	}
}

// Ping opens a throwaway stream and performs the ping/pong health probe.
func (c *Client) Ping(ctx context.Context) (PongFrame, error) {
	if c == nil {
		return PongFrame{}, errors.New("client is nil")
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return PongFrame{}, err
	}
	defer conn.close(websocket.StatusNormalClosure, "bye")

	if err := conn.writeJSON(ctx, ControlRequest{Type: FrameTypePing}); err != nil {
		return PongFrame{}, err
	}
	readCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()
	for {
		frame, err := conn.read(readCtx)
		if err != nil {
			return PongFrame{}, err
		}
		if pong, ok := frame.(*PongFrame); ok {
			return *pong, nil
		}
	}
}

// Plan opens a throwaway stream and asks the server for a structured build
// plan with a token and cost estimate. Nothing runs until the prompt is sent
// again as a chat.
func (c *Client) Plan(ctx context.Context, prompt string) (PlanResultFrame, error) {
	if c == nil {
		return PlanResultFrame{}, errors.New("client is nil")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return PlanResultFrame{}, errors.New("prompt is required")
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return PlanResultFrame{}, err
	}
	defer conn.close(websocket.StatusNormalClosure, "bye")

	req := PlanRequest{Type: FrameTypePlan, Prompt: prompt, APIKey: c.apiKey}
	if err := conn.writeJSON(ctx, req); err != nil {
		return PlanResultFrame{}, err
	}
	readCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()
	for {
		frame, err := conn.read(readCtx)
		if err != nil {
			return PlanResultFrame{}, err
		}
		switch f := frame.(type) {
		case *PlanResultFrame:
			return *f, nil
		case *ErrorFrame:
			return PlanResultFrame{}, errors.New(f.Message)
		}
	}
}
