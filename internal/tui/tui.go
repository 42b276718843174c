// Package tui is the terminal front end: it renders layout and session
// snapshots and turns key presses into dispatched actions and chat sends.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"agentdash/internal/app"
	"agentdash/internal/appinfo"
	"agentdash/internal/layout"
	"agentdash/internal/session"
)

var tuiSpinnerFrames = []string{"|", "/", "-", "\\"}

type Mode string

const (
	ModeTUI   Mode = "tui"
	ModePlain Mode = "plain"
)

type Options struct {
	App *app.App
}

// Run starts the full-screen dashboard on the given terminal.
func Run(ctx context.Context, in io.Reader, out io.Writer, opts Options) error {
	if opts.App == nil {
		return errors.New("tui requires an app")
	}
	if f, ok := out.(*os.File); ok {
		if !term.IsTerminal(int(f.Fd())) {
			return fmt.Errorf("stdout is not a TTY; use --ui=plain")
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newTUIModel(ctx, opts.App)
	prog := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	_, err := prog.Run()
	return err
}

type tuiModel struct {
	ctx context.Context
	app *app.App

	events chan tuiAsyncMsg

	width  int
	height int

	layout       layout.TabbedLayout
	widgetCursor int

	sessionIDs   []string
	sessionIndex int

	input    textinput.Model
	viewport viewport.Model

	stickToBottom bool
	spinnerFrame  int

	notice          string
	deleteConfirmID string
	deleteConfirmAt time.Time
	fatal           error
}

type tuiInitMsg struct{}

type tuiRefreshMsg struct{}

type tuiLayoutMsg struct {
	Layout layout.TabbedLayout
}

type tuiSendDoneMsg struct {
	Err error
}

type tuiPingMsg struct {
	Pong session.PongFrame
	Err  error
}

type tuiAsyncMsg struct {
	Event tea.Msg
}

func newTUIModel(ctx context.Context, a *app.App) tuiModel {
	inp := textinput.New()
	inp.Placeholder = "Type a message…"
	inp.Prompt = "› "
	inp.CharLimit = 0
	inp.Focus()

	vp := viewport.New(0, 0)
	vp.SetContent("")

	return tuiModel{
		ctx:           ctx,
		app:           a,
		events:        make(chan tuiAsyncMsg, 512),
		layout:        a.Layout(),
		input:         inp,
		viewport:      vp,
		sessionIDs:    []string{layout.MasterSessionID},
		stickToBottom: true,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return tuiInitMsg{} },
		tuiTickCmd(),
		waitAsyncCmd(m.events),
	)
}

func tuiTickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(time.Time) tea.Msg { return tuiRefreshMsg{} })
}

func waitAsyncCmd(ch <-chan tuiAsyncMsg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// watchLayout pumps reconciled layout snapshots into the event channel.
func (m *tuiModel) watchLayout() {
	ctx := m.ctx
	events := m.events
	sub := m.app.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case l := <-sub:
				events <- tuiAsyncMsg{Event: tuiLayoutMsg{Layout: l}}
			}
		}
	}()
}

func tuiSendCmd(ctx context.Context, a *app.App, sessionID, prompt string) tea.Cmd {
	return func() tea.Msg {
		return tuiSendDoneMsg{Err: a.Send(ctx, sessionID, prompt)}
	}
}

func tuiPingCmd(ctx context.Context, a *app.App) tea.Cmd {
	return func() tea.Msg {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		pong, err := a.Sessions().Ping(pingCtx)
		return tuiPingMsg{Pong: pong, Err: err}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.rerender()
		return m, nil
	case tuiInitMsg:
		m.watchLayout()
		m.rerender()
		return m, nil
	case tuiAsyncMsg:
		switch ev := msg.Event.(type) {
		case tuiLayoutMsg:
			m.layout = ev.Layout
			m.clampWidgetCursor()
		}
		m.rerender()
		return m, waitAsyncCmd(m.events)
	case tuiRefreshMsg:
		if len(tuiSpinnerFrames) > 0 {
			m.spinnerFrame = (m.spinnerFrame + 1) % len(tuiSpinnerFrames)
		}
		m.refreshSessionIDs()
		m.rerender()
		return m, tuiTickCmd()
	case tuiLayoutMsg:
		m.layout = msg.Layout
		m.clampWidgetCursor()
		m.rerender()
		return m, nil
	case tuiSendDoneMsg:
		if msg.Err != nil {
			m.notice = msg.Err.Error()
			m.rerender()
		}
		return m, nil
	case tuiPingMsg:
		if msg.Err != nil {
			m.notice = "ping failed: " + msg.Err.Error()
		} else {
			m.notice = fmt.Sprintf("server up %ds, %d active sessions", msg.Pong.Uptime, msg.Pong.ActiveSessions)
		}
		m.rerender()
		return m, nil
	case tea.KeyMsg:
		handled, cmd := m.handleKey(msg)
		if handled {
			return m, cmd
		}
		var inputCmd tea.Cmd
		m.input, inputCmd = m.input.Update(msg)
		return m, inputCmd
	default:
		return m, nil
	}
}

func (m *tuiModel) handleKey(msg tea.KeyMsg) (bool, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c":
		return true, tea.Quit
	case "tab":
		m.switchTab(1)
		return true, nil
	case "shift+tab":
		m.switchTab(-1)
		return true, nil
	case "ctrl+n":
		next := m.app.Dispatch(m.ctx, layout.Action{Type: layout.ActionTabCreate})
		m.layout = next
		m.notice = ""
		m.rerender()
		return true, nil
	case "ctrl+d":
		return true, m.deleteActiveTab()
	case "shift+up", "alt+up":
		m.selectSession(-1)
		return true, nil
	case "shift+down", "alt+down":
		m.selectSession(1)
		return true, nil
	case "up":
		m.moveWidgetCursor(-1)
		return true, nil
	case "down":
		m.moveWidgetCursor(1)
		return true, nil
	case "ctrl+x":
		m.removeSelectedWidget()
		return true, nil
	case "ctrl+y":
		return true, m.decidePending(true)
	case "ctrl+o":
		return true, m.decidePending(false)
	case "ctrl+l":
		m.app.Sessions().ClearMessages(m.ctx, m.currentSessionID())
		m.stickToBottom = true
		m.rerender()
		return true, nil
	case "ctrl+p":
		m.notice = "pinging…"
		m.rerender()
		return true, tuiPingCmd(m.ctx, m.app)
	case "ctrl+g":
		m.app.Sessions().CancelSession(m.ctx, m.currentSessionID())
		m.notice = "exchange cancelled"
		m.rerender()
		return true, nil
	case "pgup":
		m.stickToBottom = false
		m.viewport.LineUp(m.viewport.Height / 2)
		return true, nil
	case "pgdown":
		m.viewport.LineDown(m.viewport.Height / 2)
		if m.viewport.AtBottom() {
			m.stickToBottom = true
		}
		return true, nil
	case "enter":
		return true, m.submitInput()
	}
	return false, nil
}

func (m *tuiModel) deleteActiveTab() tea.Cmd {
	tabID := m.activeTabID()
	if tabID == "" || len(m.layout.Tabs) <= 1 {
		m.notice = "cannot delete the last tab"
		m.rerender()
		return nil
	}
	if m.deleteConfirmID == tabID && !m.deleteConfirmAt.IsZero() && time.Since(m.deleteConfirmAt) < 3*time.Second {
		m.deleteConfirmID = ""
		m.deleteConfirmAt = time.Time{}
		m.notice = ""
		next := m.app.Dispatch(m.ctx, layout.Action{Type: layout.ActionTabDelete, TabID: tabID})
		m.layout = next
		m.clampWidgetCursor()
		m.rerender()
		return nil
	}
	m.deleteConfirmID = tabID
	m.deleteConfirmAt = time.Now().UTC()
	m.notice = "Press Ctrl+D again to delete this tab."
	m.rerender()
	return nil
}

func (m *tuiModel) decidePending(approve bool) tea.Cmd {
	snap := m.currentSnapshot()
	var pending *session.Proposal
	for i := range snap.Proposals {
		if snap.Proposals[i].Status == session.ProposalPending {
			pending = &snap.Proposals[i]
			break
		}
	}
	if pending == nil {
		m.notice = "no pending proposal"
		m.rerender()
		return nil
	}
	if approve {
		m.app.Sessions().ApproveProposal(m.ctx, snap.ID, pending.ID, nil)
		m.notice = "approved " + pending.Tool
	} else {
		m.app.Sessions().DenyProposal(m.ctx, snap.ID, pending.ID)
		m.notice = "denied " + pending.Tool
	}
	m.rerender()
	return nil
}

func (m *tuiModel) submitInput() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	snap := m.currentSnapshot()
	if snap.State != session.StateIdle {
		m.notice = "session is busy; Ctrl+G cancels"
		m.rerender()
		return nil
	}
	m.input.SetValue("")
	m.notice = ""
	m.stickToBottom = true
	m.rerender()
	return tuiSendCmd(m.ctx, m.app, m.currentSessionID(), text)
}

func (m *tuiModel) switchTab(delta int) {
	tabs := m.layout.Tabs
	if len(tabs) == 0 {
		return
	}
	idx := m.layout.ActiveTab()
	if idx < 0 {
		idx = 0
	}
	idx = (idx + delta + len(tabs)) % len(tabs)
	next := m.app.Dispatch(m.ctx, layout.Action{Type: layout.ActionTabSwitch, TabID: tabs[idx].ID})
	m.layout = next
	m.widgetCursor = 0
	m.rerender()
}

func (m *tuiModel) selectSession(delta int) {
	m.refreshSessionIDs()
	if len(m.sessionIDs) == 0 {
		return
	}
	m.sessionIndex = (m.sessionIndex + delta + len(m.sessionIDs)) % len(m.sessionIDs)
	m.stickToBottom = true
	m.rerender()
}

func (m *tuiModel) moveWidgetCursor(delta int) {
	widgets := m.activeWidgets()
	if len(widgets) == 0 {
		m.widgetCursor = 0
		return
	}
	m.widgetCursor = clamp(0, m.widgetCursor+delta, len(widgets)-1)
	m.rerender()
}

func (m *tuiModel) removeSelectedWidget() {
	widgets := m.activeWidgets()
	if m.widgetCursor < 0 || m.widgetCursor >= len(widgets) {
		return
	}
	w := widgets[m.widgetCursor]
	if layout.IsProtectedWidget(w.ID) {
		m.notice = "the master chat widget cannot be removed"
		m.rerender()
		return
	}
	next := m.app.Dispatch(m.ctx, layout.Action{
		Type:     layout.ActionRemove,
		WidgetID: w.ID,
		TabID:    m.activeTabID(),
	})
	m.layout = next
	m.clampWidgetCursor()
	m.rerender()
}

func (m *tuiModel) refreshSessionIDs() {
	ids := append([]string{layout.MasterSessionID}, m.app.Sessions().ChildIDs()...)
	current := m.currentSessionID()
	m.sessionIDs = ids
	m.sessionIndex = 0
	for i, id := range ids {
		if id == current {
			m.sessionIndex = i
			break
		}
	}
}

func (m *tuiModel) currentSessionID() string {
	if m.sessionIndex < 0 || m.sessionIndex >= len(m.sessionIDs) {
		return layout.MasterSessionID
	}
	return m.sessionIDs[m.sessionIndex]
}

func (m *tuiModel) currentSnapshot() session.Snapshot {
	s, ok := m.app.Sessions().Session(m.currentSessionID())
	if !ok {
		return m.app.Sessions().Master().Snapshot()
	}
	return s.Snapshot()
}

func (m *tuiModel) activeTabID() string {
	idx := m.layout.ActiveTab()
	if idx < 0 || idx >= len(m.layout.Tabs) {
		return ""
	}
	return m.layout.Tabs[idx].ID
}

func (m *tuiModel) activeWidgets() []layout.Widget {
	idx := m.layout.ActiveTab()
	if idx < 0 || idx >= len(m.layout.Tabs) {
		return nil
	}
	return m.layout.Tabs[idx].Widgets
}

func (m *tuiModel) clampWidgetCursor() {
	widgets := m.activeWidgets()
	if len(widgets) == 0 {
		m.widgetCursor = 0
		return
	}
	m.widgetCursor = clamp(0, m.widgetCursor, len(widgets)-1)
}

func (m tuiModel) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	if m.fatal != nil {
		return lipgloss.NewStyle().Padding(1, 2).Render("fatal: " + m.fatal.Error())
	}

	rightW := clamp(24, m.width/3, 46)
	midW := max(0, m.width-rightW)

	center := m.renderChat(midW, m.height)
	right := m.renderSidebar(rightW, m.height)
	return lipgloss.JoinHorizontal(lipgloss.Top, center, right)
}

func (m *tuiModel) resize() {
	rightW := clamp(24, m.width/3, 46)
	midW := max(0, m.width-rightW)
	headerH := 2
	inputH := 2
	m.viewport.Width = max(0, midW-2)
	m.viewport.Height = max(0, m.height-headerH-inputH)
}

func (m *tuiModel) renderChat(width, height int) string {
	header := m.renderTabBar(width)
	body := m.viewport.View()

	inputLine := m.input.View()
	notice := ""
	if m.notice != "" {
		notice = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Render(truncateLine(m.notice, width-2))
	}
	footer := inputLine
	if notice != "" {
		footer = inputLine + "\n" + notice
	}
	return lipgloss.NewStyle().Width(width).Height(height).Render(header + "\n" + body + "\n" + footer)
}

func (m *tuiModel) renderTabBar(width int) string {
	activeStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Underline(true)
	idleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	activeIdx := m.layout.ActiveTab()
	parts := make([]string, 0, len(m.layout.Tabs)+1)
	parts = append(parts, lipgloss.NewStyle().Bold(true).Render(appinfo.Display()))
	for i, tab := range m.layout.Tabs {
		label := tab.Label
		if label == "" {
			label = tab.ID
		}
		if i == activeIdx {
			parts = append(parts, activeStyle.Render(" "+label+" "))
		} else {
			parts = append(parts, idleStyle.Render(" "+label+" "))
		}
	}
	return truncateLine(strings.Join(parts, " | "), width)
}

func (m *tuiModel) renderSidebar(width, height int) string {
	style := lipgloss.NewStyle().Width(width).Height(height).
		BorderLeft(true).BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("8"))
	heading := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	var lines []string
	lines = append(lines, heading.Render("Widgets"))
	widgets := m.activeWidgets()
	if len(widgets) == 0 {
		lines = append(lines, dim.Render("  (empty tab)"))
	}
	for i, w := range widgets {
		marker := "  "
		if i == m.widgetCursor {
			marker = "> "
		}
		desc := fmt.Sprintf("%s%s %dx%d@%d,%d", marker, w.Type, w.W, w.H, w.X, w.Y)
		if w.SessionID != "" {
			desc += " [" + w.SessionID + "]"
		}
		line := truncateLine(desc, width-2)
		if i == m.widgetCursor {
			line = lipgloss.NewStyle().Bold(true).Render(line)
		}
		lines = append(lines, line)
	}

	lines = append(lines, "", heading.Render("Sessions"))
	currentID := m.currentSessionID()
	for _, id := range m.sessionIDs {
		marker := "  "
		if id == currentID {
			marker = "> "
		}
		state := session.StateIdle
		if s, ok := m.app.Sessions().Session(id); ok {
			state = s.Snapshot().State
		}
		suffix := ""
		if state != session.StateIdle {
			suffix = " " + tuiSpinnerFrames[m.spinnerFrame]
		}
		lines = append(lines, truncateLine(marker+id+suffix, width-2))
	}

	snap := m.currentSnapshot()
	if pending := pendingProposals(snap); len(pending) > 0 {
		lines = append(lines, "", heading.Render("Proposals"))
		for _, p := range pending {
			title := p.DisplayTitle
			if title == "" {
				title = p.Tool
			}
			lines = append(lines, truncateLine("  "+title, width-2))
		}
		lines = append(lines, dim.Render("  Ctrl+Y approve / Ctrl+O deny"))
	}

	lines = append(lines, "", dim.Render(fmt.Sprintf("tokens %d in / %d out", snap.TokensIn, snap.TokensOut)))
	lines = append(lines, dim.Render("Tab switch, ^N new tab, ^D del"))
	lines = append(lines, dim.Render("^X del widget, ^L clear, ^P ping"))
	return style.Render(strings.Join(lines, "\n"))
}

// rerender rebuilds the transcript viewport from the current session
// snapshot.
func (m *tuiModel) rerender() {
	snap := m.currentSnapshot()
	width := max(10, m.viewport.Width)

	userStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	assistantStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	traceStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)

	var b strings.Builder
	for _, msg := range snap.Messages {
		switch msg.Role {
		case session.RoleUser:
			b.WriteString(userStyle.Render("you") + "\n")
		default:
			b.WriteString(assistantStyle.Render("agent") + "\n")
		}
		b.WriteString(wrapText(msg.Content, width))
		b.WriteString("\n\n")
	}
	if snap.State != session.StateIdle {
		b.WriteString(assistantStyle.Render("agent "+tuiSpinnerFrames[m.spinnerFrame]) + "\n")
		for _, entry := range snap.Trace {
			b.WriteString(traceStyle.Render(truncateLine(traceLine(entry), width)))
			b.WriteString("\n")
		}
	}

	m.viewport.SetContent(b.String())
	if m.stickToBottom {
		m.viewport.GotoBottom()
	}
}

func traceLine(entry session.TraceEntry) string {
	switch entry.Kind {
	case session.TraceThinking:
		return "thinking: " + firstLine(entry.Text)
	case session.TraceToolCall:
		return "-> " + entry.Tool
	case session.TraceToolResult:
		return "<- " + entry.Tool + ": " + firstLine(entry.Text)
	case session.TraceExecution:
		return "run " + entry.Tool + " " + firstLine(entry.Text)
	case session.TraceTokens:
		return entry.Text
	default:
		return firstLine(entry.Text)
	}
}

func pendingProposals(snap session.Snapshot) []session.Proposal {
	var out []session.Proposal
	for _, p := range snap.Proposals {
		if p.Status == session.ProposalPending {
			out = append(out, p)
		}
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, max(1, width-1), "…")
}

func wrapText(text string, width int) string {
	if width <= 10 {
		return text
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}

func clamp(minv int, v int, maxv int) int {
	if v < minv {
		return minv
	}
	if v > maxv {
		return maxv
	}
	return v
}

func max(a int, b int) int {
	if a > b {
		return a
	}
	return b
}
