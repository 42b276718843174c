package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"agentdash/internal/app"
	"agentdash/internal/layout"
	"agentdash/internal/session"
)

// RunPlain is the line-based fallback for non-TTY environments. It drives
// the master session only; the dashboard document still updates and saves
// in the background.
func RunPlain(ctx context.Context, in io.Reader, out io.Writer, opts Options) error {
	if opts.App == nil {
		return errors.New("plain ui requires an app")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	a := opts.App
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "Type a message, /tabs, /ping, /plan <prompt>, /remember <note>, or /quit.")
	for {
		fmt.Fprint(out, "> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		switch text {
		case "/exit", "/quit":
			return nil
		case "/tabs":
			printTabs(out, a.Layout())
			continue
		case "/ping":
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			pong, err := a.Sessions().Ping(pingCtx)
			cancel()
			if err != nil {
				fmt.Fprintf(out, "ping failed: %v\n", err)
			} else {
				fmt.Fprintf(out, "server up %ds, %d active sessions\n", pong.Uptime, pong.ActiveSessions)
			}
			continue
		case "/clear":
			a.Sessions().ClearMessages(ctx, layout.MasterSessionID)
			fmt.Fprintln(out, "history cleared")
			continue
		}
		if prompt, ok := strings.CutPrefix(text, "/plan "); ok {
			planCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			res, err := a.Sessions().Plan(planCtx, prompt)
			cancel()
			if err != nil {
				fmt.Fprintf(out, "plan failed: %v\n", err)
			} else {
				printPlan(out, res)
			}
			continue
		}
		if note, ok := strings.CutPrefix(text, "/remember "); ok {
			if err := a.Notes().Append(note); err != nil {
				fmt.Fprintf(out, "note not saved: %v\n", err)
			} else {
				fmt.Fprintln(out, "noted")
			}
			continue
		}

		if err := a.Send(ctx, layout.MasterSessionID, text); err != nil {
			fmt.Fprintf(out, "send failed: %v\n", err)
			continue
		}
		if err := followExchange(ctx, reader, out, a); err != nil {
			return err
		}
	}
}

// followExchange polls the master session until the exchange settles,
// prompting for proposal decisions along the way.
func followExchange(ctx context.Context, reader *bufio.Reader, out io.Writer, a *app.App) error {
	master := a.Sessions().Master()
	decided := map[string]bool{}
	printedTrace := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(150 * time.Millisecond):
		}
		snap := master.Snapshot()

		for _, entry := range snap.Trace[min(printedTrace, len(snap.Trace)):] {
			fmt.Fprintln(out, "  "+traceLine(entry))
		}
		printedTrace = len(snap.Trace)

		for _, p := range snap.Proposals {
			if p.Status != session.ProposalPending || decided[p.ID] {
				continue
			}
			decided[p.ID] = true
			title := p.DisplayTitle
			if title == "" {
				title = p.Tool
			}
			fmt.Fprintf(out, "proposal: %s - approve? [y/N] ", title)
			answer, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			if strings.EqualFold(strings.TrimSpace(answer), "y") {
				a.Sessions().ApproveProposal(ctx, snap.ID, p.ID, nil)
			} else {
				a.Sessions().DenyProposal(ctx, snap.ID, p.ID)
			}
		}

		if snap.State == session.StateIdle {
			for i := len(snap.Messages) - 1; i >= 0; i-- {
				if snap.Messages[i].Role == session.RoleAssistant {
					fmt.Fprintln(out, snap.Messages[i].Content)
					break
				}
			}
			return nil
		}
	}
}

func printPlan(out io.Writer, res session.PlanResultFrame) {
	p := res.Plan
	fmt.Fprintln(out, p.Summary)
	for i, step := range p.Steps {
		line := fmt.Sprintf("%d. %s", i+1, step.Tool)
		if step.Target != "" {
			line += " " + step.Target
		}
		if step.Description != "" {
			line += ": " + step.Description
		}
		fmt.Fprintln(out, line)
	}
	if len(p.Files) > 0 {
		fmt.Fprintf(out, "files: %s\n", strings.Join(p.Files, ", "))
	}
	if len(p.Packages) > 0 {
		fmt.Fprintf(out, "packages: %s\n", strings.Join(p.Packages, ", "))
	}
	fmt.Fprintf(out, "complexity: %s, ~%d iterations, ~%d in / %d out tokens",
		p.Complexity, p.EstimatedIterations, p.EstimatedInputTokens, p.EstimatedOutputTokens)
	if p.EstimatedCost != "" {
		fmt.Fprintf(out, ", est. $%s", p.EstimatedCost)
	}
	fmt.Fprintln(out)
}

func printTabs(out io.Writer, l layout.TabbedLayout) {
	activeIdx := l.ActiveTab()
	for i, tab := range l.Tabs {
		marker := " "
		if i == activeIdx {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s (%d widgets)\n", marker, tab.Label, len(tab.Widgets))
	}
}

func min(a int, b int) int {
	if a < b {
		return a
	}
	return b
}
