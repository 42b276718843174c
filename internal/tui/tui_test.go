package tui

import (
	"strings"
	"testing"

	"agentdash/internal/session"
)

func TestTraceLine(t *testing.T) {
	cases := []struct {
		entry session.TraceEntry
		want  string
	}{
		{session.TraceEntry{Kind: session.TraceThinking, Text: "pondering\nmore"}, "thinking: pondering"},
		{session.TraceEntry{Kind: session.TraceToolCall, Tool: "web_search"}, "-> web_search"},
		{session.TraceEntry{Kind: session.TraceToolResult, Tool: "web_search", Text: "3 hits"}, "<- web_search: 3 hits"},
		{session.TraceEntry{Kind: session.TraceExecution, Tool: "write_file", Text: "ok"}, "run write_file ok"},
		{session.TraceEntry{Kind: session.TraceTokens, Text: "12 in / 40 out"}, "12 in / 40 out"},
	}
	for _, tc := range cases {
		if got := traceLine(tc.entry); got != tc.want {
			t.Fatalf("traceLine(%q) = %q, want %q", tc.entry.Kind, got, tc.want)
		}
	}
}

func TestTruncateLine(t *testing.T) {
	if got := truncateLine("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	got := truncateLine(strings.Repeat("x", 40), 10)
	if len([]rune(got)) > 10 {
		t.Fatalf("not truncated: %q", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("missing ellipsis: %q", got)
	}
	if got := truncateLine("anything", 0); got != "" {
		t.Fatalf("expected empty for zero width, got %q", got)
	}
}

func TestPendingProposalsFiltersDecided(t *testing.T) {
	snap := session.Snapshot{Proposals: []session.Proposal{
		{ID: "p1", Status: session.ProposalApproved},
		{ID: "p2", Status: session.ProposalPending},
		{ID: "p3", Status: session.ProposalDenied},
	}}
	pending := pendingProposals(snap)
	if len(pending) != 1 || pending[0].ID != "p2" {
		t.Fatalf("unexpected pending set: %v", pending)
	}
}

func TestClamp(t *testing.T) {
	if clamp(2, 1, 5) != 2 || clamp(2, 9, 5) != 5 || clamp(2, 3, 5) != 3 {
		t.Fatal("clamp misbehaves")
	}
}
