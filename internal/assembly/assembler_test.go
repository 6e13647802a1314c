package assembly

import (
	"context"
	"errors"
	"testing"

	"github.com/kayz/promptforge/internal/chatlog"
	"github.com/kayz/promptforge/internal/prompt"
)

func testPrompts(extra ...*prompt.Prompt) *prompt.Collection {
	col := prompt.NewCollection(
		&prompt.Prompt{Identifier: prompt.IDMain, Role: prompt.RoleSystem, Content: "MAIN", Position: prompt.PositionRelative},
		&prompt.Prompt{Identifier: prompt.IDDialogueExamples, Marker: true, Position: prompt.PositionRelative},
		&prompt.Prompt{Identifier: prompt.IDChatHistory, Marker: true, Position: prompt.PositionRelative},
	)
	for _, p := range extra {
		col.Add(p)
	}
	return col
}

// testConfig keeps every structural cost tiny and predictable under
// lenCounter: framing 1, "NC" 2, "EC" 2.
func testConfig(contextSize int) Config {
	return Config{
		ContextSize:          contextSize,
		FramingOverhead:      1,
		NewChatPrompt:        "NC",
		NewExampleChatPrompt: "EC",
	}
}

func userTurn(content string) chatlog.Turn {
	return chatlog.Turn{Role: "user", Content: content}
}

func contents(chat []WireMessage) []string {
	out := make([]string, 0, len(chat))
	for _, m := range chat {
		out = append(out, m.Content)
	}
	return out
}

func assertContents(t *testing.T, chat []WireMessage, want []string) {
	t.Helper()
	got := contents(chat)
	if len(got) != len(want) {
		t.Fatalf("expected %d messages %v, got %d: %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d: expected %q, got %v", i, want[i], got)
		}
	}
}

func TestGreedyHistoryTruncation(t *testing.T) {
	// Mandatory cost: framing 1 + MAIN 4 + NC 2 = 7. Context 17 leaves 10
	// for history: "five" (4) and "four" (4) fit, "three" (5) does not,
	// and nothing older is considered.
	asm := NewAssembler(lenCounter{}, testConfig(17))
	chat, report, err := asm.Assemble(context.Background(), Request{
		Kind:    KindNormal,
		Prompts: testPrompts(),
		Turns: []chatlog.Turn{
			userTurn("one"), userTurn("two"), userTurn("three"),
			userTurn("four"), userTurn("five"),
		},
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	assertContents(t, chat, []string{"MAIN", "NC", "four", "five"})
	if report.HistoryInserted != 2 || report.HistoryDropped != 3 {
		t.Fatalf("expected 2 kept / 3 dropped, got %d / %d", report.HistoryInserted, report.HistoryDropped)
	}
	if report.RemainingBudget < 0 {
		t.Fatalf("budget went negative: %d", report.RemainingBudget)
	}
}

func TestAtomicToolBlocks(t *testing.T) {
	calls := []chatlog.ToolCall{{ID: "1", Name: "lookup"}}
	turns := []chatlog.Turn{
		userTurn("old-question"),
		{Role: "assistant", Content: "", ToolCalls: calls},
		{Role: "tool", Content: "result", ToolCallID: "1"},
		userTurn("newest"),
	}

	// Generous budget: the whole block fits, in chronological order.
	asm := NewAssembler(lenCounter{}, testConfig(1000))
	chat, _, err := asm.Assemble(context.Background(), Request{Kind: KindNormal, Prompts: testPrompts(), Turns: turns})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	got := contents(chat)
	// The empty-content tool call message still appears because it
	// carries tool calls.
	want := []string{"MAIN", "NC", "old-question", "", "result", "newest"}
	assertContents(t, chat, want)
	if len(chat[3].ToolCalls) != 1 || chat[3].ToolCalls[0].Name != "lookup" {
		t.Fatalf("expected tool call on block head, got %+v", got)
	}

	// Tight budget: framing 1 + MAIN 4 + NC 2 + "newest" 6 = 13. The tool
	// block does not fit as a unit, so neither it nor anything older
	// appears.
	asm = NewAssembler(lenCounter{}, testConfig(20))
	chat, report, err := asm.Assemble(context.Background(), Request{Kind: KindNormal, Prompts: testPrompts(), Turns: turns})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	assertContents(t, chat, []string{"MAIN", "NC", "newest"})
	if report.HistoryInserted != 1 {
		t.Fatalf("expected only the newest turn kept, got %d", report.HistoryInserted)
	}
}

func TestDepthInjectionPlacement(t *testing.T) {
	turns := []chatlog.Turn{userTurn("t1"), userTurn("t2"), userTurn("t3"), userTurn("t4")}
	extras := []*prompt.Prompt{
		{Identifier: "inj-low", Role: prompt.RoleUser, Content: "LOW", Position: prompt.PositionAbsolute, Depth: 2, Order: 100},
		{Identifier: "inj-high", Role: prompt.RoleSystem, Content: "HIGH", Position: prompt.PositionAbsolute, Depth: 2, Order: 200},
	}

	asm := NewAssembler(lenCounter{}, testConfig(1000))
	chat, _, err := asm.Assemble(context.Background(), Request{Kind: KindNormal, Prompts: testPrompts(extras...), Turns: turns})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	// Depth 2 lands two turns from the end; order 200 precedes order 100.
	assertContents(t, chat, []string{"MAIN", "NC", "t1", "t2", "HIGH", "LOW", "t3", "t4"})
}

func TestDepthInjectionRoleOrderAndJoin(t *testing.T) {
	turns := []chatlog.Turn{userTurn("t1"), userTurn("t2")}
	extras := []*prompt.Prompt{
		{Identifier: "a", Role: prompt.RoleAssistant, Content: "A", Position: prompt.PositionAbsolute, Depth: 0, Order: 100},
		{Identifier: "u1", Role: prompt.RoleUser, Content: "U1", Position: prompt.PositionAbsolute, Depth: 0, Order: 100},
		{Identifier: "s", Role: prompt.RoleSystem, Content: "S", Position: prompt.PositionAbsolute, Depth: 0, Order: 100},
		{Identifier: "u2", Role: prompt.RoleUser, Content: "U2", Position: prompt.PositionAbsolute, Depth: 0, Order: 100},
	}

	asm := NewAssembler(lenCounter{}, testConfig(1000))
	chat, _, err := asm.Assemble(context.Background(), Request{Kind: KindNormal, Prompts: testPrompts(extras...), Turns: turns})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	// Depth 0 lands after the newest turn; within the order group roles
	// run system, user, assistant, and same-role content joins with \n.
	assertContents(t, chat, []string{"MAIN", "NC", "t1", "t2", "S", "U1\nU2", "A"})

	roles := []string{chat[4].Role, chat[5].Role, chat[6].Role}
	if roles[0] != RoleSystem || roles[1] != RoleUser || roles[2] != RoleAssistant {
		t.Fatalf("unexpected role order: %v", roles)
	}
}

func TestDepthBeyondLogLengthClamped(t *testing.T) {
	turns := []chatlog.Turn{userTurn("t1"), userTurn("t2")}
	extras := []*prompt.Prompt{
		{Identifier: "deep", Role: prompt.RoleSystem, Content: "DEEP", Position: prompt.PositionAbsolute, Depth: 10, Order: 100},
	}

	asm := NewAssembler(lenCounter{}, testConfig(1000))
	chat, _, err := asm.Assemble(context.Background(), Request{Kind: KindNormal, Prompts: testPrompts(extras...), Turns: turns})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	// A depth past the log length clamps to the oldest end instead of
	// corrupting the index math.
	assertContents(t, chat, []string{"MAIN", "NC", "DEEP", "t1", "t2"})
}

func TestMandatoryOverflowAborts(t *testing.T) {
	asm := NewAssembler(lenCounter{}, testConfig(4))
	_, _, err := asm.Assemble(context.Background(), Request{Kind: KindNormal, Prompts: testPrompts()})
	var budgetErr *TokenBudgetExceededError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("expected TokenBudgetExceededError, got %v", err)
	}
	if budgetErr.Identifier != prompt.IDMain {
		t.Fatalf("expected main identified as offender, got %q", budgetErr.Identifier)
	}
}

func TestContinueTargetIsProtected(t *testing.T) {
	turns := []chatlog.Turn{
		userTurn("aaaaaaaaaa"), // 10, will be dropped
		{Role: "assistant", Content: "draft"},
	}

	// Mandatory: framing 1 + MAIN 4 + NC 2 = 7; continue target "PRdraft"
	// is 7 and reserved up front; the 10-cost turn must not squeeze it
	// out. Context 17 leaves exactly 10 for history, and the reservation
	// keeps the old turn from consuming it.
	asm := NewAssembler(lenCounter{}, testConfig(17))
	chat, report, err := asm.Assemble(context.Background(), Request{
		Kind:        KindContinue,
		Prompts:     testPrompts(),
		Turns:       turns,
		PrefillText: "PR",
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	assertContents(t, chat, []string{"MAIN", "NC", "PRdraft"})
	if chat[2].Role != RoleAssistant {
		t.Fatalf("continue target should be an assistant message, got %q", chat[2].Role)
	}
	if report.HistoryInserted != 0 {
		t.Fatalf("expected the old turn dropped, got %d inserted", report.HistoryInserted)
	}
}

func TestDialogueExamplesAtomicBlocks(t *testing.T) {
	examples := [][]chatlog.Turn{
		{userTurn("q1"), {Role: "assistant", Content: "a1"}},
		{userTurn("q2-very-long-example-turn"), {Role: "assistant", Content: "a2"}},
	}

	// Mandatory: framing 1 + MAIN 4 + NC 2 = 7. First block costs
	// EC 2 + 2 + 2 = 6; second needs 2 + 24 + 2 = 28 and is skipped
	// whole.
	asm := NewAssembler(lenCounter{}, testConfig(20))
	chat, report, err := asm.Assemble(context.Background(), Request{
		Kind:     KindNormal,
		Prompts:  testPrompts(),
		Examples: examples,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	assertContents(t, chat, []string{"MAIN", "EC", "q1", "a1", "NC"})
	if report.ExamplesInserted != 1 || report.ExamplesDropped != 1 {
		t.Fatalf("expected 1 kept / 1 dropped example, got %d / %d", report.ExamplesInserted, report.ExamplesDropped)
	}
}

func TestGroupNudgePlacedLast(t *testing.T) {
	extras := []*prompt.Prompt{
		{Identifier: prompt.IDGroupNudge, Role: prompt.RoleSystem, Content: "NUDGE", Position: prompt.PositionRelative},
	}
	asm := NewAssembler(lenCounter{}, testConfig(1000))
	chat, _, err := asm.Assemble(context.Background(), Request{
		Kind:    KindNormal,
		Prompts: testPrompts(extras...),
		Turns:   []chatlog.Turn{userTurn("hi")},
		Group:   true,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	assertContents(t, chat, []string{"MAIN", "NC", "hi", "NUDGE"})
}

func TestExtensionAnchoredNextToMain(t *testing.T) {
	col := prompt.NewCollection(
		&prompt.Prompt{Identifier: prompt.IDMain, Role: prompt.RoleSystem, Content: "MAIN", Position: prompt.PositionRelative},
		&prompt.Prompt{Identifier: prompt.IDSummary, Role: prompt.RoleSystem, Content: "SUMMARY", Position: prompt.PositionRelative},
		&prompt.Prompt{Identifier: prompt.IDNSFW, Role: prompt.RoleSystem, Content: "RULES", Position: prompt.PositionRelative},
		&prompt.Prompt{Identifier: prompt.IDDialogueExamples, Marker: true, Position: prompt.PositionRelative},
		&prompt.Prompt{Identifier: prompt.IDChatHistory, Marker: true, Position: prompt.PositionRelative},
	)
	asm := NewAssembler(lenCounter{}, testConfig(1000))
	chat, _, err := asm.Assemble(context.Background(), Request{
		Kind:    KindNormal,
		Prompts: col,
		Turns:   []chatlog.Turn{userTurn("hi")},
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	// The summary splices directly after main, ahead of ordinary relative
	// prompts.
	assertContents(t, chat, []string{"MAIN", "SUMMARY", "RULES", "NC", "hi"})
}

func TestExtensionPromotedWhenMainIsAbsolute(t *testing.T) {
	col := prompt.NewCollection(
		&prompt.Prompt{Identifier: prompt.IDMain, Role: prompt.RoleSystem, Content: "MAIN", Position: prompt.PositionAbsolute, Depth: 1, Order: 100},
		&prompt.Prompt{Identifier: prompt.IDSummary, Role: prompt.RoleUser, Content: "SUMMARY", Position: prompt.PositionRelative},
		&prompt.Prompt{Identifier: prompt.IDChatHistory, Marker: true, Position: prompt.PositionRelative},
		&prompt.Prompt{Identifier: prompt.IDDialogueExamples, Marker: true, Position: prompt.PositionRelative},
	)
	asm := NewAssembler(lenCounter{}, testConfig(1000))
	chat, _, err := asm.Assemble(context.Background(), Request{
		Kind:    KindNormal,
		Prompts: col,
		Turns:   []chatlog.Turn{userTurn("t1"), userTurn("t2")},
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	// Main is depth-injected; the summary inherits its role, depth, and
	// order, joining it in the same injection group.
	assertContents(t, chat, []string{"NC", "t1", "MAIN\nSUMMARY", "t2"})
	if chat[2].Role != RoleSystem {
		t.Fatalf("promoted extension should inherit main's role, got %q", chat[2].Role)
	}
}

func TestImpersonateControlPromptPlacedAfterHistory(t *testing.T) {
	extras := []*prompt.Prompt{
		{Identifier: prompt.IDImpersonate, Role: prompt.RoleSystem, Content: "IMPERSONATE", Position: prompt.PositionRelative},
	}
	asm := NewAssembler(lenCounter{}, testConfig(1000))
	chat, _, err := asm.Assemble(context.Background(), Request{
		Kind:    KindImpersonate,
		Prompts: testPrompts(extras...),
		Turns:   []chatlog.Turn{userTurn("hi")},
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	assertContents(t, chat, []string{"MAIN", "NC", "hi", "IMPERSONATE"})
}

func TestSignatureCarriedIntoPayload(t *testing.T) {
	turns := []chatlog.Turn{
		userTurn("hi"),
		{Role: "assistant", Content: "done", Signature: "sig-1"},
	}
	asm := NewAssembler(lenCounter{}, testConfig(1000))
	chat, _, err := asm.Assemble(context.Background(), Request{Kind: KindNormal, Prompts: testPrompts(), Turns: turns})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	last := chat[len(chat)-1]
	if last.Content != "done" || last.Signature != "sig-1" {
		t.Fatalf("signature lost between log and payload: %+v", last)
	}
}
