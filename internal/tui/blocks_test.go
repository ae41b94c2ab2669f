package tui

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/0x6d61/codepilot/pkg/schema"
)

func ev(seq uint64, kind schema.EventKind, content string) schema.Event {
	return schema.Event{Seq: seq, RunID: "run-1", Kind: kind, Content: content}
}

func TestBlockLog_MergesActionAndResult(t *testing.T) {
	var l blockLog
	events := []schema.Event{
		ev(1, schema.KindUser, "crie um html"),
		ev(2, schema.KindThought, "Analyzing request..."),
		ev(3, schema.KindPlan, "Plano:\n1. Criar arquivo index.html"),
		ev(4, schema.KindThought, "Executing plan..."),
		ev(5, schema.KindAction, "[ACTION: write_file('index.html', ...)]"),
		ev(6, schema.KindResult, "[RESULT: 'index.html' written (42 bytes)]"),
		ev(7, schema.KindThought, "Plan complete. Waiting for next instructions."),
	}
	for _, e := range events {
		if !l.apply(e) {
			t.Fatalf("apply(%d) returned false", e.Seq)
		}
	}

	var types []BlockType
	for _, b := range l.blocks {
		types = append(types, b.Type)
	}
	want := []BlockType{BlockUser, BlockThought, BlockPlan, BlockThought, BlockTool, BlockThought}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Fatalf("block types mismatch (-want +got):\n%s", diff)
	}

	tool := l.blocks[4]
	if tool.Action != "write_file('index.html', ...)" {
		t.Errorf("Action = %q", tool.Action)
	}
	if !tool.Completed || tool.Failed {
		t.Errorf("tool block state = completed:%v failed:%v", tool.Completed, tool.Failed)
	}
	if diff := cmp.Diff([]string{"'index.html' written (42 bytes)"}, tool.Output); diff != "" {
		t.Errorf("Output mismatch (-want +got):\n%s", diff)
	}
	if l.hasActiveSpinner() {
		t.Error("no tool should be waiting")
	}
}

func TestBlockLog_FailedResult(t *testing.T) {
	var l blockLog
	l.apply(ev(1, schema.KindAction, "[ACTION: read_file('missing.txt')]"))
	if !l.hasActiveSpinner() {
		t.Error("tool without result should be active")
	}
	l.apply(ev(2, schema.KindResult, "[RESULT: error: tools: read_file missing.txt: not found]"))
	l.apply(ev(3, schema.KindError, "Error: tools: read_file missing.txt: not found"))

	if len(l.blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(l.blocks))
	}
	if !l.blocks[0].Failed {
		t.Error("result starting with 'error:' should mark the block failed")
	}
	if l.blocks[1].Type != BlockError {
		t.Errorf("second block type = %d, want BlockError", l.blocks[1].Type)
	}
}

func TestBlockLog_MultilineCommandOutput(t *testing.T) {
	var l blockLog
	l.apply(ev(1, schema.KindAction, "[ACTION: run_command('ls')]"))
	l.apply(ev(2, schema.KindResult, "[RESULT: command completed\na.txt\nb.txt]"))

	if diff := cmp.Diff([]string{"command completed", "a.txt", "b.txt"}, l.blocks[0].Output); diff != "" {
		t.Errorf("Output mismatch (-want +got):\n%s", diff)
	}
}

func TestBlockLog_IgnoresReplayedEvents(t *testing.T) {
	var l blockLog
	l.apply(ev(1, schema.KindUser, "a"))
	l.apply(ev(2, schema.KindThought, "b"))

	if l.apply(ev(2, schema.KindThought, "b")) {
		t.Error("an event with an already seen Seq should be ignored")
	}
	if l.apply(ev(1, schema.KindUser, "a")) {
		t.Error("an older Seq should be ignored")
	}
	if len(l.blocks) != 2 {
		t.Errorf("expected 2 blocks, got %d", len(l.blocks))
	}
}

func TestBlockLog_ResultWithoutAction(t *testing.T) {
	var l blockLog
	l.apply(ev(1, schema.KindResult, "[RESULT: 2 entries found]"))
	if len(l.blocks) != 1 || l.blocks[0].Type != BlockTool || l.blocks[0].Action != "" {
		t.Fatalf("unexpected blocks: %+v", l.blocks)
	}
}

func TestBlockLog_Questions(t *testing.T) {
	var l blockLog
	q := schema.Question{ID: "q1", Text: "Which color?"}
	l.question(q)
	l.question(q)
	if len(l.blocks) != 1 {
		t.Fatalf("duplicate question should not be added, got %d blocks", len(l.blocks))
	}

	l.answered("blue")
	b := l.blocks[0]
	if !b.Answered || b.Answer != "blue" {
		t.Errorf("question block = %+v", b)
	}

	out := renderBlocks(l.blocks, 80, false, "*")
	if !strings.Contains(out, "Which color?") || !strings.Contains(out, `"blue"`) {
		t.Errorf("answered question render = %q", out)
	}
}

func TestUnwrapTag(t *testing.T) {
	cases := []struct{ in, prefix, want string }{
		{"[ACTION: list_files('.')]", "[ACTION: ", "list_files('.')"},
		{"[RESULT: ok]", "[RESULT: ", "ok"},
		{"plain", "[RESULT: ", "plain"},
		{"[RESULT: unterminated", "[RESULT: ", "[RESULT: unterminated"},
	}
	for _, c := range cases {
		if got := unwrapTag(c.in, c.prefix); got != c.want {
			t.Errorf("unwrapTag(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
