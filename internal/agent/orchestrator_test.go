package agent_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/0x6d61/codepilot/internal/agent"
	"github.com/0x6d61/codepilot/internal/event"
	"github.com/0x6d61/codepilot/internal/planner"
	"github.com/0x6d61/codepilot/pkg/schema"
)

// stepsPlanner は固定のステップを返す Planner。
func stepsPlanner(steps ...schema.Step) planner.Planner {
	return planner.FuncPlanner(func(prompt string) (*schema.Plan, error) {
		return &schema.Plan{Name: "test", Text: "plan for " + prompt, Steps: steps}, nil
	})
}

// gatePlanner は release が閉じられるまで Generate をブロックする。
type gatePlanner struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	steps   []schema.Step
}

func newGatePlanner(steps ...schema.Step) *gatePlanner {
	return &gatePlanner{entered: make(chan struct{}, 4), release: make(chan struct{}), steps: steps}
}

func (g *gatePlanner) Generate(prompt string) (*schema.Plan, error) {
	g.entered <- struct{}{}
	<-g.release
	return &schema.Plan{Name: "gate", Text: "gated", Steps: g.steps}, nil
}

func (g *gatePlanner) open() { g.once.Do(func() { close(g.release) }) }

func newOrchestrator(t *testing.T, p planner.Planner) (*agent.Orchestrator, string) {
	t.Helper()
	root := t.TempDir()
	o, err := agent.New(agent.Config{Root: root, Planner: p, AskTimeout: time.Minute})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(o.Close)
	return o, root
}

func eventKinds(events []schema.Event) []schema.EventKind {
	out := make([]schema.EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind)
	}
	return out
}

func countKind(events []schema.Event, kind schema.EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func TestProcessPrompt_EventSequence(t *testing.T) {
	o, root := newOrchestrator(t, stepsPlanner(
		schema.Step{Tool: schema.ToolWriteFile, Path: "src/a.txt", Content: "x"},
	))

	if err := o.ProcessPrompt(context.Background(), "make a file"); err != nil {
		t.Fatalf("ProcessPrompt: %v", err)
	}
	if o.IsRunning() {
		t.Error("IsRunning should be false after the run settled")
	}

	events := o.History()
	want := []schema.EventKind{
		schema.KindUser, schema.KindThought, schema.KindPlan,
		schema.KindThought, schema.KindAction, schema.KindResult, schema.KindThought,
	}
	if diff := cmp.Diff(want, eventKinds(events)); diff != "" {
		t.Fatalf("event kinds mismatch (-want +got):\n%s", diff)
	}
	if events[0].Content != "make a file" {
		t.Errorf("user event content = %q, want verbatim prompt", events[0].Content)
	}
	if events[1].Content != "Analyzing request..." || events[3].Content != "Executing plan..." {
		t.Errorf("thought contents = %q, %q", events[1].Content, events[3].Content)
	}
	if events[2].Content != "plan for make a file" {
		t.Errorf("plan content = %q", events[2].Content)
	}
	if last := events[len(events)-1].Content; last != "Plan complete. Waiting for next instructions." {
		t.Errorf("completion content = %q", last)
	}

	runID := events[0].RunID
	for i, e := range events {
		if e.RunID != runID || runID == "" {
			t.Errorf("event %d RunID = %q, want %q", i, e.RunID, runID)
		}
		if e.Seq != uint64(i+1) {
			t.Errorf("event %d Seq = %d", i, e.Seq)
		}
	}

	if _, err := os.Stat(filepath.Join(root, "src", "a.txt")); err != nil {
		t.Errorf("file should be written: %v", err)
	}
	run, ok := o.LastRun()
	if !ok || run.State != agent.StateDone || run.ID != runID || run.Plan == nil {
		t.Errorf("LastRun = %+v", run)
	}
}

func TestProcessPrompt_NestedWriteEmitsOneCreate(t *testing.T) {
	o, _ := newOrchestrator(t, stepsPlanner(
		schema.Step{Tool: schema.ToolWriteFile, Path: "src/a.txt", Content: "x"},
	))
	_ = o.ProcessPrompt(context.Background(), "go")

	want := []schema.FileChange{{Kind: schema.ChangeCreate, Path: "src/a.txt"}}
	if diff := cmp.Diff(want, o.Changes().History()); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessPrompt_ExistingPathIsModify(t *testing.T) {
	o, root := newOrchestrator(t, stepsPlanner(
		schema.Step{Tool: schema.ToolWriteFile, Path: "a.txt", Content: "new\ncontent"},
	))
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = o.ProcessPrompt(context.Background(), "go")

	changes := o.Changes().History()
	if len(changes) != 1 || changes[0].Kind != schema.ChangeModify {
		t.Fatalf("changes = %+v, want one modify", changes)
	}
	got, err := o.ReadFile("a.txt")
	if err != nil || got != "new\ncontent" {
		t.Errorf("ReadFile = (%q, %v)", got, err)
	}
}

func TestProcessPrompt_EchoTerminalRecord(t *testing.T) {
	o, _ := newOrchestrator(t, stepsPlanner(
		schema.Step{Tool: schema.ToolRunCommand, Command: "echo hi"},
	))
	_ = o.ProcessPrompt(context.Background(), "say hi")

	snaps := o.Terminal().History()
	if len(snaps) < 2 {
		t.Fatalf("terminal snapshots = %d, want running then success", len(snaps))
	}
	if snaps[0].Status != schema.TerminalRunning || snaps[len(snaps)-1].Status != schema.TerminalSuccess {
		t.Errorf("statuses = %s → %s", snaps[0].Status, snaps[len(snaps)-1].Status)
	}

	recs := o.TerminalRecords()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1 (no duplicate)", len(recs))
	}
	if !strings.Contains(recs[0].Stdout, "hi") {
		t.Errorf("Stdout = %q", recs[0].Stdout)
	}
}

func TestProcessPrompt_ToolFailureHaltsRun(t *testing.T) {
	o, root := newOrchestrator(t, stepsPlanner(
		schema.Step{Tool: schema.ToolReadFile, Path: "missing.txt"},
		schema.Step{Tool: schema.ToolWriteFile, Path: "after.txt", Content: "x"},
	))

	if err := o.ProcessPrompt(context.Background(), "read it"); err != nil {
		t.Fatalf("ProcessPrompt should not return run failures: %v", err)
	}

	events := o.History()
	if n := countKind(events, schema.KindError); n != 1 {
		t.Fatalf("error events = %d, want 1", n)
	}
	last := events[len(events)-1]
	if last.Kind != schema.KindError || !strings.HasPrefix(last.Content, "Error: ") || !strings.Contains(last.Content, "missing.txt") {
		t.Errorf("last event = %+v", last)
	}
	if n := countKind(events, schema.KindAction); n != 1 {
		t.Errorf("action events = %d, the second step must not run", n)
	}
	if _, err := os.Stat(filepath.Join(root, "after.txt")); !os.IsNotExist(err) {
		t.Error("after.txt must not be written")
	}

	run, _ := o.LastRun()
	if run.State != agent.StateFailed || run.Err == nil {
		t.Errorf("LastRun = %+v", run)
	}
}

func TestProcessPrompt_PlanningError(t *testing.T) {
	o, _ := newOrchestrator(t, planner.FuncPlanner(func(string) (*schema.Plan, error) {
		return nil, errors.New("boom")
	}))
	_ = o.ProcessPrompt(context.Background(), "anything")

	want := []schema.EventKind{schema.KindUser, schema.KindThought, schema.KindError}
	events := o.History()
	if diff := cmp.Diff(want, eventKinds(events)); diff != "" {
		t.Fatalf("event kinds mismatch (-want +got):\n%s", diff)
	}
	if events[2].Content != "Error: planning failed: boom" {
		t.Errorf("error content = %q", events[2].Content)
	}

	run, _ := o.LastRun()
	var pe *agent.PlanningError
	if !errors.As(run.Err, &pe) {
		t.Errorf("run.Err = %v, want *PlanningError", run.Err)
	}
}

func TestProcessPrompt_PlannerPanic(t *testing.T) {
	o, _ := newOrchestrator(t, planner.FuncPlanner(func(string) (*schema.Plan, error) {
		panic("kaboom")
	}))
	if err := o.ProcessPrompt(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	events := o.History()
	last := events[len(events)-1]
	if last.Kind != schema.KindError || !strings.Contains(last.Content, "planning failed: ") {
		t.Errorf("last event = %+v", last)
	}
	if o.IsRunning() {
		t.Error("running flag should be cleared")
	}
}

func TestProcessPrompt_RejectsWhileRunning(t *testing.T) {
	gate := newGatePlanner()
	o, _ := newOrchestrator(t, gate)
	defer gate.open()

	done := make(chan error, 1)
	go func() { done <- o.ProcessPrompt(context.Background(), "first") }()
	<-gate.entered

	if !o.IsRunning() {
		t.Fatal("first run should be in progress")
	}
	before := len(o.History())
	if err := o.ProcessPrompt(context.Background(), "second"); !errors.Is(err, agent.ErrRunInProgress) {
		t.Fatalf("second ProcessPrompt err = %v, want ErrRunInProgress", err)
	}
	if after := len(o.History()); after != before {
		t.Errorf("rejected prompt emitted %d events", after-before)
	}

	gate.open()
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	for _, e := range o.History() {
		if e.Kind == schema.KindUser && e.Content == "second" {
			t.Error("rejected prompt must not appear in the log")
		}
	}

	// 終了後は次のプロンプトを受け付ける
	if err := o.ProcessPrompt(context.Background(), "third"); err != nil {
		t.Errorf("third ProcessPrompt: %v", err)
	}
}

func TestStop_CancelsRun(t *testing.T) {
	o, root := newOrchestrator(t, stepsPlanner(
		schema.Step{Tool: schema.ToolAskUser, Question: "continue?"},
		schema.Step{Tool: schema.ToolWriteFile, Path: "never.txt", Content: "x"},
	))

	asked := make(chan schema.Question, 1)
	cancelSub := o.Questions().Subscribe(event.SubscriberFunc[schema.Question](func(q schema.Question) {
		asked <- q
	}), false)
	defer cancelSub()

	done := make(chan error, 1)
	go func() { done <- o.ProcessPrompt(context.Background(), "ask me") }()

	select {
	case <-asked:
	case <-time.After(5 * time.Second):
		t.Fatal("question was not published")
	}
	running, ok := o.CurrentRun()
	if !ok || running.State != agent.StateExecuting {
		t.Errorf("CurrentRun = %+v, %v", running, ok)
	}

	if !o.Stop() {
		t.Fatal("Stop should report a running run")
	}
	if o.IsRunning() {
		t.Error("Stop must clear the running flag immediately")
	}
	if err := <-done; err != nil {
		t.Fatalf("ProcessPrompt: %v", err)
	}

	events := o.History()
	last := events[len(events)-1]
	if last.Kind != schema.KindError || last.Content != "Error: run cancelled" {
		t.Errorf("last event = %+v", last)
	}
	if last.RunID != running.ID {
		t.Errorf("cancel event RunID = %q, want %q", last.RunID, running.ID)
	}
	if _, err := os.Stat(filepath.Join(root, "never.txt")); !os.IsNotExist(err) {
		t.Error("steps after Stop must not run")
	}

	run, _ := o.LastRun()
	if !errors.Is(run.Err, agent.ErrCancelled) || run.State != agent.StateFailed {
		t.Errorf("LastRun = %+v", run)
	}
	if o.Stop() {
		t.Error("Stop with nothing running should return false")
	}
}

func TestStop_KillsCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	o, _ := newOrchestrator(t, stepsPlanner(
		schema.Step{Tool: schema.ToolRunCommand, Command: "sleep 30"},
	))

	started := make(chan struct{}, 1)
	cancelSub := o.Terminal().Subscribe(event.SubscriberFunc[schema.TerminalRecord](func(r schema.TerminalRecord) {
		if r.Status == schema.TerminalRunning {
			started <- struct{}{}
		}
	}), false)
	defer cancelSub()

	done := make(chan error, 1)
	go func() { done <- o.ProcessPrompt(context.Background(), "wait") }()
	<-started
	o.Stop()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("stopped run did not settle")
	}
	recs := o.TerminalRecords()
	if len(recs) != 1 || recs[0].Status != schema.TerminalError {
		t.Errorf("records = %+v, want one error record", recs)
	}
}

func TestSetProjectRoot_MidRunAffectsNextRunOnly(t *testing.T) {
	gate := newGatePlanner(schema.Step{Tool: schema.ToolWriteFile, Path: "out.txt", Content: "x"})
	o, first := newOrchestrator(t, gate)
	defer gate.open()
	second := t.TempDir()

	done := make(chan error, 1)
	go func() { done <- o.ProcessPrompt(context.Background(), "write") }()
	<-gate.entered

	if err := o.SetProjectRoot(second); err != nil {
		t.Fatalf("SetProjectRoot: %v", err)
	}
	if run, _ := o.CurrentRun(); run.Root != first {
		t.Errorf("running Root = %q, want snapshot %q", run.Root, first)
	}
	gate.open()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(first, "out.txt")); err != nil {
		t.Errorf("in-flight run should write to the old root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(second, "out.txt")); !os.IsNotExist(err) {
		t.Error("in-flight run must not write to the new root")
	}

	gate.entered = make(chan struct{}, 1)
	if err := o.ProcessPrompt(context.Background(), "write again"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(second, "out.txt")); err != nil {
		t.Errorf("next run should use the new root: %v", err)
	}
}

func TestSetProjectRoot_Invalid(t *testing.T) {
	o, root := newOrchestrator(t, nil)
	if err := o.SetProjectRoot(filepath.Join(root, "nope")); err == nil {
		t.Error("missing directory should be rejected")
	}
	if o.ProjectRoot() != root {
		t.Error("failed SetProjectRoot must keep the previous root")
	}
}

func TestReadOnlyQueries_EmitNoEvents(t *testing.T) {
	o, root := newOrchestrator(t, nil)
	for _, rel := range []string{"a.txt", "b.txt", "node_modules/x.js"} {
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(rel), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tree, err := o.GetProjectFiles("")
	if err != nil {
		t.Fatalf("GetProjectFiles: %v", err)
	}
	var names []string
	for _, c := range tree.Children {
		names = append(names, c.Name)
	}
	if diff := cmp.Diff([]string{"a.txt", "b.txt"}, names); diff != "" {
		t.Errorf("tree children mismatch (-want +got):\n%s", diff)
	}

	if got, err := o.ReadFile("b.txt"); err != nil || got != "b.txt" {
		t.Errorf("ReadFile = (%q, %v)", got, err)
	}
	if n := len(o.History()); n != 0 {
		t.Errorf("read-only queries emitted %d events", n)
	}
}

func TestAnswerNext_ResumesRun(t *testing.T) {
	o, root := newOrchestrator(t, stepsPlanner(
		schema.Step{Tool: schema.ToolAskUser, Question: "name?"},
		schema.Step{Tool: schema.ToolWriteFile, Path: "done.txt", Content: "ok"},
	))
	cancelSub := o.Questions().Subscribe(event.SubscriberFunc[schema.Question](func(schema.Question) {
		if err := o.AnswerNext("codepilot"); err != nil {
			t.Errorf("AnswerNext: %v", err)
		}
	}), false)
	defer cancelSub()

	_ = o.ProcessPrompt(context.Background(), "ask")

	if _, err := os.Stat(filepath.Join(root, "done.txt")); err != nil {
		t.Errorf("run should continue after the answer: %v", err)
	}
	found := false
	for _, e := range o.History() {
		if e.Kind == schema.KindResult && strings.Contains(e.Content, "codepilot") {
			found = true
		}
	}
	if !found {
		t.Error("result event should carry the answer")
	}
}

func TestProcessPrompt_DefaultPlannerHTML(t *testing.T) {
	o, root := newOrchestrator(t, nil)
	_ = o.ProcessPrompt(context.Background(), "crie um html")

	events := o.History()
	if countKind(events, schema.KindError) != 0 {
		t.Fatalf("unexpected error: %+v", events[len(events)-1])
	}
	for _, name := range []string{"index.html", "style.css"} {
		if _, err := os.Stat(filepath.Join(root, name)); err != nil {
			t.Errorf("%s should be created: %v", name, err)
		}
	}
	if !strings.HasPrefix(events[2].Content, "Plano:\n1. Criar arquivo index.html") {
		t.Errorf("plan content = %q", events[2].Content)
	}
}

func TestProcessPrompt_NoRoot(t *testing.T) {
	o, err := agent.New(agent.Config{Planner: stepsPlanner(schema.Step{Tool: schema.ToolListFiles})})
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	_ = o.ProcessPrompt(context.Background(), "list")
	events := o.History()
	last := events[len(events)-1]
	if last.Kind != schema.KindError || !strings.Contains(last.Content, "project root is not set") {
		t.Errorf("last event = %+v", last)
	}
}

func TestProcessPrompt_ExecDelay(t *testing.T) {
	o, err := agent.New(agent.Config{Root: t.TempDir(), Planner: stepsPlanner(), ExecDelay: 80 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	start := time.Now()
	_ = o.ProcessPrompt(context.Background(), "wait")
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("run finished after %v, want at least the exec delay", elapsed)
	}
}

func TestEvents_SubscriberSeesSameOrder(t *testing.T) {
	o, _ := newOrchestrator(t, stepsPlanner(
		schema.Step{Tool: schema.ToolCreateDirectory, Path: "d"},
		schema.Step{Tool: schema.ToolListFiles, Path: "d"},
	))

	var mu sync.Mutex
	var seen []uint64
	cancel := o.Events().Subscribe(event.SubscriberFunc[schema.Event](func(e schema.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Seq)
	}), true)
	defer cancel()

	_ = o.ProcessPrompt(context.Background(), "dir")
	o.Close() // 未配信分を配信し切る

	mu.Lock()
	defer mu.Unlock()
	history := o.History()
	if len(seen) != len(history) {
		t.Fatalf("subscriber saw %d events, history has %d", len(seen), len(history))
	}
	for i := range seen {
		if seen[i] != history[i].Seq {
			t.Fatalf("order differs at %d: %d vs %d", i, seen[i], history[i].Seq)
		}
	}
}

func TestState_Icon(t *testing.T) {
	for _, s := range []agent.State{agent.StateIdle, agent.StatePlanning, agent.StateExecuting, agent.StateDone, agent.StateFailed} {
		if s.Icon() == "?" {
			t.Errorf("%s has no icon", s)
		}
	}
	if !agent.StateDone.Settled() || agent.StateExecuting.Settled() {
		t.Error("Settled() mismatch")
	}
}
