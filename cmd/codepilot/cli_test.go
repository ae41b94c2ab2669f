package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/0x6d61/codepilot/internal/config"
	"github.com/0x6d61/codepilot/pkg/schema"
)

// setup はグローバルの設定とロガーをテスト用に差し替える。
func setup(t *testing.T, project string) {
	t.Helper()
	logger = zap.NewNop()
	cfg = config.Default()
	cfg.ExecDelay.Duration = 0
	cfg.Project = project
	t.Cleanup(func() {
		cfg = nil
		logger = nil
		planSteps = false
		planList = false
		treeJSON = false
	})
}

func newTestCmd() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetIn(strings.NewReader(""))
	return cmd, &buf
}

func TestRunPrompt_HTML(t *testing.T) {
	root := t.TempDir()
	setup(t, root)
	cmd, out := newTestCmd()

	if err := runPrompt(cmd, []string{"crie", "um", "html"}); err != nil {
		t.Fatalf("runPrompt: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"[USER] crie um html",
		"[AI] Analyzing request...",
		"[PLAN] Plano:",
		"[TOOL] [ACTION: write_file('index.html', ...)]",
		"[AI] Plan complete. Waiting for next instructions.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output should contain %q\n%s", want, got)
		}
	}
	for _, name := range []string{"index.html", "style.css"} {
		if _, err := os.Stat(filepath.Join(root, name)); err != nil {
			t.Errorf("%s should exist: %v", name, err)
		}
	}
}

func TestRunPrompt_FailedRun(t *testing.T) {
	root := t.TempDir()
	setup(t, root)
	tmpl := "---\nname: broken\nkeywords: [broken]\nsteps:\n  - tool: read_file\n    path: missing.txt\n---\nReading a file that does not exist\n"
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.md"), []byte(tmpl), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.TemplatesDir = dir
	cmd, out := newTestCmd()

	err := runPrompt(cmd, []string{"broken"})
	if err != errRunFailed {
		t.Fatalf("runPrompt error = %v, want errRunFailed", err)
	}
	if !strings.Contains(out.String(), "[ERR] Error: ") {
		t.Errorf("expected error event in output:\n%s", out.String())
	}
}

func TestRunPrompt_AnswersEveryQuestion(t *testing.T) {
	const n = 20
	root := t.TempDir()
	setup(t, root)

	var tmpl, input strings.Builder
	tmpl.WriteString("---\nname: survey\nkeywords: [survey]\nsteps:\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&tmpl, "  - tool: ask_user\n    question: q%d\n", i)
		fmt.Fprintf(&input, "a%d\n", i)
	}
	tmpl.WriteString("---\nAsk many questions\n")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "survey.md"), []byte(tmpl.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.TemplatesDir = dir
	cfg.AskTimeout.Duration = 10 * time.Second
	cmd, out := newTestCmd()
	cmd.SetIn(strings.NewReader(input.String()))

	if err := runPrompt(cmd, []string{"survey"}); err != nil {
		t.Fatalf("runPrompt: %v\n%s", err, out.String())
	}
	text := out.String()
	for i := 1; i <= n; i++ {
		if want := fmt.Sprintf(`user answered: "a%d"`, i); !strings.Contains(text, want) {
			t.Errorf("missing %s in output", want)
		}
	}
}

func TestForwardQuestion_WaitsForReader(t *testing.T) {
	var buf bytes.Buffer
	questions := make(chan schema.Question)
	done := make(chan struct{})
	forward := forwardQuestion(&buf, questions, done)

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for i := 0; i < 20; i++ {
			forward(schema.Question{ID: fmt.Sprint(i), Text: fmt.Sprintf("q%d", i)})
		}
	}()

	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 20; i++ {
		q := <-questions
		if q.ID != fmt.Sprint(i) {
			t.Fatalf("question %d has id %s, want in order", i, q.ID)
		}
	}
	<-sent
	if got := strings.Count(buf.String(), "? q"); got != 20 {
		t.Errorf("printed %d questions, want 20", got)
	}
}

func TestForwardQuestion_ReturnsWhenDone(t *testing.T) {
	done := make(chan struct{})
	close(done)
	forward := forwardQuestion(io.Discard, make(chan schema.Question), done)

	returned := make(chan struct{})
	go func() {
		forward(schema.Question{ID: "late", Text: "late"})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("forward blocked after the run finished")
	}
}

func TestRunPrompt_NoProject(t *testing.T) {
	setup(t, "")
	cmd, _ := newTestCmd()
	if err := runPrompt(cmd, []string{"crie um html"}); err == nil {
		t.Error("expected error without a project")
	}
}

func TestRunPlan(t *testing.T) {
	setup(t, "")
	cmd, out := newTestCmd()

	if err := runPlan(cmd, []string{"crie", "algo", "em", "react"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "React") {
		t.Errorf("react plan text expected, got %q", out.String())
	}
}

func TestRunPlan_Steps(t *testing.T) {
	setup(t, "")
	planSteps = true
	cmd, out := newTestCmd()

	if err := runPlan(cmd, []string{"crie um html"}); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	if !strings.HasPrefix(text, "# template: html\n") {
		t.Errorf("missing template header: %q", text)
	}
	var steps []schema.Step
	if err := yaml.Unmarshal([]byte(text), &steps); err != nil {
		t.Fatalf("steps are not YAML: %v", err)
	}
	if len(steps) == 0 || steps[0].Tool != schema.ToolWriteFile || steps[0].Path != "index.html" {
		t.Errorf("steps = %+v", steps)
	}
}

func TestRunPlan_List(t *testing.T) {
	dir := t.TempDir()
	tmpl := "---\nname: vue\ndescription: Vue scaffold\nkeywords: [vue]\npriority: 30\n---\n\nPlano Vue\n"
	if err := os.WriteFile(filepath.Join(dir, "vue.md"), []byte(tmpl), 0o644); err != nil {
		t.Fatal(err)
	}
	setup(t, "")
	cfg.TemplatesDir = dir
	planList = true
	cmd, out := newTestCmd()

	if err := runPlan(cmd, nil); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 5 || !strings.HasPrefix(lines[0], "NAME") {
		t.Fatalf("unexpected listing:\n%s", out.String())
	}
	// priority の高い vue が先頭、fallback は最後
	if !strings.HasPrefix(lines[1], "vue ") || !strings.Contains(lines[1], "Vue scaffold") {
		t.Errorf("first template line = %q", lines[1])
	}
	if !strings.HasPrefix(lines[4], "generic ") || !strings.Contains(lines[4], "(fallback)") {
		t.Errorf("last template line = %q", lines[4])
	}
}

func TestPlanCmd_RequiresPromptOrList(t *testing.T) {
	t.Cleanup(func() { planList = false })
	if err := planCmd.Args(planCmd, nil); err == nil {
		t.Error("plan without a prompt should be rejected")
	}
	planList = true
	if err := planCmd.Args(planCmd, nil); err != nil {
		t.Errorf("plan --list without a prompt: %v", err)
	}
}

func TestRunTree(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"a.txt", "src/App.js", "node_modules/x.js", ".git/HEAD"} {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	setup(t, root)
	cmd, out := newTestCmd()

	if err := runTree(cmd, nil); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	want := []string{root, "├── a.txt", "└── src/", "    └── App.js", "", "1 directories, 2 files"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestRunTree_JSON(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	setup(t, "")
	treeJSON = true
	cmd, out := newTestCmd()

	if err := runTree(cmd, []string{root}); err != nil {
		t.Fatal(err)
	}
	var node schema.FileTreeNode
	if err := json.Unmarshal(out.Bytes(), &node); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if node.Kind != schema.NodeDirectory || len(node.Children) != 1 || node.Children[0].Size != 5 {
		t.Errorf("node = %+v", node)
	}
}

func TestSchemaCmd(t *testing.T) {
	cmd, out := newTestCmd()
	if err := schemaCmd.RunE(cmd, nil); err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if !strings.Contains(out.String(), "write_file") {
		t.Error("schema should list the tool names")
	}
}
