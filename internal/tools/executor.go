package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/0x6d61/codepilot/internal/event"
	"github.com/0x6d61/codepilot/pkg/schema"
)

// streamInterval は実行中コマンドの出力スナップショットを公開する最短間隔。
const streamInterval = 250 * time.Millisecond

// ExecutorConfig は Executor の構築パラメータ。Root 以外は Run をまたいで共有される。
type ExecutorConfig struct {
	Root     string
	Bus      *event.Bus
	Runner   *CommandRunner
	Tracker  *TerminalTracker
	Asker    *Asker
	Truncate *TruncateConfig // nil なら DefaultTruncateConfig
	Logger   *zap.Logger
}

// Executor は1つの Run のツール呼び出しを実行する。
//
// 各呼び出しは副作用の前に action イベントを1つ、解決後に result イベントを
// ちょうど1つ出し、その後でエラーを呼び出し元へ返す。
type Executor struct {
	root     string
	bus      *event.Bus
	runner   *CommandRunner
	tracker  *TerminalTracker
	asker    *Asker
	truncate TruncateConfig
	logger   *zap.Logger
}

// NewExecutor は Executor を返す。Runner/Tracker/Asker が nil なら既定値で作る。
func NewExecutor(cfg ExecutorConfig) *Executor {
	e := &Executor{
		root:     cfg.Root,
		bus:      cfg.Bus,
		runner:   cfg.Runner,
		tracker:  cfg.Tracker,
		asker:    cfg.Asker,
		truncate: DefaultTruncateConfig,
		logger:   cfg.Logger,
	}
	if cfg.Truncate != nil {
		e.truncate = *cfg.Truncate
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.bus == nil {
		e.bus = event.NewBus()
	}
	if e.runner == nil {
		e.runner = NewCommandRunner(RunnerConfig{Logger: e.logger})
	}
	if e.tracker == nil {
		e.tracker = NewTerminalTracker(0, e.bus.PublishTerminal)
	}
	if e.asker == nil {
		e.asker = NewAsker(0, e.bus.PublishQuestion)
	}
	return e
}

// Execute は計画の1ステップを対応するツールに振り分ける。
func (e *Executor) Execute(ctx context.Context, step schema.Step) error {
	if err := step.Validate(); err != nil {
		return err
	}
	switch step.Tool {
	case schema.ToolReadFile:
		_, err := e.ReadFile(ctx, step.Path)
		return err
	case schema.ToolWriteFile:
		return e.WriteFile(ctx, step.Path, step.Content)
	case schema.ToolCreateDirectory:
		return e.CreateDirectory(ctx, step.Path)
	case schema.ToolListFiles:
		_, err := e.ListFiles(ctx, step.Path)
		return err
	case schema.ToolDeletePath:
		return e.DeletePath(ctx, step.Path)
	case schema.ToolRunCommand:
		_, err := e.RunCommand(ctx, step.Command)
		return err
	case schema.ToolAskUser:
		_, err := e.AskUser(ctx, step.Question)
		return err
	default:
		return fmt.Errorf("tools: unknown tool %q", step.Tool)
	}
}

// ReadFile はファイルを読み、内容を返す。
func (e *Executor) ReadFile(ctx context.Context, rel string) (string, error) {
	e.action(ctx, schema.ToolReadFile, rel)
	content, err := ReadFile(e.root, rel)
	if err != nil {
		return "", e.fail(ctx, schema.ToolReadFile, err)
	}
	e.result(ctx, fmt.Sprintf("read %d bytes from '%s'", len(content), rel))
	return content, nil
}

// WriteFile はファイルを書き込み、create/modify の変更通知を出す。
func (e *Executor) WriteFile(ctx context.Context, rel, content string) error {
	e.actionArgs(ctx, schema.ToolWriteFile, quote(rel)+", ...")
	existed, err := WriteFile(e.root, rel, content)
	if err != nil {
		return e.fail(ctx, schema.ToolWriteFile, err)
	}
	kind := schema.ChangeCreate
	if existed {
		kind = schema.ChangeModify
	}
	e.bus.NotifyChange(kind, rel)
	e.result(ctx, fmt.Sprintf("'%s' written (%d bytes)", rel, len(content)))
	return nil
}

// CreateDirectory はディレクトリを再帰作成し、create の変更通知を出す。
func (e *Executor) CreateDirectory(ctx context.Context, rel string) error {
	e.action(ctx, schema.ToolCreateDirectory, rel)
	if err := CreateDirectory(e.root, rel); err != nil {
		return e.fail(ctx, schema.ToolCreateDirectory, err)
	}
	e.bus.NotifyChange(schema.ChangeCreate, rel)
	e.result(ctx, fmt.Sprintf("directory '%s' created", rel))
	return nil
}

// ListFiles はディレクトリ直下のエントリ名を返す。
func (e *Executor) ListFiles(ctx context.Context, rel string) ([]string, error) {
	if rel == "" {
		rel = "."
	}
	e.action(ctx, schema.ToolListFiles, rel)
	names, err := ListFiles(e.root, rel)
	if err != nil {
		return nil, e.fail(ctx, schema.ToolListFiles, err)
	}
	e.result(ctx, fmt.Sprintf("%d entries found", len(names)))
	return names, nil
}

// DeletePath はファイルまたはディレクトリを削除し、delete の変更通知を出す。
func (e *Executor) DeletePath(ctx context.Context, rel string) error {
	e.action(ctx, schema.ToolDeletePath, rel)
	if err := DeletePath(e.root, rel); err != nil {
		return e.fail(ctx, schema.ToolDeletePath, err)
	}
	e.bus.NotifyChange(schema.ChangeDelete, rel)
	e.result(ctx, fmt.Sprintf("'%s' deleted", rel))
	return nil
}

// RunCommand はプロジェクトルートでコマンドを実行する。
// ターミナルレコードは running を公開してから起動し、終了後に success/error へ遷移させる。
func (e *Executor) RunCommand(ctx context.Context, command string) (*CommandResult, error) {
	e.action(ctx, schema.ToolRunCommand, command)
	rec := e.tracker.Begin(command)

	res, err := e.runner.Stream(ctx, e.root, command, e.liveOutput(rec))

	out := Outcome{Status: schema.TerminalSuccess}
	if res != nil {
		out.Stdout = res.Stdout
		out.Stderr = res.Stderr
		out.ExitCode = res.ExitCode
	}
	if err != nil {
		out.Status = schema.TerminalError
		out.Error = err.Error()
	}
	e.tracker.Complete(rec.ID, command, out)

	body := ""
	if res != nil {
		body = Truncate(res.Lines(), e.truncate)
	}
	if err != nil {
		msg := "error: " + err.Error()
		if body != "" {
			msg += "\n" + body
		}
		e.result(ctx, msg)
		return res, err
	}
	msg := "command completed"
	if body != "" {
		msg += "\n" + body
	}
	e.result(ctx, msg)
	return res, nil
}

// liveOutput は実行中の出力を running スナップショットとしてトラッカーへ流す
// onLine を返す。公開は streamInterval ごとに間引く（短いコマンドは確定時だけ）。
func (e *Executor) liveOutput(rec schema.TerminalRecord) func(OutputLine) {
	var stdout, stderr strings.Builder
	last := rec.StartedAt
	return func(l OutputLine) {
		if l.IsError {
			stderr.WriteString(l.Content + "\n")
		} else {
			stdout.WriteString(l.Content + "\n")
		}
		if l.Time.Sub(last) < streamInterval {
			return
		}
		last = l.Time
		snap := rec
		snap.Stdout = stdout.String()
		snap.Stderr = stderr.String()
		e.tracker.Apply(snap)
	}
}

// AskUser は質問を公開して回答を待つ。上限時間内に回答が無ければ空文字列を返す。
func (e *Executor) AskUser(ctx context.Context, question string) (string, error) {
	e.action(ctx, schema.ToolAskUser, question)
	answer, timedOut, err := e.asker.Ask(ctx, question)
	switch {
	case err != nil:
		e.result(ctx, "error: "+err.Error())
		return "", fmt.Errorf("%s: %w", schema.ToolAskUser, err)
	case timedOut:
		e.logger.Info("question timed out", zap.String("question", question), zap.Duration("after", e.asker.Timeout()))
		e.result(ctx, "no answer received")
		return "", nil
	}
	e.result(ctx, fmt.Sprintf("user answered: %q", answer))
	return answer, nil
}

func (e *Executor) action(ctx context.Context, tool schema.ToolName, arg string) {
	e.actionArgs(ctx, tool, quote(arg))
}

func (e *Executor) actionArgs(ctx context.Context, tool schema.ToolName, args string) {
	e.logger.Debug("tool call", zap.String("tool", string(tool)), zap.String("args", args))
	e.bus.Emit(ctx, schema.KindAction, fmt.Sprintf("[ACTION: %s(%s)]", tool, args))
}

func (e *Executor) result(ctx context.Context, body string) {
	e.bus.Emit(ctx, schema.KindResult, "[RESULT: "+body+"]")
}

// fail は失敗の result を出してから err をそのまま返す。
func (e *Executor) fail(ctx context.Context, tool schema.ToolName, err error) error {
	var te *ToolError
	if errors.As(err, &te) {
		e.logger.Warn("tool failed", zap.String("tool", string(tool)), zap.String("path", te.Path), zap.Error(err))
	} else {
		e.logger.Warn("tool failed", zap.String("tool", string(tool)), zap.Error(err))
	}
	e.result(ctx, "error: "+err.Error())
	return err
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
