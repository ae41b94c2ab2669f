// Package agent は1つのプロンプトを計画とツール呼び出しの列に変換して実行する
// Orchestrator を提供する。
//
// 流れ:
//
//	ProcessPrompt(prompt)
//	  → user イベント
//	  → thought "Analyzing request..." → Planner.Generate → plan イベント
//	  → thought "Executing plan..." → Plan.Steps を1つずつ Executor へ
//	  → thought "Plan complete. ..."（失敗時は error イベント1つ）
//
// 同時に走る Run は1つだけで、実行中のプロンプトは ErrRunInProgress で拒否する。
package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0x6d61/codepilot/internal/event"
	"github.com/0x6d61/codepilot/internal/planner"
	"github.com/0x6d61/codepilot/internal/tools"
	"github.com/0x6d61/codepilot/pkg/schema"
)

// DefaultExecDelay は計画の実行後、完了を知らせるまでの既定の待ち時間。
const DefaultExecDelay = 500 * time.Millisecond

// Orchestrator が出す定型メッセージ。
const (
	msgAnalyzing = "Analyzing request..."
	msgExecuting = "Executing plan..."
	msgComplete  = "Plan complete. Waiting for next instructions."
)

// Config は Orchestrator の構築パラメータ。
type Config struct {
	// Root は初期プロジェクトルート（空なら未設定）。
	Root    string
	Planner planner.Planner // nil なら planner.Default()
	Bus     *event.Bus      // nil なら新規作成
	Logger  *zap.Logger

	// ExecDelay は全ステップ実行後の待ち時間。0 なら待たない。
	ExecDelay       time.Duration
	Runner          tools.RunnerConfig
	AskTimeout      time.Duration
	TerminalHistory int
	Tree            tools.TreeOptions
	Truncate        *tools.TruncateConfig
}

// Orchestrator は Run のライフサイクルを管理する。Run の状態を書き換えるのはここだけ。
type Orchestrator struct {
	mu      sync.Mutex
	root    string
	running bool
	current *Run
	last    *Run
	cancel  context.CancelFunc
	runs    sync.WaitGroup

	bus       *event.Bus
	planner   planner.Planner
	runner    *tools.CommandRunner
	tracker   *tools.TerminalTracker
	asker     *tools.Asker
	tree      tools.TreeOptions
	truncate  *tools.TruncateConfig
	execDelay time.Duration
	logger    *zap.Logger
}

// New は Orchestrator を返す。cfg.Root が指定されていれば検証する。
func New(cfg Config) (*Orchestrator, error) {
	o := &Orchestrator{
		bus:       cfg.Bus,
		planner:   cfg.Planner,
		tree:      cfg.Tree,
		truncate:  cfg.Truncate,
		execDelay: cfg.ExecDelay,
		logger:    cfg.Logger,
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.bus == nil {
		o.bus = event.NewBus()
	}
	if o.planner == nil {
		o.planner = planner.Default()
	}
	if o.execDelay < 0 {
		o.execDelay = 0
	}

	runnerCfg := cfg.Runner
	if runnerCfg.Logger == nil {
		runnerCfg.Logger = o.logger.Named("runner")
	}
	o.runner = tools.NewCommandRunner(runnerCfg)
	if runnerCfg.Blacklist != nil {
		o.logger.Debug("command blacklist loaded", zap.Int("patterns", runnerCfg.Blacklist.Len()))
	}
	o.tracker = tools.NewTerminalTracker(cfg.TerminalHistory, o.bus.PublishTerminal)
	o.asker = tools.NewAsker(cfg.AskTimeout, o.bus.PublishQuestion)

	if cfg.Root != "" {
		if err := o.SetProjectRoot(cfg.Root); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// ProcessPrompt は prompt を1つの Run として実行し、Run が終わるまでブロックする。
//
// Run 内の失敗はすべて error イベントになり、戻り値には現れない。
// 返すエラーは ErrRunInProgress（イベントを出さずに拒否した）だけ。
func (o *Orchestrator) ProcessPrompt(ctx context.Context, prompt string) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrRunInProgress
	}
	run := &Run{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Root:      o.root,
		State:     StateIdle,
		StartedAt: time.Now(),
	}
	runCtx, cancel := context.WithCancel(ctx)
	runCtx = event.WithRunID(runCtx, run.ID)
	o.running = true
	o.current = run
	o.cancel = cancel
	o.runs.Add(1)
	o.mu.Unlock()

	defer o.finish(run, cancel)

	o.logger.Info("run started", zap.String("run_id", run.ID), zap.String("prompt", prompt), zap.String("root", run.Root))
	o.execute(runCtx, run)
	return nil
}

// execute は Run 本体。どんな失敗も error イベント1つにまとめる。
func (o *Orchestrator) execute(ctx context.Context, run *Run) {
	o.bus.Emit(ctx, schema.KindUser, run.Prompt)

	err := o.safely(func() error {
		plan, err := o.plan(ctx, run)
		if err != nil {
			return err
		}
		return o.executePlan(ctx, run, plan)
	})
	if err == nil {
		return
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		err = ErrCancelled
	}
	o.mu.Lock()
	run.Err = err
	o.mu.Unlock()

	o.logger.Warn("run failed", zap.String("run_id", run.ID), zap.Error(err))
	o.bus.Emit(ctx, schema.KindError, "Error: "+err.Error())
}

// safely は fn の panic をエラーに変える。1つのツールの失敗でプロセスを落とさない。
func (o *Orchestrator) safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("run panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return fn()
}

// plan は計画フェーズ。Planner の失敗は PlanningError にする。
func (o *Orchestrator) plan(ctx context.Context, run *Run) (*schema.Plan, error) {
	o.setState(run, StatePlanning)
	o.bus.Emit(ctx, schema.KindThought, msgAnalyzing)

	plan, err := o.generate(run.Prompt)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	run.Plan = plan
	o.mu.Unlock()
	o.logger.Debug("plan generated", zap.String("run_id", run.ID), zap.String("plan", plan.Name), zap.Int("steps", len(plan.Steps)))
	o.bus.Emit(ctx, schema.KindPlan, plan.Text)
	return plan, nil
}

func (o *Orchestrator) generate(prompt string) (plan *schema.Plan, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PlanningError{Err: fmt.Errorf("planner panicked: %v", r)}
		}
	}()
	plan, err = o.planner.Generate(prompt)
	if err != nil {
		return nil, &PlanningError{Err: err}
	}
	if plan == nil {
		return nil, &PlanningError{Err: errors.New("planner returned no plan")}
	}
	return plan, nil
}

// executePlan は実行フェーズ。ステップは1つずつ順番に実行し、最初の失敗で止める。
func (o *Orchestrator) executePlan(ctx context.Context, run *Run, plan *schema.Plan) error {
	o.setState(run, StateExecuting)
	o.bus.Emit(ctx, schema.KindThought, msgExecuting)

	exec := tools.NewExecutor(tools.ExecutorConfig{
		Root:     run.Root,
		Bus:      o.bus,
		Runner:   o.runner,
		Tracker:  o.tracker,
		Asker:    o.asker,
		Truncate: o.truncate,
		Logger:   o.logger.Named("executor"),
	})

	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := exec.Execute(ctx, step); err != nil {
			o.logger.Debug("step failed", zap.String("run_id", run.ID), zap.Int("step", i+1), zap.String("tool", string(step.Tool)))
			return err
		}
	}

	if o.execDelay > 0 {
		timer := time.NewTimer(o.execDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	o.bus.Emit(ctx, schema.KindThought, msgComplete)
	return nil
}

func (o *Orchestrator) setState(run *Run, s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run.State = s
}

// finish は Run を確定させる。running フラグは、この Run がまだ current のときだけ下ろす
// （Stop 後に始まった次の Run のフラグを消さない）。
func (o *Orchestrator) finish(run *Run, cancel context.CancelFunc) {
	cancel()

	o.mu.Lock()
	run.FinishedAt = time.Now()
	if run.Err != nil {
		run.State = StateFailed
	} else {
		run.State = StateDone
	}
	snap := *run
	o.last = &snap
	if o.current == run {
		o.running = false
		o.current = nil
		o.cancel = nil
	}
	o.mu.Unlock()
	o.runs.Done()

	o.logger.Info("run finished", zap.String("run_id", run.ID), zap.String("state", string(snap.State)),
		zap.Duration("elapsed", snap.Duration()))
}

// Stop は実行中の Run に協調的なキャンセルを要求し、running フラグをすぐに下ろす。
//
// run_command のサブプロセスは ctx 経由で kill されるが、実行中のファイル操作は
// 中断されない。止められた Run も自分の RunID で "Error: run cancelled" を出す。
// 実行中の Run が無ければ false を返す。
func (o *Orchestrator) Stop() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return false
	}
	o.logger.Info("run stop requested", zap.String("run_id", o.current.ID))
	o.cancel()
	o.running = false
	o.current = nil
	o.cancel = nil
	return true
}

// IsRunning は Run が実行中かを返す。
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// CurrentRun は実行中の Run のスナップショットを返す。
func (o *Orchestrator) CurrentRun() (Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return Run{}, false
	}
	return *o.current, true
}

// LastRun は最後に終わった Run のスナップショットを返す。
func (o *Orchestrator) LastRun() (Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Run{}, false
	}
	return *o.last, true
}

// SetProjectRoot はプロジェクトルートを変更する。実行中の Run には影響せず、次の Run から使われる。
func (o *Orchestrator) SetProjectRoot(path string) error {
	root, err := tools.ValidateRoot(path)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.root = root
	o.mu.Unlock()
	o.logger.Info("project root set", zap.String("root", root))
	return nil
}

// ProjectRoot は現在のプロジェクトルートを返す。
func (o *Orchestrator) ProjectRoot() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.root
}

// GetProjectFiles はファイルツリーのスナップショットを作る。イベントは出さない。
// path が空ならプロジェクトルート、相対パスならルートからの相対として解決する。
func (o *Orchestrator) GetProjectFiles(path string) (*schema.FileTreeNode, error) {
	root := o.ProjectRoot()
	switch {
	case path == "":
		if root == "" {
			return nil, tools.ErrNoRoot
		}
		path = root
	case !filepath.IsAbs(path):
		full, err := tools.Resolve(root, path)
		if err != nil {
			return nil, err
		}
		path = full
	}
	return tools.BuildFileTree(path, o.tree)
}

// ReadFile はルート相対パスのファイルを読む。イベントは出さない。
func (o *Orchestrator) ReadFile(path string) (string, error) {
	return tools.ReadFile(o.ProjectRoot(), path)
}

// Answer は id の質問に回答する。
func (o *Orchestrator) Answer(id, text string) error { return o.asker.Answer(id, text) }

// AnswerNext は最も古い未回答の質問に回答する。
func (o *Orchestrator) AnswerNext(text string) error { return o.asker.AnswerNext(text) }

// PendingQuestions は未回答の質問を古い順で返す。
func (o *Orchestrator) PendingQuestions() []schema.Question { return o.asker.Pending() }

// Bus は外向きストリームの束を返す。
func (o *Orchestrator) Bus() *event.Bus { return o.bus }

// Events は AgentEvent のストリームを返す。
func (o *Orchestrator) Events() *event.Stream[schema.Event] { return o.bus.Events }

// Changes はファイル変更通知のストリームを返す。
func (o *Orchestrator) Changes() *event.Stream[schema.FileChange] { return o.bus.Changes }

// Terminal はターミナルレコードのストリームを返す。
func (o *Orchestrator) Terminal() *event.Stream[schema.TerminalRecord] { return o.bus.Terminal }

// Questions は質問のストリームを返す。
func (o *Orchestrator) Questions() *event.Stream[schema.Question] { return o.bus.Questions }

// TerminalRecords はターミナルレコードのコピーを古い順で返す。
func (o *Orchestrator) TerminalRecords() []schema.TerminalRecord { return o.tracker.Records() }

// History はこれまでに出たイベントを順番どおりに返す。
func (o *Orchestrator) History() []schema.Event { return o.bus.Events.History() }

// Close は実行中の Run を止め、全 Run の終了を待ってからストリームを閉じる。
func (o *Orchestrator) Close() {
	o.Stop()
	o.runs.Wait()
	o.bus.Close()
}
