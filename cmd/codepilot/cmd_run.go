package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0x6d61/codepilot/internal/agent"
	"github.com/0x6d61/codepilot/internal/event"
	"github.com/0x6d61/codepilot/internal/tools"
	"github.com/0x6d61/codepilot/pkg/schema"
)

// runCmd executes a single prompt without the TUI
var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Plan and execute a single prompt, printing every event",
	Long: `Runs one prompt end to end in the project directory and prints the event
stream (user, thought, plan, action, result, error) to stdout.
Questions from ask_user steps are read from stdin.
Exits with status 1 when the run fails.`,
	Example: `  codepilot run -p ./site "crie um html"
  codepilot run "crie algo em react"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPrompt,
}

func runPrompt(cmd *cobra.Command, args []string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o, err := newOrchestrator(cfg, logger)
	if err != nil {
		return err
	}
	if o.ProjectRoot() == "" {
		o.Close()
		return tools.ErrNoRoot
	}

	// イベントと質問は別々の購読 goroutine から書き込まれる
	out := &syncWriter{w: cmd.OutOrStdout()}
	o.Events().Subscribe(event.SubscriberFunc[schema.Event](func(e schema.Event) {
		fmt.Fprintln(out, formatEvent(e))
	}), true)

	// 購読者ごとのキューは無制限なので、ここで待っても Run は止まらない
	questions := make(chan schema.Question)
	runDone := make(chan struct{})
	o.Questions().Subscribe(event.SubscriberFunc[schema.Question](forwardQuestion(out, questions, runDone)), false)
	go answerQuestions(ctx, cmd.InOrStdin(), questions, o)

	prompt := strings.Join(args, " ")
	logger.Info("processing prompt", zap.String("prompt", prompt), zap.String("root", o.ProjectRoot()))
	perr := o.ProcessPrompt(ctx, prompt)
	close(runDone)
	// Close で購読者のキューを出し切ってから結果を見る
	o.Close()
	logger.Info("run finished", zap.Int("events", o.Events().Len()))
	if perr != nil {
		return perr
	}

	if run, ok := o.LastRun(); ok && run.State == agent.StateFailed {
		return errRunFailed
	}
	return nil
}

// formatEvent は1イベントを1行（内容が複数行ならそのまま）に整形する。
func formatEvent(e schema.Event) string {
	return fmt.Sprintf("[%s] %s", strings.TrimSpace(e.Kind.Label()), e.Content)
}

// forwardQuestion は質問を表示して回答ループへ渡す購読関数を返す。
// 質問は捨てずに受け取られるまで待ち、done が閉じたら渡さずに戻る。
func forwardQuestion(out io.Writer, questions chan<- schema.Question, done <-chan struct{}) func(schema.Question) {
	return func(q schema.Question) {
		fmt.Fprintf(out, "? %s\n", q.Text)
		select {
		case questions <- q:
		case <-done:
		}
	}
}

// answerQuestions は質問が届くたびに in から1行読み、回答として渡す。
// 入力が閉じられたら以降の質問は受け取るだけにしてタイムアウトに任せる。
func answerQuestions(ctx context.Context, in io.Reader, questions <-chan schema.Question, o *agent.Orchestrator) {
	r := bufio.NewReader(in)
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-questions:
			line, err := r.ReadString('\n')
			if err != nil && line == "" {
				drainQuestions(ctx, questions)
				return
			}
			if err := o.Answer(q.ID, strings.TrimRight(line, "\r\n")); err != nil && !errors.Is(err, tools.ErrUnknownQuestion) {
				logger.Warn("answer failed", zap.Error(err))
			}
		}
	}
}

func drainQuestions(ctx context.Context, questions <-chan schema.Question) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-questions:
		}
	}
}

// syncWriter は複数 goroutine からの書き込みを直列化する。
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
