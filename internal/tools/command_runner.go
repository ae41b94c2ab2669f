package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/0x6d61/codepilot/pkg/schema"
)

// DefaultCommandTimeout は run_command の既定の上限時間。
const DefaultCommandTimeout = 5 * time.Minute

// maxLineBytes は1行として読み込む最大バイト数。
const maxLineBytes = 1 << 20

// DefaultShell は OS ごとの既定シェルを返す。コマンド文字列は末尾に渡される。
func DefaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}
	return []string{"/bin/sh", "-c"}
}

// RunnerConfig は CommandRunner の設定。
type RunnerConfig struct {
	Shell     []string      // 空なら DefaultShell()
	Timeout   time.Duration // 0 以下なら DefaultCommandTimeout
	Blacklist *Blacklist    // nil ならチェックしない
	Logger    *zap.Logger
}

// CommandRunner はコマンド文字列をシェル経由で実行する。
type CommandRunner struct {
	shell     []string
	timeout   time.Duration
	blacklist *Blacklist
	logger    *zap.Logger
}

// NewCommandRunner は CommandRunner を構築する。
func NewCommandRunner(cfg RunnerConfig) *CommandRunner {
	r := &CommandRunner{
		shell:     cfg.Shell,
		timeout:   cfg.Timeout,
		blacklist: cfg.Blacklist,
		logger:    cfg.Logger,
	}
	if len(r.shell) == 0 {
		r.shell = DefaultShell()
	}
	if r.timeout <= 0 {
		r.timeout = DefaultCommandTimeout
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Timeout は適用される上限時間を返す。
func (r *CommandRunner) Timeout() time.Duration { return r.timeout }

// Stream は command を dir をカレントディレクトリとして実行し、出力を1行
// 読むたびに onLine を呼ぶ（nil 可）。onLine の呼び出しは直列化され、Stream が
// 戻る前にすべて終わる。stdout と stderr は別々にコピーされるので、両者の間の
// 順序は保証しない。
//
// タイムアウトやキャンセル時はプロセスグループごと kill するので、
// シェルが起動した孫プロセスも残らない。
//
// 戻り値:
//   - 正常終了: (result, nil)
//   - 非ゼロ終了: (result, ErrExitStatus の ToolError)。出力は result に残る
//   - 上限時間超過: (result, *TimeoutError)
//   - ctx キャンセル: (result, ctx.Err() をラップしたエラー)
//   - 起動失敗・ブラックリスト: (nil, ToolError)
func (r *CommandRunner) Stream(ctx context.Context, dir, command string, onLine func(OutputLine)) (*CommandResult, error) {
	const tool = string(schema.ToolRunCommand)

	if strings.TrimSpace(command) == "" {
		return nil, toolErr(tool, "", ErrSpawn, errors.New("empty command"))
	}
	if r.blacklist != nil {
		if pat, ok := r.blacklist.Match(command); ok {
			return nil, toolErr(tool, command, ErrBlocked, fmt.Errorf("matched %q", pat))
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := append(append([]string{}, r.shell[1:]...), command)
	cmd := exec.CommandContext(runCtx, r.shell[0], args...) // nosemgrep: go.lang.security.audit.dangerous-exec-command.dangerous-exec-command -- ユーザーが計画に含めたコマンドをシェルで実行するのが目的
	cmd.Dir = dir
	cmd.WaitDelay = 2 * time.Second
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	var mu sync.Mutex // onLine を直列化する
	stdout := &lineWriter{isErr: false, onLine: onLine, mu: &mu}
	stderr := &lineWriter{isErr: true, onLine: onLine, mu: &mu}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	res := &CommandResult{Command: command, StartedAt: time.Now()}
	r.logger.Debug("command started", zap.String("command", command), zap.String("dir", dir))

	if err := cmd.Start(); err != nil {
		return nil, toolErr(tool, command, ErrSpawn, err)
	}
	// WaitDelay 経過後は孫プロセスがパイプを握っていても Wait が戻る
	waitErr := cmd.Wait()
	if runCtx.Err() != nil {
		// シェルが先に終わっていると Cancel は呼ばれないので、残った孫をここで止める
		_ = killProcessGroup(cmd)
	}
	stdout.flush()
	stderr.flush()

	res.Stdout = stdout.buf.String()
	res.Stderr = stderr.buf.String()
	res.FinishedAt = time.Now()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case ctx.Err() != nil:
		return res, fmt.Errorf("%s: %w", tool, ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		r.logger.Warn("command timed out", zap.String("command", command), zap.Duration("timeout", r.timeout))
		return res, &TimeoutError{Op: tool, After: r.timeout}
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, toolErr(tool, command, ErrExitStatus, fmt.Errorf("exit status %d", res.ExitCode))
		}
		if errors.Is(waitErr, exec.ErrWaitDelay) {
			// プロセス自体は正常終了、出力パイプの後始末だけが打ち切られた
			r.logger.Warn("command left output pipes open", zap.String("command", command))
		} else {
			return res, toolErr(tool, command, ErrIO, waitErr)
		}
	}

	r.logger.Debug("command finished", zap.String("command", command), zap.Int("exit_code", res.ExitCode),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)))
	return res, nil
}

// lineWriter は書き込まれたバイト列を蓄積し、改行ごとに onLine へ流す。
type lineWriter struct {
	buf     strings.Builder
	pending []byte
	isErr   bool
	onLine  func(OutputLine)
	mu      *sync.Mutex
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	if w.onLine == nil {
		return len(p), nil
	}
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.emit(string(w.pending[:i]))
		w.pending = w.pending[i+1:]
	}
	if len(w.pending) > maxLineBytes {
		w.emit(string(w.pending))
		w.pending = nil
	}
	return len(p), nil
}

// flush は改行で終わらなかった最後の断片を流す。
func (w *lineWriter) flush() {
	if w.onLine != nil && len(w.pending) > 0 {
		w.emit(string(w.pending))
		w.pending = nil
	}
}

func (w *lineWriter) emit(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onLine(OutputLine{Time: time.Now(), Content: strings.TrimSuffix(line, "\r"), IsError: w.isErr})
}
