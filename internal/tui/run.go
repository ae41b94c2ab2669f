package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/0x6d61/codepilot/internal/tools"
)

// RunOptions は Run の設定。
type RunOptions struct {
	Logger          *zap.Logger
	TerminalHistory int
	// Watch はプロジェクト監視の設定。OnChange は Run が設定する。
	Watch tools.WatcherOptions
	// ProgramOptions は tea.NewProgram に追加で渡すオプション（テスト用の入出力差し替えなど）。
	ProgramOptions []tea.ProgramOption
}

// Run は TUI を起動し、終了するまでブロックする。
//
// プログラム本体とプロジェクト監視の2つの goroutine を errgroup で束ね、
// どちらかが終わればもう一方も止める。
func Run(ctx context.Context, core Core, opts RunOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g, ctx := errgroup.WithContext(ctx)

	roots := make(chan string, 1)
	m := New(ctx, core, Options{
		Logger:          logger,
		TerminalHistory: opts.TerminalHistory,
		OnRootChange: func(root string) {
			// 最新のルートだけを残す
			select {
			case <-roots:
			default:
			}
			roots <- root
		},
	})
	defer m.Close()

	popts := append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts.ProgramOptions...)
	p := tea.NewProgram(m, popts...)

	watchCtx, stopWatch := context.WithCancel(ctx)
	g.Go(func() error {
		defer stopWatch()
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		watchOpts := opts.Watch
		watchOpts.Logger = logger.Named("watcher")
		watchOpts.OnChange = func() { p.Send(treeChangedMsg{}) }
		return watchProject(watchCtx, core.ProjectRoot(), roots, watchOpts)
	})
	return g.Wait()
}

// watchProject は root を監視し、roots からルートが届くたびに張り替える。
// 監視の開始に失敗してもログに残すだけで TUI は止めない。
func watchProject(ctx context.Context, root string, roots <-chan string, opts tools.WatcherOptions) error {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	var w *tools.Watcher
	start := func(root string) {
		if w != nil {
			w.Stop()
			w = nil
		}
		if root == "" {
			return
		}
		nw, err := tools.NewWatcher(root, opts)
		if err != nil {
			opts.Logger.Warn("watcher create failed", zap.String("root", root), zap.Error(err))
			return
		}
		if err := nw.Start(ctx); err != nil {
			nw.Stop()
			opts.Logger.Warn("watcher start failed", zap.String("root", root), zap.Error(err))
			return
		}
		w = nw
	}

	start(root)
	for {
		select {
		case <-ctx.Done():
			if w != nil {
				w.Stop()
			}
			return nil
		case r := <-roots:
			start(r)
		}
	}
}
