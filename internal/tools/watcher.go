package tools

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultWatchDebounce は連続したファイルシステムイベントをまとめる間隔。
const DefaultWatchDebounce = 200 * time.Millisecond

// WatcherOptions は Watcher の設定。
type WatcherOptions struct {
	Ignore   []string      // nil なら DefaultTreeIgnore
	Debounce time.Duration // 0 以下なら DefaultWatchDebounce
	Logger   *zap.Logger
	// OnChange はイベントが落ち着いたら呼ばれる。受け手はツリーを丸ごと作り直す。
	OnChange func()
}

// Watcher はプロジェクトディレクトリを再帰的に監視し、変更をデバウンスして通知する。
// fsnotify はディレクトリ単位の監視なので、新しく作られたディレクトリも追加で監視する。
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	root     string
	ignore   map[string]bool
	debounce time.Duration
	onChange func()
	logger   *zap.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewWatcher は root を監視する Watcher を返す。Start するまで監視は始まらない。
func NewWatcher(root string, opts WatcherOptions) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ignore := opts.Ignore
	if ignore == nil {
		ignore = DefaultTreeIgnore
	}
	w := &Watcher{
		watcher:  fw,
		root:     root,
		ignore:   make(map[string]bool, len(ignore)),
		debounce: opts.Debounce,
		onChange: opts.OnChange,
		logger:   opts.Logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, name := range ignore {
		w.ignore[name] = true
	}
	if w.debounce <= 0 {
		w.debounce = DefaultWatchDebounce
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	if w.onChange == nil {
		w.onChange = func() {}
	}
	return w, nil
}

// Start は監視を開始する（ノンブロッキング）。
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	w.logger.Debug("watcher started", zap.String("root", w.root))

	go w.run(ctx)
	return nil
}

// Stop は監視を止め、後始末が終わるまで待つ。Start していなければ watcher を閉じるだけ。
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("watcher close failed", zap.Error(err))
	}
}

// addTree は dir 以下の全ディレクトリ（隠し・除外名を除く）を監視対象に加える。
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.skip(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("watch add failed", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
}

func (w *Watcher) skip(name string) bool {
	return strings.HasPrefix(name, ".") || w.ignore[name]
}

// run はイベントループ。最後のイベントから debounce 経過で onChange を1回呼ぶ。
func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.skip(filepath.Base(ev.Name)) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.addTree(ev.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			w.onChange()
		}
	}
}
