package event

import (
	"context"
	"time"

	"github.com/0x6d61/codepilot/pkg/schema"
)

// Bus はコアの外向きチャネル4本をまとめたもの。
type Bus struct {
	Events    *Stream[schema.Event]
	Changes   *Stream[schema.FileChange]
	Terminal  *Stream[schema.TerminalRecord]
	Questions *Stream[schema.Question]

	now func() time.Time
}

// NewBus は空の Bus を返す。イベント履歴は無制限に保持する（プロセス内のみ）。
func NewBus() *Bus {
	return &Bus{
		Events:    NewStream[schema.Event](0),
		Changes:   NewStream[schema.FileChange](0),
		Terminal:  NewStream[schema.TerminalRecord](0),
		Questions: NewStream[schema.Question](0),
		now:       time.Now,
	}
}

// Emit は AgentEvent を追加する。Seq はストリームが採番し、RunID は ctx から取る。
func (b *Bus) Emit(ctx context.Context, kind schema.EventKind, content string) schema.Event {
	runID := RunID(ctx)
	return b.Events.AppendFunc(func(seq uint64) schema.Event {
		return schema.Event{
			Seq:       seq,
			RunID:     runID,
			Kind:      kind,
			Content:   content,
			Timestamp: b.now(),
		}
	})
}

// NotifyChange はファイル変更通知を送る。
func (b *Bus) NotifyChange(kind schema.ChangeKind, path string) {
	b.Changes.Append(schema.FileChange{Kind: kind, Path: path})
}

// PublishTerminal はターミナルレコードのスナップショットを送る。
func (b *Bus) PublishTerminal(rec schema.TerminalRecord) {
	b.Terminal.Append(rec)
}

// PublishQuestion は人間への質問を送る。
func (b *Bus) PublishQuestion(q schema.Question) {
	b.Questions.Append(q)
}

// Close は全ストリームを閉じ、未配信分を配信し切る。
func (b *Bus) Close() {
	b.Events.Close()
	b.Changes.Close()
	b.Terminal.Close()
	b.Questions.Close()
}

type runIDKey struct{}

// WithRunID は Run の ID を ctx に載せる。Executor が出すイベントにも同じ ID が付く。
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID は ctx に載った Run ID を返す。Run 外なら空文字列。
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
