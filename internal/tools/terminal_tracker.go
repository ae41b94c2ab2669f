package tools

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0x6d61/codepilot/pkg/schema"
)

// DefaultTerminalHistory は TerminalTracker が保持するレコード数の既定値。
const DefaultTerminalHistory = 200

// Outcome は完了したコマンドの結果。
type Outcome struct {
	Status   schema.TerminalStatus
	Stdout   string
	Stderr   string
	Error    string
	ExitCode int
}

// TerminalTracker は外部コマンド実行のレコードを管理し、running → success/error
// の遷移を1つの論理レコードにまとめる。Run の状態には触らない。
//
// 完了通知の対応付け:
//  1. レコード ID が一致するもの
//  2. 無ければ、同じコマンド文字列で running の最も新しいもの
//  3. それも無ければ（追い出し済み等）、確定レコードとして新規追加する
type TerminalTracker struct {
	mu      sync.Mutex
	records []schema.TerminalRecord
	limit   int
	publish func(schema.TerminalRecord)
	now     func() time.Time
}

// NewTerminalTracker は TerminalTracker を返す。publish は遷移ごとに
// スナップショットを受け取る（nil 可）。limit <= 0 なら DefaultTerminalHistory。
func NewTerminalTracker(limit int, publish func(schema.TerminalRecord)) *TerminalTracker {
	if limit <= 0 {
		limit = DefaultTerminalHistory
	}
	return &TerminalTracker{limit: limit, publish: publish, now: time.Now}
}

// Begin は running レコードを追加して公開する。
func (t *TerminalTracker) Begin(command string) schema.TerminalRecord {
	rec := schema.TerminalRecord{
		ID:        uuid.NewString(),
		Command:   command,
		Status:    schema.TerminalRunning,
		StartedAt: t.now(),
	}
	return t.Apply(rec)
}

// Complete は id（空なら command で照合）のレコードを out で確定させて公開する。
func (t *TerminalTracker) Complete(id, command string, out Outcome) schema.TerminalRecord {
	status := out.Status
	if !status.Settled() {
		status = schema.TerminalError
	}
	rec := schema.TerminalRecord{
		ID:         id,
		Command:    command,
		Status:     status,
		Stdout:     out.Stdout,
		Stderr:     out.Stderr,
		Error:      out.Error,
		ExitCode:   out.ExitCode,
		FinishedAt: t.now(),
	}
	return t.Apply(rec)
}

// Apply はスナップショット rec をレコード集合に反映し、反映後のレコードを返す。
// 観測側（TUI）が外部から届いたスナップショットを突き合わせるのにも使う。
func (t *TerminalTracker) Apply(rec schema.TerminalRecord) schema.TerminalRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.indexLocked(rec)
	if idx >= 0 {
		cur := t.records[idx]
		if cur.Status.Settled() && rec.Status == schema.TerminalRunning {
			// 確定済みレコードを running に戻さない（遅れて届いたスナップショット）
			return cur
		}
		if rec.ID == "" {
			rec.ID = cur.ID
		}
		if rec.StartedAt.IsZero() {
			rec.StartedAt = cur.StartedAt
		}
		t.records[idx] = rec
	} else {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.StartedAt.IsZero() {
			rec.StartedAt = rec.FinishedAt
		}
		t.records = append(t.records, rec)
		t.evictLocked()
	}

	if t.publish != nil {
		t.publish(rec)
	}
	return rec
}

// indexLocked は rec に対応する既存レコードの位置を返す。無ければ -1。
func (t *TerminalTracker) indexLocked(rec schema.TerminalRecord) int {
	if rec.ID != "" {
		for i := len(t.records) - 1; i >= 0; i-- {
			if t.records[i].ID == rec.ID {
				return i
			}
		}
	}
	if rec.Status.Settled() {
		for i := len(t.records) - 1; i >= 0; i-- {
			r := t.records[i]
			if r.Status == schema.TerminalRunning && r.Command == rec.Command {
				return i
			}
		}
	}
	return -1
}

// evictLocked は上限を超えた分を古い確定済みレコードから捨てる。
func (t *TerminalTracker) evictLocked() {
	for len(t.records) > t.limit {
		drop := 0
		for i, r := range t.records {
			if r.Status.Settled() {
				drop = i
				break
			}
		}
		t.records = append(t.records[:drop], t.records[drop+1:]...)
	}
}

// Records は全レコードのコピーを古い順で返す。
func (t *TerminalTracker) Records() []schema.TerminalRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]schema.TerminalRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Running は実行中のレコードを返す。
func (t *TerminalTracker) Running() []schema.TerminalRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []schema.TerminalRecord
	for _, r := range t.records {
		if r.Status == schema.TerminalRunning {
			out = append(out, r)
		}
	}
	return out
}

// Reset は全レコードを消す（新しい Run の開始時に TUI が使う）。
func (t *TerminalTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = nil
}
