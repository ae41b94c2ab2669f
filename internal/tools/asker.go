package tools

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0x6d61/codepilot/pkg/schema"
)

// DefaultAskTimeout は ask_user が回答を待つ既定の上限時間。
const DefaultAskTimeout = 2 * time.Minute

// Asker は ask_user の質問と人間からの回答を相関 ID で対応付ける。
//
// 上限時間内に回答が無ければ空文字列で解決する（Run を止めないため）。
// タイムアウト後に届いた回答は捨てられ、Answer は ErrUnknownQuestion を返す。
type Asker struct {
	mu      sync.Mutex
	pending map[string]*pendingQuestion
	order   []string // AnswerNext 用（古い順）
	timeout time.Duration
	publish func(schema.Question)
}

type pendingQuestion struct {
	q  schema.Question
	ch chan string // バッファ1、Answer がロック内で1回だけ送る
}

// NewAsker は Asker を返す。publish は質問が出るたびに呼ばれる（nil 可）。
func NewAsker(timeout time.Duration, publish func(schema.Question)) *Asker {
	if timeout <= 0 {
		timeout = DefaultAskTimeout
	}
	return &Asker{
		pending: make(map[string]*pendingQuestion),
		timeout: timeout,
		publish: publish,
	}
}

// Timeout は回答待ちの上限時間を返す。
func (a *Asker) Timeout() time.Duration { return a.timeout }

// Ask は質問を公開して回答を待つ。
// 戻り値 timedOut が true のとき answer は空文字列。ctx キャンセル時のみ err を返す。
func (a *Asker) Ask(ctx context.Context, text string) (answer string, timedOut bool, err error) {
	pq := &pendingQuestion{
		q:  schema.Question{ID: uuid.NewString(), Text: text, AskedAt: time.Now()},
		ch: make(chan string, 1),
	}

	a.mu.Lock()
	a.pending[pq.q.ID] = pq
	a.order = append(a.order, pq.q.ID)
	a.mu.Unlock()

	if a.publish != nil {
		a.publish(pq.q)
	}

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	select {
	case ans := <-pq.ch:
		return ans, false, nil
	case <-timer.C:
		if ans, ok := a.withdraw(pq); ok {
			return ans, false, nil
		}
		return "", true, nil
	case <-ctx.Done():
		if ans, ok := a.withdraw(pq); ok {
			return ans, false, nil
		}
		return "", false, ctx.Err()
	}
}

// withdraw は待機をやめて質問を取り下げる。直前に Answer が届いていれば
// その回答を返す（ok=true）。
func (a *Asker) withdraw(pq *pendingQuestion) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, still := a.pending[pq.q.ID]; still {
		a.removeLocked(pq.q.ID)
		return "", false
	}
	// Answer が取り出し済み → ch に回答が入っている
	return <-pq.ch, true
}

// Answer は id の質問に回答する。
func (a *Asker) Answer(id, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	pq, ok := a.pending[id]
	if !ok {
		return ErrUnknownQuestion
	}
	a.removeLocked(id)
	pq.ch <- text
	return nil
}

// AnswerNext は最も古い未回答の質問に回答する（相関 ID を持たない入力用）。
func (a *Asker) AnswerNext(text string) error {
	a.mu.Lock()
	if len(a.order) == 0 {
		a.mu.Unlock()
		return ErrUnknownQuestion
	}
	id := a.order[0]
	a.mu.Unlock()
	return a.Answer(id, text)
}

// Pending は未回答の質問を古い順で返す。
func (a *Asker) Pending() []schema.Question {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]schema.Question, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.pending[id].q)
	}
	return out
}

func (a *Asker) removeLocked(id string) {
	delete(a.pending, id)
	for i, v := range a.order {
		if v == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}
