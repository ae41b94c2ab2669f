// Package event は順序付きのイベントストリームを提供する。
// コアから外へ情報が出る唯一の経路で、書き込み側を決してブロックしない。
package event

import "sync"

// Subscriber はストリームの購読者。Publish は購読者ごとの goroutine から
// 追加順に1件ずつ呼ばれる。
type Subscriber[T any] interface {
	Publish(item T)
}

// SubscriberFunc は関数を Subscriber として扱うアダプタ。
type SubscriberFunc[T any] func(item T)

// Publish implements Subscriber.
func (f SubscriberFunc[T]) Publish(item T) { f(item) }

// Stream は単一の順序付きログと複数の購読者を持つ。
//
// 保証:
//   - 購読者には追加順そのままに配信される（並べ替え・欠落なし）
//   - Append はブロックも失敗もしない（購読者ごとに上限なしのキューを持つ）
//   - 遅い購読者は他の購読者にも書き込み側にも影響しない
type Stream[T any] struct {
	mu      sync.Mutex
	history []T
	limit   int // 0 = 無制限
	seq     uint64
	subs    map[int]*subscription[T]
	nextID  int
	closed  bool
	wg      sync.WaitGroup
}

// NewStream は空の Stream を返す。limit > 0 なら履歴を直近 limit 件に制限する。
func NewStream[T any](limit int) *Stream[T] {
	return &Stream[T]{
		limit: limit,
		subs:  make(map[int]*subscription[T]),
	}
}

// Append は item を末尾に追加して全購読者のキューに積む。
func (s *Stream[T]) Append(item T) T {
	return s.AppendFunc(func(uint64) T { return item })
}

// AppendFunc は連番 seq（1 始まり）を受け取って item を組み立て、追加する。
// build はストリームのロック内で呼ばれるため、seq の順序と追加順は一致する。
// Close 後の追加は無視され、ゼロ値を返す。
func (s *Stream[T]) AppendFunc(build func(seq uint64) T) T {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.closed {
		return zero
	}
	s.seq++
	item := build(s.seq)
	s.history = append(s.history, item)
	if s.limit > 0 && len(s.history) > s.limit {
		drop := len(s.history) - s.limit
		s.history = append(s.history[:0:0], s.history[drop:]...)
	}
	for _, sub := range s.subs {
		sub.push(item)
	}
	return item
}

// Subscribe は sub を登録する。replay が true なら保持中の履歴を先に配信する。
// 戻り値の関数で購読を解除する（未配信分は捨てる）。
func (s *Stream[T]) Subscribe(sub Subscriber[T], replay bool) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return func() {}
	}

	id := s.nextID
	s.nextID++
	ss := newSubscription(sub)
	if replay {
		for _, item := range s.history {
			ss.push(item)
		}
	}
	s.subs[id] = ss

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ss.run()
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			ss.stop(false)
		})
	}
}

// History は保持中の履歴のコピーを返す。
func (s *Stream[T]) History() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.history))
	copy(out, s.history)
	return out
}

// Len は保持中の履歴件数を返す。
func (s *Stream[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Close は新規追加を止め、各購読者のキューを配信し切ってから戻る。
func (s *Stream[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = make(map[int]*subscription[T])
	s.mu.Unlock()

	for _, ss := range subs {
		ss.stop(true)
	}
	s.wg.Wait()
}

// subscription は購読者1人分のキューと配信 goroutine。
type subscription[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []T
	stopped bool
	drain   bool
	sub     Subscriber[T]
}

func newSubscription[T any](sub Subscriber[T]) *subscription[T] {
	ss := &subscription[T]{sub: sub}
	ss.cond = sync.NewCond(&ss.mu)
	return ss
}

func (ss *subscription[T]) push(item T) {
	ss.mu.Lock()
	ss.queue = append(ss.queue, item)
	ss.mu.Unlock()
	ss.cond.Signal()
}

// stop は配信 goroutine を止める。drain が true なら残りを配信してから止まる。
func (ss *subscription[T]) stop(drain bool) {
	ss.mu.Lock()
	ss.stopped = true
	ss.drain = drain
	ss.mu.Unlock()
	ss.cond.Signal()
}

func (ss *subscription[T]) run() {
	for {
		ss.mu.Lock()
		for len(ss.queue) == 0 && !ss.stopped {
			ss.cond.Wait()
		}
		if ss.stopped && (!ss.drain || len(ss.queue) == 0) {
			ss.mu.Unlock()
			return
		}
		item := ss.queue[0]
		var zero T
		ss.queue[0] = zero
		ss.queue = ss.queue[1:]
		ss.mu.Unlock()

		ss.deliver(item)
	}
}

// deliver は購読者の panic を握りつぶす（1購読者の不具合で配信を止めない）。
func (ss *subscription[T]) deliver(item T) {
	defer func() { recover() }() //nolint:errcheck
	ss.sub.Publish(item)
}
