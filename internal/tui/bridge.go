package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/0x6d61/codepilot/internal/event"
	"github.com/0x6d61/codepilot/pkg/schema"
)

// bridge はバスの4ストリームを1本の tea.Msg チャネルにまとめる。
// 購読者は done が閉じられるまでしかブロックしない。
type bridge struct {
	ch      chan tea.Msg
	done    chan struct{}
	once    sync.Once
	cancels []func()
}

func newBridge(bus *event.Bus) *bridge {
	b := &bridge{
		ch:   make(chan tea.Msg),
		done: make(chan struct{}),
	}
	b.cancels = append(b.cancels,
		bus.Events.Subscribe(event.SubscriberFunc[schema.Event](func(e schema.Event) { b.send(eventMsg(e)) }), true),
		bus.Changes.Subscribe(event.SubscriberFunc[schema.FileChange](func(c schema.FileChange) { b.send(changeMsg(c)) }), false),
		bus.Terminal.Subscribe(event.SubscriberFunc[schema.TerminalRecord](func(r schema.TerminalRecord) { b.send(terminalMsg(r)) }), true),
		bus.Questions.Subscribe(event.SubscriberFunc[schema.Question](func(q schema.Question) { b.send(questionMsg(q)) }), false),
	)
	return b
}

func (b *bridge) send(msg tea.Msg) {
	select {
	case b.ch <- msg:
	case <-b.done:
	}
}

// next は次のメッセージを待つ Bubble Tea コマンド。
func (b *bridge) next() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.ch:
			return msg
		case <-b.done:
			return nil
		}
	}
}

func (b *bridge) close() {
	b.once.Do(func() {
		close(b.done)
		for _, cancel := range b.cancels {
			cancel()
		}
	})
}
