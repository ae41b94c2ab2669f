package tui

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/0x6d61/codepilot/internal/agent"
	"github.com/0x6d61/codepilot/pkg/schema"
)

// Update implements tea.Model and routes all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.handleResize(msg.Width, msg.Height)
		m.ready = true
		m.rebuildViewport()
		m.rebuildTree()
		return m, nil

	// スピナーティック（Run 実行中のみ回す）
	case spinner.TickMsg:
		if m.spinning {
			var spinCmd tea.Cmd
			m.spinner, spinCmd = m.spinner.Update(msg)
			m.viewportDirty = false
			m.rebuildViewport()
			return m, spinCmd
		}
		return m, nil

	case debounceMsg:
		if m.viewportDirty {
			m.viewportDirty = false
			m.rebuildViewport()
		}
		return m, nil

	case eventMsg:
		if m.log.apply(schema.Event(msg)) {
			m.markDirty(&cmds)
		}
		return m, tea.Batch(append(cmds, m.bridge.next())...)

	case changeMsg:
		m.flash[flashKey(msg.Path)] = time.Now().Add(flashDuration)
		return m, tea.Batch(
			m.loadTree(),
			tea.Tick(flashDuration, func(time.Time) tea.Msg { return flashTickMsg{} }),
			m.bridge.next(),
		)

	case terminalMsg:
		m.terminal.Apply(schema.TerminalRecord(msg))
		return m, m.bridge.next()

	case questionMsg:
		m.log.question(schema.Question(msg))
		m.focus = FocusInput
		m.input.Focus()
		m.input.Placeholder = "Answer the question and press Enter..."
		m.rebuildViewport()
		return m, m.bridge.next()

	case flashTickMsg:
		now := time.Now()
		for path, until := range m.flash {
			if !now.Before(until) {
				delete(m.flash, path)
			}
		}
		m.rebuildTree()
		return m, nil

	case treeChangedMsg:
		return m, m.loadTree()

	case treeLoadedMsg:
		m.tree, m.treeErr = msg.root, msg.err
		if msg.err != nil {
			m.logger.Debug("tree load failed", zap.Error(msg.err))
		}
		m.rebuildTree()
		return m, nil

	case runFinishedMsg:
		m.spinning = false
		if errors.Is(msg.err, agent.ErrRunInProgress) {
			m.log.system("A run is already in progress. Use /stop or Ctrl+X to cancel it.")
		} else if msg.err != nil {
			m.log.system("❌ " + msg.err.Error())
		}
		m.rebuildViewport()
		return m, m.loadTree()

	case tea.KeyMsg:
		// Quit confirmation dialog intercepts all keys when active.
		if m.inputMode == InputConfirmQuit {
			return m.handleConfirmQuitKey(msg)
		}

		switch msg.String() {
		case "ctrl+c":
			m.inputMode = InputConfirmQuit
			return m, nil
		case "tab":
			m.cycleFocus()
			return m, nil
		case "ctrl+o":
			m.logsExpanded = !m.logsExpanded
			m.rebuildViewport()
			return m, nil
		case "ctrl+x":
			m.stopRun()
			return m, nil
		case "ctrl+r":
			return m, m.loadTree()
		}

		switch m.focus {
		case FocusTree:
			m.treeView, cmd = m.treeView.Update(msg)
			cmds = append(cmds, cmd)

		case FocusLog:
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)

		case FocusInput:
			switch msg.String() {
			case "enter":
				cmds = append(cmds, m.submitInput())
			default:
				m.input, cmd = m.input.Update(msg)
				cmds = append(cmds, cmd)
			}
		}
	}

	return m, tea.Batch(cmds...)
}

// markDirty は出力が連続するときの再描画をまとめる。
// スピナーが回っていれば次の TickMsg で、止まっていれば 100ms 後にフラッシュする。
func (m *Model) markDirty(cmds *[]tea.Cmd) {
	if m.spinning {
		m.viewportDirty = true
		return
	}
	if !m.viewportDirty {
		m.viewportDirty = true
		*cmds = append(*cmds, tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
			return debounceMsg{}
		}))
	}
}

// handleResize recomputes all component dimensions to fit the new terminal size.
func (m *Model) handleResize(w, h int) {
	m.width = w
	m.height = h

	const (
		statusBarH  = 1
		inputAreaH  = 3 // rounded border top + bottom + 1 line
		paneVBorder = 2 // top + bottom borders for panes
		termBorder  = 2
	)

	paneH := h - statusBarH - inputAreaH - paneVBorder
	if paneH < 4 {
		paneH = 4
	}

	logH := paneH - terminalPaneLines - termBorder
	if logH < 3 {
		logH = 3
	}
	vpW := w - leftPaneOuterWidth - 2
	if vpW < 10 {
		vpW = 10
	}
	treeW := leftPaneOuterWidth - 2

	if !m.ready {
		m.viewport = viewport.New(vpW, logH)
		m.treeView = viewport.New(treeW, paneH)
	} else {
		m.viewport.Width, m.viewport.Height = vpW, logH
		m.treeView.Width, m.treeView.Height = treeW, paneH
	}

	m.input.Width = w - 8
}

// cycleFocus moves focus Tree → Log → Input → Tree.
func (m *Model) cycleFocus() {
	switch m.focus {
	case FocusTree:
		m.focus = FocusLog
	case FocusLog:
		m.focus = FocusInput
		m.input.Focus()
		return
	case FocusInput:
		m.focus = FocusTree
	}
	m.input.Blur()
}

// submitInput は入力バーの内容を処理する。
//
// 優先順位: スラッシュコマンド → 未回答の質問への回答 → 新しいプロンプト。
func (m *Model) submitInput() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.input.Reset()

	switch {
	case text == "/project" || strings.HasPrefix(text, "/project "):
		return m.handleProjectCommand(strings.TrimSpace(strings.TrimPrefix(text, "/project")))
	case text == "/stop":
		m.stopRun()
		return nil
	case text == "/clear":
		m.log = blockLog{lastSeq: m.log.lastSeq}
		m.terminal.Reset()
		m.rebuildViewport()
		return nil
	case text == "/tree":
		return m.loadTree()
	}

	if m.core == nil {
		return nil
	}

	if len(m.core.PendingQuestions()) > 0 {
		if err := m.core.AnswerNext(text); err != nil {
			m.log.system("❌ " + err.Error())
		} else {
			m.log.answered(text)
		}
		m.input.Placeholder = "Describe what to build, or /project PATH ..."
		m.rebuildViewport()
		return nil
	}

	if m.core.IsRunning() {
		m.log.system("A run is already in progress. Use /stop or Ctrl+X to cancel it.")
		m.rebuildViewport()
		return nil
	}

	var cmds []tea.Cmd
	if !m.spinning {
		m.spinning = true
		cmds = append(cmds, m.spinner.Tick)
	}
	cmds = append(cmds, m.runPrompt(text))
	return tea.Batch(cmds...)
}

// handleProjectCommand processes /project PATH.
func (m *Model) handleProjectCommand(path string) tea.Cmd {
	defer m.rebuildViewport()
	if path == "" {
		if root := m.core.ProjectRoot(); root != "" {
			m.log.system("Project: " + root)
		} else {
			m.log.system("Usage: /project PATH")
		}
		return nil
	}
	if err := m.core.SetProjectRoot(path); err != nil {
		m.log.system("❌ " + err.Error())
		return nil
	}
	root := m.core.ProjectRoot()
	m.log.system("Project: " + root)
	m.flash = make(map[string]time.Time)
	if m.onRootChange != nil {
		m.onRootChange(root)
	}
	return m.loadTree()
}

func (m *Model) stopRun() {
	if m.core != nil && m.core.Stop() {
		m.log.system("Stop requested.")
	} else {
		m.log.system("No run in progress.")
	}
	m.rebuildViewport()
}

// handleConfirmQuitKey processes key events in the quit confirmation dialog.
func (m Model) handleConfirmQuitKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		if m.core != nil {
			m.core.Stop()
		}
		return m, tea.Quit
	case "n", "N", "esc":
		m.inputMode = InputNormal
		return m, nil
	}
	// Other keys: ignore, stay in confirmation dialog.
	return m, nil
}

// flashKey は FileChange のパスをツリー側の相対パス表記にそろえる。
func flashKey(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}
