// Package tui implements the Bubble Tea TUI for codepilot.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/0x6d61/codepilot/internal/agent"
	"github.com/0x6d61/codepilot/internal/event"
	"github.com/0x6d61/codepilot/internal/tools"
	"github.com/0x6d61/codepilot/pkg/schema"
)

// FocusState tracks which pane has keyboard focus.
type FocusState int

const (
	FocusTree  FocusState = iota // left pane: project files
	FocusLog                     // right pane: agent log
	FocusInput                   // bottom: input bar
)

// InputMode は入力バーの状態。
type InputMode int

const (
	InputNormal      InputMode = iota
	InputConfirmQuit           // 終了確認ダイアログを表示中
)

// leftPaneOuterWidth is the total rendered width of the left pane (borders included).
const leftPaneOuterWidth = 32

// terminalPaneLines はターミナルペインに出す行数。
const terminalPaneLines = 6

// flashDuration は変更されたパスをツリーで強調表示する時間。
const flashDuration = 2 * time.Second

// Core は TUI が操作する Orchestrator の面。*agent.Orchestrator が満たす。
type Core interface {
	ProcessPrompt(ctx context.Context, prompt string) error
	Stop() bool
	IsRunning() bool
	CurrentRun() (agent.Run, bool)
	LastRun() (agent.Run, bool)
	SetProjectRoot(path string) error
	ProjectRoot() string
	GetProjectFiles(path string) (*schema.FileTreeNode, error)
	AnswerNext(text string) error
	PendingQuestions() []schema.Question
	Bus() *event.Bus
}

// Options は Model の構築オプション。
type Options struct {
	Logger *zap.Logger
	// OnRootChange は /project でルートが変わったときに呼ばれる（watcher の張り替え用）。
	OnRootChange    func(root string)
	TerminalHistory int
}

// Bubble Tea メッセージ
type (
	eventMsg    schema.Event
	changeMsg   schema.FileChange
	terminalMsg schema.TerminalRecord
	questionMsg schema.Question

	// treeChangedMsg はディスク上の変更（watcher）でツリーの再構築が必要なことを表す。
	treeChangedMsg struct{}

	treeLoadedMsg struct {
		root *schema.FileTreeNode
		err  error
	}

	runFinishedMsg struct{ err error }

	flashTickMsg struct{}
	debounceMsg  struct{}
)

// Model is the root Bubble Tea model for the codepilot console.
type Model struct {
	width     int
	height    int
	ready     bool
	focus     FocusState
	inputMode InputMode

	ctx    context.Context
	core   Core
	bridge *bridge
	logger *zap.Logger

	log      blockLog
	terminal *tools.TerminalTracker
	tree     *schema.FileTreeNode
	treeErr  error
	flash    map[string]time.Time

	treeView viewport.Model
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	spinning      bool
	logsExpanded  bool
	viewportDirty bool
	onRootChange  func(string)
}

// New は core に接続した Model を返す。ctx は Run に渡される。
func New(ctx context.Context, core Core, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "Describe what to build, or /project PATH ..."
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorSecondary)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := Model{
		ctx:          ctx,
		core:         core,
		logger:       logger,
		focus:        FocusInput,
		input:        ti,
		spinner:      sp,
		terminal:     tools.NewTerminalTracker(opts.TerminalHistory, nil),
		flash:        make(map[string]time.Time),
		onRootChange: opts.OnRootChange,
	}
	if core != nil {
		m.bridge = newBridge(core.Bus())
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.loadTree()}
	if m.bridge != nil {
		cmds = append(cmds, m.bridge.next())
	}
	return tea.Batch(cmds...)
}

// Close はストリームの購読を解除する。
func (m Model) Close() {
	if m.bridge != nil {
		m.bridge.close()
	}
}

// loadTree はプロジェクトツリーを作り直すコマンドを返す。
func (m Model) loadTree() tea.Cmd {
	core := m.core
	return func() tea.Msg {
		if core == nil || core.ProjectRoot() == "" {
			return treeLoadedMsg{}
		}
		root, err := core.GetProjectFiles("")
		return treeLoadedMsg{root: root, err: err}
	}
}

// runPrompt は ProcessPrompt を別 goroutine で走らせるコマンドを返す。
func (m Model) runPrompt(prompt string) tea.Cmd {
	core, ctx := m.core, m.ctx
	return func() tea.Msg {
		return runFinishedMsg{err: core.ProcessPrompt(ctx, prompt)}
	}
}

// rebuildViewport regenerates the log viewport content.
func (m *Model) rebuildViewport() {
	if len(m.log.blocks) == 0 {
		m.viewport.SetContent(m.welcomeText())
		return
	}
	m.viewport.SetContent(renderBlocks(m.log.blocks, m.viewport.Width, m.logsExpanded, m.spinner.View()))
	m.viewport.GotoBottom()
}

// rebuildTree regenerates the file tree pane.
func (m *Model) rebuildTree() {
	m.treeView.SetContent(renderTree(m.tree, m.treeErr, m.treeView.Width, m.flash, time.Now()))
}

func (m Model) welcomeText() string {
	if m.core == nil || m.core.ProjectRoot() == "" {
		return "  No project selected.\n\n  Open one with:\n    /project PATH\n"
	}
	return "  Project: " + m.core.ProjectRoot() + "\n\n  Try: \"crie um html\" or \"crie algo em react\"\n" +
		"  Commands: /project PATH, /stop, /clear\n"
}
