package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	colorPrimary      = lipgloss.Color("#00D7FF") // cyan  — focus / actions
	colorSecondary    = lipgloss.Color("#AF87FF") // purple — thoughts
	colorSuccess      = lipgloss.Color("#87FF5F") // green — DONE / USER
	colorWarning      = lipgloss.Color("#FFD700") // yellow — questions / flash
	colorDanger       = lipgloss.Color("#FF5555") // red — FAILED
	colorMuted        = lipgloss.Color("#555577") // dim gray — hints
	colorBorder       = lipgloss.Color("#333355") // default border
	colorBorderActive = lipgloss.Color("#00D7FF") // focused border
	colorTitle        = lipgloss.Color("#FFFFFF") // pane titles
)

// Pane borders
var (
	leftPaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)

	leftPaneActiveStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorBorderActive)

	rightPaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)

	rightPaneActiveStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorBorderActive)

	terminalPaneStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder()).
				BorderForeground(colorBorder)
)

// Input bar
var (
	inputBarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)

	inputBarActiveStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorBorderActive)
)

// Status bar (top)
var statusBarStyle = lipgloss.NewStyle().
	Background(lipgloss.Color("#0D0D1A")).
	Foreground(colorPrimary).
	Padding(0, 1)

// Quit confirmation dialog (centered overlay)
var confirmQuitBoxStyle = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(colorDanger).
	Padding(0, 2)

// Run state colors
var (
	stateIdleStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	stateActiveStyle   = lipgloss.NewStyle().Foreground(colorPrimary)
	stateDoneStyle     = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	stateFailedStyle   = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
	paneTitleStyle     = lipgloss.NewStyle().Foreground(colorTitle).Bold(true)
	treeDirStyle       = lipgloss.NewStyle().Foreground(colorPrimary)
	treeFlashStyle     = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	terminalCmdStyle   = lipgloss.NewStyle().Foreground(colorTitle)
	questionTitleStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
)

// foldIndicatorStyle は折りたたみ行の「… +N lines (ctrl+o)」スタイル。
var foldIndicatorStyle = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)

// User input block style — ハイライト背景でユーザー入力を目立たせる
var userInputBlockStyle = lipgloss.NewStyle().
	Background(lipgloss.Color("#1A1A2E")).
	Foreground(colorSuccess).
	Bold(true).
	Padding(0, 1)

// Question box (rendered inside viewport)
var questionBoxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorWarning).
	Padding(0, 1)
