package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/0x6d61/codepilot/internal/agent"
)

// View implements tea.Model and renders the full console layout.
func (m Model) View() string {
	if !m.ready {
		return "\n  ⚡ Starting codepilot...\n"
	}

	// ── Status bar (1 line) ──────────────────────────────────────────────────
	statusBar := m.renderStatusBar()

	// ── Left pane: project files ─────────────────────────────────────────────
	leftStyle := leftPaneStyle
	if m.focus == FocusTree {
		leftStyle = leftPaneActiveStyle
	}
	leftPane := leftStyle.Width(leftPaneOuterWidth - 2).Render(m.treeView.View())

	// ── Right column: agent log + terminal records ───────────────────────────
	rightContentW := m.width - leftPaneOuterWidth - 2
	rightStyle := rightPaneStyle
	if m.focus == FocusLog {
		rightStyle = rightPaneActiveStyle
	}
	logPane := rightStyle.Width(rightContentW).Render(m.viewport.View())

	terminal := renderTerminal(m.terminal.Records(), rightContentW, terminalPaneLines, m.spinner.View())
	terminalPane := terminalPaneStyle.Width(rightContentW).Height(terminalPaneLines).Render(terminal)

	rightColumn := lipgloss.JoinVertical(lipgloss.Left, logPane, terminalPane)
	panesRow := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightColumn)

	// ── Input bar (3 lines) ──────────────────────────────────────────────────
	inputBar := m.renderInputBar()

	base := lipgloss.JoinVertical(lipgloss.Left, statusBar, panesRow, inputBar)

	// Overlay quit confirmation dialog in the center of the screen.
	if m.inputMode == InputConfirmQuit {
		base = m.overlayCenter(base, m.renderConfirmQuit())
	}
	return base
}

// runState は表示する Run の状態。実行中の Run が無ければ最後の Run の結果。
func (m Model) runState() agent.State {
	if m.core == nil {
		return agent.StateIdle
	}
	if run, ok := m.core.CurrentRun(); ok {
		return run.State
	}
	if run, ok := m.core.LastRun(); ok {
		return run.State
	}
	return agent.StateIdle
}

// renderStatusBar renders the single-line header with app name, project and run state.
func (m Model) renderStatusBar() string {
	appName := lipgloss.NewStyle().
		Foreground(colorPrimary).
		Bold(true).
		Render("⚡ CODEPILOT")

	project := lipgloss.NewStyle().Foreground(colorMuted).Render("No project")
	if m.core != nil && m.core.ProjectRoot() != "" {
		project = lipgloss.NewStyle().Foreground(colorWarning).Render(m.core.ProjectRoot())
	}

	state := m.runState()
	var stateStyle lipgloss.Style
	switch state {
	case agent.StatePlanning, agent.StateExecuting:
		stateStyle = stateActiveStyle
	case agent.StateDone:
		stateStyle = stateDoneStyle
	case agent.StateFailed:
		stateStyle = stateFailedStyle
	default:
		stateStyle = stateIdleStyle
	}
	stateInfo := stateStyle.Render(fmt.Sprintf("%s %s", state.Icon(), state))
	if n := len(m.terminal.Running()); n > 0 {
		stateInfo += "  " + terminalCmdStyle.Render(fmt.Sprintf("$ %d running", n))
	}

	hint := lipgloss.NewStyle().Foreground(colorMuted).Render("[Tab] Switch pane  [Ctrl+X] Stop  [Ctrl+O] Expand")
	left := appName + "  " + project + "  " + stateInfo + "  " + m.renderFocusIndicator()
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(left)-lipgloss.Width(hint)-2))

	return statusBarStyle.Width(m.width).Render(left + gap + hint)
}

// renderFocusIndicator shows which pane is currently focused.
func (m Model) renderFocusIndicator() string {
	dim := lipgloss.NewStyle().Foreground(colorMuted)
	active := lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)

	tree := dim.Render("[FILES]")
	log := dim.Render("[LOG]")
	input := dim.Render("[INPUT]")

	switch m.focus {
	case FocusTree:
		tree = active.Render("[FILES]")
	case FocusLog:
		log = active.Render("[LOG]")
	case FocusInput:
		input = active.Render("[INPUT]")
	}

	return fmt.Sprintf("%s %s %s", tree, log, input)
}

// renderInputBar renders the bottom input area with context-aware prefix.
func (m Model) renderInputBar() string {
	var prefix string
	style := inputBarStyle
	switch m.focus {
	case FocusTree:
		prefix = lipgloss.NewStyle().Foreground(colorMuted).Render("[Files] ↑↓ Scroll")
	case FocusLog:
		prefix = lipgloss.NewStyle().Foreground(colorMuted).Render("[Log]  ↑↓ Scroll")
	case FocusInput:
		style = inputBarActiveStyle
		if m.core != nil && len(m.core.PendingQuestions()) > 0 {
			prefix = questionTitleStyle.Render("? ")
		} else {
			prefix = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Render("> ")
		}
	}

	return style.Width(m.width - 2).Render(prefix + " " + m.input.View())
}

// renderConfirmQuit renders the centered quit confirmation dialog.
func (m Model) renderConfirmQuit() string {
	title := lipgloss.NewStyle().
		Foreground(colorWarning).
		Bold(true).
		Render("Quit codepilot?")

	var note string
	if m.core != nil && m.core.IsRunning() {
		note = "\n  " + lipgloss.NewStyle().Foreground(colorDanger).Render("The current run will be stopped.") + "\n"
	}

	hint := lipgloss.NewStyle().
		Foreground(colorMuted).
		Render("[Y] Yes  [N] No  [Esc] Cancel")

	content := fmt.Sprintf("\n  %s\n%s\n  %s\n", title, note, hint)
	return confirmQuitBoxStyle.Render(content)
}

// overlayCenter places the overlay string in the center of the base string.
func (m Model) overlayCenter(base, overlay string) string {
	baseLines := strings.Split(base, "\n")
	overlayLines := strings.Split(overlay, "\n")

	overlayH := len(overlayLines)
	overlayW := 0
	for _, line := range overlayLines {
		if w := lipgloss.Width(line); w > overlayW {
			overlayW = w
		}
	}

	startRow := max(0, (m.height-overlayH)/2)
	startCol := max(0, (m.width-overlayW)/2)

	for len(baseLines) < startRow+overlayH {
		baseLines = append(baseLines, strings.Repeat(" ", m.width))
	}

	for i, oLine := range overlayLines {
		row := startRow + i
		if row >= len(baseLines) {
			break
		}

		baseLine := baseLines[row]
		for lipgloss.Width(baseLine) < startCol {
			baseLine += " "
		}

		// Use rune-safe slicing based on visual width
		left := truncateVisual(baseLine, startCol)
		rightStart := startCol + lipgloss.Width(oLine)
		right := ""
		if lipgloss.Width(baseLine) > rightStart {
			right = skipVisual(baseLine, rightStart)
		}

		baseLines[row] = left + oLine + right
	}

	return strings.Join(baseLines, "\n")
}
