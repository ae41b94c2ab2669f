package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/0x6d61/codepilot/pkg/schema"
)

// renderToolBlock はツール呼び出しブロックをレンダリングする。
// Format:
//
//	● write_file('index.html', ...)
//	⎿  'index.html' written (120 bytes)
//	   … +N lines (ctrl+o)
func renderToolBlock(b *DisplayBlock, expanded bool, spinnerFrame string) string {
	var sb strings.Builder

	if b.Action != "" {
		head := "● "
		if !b.Completed {
			head = spinnerFrame + " "
		}
		cmdStyle := lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
		sb.WriteString(cmdStyle.Render(head + b.Action))
		sb.WriteString("\n")
	}

	if len(b.Output) == 0 {
		return sb.String()
	}

	const outputPrefix = "  ⎿  "
	const contPrefix = "     "
	const cmdFoldThreshold = 5
	const previewLines = 3

	lines := b.Output
	folded := false
	if !expanded && len(lines) > cmdFoldThreshold {
		folded = true
		lines = lines[:previewLines]
	}

	outputStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	if b.Failed {
		outputStyle = lipgloss.NewStyle().Foreground(colorDanger)
	}
	for i, line := range lines {
		prefix := contPrefix
		if i == 0 {
			prefix = outputPrefix
		}
		sb.WriteString(outputStyle.Render(prefix + line))
		sb.WriteString("\n")
	}

	if folded {
		remaining := len(b.Output) - previewLines
		sb.WriteString(foldIndicatorStyle.Render(fmt.Sprintf("     … +%d lines (ctrl+o)", remaining)))
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderThoughtBlock は進捗メッセージをレンダリングする。
func renderThoughtBlock(b *DisplayBlock) string {
	style := lipgloss.NewStyle().Foreground(colorSecondary)
	return style.Render("✻ "+b.Text) + "\n"
}

// renderPlanBlock は計画テキストを glamour で Markdown としてレンダリングする。
func renderPlanBlock(b *DisplayBlock, width int) string {
	if b.Text == "" {
		return ""
	}
	rendered, err := renderMarkdown(b.Text, width)
	if err != nil {
		// フォールバック: プレーンテキスト
		return b.Text + "\n"
	}
	return rendered
}

// renderMarkdown は glamour を使って Markdown をターミナル用にレンダリングする。
// WithAutoStyle() は非 TTY 環境（テスト・CI）で plain にフォールバックするため dark を明示する。
// dark スタイルは左右マージンを追加するため、width を縮小して渡す。
func renderMarkdown(text string, width int) (string, error) {
	wrapWidth := width - 4
	if wrapWidth < 20 {
		wrapWidth = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return "", err
	}
	return r.Render(text)
}

// renderUserBlock はユーザー入力ブロックをハイライト背景でレンダリングする。
// Format: > text
func renderUserBlock(b *DisplayBlock) string {
	return userInputBlockStyle.Render("> "+b.Text) + "\n"
}

func renderErrorBlock(b *DisplayBlock) string {
	return stateFailedStyle.Render("❌ "+b.Text) + "\n"
}

// renderSystemBlock はシステムメッセージをレンダリングする。
func renderSystemBlock(b *DisplayBlock) string {
	style := lipgloss.NewStyle().Foreground(colorMuted)
	return style.Render(b.Text) + "\n"
}

// renderQuestionBlock は ask_user の質問を枠付きでレンダリングする。
func renderQuestionBlock(b *DisplayBlock, width int) string {
	if b.Answered {
		style := lipgloss.NewStyle().Foreground(colorMuted)
		return style.Render(fmt.Sprintf("? %s → %q", b.Text, b.Answer)) + "\n"
	}
	boxWidth := width - 2
	if boxWidth < 10 {
		boxWidth = 10
	}
	title := questionTitleStyle.Render("? QUESTION — waiting for your answer")
	hint := lipgloss.NewStyle().Foreground(colorMuted).Render("Type the answer in the input bar and press Enter.")
	return questionBoxStyle.Width(boxWidth).Render(title+"\n\n  "+b.Text+"\n\n"+hint) + "\n"
}

// formatDuration は表示用の時間フォーマットを返す (例: "12s", "1m23s")。
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) - m*60
	return fmt.Sprintf("%dm%ds", m, s)
}

// renderBlocks は全ての DisplayBlock をビューポート用コンテンツにレンダリングする。
// spinnerFrame は結果待ちのツールブロックに表示するスピナーの現在フレーム。
func renderBlocks(blocks []*DisplayBlock, width int, expanded bool, spinnerFrame string) string {
	var sb strings.Builder
	for _, b := range blocks {
		switch b.Type {
		case BlockUser:
			sb.WriteString(renderUserBlock(b))
		case BlockThought:
			sb.WriteString(renderThoughtBlock(b))
		case BlockPlan:
			sb.WriteString(renderPlanBlock(b, width))
		case BlockTool:
			sb.WriteString(renderToolBlock(b, expanded, spinnerFrame))
		case BlockError:
			sb.WriteString(renderErrorBlock(b))
		case BlockSystem:
			sb.WriteString(renderSystemBlock(b))
		case BlockQuestion:
			sb.WriteString(renderQuestionBlock(b, width))
		}
	}
	return sb.String()
}

// renderTree はファイルツリーを1行1ノードで描画する。
// flash に載っている（最近変更された）パスは強調表示する。
func renderTree(root *schema.FileTreeNode, err error, width int, flash map[string]time.Time, now time.Time) string {
	if err != nil {
		return stateFailedStyle.Render(truncateVisual("error: "+err.Error(), width))
	}
	if root == nil {
		return lipgloss.NewStyle().Foreground(colorMuted).Render("(no project)")
	}

	var sb strings.Builder
	root.Walk(func(n *schema.FileTreeNode, depth int) bool {
		name := n.Name
		if n.IsDir() {
			name += "/"
		}
		line := strings.TrimRight(truncateVisual(strings.Repeat("  ", depth)+name, width), " ")

		rel, relErr := filepath.Rel(root.Path, n.Path)
		until, flashed := flash[filepath.ToSlash(rel)]
		switch {
		case relErr == nil && flashed && now.Before(until):
			sb.WriteString(treeFlashStyle.Render(line))
		case n.IsDir():
			sb.WriteString(treeDirStyle.Render(line))
		default:
			sb.WriteString(line)
		}
		sb.WriteString("\n")
		return true
	})
	return strings.TrimRight(sb.String(), "\n")
}

// renderTerminal は直近のターミナルレコードを1件1行で描画する。
func renderTerminal(records []schema.TerminalRecord, width, lines int, spinnerFrame string) string {
	if len(records) == 0 {
		return lipgloss.NewStyle().Foreground(colorMuted).Render("no commands yet")
	}
	if len(records) > lines {
		records = records[len(records)-lines:]
	}
	var sb strings.Builder
	for i, r := range records {
		var icon string
		switch r.Status {
		case schema.TerminalRunning:
			icon = stateActiveStyle.Render(spinnerFrame)
		case schema.TerminalSuccess:
			icon = stateDoneStyle.Render("✓")
		default:
			icon = stateFailedStyle.Render("✗")
		}
		detail := ""
		switch {
		case r.Status == schema.TerminalRunning:
			detail = "running"
		case r.Error != "":
			detail = r.Error
		default:
			detail = fmt.Sprintf("exit %d, %s", r.ExitCode, formatDuration(r.Duration()))
		}
		if out := lastLine(r.Output()); out != "" && r.Status.Settled() {
			detail += " │ " + out
		}
		text := truncateVisual("$ "+r.Command+"  "+detail, max(0, width-2))
		sb.WriteString(icon + " " + terminalCmdStyle.Render(strings.TrimRight(text, " ")))
		if i < len(records)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// truncateVisual returns the first n visual columns of a string.
func truncateVisual(s string, n int) string {
	w := 0
	for i, r := range s {
		rw := runewidth.RuneWidth(r)
		if w+rw > n {
			return s[:i] + strings.Repeat(" ", n-w)
		}
		w += rw
	}
	// String is shorter than n — pad with spaces
	return s + strings.Repeat(" ", n-w)
}

// skipVisual returns everything after the first n visual columns.
func skipVisual(s string, n int) string {
	w := 0
	for i, r := range s {
		if w >= n {
			return s[i:]
		}
		w += runewidth.RuneWidth(r)
	}
	return ""
}
