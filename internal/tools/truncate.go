package tools

import (
	"fmt"
	"strings"
)

// TruncateConfig は出力の切り捨て設定を保持する。
// 先頭 HeadLines 行と末尾 TailLines 行を残し、中間を省略する。
type TruncateConfig struct {
	HeadLines int
	TailLines int
}

// DefaultTruncateConfig は Result イベントに載せる出力の既定値。
// 全文は TerminalRecord 側に残る。
var DefaultTruncateConfig = TruncateConfig{
	HeadLines: 20,
	TailLines: 10,
}

// Truncate は lines に先頭+末尾の切り捨てを適用した文字列を返す。
// 合計行数が HeadLines+TailLines 以下なら全行を返す。
func Truncate(lines []string, cfg TruncateConfig) string {
	total := len(lines)
	if total == 0 {
		return ""
	}
	head, tail := cfg.HeadLines, cfg.TailLines
	if head < 0 {
		head = 0
	}
	if tail < 0 {
		tail = 0
	}
	if head+tail >= total {
		return strings.Join(lines, "\n")
	}

	omitted := total - head - tail
	var sb strings.Builder

	for _, l := range lines[:head] {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	sb.WriteString(fmt.Sprintf("--- %d lines omitted ---\n", omitted))
	for i, l := range lines[total-tail:] {
		sb.WriteString(l)
		if i < tail-1 {
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

// TruncateText は複数行テキストに Truncate を適用する。
func TruncateText(text string, cfg TruncateConfig) string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return ""
	}
	return Truncate(strings.Split(text, "\n"), cfg)
}
