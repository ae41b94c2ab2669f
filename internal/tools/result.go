// Package tools は Tool Executor と、その下で動くファイル操作・コマンド実行・
// ユーザー問い合わせ・ファイルツリー構築を提供する。
package tools

import (
	"strings"
	"time"
)

// OutputLine はコマンド出力の1行を表す。
type OutputLine struct {
	Time    time.Time
	Content string
	IsError bool // stderr の場合 true
}

// CommandResult はシェルコマンド1回分の実行結果。
type CommandResult struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int

	StartedAt  time.Time
	FinishedAt time.Time
}

// Lines は stdout/stderr を結合した行リストを返す（Truncate 用）。
func (r *CommandResult) Lines() []string {
	var lines []string
	for _, s := range []string{r.Stdout, r.Stderr} {
		s = strings.TrimRight(s, "\n")
		if s == "" {
			continue
		}
		lines = append(lines, strings.Split(s, "\n")...)
	}
	return lines
}
