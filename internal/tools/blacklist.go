package tools

import "regexp"

// DefaultBlacklistPatterns は設定が無いときに使う危険コマンドのパターン。
var DefaultBlacklistPatterns = []string{
	`rm\s+-rf\s+/(\s|$)`,
	`dd\s+if=`,
	`mkfs`,
	`\bshutdown\b`,
	`\breboot\b`,
	`:\(\)\s*\{\s*:\|:&\s*\};:`,
}

// Blacklist は run_command で実行を拒否するコマンドのパターンを保持する。
type Blacklist struct {
	patterns []*regexp.Regexp
}

// NewBlacklist は patterns をコンパイルして Blacklist を返す。
// 不正な正規表現はパニックではなくスキップする。
func NewBlacklist(patterns []string) *Blacklist {
	bl := &Blacklist{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue // 不正なパターンは無視
		}
		bl.patterns = append(bl.patterns, re)
	}
	return bl
}

// Match は command に一致した最初のパターンを返す。
func (b *Blacklist) Match(command string) (string, bool) {
	for _, re := range b.patterns {
		if re.MatchString(command) {
			return re.String(), true
		}
	}
	return "", false
}

// Len は有効なパターン数を返す。
func (b *Blacklist) Len() int { return len(b.patterns) }
