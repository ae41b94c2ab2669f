package tools_test

import (
	"testing"

	"github.com/0x6d61/codepilot/internal/tools"
)

func TestBlacklist_Match_BlocksDangerousCommands(t *testing.T) {
	bl := tools.NewBlacklist(tools.DefaultBlacklistPatterns)

	cases := []struct {
		command string
		blocked bool
	}{
		{"rm -rf /", true},
		{"rm -rf / --no-preserve-root", true},
		{"rm -rf /tmp/test", false},
		{"dd if=/dev/zero of=/dev/sda", true},
		{"mkfs.ext4 /dev/sdb", true},
		{"shutdown -h now", true},
		{"npm install", false},
		{"go test ./...", false},
		{"echo hi", false},
	}

	for _, c := range cases {
		_, got := bl.Match(c.command)
		if got != c.blocked {
			t.Errorf("Match(%q): got %v, want %v", c.command, got, c.blocked)
		}
	}
}

func TestBlacklist_Match_ReturnsPattern(t *testing.T) {
	bl := tools.NewBlacklist([]string{`mkfs`})
	pat, ok := bl.Match("mkfs.ext4 /dev/sdb")
	if !ok || pat != "mkfs" {
		t.Errorf("Match() = (%q, %v), want (\"mkfs\", true)", pat, ok)
	}
}

func TestBlacklist_EmptyPatterns_NeverBlocks(t *testing.T) {
	bl := tools.NewBlacklist(nil)
	if _, ok := bl.Match("rm -rf /"); ok {
		t.Error("empty blacklist should not block anything")
	}
}

func TestBlacklist_InvalidPatternSkipped(t *testing.T) {
	bl := tools.NewBlacklist([]string{`(`, `valid`})
	if bl.Len() != 1 {
		t.Errorf("expected 1 valid pattern, got %d", bl.Len())
	}
}
