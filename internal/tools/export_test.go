package tools

import "time"

// QuoteForTest は quote をテストから呼べるようにエクスポートする。
func QuoteForTest(s string) string { return quote(s) }

// SetClockForTest は TerminalTracker の時計を差し替える。
func (t *TerminalTracker) SetClockForTest(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}
