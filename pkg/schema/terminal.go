package schema

import "time"

// TerminalStatus は外部コマンド1回分の状態。
type TerminalStatus string

const (
	TerminalRunning TerminalStatus = "running"
	TerminalSuccess TerminalStatus = "success"
	TerminalError   TerminalStatus = "error"
)

// Settled は status が確定済み（running 以外）かを返す。
func (s TerminalStatus) Settled() bool {
	return s == TerminalSuccess || s == TerminalError
}

// TerminalRecord は外部コマンド1回の実行ライフサイクル。
// running のレコードは完了時にその場で success/error に遷移し、複製されない。
type TerminalRecord struct {
	ID         string         `json:"id"`
	Command    string         `json:"command"`
	Status     TerminalStatus `json:"status"`
	Stdout     string         `json:"stdout,omitempty"`
	Stderr     string         `json:"stderr,omitempty"`
	Error      string         `json:"error,omitempty"`
	ExitCode   int            `json:"exit_code"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
}

// Output は stdout と stderr を連結した表示用テキストを返す。
func (r TerminalRecord) Output() string {
	switch {
	case r.Stdout == "":
		return r.Stderr
	case r.Stderr == "":
		return r.Stdout
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}

// Duration は実行時間を返す。実行中なら 0。
func (r TerminalRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
