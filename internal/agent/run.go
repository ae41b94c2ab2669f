package agent

import (
	"time"

	"github.com/0x6d61/codepilot/pkg/schema"
)

// State represents the lifecycle state of a Run.
type State string

const (
	StateIdle      State = "IDLE"
	StatePlanning  State = "PLANNING"
	StateExecuting State = "EXECUTING"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
)

// Icon returns the single-character icon used in the TUI status bar.
func (s State) Icon() string {
	switch s {
	case StateIdle:
		return "○"
	case StatePlanning:
		return "◎"
	case StateExecuting:
		return "▶"
	case StateDone:
		return "✓"
	case StateFailed:
		return "✗"
	default:
		return "?"
	}
}

// Settled reports whether s is a terminal state.
func (s State) Settled() bool { return s == StateDone || s == StateFailed }

// Run is the lifecycle of one ProcessPrompt call.
// Values handed out by the Orchestrator are snapshots; mutating them has no effect.
type Run struct {
	ID     string
	Prompt string
	// Root is the project root snapshotted when the Run started.
	Root       string
	State      State
	Plan       *schema.Plan
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Duration returns how long the Run took, or has taken so far.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
