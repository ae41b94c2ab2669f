package agent

import "errors"

var (
	// ErrRunInProgress は Run の実行中に次のプロンプトが来たときに返る。
	// このときイベントは1つも出さない。
	ErrRunInProgress = errors.New("agent: a run is already in progress")

	// ErrCancelled は Stop（または呼び出し元の ctx キャンセル）で Run が中断されたことを表す。
	ErrCancelled = errors.New("run cancelled")
)

// planningPrefix は計画失敗時のエラーメッセージの固定プレフィックス。
const planningPrefix = "planning failed: "

// PlanningError は Planner の失敗。
type PlanningError struct {
	Err error
}

func (e *PlanningError) Error() string { return planningPrefix + e.Err.Error() }

func (e *PlanningError) Unwrap() error { return e.Err }
