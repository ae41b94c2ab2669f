// Package schema defines the shared types exchanged between the orchestration
// core and its observers (TUI, headless CLI, external planners).
package schema

import "time"

// EventKind は AgentEvent の種別。閉じた集合で、自由文字列は許さない。
type EventKind string

const (
	// KindUser はユーザーが入力したプロンプトのエコー。
	KindUser EventKind = "user"
	// KindThought はエージェントの思考・進捗メッセージ。
	KindThought EventKind = "thought"
	// KindPlan は Planner が生成した計画テキスト。
	KindPlan EventKind = "plan"
	// KindAction はツール呼び出しの直前に送られる。
	KindAction EventKind = "action"
	// KindResult はツール呼び出しの完了（成功・失敗）を表す。
	KindResult EventKind = "result"
	// KindError は Run を終わらせたエラー。
	KindError EventKind = "error"
)

// Valid は k が既知の種別かを返す。
func (k EventKind) Valid() bool {
	switch k {
	case KindUser, KindThought, KindPlan, KindAction, KindResult, KindError:
		return true
	}
	return false
}

// Label は表示用の固定幅ラベルを返す。
func (k EventKind) Label() string {
	switch k {
	case KindUser:
		return "USER"
	case KindThought:
		return "AI  "
	case KindPlan:
		return "PLAN"
	case KindAction:
		return "TOOL"
	case KindResult:
		return "RSLT"
	case KindError:
		return "ERR "
	default:
		return "????"
	}
}

// Event はイベントストリームに追加される不変のレコード。
//
// Seq はストリーム内の位置で 1 から単調増加する。順序の判断には Seq を使い、
// Timestamp は表示専用。
type Event struct {
	Seq       uint64    `json:"seq"`
	RunID     string    `json:"run_id,omitempty"`
	Kind      EventKind `json:"kind"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChangeKind はファイル変更通知の種別。
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeModify ChangeKind = "modify"
	ChangeDelete ChangeKind = "delete"
)

// FileChange はツール呼び出しが成功したときに1件だけ送られる変更通知。
// Path はツールに渡されたプロジェクトルート相対パス。
type FileChange struct {
	Kind ChangeKind `json:"kind"`
	Path string     `json:"path"`
}

// Question は askUser が人間に投げる質問。ID で回答と対応付ける。
type Question struct {
	ID      string    `json:"id"`
	Text    string    `json:"text"`
	AskedAt time.Time `json:"asked_at"`
}
