package tools

import (
	"errors"
	"fmt"
	"time"
)

// ツール失敗の種別。ToolError がいずれかをラップする。
var (
	ErrNotFound     = errors.New("path not found")
	ErrIO           = errors.New("i/o error")
	ErrNotDirectory = errors.New("not a directory")
	ErrExitStatus   = errors.New("non-zero exit status")
	ErrSpawn        = errors.New("process spawn failed")
	ErrBlocked      = errors.New("command blocked by blacklist")
	ErrOutsideRoot  = errors.New("path escapes project root")
	ErrNoRoot       = errors.New("project root is not set")

	// ErrUnknownQuestion は回答先の質問が存在しない（回答済み・タイムアウト済み）ときに返る。
	ErrUnknownQuestion = errors.New("no pending question")
)

// ToolError はツール呼び出しの失敗。Kind は上のセンチネルのいずれか。
type ToolError struct {
	Tool string
	Path string // パスや コマンド文字列（あれば）
	Kind error
	Err  error // 原因（OS エラー等）。nil 可
}

func (e *ToolError) Error() string {
	msg := e.Tool + ": " + e.Kind.Error()
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s %q", e.Tool, e.Kind.Error(), e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is は errors.Is(err, ErrNotFound) のような種別判定を可能にする。
func (e *ToolError) Is(target error) bool { return target == e.Kind }

func (e *ToolError) Unwrap() error { return e.Err }

func toolErr(tool, path string, kind, cause error) *ToolError {
	return &ToolError{Tool: tool, Path: path, Kind: kind, Err: cause}
}

// TimeoutError は上限時間を超えた待機。
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Op, e.After)
}
