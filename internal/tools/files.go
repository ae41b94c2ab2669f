package tools

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/0x6d61/codepilot/pkg/schema"
)

// ファイル操作の実体。イベントは出さない（ブラケットは Executor の責務）。
// Orchestrator の読み取り専用クエリからも直接使う。

// ReadFile は root 相対パスのファイルをテキストで読む。
func ReadFile(root, rel string) (string, error) {
	full, err := resolveFor(string(schema.ToolReadFile), root, rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", classify(string(schema.ToolReadFile), rel, err)
	}
	return string(data), nil
}

// WriteFile は親ディレクトリを再帰作成してから content を書き込む。
// 戻り値 existed は書き込み「前」に対象が存在したか（best-effort、
// チェックと書き込みの間に他プロセスが作成した場合は区別できない）。
func WriteFile(root, rel, content string) (existed bool, err error) {
	full, err := resolveFor(string(schema.ToolWriteFile), root, rel)
	if err != nil {
		return false, err
	}
	if info, statErr := os.Stat(full); statErr == nil {
		if info.IsDir() {
			return true, toolErr(string(schema.ToolWriteFile), rel, ErrIO, errors.New("target is a directory"))
		}
		existed = true
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return existed, classify(string(schema.ToolWriteFile), rel, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return existed, classify(string(schema.ToolWriteFile), rel, err)
	}
	return existed, nil
}

// CreateDirectory は rel を再帰的に作成する。既存でもエラーにしない。
func CreateDirectory(root, rel string) error {
	full, err := resolveFor(string(schema.ToolCreateDirectory), root, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return classify(string(schema.ToolCreateDirectory), rel, err)
	}
	return nil
}

// ListFiles はディレクトリ直下のエントリ名を名前順で返す（再帰しない）。
func ListFiles(root, rel string) ([]string, error) {
	if rel == "" {
		rel = "."
	}
	full, err := resolveFor(string(schema.ToolListFiles), root, rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, classify(string(schema.ToolListFiles), rel, err)
	}
	if !info.IsDir() {
		return nil, toolErr(string(schema.ToolListFiles), rel, ErrNotDirectory, nil)
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, classify(string(schema.ToolListFiles), rel, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// DeletePath はファイルまたはディレクトリツリーを削除する。
// プロジェクトルート自体の削除は拒否する。
func DeletePath(root, rel string) error {
	full, err := resolveFor(string(schema.ToolDeletePath), root, rel)
	if err != nil {
		return err
	}
	if filepath.Clean(full) == filepath.Clean(root) {
		return toolErr(string(schema.ToolDeletePath), rel, ErrOutsideRoot, errors.New("refusing to delete project root"))
	}
	if _, err := os.Lstat(full); err != nil {
		return classify(string(schema.ToolDeletePath), rel, err)
	}
	if err := os.RemoveAll(full); err != nil {
		return classify(string(schema.ToolDeletePath), rel, err)
	}
	return nil
}

func resolveFor(tool, root, rel string) (string, error) {
	full, err := Resolve(root, rel)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoRoot):
			return "", toolErr(tool, rel, ErrNoRoot, nil)
		case errors.Is(err, ErrOutsideRoot):
			return "", toolErr(tool, rel, ErrOutsideRoot, nil)
		default:
			return "", toolErr(tool, rel, ErrIO, err)
		}
	}
	return full, nil
}

// classify は OS エラーを ToolError の種別に振り分ける。
func classify(tool, rel string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return toolErr(tool, rel, ErrNotFound, nil)
	case isNotDir(err):
		return toolErr(tool, rel, ErrNotDirectory, err)
	default:
		return toolErr(tool, rel, ErrIO, err)
	}
}

func isNotDir(err error) bool {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return errors.Is(pe.Err, syscall.ENOTDIR)
	}
	return false
}
