package tools

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ValidateRoot は path を絶対パスに正規化し、ディレクトリであることを確認する。
func ValidateRoot(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrNoRoot
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("tools: resolve root %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", toolErr("set_project", abs, ErrNotFound, nil)
		}
		return "", toolErr("set_project", abs, ErrIO, err)
	}
	if !info.IsDir() {
		return "", toolErr("set_project", abs, ErrNotDirectory, nil)
	}
	return abs, nil
}

// Resolve は root 相対パス rel を絶対パスに解決する。
//
// セキュリティ:
//   - 絶対パスは拒否（ルート外への書き込み防止）
//   - Clean 後に root の外を指すパス（../ 等）は拒否
//   - シンボリックリンクを辿った実体が root の外にあるパスも拒否
//
// 戻り値はリンクを解決していない root 配下のパス。
func Resolve(root, rel string) (string, error) {
	if root == "" {
		return "", ErrNoRoot
	}
	if rel == "" {
		rel = "."
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, `\`) || filepath.VolumeName(rel) != "" {
		return "", ErrOutsideRoot
	}
	full := filepath.Join(root, rel)
	r, err := filepath.Rel(root, full)
	if err != nil || !within(r) {
		return "", ErrOutsideRoot
	}

	realRoot, err := resolveExistingPrefix(root)
	if err != nil {
		return "", fmt.Errorf("tools: resolve root %q: %w", root, err)
	}
	realFull, err := resolveExistingPrefix(full)
	if err != nil {
		return "", fmt.Errorf("tools: resolve %q: %w", rel, err)
	}
	r, err = filepath.Rel(realRoot, realFull)
	if err != nil || !within(r) {
		return "", ErrOutsideRoot
	}
	return full, nil
}

// within は filepath.Rel の結果が基準ディレクトリの内側かを返す。
func within(rel string) bool {
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// maxLinkHops は壊れたリンクを手で辿るときの上限。
const maxLinkHops = 40

// resolveExistingPrefix は path のうち存在する最長の先頭部分を EvalSymlinks で
// 実体に置き換え、残り（まだ存在しない部分）をそのまま連結して返す。
// 先頭部分がリンク先の無いシンボリックリンクなら、リンク先を辿って解決する。
func resolveExistingPrefix(path string) (string, error) {
	for hops := 0; hops < maxLinkHops; hops++ {
		next, done, err := resolveStep(path)
		if err != nil || done {
			return next, err
		}
		path = next
	}
	return "", fmt.Errorf("tools: too many symlinks resolving %q", path)
}

// resolveStep は resolveExistingPrefix の1段分。done=false なら next を
// もう一度解決する必要がある。
func resolveStep(path string) (next string, done bool, err error) {
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			rest, err := filepath.Rel(current, path)
			if err != nil {
				return "", true, err
			}
			return filepath.Clean(filepath.Join(resolved, rest)), true, nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !isNotDir(err) {
			return "", true, err
		}
		if info, lerr := os.Lstat(current); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(current)
			if err != nil {
				return "", true, err
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(current), target)
			}
			rest, err := filepath.Rel(current, path)
			if err != nil {
				return "", true, err
			}
			return filepath.Join(target, rest), false, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return filepath.Clean(path), true, nil
		}
		current = parent
	}
}
