package tools

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/0x6d61/codepilot/pkg/schema"
)

// DefaultTreeIgnore はファイルツリーから除外する依存キャッシュ等のディレクトリ名。
var DefaultTreeIgnore = []string{"node_modules"}

// TreeOptions は BuildFileTree の設定。
type TreeOptions struct {
	Ignore     []string // 名前で除外するエントリ（nil なら DefaultTreeIgnore）
	ShowHidden bool     // true ならドットで始まるエントリも含める
}

// BuildFileTree は path 以下を再帰的に stat してスナップショットを作る。
//
// シンボリックリンクは辿るが、EvalSymlinks で正規化したディレクトリの
// 訪問済み集合を持ち、2回目以降は子を展開しない（リンクの循環で無限再帰しない）。
// 辿れないエントリ（壊れたリンク等）は黙って除外する。
func BuildFileTree(path string, opts TreeOptions) (*schema.FileTreeNode, error) {
	ignore := opts.Ignore
	if ignore == nil {
		ignore = DefaultTreeIgnore
	}
	b := &treeBuilder{
		ignore:     make(map[string]bool, len(ignore)),
		showHidden: opts.ShowHidden,
		visited:    make(map[string]bool),
	}
	for _, name := range ignore {
		b.ignore[name] = true
	}

	node, err := b.build(path)
	if err != nil {
		return nil, classify("build_file_tree", path, err)
	}
	return node, nil
}

type treeBuilder struct {
	ignore     map[string]bool
	showHidden bool
	visited    map[string]bool
}

func (b *treeBuilder) build(path string) (*schema.FileTreeNode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	node := &schema.FileTreeNode{
		Name: filepath.Base(path),
		Path: path,
	}
	if !info.IsDir() {
		node.Kind = schema.NodeFile
		node.Size = info.Size()
		return node, nil
	}
	node.Kind = schema.NodeDirectory

	canon, err := filepath.EvalSymlinks(path)
	if err != nil {
		canon = path
	}
	canon = filepath.Clean(canon)
	if b.visited[canon] {
		return node, nil
	}
	b.visited[canon] = true

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		name := e.Name()
		if b.skip(name) {
			continue
		}
		child, err := b.build(filepath.Join(path, name))
		if err != nil {
			continue
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

func (b *treeBuilder) skip(name string) bool {
	if !b.showHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return b.ignore[name]
}
