package schema

// NodeKind はファイルツリーのノード種別。
type NodeKind string

const (
	NodeFile      NodeKind = "file"
	NodeDirectory NodeKind = "directory"
)

// FileTreeNode はプロジェクトディレクトリの読み取り専用スナップショット。
// 毎回まるごと作り直し、差分パッチはしない。
type FileTreeNode struct {
	Name     string          `json:"name"`
	Path     string          `json:"path"`
	Kind     NodeKind        `json:"kind"`
	Size     int64           `json:"size,omitempty"`
	Children []*FileTreeNode `json:"children,omitempty"`
}

// IsDir は n がディレクトリかを返す。
func (n *FileTreeNode) IsDir() bool { return n.Kind == NodeDirectory }

// Walk は深さ優先で全ノードを訪問する。fn が false を返すと子孫をスキップする。
func (n *FileTreeNode) Walk(fn func(node *FileTreeNode, depth int) bool) {
	n.walk(fn, 0)
}

func (n *FileTreeNode) walk(fn func(*FileTreeNode, int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// Count はファイル数とディレクトリ数（自身を含む）を返す。
func (n *FileTreeNode) Count() (files, dirs int) {
	n.Walk(func(node *FileTreeNode, _ int) bool {
		if node.IsDir() {
			dirs++
		} else {
			files++
		}
		return true
	})
	return files, dirs
}
