package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/0x6d61/codepilot/internal/tools"
	"github.com/0x6d61/codepilot/pkg/schema"
)

var treeJSON bool

// treeCmd prints the project file tree
var treeCmd = &cobra.Command{
	Use:   "tree [path]",
	Short: "Print the project file tree",
	Long: `Prints the file tree of PATH, or of the project directory when PATH is omitted.
Hidden entries and the configured ignore names are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTree,
}

func runTree(cmd *cobra.Command, args []string) error {
	path := cfg.Project
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		path = "."
	}

	root, err := tools.BuildFileTree(path, tools.TreeOptions{Ignore: cfg.Tree.Ignore, ShowHidden: cfg.Tree.ShowHidden})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if treeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(root)
	}
	printTree(out, root)
	return nil
}

// printTree は tree(1) 風に罫線付きで出力する。
func printTree(w io.Writer, root *schema.FileTreeNode) {
	fmt.Fprintln(w, root.Path)
	printChildren(w, root.Children, "")
	files, dirs := root.Count()
	fmt.Fprintf(w, "\n%d directories, %d files\n", dirs-1, files)
}

func printChildren(w io.Writer, nodes []*schema.FileTreeNode, indent string) {
	for i, n := range nodes {
		branch, next := "├── ", "│   "
		if i == len(nodes)-1 {
			branch, next = "└── ", "    "
		}
		name := n.Name
		if n.IsDir() {
			name += "/"
		}
		fmt.Fprintln(w, indent+branch+name)
		if len(n.Children) > 0 {
			printChildren(w, n.Children, indent+next)
		}
	}
}
