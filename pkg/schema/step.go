package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ToolName は Tool Executor が受け付けるツール名。
type ToolName string

const (
	ToolReadFile        ToolName = "read_file"
	ToolWriteFile       ToolName = "write_file"
	ToolCreateDirectory ToolName = "create_directory"
	ToolListFiles       ToolName = "list_files"
	ToolDeletePath      ToolName = "delete_path"
	ToolRunCommand      ToolName = "run_command"
	ToolAskUser         ToolName = "ask_user"
)

// Tools は既知のツールを定義順で返す。
func Tools() []ToolName {
	return []ToolName{
		ToolReadFile, ToolWriteFile, ToolCreateDirectory, ToolListFiles,
		ToolDeletePath, ToolRunCommand, ToolAskUser,
	}
}

// JSONSchema は tool プロパティのスキーマ。enum は Tools() から作る。
func (ToolName) JSONSchema() *jsonschema.Schema {
	tools := Tools()
	enum := make([]any, 0, len(tools))
	for _, t := range tools {
		enum = append(enum, string(t))
	}
	return &jsonschema.Schema{
		Type:        "string",
		Enum:        enum,
		Description: "tool to invoke",
	}
}

// Step は計画の1手順。Tool ごとに使うフィールドが異なる:
//
//	read_file / create_directory / list_files / delete_path : Path
//	write_file  : Path, Content
//	run_command : Command
//	ask_user    : Question
type Step struct {
	Tool     ToolName `json:"tool" yaml:"tool" jsonschema:"required"`
	Path     string   `json:"path,omitempty" yaml:"path,omitempty" jsonschema:"description=project-root relative path"`
	Content  string   `json:"content,omitempty" yaml:"content,omitempty" jsonschema:"description=file content for write_file"`
	Command  string   `json:"command,omitempty" yaml:"command,omitempty" jsonschema:"description=shell command for run_command"`
	Question string   `json:"question,omitempty" yaml:"question,omitempty" jsonschema:"description=question for ask_user"`
}

// Validate は Step が Tool に必要なフィールドを持つか検査する。
func (s Step) Validate() error {
	switch s.Tool {
	case ToolReadFile, ToolCreateDirectory, ToolDeletePath:
		if s.Path == "" {
			return fmt.Errorf("step %s: path is required", s.Tool)
		}
	case ToolWriteFile:
		if s.Path == "" {
			return fmt.Errorf("step %s: path is required", s.Tool)
		}
	case ToolListFiles:
		// path 省略時は "."
	case ToolRunCommand:
		if s.Command == "" {
			return fmt.Errorf("step %s: command is required", s.Tool)
		}
	case ToolAskUser:
		if s.Question == "" {
			return fmt.Errorf("step %s: question is required", s.Tool)
		}
	default:
		return fmt.Errorf("step: unknown tool %q", s.Tool)
	}
	return nil
}

// Plan は Planner の出力。Text は人間向けの計画、Steps は実行フェーズが
// 順番に Tool Executor へ渡す構造化手順。
type Plan struct {
	Name  string `json:"name"`
	Text  string `json:"text"`
	Steps []Step `json:"steps,omitempty"`
}

// StepJSONSchema は Step リストの JSON Schema を返す。
// 外部の Planner 実装が出力形式を合わせるために使う。
func StepJSONSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(&Plan{})
	s.Title = "codepilot plan"
	return json.MarshalIndent(s, "", "  ")
}
