// Package planner は自然言語のプロンプトから実行計画を作る。
//
// Planner は差し替え可能な戦略で、Orchestrator はインターフェース越しにしか使わない。
// 同じプロンプトには常に同じ計画を返す（純粋・決定的）こと。
package planner

import (
	"errors"

	"github.com/0x6d61/codepilot/pkg/schema"
)

// ErrNoTemplate はどのテンプレートにも一致せず、フォールバックも無いときに返る。
var ErrNoTemplate = errors.New("planner: no template matches the prompt")

// Planner はプロンプトを計画に変換する。
type Planner interface {
	Generate(prompt string) (*schema.Plan, error)
}

// FuncPlanner は関数を Planner として使うアダプタ。
type FuncPlanner func(prompt string) (*schema.Plan, error)

// Generate は f(prompt) を返す。
func (f FuncPlanner) Generate(prompt string) (*schema.Plan, error) { return f(prompt) }
