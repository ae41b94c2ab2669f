package planner

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/0x6d61/codepilot/pkg/schema"
)

// テンプレートは Markdown + YAML frontmatter 形式で定義する:
//
//	---
//	name: html
//	description: 静的 HTML ページ
//	keywords: [html]
//	priority: 10
//	steps:
//	  - tool: write_file
//	    path: index.html
//	    content: ...
//	---
//
//	Plano:
//	1. Criar arquivo index.html
//
// 本文がそのまま計画テキストになる。

//go:embed templates/*.md
var defaultTemplates embed.FS

// Template はキーワードで選ばれる計画テンプレート。
type Template struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Keywords    []string      `yaml:"keywords"`
	Priority    int           `yaml:"priority"`
	Fallback    bool          `yaml:"fallback"`
	Steps       []schema.Step `yaml:"steps"`
	// Text は frontmatter の後の Markdown 本文（計画テキスト）。
	Text string `yaml:"-"`
}

// Matches は小文字化した prompt がキーワードのいずれかを含むかを返す。
func (t *Template) Matches(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, kw := range t.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Plan はテンプレートから計画を作る。Steps はコピーする。
func (t *Template) Plan() *schema.Plan {
	steps := make([]schema.Step, len(t.Steps))
	copy(steps, t.Steps)
	return &schema.Plan{Name: t.Name, Text: t.Text, Steps: steps}
}

// ParseTemplate は Markdown + frontmatter を Template にする。
func ParseTemplate(data []byte) (*Template, error) {
	front, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, err
	}
	var t Template
	if err := yaml.Unmarshal(front, &t); err != nil {
		return nil, fmt.Errorf("planner: parse front matter: %w", err)
	}
	if t.Name == "" {
		return nil, fmt.Errorf("planner: template name is required")
	}
	if len(t.Keywords) == 0 && !t.Fallback {
		return nil, fmt.Errorf("planner: template %q needs keywords or fallback", t.Name)
	}
	for i, s := range t.Steps {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("planner: template %q step %d: %w", t.Name, i+1, err)
		}
	}
	t.Text = strings.TrimSpace(string(body))
	if t.Text == "" {
		return nil, fmt.Errorf("planner: template %q has empty plan text", t.Name)
	}
	return &t, nil
}

// splitFrontMatter は先頭の --- 行と次の --- 行で囲まれた YAML を分離する。
// 本文や step の content に含まれる "---" では切らない。
func splitFrontMatter(data []byte) (front, body []byte, err error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(data, []byte("---\n")) {
		return nil, nil, fmt.Errorf("planner: missing front matter")
	}
	rest := data[len("---\n"):]
	if bytes.HasPrefix(rest, []byte("---\n")) {
		return nil, rest[len("---\n"):], nil
	}
	end := bytes.Index(rest, []byte("\n---\n"))
	if end < 0 {
		if bytes.HasSuffix(rest, []byte("\n---")) {
			return rest[:len(rest)-len("\n---")], nil, nil
		}
		return nil, nil, fmt.Errorf("planner: unterminated front matter")
	}
	return rest[:end+1], rest[end+len("\n---\n"):], nil
}

// TemplatePlanner はキーワード一致でテンプレートを選ぶ Planner。
//
// 一致するテンプレートが複数あれば priority の高い順、同じなら名前順で最初のものを使う。
// どれにも一致しなければ fallback テンプレートを使う。
type TemplatePlanner struct {
	byName map[string]*Template
	order  []*Template // priority 降順 → name 昇順
}

// NewTemplatePlanner は templates から TemplatePlanner を作る。同名は後勝ち。
func NewTemplatePlanner(templates ...*Template) *TemplatePlanner {
	p := &TemplatePlanner{byName: make(map[string]*Template)}
	for _, t := range templates {
		p.add(t)
	}
	return p
}

// Default は組み込みテンプレート（react, html, generic）を持つ TemplatePlanner を返す。
func Default() *TemplatePlanner {
	p := NewTemplatePlanner()
	if err := p.loadFS(defaultTemplates, "templates"); err != nil {
		// 組み込みテンプレートはビルド時に固定されている
		panic(err)
	}
	return p
}

// New は組み込みテンプレートに dir のテンプレートを重ねた TemplatePlanner を返す。
// dir が空文字列なら組み込みのみ。
func New(dir string) (*TemplatePlanner, error) {
	p := Default()
	if dir == "" {
		return p, nil
	}
	if err := p.LoadDir(dir); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadDir は dir 以下の *.md をロードする。同名の既存テンプレートは置き換える。
// ディレクトリが存在しなくてもエラーにはしない。壊れたテンプレートはエラーにする。
func (p *TemplatePlanner) LoadDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return p.loadFS(os.DirFS(dir), ".")
}

func (p *TemplatePlanner) loadFS(fsys fs.FS, root string) error {
	return fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		t, err := ParseTemplate(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		p.add(t)
		return nil
	})
}

func (p *TemplatePlanner) add(t *Template) {
	p.byName[t.Name] = t
	p.order = p.order[:0]
	for _, v := range p.byName {
		p.order = append(p.order, v)
	}
	sort.Slice(p.order, func(i, j int) bool {
		if p.order[i].Priority != p.order[j].Priority {
			return p.order[i].Priority > p.order[j].Priority
		}
		return p.order[i].Name < p.order[j].Name
	})
}

// Get はテンプレート名で検索する。
func (p *TemplatePlanner) Get(name string) (*Template, bool) {
	t, ok := p.byName[name]
	return t, ok
}

// Templates は選択順でテンプレートを返す。
func (p *TemplatePlanner) Templates() []*Template {
	return append([]*Template(nil), p.order...)
}

// Select は prompt に使うテンプレートを返す。
func (p *TemplatePlanner) Select(prompt string) (*Template, error) {
	for _, t := range p.order {
		if t.Matches(prompt) {
			return t, nil
		}
	}
	for _, t := range p.order {
		if t.Fallback {
			return t, nil
		}
	}
	return nil, ErrNoTemplate
}

// Generate は prompt に一致したテンプレートの計画を返す。
func (p *TemplatePlanner) Generate(prompt string) (*schema.Plan, error) {
	t, err := p.Select(prompt)
	if err != nil {
		return nil, err
	}
	return t.Plan(), nil
}
