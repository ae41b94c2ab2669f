// Package config は codepilot の設定ファイル（YAML）と環境変数を読み込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/0x6d61/codepilot/internal/tools"
)

// DefaultPath は --config 未指定時に読む設定ファイル。
const DefaultPath = "codepilot.yaml"

// 環境変数によるオーバーライド。
const (
	EnvProject  = "CODEPILOT_PROJECT"
	EnvLogLevel = "CODEPILOT_LOG_LEVEL"
)

const (
	defaultExecDelay = 500 * time.Millisecond
	defaultLogLevel  = "info"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Duration は "30s" や "5m" 形式の YAML 値。Set は値が書かれていたかを表す。
type Duration struct {
	time.Duration
	Set bool
}

// UnmarshalYAML は time.ParseDuration で解釈する。
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string", node.Line)
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, s)
	}
	if v < 0 {
		return fmt.Errorf("line %d: negative duration %q", node.Line, s)
	}
	d.Duration = v
	d.Set = true
	return nil
}

// TreeConfig はファイルツリーの表示設定。
type TreeConfig struct {
	Ignore     []string `yaml:"ignore"`
	ShowHidden bool     `yaml:"show_hidden"`
}

// LogConfig はログ出力の設定。File が空ならヘッドレスコマンドは stderr に出す。
type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// AppConfig は codepilot.yaml の統合設定構造
type AppConfig struct {
	Project         string     `yaml:"project"`
	Shell           []string   `yaml:"shell"`
	CommandTimeout  Duration   `yaml:"command_timeout"`
	AskTimeout      Duration   `yaml:"ask_timeout"`
	ExecDelay       Duration   `yaml:"exec_delay"`
	Blacklist       []string   `yaml:"blacklist"`
	Tree            TreeConfig `yaml:"tree"`
	TemplatesDir    string     `yaml:"templates_dir"`
	TerminalHistory int        `yaml:"terminal_history"`
	Log             LogConfig  `yaml:"log"`
}

// Default はファイルが無いときの設定を返す。
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults はゼロ値のフィールドにデフォルト値を適用する
func (c *AppConfig) applyDefaults() {
	if !c.CommandTimeout.Set {
		c.CommandTimeout = Duration{Duration: tools.DefaultCommandTimeout}
	}
	if !c.AskTimeout.Set {
		c.AskTimeout = Duration{Duration: tools.DefaultAskTimeout}
	}
	if !c.ExecDelay.Set {
		c.ExecDelay = Duration{Duration: defaultExecDelay}
	}
	if c.Blacklist == nil {
		c.Blacklist = append([]string(nil), tools.DefaultBlacklistPatterns...)
	}
	if c.Tree.Ignore == nil {
		c.Tree.Ignore = append([]string(nil), tools.DefaultTreeIgnore...)
	}
	if c.TerminalHistory == 0 {
		c.TerminalHistory = tools.DefaultTerminalHistory
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}

// validate は値の整合性を検査する。
func (c *AppConfig) validate() error {
	if c.TerminalHistory < 0 {
		return fmt.Errorf("terminal_history must not be negative")
	}
	if c.CommandTimeout.Set && c.CommandTimeout.Duration == 0 {
		return fmt.Errorf("command_timeout must be positive")
	}
	if c.AskTimeout.Set && c.AskTimeout.Duration == 0 {
		return fmt.Errorf("ask_timeout must be positive")
	}
	if len(c.Shell) == 1 {
		return fmt.Errorf("shell needs the program and its command flag (e.g. [/bin/sh, -c])")
	}
	return nil
}

// Load は path の設定を読み込む。
//
// 読み込み順:
//  1. カレントディレクトリの .env（無ければ無視、既存の環境変数は上書きしない）
//  2. path の YAML（存在しなければデフォルト）
//  3. ${VAR} の展開（project / templates_dir / log.file）
//  4. CODEPILOT_PROJECT / CODEPILOT_LOG_LEVEL による上書き
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to load .env: %w", err)
	}

	var cfg AppConfig
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// デフォルトのまま
	default:
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg.Project = expandEnvString(cfg.Project)
	cfg.TemplatesDir = expandEnvString(cfg.TemplatesDir)
	cfg.Log.File = expandEnvString(cfg.Log.File)

	if v := os.Getenv(EnvProject); v != "" {
		cfg.Project = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// expandEnvString は文字列内の ${VAR} をホスト環境変数で展開する
func expandEnvString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}
