package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/0x6d61/codepilot/internal/agent"
	"github.com/0x6d61/codepilot/internal/config"
	"github.com/0x6d61/codepilot/internal/planner"
	"github.com/0x6d61/codepilot/internal/tools"
)

// newPlanner は組み込みテンプレートに templates_dir を重ねた Planner を返す。
func newPlanner(c *config.AppConfig) (*planner.TemplatePlanner, error) {
	p, err := planner.New(c.TemplatesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	return p, nil
}

// newOrchestrator は設定から Orchestrator を組み立てる。
func newOrchestrator(c *config.AppConfig, log *zap.Logger) (*agent.Orchestrator, error) {
	p, err := newPlanner(c)
	if err != nil {
		return nil, err
	}
	return agent.New(agent.Config{
		Root:      c.Project,
		Planner:   p,
		Logger:    log,
		ExecDelay: c.ExecDelay.Duration,
		Runner: tools.RunnerConfig{
			Shell:     c.Shell,
			Timeout:   c.CommandTimeout.Duration,
			Blacklist: tools.NewBlacklist(c.Blacklist),
		},
		AskTimeout:      c.AskTimeout.Duration,
		TerminalHistory: c.TerminalHistory,
		Tree:            tools.TreeOptions{Ignore: c.Tree.Ignore, ShowHidden: c.Tree.ShowHidden},
	})
}
