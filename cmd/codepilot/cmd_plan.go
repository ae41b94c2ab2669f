package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/0x6d61/codepilot/internal/planner"
)

var (
	planSteps bool
	planList  bool
)

// planCmd prints the plan for a prompt without executing it
var planCmd = &cobra.Command{
	Use:   "plan [prompt]",
	Short: "Show the plan a prompt would produce, without executing it",
	Args: func(cmd *cobra.Command, args []string) error {
		if planList || len(args) > 0 {
			return nil
		}
		return errors.New("requires a prompt (or --list)")
	},
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	p, err := newPlanner(cfg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if planList {
		return printTemplates(out, p.Templates())
	}

	plan, err := p.Generate(strings.Join(args, " "))
	if err != nil {
		return err
	}
	if !planSteps {
		fmt.Fprintln(out, plan.Text)
		return nil
	}
	data, err := yaml.Marshal(plan.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}
	fmt.Fprintf(out, "# template: %s\n%s", plan.Name, data)
	return nil
}

// printTemplates はテンプレートを選択順に一覧表示する。
func printTemplates(w io.Writer, templates []*planner.Template) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKEYWORDS\tPRIORITY\tDESCRIPTION")
	for _, t := range templates {
		keywords := strings.Join(t.Keywords, ",")
		if t.Fallback {
			keywords = "(fallback)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", t.Name, keywords, t.Priority, t.Description)
	}
	return tw.Flush()
}
