package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0x6d61/codepilot/internal/config"
	"github.com/0x6d61/codepilot/internal/logging"
)

var (
	// Global flags
	configPath string
	projectDir string
	verbose    bool

	cfg    *config.AppConfig
	logger *zap.Logger
)

// errRunFailed は Run が error イベントで終わったことを表す。メッセージは出力済み。
var errRunFailed = errors.New("run failed")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "codepilot",
	Short: "codepilot - local coding assistant that plans and executes file and shell steps",
	Long: `codepilot turns a natural-language request into a plan of tool calls
(read/write files, create directories, run commands, ask you questions)
and executes it inside a project directory, streaming every step.

Run without arguments to start the interactive console.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if projectDir != "" {
			cfg.Project = projectDir
		}
		if verbose {
			cfg.Log.Level = "debug"
		}

		// 対話モードは画面を占有するので、ログファイルが無ければ捨てる
		if cmd == cmd.Root() && cfg.Log.File == "" {
			logger = zap.NewNop()
			return nil
		}
		logger, err = logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runInteractive,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", "", "Project directory (overrides config and "+config.EnvProject+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	planCmd.Flags().BoolVar(&planSteps, "steps", false, "Print the tool steps as YAML instead of the plan text")
	planCmd.Flags().BoolVar(&planList, "list", false, "List the available plan templates")
	treeCmd.Flags().BoolVar(&treeJSON, "json", false, "Print the tree as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
