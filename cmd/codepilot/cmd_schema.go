package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0x6d61/codepilot/pkg/schema"
)

// schemaCmd prints the JSON Schema of plan steps
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of a plan's step list",
	Long: `Prints the JSON Schema that plan steps follow. External planners and
template authors can validate their step lists against it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.StepJSONSchema()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}
