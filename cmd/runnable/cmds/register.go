package cmds

import (
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/spf13/cobra"
)

// AddToRootCommand registers all runnable commands. Commands that list things are glazed
// commands and take the usual --output, --fields and --sort-columns flags.
func AddToRootCommand(rootCmd *cobra.Command) {
	rootCmd.AddCommand(
		NewRunCommand(),
		NewStreamCommand(),
		NewGraphCommand(),
	)

	batchCmd, err := NewBatchCommand()
	cobra.CheckErr(err)
	batchCobraCmd, err := cli.BuildCobraCommandFromGlazeCommand(batchCmd)
	cobra.CheckErr(err)

	nodesCmd, err := NewNodesCommand()
	cobra.CheckErr(err)
	nodesCobraCmd, err := cli.BuildCobraCommandFromGlazeCommand(nodesCmd)
	cobra.CheckErr(err)

	edgesCmd, err := NewEdgesCommand()
	cobra.CheckErr(err)
	edgesCobraCmd, err := cli.BuildCobraCommandFromGlazeCommand(edgesCmd)
	cobra.CheckErr(err)

	opsCmd, err := NewOpsCommand()
	cobra.CheckErr(err)
	opsCobraCmd, err := cli.BuildCobraCommandFromGlazeCommand(opsCmd)
	cobra.CheckErr(err)

	rootCmd.AddCommand(batchCobraCmd, nodesCobraCmd, edgesCobraCmd, opsCobraCmd)
}
