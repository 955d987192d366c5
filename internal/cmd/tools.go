package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SevenOfNine-ai/redditgw/internal/observability"
	"github.com/SevenOfNine-ai/redditgw/internal/output"
	"github.com/SevenOfNine-ai/redditgw/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the gateway wraps",
	Long: `List the tool catalog with each tool's mode. With --upstream the MCP server
is started and the tools it actually exposes are listed instead.`,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)

	toolsCmd.Flags().Bool("upstream", false, "list the tools the MCP server exposes")
	toolsCmd.Flags().String("output", "table", "Output format: table, json")
}

func runTools(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	upstream, _ := cmd.Flags().GetBool("upstream")
	outputFlag, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(outputFlag)
	if err != nil {
		return err
	}

	specs := tools.Default().Specs()
	if upstream {
		rt, err := openRuntime(ctx, loadConfig(), observability.CLILogger)
		if err != nil {
			return err
		}
		defer rt.Close() //nolint:errcheck

		listed, err := rt.gw.ListUpstreamTools(ctx)
		if err != nil {
			return fmt.Errorf("list upstream tools: %w", err)
		}

		catalog := rt.gw.Catalog()
		specs = make([]tools.Spec, 0, len(listed))
		for _, tool := range listed {
			spec, ok := catalog.Lookup(tool.Name)
			if !ok {
				spec = tools.Spec{Name: tool.Name, Mode: "unwrapped"}
			}
			if tool.Description != "" {
				spec.Description = tool.Description
			}
			specs = append(specs, spec)
		}
	}

	rendered, err := output.NewFormatter(format).FormatTools(specs)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
