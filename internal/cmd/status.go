package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SevenOfNine-ai/redditgw/internal/observability"
	"github.com/SevenOfNine-ai/redditgw/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show policy, rate limit, credential and parity status",
	Long: `Show the effective write policy, rate limit occupancy, credential readiness
and the upstream parity check. With --offline the MCP server is not started.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().Bool("offline", false, "do not start the MCP server")
	statusCmd.Flags().String("output", "table", "Output format: table, json")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	offline, _ := cmd.Flags().GetBool("offline")
	outputFlag, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(outputFlag)
	if err != nil {
		return err
	}

	rt, err := openRuntime(ctx, loadConfig(), observability.CLILogger)
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	if !offline {
		if _, err := rt.gw.CheckParity(ctx); err != nil {
			return err
		}
	}

	rendered, err := output.NewFormatter(format).FormatStatus(rt.gw.Status())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
