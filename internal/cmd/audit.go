package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SevenOfNine-ai/redditgw/internal/audit"
	"github.com/SevenOfNine-ai/redditgw/internal/output"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the tool call ledger",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded tool calls, newest first",
	RunE:  runAuditList,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)

	auditListCmd.Flags().Int("limit", audit.DefaultListLimit, "maximum entries to show")
	auditListCmd.Flags().String("tool", "", "only show calls to this tool")
	auditListCmd.Flags().String("output", "table", "Output format: table, json")
}

func runAuditList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	tool, _ := cmd.Flags().GetString("tool")
	outputFlag, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(outputFlag)
	if err != nil {
		return err
	}

	cfg := loadConfig()
	if !cfg.Audit.Enabled {
		return errors.New("audit ledger is disabled (set audit.enabled)")
	}

	ledger, err := audit.Open(ctx, cfg.Audit.Path)
	if err != nil {
		return fmt.Errorf("open audit ledger: %w", err)
	}
	defer ledger.Close() //nolint:errcheck

	entries, err := ledger.List(ctx, audit.Filter{Tool: tool, Limit: limit})
	if err != nil {
		return err
	}

	rendered, err := output.NewFormatter(format).FormatAudit(entries)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
