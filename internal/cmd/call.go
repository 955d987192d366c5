package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SevenOfNine-ai/redditgw/internal/observability"
	"github.com/SevenOfNine-ai/redditgw/internal/output"
)

var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Run one tool call through the gateway",
	Long: `Run one tool call through the write policy, the rate limits and the MCP
server, and print the result. Blocked calls print the error result and exit
non-zero.

Example:
  redditgw call get_top_posts --params '{"subreddit":"golang","time_filter":"week"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().String("params", "{}", "tool parameters as a JSON object")
	callCmd.Flags().String("output", "table", "Output format: table, json")
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := strings.TrimSpace(args[0])
	rawParams, _ := cmd.Flags().GetString("params")
	outputFlag, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(outputFlag)
	if err != nil {
		return err
	}

	params, err := parseParams(rawParams)
	if err != nil {
		return err
	}

	rt, err := openRuntime(ctx, loadConfig(), observability.CLILogger)
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck

	result := rt.gw.ExecuteTool(ctx, name, params)

	rendered, err := output.NewFormatter(format).FormatResult(result)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), rendered); err != nil {
		return err
	}
	if result.IsError {
		return fmt.Errorf("%s: %s", name, result.Outcome)
	}
	return nil
}

// parseParams accepts a JSON object; blank input is an empty object.
func parseParams(raw string) (map[string]any, error) {
	params := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("--params must be a JSON object: %w", err)
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}
