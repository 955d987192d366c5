package cmd

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/SevenOfNine-ai/redditgw/internal/audit"
	"github.com/SevenOfNine-ai/redditgw/internal/bridge"
	"github.com/SevenOfNine-ai/redditgw/internal/config"
	"github.com/SevenOfNine-ai/redditgw/internal/observability"
	"github.com/SevenOfNine-ai/redditgw/internal/output"
	"github.com/SevenOfNine-ai/redditgw/internal/tools"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Check the configuration, credential readiness, the resolved MCP server
command and the audit ledger. Unless --offline is set, the MCP server is started
and its tools are compared with the catalog.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().Bool("offline", false, "skip starting the MCP server")
	doctorCmd.Flags().String("output", "table", "Output format: table, json")
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	offline, _ := cmd.Flags().GetBool("offline")
	outputFlag, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(outputFlag)
	if err != nil {
		return err
	}

	checks := doctorChecks(ctx, offline)

	rendered, err := output.NewFormatter(format).FormatChecks(checks)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), rendered); err != nil {
		return err
	}

	for _, c := range checks {
		if c.Status == output.CheckFail {
			return fmt.Errorf("doctor: check %q failed", c.Name)
		}
	}
	return nil
}

func doctorChecks(ctx context.Context, offline bool) []output.Check {
	version := crucible.GetVersion()
	checks := []output.Check{{
		Name:   "runtime",
		Status: output.CheckOK,
		Detail: fmt.Sprintf("%s %s/%s, gofulmen %s", runtime.Version(), runtime.GOOS, runtime.GOARCH, version.Gofulmen),
	}}

	cfg, err := config.Load(v)
	if err != nil {
		checks = append(checks, output.Check{Name: "config", Status: output.CheckFail, Detail: err.Error()})
		return append(checks, output.Check{Name: "mcp server", Status: output.CheckSkip, Detail: "config invalid"})
	}
	configDetail := "defaults"
	if used := v.ConfigFileUsed(); used != "" {
		configDetail = used
	}
	checks = append(checks, output.Check{Name: "config", Status: output.CheckOK, Detail: configDetail})

	env := config.Environ()
	creds := config.ResolveRedditEnv(cfg, env)
	checks = append(checks, credentialCheck(config.CredentialReadiness(cfg, creds)), writePolicyCheck(cfg))

	launch, launchErr := bridge.BuildLaunchSpec(cfg, creds, env, launchResolver(env))
	if launchErr != nil {
		checks = append(checks, output.Check{Name: "launch", Status: output.CheckFail, Detail: launchErr.Error()})
	} else {
		checks = append(checks, output.Check{
			Name:   "launch",
			Status: output.CheckOK,
			Detail: fmt.Sprintf("%s (env: %s)", strings.TrimSpace(launch.Command+" "+strings.Join(launch.Args, " ")), strings.Join(launch.EnvKeys(), ", ")),
		})
	}

	checks = append(checks, auditCheck(ctx, cfg))

	switch {
	case offline:
		checks = append(checks, output.Check{Name: "mcp server", Status: output.CheckSkip, Detail: "--offline"})
	case launchErr != nil:
		checks = append(checks, output.Check{Name: "mcp server", Status: output.CheckSkip, Detail: "launch unresolved"})
	default:
		checks = append(checks, parityCheck(ctx, cfg))
	}

	return checks
}

func credentialCheck(problems []string) output.Check {
	if len(problems) == 0 {
		return output.Check{Name: "credentials", Status: output.CheckOK, Detail: "ready"}
	}
	return output.Check{Name: "credentials", Status: output.CheckWarn, Detail: strings.Join(problems, " ")}
}

func writePolicyCheck(cfg *config.Config) output.Check {
	w := cfg.Write
	if !w.Enabled {
		return output.Check{Name: "write policy", Status: output.CheckOK, Detail: "read-only (safe mode " + cfg.SafeMode() + ")"}
	}
	if !w.DisableToolAllowlist && len(w.AllowedTools) == 0 {
		return output.Check{
			Name:   "write policy",
			Status: output.CheckWarn,
			Detail: "write enabled but write.allowed_tools is empty; write tools: " + strings.Join(tools.Default().WriteNames(), ", "),
		}
	}
	if w.RequireSubredditAllowlist && len(w.AllowedSubreddits) == 0 {
		return output.Check{Name: "write policy", Status: output.CheckWarn, Detail: "write enabled but write.allowed_subreddits is empty"}
	}

	detail := "tools: " + strings.Join(w.AllowedTools, ", ")
	if w.DisableToolAllowlist {
		detail = "tools: any write tool"
	}
	if w.RequireSubredditAllowlist {
		detail += "; subreddits: " + strings.Join(w.AllowedSubreddits, ", ")
	}
	if w.AllowDelete {
		detail += "; delete allowed"
	}
	return output.Check{Name: "write policy", Status: output.CheckOK, Detail: detail}
}

func auditCheck(ctx context.Context, cfg *config.Config) output.Check {
	if !cfg.Audit.Enabled {
		return output.Check{Name: "audit", Status: output.CheckSkip, Detail: "disabled"}
	}
	ledger, err := audit.Open(ctx, cfg.Audit.Path)
	if err != nil {
		return output.Check{Name: "audit", Status: output.CheckFail, Detail: err.Error()}
	}
	_ = ledger.Close()
	return output.Check{Name: "audit", Status: output.CheckOK, Detail: cfg.Audit.Path}
}

func parityCheck(ctx context.Context, cfg *config.Config) output.Check {
	rt, err := openRuntime(ctx, cfg, observability.CLILogger)
	if err != nil {
		return output.Check{Name: "mcp server", Status: output.CheckFail, Detail: err.Error()}
	}
	defer rt.Close() //nolint:errcheck

	snapshot, err := rt.gw.CheckParity(ctx)
	switch {
	case snapshot.Error != "":
		return output.Check{Name: "mcp server", Status: output.CheckFail, Detail: snapshot.Error}
	case err != nil:
		return output.Check{Name: "mcp server", Status: output.CheckFail, Detail: err.Error()}
	case !snapshot.OK():
		var parts []string
		if len(snapshot.MissingExpectedTools) > 0 {
			parts = append(parts, "missing: "+strings.Join(snapshot.MissingExpectedTools, ", "))
		}
		if len(snapshot.UnexpectedUpstreamTools) > 0 {
			parts = append(parts, "unwrapped: "+strings.Join(snapshot.UnexpectedUpstreamTools, ", "))
		}
		return output.Check{Name: "mcp server", Status: output.CheckWarn, Detail: strings.Join(parts, "; ")}
	default:
		return output.Check{Name: "mcp server", Status: output.CheckOK, Detail: fmt.Sprintf("%d tools, parity ok", *snapshot.UpstreamToolCount)}
	}
}
