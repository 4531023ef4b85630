// Package ctl implements the borealisctl command tree.
//
// borealisctl is a small MCP client for poking a running borealis
// endpoint from a shell: list the tools a sidecar exposes, call one,
// or check that the endpoint answers a ping. Everything goes through
// the official go-sdk streamable HTTP client, so whatever works here
// works for a real MCP host too.
package ctl

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Config carries the persistent flag values shared by every subcommand.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	LogLvl   string
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Main returns an exit code (0 for success, non-zero on error) for use by cmd/borealisctl.
func Main() int { return MainWithArgs(os.Args[1:]) }

func MainWithArgs(args []string) int {
	cfg := &Config{
		Endpoint: envStr("BOREALIS_ENDPOINT", ""),
		Timeout:  10 * time.Second,
		LogLvl:   envStr("BOREALIS_LOG_LEVEL", "info"),
	}
	root := buildRootCmdWith(cfg)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		return 1
	}
	return 0
}

// buildRootCmdWith constructs a Cobra command tree wired to the fn* actions.
func buildRootCmdWith(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "borealisctl",
		Short:         "Inspect and exercise a borealis MCP endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags -> Config
	root.PersistentFlags().String("endpoint", cfg.Endpoint, "MCP endpoint URL, e.g. http://127.0.0.1:4242/mcp (defaults BOREALIS_ENDPOINT)")
	root.PersistentFlags().Duration("timeout", cfg.Timeout, "Per-command timeout, covers connect and the call itself")
	root.PersistentFlags().String("log-level", cfg.LogLvl, "Log level: debug|info|warn|error (defaults BOREALIS_LOG_LEVEL or info)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if f := cmd.InheritedFlags().Lookup("endpoint"); f != nil {
			if v := f.Value.String(); v != "" {
				cfg.Endpoint = v
			}
		}
		if f := cmd.InheritedFlags().Lookup("timeout"); f != nil {
			if d, err := time.ParseDuration(f.Value.String()); err == nil && d > 0 {
				cfg.Timeout = d
			}
		}
		if f := cmd.InheritedFlags().Lookup("log-level"); f != nil {
			if v := f.Value.String(); v != "" {
				cfg.LogLvl = v
			}
		}
		setLogLevel(cfg.LogLvl)
	}

	toolsCmd := &cobra.Command{
		Use:     "tools",
		Short:   "List the tools the endpoint exposes",
		Example: "  borealisctl tools --endpoint http://127.0.0.1:4242/mcp",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnListTools(cfg, cmd.OutOrStdout())
		},
	}
	root.AddCommand(toolsCmd)

	callCmd := &cobra.Command{
		Use:     "call <tool>",
		Short:   "Call a tool and print its text content",
		Example: "  borealisctl call scene_load --args '{\"path\": \"demo.blend\"}'",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("args")
			toolArgs, err := parseToolArgs(raw)
			if err != nil {
				return err
			}
			return fnCallTool(cfg, cmd.OutOrStdout(), args[0], toolArgs)
		},
	}
	callCmd.Flags().String("args", "", "Tool arguments as a JSON object")
	root.AddCommand(callCmd)

	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the endpoint answers an MCP ping",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fnPing(cfg, cmd.OutOrStdout())
		},
	}
	root.AddCommand(pingCmd)

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(os.Stdout, true) }})
	completionCmd.AddCommand(&cobra.Command{Use: "powershell", Short: "PowerShell completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenPowerShellCompletionWithDesc(os.Stdout) }})
	root.AddCommand(completionCmd)

	return root
}
