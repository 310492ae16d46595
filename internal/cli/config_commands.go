package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/45Drives/studio-share-sub000/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage studio-share configuration",
		Long: `Configuration management commands for studio-share.

Commands:
  init  - Write a transfer.conf with default values
  show  - Display the effective configuration
  path  - Show the configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())
	return configCmd
}

func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write transfer.conf with default values.

Use --force to overwrite an existing file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Configuration already exists at: %s\n", path)
					fmt.Fprintln(cmd.OutOrStdout(), "Use --force to overwrite or run 'config show' to view it.")
					return nil
				}
			}
			if err := config.NewDefault().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := GetConfig()
			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, c)
			}
			knownHosts := c.SSH.KnownHosts
			if knownHosts == "" {
				knownHosts = "(default ~/.ssh/known_hosts)"
			}
			fmt.Fprintln(out, "[ssh]")
			fmt.Fprintf(out, "  known_hosts                   = %s\n", knownHosts)
			fmt.Fprintf(out, "  connect_timeout_seconds       = %d\n", c.SSH.ConnectTimeoutSeconds)
			fmt.Fprintf(out, "  server_alive_interval_seconds = %d\n", c.SSH.ServerAliveIntervalSeconds)
			fmt.Fprintf(out, "  server_alive_count_max        = %d\n", c.SSH.ServerAliveCountMax)
			fmt.Fprintln(out, "[transfer]")
			fmt.Fprintf(out, "  transport                     = %s\n", c.Transfer.Transport)
			fmt.Fprintf(out, "  bwlimit_kbps                  = %d\n", c.Transfer.BwLimitKbps)
			fmt.Fprintf(out, "  port                          = %d\n", c.Transfer.Port)
			fmt.Fprintf(out, "  max_concurrent                = %d\n", c.Transfer.MaxConcurrent)
			fmt.Fprintln(out, "[logging]")
			fmt.Fprintf(out, "  level                         = %s\n", c.Logging.Level)
			fmt.Fprintf(out, "  json                          = %t\n", c.Logging.JSON)
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
