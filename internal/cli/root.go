// Package cli provides the studio-share command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/45Drives/studio-share-sub000/internal/config"
	"github.com/45Drives/studio-share-sub000/internal/logging"
	"github.com/45Drives/studio-share-sub000/internal/version"
)

var (
	// Global flags
	cfgFile    string
	verbose    bool
	jsonOutput bool

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "studio-share",
		Short: "Upload files and folders to a storage server over SSH",
		Long: `studio-share ` + version.Version + ` - Built: ` + version.BuildTime + `
Sends local files and folders to a remote server with rsync when it is
available, falling back to scp, a raw ssh stream copy or SFTP.

Settings are read from transfer.conf (see 'studio-share config path') and
from STUDIO_SHARE_* variables, which may also be set in a .env file in the
working directory.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadDotEnv(".env")

			loaded, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := loaded.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			cfg = loaded

			mode := cfg.LogMode()
			if jsonOutput {
				mode = logging.ModeJSON
			}
			logger = logging.NewLogger(mode, cmd.ErrOrStderr(), nil)

			level := logging.ParseLevel(cfg.Logging.Level)
			if verbose {
				level = zerolog.DebugLevel
			}
			logging.SetGlobalLevel(level)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows raw transport output)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON lines instead of progress bars")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for studio-share.

  bash:       source <(studio-share completion bash)
  zsh:        studio-share completion zsh > "${fpath[1]}/_studio-share"
  fish:       studio-share completion fish | source
  powershell: studio-share completion powershell | Out-String | Invoke-Expression`,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				return rootCmd.GenZshCompletion(out)
			case "fish":
				return rootCmd.GenFishCompletion(out, true)
			default:
				return rootCmd.GenPowerShellCompletion(out)
			}
		},
	}
	rootCmd.AddCommand(completionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Repeated signals are harmless; cancellation is idempotent.
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived %v, cancelling transfers...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger(nil)
	}
	return logger
}

// GetContext returns the global CLI context. It is cancelled on SIGINT or
// SIGTERM.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// GetConfig returns the loaded configuration, or defaults before
// PersistentPreRunE has run.
func GetConfig() *config.Config {
	if cfg == nil {
		return config.NewDefault()
	}
	return cfg
}
