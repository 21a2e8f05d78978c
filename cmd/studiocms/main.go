// Command studiocms runs the studio content API and its maintenance tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eringen/studiocms"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	configPath string

	cfg    studiocms.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "studiocms",
	Short:         "studiocms - content API for a studio marketing site",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd {
			return nil
		}
		var err error
		cfg, err = studiocms.LoadConfig(configPath)
		if err != nil {
			return err
		}
		logger, err = studiocms.NewLogger(cfg.Environment, cfg.LogLevel)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the studiocms version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "studiocms %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./studiocms.yaml if present)")
	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
