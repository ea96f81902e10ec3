// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for plumb.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"plumb-cli/internal/config"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables debug logging
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string

	cfg    *config.Config
	logger = log.New(os.Stderr)

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "plumb",
		Short: "A package manager for pipeline definitions",
		Long: TitleStyle.Render("plumb") + SubtitleStyle.Render(" - A package manager for pipeline definitions") + `

plumb resolves, fetches, and verifies versioned pipeline packages.
Packages are identified by their source address (hostname/path),
declared in a 'plumb.toml' manifest, and pinned with content hashes
in 'plumb.lock.toml'.

` + SubtitleStyle.Render("Quick Start:") + `
  1. Declare dependencies in plumb.toml under [dependencies.<alias>]
  2. Run 'plumb sync' to resolve and lock them
  3. Run 'plumb verify' to check cached trees against the lock file`,
	}
)

func init() {
	cobra.OnInitialize(initRootConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/plumb/config.toml)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(evictCmd)
	rootCmd.AddCommand(discoverCmd)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// initRootConfig reads the config file and environment overrides.
func initRootConfig() {
	loaded, _, err := config.LoadWithOptions(config.LoadOptions{ConfigFilePath: cfgFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+err.Error())
		loaded = config.DefaultConfig()
	}
	cfg = loaded

	if !verbose {
		verbose = cfg.Verbose
	}
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
}
