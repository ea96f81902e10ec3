// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"plumb-cli/pkg/resolve"
	"plumb-cli/pkg/types"
	"plumb-cli/pkg/vcs"
)

var (
	discoverDir string

	discoverCmd = &cobra.Command{
		Use:   "discover <address>",
		Short: "Scan a repository for installable packages",
		Long: `Clone the head of a repository and scan a directory of package roots,
reporting each directory's manifest or the reason it cannot be installed.`,
		Args: cobra.ExactArgs(1),
		RunE: runDiscover,
	}
)

func init() {
	discoverCmd.Flags().StringVar(&discoverDir, "dir", "", "subdirectory to scan (defaults to the repository root)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	addr := types.Address(args[0])
	if err := addr.Validate(); err != nil {
		return err
	}

	c, err := openCache()
	if err != nil {
		return err
	}
	fetcher := vcs.NewFetcher(vcs.WithTimeout(cfg.FetchTimeout), vcs.WithLogger(logger))
	resolver := resolve.New(fetcher, c, resolve.WithLogger(logger))

	found, err := resolver.ScanRepository(cmd.Context(), vcs.FetchURL(addr), discoverDir, cfg.DiscoveryConcurrency)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("no package directories found"))
		return nil
	}

	for _, item := range found {
		if item.Err != nil {
			fmt.Fprintln(cmd.OutOrStdout(),
				ErrorStyle.Render("  ✗ ")+item.Dir+SubtitleStyle.Render(": "+item.Err.Error()))
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(),
			SuccessStyle.Render("  ✓ ")+item.Dir+AddressStyle.Render(
				fmt.Sprintf("  %s@%s", item.Manifest.Address, item.Manifest.Version)))
	}
	return nil
}
