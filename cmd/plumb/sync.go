// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"plumb-cli/pkg/cache"
	"plumb-cli/pkg/lockfile"
	"plumb-cli/pkg/manifest"
	"plumb-cli/pkg/resolve"
	"plumb-cli/pkg/types"
	"plumb-cli/pkg/vcs"
)

var (
	syncRoot string

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Resolve dependencies and write the lock file",
		Long: `Resolve every dependency declared in plumb.toml, fetch and cache the
selected versions, and pin them with content hashes in plumb.lock.toml.`,
		RunE: runSync,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List locked dependencies",
		RunE:  runList,
	}

	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Verify cached packages against the lock file",
		Long: `Recompute the content hash of every locked package from the cache and
report any missing or tampered entries.`,
		RunE: runVerify,
	}
)

func init() {
	syncCmd.Flags().StringVar(&syncRoot, "root", ".", "package root directory")
	listCmd.Flags().StringVar(&syncRoot, "root", ".", "package root directory")
	verifyCmd.Flags().StringVar(&syncRoot, "root", ".", "package root directory")
}

func runSync(cmd *cobra.Command, _ []string) error {
	m, err := loadRootManifest(syncRoot)
	if err != nil {
		return err
	}

	c, err := openCache()
	if err != nil {
		return err
	}

	fetcher := vcs.NewFetcher(vcs.WithTimeout(cfg.FetchTimeout), vcs.WithLogger(logger))
	resolver := resolve.New(fetcher, c, resolve.WithLogger(logger))

	resolved, err := resolver.ResolveAll(cmd.Context(), m, syncRoot)
	if err != nil {
		return err
	}
	for _, rd := range resolved {
		if rd.Address == "" {
			logger.Debug("resolved local dependency", "alias", rd.Alias, "path", rd.PackageRoot)
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(),
			SuccessStyle.Render("  resolved ")+AddressStyle.Render(fmt.Sprintf("%s@%s", rd.Address, rd.Version)))
	}

	lf, err := lockfile.Generate(resolved)
	if err != nil {
		return err
	}
	if err := lockfile.Save(lf, syncRoot); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(),
		SuccessStyle.Render(fmt.Sprintf("locked %d package(s) in %s", len(lf.Packages), lockfile.LockFileName)))
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	lf, err := lockfile.Load(syncRoot)
	if err != nil {
		return err
	}
	if len(lf.Packages) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("no locked packages"))
		return nil
	}

	addrs := make([]string, 0, len(lf.Packages))
	for addr := range lf.Packages {
		addrs = append(addrs, string(addr))
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		lp := lf.Packages[types.Address(addr)]
		fmt.Fprintln(cmd.OutOrStdout(),
			AddressStyle.Render(addr)+SubtitleStyle.Render(fmt.Sprintf(" %s  %s", lp.Version, lp.Hash)))
	}
	return nil
}

func runVerify(cmd *cobra.Command, _ []string) error {
	lf, err := lockfile.Load(syncRoot)
	if err != nil {
		return err
	}
	c, err := openCache()
	if err != nil {
		return err
	}
	if err := lockfile.Verify(lf, c); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(),
		SuccessStyle.Render(fmt.Sprintf("verified %d package(s)", len(lf.Packages))))
	return nil
}

// loadRootManifest parses the consumer manifest at root, with dependency
// tables accepted.
func loadRootManifest(root string) (*manifest.Manifest, error) {
	path := filepath.Join(root, manifest.ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return manifest.Parse(string(data), manifest.WithDependencies)
}

func openCache() (*cache.Cache, error) {
	root := cfg.CacheRoot
	if root == "" {
		var err error
		root, err = cache.DefaultRoot()
		if err != nil {
			return nil, err
		}
	}
	return cache.New(root)
}
