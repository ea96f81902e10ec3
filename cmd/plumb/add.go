// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"plumb-cli/pkg/manifest"
	"plumb-cli/pkg/semver"
	"plumb-cli/pkg/types"
)

var (
	addPath string

	addCmd = &cobra.Command{
		Use:   "add <alias> [<address> <constraint>]",
		Short: "Add a dependency to the manifest",
		Long: `Add a dependency under [dependencies.<alias>] in plumb.toml. A remote
dependency takes an address and a version constraint; a local dependency is
declared with --path instead.`,
		Args: cobra.RangeArgs(1, 3),
		RunE: runAdd,
	}

	removeCmd = &cobra.Command{
		Use:   "remove <alias>",
		Short: "Remove a dependency from the manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  runRemove,
	}
)

func init() {
	addCmd.Flags().StringVar(&addPath, "path", "", "local package directory (instead of address and constraint)")
	addCmd.Flags().StringVar(&syncRoot, "root", ".", "package root directory")
	removeCmd.Flags().StringVar(&syncRoot, "root", ".", "package root directory")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	alias := types.DependencyAlias(args[0])
	if err := alias.Validate(); err != nil {
		return err
	}

	dep := manifest.Dependency{Alias: alias}
	switch {
	case addPath != "":
		if len(args) > 1 {
			return fmt.Errorf("--path and an address are mutually exclusive")
		}
		dep.LocalPath = addPath
	case len(args) == 3:
		addr := types.Address(args[1])
		if err := addr.Validate(); err != nil {
			return err
		}
		if !semver.IsValidConstraint(args[2]) {
			return fmt.Errorf("invalid version constraint %q", args[2])
		}
		dep.Address = addr
		dep.VersionConstraint = args[2]
	default:
		return fmt.Errorf("a dependency needs either --path or an address and a constraint")
	}

	m, err := loadRootManifest(syncRoot)
	if err != nil {
		return err
	}
	if _, exists := m.Dependencies[alias]; exists {
		return fmt.Errorf("dependency %q is already declared", alias)
	}

	updated := withDependencies(m)
	updated.Dependencies[alias] = dep
	if err := writeManifest(syncRoot, updated); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("added ")+AddressStyle.Render(string(alias)))
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	alias := types.DependencyAlias(args[0])
	m, err := loadRootManifest(syncRoot)
	if err != nil {
		return err
	}
	if _, exists := m.Dependencies[alias]; !exists {
		return fmt.Errorf("dependency %q is not declared", alias)
	}

	updated := withDependencies(m)
	delete(updated.Dependencies, alias)
	if err := writeManifest(syncRoot, updated); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("removed ")+AddressStyle.Render(string(alias)))
	return nil
}

// withDependencies returns a copy of m whose Dependencies map is safe to
// mutate. Parsed manifests are immutable by contract.
func withDependencies(m *manifest.Manifest) *manifest.Manifest {
	copied := *m
	copied.Dependencies = make(map[types.DependencyAlias]manifest.Dependency, len(m.Dependencies)+1)
	for alias, dep := range m.Dependencies {
		copied.Dependencies[alias] = dep
	}
	return &copied
}

// writeManifest serializes m to plumb.toml via a temp file and rename.
func writeManifest(root string, m *manifest.Manifest) error {
	final := filepath.Join(root, manifest.ManifestFileName)
	tmp, err := os.CreateTemp(root, ".plumb-manifest-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, werr := tmp.WriteString(manifest.Serialize(m))
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpName)
		if werr != nil {
			return werr
		}
		return cerr
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
