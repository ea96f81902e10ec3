// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"plumb-cli/pkg/manifest"
	"plumb-cli/pkg/types"
)

// DefaultScanConcurrency bounds parallel manifest reads during discovery.
const DefaultScanConcurrency = 4

// DiscoveredPackage is one candidate package directory found by a repository
// scan. Err records a per-item failure; a bad directory never aborts the
// batch.
type DiscoveredPackage struct {
	// Dir is the directory name within the scanned location.
	Dir string

	// Manifest is the parsed declarative manifest, nil when Err is set.
	Manifest *manifest.Manifest

	// Err is the failure reading or parsing this directory's manifest.
	Err error
}

// ScanRepository clones the head of a repository and scans subdir (or the
// repository root when subdir is empty) for directories carrying a manifest.
// Parsing runs with bounded concurrency; failures are collected per item.
func (r *Resolver) ScanRepository(ctx context.Context, url types.SourceURL, subdir string, concurrency int) ([]DiscoveredPackage, error) {
	if concurrency <= 0 {
		concurrency = DefaultScanConcurrency
	}

	checkout, err := os.MkdirTemp("", "plumb-scan-")
	if err != nil {
		return nil, fmt.Errorf("%w: discovery: %v", ErrDependencyResolve, err)
	}
	defer os.RemoveAll(checkout)

	if err := r.fetcher.CloneHead(ctx, url, checkout); err != nil {
		return nil, fmt.Errorf("%w: discovery: %v", ErrDependencyResolve, err)
	}

	scanRoot := checkout
	if subdir != "" {
		scanRoot = filepath.Join(checkout, filepath.FromSlash(subdir))
	}
	entries, err := os.ReadDir(scanRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: discovery: reading %s: %v", ErrDependencyResolve, subdir, err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && entry.Name() != ".git" {
			dirs = append(dirs, entry.Name())
		}
	}
	sort.Strings(dirs)

	found := make([]DiscoveredPackage, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, dir := range dirs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			found[i] = scanPackageDir(scanRoot, dir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: discovery: %v", ErrDependencyResolve, err)
	}
	return found, nil
}

func scanPackageDir(scanRoot, dir string) DiscoveredPackage {
	item := DiscoveredPackage{Dir: dir}
	text, err := os.ReadFile(filepath.Join(scanRoot, dir, manifest.ManifestFileName))
	if err != nil {
		item.Err = fmt.Errorf("reading manifest: %w", err)
		return item
	}
	m, err := manifest.Parse(string(text), manifest.Declarative)
	if err != nil {
		item.Err = err
		return item
	}
	item.Manifest = m
	return item
}
