// SPDX-License-Identifier: MPL-2.0

// Package cache implements the content-addressed local package store. Entries
// live at <root>/<address>/<version> and are byte-identical to the fetched
// source tree minus any .git subtree. Writes go through a disposable sibling
// staging directory followed by an atomic rename, so a crash or concurrent
// reader never observes a half-written entry. Entries are never mutated in
// place; eviction removes an entry wholesale.
package cache

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"plumb-cli/pkg/types"
)

const (
	// EnvCacheRoot overrides the default cache root directory.
	EnvCacheRoot = "PLUMB_PACKAGES_PATH"

	// defaultCacheDirName is the per-user cache location under the home
	// directory.
	defaultCacheDirName = ".plumb"

	// packagesSubdir holds cached package trees below the plumb directory.
	packagesSubdir = "packages"
)

var (
	// ErrCache is the root sentinel for package cache failures.
	ErrCache = fmt.Errorf("%w: cache", types.Err)

	// ErrPathTraversal marks inputs that would resolve outside the cache root.
	ErrPathTraversal = fmt.Errorf("%w: path traversal", ErrCache)
)

type (
	// Cache is a version-keyed store of fetched package trees.
	Cache struct {
		root string
	}

	// TraversalError reports an address or version that would escape the
	// cache root.
	TraversalError struct {
		Address string
		Version string
	}
)

// Error implements the error interface.
func (e *TraversalError) Error() string {
	return fmt.Sprintf("cache path for %q@%q escapes the cache root", e.Address, e.Version)
}

// Unwrap returns ErrPathTraversal so callers can use errors.Is for
// programmatic detection.
func (e *TraversalError) Unwrap() error { return ErrPathTraversal }

// DefaultRoot returns the per-user cache root, honoring EnvCacheRoot.
func DefaultRoot() (string, error) {
	return DefaultRootWith(os.Getenv)
}

// DefaultRootWith returns the cache root using the provided getenv function.
// This enables testing without mutating process-global environment state.
func DefaultRootWith(getenv func(string) string) (string, error) {
	if envPath := getenv(EnvCacheRoot); envPath != "" {
		return envPath, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: resolving home directory: %v", ErrCache, err)
	}
	return filepath.Join(homeDir, defaultCacheDirName, packagesSubdir), nil
}

// New creates a Cache rooted at root, creating the directory if needed.
func New(root string) (*Cache, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving root: %v", ErrCache, err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating root: %v", ErrCache, err)
	}
	return &Cache{root: absRoot}, nil
}

// Root returns the absolute cache root directory.
func (c *Cache) Root() string { return c.root }

// Path returns the cache location for an (address, version) pair. Both
// inputs are validated component-wise before joining: a dot segment inside
// the address, or a separator anywhere in the version, would let the result
// land at the wrong directory level even when it stays inside the root, so
// the returned path is always exactly <root>/<address>/<version>.
func (c *Cache) Path(address, version string) (string, error) {
	if address == "" || version == "" {
		return "", &TraversalError{Address: address, Version: version}
	}
	for _, seg := range strings.Split(address, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsRune(seg, '\\') {
			return "", &TraversalError{Address: address, Version: version}
		}
	}
	if version == "." || version == ".." || strings.ContainsAny(version, `/\`) {
		return "", &TraversalError{Address: address, Version: version}
	}

	joined := filepath.Join(c.root, filepath.FromSlash(address), version)
	rel, err := filepath.Rel(c.root, joined)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &TraversalError{Address: address, Version: version}
	}
	return joined, nil
}

// IsCached reports whether an entry exists and is non-empty.
func (c *Cache) IsCached(address, version string) bool {
	dir, err := c.Path(address, version)
	if err != nil {
		return false
	}
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

// Store copies sourceDir into the cache for (address, version). The tree is
// first copied into a sibling staging directory with any .git subtree
// stripped and symlinks skipped, then swapped into place with
// remove-then-rename. On failure the staging directory is cleaned up and any
// existing final entry is left untouched.
func (c *Cache) Store(sourceDir, address, version string) (string, error) {
	final, err := c.Path(address, version)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return "", fmt.Errorf("%w: creating parent: %v", ErrCache, err)
	}

	staging := final + ".staging-" + randomSuffix()
	if err := copyTree(sourceDir, staging); err != nil {
		_ = os.RemoveAll(staging)
		return "", fmt.Errorf("%w: staging %s@%s: %v", ErrCache, address, version, err)
	}

	if err := os.RemoveAll(final); err != nil {
		_ = os.RemoveAll(staging)
		return "", fmt.Errorf("%w: clearing previous entry: %v", ErrCache, err)
	}
	if err := os.Rename(staging, final); err != nil {
		_ = os.RemoveAll(staging)
		return "", fmt.Errorf("%w: committing entry: %v", ErrCache, err)
	}
	return final, nil
}

// Evict removes a cached entry wholesale. Returns true if an entry existed.
func (c *Cache) Evict(address, version string) bool {
	dir, err := c.Path(address, version)
	if err != nil {
		return false
	}
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	return os.RemoveAll(dir) == nil
}

// copyTree recursively copies src to dst, skipping .git subtrees and
// symlinks.
func copyTree(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, srcInfo.Mode()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}

		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath, info.Mode()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, mode)
}

func randomSuffix() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "tmp"
	}
	return hex.EncodeToString(buf[:])
}
