// SPDX-License-Identifier: MPL-2.0

// Package lockfile pins the resolved dependency graph to exact versions with
// content digests. A lock entry exists only for remote dependencies; local
// path overrides are never locked. Serialization is deterministic: entries
// sort by address, and the directory digest feeds files in sorted
// slash-normalized path order so the same tree hashes identically on every
// platform.
package lockfile

import (
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"plumb-cli/pkg/cache"
	"plumb-cli/pkg/resolve"
	"plumb-cli/pkg/semver"
	"plumb-cli/pkg/types"
	"plumb-cli/pkg/vcs"
)

// LockFileName is the lock file's name at a package root.
const LockFileName = "plumb.lock.toml"

var (
	// ErrLockFile is the root sentinel for malformed lock content.
	ErrLockFile = fmt.Errorf("%w: lock file", types.Err)

	// ErrIntegrity marks a cached tree whose digest no longer matches its
	// lock entry, or a locked entry with no cached tree at all.
	ErrIntegrity = fmt.Errorf("%w: integrity", types.Err)
)

type (
	// LockedPackage pins one remote dependency.
	LockedPackage struct {
		// Version is the exact resolved version.
		Version string `toml:"version"`

		// Hash is the digest of the resolved package tree.
		Hash types.Digest `toml:"hash"`

		// Source is the URL the package was fetched from.
		Source types.SourceURL `toml:"source"`
	}

	// LockFile maps package addresses to their pinned state. An empty
	// LockFile is valid and serializes to empty text.
	LockFile struct {
		Packages map[types.Address]LockedPackage
	}

	// IntegrityError reports every lock entry that failed verification.
	IntegrityError struct {
		Mismatches []string
	}
)

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("lock verification failed: %s", strings.Join(e.Mismatches, "; "))
}

// Unwrap returns ErrIntegrity so callers can use errors.Is for programmatic
// detection.
func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// ComputeDirectoryHash digests every file under dir except any .git subtree.
// Files are fed in sorted slash-normalized relative-path order, each framed
// by its path and length, so the result is independent of enumeration order
// and filesystem platform.
func ComputeDirectoryHash(dir string) (types.Digest, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: hashing %s: %v", ErrLockFile, dir, err)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, rel := range paths {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return "", fmt.Errorf("%w: hashing %s: %v", ErrLockFile, rel, err)
		}
		fmt.Fprintf(h, "%d\n%s%d\n", len(rel), rel, len(data))
		h.Write(data)
	}
	return types.Digest(fmt.Sprintf("sha256:%x", h.Sum(nil))), nil
}

// Generate builds a lock file from a resolved graph. Only remote
// dependencies are locked; a remote dependency without a manifest fails
// generation because its identity cannot be pinned.
func Generate(resolved []resolve.ResolvedDependency) (*LockFile, error) {
	lf := &LockFile{Packages: make(map[types.Address]LockedPackage)}
	for _, rd := range resolved {
		if rd.Address == "" {
			continue
		}
		if rd.Manifest == nil {
			return nil, fmt.Errorf("%w: remote dependency %s has no manifest", ErrLockFile, rd.Address)
		}
		hash, err := ComputeDirectoryHash(rd.PackageRoot)
		if err != nil {
			return nil, err
		}
		lf.Packages[rd.Address] = LockedPackage{
			Version: rd.Version.String(),
			Hash:    hash,
			Source:  vcs.FetchURL(rd.Address),
		}
	}
	return lf, nil
}

// Parse reads lock file text, validating each entry's version, hash shape,
// and source URL. Empty text yields an empty lock file.
func Parse(text string) (*LockFile, error) {
	raw := make(map[string]LockedPackage)
	if err := toml.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockFile, err)
	}

	lf := &LockFile{Packages: make(map[types.Address]LockedPackage, len(raw))}
	for key, lp := range raw {
		addr := types.Address(key)
		if err := addr.Validate(); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrLockFile, key, err)
		}
		if !semver.IsValid(lp.Version) {
			return nil, fmt.Errorf("%w: entry %q: version %q is not an exact semantic version", ErrLockFile, key, lp.Version)
		}
		if err := lp.Hash.Validate(); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrLockFile, key, err)
		}
		if err := lp.Source.Validate(); err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrLockFile, key, err)
		}
		lf.Packages[addr] = lp
	}
	return lf, nil
}

// Serialize renders the lock file with entries sorted by address. An empty
// lock file serializes to empty text.
func Serialize(lf *LockFile) string {
	if lf == nil || len(lf.Packages) == 0 {
		return ""
	}

	addrs := make([]types.Address, 0, len(lf.Packages))
	for addr := range lf.Packages {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	var b strings.Builder
	for i, addr := range addrs {
		if i > 0 {
			b.WriteString("\n")
		}
		lp := lf.Packages[addr]
		fmt.Fprintf(&b, "[%q]\n", string(addr))
		fmt.Fprintf(&b, "version = %q\n", lp.Version)
		fmt.Fprintf(&b, "hash = %q\n", string(lp.Hash))
		fmt.Fprintf(&b, "source = %q\n", string(lp.Source))
	}
	return b.String()
}

// Verify recomputes each locked entry's digest from the package cache.
// Missing entries and digest mismatches are collected; any failure returns
// an IntegrityError naming all of them.
func Verify(lf *LockFile, c *cache.Cache) error {
	addrs := make([]types.Address, 0, len(lf.Packages))
	for addr := range lf.Packages {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	var mismatches []string
	for _, addr := range addrs {
		lp := lf.Packages[addr]
		if !c.IsCached(string(addr), lp.Version) {
			mismatches = append(mismatches, fmt.Sprintf("%s@%s: not cached", addr, lp.Version))
			continue
		}
		dir, err := c.Path(string(addr), lp.Version)
		if err != nil {
			mismatches = append(mismatches, fmt.Sprintf("%s@%s: %v", addr, lp.Version, err))
			continue
		}
		hash, err := ComputeDirectoryHash(dir)
		if err != nil {
			mismatches = append(mismatches, fmt.Sprintf("%s@%s: %v", addr, lp.Version, err))
			continue
		}
		if hash != lp.Hash {
			mismatches = append(mismatches, fmt.Sprintf("%s@%s: hash mismatch", addr, lp.Version))
		}
	}
	if len(mismatches) > 0 {
		return &IntegrityError{Mismatches: mismatches}
	}
	return nil
}

// Load reads and parses the lock file at a package root. A missing file
// yields an empty lock file.
func Load(packageRoot string) (*LockFile, error) {
	data, err := os.ReadFile(filepath.Join(packageRoot, LockFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &LockFile{Packages: make(map[types.Address]LockedPackage)}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLockFile, err)
	}
	return Parse(string(data))
}

// Save writes the lock file at a package root via a temp file and rename, so
// readers never observe partial content.
func Save(lf *LockFile, packageRoot string) error {
	final := filepath.Join(packageRoot, LockFileName)
	tmp, err := os.CreateTemp(packageRoot, ".plumb-lock-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLockFile, err)
	}
	tmpName := tmp.Name()

	_, werr := io.WriteString(tmp, Serialize(lf))
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing %s: %v", ErrLockFile, LockFileName, firstErr(werr, cerr))
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrLockFile, err)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
