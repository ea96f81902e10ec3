// SPDX-License-Identifier: MPL-2.0

// Package resolve builds the transitive dependency graph of a manifest and
// produces one resolved version per address. The walk is depth-first with an
// explicit resolution stack for cycle detection, a resolved map for
// first-encounter short-circuiting, and a constraints-by-address map for
// diamond reconciliation. Version selection is minimal: the oldest tagged
// version satisfying every active constraint wins.
package resolve

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"plumb-cli/pkg/cache"
	"plumb-cli/pkg/manifest"
	"plumb-cli/pkg/semver"
	"plumb-cli/pkg/types"
	"plumb-cli/pkg/vcs"
)

var (
	// ErrDependencyResolve covers failures resolving a directly declared
	// dependency: a missing local path, a fetch failure, or a cache failure.
	ErrDependencyResolve = fmt.Errorf("%w: dependency resolve", types.Err)

	// ErrTransitiveDependency covers failures in the transitive graph itself:
	// a cycle, or a diamond with no version satisfying all constraints. These
	// are fatal to the whole run and never produce a partial graph.
	ErrTransitiveDependency = fmt.Errorf("%w: transitive dependency", types.Err)
)

type (
	// Fetcher is the repository-access surface resolution needs. *vcs.Fetcher
	// implements it; tests substitute in-memory fakes.
	Fetcher interface {
		ListVersionTags(ctx context.Context, url types.SourceURL) ([]vcs.VersionTag, error)
		FetchAtTag(ctx context.Context, url types.SourceURL, tagName, dest string) error
		CloneHead(ctx context.Context, url types.SourceURL, dest string) error
	}

	// ResolvedDependency is one settled node of the dependency graph.
	ResolvedDependency struct {
		// Alias is the name the declaring manifest used for this dependency.
		Alias types.DependencyAlias

		// Address identifies the remote source. Empty for local dependencies.
		Address types.Address

		// Version is the selected concrete version. Nil for local dependencies.
		Version *semver.Version

		// Manifest is the package's parsed manifest, or nil when the package
		// root carries none.
		Manifest *manifest.Manifest

		// PackageRoot is the on-disk directory holding the package tree.
		PackageRoot string

		// Files lists the package tree's files as sorted slash-separated
		// paths relative to PackageRoot, excluding any .git subtree.
		Files []string

		// ExportedPipes is the union of pipes the manifest exports. Nil means
		// unrestricted visibility: no manifest, or no exports declared.
		ExportedPipes map[types.PipeName]bool
	}

	// CycleError reports an address re-entered while still being resolved.
	// Cycles are never resolved by version selection.
	CycleError struct {
		Chain []types.Address
	}

	// DiamondError reports an address whose accumulated constraints admit no
	// available version.
	DiamondError struct {
		Address     types.Address
		Constraints []string
		Available   []string
	}

	// Resolver resolves dependency graphs. One Resolver may serve many
	// ResolveAll calls; each call owns its traversal state exclusively.
	Resolver struct {
		fetcher Fetcher
		cache   *cache.Cache
		logger  *log.Logger
	}

	// Option configures a Resolver.
	Option func(*Resolver)

	// constraintRecord is one declared constraint against an address, tagged
	// with the address whose manifest declared it. Records from a version
	// that loses a diamond reconciliation are discarded by origin.
	constraintRecord struct {
		constraint *semver.Constraint
		raw        string
		origin     types.Address
	}

	// run is the traversal state of a single ResolveAll call.
	run struct {
		stack       []types.Address
		onStack     map[types.Address]bool
		resolved    map[types.Address]*ResolvedDependency
		constraints map[types.Address][]constraintRecord
		tags        map[types.Address][]vcs.VersionTag
		locals      []*ResolvedDependency
		localSeen   map[string]bool
	}
)

// Error implements the error interface.
func (e *CycleError) Error() string {
	parts := make([]string, len(e.Chain))
	for i, a := range e.Chain {
		parts[i] = string(a)
	}
	return fmt.Sprintf("dependency cycle: %s", strings.Join(parts, " -> "))
}

// Unwrap returns ErrTransitiveDependency so callers can use errors.Is for
// programmatic detection.
func (e *CycleError) Unwrap() error { return ErrTransitiveDependency }

// Error implements the error interface.
func (e *DiamondError) Error() string {
	return fmt.Sprintf("no version of %s satisfies all of [%s] (available: %s)",
		e.Address, strings.Join(e.Constraints, ", "), strings.Join(e.Available, ", "))
}

// Unwrap returns ErrTransitiveDependency so callers can use errors.Is for
// programmatic detection.
func (e *DiamondError) Unwrap() error { return ErrTransitiveDependency }

// WithLogger attaches a structured logger for resolution tracing.
func WithLogger(logger *log.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// New creates a Resolver over the given fetcher and package cache.
func New(fetcher Fetcher, c *cache.Cache, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher: fetcher,
		cache:   c,
		logger:  log.New(os.Stderr),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveAll resolves every dependency of m, transitively for remote ones,
// and returns the settled graph sorted by address. packageRoot anchors local
// dependency paths. Any cycle or unsatisfiable diamond fails the whole run.
func (r *Resolver) ResolveAll(ctx context.Context, m *manifest.Manifest, packageRoot string) ([]ResolvedDependency, error) {
	st := &run{
		onStack:     make(map[types.Address]bool),
		resolved:    make(map[types.Address]*ResolvedDependency),
		constraints: make(map[types.Address][]constraintRecord),
		tags:        make(map[types.Address][]vcs.VersionTag),
		localSeen:   make(map[string]bool),
	}

	for _, alias := range sortedDependencyAliases(m.Dependencies) {
		dep := m.Dependencies[alias]
		if dep.IsLocal() {
			if err := r.resolveLocal(st, packageRoot, dep); err != nil {
				return nil, err
			}
			continue
		}
		if err := r.resolveRemote(ctx, st, dep, ""); err != nil {
			return nil, err
		}
	}

	out := make([]ResolvedDependency, 0, len(st.resolved)+len(st.locals))
	for _, rd := range st.resolved {
		out = append(out, *rd)
	}
	for _, rd := range st.locals {
		out = append(out, *rd)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return out[i].Alias < out[j].Alias
	})
	return out, nil
}

// resolveLocal settles a path dependency by existence alone. No version
// selection, no cycle tracking, no recursion into its dependencies.
func (r *Resolver) resolveLocal(st *run, ownerRoot string, dep manifest.Dependency) error {
	dir := filepath.Join(ownerRoot, filepath.FromSlash(dep.LocalPath))
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("%w: local dependency %s: %v", ErrDependencyResolve, dep.Alias, err)
	}
	if st.localSeen[abs] {
		return nil
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: local dependency %s: path %s does not exist", ErrDependencyResolve, dep.Alias, dep.LocalPath)
	}
	st.localSeen[abs] = true

	rd := &ResolvedDependency{
		Alias:       dep.Alias,
		PackageRoot: abs,
	}
	if err := r.populateFromRoot(rd); err != nil {
		return fmt.Errorf("%w: local dependency %s: %v", ErrDependencyResolve, dep.Alias, err)
	}
	st.locals = append(st.locals, rd)
	return nil
}

// resolveRemote settles one remote dependency declaration. origin is the
// address whose manifest declared it, or empty for the root manifest.
func (r *Resolver) resolveRemote(ctx context.Context, st *run, dep manifest.Dependency, origin types.Address) error {
	c, err := semver.ParseConstraint(dep.VersionConstraint)
	if err != nil {
		return fmt.Errorf("%w: dependency %s: %v", ErrDependencyResolve, dep.Alias, err)
	}

	addr := dep.Address
	if st.onStack[addr] {
		return &CycleError{Chain: append(append([]types.Address{}, st.stack...), addr)}
	}

	st.constraints[addr] = append(st.constraints[addr], constraintRecord{
		constraint: c,
		raw:        dep.VersionConstraint,
		origin:     origin,
	})

	if existing, ok := st.resolved[addr]; ok {
		if semver.Satisfies(existing.Version, c) {
			return nil
		}
		return r.reconcileDiamond(ctx, st, dep, existing)
	}

	rd, err := r.resolveAt(ctx, st, dep.Alias, addr)
	if err != nil {
		return err
	}
	st.resolved[addr] = rd
	return r.recurse(ctx, st, rd)
}

// reconcileDiamond re-resolves an address whose settled version fails a newly
// declared constraint. Constraints contributed by the stale version's own
// manifest are discarded before selecting over the union of what remains.
func (r *Resolver) reconcileDiamond(ctx context.Context, st *run, dep manifest.Dependency, stale *ResolvedDependency) error {
	addr := dep.Address
	r.logger.Debug("reconciling diamond dependency",
		"address", addr, "settled", stale.Version.String(), "constraint", dep.VersionConstraint)

	for a, records := range st.constraints {
		kept := records[:0]
		for _, rec := range records {
			if rec.origin != addr {
				kept = append(kept, rec)
			}
		}
		st.constraints[a] = kept
	}

	rd, err := r.resolveAt(ctx, st, dep.Alias, addr)
	if err != nil {
		return err
	}
	st.resolved[addr] = rd
	return r.recurse(ctx, st, rd)
}

// resolveAt selects, fetches, and caches the minimum version of addr that
// satisfies every active constraint, then loads the cached tree.
func (r *Resolver) resolveAt(ctx context.Context, st *run, alias types.DependencyAlias, addr types.Address) (*ResolvedDependency, error) {
	tags, err := r.tagsFor(ctx, st, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dependency %s: %v", ErrDependencyResolve, alias, err)
	}

	tag, ok := selectTag(tags, st.constraints[addr])
	if !ok {
		return nil, diamondError(addr, tags, st.constraints[addr])
	}

	version := tag.Version.String()
	if !r.cache.IsCached(string(addr), version) {
		if err := r.fetchIntoCache(ctx, addr, tag); err != nil {
			return nil, fmt.Errorf("%w: dependency %s: %v", ErrDependencyResolve, alias, err)
		}
	}

	root, err := r.cache.Path(string(addr), version)
	if err != nil {
		return nil, fmt.Errorf("%w: dependency %s: %v", ErrDependencyResolve, alias, err)
	}

	rd := &ResolvedDependency{
		Alias:       alias,
		Address:     addr,
		Version:     tag.Version,
		PackageRoot: root,
	}
	if err := r.populateFromRoot(rd); err != nil {
		return nil, fmt.Errorf("%w: dependency %s: %v", ErrDependencyResolve, alias, err)
	}
	r.logger.Debug("resolved dependency", "address", addr, "version", version, "tag", tag.TagName)
	return rd, nil
}

// recurse walks the remote dependencies declared by rd's manifest, with rd's
// address on the resolution stack for the duration.
func (r *Resolver) recurse(ctx context.Context, st *run, rd *ResolvedDependency) error {
	if rd.Manifest == nil {
		return nil
	}

	st.stack = append(st.stack, rd.Address)
	st.onStack[rd.Address] = true
	defer func() {
		st.stack = st.stack[:len(st.stack)-1]
		delete(st.onStack, rd.Address)
	}()

	for _, alias := range sortedDependencyAliases(rd.Manifest.Dependencies) {
		dep := rd.Manifest.Dependencies[alias]
		if dep.IsLocal() {
			if err := r.resolveLocal(st, rd.PackageRoot, dep); err != nil {
				return fmt.Errorf("%w: via %s: %v", ErrTransitiveDependency, rd.Address, err)
			}
			continue
		}
		if err := r.resolveRemote(ctx, st, dep, rd.Address); err != nil {
			return err
		}
	}
	return nil
}

// fetchIntoCache clones addr at tag into a throwaway checkout and stores the
// tree under the package cache.
func (r *Resolver) fetchIntoCache(ctx context.Context, addr types.Address, tag vcs.VersionTag) error {
	checkout, err := os.MkdirTemp("", "plumb-fetch-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(checkout)

	url := vcs.FetchURL(addr)
	if err := r.fetcher.FetchAtTag(ctx, url, tag.TagName, checkout); err != nil {
		return err
	}
	if _, err := r.cache.Store(checkout, string(addr), tag.Version.String()); err != nil {
		return err
	}
	return nil
}

// tagsFor lists addr's version tags, once per run.
func (r *Resolver) tagsFor(ctx context.Context, st *run, addr types.Address) ([]vcs.VersionTag, error) {
	if tags, ok := st.tags[addr]; ok {
		return tags, nil
	}
	tags, err := r.fetcher.ListVersionTags(ctx, vcs.FetchURL(addr))
	if err != nil {
		return nil, err
	}
	st.tags[addr] = tags
	return tags, nil
}

// populateFromRoot loads the manifest, file list, and export set from an
// on-disk package root.
func (r *Resolver) populateFromRoot(rd *ResolvedDependency) error {
	files, err := listFiles(rd.PackageRoot)
	if err != nil {
		return err
	}
	rd.Files = files

	text, err := os.ReadFile(filepath.Join(rd.PackageRoot, manifest.ManifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	m, err := manifest.Parse(string(text), manifest.WithDependencies)
	if err != nil {
		return err
	}
	rd.Manifest = m
	rd.ExportedPipes = exportedPipeSet(m)
	return nil
}

// exportedPipeSet flattens a manifest's exports into one pipe set. Nil means
// no restriction is declared.
func exportedPipeSet(m *manifest.Manifest) map[types.PipeName]bool {
	if m == nil || len(m.Exports) == 0 {
		return nil
	}
	set := make(map[types.PipeName]bool)
	for _, export := range m.Exports {
		for _, pipe := range export.Pipes {
			set[pipe] = true
		}
	}
	if m.MainPipe != "" {
		set[m.MainPipe] = true
	}
	return set
}

// selectTag picks the oldest tag whose version satisfies every record.
func selectTag(tags []vcs.VersionTag, records []constraintRecord) (vcs.VersionTag, bool) {
	versions := make([]*semver.Version, len(tags))
	for i, t := range tags {
		versions[i] = t.Version
	}
	constraints := make([]*semver.Constraint, len(records))
	for i, rec := range records {
		constraints[i] = rec.constraint
	}

	pick := semver.SelectMinimumForAll(versions, constraints)
	if pick == nil {
		return vcs.VersionTag{}, false
	}
	for _, t := range tags {
		if t.Version.Equal(pick) {
			return t, true
		}
	}
	return vcs.VersionTag{}, false
}

func diamondError(addr types.Address, tags []vcs.VersionTag, records []constraintRecord) error {
	e := &DiamondError{Address: addr}
	for _, rec := range records {
		e.Constraints = append(e.Constraints, rec.raw)
	}
	for _, t := range tags {
		e.Available = append(e.Available, t.Version.String())
	}
	return e
}

// listFiles walks root collecting sorted slash-separated relative file
// paths, skipping any .git subtree.
func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func sortedDependencyAliases(deps map[types.DependencyAlias]manifest.Dependency) []types.DependencyAlias {
	aliases := make([]types.DependencyAlias, 0, len(deps))
	for alias := range deps {
		aliases = append(aliases, alias)
	}
	sort.Slice(aliases, func(i, j int) bool { return aliases[i] < aliases[j] })
	return aliases
}
