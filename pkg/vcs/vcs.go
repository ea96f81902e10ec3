// SPDX-License-Identifier: MPL-2.0

// Package vcs maps package addresses to fetchable repositories, discovers
// tagged versions, and fetches single tagged revisions. All remote calls are
// time-bounded; timeouts and unusable transports are distinct error kinds so
// callers can tell a slow host from a misconfigured one.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"plumb-cli/pkg/semver"
	"plumb-cli/pkg/types"
)

// DefaultTimeout bounds a single remote operation when no timeout is configured.
const DefaultTimeout = 30 * time.Second

var (
	// ErrVCSFetch is the root sentinel for repository access failures.
	ErrVCSFetch = fmt.Errorf("%w: vcs fetch", types.Err)

	// ErrFetchTimeout marks a remote operation that exceeded its deadline.
	ErrFetchTimeout = fmt.Errorf("%w: timeout", ErrVCSFetch)

	// ErrNoTransport marks a URL whose scheme no available transport serves.
	ErrNoTransport = fmt.Errorf("%w: no usable transport", ErrVCSFetch)

	// ErrNoMatchingVersion is returned when no discovered tag satisfies a
	// version constraint.
	ErrNoMatchingVersion = fmt.Errorf("%w: no matching version", types.Err)
)

type (
	// VersionTag pairs a parsed semantic version with the repository tag it
	// came from. Only tags parseable as semver (optional leading "v")
	// participate in resolution; other tags are silently ignored.
	VersionTag struct {
		Version *semver.Version
		TagName string
	}

	// FetchError describes a failed remote operation.
	FetchError struct {
		URL types.SourceURL
		Op  string
		Err error
	}

	// NoMatchingVersionError is returned when version resolution finds no tag
	// satisfying the constraint. Available enumerates what the remote offers.
	NoMatchingVersionError struct {
		URL        types.SourceURL
		Constraint string
		Available  []string
	}

	// Fetcher performs remote repository operations.
	Fetcher struct {
		timeout time.Duration
		auth    transport.AuthMethod
		logger  *log.Logger
	}

	// Option configures a Fetcher.
	Option func(*Fetcher)
)

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("vcs %s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the classified cause (ErrFetchTimeout, ErrNoTransport, or
// the raw transport error wrapped under ErrVCSFetch).
func (e *FetchError) Unwrap() error { return e.Err }

// Error implements the error interface.
func (e *NoMatchingVersionError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("no version of %s satisfies %q (no version tags found)", e.URL, e.Constraint)
	}
	return fmt.Sprintf("no version of %s satisfies %q (available: %s)",
		e.URL, e.Constraint, strings.Join(e.Available, ", "))
}

// Unwrap returns ErrNoMatchingVersion so callers can use errors.Is for
// programmatic detection.
func (e *NoMatchingVersionError) Unwrap() error { return ErrNoMatchingVersion }

// WithTimeout sets the per-operation deadline for remote calls.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithLogger sets the logger used for fetch tracing.
func WithLogger(logger *log.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// NewFetcher creates a Fetcher. Token authentication is picked up from the
// environment (GIT_TOKEN, then GITHUB_TOKEN) for private HTTPS hosts.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout: DefaultTimeout,
		auth:    tokenAuthFromEnv(os.Getenv),
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchURL maps a package address to its fetch URL. Pure transform: sources
// are identified directly by version-control address, so the URL is just the
// secure scheme in front of the address.
func FetchURL(address types.Address) types.SourceURL {
	return types.SourceURL("https://" + string(address))
}

// ListVersionTags queries the remote for tags and returns those parseable as
// semantic versions, oldest first, each paired with its original tag name.
func (f *Fetcher) ListVersionTags(ctx context.Context, url types.SourceURL) ([]VersionTag, error) {
	if err := checkTransport(url); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{string(url)},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: f.auth})
	if err != nil {
		return nil, f.classify(url, "list tags", err)
	}

	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.Name().IsTag() {
			names = append(names, ref.Name().Short())
		}
	}

	tags := FilterTags(names)
	f.logger.Debug("listed version tags", "url", url, "total", len(names), "semver", len(tags))
	return tags, nil
}

// FilterTags keeps tag names parseable as semantic versions and returns them
// as VersionTags sorted oldest first. Non-semver tags are silently ignored.
func FilterTags(names []string) []VersionTag {
	tags := make([]VersionTag, 0, len(names))
	for _, name := range names {
		v, err := semver.Parse(name)
		if err != nil {
			continue
		}
		tags = append(tags, VersionTag{Version: v, TagName: name})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Version.LessThan(tags[j].Version) })
	return tags
}

// ResolveVersion selects the oldest tag satisfying the constraint. The
// returned error enumerates available versions when nothing matches.
func ResolveVersion(url types.SourceURL, tags []VersionTag, constraintStr string) (VersionTag, error) {
	constraint, err := semver.ParseConstraint(constraintStr)
	if err != nil {
		return VersionTag{}, err
	}

	versions := make([]*semver.Version, 0, len(tags))
	for _, t := range tags {
		versions = append(versions, t.Version)
	}

	selected := semver.SelectMinimum(versions, constraint)
	if selected == nil {
		available := make([]string, 0, len(tags))
		for _, t := range tags {
			available = append(available, t.Version.String())
		}
		return VersionTag{}, &NoMatchingVersionError{URL: url, Constraint: constraintStr, Available: available}
	}

	for _, t := range tags {
		if t.Version.Equal(selected) {
			return t, nil
		}
	}
	// Unreachable: selected always comes from tags.
	return VersionTag{}, &NoMatchingVersionError{URL: url, Constraint: constraintStr}
}

// FetchAtTag clones exactly one tagged revision into dest: shallow, single
// branch. On any failure dest is removed wholesale so no partial state
// remains.
func (f *Fetcher) FetchAtTag(ctx context.Context, url types.SourceURL, tagName, dest string) error {
	if err := checkTransport(url); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &FetchError{URL: url, Op: "fetch", Err: fmt.Errorf("%w: %v", ErrVCSFetch, err)}
	}

	f.logger.Debug("fetching tagged revision", "url", url, "tag", tagName)
	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:           string(url),
		Auth:          f.auth,
		ReferenceName: plumbing.NewTagReferenceName(tagName),
		SingleBranch:  true,
		Depth:         1,
	})
	if err != nil {
		_ = os.RemoveAll(dest)
		return f.classify(url, "fetch "+tagName, err)
	}
	return nil
}

// CloneHead clones the repository's default branch into dest: shallow, single
// branch. Used by repository discovery, which scans a tree rather than a
// tagged release. dest is removed wholesale on failure.
func (f *Fetcher) CloneHead(ctx context.Context, url types.SourceURL, dest string) error {
	if err := checkTransport(url); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:          string(url),
		Auth:         f.auth,
		SingleBranch: true,
		Depth:        1,
	})
	if err != nil {
		_ = os.RemoveAll(dest)
		return f.classify(url, "clone", err)
	}
	return nil
}

// classify wraps a transport error under the matching sentinel.
func (f *Fetcher) classify(url types.SourceURL, op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &FetchError{URL: url, Op: op, Err: fmt.Errorf("%w after %s", ErrFetchTimeout, f.timeout)}
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return &FetchError{URL: url, Op: op, Err: fmt.Errorf("%w: repository not found", ErrVCSFetch)}
	default:
		return &FetchError{URL: url, Op: op, Err: fmt.Errorf("%w: %v", ErrVCSFetch, err)}
	}
}

// checkTransport rejects URLs whose scheme no transport serves.
func checkTransport(url types.SourceURL) error {
	s := string(url)
	if strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "ssh://") || strings.HasPrefix(s, "git@") {
		return nil
	}
	return &FetchError{
		URL: url,
		Op:  "dial",
		Err: fmt.Errorf("%w for %q (expected https://, ssh://, or git@)", ErrNoTransport, url),
	}
}

// tokenAuthFromEnv configures HTTPS token authentication from the
// environment, if present.
func tokenAuthFromEnv(getenv func(string) string) transport.AuthMethod {
	if token := getenv("GIT_TOKEN"); token != "" {
		return &http.BasicAuth{Username: "git", Password: token}
	}
	if token := getenv("GITHUB_TOKEN"); token != "" {
		return &http.BasicAuth{Username: "x-access-token", Password: token}
	}
	return nil
}
