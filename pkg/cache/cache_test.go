// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func writeTree(t *testing.T, root string, files map[string]string) string {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func TestPath(t *testing.T) {
	c := newTestCache(t)

	tests := []struct {
		name    string
		address string
		version string
		wantErr bool
	}{
		{"valid", "github.com/acme/fleet", "1.2.3", false},
		{"traversal in address", "../../etc", "1.0.0", true},
		{"traversal in version", "github.com/acme/fleet", "../..", true},
		{"dot-dot inside address", "github.com/../acme", "1.0.0", true},
		{"dot segment in address", "github.com/./acme", "1.0.0", true},
		{"empty segment in address", "github.com//acme", "1.0.0", true},
		{"single dot-dot version", "github.com/acme/fleet", "..", true},
		{"dot version", "github.com/acme/fleet", ".", true},
		{"separator in version", "github.com/acme/fleet", "1.0.0/extra", true},
		{"backslash in version", "github.com/acme/fleet", `1.0.0\extra`, true},
		{"in-root traversal via version", "github.com/acme/fleet", "../../other", true},
		{"empty address", "", "1.0.0", true},
		{"empty version", "github.com/acme/fleet", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Path(tt.address, tt.version)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Path(%q, %q) = %q, want error", tt.address, tt.version, got)
				}
				if !errors.Is(err, ErrPathTraversal) {
					t.Errorf("error %v does not match ErrPathTraversal", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Path(%q, %q): %v", tt.address, tt.version, err)
			}
			want := filepath.Join(c.Root(), "github.com", "acme", "fleet", "1.2.3")
			if got != want {
				t.Errorf("Path = %q, want %q", got, want)
			}
		})
	}
}

func TestStoreAndIsCached(t *testing.T) {
	c := newTestCache(t)
	src := writeTree(t, t.TempDir(), map[string]string{
		"plumb.toml":          "[package]\n",
		"pipes/main.toml":     "pipe\n",
		".git/config":         "should be stripped\n",
		".git/objects/aa/bbb": "object\n",
	})

	if c.IsCached("example.com/org/pkg", "1.0.0") {
		t.Fatal("IsCached true before Store")
	}

	dir, err := c.Store(src, "example.com/org/pkg", "1.0.0")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !c.IsCached("example.com/org/pkg", "1.0.0") {
		t.Error("IsCached false after Store")
	}
	if _, err := os.Stat(filepath.Join(dir, "plumb.toml")); err != nil {
		t.Errorf("stored manifest missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "pipes", "main.toml")); err != nil {
		t.Errorf("stored nested file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); !os.IsNotExist(err) {
		t.Error(".git subtree was not stripped")
	}
}

func TestStoreSkipsSymlinks(t *testing.T) {
	src := writeTree(t, t.TempDir(), map[string]string{"real.txt": "data\n"})
	if err := os.Symlink(filepath.Join(src, "real.txt"), filepath.Join(src, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	c := newTestCache(t)
	dir, err := c.Store(src, "example.com/org/pkg", "1.0.0")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(dir, "link.txt")); !os.IsNotExist(err) {
		t.Error("symlink was copied into the cache")
	}
	if _, err := os.Stat(filepath.Join(dir, "real.txt")); err != nil {
		t.Errorf("regular file missing: %v", err)
	}
}

func TestStoreReplacesExistingEntry(t *testing.T) {
	c := newTestCache(t)

	first := writeTree(t, t.TempDir(), map[string]string{"a.txt": "old\n", "stale.txt": "x\n"})
	if _, err := c.Store(first, "example.com/org/pkg", "1.0.0"); err != nil {
		t.Fatalf("first Store: %v", err)
	}

	second := writeTree(t, t.TempDir(), map[string]string{"a.txt": "new\n"})
	dir, err := c.Store(second, "example.com/org/pkg", "1.0.0")
	if err != nil {
		t.Fatalf("second Store: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "new\n" {
		t.Errorf("a.txt = %q, want %q", data, "new\n")
	}
	if _, err := os.Stat(filepath.Join(dir, "stale.txt")); !os.IsNotExist(err) {
		t.Error("stale file from previous entry survived the swap")
	}
}

func TestStoreLeavesNoStagingOnFailure(t *testing.T) {
	c := newTestCache(t)
	if _, err := c.Store(filepath.Join(t.TempDir(), "missing"), "example.com/org/pkg", "1.0.0"); err == nil {
		t.Fatal("Store with missing source succeeded")
	}
	var staging []string
	err := filepath.WalkDir(c.Root(), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.Contains(d.Name(), ".staging-") {
			staging = append(staging, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(staging) != 0 {
		t.Errorf("staging directories left behind: %v", staging)
	}
	if c.IsCached("example.com/org/pkg", "1.0.0") {
		t.Error("failed Store produced a cached entry")
	}
}

func TestEvict(t *testing.T) {
	c := newTestCache(t)
	src := writeTree(t, t.TempDir(), map[string]string{"a.txt": "x\n"})
	if _, err := c.Store(src, "example.com/org/pkg", "1.0.0"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if !c.Evict("example.com/org/pkg", "1.0.0") {
		t.Error("Evict returned false for existing entry")
	}
	if c.IsCached("example.com/org/pkg", "1.0.0") {
		t.Error("entry still cached after Evict")
	}
	if c.Evict("example.com/org/pkg", "1.0.0") {
		t.Error("Evict returned true for absent entry")
	}
}

func TestEvictRejectsDotDotVersion(t *testing.T) {
	c := newTestCache(t)
	src := writeTree(t, t.TempDir(), map[string]string{"a.txt": "x\n"})
	if _, err := c.Store(src, "example.com/org/pkg", "1.0.0"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := c.Store(src, "example.com/org/pkg", "2.0.0"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	// a dot-dot version names the address directory itself; evicting it
	// would wipe every cached version under the prefix
	if c.Evict("example.com/org/pkg", "..") {
		t.Fatal("Evict accepted a dot-dot version")
	}
	if !c.IsCached("example.com/org/pkg", "1.0.0") || !c.IsCached("example.com/org/pkg", "2.0.0") {
		t.Error("sibling entries were removed")
	}
}

func TestStoreRejectsDotDotVersion(t *testing.T) {
	c := newTestCache(t)
	src := writeTree(t, t.TempDir(), map[string]string{"a.txt": "x\n"})
	if _, err := c.Store(src, "example.com/org/pkg", "1.0.0"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if _, err := c.Store(src, "example.com/org/pkg", ".."); !errors.Is(err, ErrPathTraversal) {
		t.Fatalf("Store with dot-dot version: %v, want ErrPathTraversal", err)
	}
	if !c.IsCached("example.com/org/pkg", "1.0.0") {
		t.Error("existing entry was replaced")
	}
}

func TestDefaultRootWith(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		got, err := DefaultRootWith(func(key string) string {
			if key == EnvCacheRoot {
				return "/custom/packages"
			}
			return ""
		})
		if err != nil {
			t.Fatalf("DefaultRootWith: %v", err)
		}
		if got != "/custom/packages" {
			t.Errorf("root = %q, want %q", got, "/custom/packages")
		}
	})

	t.Run("home fallback", func(t *testing.T) {
		got, err := DefaultRootWith(func(string) string { return "" })
		if err != nil {
			t.Fatalf("DefaultRootWith: %v", err)
		}
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skipf("no home dir: %v", err)
		}
		want := filepath.Join(home, ".plumb", "packages")
		if got != want {
			t.Errorf("root = %q, want %q", got, want)
		}
	})
}
