// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestAddressValidate(t *testing.T) {
	tests := []struct {
		name    string
		addr    Address
		wantErr bool
	}{
		{name: "valid two segments", addr: "example.com/pipes"},
		{name: "valid deep path", addr: "git.corp.io/platform/etl-core"},
		{name: "empty", addr: "", wantErr: true},
		{name: "no path", addr: "example.com", wantErr: true},
		{name: "hostname without dot", addr: "localhost/pkg", wantErr: true},
		{name: "empty segment", addr: "example.com//pkg", wantErr: true},
		{name: "dot-dot segment", addr: "example.com/../etc", wantErr: true},
		{name: "invalid characters", addr: "example.com/pkg name", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.addr.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("error does not wrap ErrInvalidAddress: %v", err)
			}
		})
	}
}

func TestAddressHostname(t *testing.T) {
	if got := Address("example.com/org/pkg").Hostname(); got != "example.com" {
		t.Errorf("Hostname() = %q, want %q", got, "example.com")
	}
}

func TestDomainPathValidate(t *testing.T) {
	tests := []struct {
		name    string
		path    DomainPath
		wantErr bool
	}{
		{name: "single segment", path: "etl"},
		{name: "nested", path: "etl.staging_v2"},
		{name: "empty", path: "", wantErr: true},
		{name: "uppercase", path: "Etl", wantErr: true},
		{name: "leading digit", path: "2fast", wantErr: true},
		{name: "trailing dot", path: "etl.", wantErr: true},
		{name: "hyphen", path: "etl-core", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.path.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestDomainPathCheckReserved(t *testing.T) {
	if err := DomainPath("plumb.core").CheckReserved(); !errors.Is(err, ErrReservedDomain) {
		t.Errorf("expected ErrReservedDomain for plumb.core, got %v", err)
	}
	if err := DomainPath("internal").CheckReserved(); !errors.Is(err, ErrReservedDomain) {
		t.Errorf("expected ErrReservedDomain for internal, got %v", err)
	}
	if err := DomainPath("etl.internal").CheckReserved(); err != nil {
		t.Errorf("reservation only applies to the first segment, got %v", err)
	}
}

func TestDigestValidate(t *testing.T) {
	valid := Digest("sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08")
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid digest rejected: %v", err)
	}
	if got := valid.Algorithm(); got != "sha256" {
		t.Errorf("Algorithm() = %q, want sha256", got)
	}

	tests := []struct {
		name   string
		digest Digest
	}{
		{name: "no colon", digest: "sha256deadbeef"},
		{name: "uppercase hex", digest: "sha256:ABCDEF"},
		{name: "sha256 wrong length", digest: "sha256:abcdef"},
		{name: "empty", digest: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.digest.Validate(); !errors.Is(err, ErrInvalidDigest) {
				t.Errorf("Validate(%q) = %v, want ErrInvalidDigest", tt.digest, err)
			}
		})
	}
}

func TestSourceURLValidate(t *testing.T) {
	if err := SourceURL("https://example.com/org/pkg").Validate(); err != nil {
		t.Fatalf("valid URL rejected: %v", err)
	}
	if err := SourceURL("http://example.com/org/pkg").Validate(); !errors.Is(err, ErrInvalidSourceURL) {
		t.Errorf("insecure URL accepted")
	}
}

func TestDependencyAliasValidate(t *testing.T) {
	tests := []struct {
		name    string
		alias   DependencyAlias
		wantErr bool
	}{
		{name: "simple", alias: "dep"},
		{name: "with hyphen and digits", alias: "etl-tools2"},
		{name: "single char", alias: "x", wantErr: true},
		{name: "leading digit", alias: "2dep", wantErr: true},
		{name: "uppercase", alias: "Dep", wantErr: true},
		{name: "too long", alias: "abcdefghijklmnopqrstuvwxyz", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.alias.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, wantErr %v", tt.alias, err, tt.wantErr)
			}
		})
	}
}
