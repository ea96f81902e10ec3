// SPDX-License-Identifier: MPL-2.0

package visibility

import (
	"errors"
	"strings"
	"testing"

	"plumb-cli/pkg/manifest"
	"plumb-cli/pkg/types"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Ref
		wantErr bool
	}{
		{"bare", "run", Ref{LocalCode: "run"}, false},
		{"qualified", "etl.extract.fetch", Ref{Domain: "etl.extract", LocalCode: "fetch"}, false},
		{"single domain segment", "etl.fetch", Ref{Domain: "etl", LocalCode: "fetch"}, false},
		{"cross package", "dep->etl.fetch", Ref{Alias: "dep", Domain: "etl", LocalCode: "fetch"}, false},
		{"empty", "", Ref{}, true},
		{"bad pipe", "Run", Ref{}, true},
		{"bad domain", "Etl.fetch", Ref{}, true},
		{"alias without target", "dep->", Ref{}, true},
		{"bad alias", "DEP->etl.fetch", Ref{}, true},
		{"alias with bare target", "dep->fetch", Ref{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRef(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRef(%q) = %+v, want error", tt.raw, got)
				}
				if !errors.Is(err, ErrQualifiedRef) {
					t.Errorf("error %v does not match ErrQualifiedRef", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRef(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseRef(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func exportingManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Address:     "host.example/org/pkg",
		Version:     "1.0.0",
		Description: "test",
		Exports: map[types.DomainPath]manifest.Export{
			"etl": {Pipes: []types.PipeName{"extract", "load"}},
		},
	}
}

func TestCheckBareAndSameDomainAlwaysPass(t *testing.T) {
	bundles := []Bundle{
		{Domain: "etl", PipeReferences: []string{"extract", "etl.load", "helper_step"}},
	}
	if got := Check(exportingManifest(), bundles); len(got) != 0 {
		t.Errorf("unexpected violations: %v", got)
	}
}

func TestCheckQualifiedAgainstExports(t *testing.T) {
	bundles := []Bundle{
		{Domain: "reporting", PipeReferences: []string{"etl.extract", "etl.cleanup"}},
	}
	got := Check(exportingManifest(), bundles)
	if len(got) != 1 {
		t.Fatalf("got %d violations, want 1: %v", len(got), got)
	}
	v := got[0]
	if v.SourceDomain != "reporting" || v.TargetDomain != "etl" {
		t.Errorf("violation domains = %s -> %s, want reporting -> etl", v.SourceDomain, v.TargetDomain)
	}
	if v.PipeRef != "etl.cleanup" {
		t.Errorf("violation ref = %q", v.PipeRef)
	}
	if !strings.Contains(v.Message, "not exported") {
		t.Errorf("message %q does not name the export failure", v.Message)
	}
}

func TestCheckMainPipeImplicitlyExported(t *testing.T) {
	bundles := []Bundle{
		{Domain: "etl", MainPipe: "run_all"},
		{Domain: "reporting", PipeReferences: []string{"etl.run_all"}},
	}
	if got := Check(exportingManifest(), bundles); len(got) != 0 {
		t.Errorf("main pipe reference rejected: %v", got)
	}
}

func TestCheckNilManifestUnrestricted(t *testing.T) {
	bundles := []Bundle{
		{Domain: "reporting", PipeReferences: []string{"etl.anything"}},
	}
	if got := Check(nil, bundles); len(got) != 0 {
		t.Errorf("nil manifest still restricted: %v", got)
	}
	empty := exportingManifest()
	empty.Exports = nil
	if got := Check(empty, bundles); len(got) != 0 {
		t.Errorf("export-free manifest still restricted: %v", got)
	}
}

func TestCheckCrossPackageAlwaysRejected(t *testing.T) {
	bundles := []Bundle{
		{Domain: "reporting", PipeReferences: []string{"dep->etl.extract"}},
	}
	got := Check(exportingManifest(), bundles)
	if len(got) != 1 {
		t.Fatalf("got %d violations, want 1: %v", len(got), got)
	}
	if !strings.Contains(got[0].Message, "not supported") {
		t.Errorf("message %q does not say cross-package is unsupported", got[0].Message)
	}
}

func TestCheckReservedDomainRejected(t *testing.T) {
	bundles := []Bundle{
		{Domain: "plumb.core", PipeReferences: []string{"run"}},
	}
	got := Check(exportingManifest(), bundles)
	if len(got) != 1 {
		t.Fatalf("got %d violations, want 1: %v", len(got), got)
	}
	if !strings.Contains(got[0].Message, "reserved") {
		t.Errorf("message %q does not name the reserved segment", got[0].Message)
	}
}

func TestCheckCollectsAllViolations(t *testing.T) {
	bundles := []Bundle{
		{Domain: "reporting", PipeReferences: []string{"etl.cleanup", "etl.secret", "Bad Ref"}},
		{Domain: "billing", PipeReferences: []string{"etl.cleanup"}},
	}
	got := Check(exportingManifest(), bundles)
	if len(got) != 4 {
		t.Fatalf("got %d violations, want 4: %v", len(got), got)
	}
	// sorted by source domain then reference
	if got[0].SourceDomain != "billing" || got[1].SourceDomain != "reporting" {
		t.Errorf("violations not sorted by source domain: %v", got)
	}
}
