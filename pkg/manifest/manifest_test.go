// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"plumb-cli/pkg/types"
)

const validManifest = `
[package]
address = "example.com/org/pipes"
version = "1.2.0"
description = "Reusable ETL pipeline components"
display_name = "Org Pipes"
authors = ["Dana <dana@example.com>"]
license = "MIT"
main_pipe = "run_all"

[dependencies.etl-tools]
address = "example.com/org/etl-tools"
version = "^1.0.0"

[dependencies.local_utils]
path = "vendor/utils"

[exports.etl]
pipes = ["extract", "load"]

[exports.etl.staging]
pipes = ["snapshot"]
`

func TestParseValid(t *testing.T) {
	m, err := Parse(validManifest, WithDependencies)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if m.Address != "example.com/org/pipes" {
		t.Errorf("Address = %q", m.Address)
	}
	if m.Version != "1.2.0" {
		t.Errorf("Version = %q", m.Version)
	}
	if m.MainPipe != "run_all" {
		t.Errorf("MainPipe = %q", m.MainPipe)
	}

	remote, ok := m.Dependencies["etl-tools"]
	if !ok {
		t.Fatal("missing etl-tools dependency")
	}
	if remote.IsLocal() || remote.Address != "example.com/org/etl-tools" || remote.VersionConstraint != "^1.0.0" {
		t.Errorf("remote dependency = %+v", remote)
	}

	local, ok := m.Dependencies["local_utils"]
	if !ok {
		t.Fatal("missing local_utils dependency")
	}
	if !local.IsLocal() || local.LocalPath != "vendor/utils" {
		t.Errorf("local dependency = %+v", local)
	}

	wantExports := map[types.DomainPath]Export{
		"etl":         {Pipes: []types.PipeName{"extract", "load"}},
		"etl.staging": {Pipes: []types.PipeName{"snapshot"}},
	}
	if !reflect.DeepEqual(m.Exports, wantExports) {
		t.Errorf("Exports = %#v, want %#v", m.Exports, wantExports)
	}
}

func TestParseClosedSchema(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{
			name: "unknown top-level section",
			text: "[package]\naddress = \"example.com/p\"\nversion = \"1.0.0\"\ndescription = \"d\"\n\n[build]\nscript = \"make\"\n",
		},
		{
			name: "unknown key in package",
			text: "[package]\naddress = \"example.com/p\"\nversion = \"1.0.0\"\ndescription = \"d\"\nhomepage = \"https://x\"\n",
		},
		{
			name: "unknown key in dependency table",
			text: validManifest + "\n[dependencies.extra]\naddress = \"example.com/org/extra\"\nversion = \"^1.0.0\"\nbranch = \"main\"\n",
		},
		{
			name: "pipes outside a domain",
			text: "[package]\naddress = \"example.com/p\"\nversion = \"1.0.0\"\ndescription = \"d\"\n\n[exports]\npipes = [\"x\"]\n",
		},
		{
			name: "pipes not a string array",
			text: "[package]\naddress = \"example.com/p\"\nversion = \"1.0.0\"\ndescription = \"d\"\n\n[exports.api]\npipes = [1, 2]\n",
		},
		{
			name: "malformed toml",
			text: "[package\naddress=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse(tt.text, WithDependencies)
			if m != nil {
				t.Fatal("partial manifest returned on parse failure")
			}
			if !errors.Is(err, ErrParse) {
				t.Fatalf("error = %v, want ErrParse", err)
			}
		})
	}
}

func TestParseDeclarativeRejectsDependencies(t *testing.T) {
	_, err := Parse(validManifest, WithDependencies)
	if err != nil {
		t.Fatalf("WithDependencies variant should accept: %v", err)
	}

	_, err = Parse(validManifest, Declarative)
	if !errors.Is(err, ErrParse) {
		t.Fatalf("Declarative variant error = %v, want ErrParse", err)
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatal("error is not a *ParseError")
	}
}

func TestParseSemanticIssuesCollected(t *testing.T) {
	text := `
[package]
address = "nodots/pkg"
version = "not-semver"
description = ""

[dependencies.dep]
address = "example.com/org/dep"
version = "^1.0.0"
path = "vendor/dep"

[exports.plumb]
pipes = ["x"]
`
	_, err := Parse(text, WithDependencies)
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatal("error does not wrap ErrValidation")
	}

	// address shape, version, description, ambiguous dependency, reserved domain
	if len(valErr.Issues) < 5 {
		t.Fatalf("expected at least 5 collected issues, got %d: %v", len(valErr.Issues), valErr.Issues)
	}
	text = valErr.Error()
	for _, fragment := range []string{"address", "version", "description", "exactly one", "reserved"} {
		if !strings.Contains(text, fragment) {
			t.Errorf("issue list missing %q: %s", fragment, text)
		}
	}
}

func TestParseDependencyDeclaresNeitherForm(t *testing.T) {
	text := `
[package]
address = "example.com/pkg"
version = "1.0.0"
description = "d"

[dependencies.dep]
`
	_, err := Parse(text, WithDependencies)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestParseLocalPathTraversalRejected(t *testing.T) {
	text := `
[package]
address = "example.com/pkg"
version = "1.0.0"
description = "d"

[dependencies.dep]
path = "../outside"
`
	_, err := Parse(text, WithDependencies)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestParseDisplayNameLimit(t *testing.T) {
	text := "[package]\naddress = \"example.com/p\"\nversion = \"1.0.0\"\ndescription = \"d\"\ndisplay_name = \"" +
		strings.Repeat("x", MaxDisplayNameLength+1) + "\"\n"
	_, err := Parse(text, Declarative)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestRoundTrip(t *testing.T) {
	original, err := Parse(validManifest, WithDependencies)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	reparsed, err := Parse(Serialize(original), WithDependencies)
	if err != nil {
		t.Fatalf("Parse(Serialize(m)): %v", err)
	}

	if !reflect.DeepEqual(original, reparsed) {
		t.Errorf("round trip mismatch:\noriginal: %#v\nreparsed: %#v", original, reparsed)
	}
}

func TestRoundTripDeclarative(t *testing.T) {
	text := `
[package]
address = "example.com/org/pipes"
version = "0.3.1"
description = "declarative only"
authors = []
mthds_version = "1.0.0"

[exports.api]
pipes = ["run"]
`
	original, err := Parse(text, Declarative)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	reparsed, err := Parse(Serialize(original), Declarative)
	if err != nil {
		t.Fatalf("Parse(Serialize(m)): %v", err)
	}
	if !reflect.DeepEqual(original, reparsed) {
		t.Errorf("round trip mismatch:\noriginal: %#v\nreparsed: %#v", original, reparsed)
	}
}
