package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("command %v: %v", args, err)
	}
	return buf.String()
}

func TestVersionCommand(t *testing.T) {
	out := runCommand(t, "version")
	if !strings.HasPrefix(out, "pd version ") {
		t.Fatalf("version output = %q", out)
	}
	if !strings.Contains(out, "commit:") {
		t.Fatalf("version output missing commit: %q", out)
	}
}

func TestResolveCommand(t *testing.T) {
	mappingFile := filepath.Join(t.TempDir(), "accounts.yml")
	doc := `
version: 1
defaults:
  - baseline-tagging
accounts:
  "111111111111":
    events:
      RunInstances:
        - ec2-require-tags
        - ec2-encryption-required
`
	if err := os.WriteFile(mappingFile, []byte(doc), 0o644); err != nil {
		t.Fatalf("write mapping: %v", err)
	}

	out := runCommand(t, "resolve",
		"--mapping", mappingFile,
		"--account", "111111111111",
		"--event-name", "RunInstances")

	want := "ec2-require-tags\nec2-encryption-required\n"
	if out != want {
		t.Fatalf("resolve output = %q, want %q", out, want)
	}
}

func TestResolveCommand_NoMatch(t *testing.T) {
	mappingFile := filepath.Join(t.TempDir(), "accounts.yml")
	if err := os.WriteFile(mappingFile, []byte("version: 1\n"), 0o644); err != nil {
		t.Fatalf("write mapping: %v", err)
	}

	out := runCommand(t, "resolve",
		"--mapping", mappingFile,
		"--account", "999999999999",
		"--event-name", "DeleteTrail")

	if !strings.Contains(out, "No policies resolved.") {
		t.Fatalf("output = %q", out)
	}
}
