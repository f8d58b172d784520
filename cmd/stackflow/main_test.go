package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/stackflow/cache"
)

const testManifest = `
[project]
name = "demo"

[analysis]
version = "3.9"
workers = 2

[cache]
enabled = true
path = "cache.db"

[[unit]]
name = "count"
locals = 1
constants = [{ type = "int" }]
code = """
    LOAD_CONST 0
    STORE_FAST 0
loop:
    LOAD_FAST 0
    LOAD_CONST 0
    INPLACE_ADD
    STORE_FAST 0
    JUMP_ABSOLUTE loop
"""
`

func setup(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "stackflow.toml")
	if err := os.WriteFile(path, []byte(testManifest+extra), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestTextFormat(t *testing.T) {
	config := setup(t, "")
	code, out, errOut := runCLI(t, "-config", config)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	for _, want := range []string{
		"# === count",
		"B0 [0, 2) fallthrough->B1",
		"B1 [2, 7) jump->B1",
		"INPLACE_ADD",
		"stack=[int, int] locals=[int]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestYAMLUsesCache(t *testing.T) {
	config := setup(t, "")
	code, first, errOut := runCLI(t, "-format", "yaml", config)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(first, "function: count") {
		t.Errorf("yaml output:\n%s", first)
	}

	db, err := cache.OpenSQLite(filepath.Join(filepath.Dir(config), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	n, err := db.Len(context.Background())
	db.Close()
	if err != nil || n != 1 {
		t.Fatalf("cache holds %d summaries (%v), want 1", n, err)
	}

	code, second, _ := runCLI(t, "-format", "yaml", config)
	if code != 0 || second != first {
		t.Errorf("cached run differs:\n%s\nvs\n%s", second, first)
	}

	code, out, _ := runCLI(t, "-prune", "1ns", config)
	if code != 0 || !strings.Contains(out, "pruned") {
		t.Errorf("prune: exit %d, %q", code, out)
	}
}

func TestPackRoundTrip(t *testing.T) {
	config := setup(t, "")
	bundle := filepath.Join(t.TempDir(), "units.cbor")
	if code, _, errOut := runCLI(t, "-pack", bundle, config); code != 0 {
		t.Fatalf("pack: exit %d: %s", code, errOut)
	}
	units, err := readUnits(bundle)
	if err != nil {
		t.Fatalf("readUnits: %v", err)
	}
	if len(units) != 1 || units[0].Name != "count" || len(units[0].Code) != 7 {
		t.Fatalf("units = %+v", units)
	}

	empty := setup(t, "")
	code, out, errOut := runCLI(t, "-no-cache", "-format", "dot", "-config", empty, bundle)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if strings.Count(out, `digraph "count"`) != 2 {
		t.Errorf("want the manifest unit and the bundled unit:\n%s", out)
	}
}

func TestYAMLBundleInput(t *testing.T) {
	config := setup(t, "")
	path := filepath.Join(t.TempDir(), "units.yaml")
	src := `units:
  - name: ret
    locals: 0
    constants:
      - type: str
    code:
      - op: LOAD_CONST
      - op: RETURN_VALUE
`
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := runCLI(t, "-no-cache", "-config", config, path)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "# === ret") || !strings.Contains(out, "stack=[str]") {
		t.Errorf("output:\n%s", out)
	}
}

func TestFailures(t *testing.T) {
	bad := setup(t, `
[[unit]]
name = "broken"
code = "POP_TOP\nRETURN_VALUE"
`)
	code, out, errOut := runCLI(t, "-no-cache", bad)
	if code != 1 {
		t.Errorf("exit %d, want 1", code)
	}
	if !strings.Contains(errOut, "broken:") || !strings.Contains(out, "# === count") {
		t.Errorf("a failing unit should not hide the others:\nstdout %s\nstderr %s", out, errOut)
	}

	if code, _, _ := runCLI(t, "-format", "xml", bad); code != 1 {
		t.Errorf("unknown format: exit %d, want 1", code)
	}
	if code, _, _ := runCLI(t, "-no-cache", "-config", bad, "notes.txt"); code != 1 {
		t.Errorf("unsupported input: exit %d, want 1", code)
	}
	if code, _, _ := runCLI(t, "-bogus"); code != 2 {
		t.Errorf("bad flag: exit %d, want 2", code)
	}
}
