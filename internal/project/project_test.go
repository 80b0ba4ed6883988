package project

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindCgenTomlWalksUp(t *testing.T) {
	root := t.TempDir()
	manifest := filepath.Join(root, "cgen.toml")
	if err := os.WriteFile(manifest, []byte("[build]\ntarget = \"arm64\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	path, ok, err := FindCgenToml(nested)
	if err != nil || !ok {
		t.Fatalf("FindCgenToml = %q, %v, %v", path, ok, err)
	}
	if path != manifest {
		t.Errorf("path = %q, want %q", path, manifest)
	}
}

func TestDiscoverConfigDefaultsWhenAbsent(t *testing.T) {
	cfg, err := DiscoverConfig(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Build.Target != "" || cfg.Build.EmitIR {
		t.Errorf("config = %+v, want zero defaults", cfg)
	}
}

func TestLoadConfigParsesBuildSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cgen.toml")
	body := "[build]\ntarget = \"amd64\"\nemit-ir = true\nbits = true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Build.Target != "amd64" || !cfg.Build.EmitIR || !cfg.Build.Bits {
		t.Errorf("config = %+v", cfg.Build)
	}
}

func TestLoadConfigRejectsMalformedToml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cgen.toml")
	if err := os.WriteFile(path, []byte("[build\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}
