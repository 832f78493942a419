package config

import (
	"os"
	"path/filepath"
	"testing"
)

// chdir changes the working directory for the duration of the test,
// matching the behavior of testing.T.Chdir from Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("failed to restore working directory: %v", err)
		}
	})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestLoadFindsConfigInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "schemapatch.toml"), `
default_environment = "local"
plan = "patches/plan.yaml"

[environments.local]
url = "postgresql://localhost:5432/app"
`)
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultEnvironment != "local" {
		t.Errorf("expected default_environment local, got %q", cfg.DefaultEnvironment)
	}
	if cfg.Environments["local"].URL != "postgresql://localhost:5432/app" {
		t.Errorf("environment url not decoded: %+v", cfg.Environments)
	}
	if cfg.ConfigFilePath == "" {
		t.Error("expected ConfigFilePath to be set")
	}
}

func TestLoadWalksUpToProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "schemapatch.toml"), `default_environment = "ci"`)
	nested := filepath.Join(root, "services", "api")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}
	chdir(t, nested)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultEnvironment != "ci" {
		t.Errorf("expected config from the parent directory, got %+v", cfg)
	}
}

func TestLoadStopsAtProjectRootMarker(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "schemapatch.toml"), `default_environment = "outer"`)
	inner := filepath.Join(root, "subproject")
	writeFile(t, filepath.Join(inner, "go.mod"), "module example.com/subproject\n")
	chdir(t, inner)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultEnvironment != "" {
		t.Errorf("search must stop at the go.mod marker, got %+v", cfg)
	}
}

func TestLoadMissingConfigIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "go.mod"), "module example.com/app\n")
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg == nil || cfg.ConfigFilePath != "" {
		t.Errorf("expected an empty config, got %+v", cfg)
	}
}

func TestPlanPathResolvesAgainstConfigDir(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Plan:           "patches/plan.yaml",
		ConfigFilePath: filepath.Join(dir, "schemapatch.toml"),
	}
	want := filepath.Join(dir, "patches", "plan.yaml")
	if got := cfg.PlanPath(); got != want {
		t.Errorf("PlanPath() = %q, want %q", got, want)
	}

	abs := filepath.Join(dir, "other", "plan.yaml")
	cfg.Plan = abs
	if got := cfg.PlanPath(); got != abs {
		t.Errorf("absolute plan paths must pass through, got %q", got)
	}
}
