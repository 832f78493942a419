package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func configAt(t *testing.T, dir string) *Config {
	t.Helper()
	return &Config{
		DefaultEnvironment: "local",
		Environments: map[string]EnvironmentConfig{
			"local": {URL: "postgresql://localhost:5432/app"},
		},
		ConfigFilePath: filepath.Join(dir, "schemapatch.toml"),
	}
}

func TestResolveEnvironmentFromConfig(t *testing.T) {
	dir := t.TempDir()
	resolved, err := ResolveEnvironment(configAt(t, dir), "local")
	if err != nil {
		t.Fatalf("ResolveEnvironment failed: %v", err)
	}
	if !resolved.FromConfig {
		t.Error("expected FromConfig to be set")
	}
	if resolved.DatabaseURL != "postgresql://localhost:5432/app" {
		t.Errorf("unexpected url %q", resolved.DatabaseURL)
	}
}

func TestResolveEnvironmentDefaultsToConfigDefault(t *testing.T) {
	dir := t.TempDir()
	resolved, err := ResolveEnvironment(configAt(t, dir), "")
	if err != nil {
		t.Fatalf("ResolveEnvironment failed: %v", err)
	}
	if resolved.Name != "local" {
		t.Errorf("expected default environment local, got %q", resolved.Name)
	}
}

func TestResolveEnvironmentFromDotenv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env.staging"),
		"DATABASE_URL=postgresql://staging.internal:5432/app\n")

	resolved, err := ResolveEnvironment(configAt(t, dir), "staging")
	if err != nil {
		t.Fatalf("ResolveEnvironment failed: %v", err)
	}
	if !resolved.FromDotenv || resolved.FromConfig {
		t.Errorf("expected dotenv-only resolution, got %+v", resolved)
	}
	if resolved.DatabaseURL != "postgresql://staging.internal:5432/app" {
		t.Errorf("unexpected url %q", resolved.DatabaseURL)
	}
}

func TestResolveEnvironmentConfigWinsOverDotenv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env.local"),
		"DATABASE_URL=postgresql://dotenv.example:5432/app\n")

	resolved, err := ResolveEnvironment(configAt(t, dir), "local")
	if err != nil {
		t.Fatalf("ResolveEnvironment failed: %v", err)
	}
	if resolved.DatabaseURL != "postgresql://localhost:5432/app" {
		t.Errorf("config url must win over dotenv, got %q", resolved.DatabaseURL)
	}
}

func TestResolveEnvironmentDotenvFallbackKeys(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "postgres key",
			content: "POSTGRES_URL=postgresql://pg.example:5432/app\n",
			want:    "postgresql://pg.example:5432/app",
		},
		{
			name:    "sqlite key",
			content: "SQLITE_DB_PATH=./app.db\n",
			want:    "./app.db",
		},
		{
			name:    "libsql with token",
			content: "LIBSQL_URL=libsql://app.turso.io\nLIBSQL_AUTH_TOKEN=tok123\n",
			want:    "libsql://app.turso.io?authToken=tok123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, ".env.staging"), tt.content)
			cfg := &Config{ConfigFilePath: filepath.Join(dir, "schemapatch.toml")}

			resolved, err := ResolveEnvironment(cfg, "staging")
			if err != nil {
				t.Fatalf("ResolveEnvironment failed: %v", err)
			}
			if resolved.DatabaseURL != tt.want {
				t.Errorf("expected %q, got %q", tt.want, resolved.DatabaseURL)
			}
		})
	}
}

func TestResolveEnvironmentMissingURL(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{ConfigFilePath: filepath.Join(dir, "schemapatch.toml")}

	_, err := ResolveEnvironment(cfg, "production")
	if err == nil {
		t.Fatal("expected an error for an unresolvable environment")
	}
	if !strings.Contains(err.Error(), "production") {
		t.Errorf("error must name the environment, got %v", err)
	}
	if !strings.Contains(err.Error(), ".env.production") {
		t.Errorf("error must name the dotenv fallback, got %v", err)
	}
}
