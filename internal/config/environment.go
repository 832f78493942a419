package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const defaultEnvironmentName = "development"

// ResolvedEnvironment is a fully-resolved environment with a concrete
// connection string.
type ResolvedEnvironment struct {
	Name        string
	DatabaseURL string
	DotenvPath  string
	FromConfig  bool
	FromDotenv  bool
}

// ResolveEnvironment resolves a named environment into a connection string.
// Precedence: the [environments.<name>] table in schemapatch.toml, then a
// .env.<name> file next to the config file (or in the working directory when
// there is no config file).
func ResolveEnvironment(config *Config, name string) (*ResolvedEnvironment, error) {
	envName := strings.TrimSpace(name)
	if envName == "" {
		if config != nil && config.DefaultEnvironment != "" {
			envName = config.DefaultEnvironment
		} else {
			envName = defaultEnvironmentName
		}
	}

	resolved := &ResolvedEnvironment{Name: envName}

	if config != nil && config.Environments != nil {
		if cfg, ok := config.Environments[envName]; ok {
			resolved.DatabaseURL = cfg.URL
			resolved.FromConfig = true
		}
	}

	baseDir := ""
	if config != nil {
		baseDir = config.ConfigDir()
	}
	if baseDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			baseDir = cwd
		}
	}
	resolved.DotenvPath = filepath.Join(baseDir, ".env."+envName)

	if info, err := os.Stat(resolved.DotenvPath); err == nil && !info.IsDir() {
		values, err := godotenv.Read(resolved.DotenvPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", resolved.DotenvPath, err)
		}
		resolved.FromDotenv = true

		// Config values win; dotenv fills in what the config left blank.
		if resolved.DatabaseURL == "" {
			if value := values["DATABASE_URL"]; value != "" {
				resolved.DatabaseURL = value
			}
		}
		if resolved.DatabaseURL == "" {
			if value := values["POSTGRES_URL"]; value != "" {
				resolved.DatabaseURL = value
			}
		}
		if resolved.DatabaseURL == "" {
			if value := values["SQLITE_DB_PATH"]; value != "" {
				resolved.DatabaseURL = value
			}
		}
		if resolved.DatabaseURL == "" {
			if value := values["LIBSQL_URL"]; value != "" {
				if authToken := values["LIBSQL_AUTH_TOKEN"]; authToken != "" {
					resolved.DatabaseURL = fmt.Sprintf("%s?authToken=%s", value, authToken)
				} else {
					resolved.DatabaseURL = value
				}
			}
		}
	} else if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to access %s: %w", resolved.DotenvPath, err)
	}

	if resolved.DatabaseURL == "" {
		return nil, fmt.Errorf("environment %q has no connection string: set [environments.%s] url in schemapatch.toml or DATABASE_URL in %s",
			envName, envName, resolved.DotenvPath)
	}

	return resolved, nil
}
