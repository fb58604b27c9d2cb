package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveEnvSpecificPath(t *testing.T) {
	dir := t.TempDir()
	defaultPath := filepath.Join(dir, "config.yml")
	prodPath := filepath.Join(dir, "config.production.yml")
	paths := map[string]string{environmentProduction: prodPath}

	t.Setenv(appEnvVar, "production")

	// Env file absent: stay on the requested path.
	if got := resolveEnvSpecificPath(defaultPath, defaultPath, paths); got != defaultPath {
		t.Errorf("resolve = %q, want default when env file missing", got)
	}

	if err := os.WriteFile(prodPath, []byte("{}"), 0o644); err != nil {
		t.Fatalf("failed to create env config: %v", err)
	}
	if got := resolveEnvSpecificPath(defaultPath, defaultPath, paths); got != prodPath {
		t.Errorf("resolve = %q, want production file %q", got, prodPath)
	}

	// An explicit non-default path always wins.
	explicit := filepath.Join(dir, "custom.yml")
	if got := resolveEnvSpecificPath(explicit, defaultPath, paths); got != explicit {
		t.Errorf("resolve = %q, want explicit path %q", got, explicit)
	}
}

func TestAppEnvironmentAliases(t *testing.T) {
	t.Setenv(appEnvVar, "prod")
	if got := AppEnvironment(); got != EnvironmentProduction {
		t.Errorf("AppEnvironment() = %q, want %q", got, EnvironmentProduction)
	}

	t.Setenv(appEnvVar, "")
	if got := AppEnvironment(); got != EnvironmentDevelopment {
		t.Errorf("AppEnvironment() = %q, want development default", got)
	}
}

func TestIsProductionLike(t *testing.T) {
	if !IsProductionLike(EnvironmentProduction) || !IsProductionLike(EnvironmentStaging) {
		t.Error("production and staging are production-like")
	}
	if IsProductionLike(EnvironmentDevelopment) {
		t.Error("development is not production-like")
	}
}
