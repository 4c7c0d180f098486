package config

import (
	"os"
	"testing"
	"time"
)

func validEnv() Environment {
	return Environment{
		ID:          "env-test",
		Name:        "test",
		Type:        EnvTest,
		Backend:     "postgres",
		Host:        "localhost",
		Port:        5432,
		Database:    "lofts_test",
		User:        "loftdata",
		AnonKey:     "anon",
		ServiceKey:  "service",
		AllowWrites: true,
		Status:      StatusActive,
	}
}

func TestEnvironmentValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Environment)
		expectErr bool
	}{
		{
			name:   "valid test environment",
			mutate: func(e *Environment) {},
		},
		{
			name: "valid production environment",
			mutate: func(e *Environment) {
				e.Type = EnvProduction
				e.IsProduction = true
				e.AllowWrites = false
				e.Status = StatusReadOnly
			},
		},
		{
			name:      "missing name",
			mutate:    func(e *Environment) { e.Name = "" },
			expectErr: true,
		},
		{
			name:      "missing host",
			mutate:    func(e *Environment) { e.Host = "" },
			expectErr: true,
		},
		{
			name:      "invalid type",
			mutate:    func(e *Environment) { e.Type = "staging" },
			expectErr: true,
		},
		{
			name: "production type without isProduction flag",
			mutate: func(e *Environment) {
				e.Type = EnvProduction
				e.IsProduction = false
			},
			expectErr: true,
		},
		{
			name: "production that allows writes",
			mutate: func(e *Environment) {
				e.Type = EnvProduction
				e.IsProduction = true
				e.AllowWrites = true
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := validEnv()
			tt.mutate(&env)

			err := env.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected validation to fail")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected validation to pass, got %v", err)
			}
		})
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	tempDir := t.TempDir()
	originalHome := os.Getenv("HOME")
	os.Setenv("HOME", tempDir)
	defer os.Setenv("HOME", originalHome)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	if len(cfg.Environments) == 0 {
		t.Fatal("Expected default config to contain environments")
	}

	prod, err := cfg.GetEnvironment("production")
	if err != nil {
		t.Fatalf("Expected a default production environment: %v", err)
	}
	if prod.AllowWrites {
		t.Error("Default production environment must not allow writes")
	}

	// A second load reads the file back.
	again, err := LoadConfig()
	if err != nil {
		t.Fatalf("Failed to reload config: %v", err)
	}
	if len(again.Environments) != len(cfg.Environments) {
		t.Error("Reloaded config should match the default")
	}
}

func TestGetEnvironment(t *testing.T) {
	cfg := &Config{}
	cfg.SetEnvironment("test", validEnv())

	env, err := cfg.GetEnvironment("test")
	if err != nil {
		t.Fatalf("Expected environment, got %v", err)
	}
	if env.Name != "test" {
		t.Errorf("Expected name 'test', got %q", env.Name)
	}

	if _, err := cfg.GetEnvironment("nonexistent"); err == nil {
		t.Error("Expected error for unknown environment")
	}
}

func TestGetEnvironmentRejectsInvalid(t *testing.T) {
	broken := validEnv()
	broken.Type = EnvProduction
	broken.IsProduction = true
	broken.AllowWrites = true
	broken.UpdatedAt = time.Now()

	cfg := &Config{}
	cfg.SetEnvironment("broken", broken)

	if _, err := cfg.GetEnvironment("broken"); err == nil {
		t.Error("Expected invalid environment to be rejected on resolution")
	}
}
