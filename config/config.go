package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EnvType classifies a data environment.
type EnvType string

const (
	EnvProduction  EnvType = "production"
	EnvTest        EnvType = "test"
	EnvDevelopment EnvType = "development"
	EnvTraining    EnvType = "training"
)

const (
	StatusReadOnly = "read_only"
	StatusActive   = "active"
)

// Environment describes one named data environment. AnonKey is the read-only
// credential, ServiceKey the privileged one; writes always go through the
// service credential.
type Environment struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         EnvType   `json:"type"`
	Backend      string    `json:"backend"` // postgres | mysql | dynamodb
	Host         string    `json:"host"`
	Port         int       `json:"port"`
	Database     string    `json:"database"`
	User         string    `json:"user"`
	AnonKey      string    `json:"anonKey"`
	ServiceKey   string    `json:"serviceKey"`
	IsProduction bool      `json:"isProduction"`
	AllowWrites  bool      `json:"allowWrites"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Validate enforces the environment invariants. A production environment
// must never allow writes; this is checked, not assumed.
func (e Environment) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("environment has no name")
	}
	if e.Host == "" {
		return fmt.Errorf("environment %s has no host", e.Name)
	}
	switch e.Type {
	case EnvProduction, EnvTest, EnvDevelopment, EnvTraining:
	default:
		return fmt.Errorf("environment %s has invalid type %q", e.Name, e.Type)
	}
	if e.Type == EnvProduction && !e.IsProduction {
		return fmt.Errorf("environment %s has type production but isProduction=false", e.Name)
	}
	if e.IsProduction && e.AllowWrites {
		return fmt.Errorf("environment %s is production but allows writes", e.Name)
	}
	return nil
}

type Config struct {
	Environments map[string]Environment `json:"environments"`
}

func LoadConfig() (*Config, error) {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return createDefaultConfig(configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

func (c *Config) SaveConfig() error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetEnvironment resolves a named environment and validates it before
// handing it to any caller.
func (c *Config) GetEnvironment(name string) (*Environment, error) {
	env, exists := c.Environments[name]
	if !exists {
		return nil, fmt.Errorf("environment not found: %s", name)
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("invalid environment %s: %w", name, err)
	}
	return &env, nil
}

func (c *Config) SetEnvironment(name string, env Environment) {
	if c.Environments == nil {
		c.Environments = make(map[string]Environment)
	}
	c.Environments[name] = env
}

// EnvironmentNames returns the configured environment names.
func (c *Config) EnvironmentNames() []string {
	var names []string
	for name := range c.Environments {
		names = append(names, name)
	}
	return names
}

func getConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".loftdata/config.json"
	}
	return filepath.Join(homeDir, ".loftdata", "config.json")
}

func createDefaultConfig(configPath string) (*Config, error) {
	now := time.Now().UTC()
	config := &Config{
		Environments: map[string]Environment{
			"production": {
				ID:           "env-production",
				Name:         "production",
				Type:         EnvProduction,
				Backend:      "postgres",
				Host:         "db.example.com",
				Port:         5432,
				Database:     "lofts",
				User:         "loftdata",
				AnonKey:      "anon-key",
				ServiceKey:   "service-key",
				IsProduction: true,
				AllowWrites:  false,
				Status:       StatusReadOnly,
				CreatedAt:    now,
				UpdatedAt:    now,
			},
			"test": {
				ID:          "env-test",
				Name:        "test",
				Type:        EnvTest,
				Backend:     "postgres",
				Host:        "localhost",
				Port:        5432,
				Database:    "lofts_test",
				User:        "loftdata",
				AnonKey:     "anon-key",
				ServiceKey:  "service-key",
				AllowWrites: true,
				Status:      StatusActive,
				CreatedAt:   now,
				UpdatedAt:   now,
			},
		},
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := config.SaveConfig(); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}

	fmt.Printf("Created default config at %s\n", configPath)
	fmt.Println("Please edit the config file to add your environments.")

	return config, nil
}
